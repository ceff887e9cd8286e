package raytrace

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu/sim"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/shader"
)

type fixture struct {
	dev      sim.Device
	queue    gpu.CommandQueue
	alloc    gpu.CommandAllocator
	list     gpu.CommandList
	fence    gpu.Fence
	value    uint64
	vertices gpu.Resource
	indices  gpu.Resource
}

func newFixture(t *testing.T, options ...sim.DeviceBuilderOption) *fixture {
	t.Helper()
	f := &fixture{dev: sim.NewDevice(options...)}
	var err error
	f.queue, err = f.dev.CreateCommandQueue()
	require.NoError(t, err)
	f.alloc, err = f.dev.CreateCommandAllocator()
	require.NoError(t, err)
	f.list, err = f.dev.CreateCommandList(f.alloc, nil)
	require.NoError(t, err)
	f.fence, err = f.dev.CreateFence(0)
	require.NoError(t, err)

	// one triangle, 20-byte vertices
	f.vertices, err = f.dev.CreateCommittedResource(gpu.HeapTypeUpload,
		gpu.BufferDesc("vertices", 3*DefaultVertexStride, gpu.ResourceFlagNone), gpu.ResourceStateGenericRead)
	require.NoError(t, err)
	f.indices, err = f.dev.CreateCommittedResource(gpu.HeapTypeUpload,
		gpu.BufferDesc("indices", 3*4, gpu.ResourceFlagNone), gpu.ResourceStateGenericRead)
	require.NoError(t, err)
	return f
}

func (f *fixture) submit(t *testing.T) {
	t.Helper()
	require.NoError(t, f.list.Close())
	require.NoError(t, f.queue.ExecuteCommandLists(f.list))
	f.value++
	require.NoError(t, f.queue.Signal(f.fence, f.value))
	<-f.fence.Notify(f.value)
	require.NoError(t, f.alloc.Reset())
	require.NoError(t, f.list.Reset(f.alloc, nil))
}

func (f *fixture) triangle() []Geometry {
	return []Geometry{{VertexBuffer: f.vertices, VertexCount: 3, IndexBuffer: f.indices, IndexCount: 3}}
}

func libraries(t *testing.T) Libraries {
	t.Helper()
	set, err := shader.NewLoader().LoadAll(context.Background())
	require.NoError(t, err)
	return Libraries{RayGen: set.RayGen, Miss: set.Miss, Hit: set.Hit}
}

// initialize runs every step with n instances of one triangle.
func initialize(t *testing.T, f *fixture, n int, width, height uint32, options ...PipelineBuilderOption) Pipeline {
	t.Helper()
	p := New(f.dev, options...)
	require.NoError(t, p.CheckSupport())
	blas, err := p.BuildBottomLevelAS(f.list, f.triangle())
	require.NoError(t, err)
	instances := make([]Instance, n)
	for i := range instances {
		instances[i] = Instance{BLAS: blas, Transform: common.NewTransform(float32(i), 0, 0).Matrix()}
	}
	_, err = p.BuildTopLevelAS(f.list, instances)
	require.NoError(t, err)
	f.submit(t)

	require.NoError(t, p.BuildPipeline(libraries(t)))
	require.NoError(t, p.BuildOutputBuffer(width, height))
	require.NoError(t, p.BuildDescriptorHeap())
	require.NoError(t, p.BuildShaderBindingTable())
	require.True(t, p.Ready())
	return p
}

func TestCheckSupportRejectsMissingTier(t *testing.T) {
	f := newFixture(t, sim.WithRaytracingTier(gpu.RaytracingTierNotSupported))
	p := New(f.dev)

	err := p.CheckSupport()
	var ue *UnsupportedError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, gpu.RaytracingTierNotSupported, ue.Tier)

	_, err = p.BuildBottomLevelAS(f.list, f.triangle())
	assert.ErrorIs(t, err, ErrOutOfOrder)
}

func TestStepsOutOfOrder(t *testing.T) {
	f := newFixture(t)
	p := New(f.dev)
	defer p.Release()

	_, err := p.BuildTopLevelAS(f.list, nil)
	assert.ErrorIs(t, err, ErrOutOfOrder)
	assert.ErrorIs(t, p.BuildPipeline(libraries(t)), ErrOutOfOrder)
	assert.ErrorIs(t, p.BuildOutputBuffer(4, 4), ErrOutOfOrder)
	assert.ErrorIs(t, p.BuildDescriptorHeap(), ErrOutOfOrder)
	assert.ErrorIs(t, p.BuildShaderBindingTable(), ErrOutOfOrder)
	assert.ErrorIs(t, p.Record(f.list, f.vertices, 4, 4), ErrOutOfOrder)

	require.NoError(t, p.CheckSupport())
	_, err = p.BuildBottomLevelAS(f.list, f.triangle())
	require.NoError(t, err)
	// skipping the top level
	assert.ErrorIs(t, p.BuildPipeline(libraries(t)), ErrOutOfOrder)
	assert.False(t, p.Ready())
}

func TestTopLevelInstanceCount(t *testing.T) {
	for _, n := range []int{0, 1, 3, 16} {
		f := newFixture(t)
		p := New(f.dev)
		require.NoError(t, p.CheckSupport())
		blas, err := p.BuildBottomLevelAS(f.list, f.triangle())
		require.NoError(t, err)

		instances := make([]Instance, n)
		for i := range instances {
			instances[i] = Instance{BLAS: blas, Transform: common.NewTransform(float32(i), 2, 3).Matrix()}
		}
		tlas, err := p.BuildTopLevelAS(f.list, instances)
		require.NoError(t, err)
		f.submit(t)

		info, ok := sim.AccelerationStructureInfo(tlas.Result)
		require.True(t, ok, "n=%d", n)
		assert.Equal(t, gpu.AccelerationStructureTopLevel, info.Type)
		assert.Equal(t, n, info.InstanceCount, "n=%d", n)
		assert.Equal(t, n, p.InstanceCount())
		require.Len(t, info.Instances, n)
		for i, inst := range info.Instances {
			assert.Equal(t, uint32(i), inst.InstanceID)
			assert.Equal(t, uint32(i), inst.HitGroupIndex)
			assert.Equal(t, uint8(0xFF), inst.InstanceMask)
			assert.Equal(t, blas.Address(), inst.AccelerationStructure)
			// row-major 3x4: translation sits in the last column
			assert.Equal(t, float32(i), inst.Transform[3])
			assert.Equal(t, float32(2), inst.Transform[7])
			assert.Equal(t, float32(3), inst.Transform[11])
		}
		p.Release()
	}
}

func TestBottomLevelBuffersAreAligned(t *testing.T) {
	f := newFixture(t)
	p := New(f.dev)
	defer p.Release()
	require.NoError(t, p.CheckSupport())

	blas, err := p.BuildBottomLevelAS(f.list, append(f.triangle(), Geometry{VertexBuffer: f.vertices, VertexCount: 3}))
	require.NoError(t, err)
	f.submit(t)

	assert.Zero(t, blas.ResultSize%gpu.AccelerationStructureAlignment)
	assert.Zero(t, blas.ScratchSize%gpu.AccelerationStructureAlignment)
	assert.NotZero(t, blas.Result.Desc().Flags&gpu.ResourceFlagAllowUnorderedAccess)
	info, ok := sim.AccelerationStructureInfo(blas.Result)
	require.True(t, ok)
	assert.Equal(t, gpu.AccelerationStructureBottomLevel, info.Type)
	assert.Equal(t, 2, info.GeometryCount)
	assert.Len(t, p.BottomLevels(), 1)
}

func TestRefitRewritesTransforms(t *testing.T) {
	f := newFixture(t)
	p := initialize(t, f, 2, 4, 4)
	defer p.Release()

	moved := []common.Mat4{common.NewTransform(5, 0, 0).Matrix(), common.NewTransform(0, 6, 0).Matrix()}
	require.NoError(t, p.RefitTopLevelAS(f.list, moved))
	f.submit(t)

	info, ok := sim.AccelerationStructureInfo(p.TopLevel().Result)
	require.True(t, ok)
	assert.Equal(t, 2, info.Builds)
	assert.Equal(t, float32(5), info.Instances[0].Transform[3])
	assert.Equal(t, float32(6), info.Instances[1].Transform[7])

	assert.Error(t, p.RefitTopLevelAS(f.list, moved[:1]))
}

func TestRefitNeedsAllowUpdate(t *testing.T) {
	f := newFixture(t)
	p := initialize(t, f, 1, 4, 4, WithAllowUpdate(false))
	defer p.Release()
	assert.Error(t, p.RefitTopLevelAS(f.list, []common.Mat4{common.Identity4()}))
}

func TestSBTTotalIsSumOfPaddedSections(t *testing.T) {
	cases := []struct {
		name                string
		rayGen, miss, hit   int
		rayGenArgs, hitArgs int
		wantTotal           uint64
	}{
		{name: "renderer layout", rayGen: 1, miss: 1, hit: 1, rayGenArgs: 1, wantTotal: 64 + 64 + 64},
		{name: "wide hit records", rayGen: 1, miss: 2, hit: 3, rayGenArgs: 1, hitArgs: 2, wantTotal: 64 + 64 + 192},
		{name: "many misses", rayGen: 1, miss: 5, hit: 1, wantTotal: 64 + 192 + 64},
		{name: "empty hit section", rayGen: 1, miss: 1, wantTotal: 64 + 64},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var b SBTBuilder
			for range tc.rayGen {
				b.AddRayGenerationProgram("RayGen", make([]uint64, tc.rayGenArgs)...)
			}
			for range tc.miss {
				b.AddMissProgram("Miss")
			}
			for range tc.hit {
				b.AddHitGroup("HitGroup", make([]uint64, tc.hitArgs)...)
			}
			l := b.Layout()

			assert.Equal(t, tc.wantTotal, l.TotalSize())
			assert.Equal(t, l.RayGenSectionSize+l.MissSectionSize+l.HitGroupSectionSize, l.TotalSize())
			for _, s := range []uint64{l.RayGenSectionSize, l.MissSectionSize, l.HitGroupSectionSize} {
				assert.Zero(t, s%gpu.ShaderTableAlignment)
			}
			for _, e := range []uint64{l.RayGenEntrySize, l.MissEntrySize, l.HitGroupEntrySize} {
				assert.Zero(t, e%gpu.ShaderRecordAlignment)
			}
			assert.GreaterOrEqual(t, l.HitGroupSectionSize, l.HitGroupEntrySize*uint64(tc.hit))
		})
	}
}

func TestSBTResetDropsRecords(t *testing.T) {
	var b SBTBuilder
	b.AddRayGenerationProgram("RayGen", 1)
	b.AddMissProgram("Miss")
	b.Reset()
	assert.Zero(t, b.Layout().TotalSize())
}

func TestShaderBindingTableRecords(t *testing.T) {
	f := newFixture(t)
	p := initialize(t, f, 1, 4, 4)
	defer p.Release()

	l := p.Layout()
	assert.Equal(t, uint64(64), l.RayGenEntrySize)
	assert.Equal(t, uint64(32), l.MissEntrySize)
	assert.Equal(t, uint64(32), l.HitGroupEntrySize)
	assert.Equal(t, l.TotalSize(), p.ShaderBindingTable().Desc().Width)

	table := sim.Contents(p.ShaderBindingTable())
	// the ray-generation record carries the heap handle after its identifier
	handle := binary.LittleEndian.Uint64(table[gpu.ShaderIdentifierSize:])
	assert.Equal(t, p.DescriptorHeap().GPUHandleForHeapStart().Ptr, handle)
	assert.NotEqual(t, make([]byte, gpu.ShaderIdentifierSize), table[l.MissOffset():l.MissOffset()+gpu.ShaderIdentifierSize])
	assert.NotEqual(t, make([]byte, gpu.ShaderIdentifierSize), table[l.HitGroupOffset():l.HitGroupOffset()+gpu.ShaderIdentifierSize])
}

func TestShaderBindingTableAllocationFailure(t *testing.T) {
	boom := errors.New("no memory for table")
	f := newFixture(t, sim.WithFailure("CreateCommittedResource:sbt", boom))
	p := New(f.dev)
	defer p.Release()
	require.NoError(t, p.CheckSupport())
	blas, err := p.BuildBottomLevelAS(f.list, f.triangle())
	require.NoError(t, err)
	_, err = p.BuildTopLevelAS(f.list, []Instance{{BLAS: blas, Transform: common.Identity4()}})
	require.NoError(t, err)
	require.NoError(t, p.BuildPipeline(libraries(t)))
	require.NoError(t, p.BuildOutputBuffer(4, 4))
	require.NoError(t, p.BuildDescriptorHeap())

	err = p.BuildShaderBindingTable()
	var ae *AllocationError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "shader binding table", ae.What)
	assert.ErrorIs(t, err, boom)
	assert.False(t, p.Ready())
}

func TestOutputFormatDropsSRGB(t *testing.T) {
	f := newFixture(t)
	p := initialize(t, f, 1, 4, 4, WithFormat(gpu.FormatR8G8B8A8UnormSRGB))
	defer p.Release()

	desc := p.Output().Desc()
	assert.Equal(t, gpu.FormatR8G8B8A8Unorm, desc.Format)
	assert.NotZero(t, desc.Flags&gpu.ResourceFlagAllowUnorderedAccess)
}

func TestRecordTracesIntoRenderTarget(t *testing.T) {
	f := newFixture(t)
	p := initialize(t, f, 1, 4, 4)
	defer p.Release()

	target, err := f.dev.CreateCommittedResource(gpu.HeapTypeDefault,
		gpu.Texture2DDesc("backbuffer", 4, 4, gpu.FormatR8G8B8A8Unorm, gpu.ResourceFlagAllowRenderTarget), gpu.ResourceStateRenderTarget)
	require.NoError(t, err)
	defer target.Release()

	require.NoError(t, p.Record(f.list, target, 4, 4))
	f.submit(t)
	// a second frame starts from the same states
	require.NoError(t, p.Record(f.list, target, 4, 4))
	f.submit(t)

	assert.Equal(t, uint64(2), f.dev.Stats().DispatchRays)
	px := sim.Contents(target)
	assert.Equal(t, []byte{0, 0, 128, 255}, px[:4])
	assert.Equal(t, []byte{255, 0, 128, 255}, px[12:16])
}

func TestRefitThenTraceInOneList(t *testing.T) {
	f := newFixture(t)
	p := initialize(t, f, 2, 4, 4)
	defer p.Release()

	target, err := f.dev.CreateCommittedResource(gpu.HeapTypeDefault,
		gpu.Texture2DDesc("backbuffer", 4, 4, gpu.FormatR8G8B8A8Unorm, gpu.ResourceFlagAllowRenderTarget), gpu.ResourceStateRenderTarget)
	require.NoError(t, err)
	defer target.Release()

	moved := []common.Mat4{common.NewTransform(1, 0, 0).Matrix(), common.NewTransform(0, 1, 0).Matrix()}
	for range 2 {
		require.NoError(t, p.RefitTopLevelAS(f.list, moved))
		require.NoError(t, p.Record(f.list, target, 4, 4))
		f.submit(t)
	}
	assert.Equal(t, uint64(2), f.dev.Stats().DispatchRays)

	info, ok := sim.AccelerationStructureInfo(p.TopLevel().Result)
	require.True(t, ok)
	assert.Equal(t, 3, info.Builds)
}

func TestReleaseFreesEverything(t *testing.T) {
	f := newFixture(t)
	before := f.dev.Allocated()
	p := initialize(t, f, 3, 4, 4)
	assert.Greater(t, f.dev.Allocated(), before)

	p.Release()
	assert.Equal(t, before, f.dev.Allocated())
	assert.False(t, p.Ready())
	assert.Nil(t, p.TopLevel())
}

func TestBuildPipelineNeedsLibraries(t *testing.T) {
	f := newFixture(t)
	p := New(f.dev)
	defer p.Release()
	require.NoError(t, p.CheckSupport())
	blas, err := p.BuildBottomLevelAS(f.list, f.triangle())
	require.NoError(t, err)
	_, err = p.BuildTopLevelAS(f.list, []Instance{{BLAS: blas, Transform: common.Identity4()}})
	require.NoError(t, err)

	libs := libraries(t)
	libs.Hit = nil
	var ce *shader.CompileError
	assert.ErrorAs(t, p.BuildPipeline(libs), &ce)
}
