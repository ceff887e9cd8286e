package sim

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
)

type fixture struct {
	dev   Device
	queue gpu.CommandQueue
	alloc gpu.CommandAllocator
	list  gpu.CommandList
	fence gpu.Fence
	value uint64
}

func newFixture(t *testing.T, options ...DeviceBuilderOption) *fixture {
	t.Helper()
	f := &fixture{dev: NewDevice(options...)}
	var err error
	f.queue, err = f.dev.CreateCommandQueue()
	require.NoError(t, err)
	f.alloc, err = f.dev.CreateCommandAllocator()
	require.NoError(t, err)
	f.list, err = f.dev.CreateCommandList(f.alloc, nil)
	require.NoError(t, err)
	f.fence, err = f.dev.CreateFence(0)
	require.NoError(t, err)
	t.Cleanup(f.queue.Release)
	return f
}

// submit closes, executes and waits for the list, then reopens it.
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

func TestFenceNotify(t *testing.T) {
	f := newFixture(t, WithLatency(10*time.Millisecond))

	require.NoError(t, f.list.Close())
	require.NoError(t, f.queue.ExecuteCommandLists(f.list))
	require.NoError(t, f.queue.Signal(f.fence, 1))

	ch := f.fence.Notify(1)
	select {
	case <-ch:
		t.Fatal("fence completed before the GPU ran the list")
	default:
	}
	<-ch
	assert.Equal(t, uint64(1), f.fence.CompletedValue())

	select {
	case <-f.fence.Notify(1):
	default:
		t.Fatal("notify on a reached value must return a closed channel")
	}

	var kinds []EventKind
	for _, e := range f.dev.Journal().Filter(EventExecute, EventSignal) {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []EventKind{EventExecute, EventSignal}, kinds)
}

func TestAllocatorResetWhileExecuting(t *testing.T) {
	f := newFixture(t, WithLatency(20*time.Millisecond))
	require.NoError(t, f.list.Close())
	require.NoError(t, f.queue.ExecuteCommandLists(f.list))

	assert.ErrorIs(t, f.alloc.Reset(), gpu.ErrAllocatorInUse)

	require.NoError(t, f.queue.Signal(f.fence, 1))
	<-f.fence.Notify(1)
	assert.NoError(t, f.alloc.Reset())
}

func TestBarrierStateValidation(t *testing.T) {
	f := newFixture(t)
	buf, err := f.dev.CreateCommittedResource(gpu.HeapTypeDefault, gpu.BufferDesc("vb", 64, 0), gpu.ResourceStateCopyDest)
	require.NoError(t, err)

	f.list.ResourceBarrier(gpu.Transition(buf, gpu.ResourceStateCopyDest, gpu.ResourceStateVertexAndConstantBuffer))
	f.list.ResourceBarrier(gpu.Transition(buf, gpu.ResourceStateCopyDest, gpu.ResourceStateCopySource))
	err = f.list.Close()
	assert.ErrorIs(t, err, gpu.ErrInvalidState)

	assert.Error(t, f.queue.ExecuteCommandLists(f.list), "a list closed with an error cannot execute")
}

func TestUploadHeapRejectsBarriers(t *testing.T) {
	f := newFixture(t)
	up, err := f.dev.CreateCommittedResource(gpu.HeapTypeUpload, gpu.BufferDesc("up", 64, 0), gpu.ResourceStateGenericRead)
	require.NoError(t, err)
	f.list.ResourceBarrier(gpu.Transition(up, gpu.ResourceStateGenericRead, gpu.ResourceStateCopyDest))
	assert.ErrorIs(t, f.list.Close(), gpu.ErrInvalidState)
}

func TestCopyMovesBytes(t *testing.T) {
	f := newFixture(t)
	up, err := f.dev.CreateCommittedResource(gpu.HeapTypeUpload, gpu.BufferDesc("up", 300, 0), gpu.ResourceStateGenericRead)
	require.NoError(t, err)
	dst, err := f.dev.CreateCommittedResource(gpu.HeapTypeDefault, gpu.BufferDesc("dst", 300, 0), gpu.ResourceStateCopyDest)
	require.NoError(t, err)
	rb, err := f.dev.CreateCommittedResource(gpu.HeapTypeReadback, gpu.BufferDesc("rb", 300, 0), gpu.ResourceStateCopyDest)
	require.NoError(t, err)

	mem, err := up.Map()
	require.NoError(t, err)
	for i := range mem {
		mem[i] = byte(i * 7)
	}
	up.Unmap()

	f.list.CopyBufferRegion(dst, 0, up, 0, 300)
	f.list.ResourceBarrier(gpu.Transition(dst, gpu.ResourceStateCopyDest, gpu.ResourceStateCopySource))
	f.list.CopyResource(rb, dst)
	f.submit(t)

	out, err := rb.Map()
	require.NoError(t, err)
	assert.Equal(t, mem, out)

	_, err = dst.Map()
	assert.ErrorIs(t, err, gpu.ErrNotMappable)
}

func TestCopyBufferToTextureHonorsPitch(t *testing.T) {
	f := newFixture(t)
	const w, h = 3, 2
	up, err := f.dev.CreateCommittedResource(gpu.HeapTypeUpload, gpu.BufferDesc("up", 256+w*4, 0), gpu.ResourceStateGenericRead)
	require.NoError(t, err)
	tex, err := f.dev.CreateCommittedResource(gpu.HeapTypeDefault, gpu.Texture2DDesc("tex", w, h, gpu.FormatR8G8B8A8Unorm, 0), gpu.ResourceStateCopyDest)
	require.NoError(t, err)

	mem, _ := up.Map()
	for i := 0; i < w*4; i++ {
		mem[i] = 1
		mem[256+i] = 2
	}
	f.list.CopyBufferToTexture(tex, up, 0, 256)
	f.submit(t)

	got := Contents(tex)
	require.Len(t, got, w*h*4)
	for i := 0; i < w*4; i++ {
		assert.Equal(t, byte(1), got[i])
		assert.Equal(t, byte(2), got[w*4+i])
	}
}

func TestFailureInjection(t *testing.T) {
	boom := errors.New("boom")
	d := NewDevice(WithFailure("CreateCommittedResource:sbt", boom))

	_, err := d.CreateCommittedResource(gpu.HeapTypeUpload, gpu.BufferDesc("sbt", 64, 0), gpu.ResourceStateGenericRead)
	assert.ErrorIs(t, err, boom)
	_, err = d.CreateCommittedResource(gpu.HeapTypeUpload, gpu.BufferDesc("other", 64, 0), gpu.ResourceStateGenericRead)
	assert.NoError(t, err)

	d.Fail("CreateFence", boom)
	_, err = d.CreateFence(0)
	assert.ErrorIs(t, err, boom)
	d.Fail("CreateFence", nil)
	_, err = d.CreateFence(0)
	assert.NoError(t, err)
}

func TestMemoryLimit(t *testing.T) {
	d := NewDevice(WithMemoryLimit(1024))
	r, err := d.CreateCommittedResource(gpu.HeapTypeDefault, gpu.BufferDesc("a", 1000, 0), gpu.ResourceStateCommon)
	require.NoError(t, err)
	_, err = d.CreateCommittedResource(gpu.HeapTypeDefault, gpu.BufferDesc("b", 100, 0), gpu.ResourceStateCommon)
	assert.ErrorIs(t, err, gpu.ErrOutOfMemory)

	r.Release()
	assert.Zero(t, d.Allocated())
	_, err = d.CreateCommittedResource(gpu.HeapTypeDefault, gpu.BufferDesc("b", 100, 0), gpu.ResourceStateCommon)
	assert.NoError(t, err)
}

func TestBuffersArePlacementAligned(t *testing.T) {
	d := NewDevice()
	a, err := d.CreateCommittedResource(gpu.HeapTypeDefault, gpu.BufferDesc("a", 10, 0), gpu.ResourceStateCommon)
	require.NoError(t, err)
	b, err := d.CreateCommittedResource(gpu.HeapTypeDefault, gpu.BufferDesc("b", 70000, 0), gpu.ResourceStateCommon)
	require.NoError(t, err)
	assert.Zero(t, a.GPUVirtualAddress()%gpu.ResourcePlacementAlignment)
	assert.Zero(t, b.GPUVirtualAddress()%gpu.ResourcePlacementAlignment)
	assert.NotEqual(t, a.GPUVirtualAddress(), b.GPUVirtualAddress())
}

func TestStateObjectIdentifiers(t *testing.T) {
	d := NewDevice()
	local, err := d.CreateRootSignature(gpu.RootSignatureDesc{Label: "empty", Local: true})
	require.NoError(t, err)
	so, err := d.CreateStateObject(&gpu.StateObjectDesc{
		Libraries: []gpu.ShaderLibrary{
			{Name: "raygen", Code: []byte{1}, Exports: []string{"RayGen"}},
			{Name: "hit", Code: []byte{1}, Exports: []string{"ClosestHit"}},
		},
		HitGroups:         []gpu.HitGroup{{Name: "HitGroup", ClosestHit: "ClosestHit"}},
		Associations:      []gpu.RootSignatureAssociation{{RootSignature: local, Exports: []string{"HitGroup"}}},
		MaxRecursionDepth: 1,
	})
	require.NoError(t, err)
	props, err := so.Properties()
	require.NoError(t, err)

	rg := props.ShaderIdentifier("RayGen")
	hg := props.ShaderIdentifier("HitGroup")
	assert.Len(t, rg, gpu.ShaderIdentifierSize)
	assert.Len(t, hg, gpu.ShaderIdentifierSize)
	assert.NotEqual(t, rg, hg)
	assert.Nil(t, props.ShaderIdentifier("Miss"))

	_, err = d.CreateStateObject(&gpu.StateObjectDesc{
		HitGroups:         []gpu.HitGroup{{Name: "HitGroup", ClosestHit: "Missing"}},
		MaxRecursionDepth: 1,
	})
	assert.Error(t, err)
}

func TestRaytracingUnsupported(t *testing.T) {
	d := NewDevice(WithRaytracingTier(gpu.RaytracingTierNotSupported))
	_, err := d.CreateStateObject(&gpu.StateObjectDesc{MaxRecursionDepth: 1})
	assert.ErrorIs(t, err, gpu.ErrUnsupported)
	_, err = d.AccelerationStructurePrebuildInfo(&gpu.ASInputs{Type: gpu.AccelerationStructureTopLevel, NumInstances: 1})
	assert.ErrorIs(t, err, gpu.ErrUnsupported)
}

func TestTopLevelBuildRecordsInstances(t *testing.T) {
	f := newFixture(t)
	inputs := gpu.ASInputs{Type: gpu.AccelerationStructureTopLevel, NumInstances: 2}
	pre, err := f.dev.AccelerationStructurePrebuildInfo(&inputs)
	require.NoError(t, err)

	scratch, err := f.dev.CreateCommittedResource(gpu.HeapTypeDefault,
		gpu.BufferDesc("scratch", pre.ScratchDataSize, gpu.ResourceFlagAllowUnorderedAccess), gpu.ResourceStateUnorderedAccess)
	require.NoError(t, err)
	result, err := f.dev.CreateCommittedResource(gpu.HeapTypeDefault,
		gpu.BufferDesc("tlas", pre.ResultDataMaxSize, gpu.ResourceFlagAllowUnorderedAccess), gpu.ResourceStateRaytracingAccelerationStructure)
	require.NoError(t, err)
	descs, err := f.dev.CreateCommittedResource(gpu.HeapTypeUpload, gpu.BufferDesc("instances", 2*gpu.InstanceDescSize, 0), gpu.ResourceStateGenericRead)
	require.NoError(t, err)

	mem, _ := descs.Map()
	for i := 0; i < 2; i++ {
		gpu.EncodeInstanceDesc(mem[i*gpu.InstanceDescSize:], gpu.InstanceDesc{InstanceID: uint32(i), HitGroupIndex: uint32(i), InstanceMask: 0xff})
	}
	descs.Unmap()

	inputs.InstanceDescs = descs.GPUVirtualAddress()
	f.list.BuildAccelerationStructure(&gpu.BuildASDesc{
		Inputs:         inputs,
		DestAddress:    result.GPUVirtualAddress(),
		ScratchAddress: scratch.GPUVirtualAddress(),
	})
	f.submit(t)

	info, ok := AccelerationStructureInfo(result)
	require.True(t, ok)
	assert.Equal(t, gpu.AccelerationStructureTopLevel, info.Type)
	assert.Equal(t, 2, info.InstanceCount)
	require.Len(t, info.Instances, 2)
	assert.Equal(t, uint32(1), info.Instances[1].HitGroupIndex)
	assert.Equal(t, uint64(1), f.dev.Stats().ASBuilds)
}

func TestSwapChainPresent(t *testing.T) {
	f := newFixture(t)
	sc, err := f.dev.CreateSwapChain(f.queue, gpu.WindowHandle{}, gpu.SwapChainDesc{Width: 4, Height: 4, Format: gpu.FormatR8G8B8A8Unorm, BufferCount: 3})
	require.NoError(t, err)
	assert.Equal(t, uint32(0), sc.CurrentBackBufferIndex())

	require.NoError(t, sc.Present())
	assert.Equal(t, uint32(1), sc.CurrentBackBufferIndex())

	buf, err := sc.Buffer(1)
	require.NoError(t, err)
	f.list.ResourceBarrier(gpu.Transition(buf, gpu.ResourceStatePresent, gpu.ResourceStateRenderTarget))
	require.NoError(t, f.list.Close())
	assert.ErrorIs(t, sc.Present(), gpu.ErrInvalidState, "back buffer left in RENDER_TARGET")
}

func TestReleaseJournal(t *testing.T) {
	d := NewDevice()
	fence, err := d.CreateFence(0)
	require.NoError(t, err)
	fence.Release()
	d.Release()
	d.Release()

	events := d.Journal().Filter(EventRelease)
	require.Len(t, events, 2)
	assert.Equal(t, "fence0", events[0].Object)
	assert.Equal(t, "device", events[1].Object)

	_, err = d.CreateFence(0)
	assert.ErrorIs(t, err, gpu.ErrDeviceRemoved)
}

// newAS allocates a scratch buffer in UNORDERED_ACCESS and a result buffer sized for inputs.
func newAS(t *testing.T, d Device, label string, inputs *gpu.ASInputs) (gpu.Resource, gpu.Resource) {
	t.Helper()
	pre, err := d.AccelerationStructurePrebuildInfo(inputs)
	require.NoError(t, err)
	scratch, err := d.CreateCommittedResource(gpu.HeapTypeDefault,
		gpu.BufferDesc(label+"_scratch", max(pre.ScratchDataSize, pre.UpdateScratchDataSize), gpu.ResourceFlagAllowUnorderedAccess),
		gpu.ResourceStateUnorderedAccess)
	require.NoError(t, err)
	result, err := d.CreateCommittedResource(gpu.HeapTypeDefault,
		gpu.BufferDesc(label, pre.ResultDataMaxSize, gpu.ResourceFlagAllowUnorderedAccess),
		gpu.ResourceStateRaytracingAccelerationStructure)
	require.NoError(t, err)
	return scratch, result
}

func TestAccelerationStructureReadsNeedUAVBarrier(t *testing.T) {
	f := newFixture(t)
	verts, err := f.dev.CreateCommittedResource(gpu.HeapTypeDefault, gpu.BufferDesc("verts", 36, 0), gpu.ResourceStateCommon)
	require.NoError(t, err)
	bottom := gpu.ASInputs{
		Type: gpu.AccelerationStructureBottomLevel,
		Geometries: []gpu.GeometryDesc{{
			VertexBuffer: verts.GPUVirtualAddress(),
			VertexCount:  3,
			VertexStride: 12,
			VertexFormat: gpu.FormatR32G32B32Float,
		}},
	}
	blasScratch, blas := newAS(t, f.dev, "blas", &bottom)

	top := gpu.ASInputs{Type: gpu.AccelerationStructureTopLevel, Flags: gpu.BuildFlagAllowUpdate, NumInstances: 1}
	tlasScratch, tlas := newAS(t, f.dev, "tlas", &top)
	descs, err := f.dev.CreateCommittedResource(gpu.HeapTypeUpload, gpu.BufferDesc("instances", gpu.InstanceDescSize, 0), gpu.ResourceStateGenericRead)
	require.NoError(t, err)
	mem, err := descs.Map()
	require.NoError(t, err)
	gpu.EncodeInstanceDesc(mem, gpu.InstanceDesc{InstanceMask: 0xff, AccelerationStructure: blas.GPUVirtualAddress()})
	descs.Unmap()
	top.InstanceDescs = descs.GPUVirtualAddress()

	buildBottom := &gpu.BuildASDesc{Inputs: bottom, DestAddress: blas.GPUVirtualAddress(), ScratchAddress: blasScratch.GPUVirtualAddress()}
	buildTop := &gpu.BuildASDesc{Inputs: top, DestAddress: tlas.GPUVirtualAddress(), ScratchAddress: tlasScratch.GPUVirtualAddress()}
	reopen := func() {
		require.NoError(t, f.list.Reset(f.alloc, nil))
	}

	// top-level build reading a bottom level written in the same list
	f.list.BuildAccelerationStructure(buildBottom)
	f.list.BuildAccelerationStructure(buildTop)
	assert.ErrorIs(t, f.list.Close(), gpu.ErrInvalidState)
	reopen()

	f.list.BuildAccelerationStructure(buildBottom)
	f.list.ResourceBarrier(gpu.UAVBarrier(blas))
	f.list.BuildAccelerationStructure(buildTop)
	f.list.ResourceBarrier(gpu.UAVBarrier(tlas))
	f.submit(t)
	assert.Equal(t, uint64(2), f.dev.Stats().ASBuilds)

	// ray dispatch reading a refit with no barrier after it
	so, err := f.dev.CreateStateObject(&gpu.StateObjectDesc{
		Libraries:         []gpu.ShaderLibrary{{Name: "raygen", Code: []byte{1}, Exports: []string{"RayGen"}}},
		MaxRecursionDepth: 1,
	})
	require.NoError(t, err)
	refit := *buildTop
	refit.Inputs.Flags |= gpu.BuildFlagPerformUpdate
	refit.SourceAddress = tlas.GPUVirtualAddress()
	f.list.BuildAccelerationStructure(&refit)
	f.list.SetRaytracingState(so)
	f.list.DispatchRays(&gpu.DispatchRaysDesc{Width: 1, Height: 1, Depth: 1})
	err = f.list.Close()
	assert.ErrorIs(t, err, gpu.ErrInvalidState)
	assert.ErrorContains(t, err, "no UAV barrier")
	reopen()

	// a second refit reading the first before its barrier
	f.list.BuildAccelerationStructure(&refit)
	f.list.BuildAccelerationStructure(&refit)
	assert.ErrorIs(t, f.list.Close(), gpu.ErrInvalidState)
	reopen()

	// UAV barriers only apply to resources written as unordered access
	f.list.ResourceBarrier(gpu.UAVBarrier(verts))
	assert.ErrorIs(t, f.list.Close(), gpu.ErrInvalidState)
}
