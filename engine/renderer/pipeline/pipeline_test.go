package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu/sim"
	"github.com/Carmen-Shannon/oxy-rt/engine/heap"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/shader"
)

func loadCube(t *testing.T) *shader.Program {
	t.Helper()
	p, err := shader.NewLoader().Program(shader.CubeProgram)
	require.NoError(t, err)
	return p
}

func TestDefaultInputLayoutStride(t *testing.T) {
	layout := DefaultInputLayout()
	require.Len(t, layout, 2)
	stride := uint32(0)
	for _, e := range layout {
		stride = max(stride, e.Offset+gpu.BitsPerPixel(e.Format)/8)
	}
	assert.Equal(t, uint32(VertexStride), stride)
	assert.Equal(t, uint32(12), layout[1].Offset)
}

func TestBuildRootSignatureLayout(t *testing.T) {
	dev := sim.NewDevice()
	p, err := Build(dev, Desc{Label: "cube", VertexShader: loadCube(t), PixelShader: loadCube(t)})
	require.NoError(t, err)
	defer p.Release()

	desc := p.RootSignature().Desc()
	require.Len(t, desc.Parameters, 2)
	assert.Equal(t, gpu.RootParameterCBV, desc.Parameters[ParamObjectConstants].Type)
	assert.Equal(t, gpu.ShaderVisibilityVertex, desc.Parameters[ParamObjectConstants].Visibility)
	table := desc.Parameters[ParamTextureTable]
	assert.Equal(t, gpu.RootParameterDescriptorTable, table.Type)
	assert.Equal(t, gpu.ShaderVisibilityPixel, table.Visibility)
	require.Len(t, table.Ranges, 1)
	assert.Equal(t, gpu.DescriptorRangeSRV, table.Ranges[0].Type)
	require.Len(t, desc.StaticSamplers, 1)
	assert.Equal(t, gpu.FilterPoint, desc.StaticSamplers[0].Filter)
	assert.Equal(t, gpu.AddressModeBorder, desc.StaticSamplers[0].AddressMode)
	assert.NotNil(t, p.PipelineState())
}

func TestBuildMissingShader(t *testing.T) {
	_, err := Build(sim.NewDevice(), Desc{Label: "cube", PixelShader: loadCube(t)})
	var ce *shader.CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, shader.StageVertex, ce.Stage)
}

func TestBuildPipelineFailure(t *testing.T) {
	boom := errors.New("pso rejected")
	dev := sim.NewDevice(sim.WithFailure("CreateGraphicsPipelineState", boom))
	_, err := Build(dev, Desc{Label: "cube", VertexShader: loadCube(t), PixelShader: loadCube(t)})

	var ce *CreateError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "pipeline state", ce.What)
	assert.ErrorIs(t, err, boom)

	released := false
	for _, e := range dev.Journal().Filter(sim.EventRelease) {
		if e.Object == "rootsig:cube" {
			released = true
		}
	}
	assert.True(t, released, "root signature must be released when the PSO fails")
}

type scene struct {
	dev       sim.Device
	queue     gpu.CommandQueue
	alloc     gpu.CommandAllocator
	list      gpu.CommandList
	fence     gpu.Fence
	target    gpu.Resource
	rtv       gpu.CPUDescriptorHandle
	frame     RasterFrame
	pipeline  Pipeline
	constants *heap.ConstantBuffer
}

func newScene(t *testing.T, draws []DrawItem) *scene {
	t.Helper()
	s := &scene{dev: sim.NewDevice()}
	var err error
	s.queue, err = s.dev.CreateCommandQueue()
	require.NoError(t, err)
	t.Cleanup(s.queue.Release)
	s.alloc, err = s.dev.CreateCommandAllocator()
	require.NoError(t, err)
	s.fence, err = s.dev.CreateFence(0)
	require.NoError(t, err)

	s.pipeline, err = Build(s.dev, Desc{Label: "cube", VertexShader: loadCube(t), PixelShader: loadCube(t)})
	require.NoError(t, err)
	s.list, err = s.dev.CreateCommandList(s.alloc, s.pipeline.PipelineState())
	require.NoError(t, err)

	uploads := heap.NewManager(s.dev)
	vertices := make([]float32, 4*5)
	vb, err := uploads.UploadVertices(s.list, "vb", common.SliceToBytes(vertices))
	require.NoError(t, err)
	ib, err := uploads.UploadIndices(s.list, "ib", common.SliceToBytes([]uint32{0, 1, 2, 2, 1, 3}))
	require.NoError(t, err)
	tex, err := uploads.UploadTexture(s.list, "tex", heap.TextureDesc{Width: 2, Height: 2, Format: gpu.FormatR8G8B8A8Unorm}, make([]byte, 16))
	require.NoError(t, err)

	srvHeap, err := s.dev.CreateDescriptorHeap(gpu.DescriptorHeapDesc{Label: "srv", Type: gpu.DescriptorHeapTypeCBVSRVUAV, NumDescriptors: 1, ShaderVisible: true})
	require.NoError(t, err)
	texRes, err := uploads.Resource(tex)
	require.NoError(t, err)
	require.NoError(t, s.dev.CreateView(gpu.ViewDesc{Kind: gpu.ViewKindSRV, Resource: texRes, Format: gpu.FormatR8G8B8A8Unorm}, srvHeap.CPUHandleForHeapStart()))

	s.target, err = s.dev.CreateCommittedResource(gpu.HeapTypeDefault,
		gpu.Texture2DDesc("target", 8, 8, gpu.FormatR8G8B8A8Unorm, gpu.ResourceFlagAllowRenderTarget), gpu.ResourceStateRenderTarget)
	require.NoError(t, err)
	rtvHeap, err := s.dev.CreateDescriptorHeap(gpu.DescriptorHeapDesc{Label: "rtv", Type: gpu.DescriptorHeapTypeRTV, NumDescriptors: 1})
	require.NoError(t, err)
	s.rtv = rtvHeap.CPUHandleForHeapStart()
	require.NoError(t, s.dev.CreateView(gpu.ViewDesc{Kind: gpu.ViewKindRTV, Resource: s.target}, s.rtv))

	s.constants, err = heap.NewConstantBuffer(s.dev, "constants", 64, 4)
	require.NoError(t, err)
	t.Cleanup(s.constants.Release)

	vbRes, err := uploads.Resource(vb)
	require.NoError(t, err)
	ibRes, err := uploads.Resource(ib)
	require.NoError(t, err)
	s.frame = RasterFrame{
		RTV:          s.rtv,
		Width:        8,
		Height:       8,
		SRVHeap:      srvHeap,
		Constants:    s.constants,
		VertexBuffer: gpu.VertexBufferView{BufferLocation: vbRes.GPUVirtualAddress(), SizeInBytes: uint32(vbRes.Desc().Width), StrideInBytes: VertexStride},
		IndexBuffer:  gpu.IndexBufferView{BufferLocation: ibRes.GPUVirtualAddress(), SizeInBytes: uint32(ibRes.Desc().Width), Format: gpu.FormatR32Uint},
		Draws:        draws,
	}
	return s
}

func (s *scene) submit(t *testing.T) {
	t.Helper()
	require.NoError(t, s.list.Close())
	require.NoError(t, s.queue.ExecuteCommandLists(s.list))
	require.NoError(t, s.queue.Signal(s.fence, 1))
	<-s.fence.Notify(1)
}

func TestRecordDrawsEveryItem(t *testing.T) {
	s := newScene(t, []DrawItem{{IndexCount: 6, InstanceCount: 1}, {IndexCount: 6, InstanceCount: 3}, {IndexCount: 3}})
	defer s.pipeline.Release()

	s.list.SetRenderTargets(s.rtv, nil)
	require.NoError(t, s.pipeline.Record(s.list, s.frame))
	s.submit(t)

	stats := s.dev.Stats()
	assert.Equal(t, uint64(3), stats.Draws)
	assert.Equal(t, uint64(5), stats.Instances)

	// the render target was cleared to the clear color
	px := sim.Contents(s.target)[:4]
	assert.Equal(t, []byte{26, 26, 26, 255}, px)
}

func TestRecordRejectsIncompleteFrames(t *testing.T) {
	s := newScene(t, make([]DrawItem, 5))
	defer s.pipeline.Release()

	assert.Error(t, s.pipeline.Record(s.list, s.frame))

	frame := s.frame
	frame.SRVHeap = nil
	assert.Error(t, s.pipeline.Record(s.list, frame))

	frame = s.frame
	frame.Constants = nil
	assert.Error(t, s.pipeline.Record(s.list, frame))
}
