// Package pipeline builds the raster pipeline and records the raster path of a frame.
package pipeline

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
	"github.com/Carmen-Shannon/oxy-rt/engine/heap"
	"github.com/Carmen-Shannon/oxy-rt/engine/logger"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/shader"
)

// Root parameter slots of the raster root signature.
const (
	// ParamObjectConstants is the root CBV at b0 holding per-object constants.
	ParamObjectConstants uint32 = 0
	// ParamTextureTable is the descriptor table holding the diffuse SRV at t0.
	ParamTextureTable uint32 = 1
)

// VertexStride is the byte size of one vertex in the default input layout.
const VertexStride = 20

// ClearColor is the color the render target is cleared to before drawing.
var ClearColor = [4]float32{0.1, 0.1, 0.1, 1}

// CreateError reports a root signature or pipeline state the device refused.
type CreateError struct {
	What string
	Err  error
}

func (e *CreateError) Error() string {
	return fmt.Sprintf("failed to create %s: %v", e.What, e.Err)
}

func (e *CreateError) Unwrap() error {
	return e.Err
}

// DefaultInputLayout is a float3 position at offset 0 and a float2 texture coordinate at
// offset 12.
func DefaultInputLayout() []gpu.InputElement {
	return []gpu.InputElement{
		{SemanticName: "POSITION", Format: gpu.FormatR32G32B32Float, Offset: 0},
		{SemanticName: "TEXCOORD", Format: gpu.FormatR32G32Float, Offset: 12},
	}
}

// Desc describes the raster pipeline to build.
type Desc struct {
	Label        string
	VertexShader *shader.Program
	PixelShader  *shader.Program
	// InputLayout defaults to DefaultInputLayout when empty.
	InputLayout []gpu.InputElement
}

// DrawItem is one indexed draw. Draw i binds constant-buffer region i. StartIndex and
// BaseVertex locate a mesh packed into the shared vertex and index buffers.
type DrawItem struct {
	IndexCount    uint32
	InstanceCount uint32
	StartIndex    uint32
	BaseVertex    int32
}

// RasterFrame is everything the raster path needs for one frame. The render target
// and depth buffer are expected to be bound already.
type RasterFrame struct {
	RTV          gpu.CPUDescriptorHandle
	Width        uint32
	Height       uint32
	SRVHeap      gpu.DescriptorHeap
	Constants    *heap.ConstantBuffer
	VertexBuffer gpu.VertexBufferView
	IndexBuffer  gpu.IndexBufferView
	Draws        []DrawItem
}

// pipeline is the implementation of the Pipeline interface.
type pipeline struct {
	label         string
	rootSignature gpu.RootSignature
	pso           gpu.PipelineState

	rtvFormat   gpu.Format
	dsvFormat   gpu.Format
	depthTest   bool
	cullBack    bool
	blend       bool
	sampleCount uint32
}

// Pipeline is the raster root signature and pipeline state plus the recording of the
// raster path.
type Pipeline interface {
	RootSignature() gpu.RootSignature

	// PipelineState is the PSO command lists are reset with.
	PipelineState() gpu.PipelineState

	// Record binds the pipeline, clears the render target and issues one draw per item.
	//
	// Parameters:
	//   - list: a recording command list with the render and depth targets bound
	//   - frame: what to draw
	//
	// Returns:
	//   - error: if frame is incomplete or has more draws than constant-buffer regions
	Record(list gpu.CommandList, frame RasterFrame) error

	Release()
}

var _ Pipeline = &pipeline{}

// Build creates the raster root signature and pipeline state.
//
// The root signature has a root CBV at b0 visible to the vertex stage, a descriptor
// table with one SRV at t0 visible to the pixel stage and a point-filtered static
// sampler at s0 with border addressing.
//
// Parameters:
//   - device: the device to create on
//   - desc: shaders and input layout
//   - options: functional options for pipeline configuration
//
// Returns:
//   - Pipeline: the pipeline
//   - error: a *shader.CompileError when a shader is missing, or a *CreateError
func Build(device gpu.Device, desc Desc, options ...PipelineBuilderOption) (Pipeline, error) {
	if desc.VertexShader == nil {
		return nil, &shader.CompileError{Artifact: desc.Label, Stage: shader.StageVertex, Diagnostic: "no vertex shader"}
	}
	if desc.PixelShader == nil {
		return nil, &shader.CompileError{Artifact: desc.Label, Stage: shader.StagePixel, Diagnostic: "no pixel shader"}
	}
	p := &pipeline{
		label:       desc.Label,
		rtvFormat:   gpu.FormatR8G8B8A8Unorm,
		dsvFormat:   gpu.FormatD32Float,
		depthTest:   true,
		sampleCount: 1,
	}
	for _, opt := range options {
		opt(p)
	}
	layout := desc.InputLayout
	if len(layout) == 0 {
		layout = DefaultInputLayout()
	}

	rs, err := device.CreateRootSignature(gpu.RootSignatureDesc{
		Label: p.label,
		Parameters: []gpu.RootParameter{
			{Type: gpu.RootParameterCBV, ShaderRegister: 0, Visibility: gpu.ShaderVisibilityVertex},
			{
				Type: gpu.RootParameterDescriptorTable,
				Ranges: []gpu.DescriptorRange{
					{Type: gpu.DescriptorRangeSRV, NumDescriptors: 1, BaseRegister: 0},
				},
				Visibility: gpu.ShaderVisibilityPixel,
			},
		},
		StaticSamplers: []gpu.StaticSampler{
			{ShaderRegister: 0, Filter: gpu.FilterPoint, AddressMode: gpu.AddressModeBorder, Visibility: gpu.ShaderVisibilityPixel},
		},
		AllowInputAssembler: true,
	})
	if err != nil {
		return nil, &CreateError{What: "root signature", Err: err}
	}
	p.rootSignature = rs

	pso, err := device.CreateGraphicsPipelineState(&gpu.GraphicsPipelineDesc{
		Label:         p.label,
		RootSignature: rs,
		VertexShader:  desc.VertexShader.Vertex(),
		PixelShader:   desc.PixelShader.Pixel(),
		InputLayout:   layout,
		Topology:      gpu.PrimitiveTopologyTriangleList,
		RTVFormats:    []gpu.Format{p.rtvFormat},
		DSVFormat:     p.dsvFormat,
		SampleMask:    0xffffffff,
		SampleCount:   p.sampleCount,
		DepthEnable:   p.depthTest,
		CullBack:      p.cullBack,
		BlendEnable:   p.blend,
	})
	if err != nil {
		rs.Release()
		return nil, &CreateError{What: "pipeline state", Err: err}
	}
	p.pso = pso
	logger.Logger().Debug("raster pipeline created", "label", p.label, "rtv", p.rtvFormat.String(), "inputs", len(layout))
	return p, nil
}

func (p *pipeline) RootSignature() gpu.RootSignature {
	return p.rootSignature
}

func (p *pipeline) PipelineState() gpu.PipelineState {
	return p.pso
}

func (p *pipeline) Record(list gpu.CommandList, frame RasterFrame) error {
	switch {
	case frame.SRVHeap == nil:
		return errors.New("raster frame has no SRV heap")
	case frame.Constants == nil:
		return errors.New("raster frame has no constant buffer")
	case len(frame.Draws) > frame.Constants.Count():
		return fmt.Errorf("raster frame has %d draws for %d constant regions", len(frame.Draws), frame.Constants.Count())
	}

	list.SetPipelineState(p.pso)
	list.SetGraphicsRootSignature(p.rootSignature)
	list.SetDescriptorHeaps(frame.SRVHeap)
	list.SetGraphicsRootDescriptorTable(ParamTextureTable, frame.SRVHeap.GPUHandleForHeapStart())

	list.ClearRenderTargetView(frame.RTV, ClearColor)

	list.SetViewport(gpu.Viewport{Width: float32(frame.Width), Height: float32(frame.Height), MinDepth: 0, MaxDepth: 1})
	list.SetScissorRect(gpu.Rect{Right: int32(frame.Width), Bottom: int32(frame.Height)})

	list.SetPrimitiveTopology(gpu.PrimitiveTopologyTriangleList)
	list.SetVertexBuffers(0, frame.VertexBuffer)
	list.SetIndexBuffer(frame.IndexBuffer)

	for i, d := range frame.Draws {
		instances := d.InstanceCount
		if instances == 0 {
			instances = 1
		}
		list.SetGraphicsRootConstantBufferView(ParamObjectConstants, frame.Constants.Address(i))
		list.DrawIndexedInstanced(d.IndexCount, instances, d.StartIndex, d.BaseVertex, 0)
	}
	return nil
}

func (p *pipeline) Release() {
	if p.pso != nil {
		p.pso.Release()
		p.pso = nil
	}
	if p.rootSignature != nil {
		p.rootSignature.Release()
		p.rootSignature = nil
	}
}
