package halgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
)

// rootSignature maps each root parameter onto one bind group layout. Static samplers get
// a trailing group whose bind group is created up front.
type rootSignature struct {
	dev          *device
	desc         gpu.RootSignatureDesc
	layouts      []hal.BindGroupLayout
	pipeline     hal.PipelineLayout
	samplers     []hal.Sampler
	samplerGroup hal.BindGroup
}

var _ gpu.RootSignature = &rootSignature{}

func (d *device) CreateRootSignature(desc gpu.RootSignatureDesc) (gpu.RootSignature, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	if desc.Local {
		return nil, fmt.Errorf("local root signature %q: %w", desc.Label, gpu.ErrUnsupported)
	}
	rs := &rootSignature{dev: d, desc: desc}
	for i, p := range desc.Parameters {
		entries, err := parameterEntries(p)
		if err != nil {
			rs.Release()
			return nil, fmt.Errorf("root signature %q parameter %d: %w", desc.Label, i, err)
		}
		layout, err := d.dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label:   fmt.Sprintf("%s_param%d", desc.Label, i),
			Entries: entries,
		})
		if err != nil {
			rs.Release()
			return nil, fmt.Errorf("root signature %q parameter %d: %w", desc.Label, i, err)
		}
		rs.layouts = append(rs.layouts, layout)
	}
	if len(desc.StaticSamplers) > 0 {
		if err := rs.createSamplers(); err != nil {
			rs.Release()
			return nil, err
		}
	}
	layout, err := d.dev.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            desc.Label,
		BindGroupLayouts: rs.layouts,
	})
	if err != nil {
		rs.Release()
		return nil, fmt.Errorf("root signature %q: %w", desc.Label, err)
	}
	rs.pipeline = layout
	return rs, nil
}

func parameterEntries(p gpu.RootParameter) ([]gputypes.BindGroupLayoutEntry, error) {
	stages := shaderStages(p.Visibility)
	switch p.Type {
	case gpu.RootParameterCBV:
		return []gputypes.BindGroupLayoutEntry{{
			Binding:    p.ShaderRegister,
			Visibility: stages,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
		}}, nil
	case gpu.RootParameterDescriptorTable:
		var entries []gputypes.BindGroupLayoutEntry
		for _, r := range p.Ranges {
			for j := uint32(0); j < r.NumDescriptors; j++ {
				e := gputypes.BindGroupLayoutEntry{Binding: r.BaseRegister + j, Visibility: stages}
				switch r.Type {
				case gpu.DescriptorRangeSRV:
					e.Texture = &gputypes.TextureBindingLayout{
						SampleType:    gputypes.TextureSampleTypeFloat,
						ViewDimension: gputypes.TextureViewDimension2D,
					}
				case gpu.DescriptorRangeCBV:
					e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}
				case gpu.DescriptorRangeSampler:
					e.Sampler = &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering}
				default:
					return nil, fmt.Errorf("descriptor range type %d: %w", r.Type, gpu.ErrUnsupported)
				}
				entries = append(entries, e)
			}
		}
		return entries, nil
	}
	return nil, fmt.Errorf("root parameter type %d: %w", p.Type, gpu.ErrUnsupported)
}

func (rs *rootSignature) createSamplers() error {
	d := rs.dev
	layoutEntries := make([]gputypes.BindGroupLayoutEntry, 0, len(rs.desc.StaticSamplers))
	groupEntries := make([]gputypes.BindGroupEntry, 0, len(rs.desc.StaticSamplers))
	for _, s := range rs.desc.StaticSamplers {
		sampler, err := d.dev.CreateSampler(&hal.SamplerDescriptor{
			Label:        fmt.Sprintf("%s_s%d", rs.desc.Label, s.ShaderRegister),
			AddressModeU: addressMode(s.AddressMode),
			AddressModeV: addressMode(s.AddressMode),
			AddressModeW: addressMode(s.AddressMode),
			MagFilter:    filterMode(s.Filter),
			MinFilter:    filterMode(s.Filter),
			MipmapFilter: filterMode(s.Filter),
		})
		if err != nil {
			return fmt.Errorf("root signature %q sampler s%d: %w", rs.desc.Label, s.ShaderRegister, err)
		}
		rs.samplers = append(rs.samplers, sampler)
		layoutEntries = append(layoutEntries, gputypes.BindGroupLayoutEntry{
			Binding:    s.ShaderRegister,
			Visibility: shaderStages(s.Visibility),
			Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
		})
		groupEntries = append(groupEntries, gputypes.BindGroupEntry{
			Binding:  s.ShaderRegister,
			Resource: gputypes.SamplerBinding{Sampler: sampler.NativeHandle()},
		})
	}
	layout, err := d.dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   rs.desc.Label + "_samplers",
		Entries: layoutEntries,
	})
	if err != nil {
		return fmt.Errorf("root signature %q samplers: %w", rs.desc.Label, err)
	}
	rs.layouts = append(rs.layouts, layout)
	group, err := d.dev.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   rs.desc.Label + "_samplers",
		Layout:  layout,
		Entries: groupEntries,
	})
	if err != nil {
		return fmt.Errorf("root signature %q samplers: %w", rs.desc.Label, err)
	}
	rs.samplerGroup = group
	return nil
}

func (rs *rootSignature) Desc() gpu.RootSignatureDesc {
	return rs.desc
}

func (rs *rootSignature) Release() {
	d := rs.dev.dev
	if rs.pipeline != nil {
		d.DestroyPipelineLayout(rs.pipeline)
	}
	if rs.samplerGroup != nil {
		d.DestroyBindGroup(rs.samplerGroup)
	}
	for _, s := range rs.samplers {
		d.DestroySampler(s)
	}
	for _, l := range rs.layouts {
		d.DestroyBindGroupLayout(l)
	}
	rs.layouts = nil
	rs.samplers = nil
}

type pipelineState struct {
	dev      *device
	rs       *rootSignature
	pipeline hal.RenderPipeline
	modules  []hal.ShaderModule
}

var _ gpu.PipelineState = &pipelineState{}

// CreateGraphicsPipelineState compiles the WGSL sources of both stages into a hal
// render pipeline. The vertex stride is the end of the furthest input element.
func (d *device) CreateGraphicsPipelineState(desc *gpu.GraphicsPipelineDesc) (gpu.PipelineState, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	rs, ok := desc.RootSignature.(*rootSignature)
	if !ok {
		return nil, fmt.Errorf("pipeline %q: root signature was not created by this device", desc.Label)
	}
	if desc.VertexShader.Source == "" || desc.PixelShader.Source == "" {
		return nil, fmt.Errorf("pipeline %q: shader source is required", desc.Label)
	}
	if len(desc.RTVFormats) != 1 {
		return nil, fmt.Errorf("pipeline %q: exactly one render target is supported", desc.Label)
	}
	colorFormat, ok := textureFormat(desc.RTVFormats[0])
	if !ok {
		return nil, fmt.Errorf("pipeline %q: unsupported render target format %s", desc.Label, desc.RTVFormats[0])
	}

	var stride uint64
	attributes := make([]gputypes.VertexAttribute, 0, len(desc.InputLayout))
	for i, el := range desc.InputLayout {
		vf, ok := vertexFormat(el.Format)
		if !ok {
			return nil, fmt.Errorf("pipeline %q: unsupported vertex format %s", desc.Label, el.Format)
		}
		attributes = append(attributes, gputypes.VertexAttribute{Format: vf, Offset: uint64(el.Offset), ShaderLocation: uint32(i)})
		if end := uint64(el.Offset) + uint64(gpu.BitsPerPixel(el.Format)/8); end > stride {
			stride = end
		}
	}

	ps := &pipelineState{dev: d, rs: rs}
	vs, err := d.dev.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  desc.Label + "_vs",
		Source: hal.ShaderSource{WGSL: desc.VertexShader.Source},
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline %q vertex shader: %w", desc.Label, err)
	}
	ps.modules = append(ps.modules, vs)
	fs := vs
	if desc.PixelShader.Source != desc.VertexShader.Source {
		fs, err = d.dev.CreateShaderModule(&hal.ShaderModuleDescriptor{
			Label:  desc.Label + "_fs",
			Source: hal.ShaderSource{WGSL: desc.PixelShader.Source},
		})
		if err != nil {
			ps.Release()
			return nil, fmt.Errorf("pipeline %q pixel shader: %w", desc.Label, err)
		}
		ps.modules = append(ps.modules, fs)
	}

	target := gputypes.ColorTargetState{Format: colorFormat, WriteMask: gputypes.ColorWriteMaskAll}
	if desc.BlendEnable {
		blend := gputypes.BlendStatePremultiplied()
		target.Blend = &blend
	}
	cull := gputypes.CullModeNone
	if desc.CullBack {
		cull = gputypes.CullModeBack
	}
	sampleCount := desc.SampleCount
	if sampleCount == 0 {
		sampleCount = 1
	}
	pd := &hal.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: rs.pipeline,
		Vertex: hal.VertexState{
			Module:     vs,
			EntryPoint: desc.VertexShader.EntryPoint,
			Buffers: []gputypes.VertexBufferLayout{{
				ArrayStride: stride,
				StepMode:    gputypes.VertexStepModeVertex,
				Attributes:  attributes,
			}},
		},
		Fragment: &hal.FragmentState{
			Module:     fs,
			EntryPoint: desc.PixelShader.EntryPoint,
			Targets:    []gputypes.ColorTargetState{target},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: cull,
		},
		Multisample: gputypes.MultisampleState{Count: sampleCount, Mask: 0xFFFFFFFF},
	}
	if desc.DSVFormat != gpu.FormatUnknown {
		depthFormat, ok := textureFormat(desc.DSVFormat)
		if !ok {
			ps.Release()
			return nil, fmt.Errorf("pipeline %q: unsupported depth format %s", desc.Label, desc.DSVFormat)
		}
		compare := gputypes.CompareFunctionAlways
		if desc.DepthEnable {
			compare = gputypes.CompareFunctionLess
		}
		pd.DepthStencil = &hal.DepthStencilState{
			Format:            depthFormat,
			DepthWriteEnabled: desc.DepthEnable,
			DepthCompare:      compare,
		}
	}
	pipeline, err := d.dev.CreateRenderPipeline(pd)
	if err != nil {
		ps.Release()
		return nil, fmt.Errorf("pipeline %q: %w", desc.Label, err)
	}
	ps.pipeline = pipeline
	return ps, nil
}

func (ps *pipelineState) Release() {
	d := ps.dev.dev
	if ps.pipeline != nil {
		d.DestroyRenderPipeline(ps.pipeline)
		ps.pipeline = nil
	}
	for _, m := range ps.modules {
		d.DestroyShaderModule(m)
	}
	ps.modules = nil
}
