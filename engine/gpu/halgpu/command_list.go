package halgpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
)

type rootBinding struct {
	table   gpu.GPUDescriptorHandle
	address uint64
}

// commandList records straight into a hal command encoder. Render passes open at the
// first draw after SetRenderTargets; pending clears become the pass load operations.
type commandList struct {
	dev *device

	alloc     *allocator
	encoder   hal.CommandEncoder
	recording bool
	err       error
	cmdBuf    hal.CommandBuffer
	transient []hal.BindGroup

	pso      *pipelineState
	rs       *rootSignature
	roots    map[uint32]rootBinding
	rtv      *gpu.CPUDescriptorHandle
	dsv      *gpu.CPUDescriptorHandle
	clear    *[4]float32
	depth    *float32
	pass     hal.RenderPassEncoder
	viewport gpu.Viewport
	scissor  *gpu.Rect
	vbs      map[uint32]gpu.VertexBufferView
	ib       *gpu.IndexBufferView
}

var _ gpu.CommandList = &commandList{}

func (l *commandList) begin(alloc gpu.CommandAllocator, initial gpu.PipelineState) error {
	a, ok := alloc.(*allocator)
	if !ok {
		return fmt.Errorf("allocator %T was not created by this device", alloc)
	}
	encoder, err := l.dev.dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "frame_encoder"})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("frame"); err != nil {
		encoder.Destroy()
		return fmt.Errorf("begin encoding: %w", err)
	}
	*l = commandList{
		dev:       l.dev,
		alloc:     a,
		encoder:   encoder,
		recording: true,
		roots:     make(map[uint32]rootBinding),
		vbs:       make(map[uint32]gpu.VertexBufferView),
	}
	if initial != nil {
		l.SetPipelineState(initial)
	}
	return nil
}

func (l *commandList) fail(err error) {
	if l.err == nil {
		l.err = err
	}
}

func (l *commandList) ok() bool {
	if !l.recording {
		l.fail(gpu.ErrNotRecording)
		return false
	}
	return l.err == nil
}

func (l *commandList) Reset(alloc gpu.CommandAllocator, initial gpu.PipelineState) error {
	if l.recording {
		return fmt.Errorf("command list is still recording")
	}
	l.discard()
	return l.begin(alloc, initial)
}

func (l *commandList) Close() error {
	if !l.recording {
		return gpu.ErrNotRecording
	}
	l.flushClears()
	l.endPass()
	l.recording = false
	if l.err != nil {
		l.encoder.DiscardEncoding()
		return l.err
	}
	cb, err := l.encoder.EndEncoding()
	if err != nil {
		l.err = fmt.Errorf("end encoding: %w", err)
		return l.err
	}
	l.cmdBuf = cb
	return nil
}

func (l *commandList) Release() {
	if l.recording {
		l.endPass()
		l.encoder.DiscardEncoding()
		l.recording = false
	}
	l.discard()
}

// discard frees what a list recorded but never submitted.
func (l *commandList) discard() {
	if l.cmdBuf != nil {
		l.dev.dev.FreeCommandBuffer(l.cmdBuf)
		l.cmdBuf = nil
	}
	if l.encoder != nil {
		l.encoder.Destroy()
		l.encoder = nil
	}
	for _, bg := range l.transient {
		l.dev.dev.DestroyBindGroup(bg)
	}
	l.transient = nil
}

func (l *commandList) endPass() {
	if l.pass != nil {
		l.pass.End()
		l.pass = nil
	}
}

// flushClears opens and closes an empty pass so clears that no draw consumed still run.
func (l *commandList) flushClears() {
	if l.err != nil || l.pass != nil || (l.clear == nil && l.depth == nil) {
		return
	}
	if l.openPass() {
		l.endPass()
	}
}

func (l *commandList) target(h gpu.CPUDescriptorHandle, kind gpu.ViewKind) (hal.TextureView, bool) {
	v, err := l.dev.view(h.Ptr)
	if err != nil {
		l.fail(err)
		return nil, false
	}
	if v.Kind != kind {
		l.fail(fmt.Errorf("descriptor %#x holds view kind %d, want %d", h.Ptr, v.Kind, kind))
		return nil, false
	}
	r, ok := v.Resource.(*resource)
	if !ok {
		l.fail(fmt.Errorf("view resource %T was not created by this device", v.Resource))
		return nil, false
	}
	view, err := r.textureView()
	if err != nil {
		l.fail(err)
		return nil, false
	}
	return view, true
}

func (l *commandList) openPass() bool {
	if l.pass != nil {
		return true
	}
	if l.rtv == nil {
		l.fail(fmt.Errorf("no render target bound"))
		return false
	}
	view, ok := l.target(*l.rtv, gpu.ViewKindRTV)
	if !ok {
		return false
	}
	color := hal.RenderPassColorAttachment{View: view, LoadOp: gputypes.LoadOpLoad, StoreOp: gputypes.StoreOpStore}
	if l.clear != nil {
		c := l.clear
		color.LoadOp = gputypes.LoadOpClear
		color.ClearValue = gputypes.Color{R: float64(c[0]), G: float64(c[1]), B: float64(c[2]), A: float64(c[3])}
		l.clear = nil
	}
	desc := &hal.RenderPassDescriptor{Label: "frame_pass", ColorAttachments: []hal.RenderPassColorAttachment{color}}
	if l.dsv != nil {
		dview, ok := l.target(*l.dsv, gpu.ViewKindDSV)
		if !ok {
			return false
		}
		ds := &hal.RenderPassDepthStencilAttachment{View: dview, DepthLoadOp: gputypes.LoadOpLoad, DepthStoreOp: gputypes.StoreOpStore}
		if l.depth != nil {
			ds.DepthLoadOp = gputypes.LoadOpClear
			ds.DepthClearValue = *l.depth
			l.depth = nil
		}
		desc.DepthStencilAttachment = ds
	}
	l.pass = l.encoder.BeginRenderPass(desc)
	return true
}

func (l *commandList) ResourceBarrier(barriers ...gpu.Barrier) {
	if !l.ok() {
		return
	}
	l.flushClears()
	l.endPass()
	var textures []hal.TextureBarrier
	var buffers []hal.BufferBarrier
	for _, b := range barriers {
		r, ok := b.Resource.(*resource)
		if !ok {
			l.fail(fmt.Errorf("barrier resource %T was not created by this device", b.Resource))
			return
		}
		if b.Type == gpu.BarrierTypeUAV {
			if r.state&gpu.ResourceStateUnorderedAccess == 0 {
				l.fail(fmt.Errorf("%q: %w: UAV barrier on a resource in %s", r.desc.Label, gpu.ErrInvalidState, r.state))
				return
			}
			// a storage to storage transition orders the writes before later access
			if r.desc.Dimension == gpu.DimensionBuffer {
				usage := bufferStateUsage(r.state)
				buffers = append(buffers, hal.BufferBarrier{
					Buffer: r.buffer,
					Usage:  hal.BufferUsageTransition{OldUsage: usage, NewUsage: usage},
				})
				continue
			}
			tex, err := r.halTexture()
			if err != nil {
				l.fail(err)
				return
			}
			usage := textureStateUsage(r.state)
			textures = append(textures, hal.TextureBarrier{
				Texture: tex,
				Usage:   hal.TextureUsageTransition{OldUsage: usage, NewUsage: usage},
			})
			continue
		}
		if r.heap != gpu.HeapTypeDefault {
			l.fail(fmt.Errorf("%q: %s heap resources cannot transition", r.desc.Label, r.heap))
			return
		}
		if b.Before == b.After {
			l.fail(fmt.Errorf("%q: barrier from %s to itself", r.desc.Label, b.Before))
			return
		}
		if r.state != b.Before {
			l.fail(fmt.Errorf("%q: %w: barrier expects %s, resource is %s", r.desc.Label, gpu.ErrInvalidState, b.Before, r.state))
			return
		}
		r.state = b.After
		if r.desc.Dimension == gpu.DimensionBuffer {
			oldUsage, newUsage := bufferStateUsage(b.Before), bufferStateUsage(b.After)
			if oldUsage != newUsage {
				buffers = append(buffers, hal.BufferBarrier{
					Buffer: r.buffer,
					Usage:  hal.BufferUsageTransition{OldUsage: oldUsage, NewUsage: newUsage},
				})
			}
			continue
		}
		oldUsage, newUsage := textureStateUsage(b.Before), textureStateUsage(b.After)
		if oldUsage == newUsage {
			continue
		}
		tex, err := r.halTexture()
		if err != nil {
			l.fail(err)
			return
		}
		textures = append(textures, hal.TextureBarrier{
			Texture: tex,
			Usage:   hal.TextureUsageTransition{OldUsage: oldUsage, NewUsage: newUsage},
		})
	}
	if len(buffers) > 0 {
		l.encoder.TransitionBuffers(buffers)
	}
	if len(textures) > 0 {
		l.encoder.TransitionTextures(textures)
	}
}

func (l *commandList) buffers(dst, src gpu.Resource) (*resource, *resource, bool) {
	d, ok1 := dst.(*resource)
	s, ok2 := src.(*resource)
	if !ok1 || !ok2 {
		l.fail(fmt.Errorf("copy resources were not created by this device"))
		return nil, nil, false
	}
	return d, s, true
}

func (l *commandList) CopyBufferRegion(dst gpu.Resource, dstOffset uint64, src gpu.Resource, srcOffset, size uint64) {
	if !l.ok() {
		return
	}
	d, s, ok := l.buffers(dst, src)
	if !ok {
		return
	}
	if d.buffer == nil || s.buffer == nil {
		l.fail(fmt.Errorf("CopyBufferRegion needs two buffers"))
		return
	}
	if dstOffset+size > d.desc.Width || srcOffset+size > s.desc.Width {
		l.fail(fmt.Errorf("copy of %d bytes out of range (%q -> %q)", size, s.desc.Label, d.desc.Label))
		return
	}
	l.flushClears()
	l.endPass()
	l.encoder.CopyBufferToBuffer(s.buffer, d.buffer, []hal.BufferCopy{{SrcOffset: srcOffset, DstOffset: dstOffset, Size: (size + 3) &^ 3}})
}

func (l *commandList) CopyResource(dst, src gpu.Resource) {
	if !l.ok() {
		return
	}
	d, s, ok := l.buffers(dst, src)
	if !ok {
		return
	}
	if d.buffer == nil || s.buffer == nil {
		l.fail(fmt.Errorf("texture-to-texture copy: %w", gpu.ErrUnsupported))
		return
	}
	if d.desc.Width != s.desc.Width {
		l.fail(fmt.Errorf("CopyResource size mismatch (%d != %d)", s.desc.Width, d.desc.Width))
		return
	}
	l.CopyBufferRegion(dst, 0, src, 0, d.desc.Width)
}

func (l *commandList) CopyBufferToTexture(dst gpu.Resource, src gpu.Resource, srcOffset uint64, rowPitch uint32) {
	if !l.ok() {
		return
	}
	d, s, ok := l.buffers(dst, src)
	if !ok {
		return
	}
	if s.buffer == nil || d.desc.Dimension != gpu.DimensionTexture2D {
		l.fail(fmt.Errorf("CopyBufferToTexture needs a buffer source and a texture destination"))
		return
	}
	if rowPitch%gpu.TextureDataPitchAlignment != 0 {
		l.fail(fmt.Errorf("row pitch %d is not %d-byte aligned", rowPitch, gpu.TextureDataPitchAlignment))
		return
	}
	tex, err := d.halTexture()
	if err != nil {
		l.fail(err)
		return
	}
	l.flushClears()
	l.endPass()
	l.encoder.CopyBufferToTexture(s.buffer, tex, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: srcOffset, BytesPerRow: rowPitch, RowsPerImage: d.desc.Height},
		TextureBase:  hal.ImageCopyTexture{Texture: tex, MipLevel: 0},
		Size:         hal.Extent3D{Width: uint32(d.desc.Width), Height: d.desc.Height, DepthOrArrayLayers: 1},
	}})
}

func (l *commandList) SetRenderTargets(rtv gpu.CPUDescriptorHandle, dsv *gpu.CPUDescriptorHandle) {
	if !l.ok() {
		return
	}
	l.flushClears()
	l.endPass()
	l.rtv = &rtv
	l.dsv = nil
	if dsv != nil {
		h := *dsv
		l.dsv = &h
	}
}

func (l *commandList) ClearRenderTargetView(rtv gpu.CPUDescriptorHandle, color [4]float32) {
	if !l.ok() {
		return
	}
	if l.rtv == nil || l.rtv.Ptr != rtv.Ptr {
		l.fail(fmt.Errorf("clearing a render target that is not bound: %w", gpu.ErrUnsupported))
		return
	}
	l.endPass()
	l.clear = &color
}

func (l *commandList) ClearDepthStencilView(dsv gpu.CPUDescriptorHandle, depth float32) {
	if !l.ok() {
		return
	}
	if l.dsv == nil || l.dsv.Ptr != dsv.Ptr {
		l.fail(fmt.Errorf("clearing a depth target that is not bound: %w", gpu.ErrUnsupported))
		return
	}
	l.endPass()
	l.depth = &depth
}

func (l *commandList) SetPipelineState(pso gpu.PipelineState) {
	if !l.ok() {
		return
	}
	p, ok := pso.(*pipelineState)
	if !ok {
		l.fail(fmt.Errorf("pipeline %T was not created by this device", pso))
		return
	}
	l.pso = p
}

func (l *commandList) SetGraphicsRootSignature(rs gpu.RootSignature) {
	if !l.ok() {
		return
	}
	r, ok := rs.(*rootSignature)
	if !ok {
		l.fail(fmt.Errorf("root signature %T was not created by this device", rs))
		return
	}
	l.rs = r
	l.roots = make(map[uint32]rootBinding)
}

// SetDescriptorHeaps is a no-op: bind groups are built from the CPU-side heap copies.
func (l *commandList) SetDescriptorHeaps(...gpu.DescriptorHeap) {}

func (l *commandList) SetGraphicsRootDescriptorTable(index uint32, base gpu.GPUDescriptorHandle) {
	if !l.ok() {
		return
	}
	l.roots[index] = rootBinding{table: base}
}

func (l *commandList) SetGraphicsRootConstantBufferView(index uint32, address uint64) {
	if !l.ok() {
		return
	}
	if address%gpu.ConstantBufferAlignment != 0 {
		l.fail(fmt.Errorf("constant buffer address %#x is not %d-byte aligned", address, gpu.ConstantBufferAlignment))
		return
	}
	l.roots[index] = rootBinding{address: address}
}

func (l *commandList) SetViewport(vp gpu.Viewport) {
	l.viewport = vp
}

func (l *commandList) SetScissorRect(r gpu.Rect) {
	l.scissor = &r
}

func (l *commandList) SetPrimitiveTopology(t gpu.PrimitiveTopology) {
	if t != gpu.PrimitiveTopologyTriangleList {
		l.fail(fmt.Errorf("topology %d: %w", t, gpu.ErrUnsupported))
	}
}

func (l *commandList) SetVertexBuffers(startSlot uint32, views ...gpu.VertexBufferView) {
	if !l.ok() {
		return
	}
	for i, v := range views {
		l.vbs[startSlot+uint32(i)] = v
	}
}

func (l *commandList) SetIndexBuffer(view gpu.IndexBufferView) {
	if !l.ok() {
		return
	}
	l.ib = &view
}

// bindGroup builds the bind group for root parameter i from its current binding.
func (l *commandList) bindGroup(i uint32) (hal.BindGroup, error) {
	param := l.rs.desc.Parameters[i]
	binding, ok := l.roots[i]
	if !ok {
		return nil, fmt.Errorf("root parameter %d is not bound", i)
	}
	var entries []gputypes.BindGroupEntry
	switch param.Type {
	case gpu.RootParameterCBV:
		r, offset, err := l.dev.resolve(binding.address)
		if err != nil {
			return nil, err
		}
		size := min(uint64(gpu.ConstantBufferAlignment), r.desc.Width-offset)
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  param.ShaderRegister,
			Resource: gputypes.BufferBinding{Buffer: r.buffer.NativeHandle(), Offset: offset, Size: size},
		})
	case gpu.RootParameterDescriptorTable:
		for _, rg := range param.Ranges {
			for j := uint32(0); j < rg.NumDescriptors; j++ {
				h := binding.table.Offset(int(rg.OffsetInTable+j), descriptorIncrement)
				v, err := l.dev.view(h.Ptr)
				if err != nil {
					return nil, err
				}
				r, ok := v.Resource.(*resource)
				if !ok || r.view == nil {
					return nil, fmt.Errorf("table slot %d of parameter %d holds no texture view", rg.OffsetInTable+j, i)
				}
				entries = append(entries, gputypes.BindGroupEntry{
					Binding:  rg.BaseRegister + j,
					Resource: gputypes.TextureViewBinding{TextureView: r.view.NativeHandle()},
				})
			}
		}
	}
	bg, err := l.dev.dev.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   fmt.Sprintf("%s_param%d", l.rs.desc.Label, i),
		Layout:  l.rs.layouts[i],
		Entries: entries,
	})
	if err != nil {
		return nil, err
	}
	l.transient = append(l.transient, bg)
	return bg, nil
}

func (l *commandList) DrawIndexedInstanced(indexCount, instanceCount, startIndex uint32, baseVertex int32, startInstance uint32) {
	if !l.ok() {
		return
	}
	if l.pso == nil || l.rs == nil || l.ib == nil || len(l.vbs) == 0 {
		l.fail(fmt.Errorf("draw without pipeline, root signature, index and vertex buffers"))
		return
	}
	if !l.openPass() {
		return
	}
	l.pass.SetPipeline(l.pso.pipeline)
	for i := range l.rs.desc.Parameters {
		bg, err := l.bindGroup(uint32(i))
		if err != nil {
			l.fail(err)
			return
		}
		l.pass.SetBindGroup(uint32(i), bg, nil)
	}
	if l.rs.samplerGroup != nil {
		l.pass.SetBindGroup(uint32(len(l.rs.desc.Parameters)), l.rs.samplerGroup, nil)
	}
	for slot, v := range l.vbs {
		r, offset, err := l.dev.resolve(v.BufferLocation)
		if err != nil {
			l.fail(err)
			return
		}
		l.pass.SetVertexBuffer(slot, r.buffer, offset)
	}
	ibr, offset, err := l.dev.resolve(l.ib.BufferLocation)
	if err != nil {
		l.fail(err)
		return
	}
	format, ok := indexFormat(l.ib.Format)
	if !ok {
		l.fail(fmt.Errorf("index format %s: %w", l.ib.Format, gpu.ErrUnsupported))
		return
	}
	l.pass.SetIndexBuffer(ibr.buffer, format, offset)
	vp := l.viewport
	if vp.Width > 0 && vp.Height > 0 {
		l.pass.SetViewport(vp.TopLeftX, vp.TopLeftY, vp.Width, vp.Height, vp.MinDepth, vp.MaxDepth)
	}
	if s := l.scissor; s != nil && s.Right > s.Left && s.Bottom > s.Top {
		l.pass.SetScissorRect(uint32(s.Left), uint32(s.Top), uint32(s.Right-s.Left), uint32(s.Bottom-s.Top))
	}
	l.pass.DrawIndexed(indexCount, instanceCount, startIndex, baseVertex, startInstance)
}

var errNoRaytracing = errors.New("hal exposes no ray-tracing pipeline")

func (l *commandList) BuildAccelerationStructure(*gpu.BuildASDesc) {
	l.fail(fmt.Errorf("%w: %v", gpu.ErrUnsupported, errNoRaytracing))
}

func (l *commandList) SetRaytracingState(gpu.StateObject) {
	l.fail(fmt.Errorf("%w: %v", gpu.ErrUnsupported, errNoRaytracing))
}

func (l *commandList) DispatchRays(*gpu.DispatchRaysDesc) {
	l.fail(fmt.Errorf("%w: %v", gpu.ErrUnsupported, errNoRaytracing))
}
