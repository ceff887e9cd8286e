package sim

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
)

// commandList records closures that the queue goroutine runs in order. Validation
// happens at record time against the tracked resource states; the first failure is
// kept and returned by Close.
type commandList struct {
	dev  *device
	name string

	alloc     *allocator
	recording bool
	err       error
	cmds      []func()

	pso      *pipelineState
	rootSig  *rootSignature
	heaps    []*descriptorHeap
	so       *stateObject
	rtv      *resource
	topology gpu.PrimitiveTopology
	vbBound  bool
	ibBound  bool
	rootArgs map[uint32]bool

	// unsynced holds acceleration structures built in this list with no UAV barrier since.
	unsynced map[*resource]bool
}

var _ gpu.CommandList = &commandList{}

func (l *commandList) begin(alloc gpu.CommandAllocator, initial gpu.PipelineState) error {
	a, ok := alloc.(*allocator)
	if !ok {
		return fmt.Errorf("%s: allocator %T was not created by the sim device", l.name, alloc)
	}
	*l = commandList{dev: l.dev, name: l.name, alloc: a, recording: true,
		rootArgs: make(map[uint32]bool), unsynced: make(map[*resource]bool)}
	if initial != nil {
		pso, ok := initial.(*pipelineState)
		if !ok {
			return fmt.Errorf("%s: pipeline %T was not created by the sim device", l.name, initial)
		}
		l.pso = pso
	}
	return nil
}

func (l *commandList) Reset(alloc gpu.CommandAllocator, initial gpu.PipelineState) error {
	if err := l.dev.check("CommandList.Reset"); err != nil {
		return err
	}
	if l.recording {
		return fmt.Errorf("%s: %w: reset while recording", l.name, gpu.ErrInvalidState)
	}
	return l.begin(alloc, initial)
}

func (l *commandList) Close() error {
	if !l.recording {
		return fmt.Errorf("%s: %w", l.name, gpu.ErrNotRecording)
	}
	l.recording = false
	return l.err
}

func (l *commandList) Release() {
	l.dev.journal.record(EventRelease, l.name, 0)
}

func (l *commandList) fail(format string, args ...any) {
	if l.err == nil {
		l.err = fmt.Errorf(l.name+": "+format, args...)
	}
}

// ok reports whether recording may continue.
func (l *commandList) ok() bool {
	if !l.recording {
		l.fail("%w", gpu.ErrNotRecording)
		return false
	}
	return l.err == nil
}

func (l *commandList) record(fn func()) {
	l.cmds = append(l.cmds, fn)
}

func (l *commandList) resource(r gpu.Resource, role string) *resource {
	sr, ok := r.(*resource)
	if !ok || sr == nil {
		l.fail("%s %T was not created by the sim device", role, r)
		return nil
	}
	if sr.isReleased() {
		l.fail("%s %q: %w", role, sr.desc.Label, gpu.ErrDeviceRemoved)
		return nil
	}
	return sr
}

func (l *commandList) ResourceBarrier(barriers ...gpu.Barrier) {
	if !l.ok() {
		return
	}
	for _, b := range barriers {
		r := l.resource(b.Resource, "barrier resource")
		if r == nil {
			return
		}
		if b.Type == gpu.BarrierTypeUAV {
			if r.state != gpu.ResourceStateUnorderedAccess && r.state != gpu.ResourceStateRaytracingAccelerationStructure {
				l.fail("%q: %w: UAV barrier on a resource in %s", r.desc.Label, gpu.ErrInvalidState, r.state)
				return
			}
			delete(l.unsynced, r)
			continue
		}
		if r.heap != gpu.HeapTypeDefault {
			l.fail("%q: %w: %s heap resources cannot transition", r.desc.Label, gpu.ErrInvalidState, r.heap)
			return
		}
		if b.Before == b.After {
			l.fail("%q: %w: barrier from %s to itself", r.desc.Label, gpu.ErrInvalidState, b.Before)
			return
		}
		if r.state != b.Before {
			l.fail("%q: %w: barrier expects %s, resource is in %s", r.desc.Label, gpu.ErrInvalidState, b.Before, r.state)
			return
		}
		r.state = b.After
	}
}

func (l *commandList) copyStates(dst, src *resource) bool {
	if dst.state != gpu.ResourceStateCopyDest {
		l.fail("%q: %w: copy destination is in %s", dst.desc.Label, gpu.ErrInvalidState, dst.state)
		return false
	}
	if src.state&gpu.ResourceStateCopySource == 0 {
		l.fail("%q: %w: copy source is in %s", src.desc.Label, gpu.ErrInvalidState, src.state)
		return false
	}
	return true
}

func (l *commandList) CopyBufferRegion(dst gpu.Resource, dstOffset uint64, src gpu.Resource, srcOffset, size uint64) {
	if !l.ok() {
		return
	}
	d, s := l.resource(dst, "copy destination"), l.resource(src, "copy source")
	if d == nil || s == nil || !l.copyStates(d, s) {
		return
	}
	if d.desc.Dimension != gpu.DimensionBuffer || s.desc.Dimension != gpu.DimensionBuffer {
		l.fail("CopyBufferRegion needs two buffers")
		return
	}
	if dstOffset+size > uint64(len(d.data)) || srcOffset+size > uint64(len(s.data)) {
		l.fail("CopyBufferRegion of %d bytes out of bounds (%q %d+%d, %q %d+%d)",
			size, d.desc.Label, dstOffset, len(d.data), s.desc.Label, srcOffset, len(s.data))
		return
	}
	l.record(func() {
		l.dev.memMu.Lock()
		copy(d.data[dstOffset:dstOffset+size], s.data[srcOffset:srcOffset+size])
		l.dev.memMu.Unlock()
	})
}

func (l *commandList) CopyResource(dst, src gpu.Resource) {
	if !l.ok() {
		return
	}
	d, s := l.resource(dst, "copy destination"), l.resource(src, "copy source")
	if d == nil || s == nil || !l.copyStates(d, s) {
		return
	}
	if d.desc.Dimension != s.desc.Dimension || len(d.data) != len(s.data) ||
		d.desc.Width != s.desc.Width || d.desc.Height != s.desc.Height {
		l.fail("CopyResource between mismatched resources %q and %q", d.desc.Label, s.desc.Label)
		return
	}
	if gpu.BitsPerPixel(d.desc.Format) != gpu.BitsPerPixel(s.desc.Format) {
		l.fail("CopyResource between incompatible formats %s and %s", d.desc.Format, s.desc.Format)
		return
	}
	l.record(func() {
		l.dev.memMu.Lock()
		copy(d.data, s.data)
		l.dev.memMu.Unlock()
	})
}

func (l *commandList) CopyBufferToTexture(dst gpu.Resource, src gpu.Resource, srcOffset uint64, rowPitch uint32) {
	if !l.ok() {
		return
	}
	d, s := l.resource(dst, "copy destination"), l.resource(src, "copy source")
	if d == nil || s == nil || !l.copyStates(d, s) {
		return
	}
	if d.desc.Dimension != gpu.DimensionTexture2D || s.desc.Dimension != gpu.DimensionBuffer {
		l.fail("CopyBufferToTexture needs a buffer source and a texture destination")
		return
	}
	row := d.rowBytes()
	pitch := uint64(rowPitch)
	if pitch%gpu.TextureDataPitchAlignment != 0 || pitch < row {
		l.fail("row pitch %d invalid for %d-byte rows", rowPitch, row)
		return
	}
	height := uint64(d.desc.Height)
	if srcOffset+pitch*(height-1)+row > uint64(len(s.data)) {
		l.fail("CopyBufferToTexture reads past the end of %q", s.desc.Label)
		return
	}
	l.record(func() {
		l.dev.memMu.Lock()
		for y := uint64(0); y < height; y++ {
			from := srcOffset + y*pitch
			copy(d.data[y*row:(y+1)*row], s.data[from:from+row])
		}
		l.dev.memMu.Unlock()
	})
}

// attachment resolves a render-target or depth-stencil handle to its resource and checks
// the state the attachment must be in.
func (l *commandList) attachment(handle gpu.CPUDescriptorHandle, kind gpu.ViewKind, state gpu.ResourceState) (*resource, gpu.ViewDesc) {
	v, err := l.dev.view(handle.Ptr)
	if err != nil {
		l.fail("%w", err)
		return nil, v
	}
	if v.Kind != kind {
		l.fail("descriptor %#x holds view kind %d, want %d", handle.Ptr, v.Kind, kind)
		return nil, v
	}
	r := l.resource(v.Resource, "attachment")
	if r == nil {
		return nil, v
	}
	if r.state != state {
		l.fail("%q: %w: attachment is in %s, want %s", r.desc.Label, gpu.ErrInvalidState, r.state, state)
		return nil, v
	}
	return r, v
}

func (l *commandList) SetRenderTargets(rtv gpu.CPUDescriptorHandle, dsv *gpu.CPUDescriptorHandle) {
	if !l.ok() {
		return
	}
	r, _ := l.attachment(rtv, gpu.ViewKindRTV, gpu.ResourceStateRenderTarget)
	if r == nil {
		return
	}
	if dsv != nil {
		if d, _ := l.attachment(*dsv, gpu.ViewKindDSV, gpu.ResourceStateDepthWrite); d == nil {
			return
		}
	}
	l.rtv = r
}

func (l *commandList) ClearRenderTargetView(rtv gpu.CPUDescriptorHandle, color [4]float32) {
	if !l.ok() {
		return
	}
	r, v := l.attachment(rtv, gpu.ViewKindRTV, gpu.ResourceStateRenderTarget)
	if r == nil {
		return
	}
	format := v.Format
	if format == gpu.FormatUnknown {
		format = r.desc.Format
	}
	px, ok := pixel(format, color)
	if !ok {
		return
	}
	l.record(func() {
		l.dev.memMu.Lock()
		for i := 0; i+len(px) <= len(r.data); i += len(px) {
			copy(r.data[i:], px)
		}
		l.dev.memMu.Unlock()
	})
}

func (l *commandList) ClearDepthStencilView(dsv gpu.CPUDescriptorHandle, depth float32) {
	if !l.ok() {
		return
	}
	r, _ := l.attachment(dsv, gpu.ViewKindDSV, gpu.ResourceStateDepthWrite)
	if r == nil {
		return
	}
	if depth < 0 || depth > 1 {
		l.fail("depth clear value %f outside [0, 1]", depth)
		return
	}
	bits := math.Float32bits(depth)
	l.record(func() {
		l.dev.memMu.Lock()
		for i := 0; i+4 <= len(r.data); i += 4 {
			binary.LittleEndian.PutUint32(r.data[i:], bits)
		}
		l.dev.memMu.Unlock()
	})
}

// pixel encodes a normalized color in an 8-bit four-channel format.
func pixel(f gpu.Format, c [4]float32) ([]byte, bool) {
	q := func(v float32) byte {
		if v <= 0 {
			return 0
		}
		if v >= 1 {
			return 255
		}
		return byte(v*255 + 0.5)
	}
	switch f.StripSRGB() {
	case gpu.FormatR8G8B8A8Unorm:
		return []byte{q(c[0]), q(c[1]), q(c[2]), q(c[3])}, true
	case gpu.FormatB8G8R8A8Unorm, gpu.FormatB8G8R8X8Unorm:
		return []byte{q(c[2]), q(c[1]), q(c[0]), q(c[3])}, true
	}
	return nil, false
}

func (l *commandList) SetPipelineState(pso gpu.PipelineState) {
	if !l.ok() {
		return
	}
	p, ok := pso.(*pipelineState)
	if !ok {
		l.fail("pipeline %T was not created by the sim device", pso)
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
		l.fail("root signature %T was not created by the sim device", rs)
		return
	}
	if r.desc.Local {
		l.fail("local root signature %q bound as graphics root signature", r.desc.Label)
		return
	}
	l.rootSig = r
	l.rootArgs = make(map[uint32]bool)
}

func (l *commandList) SetDescriptorHeaps(heaps ...gpu.DescriptorHeap) {
	if !l.ok() {
		return
	}
	bound := make([]*descriptorHeap, 0, len(heaps))
	seen := make(map[gpu.DescriptorHeapType]bool)
	for _, h := range heaps {
		dh, ok := h.(*descriptorHeap)
		if !ok {
			l.fail("descriptor heap %T was not created by the sim device", h)
			return
		}
		if !dh.desc.ShaderVisible {
			l.fail("descriptor heap %q is not shader-visible", dh.desc.Label)
			return
		}
		if seen[dh.desc.Type] {
			l.fail("two descriptor heaps of the same type bound")
			return
		}
		seen[dh.desc.Type] = true
		bound = append(bound, dh)
	}
	l.heaps = bound
}

// boundHeapSlot resolves a GPU handle and checks that its heap is currently bound.
func (l *commandList) boundHeapSlot(base gpu.GPUDescriptorHandle) (*descriptorHeap, uint32, bool) {
	if base.Ptr&gpuHandleBit == 0 {
		l.fail("descriptor handle %#x is not a GPU handle", base.Ptr)
		return nil, 0, false
	}
	h, i, err := l.dev.slot(base.Ptr)
	if err != nil {
		l.fail("%w", err)
		return nil, 0, false
	}
	for _, b := range l.heaps {
		if b == h {
			return h, i, true
		}
	}
	l.fail("descriptor heap %q is not bound", h.desc.Label)
	return nil, 0, false
}

func (l *commandList) rootParameter(index uint32, want gpu.RootParameterType) bool {
	if l.rootSig == nil {
		l.fail("no root signature bound")
		return false
	}
	if int(index) >= len(l.rootSig.desc.Parameters) {
		l.fail("root parameter %d out of range for %q", index, l.rootSig.desc.Label)
		return false
	}
	if got := l.rootSig.desc.Parameters[index].Type; got != want {
		l.fail("root parameter %d of %q has type %d, want %d", index, l.rootSig.desc.Label, got, want)
		return false
	}
	return true
}

func (l *commandList) SetGraphicsRootDescriptorTable(index uint32, base gpu.GPUDescriptorHandle) {
	if !l.ok() || !l.rootParameter(index, gpu.RootParameterDescriptorTable) {
		return
	}
	if _, _, ok := l.boundHeapSlot(base); !ok {
		return
	}
	l.rootArgs[index] = true
}

func (l *commandList) SetGraphicsRootConstantBufferView(index uint32, address uint64) {
	if !l.ok() || !l.rootParameter(index, gpu.RootParameterCBV) {
		return
	}
	if address%gpu.ConstantBufferAlignment != 0 {
		l.fail("constant buffer address %#x is not %d-byte aligned", address, gpu.ConstantBufferAlignment)
		return
	}
	if _, _, err := l.dev.resolve(address); err != nil {
		l.fail("%w", err)
		return
	}
	l.rootArgs[index] = true
}

func (l *commandList) SetViewport(vp gpu.Viewport) {
	if !l.ok() {
		return
	}
	if vp.Width <= 0 || vp.Height <= 0 || vp.MinDepth < 0 || vp.MaxDepth > 1 || vp.MinDepth > vp.MaxDepth {
		l.fail("invalid viewport %+v", vp)
	}
}

func (l *commandList) SetScissorRect(r gpu.Rect) {
	if !l.ok() {
		return
	}
	if r.Right <= r.Left || r.Bottom <= r.Top {
		l.fail("invalid scissor rect %+v", r)
	}
}

func (l *commandList) SetPrimitiveTopology(t gpu.PrimitiveTopology) {
	if !l.ok() {
		return
	}
	l.topology = t
}

func (l *commandList) SetVertexBuffers(startSlot uint32, views ...gpu.VertexBufferView) {
	if !l.ok() {
		return
	}
	for i, v := range views {
		if v.StrideInBytes == 0 || v.SizeInBytes < v.StrideInBytes {
			l.fail("vertex buffer slot %d: stride %d, size %d", startSlot+uint32(i), v.StrideInBytes, v.SizeInBytes)
			return
		}
		r, off, err := l.dev.resolve(v.BufferLocation)
		if err != nil {
			l.fail("vertex buffer slot %d: %w", startSlot+uint32(i), err)
			return
		}
		if off+uint64(v.SizeInBytes) > uint64(len(r.data)) {
			l.fail("vertex buffer slot %d overruns %q", startSlot+uint32(i), r.desc.Label)
			return
		}
		if r.heap == gpu.HeapTypeDefault && r.state&gpu.ResourceStateVertexAndConstantBuffer == 0 {
			l.fail("%q: %w: vertex buffer is in %s", r.desc.Label, gpu.ErrInvalidState, r.state)
			return
		}
	}
	l.vbBound = true
}

func (l *commandList) SetIndexBuffer(view gpu.IndexBufferView) {
	if !l.ok() {
		return
	}
	if view.Format != gpu.FormatR32Uint && view.Format != gpu.FormatR16Uint {
		l.fail("index format %s not supported", view.Format)
		return
	}
	r, _, err := l.dev.resolve(view.BufferLocation)
	if err != nil {
		l.fail("index buffer: %w", err)
		return
	}
	if r.heap == gpu.HeapTypeDefault && r.state&gpu.ResourceStateIndexBuffer == 0 {
		l.fail("%q: %w: index buffer is in %s", r.desc.Label, gpu.ErrInvalidState, r.state)
		return
	}
	l.ibBound = true
}

func (l *commandList) DrawIndexedInstanced(indexCount, instanceCount, startIndex uint32, baseVertex int32, startInstance uint32) {
	if !l.ok() {
		return
	}
	switch {
	case l.pso == nil:
		l.fail("draw without a pipeline state")
	case l.rootSig == nil:
		l.fail("draw without a root signature")
	case l.pso.desc.RootSignature != gpu.RootSignature(l.rootSig):
		l.fail("pipeline %q was built against a different root signature", l.pso.desc.Label)
	case l.rtv == nil:
		l.fail("draw without a render target")
	case l.topology == gpu.PrimitiveTopologyUndefined:
		l.fail("draw without a primitive topology")
	case !l.vbBound || !l.ibBound:
		l.fail("draw without vertex and index buffers")
	case instanceCount == 0:
		l.fail("draw with zero instances")
	}
	if l.err != nil {
		return
	}
	for i := range l.rootSig.desc.Parameters {
		if !l.rootArgs[uint32(i)] {
			l.fail("root parameter %d of %q is unbound at draw", i, l.rootSig.desc.Label)
			return
		}
	}
	l.record(func() {
		l.dev.draws.Add(1)
		l.dev.instances.Add(uint64(instanceCount))
	})
}

func (l *commandList) BuildAccelerationStructure(desc *gpu.BuildASDesc) {
	if !l.ok() {
		return
	}
	if l.dev.rtTier == gpu.RaytracingTierNotSupported {
		l.fail("%w", gpu.ErrUnsupported)
		return
	}
	prebuild, err := l.dev.AccelerationStructurePrebuildInfo(&desc.Inputs)
	if err != nil {
		l.fail("%w", err)
		return
	}
	dest, off, err := l.dev.resolve(desc.DestAddress)
	if err != nil {
		l.fail("acceleration structure destination: %w", err)
		return
	}
	if off != 0 || dest.state != gpu.ResourceStateRaytracingAccelerationStructure {
		l.fail("%q: %w: acceleration structure destination must start a buffer in %s, is in %s",
			dest.desc.Label, gpu.ErrInvalidState, gpu.ResourceStateRaytracingAccelerationStructure, dest.state)
		return
	}
	if uint64(len(dest.data)) < prebuild.ResultDataMaxSize {
		l.fail("%q holds %d bytes, build needs %d", dest.desc.Label, len(dest.data), prebuild.ResultDataMaxSize)
		return
	}
	scratch, soff, err := l.dev.resolve(desc.ScratchAddress)
	if err != nil {
		l.fail("acceleration structure scratch: %w", err)
		return
	}
	need := prebuild.ScratchDataSize
	if desc.Inputs.Flags&gpu.BuildFlagPerformUpdate != 0 {
		need = prebuild.UpdateScratchDataSize
	}
	if scratch.state != gpu.ResourceStateUnorderedAccess || uint64(len(scratch.data))-soff < need {
		l.fail("%q: scratch must be %d bytes in %s", scratch.desc.Label, need, gpu.ResourceStateUnorderedAccess)
		return
	}

	inputs := desc.Inputs
	var instanceBuf *resource
	var instanceOff uint64
	switch inputs.Type {
	case gpu.AccelerationStructureBottomLevel:
		for i, g := range inputs.Geometries {
			if _, _, err := l.dev.resolve(g.VertexBuffer); err != nil {
				l.fail("geometry %d vertices: %w", i, err)
				return
			}
			if g.IndexBuffer != 0 {
				if _, _, err := l.dev.resolve(g.IndexBuffer); err != nil {
					l.fail("geometry %d indices: %w", i, err)
					return
				}
			}
		}
	case gpu.AccelerationStructureTopLevel:
		if inputs.NumInstances > 0 {
			instanceBuf, instanceOff, err = l.dev.resolve(inputs.InstanceDescs)
			if err != nil {
				l.fail("instance descs: %w", err)
				return
			}
			if instanceOff+uint64(inputs.NumInstances)*gpu.InstanceDescSize > uint64(len(instanceBuf.data)) {
				l.fail("%d instance descs overrun %q", inputs.NumInstances, instanceBuf.desc.Label)
				return
			}
			if !l.instancesSynced(instanceBuf, instanceOff, inputs.NumInstances) {
				return
			}
		}
	}
	if inputs.Flags&gpu.BuildFlagPerformUpdate != 0 {
		src, _, err := l.dev.resolve(desc.SourceAddress)
		if err != nil {
			l.fail("update source: %w", err)
			return
		}
		src.mu.Lock()
		built := src.as != nil
		src.mu.Unlock()
		if l.unsynced[src] {
			l.fail("%q: %w: updated with no UAV barrier since its build", src.desc.Label, gpu.ErrInvalidState)
			return
		}
		if !built {
			l.fail("update source %q was never built", src.desc.Label)
			return
		}
	}
	l.unsynced[dest] = true

	l.record(func() {
		info := &ASInfo{Type: inputs.Type, GeometryCount: len(inputs.Geometries), InstanceCount: int(inputs.NumInstances)}
		if instanceBuf != nil {
			l.dev.memMu.Lock()
			for i := uint64(0); i < uint64(inputs.NumInstances); i++ {
				at := instanceOff + i*gpu.InstanceDescSize
				info.Instances = append(info.Instances, gpu.DecodeInstanceDesc(instanceBuf.data[at:at+gpu.InstanceDescSize]))
			}
			l.dev.memMu.Unlock()
		}
		dest.mu.Lock()
		if dest.as != nil {
			info.Builds = dest.as.Builds
		}
		info.Builds++
		dest.as = info
		dest.mu.Unlock()
		l.dev.asBuilds.Add(1)
	})
}

// instancesSynced fails the list when an instance references a bottom-level structure
// built earlier in this list with no UAV barrier since.
func (l *commandList) instancesSynced(buf *resource, off uint64, count uint32) bool {
	if len(l.unsynced) == 0 {
		return true
	}
	l.dev.memMu.Lock()
	addrs := make([]uint64, count)
	for i := range addrs {
		at := off + uint64(i)*gpu.InstanceDescSize
		addrs[i] = gpu.DecodeInstanceDesc(buf.data[at : at+gpu.InstanceDescSize]).AccelerationStructure
	}
	l.dev.memMu.Unlock()
	for i, addr := range addrs {
		blas, _, err := l.dev.resolve(addr)
		if err == nil && l.unsynced[blas] {
			l.fail("instance %d: %q: %w: read by the top-level build with no UAV barrier since its build",
				i, blas.desc.Label, gpu.ErrInvalidState)
			return false
		}
	}
	return true
}

func (l *commandList) SetRaytracingState(so gpu.StateObject) {
	if !l.ok() {
		return
	}
	s, ok := so.(*stateObject)
	if !ok {
		l.fail("state object %T was not created by the sim device", so)
		return
	}
	l.so = s
}

// shaderRecord reads the identifier at address and returns the export it names.
func (l *commandList) shaderRecord(address uint64, what string) (string, *resource, uint64, bool) {
	r, off, err := l.dev.resolve(address)
	if err != nil {
		l.fail("%s record: %w", what, err)
		return "", nil, 0, false
	}
	if off+gpu.ShaderIdentifierSize > uint64(len(r.data)) {
		l.fail("%s record overruns %q", what, r.desc.Label)
		return "", nil, 0, false
	}
	l.dev.memMu.Lock()
	id := append([]byte(nil), r.data[off:off+gpu.ShaderIdentifierSize]...)
	l.dev.memMu.Unlock()
	name, ok := l.so.export(id)
	if !ok {
		l.fail("%s record at %#x holds an unknown shader identifier", what, address)
		return "", nil, 0, false
	}
	return name, r, off, true
}

func (l *commandList) localRootSignature(export string) *rootSignature {
	for _, a := range l.so.desc.Associations {
		for _, e := range a.Exports {
			if e == export {
				rs, _ := a.RootSignature.(*rootSignature)
				return rs
			}
		}
	}
	return nil
}

func (l *commandList) DispatchRays(desc *gpu.DispatchRaysDesc) {
	if !l.ok() {
		return
	}
	switch {
	case l.so == nil:
		l.fail("DispatchRays without a ray-tracing state object")
		return
	case desc.Width == 0 || desc.Height == 0 || desc.Depth == 0:
		l.fail("DispatchRays with empty grid %dx%dx%d", desc.Width, desc.Height, desc.Depth)
		return
	}
	for r := range l.unsynced {
		l.fail("%q: %w: traced with no UAV barrier since its build", r.desc.Label, gpu.ErrInvalidState)
		return
	}
	for _, start := range []uint64{desc.RayGeneration.StartAddress, desc.Miss.StartAddress, desc.HitGroup.StartAddress} {
		if start%gpu.ShaderTableAlignment != 0 {
			l.fail("shader table section at %#x is not %d-byte aligned", start, gpu.ShaderTableAlignment)
			return
		}
	}
	for _, stride := range []uint64{desc.Miss.StrideInBytes, desc.HitGroup.StrideInBytes} {
		if stride%gpu.ShaderRecordAlignment != 0 {
			l.fail("shader record stride %d is not %d-byte aligned", stride, gpu.ShaderRecordAlignment)
			return
		}
	}
	if _, _, _, ok := l.shaderRecord(desc.Miss.StartAddress, "miss"); !ok {
		return
	}
	if _, _, _, ok := l.shaderRecord(desc.HitGroup.StartAddress, "hit group"); !ok {
		return
	}
	export, sbt, off, ok := l.shaderRecord(desc.RayGeneration.StartAddress, "ray generation")
	if !ok {
		return
	}

	// Resolve the ray-generation local root arguments: one GPU descriptor handle per
	// descriptor table parameter, following the identifier.
	var output *resource
	if rs := l.localRootSignature(export); rs != nil {
		argAt := off + gpu.ShaderIdentifierSize
		for i, p := range rs.desc.Parameters {
			if p.Type != gpu.RootParameterDescriptorTable {
				argAt += gpu.DescriptorArgumentSize
				continue
			}
			if argAt+gpu.DescriptorArgumentSize > uint64(len(sbt.data)) {
				l.fail("ray generation argument %d overruns the shader table", i)
				return
			}
			l.dev.memMu.Lock()
			handle := binary.LittleEndian.Uint64(sbt.data[argAt:])
			l.dev.memMu.Unlock()
			argAt += gpu.DescriptorArgumentSize

			heap, base, ok := l.boundHeapSlot(gpu.GPUDescriptorHandle{Ptr: handle})
			if !ok {
				return
			}
			for _, rg := range p.Ranges {
				for n := uint32(0); n < rg.NumDescriptors; n++ {
					index := base + rg.OffsetInTable + n
					if index >= heap.desc.NumDescriptors {
						l.fail("descriptor table range overruns heap %q", heap.desc.Label)
						return
					}
					l.dev.mu.Lock()
					v := heap.views[index]
					l.dev.mu.Unlock()
					switch rg.Type {
					case gpu.DescriptorRangeUAV:
						if v.Kind != gpu.ViewKindUAV {
							l.fail("heap %q slot %d: want a UAV", heap.desc.Label, index)
							return
						}
						r := l.resource(v.Resource, "UAV")
						if r == nil {
							return
						}
						if r.state != gpu.ResourceStateUnorderedAccess {
							l.fail("%q: %w: UAV is in %s", r.desc.Label, gpu.ErrInvalidState, r.state)
							return
						}
						output = r
					case gpu.DescriptorRangeSRV:
						if v.Kind != gpu.ViewKindAccelerationStructure && v.Kind != gpu.ViewKindSRV {
							l.fail("heap %q slot %d: want an SRV", heap.desc.Label, index)
							return
						}
						if v.Kind == gpu.ViewKindAccelerationStructure {
							if _, _, err := l.dev.resolve(v.Location); err != nil {
								l.fail("scene SRV: %w", err)
								return
							}
						}
					}
				}
			}
		}
	}

	width, height := desc.Width, desc.Height
	l.record(func() {
		if output != nil {
			l.dev.memMu.Lock()
			fillGradient(output, width, height)
			l.dev.memMu.Unlock()
		}
		l.dev.dispatches.Add(1)
	})
}

// fillGradient writes the image the ray-generation shader produces when every ray
// misses: red grows with x, green with y.
func fillGradient(r *resource, width, height uint32) {
	w := min(uint32(r.desc.Width), width)
	h := min(r.desc.Height, height)
	stride := uint32(r.desc.Width)
	for y := uint32(0); y < h; y++ {
		for x := uint32(0); x < w; x++ {
			c := [4]float32{
				float32(x) / float32(max(w-1, 1)),
				float32(y) / float32(max(h-1, 1)),
				0.5,
				1,
			}
			px, ok := pixel(r.desc.Format, c)
			if !ok {
				return
			}
			at := (y*stride + x) * 4
			copy(r.data[at:], px)
		}
	}
}
