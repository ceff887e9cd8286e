package halgpu

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
)

// resource wraps a hal buffer or texture. Upload buffers keep a CPU shadow that is
// pushed to the GPU before the next submission; readback buffers are read through the
// queue on Map.
type resource struct {
	dev     *device
	desc    gpu.ResourceDesc
	heap    gpu.HeapType
	address uint64

	buffer  hal.Buffer
	texture hal.Texture
	view    hal.TextureView

	// state is the state as of the last recorded barrier.
	state gpu.ResourceState

	mu       sync.Mutex
	shadow   []byte
	dirty    bool
	released bool

	// proxy is set for swapchain back buffers, whose texture changes every frame.
	proxy *swapChain
}

var _ gpu.Resource = &resource{}

func (d *device) CreateCommittedResource(heap gpu.HeapType, desc gpu.ResourceDesc, initial gpu.ResourceState) (gpu.Resource, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	r := &resource{dev: d, desc: desc, heap: heap, state: initial}
	switch desc.Dimension {
	case gpu.DimensionBuffer:
		if desc.Width == 0 {
			return nil, fmt.Errorf("%q: buffer width must be non-zero", desc.Label)
		}
		if heap == gpu.HeapTypeUpload && initial != gpu.ResourceStateGenericRead {
			return nil, fmt.Errorf("%q: %w: upload heap resources start in GENERIC_READ, got %s", desc.Label, gpu.ErrInvalidState, initial)
		}
		if heap == gpu.HeapTypeReadback && initial != gpu.ResourceStateCopyDest {
			return nil, fmt.Errorf("%q: %w: readback heap resources start in COPY_DEST, got %s", desc.Label, gpu.ErrInvalidState, initial)
		}
		// hal buffer sizes must be multiples of 4.
		buf, err := d.dev.CreateBuffer(&hal.BufferDescriptor{
			Label: desc.Label,
			Size:  (desc.Width + 3) &^ 3,
			Usage: bufferUsage(heap, desc.Flags),
		})
		if err != nil {
			return nil, fmt.Errorf("%q: %w: %v", desc.Label, gpu.ErrOutOfMemory, err)
		}
		r.buffer = buf
		if heap == gpu.HeapTypeUpload {
			r.shadow = make([]byte, (desc.Width+3)&^3)
		}
		d.register(r)
	case gpu.DimensionTexture2D:
		if heap != gpu.HeapTypeDefault {
			return nil, fmt.Errorf("%q: textures live in the default heap", desc.Label)
		}
		format, ok := textureFormat(desc.Format)
		if !ok {
			return nil, fmt.Errorf("%q: unsupported texture format %s", desc.Label, desc.Format)
		}
		tex, err := d.dev.CreateTexture(&hal.TextureDescriptor{
			Label:         desc.Label,
			Size:          hal.Extent3D{Width: uint32(desc.Width), Height: desc.Height, DepthOrArrayLayers: 1},
			MipLevelCount: 1,
			SampleCount:   1,
			Dimension:     gputypes.TextureDimension2D,
			Format:        format,
			Usage:         textureUsage(desc.Flags),
		})
		if err != nil {
			return nil, fmt.Errorf("%q: %w: %v", desc.Label, gpu.ErrOutOfMemory, err)
		}
		view, err := d.dev.CreateTextureView(tex, &hal.TextureViewDescriptor{Label: desc.Label + "_view"})
		if err != nil {
			d.dev.DestroyTexture(tex)
			return nil, fmt.Errorf("%q: create view: %w", desc.Label, err)
		}
		r.texture = tex
		r.view = view
	default:
		return nil, fmt.Errorf("%q: unknown dimension %d", desc.Label, desc.Dimension)
	}
	return r, nil
}

func (r *resource) Desc() gpu.ResourceDesc {
	return r.desc
}

func (r *resource) Heap() gpu.HeapType {
	return r.heap
}

func (r *resource) GPUVirtualAddress() uint64 {
	return r.address
}

// Map returns the shadow of an upload buffer, marking it dirty, or a copy of a
// readback buffer's contents. The caller has waited for the copies that wrote it.
func (r *resource) Map() ([]byte, error) {
	if r.heap == gpu.HeapTypeDefault {
		return nil, fmt.Errorf("%q: %w", r.desc.Label, gpu.ErrNotMappable)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return nil, fmt.Errorf("%q: %w", r.desc.Label, gpu.ErrDeviceRemoved)
	}
	if r.heap == gpu.HeapTypeUpload {
		r.dirty = true
		return r.shadow[:r.desc.Width], nil
	}
	mapping, err := r.dev.dev.MapBuffer(r.buffer, 0, (r.desc.Width+3)&^3)
	if err != nil {
		return nil, fmt.Errorf("%q: map: %w", r.desc.Label, err)
	}
	out := unsafeBytes(mapping.Ptr, r.desc.Width)
	if err := r.dev.dev.UnmapBuffer(r.buffer); err != nil {
		return nil, fmt.Errorf("%q: unmap: %w", r.desc.Label, err)
	}
	return out, nil
}

func (r *resource) Unmap() {}

func (r *resource) Release() {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return
	}
	r.released = true
	r.mu.Unlock()
	if r.proxy != nil {
		return
	}
	if r.buffer != nil {
		r.dev.unregister(r)
		r.dev.dev.DestroyBuffer(r.buffer)
	}
	if r.view != nil {
		r.dev.dev.DestroyTextureView(r.view)
	}
	if r.texture != nil {
		r.dev.dev.DestroyTexture(r.texture)
	}
}

// textureView is the view a render pass attaches. Back buffers resolve to the surface
// texture acquired for the current frame.
func (r *resource) textureView() (hal.TextureView, error) {
	if r.proxy != nil {
		return r.proxy.currentView()
	}
	if r.view == nil {
		return nil, fmt.Errorf("%q is not a texture", r.desc.Label)
	}
	return r.view, nil
}

func (r *resource) halTexture() (hal.Texture, error) {
	if r.proxy != nil {
		return r.proxy.currentTexture()
	}
	if r.texture == nil {
		return nil, fmt.Errorf("%q is not a texture", r.desc.Label)
	}
	return r.texture, nil
}

// descriptorHeap is a CPU-side array of views; bind groups are built from it when a
// table is bound.
type descriptorHeap struct {
	dev   *device
	id    uint64
	desc  gpu.DescriptorHeapDesc
	views []gpu.ViewDesc
}

var _ gpu.DescriptorHeap = &descriptorHeap{}

func (d *device) CreateDescriptorHeap(desc gpu.DescriptorHeapDesc) (gpu.DescriptorHeap, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	if desc.NumDescriptors == 0 {
		return nil, fmt.Errorf("descriptor heap %q has no descriptors", desc.Label)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextHeap++
	h := &descriptorHeap{dev: d, id: d.nextHeap, desc: desc, views: make([]gpu.ViewDesc, desc.NumDescriptors)}
	d.heaps[h.id] = h
	return h, nil
}

func (h *descriptorHeap) Desc() gpu.DescriptorHeapDesc {
	return h.desc
}

func (h *descriptorHeap) CPUHandleForHeapStart() gpu.CPUDescriptorHandle {
	return gpu.CPUDescriptorHandle{Ptr: h.id << 32}
}

func (h *descriptorHeap) GPUHandleForHeapStart() gpu.GPUDescriptorHandle {
	if !h.desc.ShaderVisible {
		return gpu.GPUDescriptorHandle{}
	}
	return gpu.GPUDescriptorHandle{Ptr: gpuHandleBit | h.id<<32}
}

func (h *descriptorHeap) Release() {
	h.dev.mu.Lock()
	defer h.dev.mu.Unlock()
	delete(h.dev.heaps, h.id)
}

func (d *device) view(ptr uint64) (gpu.ViewDesc, error) {
	ptr &^= gpuHandleBit
	id := ptr >> 32
	offset := uint32(ptr & 0xffffffff)
	d.mu.Lock()
	defer d.mu.Unlock()
	h, ok := d.heaps[id]
	if !ok {
		return gpu.ViewDesc{}, fmt.Errorf("descriptor handle %#x does not belong to a live heap", ptr)
	}
	index := offset / descriptorIncrement
	if offset%descriptorIncrement != 0 || index >= h.desc.NumDescriptors {
		return gpu.ViewDesc{}, fmt.Errorf("descriptor handle %#x is outside heap %q", ptr, h.desc.Label)
	}
	return h.views[index], nil
}

func (d *device) CreateView(view gpu.ViewDesc, dst gpu.CPUDescriptorHandle) error {
	if err := d.check(); err != nil {
		return err
	}
	if view.Kind == gpu.ViewKindAccelerationStructure {
		return fmt.Errorf("acceleration-structure view: %w", gpu.ErrUnsupported)
	}
	if view.Resource == nil {
		return fmt.Errorf("view kind %d needs a resource", view.Kind)
	}
	ptr := dst.Ptr
	id := ptr >> 32
	index := uint32(ptr&0xffffffff) / descriptorIncrement
	d.mu.Lock()
	defer d.mu.Unlock()
	h, ok := d.heaps[id]
	if !ok || index >= h.desc.NumDescriptors {
		return fmt.Errorf("descriptor handle %#x does not belong to a live heap", ptr)
	}
	h.views[index] = view
	return nil
}

func unsafeBytes(p unsafe.Pointer, n uint64) []byte {
	return append([]byte(nil), unsafe.Slice((*byte)(p), n)...)
}
