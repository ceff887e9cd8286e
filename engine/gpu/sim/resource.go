package sim

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
)

// ASInfo is what the simulated GPU recorded for an acceleration-structure build.
type ASInfo struct {
	Type          gpu.AccelerationStructureType
	GeometryCount int
	InstanceCount int
	Instances     []gpu.InstanceDesc
	Builds        int
}

// resource is a committed buffer or texture backed by a byte slice.
type resource struct {
	dev     *device
	desc    gpu.ResourceDesc
	heap    gpu.HeapType
	address uint64
	data    []byte

	// state is the state as of the last recorded barrier. Recording is single-threaded,
	// so it is only touched by the recording goroutine.
	state gpu.ResourceState

	mu       sync.Mutex
	as       *ASInfo
	mapped   bool
	released bool
}

var _ gpu.Resource = &resource{}

func (d *device) CreateCommittedResource(heap gpu.HeapType, desc gpu.ResourceDesc, initial gpu.ResourceState) (gpu.Resource, error) {
	if err := d.check("CreateCommittedResource"); err != nil {
		return nil, err
	}
	if err := d.check("CreateCommittedResource:" + desc.Label); err != nil {
		return nil, err
	}
	size, err := resourceSize(desc)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", desc.Label, err)
	}
	switch heap {
	case gpu.HeapTypeUpload:
		if desc.Dimension != gpu.DimensionBuffer {
			return nil, fmt.Errorf("%q: upload heap only holds buffers", desc.Label)
		}
		if initial != gpu.ResourceStateGenericRead {
			return nil, fmt.Errorf("%q: %w: upload heap resources start in GENERIC_READ, got %s", desc.Label, gpu.ErrInvalidState, initial)
		}
	case gpu.HeapTypeReadback:
		if desc.Dimension != gpu.DimensionBuffer {
			return nil, fmt.Errorf("%q: readback heap only holds buffers", desc.Label)
		}
		if initial != gpu.ResourceStateCopyDest {
			return nil, fmt.Errorf("%q: %w: readback heap resources start in COPY_DEST, got %s", desc.Label, gpu.ErrInvalidState, initial)
		}
	}
	r := &resource{
		dev:   d,
		desc:  desc,
		heap:  heap,
		data:  make([]byte, size),
		state: initial,
	}
	if err := d.allocate(r); err != nil {
		return nil, fmt.Errorf("%q: %w", desc.Label, err)
	}
	return r, nil
}

// resourceSize is the byte size of a resource. Textures are stored with tightly packed rows.
func resourceSize(desc gpu.ResourceDesc) (uint64, error) {
	switch desc.Dimension {
	case gpu.DimensionBuffer:
		if desc.Width == 0 {
			return 0, fmt.Errorf("buffer width must be non-zero")
		}
		return desc.Width, nil
	case gpu.DimensionTexture2D:
		bpp := gpu.BitsPerPixel(desc.Format)
		if bpp == 0 || desc.Width == 0 || desc.Height == 0 {
			return 0, fmt.Errorf("invalid texture %dx%d %s", desc.Width, desc.Height, desc.Format)
		}
		return desc.Width * uint64(desc.Height) * uint64(bpp/8), nil
	}
	return 0, fmt.Errorf("unknown dimension %d", desc.Dimension)
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

func (r *resource) Map() ([]byte, error) {
	if r.heap == gpu.HeapTypeDefault {
		return nil, fmt.Errorf("%q: %w", r.desc.Label, gpu.ErrNotMappable)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return nil, fmt.Errorf("%q: %w", r.desc.Label, gpu.ErrDeviceRemoved)
	}
	r.mapped = true
	return r.data, nil
}

func (r *resource) Unmap() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mapped = false
}

func (r *resource) Release() {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return
	}
	r.released = true
	r.mu.Unlock()
	r.dev.free(r)
	r.dev.journal.record(EventRelease, "resource:"+r.desc.Label, 0)
}

func (r *resource) isReleased() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.released
}

func (r *resource) rowBytes() uint64 {
	return r.desc.Width * uint64(gpu.BitsPerPixel(r.desc.Format)/8)
}

// AccelerationStructureInfo returns what the GPU recorded for the last build into r.
//
// Parameters:
//   - r: an acceleration-structure result buffer created by a sim device
//
// Returns:
//   - ASInfo: the recorded build
//   - bool: false if r is not a sim resource or nothing was built into it yet
func AccelerationStructureInfo(r gpu.Resource) (ASInfo, bool) {
	sr, ok := r.(*resource)
	if !ok {
		return ASInfo{}, false
	}
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if sr.as == nil {
		return ASInfo{}, false
	}
	info := *sr.as
	info.Instances = append([]gpu.InstanceDesc(nil), sr.as.Instances...)
	return info, true
}

// Contents returns a copy of the bytes backing any sim resource, including default-heap
// textures the CPU cannot map. It is meant for tests and debugging.
//
// Parameters:
//   - r: a resource created by a sim device
//
// Returns:
//   - []byte: a copy of the resource memory, nil if r is not a sim resource
func Contents(r gpu.Resource) []byte {
	sr, ok := r.(*resource)
	if !ok {
		return nil
	}
	sr.dev.memMu.Lock()
	defer sr.dev.memMu.Unlock()
	return append([]byte(nil), sr.data...)
}

// descriptorHeap stores views in slots addressed by encoded handles.
type descriptorHeap struct {
	dev   *device
	id    uint64
	desc  gpu.DescriptorHeapDesc
	views []gpu.ViewDesc
}

var _ gpu.DescriptorHeap = &descriptorHeap{}

func (d *device) CreateDescriptorHeap(desc gpu.DescriptorHeapDesc) (gpu.DescriptorHeap, error) {
	if err := d.check("CreateDescriptorHeap"); err != nil {
		return nil, err
	}
	if desc.NumDescriptors == 0 {
		return nil, fmt.Errorf("descriptor heap %q has no descriptors", desc.Label)
	}
	if desc.ShaderVisible && (desc.Type == gpu.DescriptorHeapTypeRTV || desc.Type == gpu.DescriptorHeapTypeDSV) {
		return nil, fmt.Errorf("descriptor heap %q: RTV and DSV heaps cannot be shader-visible", desc.Label)
	}
	d.mu.Lock()
	d.nextHeap++
	h := &descriptorHeap{dev: d, id: d.nextHeap, desc: desc, views: make([]gpu.ViewDesc, desc.NumDescriptors)}
	d.heaps[h.id] = h
	d.mu.Unlock()
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
	delete(h.dev.heaps, h.id)
	h.dev.mu.Unlock()
	h.dev.journal.record(EventRelease, "heap:"+h.desc.Label, 0)
}

// slot decodes a CPU or GPU descriptor handle into its heap and index.
func (d *device) slot(ptr uint64) (*descriptorHeap, uint32, error) {
	ptr &^= gpuHandleBit
	id := ptr >> 32
	offset := uint32(ptr & 0xffffffff)
	d.mu.Lock()
	h, ok := d.heaps[id]
	d.mu.Unlock()
	if !ok {
		return nil, 0, fmt.Errorf("descriptor handle %#x does not belong to a live heap", ptr)
	}
	if offset%descriptorIncrement != 0 {
		return nil, 0, fmt.Errorf("descriptor handle %#x is not on a descriptor boundary", ptr)
	}
	index := offset / descriptorIncrement
	if index >= h.desc.NumDescriptors {
		return nil, 0, fmt.Errorf("descriptor index %d out of range for heap %q (%d)", index, h.desc.Label, h.desc.NumDescriptors)
	}
	return h, index, nil
}

// view returns the view stored at a handle.
func (d *device) view(ptr uint64) (gpu.ViewDesc, error) {
	h, i, err := d.slot(ptr)
	if err != nil {
		return gpu.ViewDesc{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return h.views[i], nil
}

var viewHeapTypes = map[gpu.ViewKind]gpu.DescriptorHeapType{
	gpu.ViewKindCBV:                   gpu.DescriptorHeapTypeCBVSRVUAV,
	gpu.ViewKindSRV:                   gpu.DescriptorHeapTypeCBVSRVUAV,
	gpu.ViewKindUAV:                   gpu.DescriptorHeapTypeCBVSRVUAV,
	gpu.ViewKindAccelerationStructure: gpu.DescriptorHeapTypeCBVSRVUAV,
	gpu.ViewKindRTV:                   gpu.DescriptorHeapTypeRTV,
	gpu.ViewKindDSV:                   gpu.DescriptorHeapTypeDSV,
}

func (d *device) CreateView(view gpu.ViewDesc, dst gpu.CPUDescriptorHandle) error {
	if err := d.check("CreateView"); err != nil {
		return err
	}
	h, i, err := d.slot(dst.Ptr)
	if err != nil {
		return err
	}
	if want, ok := viewHeapTypes[view.Kind]; !ok || want != h.desc.Type {
		return fmt.Errorf("view kind %d cannot be written to heap %q", view.Kind, h.desc.Label)
	}
	switch view.Kind {
	case gpu.ViewKindAccelerationStructure:
		if view.Location == 0 {
			return fmt.Errorf("acceleration-structure view needs a location")
		}
	case gpu.ViewKindUAV:
		if view.Resource == nil || view.Resource.Desc().Flags&gpu.ResourceFlagAllowUnorderedAccess == 0 {
			return fmt.Errorf("unordered-access view needs a resource created with the UAV flag")
		}
		if view.Format.IsSRGB() {
			return fmt.Errorf("unordered-access view cannot use gamma format %s", view.Format)
		}
	default:
		if view.Resource == nil {
			return fmt.Errorf("view kind %d needs a resource", view.Kind)
		}
	}
	d.mu.Lock()
	h.views[i] = view
	d.mu.Unlock()
	return nil
}
