// Package sim is an in-memory gpu.Device.
//
// Resources hold real bytes, barriers are validated against each resource's tracked
// state, and submitted command lists run on a goroutine standing in for the GPU, after an
// optional latency. Every fence signal, fence wait and release is written to a Journal so
// tests can assert ordering. The device is used by the engine's tests and by headless runs.
package sim

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
)

const (
	// descriptorIncrement is the stride of every descriptor heap type.
	descriptorIncrement uint32 = 32
	// gpuHandleBit marks shader-visible GPU descriptor handles.
	gpuHandleBit uint64 = 1 << 63
	// baseAddress is the first GPU virtual address handed out.
	baseAddress uint64 = 0x1_0000_0000
)

// Stats counts work the simulated GPU has executed.
type Stats struct {
	Submissions  uint64
	Draws        uint64
	Instances    uint64
	DispatchRays uint64
	ASBuilds     uint64
	Presents     uint64
}

// device is the implementation of the Device interface.
type device struct {
	journal *Journal

	featureLevel gpu.FeatureLevel
	rtTier       gpu.RaytracingTier
	latency      time.Duration
	memoryLimit  uint64
	failures     map[string]error

	// memMu serializes GPU-side access to resource memory.
	memMu sync.Mutex

	mu          sync.Mutex
	released    bool
	nextAddress uint64
	allocated   uint64
	resources   []*resource
	heaps       map[uint64]*descriptorHeap
	nextHeap    uint64
	nextObject  map[string]int
	nextShader  uint64

	submissions  atomic.Uint64
	draws        atomic.Uint64
	instances    atomic.Uint64
	dispatches   atomic.Uint64
	asBuilds     atomic.Uint64
	presents     atomic.Uint64
}

// Device is a simulated gpu.Device that exposes its journal and execution counters.
type Device interface {
	gpu.Device

	// Journal returns the device's event journal.
	//
	// Returns:
	//   - *Journal: the journal shared by every object the device created
	Journal() *Journal

	// Stats returns a snapshot of the execution counters.
	//
	// Returns:
	//   - Stats: the counters
	Stats() Stats

	// Allocated reports the bytes currently held by live committed resources.
	//
	// Returns:
	//   - uint64: live resource bytes
	Allocated() uint64

	// Fail makes a named operation fail with err from now on. See WithFailure for
	// operation names. A nil err clears the failure.
	//
	// Parameters:
	//   - op: the operation name
	//   - err: the error the operation returns
	Fail(op string, err error)
}

var _ Device = &device{}

// NewDevice creates a simulated device. By default it reports feature level 12_1,
// ray-tracing tier 1.1, no GPU latency and no memory limit.
//
// Parameters:
//   - options: functional options for device configuration
//
// Returns:
//   - Device: the newly created device
func NewDevice(options ...DeviceBuilderOption) Device {
	d := &device{
		journal:      &Journal{},
		featureLevel: gpu.FeatureLevel12_1,
		rtTier:       gpu.RaytracingTier1_1,
		failures:     make(map[string]error),
		nextAddress:  baseAddress,
		heaps:        make(map[uint64]*descriptorHeap),
		nextObject:   make(map[string]int),
	}
	for _, opt := range options {
		opt(d)
	}
	return d
}

func (d *device) Journal() *Journal {
	return d.journal
}

func (d *device) Stats() Stats {
	return Stats{
		Submissions:  d.submissions.Load(),
		Draws:        d.draws.Load(),
		Instances:    d.instances.Load(),
		DispatchRays: d.dispatches.Load(),
		ASBuilds:     d.asBuilds.Load(),
		Presents:     d.presents.Load(),
	}
}

func (d *device) Allocated() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.allocated
}

func (d *device) Fail(op string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.failures, op)
		return
	}
	d.failures[op] = err
}

func (d *device) Release() {
	d.mu.Lock()
	if d.released {
		d.mu.Unlock()
		return
	}
	d.released = true
	d.mu.Unlock()
	d.journal.record(EventRelease, "device", 0)
}

func (d *device) FeatureLevel() gpu.FeatureLevel {
	return d.featureLevel
}

func (d *device) RaytracingTier() gpu.RaytracingTier {
	return d.rtTier
}

// check returns ErrDeviceRemoved after release, or the failure injected for op.
func (d *device) check(op string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return gpu.ErrDeviceRemoved
	}
	if err, ok := d.failures[op]; ok {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// name returns the next ordinal name for an object kind: "fence0", "fence1", ...
func (d *device) name(kind string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.nextObject[kind]
	d.nextObject[kind] = n + 1
	return fmt.Sprintf("%s%d", kind, n)
}

func (d *device) CreateCommandQueue() (gpu.CommandQueue, error) {
	if err := d.check("CreateCommandQueue"); err != nil {
		return nil, err
	}
	return newQueue(d, d.name("queue")), nil
}

func (d *device) CreateCommandAllocator() (gpu.CommandAllocator, error) {
	if err := d.check("CreateCommandAllocator"); err != nil {
		return nil, err
	}
	return &allocator{dev: d, name: d.name("allocator")}, nil
}

func (d *device) CreateCommandList(alloc gpu.CommandAllocator, initial gpu.PipelineState) (gpu.CommandList, error) {
	if err := d.check("CreateCommandList"); err != nil {
		return nil, err
	}
	l := &commandList{dev: d, name: d.name("list")}
	if err := l.begin(alloc, initial); err != nil {
		return nil, err
	}
	return l, nil
}

func (d *device) CreateFence(initial uint64) (gpu.Fence, error) {
	if err := d.check("CreateFence"); err != nil {
		return nil, err
	}
	return &fence{dev: d, name: d.name("fence"), completed: initial}, nil
}

func (d *device) DescriptorHandleIncrementSize(gpu.DescriptorHeapType) uint32 {
	return descriptorIncrement
}

func (d *device) AccelerationStructurePrebuildInfo(inputs *gpu.ASInputs) (gpu.PrebuildInfo, error) {
	if d.rtTier == gpu.RaytracingTierNotSupported {
		return gpu.PrebuildInfo{}, gpu.ErrUnsupported
	}
	if err := d.check("AccelerationStructurePrebuildInfo"); err != nil {
		return gpu.PrebuildInfo{}, err
	}
	var primitives uint64
	switch inputs.Type {
	case gpu.AccelerationStructureBottomLevel:
		if len(inputs.Geometries) == 0 {
			return gpu.PrebuildInfo{}, fmt.Errorf("bottom-level build has no geometries")
		}
		for _, g := range inputs.Geometries {
			if g.IndexBuffer != 0 {
				primitives += uint64(g.IndexCount / 3)
			} else {
				primitives += uint64(g.VertexCount / 3)
			}
		}
	case gpu.AccelerationStructureTopLevel:
		primitives = uint64(inputs.NumInstances)
	}
	scratch := alignAS(64 + 32*primitives)
	return gpu.PrebuildInfo{
		ResultDataMaxSize:     alignAS(128 + 64*primitives),
		ScratchDataSize:       scratch,
		UpdateScratchDataSize: alignAS(scratch / 2),
	}, nil
}

func alignAS(n uint64) uint64 {
	const a = gpu.AccelerationStructureAlignment
	return (n + a - 1) &^ (a - 1)
}

// allocate reserves a GPU address range and registers r. Addresses are placed on
// resource placement boundaries so every buffer starts 64KB-aligned.
func (d *device) allocate(r *resource) error {
	size := uint64(len(r.data))
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.memoryLimit > 0 && d.allocated+size > d.memoryLimit {
		return fmt.Errorf("%w: %d bytes requested, %d of %d in use", gpu.ErrOutOfMemory, size, d.allocated, d.memoryLimit)
	}
	d.allocated += size
	if r.desc.Dimension == gpu.DimensionBuffer {
		r.address = d.nextAddress
		span := (size + gpu.ResourcePlacementAlignment - 1) &^ (gpu.ResourcePlacementAlignment - 1)
		if span == 0 {
			span = gpu.ResourcePlacementAlignment
		}
		d.nextAddress += span
	}
	d.resources = append(d.resources, r)
	return nil
}

func (d *device) free(r *resource) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.allocated -= uint64(len(r.data))
	for i, live := range d.resources {
		if live == r {
			d.resources = append(d.resources[:i], d.resources[i+1:]...)
			break
		}
	}
}

// resolve finds the live buffer containing a GPU virtual address.
func (d *device) resolve(address uint64) (*resource, uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range d.resources {
		if r.address != 0 && address >= r.address && address < r.address+uint64(len(r.data)) {
			return r, address - r.address, nil
		}
	}
	return nil, 0, fmt.Errorf("address %#x does not belong to a live buffer", address)
}
