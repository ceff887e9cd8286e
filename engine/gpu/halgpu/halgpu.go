// Package halgpu implements gpu.Device over the gogpu/wgpu hardware abstraction layer.
//
// The explicit command-list model maps onto hal as follows: committed buffers and
// textures become hal buffers and textures, barriers become usage transitions, fence
// values ride on queue submissions, and render-target work is collected into render
// passes that open lazily at the first draw. hal exposes no ray-tracing API, so the
// device reports gpu.RaytracingTierNotSupported.
package halgpu

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/Carmen-Shannon/oxy-rt/engine/adapter"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
	"github.com/Carmen-Shannon/oxy-rt/engine/logger"
)

const (
	descriptorIncrement uint32 = 32
	gpuHandleBit        uint64 = 1 << 63
	baseAddress         uint64 = 0x1_0000_0000
)

// device is the implementation of gpu.Device on a hal device.
type device struct {
	instance hal.Instance
	dev      hal.Device
	queue    hal.Queue
	level    gpu.FeatureLevel
	name     string

	mu          sync.Mutex
	released    bool
	nextAddress uint64
	buffers     []*resource
	heaps       map[uint64]*descriptorHeap
	nextHeap    uint64

	// submitted is the index of the last hal submission.
	submitted uint64
}

var _ gpu.Device = &device{}

func newDevice(instance hal.Instance, open hal.OpenDevice, level gpu.FeatureLevel, name string) *device {
	logger.Logger().Info("hal device created", "adapter", name, "featureLevel", level.String())
	return &device{
		instance:    instance,
		dev:         open.Device,
		queue:       open.Queue,
		level:       level,
		name:        name,
		nextAddress: baseAddress,
		heaps:       make(map[uint64]*descriptorHeap),
	}
}

func (d *device) check() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return gpu.ErrDeviceRemoved
	}
	return nil
}

func (d *device) Release() {
	d.mu.Lock()
	if d.released {
		d.mu.Unlock()
		return
	}
	d.released = true
	d.mu.Unlock()
	if err := d.dev.WaitIdle(); err != nil {
		logger.Logger().Warn("wait idle before release failed", "error", err)
	}
	d.dev.Destroy()
	if d.instance != nil {
		d.instance.Destroy()
	}
	logger.Logger().Info("hal device released", "adapter", d.name)
}

func (d *device) FeatureLevel() gpu.FeatureLevel {
	return d.level
}

func (d *device) RaytracingTier() gpu.RaytracingTier {
	return gpu.RaytracingTierNotSupported
}

func (d *device) CreateCommandQueue() (gpu.CommandQueue, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	return &queue{dev: d}, nil
}

func (d *device) CreateCommandAllocator() (gpu.CommandAllocator, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	return &allocator{dev: d}, nil
}

func (d *device) CreateCommandList(alloc gpu.CommandAllocator, initial gpu.PipelineState) (gpu.CommandList, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	l := &commandList{dev: d}
	if err := l.begin(alloc, initial); err != nil {
		return nil, err
	}
	return l, nil
}

func (d *device) CreateFence(initial uint64) (gpu.Fence, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	return &fence{dev: d, completed: initial}, nil
}

func (d *device) DescriptorHandleIncrementSize(gpu.DescriptorHeapType) uint32 {
	return descriptorIncrement
}

func (d *device) AccelerationStructurePrebuildInfo(*gpu.ASInputs) (gpu.PrebuildInfo, error) {
	return gpu.PrebuildInfo{}, gpu.ErrUnsupported
}

func (d *device) CreateStateObject(*gpu.StateObjectDesc) (gpu.StateObject, error) {
	return nil, gpu.ErrUnsupported
}

// register assigns a GPU virtual address to a buffer so views and root arguments can
// refer to it by address.
func (d *device) register(r *resource) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r.address = d.nextAddress
	span := (r.desc.Width + gpu.ResourcePlacementAlignment - 1) &^ (gpu.ResourcePlacementAlignment - 1)
	d.nextAddress += span
	d.buffers = append(d.buffers, r)
}

func (d *device) unregister(r *resource) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, b := range d.buffers {
		if b == r {
			d.buffers = append(d.buffers[:i], d.buffers[i+1:]...)
			return
		}
	}
}

func (d *device) resolve(address uint64) (*resource, uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, b := range d.buffers {
		if address >= b.address && address < b.address+b.desc.Width {
			return b, address - b.address, nil
		}
	}
	return nil, 0, fmt.Errorf("address %#x does not belong to a live buffer", address)
}

// flushUploads pushes the CPU shadows of written upload buffers to the GPU. Queue writes
// are ordered before the next submission.
func (d *device) flushUploads() error {
	d.mu.Lock()
	dirty := make([]*resource, 0, len(d.buffers))
	for _, b := range d.buffers {
		if b.heap == gpu.HeapTypeUpload && b.dirty {
			b.dirty = false
			dirty = append(dirty, b)
		}
	}
	d.mu.Unlock()
	for _, b := range dirty {
		if err := d.queue.WriteBuffer(b.buffer, 0, b.shadow); err != nil {
			return fmt.Errorf("upload %q: %w", b.desc.Label, err)
		}
	}
	return nil
}

// Enumerator lists the adapters of one hal backend. The hal instance is created on the
// first enumeration; opening a device hands the instance over to that device.
type Enumerator struct {
	api   API
	label string

	mu          sync.Mutex
	instance    hal.Instance
	transferred bool
}

var _ adapter.Enumerator = &Enumerator{}

// API is the part of a hal backend the enumerator needs. Values returned by
// hal.GetBackend and the noop backend's API type satisfy it.
type API interface {
	CreateInstance(desc *hal.InstanceDescriptor) (hal.Instance, error)
}

// NewEnumerator builds an enumerator over a registered hal backend.
//
// Parameters:
//   - backend: the backend to enumerate, which must be registered with hal
//
// Returns:
//   - *Enumerator: the enumerator
//   - error: an error if the backend is not registered
func NewEnumerator(backend gputypes.Backend) (*Enumerator, error) {
	api, ok := hal.GetBackend(backend)
	if !ok {
		return nil, fmt.Errorf("hal backend %s is not available", backendName(backend))
	}
	return &Enumerator{api: api, label: backendName(backend)}, nil
}

// NewEnumeratorFromAPI builds an enumerator over an explicit backend value.
//
// Parameters:
//   - api: the backend
//   - label: the backend name reported in adapter descriptions
//
// Returns:
//   - *Enumerator: the enumerator
func NewEnumeratorFromAPI(api API, label string) *Enumerator {
	return &Enumerator{api: api, label: label}
}

// EnumerateAdapters lists the adapters the backend exposes. hal reports no feature
// levels, so hardware adapters are described at 12_1 and CPU adapters are flagged
// as software.
func (e *Enumerator) EnumerateAdapters() ([]adapter.Adapter, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.transferred {
		return nil, fmt.Errorf("%s instance already owns an open device", e.label)
	}
	if e.instance == nil {
		instance, err := e.api.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
		if err != nil {
			return nil, fmt.Errorf("create %s instance: %w", e.label, err)
		}
		e.instance = instance
	}

	exposed := e.instance.EnumerateAdapters(nil)
	out := make([]adapter.Adapter, 0, len(exposed))
	for i := range exposed {
		ex := exposed[i]
		desc := adapter.Desc{
			Description:  ex.Info.Name,
			DeviceType:   deviceType(ex.Info.DeviceType),
			FeatureLevel: gpu.FeatureLevel12_1,
			Backend:      e.label,
		}
		if desc.DeviceType == adapter.DeviceTypeCPU {
			desc.Flags |= adapter.FlagSoftware
		}
		out = append(out, adapter.New(desc, func(level gpu.FeatureLevel) (gpu.Device, error) {
			return e.open(ex, level)
		}))
	}
	return out, nil
}

func (e *Enumerator) open(ex hal.ExposedAdapter, level gpu.FeatureLevel) (gpu.Device, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.transferred {
		return nil, fmt.Errorf("%s instance already owns an open device", e.label)
	}
	opened, err := ex.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		return nil, fmt.Errorf("open device: %w", err)
	}
	e.transferred = true
	return newDevice(e.instance, opened, level, ex.Info.Name), nil
}

// Close destroys the hal instance if no device took ownership of it.
func (e *Enumerator) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.instance != nil && !e.transferred {
		e.instance.Destroy()
	}
	e.instance = nil
}
