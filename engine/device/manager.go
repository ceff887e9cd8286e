// Package device owns the GPU device and the per-frame objects that keep FrameCount frames
// in flight: one back buffer, command allocator, fence and constant-buffer region per slot.
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-rt/engine/adapter"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
	"github.com/Carmen-Shannon/oxy-rt/engine/heap"
	"github.com/Carmen-Shannon/oxy-rt/engine/logger"
)

// FrameCount is the number of frames in flight.
const FrameCount = 3

// DepthClearValue is the value the depth buffer is cleared to every frame.
const DepthClearValue float32 = 1.0

var (
	// ErrNotInitialized is returned by frame operations before Initialize succeeds.
	ErrNotInitialized = errors.New("device: manager not initialized")
	// ErrShutdown is returned by every operation after Shutdown.
	ErrShutdown = errors.New("device: manager shut down")
)

// frameSlot is everything one in-flight frame owns.
type frameSlot struct {
	renderTarget gpu.Resource
	rtv          gpu.CPUDescriptorHandle
	allocator    gpu.CommandAllocator
	fence        gpu.Fence
	constants    *heap.ConstantBuffer

	// expected is the value the next wait on this slot blocks for.
	expected uint64
	// signaled is the last value a Signal was queued for.
	signaled uint64
}

type slotTable [FrameCount]frameSlot

func (t *slotTable) at(i uint32) (*frameSlot, error) {
	if i >= FrameCount {
		return nil, fmt.Errorf("frame slot %d out of range [0,%d)", i, FrameCount)
	}
	return &t[i], nil
}

// manager is the implementation of the Manager interface.
type manager struct {
	selector     adapter.Selector
	featureLevel gpu.FeatureLevel
	format       gpu.Format
	syncInterval uint32
	objectSize   uint64
	objectCount  int

	mu          sync.Mutex
	initialized bool
	shutdown    bool

	adapter   adapter.Adapter
	device    gpu.Device
	queue     gpu.CommandQueue
	swapChain gpu.SwapChain
	rtvHeap   gpu.DescriptorHeap
	dsvHeap   gpu.DescriptorHeap
	depth     gpu.Resource
	dsv       gpu.CPUDescriptorHandle
	list      gpu.CommandList
	slots     slotTable
	frame     uint32
	width     uint32
	height    uint32
}

// Manager owns the device, queue, swapchain, per-frame allocators and fences, and the
// shared command list.
type Manager interface {
	// Initialize selects an adapter and creates every device object. The command list is
	// left recording against slot 0's allocator so setup uploads can be recorded before
	// Flush. On failure everything created so far is released and the manager is unusable.
	//
	// Parameters:
	//   - ctx: checked before any object is created
	//   - window: the window the swapchain presents to; a zero Window runs headless
	//   - width, height: back buffer size in pixels
	//
	// Returns:
	//   - error: the wrapped creation error
	Initialize(ctx context.Context, window gpu.WindowHandle, width, height uint32) error

	// WaitForFrame moves to the swapchain's current back buffer and blocks until the GPU
	// has finished the work last submitted for that slot.
	WaitForFrame() error

	// Execute closes the command list, submits it and signals the current slot's fence.
	Execute() error

	// Flush executes the command list and waits for it to complete.
	Flush() error

	// Present flips the current back buffer to the screen.
	Present() error

	// WaitForIdle blocks until every slot's last submission has completed.
	WaitForIdle() error

	// Shutdown waits on every slot's fence in slot order, then releases every object with
	// the device last. Calling it again does nothing.
	Shutdown()

	Adapter() adapter.Adapter
	Device() gpu.Device
	Queue() gpu.CommandQueue
	SwapChain() gpu.SwapChain
	CommandList() gpu.CommandList

	// FrameIndex is the slot selected by the last WaitForFrame.
	FrameIndex() uint32

	// Allocator is the command allocator of the current slot.
	Allocator() gpu.CommandAllocator

	// RenderTarget is the back buffer of the current slot.
	RenderTarget() gpu.Resource

	// RTV is the render-target view of the current slot.
	RTV() gpu.CPUDescriptorHandle

	// DSV is the depth-stencil view of the shared depth buffer.
	DSV() gpu.CPUDescriptorHandle

	// DepthBuffer is the shared depth buffer. It stays in DEPTH_WRITE.
	DepthBuffer() gpu.Resource

	// ConstantBuffer is the per-object constant buffer of the current slot.
	ConstantBuffer() *heap.ConstantBuffer

	Format() gpu.Format
	Size() (uint32, uint32)

	// CompletedValue is the completed value of slot i's fence.
	CompletedValue(slot uint32) (uint64, error)

	// ExpectedValue is the value slot i's next wait blocks for.
	ExpectedValue(slot uint32) (uint64, error)
}

var _ Manager = &manager{}

// NewManager creates a Manager that opens its device on the adapter selector picks.
//
// Parameters:
//   - selector: chooses the adapter during Initialize
//   - options: functional options for manager configuration
//
// Returns:
//   - Manager: the uninitialized manager
func NewManager(selector adapter.Selector, options ...ManagerBuilderOption) Manager {
	m := &manager{
		selector:     selector,
		featureLevel: gpu.FeatureLevel12_1,
		format:       gpu.FormatR8G8B8A8Unorm,
		syncInterval: 1,
		objectSize:   256,
		objectCount:  64,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

func (m *manager) Initialize(ctx context.Context, window gpu.WindowHandle, width, height uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shutdown {
		return ErrShutdown
	}
	if m.initialized {
		return fmt.Errorf("device manager already initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.create(window, width, height); err != nil {
		m.release()
		m.shutdown = true
		return err
	}
	m.initialized = true
	logger.Logger().Info("device initialized",
		"adapter", m.adapter.Desc().Description,
		"backend", m.adapter.Desc().Backend,
		"width", width,
		"height", height,
		"frames", FrameCount,
	)
	return nil
}

// create builds every object in dependency order. Callers hold mu and release on error.
func (m *manager) create(window gpu.WindowHandle, width, height uint32) error {
	a, err := m.selector.Select(m.featureLevel)
	if err != nil {
		return fmt.Errorf("failed to select adapter: %w", err)
	}
	m.adapter = a
	m.device, err = a.CreateDevice(m.featureLevel)
	if err != nil {
		return fmt.Errorf("failed to create device on %q: %w", a.Desc().Description, err)
	}
	m.queue, err = m.device.CreateCommandQueue()
	if err != nil {
		return fmt.Errorf("failed to create command queue: %w", err)
	}
	m.width, m.height = width, height
	m.swapChain, err = m.device.CreateSwapChain(m.queue, window, gpu.SwapChainDesc{
		Width:        width,
		Height:       height,
		Format:       m.format,
		BufferCount:  FrameCount,
		SyncInterval: m.syncInterval,
	})
	if err != nil {
		return fmt.Errorf("failed to create swapchain: %w", err)
	}

	m.rtvHeap, err = m.device.CreateDescriptorHeap(gpu.DescriptorHeapDesc{
		Label:          "rtv",
		Type:           gpu.DescriptorHeapTypeRTV,
		NumDescriptors: FrameCount,
	})
	if err != nil {
		return fmt.Errorf("failed to create RTV heap: %w", err)
	}
	increment := m.device.DescriptorHandleIncrementSize(gpu.DescriptorHeapTypeRTV)
	for i := range m.slots {
		slot := &m.slots[i]
		slot.renderTarget, err = m.swapChain.Buffer(uint32(i))
		if err != nil {
			return fmt.Errorf("failed to get back buffer %d: %w", i, err)
		}
		slot.rtv = m.rtvHeap.CPUHandleForHeapStart().Offset(i, increment)
		err = m.device.CreateView(gpu.ViewDesc{Kind: gpu.ViewKindRTV, Resource: slot.renderTarget, Format: m.format}, slot.rtv)
		if err != nil {
			return fmt.Errorf("failed to create RTV %d: %w", i, err)
		}
	}

	m.depth, err = m.device.CreateCommittedResource(gpu.HeapTypeDefault,
		gpu.Texture2DDesc("depth", width, height, gpu.FormatD32Float, gpu.ResourceFlagAllowDepthStencil),
		gpu.ResourceStateDepthWrite)
	if err != nil {
		return fmt.Errorf("failed to create depth buffer: %w", err)
	}
	m.dsvHeap, err = m.device.CreateDescriptorHeap(gpu.DescriptorHeapDesc{
		Label:          "dsv",
		Type:           gpu.DescriptorHeapTypeDSV,
		NumDescriptors: 1,
	})
	if err != nil {
		return fmt.Errorf("failed to create DSV heap: %w", err)
	}
	m.dsv = m.dsvHeap.CPUHandleForHeapStart()
	err = m.device.CreateView(gpu.ViewDesc{Kind: gpu.ViewKindDSV, Resource: m.depth, Format: gpu.FormatD32Float}, m.dsv)
	if err != nil {
		return fmt.Errorf("failed to create DSV: %w", err)
	}

	for i := range m.slots {
		slot := &m.slots[i]
		slot.allocator, err = m.device.CreateCommandAllocator()
		if err != nil {
			return fmt.Errorf("failed to create command allocator %d: %w", i, err)
		}
		slot.fence, err = m.device.CreateFence(0)
		if err != nil {
			return fmt.Errorf("failed to create fence %d: %w", i, err)
		}
		slot.constants, err = heap.NewConstantBuffer(m.device, fmt.Sprintf("constants%d", i), m.objectSize, m.objectCount)
		if err != nil {
			return fmt.Errorf("failed to create constant buffer %d: %w", i, err)
		}
	}

	m.list, err = m.device.CreateCommandList(m.slots[0].allocator, nil)
	if err != nil {
		return fmt.Errorf("failed to create command list: %w", err)
	}
	return nil
}

// ready reports whether frame operations may run. Callers hold mu.
func (m *manager) ready() error {
	if m.shutdown {
		return ErrShutdown
	}
	if !m.initialized {
		return ErrNotInitialized
	}
	return nil
}

func (m *manager) WaitForFrame() error {
	m.mu.Lock()
	if err := m.ready(); err != nil {
		m.mu.Unlock()
		return err
	}
	m.frame = m.swapChain.CurrentBackBufferIndex()
	slot, err := m.slots.at(m.frame)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	fence, expected := slot.fence, slot.expected
	m.mu.Unlock()

	if fence.CompletedValue() < expected {
		<-fence.Notify(expected)
	}

	m.mu.Lock()
	slot.expected++
	m.mu.Unlock()
	return nil
}

func (m *manager) Execute() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ready(); err != nil {
		return err
	}
	return m.execute()
}

// execute submits the list and signals the current slot. Callers hold mu.
func (m *manager) execute() error {
	slot, err := m.slots.at(m.frame)
	if err != nil {
		return err
	}
	if err := m.list.Close(); err != nil {
		return fmt.Errorf("failed to close command list: %w", err)
	}
	if err := m.queue.ExecuteCommandLists(m.list); err != nil {
		return fmt.Errorf("failed to execute command list: %w", err)
	}
	if err := m.queue.Signal(slot.fence, slot.expected); err != nil {
		return fmt.Errorf("failed to signal fence %d: %w", m.frame, err)
	}
	slot.signaled = slot.expected
	return nil
}

func (m *manager) Flush() error {
	m.mu.Lock()
	if err := m.ready(); err != nil {
		m.mu.Unlock()
		return err
	}
	slot, err := m.slots.at(m.frame)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	slot.expected++
	if err := m.execute(); err != nil {
		m.mu.Unlock()
		return err
	}
	fence, value := slot.fence, slot.signaled
	m.mu.Unlock()

	<-fence.Notify(value)
	return nil
}

func (m *manager) Present() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ready(); err != nil {
		return err
	}
	if err := m.swapChain.Present(); err != nil {
		return fmt.Errorf("failed to present: %w", err)
	}
	return nil
}

func (m *manager) WaitForIdle() error {
	m.mu.Lock()
	if err := m.ready(); err != nil {
		m.mu.Unlock()
		return err
	}
	fences := make([]gpu.Fence, len(m.slots))
	values := make([]uint64, len(m.slots))
	for i := range m.slots {
		fences[i], values[i] = m.slots[i].fence, m.slots[i].signaled
	}
	m.mu.Unlock()

	for i, f := range fences {
		<-f.Notify(values[i])
	}
	return nil
}

func (m *manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shutdown {
		return
	}
	m.shutdown = true
	m.release()
	logger.Logger().Info("device shut down")
}

// release drains every slot's fence in order, then frees objects with the device last.
// Callers hold mu.
func (m *manager) release() {
	for i := range m.slots {
		slot := &m.slots[i]
		if slot.fence == nil {
			continue
		}
		<-slot.fence.Notify(slot.signaled)
	}
	if m.list != nil {
		m.list.Release()
		m.list = nil
	}
	for i := range m.slots {
		slot := &m.slots[i]
		if slot.allocator != nil {
			slot.allocator.Release()
		}
		if slot.constants != nil {
			slot.constants.Release()
		}
	}
	if m.depth != nil {
		m.depth.Release()
	}
	for _, h := range []gpu.DescriptorHeap{m.dsvHeap, m.rtvHeap} {
		if h != nil {
			h.Release()
		}
	}
	for i := range m.slots {
		if f := m.slots[i].fence; f != nil {
			f.Release()
		}
		m.slots[i] = frameSlot{}
	}
	if m.swapChain != nil {
		m.swapChain.Release()
	}
	if m.queue != nil {
		m.queue.Release()
	}
	if m.device != nil {
		m.device.Release()
	}
	m.depth, m.dsvHeap, m.rtvHeap, m.swapChain, m.queue, m.device = nil, nil, nil, nil, nil, nil
}

func (m *manager) Adapter() adapter.Adapter {
	return m.adapter
}

func (m *manager) Device() gpu.Device {
	return m.device
}

func (m *manager) Queue() gpu.CommandQueue {
	return m.queue
}

func (m *manager) SwapChain() gpu.SwapChain {
	return m.swapChain
}

func (m *manager) CommandList() gpu.CommandList {
	return m.list
}

func (m *manager) FrameIndex() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frame
}

func (m *manager) current() *frameSlot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &m.slots[m.frame%FrameCount]
}

func (m *manager) Allocator() gpu.CommandAllocator {
	return m.current().allocator
}

func (m *manager) RenderTarget() gpu.Resource {
	return m.current().renderTarget
}

func (m *manager) RTV() gpu.CPUDescriptorHandle {
	return m.current().rtv
}

func (m *manager) DSV() gpu.CPUDescriptorHandle {
	return m.dsv
}

func (m *manager) DepthBuffer() gpu.Resource {
	return m.depth
}

func (m *manager) ConstantBuffer() *heap.ConstantBuffer {
	return m.current().constants
}

func (m *manager) Format() gpu.Format {
	return m.format
}

func (m *manager) Size() (uint32, uint32) {
	return m.width, m.height
}

func (m *manager) CompletedValue(i uint32) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, err := m.slots.at(i)
	if err != nil {
		return 0, err
	}
	if slot.fence == nil {
		return 0, ErrNotInitialized
	}
	return slot.fence.CompletedValue(), nil
}

func (m *manager) ExpectedValue(i uint32) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, err := m.slots.at(i)
	if err != nil {
		return 0, err
	}
	return slot.expected, nil
}
