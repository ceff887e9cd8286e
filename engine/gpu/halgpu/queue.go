package halgpu

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/wgpu/hal"

	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
)

// fencePollInterval is how often Notify waiters poll the queue for completed submissions.
const fencePollInterval = time.Millisecond

type queue struct {
	dev *device
}

var _ gpu.CommandQueue = &queue{}

func (q *queue) ExecuteCommandLists(lists ...gpu.CommandList) error {
	if err := q.dev.check(); err != nil {
		return err
	}
	buffers := make([]hal.CommandBuffer, 0, len(lists))
	for _, l := range lists {
		cl, ok := l.(*commandList)
		if !ok {
			return fmt.Errorf("command list %T was not created by this device", l)
		}
		if cl.recording || cl.err != nil || cl.cmdBuf == nil {
			return fmt.Errorf("command list must be closed without errors before execution")
		}
		buffers = append(buffers, cl.cmdBuf)
	}
	if err := q.dev.flushUploads(); err != nil {
		return err
	}
	index, err := q.dev.queue.Submit(buffers)
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	q.dev.mu.Lock()
	q.dev.submitted = index
	q.dev.mu.Unlock()
	for _, l := range lists {
		cl := l.(*commandList)
		cl.alloc.retain(cl.encoder, cl.cmdBuf, cl.transient)
		cl.encoder = nil
		cl.cmdBuf = nil
		cl.transient = nil
	}
	return nil
}

// Signal ties value to the last submission: the fence reaches value once the queue
// reports that submission complete.
func (q *queue) Signal(f gpu.Fence, value uint64) error {
	if err := q.dev.check(); err != nil {
		return err
	}
	hf, ok := f.(*fence)
	if !ok {
		return fmt.Errorf("fence %T was not created by this device", f)
	}
	q.dev.mu.Lock()
	index := q.dev.submitted
	q.dev.mu.Unlock()
	hf.mu.Lock()
	defer hf.mu.Unlock()
	hf.poll()
	last := hf.completed
	if n := len(hf.pending); n > 0 {
		last = hf.pending[n-1].value
	}
	if value <= last {
		return fmt.Errorf("fence value %d is not above the last signaled value %d", value, last)
	}
	hf.pending = append(hf.pending, pendingSignal{value: value, index: index})
	return nil
}

func (q *queue) Release() {}

type pendingSignal struct {
	value uint64
	index uint64
}

// fence maps signaled values onto hal submission indices.
type fence struct {
	dev *device

	mu        sync.Mutex
	completed uint64
	pending   []pendingSignal
	released  bool
}

var _ gpu.Fence = &fence{}

func (f *fence) CompletedValue() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.poll()
	return f.completed
}

// poll retires every pending value whose submission the queue has completed. Callers hold mu.
func (f *fence) poll() {
	if len(f.pending) == 0 {
		return
	}
	done := f.dev.queue.PollCompleted()
	for len(f.pending) > 0 && f.pending[0].index <= done {
		f.completed = f.pending[0].value
		f.pending = f.pending[1:]
	}
}

func (f *fence) Notify(value uint64) <-chan struct{} {
	ch := make(chan struct{})
	if f.reached(value) {
		close(ch)
		return ch
	}
	go func() {
		defer close(ch)
		ticker := time.NewTicker(fencePollInterval)
		defer ticker.Stop()
		for range ticker.C {
			if f.reached(value) {
				return
			}
		}
	}()
	return ch
}

func (f *fence) reached(value uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.poll()
	return f.completed >= value || f.released
}

func (f *fence) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = true
}

// allocator owns the encoders, command buffers and per-list bind groups submitted
// against it until the next Reset.
type allocator struct {
	dev *device

	mu        sync.Mutex
	encoders  []hal.CommandEncoder
	buffers   []hal.CommandBuffer
	transient []hal.BindGroup
}

var _ gpu.CommandAllocator = &allocator{}

func (a *allocator) retain(enc hal.CommandEncoder, cb hal.CommandBuffer, groups []hal.BindGroup) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.encoders = append(a.encoders, enc)
	a.buffers = append(a.buffers, cb)
	a.transient = append(a.transient, groups...)
}

// Reset frees what the allocator retained. The caller guarantees the GPU is done with it.
func (a *allocator) Reset() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, cb := range a.buffers {
		a.dev.dev.FreeCommandBuffer(cb)
	}
	for _, enc := range a.encoders {
		enc.Destroy()
	}
	for _, bg := range a.transient {
		a.dev.dev.DestroyBindGroup(bg)
	}
	a.encoders = a.encoders[:0]
	a.buffers = a.buffers[:0]
	a.transient = a.transient[:0]
	return nil
}

func (a *allocator) Release() {
	_ = a.Reset()
}
