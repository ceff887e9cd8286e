package sim

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
)

// queue runs submitted work in order on its own goroutine.
type queue struct {
	dev  *device
	name string

	mu     sync.Mutex
	closed bool
	work   chan func()
	done   chan struct{}
}

var _ gpu.CommandQueue = &queue{}

func newQueue(d *device, name string) *queue {
	q := &queue{
		dev:  d,
		name: name,
		work: make(chan func(), 64),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *queue) run() {
	defer close(q.done)
	for fn := range q.work {
		fn()
	}
}

// enqueue hands fn to the GPU goroutine. It fails once the queue has been released.
func (q *queue) enqueue(fn func()) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return gpu.ErrDeviceRemoved
	}
	q.work <- fn
	return nil
}

func (q *queue) ExecuteCommandLists(lists ...gpu.CommandList) error {
	if err := q.dev.check("ExecuteCommandLists"); err != nil {
		return err
	}
	for _, l := range lists {
		cl, ok := l.(*commandList)
		if !ok {
			return fmt.Errorf("command list %T was not created by the sim device", l)
		}
		if cl.recording {
			return fmt.Errorf("%s: %w: list must be closed before execution", cl.name, gpu.ErrInvalidState)
		}
		if cl.err != nil {
			return fmt.Errorf("%s: list closed with error: %w", cl.name, cl.err)
		}
		cmds := cl.cmds
		cl.cmds = nil
		alloc := cl.alloc
		alloc.pending.Add(1)
		q.dev.submissions.Add(1)
		q.dev.journal.record(EventSubmit, cl.name, uint64(len(cmds)))

		latency := q.dev.latency
		name := cl.name
		if err := q.enqueue(func() {
			if latency > 0 {
				time.Sleep(latency)
			}
			for _, c := range cmds {
				c()
			}
			q.dev.journal.record(EventExecute, name, uint64(len(cmds)))
			alloc.pending.Add(-1)
		}); err != nil {
			alloc.pending.Add(-1)
			return err
		}
	}
	return nil
}

func (q *queue) Signal(f gpu.Fence, value uint64) error {
	sf, ok := f.(*fence)
	if !ok {
		return fmt.Errorf("fence %T was not created by the sim device", f)
	}
	return q.enqueue(func() {
		sf.signal(value)
	})
}

// Release stops accepting work and waits for queued work to finish.
func (q *queue) Release() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.work)
	q.mu.Unlock()
	<-q.done
	q.dev.journal.record(EventRelease, q.name, 0)
}

// fence is a monotonically increasing counter with channel-based waiters.
type fence struct {
	dev  *device
	name string

	mu        sync.Mutex
	completed uint64
	waiters   []fenceWaiter
}

type fenceWaiter struct {
	value uint64
	ch    chan struct{}
}

var _ gpu.Fence = &fence{}

func (f *fence) CompletedValue() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed
}

func (f *fence) Notify(value uint64) <-chan struct{} {
	f.dev.journal.record(EventWait, f.name, value)
	ch := make(chan struct{})
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completed >= value {
		close(ch)
		return ch
	}
	f.waiters = append(f.waiters, fenceWaiter{value: value, ch: ch})
	return ch
}

func (f *fence) signal(value uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if value > f.completed {
		f.completed = value
	}
	f.dev.journal.record(EventSignal, f.name, value)
	kept := f.waiters[:0]
	for _, w := range f.waiters {
		if f.completed >= w.value {
			close(w.ch)
			continue
		}
		kept = append(kept, w)
	}
	f.waiters = kept
}

func (f *fence) Release() {
	f.dev.journal.record(EventRelease, f.name, 0)
}

// allocator tracks how many submitted lists recorded against it are still executing.
type allocator struct {
	dev     *device
	name    string
	pending atomic.Int64
}

var _ gpu.CommandAllocator = &allocator{}

func (a *allocator) Reset() error {
	if n := a.pending.Load(); n > 0 {
		return fmt.Errorf("%s: %w: %d lists still executing", a.name, gpu.ErrAllocatorInUse, n)
	}
	return nil
}

func (a *allocator) Release() {
	a.dev.journal.record(EventRelease, a.name, 0)
}
