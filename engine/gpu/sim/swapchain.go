package sim

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
)

// swapChain owns BufferCount render-target textures and flips between them on Present.
type swapChain struct {
	dev     *device
	queue   *queue
	desc    gpu.SwapChainDesc
	buffers []*resource

	mu      sync.Mutex
	current uint32
}

var _ gpu.SwapChain = &swapChain{}

func (d *device) CreateSwapChain(q gpu.CommandQueue, window gpu.WindowHandle, desc gpu.SwapChainDesc) (gpu.SwapChain, error) {
	if err := d.check("CreateSwapChain"); err != nil {
		return nil, err
	}
	sq, ok := q.(*queue)
	if !ok {
		return nil, fmt.Errorf("queue %T was not created by the sim device", q)
	}
	if desc.BufferCount < 2 {
		return nil, fmt.Errorf("swapchain needs at least 2 buffers, got %d", desc.BufferCount)
	}
	if _, ok := pixel(desc.Format, [4]float32{}); !ok {
		return nil, fmt.Errorf("swapchain format %s not supported", desc.Format)
	}
	sc := &swapChain{dev: d, queue: sq, desc: desc}
	for i := uint32(0); i < desc.BufferCount; i++ {
		label := fmt.Sprintf("backbuffer%d", i)
		r, err := d.CreateCommittedResource(gpu.HeapTypeDefault,
			gpu.Texture2DDesc(label, desc.Width, desc.Height, desc.Format, gpu.ResourceFlagAllowRenderTarget),
			gpu.ResourceStatePresent)
		if err != nil {
			for _, b := range sc.buffers {
				b.Release()
			}
			return nil, fmt.Errorf("failed to create back buffer %d: %w", i, err)
		}
		sc.buffers = append(sc.buffers, r.(*resource))
	}
	return sc, nil
}

func (s *swapChain) Desc() gpu.SwapChainDesc {
	return s.desc
}

func (s *swapChain) Buffer(i uint32) (gpu.Resource, error) {
	if int(i) >= len(s.buffers) {
		return nil, fmt.Errorf("back buffer %d out of range (%d)", i, len(s.buffers))
	}
	return s.buffers[i], nil
}

func (s *swapChain) CurrentBackBufferIndex() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *swapChain) Present() error {
	if err := s.dev.check("Present"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := s.buffers[s.current]
	if buf.state != gpu.ResourceStatePresent {
		return fmt.Errorf("%q: %w: presented in %s", buf.desc.Label, gpu.ErrInvalidState, buf.state)
	}
	index := uint64(s.current)
	if err := s.queue.enqueue(func() {
		s.dev.presents.Add(1)
		s.dev.journal.record(EventPresent, buf.desc.Label, index)
	}); err != nil {
		return err
	}
	s.current = (s.current + 1) % uint32(len(s.buffers))
	return nil
}

// Release frees the back buffers. The swapchain does not own its queue.
func (s *swapChain) Release() {
	for _, b := range s.buffers {
		b.Release()
	}
	s.buffers = nil
	s.dev.journal.record(EventRelease, "swapchain", 0)
}
