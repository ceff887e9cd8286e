package halgpu

import (
	"fmt"
	"sync"

	"github.com/gogpu/wgpu/hal"

	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
	"github.com/Carmen-Shannon/oxy-rt/engine/logger"
)

// swapChain presents through a hal surface. Back buffers are proxies whose texture is
// the surface texture acquired for the current frame. Without a window handle the back
// buffers are plain offscreen textures and Present only rotates them.
type swapChain struct {
	dev     *device
	desc    gpu.SwapChainDesc
	surface hal.Surface
	buffers []*resource
	current uint32

	mu       sync.Mutex
	acquired hal.SurfaceTexture
	view     hal.TextureView
}

var _ gpu.SwapChain = &swapChain{}

func (d *device) CreateSwapChain(q gpu.CommandQueue, window gpu.WindowHandle, desc gpu.SwapChainDesc) (gpu.SwapChain, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	if _, ok := q.(*queue); !ok {
		return nil, fmt.Errorf("queue %T was not created by this device", q)
	}
	if desc.BufferCount == 0 || desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("invalid swapchain %dx%d with %d buffers", desc.Width, desc.Height, desc.BufferCount)
	}
	format, ok := textureFormat(desc.Format)
	if !ok {
		return nil, fmt.Errorf("unsupported swapchain format %s", desc.Format)
	}
	sc := &swapChain{dev: d, desc: desc}
	texDesc := gpu.Texture2DDesc("", desc.Width, desc.Height, desc.Format, gpu.ResourceFlagAllowRenderTarget)

	if window.Window == 0 {
		for i := uint32(0); i < desc.BufferCount; i++ {
			texDesc.Label = fmt.Sprintf("backbuffer%d", i)
			r, err := d.CreateCommittedResource(gpu.HeapTypeDefault, texDesc, gpu.ResourceStatePresent)
			if err != nil {
				sc.Release()
				return nil, err
			}
			sc.buffers = append(sc.buffers, r.(*resource))
		}
		logger.Logger().Info("headless swapchain created", "width", desc.Width, "height", desc.Height, "buffers", desc.BufferCount)
		return sc, nil
	}

	surface, err := d.instance.CreateSurface(window.Display, window.Window)
	if err != nil {
		return nil, fmt.Errorf("create surface: %w", err)
	}
	present := hal.PresentModeFifo
	if desc.SyncInterval == 0 {
		present = hal.PresentModeImmediate
	}
	err = surface.Configure(d.dev, &hal.SurfaceConfiguration{
		Width:       desc.Width,
		Height:      desc.Height,
		Format:      format,
		Usage:       textureUsage(gpu.ResourceFlagAllowRenderTarget),
		PresentMode: present,
		AlphaMode:   hal.CompositeAlphaModeOpaque,
	})
	if err != nil {
		surface.Destroy()
		return nil, fmt.Errorf("configure surface: %w", err)
	}
	sc.surface = surface
	for i := uint32(0); i < desc.BufferCount; i++ {
		texDesc.Label = fmt.Sprintf("backbuffer%d", i)
		sc.buffers = append(sc.buffers, &resource{dev: d, desc: texDesc, heap: gpu.HeapTypeDefault, state: gpu.ResourceStatePresent, proxy: sc})
	}
	logger.Logger().Info("surface swapchain created", "width", desc.Width, "height", desc.Height, "buffers", desc.BufferCount)
	return sc, nil
}

func (sc *swapChain) Desc() gpu.SwapChainDesc {
	return sc.desc
}

func (sc *swapChain) Buffer(i uint32) (gpu.Resource, error) {
	if i >= uint32(len(sc.buffers)) {
		return nil, fmt.Errorf("back buffer %d out of range (%d)", i, len(sc.buffers))
	}
	return sc.buffers[i], nil
}

func (sc *swapChain) CurrentBackBufferIndex() uint32 {
	return sc.current
}

// acquire fetches the surface texture for this frame on first use. Callers hold mu.
func (sc *swapChain) acquire() error {
	if sc.acquired != nil {
		return nil
	}
	at, err := sc.surface.AcquireTexture(nil)
	if err != nil {
		return fmt.Errorf("acquire surface texture: %w", err)
	}
	view, err := sc.dev.dev.CreateTextureView(at.Texture, &hal.TextureViewDescriptor{Label: "surface_view"})
	if err != nil {
		sc.surface.DiscardTexture(at.Texture)
		return fmt.Errorf("surface view: %w", err)
	}
	sc.acquired = at.Texture
	sc.view = view
	return nil
}

func (sc *swapChain) currentTexture() (hal.Texture, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if err := sc.acquire(); err != nil {
		return nil, err
	}
	return sc.acquired, nil
}

func (sc *swapChain) currentView() (hal.TextureView, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if err := sc.acquire(); err != nil {
		return nil, err
	}
	return sc.view, nil
}

func (sc *swapChain) Present() error {
	if err := sc.dev.check(); err != nil {
		return err
	}
	cur := sc.buffers[sc.current]
	if cur.state != gpu.ResourceStatePresent {
		return fmt.Errorf("%q: %w: presenting a back buffer in %s", cur.desc.Label, gpu.ErrInvalidState, cur.state)
	}
	if sc.surface != nil {
		sc.mu.Lock()
		tex, view := sc.acquired, sc.view
		sc.acquired, sc.view = nil, nil
		sc.mu.Unlock()
		if tex != nil {
			err := sc.dev.queue.Present(sc.surface, tex, nil)
			sc.dev.dev.DestroyTextureView(view)
			if err != nil {
				return fmt.Errorf("present: %w", err)
			}
		}
	}
	sc.current = (sc.current + 1) % uint32(len(sc.buffers))
	return nil
}

func (sc *swapChain) Release() {
	sc.mu.Lock()
	if sc.acquired != nil {
		sc.dev.dev.DestroyTextureView(sc.view)
		sc.surface.DiscardTexture(sc.acquired)
		sc.acquired, sc.view = nil, nil
	}
	sc.mu.Unlock()
	for _, b := range sc.buffers {
		b.Release()
	}
	sc.buffers = nil
	if sc.surface != nil {
		sc.surface.Unconfigure(sc.dev.dev)
		sc.surface.Destroy()
		sc.surface = nil
	}
}
