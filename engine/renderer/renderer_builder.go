package renderer

import (
	"time"

	"github.com/Carmen-Shannon/oxy-rt/engine/adapter"
	"github.com/Carmen-Shannon/oxy-rt/engine/loader"
	"github.com/Carmen-Shannon/oxy-rt/engine/profiler"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/shader"
)

// RendererBuilderOption is a functional option applied to a renderer during construction via NewRenderer.
type RendererBuilderOption func(*renderer)

// WithEnumerator replaces the adapter enumerator the backend type would create.
// Tests use it to hand the renderer a preconfigured simulated device.
//
// Parameters:
//   - e: the enumerator the device manager selects from
//
// Returns:
//   - RendererBuilderOption: a function that applies the enumerator option to a renderer
func WithEnumerator(e adapter.Enumerator) RendererBuilderOption {
	return func(r *renderer) {
		r.enumerator = e
	}
}

// WithHALBackend names the native API used by BackendTypeHAL.
//
// Parameters:
//   - name: "vulkan", "dx12", "metal" or "gles"
//
// Returns:
//   - RendererBuilderOption: a function that applies the backend option to a renderer
func WithHALBackend(name string) RendererBuilderOption {
	return func(r *renderer) {
		r.halBackend = name
	}
}

// WithPresentMode sets the surface present mode which controls how frames are delivered to the display.
//
// Parameters:
//   - mode: the PresentMode to use (VSync or Uncapped)
//
// Returns:
//   - RendererBuilderOption: a function that applies the present mode option to a renderer
func WithPresentMode(mode PresentMode) RendererBuilderOption {
	return func(r *renderer) {
		r.presentMode = mode
	}
}

// WithStartPath sets the path of the first frame. PathRaytrace falls back to PathRaster
// when the device cannot trace rays.
func WithStartPath(p Path) RendererBuilderOption {
	return func(r *renderer) {
		r.path = p
	}
}

// WithToggleCooldown sets the minimum time between two path switches.
//
// Parameters:
//   - d: the cooldown (default DefaultToggleCooldown)
//
// Returns:
//   - RendererBuilderOption: a function that applies the cooldown option to a renderer
func WithToggleCooldown(d time.Duration) RendererBuilderOption {
	return func(r *renderer) {
		r.cooldown = d
	}
}

// WithClock replaces time.Now for toggle debouncing.
func WithClock(now func() time.Time) RendererBuilderOption {
	return func(r *renderer) {
		r.clock = now
	}
}

// WithShaderLoader sets the loader the shaders are compiled from.
func WithShaderLoader(l shader.Loader) RendererBuilderOption {
	return func(r *renderer) {
		r.shaders = l
	}
}

// WithTexture sets the diffuse texture bound at t0. Without it a checker pattern is used.
//
// Parameters:
//   - pb: the decoded texture
//
// Returns:
//   - RendererBuilderOption: a function that applies the texture option to a renderer
func WithTexture(pb loader.PixelBuffer) RendererBuilderOption {
	return func(r *renderer) {
		r.texture = &pb
	}
}

// WithProfiler sets the profiler ticked once per presented frame. Without it nothing is profiled.
func WithProfiler(p *profiler.Profiler) RendererBuilderOption {
	return func(r *renderer) {
		r.profiler = p
	}
}
