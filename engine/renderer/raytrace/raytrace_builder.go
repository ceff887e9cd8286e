package raytrace

import "github.com/Carmen-Shannon/oxy-rt/engine/gpu"

// PipelineBuilderOption is a functional option used to configure the ray-tracing path during construction.
type PipelineBuilderOption func(*tracer)

// WithFormat sets the swapchain format the output image is derived from. The output uses
// the same format without its sRGB variant.
//
// Parameters:
//   - format: the swapchain format (default R8G8B8A8_UNORM)
//
// Returns:
//   - PipelineBuilderOption: a function that sets the format
func WithFormat(format gpu.Format) PipelineBuilderOption {
	return func(t *tracer) {
		t.format = format
	}
}

// WithAllowUpdate sets whether the top-level structure is built so it can be refit.
func WithAllowUpdate(enabled bool) PipelineBuilderOption {
	return func(t *tracer) {
		t.allowUpdate = enabled
	}
}

// WithRecursionDepth sets the maximum trace recursion depth of the state object.
//
// Parameters:
//   - depth: the recursion depth (default 1)
//
// Returns:
//   - PipelineBuilderOption: a function that sets the recursion depth
func WithRecursionDepth(depth uint32) PipelineBuilderOption {
	return func(t *tracer) {
		t.recursion = depth
	}
}
