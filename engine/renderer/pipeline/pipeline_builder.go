package pipeline

import "github.com/Carmen-Shannon/oxy-rt/engine/gpu"

// PipelineBuilderOption is a functional option used to configure a Pipeline during construction.
type PipelineBuilderOption func(*pipeline)

// WithRenderTargetFormat sets the format of the single render target.
//
// Parameters:
//   - format: the render target format (default R8G8B8A8_UNORM)
//
// Returns:
//   - PipelineBuilderOption: a function that sets the render target format
func WithRenderTargetFormat(format gpu.Format) PipelineBuilderOption {
	return func(p *pipeline) {
		p.rtvFormat = format
	}
}

// WithDepthTestEnabled sets whether depth testing is enabled for this pipeline.
//
// Parameters:
//   - enabled: a boolean indicating whether depth testing should be enabled
//
// Returns:
//   - PipelineBuilderOption: a function that sets the depth test enabled state for this pipeline
func WithDepthTestEnabled(enabled bool) PipelineBuilderOption {
	return func(p *pipeline) {
		p.depthTest = enabled
	}
}

// WithCullBack enables back-face culling. The default rasterizer state culls nothing.
func WithCullBack(enabled bool) PipelineBuilderOption {
	return func(p *pipeline) {
		p.cullBack = enabled
	}
}

// WithBlendEnabled sets whether alpha blending is enabled for this pipeline.
//
// Parameters:
//   - enabled: a boolean indicating whether blending should be enabled
//
// Returns:
//   - PipelineBuilderOption: a function that sets the blend enabled state for this pipeline
func WithBlendEnabled(enabled bool) PipelineBuilderOption {
	return func(p *pipeline) {
		p.blend = enabled
	}
}

// WithLabel sets the debug name of the root signature and pipeline state.
func WithLabel(label string) PipelineBuilderOption {
	return func(p *pipeline) {
		p.label = label
	}
}
