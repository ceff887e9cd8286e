package adapter

import "github.com/Carmen-Shannon/oxy-rt/engine/gpu"

// SelectorBuilderOption is a functional option for configuring a Selector.
type SelectorBuilderOption func(*selector)

// WithMinimumFeatureLevel sets the feature level below which adapters are skipped.
//
// Parameters:
//   - level: the minimum feature level (default 11_0)
//
// Returns:
//   - SelectorBuilderOption: option function to apply
func WithMinimumFeatureLevel(level gpu.FeatureLevel) SelectorBuilderOption {
	return func(s *selector) {
		s.minimumLevel = level
	}
}
