package device

import "github.com/Carmen-Shannon/oxy-rt/engine/gpu"

// ManagerBuilderOption is a functional option for configuring a Manager.
type ManagerBuilderOption func(*manager)

// WithFeatureLevel sets the feature level the adapter must support and the device is
// created at.
//
// Parameters:
//   - level: the feature level (default 12_1)
//
// Returns:
//   - ManagerBuilderOption: option function to apply
func WithFeatureLevel(level gpu.FeatureLevel) ManagerBuilderOption {
	return func(m *manager) {
		m.featureLevel = level
	}
}

// WithFormat sets the back buffer format.
//
// Parameters:
//   - format: the swapchain format (default R8G8B8A8_UNORM)
//
// Returns:
//   - ManagerBuilderOption: option function to apply
func WithFormat(format gpu.Format) ManagerBuilderOption {
	return func(m *manager) {
		m.format = format
	}
}

// WithVSync selects whether Present waits for vertical blank.
func WithVSync(enabled bool) ManagerBuilderOption {
	return func(m *manager) {
		if enabled {
			m.syncInterval = 1
		} else {
			m.syncInterval = 0
		}
	}
}

// WithConstantBuffer sizes each slot's per-object constant buffer.
//
// Parameters:
//   - objectSize: bytes one object writes, rounded up to 256
//   - count: regions per slot
//
// Returns:
//   - ManagerBuilderOption: option function to apply
func WithConstantBuffer(objectSize uint64, count int) ManagerBuilderOption {
	return func(m *manager) {
		m.objectSize = objectSize
		m.objectCount = count
	}
}
