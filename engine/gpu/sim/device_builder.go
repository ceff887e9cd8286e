package sim

import (
	"time"

	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
)

type DeviceBuilderOption func(*device)

// WithLatency delays the execution of every submitted command list.
//
// Parameters:
//   - latency: time the simulated GPU spends on each list before running it
//
// Returns:
//   - DeviceBuilderOption: a function that sets the GPU latency
func WithLatency(latency time.Duration) DeviceBuilderOption {
	return func(d *device) {
		d.latency = latency
	}
}

// WithRaytracingTier sets the ray-tracing tier the device reports.
//
// Parameters:
//   - tier: the tier, RaytracingTierNotSupported disables state objects and AS builds
//
// Returns:
//   - DeviceBuilderOption: a function that sets the ray-tracing tier
func WithRaytracingTier(tier gpu.RaytracingTier) DeviceBuilderOption {
	return func(d *device) {
		d.rtTier = tier
	}
}

// WithFeatureLevel sets the feature level the device reports.
//
// Parameters:
//   - level: the feature level
//
// Returns:
//   - DeviceBuilderOption: a function that sets the feature level
func WithFeatureLevel(level gpu.FeatureLevel) DeviceBuilderOption {
	return func(d *device) {
		d.featureLevel = level
	}
}

// WithMemoryLimit caps the bytes live committed resources may hold.
// Allocations past the cap fail with gpu.ErrOutOfMemory.
//
// Parameters:
//   - bytes: the cap, 0 for unlimited
//
// Returns:
//   - DeviceBuilderOption: a function that sets the memory limit
func WithMemoryLimit(bytes uint64) DeviceBuilderOption {
	return func(d *device) {
		d.memoryLimit = bytes
	}
}

// WithFailure makes a named operation fail with err.
//
// Operation names are the Device method names ("CreateCommandQueue", "CreateSwapChain",
// "CreateStateObject", ...), "CreateCommittedResource:<label>" for one resource,
// "ExecuteCommandLists" and "Present".
//
// Parameters:
//   - op: the operation name
//   - err: the error the operation returns
//
// Returns:
//   - DeviceBuilderOption: a function that registers the failure
func WithFailure(op string, err error) DeviceBuilderOption {
	return func(d *device) {
		d.failures[op] = err
	}
}
