// Package adapter enumerates GPU adapters, filters out software rasterizers, and picks
// the adapter the engine creates its device on.
package adapter

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
)

// ErrFeatureLevel is returned when a device is requested above an adapter's feature level.
var ErrFeatureLevel = errors.New("adapter: requested feature level not supported")

// Flags are capability flags reported for an adapter.
type Flags uint32

const (
	FlagNone Flags = 0
	// FlagSoftware marks a CPU rasterizer (WARP, llvmpipe, the gogpu software backend).
	FlagSoftware Flags = 1 << 0
	// FlagRemote marks an adapter exposed through a remote session.
	FlagRemote Flags = 1 << 1
)

// DeviceType classifies the physical device behind an adapter.
type DeviceType uint8

const (
	DeviceTypeOther DeviceType = iota
	DeviceTypeIntegrated
	DeviceTypeDiscrete
	DeviceTypeVirtual
	DeviceTypeCPU
)

func (t DeviceType) String() string {
	switch t {
	case DeviceTypeIntegrated:
		return "integrated"
	case DeviceTypeDiscrete:
		return "discrete"
	case DeviceTypeVirtual:
		return "virtual"
	case DeviceTypeCPU:
		return "cpu"
	}
	return "other"
}

// Desc describes an enumerated adapter.
type Desc struct {
	Description  string
	VendorID     uint32
	DeviceID     uint32
	DeviceType   DeviceType
	Flags        Flags
	FeatureLevel gpu.FeatureLevel
	Backend      string
}

// OpenFunc creates a device on an adapter at the requested feature level.
type OpenFunc func(level gpu.FeatureLevel) (gpu.Device, error)

// Adapter is one physical or virtual GPU.
type Adapter struct {
	desc Desc
	open OpenFunc
}

// New builds an Adapter from its description and a device factory.
//
// Parameters:
//   - desc: the adapter description
//   - open: creates a device on this adapter
//
// Returns:
//   - Adapter: the adapter value
func New(desc Desc, open OpenFunc) Adapter {
	return Adapter{desc: desc, open: open}
}

// Desc returns the adapter description.
func (a Adapter) Desc() Desc {
	return a.desc
}

// IsSoftware reports whether the adapter is a CPU rasterizer.
func (a Adapter) IsSoftware() bool {
	return a.desc.Flags&FlagSoftware != 0 || a.desc.DeviceType == DeviceTypeCPU
}

// CreateDevice opens a device on the adapter.
//
// Parameters:
//   - level: the feature level to create the device at
//
// Returns:
//   - gpu.Device: the new device
//   - error: ErrFeatureLevel if the adapter cannot reach level, or the backend's error
func (a Adapter) CreateDevice(level gpu.FeatureLevel) (gpu.Device, error) {
	if level > a.desc.FeatureLevel {
		return nil, fmt.Errorf("%w: %s supports %s, requested %s", ErrFeatureLevel, a.desc.Description, a.desc.FeatureLevel, level)
	}
	if a.open == nil {
		return nil, fmt.Errorf("adapter %q has no device factory", a.desc.Description)
	}
	dev, err := a.open(level)
	if err != nil {
		return nil, fmt.Errorf("failed to create device on %q: %w", a.desc.Description, err)
	}
	return dev, nil
}

// Enumerator lists the adapters a backend exposes.
type Enumerator interface {
	EnumerateAdapters() ([]Adapter, error)
}

// EnumeratorFunc adapts a plain function to the Enumerator interface.
type EnumeratorFunc func() ([]Adapter, error)

// EnumerateAdapters calls f.
func (f EnumeratorFunc) EnumerateAdapters() ([]Adapter, error) {
	return f()
}

// EnumerationError is returned when no adapter qualifies.
type EnumerationError struct {
	// MinimumLevel is the feature level adapters were filtered against.
	MinimumLevel gpu.FeatureLevel
	// Considered is the number of adapters the backend reported.
	Considered int
	// Err is the backend's enumeration error, if enumeration itself failed.
	Err error
}

func (e *EnumerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("adapter: enumeration failed: %v", e.Err)
	}
	return fmt.Sprintf("adapter: no hardware adapter supports feature level %s (%d considered)", e.MinimumLevel, e.Considered)
}

func (e *EnumerationError) Unwrap() error {
	return e.Err
}
