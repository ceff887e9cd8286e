package sim

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-rt/engine/adapter"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
)

// Enumerator exposes a simulated discrete GPU and a software rasterizer. Opening the
// hardware adapter hands out dev; it can be opened once.
type Enumerator struct {
	dev Device

	mu     sync.Mutex
	opened bool
}

var _ adapter.Enumerator = &Enumerator{}

// NewEnumerator builds an enumerator whose hardware adapter opens dev.
//
// Parameters:
//   - dev: the simulated device to hand out
//
// Returns:
//   - *Enumerator: the enumerator
func NewEnumerator(dev Device) *Enumerator {
	return &Enumerator{dev: dev}
}

// EnumerateAdapters lists the software rasterizer first, then the hardware adapter.
func (e *Enumerator) EnumerateAdapters() ([]adapter.Adapter, error) {
	software := adapter.New(adapter.Desc{
		Description:  "Sim Software Rasterizer",
		DeviceType:   adapter.DeviceTypeCPU,
		Flags:        adapter.FlagSoftware,
		FeatureLevel: gpu.FeatureLevel12_1,
		Backend:      "sim",
	}, func(gpu.FeatureLevel) (gpu.Device, error) {
		return nil, fmt.Errorf("software rasterizer cannot be opened: %w", gpu.ErrUnsupported)
	})
	hardware := adapter.New(adapter.Desc{
		Description:  "Sim Discrete GPU",
		VendorID:     0x1414,
		DeviceID:     0x5a1,
		DeviceType:   adapter.DeviceTypeDiscrete,
		FeatureLevel: e.dev.FeatureLevel(),
		Backend:      "sim",
	}, e.open)
	return []adapter.Adapter{software, hardware}, nil
}

func (e *Enumerator) open(gpu.FeatureLevel) (gpu.Device, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.opened {
		return nil, fmt.Errorf("sim device already opened")
	}
	e.opened = true
	return e.dev, nil
}
