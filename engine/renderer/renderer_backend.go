package renderer

import (
	"fmt"

	// registers the native hal backends for BackendTypeHAL
	_ "github.com/gogpu/wgpu/hal/allbackends"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/adapter"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu/halgpu"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu/sim"
)

// RendererBackendType identifies the GPU implementation the Renderer opens its device on.
type RendererBackendType int

const (
	// BackendTypeSim selects the in-process simulated device. It supports ray tracing.
	BackendTypeSim RendererBackendType = iota

	// BackendTypeHAL selects a real GPU through the wgpu HAL. Ray tracing is unavailable
	// and the renderer stays on the raster path.
	BackendTypeHAL
)

func (b RendererBackendType) String() string {
	switch b {
	case BackendTypeSim:
		return "sim"
	case BackendTypeHAL:
		return "hal"
	}
	return fmt.Sprintf("RendererBackendType(%d)", int(b))
}

// ParseBackendType maps "sim" and "hal" to a RendererBackendType. Case and surrounding
// whitespace are ignored.
//
// Parameters:
//   - name: the backend name
//
// Returns:
//   - RendererBackendType: the backend
//   - bool: false if name is unknown
func ParseBackendType(name string) (RendererBackendType, bool) {
	switch common.NameOr(name, "") {
	case "sim":
		return BackendTypeSim, true
	case "hal":
		return BackendTypeHAL, true
	}
	return 0, false
}

// PresentMode controls how rendered frames are presented to the display surface.
type PresentMode int

const (
	// PresentModeVSync waits for the next vertical blank before presenting, capping frame rate
	// to the monitor's refresh rate. Eliminates tearing.
	PresentModeVSync PresentMode = iota

	// PresentModeUncapped presents frames immediately without waiting for vertical blank.
	// May cause screen tearing but provides the lowest latency.
	PresentModeUncapped
)

// newEnumerator builds the adapter enumerator for backendType. halBackend names the
// native API for BackendTypeHAL ("vulkan", "dx12", "metal", "gles"); empty picks vulkan.
func newEnumerator(backendType RendererBackendType, halBackend string) (adapter.Enumerator, error) {
	switch backendType {
	case BackendTypeSim:
		return sim.NewEnumerator(sim.NewDevice()), nil
	case BackendTypeHAL:
		halBackend = common.NameOr(halBackend, "vulkan")
		b, ok := halgpu.ParseBackend(halBackend)
		if !ok {
			return nil, fmt.Errorf("unknown hal backend %q", halBackend)
		}
		e, err := halgpu.NewEnumerator(b)
		if err != nil {
			return nil, err
		}
		return e, nil
	}
	return nil, fmt.Errorf("unknown renderer backend %s", backendType)
}
