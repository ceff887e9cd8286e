package window

import (
	"testing"
	"unsafe"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"

	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
)

func TestNativeHandle(t *testing.T) {
	var a, b int
	pa, pb := unsafe.Pointer(&a), unsafe.Pointer(&b)

	tests := []struct {
		name string
		desc *wgpu.SurfaceDescriptor
		want gpu.WindowHandle
	}{
		{"nil", nil, gpu.WindowHandle{}},
		{"empty", &wgpu.SurfaceDescriptor{}, gpu.WindowHandle{}},
		{"win32", &wgpu.SurfaceDescriptor{WindowsHWND: &wgpu.SurfaceDescriptorFromWindowsHWND{Hinstance: pa, Hwnd: pb}},
			gpu.WindowHandle{Display: uintptr(pa), Window: uintptr(pb)}},
		{"xlib", &wgpu.SurfaceDescriptor{XlibWindow: &wgpu.SurfaceDescriptorFromXlibWindow{Display: pa, Window: 42}},
			gpu.WindowHandle{Display: uintptr(pa), Window: 42}},
		{"wayland", &wgpu.SurfaceDescriptor{WaylandSurface: &wgpu.SurfaceDescriptorFromWaylandSurface{Display: pa, Surface: pb}},
			gpu.WindowHandle{Display: uintptr(pa), Window: uintptr(pb)}},
		{"metal", &wgpu.SurfaceDescriptor{MetalLayer: &wgpu.SurfaceDescriptorFromMetalLayer{Layer: pb}},
			gpu.WindowHandle{Window: uintptr(pb)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nativeHandle(tt.desc))
		})
	}
}
