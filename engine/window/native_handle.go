package window

import (
	"github.com/cogentcore/webgpu/wgpu"

	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
)

// nativeHandle flattens a wgpuglfw surface descriptor into the display and window handles
// the swapchain is created from. A nil descriptor gives the zero handle.
//
// Parameters:
//   - desc: the surface descriptor of a GLFW window
//
// Returns:
//   - gpu.WindowHandle: Display is the X11 display, Wayland display or HINSTANCE; Window is
//     the X11 window, Wayland surface, HWND or CAMetalLayer
func nativeHandle(desc *wgpu.SurfaceDescriptor) gpu.WindowHandle {
	switch {
	case desc == nil:
		return gpu.WindowHandle{}
	case desc.WindowsHWND != nil:
		return gpu.WindowHandle{Display: uintptr(desc.WindowsHWND.Hinstance), Window: uintptr(desc.WindowsHWND.Hwnd)}
	case desc.XlibWindow != nil:
		return gpu.WindowHandle{Display: uintptr(desc.XlibWindow.Display), Window: uintptr(desc.XlibWindow.Window)}
	case desc.WaylandSurface != nil:
		return gpu.WindowHandle{Display: uintptr(desc.WaylandSurface.Display), Window: uintptr(desc.WaylandSurface.Surface)}
	case desc.MetalLayer != nil:
		return gpu.WindowHandle{Window: uintptr(desc.MetalLayer.Layer)}
	}
	return gpu.WindowHandle{}
}
