package camera

// ControllerBuilderOption is a functional option for configuring a Controller.
type ControllerBuilderOption func(*controllerImpl)

// WithSpeed sets the movement speeds.
//
// Parameters:
//   - normal: units per millisecond without Shift
//   - fast: units per millisecond with Shift held
//
// Returns:
//   - ControllerBuilderOption: functional option to set the speeds
func WithSpeed(normal, fast float32) ControllerBuilderOption {
	return func(cc *controllerImpl) {
		cc.speed = normal
		cc.fastSpeed = fast
	}
}

// WithSensitivity sets the mouse rotation sensitivity.
//
// Parameters:
//   - radiansPerPixel: rotation per pixel of mouse movement
//
// Returns:
//   - ControllerBuilderOption: functional option to set the sensitivity
func WithSensitivity(radiansPerPixel float32) ControllerBuilderOption {
	return func(cc *controllerImpl) {
		cc.sensitivity = radiansPerPixel
	}
}
