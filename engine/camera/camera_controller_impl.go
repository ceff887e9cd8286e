package camera

import "sync"

// controllerImpl is the implementation of Controller. Horizontal movement follows the
// camera's yaw; E and Q move along world Y.
type controllerImpl struct {
	mu     *sync.Mutex
	camera Camera

	speed       float32
	fastSpeed   float32
	sensitivity float32
}

var _ Controller = &controllerImpl{}

// NewController creates a Controller for cam with a speed of 0.01 units per millisecond,
// 0.1 when fast, and a sensitivity of 0.01 radians per pixel.
//
// Parameters:
//   - cam: the camera to move
//   - options: functional options to configure the controller
//
// Returns:
//   - Controller: the newly created controller
func NewController(cam Camera, options ...ControllerBuilderOption) Controller {
	cc := &controllerImpl{
		mu:          &sync.Mutex{},
		camera:      cam,
		speed:       0.01,
		fastSpeed:   0.1,
		sensitivity: 0.01,
	}
	for _, option := range options {
		option(cc)
	}
	return cc
}

func (cc *controllerImpl) Apply(in Input, elapsedMillis float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	if in.Rotating && (in.MouseDX != 0 || in.MouseDY != 0) {
		cc.camera.AdjustRotation(in.MouseDY*cc.sensitivity, in.MouseDX*cc.sensitivity, 0)
	}
	if !in.Moving() {
		return
	}

	step := cc.speed
	if in.Fast {
		step = cc.fastSpeed
	}
	step *= elapsedMillis

	forward, right := cc.camera.Forward(), cc.camera.Right()
	var d [3]float32
	add := func(v [3]float32, scale float32) {
		d[0] += v[0] * scale
		d[1] += v[1] * scale
		d[2] += v[2] * scale
	}
	if in.Forward {
		add(forward, step)
	}
	if in.Backward {
		add(forward, -step)
	}
	if in.Right {
		add(right, step)
	}
	if in.Left {
		add(right, -step)
	}
	if in.Up {
		d[1] += step
	}
	if in.Down {
		d[1] -= step
	}
	cc.camera.AdjustPosition(d[0], d[1], d[2])
}

func (cc *controllerImpl) Camera() Camera {
	return cc.camera
}

func (cc *controllerImpl) Speed() (normal, fast float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.speed, cc.fastSpeed
}

func (cc *controllerImpl) Sensitivity() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.sensitivity
}
