package camera

// Input is the movement requested during one tick.
type Input struct {
	Forward  bool
	Backward bool
	Left     bool
	Right    bool
	Up       bool
	Down     bool
	// Fast selects the fast movement speed (held Shift).
	Fast bool

	// MouseDX and MouseDY are the pointer movement in pixels since the last tick. They only
	// rotate the camera while Rotating (the right mouse button) is held.
	MouseDX  float32
	MouseDY  float32
	Rotating bool
}

// Moving reports whether any movement key is held.
func (in Input) Moving() bool {
	return in.Forward || in.Backward || in.Left || in.Right || in.Up || in.Down
}

// Controller turns per-tick input into camera movement.
type Controller interface {
	// Apply moves and rotates the camera.
	//
	// Parameters:
	//   - in: the keys and mouse movement of this tick
	//   - elapsedMillis: time since the previous tick, in milliseconds
	Apply(in Input, elapsedMillis float32)

	// Camera returns the controlled camera.
	Camera() Camera

	// Speed returns the normal and fast movement speeds in units per millisecond.
	Speed() (normal, fast float32)

	// Sensitivity returns the rotation in radians per pixel of mouse movement.
	Sensitivity() float32
}
