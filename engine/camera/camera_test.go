package camera

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
)

func TestNewCameraStartsBehindOrigin(t *testing.T) {
	c := NewCamera()
	assert.Equal(t, [3]float32{0, 0, -5}, c.Position())
	assert.InDelta(t, 45*math32.Pi/180, c.Fov(), 1e-6)

	// the origin is five units in front of the camera
	view := c.ViewMatrix()
	assert.InDelta(t, 5, view[14], 1e-5)
}

func TestForwardFollowsYaw(t *testing.T) {
	c := NewCamera()
	f := c.Forward()
	assert.InDelta(t, 0, f[0], 1e-6)
	assert.InDelta(t, 1, f[2], 1e-6)

	c.SetRotation(0.3, math32.Pi/2, 0)
	f = c.Forward()
	assert.InDelta(t, 1, f[0], 1e-6)
	assert.InDelta(t, 0, f[1], 1e-6)
	assert.InDelta(t, 0, f[2], 1e-6)
	r := c.Right()
	assert.InDelta(t, -1, r[2], 1e-6)
}

func TestPitchIsClamped(t *testing.T) {
	c := NewCamera()
	c.AdjustRotation(10, 0, 0)
	assert.Less(t, c.Rotation()[0], math32.Pi/2)
	c.AdjustRotation(-20, 0, 0)
	assert.Greater(t, c.Rotation()[0], -math32.Pi/2)
}

func TestControllerMovesBySpeedAndTime(t *testing.T) {
	c := NewCamera()
	ctrl := NewController(c)

	ctrl.Apply(Input{Forward: true}, 100)
	assert.InDelta(t, -4, c.Position()[2], 1e-5)

	ctrl.Apply(Input{Forward: true, Fast: true}, 10)
	assert.InDelta(t, -3, c.Position()[2], 1e-5)

	ctrl.Apply(Input{Up: true}, 50)
	assert.InDelta(t, 0.5, c.Position()[1], 1e-5)
	ctrl.Apply(Input{Down: true, Right: true}, 50)
	assert.InDelta(t, 0, c.Position()[1], 1e-5)
	assert.InDelta(t, 0.5, c.Position()[0], 1e-5)
}

func TestControllerRotatesOnlyWhileDragging(t *testing.T) {
	c := NewCamera()
	ctrl := NewController(c)

	ctrl.Apply(Input{MouseDX: 10, MouseDY: 5}, 16)
	assert.Equal(t, [3]float32{}, c.Rotation())

	ctrl.Apply(Input{MouseDX: 10, MouseDY: 5, Rotating: true}, 16)
	rot := c.Rotation()
	assert.InDelta(t, 0.05, rot[0], 1e-6)
	assert.InDelta(t, 0.1, rot[1], 1e-6)
}

func TestControllerOptions(t *testing.T) {
	ctrl := NewController(NewCamera(), WithSpeed(1, 2), WithSensitivity(0.5))
	normal, fast := ctrl.Speed()
	assert.Equal(t, float32(1), normal)
	assert.Equal(t, float32(2), fast)
	assert.Equal(t, float32(0.5), ctrl.Sensitivity())
}
