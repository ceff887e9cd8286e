package camera

import (
	"sync"

	"github.com/chewxy/math32"

	"github.com/Carmen-Shannon/oxy-rt/common"
)

// DefaultPosition is where a new camera starts, five units behind the origin.
var DefaultPosition = [3]float32{0, 0, -5}

type cameraImpl struct {
	mu *sync.Mutex

	// position is world space. rotation holds pitch, yaw and roll in radians.
	position [3]float32
	rotation [3]float32

	fov    float32
	aspect float32
	near   float32
	far    float32

	viewMatrix           common.Mat4
	projectionMatrix     common.Mat4
	viewProjectionMatrix common.Mat4
}

// Camera is a free-fly camera with a left-handed perspective projection.
// Matrices are recomputed whenever the position, rotation or projection changes.
type Camera interface {
	// Position returns the camera's world-space position.
	//
	// Returns:
	//   - [3]float32: x, y, z
	Position() [3]float32

	// Rotation returns pitch, yaw and roll in radians.
	//
	// Returns:
	//   - [3]float32: pitch, yaw, roll
	Rotation() [3]float32

	// SetPosition moves the camera to (x, y, z).
	SetPosition(x, y, z float32)

	// AdjustPosition offsets the position by (dx, dy, dz).
	AdjustPosition(dx, dy, dz float32)

	// SetRotation sets pitch, yaw and roll in radians.
	SetRotation(pitch, yaw, roll float32)

	// AdjustRotation adds to pitch, yaw and roll. Pitch is clamped just short of straight
	// up and down.
	AdjustRotation(dPitch, dYaw, dRoll float32)

	// Forward is the horizontal direction the camera faces, derived from yaw only.
	//
	// Returns:
	//   - [3]float32: a unit vector in the XZ plane
	Forward() [3]float32

	// Right is the horizontal direction to the camera's right, derived from yaw only.
	//
	// Returns:
	//   - [3]float32: a unit vector in the XZ plane
	Right() [3]float32

	// SetProjection sets the perspective parameters.
	//
	// Parameters:
	//   - fovDegrees: vertical field of view in degrees
	//   - aspect: width / height
	//   - near, far: clip plane distances
	SetProjection(fovDegrees, aspect, near, far float32)

	// Fov returns the vertical field of view in radians.
	Fov() float32
	Aspect() float32
	Near() float32
	Far() float32

	ViewMatrix() common.Mat4
	ProjectionMatrix() common.Mat4

	// ViewProjectionMatrix is projection * view, for column vectors.
	ViewProjectionMatrix() common.Mat4
}

var _ Camera = &cameraImpl{}

// NewCamera creates a Camera at DefaultPosition looking down +Z with a 45 degree
// field of view.
//
// Parameters:
//   - options: functional options to configure the camera
//
// Returns:
//   - Camera: the newly created camera
func NewCamera(options ...CameraBuilderOption) Camera {
	c := &cameraImpl{
		mu:       &sync.Mutex{},
		position: DefaultPosition,
		fov:      45 * math32.Pi / 180,
		aspect:   1,
		near:     0.1,
		far:      1000,
	}
	for _, option := range options {
		option(c)
	}
	c.updateMatrices()
	return c
}

func (c *cameraImpl) Position() [3]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

func (c *cameraImpl) Rotation() [3]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rotation
}

func (c *cameraImpl) SetPosition(x, y, z float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.position = [3]float32{x, y, z}
	c.updateMatrices()
}

func (c *cameraImpl) AdjustPosition(dx, dy, dz float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.position[0] += dx
	c.position[1] += dy
	c.position[2] += dz
	c.updateMatrices()
}

func (c *cameraImpl) SetRotation(pitch, yaw, roll float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rotation = [3]float32{clampPitch(pitch), yaw, roll}
	c.updateMatrices()
}

func (c *cameraImpl) AdjustRotation(dPitch, dYaw, dRoll float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rotation[0] = clampPitch(c.rotation[0] + dPitch)
	c.rotation[1] += dYaw
	c.rotation[2] += dRoll
	c.updateMatrices()
}

func (c *cameraImpl) Forward() [3]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, co := math32.Sincos(c.rotation[1])
	return [3]float32{s, 0, co}
}

func (c *cameraImpl) Right() [3]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, co := math32.Sincos(c.rotation[1])
	return [3]float32{co, 0, -s}
}

func (c *cameraImpl) SetProjection(fovDegrees, aspect, near, far float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fov = fovDegrees * math32.Pi / 180
	c.aspect = aspect
	c.near = near
	c.far = far
	c.updateMatrices()
}

func (c *cameraImpl) Fov() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fov
}

func (c *cameraImpl) Aspect() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aspect
}

func (c *cameraImpl) Near() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.near
}

func (c *cameraImpl) Far() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.far
}

func (c *cameraImpl) ViewMatrix() common.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewMatrix
}

func (c *cameraImpl) ProjectionMatrix() common.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projectionMatrix
}

func (c *cameraImpl) ViewProjectionMatrix() common.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewProjectionMatrix
}

const maxPitch = math32.Pi/2 - 0.01

func clampPitch(p float32) float32 {
	return max(-maxPitch, min(maxPitch, p))
}

// updateMatrices recalculates the view, projection and view-projection matrices from the
// current position, rotation and projection parameters.
// Caller must hold the mutex.
func (c *cameraImpl) updateMatrices() {
	sp, cp := math32.Sincos(c.rotation[0])
	sy, cy := math32.Sincos(c.rotation[1])

	look := [3]float32{sy * cp, -sp, cy * cp}
	up := [3]float32{sy * sp, cp, cy * sp}
	target := [3]float32{
		c.position[0] + look[0],
		c.position[1] + look[1],
		c.position[2] + look[2],
	}

	c.viewMatrix = common.LookAt(c.position, target, up)
	c.projectionMatrix = common.Perspective(c.fov, c.aspect, c.near, c.far)
	c.viewProjectionMatrix = common.Mul4(c.projectionMatrix, c.viewMatrix)
}
