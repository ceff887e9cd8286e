// Package common contains small value types and helpers shared across the engine. They are plain
// structs and functions rather than interface-wrapped implementations.
package common

// Transform describes an object's placement in world space.
// Rotation holds Euler angles in radians applied in Y * X * Z order.
type Transform struct {
	Position [3]float32
	Rotation [3]float32
	Scale    [3]float32
}

// NewTransform returns a Transform at the given position with no rotation and unit scale.
//
// Parameters:
//   - x, y, z: world-space position
//
// Returns:
//   - Transform: the new transform
func NewTransform(x, y, z float32) Transform {
	return Transform{
		Position: [3]float32{x, y, z},
		Scale:    [3]float32{1, 1, 1},
	}
}

// Matrix builds the column-major model matrix for the transform.
//
// Returns:
//   - Mat4: scale, then rotation, then translation
func (t Transform) Matrix() Mat4 {
	return BuildModelMatrix(t.Position, t.Rotation, t.Scale)
}

// Translate offsets the position by (dx, dy, dz).
func (t *Transform) Translate(dx, dy, dz float32) {
	t.Position[0] += dx
	t.Position[1] += dy
	t.Position[2] += dz
}

// Rotate adds (rx, ry, rz) radians to the rotation angles.
func (t *Transform) Rotate(rx, ry, rz float32) {
	t.Rotation[0] += rx
	t.Rotation[1] += ry
	t.Rotation[2] += rz
}
