package game_object

import "github.com/Carmen-Shannon/oxy-rt/common"

// GameObjectBuilderOption is a functional option for configuring a GameObject during construction.
type GameObjectBuilderOption func(*gameObject)

// WithID sets the ID of the GameObject.
//
// Parameters:
//   - id: unique identifier for the GameObject
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the ID
func WithID(id uint64) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.id = id
	}
}

// WithEnabled sets whether the GameObject is enabled for rendering.
//
// Parameters:
//   - enabled: true to render the object, false to skip it
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the Enabled state
func WithEnabled(enabled bool) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.enabled.Store(enabled)
	}
}

// WithDrawable sets what the GameObject renders.
//
// Parameters:
//   - d: a StaticMesh, an InstancedMesh or another Drawable
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the Drawable
func WithDrawable(d Drawable) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.drawable = d
	}
}

// WithOrbit makes Update move the GameObject on a circle in the XZ plane. The object
// starts at center + (radius, 0, 0).
//
// Parameters:
//   - center: the point circled
//   - radius: distance from center
//   - speed: radians per millisecond, negative for clockwise
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the orbit
func WithOrbit(center [3]float32, radius, speed float32) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.orbit = &orbit{center: center, radius: radius, speed: speed}
		obj.transform.Position = obj.orbit.position()
	}
}

// WithTransform sets the initial local transform.
//
// Parameters:
//   - t: position, rotation and scale
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the transform
func WithTransform(t common.Transform) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.transform = t
	}
}

// WithPosition sets the initial position.
//
// Parameters:
//   - x, y, z: world-space position
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the position
func WithPosition(x, y, z float32) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.transform.Position = [3]float32{x, y, z}
	}
}

// WithScale sets the initial scale.
func WithScale(sx, sy, sz float32) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.transform.Scale = [3]float32{sx, sy, sz}
	}
}

// WithRotationSpeed sets the rotation added per millisecond by Update.
//
// Parameters:
//   - rx, ry, rz: radians per millisecond around X, Y and Z
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the rotation speed
func WithRotationSpeed(rx, ry, rz float32) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.rotationSpeed = [3]float32{rx, ry, rz}
	}
}
