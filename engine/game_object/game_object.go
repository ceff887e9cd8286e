package game_object

import (
	"sync"
	"sync/atomic"

	"github.com/chewxy/math32"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/model"
)

// Drawable is what a GameObject renders.
type Drawable interface {
	// Mesh returns the geometry to draw.
	Mesh() model.Mesh

	// InstanceCount is the number of instances drawn per frame. Always at least 1.
	InstanceCount() uint32
}

// StaticMesh draws its mesh once.
type StaticMesh struct {
	M model.Mesh
}

func (s StaticMesh) Mesh() model.Mesh {
	return s.M
}

func (s StaticMesh) InstanceCount() uint32 {
	return 1
}

// InstancedMesh draws its mesh Count times with the same world matrix.
type InstancedMesh struct {
	M     model.Mesh
	Count uint32
}

func (i InstancedMesh) Mesh() model.Mesh {
	return i.M
}

func (i InstancedMesh) InstanceCount() uint32 {
	return max(i.Count, 1)
}

type gameObject struct {
	id       uint64
	enabled  atomic.Bool
	drawable Drawable

	mu            sync.Mutex
	transform     common.Transform
	rotationSpeed [3]float32
	orbit         *orbit
}

// orbit moves an object on a circle in the XZ plane around a fixed center.
type orbit struct {
	center [3]float32
	radius float32
	speed  float32
	angle  float32
}

// GameObject is a scene entity: a transform composed with a Drawable. Entities form a flat
// list; there is no parenting.
type GameObject interface {
	// ID returns the object's unique identifier.
	//
	// Returns:
	//   - uint64: the object ID
	ID() uint64

	// SetID assigns the object's identifier. Scenes call this for objects added with ID 0.
	//
	// Parameters:
	//   - id: the new identifier
	SetID(id uint64)

	// Enabled returns whether this object is enabled for rendering.
	//
	// Returns:
	//   - bool: true if enabled
	Enabled() bool

	// SetEnabled sets whether the object is enabled for rendering.
	//
	// Parameters:
	//   - enabled: true to enable
	SetEnabled(enabled bool)

	// Drawable returns what the object renders, or nil for an invisible pivot.
	Drawable() Drawable

	// Transform returns a copy of the transform.
	//
	// Returns:
	//   - common.Transform: position, rotation and scale
	Transform() common.Transform

	// SetTransform replaces the transform.
	SetTransform(t common.Transform)

	// SetPosition moves the object in world space.
	//
	// Parameters:
	//   - x, y, z: new position components
	SetPosition(x, y, z float32)

	// RotationSpeed returns the rotation added per millisecond by Update, in radians.
	//
	// Returns:
	//   - [3]float32: speed around X, Y and Z
	RotationSpeed() [3]float32

	// SetRotationSpeed sets the rotation added per millisecond by Update.
	//
	// Parameters:
	//   - rx, ry, rz: radians per millisecond
	SetRotationSpeed(rx, ry, rz float32)

	// Update advances the rotation by RotationSpeed over elapsedMillis, and the orbit angle
	// when the object was built with WithOrbit.
	//
	// Returns:
	//   - bool: true if the transform changed
	Update(elapsedMillis float32) bool

	// World returns the model matrix.
	//
	// Returns:
	//   - common.Mat4: translation * rotation * scale
	World() common.Mat4
}

var _ GameObject = &gameObject{}

// NewGameObject creates a new enabled GameObject at the origin with unit scale.
//
// Parameters:
//   - options: functional options to configure the object
//
// Returns:
//   - GameObject: the newly created object
func NewGameObject(options ...GameObjectBuilderOption) GameObject {
	obj := &gameObject{
		transform: common.NewTransform(0, 0, 0),
	}
	obj.enabled.Store(true)
	for _, option := range options {
		option(obj)
	}
	return obj
}

func (g *gameObject) ID() uint64 {
	return g.id
}

func (g *gameObject) SetID(id uint64) {
	g.id = id
}

func (g *gameObject) Enabled() bool {
	return g.enabled.Load()
}

func (g *gameObject) SetEnabled(enabled bool) {
	g.enabled.Store(enabled)
}

func (g *gameObject) Drawable() Drawable {
	return g.drawable
}

func (g *gameObject) Transform() common.Transform {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.transform
}

func (g *gameObject) SetTransform(t common.Transform) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.transform = t
}

func (g *gameObject) SetPosition(x, y, z float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.transform.Position = [3]float32{x, y, z}
}

func (g *gameObject) RotationSpeed() [3]float32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rotationSpeed
}

func (g *gameObject) SetRotationSpeed(rx, ry, rz float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rotationSpeed = [3]float32{rx, ry, rz}
}

func (g *gameObject) Update(elapsedMillis float32) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if elapsedMillis == 0 {
		return false
	}
	changed := false
	if s := g.rotationSpeed; s != [3]float32{} {
		g.transform.Rotate(s[0]*elapsedMillis, s[1]*elapsedMillis, s[2]*elapsedMillis)
		changed = true
	}
	if o := g.orbit; o != nil && o.speed != 0 {
		o.angle = math32.Mod(o.angle+o.speed*elapsedMillis, 2*math32.Pi)
		g.transform.Position = o.position()
		changed = true
	}
	return changed
}

func (o *orbit) position() [3]float32 {
	s, c := math32.Sincos(o.angle)
	return [3]float32{o.center[0] + c*o.radius, o.center[1], o.center[2] + s*o.radius}
}

func (g *gameObject) World() common.Mat4 {
	return g.Transform().Matrix()
}
