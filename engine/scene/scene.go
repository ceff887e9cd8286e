package scene

import (
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/camera"
	"github.com/Carmen-Shannon/oxy-rt/engine/game_object"
	"github.com/Carmen-Shannon/oxy-rt/engine/logger"
	"github.com/Carmen-Shannon/oxy-rt/engine/model"
)

// Prepared is the per-object output of Prepare.
type Prepared struct {
	ID            uint64
	Mesh          model.Mesh
	InstanceCount uint32
	World         common.Mat4
	Constants     model.ObjectConstants
}

// Instance is one (mesh, world) pair registered in the top-level acceleration structure.
type Instance struct {
	Mesh  model.Mesh
	World common.Mat4
}

// Scene manages a flat list of GameObjects and the Camera they are viewed through.
// Only enabled objects with a Drawable are prepared and rendered.
// Thread-safe for concurrent access.
type Scene interface {
	// Name returns the scene's identifier.
	Name() string

	// Camera returns the scene's camera.
	Camera() camera.Camera

	// SetCamera replaces the scene's camera.
	//
	// Parameters:
	//   - cam: the new camera
	SetCamera(cam camera.Camera)

	// Add appends a GameObject. Objects with ID 0 are assigned the next free ID.
	//
	// Parameters:
	//   - obj: the object to add
	//
	// Returns:
	//   - uint64: the object's ID
	Add(obj game_object.GameObject) uint64

	// Get retrieves a GameObject by its ID, or nil if not found.
	//
	// Parameters:
	//   - id: the object's unique ID
	//
	// Returns:
	//   - game_object.GameObject: the object or nil
	Get(id uint64) game_object.GameObject

	// Remove drops a GameObject by ID. Unknown IDs are ignored.
	//
	// Parameters:
	//   - id: the object's unique ID
	Remove(id uint64)

	// Count returns the number of GameObjects, enabled or not.
	Count() int

	// Objects returns the GameObjects in insertion order.
	//
	// Returns:
	//   - []game_object.GameObject: a copy of the object list
	Objects() []game_object.GameObject

	// Meshes returns the distinct meshes drawn by the enabled objects, in first-use order.
	//
	// Returns:
	//   - []model.Mesh: one entry per distinct mesh
	Meshes() []model.Mesh

	// Tick advances every object by elapsedMillis.
	//
	// Parameters:
	//   - elapsedMillis: time since the last tick in milliseconds
	Tick(elapsedMillis float32)

	// TakeDirty reports whether any transform changed since the last call and clears the flag.
	//
	// Returns:
	//   - bool: true if a transform changed
	TakeDirty() bool

	// Prepare computes the world and WVP matrices of every enabled drawable object, one
	// worker task per object, and blocks until all tasks finish. The returned slice is
	// reused by the next call.
	//
	// Returns:
	//   - []Prepared: one entry per drawable object, in insertion order
	Prepare() []Prepared

	// Instances returns one (mesh, world) pair per drawn instance, in insertion order.
	//
	// Returns:
	//   - []Instance: the pairs for the top-level acceleration structure
	Instances() []Instance

	// Close stops the worker pool. The scene must not be prepared afterwards.
	Close()
}

type scene struct {
	mu      *sync.RWMutex
	name    string
	cam     camera.Camera
	objects []game_object.GameObject
	nextID  uint64
	dirty   bool

	prepared []Prepared
	pool     worker.DynamicWorkerPool
	workers  int
}

var _ Scene = &scene{}

// NewScene creates a new Scene viewed through cam. NewScene panics if cam is nil.
//
// Parameters:
//   - name: the name of the scene
//   - cam: the camera to attach (must not be nil)
//   - options: functional options to further configure the scene
//
// Returns:
//   - Scene: the newly created scene
func NewScene(name string, cam camera.Camera, options ...SceneBuilderOption) Scene {
	if cam == nil {
		panic("scene: NewScene requires a non-nil Camera")
	}
	s := &scene{
		mu:      &sync.RWMutex{},
		name:    name,
		cam:     cam,
		nextID:  1,
		workers: max(runtime.NumCPU()-1, 1),
	}
	for _, option := range options {
		option(s)
	}

	// workers persist across frames; the queue holds a full frame of tasks for typical scenes
	s.pool = worker.NewDynamicWorkerPool(s.workers, 256, 1*time.Second)
	logger.Logger().Debug("scene created", "name", s.name, "objects", len(s.objects), "workers", s.workers)
	return s
}

func (s *scene) Name() string {
	return s.name
}

func (s *scene) Camera() camera.Camera {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cam
}

func (s *scene) SetCamera(cam camera.Camera) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cam = cam
	s.dirty = true
}

func (s *scene) Add(obj game_object.GameObject) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(obj)
}

func (s *scene) add(obj game_object.GameObject) uint64 {
	if obj.ID() == 0 {
		obj.SetID(s.nextID)
	}
	s.nextID = max(s.nextID, obj.ID()+1)
	s.objects = append(s.objects, obj)
	s.dirty = true
	return obj.ID()
}

func (s *scene) Get(id uint64) game_object.GameObject {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, obj := range s.objects {
		if obj.ID() == id {
			return obj
		}
	}
	return nil
}

func (s *scene) Remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.objects)
	s.objects = slices.DeleteFunc(s.objects, func(obj game_object.GameObject) bool {
		return obj.ID() == id
	})
	if len(s.objects) != before {
		s.dirty = true
	}
}

func (s *scene) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

func (s *scene) Objects() []game_object.GameObject {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.objects)
}

func (s *scene) Meshes() []model.Mesh {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var meshes []model.Mesh
	for _, obj := range s.drawable() {
		m := obj.Drawable().Mesh()
		if !slices.Contains(meshes, m) {
			meshes = append(meshes, m)
		}
	}
	return meshes
}

// drawable returns the enabled objects that have a mesh. Callers hold mu.
func (s *scene) drawable() []game_object.GameObject {
	out := make([]game_object.GameObject, 0, len(s.objects))
	for _, obj := range s.objects {
		if obj.Enabled() && obj.Drawable() != nil && obj.Drawable().Mesh() != nil {
			out = append(out, obj)
		}
	}
	return out
}

func (s *scene) Tick(elapsedMillis float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, obj := range s.objects {
		if obj.Update(elapsedMillis) {
			s.dirty = true
		}
	}
}

func (s *scene) TakeDirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.dirty
	s.dirty = false
	return d
}

func (s *scene) Prepare() []Prepared {
	s.mu.Lock()
	defer s.mu.Unlock()

	objects := s.drawable()
	if cap(s.prepared) < len(objects) {
		s.prepared = make([]Prepared, len(objects))
	}
	s.prepared = s.prepared[:len(objects)]
	viewProj := s.cam.ViewProjectionMatrix()

	// pool.Wait blocks until workers idle out, so a WaitGroup is the per-frame barrier
	var wg sync.WaitGroup
	for i, obj := range objects {
		wg.Add(1)
		out := &s.prepared[i]
		s.pool.SubmitTask(worker.Task{
			ID: i,
			Do: func() (any, error) {
				defer wg.Done()
				world := obj.World()
				d := obj.Drawable()
				*out = Prepared{
					ID:            obj.ID(),
					Mesh:          d.Mesh(),
					InstanceCount: d.InstanceCount(),
					World:         world,
					Constants:     model.ObjectConstants{WVP: common.Mul4(viewProj, world)},
				}
				return nil, nil
			},
		})
	}
	wg.Wait()
	return s.prepared
}

func (s *scene) Instances() []Instance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Instance
	for _, obj := range s.drawable() {
		d := obj.Drawable()
		world := obj.World()
		for range d.InstanceCount() {
			out = append(out, Instance{Mesh: d.Mesh(), World: world})
		}
	}
	return out
}

func (s *scene) Close() {
	s.pool.Stop()
}
