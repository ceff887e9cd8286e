package scene

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/camera"
	"github.com/Carmen-Shannon/oxy-rt/engine/game_object"
	"github.com/Carmen-Shannon/oxy-rt/engine/model"
)

func cubeAt(x, y, z float32, options ...game_object.GameObjectBuilderOption) game_object.GameObject {
	opts := append([]game_object.GameObjectBuilderOption{
		game_object.WithDrawable(game_object.StaticMesh{M: model.Cube()}),
		game_object.WithPosition(x, y, z),
	}, options...)
	return game_object.NewGameObject(opts...)
}

func TestAddAssignsIDs(t *testing.T) {
	s := NewScene("test", camera.NewCamera(), WithWorkers(2))
	defer s.Close()

	a := s.Add(cubeAt(0, 0, 0))
	b := s.Add(cubeAt(1, 0, 0))
	c := s.Add(cubeAt(2, 0, 0, game_object.WithID(10)))
	d := s.Add(cubeAt(3, 0, 0))

	assert.Equal(t, []uint64{1, 2, 10, 11}, []uint64{a, b, c, d})
	assert.Equal(t, 4, s.Count())
	require.NotNil(t, s.Get(10))

	s.Remove(2)
	s.Remove(99)
	assert.Equal(t, 3, s.Count())
	assert.Nil(t, s.Get(2))
}

func TestPrepareComputesWVP(t *testing.T) {
	cam := camera.NewCamera()
	s := NewScene("test", cam, WithWorkers(3))
	defer s.Close()

	for i := range 8 {
		s.Add(cubeAt(float32(i), 0, 0))
	}
	s.Add(cubeAt(0, 0, 0, game_object.WithEnabled(false)))
	s.Add(game_object.NewGameObject())

	prepared := s.Prepare()
	require.Len(t, prepared, 8)
	viewProj := cam.ViewProjectionMatrix()
	for i, p := range prepared {
		assert.Equal(t, uint64(i+1), p.ID)
		assert.Equal(t, uint32(1), p.InstanceCount)
		assert.InDelta(t, float32(i), p.World[12], 1e-6)
		assert.Equal(t, common.Mul4(viewProj, p.World), p.Constants.WVP)
	}

	// a second frame reuses the same backing slice
	again := s.Prepare()
	assert.Same(t, &prepared[0], &again[0])
}

func TestInstancesExpandInstancedMeshes(t *testing.T) {
	s := NewScene("test", camera.NewCamera())
	defer s.Close()

	cube := model.Cube()
	s.Add(cubeAt(0, 0, 0))
	s.Add(game_object.NewGameObject(game_object.WithDrawable(game_object.InstancedMesh{M: cube, Count: 3})))

	assert.Len(t, s.Instances(), 4)
	assert.Len(t, s.Meshes(), 2)
}

func TestTickMarksDirty(t *testing.T) {
	s := NewScene("test", camera.NewCamera(), WithObjects(cubeAt(0, 0, 0)))
	defer s.Close()

	assert.True(t, s.TakeDirty())
	assert.False(t, s.TakeDirty())

	s.Tick(16)
	assert.False(t, s.TakeDirty())

	s.Add(cubeAt(0, 0, 0, game_object.WithRotationSpeed(0, 0.001, 0)))
	s.TakeDirty()
	s.Tick(16)
	assert.True(t, s.TakeDirty())
}

func TestDemoSceneLayout(t *testing.T) {
	s := NewDemoScene(camera.NewCamera())
	defer s.Close()

	objects := s.Objects()
	require.Len(t, objects, 2)
	assert.Len(t, s.Meshes(), 1)

	orbiter := objects[1].Transform()
	assert.InDelta(t, OrbitCubeRadius, orbiter.Position[0], 1e-6)
	assert.Equal(t, [3]float32{OrbitCubeScale, OrbitCubeScale, OrbitCubeScale}, orbiter.Scale)

	s.Tick(1000)
	assert.True(t, s.TakeDirty())
	moved := objects[1].Transform().Position
	assert.NotEqual(t, orbiter.Position, moved)
	assert.InDelta(t, OrbitCubeRadius*OrbitCubeRadius, moved[0]*moved[0]+moved[2]*moved[2], 1e-4)
}
