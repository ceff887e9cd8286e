package scene

import (
	"github.com/Carmen-Shannon/oxy-rt/engine/camera"
	"github.com/Carmen-Shannon/oxy-rt/engine/game_object"
	"github.com/Carmen-Shannon/oxy-rt/engine/model"
)

// Demo scene layout. Rotation and orbit speeds are radians per millisecond.
var (
	CenterCubeSpin   = [3]float32{0.0001, 0.0002, 0.0003}
	OrbitCubeSpin    = [3]float32{0.0003, 0.0002, 0.0001}
	OrbitCubeRadius  = float32(1.5)
	OrbitCubeScale   = float32(0.5)
	OrbitCubeAngular = float32(0.0002)
)

// NewDemoScene builds the two-cube scene: a unit cube spinning at the origin and a
// half-size cube spinning while it circles the first at distance 1.5.
//
// Parameters:
//   - cam: the camera to view the scene through
//   - options: functional options to further configure the scene
//
// Returns:
//   - Scene: the demo scene
func NewDemoScene(cam camera.Camera, options ...SceneBuilderOption) Scene {
	cube := model.Cube()
	center := game_object.NewGameObject(
		game_object.WithDrawable(game_object.StaticMesh{M: cube}),
		game_object.WithRotationSpeed(CenterCubeSpin[0], CenterCubeSpin[1], CenterCubeSpin[2]),
	)
	orbiter := game_object.NewGameObject(
		game_object.WithDrawable(game_object.StaticMesh{M: cube}),
		game_object.WithScale(OrbitCubeScale, OrbitCubeScale, OrbitCubeScale),
		game_object.WithRotationSpeed(OrbitCubeSpin[0], OrbitCubeSpin[1], OrbitCubeSpin[2]),
		game_object.WithOrbit([3]float32{}, OrbitCubeRadius, OrbitCubeAngular),
	)
	return NewScene("demo", cam, append([]SceneBuilderOption{WithObjects(center, orbiter)}, options...)...)
}
