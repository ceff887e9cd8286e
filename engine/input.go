package engine

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/camera"
)

// inputState collects window events between ticks. Window callbacks write it on the main
// thread and the tick goroutine drains it.
type inputState struct {
	mu sync.Mutex

	held     map[uint32]bool
	rotating bool

	lastX, lastY int32
	hasLast      bool
	dx, dy       float32
}

func newInputState() *inputState {
	return &inputState{held: make(map[uint32]bool)}
}

func (s *inputState) keyDown(code uint32) {
	s.mu.Lock()
	s.held[code] = true
	s.mu.Unlock()
}

func (s *inputState) keyUp(code uint32) {
	s.mu.Lock()
	delete(s.held, code)
	s.mu.Unlock()
}

func (s *inputState) rightDown(x, y int32) {
	s.mu.Lock()
	s.rotating = true
	s.lastX, s.lastY, s.hasLast = x, y, true
	s.mu.Unlock()
}

func (s *inputState) rightUp(_, _ int32) {
	s.mu.Lock()
	s.rotating = false
	s.mu.Unlock()
}

// mouseMove accumulates pointer movement while the right button is held.
func (s *inputState) mouseMove(x, y int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rotating && s.hasLast {
		s.dx += float32(x - s.lastX)
		s.dy += float32(y - s.lastY)
	}
	s.lastX, s.lastY, s.hasLast = x, y, true
}

// take returns the camera input of one tick and whether Space is held. The accumulated
// mouse movement is reset.
func (s *inputState) take() (camera.Input, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in := camera.Input{
		Forward:  s.held[common.KeyW],
		Backward: s.held[common.KeyS],
		Left:     s.held[common.KeyA],
		Right:    s.held[common.KeyD],
		Up:       s.held[common.KeyE],
		Down:     s.held[common.KeyQ],
		Fast:     s.held[common.KeyLeftShift] || s.held[common.KeyRightShift],
		MouseDX:  s.dx,
		MouseDY:  s.dy,
		Rotating: s.rotating,
	}
	s.dx, s.dy = 0, 0
	return in, s.held[common.KeySpace]
}
