package engine

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/config"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu/sim"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer"
	"github.com/Carmen-Shannon/oxy-rt/engine/window"
)

// fakeWindow is a headless window whose message loop runs until Close or closeByUser.
type fakeWindow struct {
	mu      sync.Mutex
	running bool
	closes  int

	onUpdate    func()
	onKeyDown   func(uint32)
	onKeyUp     func(uint32)
	onRightDown func(x, y int32)
	onRightUp   func(x, y int32)
	onMove      func(x, y int32)
	onQuit      func()
	onResize    func(w, h int)
}

var _ window.Window = &fakeWindow{}

func newFakeWindow() *fakeWindow {
	return &fakeWindow{running: true}
}

func (f *fakeWindow) set(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn()
}

func (f *fakeWindow) SetUpdateCallback(cb func()) { f.set(func() { f.onUpdate = cb }) }
func (f *fakeWindow) SetResizeCallback(cb func(w, h int)) { f.set(func() { f.onResize = cb }) }
func (f *fakeWindow) SetScrollCallback(func(float32)) {}
func (f *fakeWindow) SetKeyDownCallback(cb func(uint32)) { f.set(func() { f.onKeyDown = cb }) }
func (f *fakeWindow) SetKeyUpCallback(cb func(uint32)) { f.set(func() { f.onKeyUp = cb }) }
func (f *fakeWindow) SetMiddleMouseDownCallback(func(x, y int32)) {}
func (f *fakeWindow) SetMiddleMouseUpCallback(func(x, y int32)) {}
func (f *fakeWindow) SetRightMouseDownCallback(cb func(x, y int32)) {
	f.set(func() { f.onRightDown = cb })
}
func (f *fakeWindow) SetRightMouseUpCallback(cb func(x, y int32)) { f.set(func() { f.onRightUp = cb }) }
func (f *fakeWindow) SetQuitCallback(cb func()) { f.set(func() { f.onQuit = cb }) }
func (f *fakeWindow) SetMouseMoveCallback(cb func(x, y int32)) { f.set(func() { f.onMove = cb }) }
func (f *fakeWindow) NativeHandle() gpu.WindowHandle { return gpu.WindowHandle{} }
func (f *fakeWindow) Width() int { return 64 }
func (f *fakeWindow) Height() int { return 48 }

func (f *fakeWindow) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeWindow) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	f.closes++
	return nil
}

func (f *fakeWindow) ProcessMessages() {
	for f.IsRunning() {
		f.mu.Lock()
		update := f.onUpdate
		f.mu.Unlock()
		if update != nil {
			update()
		}
		time.Sleep(time.Millisecond)
	}
}

// closeByUser ends the message loop the way the close button does.
func (f *fakeWindow) closeByUser() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
}

func (f *fakeWindow) keyDown(code uint32) {
	f.mu.Lock()
	cb := f.onKeyDown
	f.mu.Unlock()
	cb(code)
}

func (f *fakeWindow) keyUp(code uint32) {
	f.mu.Lock()
	cb := f.onKeyUp
	f.mu.Unlock()
	cb(code)
}

func (f *fakeWindow) wired() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.onKeyDown != nil && f.onQuit != nil
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.LogLevel = "error"
	return cfg
}

func runEngine(t *testing.T, e Engine) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- e.Run() }()
	return done
}

func waitRun(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(10 * time.Second):
		require.FailNow(t, "Run did not return")
		return nil
	}
}

func TestInputStateMapsKeys(t *testing.T) {
	s := newInputState()
	s.keyDown(common.KeyW)
	s.keyDown(common.KeyE)
	s.keyDown(common.KeyLeftShift)
	s.keyDown(common.KeySpace)

	in, toggle := s.take()
	assert.True(t, in.Forward)
	assert.True(t, in.Up)
	assert.True(t, in.Fast)
	assert.False(t, in.Down)
	assert.True(t, toggle)

	s.keyUp(common.KeySpace)
	s.keyUp(common.KeyLeftShift)
	in, toggle = s.take()
	assert.False(t, toggle)
	assert.False(t, in.Fast)
	assert.True(t, in.Forward)
}

func TestInputStateAccumulatesRightDrag(t *testing.T) {
	s := newInputState()
	s.mouseMove(10, 10)
	s.mouseMove(20, 15)
	in, _ := s.take()
	assert.False(t, in.Rotating)
	assert.Zero(t, in.MouseDX)

	s.rightDown(20, 15)
	s.mouseMove(25, 13)
	s.mouseMove(30, 10)
	in, _ = s.take()
	assert.True(t, in.Rotating)
	assert.Equal(t, float32(10), in.MouseDX)
	assert.Equal(t, float32(-5), in.MouseDY)

	in, _ = s.take()
	assert.Zero(t, in.MouseDX)
	s.rightUp(30, 10)
	in, _ = s.take()
	assert.False(t, in.Rotating)
}

func TestRunRendersUntilWindowCloses(t *testing.T) {
	dev := sim.NewDevice()
	r := renderer.NewRenderer(renderer.BackendTypeSim, renderer.WithEnumerator(sim.NewEnumerator(dev)))
	fw := newFakeWindow()
	e := NewEngine(WithConfig(testConfig()), WithWindow(fw), WithRenderer(r), WithTickRate(200))

	done := runEngine(t, e)
	require.Eventually(t, func() bool { return r.Frames() >= 3 }, 5*time.Second, time.Millisecond)
	require.Eventually(t, fw.wired, time.Second, time.Millisecond)

	fw.keyDown(common.KeySpace)
	require.Eventually(t, func() bool { return r.Path() == renderer.PathRaytrace }, 5*time.Second, time.Millisecond)
	fw.keyUp(common.KeySpace)
	require.Eventually(t, func() bool { return dev.Stats().DispatchRays > 0 }, 5*time.Second, time.Millisecond)

	fw.closeByUser()
	require.NoError(t, waitRun(t, done))
	assert.False(t, r.Running())

	events := dev.Journal().Events()
	last := events[len(events)-1]
	assert.Equal(t, sim.EventRelease, last.Kind)
	assert.Equal(t, "device", last.Object)
}

func TestEscapeExitsImmediately(t *testing.T) {
	r := renderer.NewRenderer(renderer.BackendTypeSim)
	fw := newFakeWindow()
	codes := make(chan int, 1)
	e := NewEngine(WithConfig(testConfig()), WithWindow(fw), WithRenderer(r),
		WithExit(func(code int) { codes <- code }))

	done := runEngine(t, e)
	require.Eventually(t, fw.wired, 5*time.Second, time.Millisecond)
	fw.mu.Lock()
	quit := fw.onQuit
	fw.mu.Unlock()
	quit()
	assert.Equal(t, 0, <-codes)

	fw.closeByUser()
	require.NoError(t, waitRun(t, done))
}

func TestFrameErrorStopsRun(t *testing.T) {
	dev := sim.NewDevice()
	r := renderer.NewRenderer(renderer.BackendTypeSim, renderer.WithEnumerator(sim.NewEnumerator(dev)))
	fw := newFakeWindow()
	e := NewEngine(WithConfig(testConfig()), WithWindow(fw), WithRenderer(r))

	done := runEngine(t, e)
	require.Eventually(t, func() bool { return r.Frames() >= 1 }, 5*time.Second, time.Millisecond)

	boom := errors.New("device removed")
	dev.Fail("Present", boom)
	assert.ErrorIs(t, waitRun(t, done), boom)
	assert.False(t, fw.IsRunning())
	assert.Equal(t, 1, fw.closes)
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Renderer.FrameCount = 2
	e := NewEngine(WithConfig(cfg), WithWindow(newFakeWindow()))
	assert.ErrorIs(t, e.Run(), config.ErrInvalid)
}
