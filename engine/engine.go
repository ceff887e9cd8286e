package engine

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/chewxy/math32"

	"github.com/Carmen-Shannon/oxy-rt/engine/camera"
	"github.com/Carmen-Shannon/oxy-rt/engine/config"
	"github.com/Carmen-Shannon/oxy-rt/engine/loader"
	"github.com/Carmen-Shannon/oxy-rt/engine/logger"
	"github.com/Carmen-Shannon/oxy-rt/engine/profiler"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-rt/engine/scene"
	"github.com/Carmen-Shannon/oxy-rt/engine/window"
)

// engine implements the Engine interface.
// Coordinates the tick, render and window threads.
type engine struct {
	cfg config.Config

	tickRateChannel chan time.Duration // Channel for dynamic tick rate updates

	running bool
	wg      sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once

	window   window.Window
	closed   bool
	renderer renderer.Renderer
	scene    scene.Scene
	control  camera.Controller
	input    *inputState
	watcher  *shader.Watcher

	engineTickRate   time.Duration
	tickCallback     func(deltaTime float32)
	renderFrameLimit time.Duration // minimum frame duration; 0 = uncapped

	exit func(code int)

	errMu     sync.Mutex
	renderErr error
}

// Engine is the main entry point for the engine.
// It owns the window, the scene and the renderer, and runs the tick and render loops.
type Engine interface {
	// Window returns the underlying window.
	//
	// Returns:
	//   - window.Window: the window instance, nil before Run creates one
	Window() window.Window

	// Renderer returns the frame orchestrator.
	Renderer() renderer.Renderer

	// Scene returns the scene being drawn.
	Scene() scene.Scene

	// Controller returns the camera controller driven by keyboard and mouse input.
	Controller() camera.Controller

	// SetTickRate sets the engine tick rate in frames per second.
	// Input, camera movement and object animation advance at this rate.
	//
	// Parameters:
	//   - fps: target frames per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called after each engine tick.
	//
	// Parameters:
	//   - callback: function to call at the configured tick rate, receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// Run initializes the renderer and blocks in the window's message loop. Closing the
	// window stops both loops, shuts the renderer down and returns nil. A frame error
	// closes the window and is returned.
	//
	// Returns:
	//   - error: an initialization or frame error
	Run() error

	// Quit signals all engine goroutines to stop and closes the window on its next update.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()
}

// NewEngine creates a new Engine instance with the provided options.
// Anything not supplied through an option is created by Run from the configuration.
//
// Parameters:
//   - options: functional options for engine configuration (config, window, scene, etc.)
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(options ...EngineBuilderOption) Engine {
	e := &engine{
		cfg:             config.Default(),
		tickRateChannel: make(chan time.Duration, 1),
		quitChannel:     make(chan struct{}),
		input:           newInputState(),
		engineTickRate:  time.Second / 60,
		exit:            os.Exit,
	}

	for _, opt := range options {
		opt(e)
	}
	return e
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Renderer() renderer.Renderer {
	return e.renderer
}

func (e *engine) Scene() scene.Scene {
	return e.scene
}

func (e *engine) Controller() camera.Controller {
	return e.control
}

func (e *engine) Run() error {
	if err := e.setup(); err != nil {
		e.teardown()
		return err
	}
	e.wire()

	width, height := e.window.Width(), e.window.Height()
	if err := e.renderer.Initialize(context.Background(), e.window.NativeHandle(), uint32(width), uint32(height), e.scene); err != nil {
		e.renderer.Shutdown()
		e.teardown()
		return fmt.Errorf("failed to initialize renderer: %w", err)
	}

	e.running = true
	e.handle()
	e.window.ProcessMessages()

	e.signalQuit()
	e.wg.Wait()
	e.teardown()

	e.errMu.Lock()
	defer e.errMu.Unlock()
	return e.renderErr
}

// setup creates whatever the options did not supply: logger, window, scene, camera
// controller and renderer.
func (e *engine) setup() error {
	cfg := e.cfg
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger.SetLogger(logger.NewTextLogger(cfg.LogLevel))

	if e.window == nil {
		e.window = window.NewWindow(
			window.WithTitle(cfg.Window.Title),
			window.WithSize(cfg.Window.Width, cfg.Window.Height),
		)
	}
	if e.scene == nil {
		aspect := float32(e.window.Width()) / float32(max(e.window.Height(), 1))
		e.scene = scene.NewDemoScene(camera.NewCamera(camera.WithAspect(aspect)))
	}
	if e.control == nil {
		e.control = camera.NewController(e.scene.Camera(),
			camera.WithSpeed(cfg.Camera.Speed, cfg.Camera.FastSpeed),
			camera.WithSensitivity(cfg.Camera.RotateSpeed),
		)
	}
	if e.renderer == nil {
		r, err := e.newRenderer()
		if err != nil {
			return err
		}
		e.renderer = r
	}
	return nil
}

// newRenderer builds the renderer described by the configuration.
func (e *engine) newRenderer() (renderer.Renderer, error) {
	rc := e.cfg.Renderer
	backend, ok := renderer.ParseBackendType(rc.Backend)
	if !ok {
		return nil, fmt.Errorf("unknown backend %q", rc.Backend)
	}
	start, ok := renderer.ParsePath(rc.StartPath)
	if !ok {
		return nil, fmt.Errorf("unknown start path %q", rc.StartPath)
	}
	mode := renderer.PresentModeVSync
	if !rc.VSync {
		mode = renderer.PresentModeUncapped
	}

	opts := []renderer.RendererBuilderOption{
		renderer.WithHALBackend(rc.HALBackend),
		renderer.WithPresentMode(mode),
		renderer.WithStartPath(start),
		renderer.WithToggleCooldown(rc.ToggleCooldown.Duration),
	}
	if rc.ShaderDir != "" {
		opts = append(opts, renderer.WithShaderLoader(shader.NewLoader(shader.WithDirectory(rc.ShaderDir))))
		w, err := shader.Watch(rc.ShaderDir, func(artifact string) {
			logger.Logger().Warn("shader changed on disk, restart to apply", "artifact", artifact)
		})
		if err != nil {
			logger.Logger().Warn("shader watcher disabled", "error", err)
		} else {
			e.watcher = w
		}
	}
	if rc.TexturePath != "" {
		pb, err := loader.NewLoader(loader.BackendTypeImage).Load(rc.TexturePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load texture: %w", err)
		}
		opts = append(opts, renderer.WithTexture(pb))
	}
	if e.cfg.Profiling {
		opts = append(opts, renderer.WithProfiler(profiler.NewProfiler()))
	}
	return renderer.NewRenderer(backend, opts...), nil
}

// wire connects window callbacks to the input state, the camera and the quit path.
func (e *engine) wire() {
	w := e.window
	w.SetKeyDownCallback(e.input.keyDown)
	w.SetKeyUpCallback(e.input.keyUp)
	w.SetRightMouseDownCallback(e.input.rightDown)
	w.SetRightMouseUpCallback(e.input.rightUp)
	w.SetMouseMoveCallback(e.input.mouseMove)

	// Escape leaves without draining the GPU.
	w.SetQuitCallback(func() {
		logger.Logger().Info("quit requested")
		e.exit(0)
	})

	w.SetResizeCallback(func(width, height int) {
		e.renderer.Resize(width, height)
		if height <= 0 {
			return
		}
		cam := e.scene.Camera()
		cam.SetProjection(cam.Fov()*180/math32.Pi, float32(width)/float32(height), cam.Near(), cam.Far())
	})

	w.SetUpdateCallback(func() {
		select {
		case <-e.quitChannel:
			e.closeWindow()
		default:
		}
	})
}

// closeWindow closes the window once. Only called on the window's thread.
func (e *engine) closeWindow() {
	if e.closed || e.window == nil {
		return
	}
	e.closed = true
	if err := e.window.Close(); err != nil {
		logger.Logger().Warn("failed to close window", "error", err)
	}
}

// teardown releases what Run created after both loops have stopped.
func (e *engine) teardown() {
	if e.watcher != nil {
		e.watcher.Close()
		e.watcher = nil
	}
	if e.scene != nil {
		e.scene.Close()
	}
	if e.window != nil && e.window.IsRunning() {
		e.closeWindow()
	}
	e.running = false
}

// Quit signals all engine goroutines to stop and shuts down the engine.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel to signal all goroutines to exit.
// Uses sync.Once to ensure the channel is only closed once.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		close(e.quitChannel)
	})
}

// handle launches the tick and render goroutines.
// Each goroutine is tracked by the engine's WaitGroup.
func (e *engine) handle() {
	e.wg.Add(2)
	go e.handleEngine()
	go e.handleRender()
}

// handleEngine runs the fixed-rate engine tick loop in its own goroutine.
// Each tick applies input to the camera, holds Space as a toggle request, advances the
// scene and fires the tick callback. Exits when the quit channel is closed.
func (e *engine) handleEngine() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			elapsed := now.Sub(lastTick)
			lastTick = now
			e.tick(elapsed)
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

// tick advances input, camera and scene by elapsed.
func (e *engine) tick(elapsed time.Duration) {
	ms := float32(elapsed.Seconds() * 1000)
	in, toggle := e.input.take()
	e.control.Apply(in, ms)
	if toggle {
		e.renderer.Toggle()
	}
	e.scene.Tick(ms)

	if e.tickCallback != nil {
		e.tickCallback(float32(elapsed.Seconds()))
	}
}

// handleRender runs the uncapped (or frame-limited) render loop in its own goroutine until
// quit or a frame error, then shuts the renderer down on the same goroutine.
// Recovers from panics to avoid crashing the process and signals quit on recovery.
func (e *engine) handleRender() {
	defer e.wg.Done()
	defer e.renderer.Shutdown()
	// Recover from panics inside the render goroutine to avoid crashing the whole process.
	defer func() {
		if r := recover(); r != nil {
			logger.Logger().Error("render goroutine recovered from panic", "panic", r)
			e.setRenderErr(fmt.Errorf("render goroutine panicked: %v", r))
			e.signalQuit()
		}
	}()

	for {
		select {
		case <-e.quitChannel:
			return
		default:
		}

		start := time.Now()
		if err := e.renderer.Frame(); err != nil {
			e.setRenderErr(err)
			e.signalQuit()
			return
		}

		// Frame rate limiting
		if e.renderFrameLimit > 0 {
			if remaining := e.renderFrameLimit - time.Since(start); remaining > 0 {
				time.Sleep(remaining)
			}
		}
	}
}

func (e *engine) setRenderErr(err error) {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	if e.renderErr == nil {
		e.renderErr = err
	}
}

// SetTickRate sets the engine tick rate in frames per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	if e.running {
		// Non-blocking send - if channel is full, replace the pending value
		select {
		case e.tickRateChannel <- newRate:
		default:
			select {
			case <-e.tickRateChannel:
			default:
			}
			e.tickRateChannel <- newRate
		}
	} else {
		e.engineTickRate = newRate
	}
}

// SetTickCallback registers the function called each engine tick.
func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}
