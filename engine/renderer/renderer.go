package renderer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/adapter"
	"github.com/Carmen-Shannon/oxy-rt/engine/device"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
	"github.com/Carmen-Shannon/oxy-rt/engine/heap"
	"github.com/Carmen-Shannon/oxy-rt/engine/loader"
	"github.com/Carmen-Shannon/oxy-rt/engine/logger"
	"github.com/Carmen-Shannon/oxy-rt/engine/model"
	"github.com/Carmen-Shannon/oxy-rt/engine/profiler"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/raytrace"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-rt/engine/scene"
)

// DefaultToggleCooldown is the minimum time between two path switches.
const DefaultToggleCooldown = 3 * time.Second

var (
	// ErrNotRunning is returned by Frame after a fatal frame error or Shutdown.
	ErrNotRunning = errors.New("renderer: not running")
	// ErrNotInitialized is returned by Frame before Initialize succeeds.
	ErrNotInitialized = errors.New("renderer: not initialized")
)

// Path is the render path a frame takes.
type Path int

const (
	// PathRaster draws the scene through the raster pipeline.
	PathRaster Path = iota
	// PathRaytrace traces the scene and copies the result into the back buffer.
	PathRaytrace
)

func (p Path) String() string {
	switch p {
	case PathRaster:
		return "raster"
	case PathRaytrace:
		return "raytrace"
	}
	return fmt.Sprintf("Path(%d)", int(p))
}

// ParsePath maps "raster" and "raytrace" to a Path.
func ParsePath(name string) (Path, bool) {
	switch name {
	case "raster":
		return PathRaster, true
	case "raytrace":
		return PathRaytrace, true
	}
	return 0, false
}

// meshRange locates one mesh inside the shared vertex and index buffers.
type meshRange struct {
	baseVertex  int32
	startIndex  uint32
	indexCount  uint32
	vertexCount uint32
	blas        *raytrace.ASBuffers
}

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu *sync.Mutex

	backendType RendererBackendType
	halBackend  string
	enumerator  adapter.Enumerator
	presentMode PresentMode
	shaders     shader.Loader
	texture     *loader.PixelBuffer
	profiler    *profiler.Profiler
	cooldown    time.Duration
	clock       func() time.Time

	devices device.Manager
	uploads heap.Manager
	raster  pipeline.Pipeline
	tracer  raytrace.Pipeline
	srvHeap gpu.DescriptorHeap
	scene   scene.Scene

	vertexHandle heap.Handle
	indexHandle  heap.Handle
	vertexBuffer gpu.VertexBufferView
	indexBuffer  gpu.IndexBufferView
	meshes       map[model.Mesh]*meshRange
	draws        []pipeline.DrawItem
	transforms   []common.Mat4

	rtAvailable bool
	path        Path
	lastToggle  time.Time
	toggled     bool

	initialized atomic.Bool
	running     atomic.Bool
	released    atomic.Bool
	frames      atomic.Uint64
}

// Renderer owns the GPU device and drives the frame. Every frame waits for its slot,
// records either the raster or the ray-tracing path into the back buffer and presents.
//
// Frame, Initialize and Shutdown run on the render goroutine. Toggle and Path may be
// called from any goroutine.
type Renderer interface {
	// Initialize opens the device, compiles the shaders, uploads the scene's meshes and
	// the diffuse texture and builds both render paths. A device without ray-tracing
	// support is not an error; the renderer then stays on the raster path.
	//
	// Parameters:
	//   - ctx: cancels shader compilation and device creation
	//   - window: the native window to present to; the zero handle runs headless
	//   - width, height: back buffer size in pixels
	//   - sc: the scene to draw
	//
	// Returns:
	//   - error: the first initialization failure
	Initialize(ctx context.Context, window gpu.WindowHandle, width, height uint32, sc scene.Scene) error

	// Frame renders and presents one frame. Any failure clears Running and is returned;
	// after that Frame returns ErrNotRunning without touching the GPU.
	//
	// Returns:
	//   - error: the frame failure, ErrNotRunning or ErrNotInitialized
	Frame() error

	// Toggle switches between the raster and ray-tracing paths. A toggle less than the
	// cooldown after the previous switch is ignored, and the renderer never switches to
	// ray tracing when it is unavailable.
	//
	// Returns:
	//   - bool: true if the path changed
	Toggle() bool

	// Path returns the path the next frame takes.
	Path() Path

	// RaytracingAvailable reports whether the ray-tracing path was built.
	RaytracingAvailable() bool

	// Running is false after a fatal frame error or Shutdown.
	Running() bool

	// Frames is the number of frames presented.
	Frames() uint64

	// Resize is not supported: the back buffers keep the size given to Initialize.
	//
	// Parameters:
	//   - width: the new width of the surface in pixels
	//   - height: the new height of the surface in pixels
	Resize(width, height int)

	// Shutdown stops rendering, drains the GPU and releases every object with the
	// device last. Calling it again does nothing.
	Shutdown()

	// Devices exposes the device manager.
	Devices() device.Manager
}

var _ Renderer = &renderer{}

// NewRenderer creates a Renderer that opens its device on the given backend during
// Initialize.
//
// Parameters:
//   - backendType: the GPU implementation to use (e.g., BackendTypeSim)
//   - options: variadic list of RendererBuilderOption functions to configure the Renderer
//
// Returns:
//   - Renderer: a new, uninitialized Renderer
func NewRenderer(backendType RendererBackendType, options ...RendererBuilderOption) Renderer {
	r := &renderer{
		mu:          &sync.Mutex{},
		backendType: backendType,
		cooldown:    DefaultToggleCooldown,
		clock:       time.Now,
		meshes:      make(map[model.Mesh]*meshRange),
	}
	for _, opt := range options {
		opt(r)
	}
	if r.shaders == nil {
		r.shaders = shader.NewLoader()
	}
	return r
}

func (r *renderer) Initialize(ctx context.Context, window gpu.WindowHandle, width, height uint32, sc scene.Scene) error {
	if sc == nil {
		return fmt.Errorf("renderer needs a scene")
	}
	if r.initialized.Load() {
		return fmt.Errorf("renderer already initialized")
	}
	r.scene = sc

	if r.enumerator == nil {
		e, err := newEnumerator(r.backendType, r.halBackend)
		if err != nil {
			return err
		}
		r.enumerator = e
	}

	var oc model.ObjectConstants
	r.devices = device.NewManager(adapter.NewSelector(r.enumerator),
		device.WithVSync(r.presentMode == PresentModeVSync),
		device.WithConstantBuffer(uint64(oc.Size()), max(sc.Count(), 1)),
	)
	if err := r.devices.Initialize(ctx, window, width, height); err != nil {
		return fmt.Errorf("failed to initialize device: %w", err)
	}

	if err := r.build(ctx); err != nil {
		r.release()
		return err
	}

	r.initialized.Store(true)
	r.running.Store(true)
	logger.Logger().Info("renderer initialized",
		"backend", r.backendType.String(),
		"path", r.Path().String(),
		"raytracing", r.RaytracingAvailable(),
		"meshes", len(r.meshes),
	)
	return nil
}

// build creates everything past the device: shaders, the raster pipeline, scene
// buffers and the ray-tracing path. Setup work is recorded into the manager's command
// list and flushed once.
func (r *renderer) build(ctx context.Context) error {
	dev := r.devices.Device()
	list := r.devices.CommandList()

	set, err := r.shaders.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load shaders: %w", err)
	}
	r.raster, err = pipeline.Build(dev, pipeline.Desc{Label: "cube", VertexShader: set.Cube, PixelShader: set.Cube},
		pipeline.WithRenderTargetFormat(r.devices.Format()))
	if err != nil {
		return err
	}

	r.uploads = heap.NewManager(dev)
	if err := r.uploadMeshes(list); err != nil {
		return err
	}
	if err := r.uploadTexture(list); err != nil {
		return err
	}

	r.tracer = raytrace.New(dev, raytrace.WithFormat(r.devices.Format()))
	if err := r.tracer.CheckSupport(); err != nil {
		var ue *raytrace.UnsupportedError
		if !errors.As(err, &ue) {
			return err
		}
		logger.Logger().Warn("ray tracing unavailable, staying on raster", "tier", ue.Tier)
	} else if err := r.buildStructures(list); err != nil {
		return err
	}

	if err := r.flushUploads(); err != nil {
		return err
	}

	available := r.tracer.TopLevel() != nil
	if available {
		if err := r.buildRaytracing(set); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.rtAvailable = available
	if r.path == PathRaytrace && !available {
		r.path = PathRaster
	}
	return nil
}

// flushUploads submits the setup list, waits for it and retires the upload buffers its
// copies read from.
func (r *renderer) flushUploads() error {
	slot := r.devices.FrameIndex()
	if err := r.devices.Flush(); err != nil {
		return fmt.Errorf("failed to flush setup: %w", err)
	}
	submitted, err := r.devices.ExpectedValue(slot)
	if err != nil {
		return err
	}
	r.uploads.MarkSubmitted(submitted)
	completed, err := r.devices.CompletedValue(slot)
	if err != nil {
		return err
	}
	r.uploads.Retire(completed)
	if n := r.uploads.PendingUploads(); n > 0 {
		return fmt.Errorf("%d upload buffers still pending after flush", n)
	}
	return nil
}

// uploadMeshes packs every distinct scene mesh into one vertex and one index buffer.
func (r *renderer) uploadMeshes(list gpu.CommandList) error {
	meshes := r.scene.Meshes()
	if len(meshes) == 0 {
		return fmt.Errorf("scene has nothing to draw")
	}
	var vertices, indices []byte
	for _, m := range meshes {
		r.meshes[m] = &meshRange{
			baseVertex:  int32(len(vertices) / model.VertexSize),
			startIndex:  uint32(len(indices) / 4),
			indexCount:  m.IndexCount(),
			vertexCount: m.VertexCount(),
		}
		vertices = append(vertices, m.VertexData()...)
		indices = append(indices, m.IndexData()...)
	}

	vb, err := r.uploads.UploadVertices(list, "vertices", vertices)
	if err != nil {
		return fmt.Errorf("failed to upload vertices: %w", err)
	}
	ib, err := r.uploads.UploadIndices(list, "indices", indices)
	if err != nil {
		return fmt.Errorf("failed to upload indices: %w", err)
	}
	r.vertexHandle, r.indexHandle = vb, ib
	vbRes, _ := r.uploads.Resource(vb)
	ibRes, _ := r.uploads.Resource(ib)
	r.vertexBuffer = gpu.VertexBufferView{
		BufferLocation: vbRes.GPUVirtualAddress(),
		SizeInBytes:    uint32(len(vertices)),
		StrideInBytes:  uint32(model.VertexSize),
	}
	r.indexBuffer = gpu.IndexBufferView{
		BufferLocation: ibRes.GPUVirtualAddress(),
		SizeInBytes:    uint32(len(indices)),
		Format:         gpu.FormatR32Uint,
	}
	return nil
}

// uploadTexture uploads the diffuse texture and creates its SRV at t0.
func (r *renderer) uploadTexture(list gpu.CommandList) error {
	pb := defaultTexture()
	if r.texture != nil {
		pb = *r.texture
	}
	tex, err := r.uploads.UploadTexture(list, "diffuse", pb.TextureDesc(), pb.Pixels)
	if err != nil {
		return fmt.Errorf("failed to upload texture: %w", err)
	}
	res, _ := r.uploads.Resource(tex)

	dev := r.devices.Device()
	r.srvHeap, err = dev.CreateDescriptorHeap(gpu.DescriptorHeapDesc{
		Label:          "srv",
		Type:           gpu.DescriptorHeapTypeCBVSRVUAV,
		NumDescriptors: 1,
		ShaderVisible:  true,
	})
	if err != nil {
		return fmt.Errorf("failed to create srv heap: %w", err)
	}
	return dev.CreateView(gpu.ViewDesc{Kind: gpu.ViewKindSRV, Resource: res, Format: pb.Format()}, r.srvHeap.CPUHandleForHeapStart())
}

// buildStructures records one bottom-level structure per mesh and the top-level
// structure over the scene's instances.
func (r *renderer) buildStructures(list gpu.CommandList) error {
	vbRes, ibRes, err := r.meshBuffers()
	if err != nil {
		return err
	}
	for _, m := range r.scene.Meshes() {
		mr := r.meshes[m]
		mr.blas, err = r.tracer.BuildBottomLevelAS(list, []raytrace.Geometry{{
			VertexBuffer: vbRes,
			VertexOffset: uint64(mr.baseVertex) * uint64(model.VertexSize),
			VertexCount:  mr.vertexCount,
			Stride:       uint64(model.VertexSize),
			IndexBuffer:  ibRes,
			IndexOffset:  uint64(mr.startIndex) * 4,
			IndexCount:   mr.indexCount,
		}})
		if err != nil {
			return err
		}
	}

	pairs := r.scene.Instances()
	instances := make([]raytrace.Instance, len(pairs))
	for i, p := range pairs {
		instances[i] = raytrace.Instance{BLAS: r.meshes[p.Mesh].blas, Transform: p.World}
	}
	_, err = r.tracer.BuildTopLevelAS(list, instances)
	return err
}

func (r *renderer) meshBuffers() (gpu.Resource, gpu.Resource, error) {
	vb, err := r.uploads.Resource(r.vertexHandle)
	if err != nil {
		return nil, nil, err
	}
	ib, err := r.uploads.Resource(r.indexHandle)
	if err != nil {
		return nil, nil, err
	}
	return vb, ib, nil
}

// buildRaytracing runs the steps that need no command list.
func (r *renderer) buildRaytracing(set *shader.Set) error {
	width, height := r.devices.Size()
	if err := r.tracer.BuildPipeline(raytrace.Libraries{RayGen: set.RayGen, Miss: set.Miss, Hit: set.Hit}); err != nil {
		return err
	}
	if err := r.tracer.BuildOutputBuffer(width, height); err != nil {
		return err
	}
	if err := r.tracer.BuildDescriptorHeap(); err != nil {
		return err
	}
	return r.tracer.BuildShaderBindingTable()
}

func (r *renderer) Frame() error {
	if !r.initialized.Load() {
		return ErrNotInitialized
	}
	if !r.running.Load() {
		return ErrNotRunning
	}
	path, err := r.frame()
	if err != nil {
		r.running.Store(false)
		logger.Logger().Error("frame failed", "path", path.String(), "error", err)
		return err
	}
	r.frames.Add(1)
	if r.profiler != nil {
		r.profiler.Tick(path.String())
	}
	return nil
}

// frame records and submits one frame. Recording errors surface from Execute, which
// closes the list.
func (r *renderer) frame() (Path, error) {
	path := r.Path()
	d := r.devices

	if err := d.WaitForFrame(); err != nil {
		return path, err
	}
	if err := r.writeConstants(); err != nil {
		return path, err
	}

	alloc := d.Allocator()
	if err := alloc.Reset(); err != nil {
		return path, fmt.Errorf("failed to reset allocator: %w", err)
	}
	list := d.CommandList()
	if err := list.Reset(alloc, r.raster.PipelineState()); err != nil {
		return path, fmt.Errorf("failed to reset command list: %w", err)
	}

	rt := d.RenderTarget()
	list.ResourceBarrier(gpu.Transition(rt, gpu.ResourceStatePresent, gpu.ResourceStateRenderTarget))
	dsv := d.DSV()
	list.SetRenderTargets(d.RTV(), &dsv)
	list.ClearDepthStencilView(dsv, device.DepthClearValue)

	width, height := d.Size()
	switch path {
	case PathRaytrace:
		if err := r.refit(list); err != nil {
			return path, err
		}
		if err := r.tracer.Record(list, rt, width, height); err != nil {
			return path, err
		}
	default:
		if err := r.raster.Record(list, pipeline.RasterFrame{
			RTV:          d.RTV(),
			Width:        width,
			Height:       height,
			SRVHeap:      r.srvHeap,
			Constants:    d.ConstantBuffer(),
			VertexBuffer: r.vertexBuffer,
			IndexBuffer:  r.indexBuffer,
			Draws:        r.draws,
		}); err != nil {
			return path, err
		}
	}

	list.ResourceBarrier(gpu.Transition(rt, gpu.ResourceStateRenderTarget, gpu.ResourceStatePresent))
	if err := d.Execute(); err != nil {
		return path, err
	}
	return path, d.Present()
}

// writeConstants packs WVP per drawable object into the current slot's constant buffer
// and rebuilds the draw list to match.
func (r *renderer) writeConstants() error {
	prepared := r.scene.Prepare()
	cb := r.devices.ConstantBuffer()
	if len(prepared) > cb.Count() {
		return fmt.Errorf("%d objects exceed %d constant regions", len(prepared), cb.Count())
	}
	r.draws = r.draws[:0]
	for i, p := range prepared {
		mr, ok := r.meshes[p.Mesh]
		if !ok {
			return fmt.Errorf("object %d uses a mesh that was not uploaded", p.ID)
		}
		if err := cb.Write(i, p.Constants.Marshal()); err != nil {
			return err
		}
		r.draws = append(r.draws, pipeline.DrawItem{
			IndexCount:    mr.indexCount,
			InstanceCount: p.InstanceCount,
			StartIndex:    mr.startIndex,
			BaseVertex:    mr.baseVertex,
		})
	}
	return nil
}

// refit rewrites the top-level instance transforms when the scene moved. A scene whose
// instance count changed since Initialize keeps its old structure.
func (r *renderer) refit(list gpu.CommandList) error {
	if !r.scene.TakeDirty() {
		return nil
	}
	pairs := r.scene.Instances()
	if len(pairs) != r.tracer.InstanceCount() {
		logger.Logger().Warn("scene instance count changed, skipping refit",
			"built", r.tracer.InstanceCount(), "now", len(pairs))
		return nil
	}
	r.transforms = r.transforms[:0]
	for _, p := range pairs {
		r.transforms = append(r.transforms, p.World)
	}
	return r.tracer.RefitTopLevelAS(list, r.transforms)
}

func (r *renderer) Toggle() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock()
	if r.toggled && now.Sub(r.lastToggle) < r.cooldown {
		return false
	}
	next := PathRaster
	if r.path == PathRaster {
		next = PathRaytrace
	}
	if next == PathRaytrace && !r.rtAvailable {
		logger.Logger().Info("ray tracing unavailable, toggle ignored")
		return false
	}
	r.path = next
	r.lastToggle = now
	r.toggled = true
	logger.Logger().Info("render path switched", "path", next.String())
	return true
}

func (r *renderer) Path() Path {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}

func (r *renderer) RaytracingAvailable() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rtAvailable
}

func (r *renderer) Running() bool {
	return r.running.Load()
}

func (r *renderer) Frames() uint64 {
	return r.frames.Load()
}

func (r *renderer) Resize(width, height int) {
	logger.Logger().Info("resize ignored, swapchain size is fixed", "width", width, "height", height)
}

func (r *renderer) Devices() device.Manager {
	return r.devices
}

func (r *renderer) Shutdown() {
	r.running.Store(false)
	if r.devices == nil || r.released.Load() {
		return
	}
	r.release()
	logger.Logger().Info("renderer shut down", "frames", r.frames.Load())
}

// release drains the device, then frees renderer-owned objects before the device
// manager frees the device itself.
func (r *renderer) release() {
	if r.released.Swap(true) {
		return
	}
	devices := r.devices
	if err := devices.WaitForIdle(); err != nil && !errors.Is(err, device.ErrShutdown) {
		logger.Logger().Warn("drain before release failed", "error", err)
	}
	if r.tracer != nil {
		r.tracer.Release()
	}
	if r.srvHeap != nil {
		r.srvHeap.Release()
		r.srvHeap = nil
	}
	if r.uploads != nil {
		r.uploads.ReleaseAll()
	}
	if r.raster != nil {
		r.raster.Release()
	}
	devices.Shutdown()
}
