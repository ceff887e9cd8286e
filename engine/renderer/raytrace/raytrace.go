// Package raytrace builds the ray-tracing path: acceleration structures, the state
// object, the output image and the shader binding table, and records the per-frame
// dispatch that copies the traced image into the back buffer.
//
// Initialization is a fixed sequence of steps. Each step needs the one before it to have
// succeeded:
//
//	CheckSupport -> BuildBottomLevelAS (one or more) -> BuildTopLevelAS -> BuildPipeline
//	-> BuildOutputBuffer -> BuildDescriptorHeap -> BuildShaderBindingTable
package raytrace

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
	"github.com/Carmen-Shannon/oxy-rt/engine/logger"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/shader"
)

// ErrOutOfOrder is returned when an initialization step runs before the step it depends on.
var ErrOutOfOrder = errors.New("raytrace: initialization step out of order")

// HitGroupExport names the hit group wrapping the closest-hit shader.
const HitGroupExport = "HitGroup"

// State object limits.
const (
	MaxPayloadSize    uint32 = 16
	MaxAttributeSize  uint32 = 8
	MaxRecursionDepth uint32 = 1
)

// DefaultVertexStride is the stride used when a Geometry does not set one.
const DefaultVertexStride = 20

// UnsupportedError reports a device without ray-tracing support.
type UnsupportedError struct {
	Tier gpu.RaytracingTier
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("ray tracing not supported by device (tier %s)", e.Tier)
}

// AllocationError reports a buffer the device could not allocate.
type AllocationError struct {
	What string
	Err  error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("failed to allocate %s: %v", e.What, e.Err)
}

func (e *AllocationError) Unwrap() error {
	return e.Err
}

// Geometry is one triangle mesh of a bottom-level structure. Positions are float3 at the
// start of each vertex. IndexBuffer is optional and holds 32-bit indices. The offsets
// are in bytes and locate a mesh inside shared buffers.
type Geometry struct {
	VertexBuffer gpu.Resource
	VertexOffset uint64
	VertexCount  uint32
	Stride       uint64
	IndexBuffer  gpu.Resource
	IndexOffset  uint64
	IndexCount   uint32
}

// ASBuffers are the buffers behind one acceleration structure. InstanceDescs is only set
// for the top level.
type ASBuffers struct {
	Scratch       gpu.Resource
	Result        gpu.Resource
	InstanceDescs gpu.Resource

	ScratchSize uint64
	ResultSize  uint64
}

// Address is the GPU address of the built structure.
func (b *ASBuffers) Address() uint64 {
	return b.Result.GPUVirtualAddress()
}

// Release frees every buffer of the structure.
func (b *ASBuffers) Release() {
	for _, r := range []gpu.Resource{b.InstanceDescs, b.Result, b.Scratch} {
		if r != nil {
			r.Release()
		}
	}
	b.InstanceDescs, b.Result, b.Scratch = nil, nil, nil
}

// Instance places a bottom-level structure in the scene.
type Instance struct {
	BLAS      *ASBuffers
	Transform common.Mat4
}

// Libraries are the three shader libraries of the state object.
type Libraries struct {
	RayGen *shader.Library
	Miss   *shader.Library
	Hit    *shader.Library
}

type step uint8

const (
	stepNone step = iota
	stepSupported
	stepBottomLevel
	stepTopLevel
	stepPipeline
	stepOutput
	stepHeap
	stepReady
)

// tracer is the implementation of the Pipeline interface.
type tracer struct {
	device      gpu.Device
	format      gpu.Format
	allowUpdate bool
	recursion   uint32

	step step

	bottom    []*ASBuffers
	top       *ASBuffers
	instances []Instance

	globalSignature gpu.RootSignature
	rayGenSignature gpu.RootSignature
	missSignature   gpu.RootSignature
	hitSignature    gpu.RootSignature
	stateObject     gpu.StateObject
	properties      gpu.StateObjectProperties

	output         gpu.Resource
	outputFormat   gpu.Format
	descriptorHeap gpu.DescriptorHeap

	builder SBTBuilder
	layout  SBTLayout
	sbt     gpu.Resource
}

// Pipeline is the ray-tracing path of the renderer.
type Pipeline interface {
	// CheckSupport verifies the device can trace rays.
	//
	// Returns:
	//   - error: an *UnsupportedError if the device tier is below 1.0
	CheckSupport() error

	// BuildBottomLevelAS records the build of one bottom-level structure over all geometries.
	//
	// Parameters:
	//   - list: a recording command list
	//   - geometries: the meshes of the structure
	//
	// Returns:
	//   - *ASBuffers: the scratch and result buffers of the structure
	//   - error: ErrOutOfOrder, an *AllocationError or a device error
	BuildBottomLevelAS(list gpu.CommandList, geometries []Geometry) (*ASBuffers, error)

	// BuildTopLevelAS records the build of the scene structure, one instance per entry.
	// Instance i gets instance ID i and hit-group index i.
	//
	// Parameters:
	//   - list: a recording command list
	//   - instances: the placed bottom-level structures
	//
	// Returns:
	//   - *ASBuffers: the scratch, result and instance-descriptor buffers
	//   - error: ErrOutOfOrder, an *AllocationError or a device error
	BuildTopLevelAS(list gpu.CommandList, instances []Instance) (*ASBuffers, error)

	// RefitTopLevelAS rewrites the instance transforms and records an in-place update of
	// the scene structure.
	//
	// Parameters:
	//   - list: a recording command list
	//   - transforms: one transform per instance, in instance order
	//
	// Returns:
	//   - error: ErrOutOfOrder, or if the count differs or updates are disabled
	RefitTopLevelAS(list gpu.CommandList, transforms []common.Mat4) error

	// BuildPipeline creates the local root signatures and the state object.
	BuildPipeline(libs Libraries) error

	// BuildOutputBuffer creates the image the ray-generation shader writes.
	BuildOutputBuffer(width, height uint32) error

	// BuildDescriptorHeap creates the shader-visible heap holding the output UAV in slot 0
	// and the scene structure in slot 1.
	BuildDescriptorHeap() error

	// BuildShaderBindingTable lays out and writes the shader records.
	BuildShaderBindingTable() error

	// Ready reports whether every initialization step has completed.
	Ready() bool

	// Record traces the frame and copies the result into renderTarget.
	//
	// Parameters:
	//   - list: a recording command list
	//   - renderTarget: the back buffer, in the render-target state
	//   - width, height: the dispatch size
	//
	// Returns:
	//   - error: ErrOutOfOrder before initialization has completed
	Record(list gpu.CommandList, renderTarget gpu.Resource, width, height uint32) error

	BottomLevels() []*ASBuffers
	TopLevel() *ASBuffers
	InstanceCount() int
	Layout() SBTLayout
	Output() gpu.Resource
	DescriptorHeap() gpu.DescriptorHeap
	ShaderBindingTable() gpu.Resource

	// Release frees every buffer, heap and pipeline object the path created.
	Release()
}

var _ Pipeline = &tracer{}

// New creates a ray-tracing path for device. Nothing is allocated until the
// initialization steps run.
//
// Parameters:
//   - device: the device to build on
//   - options: functional options for the ray-tracing path
//
// Returns:
//   - Pipeline: the ray-tracing path
func New(device gpu.Device, options ...PipelineBuilderOption) Pipeline {
	t := &tracer{
		device:      device,
		format:      gpu.FormatR8G8B8A8Unorm,
		allowUpdate: true,
		recursion:   MaxRecursionDepth,
	}
	for _, opt := range options {
		opt(t)
	}
	return t
}

func (t *tracer) CheckSupport() error {
	tier := t.device.RaytracingTier()
	if tier < gpu.RaytracingTier1_0 {
		return &UnsupportedError{Tier: tier}
	}
	if t.step == stepNone {
		t.step = stepSupported
	}
	logger.Logger().Debug("ray tracing supported", slog.String("tier", tier.String()))
	return nil
}

// allocateAS queries the build sizes of inputs and allocates the scratch and result
// buffers. The scratch buffer is created in COMMON and transitioned for the build.
func (t *tracer) allocateAS(list gpu.CommandList, label string, inputs *gpu.ASInputs) (*ASBuffers, error) {
	info, err := t.device.AccelerationStructurePrebuildInfo(inputs)
	if err != nil {
		return nil, fmt.Errorf("%s prebuild info: %w", label, err)
	}
	scratchSize := common.AlignUp(max(info.ScratchDataSize, info.UpdateScratchDataSize), gpu.AccelerationStructureAlignment)
	resultSize := common.AlignUp(info.ResultDataMaxSize, gpu.AccelerationStructureAlignment)

	scratch, err := t.device.CreateCommittedResource(gpu.HeapTypeDefault,
		gpu.BufferDesc(label+"_scratch", scratchSize, gpu.ResourceFlagAllowUnorderedAccess), gpu.ResourceStateCommon)
	if err != nil {
		return nil, &AllocationError{What: label + " scratch", Err: err}
	}
	result, err := t.device.CreateCommittedResource(gpu.HeapTypeDefault,
		gpu.BufferDesc(label, resultSize, gpu.ResourceFlagAllowUnorderedAccess), gpu.ResourceStateRaytracingAccelerationStructure)
	if err != nil {
		scratch.Release()
		return nil, &AllocationError{What: label + " result", Err: err}
	}
	list.ResourceBarrier(gpu.Transition(scratch, gpu.ResourceStateCommon, gpu.ResourceStateUnorderedAccess))
	return &ASBuffers{Scratch: scratch, Result: result, ScratchSize: scratchSize, ResultSize: resultSize}, nil
}

func (t *tracer) BuildBottomLevelAS(list gpu.CommandList, geometries []Geometry) (*ASBuffers, error) {
	if t.step != stepSupported && t.step != stepBottomLevel {
		return nil, ErrOutOfOrder
	}
	if len(geometries) == 0 {
		return nil, fmt.Errorf("bottom-level structure needs at least one geometry")
	}
	descs := make([]gpu.GeometryDesc, len(geometries))
	for i, g := range geometries {
		if g.VertexBuffer == nil {
			return nil, fmt.Errorf("geometry %d has no vertex buffer", i)
		}
		stride := g.Stride
		if stride == 0 {
			stride = DefaultVertexStride
		}
		descs[i] = gpu.GeometryDesc{
			VertexBuffer: g.VertexBuffer.GPUVirtualAddress() + g.VertexOffset,
			VertexCount:  g.VertexCount,
			VertexStride: stride,
			VertexFormat: gpu.FormatR32G32B32Float,
			Opaque:       true,
		}
		if g.IndexBuffer != nil {
			descs[i].IndexBuffer = g.IndexBuffer.GPUVirtualAddress() + g.IndexOffset
			descs[i].IndexCount = g.IndexCount
			descs[i].IndexFormat = gpu.FormatR32Uint
		}
	}

	inputs := gpu.ASInputs{
		Type:       gpu.AccelerationStructureBottomLevel,
		Flags:      gpu.BuildFlagPreferFastTrace,
		Geometries: descs,
	}
	buffers, err := t.allocateAS(list, fmt.Sprintf("blas%d", len(t.bottom)), &inputs)
	if err != nil {
		return nil, err
	}
	list.BuildAccelerationStructure(&gpu.BuildASDesc{
		Inputs:         inputs,
		DestAddress:    buffers.Result.GPUVirtualAddress(),
		ScratchAddress: buffers.Scratch.GPUVirtualAddress(),
	})
	// the top-level build reads this result
	list.ResourceBarrier(gpu.UAVBarrier(buffers.Result))
	t.bottom = append(t.bottom, buffers)
	t.step = stepBottomLevel
	logger.Logger().Debug("bottom-level structure recorded",
		slog.Int("geometries", len(geometries)),
		slog.Uint64("result_bytes", buffers.ResultSize),
	)
	return buffers, nil
}

// writeInstances encodes one instance descriptor per instance into the mapped buffer.
func (t *tracer) writeInstances() error {
	mapped, err := t.top.InstanceDescs.Map()
	if err != nil {
		return fmt.Errorf("map instance descs: %w", err)
	}
	defer t.top.InstanceDescs.Unmap()
	for i, inst := range t.instances {
		gpu.EncodeInstanceDesc(mapped[i*gpu.InstanceDescSize:], gpu.InstanceDesc{
			Transform:             common.Affine3x4(inst.Transform),
			InstanceID:            uint32(i),
			InstanceMask:          0xFF,
			HitGroupIndex:         uint32(i),
			AccelerationStructure: inst.BLAS.Address(),
		})
	}
	return nil
}

func (t *tracer) topLevelInputs() gpu.ASInputs {
	flags := gpu.BuildFlagPreferFastTrace
	if t.allowUpdate {
		flags |= gpu.BuildFlagAllowUpdate
	}
	inputs := gpu.ASInputs{
		Type:         gpu.AccelerationStructureTopLevel,
		Flags:        flags,
		NumInstances: uint32(len(t.instances)),
	}
	if t.top != nil && t.top.InstanceDescs != nil {
		inputs.InstanceDescs = t.top.InstanceDescs.GPUVirtualAddress()
	}
	return inputs
}

func (t *tracer) BuildTopLevelAS(list gpu.CommandList, instances []Instance) (*ASBuffers, error) {
	if t.step != stepBottomLevel {
		return nil, ErrOutOfOrder
	}
	for i, inst := range instances {
		if inst.BLAS == nil || inst.BLAS.Result == nil {
			return nil, fmt.Errorf("instance %d has no bottom-level structure", i)
		}
	}
	t.instances = append([]Instance(nil), instances...)

	inputs := t.topLevelInputs()
	buffers, err := t.allocateAS(list, "tlas", &inputs)
	if err != nil {
		return nil, err
	}
	descSize := uint64(max(len(instances), 1)) * gpu.InstanceDescSize
	descs, err := t.device.CreateCommittedResource(gpu.HeapTypeUpload,
		gpu.BufferDesc("instance_descs", descSize, gpu.ResourceFlagNone), gpu.ResourceStateGenericRead)
	if err != nil {
		buffers.Release()
		return nil, &AllocationError{What: "instance descs", Err: err}
	}
	buffers.InstanceDescs = descs
	t.top = buffers
	if err := t.writeInstances(); err != nil {
		t.top = nil
		buffers.Release()
		return nil, err
	}

	inputs.InstanceDescs = descs.GPUVirtualAddress()
	list.BuildAccelerationStructure(&gpu.BuildASDesc{
		Inputs:         inputs,
		DestAddress:    buffers.Result.GPUVirtualAddress(),
		ScratchAddress: buffers.Scratch.GPUVirtualAddress(),
	})
	list.ResourceBarrier(gpu.UAVBarrier(buffers.Result))
	t.step = stepTopLevel
	logger.Logger().Debug("top-level structure recorded", slog.Int("instances", len(instances)))
	return buffers, nil
}

func (t *tracer) RefitTopLevelAS(list gpu.CommandList, transforms []common.Mat4) error {
	if t.step < stepTopLevel || t.top == nil {
		return ErrOutOfOrder
	}
	if !t.allowUpdate {
		return fmt.Errorf("top-level structure was built without updates enabled")
	}
	if len(transforms) != len(t.instances) {
		return fmt.Errorf("refit needs %d transforms, got %d", len(t.instances), len(transforms))
	}
	for i := range t.instances {
		t.instances[i].Transform = transforms[i]
	}
	if err := t.writeInstances(); err != nil {
		return err
	}
	inputs := t.topLevelInputs()
	inputs.Flags |= gpu.BuildFlagPerformUpdate
	list.BuildAccelerationStructure(&gpu.BuildASDesc{
		Inputs:         inputs,
		DestAddress:    t.top.Result.GPUVirtualAddress(),
		ScratchAddress: t.top.Scratch.GPUVirtualAddress(),
		SourceAddress:  t.top.Result.GPUVirtualAddress(),
	})
	// DispatchRays later in the same list traces the updated structure
	list.ResourceBarrier(gpu.UAVBarrier(t.top.Result))
	return nil
}

func (t *tracer) BuildPipeline(libs Libraries) error {
	if t.step != stepTopLevel {
		return ErrOutOfOrder
	}
	if libs.RayGen == nil || libs.Miss == nil || libs.Hit == nil {
		return &shader.CompileError{Artifact: "raytracing", Stage: shader.StageLibrary, Diagnostic: "missing shader library"}
	}

	var err error
	t.rayGenSignature, err = t.device.CreateRootSignature(gpu.RootSignatureDesc{
		Label: "raygen",
		Local: true,
		Parameters: []gpu.RootParameter{{
			Type: gpu.RootParameterDescriptorTable,
			Ranges: []gpu.DescriptorRange{
				{Type: gpu.DescriptorRangeUAV, NumDescriptors: 1, BaseRegister: 0, OffsetInTable: 0},
				{Type: gpu.DescriptorRangeSRV, NumDescriptors: 1, BaseRegister: 0, OffsetInTable: 1},
			},
		}},
	})
	if err == nil {
		t.missSignature, err = t.device.CreateRootSignature(gpu.RootSignatureDesc{Label: "miss", Local: true})
	}
	if err == nil {
		t.hitSignature, err = t.device.CreateRootSignature(gpu.RootSignatureDesc{Label: "hit", Local: true})
	}
	if err == nil {
		t.globalSignature, err = t.device.CreateRootSignature(gpu.RootSignatureDesc{Label: "raytracing_global"})
	}
	if err != nil {
		t.releaseSignatures()
		return fmt.Errorf("create ray-tracing root signature: %w", err)
	}

	so, err := t.device.CreateStateObject(&gpu.StateObjectDesc{
		Label: "raytracing",
		Libraries: []gpu.ShaderLibrary{
			libs.RayGen.ShaderLibrary(),
			libs.Miss.ShaderLibrary(),
			libs.Hit.ShaderLibrary(),
		},
		HitGroups: []gpu.HitGroup{{Name: HitGroupExport, ClosestHit: shader.ClosestHitExport}},
		Associations: []gpu.RootSignatureAssociation{
			{RootSignature: t.rayGenSignature, Exports: []string{shader.RayGenExport}},
			{RootSignature: t.missSignature, Exports: []string{shader.MissExport}},
			{RootSignature: t.hitSignature, Exports: []string{HitGroupExport}},
		},
		GlobalRootSignature: t.globalSignature,
		MaxPayloadSize:      MaxPayloadSize,
		MaxAttributeSize:    MaxAttributeSize,
		MaxRecursionDepth:   t.recursion,
	})
	if err != nil {
		t.releaseSignatures()
		return fmt.Errorf("create state object: %w", err)
	}
	props, err := so.Properties()
	if err != nil {
		so.Release()
		t.releaseSignatures()
		return fmt.Errorf("query state object properties: %w", err)
	}
	t.stateObject, t.properties = so, props
	t.step = stepPipeline
	logger.Logger().Debug("ray-tracing state object created")
	return nil
}

func (t *tracer) BuildOutputBuffer(width, height uint32) error {
	if t.step != stepPipeline {
		return ErrOutOfOrder
	}
	t.outputFormat = t.format.StripSRGB()
	output, err := t.device.CreateCommittedResource(gpu.HeapTypeDefault,
		gpu.Texture2DDesc("rt_output", width, height, t.outputFormat, gpu.ResourceFlagAllowUnorderedAccess),
		gpu.ResourceStateCopySource)
	if err != nil {
		return &AllocationError{What: "output buffer", Err: err}
	}
	t.output = output
	t.step = stepOutput
	return nil
}

func (t *tracer) BuildDescriptorHeap() error {
	if t.step != stepOutput {
		return ErrOutOfOrder
	}
	h, err := t.device.CreateDescriptorHeap(gpu.DescriptorHeapDesc{
		Label:          "raytracing",
		Type:           gpu.DescriptorHeapTypeCBVSRVUAV,
		NumDescriptors: 2,
		ShaderVisible:  true,
	})
	if err != nil {
		return fmt.Errorf("create ray-tracing descriptor heap: %w", err)
	}
	start := h.CPUHandleForHeapStart()
	inc := t.device.DescriptorHandleIncrementSize(gpu.DescriptorHeapTypeCBVSRVUAV)
	err = t.device.CreateView(gpu.ViewDesc{Kind: gpu.ViewKindUAV, Resource: t.output, Format: t.outputFormat}, start)
	if err == nil {
		err = t.device.CreateView(gpu.ViewDesc{
			Kind:     gpu.ViewKindAccelerationStructure,
			Location: t.top.Address(),
		}, start.Offset(1, inc))
	}
	if err != nil {
		h.Release()
		return fmt.Errorf("write ray-tracing descriptors: %w", err)
	}
	t.descriptorHeap = h
	t.step = stepHeap
	return nil
}

func (t *tracer) BuildShaderBindingTable() error {
	if t.step != stepHeap {
		return ErrOutOfOrder
	}
	t.builder.Reset()
	t.builder.AddRayGenerationProgram(shader.RayGenExport, t.descriptorHeap.GPUHandleForHeapStart().Ptr)
	t.builder.AddMissProgram(shader.MissExport)
	t.builder.AddHitGroup(HitGroupExport)
	layout := t.builder.Layout()

	sbt, err := t.device.CreateCommittedResource(gpu.HeapTypeUpload,
		gpu.BufferDesc("sbt", layout.TotalSize(), gpu.ResourceFlagNone), gpu.ResourceStateGenericRead)
	if err != nil {
		return &AllocationError{What: "shader binding table", Err: err}
	}
	mapped, err := sbt.Map()
	if err != nil {
		sbt.Release()
		return fmt.Errorf("map shader binding table: %w", err)
	}
	err = t.builder.Write(mapped, t.properties)
	sbt.Unmap()
	if err != nil {
		sbt.Release()
		return err
	}
	t.sbt, t.layout = sbt, layout
	t.step = stepReady
	logger.Logger().Info("ray-tracing pipeline ready",
		slog.Int("instances", len(t.instances)),
		slog.Uint64("sbt_bytes", layout.TotalSize()),
	)
	return nil
}

func (t *tracer) Ready() bool {
	return t.step == stepReady
}

func (t *tracer) Record(list gpu.CommandList, renderTarget gpu.Resource, width, height uint32) error {
	if t.step != stepReady {
		return ErrOutOfOrder
	}
	if renderTarget == nil {
		return fmt.Errorf("ray-tracing record needs a render target")
	}
	start := t.sbt.GPUVirtualAddress()

	list.SetDescriptorHeaps(t.descriptorHeap)
	list.ResourceBarrier(gpu.Transition(t.output, gpu.ResourceStateCopySource, gpu.ResourceStateUnorderedAccess))
	list.SetRaytracingState(t.stateObject)
	list.DispatchRays(&gpu.DispatchRaysDesc{
		RayGeneration: gpu.AddressRange{
			StartAddress: start,
			SizeInBytes:  t.layout.RayGenSectionSize,
		},
		Miss: gpu.AddressRangeAndStride{
			StartAddress:  start + t.layout.MissOffset(),
			SizeInBytes:   t.layout.MissSectionSize,
			StrideInBytes: t.layout.MissEntrySize,
		},
		HitGroup: gpu.AddressRangeAndStride{
			StartAddress:  start + t.layout.HitGroupOffset(),
			SizeInBytes:   t.layout.HitGroupSectionSize,
			StrideInBytes: t.layout.HitGroupEntrySize,
		},
		Width:  width,
		Height: height,
		Depth:  1,
	})
	list.ResourceBarrier(gpu.Transition(t.output, gpu.ResourceStateUnorderedAccess, gpu.ResourceStateCopySource))
	list.ResourceBarrier(gpu.Transition(renderTarget, gpu.ResourceStateRenderTarget, gpu.ResourceStateCopyDest))
	list.CopyResource(renderTarget, t.output)
	list.ResourceBarrier(gpu.Transition(renderTarget, gpu.ResourceStateCopyDest, gpu.ResourceStateRenderTarget))
	return nil
}

func (t *tracer) BottomLevels() []*ASBuffers {
	return t.bottom
}

func (t *tracer) TopLevel() *ASBuffers {
	return t.top
}

func (t *tracer) InstanceCount() int {
	return len(t.instances)
}

func (t *tracer) Layout() SBTLayout {
	return t.layout
}

func (t *tracer) Output() gpu.Resource {
	return t.output
}

func (t *tracer) DescriptorHeap() gpu.DescriptorHeap {
	return t.descriptorHeap
}

func (t *tracer) ShaderBindingTable() gpu.Resource {
	return t.sbt
}

func (t *tracer) releaseSignatures() {
	for _, rs := range []gpu.RootSignature{t.rayGenSignature, t.missSignature, t.hitSignature, t.globalSignature} {
		if rs != nil {
			rs.Release()
		}
	}
	t.rayGenSignature, t.missSignature, t.hitSignature, t.globalSignature = nil, nil, nil, nil
}

func (t *tracer) Release() {
	if t.sbt != nil {
		t.sbt.Release()
		t.sbt = nil
	}
	if t.descriptorHeap != nil {
		t.descriptorHeap.Release()
		t.descriptorHeap = nil
	}
	if t.output != nil {
		t.output.Release()
		t.output = nil
	}
	if t.stateObject != nil {
		t.stateObject.Release()
		t.stateObject, t.properties = nil, nil
	}
	t.releaseSignatures()
	if t.top != nil {
		t.top.Release()
		t.top = nil
	}
	for _, b := range t.bottom {
		b.Release()
	}
	t.bottom = nil
	t.instances = nil
	t.step = stepNone
}
