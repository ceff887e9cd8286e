package gpu

import (
	"strings"
)

// Alignment and size constants shared by every backend.
const (
	// ShaderIdentifierSize is the byte size of an opaque shader identifier.
	ShaderIdentifierSize = 32
	// ShaderRecordAlignment is the alignment of each shader binding table record.
	ShaderRecordAlignment = 32
	// ShaderTableAlignment is the alignment of each shader binding table section start.
	ShaderTableAlignment = 64
	// ConstantBufferAlignment is the alignment of constant-buffer views and per-object regions.
	ConstantBufferAlignment = 256
	// ResourcePlacementAlignment is the size granularity of constant-buffer resources (64KB).
	ResourcePlacementAlignment = 65536
	// TextureDataPitchAlignment is the row-pitch alignment of buffer-to-texture copies.
	TextureDataPitchAlignment = 256
	// AccelerationStructureAlignment is the alignment of acceleration-structure buffers.
	AccelerationStructureAlignment = 256
	// InstanceDescSize is the byte size of one top-level instance descriptor.
	InstanceDescSize = 64
	// DescriptorArgumentSize is the byte size of one root argument in a shader record.
	DescriptorArgumentSize = 8
)

// HeapType selects the memory pool a committed resource lives in.
type HeapType uint8

const (
	// HeapTypeDefault is GPU-only memory.
	HeapTypeDefault HeapType = iota
	// HeapTypeUpload is CPU-writable memory the GPU reads from.
	HeapTypeUpload
	// HeapTypeReadback is GPU-writable memory the CPU reads from.
	HeapTypeReadback
)

func (h HeapType) String() string {
	switch h {
	case HeapTypeDefault:
		return "DEFAULT"
	case HeapTypeUpload:
		return "UPLOAD"
	case HeapTypeReadback:
		return "READBACK"
	}
	return "UNKNOWN"
}

// ResourceState is the bitmask of access states a resource may be in.
// The zero value is Common, which is also the Present state.
type ResourceState uint32

const (
	ResourceStateCommon                  ResourceState = 0
	ResourceStateVertexAndConstantBuffer ResourceState = 1 << iota
	ResourceStateIndexBuffer
	ResourceStateRenderTarget
	ResourceStateUnorderedAccess
	ResourceStateDepthWrite
	ResourceStateNonPixelShaderResource
	ResourceStatePixelShaderResource
	ResourceStateCopyDest
	ResourceStateCopySource
	ResourceStateRaytracingAccelerationStructure

	ResourceStatePresent     = ResourceStateCommon
	ResourceStateGenericRead = ResourceStateVertexAndConstantBuffer | ResourceStateIndexBuffer |
		ResourceStateNonPixelShaderResource | ResourceStatePixelShaderResource | ResourceStateCopySource
)

var resourceStateNames = []struct {
	state ResourceState
	name  string
}{
	{ResourceStateVertexAndConstantBuffer, "VERTEX_AND_CONSTANT_BUFFER"},
	{ResourceStateIndexBuffer, "INDEX_BUFFER"},
	{ResourceStateRenderTarget, "RENDER_TARGET"},
	{ResourceStateUnorderedAccess, "UNORDERED_ACCESS"},
	{ResourceStateDepthWrite, "DEPTH_WRITE"},
	{ResourceStateNonPixelShaderResource, "NON_PIXEL_SHADER_RESOURCE"},
	{ResourceStatePixelShaderResource, "PIXEL_SHADER_RESOURCE"},
	{ResourceStateCopyDest, "COPY_DEST"},
	{ResourceStateCopySource, "COPY_SOURCE"},
	{ResourceStateRaytracingAccelerationStructure, "RAYTRACING_ACCELERATION_STRUCTURE"},
}

func (s ResourceState) String() string {
	if s == ResourceStateCommon {
		return "COMMON"
	}
	if s == ResourceStateGenericRead {
		return "GENERIC_READ"
	}
	var parts []string
	for _, n := range resourceStateNames {
		if s&n.state != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// Dimension is the shape of a resource.
type Dimension uint8

const (
	DimensionBuffer Dimension = iota
	DimensionTexture2D
)

// ResourceFlags are optional capabilities requested at creation.
type ResourceFlags uint8

const (
	ResourceFlagNone                 ResourceFlags = 0
	ResourceFlagAllowRenderTarget    ResourceFlags = 1 << 0
	ResourceFlagAllowDepthStencil    ResourceFlags = 1 << 1
	ResourceFlagAllowUnorderedAccess ResourceFlags = 1 << 2
)

// ResourceDesc describes a committed resource. Buffers use Width as the byte size.
type ResourceDesc struct {
	Label     string
	Dimension Dimension
	Width     uint64
	Height    uint32
	Format    Format
	Flags     ResourceFlags
}

// BufferDesc is shorthand for a buffer ResourceDesc of the given size.
//
// Parameters:
//   - label: debug name
//   - size: byte size
//   - flags: optional capability flags
//
// Returns:
//   - ResourceDesc: the buffer description
func BufferDesc(label string, size uint64, flags ResourceFlags) ResourceDesc {
	return ResourceDesc{Label: label, Dimension: DimensionBuffer, Width: size, Height: 1, Flags: flags}
}

// Texture2DDesc is shorthand for a single-mip 2D texture ResourceDesc.
//
// Parameters:
//   - label: debug name
//   - width, height: dimensions in pixels
//   - format: pixel format
//   - flags: optional capability flags
//
// Returns:
//   - ResourceDesc: the texture description
func Texture2DDesc(label string, width, height uint32, format Format, flags ResourceFlags) ResourceDesc {
	return ResourceDesc{Label: label, Dimension: DimensionTexture2D, Width: uint64(width), Height: height, Format: format, Flags: flags}
}

// BarrierType selects what a Barrier orders.
type BarrierType uint8

const (
	// BarrierTypeTransition moves a whole resource from Before to After.
	BarrierTypeTransition BarrierType = iota
	// BarrierTypeUAV makes unordered-access writes to a resource visible to the commands
	// recorded after it. The resource keeps its state; Before and After are unused.
	BarrierTypeUAV
)

// Barrier is a transition or UAV barrier on a whole resource.
type Barrier struct {
	Type     BarrierType
	Resource Resource
	Before   ResourceState
	After    ResourceState
}

// Transition builds a Barrier for r from before to after.
func Transition(r Resource, before, after ResourceState) Barrier {
	return Barrier{Type: BarrierTypeTransition, Resource: r, Before: before, After: after}
}

// UAVBarrier builds a Barrier that orders the writes to r, such as an acceleration
// structure build, before the next command that reads it.
func UAVBarrier(r Resource) Barrier {
	return Barrier{Type: BarrierTypeUAV, Resource: r}
}

// DescriptorHeapType selects the kind of descriptors a heap stores.
type DescriptorHeapType uint8

const (
	DescriptorHeapTypeCBVSRVUAV DescriptorHeapType = iota
	DescriptorHeapTypeSampler
	DescriptorHeapTypeRTV
	DescriptorHeapTypeDSV
)

// DescriptorHeapDesc describes a descriptor heap.
type DescriptorHeapDesc struct {
	Label          string
	Type           DescriptorHeapType
	NumDescriptors uint32
	ShaderVisible  bool
}

// CPUDescriptorHandle addresses a descriptor for CPU-side view creation and binding.
type CPUDescriptorHandle struct {
	Ptr uint64
}

// Offset returns the handle advanced by n descriptors of the given increment.
func (h CPUDescriptorHandle) Offset(n int, increment uint32) CPUDescriptorHandle {
	return CPUDescriptorHandle{Ptr: h.Ptr + uint64(n)*uint64(increment)}
}

// GPUDescriptorHandle addresses a descriptor from shader-visible tables.
type GPUDescriptorHandle struct {
	Ptr uint64
}

// Offset returns the handle advanced by n descriptors of the given increment.
func (h GPUDescriptorHandle) Offset(n int, increment uint32) GPUDescriptorHandle {
	return GPUDescriptorHandle{Ptr: h.Ptr + uint64(n)*uint64(increment)}
}

// ViewKind is the type of a descriptor written into a heap slot.
type ViewKind uint8

const (
	ViewKindNone ViewKind = iota
	ViewKindCBV
	ViewKindSRV
	ViewKindUAV
	ViewKindRTV
	ViewKindDSV
	ViewKindAccelerationStructure
)

// ViewDesc describes a view written into a descriptor slot. Resource may be nil for
// acceleration-structure SRVs, which are addressed by Location instead.
type ViewDesc struct {
	Kind     ViewKind
	Resource Resource
	Format   Format
	Location uint64
	Size     uint32
}

// Viewport is a rasterizer viewport.
type Viewport struct {
	TopLeftX, TopLeftY float32
	Width, Height      float32
	MinDepth, MaxDepth float32
}

// Rect is a scissor rectangle.
type Rect struct {
	Left, Top, Right, Bottom int32
}

// PrimitiveTopology is the input-assembler topology.
type PrimitiveTopology uint8

const (
	PrimitiveTopologyUndefined PrimitiveTopology = iota
	PrimitiveTopologyTriangleList
)

// VertexBufferView binds a vertex buffer region.
type VertexBufferView struct {
	BufferLocation uint64
	SizeInBytes    uint32
	StrideInBytes  uint32
}

// IndexBufferView binds an index buffer region.
type IndexBufferView struct {
	BufferLocation uint64
	SizeInBytes    uint32
	Format         Format
}

// ShaderVisibility restricts a root parameter to a pipeline stage.
type ShaderVisibility uint8

const (
	ShaderVisibilityAll ShaderVisibility = iota
	ShaderVisibilityVertex
	ShaderVisibilityPixel
)

// RootParameterType is the kind of a root-signature parameter.
type RootParameterType uint8

const (
	RootParameterDescriptorTable RootParameterType = iota
	RootParameterCBV
	RootParameterSRV
	RootParameterUAV
)

// DescriptorRangeType is the kind of descriptors a table range covers.
type DescriptorRangeType uint8

const (
	DescriptorRangeSRV DescriptorRangeType = iota
	DescriptorRangeUAV
	DescriptorRangeCBV
	DescriptorRangeSampler
)

// DescriptorRange is a run of descriptors inside a descriptor table.
// OffsetInTable is the heap slot the range starts at.
type DescriptorRange struct {
	Type           DescriptorRangeType
	NumDescriptors uint32
	BaseRegister   uint32
	RegisterSpace  uint32
	OffsetInTable  uint32
}

// RootParameter is one parameter of a root signature.
type RootParameter struct {
	Type           RootParameterType
	ShaderRegister uint32
	Ranges         []DescriptorRange
	Visibility     ShaderVisibility
}

// StaticSampler is a sampler baked into a root signature.
type StaticSampler struct {
	ShaderRegister uint32
	Filter         Filter
	AddressMode    AddressMode
	Visibility     ShaderVisibility
}

// Filter is a sampler filter mode.
type Filter uint8

const (
	FilterPoint Filter = iota
	FilterLinear
)

// AddressMode is a sampler addressing mode.
type AddressMode uint8

const (
	AddressModeBorder AddressMode = iota
	AddressModeClamp
	AddressModeWrap
)

// RootSignatureDesc describes a root signature. Local signatures are used by
// ray-tracing shaders and are bound through shader records instead of the command list.
type RootSignatureDesc struct {
	Label               string
	Parameters          []RootParameter
	StaticSamplers      []StaticSampler
	Local               bool
	AllowInputAssembler bool
}

// InputElement describes one vertex attribute.
type InputElement struct {
	SemanticName  string
	SemanticIndex uint32
	Format        Format
	InputSlot     uint32
	Offset        uint32
}

// GraphicsPipelineDesc describes a raster pipeline-state object.
type GraphicsPipelineDesc struct {
	Label         string
	RootSignature RootSignature
	VertexShader  ShaderBytecode
	PixelShader   ShaderBytecode
	InputLayout   []InputElement
	Topology      PrimitiveTopology
	RTVFormats    []Format
	DSVFormat     Format
	SampleMask    uint32
	SampleCount   uint32
	DepthEnable   bool
	CullBack      bool
	BlendEnable   bool
}

// ShaderBytecode is compiled shader code plus the entry point it exports.
// Source keeps the human-readable form for backends that compile it themselves.
type ShaderBytecode struct {
	Code       []byte
	EntryPoint string
	Source     string
}

// ShaderLibrary is a compiled ray-tracing library with the exports it provides.
type ShaderLibrary struct {
	Name    string
	Code    []byte
	Exports []string
}

// HitGroup names a closest-hit (and optionally any-hit) shader under a hit-group export.
type HitGroup struct {
	Name         string
	ClosestHit   string
	AnyHit       string
	Intersection string
}

// RootSignatureAssociation binds a local root signature to a set of exports.
type RootSignatureAssociation struct {
	RootSignature RootSignature
	Exports       []string
}

// StateObjectDesc describes a ray-tracing pipeline state object.
type StateObjectDesc struct {
	Label               string
	Libraries           []ShaderLibrary
	HitGroups           []HitGroup
	Associations        []RootSignatureAssociation
	GlobalRootSignature RootSignature
	MaxPayloadSize      uint32
	MaxAttributeSize    uint32
	MaxRecursionDepth   uint32
}

// RaytracingTier is the level of hardware ray-tracing support.
type RaytracingTier uint8

const (
	RaytracingTierNotSupported RaytracingTier = iota
	RaytracingTier1_0
	RaytracingTier1_1
)

func (t RaytracingTier) String() string {
	switch t {
	case RaytracingTier1_0:
		return "1.0"
	case RaytracingTier1_1:
		return "1.1"
	}
	return "not supported"
}

// FeatureLevel is the hardware feature level an adapter or device supports.
type FeatureLevel uint16

const (
	FeatureLevel11_0 FeatureLevel = 0xb000
	FeatureLevel11_1 FeatureLevel = 0xb100
	FeatureLevel12_0 FeatureLevel = 0xc000
	FeatureLevel12_1 FeatureLevel = 0xc100
)

func (f FeatureLevel) String() string {
	switch f {
	case FeatureLevel11_0:
		return "11_0"
	case FeatureLevel11_1:
		return "11_1"
	case FeatureLevel12_0:
		return "12_0"
	case FeatureLevel12_1:
		return "12_1"
	}
	return "unknown"
}

// GeometryDesc is a triangle geometry for a bottom-level acceleration structure.
// IndexBuffer may be zero for non-indexed geometry.
type GeometryDesc struct {
	VertexBuffer uint64
	VertexCount  uint32
	VertexStride uint64
	VertexFormat Format
	IndexBuffer  uint64
	IndexCount   uint32
	IndexFormat  Format
	Opaque       bool
}

// InstanceDesc is one top-level instance, serialized as InstanceDescSize bytes.
type InstanceDesc struct {
	Transform             [12]float32
	InstanceID            uint32
	InstanceMask          uint8
	HitGroupIndex         uint32
	Flags                 uint8
	AccelerationStructure uint64
}

// AccelerationStructureType selects bottom- or top-level.
type AccelerationStructureType uint8

const (
	AccelerationStructureBottomLevel AccelerationStructureType = iota
	AccelerationStructureTopLevel
)

// BuildFlags tune acceleration-structure builds.
type BuildFlags uint8

const (
	BuildFlagNone            BuildFlags = 0
	BuildFlagAllowUpdate     BuildFlags = 1 << 0
	BuildFlagPreferFastTrace BuildFlags = 1 << 1
	BuildFlagPerformUpdate   BuildFlags = 1 << 2
)

// ASInputs are the inputs of an acceleration-structure build.
// Bottom-level builds use Geometries; top-level builds use NumInstances and InstanceDescs.
type ASInputs struct {
	Type          AccelerationStructureType
	Flags         BuildFlags
	Geometries    []GeometryDesc
	NumInstances  uint32
	InstanceDescs uint64
}

// PrebuildInfo reports the buffer sizes an acceleration-structure build needs.
type PrebuildInfo struct {
	ResultDataMaxSize     uint64
	ScratchDataSize       uint64
	UpdateScratchDataSize uint64
}

// BuildASDesc is the argument of CommandList.BuildAccelerationStructure.
type BuildASDesc struct {
	Inputs         ASInputs
	DestAddress    uint64
	ScratchAddress uint64
	SourceAddress  uint64
}

// AddressRange is a region of GPU memory.
type AddressRange struct {
	StartAddress uint64
	SizeInBytes  uint64
}

// AddressRangeAndStride is a strided region of GPU memory.
type AddressRangeAndStride struct {
	StartAddress  uint64
	SizeInBytes   uint64
	StrideInBytes uint64
}

// DispatchRaysDesc is the argument of CommandList.DispatchRays.
type DispatchRaysDesc struct {
	RayGeneration AddressRange
	Miss          AddressRangeAndStride
	HitGroup      AddressRangeAndStride
	Width         uint32
	Height        uint32
	Depth         uint32
}

// SwapChainDesc describes a flip-model swapchain.
type SwapChainDesc struct {
	Width        uint32
	Height       uint32
	Format       Format
	BufferCount  uint32
	SyncInterval uint32
}

// WindowHandle carries the native handles a swapchain presents to.
// Display is zero on platforms without a display connection (Windows, macOS).
type WindowHandle struct {
	Display uintptr
	Window  uintptr
}
