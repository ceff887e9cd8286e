package halgpu

import (
	"github.com/gogpu/gputypes"

	"github.com/Carmen-Shannon/oxy-rt/engine/adapter"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
)

func textureFormat(f gpu.Format) (gputypes.TextureFormat, bool) {
	switch f {
	case gpu.FormatR8G8B8A8Unorm:
		return gputypes.TextureFormatRGBA8Unorm, true
	case gpu.FormatR8G8B8A8UnormSRGB:
		return gputypes.TextureFormatRGBA8UnormSrgb, true
	case gpu.FormatB8G8R8A8Unorm:
		return gputypes.TextureFormatBGRA8Unorm, true
	case gpu.FormatB8G8R8A8UnormSRGB:
		return gputypes.TextureFormatBGRA8UnormSrgb, true
	case gpu.FormatD32Float:
		return gputypes.TextureFormatDepth32Float, true
	}
	return 0, false
}

func vertexFormat(f gpu.Format) (gputypes.VertexFormat, bool) {
	switch f {
	case gpu.FormatR32Float:
		return gputypes.VertexFormatFloat32, true
	case gpu.FormatR32G32Float:
		return gputypes.VertexFormatFloat32x2, true
	case gpu.FormatR32G32B32Float:
		return gputypes.VertexFormatFloat32x3, true
	case gpu.FormatR32G32B32A32Float:
		return gputypes.VertexFormatFloat32x4, true
	}
	return 0, false
}

func indexFormat(f gpu.Format) (gputypes.IndexFormat, bool) {
	switch f {
	case gpu.FormatR32Uint:
		return gputypes.IndexFormatUint32, true
	case gpu.FormatR16Uint:
		return gputypes.IndexFormatUint16, true
	}
	return 0, false
}

// bufferUsage derives the usages a committed buffer needs from its heap. Upload buffers
// are also bound directly as vertex, index and constant data.
func bufferUsage(heap gpu.HeapType, flags gpu.ResourceFlags) gputypes.BufferUsage {
	switch heap {
	case gpu.HeapTypeUpload:
		return gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst |
			gputypes.BufferUsageVertex | gputypes.BufferUsageIndex | gputypes.BufferUsageUniform
	case gpu.HeapTypeReadback:
		return gputypes.BufferUsageCopyDst | gputypes.BufferUsageMapRead
	}
	usage := gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst |
		gputypes.BufferUsageVertex | gputypes.BufferUsageIndex | gputypes.BufferUsageUniform
	if flags&gpu.ResourceFlagAllowUnorderedAccess != 0 {
		usage |= gputypes.BufferUsageStorage
	}
	return usage
}

func textureUsage(flags gpu.ResourceFlags) gputypes.TextureUsage {
	usage := gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst
	if flags&(gpu.ResourceFlagAllowRenderTarget|gpu.ResourceFlagAllowDepthStencil) != 0 {
		usage |= gputypes.TextureUsageRenderAttachment
	}
	if flags&gpu.ResourceFlagAllowUnorderedAccess != 0 {
		usage |= gputypes.TextureUsageStorageBinding
	}
	if flags&(gpu.ResourceFlagAllowDepthStencil) == 0 {
		usage |= gputypes.TextureUsageTextureBinding
	}
	return usage
}

// bufferStateUsage maps a resource state onto the buffer usage a barrier transitions.
func bufferStateUsage(s gpu.ResourceState) gputypes.BufferUsage {
	var u gputypes.BufferUsage
	if s&gpu.ResourceStateCopyDest != 0 {
		u |= gputypes.BufferUsageCopyDst
	}
	if s&gpu.ResourceStateCopySource != 0 {
		u |= gputypes.BufferUsageCopySrc
	}
	if s&gpu.ResourceStateVertexAndConstantBuffer != 0 {
		u |= gputypes.BufferUsageVertex | gputypes.BufferUsageUniform
	}
	if s&gpu.ResourceStateIndexBuffer != 0 {
		u |= gputypes.BufferUsageIndex
	}
	if s&(gpu.ResourceStateUnorderedAccess|gpu.ResourceStateNonPixelShaderResource|
		gpu.ResourceStatePixelShaderResource|gpu.ResourceStateRaytracingAccelerationStructure) != 0 {
		u |= gputypes.BufferUsageStorage
	}
	return u
}

// textureStateUsage maps a resource state onto the texture usage a barrier transitions.
// Present has no usage of its own; the surface expects its texture as a render attachment.
func textureStateUsage(s gpu.ResourceState) gputypes.TextureUsage {
	if s == gpu.ResourceStatePresent {
		return gputypes.TextureUsageRenderAttachment
	}
	var u gputypes.TextureUsage
	if s&gpu.ResourceStateCopyDest != 0 {
		u |= gputypes.TextureUsageCopyDst
	}
	if s&gpu.ResourceStateCopySource != 0 {
		u |= gputypes.TextureUsageCopySrc
	}
	if s&(gpu.ResourceStateRenderTarget|gpu.ResourceStateDepthWrite) != 0 {
		u |= gputypes.TextureUsageRenderAttachment
	}
	if s&(gpu.ResourceStatePixelShaderResource|gpu.ResourceStateNonPixelShaderResource) != 0 {
		u |= gputypes.TextureUsageTextureBinding
	}
	if s&gpu.ResourceStateUnorderedAccess != 0 {
		u |= gputypes.TextureUsageStorageBinding
	}
	return u
}

func deviceType(t gputypes.DeviceType) adapter.DeviceType {
	switch t {
	case gputypes.DeviceTypeIntegratedGPU:
		return adapter.DeviceTypeIntegrated
	case gputypes.DeviceTypeDiscreteGPU:
		return adapter.DeviceTypeDiscrete
	case gputypes.DeviceTypeVirtualGPU:
		return adapter.DeviceTypeVirtual
	case gputypes.DeviceTypeCPU:
		return adapter.DeviceTypeCPU
	}
	return adapter.DeviceTypeOther
}

var backendNames = map[gputypes.Backend]string{
	gputypes.BackendVulkan: "vulkan",
	gputypes.BackendDX12:   "dx12",
	gputypes.BackendMetal:  "metal",
	gputypes.BackendGL:     "gles",
	gputypes.BackendEmpty:  "software",
}

func backendName(b gputypes.Backend) string {
	if n, ok := backendNames[b]; ok {
		return n
	}
	return "other"
}

// ParseBackend maps a configuration name onto a hal backend. The software rasterizer
// registers as the empty backend.
//
// Parameters:
//   - name: "vulkan", "dx12", "metal", "gles" or "software"
//
// Returns:
//   - gputypes.Backend: the backend
//   - bool: false for unknown names
func ParseBackend(name string) (gputypes.Backend, bool) {
	for b, n := range backendNames {
		if n == name {
			return b, true
		}
	}
	return 0, false
}

func addressMode(m gpu.AddressMode) gputypes.AddressMode {
	if m == gpu.AddressModeWrap {
		return gputypes.AddressModeRepeat
	}
	return gputypes.AddressModeClampToEdge
}

func filterMode(f gpu.Filter) gputypes.FilterMode {
	if f == gpu.FilterLinear {
		return gputypes.FilterModeLinear
	}
	return gputypes.FilterModeNearest
}

func shaderStages(v gpu.ShaderVisibility) gputypes.ShaderStage {
	switch v {
	case gpu.ShaderVisibilityVertex:
		return gputypes.ShaderStageVertex
	case gpu.ShaderVisibilityPixel:
		return gputypes.ShaderStageFragment
	}
	return gputypes.ShaderStageVertex | gputypes.ShaderStageFragment
}
