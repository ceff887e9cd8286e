package gpu

// Format is a pixel or vertex-attribute format.
type Format uint16

const (
	FormatUnknown Format = iota
	FormatR32G32B32A32Float
	FormatR16G16B16A16Float
	FormatR16G16B16A16Unorm
	FormatR8G8B8A8Unorm
	FormatR8G8B8A8UnormSRGB
	FormatB8G8R8A8Unorm
	FormatB8G8R8A8UnormSRGB
	FormatB8G8R8X8Unorm
	FormatR10G10B10XRBiasA2Unorm
	FormatR10G10B10A2Unorm
	FormatB5G5R5A1Unorm
	FormatB5G6R5Unorm
	FormatR32Float
	FormatR16Float
	FormatR16Unorm
	FormatR8Unorm
	FormatA8Unorm
	FormatR32G32B32Float
	FormatR32G32Float
	FormatR32Uint
	FormatR16Uint
	FormatD32Float
)

var formatNames = map[Format]string{
	FormatUnknown:                "UNKNOWN",
	FormatR32G32B32A32Float:      "R32G32B32A32_FLOAT",
	FormatR16G16B16A16Float:      "R16G16B16A16_FLOAT",
	FormatR16G16B16A16Unorm:      "R16G16B16A16_UNORM",
	FormatR8G8B8A8Unorm:          "R8G8B8A8_UNORM",
	FormatR8G8B8A8UnormSRGB:      "R8G8B8A8_UNORM_SRGB",
	FormatB8G8R8A8Unorm:          "B8G8R8A8_UNORM",
	FormatB8G8R8A8UnormSRGB:      "B8G8R8A8_UNORM_SRGB",
	FormatB8G8R8X8Unorm:          "B8G8R8X8_UNORM",
	FormatR10G10B10XRBiasA2Unorm: "R10G10B10_XR_BIAS_A2_UNORM",
	FormatR10G10B10A2Unorm:       "R10G10B10A2_UNORM",
	FormatB5G5R5A1Unorm:          "B5G5R5A1_UNORM",
	FormatB5G6R5Unorm:            "B5G6R5_UNORM",
	FormatR32Float:               "R32_FLOAT",
	FormatR16Float:               "R16_FLOAT",
	FormatR16Unorm:               "R16_UNORM",
	FormatR8Unorm:                "R8_UNORM",
	FormatA8Unorm:                "A8_UNORM",
	FormatR32G32B32Float:         "R32G32B32_FLOAT",
	FormatR32G32Float:            "R32G32_FLOAT",
	FormatR32Uint:                "R32_UINT",
	FormatR16Uint:                "R16_UINT",
	FormatD32Float:               "D32_FLOAT",
}

func (f Format) String() string {
	if n, ok := formatNames[f]; ok {
		return n
	}
	return "UNKNOWN"
}

// BitsPerPixel returns the size of one element of f in bits, or 0 for FormatUnknown.
//
// Parameters:
//   - f: the format to measure
//
// Returns:
//   - uint32: bits per pixel or per vertex attribute
func BitsPerPixel(f Format) uint32 {
	switch f {
	case FormatR32G32B32A32Float:
		return 128
	case FormatR32G32B32Float:
		return 96
	case FormatR16G16B16A16Float, FormatR16G16B16A16Unorm, FormatR32G32Float:
		return 64
	case FormatR8G8B8A8Unorm, FormatR8G8B8A8UnormSRGB, FormatB8G8R8A8Unorm, FormatB8G8R8A8UnormSRGB,
		FormatB8G8R8X8Unorm, FormatR10G10B10XRBiasA2Unorm, FormatR10G10B10A2Unorm,
		FormatR32Float, FormatR32Uint, FormatD32Float:
		return 32
	case FormatB5G5R5A1Unorm, FormatB5G6R5Unorm, FormatR16Float, FormatR16Unorm, FormatR16Uint:
		return 16
	case FormatR8Unorm, FormatA8Unorm:
		return 8
	}
	return 0
}

// IsSRGB reports whether f is a gamma-corrected format.
func (f Format) IsSRGB() bool {
	return f == FormatR8G8B8A8UnormSRGB || f == FormatB8G8R8A8UnormSRGB
}

// StripSRGB returns the linear counterpart of a gamma-corrected format.
// Unordered-access views cannot bind gamma formats, so UAV targets use this.
//
// Returns:
//   - Format: the linear format, or f unchanged if it is already linear
func (f Format) StripSRGB() Format {
	switch f {
	case FormatR8G8B8A8UnormSRGB:
		return FormatR8G8B8A8Unorm
	case FormatB8G8R8A8UnormSRGB:
		return FormatB8G8R8A8Unorm
	}
	return f
}
