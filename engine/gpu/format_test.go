package gpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBitsPerPixel(t *testing.T) {
	cases := map[Format]uint32{
		FormatR32G32B32A32Float: 128,
		FormatR16G16B16A16Float: 64,
		FormatR16G16B16A16Unorm: 64,
		FormatR8G8B8A8Unorm:     32,
		FormatB8G8R8A8Unorm:     32,
		FormatR10G10B10A2Unorm:  32,
		FormatR32Float:          32,
		FormatB5G6R5Unorm:       16,
		FormatR16Float:          16,
		FormatR8Unorm:           8,
		FormatA8Unorm:           8,
		FormatR32G32B32Float:    96,
		FormatR32G32Float:       64,
		FormatUnknown:           0,
	}
	for f, bits := range cases {
		assert.Equal(t, bits, BitsPerPixel(f), f.String())
	}
}

func TestStripSRGB(t *testing.T) {
	assert.Equal(t, FormatR8G8B8A8Unorm, FormatR8G8B8A8UnormSRGB.StripSRGB())
	assert.Equal(t, FormatB8G8R8A8Unorm, FormatB8G8R8A8UnormSRGB.StripSRGB())
	assert.Equal(t, FormatR8G8B8A8Unorm, FormatR8G8B8A8Unorm.StripSRGB())
	assert.True(t, FormatR8G8B8A8UnormSRGB.IsSRGB())
	assert.False(t, FormatR8G8B8A8Unorm.IsSRGB())
}

func TestResourceStateString(t *testing.T) {
	assert.Equal(t, "COMMON", ResourceStatePresent.String())
	assert.Equal(t, "GENERIC_READ", ResourceStateGenericRead.String())
	assert.Equal(t, "COPY_DEST", ResourceStateCopyDest.String())
	assert.Equal(t, "RENDER_TARGET|COPY_SOURCE", (ResourceStateRenderTarget | ResourceStateCopySource).String())
}

func TestDescriptorHandleOffset(t *testing.T) {
	h := CPUDescriptorHandle{Ptr: 1000}
	assert.Equal(t, uint64(1064), h.Offset(2, 32).Ptr)
	g := GPUDescriptorHandle{Ptr: 1 << 20}
	assert.Equal(t, uint64(1<<20+32), g.Offset(1, 32).Ptr)
}

func TestInstanceDescEncoding(t *testing.T) {
	in := InstanceDesc{
		Transform:             [12]float32{1, 0, 0, 1.5, 0, 1, 0, 0, 0, 0, 1, 0},
		InstanceID:            7,
		InstanceMask:          0xff,
		HitGroupIndex:         3,
		Flags:                 1,
		AccelerationStructure: 0xdead0000,
	}
	buf := make([]byte, InstanceDescSize)
	EncodeInstanceDesc(buf, in)
	assert.Equal(t, in, DecodeInstanceDesc(buf))
}
