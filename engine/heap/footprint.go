package heap

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
)

// Footprint is the layout of a 2D texture inside an upload buffer.
type Footprint struct {
	// RowSize is the number of meaningful bytes per row.
	RowSize uint32
	// RowPitch is RowSize rounded up to the texture data pitch alignment.
	RowPitch uint32
	// TotalSize is the upload buffer size: full pitch for every row but the last.
	TotalSize uint64
}

// TextureFootprint computes the upload layout for a width x height texture.
//
// Parameters:
//   - width, height: dimensions in pixels
//   - format: the texture format
//
// Returns:
//   - Footprint: the layout
//   - error: if the format has no known size or a dimension is zero
func TextureFootprint(width, height uint32, format gpu.Format) (Footprint, error) {
	bpp := gpu.BitsPerPixel(format)
	if bpp == 0 || bpp%8 != 0 {
		return Footprint{}, fmt.Errorf("format %s has no byte size", format)
	}
	if width == 0 || height == 0 {
		return Footprint{}, fmt.Errorf("texture dimensions %dx%d must be non-zero", width, height)
	}
	row := width * (bpp / 8)
	pitch := common.AlignUp(row, uint32(gpu.TextureDataPitchAlignment))
	return Footprint{
		RowSize:   row,
		RowPitch:  pitch,
		TotalSize: uint64(pitch)*uint64(height-1) + uint64(row),
	}, nil
}

// Pack copies tightly packed rows from src into dst at RowPitch spacing.
func (f Footprint) Pack(dst, src []byte, height uint32) {
	row := uint64(f.RowSize)
	for y := uint64(0); y < uint64(height); y++ {
		at := y * uint64(f.RowPitch)
		copy(dst[at:at+row], src[y*row:(y+1)*row])
	}
}
