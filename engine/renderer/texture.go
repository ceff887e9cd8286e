package renderer

import "github.com/Carmen-Shannon/oxy-rt/engine/loader"

const (
	checkerSize = 64
	checkerCell = 8
)

// defaultTexture is a grey and white checker used when no texture was configured.
func defaultTexture() loader.PixelBuffer {
	pb := loader.PixelBuffer{
		Width:        checkerSize,
		Height:       checkerSize,
		BitsPerPixel: loader.BitsPerPixel,
		Stride:       checkerSize * 4,
		Pixels:       make([]byte, checkerSize*checkerSize*4),
	}
	for y := range checkerSize {
		for x := range checkerSize {
			v := byte(0x60)
			if (x/checkerCell+y/checkerCell)%2 == 0 {
				v = 0xff
			}
			i := (y*checkerSize + x) * 4
			pb.Pixels[i], pb.Pixels[i+1], pb.Pixels[i+2], pb.Pixels[i+3] = v, v, v, 0xff
		}
	}
	return pb
}
