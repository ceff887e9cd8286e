package loader

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
	"github.com/Carmen-Shannon/oxy-rt/engine/heap"
)

// checker returns an opaque w x h image where pixel (x, y) is (x*16, y*16, 128, 255).
func checker(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 16), G: uint8(y * 16), B: 128, A: 255})
		}
	}
	return img
}

func TestLoadTextureLosslessFormats(t *testing.T) {
	src := checker(5, 3)
	encoders := map[string]func(*bytes.Buffer) error{
		"png":  func(b *bytes.Buffer) error { return png.Encode(b, src) },
		"bmp":  func(b *bytes.Buffer) error { return bmp.Encode(b, src) },
		"tiff": func(b *bytes.Buffer) error { return tiff.Encode(b, src, nil) },
	}
	for name, encode := range encoders {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, encode(&buf))

			pb, err := LoadTexture(&buf)
			require.NoError(t, err)
			assert.Equal(t, uint32(5), pb.Width)
			assert.Equal(t, uint32(3), pb.Height)
			assert.Equal(t, uint32(32), pb.BitsPerPixel)
			assert.Equal(t, uint32(20), pb.Stride)
			assert.Equal(t, src.Pix, pb.Pixels)
			assert.Equal(t, gpu.FormatR8G8B8A8Unorm, pb.Format())
		})
	}
}

func TestLoadTextureJPEG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, checker(16, 8), nil))

	pb, err := LoadTexture(&buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(16), pb.Width)
	assert.Equal(t, uint32(8), pb.Height)
	assert.Len(t, pb.Pixels, 16*8*4)
	for i := 3; i < len(pb.Pixels); i += 4 {
		require.Equal(t, byte(255), pb.Pixels[i])
	}
}

func TestLoadTextureRejectsUnknownData(t *testing.T) {
	_, err := LoadTexture(bytes.NewReader([]byte("definitely not an image")))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoaderCachesByPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checker.png")
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, checker(4, 4)))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	l := NewLoader(BackendTypeImage)
	pb, err := l.Load(path)
	require.NoError(t, err)
	assert.Equal(t, heap.TextureDesc{Width: 4, Height: 4, Format: gpu.FormatR8G8B8A8Unorm}, pb.TextureDesc())

	// the cached copy is returned even after the file is gone
	require.NoError(t, os.Remove(path))
	again, err := l.Load(path)
	require.NoError(t, err)
	assert.Equal(t, pb, again)
	assert.Len(t, l.Textures(), 1)

	_, err = l.Load(filepath.Join(dir, "notes.txt"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoaderScalesToMaxDimension(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, checker(8, 4)))

	l := NewLoader(BackendTypeImage, WithMaxDimension(4))
	pb, err := l.LoadReader("wide", &buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), pb.Width)
	assert.Equal(t, uint32(2), pb.Height)
	assert.Len(t, pb.Pixels, 4*2*4)

	cached, ok := l.Get("wide")
	require.True(t, ok)
	assert.Equal(t, pb, cached)
}

func TestWithTexturePrepopulatesCache(t *testing.T) {
	pb := PixelBuffer{Width: 1, Height: 1, BitsPerPixel: 32, Stride: 4, Pixels: []byte{1, 2, 3, 4}}
	l := NewLoader(BackendTypeImage, WithTexture("white", pb))
	got, ok := l.Get("white")
	require.True(t, ok)
	assert.Equal(t, pb, got)
}
