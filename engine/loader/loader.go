// Package loader decodes texture images into tightly packed RGBA8 pixel buffers for
// upload through the heap manager.
package loader

import (
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/image/draw"

	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
	"github.com/Carmen-Shannon/oxy-rt/engine/heap"
	"github.com/Carmen-Shannon/oxy-rt/engine/logger"
)

// BitsPerPixel is the size of one decoded pixel. Every format is normalized to RGBA8.
const BitsPerPixel = 32

var (
	// ErrUnsupportedFormat is returned for files no backend decodes.
	ErrUnsupportedFormat = errors.New("loader: unsupported image format")
	// ErrEmptyImage is returned when the decoded image has no pixels.
	ErrEmptyImage = errors.New("loader: image has no pixels")
)

// LoaderBackendType identifies the texture file format backend to use.
type LoaderBackendType int

const (
	// BackendTypeImage selects the still-image backend (PNG, JPEG, BMP, TIFF, WebP).
	BackendTypeImage LoaderBackendType = iota
)

// PixelBuffer is a decoded texture: Height rows of Stride bytes, non-premultiplied RGBA8,
// top row first.
type PixelBuffer struct {
	Width        uint32
	Height       uint32
	BitsPerPixel uint32
	Stride       uint32
	Pixels       []byte
}

// Format returns the pixel format of Pixels.
func (p PixelBuffer) Format() gpu.Format {
	return gpu.FormatR8G8B8A8Unorm
}

// TextureDesc returns the heap description to upload the buffer with.
//
// Returns:
//   - heap.TextureDesc: width, height and format of the texture
func (p PixelBuffer) TextureDesc() heap.TextureDesc {
	return heap.TextureDesc{Width: p.Width, Height: p.Height, Format: p.Format()}
}

// LoadTexture decodes a PNG, JPEG, BMP, TIFF or WebP image from r into RGBA8.
//
// Parameters:
//   - r: the reader providing encoded image data
//
// Returns:
//   - PixelBuffer: the decoded pixels
//   - error: ErrUnsupportedFormat if the data is not a known format, or a decode error
func LoadTexture(r io.Reader) (PixelBuffer, error) {
	img, err := decode(newImageLoaderBackend(), r)
	if err != nil {
		return PixelBuffer{}, err
	}
	return toPixelBuffer(img, 0)
}

// loader is the implementation of the Loader interface.
type loader struct {
	mu sync.RWMutex

	textureCache map[string]PixelBuffer

	backend      loaderBackend
	maxDimension int
}

// Loader decodes textures and caches the results by path or name.
type Loader interface {
	// Load decodes a texture file and caches the result.
	// If the texture is already cached (by file path), the cached version is returned.
	//
	// Parameters:
	//   - path: the file path to the image
	//
	// Returns:
	//   - PixelBuffer: the decoded and cached texture
	//   - error: ErrUnsupportedFormat for an unknown extension, or a read or decode error
	Load(path string) (PixelBuffer, error)

	// LoadReader decodes a texture from a reader stream and caches it by the given name.
	//
	// Parameters:
	//   - name: the cache key for the texture
	//   - r: the reader providing image data
	//
	// Returns:
	//   - PixelBuffer: the decoded texture
	//   - error: error if decoding fails
	LoadReader(name string, r io.Reader) (PixelBuffer, error)

	// Get retrieves a cached texture by name.
	//
	// Parameters:
	//   - name: the cache key to look up
	//
	// Returns:
	//   - PixelBuffer: the cached texture
	//   - bool: false if nothing is cached under name
	Get(name string) (PixelBuffer, bool)

	// Textures returns a copy of the texture cache.
	Textures() map[string]PixelBuffer
}

var _ Loader = &loader{}

// NewLoader creates a new Loader instance with the specified backend type and options applied.
//
// Parameters:
//   - backendType: the type of loader backend to use (e.g., BackendTypeImage)
//   - options: a variadic list of LoaderBuilderOption functions to configure the Loader
//
// Returns:
//   - Loader: a new instance of Loader configured with the provided backend and options
func NewLoader(backendType LoaderBackendType, options ...LoaderBuilderOption) Loader {
	l := &loader{
		textureCache: make(map[string]PixelBuffer),
	}

	switch backendType {
	case BackendTypeImage:
		l.backend = newImageLoaderBackend()
	}

	for _, option := range options {
		option(l)
	}
	return l
}

func (l *loader) Load(path string) (PixelBuffer, error) {
	if pb, ok := l.Get(path); ok {
		return pb, nil
	}

	ext := strings.ToLower(filepath.Ext(path))
	if !l.backend.Supports(ext) {
		return PixelBuffer{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return PixelBuffer{}, fmt.Errorf("failed to open texture: %w", err)
	}
	defer f.Close()

	return l.LoadReader(path, f)
}

func (l *loader) LoadReader(name string, r io.Reader) (PixelBuffer, error) {
	img, err := decode(l.backend, r)
	if err != nil {
		return PixelBuffer{}, fmt.Errorf("failed to load %s: %w", name, err)
	}
	pb, err := toPixelBuffer(img, l.maxDimension)
	if err != nil {
		return PixelBuffer{}, fmt.Errorf("failed to load %s: %w", name, err)
	}

	l.mu.Lock()
	l.textureCache[name] = pb
	l.mu.Unlock()

	logger.Logger().Debug("texture loaded", "name", name, "width", pb.Width, "height", pb.Height)
	return pb, nil
}

func (l *loader) Get(name string) (PixelBuffer, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pb, ok := l.textureCache[name]
	return pb, ok
}

func (l *loader) Textures() map[string]PixelBuffer {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]PixelBuffer, len(l.textureCache))
	for k, v := range l.textureCache {
		out[k] = v
	}
	return out
}

func decode(backend loaderBackend, r io.Reader) (image.Image, error) {
	img, _, err := backend.Decode(r)
	if errors.Is(err, image.ErrFormat) {
		return nil, ErrUnsupportedFormat
	}
	return img, err
}

// toPixelBuffer converts img to tightly packed RGBA8. When maxDimension is positive and
// either side exceeds it, the image is scaled down preserving its aspect ratio.
func toPixelBuffer(img image.Image, maxDimension int) (PixelBuffer, error) {
	b := img.Bounds()
	if b.Empty() {
		return PixelBuffer{}, ErrEmptyImage
	}

	w, h := b.Dx(), b.Dy()
	if maxDimension > 0 && max(w, h) > maxDimension {
		if w >= h {
			w, h = maxDimension, max(h*maxDimension/w, 1)
		} else {
			w, h = max(w*maxDimension/h, 1), maxDimension
		}
	}

	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	}

	return PixelBuffer{
		Width:        uint32(w),
		Height:       uint32(h),
		BitsPerPixel: BitsPerPixel,
		Stride:       uint32(dst.Stride),
		Pixels:       dst.Pix,
	}, nil
}
