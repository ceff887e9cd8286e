package loader

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"slices"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// imageExtensions lists the file extensions of every registered image format.
var imageExtensions = []string{".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff", ".webp"}

// imageLoaderBackendImpl is the implementation of imageLoaderBackend.
type imageLoaderBackendImpl struct{}

// imageLoaderBackend is a loaderBackend for the image formats registered with the image
// package: PNG, JPEG, BMP, TIFF and WebP. The format is sniffed from the data, not the
// extension.
type imageLoaderBackend interface {
	loaderBackend
}

var _ imageLoaderBackend = &imageLoaderBackendImpl{}

// newImageLoaderBackend creates a new image loader backend.
//
// Returns:
//   - imageLoaderBackend: the loader backend for still images
func newImageLoaderBackend() imageLoaderBackend {
	return &imageLoaderBackendImpl{}
}

func (b *imageLoaderBackendImpl) Supports(ext string) bool {
	return slices.Contains(imageExtensions, ext)
}

func (b *imageLoaderBackendImpl) Decode(r io.Reader) (image.Image, string, error) {
	return image.Decode(r)
}
