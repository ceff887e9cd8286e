package loader

import (
	"image"
	"io"
)

// loaderBackend defines the generic interface for decoding textures from streams.
// Concrete implementations (e.g., imageLoaderBackend) handle format-specific details.
type loaderBackend interface {
	// Supports reports whether the backend decodes files with the given extension.
	//
	// Parameters:
	//   - ext: the lower-case file extension including the dot
	//
	// Returns:
	//   - bool: true if the extension is handled
	Supports(ext string) bool

	// Decode reads one image from r.
	//
	// Parameters:
	//   - r: the reader providing encoded image data
	//
	// Returns:
	//   - image.Image: the decoded image
	//   - string: the format name the data was detected as
	//   - error: error if decoding fails
	Decode(r io.Reader) (image.Image, string, error)
}
