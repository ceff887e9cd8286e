package loader

// LoaderBuilderOption is a functional option for configuring a Loader via NewLoader.
type LoaderBuilderOption func(*loader)

// WithMaxDimension is an option builder that scales down textures whose width or height
// exceeds n. Zero disables scaling.
//
// Parameters:
//   - n: the largest allowed side in pixels
//
// Returns:
//   - LoaderBuilderOption: a function that applies the limit to a loader
func WithMaxDimension(n int) LoaderBuilderOption {
	return func(l *loader) {
		l.maxDimension = max(n, 0)
	}
}

// WithTexture is an option builder that pre-populates the texture cache.
//
// Parameters:
//   - key: the cache key for the texture
//   - pb: the texture to cache
//
// Returns:
//   - LoaderBuilderOption: a function that applies the texture option to a loader
func WithTexture(key string, pb PixelBuffer) LoaderBuilderOption {
	return func(l *loader) {
		l.textureCache[key] = pb
	}
}
