package shader

import (
	"io/fs"
	"os"
)

// LoaderBuilderOption is a functional option for configuring a Loader.
type LoaderBuilderOption func(*loader)

// WithDirectory makes artifacts in dir override the embedded defaults. Artifacts missing
// from dir still come from the defaults.
//
// Parameters:
//   - dir: the override directory; "" keeps the defaults only
//
// Returns:
//   - LoaderBuilderOption: option function to apply
func WithDirectory(dir string) LoaderBuilderOption {
	return func(l *loader) {
		if dir == "" {
			return
		}
		l.dir = dir
		l.fsys = overlayFS{top: os.DirFS(dir), base: l.fsys}
	}
}

// WithFS replaces the artifact source entirely. Used by tests and tools that ship their
// own shaders.
//
// Parameters:
//   - fsys: the file system artifacts are read from
//
// Returns:
//   - LoaderBuilderOption: option function to apply
func WithFS(fsys fs.FS) LoaderBuilderOption {
	return func(l *loader) {
		l.fsys = fsys
	}
}
