package shader

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Carmen-Shannon/oxy-rt/engine/logger"
)

//go:embed assets/*
var assets embed.FS

// Artifact names of the embedded defaults.
const (
	CubeProgram   = "cube.wgsl"
	RayGenLibrary = "raygen.hlsl"
	MissLibrary   = "miss.hlsl"
	HitLibrary    = "hit.hlsl"
)

// Export names the ray-tracing pipeline binds.
const (
	RayGenExport     = "RayGen"
	MissExport       = "Miss"
	ClosestHitExport = "ClosestHit"
)

// maxIncludeDepth bounds nested #include expansion.
const maxIncludeDepth = 8

var includePattern = regexp.MustCompile(`(?m)^\s*#include\s+"([^"]+)"\s*$`)

// Set is every artifact the renderer needs.
type Set struct {
	Cube   *Program
	RayGen *Library
	Miss   *Library
	Hit    *Library
}

// Libraries returns the ray-tracing libraries in pipeline order.
func (s *Set) Libraries() []*Library {
	return []*Library{s.RayGen, s.Miss, s.Hit}
}

// loader is the implementation of the Loader interface.
type loader struct {
	fsys fs.FS
	dir  string
}

// Loader reads shader artifacts by name and compiles them.
type Loader interface {
	// Program loads and compiles a WGSL raster program.
	//
	// Parameters:
	//   - name: the artifact name, e.g. "cube.wgsl"
	//
	// Returns:
	//   - *Program: the compiled program
	//   - error: a *CompileError, wrapping fs.ErrNotExist when the artifact is missing
	Program(name string) (*Program, error)

	// Library loads an HLSL ray-tracing library and checks it exports wanted.
	//
	// Parameters:
	//   - name: the artifact name, e.g. "raygen.hlsl"
	//   - wanted: the exports the library must provide
	//
	// Returns:
	//   - *Library: the library with #include directives expanded
	//   - error: a *CompileError
	Library(name string, wanted ...string) (*Library, error)

	// LoadAll compiles the cube program and the three ray-tracing libraries concurrently.
	//
	// Parameters:
	//   - ctx: cancels loading between artifacts
	//
	// Returns:
	//   - *Set: every artifact
	//   - error: the first failure
	LoadAll(ctx context.Context) (*Set, error)

	// Dir is the override directory, or "" when only the embedded defaults are used.
	Dir() string
}

var _ Loader = &loader{}

// NewLoader creates a Loader over the embedded default artifacts.
//
// Parameters:
//   - options: functional options for loader configuration
//
// Returns:
//   - Loader: the loader
func NewLoader(options ...LoaderBuilderOption) Loader {
	sub, err := fs.Sub(assets, "assets")
	if err != nil {
		panic(fmt.Sprintf("shader: embedded assets missing: %v", err))
	}
	l := &loader{fsys: sub}
	for _, opt := range options {
		opt(l)
	}
	return l
}

func (l *loader) Dir() string {
	return l.dir
}

func (l *loader) read(name string) (string, error) {
	return l.expand(name, 0)
}

func (l *loader) expand(name string, depth int) (string, error) {
	if depth > maxIncludeDepth {
		return "", fmt.Errorf("includes nested deeper than %d", maxIncludeDepth)
	}
	data, err := fs.ReadFile(l.fsys, name)
	if err != nil {
		return "", err
	}
	src := string(data)
	var expandErr error
	src = includePattern.ReplaceAllStringFunc(src, func(line string) string {
		if expandErr != nil {
			return line
		}
		inc := includePattern.FindStringSubmatch(line)[1]
		body, err := l.expand(inc, depth+1)
		if err != nil {
			expandErr = fmt.Errorf("include %q: %w", inc, err)
			return line
		}
		return strings.TrimRight(body, "\n")
	})
	return src, expandErr
}

func (l *loader) Program(name string) (*Program, error) {
	src, err := l.read(name)
	if err != nil {
		return nil, compileError(name, StageRead, err)
	}
	p, err := CompileProgram(name, src)
	if err != nil {
		return nil, err
	}
	logger.Logger().Debug("shader program compiled", "artifact", name, "spirv", len(p.SPIRV), "vertex", p.vertexEntry, "pixel", p.pixelEntry)
	return p, nil
}

func (l *loader) Library(name string, wanted ...string) (*Library, error) {
	src, err := l.read(name)
	if err != nil {
		return nil, compileError(name, StageRead, err)
	}
	lib, err := CompileLibrary(name, src, wanted...)
	if err != nil {
		return nil, err
	}
	logger.Logger().Debug("shader library loaded", "artifact", name, "exports", lib.Exports)
	return lib, nil
}

func (l *loader) LoadAll(ctx context.Context) (*Set, error) {
	set := &Set{}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		p, err := l.Program(CubeProgram)
		set.Cube = p
		return err
	})
	libs := []struct {
		name   string
		export string
		dst    **Library
	}{
		{RayGenLibrary, RayGenExport, &set.RayGen},
		{MissLibrary, MissExport, &set.Miss},
		{HitLibrary, ClosestHitExport, &set.Hit},
	}
	for _, lib := range libs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			compiled, err := l.Library(lib.name, lib.export)
			*lib.dst = compiled
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return set, nil
}

// overlayFS serves files from top first and falls back to base.
type overlayFS struct {
	top  fs.FS
	base fs.FS
}

func (o overlayFS) Open(name string) (fs.File, error) {
	f, err := o.top.Open(name)
	if err == nil {
		return f, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return o.base.Open(name)
}
