// Package shader loads and compiles the engine's shader artifacts.
//
// Raster programs are WGSL. They are compiled with naga to SPIR-V and translated to HLSL,
// and the WGSL source is kept for backends that build their own modules from it.
// Ray-tracing libraries are HLSL. They are checked for balanced structure and for the
// exports the pipeline needs; the HLSL itself is compiled by the device.
package shader

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/hlsl"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/naga/spirv"

	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
)

// Stage names the compilation step or shader stage a CompileError came from.
type Stage string

const (
	StageRead     Stage = "read"
	StageParse    Stage = "parse"
	StageLower    Stage = "lower"
	StageValidate Stage = "validate"
	StageSPIRV    Stage = "spirv"
	StageHLSL     Stage = "hlsl"
	StageVertex   Stage = "vertex"
	StagePixel    Stage = "pixel"
	StageLibrary  Stage = "library"
)

// CompileError reports a shader artifact that could not be loaded or compiled.
type CompileError struct {
	Artifact   string
	Stage      Stage
	Diagnostic string
	Err        error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("shader %s: %s: %s", e.Artifact, e.Stage, e.Diagnostic)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

func compileError(artifact string, stage Stage, err error) *CompileError {
	return &CompileError{Artifact: artifact, Stage: stage, Diagnostic: err.Error(), Err: err}
}

// Program is a compiled WGSL raster program with one vertex and one fragment entry point.
type Program struct {
	Name   string
	Source string
	SPIRV  []byte
	HLSL   string

	vertexEntry string
	pixelEntry  string
}

// Vertex returns the vertex stage of the program.
func (p *Program) Vertex() gpu.ShaderBytecode {
	return gpu.ShaderBytecode{Code: p.SPIRV, EntryPoint: p.vertexEntry, Source: p.Source}
}

// Pixel returns the fragment stage of the program.
func (p *Program) Pixel() gpu.ShaderBytecode {
	return gpu.ShaderBytecode{Code: p.SPIRV, EntryPoint: p.pixelEntry, Source: p.Source}
}

// CompileProgram compiles WGSL source into a Program.
//
// Parameters:
//   - name: the artifact name used in errors
//   - source: WGSL source with exactly one @vertex and one @fragment entry point
//
// Returns:
//   - *Program: the compiled program
//   - error: a *CompileError naming the failed step
func CompileProgram(name, source string) (*Program, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return nil, compileError(name, StageParse, err)
	}
	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, compileError(name, StageLower, err)
	}
	problems, err := naga.Validate(module)
	if err != nil {
		return nil, compileError(name, StageValidate, err)
	}
	if len(problems) > 0 {
		return nil, compileError(name, StageValidate, &problems[0])
	}

	p := &Program{Name: name, Source: source}
	for _, ep := range module.EntryPoints {
		switch ep.Stage {
		case ir.StageVertex:
			p.vertexEntry = ep.Name
		case ir.StageFragment:
			p.pixelEntry = ep.Name
		}
	}
	if p.vertexEntry == "" {
		return nil, &CompileError{Artifact: name, Stage: StageVertex, Diagnostic: "no @vertex entry point"}
	}
	if p.pixelEntry == "" {
		return nil, &CompileError{Artifact: name, Stage: StagePixel, Diagnostic: "no @fragment entry point"}
	}

	p.SPIRV, err = naga.GenerateSPIRV(module, spirv.Options{Version: spirv.Version1_3})
	if err != nil {
		return nil, compileError(name, StageSPIRV, err)
	}
	p.HLSL, _, err = hlsl.Compile(module, hlsl.DefaultOptions())
	if err != nil {
		return nil, compileError(name, StageHLSL, err)
	}
	return p, nil
}

// Library is an HLSL ray-tracing library and the exports found in it.
type Library struct {
	Name    string
	Source  string
	Exports []string
	// Stages maps each export to its [shader("...")] stage.
	Stages map[string]string
}

// ShaderLibrary returns the library in the form a state object consumes.
func (l *Library) ShaderLibrary() gpu.ShaderLibrary {
	return gpu.ShaderLibrary{Name: l.Name, Code: []byte(l.Source), Exports: append([]string(nil), l.Exports...)}
}

var exportPattern = regexp.MustCompile(`\[shader\("(\w+)"\)\]\s*void\s+(\w+)\s*\(`)

// CompileLibrary scans HLSL source for attributed exports and checks that every wanted
// export is present. Only the wanted exports are kept.
//
// Parameters:
//   - name: the artifact name used in errors
//   - source: HLSL library source
//   - wanted: the exports the pipeline needs
//
// Returns:
//   - *Library: the library
//   - error: a *CompileError naming the first missing export
func CompileLibrary(name, source string, wanted ...string) (*Library, error) {
	if err := checkStructure(source); err != nil {
		return nil, &CompileError{Artifact: name, Stage: StageLibrary, Diagnostic: err.Error()}
	}
	found := make(map[string]string)
	for _, m := range exportPattern.FindAllStringSubmatch(source, -1) {
		found[m[2]] = m[1]
	}
	lib := &Library{Name: name, Source: source, Stages: make(map[string]string)}
	for _, w := range wanted {
		stage, ok := found[w]
		if !ok {
			names := make([]string, 0, len(found))
			for n := range found {
				names = append(names, n)
			}
			sort.Strings(names)
			return nil, &CompileError{
				Artifact:   name,
				Stage:      StageLibrary,
				Diagnostic: fmt.Sprintf("missing export %q (found %v)", w, names),
			}
		}
		lib.Exports = append(lib.Exports, w)
		lib.Stages[w] = stage
	}
	return lib, nil
}

// checkStructure rejects HLSL whose brackets do not pair up or whose comment or string
// never ends. Preprocessor lines are skipped.
func checkStructure(source string) error {
	closing := map[byte]byte{'}': '{', ')': '(', ']': '['}
	var open []byte
	var lines []int
	line := 1
	for i := 0; i < len(source); i++ {
		c := source[i]
		switch {
		case c == '\n':
			line++
		case c == '#' && lineStart(source, i):
			for i < len(source) && source[i] != '\n' {
				i++
			}
			line++
		case strings.HasPrefix(source[i:], "//"):
			for i < len(source) && source[i] != '\n' {
				i++
			}
			line++
		case strings.HasPrefix(source[i:], "/*"):
			end := strings.Index(source[i+2:], "*/")
			if end < 0 {
				return fmt.Errorf("line %d: unterminated block comment", line)
			}
			line += strings.Count(source[i:i+2+end], "\n")
			i += end + 3
		case c == '"':
			end := strings.IndexAny(source[i+1:], "\"\n")
			if end < 0 || source[i+1+end] != '"' {
				return fmt.Errorf("line %d: unterminated string", line)
			}
			i += end + 1
		case c == '{' || c == '(' || c == '[':
			open = append(open, c)
			lines = append(lines, line)
		case closing[c] != 0:
			if len(open) == 0 || open[len(open)-1] != closing[c] {
				return fmt.Errorf("line %d: unexpected %q", line, c)
			}
			open, lines = open[:len(open)-1], lines[:len(lines)-1]
		}
	}
	if n := len(open); n > 0 {
		return fmt.Errorf("line %d: %q is never closed", lines[n-1], open[n-1])
	}
	return nil
}

// lineStart reports whether only blanks precede i on its line.
func lineStart(source string, i int) bool {
	for j := i - 1; j >= 0 && source[j] != '\n'; j-- {
		if source[j] != ' ' && source[j] != '\t' {
			return false
		}
	}
	return true
}
