package shader

import (
	"context"
	"encoding/binary"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAllEmbedded(t *testing.T) {
	set, err := NewLoader().LoadAll(context.Background())
	require.NoError(t, err)

	require.NotNil(t, set.Cube)
	assert.Equal(t, "vs_main", set.Cube.Vertex().EntryPoint)
	assert.Equal(t, "fs_main", set.Cube.Pixel().EntryPoint)
	require.GreaterOrEqual(t, len(set.Cube.SPIRV), 20)
	assert.Equal(t, uint32(0x07230203), binary.LittleEndian.Uint32(set.Cube.SPIRV))
	assert.NotEmpty(t, set.Cube.HLSL)

	assert.Equal(t, []string{RayGenExport}, set.RayGen.Exports)
	assert.Equal(t, []string{MissExport}, set.Miss.Exports)
	assert.Equal(t, []string{ClosestHitExport}, set.Hit.Exports)
	assert.Equal(t, "closesthit", set.Hit.Stages[ClosestHitExport])
	assert.Len(t, set.Libraries(), 3)

	// includes are expanded
	assert.Contains(t, set.Hit.Source, "struct HitInfo")
	assert.NotContains(t, set.Hit.Source, "#include")
}

func TestMissingArtifact(t *testing.T) {
	l := NewLoader(WithFS(fstest.MapFS{}))
	_, err := l.Program(CubeProgram)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, CubeProgram, ce.Artifact)
	assert.Equal(t, StageRead, ce.Stage)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	_, err = l.LoadAll(context.Background())
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestMissingExport(t *testing.T) {
	l := NewLoader(WithFS(fstest.MapFS{
		"hit.hlsl": {Data: []byte("[shader(\"anyhit\")]\nvoid AnyHit(inout float4 p, float2 a) {}\n")},
	}))
	_, err := l.Library(HitLibrary, ClosestHitExport)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, StageLibrary, ce.Stage)
	assert.Contains(t, ce.Diagnostic, `"ClosestHit"`)
	assert.Contains(t, ce.Diagnostic, "AnyHit")
}

func TestMalformedLibraryIsRejected(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"unclosed body", "[shader(\"miss\")]\nvoid Miss(inout HitInfo p) {\n p.colorAndDistance = 0;\n", "never closed"},
		{"stray brace", "[shader(\"miss\")]\nvoid Miss(inout HitInfo p) { }\n}\n", "line 3"},
		{"mismatched", "[shader(\"miss\")]\nvoid Miss(inout HitInfo p) { float4(1, 0]; }\n", "unexpected"},
		{"open comment", "/* miss\n[shader(\"miss\")]\nvoid Miss(inout HitInfo p) { }\n", "block comment"},
		{"open string", "[shader(\"miss)]\nvoid Miss(inout HitInfo p) { }\n", "unterminated string"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileLibrary("miss.hlsl", tt.source, MissExport)
			var ce *CompileError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, StageLibrary, ce.Stage)
			assert.Contains(t, ce.Diagnostic, tt.want)
		})
	}

	lib, err := CompileLibrary("miss.hlsl",
		"#define SKY float4(0, 0, 1,\n// ) unmatched in a comment\n[shader(\"miss\")]\nvoid Miss(inout HitInfo p) { p.c = \"}\"; }\n", MissExport)
	require.NoError(t, err)
	assert.Equal(t, []string{MissExport}, lib.Exports)
}

func TestCompileErrorCarriesDiagnostic(t *testing.T) {
	_, err := CompileProgram("broken.wgsl", "@vertex fn vs_main( -> {")

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "broken.wgsl", ce.Artifact)
	assert.NotEmpty(t, ce.Diagnostic)
	assert.Contains(t, err.Error(), "broken.wgsl")
}

func TestProgramNeedsBothStages(t *testing.T) {
	src := `
@vertex
fn vs_main(@location(0) pos: vec3<f32>) -> @builtin(position) vec4<f32> {
    return vec4<f32>(pos, 1.0);
}
`
	_, err := CompileProgram("vs_only.wgsl", src)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, StagePixel, ce.Stage)
}

func TestIncludeCycleIsBounded(t *testing.T) {
	l := NewLoader(WithFS(fstest.MapFS{
		"a.hlsl": {Data: []byte("#include \"b.hlsl\"\n")},
		"b.hlsl": {Data: []byte("#include \"a.hlsl\"\n")},
	}))
	_, err := l.Library("a.hlsl")
	assert.Error(t, err)
}

func TestDirectoryOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	miss := "#include \"common.hlsl\"\n[shader(\"miss\")]\nvoid Miss(inout HitInfo payload) { payload.colorAndDistance = float4(1, 0, 0, -1); }\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, MissLibrary), []byte(miss), 0o644))

	l := NewLoader(WithDirectory(dir))
	assert.Equal(t, dir, l.Dir())
	lib, err := l.Library(MissLibrary, MissExport)
	require.NoError(t, err)
	assert.Contains(t, lib.Source, "float4(1, 0, 0, -1)")

	// artifacts absent from the directory fall back to the embedded copies
	_, err = l.Library(RayGenLibrary, RayGenExport)
	require.NoError(t, err)
}

func TestWatcherReportsWrites(t *testing.T) {
	dir := t.TempDir()
	changed := make(chan string, 8)
	w, err := Watch(dir, func(name string) { changed <- name })
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, HitLibrary), []byte("x"), 0o644))
	select {
	case name := <-changed:
		assert.Equal(t, HitLibrary, name)
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}
	require.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}

func TestCompileErrorUnwraps(t *testing.T) {
	base := errors.New("boom")
	err := compileError("x", StageSPIRV, base)
	assert.ErrorIs(t, err, base)
}
