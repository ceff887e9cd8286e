package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, FrameCount, cfg.Renderer.FrameCount)
	assert.Equal(t, 3*time.Second, cfg.Renderer.ToggleCooldown.Duration)
	assert.Equal(t, float32(0.01), cfg.Camera.Speed)
	assert.Equal(t, float32(0.1), cfg.Camera.FastSpeed)
}

func TestParseTOML(t *testing.T) {
	data := []byte(`
log_level = "debug"

[window]
width = 1280
height = 720

[renderer]
backend = "hal"
hal_backend = "dx12"
start_path = "raytrace"
toggle_cooldown = "500ms"
`)
	cfg, err := Parse(".toml", data)
	require.NoError(t, err)
	assert.Equal(t, 1280, cfg.Window.Width)
	assert.Equal(t, 720, cfg.Window.Height)
	assert.Equal(t, "oxy-rt", cfg.Window.Title)
	assert.Equal(t, "hal", cfg.Renderer.Backend)
	assert.Equal(t, "dx12", cfg.Renderer.HALBackend)
	assert.Equal(t, "raytrace", cfg.Renderer.StartPath)
	assert.Equal(t, 500*time.Millisecond, cfg.Renderer.ToggleCooldown.Duration)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestParseYAML(t *testing.T) {
	data := []byte(`
window:
  title: demo
renderer:
  toggle_cooldown: 2s
  vsync: false
camera:
  fast_speed: 0.5
profiling: true
`)
	cfg, err := Parse(".yml", data)
	require.NoError(t, err)
	assert.Equal(t, "demo", cfg.Window.Title)
	assert.Equal(t, 800, cfg.Window.Width)
	assert.Equal(t, 2*time.Second, cfg.Renderer.ToggleCooldown.Duration)
	assert.False(t, cfg.Renderer.VSync)
	assert.Equal(t, float32(0.5), cfg.Camera.FastSpeed)
	assert.Equal(t, float32(0.01), cfg.Camera.Speed)
	assert.True(t, cfg.Profiling)
}

func TestParseEmptyYAMLKeepsDefaults(t *testing.T) {
	cfg, err := Parse(".yaml", nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse(".toml", []byte("[renderer]\nmsaa = 4\n"))
	assert.Error(t, err)
	_, err = Parse(".yaml", []byte("renderer:\n  msaa: 4\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"frame count", func(c *Config) { c.Renderer.FrameCount = 2 }},
		{"backend", func(c *Config) { c.Renderer.Backend = "d3d9" }},
		{"hal backend", func(c *Config) { c.Renderer.Backend = "hal"; c.Renderer.HALBackend = "glide" }},
		{"start path", func(c *Config) { c.Renderer.StartPath = "pathtrace" }},
		{"window", func(c *Config) { c.Window.Width = 0 }},
		{"cooldown", func(c *Config) { c.Renderer.ToggleCooldown = Duration{-time.Second} }},
		{"camera", func(c *Config) { c.Camera.Speed = 0 }},
		{"log level", func(c *Config) { c.LogLevel = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestLoadPicksFormatByExtension(t *testing.T) {
	dir := t.TempDir()
	tomlPath := filepath.Join(dir, "engine.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte("profiling = true\n"), 0o644))
	cfg, err := Load(tomlPath)
	require.NoError(t, err)
	assert.True(t, cfg.Profiling)

	jsonPath := filepath.Join(dir, "engine.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte("{}"), 0o644))
	_, err = Load(jsonPath)
	assert.ErrorIs(t, err, ErrUnknownExtension)

	_, err = Load(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)
}
