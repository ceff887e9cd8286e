// Package config loads engine settings from TOML or YAML files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// FrameCount is the only supported number of frame slots.
const FrameCount = 3

var (
	// ErrUnknownExtension is returned by Load for files that are neither TOML nor YAML.
	ErrUnknownExtension = errors.New("config: unknown file extension")
	// ErrInvalid wraps every Validate failure.
	ErrInvalid = errors.New("config: invalid")
)

// Duration is a time.Duration written as a string such as "3s" or "250ms".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

// Window configures the GLFW window and back buffer size.
type Window struct {
	Width  int    `toml:"width" yaml:"width"`
	Height int    `toml:"height" yaml:"height"`
	Title  string `toml:"title" yaml:"title"`
}

// Renderer configures the device and the render paths.
type Renderer struct {
	// Backend is "sim" or "hal".
	Backend string `toml:"backend" yaml:"backend"`
	// HALBackend is "vulkan", "dx12", "metal" or "gles". Only read for the hal backend.
	HALBackend     string   `toml:"hal_backend" yaml:"hal_backend"`
	FrameCount     int      `toml:"frame_count" yaml:"frame_count"`
	StartPath      string   `toml:"start_path" yaml:"start_path"`
	ToggleCooldown Duration `toml:"toggle_cooldown" yaml:"toggle_cooldown"`
	VSync          bool     `toml:"vsync" yaml:"vsync"`
	// ShaderDir overrides the embedded shaders when set.
	ShaderDir string `toml:"shader_dir" yaml:"shader_dir"`
	// TexturePath is the diffuse texture. Empty uses a checker pattern.
	TexturePath string `toml:"texture" yaml:"texture"`
}

// Camera configures the free-fly camera controller.
type Camera struct {
	Speed     float32 `toml:"speed" yaml:"speed"`
	FastSpeed float32 `toml:"fast_speed" yaml:"fast_speed"`
	// RotateSpeed is radians per pixel of right-button drag.
	RotateSpeed float32 `toml:"rotate_speed" yaml:"rotate_speed"`
}

// Config is the full engine configuration.
type Config struct {
	Window    Window   `toml:"window" yaml:"window"`
	Renderer  Renderer `toml:"renderer" yaml:"renderer"`
	Camera    Camera   `toml:"camera" yaml:"camera"`
	LogLevel  string   `toml:"log_level" yaml:"log_level"`
	Profiling bool     `toml:"profiling" yaml:"profiling"`
}

// Default returns the built-in configuration.
//
// Returns:
//   - Config: an 800x600 window on the simulated backend starting on the raster path
func Default() Config {
	return Config{
		Window: Window{
			Width:  800,
			Height: 600,
			Title:  "oxy-rt",
		},
		Renderer: Renderer{
			Backend:        "sim",
			HALBackend:     "vulkan",
			FrameCount:     FrameCount,
			StartPath:      "raster",
			ToggleCooldown: Duration{3 * time.Second},
			VSync:          true,
		},
		Camera: Camera{
			Speed:       0.01,
			FastSpeed:   0.1,
			RotateSpeed: 0.01,
		},
		LogLevel: "info",
	}
}

// Load reads path over Default. The format is picked by extension: .toml, .yaml or .yml.
// Keys missing from the file keep their default value.
//
// Parameters:
//   - path: the config file
//
// Returns:
//   - Config: the validated configuration
//   - error: a read, parse or Validate error
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(filepath.Ext(path), data)
}

// Parse decodes data in the format named by ext over Default and validates the result.
func Parse(ext string, data []byte) (Config, error) {
	cfg := Default()
	switch strings.ToLower(ext) {
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse toml config: %w", err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("failed to parse yaml config: %w", err)
		}
	default:
		return Config{}, fmt.Errorf("%w: %q", ErrUnknownExtension, ext)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with.
//
// Returns:
//   - error: wraps ErrInvalid and names every bad field
func (c Config) Validate() error {
	var errs []error
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		errs = append(errs, fmt.Errorf("window size %dx%d", c.Window.Width, c.Window.Height))
	}
	if c.Renderer.FrameCount != FrameCount {
		errs = append(errs, fmt.Errorf("frame_count %d, only %d is supported", c.Renderer.FrameCount, FrameCount))
	}
	switch c.Renderer.Backend {
	case "sim", "hal":
	default:
		errs = append(errs, fmt.Errorf("backend %q", c.Renderer.Backend))
	}
	if c.Renderer.Backend == "hal" {
		switch c.Renderer.HALBackend {
		case "", "vulkan", "dx12", "metal", "gles":
		default:
			errs = append(errs, fmt.Errorf("hal_backend %q", c.Renderer.HALBackend))
		}
	}
	switch c.Renderer.StartPath {
	case "raster", "raytrace":
	default:
		errs = append(errs, fmt.Errorf("start_path %q", c.Renderer.StartPath))
	}
	if c.Renderer.ToggleCooldown.Duration < 0 {
		errs = append(errs, fmt.Errorf("toggle_cooldown %s", c.Renderer.ToggleCooldown))
	}
	if c.Camera.Speed <= 0 || c.Camera.FastSpeed <= 0 || c.Camera.RotateSpeed <= 0 {
		errs = append(errs, fmt.Errorf("camera speeds must be positive"))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q", c.LogLevel))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}
