package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains output, log, and ledger locations.
type Paths struct {
	OutputDir  string `toml:"output_dir"`
	LogDir     string `toml:"log_dir"`
	LedgerPath string `toml:"ledger_path"`
}

// Generation contains the shape generation parameters echoed into stats.json.
type Generation struct {
	Steps            int     `toml:"steps"`
	GuidanceScale    float64 `toml:"guidance_scale"`
	Seed             int64   `toml:"seed"`
	OctreeResolution int     `toml:"octree_resolution"`
	NumChunks        int     `toml:"num_chunks"`
	RemoveBackground bool    `toml:"remove_background"`
	InputSize        int     `toml:"input_size"`
}

// Output controls what each item writes.
type Output struct {
	Format            string `toml:"format"`
	Texture           bool   `toml:"texture"`
	Previews          bool   `toml:"previews"`
	PreviewSize       int    `toml:"preview_size"`
	MaxFaces          int    `toml:"max_faces"`
	MinComponentFaces int    `toml:"min_component_faces"`
}

// Models names the model identifiers recorded with every item.
type Models struct {
	Shapegen  string `toml:"shapegen"`
	Subfolder string `toml:"subfolder"`
	Texgen    string `toml:"texgen"`
}

// Device contains accelerator and performance settings.
type Device struct {
	Name           string `toml:"name"`
	LowVRAM        bool   `toml:"low_vram"`
	EnableFlashVDM bool   `toml:"enable_flashvdm"`
	Compile        bool   `toml:"compile"`
	MCAlgo         string `toml:"mc_algo"`
	Workers        int    `toml:"workers"`
}

// Shape selects the shape generation capability.
type Shape struct {
	Kind           string   `toml:"kind"`
	Command        string   `toml:"command"`
	Args           []string `toml:"args"`
	Endpoint       string   `toml:"endpoint"`
	// Endpoints lists additional servers, each holding its own model
	// instance. Worker w of a run uses ShapeEndpoints()[w].
	Endpoints      []string `toml:"endpoints"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
}

// Background selects the background removal capability.
type Background struct {
	Kind      string   `toml:"kind"`
	Command   string   `toml:"command"`
	Args      []string `toml:"args"`
	Tolerance int      `toml:"tolerance"`
}

// TextToImage selects the optional caption-to-image capability.
type TextToImage struct {
	Enabled bool     `toml:"enabled"`
	Kind    string   `toml:"kind"`
	Model   string   `toml:"model"`
	APIKey  string   `toml:"api_key"`
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
}

// Texture selects the texture synthesis capability.
type Texture struct {
	Kind    string   `toml:"kind"`
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
}

// Convert configures the format conversion backends.
type Convert struct {
	Backends            []string `toml:"backends"`
	ProbeTimeoutSeconds int      `toml:"probe_timeout_seconds"`
	TimeoutSeconds      int      `toml:"timeout_seconds"`
	BlenderBinary       string   `toml:"blender_binary"`
	AssimpBinary        string   `toml:"assimp_binary"`
}

// Metrics toggles the textfile metrics export.
type Metrics struct {
	Enabled bool `toml:"enabled"`
}

// Notifications configures ntfy run notifications. An empty topic disables them.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates every option of a batch run. A Config is resolved once
// at startup and treated as read-only afterwards.
//
// Configuration sections by subsystem:
//   - Paths: output root, log directory, run ledger
//   - Generation: steps, guidance, seed, octree resolution, chunking
//   - Output: target format, texture and preview toggles, cleanup limits
//   - Models / Device: identifiers and accelerator settings
//   - Shape / Background / TextToImage / Texture: capability selection
//   - Convert: conversion backend order and timeouts
//   - Metrics / Notifications / Logging: observability
type Config struct {
	Paths       Paths       `toml:"paths"`
	Generation  Generation  `toml:"generation"`
	Output      Output      `toml:"output"`
	Models      Models      `toml:"models"`
	Device      Device      `toml:"device"`
	Shape       Shape       `toml:"shape"`
	Background  Background  `toml:"background"`
	TextToImage TextToImage `toml:"text_to_image"`
	Texture     Texture     `toml:"texture"`
	Convert     Convert     `toml:"convert"`
	Metrics       Metrics       `toml:"metrics"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/meshforge/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("meshforge.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// Finalize normalizes and validates a config after programmatic overrides
// (CLI flags) have been applied.
func (c *Config) Finalize() error {
	if err := c.normalize(); err != nil {
		return err
	}
	return c.Validate()
}

// Clone returns a deep copy so per-run overrides never touch the loaded config.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Shape.Args = append([]string(nil), c.Shape.Args...)
	clone.Shape.Endpoints = append([]string(nil), c.Shape.Endpoints...)
	clone.Background.Args = append([]string(nil), c.Background.Args...)
	clone.TextToImage.Args = append([]string(nil), c.TextToImage.Args...)
	clone.Texture.Args = append([]string(nil), c.Texture.Args...)
	clone.Convert.Backends = append([]string(nil), c.Convert.Backends...)
	return &clone
}

// RequiresAccelerator reports whether the configured device needs a GPU.
func (c *Config) RequiresAccelerator() bool {
	return strings.HasPrefix(strings.ToLower(c.Device.Name), "cuda")
}

// ShapeTimeout bounds a single shape generation call.
func (c *Config) ShapeTimeout() time.Duration {
	return time.Duration(c.Shape.TimeoutSeconds) * time.Second
}

// ProbeTimeout bounds each conversion backend probe.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Convert.ProbeTimeoutSeconds) * time.Second
}

// NotifyTimeout bounds a single notification request.
func (c *Config) NotifyTimeout() time.Duration {
	return time.Duration(c.Notifications.RequestTimeoutSeconds) * time.Second
}

// ConvertTimeout bounds a single conversion attempt.
func (c *Config) ConvertTimeout() time.Duration {
	return time.Duration(c.Convert.TimeoutSeconds) * time.Second
}

// ShapeEndpoints returns the remote shape servers in worker order: endpoint
// first, then endpoints, without duplicates.
func (c *Config) ShapeEndpoints() []string {
	var out []string
	for _, ep := range append([]string{c.Shape.Endpoint}, c.Shape.Endpoints...) {
		if ep != "" && !slices.Contains(out, ep) {
			out = append(out, ep)
		}
	}
	return out
}

// TexgenModel returns the texture model identifier recorded in stats, or
// "Unavailable" when texturing is disabled.
func (c *Config) TexgenModel() string {
	if !c.Output.Texture {
		return "Unavailable"
	}
	return c.Models.Texgen
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
