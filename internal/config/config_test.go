package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"meshforge/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("GEMINI_API_KEY", "gem-key")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantLedger := filepath.Join(tempHome, ".local", "share", "meshforge", "ledger.db")
	if cfg.Paths.LedgerPath != wantLedger {
		t.Fatalf("unexpected ledger path: got %q want %q", cfg.Paths.LedgerPath, wantLedger)
	}
	if !filepath.IsAbs(cfg.Paths.OutputDir) {
		t.Fatalf("expected absolute output dir, got %q", cfg.Paths.OutputDir)
	}
	if cfg.Generation.Seed != 1234 || cfg.Generation.Steps != 30 || cfg.Generation.OctreeResolution != 256 {
		t.Fatalf("unexpected generation defaults: %+v", cfg.Generation)
	}
	if cfg.Output.Format != "obj" {
		t.Fatalf("unexpected default format %q", cfg.Output.Format)
	}
	if cfg.TextToImage.APIKey != "gem-key" {
		t.Fatalf("expected API key from env, got %q", cfg.TextToImage.APIKey)
	}
	if cfg.ProbeTimeout().Seconds() != 5 {
		t.Fatalf("unexpected probe timeout %s", cfg.ProbeTimeout())
	}
}

func TestLoadCustomConfigOverrides(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(t.TempDir(), "config.toml")
	content := `
[paths]
output_dir = "~/meshes"

[output]
format = "FBX"
texture = false

[device]
name = "CPU"
workers = 0

[convert]
backends = ["assimp", " Blender ", "assimp"]
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected custom config to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.Paths.OutputDir != filepath.Join(tempHome, "meshes") {
		t.Fatalf("unexpected output dir %q", cfg.Paths.OutputDir)
	}
	if cfg.Output.Format != "fbx" {
		t.Fatalf("expected lower-cased format, got %q", cfg.Output.Format)
	}
	if cfg.Device.Name != "cpu" || cfg.RequiresAccelerator() {
		t.Fatalf("expected cpu device without accelerator, got %q", cfg.Device.Name)
	}
	if cfg.Device.Workers != 1 {
		t.Fatalf("expected workers to default to 1, got %d", cfg.Device.Workers)
	}
	if got := strings.Join(cfg.Convert.Backends, ","); got != "assimp,blender" {
		t.Fatalf("unexpected backend order %q", got)
	}
	if cfg.TexgenModel() != "Unavailable" {
		t.Fatalf("expected texgen to be unavailable, got %q", cfg.TexgenModel())
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*config.Config){
		"output.format":       func(c *config.Config) { c.Output.Format = "usdz" },
		"generation.steps":    func(c *config.Config) { c.Generation.Steps = 0 },
		"shape.command":       func(c *config.Config) { c.Shape.Kind = "command" },
		"shape.endpoint":      func(c *config.Config) { c.Shape.Kind = "remote" },
		"convert.backends":    func(c *config.Config) { c.Convert.Backends = []string{"meshlab"} },
		"background.kind":     func(c *config.Config) { c.Background.Kind = "magic" },
		"logging.format":      func(c *config.Config) { c.Logging.Format = "xml" },
		"device.mc_algo":      func(c *config.Config) { c.Device.MCAlgo = "dual" },
		"texture.command":     func(c *config.Config) { c.Texture.Kind = "command" },
		"generation.guidance": func(c *config.Config) { c.Generation.GuidanceScale = -1 },
		"ntfy_topic":          func(c *config.Config) { c.Notifications.NtfyTopic = "my-topic" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := config.Default()
			mutate(&cfg)
			if err := cfg.Finalize(); err == nil {
				t.Fatalf("expected validation error for %s", name)
			}
		})
	}
}

func TestValidateRemoteShapeNeedsEndpointPerWorker(t *testing.T) {
	cfg := config.Default()
	cfg.Shape.Kind = "remote"
	cfg.Shape.Endpoint = "http://gpu0:8081/"
	cfg.Device.Workers = 2
	err := cfg.Finalize()
	if err == nil || !strings.Contains(err.Error(), "device.workers") {
		t.Fatalf("expected device.workers error, got %v", err)
	}

	cfg.Shape.Endpoints = []string{" http://gpu1:8081/ "}
	if err := cfg.Finalize(); err != nil {
		t.Fatalf("expected two endpoints to allow two workers, got %v", err)
	}
	if got := strings.Join(cfg.ShapeEndpoints(), ","); got != "http://gpu0:8081,http://gpu1:8081" {
		t.Fatalf("unexpected endpoints %q", got)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	cfg := config.Default()
	clone := cfg.Clone()
	clone.Convert.Backends[0] = "assimp"
	clone.Output.Format = "glb"
	if cfg.Convert.Backends[0] != "native" || cfg.Output.Format != "obj" {
		t.Fatal("expected clone mutations to leave the original untouched")
	}
}

func TestCreateSampleProducesValidConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var decoded config.Config
	if err := toml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("sample config is not valid TOML: %v", err)
	}
	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
}

func TestSettingsEcho(t *testing.T) {
	cfg := config.Default()
	cfg.Output.Format = "glb"
	settings := cfg.Settings()
	if settings.Format != "glb" || settings.Seed != 1234 || settings.Texgen != cfg.Models.Texgen {
		t.Fatalf("unexpected settings echo %+v", settings)
	}
}
