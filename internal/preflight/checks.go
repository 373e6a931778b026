package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sys/unix"

	"meshforge/internal/config"
	"meshforge/internal/deps"
	"meshforge/internal/services"
)

const acceleratorProbeTimeout = 10 * time.Second

// CheckAccelerator verifies that a GPU is visible when the configured device
// needs one. The nvidia-smi probe is bounded so a wedged driver cannot hang
// startup.
func CheckAccelerator(ctx context.Context, cfg *config.Config, runner services.CommandRunner) Result {
	const name = "Accelerator"
	if cfg == nil || !cfg.RequiresAccelerator() {
		device := "cpu"
		if cfg != nil {
			device = cfg.Device.Name
		}
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("not required (device %s)", device)}
	}
	if runner == nil {
		runner = services.ExecRunner{}
	}

	var output []byte
	err := deps.Probe(ctx, acceleratorProbeTimeout, func(probeCtx context.Context) error {
		var runErr error
		output, runErr = runner.Run(probeCtx, "nvidia-smi", "-L")
		return runErr
	})
	if err != nil {
		if errors.Is(err, deps.ErrProbeTimeout) {
			return Result{Name: name, Detail: "nvidia-smi did not respond"}
		}
		return Result{Name: name, Detail: fmt.Sprintf("no CUDA device available (%v)", err)}
	}
	gpus := 0
	first := ""
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "GPU ") {
			if first == "" {
				first = line
			}
			gpus++
		}
	}
	if gpus == 0 {
		return Result{Name: name, Detail: "nvidia-smi reported no GPUs"}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d GPU(s): %s", gpus, first)}
}

// RequireAccelerator returns an environment error when the accelerator check fails.
func RequireAccelerator(ctx context.Context, cfg *config.Config, runner services.CommandRunner) error {
	result := CheckAccelerator(ctx, cfg, runner)
	if result.Passed {
		return nil
	}
	return services.Wrap(services.ErrEnvironment, "preflight", "accelerator", fmt.Sprintf("device %q unavailable: %s", cfg.Device.Name, result.Detail), nil)
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckOutputRoot checks the output root, or the nearest existing ancestor when
// the root will be created by the run.
func CheckOutputRoot(path string) Result {
	const name = "Output directory"
	target := filepath.Clean(path)
	for {
		if _, err := os.Stat(target); err == nil {
			break
		}
		parent := filepath.Dir(target)
		if parent == target {
			break
		}
		target = parent
	}
	result := CheckDirectoryAccess(name, target)
	if result.Passed && target != filepath.Clean(path) {
		result.Detail = fmt.Sprintf("%s (will be created under %s)", path, target)
	}
	return result
}

// CheckShapeEndpoint verifies that a remote shape generation server answers its
// health route.
func CheckShapeEndpoint(ctx context.Context, endpoint string) Result {
	const name = "Shape generation server"
	base := strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing endpoint"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := resty.New().SetBaseURL(base).R().SetContext(checkCtx).Get("/health")
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("unreachable (%v)", err)}
	}
	if res.IsError() {
		return Result{Name: name, Detail: fmt.Sprintf("health check failed (%d)", res.StatusCode())}
	}
	return Result{Name: name, Passed: true, Detail: base + " reachable"}
}

// CheckAPIKey reports whether a credential is configured.
func CheckAPIKey(name, key string) Result {
	if strings.TrimSpace(key) == "" {
		return Result{Name: name, Detail: "missing (set GEMINI_API_KEY or text_to_image.api_key)"}
	}
	return Result{Name: name, Passed: true, Detail: "configured"}
}

// CheckSystemDeps evaluates the external binaries the configured capabilities
// and conversion backends may use.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "Blender",
			Command:     cfg.Convert.BlenderBinary,
			Description: "Emits FBX and other formats",
			Optional:    true,
		},
		{
			Name:        "Assimp",
			Command:     cfg.Convert.AssimpBinary,
			Description: "Fallback FBX/GLB exporter",
			Optional:    true,
		},
	}
	if cfg.RequiresAccelerator() {
		requirements = append(requirements, deps.Requirement{
			Name:        "nvidia-smi",
			Command:     "nvidia-smi",
			Description: "Required to verify the CUDA device",
		})
	}
	if cfg.Shape.Kind == "command" {
		requirements = append(requirements, deps.Requirement{
			Name:        "Shape generator",
			Command:     cfg.Shape.Command,
			Description: "Required for shape generation",
		})
	}
	switch cfg.Background.Kind {
	case "rembg":
		requirements = append(requirements, deps.Requirement{
			Name:        "rembg",
			Command:     "rembg",
			Description: "Required for background removal",
		})
	case "command":
		requirements = append(requirements, deps.Requirement{
			Name:        "Background remover",
			Command:     cfg.Background.Command,
			Description: "Required for background removal",
		})
	}
	if cfg.Output.Texture && cfg.Texture.Kind == "command" {
		requirements = append(requirements, deps.Requirement{
			Name:        "Texture generator",
			Command:     cfg.Texture.Command,
			Description: "Required for texture synthesis",
		})
	}
	if cfg.TextToImage.Enabled && cfg.TextToImage.Kind == "command" {
		requirements = append(requirements, deps.Requirement{
			Name:        "Text-to-image generator",
			Command:     cfg.TextToImage.Command,
			Description: "Required for caption inputs",
		})
	}
	return deps.CheckBinaries(requirements)
}
