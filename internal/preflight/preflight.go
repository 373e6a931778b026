package preflight

import (
	"context"

	"meshforge/internal/config"
	"meshforge/internal/services"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is enabled.
func RunAll(ctx context.Context, cfg *config.Config, runner services.CommandRunner) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{CheckOutputRoot(cfg.Paths.OutputDir)}
	results = append(results, CheckAccelerator(ctx, cfg, runner))

	if cfg.Shape.Kind == "remote" {
		for _, endpoint := range cfg.ShapeEndpoints() {
			results = append(results, CheckShapeEndpoint(ctx, endpoint))
		}
	}
	if cfg.TextToImage.Enabled && cfg.TextToImage.Kind == "imagen" {
		results = append(results, CheckAPIKey("Text-to-image API key", cfg.TextToImage.APIKey))
	}
	return results
}
