package batch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"meshforge/internal/capability"
	"meshforge/internal/imageio"
	"meshforge/internal/logging"
	"meshforge/internal/services"
)

// RembgSuffix is appended to the stem of every background-removed image.
const RembgSuffix = "_no_background.png"

// RembgResult reports a standalone background removal pass.
type RembgResult struct {
	Processed int      `json:"processed"`
	Errors    int      `json:"errors"`
	Outputs   []string `json:"outputs"`
	Failed    []string `json:"failed,omitempty"`
}

// RemoveBackgrounds writes <stem>_no_background.png into outDir for every
// supported image under input. Individual failures are counted and logged;
// only discovery and output directory problems abort the pass.
func RemoveBackgrounds(ctx context.Context, remover capability.BackgroundRemover, input, outDir string, logger *slog.Logger) (RembgResult, error) {
	var result RembgResult
	if logger == nil {
		logger = logging.NewNop()
	}
	items, err := Discover(input)
	if err != nil {
		return result, err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return result, services.Wrap(services.ErrEnvironment, "rembg", outDir, "create output directory", err)
	}

	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		dst := filepath.Join(outDir, item.Stem()+RembgSuffix)
		if err := removeOne(ctx, remover, item.Path, dst); err != nil {
			result.Errors++
			result.Failed = append(result.Failed, item.Path)
			logging.WarnWithContext(logger, "background removal failed", "rembg_failed",
				logging.String("image", item.Path),
				logging.Error(err),
			)
			continue
		}
		result.Processed++
		result.Outputs = append(result.Outputs, dst)
		logger.Debug("background removed", logging.String("image", item.Path), logging.String("output", dst))
	}
	logger.Info("background removal finished",
		logging.Int("processed", result.Processed),
		logging.Int("errors", result.Errors),
	)
	return result, ctx.Err()
}

func removeOne(ctx context.Context, remover capability.BackgroundRemover, src, dst string) error {
	img, err := imageio.Load(src)
	if err != nil {
		return err
	}
	out, err := remover.RemoveBackground(ctx, img)
	if err != nil {
		return err
	}
	if err := imageio.SavePNG(dst, out); err != nil {
		return fmt.Errorf("save %s: %w", filepath.Base(dst), err)
	}
	return nil
}
