package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"meshforge/internal/capability"
	"meshforge/internal/config"
	"meshforge/internal/convert"
	"meshforge/internal/fileutil"
	"meshforge/internal/imageio"
	"meshforge/internal/logging"
	"meshforge/internal/mesh"
	"meshforge/internal/metrics"
	"meshforge/internal/services"
)

// Stage names, in execution order. They double as the timing keys of stats.json.
const (
	StageLoad              = "load"
	StageTextToImage       = "text2image"
	StageRemoveBackground  = "remove_background"
	StageShapeGeneration   = "shape_generation"
	StageExportRaw         = "export_raw"
	StagePostprocess       = "face_reduction"
	StageExportMesh        = "export_mesh"
	StageTextureGeneration = "texture_generation"
	StagePreview           = "preview"
	TimingTotal            = "total"
)

// Stages lists every stage in order.
var Stages = []string{
	StageLoad,
	StageTextToImage,
	StageRemoveBackground,
	StageShapeGeneration,
	StageExportRaw,
	StagePostprocess,
	StageExportMesh,
	StageTextureGeneration,
	StagePreview,
}

const (
	inputImageName  = "input.png"
	rembgImageName  = "rembg.png"
	rawMeshName     = "raw_mesh"
	whiteMeshName   = "white_mesh"
	texturedMesh    = "textured_mesh"
	intermediateTag = ".intermediate"
)

// Runner drives one item through the fixed stage sequence. A Runner holds
// only read-only run state and may be shared by concurrent workers; all
// per-item state lives in the ItemContext created by Run.
type Runner struct {
	cfg       *config.Config
	format    mesh.Format
	converter *convert.Converter
	metrics   *metrics.Recorder
	logger    *slog.Logger
}

// Option customizes a Runner.
type Option func(*Runner)

// WithMetrics records stage durations on rec.
func WithMetrics(rec *metrics.Recorder) Option {
	return func(r *Runner) { r.metrics = rec }
}

// WithLogger sets the runner logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// NewRunner validates the target format and returns a Runner.
func NewRunner(cfg *config.Config, converter *convert.Converter, opts ...Option) (*Runner, error) {
	format, err := mesh.ParseFormat(cfg.Output.Format)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "format", "invalid output format", err)
	}
	r := &Runner{cfg: cfg, format: format, converter: converter}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.NewComponentLogger(r.logger, "pipeline")
	return r, nil
}

// Run processes item into dir using the capabilities in set. On success it
// writes dir/stats.json and returns its content. Any failure in stages 1-8
// returns an error and leaves stats.json absent; preview failures are logged
// only.
func (r *Runner) Run(ctx context.Context, set *capability.Set, item Item, dir string) (*Stats, error) {
	ctx = services.WithItem(ctx, item.Name())
	ic := newItemContext(item, dir)
	defer ic.Cleanup()
	start := time.Now()

	steps := []struct {
		name string
		fn   func(context.Context, *capability.Set, *ItemContext) error
	}{
		{StageLoad, r.load},
		{StageTextToImage, r.textToImage},
		{StageRemoveBackground, r.removeBackground},
		{StageShapeGeneration, r.generateShape},
		{StageExportRaw, r.exportRaw},
		{StagePostprocess, r.postprocess},
		{StageExportMesh, r.exportMesh},
		{StageTextureGeneration, r.texture},
	}
	for _, step := range steps {
		if err := r.runStage(ctx, ic, set, step.name, step.fn); err != nil {
			return nil, err
		}
	}

	if err := r.runStage(ctx, ic, set, StagePreview, r.preview); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, r.logger), "preview generation failed", "preview_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "item outputs are complete; previews are optional"),
		)
	}

	ic.AddTiming(TimingTotal, time.Since(start))
	stats := r.snapshot(ic)
	if err := fileutil.WriteJSON(ic.path(StatsFileName), stats); err != nil {
		return nil, services.Wrap(services.ErrStage, "stats", "write", "write stats.json", err)
	}
	return stats, nil
}

func (r *Runner) runStage(ctx context.Context, ic *ItemContext, set *capability.Set, name string, fn func(context.Context, *capability.Set, *ItemContext) error) error {
	ctx = services.WithStage(ctx, name)
	started := time.Now()
	err := fn(ctx, set, ic)
	elapsed := time.Since(started)
	ic.AddTiming(name, elapsed)
	r.metrics.ObserveStage(name, elapsed)
	if err != nil {
		var wrapped *services.Error
		if errors.As(err, &wrapped) && wrapped.Stage != "" {
			return err
		}
		return services.Wrap(services.ErrStage, name, "", "", err)
	}
	logging.WithContext(ctx, r.logger).Debug("stage complete", logging.Duration("elapsed", elapsed))
	return nil
}

// load reads and normalizes the input image (stage 1). Caption items skip it.
func (r *Runner) load(_ context.Context, _ *capability.Set, ic *ItemContext) error {
	if ic.Item.Path == "" {
		return nil
	}
	img, err := imageio.Load(ic.Item.Path)
	if err != nil {
		return err
	}
	ic.Image = imageio.Normalize(img, r.cfg.Generation.InputSize)
	return r.saveInput(ic)
}

// textToImage synthesizes the reference image when no image was supplied (stage 2).
func (r *Runner) textToImage(ctx context.Context, set *capability.Set, ic *ItemContext) error {
	if ic.Image != nil {
		return nil
	}
	caption := strings.TrimSpace(ic.Item.Caption)
	if caption == "" {
		return services.Wrap(services.ErrConfiguration, StageTextToImage, "", "no image and no caption supplied", nil)
	}
	if set.TextToImage == nil {
		return services.Wrap(services.ErrConfiguration, StageTextToImage, "", "caption supplied but text-to-image is disabled", nil)
	}
	img, err := set.TextToImage.TextToImage(ctx, caption)
	if err != nil {
		return err
	}
	ic.Image = imageio.Normalize(img, r.cfg.Generation.InputSize)
	return r.saveInput(ic)
}

func (r *Runner) saveInput(ic *ItemContext) error {
	if err := imageio.SavePNG(ic.path(inputImageName), ic.Image); err != nil {
		return err
	}
	ic.outputs.Input = inputImageName
	return nil
}

// removeBackground runs when requested, and always for opaque inputs (stage 3).
func (r *Runner) removeBackground(ctx context.Context, set *capability.Set, ic *ItemContext) error {
	if !r.cfg.Generation.RemoveBackground && imageio.HasTransparency(ic.Image) {
		return nil
	}
	if set.Background == nil {
		return services.Wrap(services.ErrConfiguration, StageRemoveBackground, "", "no background remover configured", nil)
	}
	img, err := set.Background.RemoveBackground(ctx, ic.Image)
	if err != nil {
		return err
	}
	ic.Image = img
	ic.removedBG = true
	if err := imageio.SavePNG(ic.path(rembgImageName), img); err != nil {
		return err
	}
	ic.outputs.Rembg = rembgImageName
	return nil
}

func (r *Runner) generateShape(ctx context.Context, set *capability.Set, ic *ItemContext) error {
	m, err := set.Shape.GenerateShape(ctx, ic.Image, capability.ShapeParams{
		Seed:             r.cfg.Generation.Seed,
		Steps:            r.cfg.Generation.Steps,
		GuidanceScale:    r.cfg.Generation.GuidanceScale,
		OctreeResolution: r.cfg.Generation.OctreeResolution,
		NumChunks:        r.cfg.Generation.NumChunks,
		Device:           r.cfg.Device.Name,
		MCAlgo:           r.cfg.Device.MCAlgo,
	})
	if err != nil {
		return err
	}
	if err := m.Validate(); err != nil {
		return services.Wrap(services.ErrValidation, StageShapeGeneration, "", "generated mesh is invalid", err)
	}
	ic.Mesh = m
	return nil
}

func (r *Runner) exportRaw(ctx context.Context, _ *capability.Set, ic *ItemContext) error {
	name, err := r.export(ctx, ic, ic.Mesh, rawMeshName)
	if err != nil {
		return err
	}
	ic.outputs.RawMesh = name
	return nil
}

// postprocess applies floater removal, degenerate-face removal and face
// reduction, in that order (stage 6).
func (r *Runner) postprocess(ctx context.Context, set *capability.Set, ic *ItemContext) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := set.Cleaner.RemoveFloaters(ic.Mesh)
	m = set.Cleaner.RemoveDegenerateFaces(m)
	if r.cfg.Output.MaxFaces > 0 {
		m = set.Cleaner.ReduceFaces(m, r.cfg.Output.MaxFaces)
	}
	if err := m.Validate(); err != nil {
		return services.Wrap(services.ErrValidation, StagePostprocess, "", "mesh is empty after cleanup", err)
	}
	ic.Mesh = m
	return nil
}

func (r *Runner) exportMesh(ctx context.Context, _ *capability.Set, ic *ItemContext) error {
	name, err := r.export(ctx, ic, ic.Mesh, whiteMeshName)
	if err != nil {
		return err
	}
	ic.outputs.WhiteMesh = name
	return nil
}

// texture paints the cleaned mesh and exports it separately (stage 8). The
// untextured mesh stays in ic.Mesh and on disk.
func (r *Runner) texture(ctx context.Context, set *capability.Set, ic *ItemContext) error {
	if !r.cfg.Output.Texture || set.Texture == nil {
		return nil
	}
	textured, err := set.Texture.GenerateTexture(ctx, ic.Mesh, ic.Image)
	if err != nil {
		return err
	}
	name, err := r.export(ctx, ic, textured, texturedMesh)
	if err != nil {
		return err
	}
	ic.outputs.TexturedMesh = name
	return nil
}

func (r *Runner) preview(ctx context.Context, _ *capability.Set, ic *ItemContext) error {
	if !r.cfg.Output.Previews {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	paths, err := imageio.RenderPreviews(ic.Mesh, ic.Dir, ic.Item.Stem(), r.cfg.Output.PreviewSize)
	for _, path := range paths {
		ic.outputs.Previews = append(ic.outputs.Previews, filepath.Base(path))
	}
	return err
}

// export writes m as {base}.{format} through the converter and returns the
// file name actually produced, which is {base}_fallback.obj on degradation.
func (r *Runner) export(ctx context.Context, ic *ItemContext, m *mesh.Mesh, base string) (string, error) {
	intermediate := ic.path(base + intermediateTag + mesh.IntermediateFormat.Ext())
	ic.TrackTemp(intermediate)
	if err := mesh.WriteFile(intermediate, m, mesh.IntermediateFormat); err != nil {
		return "", err
	}
	dst := ic.path(base + r.format.Ext())
	if r.converter == nil {
		return "", fmt.Errorf("no converter configured")
	}
	result, err := r.converter.Convert(ctx, intermediate, r.format, dst)
	if err != nil {
		return "", err
	}
	if result.Degraded {
		ic.outputs.Degraded = true
		ic.diagnostics = append(ic.diagnostics, base+": "+result.Diagnostic)
	}
	return filepath.Base(result.Path), nil
}

func (r *Runner) snapshot(ic *ItemContext) *Stats {
	var caption *string
	if c := strings.TrimSpace(ic.Item.Caption); c != "" {
		caption = &c
	}
	outputs := ic.outputs
	outputs.Format = r.format.String()
	outputs.Diagnostics = append([]string(nil), ic.diagnostics...)
	stats := &Stats{
		Model: ModelInfo{
			Shapegen:  r.cfg.Models.Shapegen,
			Subfolder: r.cfg.Models.Subfolder,
			Texgen:    r.cfg.TexgenModel(),
		},
		Params: Params{
			Caption:          caption,
			Steps:            r.cfg.Generation.Steps,
			GuidanceScale:    r.cfg.Generation.GuidanceScale,
			Seed:             r.cfg.Generation.Seed,
			OctreeResolution: r.cfg.Generation.OctreeResolution,
			CheckBoxRembg:    r.cfg.Generation.RemoveBackground,
			NumChunks:        r.cfg.Generation.NumChunks,
			RemovedBG:        ic.removedBG,
		},
		Time:    ic.Timings(),
		Outputs: outputs,
	}
	if ic.Mesh != nil {
		stats.NumberOfFaces = ic.Mesh.NumFaces()
		stats.NumberOfVertices = ic.Mesh.NumVertices()
	}
	return stats
}

// HasStats reports whether dir holds a completed item.
func HasStats(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, StatsFileName))
	return err == nil
}
