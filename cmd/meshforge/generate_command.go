package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"meshforge/internal/batch"
	"meshforge/internal/config"
	"meshforge/internal/pipeline"
	"meshforge/internal/preflight"
	"meshforge/internal/services"
)

type generateOptions struct {
	outputDir        string
	format           string
	steps            int
	guidanceScale    float64
	seed             int64
	octreeResolution int
	numChunks        int
	disableTexture   bool
	noRembg          bool
	noPreview        bool
	lowVRAM          bool
	device           string
	workers          int
	caption          string
	jsonOutput       bool
}

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var opts generateOptions

	cmd := &cobra.Command{
		Use:   "generate [image|directory]",
		Short: "Generate meshes from an image, a directory of images, or a caption",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cfg, err := applyGenerateFlags(cmd, base, &opts)
			if err != nil {
				return err
			}

			var input string
			if len(args) == 1 {
				input = strings.TrimSpace(args[0])
			}
			items, single, err := generateItems(input, opts.caption)
			if err != nil {
				return err
			}

			runCtx := cmd.Context()
			if runCtx == nil {
				runCtx = context.Background()
			}
			if err := preflight.RequireAccelerator(runCtx, cfg, services.ExecRunner{}); err != nil {
				return err
			}

			logger, err := ctx.newLogger(cfg)
			if err != nil {
				return err
			}
			assembly, err := batch.Build(runCtx, cfg, logger, services.ExecRunner{})
			if err != nil {
				return err
			}
			defer assembly.Close()

			summary, err := assembly.Orchestrator.Run(runCtx, items)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				if err := writeJSON(cmd, summary); err != nil {
					return err
				}
			} else {
				renderRunSummary(out, summary, single, shouldColorize(out))
			}
			return generateExitError(summary, single)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.outputDir, "output", "o", "", "Output root (overrides paths.output_dir)")
	flags.StringVar(&opts.format, "format", "", "Output mesh format: "+strings.Join(config.SupportedFormats, ", "))
	flags.IntVar(&opts.steps, "steps", 0, "Inference steps")
	flags.Float64Var(&opts.guidanceScale, "guidance-scale", 0, "Guidance scale")
	flags.Int64Var(&opts.seed, "seed", 0, "Generation seed")
	flags.IntVar(&opts.octreeResolution, "octree-resolution", 0, "Octree resolution")
	flags.IntVar(&opts.numChunks, "num-chunks", 0, "Number of chunks")
	flags.BoolVar(&opts.disableTexture, "disable-tex", false, "Skip texture generation")
	flags.BoolVar(&opts.noRembg, "no-rembg", false, "Skip background removal for inputs that already have transparency")
	flags.BoolVar(&opts.noPreview, "no-preview", false, "Skip preview rendering")
	flags.BoolVar(&opts.lowVRAM, "low-vram", false, "Release device caches after every item")
	flags.StringVar(&opts.device, "device", "", "Compute device (cuda, cuda:N, cpu)")
	flags.IntVar(&opts.workers, "workers", 0, "Concurrent items (default from device.workers)")
	flags.StringVar(&opts.caption, "caption", "", "Generate from a caption instead of an image")
	flags.BoolVar(&opts.jsonOutput, "json", false, "Print the run summary as JSON")
	return cmd
}

// applyGenerateFlags returns a copy of base with every explicitly set flag
// applied, normalized and validated.
func applyGenerateFlags(cmd *cobra.Command, base *config.Config, opts *generateOptions) (*config.Config, error) {
	cfg := base.Clone()
	flags := cmd.Flags()
	if flags.Changed("output") {
		dir, err := config.ExpandPath(strings.TrimSpace(opts.outputDir))
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "cli", "output", "resolve output directory", err)
		}
		cfg.Paths.OutputDir = dir
	}
	if flags.Changed("format") {
		cfg.Output.Format = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(opts.format)), ".")
	}
	if flags.Changed("steps") {
		cfg.Generation.Steps = opts.steps
	}
	if flags.Changed("guidance-scale") {
		cfg.Generation.GuidanceScale = opts.guidanceScale
	}
	if flags.Changed("seed") {
		cfg.Generation.Seed = opts.seed
	}
	if flags.Changed("octree-resolution") {
		cfg.Generation.OctreeResolution = opts.octreeResolution
	}
	if flags.Changed("num-chunks") {
		cfg.Generation.NumChunks = opts.numChunks
	}
	if opts.disableTexture {
		cfg.Output.Texture = false
	}
	if opts.noRembg {
		cfg.Generation.RemoveBackground = false
	}
	if opts.noPreview {
		cfg.Output.Previews = false
	}
	if opts.lowVRAM {
		cfg.Device.LowVRAM = true
	}
	if flags.Changed("device") {
		cfg.Device.Name = strings.TrimSpace(opts.device)
	}
	if flags.Changed("workers") {
		cfg.Device.Workers = opts.workers
	}
	if strings.TrimSpace(opts.caption) != "" {
		cfg.TextToImage.Enabled = true
	}
	if err := cfg.Finalize(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "cli", "flags", "invalid options", err)
	}
	return cfg, nil
}

// generateItems resolves the command input. single reports whether the run
// is a single-item run, where an item failure fails the process.
func generateItems(input, caption string) ([]pipeline.Item, bool, error) {
	caption = strings.TrimSpace(caption)
	switch {
	case input == "" && caption == "":
		return nil, false, services.Wrap(services.ErrConfiguration, "cli", "generate", "an image, a directory or --caption is required", nil)
	case input == "":
		return []pipeline.Item{{Index: 0, Caption: caption}}, true, nil
	case caption != "":
		return nil, false, services.Wrap(services.ErrConfiguration, "cli", "generate", "--caption cannot be combined with an input path", nil)
	}

	items, err := batch.Discover(input)
	if err != nil {
		return nil, false, err
	}
	if len(items) == 0 {
		return nil, false, services.Wrap(services.ErrConfiguration, "cli", input, "no supported images found", nil)
	}
	single := len(items) == 1 && items[0].Path == input
	return items, single, nil
}

func generateExitError(summary *batch.RunSummary, single bool) error {
	if summary.Cancelled {
		return context.Canceled
	}
	if single {
		if len(summary.Results) == 1 && !summary.Results[0].Success {
			details := summary.Results[0].Error
			if details != nil && details.Kind == services.KindConfiguration {
				return services.Wrap(services.ErrConfiguration, details.Stage, details.Operation, details.Message, nil)
			}
			if details != nil {
				return errors.New("generation failed: " + details.Message)
			}
			return errors.New("generation failed")
		}
		return nil
	}
	if summary.TotalImages > 0 && summary.Processed == 0 {
		return fmt.Errorf("no item succeeded (%d failed); see %s", summary.Errors, filepath.Join(summary.OutputRoot, batch.SummaryFileName))
	}
	return nil
}

func renderRunSummary(out io.Writer, summary *batch.RunSummary, single bool, colorize bool) {
	if single && len(summary.Results) == 1 && summary.Results[0].Success {
		renderSingleResult(out, summary.Results[0], colorize)
		return
	}

	rows := make([][]string, 0, len(summary.Results))
	for _, result := range summary.Results {
		rows = append(rows, []string{
			filepath.Base(result.Image),
			resultStatus(result, colorize),
			filepath.Base(result.OutputFolder),
			strconv.FormatFloat(result.Duration, 'f', 2, 64),
		})
	}
	if len(rows) > 0 {
		fmt.Fprintln(out, renderTable(append(columns("Image", "Status", "Folder"), column{title: "Seconds", numeric: true}), rows))
	}

	for _, line := range renderSectionHeader("Batch Summary", colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Total images", statusInfo, strconv.Itoa(summary.TotalImages), colorize))
	kind := statusOK
	if summary.Errors > 0 {
		kind = statusWarn
	}
	if summary.Processed == 0 && summary.TotalImages > 0 {
		kind = statusError
	}
	fmt.Fprintln(out, renderStatusLine("Processed", kind, strconv.Itoa(summary.Processed), colorize))
	fmt.Fprintln(out, renderStatusLine("Errors", errorKind(summary.Errors), strconv.Itoa(summary.Errors), colorize))
	if summary.Degraded > 0 {
		fmt.Fprintln(out, renderStatusLine("Degraded", statusWarn, strconv.Itoa(summary.Degraded), colorize))
	}
	if summary.Cancelled {
		fmt.Fprintln(out, renderStatusLine("Cancelled", statusWarn, fmt.Sprintf("%d not started", summary.NotStarted), colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Total time", statusInfo, fmt.Sprintf("%.2fs", summary.TotalTime), colorize))
	fmt.Fprintln(out, renderStatusLine("Average time", statusInfo, fmt.Sprintf("%.2fs", summary.AverageTime), colorize))
	fmt.Fprintln(out, renderStatusLine("Summary", statusInfo, filepath.Join(summary.OutputRoot, batch.SummaryFileName), colorize))
}

func renderSingleResult(out io.Writer, result batch.ItemResult, colorize bool) {
	for _, line := range renderSectionHeader("Generated Files", colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Folder", statusOK, result.OutputFolder, colorize))
	if result.Stats == nil {
		return
	}
	for _, name := range result.Stats.Outputs.Files() {
		fmt.Fprintf(out, "%s- %s\n", statusIndent, name)
	}
	for _, diagnostic := range result.Stats.Outputs.Diagnostics {
		fmt.Fprintln(out, renderStatusLine("Degraded", statusWarn, diagnostic, colorize))
	}

	keys := make([]string, 0, len(result.Stats.Time))
	for key := range result.Stats.Time {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, func(a, b string) int {
		return stageOrder(a) - stageOrder(b)
	})
	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, []string{stageLabel(key), strconv.FormatFloat(result.Stats.Time[key], 'f', 2, 64)})
	}
	fmt.Fprintln(out, renderTable([]column{{title: "Stage"}, {title: "Seconds", numeric: true}}, rows))
}

func stageOrder(key string) int {
	if key == pipeline.TimingTotal {
		return len(pipeline.Stages) + 1
	}
	if i := slices.Index(pipeline.Stages, key); i >= 0 {
		return i
	}
	return len(pipeline.Stages)
}

func resultStatus(result batch.ItemResult, colorize bool) string {
	switch {
	case !result.Success:
		label := "failed"
		if result.Error != nil && result.Error.Stage != "" {
			label = "failed (" + stageLabel(result.Error.Stage) + ")"
		}
		return colorCell(label, text.FgRed, colorize)
	case result.Degraded:
		return colorCell("degraded", text.FgYellow, colorize)
	default:
		return colorCell("ok", text.FgGreen, colorize)
	}
}

func errorKind(count int) statusKind {
	if count > 0 {
		return statusWarn
	}
	return statusOK
}
