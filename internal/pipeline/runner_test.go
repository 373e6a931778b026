package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"meshforge/internal/capability"
	"meshforge/internal/config"
	"meshforge/internal/convert"
	"meshforge/internal/pipeline"
	"meshforge/internal/services"
	"meshforge/internal/testsupport"
)

func newRunner(t *testing.T, cfg *config.Config) *pipeline.Runner {
	t.Helper()
	backends, err := convert.BackendsFromConfig(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	reg := convert.NewRegistry(context.Background(), backends, time.Second, nil)
	runner, err := pipeline.NewRunner(cfg, convert.NewConverter(reg))
	if err != nil {
		t.Fatal(err)
	}
	return runner
}

func newSet(t *testing.T, cfg *config.Config) *capability.Set {
	t.Helper()
	set, err := capability.FromConfig(cfg)(0)
	if err != nil {
		t.Fatal(err)
	}
	return set
}

func itemDir(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "item_0000aaaa")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestRunWritesAllOutputs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	input := filepath.Join(testsupport.BaseDir(cfg), "in", "vase.png")
	testsupport.WriteImage(t, input, 96, color.NRGBA{R: 30, G: 90, B: 200, A: 255})
	dir := itemDir(t)

	stats, err := newRunner(t, cfg).Run(context.Background(), newSet(t, cfg), pipeline.Item{Path: input}, dir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{
		"input.png", "rembg.png", "raw_mesh.obj", "white_mesh.obj", "textured_mesh.obj",
		"vase_preview_front.png", "vase_preview_side.png", "vase_preview_top.png", "stats.json",
	}
	for _, name := range want {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
	}
	if !slices.Equal(stats.Outputs.Files(), want[:len(want)-1]) {
		t.Fatalf("unexpected output listing %v", stats.Outputs.Files())
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != len(want) {
		t.Fatalf("unexpected extra files in %s: %d entries", dir, len(entries))
	}

	data, err := os.ReadFile(filepath.Join(dir, pipeline.StatsFileName))
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"model", "params", "number_of_faces", "number_of_vertices", "time"} {
		if _, ok := decoded[key]; !ok {
			t.Fatalf("stats.json missing %q", key)
		}
	}
	if stats.NumberOfFaces == 0 || stats.NumberOfFaces > cfg.Output.MaxFaces {
		t.Fatalf("face count %d outside (0, %d]", stats.NumberOfFaces, cfg.Output.MaxFaces)
	}
	if stats.Params.Caption != nil || !stats.Params.RemovedBG {
		t.Fatalf("unexpected params %+v", stats.Params)
	}
	var stageSum float64
	for _, stage := range pipeline.Stages {
		stageSum += stats.Time[stage]
	}
	if stats.Time[pipeline.TimingTotal] < stageSum*0.99 {
		t.Fatalf("total %f smaller than stage sum %f", stats.Time[pipeline.TimingTotal], stageSum)
	}
}

func TestRunRemovesBackgroundForOpaqueInputWhenDisabled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Generation.RemoveBackground = false
	cfg.Output.Texture = false
	cfg.Output.Previews = false

	set := newSet(t, cfg)
	set.Background = capability.BorderRemover{Tolerance: 48}
	input := filepath.Join(testsupport.BaseDir(cfg), "opaque.png")
	testsupport.WriteImage(t, input, 64, color.NRGBA{R: 200, A: 255})
	dir := itemDir(t)

	stats, err := newRunner(t, cfg).Run(context.Background(), set, pipeline.Item{Path: input}, dir)
	if err != nil {
		t.Fatal(err)
	}
	if !stats.Params.RemovedBG {
		t.Fatal("opaque inputs must always go through background removal")
	}
	if stats.Outputs.TexturedMesh != "" || stats.Model.Texgen != "Unavailable" {
		t.Fatalf("texture disabled but outputs %+v model %+v", stats.Outputs, stats.Model)
	}
}

func TestRunSkipsBackgroundRemovalForTransparentInputWhenDisabled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Generation.RemoveBackground = false
	cfg.Output.Texture = false
	cfg.Output.Previews = false

	set := newSet(t, cfg)
	// Any call into background removal would fail the item.
	set.Background = nil
	input := filepath.Join(testsupport.BaseDir(cfg), "cutout.png")
	testsupport.WriteCutout(t, input, 64, color.NRGBA{G: 160, A: 255})
	dir := itemDir(t)

	stats, err := newRunner(t, cfg).Run(context.Background(), set, pipeline.Item{Path: input}, dir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Params.RemovedBG || stats.Outputs.Rembg != "" {
		t.Fatalf("expected background removal to be skipped, params %+v outputs %+v", stats.Params, stats.Outputs)
	}
	if _, err := os.Stat(filepath.Join(dir, "rembg.png")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected no rembg.png, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, pipeline.StatsFileName)); err != nil {
		t.Fatalf("expected completed item: %v", err)
	}
}

func TestRunFailsOnCorruptInput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	input := filepath.Join(testsupport.BaseDir(cfg), "broken.png")
	testsupport.WriteFile(t, input, 128)
	dir := itemDir(t)

	_, err := newRunner(t, cfg).Run(context.Background(), newSet(t, cfg), pipeline.Item{Path: input}, dir)
	if err == nil {
		t.Fatal("expected corrupt input to fail")
	}
	if details := services.Details(err); details.Stage != pipeline.StageLoad || details.Kind != services.KindStage {
		t.Fatalf("unexpected error details %+v", details)
	}
	if pipeline.HasStats(dir) {
		t.Fatal("failed item must not have stats.json")
	}
}

func TestRunCaptionWithoutTextToImageIsConfigurationError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	dir := itemDir(t)
	runner := newRunner(t, cfg)

	_, err := runner.Run(context.Background(), newSet(t, cfg), pipeline.Item{Caption: "a red chair"}, dir)
	if services.Classify(err) != services.KindConfiguration {
		t.Fatalf("expected configuration error, got %v", err)
	}
	_, err = runner.Run(context.Background(), newSet(t, cfg), pipeline.Item{}, dir)
	if services.Classify(err) != services.KindConfiguration {
		t.Fatalf("expected configuration error without image or caption, got %v", err)
	}
}

type solidTextToImage struct{ prompts []string }

func (s *solidTextToImage) TextToImage(_ context.Context, caption string) (image.Image, error) {
	s.prompts = append(s.prompts, caption)
	img := image.NewNRGBA(image.Rect(0, 0, 40, 40))
	for y := 8; y < 32; y++ {
		for x := 8; x < 32; x++ {
			img.SetNRGBA(x, y, color.NRGBA{G: 180, A: 255})
		}
	}
	return img, nil
}

func TestRunCaptionItem(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	set := newSet(t, cfg)
	t2i := &solidTextToImage{}
	set.TextToImage = t2i
	dir := itemDir(t)

	stats, err := newRunner(t, cfg).Run(context.Background(), set, pipeline.Item{Caption: "  a green box "}, dir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(t2i.prompts) != 1 || t2i.prompts[0] != "a green box" {
		t.Fatalf("unexpected prompts %v", t2i.prompts)
	}
	if stats.Params.Caption == nil || *stats.Params.Caption != "a green box" {
		t.Fatalf("caption not echoed: %+v", stats.Params)
	}
	if _, err := os.Stat(filepath.Join(dir, "caption_preview_front.png")); err != nil {
		t.Fatalf("caption preview missing: %v", err)
	}
}

func TestPreviewFailureDoesNotFailItem(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Output.PreviewSize = 0
	input := filepath.Join(testsupport.BaseDir(cfg), "cup.png")
	testsupport.WriteImage(t, input, 64, color.NRGBA{B: 200, A: 255})
	dir := itemDir(t)

	stats, err := newRunner(t, cfg).Run(context.Background(), newSet(t, cfg), pipeline.Item{Path: input}, dir)
	if err != nil {
		t.Fatalf("preview failure must not fail the item: %v", err)
	}
	if len(stats.Outputs.Previews) != 0 || !pipeline.HasStats(dir) {
		t.Fatalf("unexpected outputs %+v", stats.Outputs)
	}
}

func TestShapeFailureIsStageError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	shape := &testsupport.StubShape{FailOn: map[int64]bool{1: true}}
	factory, _ := testsupport.SharedFactory(shape)
	set, _ := factory(0)
	input := filepath.Join(testsupport.BaseDir(cfg), "cup.png")
	testsupport.WriteImage(t, input, 64, color.NRGBA{B: 200, A: 255})
	dir := itemDir(t)

	_, err := newRunner(t, cfg).Run(context.Background(), set, pipeline.Item{Path: input}, dir)
	if !errors.Is(err, testsupport.ErrStubFailure) || services.Details(err).Stage != pipeline.StageShapeGeneration {
		t.Fatalf("unexpected error %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "raw_mesh.obj")); !os.IsNotExist(statErr) {
		t.Fatal("later stages must not run after a failure")
	}
}

func TestDegradedExportIsFlagged(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithFormat("fbx"))
	cfg.Output.Previews = false
	input := filepath.Join(testsupport.BaseDir(cfg), "lamp.png")
	testsupport.WriteImage(t, input, 64, color.NRGBA{R: 250, G: 200, A: 255})
	dir := itemDir(t)

	stats, err := newRunner(t, cfg).Run(context.Background(), newSet(t, cfg), pipeline.Item{Path: input}, dir)
	if err != nil {
		t.Fatalf("degradation must not fail the item: %v", err)
	}
	if !stats.Outputs.Degraded || stats.Outputs.WhiteMesh != "white_mesh_fallback.obj" || stats.Outputs.TexturedMesh != "textured_mesh_fallback.obj" {
		t.Fatalf("unexpected outputs %+v", stats.Outputs)
	}
	if len(stats.Outputs.Diagnostics) != 3 {
		t.Fatalf("expected a diagnostic per export, got %v", stats.Outputs.Diagnostics)
	}
}
