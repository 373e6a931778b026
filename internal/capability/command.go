package capability

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"meshforge/internal/imageio"
	"meshforge/internal/mesh"
	"meshforge/internal/services"
)

var (
	defaultShapeArgs = []string{
		"--image", "{input}", "--output", "{output}",
		"--seed", "{seed}", "--steps", "{steps}",
		"--guidance-scale", "{guidance_scale}",
		"--octree-resolution", "{octree_resolution}",
		"--num-chunks", "{num_chunks}",
		"--device", "{device}", "--mc-algo", "{mc_algo}",
	}
	defaultBackgroundArgs  = []string{"{input}", "{output}"}
	defaultTextureArgs     = []string{"--mesh", "{mesh}", "--image", "{image}", "--output", "{output}", "--device", "{device}"}
	defaultTextToImageArgs = []string{"--caption", "{caption}", "--output", "{output}"}
)

// commandTool runs an external program whose arguments are a template with
// {placeholder} substitutions. Inputs and outputs travel through a private
// temp directory removed after every call.
type commandTool struct {
	stage   string
	binary  string
	args    []string
	timeout time.Duration
	runner  services.CommandRunner
}

func newCommandTool(stage, binary string, args, fallback []string, timeout time.Duration, runner services.CommandRunner) commandTool {
	if len(args) == 0 {
		args = fallback
	}
	if runner == nil {
		runner = services.ExecRunner{}
	}
	return commandTool{
		stage:   stage,
		binary:  strings.TrimSpace(binary),
		args:    append([]string(nil), args...),
		timeout: timeout,
		runner:  runner,
	}
}

func (t commandTool) run(ctx context.Context, values map[string]string) error {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	if _, err := t.runner.Run(ctx, t.binary, expandArgs(t.args, values)...); err != nil {
		return services.Wrap(services.ErrExternalTool, t.stage, t.binary, "command failed", err)
	}
	return nil
}

func (t commandTool) workdir() (string, func(), error) {
	dir, err := os.MkdirTemp("", "meshforge-"+t.stage+"-")
	if err != nil {
		return "", nil, fmt.Errorf("create work dir: %w", err)
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}

func expandArgs(args []string, values map[string]string) []string {
	pairs := make([]string, 0, len(values)*2)
	for key, value := range values {
		pairs = append(pairs, "{"+key+"}", value)
	}
	replacer := strings.NewReplacer(pairs...)
	out := make([]string, len(args))
	for i, arg := range args {
		out[i] = replacer.Replace(arg)
	}
	return out
}

// CommandShapeGenerator delegates shape generation to an external program
// that reads {input} (PNG) and writes {output} (OBJ).
type CommandShapeGenerator struct {
	tool commandTool
}

// NewCommandShapeGenerator builds a command-backed ShapeGenerator.
func NewCommandShapeGenerator(binary string, args []string, timeout time.Duration, runner services.CommandRunner) *CommandShapeGenerator {
	return &CommandShapeGenerator{tool: newCommandTool("shape_generation", binary, args, defaultShapeArgs, timeout, runner)}
}

func (g *CommandShapeGenerator) GenerateShape(ctx context.Context, img image.Image, params ShapeParams) (*mesh.Mesh, error) {
	dir, cleanup, err := g.tool.workdir()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	input := filepath.Join(dir, "input.png")
	output := filepath.Join(dir, "shape.obj")
	if err := imageio.SavePNG(input, img); err != nil {
		return nil, err
	}
	err = g.tool.run(ctx, map[string]string{
		"input":             input,
		"output":            output,
		"seed":              strconv.FormatInt(params.Seed, 10),
		"steps":             strconv.Itoa(params.Steps),
		"guidance_scale":    strconv.FormatFloat(params.GuidanceScale, 'f', -1, 64),
		"octree_resolution": strconv.Itoa(params.OctreeResolution),
		"num_chunks":        strconv.Itoa(params.NumChunks),
		"device":            params.Device,
		"mc_algo":           params.MCAlgo,
	})
	if err != nil {
		return nil, err
	}
	return mesh.ReadOBJFile(output)
}

// CommandBackgroundRemover delegates background removal to an external program
// that reads {input} and writes {output}, both PNG.
type CommandBackgroundRemover struct {
	tool commandTool
}

// NewCommandBackgroundRemover builds a command-backed BackgroundRemover.
func NewCommandBackgroundRemover(binary string, args []string, timeout time.Duration, runner services.CommandRunner) *CommandBackgroundRemover {
	return &CommandBackgroundRemover{tool: newCommandTool("remove_background", binary, args, defaultBackgroundArgs, timeout, runner)}
}

// NewRembgRemover runs the rembg CLI ("rembg i input output").
func NewRembgRemover(timeout time.Duration, runner services.CommandRunner) *CommandBackgroundRemover {
	return &CommandBackgroundRemover{tool: newCommandTool("remove_background", "rembg", []string{"i", "{input}", "{output}"}, nil, timeout, runner)}
}

func (r *CommandBackgroundRemover) RemoveBackground(ctx context.Context, img image.Image) (image.Image, error) {
	dir, cleanup, err := r.tool.workdir()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	input := filepath.Join(dir, "input.png")
	output := filepath.Join(dir, "output.png")
	if err := imageio.SavePNG(input, img); err != nil {
		return nil, err
	}
	if err := r.tool.run(ctx, map[string]string{"input": input, "output": output}); err != nil {
		return nil, err
	}
	return imageio.Load(output)
}

// CommandTextureGenerator delegates texturing to an external program that
// reads {mesh} (OBJ) and {image} (PNG) and writes a vertex-colored {output} OBJ
// ("v x y z r g b"). UV-mapped output with a material image is not read back
// and is rejected.
type CommandTextureGenerator struct {
	tool   commandTool
	device string
}

// NewCommandTextureGenerator builds a command-backed TextureGenerator.
func NewCommandTextureGenerator(binary string, args []string, device string, timeout time.Duration, runner services.CommandRunner) *CommandTextureGenerator {
	return &CommandTextureGenerator{tool: newCommandTool("texture_generation", binary, args, defaultTextureArgs, timeout, runner), device: device}
}

func (g *CommandTextureGenerator) GenerateTexture(ctx context.Context, m *mesh.Mesh, reference image.Image) (*mesh.Mesh, error) {
	dir, cleanup, err := g.tool.workdir()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	meshPath := filepath.Join(dir, "white_mesh.obj")
	imagePath := filepath.Join(dir, "reference.png")
	output := filepath.Join(dir, "textured_mesh.obj")
	if err := mesh.WriteFile(meshPath, m, mesh.FormatOBJ); err != nil {
		return nil, err
	}
	if err := imageio.SavePNG(imagePath, reference); err != nil {
		return nil, err
	}
	if err := g.tool.run(ctx, map[string]string{"mesh": meshPath, "image": imagePath, "output": output, "device": g.device}); err != nil {
		return nil, err
	}
	textured, err := mesh.ReadOBJFile(output)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "texture_generation", g.tool.binary, "read textured mesh", err)
	}
	if !textured.HasColors() {
		return nil, services.Wrap(services.ErrExternalTool, "texture_generation", g.tool.binary,
			"textured mesh has no vertex colors; only vertex-colored OBJ output is supported", nil)
	}
	return textured, nil
}

// CommandTextToImage delegates caption synthesis to an external program that
// writes {output} (PNG).
type CommandTextToImage struct {
	tool commandTool
	seed int64
}

// NewCommandTextToImage builds a command-backed TextToImage.
func NewCommandTextToImage(binary string, args []string, seed int64, timeout time.Duration, runner services.CommandRunner) *CommandTextToImage {
	return &CommandTextToImage{tool: newCommandTool("text_to_image", binary, args, defaultTextToImageArgs, timeout, runner), seed: seed}
}

func (t *CommandTextToImage) TextToImage(ctx context.Context, caption string) (image.Image, error) {
	dir, cleanup, err := t.tool.workdir()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	output := filepath.Join(dir, "caption.png")
	if err := t.tool.run(ctx, map[string]string{"caption": caption, "output": output, "seed": strconv.FormatInt(t.seed, 10)}); err != nil {
		return nil, err
	}
	return imageio.Load(output)
}
