package convert

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"meshforge/internal/mesh"
	"meshforge/internal/services"
)

var blenderExporters = map[mesh.Format]string{
	mesh.FormatOBJ: "bpy.ops.wm.obj_export(filepath=%s)",
	mesh.FormatGLB: "bpy.ops.export_scene.gltf(filepath=%s, export_format='GLB')",
	mesh.FormatPLY: "bpy.ops.wm.ply_export(filepath=%s)",
	mesh.FormatSTL: "bpy.ops.wm.stl_export(filepath=%s)",
	mesh.FormatFBX: "bpy.ops.export_scene.fbx(filepath=%s)",
}

// BlenderBackend converts through a headless Blender process.
type BlenderBackend struct {
	Binary string
	Runner services.CommandRunner
}

// NewBlenderBackend returns a Blender backend running binary.
func NewBlenderBackend(binary string, runner services.CommandRunner) *BlenderBackend {
	if runner == nil {
		runner = services.ExecRunner{}
	}
	return &BlenderBackend{Binary: binary, Runner: runner}
}

func (b *BlenderBackend) Name() string { return "blender" }

func (b *BlenderBackend) Supports(format mesh.Format) bool {
	_, ok := blenderExporters[format]
	return ok
}

func (b *BlenderBackend) Probe(ctx context.Context) error {
	_, err := b.Runner.Run(ctx, b.Binary, "-b", "--factory-startup", "--version")
	return err
}

func (b *BlenderBackend) Convert(ctx context.Context, src, dst string, format mesh.Format) Attempt {
	return b.convertAs(ctx, b.Name(), src, dst, format)
}

func (b *BlenderBackend) convertAs(ctx context.Context, name, src, dst string, format mesh.Format) Attempt {
	script, err := blenderScript(src, dst, format)
	if err != nil {
		return softFailure(name, err.Error())
	}
	if _, err := b.Runner.Run(ctx, b.Binary, "-b", "--factory-startup", "--python-exit-code", "1", "--python-expr", script); err != nil {
		return hardFailure(name, err)
	}
	return checkOutput(name, dst)
}

func blenderScript(src, dst string, format mesh.Format) (string, error) {
	exporter, ok := blenderExporters[format]
	if !ok {
		return "", fmt.Errorf("blender cannot export %s", format)
	}
	lines := []string{
		"import bpy",
		"bpy.ops.wm.read_factory_settings(use_empty=True)",
		fmt.Sprintf("bpy.ops.wm.obj_import(filepath=%s)", strconv.Quote(src)),
		fmt.Sprintf(exporter, strconv.Quote(dst)),
	}
	return strings.Join(lines, "\n"), nil
}

// checkOutput turns a finished external run into an Attempt by inspecting dst.
func checkOutput(name, dst string) Attempt {
	info, err := os.Stat(dst)
	if err != nil {
		return softFailure(name, "no output written")
	}
	if info.Size() == 0 {
		return softFailure(name, "output is empty")
	}
	return succeeded(name, dst)
}
