package convert

import (
	"context"

	"meshforge/internal/mesh"
	"meshforge/internal/services"
)

var assimpFormatIDs = map[mesh.Format]string{
	mesh.FormatOBJ: "obj",
	mesh.FormatGLB: "glb2",
	mesh.FormatPLY: "ply",
	mesh.FormatSTL: "stlb",
	mesh.FormatFBX: "fbx",
}

// AssimpBackend converts with the assimp command line tool.
type AssimpBackend struct {
	Binary string
	Runner services.CommandRunner
}

// NewAssimpBackend returns an assimp backend running binary.
func NewAssimpBackend(binary string, runner services.CommandRunner) *AssimpBackend {
	if runner == nil {
		runner = services.ExecRunner{}
	}
	return &AssimpBackend{Binary: binary, Runner: runner}
}

func (b *AssimpBackend) Name() string { return "assimp" }

func (b *AssimpBackend) Supports(format mesh.Format) bool {
	_, ok := assimpFormatIDs[format]
	return ok
}

func (b *AssimpBackend) Probe(ctx context.Context) error {
	_, err := b.Runner.Run(ctx, b.Binary, "version")
	return err
}

func (b *AssimpBackend) Convert(ctx context.Context, src, dst string, format mesh.Format) Attempt {
	id, ok := assimpFormatIDs[format]
	if !ok {
		return softFailure(b.Name(), "assimp cannot export "+format.String())
	}
	if _, err := b.Runner.Run(ctx, b.Binary, "export", src, dst, "-f"+id); err != nil {
		return hardFailure(b.Name(), err)
	}
	return checkOutput(b.Name(), dst)
}
