package convert

import (
	"context"
	"os"
	"path/filepath"

	"meshforge/internal/mesh"
)

const cleanMergeEpsilon = 1e-6

// CleanChainBackend repairs the geometry natively (merging duplicate
// vertices, dropping degenerate faces and unreferenced vertices) and then
// hands the repaired OBJ to Blender for emission. It is available exactly
// when Blender is.
type CleanChainBackend struct {
	Emitter *BlenderBackend
}

func (b *CleanChainBackend) Name() string { return "cleanchain" }

func (b *CleanChainBackend) Supports(format mesh.Format) bool {
	return b.Emitter != nil && b.Emitter.Supports(format)
}

func (b *CleanChainBackend) Probe(ctx context.Context) error {
	return b.Emitter.Probe(ctx)
}

func (b *CleanChainBackend) Convert(ctx context.Context, src, dst string, format mesh.Format) Attempt {
	m, err := mesh.ReadOBJFile(src)
	if err != nil {
		return hardFailure(b.Name(), err)
	}
	m = mesh.MergeDuplicateVertices(m, cleanMergeEpsilon)
	m = mesh.RemoveDegenerateFaces(m)
	m = mesh.DropUnreferencedVertices(m)
	if m.NumFaces() == 0 {
		return softFailure(b.Name(), "no faces left after cleaning")
	}

	cleaned := filepath.Join(filepath.Dir(dst), "cleaned"+mesh.IntermediateFormat.Ext())
	if err := mesh.WriteFile(cleaned, m, mesh.IntermediateFormat); err != nil {
		return hardFailure(b.Name(), err)
	}
	defer os.Remove(cleaned)

	return b.Emitter.convertAs(ctx, b.Name(), cleaned, dst, format)
}
