package convert

import (
	"context"

	"meshforge/internal/mesh"
)

// NativeBackend writes the formats the mesh package implements directly.
type NativeBackend struct{}

func (NativeBackend) Name() string { return "native" }

func (NativeBackend) Supports(format mesh.Format) bool { return format.NativeWritable() }

func (NativeBackend) Probe(context.Context) error { return nil }

func (b NativeBackend) Convert(ctx context.Context, src, dst string, format mesh.Format) Attempt {
	if !b.Supports(format) {
		return softFailure(b.Name(), "format "+format.String()+" is not natively writable")
	}
	if err := ctx.Err(); err != nil {
		return hardFailure(b.Name(), err)
	}
	m, err := mesh.ReadOBJFile(src)
	if err != nil {
		return hardFailure(b.Name(), err)
	}
	if err := mesh.WriteFile(dst, m, format); err != nil {
		return hardFailure(b.Name(), err)
	}
	return succeeded(b.Name(), dst)
}
