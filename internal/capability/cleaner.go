package capability

import "meshforge/internal/mesh"

// NativeCleaner implements MeshCleaner with the mesh package primitives.
type NativeCleaner struct {
	MinComponentFaces int
}

func (c NativeCleaner) RemoveFloaters(m *mesh.Mesh) *mesh.Mesh {
	return mesh.RemoveFloaters(m, c.MinComponentFaces)
}

func (NativeCleaner) RemoveDegenerateFaces(m *mesh.Mesh) *mesh.Mesh {
	return mesh.RemoveDegenerateFaces(m)
}

func (NativeCleaner) ReduceFaces(m *mesh.Mesh, maxFaces int) *mesh.Mesh {
	return mesh.ReduceFaces(m, maxFaces)
}
