package mesh

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

// NewGLTFDocument builds a single-node glTF document holding m.
func NewGLTFDocument(m *Mesh) *gltf.Document {
	doc := gltf.NewDocument()
	positions := modeler.WritePosition(doc, m.Vertices)
	normals := modeler.WriteNormal(doc, m.VertexNormals())
	indices := make([]uint32, 0, len(m.Faces)*3)
	for _, f := range m.Faces {
		indices = append(indices, f[0], f[1], f[2])
	}
	attributes := gltf.PrimitiveAttributes{
		gltf.POSITION: positions,
		gltf.NORMAL:   normals,
	}
	if m.HasColors() {
		attributes[gltf.COLOR_0] = modeler.WriteColor(doc, m.Colors)
	}
	doc.Meshes = []*gltf.Mesh{{
		Name: "mesh",
		Primitives: []*gltf.Primitive{{
			Indices:    gltf.Index(modeler.WriteIndices(doc, indices)),
			Attributes: attributes,
		}},
	}}
	doc.Nodes = []*gltf.Node{{Name: "mesh", Mesh: gltf.Index(0)}}
	doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, 0)
	return doc
}

func writeGLBFile(path string, m *Mesh) error {
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	defer os.Remove(tmp)
	if err := gltf.SaveBinary(NewGLTFDocument(m), tmp); err != nil {
		return fmt.Errorf("write glb: %w", err)
	}
	return os.Rename(tmp, path)
}
