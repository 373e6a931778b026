package mesh

import (
	"errors"
	"fmt"
	"math"
)

// Mesh is an indexed triangle mesh. Colors, when present, hold one RGB value
// per vertex.
type Mesh struct {
	Vertices [][3]float32
	Faces    [][3]uint32
	Colors   [][3]uint8
}

// ErrEmptyMesh reports a mesh without triangles.
var ErrEmptyMesh = errors.New("mesh has no faces")

// NumVertices returns the vertex count.
func (m *Mesh) NumVertices() int { return len(m.Vertices) }

// NumFaces returns the triangle count.
func (m *Mesh) NumFaces() int { return len(m.Faces) }

// HasColors reports whether every vertex carries a color.
func (m *Mesh) HasColors() bool {
	return len(m.Colors) > 0 && len(m.Colors) == len(m.Vertices)
}

// Clone returns a deep copy.
func (m *Mesh) Clone() *Mesh {
	out := &Mesh{
		Vertices: append([][3]float32(nil), m.Vertices...),
		Faces:    append([][3]uint32(nil), m.Faces...),
	}
	if len(m.Colors) > 0 {
		out.Colors = append([][3]uint8(nil), m.Colors...)
	}
	return out
}

// Validate checks index bounds and color arity.
func (m *Mesh) Validate() error {
	if len(m.Faces) == 0 {
		return ErrEmptyMesh
	}
	n := uint32(len(m.Vertices))
	for i, f := range m.Faces {
		if f[0] >= n || f[1] >= n || f[2] >= n {
			return fmt.Errorf("face %d references vertex beyond %d", i, n)
		}
	}
	if len(m.Colors) > 0 && len(m.Colors) != len(m.Vertices) {
		return fmt.Errorf("mesh has %d colors for %d vertices", len(m.Colors), len(m.Vertices))
	}
	for i, v := range m.Vertices {
		for _, c := range v {
			if math.IsNaN(float64(c)) || math.IsInf(float64(c), 0) {
				return fmt.Errorf("vertex %d is not finite", i)
			}
		}
	}
	return nil
}

// Bounds returns the axis-aligned bounding box.
func (m *Mesh) Bounds() (minV, maxV [3]float32) {
	if len(m.Vertices) == 0 {
		return minV, maxV
	}
	minV, maxV = m.Vertices[0], m.Vertices[0]
	for _, v := range m.Vertices[1:] {
		for k := 0; k < 3; k++ {
			minV[k] = min(minV[k], v[k])
			maxV[k] = max(maxV[k], v[k])
		}
	}
	return minV, maxV
}

// VertexNormals returns area-weighted per-vertex normals.
func (m *Mesh) VertexNormals() [][3]float32 {
	normals := make([][3]float32, len(m.Vertices))
	for _, f := range m.Faces {
		n := faceNormal(m.Vertices[f[0]], m.Vertices[f[1]], m.Vertices[f[2]])
		for _, idx := range f {
			normals[idx][0] += n[0]
			normals[idx][1] += n[1]
			normals[idx][2] += n[2]
		}
	}
	for i := range normals {
		normals[i] = normalize(normals[i])
	}
	return normals
}

func faceNormal(a, b, c [3]float32) [3]float32 {
	u := sub(b, a)
	v := sub(c, a)
	return cross(u, v)
}

func sub(a, b [3]float32) [3]float32 {
	return [3]float32{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func cross(a, b [3]float32) [3]float32 {
	return [3]float32{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func length(v [3]float32) float64 {
	return math.Sqrt(float64(v[0])*float64(v[0]) + float64(v[1])*float64(v[1]) + float64(v[2])*float64(v[2]))
}

func normalize(v [3]float32) [3]float32 {
	l := length(v)
	if l == 0 {
		return [3]float32{0, 0, 1}
	}
	return [3]float32{float32(float64(v[0]) / l), float32(float64(v[1]) / l), float32(float64(v[2]) / l)}
}
