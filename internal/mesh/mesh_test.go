package mesh

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// cube returns a closed unit cube with 12 triangles.
func cube(offset float32) *Mesh {
	m := &Mesh{}
	for _, z := range []float32{0, 1} {
		for _, y := range []float32{0, 1} {
			for _, x := range []float32{0, 1} {
				m.Vertices = append(m.Vertices, [3]float32{x + offset, y, z})
			}
		}
	}
	quads := [][4]uint32{
		{0, 1, 3, 2}, {4, 6, 7, 5}, {0, 4, 5, 1},
		{2, 3, 7, 6}, {0, 2, 6, 4}, {1, 5, 7, 3},
	}
	for _, q := range quads {
		m.Faces = append(m.Faces, [3]uint32{q[0], q[1], q[2]}, [3]uint32{q[0], q[2], q[3]})
	}
	return m
}

func merge(a, b *Mesh) *Mesh {
	out := a.Clone()
	base := uint32(len(out.Vertices))
	out.Vertices = append(out.Vertices, b.Vertices...)
	for _, f := range b.Faces {
		out.Faces = append(out.Faces, [3]uint32{f[0] + base, f[1] + base, f[2] + base})
	}
	return out
}

func TestOBJRoundTripPreservesColors(t *testing.T) {
	m := cube(0)
	for range m.Vertices {
		m.Colors = append(m.Colors, [3]uint8{255, 128, 0})
	}
	var buf bytes.Buffer
	if err := WriteOBJ(&buf, m); err != nil {
		t.Fatalf("WriteOBJ: %v", err)
	}
	got, err := ReadOBJ(&buf)
	if err != nil {
		t.Fatalf("ReadOBJ: %v", err)
	}
	if got.NumVertices() != 8 || got.NumFaces() != 12 {
		t.Fatalf("unexpected counts v=%d f=%d", got.NumVertices(), got.NumFaces())
	}
	if !got.HasColors() || got.Colors[3] != [3]uint8{255, 128, 0} {
		t.Fatalf("expected colors to survive, got %v", got.Colors)
	}
}

func TestReadOBJTriangulatesPolygonsAndSlashes(t *testing.T) {
	src := `
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
vt 0 0
f 1/1 2/1 3/1 4/1
f -4//1 -3//1 -2//1
`
	m, err := ReadOBJ(strings.NewReader(src))
	if err != nil {
		t.Fatalf("ReadOBJ: %v", err)
	}
	if m.NumFaces() != 3 {
		t.Fatalf("expected quad fan plus triangle, got %d faces", m.NumFaces())
	}
	if m.HasColors() {
		t.Fatal("expected no colors")
	}
}

func TestReadOBJRejectsBadInput(t *testing.T) {
	for _, src := range []string{"", "v 0 0\nf 1 1 1", "v 0 0 0\nf 1 2 3", "v a b c"} {
		if _, err := ReadOBJ(strings.NewReader(src)); err == nil {
			t.Fatalf("expected error for %q", src)
		}
	}
}

func TestWriteFileFormats(t *testing.T) {
	dir := t.TempDir()
	m := cube(0)
	for _, format := range []Format{FormatOBJ, FormatPLY, FormatSTL, FormatGLB} {
		path := filepath.Join(dir, "mesh"+format.Ext())
		if err := WriteFile(path, m, format); err != nil {
			t.Fatalf("WriteFile(%s): %v", format, err)
		}
		info, err := os.Stat(path)
		if err != nil || info.Size() == 0 {
			t.Fatalf("expected %s output, err=%v", format, err)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "mesh.stl"))
	if err != nil {
		t.Fatal(err)
	}
	if got := binary.LittleEndian.Uint32(data[80:84]); got != 12 || len(data) != 84+12*50 {
		t.Fatalf("unexpected stl layout: count=%d len=%d", got, len(data))
	}

	glb, err := os.ReadFile(filepath.Join(dir, "mesh.glb"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(glb, []byte("glTF")) {
		t.Fatalf("expected glb magic, got %q", glb[:4])
	}

	if err := WriteFile(filepath.Join(dir, "mesh.fbx"), m, FormatFBX); err == nil {
		t.Fatal("expected fbx to be unsupported natively")
	}
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			t.Fatalf("temp file leaked: %s", e.Name())
		}
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat(".FBX"); err != nil || f != FormatFBX {
		t.Fatalf("ParseFormat(.FBX) = %q, %v", f, err)
	}
	if _, err := ParseFormat("usdz"); err == nil {
		t.Fatal("expected error for usdz")
	}
}

func TestRemoveFloatersKeepsLargestComponent(t *testing.T) {
	big := cube(0)
	floater := &Mesh{
		Vertices: [][3]float32{{5, 5, 5}, {6, 5, 5}, {5, 6, 5}},
		Faces:    [][3]uint32{{0, 1, 2}},
	}
	m := merge(big, floater)
	if ComponentCount(m) != 2 {
		t.Fatalf("expected 2 components, got %d", ComponentCount(m))
	}
	cleaned := RemoveFloaters(m, 4)
	if cleaned.NumFaces() != 12 || cleaned.NumVertices() != 8 {
		t.Fatalf("expected floater removed, got v=%d f=%d", cleaned.NumVertices(), cleaned.NumFaces())
	}
	kept := RemoveFloaters(floater, 100)
	if kept.NumFaces() != 1 {
		t.Fatal("expected the only component to survive")
	}
}

func TestRemoveDegenerateFaces(t *testing.T) {
	m := cube(0)
	m.Faces = append(m.Faces, [3]uint32{0, 0, 1}, [3]uint32{0, 1, 1})
	m.Vertices = append(m.Vertices, [3]float32{2, 0, 0})
	m.Faces = append(m.Faces, [3]uint32{0, 1, 8})
	cleaned := RemoveDegenerateFaces(m)
	if cleaned.NumFaces() != 12 {
		t.Fatalf("expected degenerate faces removed, got %d", cleaned.NumFaces())
	}
	if cleaned.NumVertices() != 8 {
		t.Fatalf("expected collinear vertex dropped, got %d", cleaned.NumVertices())
	}
}

func TestReduceFacesHonoursBudget(t *testing.T) {
	m := grid(40)
	if m.NumFaces() <= 500 {
		t.Fatalf("fixture too small: %d", m.NumFaces())
	}
	reduced := ReduceFaces(m, 500)
	if reduced.NumFaces() > 500 || reduced.NumFaces() == 0 {
		t.Fatalf("expected 0 < faces <= 500, got %d", reduced.NumFaces())
	}
	if err := reduced.Validate(); err != nil {
		t.Fatalf("reduced mesh invalid: %v", err)
	}
	same := ReduceFaces(m, 0)
	if same.NumFaces() != m.NumFaces() {
		t.Fatal("expected zero budget to disable reduction")
	}
}

func TestReduceFacesIsDeterministic(t *testing.T) {
	m := grid(30)
	var a, b bytes.Buffer
	if err := WriteOBJ(&a, ReduceFaces(m, 300)); err != nil {
		t.Fatal(err)
	}
	if err := WriteOBJ(&b, ReduceFaces(m, 300)); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Fatal("expected identical output for identical input")
	}
}

func TestMergeDuplicateVertices(t *testing.T) {
	m := &Mesh{
		Vertices: [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {1, 0, 0}, {1, 1, 0}},
		Faces:    [][3]uint32{{0, 1, 2}, {3, 4, 2}},
	}
	merged := MergeDuplicateVertices(m, 1e-5)
	if merged.NumVertices() != 4 {
		t.Fatalf("expected 4 vertices, got %d", merged.NumVertices())
	}
	if merged.Faces[1][0] != 1 {
		t.Fatalf("expected duplicate remapped, got %v", merged.Faces[1])
	}
}

func grid(n int) *Mesh {
	m := &Mesh{}
	for y := 0; y <= n; y++ {
		for x := 0; x <= n; x++ {
			m.Vertices = append(m.Vertices, [3]float32{float32(x) / float32(n), float32(y) / float32(n), float32((x*y)%3) * 0.01})
		}
	}
	stride := uint32(n + 1)
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			i := uint32(y)*stride + uint32(x)
			m.Faces = append(m.Faces, [3]uint32{i, i + 1, i + stride + 1}, [3]uint32{i, i + stride + 1, i + stride})
		}
	}
	return m
}
