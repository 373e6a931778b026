package mesh

import (
	"bufio"
	"fmt"
	"io"
)

// WritePLY writes m as ASCII PLY, including vertex colors when present.
func WritePLY(w io.Writer, m *Mesh) error {
	bw := bufio.NewWriter(w)
	colored := m.HasColors()
	fmt.Fprintln(bw, "ply")
	fmt.Fprintln(bw, "format ascii 1.0")
	fmt.Fprintln(bw, "comment meshforge")
	fmt.Fprintf(bw, "element vertex %d\n", len(m.Vertices))
	fmt.Fprintln(bw, "property float x")
	fmt.Fprintln(bw, "property float y")
	fmt.Fprintln(bw, "property float z")
	if colored {
		fmt.Fprintln(bw, "property uchar red")
		fmt.Fprintln(bw, "property uchar green")
		fmt.Fprintln(bw, "property uchar blue")
	}
	fmt.Fprintf(bw, "element face %d\n", len(m.Faces))
	fmt.Fprintln(bw, "property list uchar int vertex_indices")
	fmt.Fprintln(bw, "end_header")
	for i, v := range m.Vertices {
		if colored {
			c := m.Colors[i]
			fmt.Fprintf(bw, "%s %s %s %d %d %d\n", formatFloat(v[0]), formatFloat(v[1]), formatFloat(v[2]), c[0], c[1], c[2])
			continue
		}
		fmt.Fprintf(bw, "%s %s %s\n", formatFloat(v[0]), formatFloat(v[1]), formatFloat(v[2]))
	}
	for _, f := range m.Faces {
		fmt.Fprintf(bw, "3 %d %d %d\n", f[0], f[1], f[2])
	}
	return bw.Flush()
}
