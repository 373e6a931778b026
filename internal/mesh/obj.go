package mesh

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// WriteOBJ writes m as Wavefront OBJ. Vertex colors use the widely read
// "v x y z r g b" extension with components in [0,1].
func WriteOBJ(w io.Writer, m *Mesh) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# meshforge\n# vertices %d faces %d\n", len(m.Vertices), len(m.Faces))
	colored := m.HasColors()
	for i, v := range m.Vertices {
		if colored {
			c := m.Colors[i]
			fmt.Fprintf(bw, "v %s %s %s %s %s %s\n",
				formatFloat(v[0]), formatFloat(v[1]), formatFloat(v[2]),
				formatFloat(float32(c[0])/255), formatFloat(float32(c[1])/255), formatFloat(float32(c[2])/255))
			continue
		}
		fmt.Fprintf(bw, "v %s %s %s\n", formatFloat(v[0]), formatFloat(v[1]), formatFloat(v[2]))
	}
	for _, f := range m.Faces {
		fmt.Fprintf(bw, "f %d %d %d\n", f[0]+1, f[1]+1, f[2]+1)
	}
	return bw.Flush()
}

// ReadOBJ parses the geometry subset of Wavefront OBJ: vertices (with optional
// colors) and polygonal faces, which are fan-triangulated. Texture and normal
// references in face corners are ignored.
func ReadOBJ(r io.Reader) (*Mesh, error) {
	m := &Mesh{}
	var colors [][3]uint8
	colored := true

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "v":
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: vertex needs 3 coordinates", lineNo)
			}
			var v [3]float32
			for k := 0; k < 3; k++ {
				val, err := strconv.ParseFloat(fields[k+1], 32)
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", lineNo, err)
				}
				v[k] = float32(val)
			}
			m.Vertices = append(m.Vertices, v)
			if len(fields) >= 7 && colored {
				var c [3]uint8
				for k := 0; k < 3; k++ {
					val, err := strconv.ParseFloat(fields[k+4], 32)
					if err != nil {
						return nil, fmt.Errorf("line %d: %w", lineNo, err)
					}
					c[k] = uint8(math.Round(math.Max(0, math.Min(1, val)) * 255))
				}
				colors = append(colors, c)
			} else {
				colored = false
			}
		case "f":
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: face needs at least 3 vertices", lineNo)
			}
			corners := make([]uint32, 0, len(fields)-1)
			for _, token := range fields[1:] {
				idx, err := parseFaceIndex(token, len(m.Vertices))
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", lineNo, err)
				}
				corners = append(corners, idx)
			}
			for k := 1; k+1 < len(corners); k++ {
				m.Faces = append(m.Faces, [3]uint32{corners[0], corners[k], corners[k+1]})
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if colored && len(colors) == len(m.Vertices) && len(colors) > 0 {
		m.Colors = colors
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// ReadOBJFile loads a mesh from an OBJ file on disk.
func ReadOBJFile(path string) (*Mesh, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	m, err := ReadOBJ(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return m, nil
}

func parseFaceIndex(token string, count int) (uint32, error) {
	if slash := strings.IndexByte(token, '/'); slash >= 0 {
		token = token[:slash]
	}
	idx, err := strconv.Atoi(token)
	if err != nil {
		return 0, fmt.Errorf("face index %q: %w", token, err)
	}
	switch {
	case idx > 0 && idx <= count:
		return uint32(idx - 1), nil
	case idx < 0 && -idx <= count:
		return uint32(count + idx), nil
	default:
		return 0, fmt.Errorf("face index %d out of range (%d vertices)", idx, count)
	}
}

func formatFloat(v float32) string {
	return strconv.FormatFloat(float64(v), 'f', 6, 32)
}
