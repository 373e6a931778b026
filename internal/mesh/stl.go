package mesh

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
)

// WriteSTL writes m as binary STL. Colors are dropped.
func WriteSTL(w io.Writer, m *Mesh) error {
	bw := bufio.NewWriter(w)
	var header [80]byte
	copy(header[:], "meshforge binary stl")
	if _, err := bw.Write(header[:]); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(m.Faces))); err != nil {
		return err
	}
	record := make([]byte, 50)
	for _, f := range m.Faces {
		a, b, c := m.Vertices[f[0]], m.Vertices[f[1]], m.Vertices[f[2]]
		n := normalize(faceNormal(a, b, c))
		off := 0
		for _, vec := range [][3]float32{n, a, b, c} {
			for _, comp := range vec {
				binary.LittleEndian.PutUint32(record[off:], math.Float32bits(comp))
				off += 4
			}
		}
		record[48], record[49] = 0, 0
		if _, err := bw.Write(record); err != nil {
			return err
		}
	}
	return bw.Flush()
}
