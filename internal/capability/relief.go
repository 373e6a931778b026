package capability

import (
	"context"
	"errors"
	"image"
	"math/rand/v2"

	"meshforge/internal/imageio"
	"meshforge/internal/mesh"
)

const (
	reliefMinGrid  = 16
	reliefMaxGrid  = 160
	reliefMaxDepth = 0.15
)

// ReliefGenerator is the built-in shape generator. It extrudes the opaque
// silhouette of the reference image into a closed relief whose thickness
// follows luminance. The grid density follows the octree resolution and the
// seed drives a small surface jitter, so output is reproducible per seed.
type ReliefGenerator struct{}

func (ReliefGenerator) GenerateShape(ctx context.Context, img image.Image, params ShapeParams) (*mesh.Mesh, error) {
	n := min(max(params.OctreeResolution/4, reliefMinGrid), reliefMaxGrid)
	src := imageio.Normalize(img, n)
	rng := rand.New(rand.NewPCG(uint64(params.Seed), uint64(params.Steps)<<32|uint64(params.OctreeResolution)))
	jitter := float32(0.002 * params.GuidanceScale / 7.5)

	inside := make([]bool, n*n)
	height := make([]float32, n*n)
	found := false
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			c := src.NRGBAAt(x, y)
			lum := (0.299*float32(c.R) + 0.587*float32(c.G) + 0.114*float32(c.B)) / 255
			idx := y*n + x
			inside[idx] = c.A >= 128
			found = found || inside[idx]
			height[idx] = reliefMaxDepth*(0.35+0.65*lum) + (rng.Float32()-0.5)*jitter
		}
	}
	if !found {
		for i := range inside {
			inside[i] = true
		}
	}

	corner := func(cx, cy int) float32 {
		var sum float32
		var count float32
		for _, d := range [][2]int{{-1, -1}, {0, -1}, {-1, 0}, {0, 0}} {
			x, y := cx+d[0], cy+d[1]
			if x < 0 || y < 0 || x >= n || y >= n || !inside[y*n+x] {
				continue
			}
			sum += height[y*n+x]
			count++
		}
		if count == 0 {
			return 0
		}
		return sum / count
	}

	side := n + 1
	m := &mesh.Mesh{Vertices: make([][3]float32, 0, 2*side*side)}
	for layer := 0; layer < 2; layer++ {
		sign := float32(1)
		if layer == 1 {
			sign = -1
		}
		for cy := 0; cy <= n; cy++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			for cx := 0; cx <= n; cx++ {
				m.Vertices = append(m.Vertices, [3]float32{
					float32(cx)/float32(n) - 0.5,
					0.5 - float32(cy)/float32(n),
					sign * corner(cx, cy),
				})
			}
		}
	}
	front := func(cx, cy int) uint32 { return uint32(cy*side + cx) }
	back := func(cx, cy int) uint32 { return uint32(side*side + cy*side + cx) }

	isInside := func(x, y int) bool {
		return x >= 0 && y >= 0 && x < n && y < n && inside[y*n+x]
	}
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			if !inside[y*n+x] {
				continue
			}
			a, b, c, d := front(x, y), front(x+1, y), front(x+1, y+1), front(x, y+1)
			m.Faces = append(m.Faces, [3]uint32{a, d, c}, [3]uint32{a, c, b})
			a, b, c, d = back(x, y), back(x+1, y), back(x+1, y+1), back(x, y+1)
			m.Faces = append(m.Faces, [3]uint32{a, c, d}, [3]uint32{a, b, c})

			if !isInside(x, y-1) {
				m.Faces = appendWall(m.Faces, front(x, y), front(x+1, y), back(x+1, y), back(x, y))
			}
			if !isInside(x+1, y) {
				m.Faces = appendWall(m.Faces, front(x+1, y), front(x+1, y+1), back(x+1, y+1), back(x+1, y))
			}
			if !isInside(x, y+1) {
				m.Faces = appendWall(m.Faces, front(x+1, y+1), front(x, y+1), back(x, y+1), back(x+1, y+1))
			}
			if !isInside(x-1, y) {
				m.Faces = appendWall(m.Faces, front(x, y+1), front(x, y), back(x, y), back(x, y+1))
			}
		}
	}
	out := mesh.DropUnreferencedVertices(m)
	if out.NumFaces() == 0 {
		return nil, errors.New("relief produced no geometry")
	}
	return out, nil
}

func appendWall(faces [][3]uint32, f0, f1, b1, b0 uint32) [][3]uint32 {
	return append(faces, [3]uint32{f0, f1, b1}, [3]uint32{f0, b1, b0})
}
