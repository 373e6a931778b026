package capability

import (
	"context"
	"image"
	"image/color"

	"meshforge/internal/imageio"
	"meshforge/internal/mesh"
)

const projectionSampleSize = 512

var projectionFallback = color.NRGBA{R: 200, G: 200, B: 200, A: 255}

// ProjectionTexturer is the built-in texture generator. It paints vertex
// colors by projecting the reference image along the view axis (+Z towards
// the camera) onto the mesh, fitted to the mesh's XY bounds. Vertices that
// land on transparent pixels take the mean opaque color.
type ProjectionTexturer struct{}

func (ProjectionTexturer) GenerateTexture(ctx context.Context, m *mesh.Mesh, reference image.Image) (*mesh.Mesh, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	src := imageio.Normalize(reference, projectionSampleSize)
	fill := meanOpaque(src)

	minV, maxV := m.Bounds()
	extent := max(maxV[0]-minV[0], maxV[1]-minV[1])
	if extent <= 0 {
		extent = 1
	}
	cx := (minV[0] + maxV[0]) / 2
	cy := (minV[1] + maxV[1]) / 2

	out := m.Clone()
	out.Colors = make([][3]uint8, len(out.Vertices))
	last := projectionSampleSize - 1
	for i, v := range out.Vertices {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		u := (v[0]-cx)/extent + 0.5
		w := 0.5 - (v[1]-cy)/extent
		px := min(max(int(u*float32(last)+0.5), 0), last)
		py := min(max(int(w*float32(last)+0.5), 0), last)
		c := src.NRGBAAt(px, py)
		if c.A < 128 {
			c = fill
		}
		out.Colors[i] = [3]uint8{c.R, c.G, c.B}
	}
	return out, nil
}

func meanOpaque(img *image.NRGBA) color.NRGBA {
	var r, g, b, n uint64
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := img.NRGBAAt(x, y)
			if c.A < 128 {
				continue
			}
			r += uint64(c.R)
			g += uint64(c.G)
			b += uint64(c.B)
			n++
		}
	}
	if n == 0 {
		return projectionFallback
	}
	return color.NRGBA{R: uint8(r / n), G: uint8(g / n), B: uint8(b / n), A: 255}
}
