package imageio

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"path/filepath"

	"golang.org/x/image/draw"

	"meshforge/internal/mesh"
)

const previewSupersample = 2

// View is a fixed orthographic camera. Project maps a vertex to screen
// (right, up) coordinates and a depth where larger is closer to the camera.
type View struct {
	Name    string
	Project func(v [3]float32) (x, y, depth float32)
	Light   [3]float32
}

// PreviewViews are the front, side, and top cameras rendered for every item.
var PreviewViews = []View{
	{
		Name:    "front",
		Project: func(v [3]float32) (float32, float32, float32) { return v[0], v[1], v[2] },
		Light:   [3]float32{0, 0, 1},
	},
	{
		Name:    "side",
		Project: func(v [3]float32) (float32, float32, float32) { return -v[2], v[1], v[0] },
		Light:   [3]float32{1, 0, 0},
	},
	{
		Name:    "top",
		Project: func(v [3]float32) (float32, float32, float32) { return v[0], -v[2], v[1] },
		Light:   [3]float32{0, 1, 0},
	},
}

var previewBackground = color.NRGBA{R: 255, G: 255, B: 255, A: 255}

// PreviewPath returns {dir}/{name}_preview_{view}.png.
func PreviewPath(dir, name, view string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_preview_%s.png", name, view))
}

// RenderPreviews renders every preview view of m into dir and returns the
// written paths. Rendering stops at the first failure.
func RenderPreviews(m *mesh.Mesh, dir, name string, size int) ([]string, error) {
	paths := make([]string, 0, len(PreviewViews))
	for _, view := range PreviewViews {
		img, err := RenderView(m, view, size)
		if err != nil {
			return paths, fmt.Errorf("render %s view: %w", view.Name, err)
		}
		path := PreviewPath(dir, name, view.Name)
		if err := SavePNG(path, img); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// RenderView rasterizes m with flat Lambert shading from the given view. The
// mesh is fit to the frame with a small margin; the frame is drawn at a
// higher resolution and downscaled for anti-aliasing.
func RenderView(m *mesh.Mesh, view View, size int) (*image.NRGBA, error) {
	if size <= 0 {
		return nil, errors.New("preview size must be positive")
	}
	if m == nil || m.NumFaces() == 0 {
		return nil, mesh.ErrEmptyMesh
	}

	full := size * previewSupersample
	canvas := image.NewNRGBA(image.Rect(0, 0, full, full))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(previewBackground), image.Point{}, draw.Src)
	depth := make([]float32, full*full)
	for i := range depth {
		depth[i] = float32(math.Inf(-1))
	}

	screen := make([][3]float32, m.NumVertices())
	minX, minY := float32(math.Inf(1)), float32(math.Inf(1))
	maxX, maxY := float32(math.Inf(-1)), float32(math.Inf(-1))
	for i, v := range m.Vertices {
		x, y, z := view.Project(v)
		screen[i] = [3]float32{x, y, z}
		minX, maxX = min(minX, x), max(maxX, x)
		minY, maxY = min(minY, y), max(maxY, y)
	}
	extent := max(maxX-minX, maxY-minY)
	if extent == 0 {
		extent = 1
	}
	scale := float32(full) * 0.9 / extent
	cx, cy := (minX+maxX)/2, (minY+maxY)/2
	for i := range screen {
		screen[i][0] = (screen[i][0]-cx)*scale + float32(full)/2
		screen[i][1] = float32(full)/2 - (screen[i][1]-cy)*scale
	}

	colored := m.HasColors()
	for _, f := range m.Faces {
		a, b, c := m.Vertices[f[0]], m.Vertices[f[1]], m.Vertices[f[2]]
		n := faceNormal(a, b, c)
		shade := float32(math.Abs(float64(n[0]*view.Light[0] + n[1]*view.Light[1] + n[2]*view.Light[2])))
		shade = 0.25 + 0.75*shade

		base := [3]float32{200, 200, 205}
		if colored {
			for k := 0; k < 3; k++ {
				base[k] = (float32(m.Colors[f[0]][k]) + float32(m.Colors[f[1]][k]) + float32(m.Colors[f[2]][k])) / 3
			}
		}
		fill := color.NRGBA{
			R: uint8(min(255, base[0]*shade)),
			G: uint8(min(255, base[1]*shade)),
			B: uint8(min(255, base[2]*shade)),
			A: 255,
		}
		rasterize(canvas, depth, screen[f[0]], screen[f[1]], screen[f[2]], fill)
	}

	out := image.NewNRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(out, out.Bounds(), canvas, canvas.Bounds(), draw.Src, nil)
	return out, nil
}

func rasterize(img *image.NRGBA, depth []float32, a, b, c [3]float32, fill color.NRGBA) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	area := edge(a, b, c[0], c[1])
	if area == 0 {
		return
	}
	x0 := max(0, int(math.Floor(float64(min(a[0], b[0], c[0])))))
	x1 := min(w-1, int(math.Ceil(float64(max(a[0], b[0], c[0])))))
	y0 := max(0, int(math.Floor(float64(min(a[1], b[1], c[1])))))
	y1 := min(h-1, int(math.Ceil(float64(max(a[1], b[1], c[1])))))
	for y := y0; y <= y1; y++ {
		py := float32(y) + 0.5
		for x := x0; x <= x1; x++ {
			px := float32(x) + 0.5
			w0 := edge(b, c, px, py) / area
			w1 := edge(c, a, px, py) / area
			w2 := edge(a, b, px, py) / area
			if w0 < 0 || w1 < 0 || w2 < 0 {
				continue
			}
			z := w0*a[2] + w1*b[2] + w2*c[2]
			idx := y*w + x
			if z <= depth[idx] {
				continue
			}
			depth[idx] = z
			img.SetNRGBA(x, y, fill)
		}
	}
}

func edge(a, b [3]float32, px, py float32) float32 {
	return (b[0]-a[0])*(py-a[1]) - (b[1]-a[1])*(px-a[0])
}

func faceNormal(a, b, c [3]float32) [3]float32 {
	u := [3]float32{b[0] - a[0], b[1] - a[1], b[2] - a[2]}
	v := [3]float32{c[0] - a[0], c[1] - a[1], c[2] - a[2]}
	n := [3]float32{u[1]*v[2] - u[2]*v[1], u[2]*v[0] - u[0]*v[2], u[0]*v[1] - u[1]*v[0]}
	l := float32(math.Sqrt(float64(n[0]*n[0] + n[1]*n[1] + n[2]*n[2])))
	if l == 0 {
		return [3]float32{0, 0, 1}
	}
	return [3]float32{n[0] / l, n[1] / l, n[2] / l}
}
