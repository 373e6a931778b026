package testsupport

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = 0x42
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteImage writes a size x size PNG with an opaque disc of fg on a white
// background.
func WriteImage(t testing.TB, path string, size int, fg color.NRGBA) {
	t.Helper()
	writeDisc(t, path, size, fg, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
}

// WriteCutout writes a size x size PNG with an opaque disc of fg on a fully
// transparent background, as produced by a prior background removal.
func WriteCutout(t testing.TB, path string, size int, fg color.NRGBA) {
	t.Helper()
	writeDisc(t, path, size, fg, color.NRGBA{})
}

func writeDisc(t testing.TB, path string, size int, fg, bg color.NRGBA) {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	center, radius := size/2, size/3
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx, dy := x-center, y-center
			if dx*dx+dy*dy <= radius*radius {
				img.SetNRGBA(x, y, fg)
			} else {
				img.SetNRGBA(x, y, bg)
			}
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}
