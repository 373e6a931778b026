package imageio

import (
	"image"
	"image/color"
)

// RemoveBorderBackground makes transparent every pixel connected to the image
// border whose color lies within tolerance of the dominant border color. The
// result is always an NRGBA image with an alpha channel.
func RemoveBorderBackground(img image.Image, tolerance int) *image.NRGBA {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.Set(x, y, img.At(bounds.Min.X+x, bounds.Min.Y+y))
		}
	}
	if w == 0 || h == 0 {
		return out
	}

	key := borderColor(out)
	limit := tolerance * tolerance * 3
	matches := func(x, y int) bool {
		c := out.NRGBAAt(x, y)
		if c.A == 0 {
			return true
		}
		dr, dg, db := int(c.R)-int(key.R), int(c.G)-int(key.G), int(c.B)-int(key.B)
		return dr*dr+dg*dg+db*db <= limit
	}

	visited := make([]bool, w*h)
	stack := make([]image.Point, 0, 2*(w+h))
	push := func(x, y int) {
		if x < 0 || y < 0 || x >= w || y >= h || visited[y*w+x] {
			return
		}
		visited[y*w+x] = true
		if matches(x, y) {
			stack = append(stack, image.Pt(x, y))
		}
	}
	for x := 0; x < w; x++ {
		push(x, 0)
		push(x, h-1)
	}
	for y := 0; y < h; y++ {
		push(0, y)
		push(w-1, y)
	}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		c := out.NRGBAAt(p.X, p.Y)
		c.A = 0
		out.SetNRGBA(p.X, p.Y, c)
		push(p.X+1, p.Y)
		push(p.X-1, p.Y)
		push(p.X, p.Y+1)
		push(p.X, p.Y-1)
	}
	return out
}

// borderColor returns the most common border color, quantized to 4 bits per
// channel so minor noise does not split the vote.
func borderColor(img *image.NRGBA) color.NRGBA {
	b := img.Bounds()
	votes := make(map[uint16]int)
	sums := make(map[uint16][3]int)
	add := func(x, y int) {
		c := img.NRGBAAt(x, y)
		k := uint16(c.R>>4)<<8 | uint16(c.G>>4)<<4 | uint16(c.B>>4)
		votes[k]++
		s := sums[k]
		s[0] += int(c.R)
		s[1] += int(c.G)
		s[2] += int(c.B)
		sums[k] = s
	}
	for x := b.Min.X; x < b.Max.X; x++ {
		add(x, b.Min.Y)
		add(x, b.Max.Y-1)
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		add(b.Min.X, y)
		add(b.Max.X-1, y)
	}
	var best uint16
	bestVotes := -1
	for k, v := range votes {
		if v > bestVotes || (v == bestVotes && k < best) {
			best, bestVotes = k, v
		}
	}
	s := sums[best]
	return color.NRGBA{R: uint8(s[0] / bestVotes), G: uint8(s[1] / bestVotes), B: uint8(s[2] / bestVotes), A: 255}
}
