package capability

import (
	"context"
	"image"

	"meshforge/internal/imageio"
)

// BorderRemover is the built-in background remover. It clears the region
// connected to the image border whose color is within Tolerance of the
// dominant border color.
type BorderRemover struct {
	Tolerance int
}

func (r BorderRemover) RemoveBackground(ctx context.Context, img image.Image) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return imageio.RemoveBorderBackground(img, r.Tolerance), nil
}
