package capability

import (
	"context"
	"errors"
	"image"

	"meshforge/internal/mesh"
)

// ShapeParams are the generation parameters passed to a ShapeGenerator.
// Identical image and params must produce an identical mesh.
type ShapeParams struct {
	Seed             int64
	Steps            int
	GuidanceScale    float64
	OctreeResolution int
	NumChunks        int
	Device           string
	MCAlgo           string
}

// ShapeGenerator turns a reference image into a mesh.
type ShapeGenerator interface {
	GenerateShape(ctx context.Context, img image.Image, params ShapeParams) (*mesh.Mesh, error)
}

// BackgroundRemover returns a copy of img with the background made transparent.
type BackgroundRemover interface {
	RemoveBackground(ctx context.Context, img image.Image) (image.Image, error)
}

// TextToImage synthesizes a reference image from a caption.
type TextToImage interface {
	TextToImage(ctx context.Context, caption string) (image.Image, error)
}

// TextureGenerator paints m using the reference image and returns a new mesh.
type TextureGenerator interface {
	GenerateTexture(ctx context.Context, m *mesh.Mesh, reference image.Image) (*mesh.Mesh, error)
}

// MeshCleaner provides the post-processing transforms, applied in the order
// RemoveFloaters, RemoveDegenerateFaces, ReduceFaces.
type MeshCleaner interface {
	RemoveFloaters(m *mesh.Mesh) *mesh.Mesh
	RemoveDegenerateFaces(m *mesh.Mesh) *mesh.Mesh
	ReduceFaces(m *mesh.Mesh, maxFaces int) *mesh.Mesh
}

// CacheReleaser is implemented by capabilities holding device-resident state
// that can be dropped between items.
type CacheReleaser interface {
	ReleaseCache(ctx context.Context) error
}

// Set is the run context handed to every stage: one instance of each
// capability. A Set is owned by exactly one worker at a time. TextToImage and
// Texture are nil when the feature is disabled.
type Set struct {
	Shape       ShapeGenerator
	Background  BackgroundRemover
	TextToImage TextToImage
	Texture     TextureGenerator
	Cleaner     MeshCleaner
}

// Factory builds an independent Set for the given worker slot.
type Factory func(worker int) (*Set, error)

// Release asks every member that holds cached device state to drop it.
func (s *Set) Release(ctx context.Context) error {
	if s == nil {
		return nil
	}
	var errs []error
	for _, member := range []any{s.Shape, s.Background, s.TextToImage, s.Texture, s.Cleaner} {
		releaser, ok := member.(CacheReleaser)
		if !ok || releaser == nil {
			continue
		}
		if err := releaser.ReleaseCache(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
