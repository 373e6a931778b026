package capability

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"

	"google.golang.org/genai"

	"meshforge/internal/imageio"
	"meshforge/internal/services"
)

// ImagenTextToImage synthesizes reference images with the Gemini API image
// models. The client is created on first use.
type ImagenTextToImage struct {
	model  string
	apiKey string

	once   sync.Once
	client *genai.Client
	err    error
}

// NewImagenTextToImage returns a caption-to-image capability for model.
func NewImagenTextToImage(model, apiKey string) *ImagenTextToImage {
	return &ImagenTextToImage{model: model, apiKey: strings.TrimSpace(apiKey)}
}

func (t *ImagenTextToImage) init(ctx context.Context) error {
	t.once.Do(func() {
		if t.apiKey == "" {
			t.err = services.Wrap(services.ErrConfiguration, "text_to_image", "imagen", "text_to_image.api_key is not set", nil)
			return
		}
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  t.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			t.err = fmt.Errorf("failed to create Gemini client: %w", err)
			return
		}
		t.client = client
	})
	return t.err
}

func (t *ImagenTextToImage) TextToImage(ctx context.Context, caption string) (image.Image, error) {
	if err := t.init(ctx); err != nil {
		return nil, err
	}
	resp, err := t.client.Models.GenerateImages(ctx, t.model, caption, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "text_to_image", "imagen", "generate images", err)
	}
	if resp == nil || len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil {
		return nil, services.Wrap(services.ErrExternalTool, "text_to_image", "imagen", "no image returned", errors.New("empty response"))
	}
	return imageio.Decode(resp.GeneratedImages[0].Image.ImageBytes)
}
