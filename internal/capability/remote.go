package capability

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"meshforge/internal/imageio"
	"meshforge/internal/mesh"
	"meshforge/internal/services"
)

// RemoteShapeGenerator posts the reference image to a shape generation
// service and reads back an OBJ body. The service exposes:
//
//	POST /generate  multipart "image" plus generation form fields, returns OBJ
//	POST /release   drops cached device state
//	GET  /health    liveness
type RemoteShapeGenerator struct {
	endpoint string
	client   *resty.Client
}

// NewRemoteShapeGenerator creates a client for the service at endpoint.
func NewRemoteShapeGenerator(endpoint string, timeout time.Duration) *RemoteShapeGenerator {
	endpoint = strings.TrimRight(endpoint, "/")
	client := resty.New().
		SetDebug(false).
		SetBaseURL(endpoint).
		SetHeader("Accept", "model/obj, text/plain, */*")
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &RemoteShapeGenerator{endpoint: endpoint, client: client}
}

// Endpoint returns the base URL of the model server.
func (g *RemoteShapeGenerator) Endpoint() string { return g.endpoint }

func (g *RemoteShapeGenerator) GenerateShape(ctx context.Context, img image.Image, params ShapeParams) (*mesh.Mesh, error) {
	payload, err := imageio.EncodePNG(img)
	if err != nil {
		return nil, err
	}
	res, err := handleError(g.client.R().
		SetContext(ctx).
		SetFileReader("image", "input.png", bytes.NewReader(payload)).
		SetFormData(map[string]string{
			"seed":              strconv.FormatInt(params.Seed, 10),
			"steps":             strconv.Itoa(params.Steps),
			"guidance_scale":    strconv.FormatFloat(params.GuidanceScale, 'f', -1, 64),
			"octree_resolution": strconv.Itoa(params.OctreeResolution),
			"num_chunks":        strconv.Itoa(params.NumChunks),
			"mc_algo":           params.MCAlgo,
		}).
		Post("/generate"))
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "shape_generation", "remote", "generate request failed", err)
	}
	m, err := mesh.ReadOBJ(bytes.NewReader(res.Body()))
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "shape_generation", "remote", "decode response", err)
	}
	return m, nil
}

// ReleaseCache asks the service to free device memory held for the last request.
func (g *RemoteShapeGenerator) ReleaseCache(ctx context.Context) error {
	if _, err := handleError(g.client.R().SetContext(ctx).Post("/release")); err != nil {
		return services.Wrap(services.ErrExternalTool, "release", "remote", "release request failed", err)
	}
	return nil
}

// handleError turns a >399 response into an error; resty reports those with a
// nil error otherwise.
func handleError(res *resty.Response, err error) (*resty.Response, error) {
	if err != nil {
		return res, err
	}
	if res.IsError() {
		return res, fmt.Errorf("request failed: %s %s (status: %d)", res.Request.Method, res.Request.URL, res.StatusCode())
	}
	return res, nil
}
