package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	shapeKinds       = []string{"relief", "command", "remote"}
	backgroundKinds  = []string{"border", "rembg", "command"}
	textToImageKinds = []string{"imagen", "command"}
	textureKinds     = []string{"projection", "command"}
	knownBackends    = []string{"native", "blender", "assimp", "cleanchain"}
	mcAlgorithms     = []string{"mc", "dmc"}
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateGeneration(); err != nil {
		return err
	}
	if err := c.validateOutput(); err != nil {
		return err
	}
	if err := c.validateDevice(); err != nil {
		return err
	}
	if err := c.validateCapabilities(); err != nil {
		return err
	}
	if err := c.validateConvert(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateGeneration() error {
	if c.Generation.Steps <= 0 {
		return errors.New("generation.steps must be positive")
	}
	if c.Generation.GuidanceScale <= 0 {
		return errors.New("generation.guidance_scale must be positive")
	}
	if c.Generation.Seed < 0 {
		return errors.New("generation.seed must not be negative")
	}
	if c.Generation.OctreeResolution < 16 {
		return errors.New("generation.octree_resolution must be at least 16")
	}
	if c.Generation.NumChunks <= 0 {
		return errors.New("generation.num_chunks must be positive")
	}
	return nil
}

func (c *Config) validateOutput() error {
	if !slices.Contains(SupportedFormats, c.Output.Format) {
		return fmt.Errorf("output.format: unsupported value %q (want one of %s)", c.Output.Format, strings.Join(SupportedFormats, ", "))
	}
	if c.Output.MaxFaces < 0 {
		return errors.New("output.max_faces must not be negative")
	}
	if c.Output.MinComponentFaces < 0 {
		return errors.New("output.min_component_faces must not be negative")
	}
	return nil
}

func (c *Config) validateDevice() error {
	if !slices.Contains(mcAlgorithms, c.Device.MCAlgo) {
		return fmt.Errorf("device.mc_algo: unsupported value %q", c.Device.MCAlgo)
	}
	if c.Device.Workers > 64 {
		return errors.New("device.workers must be 64 or fewer")
	}
	return nil
}

func (c *Config) validateCapabilities() error {
	if !slices.Contains(shapeKinds, c.Shape.Kind) {
		return fmt.Errorf("shape.kind: unsupported value %q", c.Shape.Kind)
	}
	if c.Shape.Kind == "command" && strings.TrimSpace(c.Shape.Command) == "" {
		return errors.New("shape.command must be set when shape.kind is \"command\"")
	}
	if c.Shape.Kind == "remote" {
		endpoints := c.ShapeEndpoints()
		if len(endpoints) == 0 {
			return errors.New("shape.endpoint must be set when shape.kind is \"remote\"")
		}
		// One model server per concurrent worker.
		if c.Device.Workers > len(endpoints) {
			return fmt.Errorf("device.workers (%d) exceeds the %d remote shape endpoint(s); list one server per worker in shape.endpoints", c.Device.Workers, len(endpoints))
		}
	}
	if !slices.Contains(backgroundKinds, c.Background.Kind) {
		return fmt.Errorf("background.kind: unsupported value %q", c.Background.Kind)
	}
	if c.Background.Kind == "command" && strings.TrimSpace(c.Background.Command) == "" {
		return errors.New("background.command must be set when background.kind is \"command\"")
	}
	if !slices.Contains(textToImageKinds, c.TextToImage.Kind) {
		return fmt.Errorf("text_to_image.kind: unsupported value %q", c.TextToImage.Kind)
	}
	if c.TextToImage.Enabled && c.TextToImage.Kind == "command" && strings.TrimSpace(c.TextToImage.Command) == "" {
		return errors.New("text_to_image.command must be set when text_to_image.kind is \"command\"")
	}
	if !slices.Contains(textureKinds, c.Texture.Kind) {
		return fmt.Errorf("texture.kind: unsupported value %q", c.Texture.Kind)
	}
	if c.Texture.Kind == "command" && strings.TrimSpace(c.Texture.Command) == "" {
		return errors.New("texture.command must be set when texture.kind is \"command\"")
	}
	return nil
}

func (c *Config) validateConvert() error {
	for _, name := range c.Convert.Backends {
		if !slices.Contains(knownBackends, name) {
			return fmt.Errorf("convert.backends: unknown backend %q", name)
		}
	}
	if c.Convert.ProbeTimeoutSeconds > 60 {
		return errors.New("convert.probe_timeout_seconds must be 60 or fewer")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	topic := c.Notifications.NtfyTopic
	if topic != "" && !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		return fmt.Errorf("notifications.ntfy_topic: %q must be a full http(s) URL", topic)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
