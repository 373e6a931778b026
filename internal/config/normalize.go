package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeOutput()
	c.normalizeDevice()
	c.normalizeCapabilities()
	c.normalizeConvert()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.LedgerPath, err = expandPath(strings.TrimSpace(c.Paths.LedgerPath)); err != nil {
		return fmt.Errorf("paths.ledger_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeOutput() {
	c.Output.Format = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(c.Output.Format)), ".")
	if c.Output.Format == "" {
		c.Output.Format = defaultFormat
	}
	if c.Output.PreviewSize <= 0 {
		c.Output.PreviewSize = defaultPreviewSize
	}
	if c.Generation.InputSize <= 0 {
		c.Generation.InputSize = defaultInputSize
	}
}

func (c *Config) normalizeDevice() {
	c.Device.Name = strings.ToLower(strings.TrimSpace(c.Device.Name))
	if c.Device.Name == "" {
		c.Device.Name = defaultDevice
	}
	c.Device.MCAlgo = strings.ToLower(strings.TrimSpace(c.Device.MCAlgo))
	if c.Device.MCAlgo == "" {
		c.Device.MCAlgo = defaultMCAlgo
	}
	if c.Device.Workers <= 0 {
		c.Device.Workers = defaultWorkers
	}
}

func (c *Config) normalizeCapabilities() {
	c.Shape.Kind = lowerOr(c.Shape.Kind, defaultShapeKind)
	c.Shape.Endpoint = strings.TrimRight(strings.TrimSpace(c.Shape.Endpoint), "/")
	for i, ep := range c.Shape.Endpoints {
		c.Shape.Endpoints[i] = strings.TrimRight(strings.TrimSpace(ep), "/")
	}
	if c.Shape.TimeoutSeconds <= 0 {
		c.Shape.TimeoutSeconds = defaultShapeTimeoutSeconds
	}
	c.Background.Kind = lowerOr(c.Background.Kind, defaultBackgroundKind)
	if c.Background.Tolerance <= 0 {
		c.Background.Tolerance = defaultBackgroundTolerance
	}
	c.TextToImage.Kind = lowerOr(c.TextToImage.Kind, defaultTextToImageKind)
	if strings.TrimSpace(c.TextToImage.Model) == "" {
		c.TextToImage.Model = defaultTextToImageModel
	}
	if c.TextToImage.APIKey == "" {
		for _, key := range []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"} {
			if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
				c.TextToImage.APIKey = strings.TrimSpace(value)
				break
			}
		}
	}
	c.Texture.Kind = lowerOr(c.Texture.Kind, defaultTextureKind)
}

func (c *Config) normalizeConvert() {
	backends := make([]string, 0, len(c.Convert.Backends))
	seen := make(map[string]struct{}, len(c.Convert.Backends))
	for _, name := range c.Convert.Backends {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		backends = append(backends, name)
	}
	if len(backends) == 0 {
		backends = append(backends, DefaultBackends...)
	}
	c.Convert.Backends = backends
	if c.Convert.ProbeTimeoutSeconds <= 0 {
		c.Convert.ProbeTimeoutSeconds = defaultProbeTimeoutSeconds
	}
	if c.Convert.TimeoutSeconds <= 0 {
		c.Convert.TimeoutSeconds = defaultConvertTimeout
	}
	if strings.TrimSpace(c.Convert.BlenderBinary) == "" {
		c.Convert.BlenderBinary = defaultBlenderBinary
	}
	if strings.TrimSpace(c.Convert.AssimpBinary) == "" {
		c.Convert.AssimpBinary = defaultAssimpBinary
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeoutSeconds <= 0 {
		c.Notifications.RequestTimeoutSeconds = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = lowerOr(c.Logging.Format, defaultLogFormat)
	c.Logging.Level = lowerOr(c.Logging.Level, defaultLogLevel)
}

func lowerOr(value, fallback string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return fallback
	}
	return value
}
