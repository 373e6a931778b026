package capability

import (
	"fmt"
	"log/slog"

	"meshforge/internal/config"
	"meshforge/internal/logging"
	"meshforge/internal/services"
)

type factoryOptions struct {
	runner services.CommandRunner
	logger *slog.Logger
}

// Option customizes FromConfig.
type Option func(*factoryOptions)

// WithRunner overrides the command runner used by command-backed capabilities.
func WithRunner(runner services.CommandRunner) Option {
	return func(o *factoryOptions) {
		if runner != nil {
			o.runner = runner
		}
	}
}

// WithLogger sets the logger used to report capability selection.
func WithLogger(logger *slog.Logger) Option {
	return func(o *factoryOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// FromConfig returns a Factory building the capabilities selected by cfg.
// Every call yields fresh instances so workers never share state.
func FromConfig(cfg *config.Config, opts ...Option) Factory {
	options := factoryOptions{runner: services.ExecRunner{}, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&options)
	}
	logger := logging.NewComponentLogger(options.logger, "capability")

	return func(worker int) (*Set, error) {
		timeout := cfg.ShapeTimeout()
		set := &Set{Cleaner: NativeCleaner{MinComponentFaces: cfg.Output.MinComponentFaces}}

		switch cfg.Shape.Kind {
		case "command":
			set.Shape = NewCommandShapeGenerator(cfg.Shape.Command, cfg.Shape.Args, timeout, options.runner)
		case "remote":
			endpoints := cfg.ShapeEndpoints()
			if worker < 0 || worker >= len(endpoints) {
				return nil, services.Wrap(services.ErrConfiguration, "capability", "shape",
					fmt.Sprintf("no remote shape endpoint for worker %d (%d configured)", worker, len(endpoints)), nil)
			}
			set.Shape = NewRemoteShapeGenerator(endpoints[worker], timeout)
		case "relief", "":
			set.Shape = ReliefGenerator{}
		default:
			return nil, services.Wrap(services.ErrConfiguration, "capability", "shape", "unknown shape kind "+cfg.Shape.Kind, nil)
		}

		switch cfg.Background.Kind {
		case "rembg":
			set.Background = NewRembgRemover(timeout, options.runner)
		case "command":
			set.Background = NewCommandBackgroundRemover(cfg.Background.Command, cfg.Background.Args, timeout, options.runner)
		case "border", "":
			set.Background = BorderRemover{Tolerance: cfg.Background.Tolerance}
		default:
			return nil, services.Wrap(services.ErrConfiguration, "capability", "background", "unknown background kind "+cfg.Background.Kind, nil)
		}

		if cfg.TextToImage.Enabled {
			switch cfg.TextToImage.Kind {
			case "command":
				set.TextToImage = NewCommandTextToImage(cfg.TextToImage.Command, cfg.TextToImage.Args, cfg.Generation.Seed, timeout, options.runner)
			case "imagen", "":
				set.TextToImage = NewImagenTextToImage(cfg.TextToImage.Model, cfg.TextToImage.APIKey)
			default:
				return nil, services.Wrap(services.ErrConfiguration, "capability", "text_to_image", "unknown text_to_image kind "+cfg.TextToImage.Kind, nil)
			}
		}

		if cfg.Output.Texture {
			switch cfg.Texture.Kind {
			case "command":
				set.Texture = NewCommandTextureGenerator(cfg.Texture.Command, cfg.Texture.Args, cfg.Device.Name, timeout, options.runner)
			case "projection", "":
				set.Texture = ProjectionTexturer{}
			default:
				return nil, services.Wrap(services.ErrConfiguration, "capability", "texture", "unknown texture kind "+cfg.Texture.Kind, nil)
			}
		}

		logger.Debug("capabilities ready",
			logging.Int(logging.FieldWorker, worker),
			logging.String("shape", cfg.Shape.Kind),
			logging.String("background", cfg.Background.Kind),
			logging.Bool("text_to_image", set.TextToImage != nil),
			logging.Bool("texture", set.Texture != nil),
		)
		return set, nil
	}
}
