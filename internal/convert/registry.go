package convert

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"meshforge/internal/config"
	"meshforge/internal/deps"
	"meshforge/internal/logging"
	"meshforge/internal/mesh"
	"meshforge/internal/services"
)

// BackendStatus records the startup probe result for one backend.
type BackendStatus struct {
	Name      string
	Available bool
	Detail    string
	Duration  time.Duration
}

// Registry is the immutable set of probed backends in priority order.
type Registry struct {
	backends []Backend
	statuses []BackendStatus
}

// NewRegistry probes every backend concurrently, each bounded by timeout. A
// probe that errors or times out marks the backend unavailable; it is never
// an error for the caller. Priority order is preserved.
func NewRegistry(ctx context.Context, backends []Backend, timeout time.Duration, logger *slog.Logger) *Registry {
	logger = logging.NewComponentLogger(logger, "convert")
	statuses := make([]BackendStatus, len(backends))

	var g errgroup.Group
	for i, backend := range backends {
		g.Go(func() error {
			start := time.Now()
			err := deps.Probe(ctx, timeout, backend.Probe)
			status := BackendStatus{Name: backend.Name(), Available: err == nil, Duration: time.Since(start)}
			switch {
			case err == nil:
				status.Detail = "available"
			case errors.Is(err, deps.ErrProbeTimeout):
				status.Detail = "probe timed out"
			default:
				status.Detail = err.Error()
			}
			statuses[i] = status
			return nil
		})
	}
	_ = g.Wait()

	reg := &Registry{statuses: statuses}
	for i, backend := range backends {
		if statuses[i].Available {
			reg.backends = append(reg.backends, backend)
			logger.Debug("conversion backend available",
				logging.String("backend", backend.Name()),
				logging.Duration("probe_duration", statuses[i].Duration),
			)
			continue
		}
		logger.Info("conversion backend unavailable",
			logging.String("backend", backend.Name()),
			logging.String("reason", statuses[i].Detail),
		)
	}
	return reg
}

// For returns the available backends supporting format, in priority order.
func (r *Registry) For(format mesh.Format) []Backend {
	if r == nil {
		return nil
	}
	var out []Backend
	for _, backend := range r.backends {
		if backend.Supports(format) {
			out = append(out, backend)
		}
	}
	return out
}

// Statuses returns the probe results for every configured backend.
func (r *Registry) Statuses() []BackendStatus {
	if r == nil {
		return nil
	}
	return append([]BackendStatus(nil), r.statuses...)
}

// BackendsFromConfig instantiates the backends named in convert.backends, in order.
func BackendsFromConfig(cfg *config.Config, runner services.CommandRunner) ([]Backend, error) {
	blender := NewBlenderBackend(cfg.Convert.BlenderBinary, runner)
	backends := make([]Backend, 0, len(cfg.Convert.Backends))
	for _, name := range cfg.Convert.Backends {
		switch name {
		case "native":
			backends = append(backends, NativeBackend{})
		case "blender":
			backends = append(backends, blender)
		case "assimp":
			backends = append(backends, NewAssimpBackend(cfg.Convert.AssimpBinary, runner))
		case "cleanchain":
			backends = append(backends, &CleanChainBackend{Emitter: blender})
		default:
			return nil, services.Wrap(services.ErrConfiguration, "convert", name, "unknown conversion backend", nil)
		}
	}
	return backends, nil
}
