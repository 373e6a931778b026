package batch

import (
	"context"
	"errors"
	"log/slog"

	"meshforge/internal/capability"
	"meshforge/internal/config"
	"meshforge/internal/convert"
	"meshforge/internal/ledger"
	"meshforge/internal/logging"
	"meshforge/internal/metrics"
	"meshforge/internal/notifications"
	"meshforge/internal/pipeline"
	"meshforge/internal/services"
)

// Assembly is a fully wired orchestrator together with the collaborators the
// caller may want to inspect.
type Assembly struct {
	Orchestrator *Orchestrator
	Registry     *convert.Registry
	Ledger       *ledger.Store
	Metrics      *metrics.Recorder
}

// Close releases resources held by the assembly.
func (a *Assembly) Close() error {
	if a == nil || a.Ledger == nil {
		return nil
	}
	return a.Ledger.Close()
}

// Build wires conversion backends, the stage runner, capabilities, the run
// ledger, metrics and notifications from cfg. Backends are probed once here,
// concurrently.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, runner services.CommandRunner) (*Assembly, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if runner == nil {
		runner = services.ExecRunner{}
	}

	backends, err := convert.BackendsFromConfig(cfg, runner)
	if err != nil {
		return nil, err
	}
	registry := convert.NewRegistry(ctx, backends, cfg.ProbeTimeout(), logger)

	rec := metrics.New()
	converter := convert.NewConverter(registry,
		convert.WithAttemptTimeout(cfg.ConvertTimeout()),
		convert.WithLogger(logger),
		convert.WithObserver(func(a convert.Attempt) {
			rec.ObserveConversion(a.Backend, a.Outcome.String())
		}),
	)
	stageRunner, err := pipeline.NewRunner(cfg, converter,
		pipeline.WithMetrics(rec),
		pipeline.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	factory := capability.FromConfig(cfg,
		capability.WithRunner(runner),
		capability.WithLogger(logger),
	)

	assembly := &Assembly{Registry: registry, Metrics: rec}
	opts := []Option{WithLogger(logger), WithMetrics(rec), WithNotifier(notifications.NewService(cfg))}
	if cfg.Paths.LedgerPath != "" {
		store, err := ledger.Open(ctx, cfg.Paths.LedgerPath)
		switch {
		case errors.Is(err, ledger.ErrSchemaMismatch):
			return nil, services.Wrap(services.ErrConfiguration, "batch", "ledger", "run ledger schema is outdated; delete "+cfg.Paths.LedgerPath, err)
		case err != nil:
			logger.Warn("run ledger unavailable; history disabled",
				logging.String("path", cfg.Paths.LedgerPath),
				logging.Error(err),
			)
		default:
			assembly.Ledger = store
			opts = append(opts, WithLedger(store))
		}
	}
	assembly.Orchestrator = New(cfg, factory, stageRunner, opts...)
	return assembly, nil
}
