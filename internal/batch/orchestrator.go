package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"meshforge/internal/capability"
	"meshforge/internal/config"
	"meshforge/internal/ledger"
	"meshforge/internal/logging"
	"meshforge/internal/metrics"
	"meshforge/internal/notifications"
	"meshforge/internal/outdir"
	"meshforge/internal/pipeline"
	"meshforge/internal/services"
)

// ItemRunner processes one item into its folder. *pipeline.Runner implements it.
type ItemRunner interface {
	Run(ctx context.Context, set *capability.Set, item pipeline.Item, dir string) (*pipeline.Stats, error)
}

// Orchestrator drives a batch of items through an ItemRunner with per-item
// fault isolation and builds the RunSummary.
type Orchestrator struct {
	cfg       *config.Config
	factory   capability.Factory
	runner    ItemRunner
	allocator *outdir.Allocator
	ledger    *ledger.Store
	metrics   *metrics.Recorder
	notifier  notifications.Service
	logger    *slog.Logger
	onItem    func(ItemResult)
	newRunID  func() string
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLedger records runs and items in store.
func WithLedger(store *ledger.Store) Option {
	return func(o *Orchestrator) { o.ledger = store }
}

// WithMetrics counts items on rec and writes rec to the output root.
func WithMetrics(rec *metrics.Recorder) Option {
	return func(o *Orchestrator) { o.metrics = rec }
}

// WithNotifier announces run start and completion through svc.
func WithNotifier(svc notifications.Service) Option {
	return func(o *Orchestrator) { o.notifier = svc }
}

// WithLogger sets the orchestrator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithItemCallback is invoked after every finished item, from the worker that
// ran it.
func WithItemCallback(fn func(ItemResult)) Option {
	return func(o *Orchestrator) { o.onItem = fn }
}

// WithAllocator overrides the output folder allocator.
func WithAllocator(alloc *outdir.Allocator) Option {
	return func(o *Orchestrator) { o.allocator = alloc }
}

// New returns an Orchestrator writing under cfg.Paths.OutputDir.
func New(cfg *config.Config, factory capability.Factory, runner ItemRunner, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:       cfg,
		factory:   factory,
		runner:    runner,
		allocator: outdir.New(cfg.Paths.OutputDir),
		newRunID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.notifier == nil {
		o.notifier = notifications.NewService(&config.Config{})
	}
	o.logger = logging.NewComponentLogger(o.logger, "batch")
	return o
}

// Run processes items and returns the summary of every attempted item, in
// input order. Items are never started after ctx is cancelled; items already
// running finish on a context detached from cancellation so their folders end
// up complete or clearly failed. The returned error covers run-level problems
// only (lock, capability construction, summary persistence); item failures
// are reported in the summary.
func (o *Orchestrator) Run(ctx context.Context, items []pipeline.Item) (*RunSummary, error) {
	root := o.cfg.Paths.OutputDir
	lock, err := acquireLock(root)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			o.logger.Warn("failed to release run lock", logging.Error(err))
		}
	}()

	started := time.Now()
	runID := o.newRunID()
	ctx = services.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, o.logger)

	workers := min(max(o.cfg.Device.Workers, 1), max(len(items), 1))
	sets := make([]*capability.Set, workers)
	for w := range sets {
		set, err := o.factory(w)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "batch", "capabilities", fmt.Sprintf("build capabilities for worker %d", w), err)
		}
		sets[w] = set
	}

	o.startLedger(ctx, runID, started)
	logger.Info("batch started",
		logging.Int("items", len(items)),
		logging.Int("workers", workers),
		logging.String("output_root", root),
		logging.String("format", o.cfg.Output.Format),
	)
	if err := o.notifier.NotifyBatchStarted(ctx, len(items), root); err != nil {
		logger.Warn("batch start notification failed", logging.Error(err))
	}

	results := make([]*ItemResult, len(items))
	jobs := make(chan int)
	var g errgroup.Group
	g.Go(func() error {
		defer close(jobs)
		for i := range items {
			if ctx.Err() != nil {
				return nil
			}
			select {
			case jobs <- i:
			case <-ctx.Done():
				return nil
			}
		}
		return nil
	})
	for w, set := range sets {
		g.Go(func() error {
			workerCtx := services.WithWorker(ctx, w)
			for i := range jobs {
				if ctx.Err() != nil {
					continue
				}
				result := o.processItem(context.WithoutCancel(workerCtx), set, items[i])
				results[i] = &result
				o.finishItem(workerCtx, set, runID, result)
			}
			return nil
		})
	}
	_ = g.Wait()

	var agg Aggregator
	for _, result := range results {
		if result != nil {
			agg.Add(*result)
		}
	}
	summary := agg.Summary()
	summary.RunID = runID
	summary.StartedAt = started.UTC()
	summary.FinishedAt = time.Now().UTC()
	summary.OutputRoot = root
	summary.WallTime = time.Since(started).Seconds()
	summary.NotStarted = len(items) - agg.Total()
	summary.Cancelled = ctx.Err() != nil && summary.NotStarted > 0
	summary.Settings = o.cfg.Settings()

	if summary.Cancelled {
		logging.WarnWithContext(logger, "batch cancelled", "batch_cancelled",
			logging.Int("attempted", summary.TotalImages),
			logging.Int("not_started", summary.NotStarted),
			logging.String(logging.FieldErrorHint, "rerun the batch to process the remaining items"),
		)
	}

	path, err := WriteSummary(root, &summary)
	if err != nil {
		err = services.Wrap(services.ErrStage, "batch", "summary", "write batch summary", err)
		if notifyErr := o.notifier.NotifyError(context.WithoutCancel(ctx), err, "batch summary"); notifyErr != nil {
			logger.Warn("error notification failed", logging.Error(notifyErr))
		}
		return &summary, err
	}
	o.finishLedger(ctx, &summary)
	o.writeMetrics(logger, root, time.Since(started))
	o.notifyCompleted(ctx, logger, &summary, time.Since(started))

	logger.Info("batch finished",
		logging.Int("total", summary.TotalImages),
		logging.Int("processed", summary.Processed),
		logging.Int("errors", summary.Errors),
		logging.Int("degraded", summary.Degraded),
		logging.Float64("total_time", summary.TotalTime),
		logging.Float64("average_time", summary.AverageTime),
		logging.String("summary", path),
	)
	return &summary, nil
}

// processItem is the fault-isolation boundary: every error and panic of one
// item ends up in its ItemResult.
func (o *Orchestrator) processItem(ctx context.Context, set *capability.Set, item pipeline.Item) (result ItemResult) {
	ctx = services.WithItem(ctx, item.Name())
	started := time.Now()
	result = ItemResult{Index: item.Index, Image: itemImage(item)}

	defer func() {
		if r := recover(); r != nil {
			err := services.Wrap(services.ErrStage, "batch", item.Name(), fmt.Sprintf("panic: %v", r), nil)
			o.logger.Debug("item panic stack", logging.String("stack", string(debug.Stack())))
			result = o.failed(ctx, result, started, err)
		}
	}()

	base := item.Path
	if base == "" {
		base = "caption"
	}
	dir, err := o.allocator.Allocate(base)
	if err != nil {
		return o.failed(ctx, result, started, services.Wrap(services.ErrStage, "allocate", item.Name(), "create output folder", err))
	}
	result.OutputFolder = dir

	stats, err := o.runner.Run(ctx, set, item, dir)
	if err != nil {
		return o.failed(ctx, result, started, err)
	}
	result.Success = true
	result.Stats = stats
	result.Degraded = stats.Outputs.Degraded
	result.Duration = stats.Time[pipeline.TimingTotal]
	logging.WithContext(ctx, o.logger).Info("item complete",
		logging.String("output_folder", dir),
		logging.Float64("seconds", result.Duration),
		logging.Int("faces", stats.NumberOfFaces),
		logging.Bool("degraded", result.Degraded),
	)
	return result
}

func (o *Orchestrator) failed(ctx context.Context, result ItemResult, started time.Time, err error) ItemResult {
	details := services.Details(err)
	result.Success = false
	result.Stats = nil
	result.Duration = time.Since(started).Seconds()
	result.Error = &details
	logging.ErrorWithContext(logging.WithContext(ctx, o.logger), "item failed", "item_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorKind, string(details.Kind)),
		logging.String(logging.FieldErrorHint, "the batch continues with the next item"),
	)
	return result
}

func (o *Orchestrator) finishItem(ctx context.Context, set *capability.Set, runID string, result ItemResult) {
	status := "failure"
	switch {
	case result.Success && result.Degraded:
		status = "degraded"
	case result.Success:
		status = "success"
	}
	o.metrics.ObserveItem(status)

	if o.cfg.Device.LowVRAM {
		if err := set.Release(context.WithoutCancel(ctx)); err != nil {
			logging.WarnWithContext(logging.WithContext(ctx, o.logger), "failed to release device cache", "release_failed",
				logging.Error(err))
		}
	}

	if o.ledger != nil {
		item := ledger.Item{
			RunID:        runID,
			Position:     result.Index,
			Image:        result.Image,
			OutputFolder: result.OutputFolder,
			Success:      result.Success,
			Degraded:     result.Degraded,
			Duration:     result.Duration,
		}
		if result.Error != nil {
			item.ErrorMessage = result.Error.Message
		}
		if result.Stats != nil {
			if data, err := json.Marshal(result.Stats); err == nil {
				item.Stats = data
			}
		}
		if err := o.ledger.RecordItem(context.WithoutCancel(ctx), item); err != nil {
			o.logger.Warn("failed to record item in ledger", logging.Error(err))
		}
	}

	if o.onItem != nil {
		o.onItem(result)
	}
}

func (o *Orchestrator) startLedger(ctx context.Context, runID string, started time.Time) {
	if o.ledger == nil {
		return
	}
	settings, _ := json.Marshal(o.cfg.Settings())
	err := o.ledger.StartRun(ctx, ledger.Run{
		ID:         runID,
		StartedAt:  started,
		OutputRoot: o.cfg.Paths.OutputDir,
		Format:     o.cfg.Output.Format,
		Settings:   settings,
	})
	if err != nil {
		o.logger.Warn("failed to record run in ledger; history disabled for this run", logging.Error(err))
		o.ledger = nil
	}
}

func (o *Orchestrator) finishLedger(ctx context.Context, summary *RunSummary) {
	if o.ledger == nil {
		return
	}
	err := o.ledger.FinishRun(context.WithoutCancel(ctx), ledger.Run{
		ID:          summary.RunID,
		FinishedAt:  summary.FinishedAt,
		Total:       summary.TotalImages,
		Processed:   summary.Processed,
		Errors:      summary.Errors,
		Degraded:    summary.Degraded,
		TotalTime:   summary.TotalTime,
		AverageTime: summary.AverageTime,
		Cancelled:   summary.Cancelled,
	})
	if err != nil {
		o.logger.Warn("failed to finish run in ledger", logging.Error(err))
	}
}

func (o *Orchestrator) notifyCompleted(ctx context.Context, logger *slog.Logger, summary *RunSummary, elapsed time.Duration) {
	err := o.notifier.NotifyBatchCompleted(context.WithoutCancel(ctx), notifications.Completion{
		Processed:  summary.Processed,
		Failed:     summary.Errors,
		Degraded:   summary.Degraded,
		Cancelled:  summary.Cancelled,
		NotStarted: summary.NotStarted,
		Duration:   elapsed,
		OutputRoot: summary.OutputRoot,
	})
	if err != nil {
		logger.Warn("batch completion notification failed", logging.Error(err))
	}
}

func (o *Orchestrator) writeMetrics(logger *slog.Logger, root string, elapsed time.Duration) {
	if o.metrics == nil || !o.cfg.Metrics.Enabled {
		return
	}
	o.metrics.ObserveRun(elapsed)
	if _, err := o.metrics.WriteTextfile(root); err != nil {
		logger.Warn("failed to write metrics", logging.Error(err))
	}
}

func itemImage(item pipeline.Item) string {
	if item.Path != "" {
		return item.Path
	}
	return "caption: " + item.Caption
}
