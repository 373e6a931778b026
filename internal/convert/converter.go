package convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"meshforge/internal/fileutil"
	"meshforge/internal/logging"
	"meshforge/internal/mesh"
	"meshforge/internal/services"
)

// Result describes the file a conversion produced.
type Result struct {
	Path       string
	Format     mesh.Format
	Backend    string
	Degraded   bool
	Diagnostic string
	Attempts   []Attempt
}

// Observer receives every finished attempt, e.g. for metrics.
type Observer func(Attempt)

// Converter runs the first-success-wins fallback chain over a Registry.
type Converter struct {
	registry *Registry
	timeout  time.Duration
	observer Observer
	logger   *slog.Logger
}

// Option customizes a Converter.
type Option func(*Converter)

// WithAttemptTimeout bounds every backend attempt.
func WithAttemptTimeout(timeout time.Duration) Option {
	return func(c *Converter) { c.timeout = timeout }
}

// WithObserver registers a callback invoked after every attempt.
func WithObserver(observer Observer) Option {
	return func(c *Converter) { c.observer = observer }
}

// WithLogger sets the converter logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Converter) { c.logger = logger }
}

// NewConverter returns a Converter over registry.
func NewConverter(registry *Registry, opts ...Option) *Converter {
	c := &Converter{registry: registry}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.NewComponentLogger(c.logger, "convert")
	return c
}

// FallbackPath returns the degraded output path for dst: "<base>_fallback.obj".
func FallbackPath(dst string) string {
	base := strings.TrimSuffix(dst, filepath.Ext(dst))
	return base + "_fallback" + mesh.IntermediateFormat.Ext()
}

// Convert produces dst in format from the OBJ file src. src is consumed: it
// is either converted and removed, renamed to dst when format is the
// intermediate format, or renamed to FallbackPath(dst) when every backend
// fails. Backend failures are never returned as errors; they show up as a
// Degraded result. An error means not even the fallback could be produced.
func (c *Converter) Convert(ctx context.Context, src string, format mesh.Format, dst string) (Result, error) {
	if _, err := os.Stat(src); err != nil {
		return Result{}, services.Wrap(services.ErrStage, "convert", "source", "intermediate mesh missing", err)
	}
	if format == mesh.IntermediateFormat {
		if err := os.Rename(src, dst); err != nil {
			return Result{}, services.Wrap(services.ErrStage, "convert", "rename", "move intermediate mesh", err)
		}
		return Result{Path: dst, Format: format, Backend: "intermediate"}, nil
	}

	result := Result{Format: format}
	for _, backend := range c.registry.For(format) {
		attempt := c.attempt(ctx, backend, src, dst, format)
		result.Attempts = append(result.Attempts, attempt)
		if attempt.Outcome == OutcomeSuccess {
			_ = os.Remove(src)
			result.Path = dst
			result.Backend = attempt.Backend
			return result, nil
		}
		c.logger.Debug("conversion attempt failed",
			logging.String("backend", attempt.Backend),
			logging.String("outcome", attempt.Outcome.String()),
			logging.String("reason", attempt.Message),
		)
		if ctx.Err() != nil {
			break
		}
	}

	fallback := FallbackPath(dst)
	if err := os.Rename(src, fallback); err != nil {
		return Result{}, services.Wrap(services.ErrStage, "convert", "fallback", "keep intermediate mesh", err)
	}
	result.Path = fallback
	result.Format = mesh.IntermediateFormat
	result.Degraded = true
	result.Diagnostic = fmt.Sprintf("requested format %s unavailable, degraded to %s", format, mesh.IntermediateFormat)
	if len(result.Attempts) == 0 {
		result.Diagnostic += " (no backend available)"
	}
	logging.WarnWithContext(logging.WithContext(ctx, c.logger), "conversion degraded", "format_degraded",
		logging.String("format", format.String()),
		logging.String("path", fallback),
		logging.Int("attempts", len(result.Attempts)),
		logging.String(logging.FieldErrorHint, "install blender or assimp for "+format.String()+" output"),
	)
	return result, nil
}

// attempt runs one backend in a fresh temp dir next to dst and moves its
// output into place on success. The temp dir is removed on every path.
func (c *Converter) attempt(ctx context.Context, backend Backend, src, dst string, format mesh.Format) Attempt {
	start := time.Now()
	finish := func(a Attempt) Attempt {
		a.Backend = backend.Name()
		a.Duration = time.Since(start)
		if c.observer != nil {
			c.observer(a)
		}
		return a
	}

	dir, err := os.MkdirTemp(filepath.Dir(dst), ".convert-"+backend.Name()+"-")
	if err != nil {
		return finish(hardFailure(backend.Name(), err))
	}
	defer os.RemoveAll(dir)

	attemptCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	a := backend.Convert(attemptCtx, src, filepath.Join(dir, filepath.Base(dst)), format)
	if a.Outcome != OutcomeSuccess {
		if a.Outcome == OutcomeHardFailure && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			a.Message = "timed out: " + a.Message
		}
		return finish(a)
	}
	if err := fileutil.MoveFile(a.Path, dst); err != nil {
		return finish(hardFailure(backend.Name(), err))
	}
	a.Path = dst
	return finish(a)
}
