package deps

import (
	"context"
	"errors"
	"time"
)

// ErrProbeTimeout reports that a probe did not finish inside its bound.
var ErrProbeTimeout = errors.New("probe timed out")

// Probe runs fn with a hard upper bound. fn receives a context that expires at
// the bound, but Probe returns ErrProbeTimeout at the bound even when fn ignores
// its context, so a hanging dependency cannot stall the caller.
func Probe(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(probeCtx)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return ErrProbeTimeout
		}
		return err
	case <-timer.C:
		return ErrProbeTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
