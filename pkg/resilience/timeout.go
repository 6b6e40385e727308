package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// TimeoutError reports that op did not finish within Limit. It unwraps to
// context.DeadlineExceeded.
type TimeoutError struct {
	Op    string
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: no result within %v", e.Op, e.Limit)
}

func (e *TimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

// WithTimeout runs fn with a context cancelled after limit and returns as
// soon as the limit is reached, even if fn has not returned yet. A limit of
// zero runs fn directly.
func WithTimeout(ctx context.Context, limit time.Duration, op string, fn func(ctx context.Context) error) error {
	if limit <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeoutCause(ctx, limit, &TimeoutError{Op: op, Limit: limit})
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(ctx)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		cause := context.Cause(ctx)
		if _, ok := cause.(*TimeoutError); ok {
			slog.Default().Warn("operation timed out", "component", "timeout", "op", op, "limit", limit)
			return cause
		}
		return fmt.Errorf("%s: %w", op, cause)
	}
}
