package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

// RetryConfig controls backoff between attempts. Zero fields take the
// defaults of defaultRetryConfig. Retryable, when set, stops the loop early
// for errors it rejects.
type RetryConfig struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	JitterFraction float64
	Retryable      func(err error) bool
}

func defaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialDelay:   100 * time.Millisecond,
		MaxDelay:       10 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	d := defaultRetryConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = d.InitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.Multiplier <= 0 {
		c.Multiplier = d.Multiplier
	}
	if c.JitterFraction <= 0 {
		c.JitterFraction = d.JitterFraction
	}
	return c
}

// RetryError is returned once Retry gives up. It unwraps to the error of
// the last attempt.
type RetryError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("%s: gave up after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() error {
	return e.Err
}

// Retry calls fn until it succeeds, the attempts are used up, the error is
// not retryable or ctx is done.
func Retry(ctx context.Context, op string, cfg RetryConfig, fn func() error) error {
	cfg = cfg.withDefaults()
	logger := slog.Default().With("component", "retry", "op", op)

	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil {
			if attempt > 1 {
				logger.Info("succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if attempt == cfg.MaxAttempts || (cfg.Retryable != nil && !cfg.Retryable(err)) {
			return &RetryError{Op: op, Attempts: attempt, Err: err}
		}

		delay := cfg.delay(attempt)
		logger.Warn("attempt failed",
			"attempt", attempt,
			"max_attempts", cfg.MaxAttempts,
			"next_delay", delay,
			"error", err,
		)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return &RetryError{Op: op, Attempts: attempt, Err: fmt.Errorf("%w (last error: %v)", ctx.Err(), err)}
		}
	}
}

// delay is the exponential backoff before the attempt after attempt, with
// symmetric jitter, capped at MaxDelay.
func (c RetryConfig) delay(attempt int) time.Duration {
	backoff := float64(c.InitialDelay)
	for range attempt - 1 {
		backoff *= c.Multiplier
		if backoff >= float64(c.MaxDelay) {
			break
		}
	}
	backoff += backoff * c.JitterFraction * (2*rand.Float64() - 1)
	return time.Duration(min(max(backoff, float64(c.InitialDelay)/2), float64(c.MaxDelay)))
}
