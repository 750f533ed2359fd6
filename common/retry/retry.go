// Package retry wraps flaky upstream calls, chiefly the completion
// provider, in bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Config bounds one retried call.
type Config struct {
	// MaxAttempts counts every attempt, the first included. Values below 1
	// mean a single attempt.
	MaxAttempts int
	// InitialDelay is the pause before the second attempt; each later pause
	// doubles the previous one.
	InitialDelay time.Duration
	// MaxDelay caps the doubling.
	MaxDelay time.Duration
	// ShouldRetry decides whether an error is worth another attempt. A nil
	// predicate retries everything.
	ShouldRetry func(err error) bool
}

const (
	defaultInitialDelay = 250 * time.Millisecond
	defaultMaxDelay     = 8 * time.Second
)

// Do runs fn until it succeeds, ShouldRetry declines the error, the
// attempts run out, or ctx is cancelled. The last attempt's error is
// returned; on cancellation it is joined with the context error.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = defaultInitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}

	var lastErr error
	delay := cfg.InitialDelay
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Join(lastErr, err)
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if cfg.ShouldRetry != nil && !cfg.ShouldRetry(lastErr) {
			return lastErr
		}
		if attempt >= cfg.MaxAttempts {
			return lastErr
		}

		slog.Debug("retry: backing off",
			"attempt", attempt, "max", cfg.MaxAttempts, "delay", delay, "err", lastErr)
		select {
		case <-ctx.Done():
			return errors.Join(lastErr, ctx.Err())
		case <-time.After(delay):
		}
		if delay *= 2; delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
}
