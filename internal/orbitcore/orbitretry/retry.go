// Package orbitretry implements the exponential-backoff retry helper used
// by transport and directory clients to ride out transient I/O failures.
// The runtime itself never retries at the handler level; this helper
// exists so callers that want retry semantics don't each reinvent the
// backoff loop.
package orbitretry

import (
	"context"
	"errors"
	"time"
)

// Config parameterizes Attempt's backoff schedule.
type Config struct {
	// MaxAttempts is the total number of times body runs, including the
	// first try. Must be >= 1.
	MaxAttempts int

	// InitialDelay is how long Attempt waits after the first failure.
	InitialDelay time.Duration

	// MaxDelay caps the delay between attempts; the backoff never grows
	// past it.
	MaxDelay time.Duration

	// Factor multiplies the delay after each failed attempt.
	Factor float64
}

// DefaultConfig returns a reasonable starting schedule: five attempts,
// 100ms initial delay, doubling up to a 5s ceiling.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Factor:       2.0,
	}
}

// permanentError marks an error as non-retryable, unwrapping to the
// original cause when inspected by the caller.
type permanentError struct {
	cause error
}

func (p *permanentError) Error() string { return p.cause.Error() }
func (p *permanentError) Unwrap() error { return p.cause }

// Permanent wraps err so Attempt stops retrying and returns the original
// cause immediately, for errors a backoff schedule can never fix (a
// malformed query, a context cancellation already classified by the
// caller, and similar).
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{cause: err}
}

// Attempt runs body up to cfg.MaxAttempts times. On any error it logs and
// waits the current delay, then grows the delay by cfg.Factor capped at
// cfg.MaxDelay. The final attempt's error, if any, propagates to the
// caller unwrapped. Attempt also returns early if ctx is cancelled while
// waiting between attempts.
func Attempt(ctx context.Context, cfg Config, body func(ctx context.Context) error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	delay := cfg.InitialDelay

	var lastErr error
	for i := 0; i < cfg.MaxAttempts; i++ {
		lastErr = body(ctx)
		if lastErr == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.cause
		}

		remaining := cfg.MaxAttempts - i - 1
		if remaining == 0 {
			break
		}

		log.DebugS(ctx, "Attempt failed, backing off",
			"err", lastErr, "delay", delay, "remaining", remaining)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}

		delay = time.Duration(float64(delay) * cfg.Factor)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return lastErr
}
