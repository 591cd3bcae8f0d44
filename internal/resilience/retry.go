package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryConfig bounds a sequence of attempts. The zero value of Backoff
// retries immediately.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first.
	// Values below 1 mean a single attempt.
	MaxAttempts int

	// PerAttemptTimeout cancels an individual attempt. An attempt that hits
	// it is retried even when ShouldRetry would reject the error.
	PerAttemptTimeout time.Duration

	// Backoff is the delay before the first retry.
	Backoff time.Duration

	// MaxBackoff caps the delay. Zero means no cap.
	MaxBackoff time.Duration

	// Multiplier scales the delay after each retry. Values below 1 keep it flat.
	Multiplier float64

	// JitterFraction randomizes the delay by ±fraction.
	JitterFraction float64

	// ShouldRetry overrides the IsTransient check.
	ShouldRetry func(err error) bool

	// OnRetry is called before each retry with the 1-based attempt that failed.
	OnRetry func(attempt int, err error)
}

// Do runs fn until it succeeds, the budget is spent, the error is not
// retryable, or ctx is done.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for functions that return a value. The last error is
// returned once attempts run out.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	attempts := max(cfg.MaxAttempts, 1)
	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsTransient
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		val, timedOut, err := runAttempt(ctx, cfg.PerAttemptTimeout, fn)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, lastErr
		}
		if !timedOut && !shouldRetry(err) {
			return zero, lastErr
		}
		if attempt == attempts {
			break
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}
		if !sleep(ctx, backoff(attempt, cfg)) {
			return zero, lastErr
		}
	}
	return zero, lastErr
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, bool, error) {
	if timeout <= 0 {
		v, err := fn(ctx)
		return v, false, err
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	v, err := fn(attemptCtx)
	timedOut := err != nil && attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil
	return v, timedOut, err
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// backoff returns the delay after the given failed attempt.
func backoff(attempt int, cfg RetryConfig) time.Duration {
	if cfg.Backoff <= 0 {
		return 0
	}
	delay := float64(cfg.Backoff)
	if cfg.Multiplier > 1 {
		delay *= math.Pow(cfg.Multiplier, float64(attempt-1))
	}
	if cfg.MaxBackoff > 0 && delay > float64(cfg.MaxBackoff) {
		delay = float64(cfg.MaxBackoff)
	}
	if cfg.JitterFraction > 0 {
		delay += (rand.Float64()*2 - 1) * delay * cfg.JitterFraction
	}
	return time.Duration(max(delay, 0))
}

// RetryLogger returns an OnRetry callback that logs each retry attempt
// with the given fields.
func RetryLogger(service, operation string, fields ...zap.Field) func(int, error) {
	return func(attempt int, err error) {
		l := zap.L().With(fields...)
		l.Warn("retrying operation",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.String("class", Classify(err).String()),
			zap.Error(err),
		)
	}
}
