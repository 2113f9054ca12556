// Package resilience classifies transient upstream failures and retries
// them with exponential backoff. Scrape fetches go through RetryVal; the
// Places client marks retryable HTTP statuses with TransientError.
package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Policy controls how a flaky operation is retried.
type Policy struct {
	// Attempts is the total number of tries, including the first.
	// 1 means no retries. Default: 2.
	Attempts int

	// Backoff is the delay before the first retry; it doubles after each
	// failed attempt. Default: 1s.
	Backoff time.Duration

	// MaxBackoff caps the doubled delay. Default: 15s.
	MaxBackoff time.Duration

	// Jitter spreads each delay by up to this fraction in either
	// direction. Default: 0.25.
	Jitter float64

	// Classify decides whether an error is worth retrying. Nil means
	// IsTransient.
	Classify func(err error) bool

	// OnRetry runs before each retry sleep.
	OnRetry func(attempt int, err error)
}

// DefaultPolicy is tuned for provider fetches: one retry after a short
// backoff, so a stalled unit never holds its batch for long.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:   2,
		Backoff:    time.Second,
		MaxBackoff: 15 * time.Second,
		Jitter:     0.25,
	}
}

// Retry runs fn until it succeeds, returns a permanent error, the policy
// is exhausted, or ctx is done.
func Retry(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := RetryVal(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RetryVal is Retry for operations that return a value.
func RetryVal[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.withDefaults()

	classify := p.Classify
	if classify == nil {
		classify = IsTransient
	}

	var zero T
	var lastErr error
	for attempt := 0; attempt < p.Attempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil || !classify(lastErr) {
			return zero, lastErr
		}
		if attempt == p.Attempts-1 {
			break
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt+1, lastErr)
		}

		timer := time.NewTimer(p.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}

	return zero, lastErr
}

func (p Policy) withDefaults() Policy {
	if p.Attempts <= 0 {
		p.Attempts = 2
	}
	if p.Backoff <= 0 {
		p.Backoff = time.Second
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = 15 * time.Second
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	return p
}

func (p Policy) delay(attempt int) time.Duration {
	d := float64(p.Backoff) * math.Pow(2, float64(attempt))
	if d > float64(p.MaxBackoff) {
		d = float64(p.MaxBackoff)
	}
	if p.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * p.Jitter
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// RetryLogger returns an OnRetry callback that logs each attempt.
func RetryLogger(source, unit string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying fetch",
			zap.String("source", source),
			zap.String("unit", unit),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
