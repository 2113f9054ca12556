package scrape

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces out batches to stay under provider quotas. Pause blocks
// between batch dispatches.
type Pacer interface {
	Pause(ctx context.Context) error
}

// FixedPacer sleeps a constant delay between batches. This is the static
// ceiling the pipeline defaults to, not adaptive backoff.
type FixedPacer struct {
	Delay time.Duration
}

func (p FixedPacer) Pause(ctx context.Context) error {
	if p.Delay <= 0 {
		return nil
	}
	timer := time.NewTimer(p.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RatePacer paces batches through a token bucket, letting an idle pipeline
// start its next batch immediately instead of always paying a fixed sleep.
type RatePacer struct {
	limiter *rate.Limiter
}

// NewRatePacer allows one batch per interval with a burst of one.
func NewRatePacer(interval time.Duration) *RatePacer {
	return &RatePacer{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

func (p *RatePacer) Pause(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}
