package ratelimit

import (
	"context"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"
)

// Limiter spaces out requests to a single backend, optionally adding random
// jitter on top of the base interval. It is safe for concurrent use.
type Limiter struct {
	lim      *rate.Limiter
	jitter   float64 // 0.0 to 1.0
	interval time.Duration
}

// NewLimiter creates a limiter allowing rps requests per second with the
// given jitter factor (clamped to [0, 1]). If rps is <= 0, Wait never blocks.
func NewLimiter(rps float64, jitter float64) *Limiter {
	if rps <= 0 {
		return &Limiter{}
	}

	if jitter < 0 {
		jitter = 0
	} else if jitter > 1 {
		jitter = 1
	}

	return &Limiter{
		lim:      rate.NewLimiter(rate.Limit(rps), 1),
		jitter:   jitter,
		interval: time.Duration(float64(time.Second) / rps),
	}
}

// Wait blocks until the next request may proceed or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.lim == nil {
		return nil
	}

	if err := l.lim.Wait(ctx); err != nil {
		return err
	}

	if l.jitter > 0 {
		// Only positive jitter delays; the token bucket already enforces the
		// minimum spacing.
		extra := time.Duration(float64(l.interval) * l.jitter * rand.Float64())
		if extra > 0 {
			t := time.NewTimer(extra)
			defer t.Stop()
			select {
			case <-t.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}
