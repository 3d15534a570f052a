package dispatch

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"
)

// Retry configuration
const (
	defaultMaxAttempts = 3
	initialBackoff     = 2 * time.Second
	maxBackoff         = 30 * time.Second
	backoffMultiplier  = 2.0
	defaultJitter      = 0.3
)

// RetryPolicy controls the outer retry around the fallback chain
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64 // fraction of the delay, applied in both directions
}

// DefaultRetryPolicy returns 3 attempts with 2s..30s exponential backoff and ±30% jitter
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: defaultMaxAttempts,
		BaseDelay:   initialBackoff,
		MaxDelay:    maxBackoff,
		Jitter:      defaultJitter,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = maxBackoff
	}
	if p.Jitter < 0 || p.Jitter >= 1 {
		p.Jitter = 0
	}
	return p
}

// delay returns the backoff before retry n (1-indexed)
func (p RetryPolicy) delay(n int) time.Duration {
	d := float64(p.BaseDelay)
	for i := 1; i < n; i++ {
		d *= backoffMultiplier
		if d > float64(p.MaxDelay) {
			break
		}
	}
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}

	if p.Jitter > 0 && d > 0 {
		span := d * p.Jitter
		d += (rand.Float64()*2 - 1) * span
	}
	return time.Duration(d)
}

// do runs fn until it succeeds, fails permanently or attempts run out
func (p RetryPolicy) do(ctx context.Context, logger zerolog.Logger, fn func(ctx context.Context, attempt int) error) error {
	p = p.normalized()

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			backoff := p.delay(attempt - 1)
			logger.Debug().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("retrying after backoff")

			if err := sleepWithContext(ctx, backoff); err != nil {
				return lastErr
			}
		}

		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil || !isRetryable(err) {
			logger.Debug().Err(err).Int("attempt", attempt).Msg("non-retryable error, stopping retries")
			return err
		}

		logger.Debug().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", p.MaxAttempts).
			Msg("retryable error occurred")
	}

	return lastErr
}

// sleepWithContext sleeps for d, returning early if ctx is cancelled
func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
