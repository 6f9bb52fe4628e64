package notify

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryPolicy bounds per-channel retries of transient failures.
type RetryPolicy struct {
	// MaxAttempts includes the first try.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns the default retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    20 * time.Second,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.MaxAttempts < 1 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// Backoff returns the wait before the attempt after attempt n (1-based).
// The exponential ceiling min(max, base*2^(n-1)) is jittered into
// [ceiling/2, ceiling]. A provider hint raises the wait, still capped at max.
func (p RetryPolicy) Backoff(n int, hint time.Duration, jitter func(int64) int64) time.Duration {
	ceiling := p.BaseDelay
	for i := 1; i < n && ceiling < p.MaxDelay; i++ {
		ceiling *= 2
	}
	if ceiling > p.MaxDelay {
		ceiling = p.MaxDelay
	}

	half := ceiling / 2
	wait := half
	if span := int64(ceiling - half); span > 0 {
		wait += time.Duration(jitter(span + 1))
	}

	if hint > wait {
		wait = hint
	}
	if wait > p.MaxDelay {
		wait = p.MaxDelay
	}
	return wait
}

func defaultJitter(n int64) int64 {
	return rand.Int64N(n)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
