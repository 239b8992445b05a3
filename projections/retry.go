package projections

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// RetryPolicy drives bounded exponential backoff for projection attempts.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration
}

// DefaultRetryPolicy matches the projection defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: time.Second,
		Multiplier:      2.0,
		MaxInterval:     10 * time.Second,
	}
}

// Do runs op up to MaxAttempts times, sleeping between attempts with
// exponential backoff capped at MaxInterval. It returns the last error
// when every attempt fails, or the context error if cancelled mid-wait.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	interval := p.InitialInterval
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Wrap(ctx.Err(), "retry interrupted")
		case <-timer.C:
		}

		interval = time.Duration(float64(interval) * p.Multiplier)
		if p.MaxInterval > 0 && interval > p.MaxInterval {
			interval = p.MaxInterval
		}
	}
	return lastErr
}
