package scheduler

import (
	"context"
	"time"

	"github.com/rivetflow/rivet/pkg/models"
)

// computeBackoff returns the delay before the next attempt. attempt is the
// 1-based number of the attempt that just failed, so the first retry of an
// exponential policy waits the base interval.
func computeBackoff(policy *models.RetryPolicy, attempt int) time.Duration {
	base := policy.BaseInterval()

	switch policy.Backoff {
	case models.BackoffExponential:
		delay := base
		for i := 1; i < attempt; i++ {
			delay *= 2
		}

		return delay
	default:
		return base
	}
}

// waitBackoff sleeps for the given delay or returns early when the context
// is cancelled.
func waitBackoff(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
