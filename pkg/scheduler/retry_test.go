package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/rivetflow/rivet/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeBackoff_Fixed(t *testing.T) {
	policy := &models.RetryPolicy{
		MaxAttempts: 5,
		Backoff:     models.BackoffFixed,
		Interval:    "2s",
	}

	assert.Equal(t, 2*time.Second, computeBackoff(policy, 1))
	assert.Equal(t, 2*time.Second, computeBackoff(policy, 3))
}

func TestComputeBackoff_Exponential(t *testing.T) {
	policy := &models.RetryPolicy{
		MaxAttempts: 4,
		Backoff:     models.BackoffExponential,
		Interval:    "100ms",
	}

	assert.Equal(t, 100*time.Millisecond, computeBackoff(policy, 1))
	assert.Equal(t, 200*time.Millisecond, computeBackoff(policy, 2))
	assert.Equal(t, 400*time.Millisecond, computeBackoff(policy, 3))
}

func TestComputeBackoff_Defaults(t *testing.T) {
	// No interval configured falls back to one second, fixed.
	policy := &models.RetryPolicy{MaxAttempts: 3}

	assert.Equal(t, time.Second, computeBackoff(policy, 1))
	assert.Equal(t, time.Second, computeBackoff(policy, 2))
}

func TestComputeBackoff_InvalidInterval(t *testing.T) {
	policy := &models.RetryPolicy{MaxAttempts: 3, Interval: "not-a-duration"}

	assert.Equal(t, time.Second, computeBackoff(policy, 1))
}

func TestWaitBackoff_ZeroDelay(t *testing.T) {
	require.NoError(t, waitBackoff(context.Background(), 0))
}

func TestWaitBackoff_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := waitBackoff(ctx, time.Minute)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
