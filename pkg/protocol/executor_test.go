package protocol

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeNetError struct{}

func (e *fakeNetError) Error() string   { return "connection reset" }
func (e *fakeNetError) Timeout() bool   { return true }
func (e *fakeNetError) Temporary() bool { return true }

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{
			name:      "nil error",
			err:       nil,
			retryable: false,
		},
		{
			name:      "explicit retryable",
			err:       RetryableError(errors.New("boom")),
			retryable: true,
		},
		{
			name:      "explicit permanent",
			err:       PermanentError(errors.New("boom")),
			retryable: false,
		},
		{
			name:      "wrapped retryable",
			err:       fmt.Errorf("step failed: %w", RetryableError(errors.New("boom"))),
			retryable: true,
		},
		{
			name:      "context cancellation",
			err:       context.Canceled,
			retryable: false,
		},
		{
			name:      "deadline exceeded",
			err:       context.DeadlineExceeded,
			retryable: true,
		},
		{
			name:      "network error",
			err:       &fakeNetError{},
			retryable: true,
		},
		{
			name:      "plain error defaults to permanent",
			err:       errors.New("boom"),
			retryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}

func TestStepError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := RetryableError(cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "boom", err.Error())
}
