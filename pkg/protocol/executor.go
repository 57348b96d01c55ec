// Package protocol defines the contracts between the execution engine and
// pluggable node executors.
package protocol

import (
	"context"
	"errors"
	"net"

	"github.com/rivetflow/rivet/pkg/models"
)

// StepOutput is the successful result of one node invocation. Condition
// and switch executors must set Branch to the output-group tag they
// selected; other executors leave it empty.
type StepOutput struct {
	Data   map[string]any `json:"data,omitempty"`
	Branch string         `json:"branch,omitempty"`
}

// NodeExecutor runs one node's side-effecting logic. The engine does not
// know what a node type does internally; it only interprets success,
// retryable failure and permanent failure.
type NodeExecutor interface {
	Execute(ctx context.Context, node *models.WorkflowNode, input map[string]any) (*StepOutput, error)
}

// ExecutorFactory creates executor instances and describes the node type.
type ExecutorFactory interface {
	// Create builds an executor bound to the given node definition.
	Create(ctx context.Context, node *models.WorkflowNode) (NodeExecutor, error)

	// Type returns the unique registry key for this node type.
	Type() string

	// Name returns the human-readable name for this node type.
	Name() string

	// Description returns a description of what this node type does.
	Description() string

	// Schema returns the JSON schema for the node's parameters.
	Schema() map[string]any
}

// StepError wraps an executor failure with its retry classification.
type StepError struct {
	Err       error
	Retryable bool
}

func (e *StepError) Error() string {
	return e.Err.Error()
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// RetryableError marks a failure as safe to re-invoke with the same input.
func RetryableError(err error) error {
	return &StepError{Err: err, Retryable: true}
}

// PermanentError marks a failure as terminal for the step.
func PermanentError(err error) error {
	return &StepError{Err: err, Retryable: false}
}

// IsRetryable classifies an executor failure. Explicit StepError wrapping
// wins; otherwise network errors and deadline expiry are retryable and
// everything else is permanent. Context cancellation is never retried
// because it means the run is shutting down.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr.Retryable
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return false
}
