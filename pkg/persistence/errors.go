// Package persistence provides standardized error types for storage operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrExecutionNotFound indicates an execution was not found by the given identifier.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrExecutionExists indicates an execution with the same idempotency token already exists.
	ErrExecutionExists = errors.New("execution already exists")

	// ErrStepLogNotFound indicates a step log row was not found.
	ErrStepLogNotFound = errors.New("step log not found")

	// ErrBindingNotFound indicates no webhook binding matches the given route.
	ErrBindingNotFound = errors.New("webhook binding not found")

	// ErrBindingExists indicates the (path, method) pair is already bound.
	ErrBindingExists = errors.New("webhook binding already exists")

	// ErrInvalidTransition indicates a guarded status update found the
	// execution in a state outside the allowed source set.
	ErrInvalidTransition = errors.New("invalid execution status transition")
)

// ExecutionError wraps execution-related storage errors with context.
type ExecutionError struct {
	Op          string
	ExecutionID string
	Err         error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s operation failed for execution %s: %v", e.Op, e.ExecutionID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewExecutionError creates a new execution storage error.
func NewExecutionError(op, executionID string, err error) *ExecutionError {
	return &ExecutionError{Op: op, ExecutionID: executionID, Err: err}
}

// IsWorkflowNotFound checks if an error indicates a missing workflow.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsExecutionNotFound checks if an error indicates a missing execution.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

// IsInvalidTransition checks if an error indicates a rejected guarded transition.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

// IsBindingExists checks if an error indicates a (path, method) conflict.
func IsBindingExists(err error) bool {
	return errors.Is(err, ErrBindingExists)
}
