// Package services implements the control surface behind the HTTP API:
// workflow CRUD with validation, execution dispatch and the
// pause/resume/terminate commands.
package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rivetflow/rivet/pkg/plan"
)

// Business logic errors. These map to 4xx responses at the transport layer.
var (
	// Validation errors (400 Bad Request).
	ErrInvalidRequest       = errors.New("invalid request")
	ErrWorkflowNameRequired = errors.New("workflow name is required")
	ErrNodesRequired        = errors.New("workflow must have at least one node")
	ErrWorkflowNil          = errors.New("workflow cannot be nil")
	ErrWorkflowInactive     = errors.New("workflow is not active")

	// Control errors (409 Conflict): a pause/resume/terminate command was
	// issued against an execution outside its valid source states.
	ErrInvalidExecutionState = errors.New("execution is not in a valid state for this command")
)

// GraphValidationError carries the compiler findings for a workflow that
// failed validation. The execution is never created.
type GraphValidationError struct {
	Errors []plan.ValidationError
}

func (e *GraphValidationError) Error() string {
	messages := make([]string, 0, len(e.Errors))
	for _, validationError := range e.Errors {
		messages = append(messages, validationError.Error())
	}

	return "workflow graph is invalid: " + strings.Join(messages, "; ")
}

// ControlError wraps a rejected control command with its operation and
// execution id. The execution state is unchanged.
type ControlError struct {
	Op          string
	ExecutionID string
	Err         error
}

func (e *ControlError) Error() string {
	return fmt.Sprintf("%s rejected for execution %s: %v", e.Op, e.ExecutionID, e.Err)
}

func (e *ControlError) Unwrap() error {
	return e.Err
}

// NewControlError creates a control error for a rejected command.
func NewControlError(op, executionID string, err error) *ControlError {
	return &ControlError{Op: op, ExecutionID: executionID, Err: err}
}

// IsValidationError checks if an error should surface as HTTP 400.
func IsValidationError(err error) bool {
	var graphErr *GraphValidationError
	if errors.As(err, &graphErr) {
		return true
	}

	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrWorkflowNameRequired) ||
		errors.Is(err, ErrNodesRequired) ||
		errors.Is(err, ErrWorkflowNil) ||
		errors.Is(err, ErrWorkflowInactive)
}

// IsControlError checks if an error is a rejected control command that
// should surface as HTTP 409.
func IsControlError(err error) bool {
	var controlErr *ControlError
	if errors.As(err, &controlErr) {
		return true
	}

	return errors.Is(err, ErrInvalidExecutionState)
}
