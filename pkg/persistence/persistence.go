// Package persistence provides the data storage abstraction for
// workflows, executions, step logs and webhook bindings.
package persistence

import (
	"context"

	"github.com/rivetflow/rivet/pkg/models"
)

// Persistence exposes the repositories the engine reads and writes.
// Implementations must serialize writes per execution id: the scheduler
// is the single writer of an execution record, and control transitions
// are compare-and-swap guarded so concurrent commands are rejected
// rather than interleaved.
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ExecutionRepository() ExecutionRepository
	StepLogRepository() StepLogRepository
	WebhookBindingRepository() WebhookBindingRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores workflow definitions.
type WorkflowRepository interface {
	Save(ctx context.Context, workflow *models.Workflow) error
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	List(ctx context.Context) ([]*models.Workflow, error)
	Delete(ctx context.Context, id string) error
}

// ExecutionRepository stores execution records.
type ExecutionRepository interface {
	// Create inserts a new execution. A duplicate (workflow, instance)
	// pair returns ErrExecutionExists so client retries stay idempotent.
	Create(ctx context.Context, execution *models.WorkflowExecution) error

	// Save persists the full execution record. Writes for the same
	// execution id are serialized.
	Save(ctx context.Context, execution *models.WorkflowExecution) error

	GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error)
	GetByInstanceID(ctx context.Context, workflowID, instanceID string) (*models.WorkflowExecution, error)
	ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error)

	// UpdateStatus performs a guarded transition: the update applies only
	// when the current status is one of from, otherwise
	// ErrInvalidTransition is returned and the record is unchanged.
	UpdateStatus(ctx context.Context, id string, from []models.ExecutionStatus, to models.ExecutionStatus) (*models.WorkflowExecution, error)

	// RequestPause flags a running execution so the scheduler suspends at
	// the next step boundary.
	RequestPause(ctx context.Context, id string) error
}

// StepLogRepository stores per-attempt step records. Retries append new
// rows; Update only finalizes the row of the attempt in flight.
type StepLogRepository interface {
	Append(ctx context.Context, stepLog *models.StepLog) error
	Update(ctx context.Context, stepLog *models.StepLog) error
	ListByExecution(ctx context.Context, executionID string) ([]*models.StepLog, error)
}

// WebhookBindingRepository stores webhook route bindings. The
// (path, method) pair is globally unique and enforced on Create.
type WebhookBindingRepository interface {
	Create(ctx context.Context, binding *models.WebhookBinding) error
	GetByRoute(ctx context.Context, path, method string) (*models.WebhookBinding, error)
	ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WebhookBinding, error)
	Delete(ctx context.Context, id string) error
}
