package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/rivetflow/rivet/pkg/eventbus"
	"github.com/rivetflow/rivet/pkg/events"
	"github.com/rivetflow/rivet/pkg/models"
	"github.com/rivetflow/rivet/pkg/persistence"
	"github.com/rivetflow/rivet/pkg/plan"
)

// ErrExecutionNotFound is returned when an execution is not found.
var ErrExecutionNotFound = persistence.ErrExecutionNotFound

// Execution dispatches workflow runs and applies control commands. It
// never traverses the graph itself: runs are handed to workers through
// the event bus, and state transitions go through guarded updates so
// concurrent commands are rejected instead of interleaved.
type Execution struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
}

// NewExecution creates a new execution service.
func NewExecution(logger *slog.Logger, persistence persistence.Persistence, eventBus eventbus.EventBus) *Execution {
	return &Execution{
		logger:      logger.With("module", "execution_service"),
		persistence: persistence,
		eventBus:    eventBus,
	}
}

// ExecuteRequest starts one run of a workflow. InstanceID is an optional
// idempotency token: retries with the same token return the execution
// created by the first call.
type ExecuteRequest struct {
	WorkflowID  string
	TriggerType models.TriggerType
	Payload     map[string]any
	InstanceID  string
}

// Execute creates a queued execution with a definition snapshot and asks
// a worker to pick it up. A workflow that fails graph validation never
// produces an execution record.
func (s *Execution) Execute(ctx context.Context, req ExecuteRequest) (*models.WorkflowExecution, error) {
	workflow, err := s.persistence.WorkflowRepository().GetByID(ctx, req.WorkflowID)
	if err != nil {
		return nil, err
	}

	if !workflow.Active {
		return nil, ErrWorkflowInactive
	}

	if _, validationErrors := plan.Compile(workflow); plan.HasFatal(validationErrors) {
		return nil, &GraphValidationError{Errors: plan.Fatal(validationErrors)}
	}

	triggerType := req.TriggerType
	if triggerType == "" {
		triggerType = models.TriggerTypeManual
	}

	execution := &models.WorkflowExecution{
		ID:             uuid.NewString(),
		WorkflowID:     workflow.ID,
		Definition:     workflow,
		InstanceID:     req.InstanceID,
		Status:         models.ExecutionStatusQueued,
		TriggerType:    triggerType,
		TriggerPayload: req.Payload,
		CreatedAt:      time.Now().UTC(),
	}

	err = s.persistence.ExecutionRepository().Create(ctx, execution)
	if errors.Is(err, persistence.ErrExecutionExists) && req.InstanceID != "" {
		return s.persistence.ExecutionRepository().GetByInstanceID(ctx, workflow.ID, req.InstanceID)
	}

	if err != nil {
		return nil, err
	}

	event := events.ExecutionQueued{
		BaseEvent:   s.baseEvent(execution, events.ExecutionQueuedEvent),
		TriggerType: triggerType,
	}

	if err := s.eventBus.Publish(ctx, execution.ID, event); err != nil {
		return nil, fmt.Errorf("failed to dispatch execution %s: %w", execution.ID, err)
	}

	s.logger.InfoContext(ctx, "Execution queued",
		"execution_id", execution.ID, "workflow_id", workflow.ID, "trigger_type", triggerType)

	return execution, nil
}

// Get fetches an execution by id.
func (s *Execution) Get(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	return s.persistence.ExecutionRepository().GetByID(ctx, id)
}

// ListByWorkflow lists the executions of one workflow.
func (s *Execution) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error) {
	return s.persistence.ExecutionRepository().ListByWorkflow(ctx, workflowID)
}

// Steps returns the full attempt history of an execution in append order.
func (s *Execution) Steps(ctx context.Context, executionID string) ([]*models.StepLog, error) {
	if _, err := s.persistence.ExecutionRepository().GetByID(ctx, executionID); err != nil {
		return nil, err
	}

	return s.persistence.StepLogRepository().ListByExecution(ctx, executionID)
}

// Pause asks the scheduler to suspend a running execution at the next
// step boundary. It is cooperative: the in-flight step always finishes.
func (s *Execution) Pause(ctx context.Context, executionID string) error {
	err := s.persistence.ExecutionRepository().RequestPause(ctx, executionID)
	if persistence.IsInvalidTransition(err) {
		return NewControlError("pause", executionID, ErrInvalidExecutionState)
	}

	return err
}

// Resume moves a waiting execution back to running and hands it to a
// worker, which continues from the persisted traversal state.
func (s *Execution) Resume(ctx context.Context, executionID string) error {
	from := []models.ExecutionStatus{models.ExecutionStatusWaiting}

	execution, err := s.persistence.ExecutionRepository().UpdateStatus(ctx, executionID, from, models.ExecutionStatusRunning)
	if persistence.IsInvalidTransition(err) {
		return NewControlError("resume", executionID, ErrInvalidExecutionState)
	}

	if err != nil {
		return err
	}

	event := events.ExecutionResumeRequested{
		BaseEvent: s.baseEvent(execution, events.ExecutionResumeRequestedEvent),
	}

	if err := s.eventBus.Publish(ctx, executionID, event); err != nil {
		return fmt.Errorf("failed to dispatch resume for execution %s: %w", executionID, err)
	}

	s.logger.InfoContext(ctx, "Execution resume dispatched", "execution_id", executionID)

	return nil
}

// Terminate cancels a running or waiting execution. Terminating an
// already-terminal execution is a no-op, so retries are harmless. The
// in-flight step is not interrupted; the scheduler stops at the next
// boundary.
func (s *Execution) Terminate(ctx context.Context, executionID string) error {
	execution, err := s.persistence.ExecutionRepository().GetByID(ctx, executionID)
	if err != nil {
		return err
	}

	if execution.Status.IsTerminal() {
		return nil
	}

	from := []models.ExecutionStatus{models.ExecutionStatusRunning, models.ExecutionStatusWaiting}

	execution, err = s.persistence.ExecutionRepository().UpdateStatus(ctx, executionID, from, models.ExecutionStatusCancelled)
	if persistence.IsInvalidTransition(err) {
		// Lost a race against the scheduler finishing the run.
		fresh, getErr := s.persistence.ExecutionRepository().GetByID(ctx, executionID)
		if getErr == nil && fresh.Status.IsTerminal() {
			return nil
		}

		return NewControlError("terminate", executionID, ErrInvalidExecutionState)
	}

	if err != nil {
		return err
	}

	now := time.Now().UTC()
	execution.CompletedAt = &now

	if execution.StartedAt != nil {
		execution.DurationMS = now.Sub(*execution.StartedAt).Milliseconds()
	}

	if err := s.persistence.ExecutionRepository().Save(ctx, execution); err != nil {
		return err
	}

	if err := s.cancelInFlightSteps(ctx, executionID, now); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Execution terminated", "execution_id", executionID)

	event := events.ExecutionCancelled{
		BaseEvent: s.baseEvent(execution, events.ExecutionCancelledEvent),
	}

	if err := s.eventBus.Publish(ctx, executionID, event); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish cancellation event",
			"execution_id", executionID, "error", err)
	}

	return nil
}

// cancelInFlightSteps marks running and waiting step rows as errored so
// the attempt history shows where the run was cut off.
func (s *Execution) cancelInFlightSteps(ctx context.Context, executionID string, now time.Time) error {
	stepLogs, err := s.persistence.StepLogRepository().ListByExecution(ctx, executionID)
	if err != nil {
		return err
	}

	for _, stepLog := range stepLogs {
		if stepLog.Status != models.StepStatusRunning && stepLog.Status != models.StepStatusWaiting {
			continue
		}

		stepLog.Status = models.StepStatusError
		stepLog.Error = "execution terminated"
		stepLog.FinishedAt = &now
		stepLog.DurationMS = now.Sub(stepLog.StartedAt).Milliseconds()

		if err := s.persistence.StepLogRepository().Update(ctx, stepLog); err != nil {
			return err
		}
	}

	return nil
}

func (s *Execution) baseEvent(execution *models.WorkflowExecution, eventType events.EventType) events.BaseEvent {
	return events.BaseEvent{
		ID:          uuid.NewString(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		WorkflowID:  execution.WorkflowID,
		ExecutionID: execution.ID,
	}
}
