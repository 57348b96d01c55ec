// Package scheduler drives the traversal of compiled execution plans. It
// owns the execution state machine: status transitions, retries, branch
// selection, suspension and termination are all decided here, never
// inside node executors.
package scheduler

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
	"github.com/rivetflow/rivet/pkg/protocol"
	"github.com/rivetflow/rivet/pkg/registry"
)

// errRunAborted signals that traversal stopped because the execution was
// cancelled underneath the scheduler.
var errRunAborted = errors.New("execution aborted")

type Scheduler struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	eventBus    eventbus.EventBus
	workerID    string
}

func NewScheduler(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *registry.Registry,
	eventBus eventbus.EventBus,
	workerID string,
) *Scheduler {
	return &Scheduler{
		logger:      logger.With("module", "scheduler", "worker_id", workerID),
		persistence: persistence,
		registry:    registry,
		eventBus:    eventBus,
		workerID:    workerID,
	}
}

// Run drives one execution until it completes, fails, suspends or is
// cancelled. It is safe to invoke again for the same execution after a
// resume: traversal state is rebuilt from the persisted record, so the
// scheduler keeps no required in-memory state between invocations.
func (s *Scheduler) Run(ctx context.Context, executionID string) error {
	logger := s.logger.With("execution_id", executionID)

	execution, err := s.persistence.ExecutionRepository().GetByID(ctx, executionID)
	if err != nil {
		return fmt.Errorf("failed to load execution %s: %w", executionID, err)
	}

	if execution.Status.IsTerminal() {
		logger.InfoContext(ctx, "Execution already terminal, nothing to run", "status", execution.Status)

		return nil
	}

	execution, err = s.markRunning(ctx, execution)
	if err != nil {
		if errors.Is(err, errRunAborted) {
			logger.InfoContext(ctx, "Execution claimed elsewhere before start, nothing to run")

			return nil
		}

		return err
	}

	executionPlan, validationErrors := plan.Compile(execution.Definition)
	if plan.HasFatal(validationErrors) {
		return s.failExecution(ctx, execution, "", fmt.Errorf("definition does not compile: %v", plan.Fatal(validationErrors)))
	}

	if err := s.settleWaitingStep(ctx, execution); err != nil {
		return err
	}

	return s.traverse(ctx, logger, execution, executionPlan)
}

// markRunning moves a queued or waiting execution into running and stamps
// the start time on the first transition.
func (s *Scheduler) markRunning(ctx context.Context, execution *models.WorkflowExecution) (*models.WorkflowExecution, error) {
	if execution.Status == models.ExecutionStatusRunning {
		return execution, nil
	}

	from := []models.ExecutionStatus{models.ExecutionStatusQueued, models.ExecutionStatusWaiting}

	executionID := execution.ID
	resumed := execution.Status == models.ExecutionStatusWaiting

	execution, err := s.persistence.ExecutionRepository().UpdateStatus(ctx, executionID, from, models.ExecutionStatusRunning)
	if err != nil {
		if persistence.IsInvalidTransition(err) {
			// A terminate command or a competing worker won the
			// transition since our read; their state stands.
			return nil, errRunAborted
		}

		return nil, fmt.Errorf("failed to start execution %s: %w", executionID, err)
	}

	if execution.StartedAt == nil {
		now := time.Now().UTC()
		execution.StartedAt = &now

		if err := s.persistence.ExecutionRepository().Save(ctx, execution); err != nil {
			return nil, err
		}
	}

	if resumed {
		s.publish(ctx, execution, events.ExecutionResumed{BaseEvent: s.baseEvent(execution, events.ExecutionResumedEvent)})
	} else {
		s.publish(ctx, execution, events.ExecutionStarted{BaseEvent: s.baseEvent(execution, events.ExecutionStartedEvent)})
	}

	return execution, nil
}

// settleWaitingStep finalizes the step log left behind by a wait node
// suspension. The waiting row flips to success and the node joins the
// completed set, so traversal continues from its successors only.
func (s *Scheduler) settleWaitingStep(ctx context.Context, execution *models.WorkflowExecution) error {
	stepLogs, err := s.persistence.StepLogRepository().ListByExecution(ctx, execution.ID)
	if err != nil {
		return err
	}

	for _, stepLog := range stepLogs {
		if stepLog.Status != models.StepStatusWaiting {
			continue
		}

		now := time.Now().UTC()
		stepLog.Status = models.StepStatusSuccess
		stepLog.Output = stepLog.Input
		stepLog.SelectedBranch = models.BranchMain
		stepLog.FinishedAt = &now
		stepLog.DurationMS = now.Sub(stepLog.StartedAt).Milliseconds()

		if err := s.persistence.StepLogRepository().Update(ctx, stepLog); err != nil {
			return err
		}

		execution.CompletedSteps = append(execution.CompletedSteps, stepLog.NodeID)

		if execution.Results == nil {
			execution.Results = make(map[string]map[string]any)
		}

		execution.Results[stepLog.NodeID] = stepLog.Input

		if err := s.persistence.ExecutionRepository().Save(ctx, execution); err != nil {
			return err
		}
	}

	return nil
}

func (s *Scheduler) traverse(ctx context.Context, logger *slog.Logger, execution *models.WorkflowExecution, executionPlan *plan.ExecutionPlan) error {
	for {
		// Step boundary: re-read the record so pause and terminate
		// commands issued since the last step are observed.
		fresh, err := s.persistence.ExecutionRepository().GetByID(ctx, execution.ID)
		if err != nil {
			return err
		}

		execution = fresh

		if execution.Status == models.ExecutionStatusCancelled {
			logger.InfoContext(ctx, "Execution cancelled, stopping traversal")

			return nil
		}

		if execution.PauseRequested {
			return s.suspend(ctx, execution, execution.CurrentStep)
		}

		nodeID := nextReady(executionPlan, execution)
		if nodeID == "" {
			return s.completeExecution(ctx, logger, execution, executionPlan)
		}

		node := executionPlan.Node(nodeID)

		if node.Kind == models.NodeKindWait {
			return s.suspendAtWaitNode(ctx, logger, execution, node)
		}

		output, stepErr := s.runStep(ctx, logger, execution, node)
		if stepErr != nil {
			if errors.Is(stepErr, errRunAborted) {
				return nil
			}

			return s.failExecution(ctx, execution, nodeID, stepErr)
		}

		execution = s.recordStepResult(execution, node, output)

		// Control commands may have landed while the step was running. A
		// terminal status wins outright: its completion stamps and errored
		// step rows must not be overwritten with our in-memory copy.
		fresh, err = s.persistence.ExecutionRepository().GetByID(ctx, execution.ID)
		if err != nil {
			return err
		}

		if fresh.Status.IsTerminal() {
			return nil
		}

		execution.Status = fresh.Status
		execution.PauseRequested = fresh.PauseRequested

		if err := s.persistence.ExecutionRepository().Save(ctx, execution); err != nil {
			return err
		}

		s.publish(ctx, execution, events.StepFinished{
			BaseEvent: s.baseEvent(execution, events.StepFinishedEvent),
			NodeID:    nodeID,
			Branch:    output.Branch,
			Output:    output.Data,
		})
	}
}

// runStep invokes one node's executor, appending a step log row per
// attempt. It returns errRunAborted when the run was cancelled mid-step
// or during a backoff wait.
func (s *Scheduler) runStep(ctx context.Context, logger *slog.Logger, execution *models.WorkflowExecution, node *models.WorkflowNode) (*protocol.StepOutput, error) {
	input := map[string]any{
		"trigger": execution.TriggerPayload,
		"nodes":   execution.Results,
	}

	attempts := node.Retry.Attempts()

	for attempt := 1; ; attempt++ {
		stepLog := &models.StepLog{
			ID:          uuid.NewString(),
			ExecutionID: execution.ID,
			NodeID:      node.ID,
			StepName:    node.Name,
			Status:      models.StepStatusRunning,
			Attempt:     attempt,
			Input:       input,
			StartedAt:   time.Now().UTC(),
		}

		if err := s.persistence.StepLogRepository().Append(ctx, stepLog); err != nil {
			return nil, err
		}

		output, execErr := s.invokeExecutor(ctx, node, input)

		now := time.Now().UTC()
		stepLog.FinishedAt = &now
		stepLog.DurationMS = now.Sub(stepLog.StartedAt).Milliseconds()

		if execErr == nil {
			branch, branchErr := resolveBranch(node, output)
			if branchErr != nil {
				execErr = branchErr
			} else {
				output.Branch = branch
				stepLog.Status = models.StepStatusSuccess
				stepLog.Output = output.Data
				stepLog.SelectedBranch = branch

				if err := s.finishStepLog(ctx, stepLog); err != nil {
					return nil, err
				}

				return output, nil
			}
		}

		retryable := protocol.IsRetryable(execErr) && attempt < attempts

		stepLog.Error = execErr.Error()
		if retryable {
			stepLog.Status = models.StepStatusRetrying
		} else {
			stepLog.Status = models.StepStatusError
		}

		if err := s.finishStepLog(ctx, stepLog); err != nil {
			return nil, err
		}

		if !retryable {
			logger.ErrorContext(ctx, "Step failed permanently",
				"node_id", node.ID, "attempt", attempt, "error", execErr)

			s.publish(ctx, execution, events.StepFailed{
				BaseEvent: s.baseEvent(execution, events.StepFailedEvent),
				NodeID:    node.ID,
				Attempts:  attempt,
				Error:     execErr.Error(),
			})

			return nil, execErr
		}

		delay := computeBackoff(node.Retry, attempt)
		logger.WarnContext(ctx, "Step failed, retrying",
			"node_id", node.ID, "attempt", attempt, "backoff", delay, "error", execErr)

		if err := waitBackoff(ctx, delay); err != nil {
			return nil, errRunAborted
		}

		// Terminate is also observed inside the backoff wait.
		fresh, err := s.persistence.ExecutionRepository().GetByID(ctx, execution.ID)
		if err != nil {
			return nil, err
		}

		if fresh.Status == models.ExecutionStatusCancelled {
			return nil, errRunAborted
		}
	}
}

// finishStepLog persists a finished attempt row unless a terminate
// command settled the row while the step was in flight, in which case
// the cancelled outcome stands and the run stops.
func (s *Scheduler) finishStepLog(ctx context.Context, stepLog *models.StepLog) error {
	stepLogs, err := s.persistence.StepLogRepository().ListByExecution(ctx, stepLog.ExecutionID)
	if err != nil {
		return err
	}

	for _, persisted := range stepLogs {
		if persisted.ID == stepLog.ID && persisted.Status != models.StepStatusRunning {
			return errRunAborted
		}
	}

	return s.persistence.StepLogRepository().Update(ctx, stepLog)
}

func (s *Scheduler) invokeExecutor(ctx context.Context, node *models.WorkflowNode, input map[string]any) (*protocol.StepOutput, error) {
	executor, err := s.registry.CreateExecutor(ctx, node)
	if err != nil {
		return nil, protocol.PermanentError(err)
	}

	output, err := executor.Execute(ctx, node, input)
	if err != nil {
		return nil, err
	}

	if output == nil {
		output = &protocol.StepOutput{}
	}

	return output, nil
}

// resolveBranch decides which output group the traversal follows. A
// conditional node must name a branch; everything else flows out of the
// main group.
func resolveBranch(node *models.WorkflowNode, output *protocol.StepOutput) (string, error) {
	if node.Kind.IsConditional() {
		if output.Branch == "" {
			return "", protocol.PermanentError(fmt.Errorf("conditional node %s selected no branch", node.ID))
		}

		return output.Branch, nil
	}

	if output.Branch != "" {
		return output.Branch, nil
	}

	return models.BranchMain, nil
}

func (s *Scheduler) recordStepResult(execution *models.WorkflowExecution, node *models.WorkflowNode, output *protocol.StepOutput) *models.WorkflowExecution {
	if execution.Results == nil {
		execution.Results = make(map[string]map[string]any)
	}

	execution.Results[node.ID] = output.Data
	execution.CompletedSteps = append(execution.CompletedSteps, node.ID)

	nodeID := node.ID
	execution.CurrentStep = &nodeID

	if node.Kind.IsConditional() {
		if execution.SelectedBranches == nil {
			execution.SelectedBranches = make(map[string]string)
		}

		execution.SelectedBranches[node.ID] = output.Branch
	}

	return execution
}

// suspendAtWaitNode parks the execution at a wait node: a waiting step
// log row marks the node, the execution moves to waiting, and a resume
// command later settles the row and continues from its successors.
func (s *Scheduler) suspendAtWaitNode(ctx context.Context, logger *slog.Logger, execution *models.WorkflowExecution, node *models.WorkflowNode) error {
	stepLog := &models.StepLog{
		ID:          uuid.NewString(),
		ExecutionID: execution.ID,
		NodeID:      node.ID,
		StepName:    node.Name,
		Status:      models.StepStatusWaiting,
		Attempt:     1,
		Input: map[string]any{
			"trigger": execution.TriggerPayload,
			"nodes":   execution.Results,
		},
		StartedAt: time.Now().UTC(),
	}

	if err := s.persistence.StepLogRepository().Append(ctx, stepLog); err != nil {
		return err
	}

	logger.InfoContext(ctx, "Execution waiting at wait node", "node_id", node.ID)

	return s.suspend(ctx, execution, &node.ID)
}

// suspend moves a running execution into waiting at a step boundary.
func (s *Scheduler) suspend(ctx context.Context, execution *models.WorkflowExecution, currentStep *string) error {
	from := []models.ExecutionStatus{models.ExecutionStatusRunning}

	updated, err := s.persistence.ExecutionRepository().UpdateStatus(ctx, execution.ID, from, models.ExecutionStatusWaiting)
	if err != nil {
		if persistence.IsInvalidTransition(err) {
			// Terminated in between; the cancelled state wins.
			return nil
		}

		return err
	}

	updated.PauseRequested = false
	updated.CurrentStep = currentStep

	if err := s.persistence.ExecutionRepository().Save(ctx, updated); err != nil {
		return err
	}

	event := events.ExecutionPaused{BaseEvent: s.baseEvent(updated, events.ExecutionPausedEvent)}
	if currentStep != nil {
		event.NodeID = *currentStep
	}

	s.publish(ctx, updated, event)

	return nil
}

// completeExecution finalizes a run whose ready set drained without an
// error. Nodes the traversal never reached get explicit skipped rows so
// the attempt history reads the same way clients infer it.
func (s *Scheduler) completeExecution(ctx context.Context, logger *slog.Logger, execution *models.WorkflowExecution, executionPlan *plan.ExecutionPlan) error {
	now := time.Now().UTC()

	for _, nodeID := range unreachedNodes(executionPlan, execution) {
		node := executionPlan.Node(nodeID)

		skipped := &models.StepLog{
			ID:          uuid.NewString(),
			ExecutionID: execution.ID,
			NodeID:      nodeID,
			StepName:    node.Name,
			Status:      models.StepStatusSkipped,
			StartedAt:   now,
			FinishedAt:  &now,
		}

		if err := s.persistence.StepLogRepository().Append(ctx, skipped); err != nil {
			return err
		}
	}

	from := []models.ExecutionStatus{models.ExecutionStatusRunning}

	updated, err := s.persistence.ExecutionRepository().UpdateStatus(ctx, execution.ID, from, models.ExecutionStatusCompleted)
	if err != nil {
		if persistence.IsInvalidTransition(err) {
			return nil
		}

		return err
	}

	updated.CompletedAt = &now
	if updated.StartedAt != nil {
		updated.DurationMS = now.Sub(*updated.StartedAt).Milliseconds()
	}

	if err := s.persistence.ExecutionRepository().Save(ctx, updated); err != nil {
		return err
	}

	logger.InfoContext(ctx, "Execution completed", "duration_ms", updated.DurationMS)

	s.publish(ctx, updated, events.ExecutionCompleted{
		BaseEvent: s.baseEvent(updated, events.ExecutionCompletedEvent),
		Results:   updated.Results,
		Duration:  time.Duration(updated.DurationMS) * time.Millisecond,
	})

	return nil
}

// failExecution marks the run errored, attributing the failure to the
// step that exhausted its attempts.
func (s *Scheduler) failExecution(ctx context.Context, execution *models.WorkflowExecution, nodeID string, cause error) error {
	from := []models.ExecutionStatus{models.ExecutionStatusRunning, models.ExecutionStatusQueued}

	updated, err := s.persistence.ExecutionRepository().UpdateStatus(ctx, execution.ID, from, models.ExecutionStatusErrored)
	if err != nil {
		if persistence.IsInvalidTransition(err) {
			return nil
		}

		return err
	}

	now := time.Now().UTC()
	updated.ErrorMessage = cause.Error()
	updated.CompletedAt = &now

	if updated.StartedAt != nil {
		updated.DurationMS = now.Sub(*updated.StartedAt).Milliseconds()
	}

	if err := s.persistence.ExecutionRepository().Save(ctx, updated); err != nil {
		return err
	}

	s.logger.ErrorContext(ctx, "Execution errored",
		"execution_id", execution.ID, "node_id", nodeID, "error", cause)

	s.publish(ctx, updated, events.ExecutionFailed{
		BaseEvent: s.baseEvent(updated, events.ExecutionFailedEvent),
		NodeID:    nodeID,
		Error:     cause.Error(),
		Duration:  time.Duration(updated.DurationMS) * time.Millisecond,
	})

	return nil
}

func (s *Scheduler) baseEvent(execution *models.WorkflowExecution, eventType events.EventType) events.BaseEvent {
	return events.BaseEvent{
		ID:          uuid.NewString(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		WorkflowID:  execution.WorkflowID,
		ExecutionID: execution.ID,
		WorkerID:    s.workerID,
	}
}

func (s *Scheduler) publish(ctx context.Context, execution *models.WorkflowExecution, event eventbus.Event) {
	if s.eventBus == nil {
		return
	}

	if err := s.eventBus.Publish(ctx, execution.ID, event); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish event",
			"event_type", event.GetType(), "execution_id", execution.ID, "error", err)
	}
}
