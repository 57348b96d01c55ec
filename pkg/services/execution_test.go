package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rivetflow/rivet/pkg/eventbus"
	"github.com/rivetflow/rivet/pkg/events"
	"github.com/rivetflow/rivet/pkg/models"
	"github.com/rivetflow/rivet/pkg/persistence"
	"github.com/rivetflow/rivet/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingBus captures published events for assertions.
type recordingBus struct {
	published []eventbus.Event
}

func (b *recordingBus) Publish(_ context.Context, _ string, event eventbus.Event) error {
	b.published = append(b.published, event)

	return nil
}

func (b *recordingBus) Handle(_ events.EventType, _ eventbus.EventHandler) error { return nil }
func (b *recordingBus) Subscribe(_ context.Context) error                        { return nil }
func (b *recordingBus) Close() error                                             { return nil }
func (b *recordingBus) GenerateID() string                                       { return uuid.NewString() }

func (b *recordingBus) types() []events.EventType {
	eventTypes := make([]events.EventType, 0, len(b.published))
	for _, event := range b.published {
		eventTypes = append(eventTypes, event.GetType())
	}

	return eventTypes
}

func newExecutionService(t *testing.T) (*Execution, persistence.Persistence, *recordingBus) {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	bus := &recordingBus{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewExecution(logger, p, bus), p, bus
}

func saveWorkflow(t *testing.T, p persistence.Persistence, workflow *models.Workflow) {
	t.Helper()
	require.NoError(t, p.WorkflowRepository().Save(context.Background(), workflow))
}

func validWorkflow(id string) *models.Workflow {
	return &models.Workflow{
		ID:   id,
		Name: "Order processing",
		Nodes: []*models.WorkflowNode{
			{ID: "trigger", Kind: models.NodeKindTrigger, Name: "Trigger"},
			{
				ID:   "work",
				Kind: models.NodeKindAction,
				Type: "transform",
				Name: "Work",
				Parameters: map[string]any{
					"mapping": map[string]any{"echo": "done"},
				},
			},
		},
		Connections: models.ConnectionMap{
			"trigger": {{Branch: models.BranchMain, Connections: []models.Connection{{TargetNode: "work"}}}},
		},
		Active:  true,
		Version: 1,
	}
}

func TestExecute_QueuesAndDispatches(t *testing.T) {
	service, p, bus := newExecutionService(t)

	saveWorkflow(t, p, validWorkflow("wf-1"))

	execution, err := service.Execute(context.Background(), ExecuteRequest{
		WorkflowID: "wf-1",
		Payload:    map[string]any{"order": "42"},
	})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusQueued, execution.Status)
	assert.Equal(t, models.TriggerTypeManual, execution.TriggerType)
	assert.NotNil(t, execution.Definition, "the definition snapshot must travel with the execution")

	require.Len(t, bus.published, 1)
	assert.Equal(t, events.ExecutionQueuedEvent, bus.published[0].GetType())
}

func TestExecute_InactiveWorkflow(t *testing.T) {
	service, p, bus := newExecutionService(t)

	workflow := validWorkflow("wf-1")
	workflow.Active = false
	saveWorkflow(t, p, workflow)

	_, err := service.Execute(context.Background(), ExecuteRequest{WorkflowID: "wf-1"})
	require.ErrorIs(t, err, ErrWorkflowInactive)
	assert.Empty(t, bus.published)

	executions, err := p.ExecutionRepository().ListByWorkflow(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.Empty(t, executions, "a rejected dispatch must not create an execution")
}

func TestExecute_InvalidGraphCreatesNoExecution(t *testing.T) {
	service, p, bus := newExecutionService(t)

	workflow := validWorkflow("wf-1")
	workflow.Nodes = workflow.Nodes[1:] // drop the trigger
	workflow.Connections = nil
	saveWorkflow(t, p, workflow)

	_, err := service.Execute(context.Background(), ExecuteRequest{WorkflowID: "wf-1"})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.Empty(t, bus.published)

	executions, err := p.ExecutionRepository().ListByWorkflow(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.Empty(t, executions)
}

func TestExecute_IdempotentInstanceID(t *testing.T) {
	service, p, _ := newExecutionService(t)

	saveWorkflow(t, p, validWorkflow("wf-1"))

	first, err := service.Execute(context.Background(), ExecuteRequest{
		WorkflowID: "wf-1",
		InstanceID: "order-42",
	})
	require.NoError(t, err)

	second, err := service.Execute(context.Background(), ExecuteRequest{
		WorkflowID: "wf-1",
		InstanceID: "order-42",
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "the same instance id must not create a second execution")
}

func TestPause_RequiresRunning(t *testing.T) {
	service, p, _ := newExecutionService(t)

	saveWorkflow(t, p, validWorkflow("wf-1"))

	execution, err := service.Execute(context.Background(), ExecuteRequest{WorkflowID: "wf-1"})
	require.NoError(t, err)

	err = service.Pause(context.Background(), execution.ID)
	require.Error(t, err)
	assert.True(t, IsControlError(err))
}

func TestResume_RequiresWaiting(t *testing.T) {
	service, p, bus := newExecutionService(t)

	saveWorkflow(t, p, validWorkflow("wf-1"))

	execution, err := service.Execute(context.Background(), ExecuteRequest{WorkflowID: "wf-1"})
	require.NoError(t, err)

	err = service.Resume(context.Background(), execution.ID)
	require.Error(t, err)
	assert.True(t, IsControlError(err))

	// Move it to waiting as the scheduler would, then resume for real.
	markStatus(t, p, execution.ID, models.ExecutionStatusQueued, models.ExecutionStatusRunning)
	markStatus(t, p, execution.ID, models.ExecutionStatusRunning, models.ExecutionStatusWaiting)

	require.NoError(t, service.Resume(context.Background(), execution.ID))

	fresh, err := p.ExecutionRepository().GetByID(context.Background(), execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, fresh.Status)
	assert.Contains(t, bus.types(), events.ExecutionResumeRequestedEvent)
}

func TestTerminate_IsIdempotent(t *testing.T) {
	service, p, bus := newExecutionService(t)

	saveWorkflow(t, p, validWorkflow("wf-1"))

	execution, err := service.Execute(context.Background(), ExecuteRequest{WorkflowID: "wf-1"})
	require.NoError(t, err)

	markStatus(t, p, execution.ID, models.ExecutionStatusQueued, models.ExecutionStatusRunning)

	// An in-flight step row shows where the run was cut off.
	stepLog := &models.StepLog{
		ID:          uuid.NewString(),
		ExecutionID: execution.ID,
		NodeID:      "work",
		StepName:    "Work",
		Status:      models.StepStatusRunning,
		Attempt:     1,
		StartedAt:   time.Now().UTC(),
	}
	require.NoError(t, p.StepLogRepository().Append(context.Background(), stepLog))

	require.NoError(t, service.Terminate(context.Background(), execution.ID))

	fresh, err := p.ExecutionRepository().GetByID(context.Background(), execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCancelled, fresh.Status)
	assert.NotNil(t, fresh.CompletedAt)

	stepLogs, err := p.StepLogRepository().ListByExecution(context.Background(), execution.ID)
	require.NoError(t, err)
	require.Len(t, stepLogs, 1)
	assert.Equal(t, models.StepStatusError, stepLogs[0].Status)
	assert.Equal(t, "execution terminated", stepLogs[0].Error)

	cancelled := 0

	for _, eventType := range bus.types() {
		if eventType == events.ExecutionCancelledEvent {
			cancelled++
		}
	}

	assert.Equal(t, 1, cancelled)

	// A second terminate of a terminal execution is a clean no-op.
	require.NoError(t, service.Terminate(context.Background(), execution.ID))
	require.NoError(t, service.Terminate(context.Background(), execution.ID))
}

func TestSteps_UnknownExecution(t *testing.T) {
	service, _, _ := newExecutionService(t)

	_, err := service.Steps(context.Background(), "missing")
	require.ErrorIs(t, err, ErrExecutionNotFound)
}

func markStatus(t *testing.T, p persistence.Persistence, id string, from, to models.ExecutionStatus) {
	t.Helper()

	_, err := p.ExecutionRepository().UpdateStatus(context.Background(), id, []models.ExecutionStatus{from}, to)
	require.NoError(t, err)
}
