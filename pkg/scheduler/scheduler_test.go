package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rivetflow/rivet/pkg/models"
	"github.com/rivetflow/rivet/pkg/persistence"
	"github.com/rivetflow/rivet/pkg/persistence/file"
	"github.com/rivetflow/rivet/pkg/protocol"
	"github.com/rivetflow/rivet/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyFactory registers an executor that always fails with a retryable
// error, to exercise the retry loop.
type flakyFactory struct{}

func (f *flakyFactory) Create(_ context.Context, _ *models.WorkflowNode) (protocol.NodeExecutor, error) {
	return &flakyExecutor{}, nil
}

func (f *flakyFactory) Type() string           { return "flaky" }
func (f *flakyFactory) Name() string           { return "Flaky" }
func (f *flakyFactory) Description() string    { return "Always fails with a retryable error" }
func (f *flakyFactory) Schema() map[string]any { return nil }

type flakyExecutor struct{}

func (e *flakyExecutor) Execute(_ context.Context, _ *models.WorkflowNode, _ map[string]any) (*protocol.StepOutput, error) {
	return nil, protocol.RetryableError(errors.New("upstream unavailable"))
}

// cancellingFactory registers an executor that terminates its own
// execution while the step is in flight, standing in for a concurrent
// terminate command landing mid-step.
type cancellingFactory struct {
	persistence persistence.Persistence
}

func (f *cancellingFactory) Create(_ context.Context, _ *models.WorkflowNode) (protocol.NodeExecutor, error) {
	return &cancellingExecutor{persistence: f.persistence}, nil
}

func (f *cancellingFactory) Type() string           { return "cancelling" }
func (f *cancellingFactory) Name() string           { return "Cancelling" }
func (f *cancellingFactory) Description() string    { return "Terminates the execution mid-step" }
func (f *cancellingFactory) Schema() map[string]any { return nil }

type cancellingExecutor struct {
	persistence persistence.Persistence
}

func (e *cancellingExecutor) Execute(ctx context.Context, node *models.WorkflowNode, _ map[string]any) (*protocol.StepOutput, error) {
	executionID, _ := node.Parameters["execution_id"].(string)

	from := []models.ExecutionStatus{models.ExecutionStatusRunning}

	execution, err := e.persistence.ExecutionRepository().UpdateStatus(ctx, executionID, from, models.ExecutionStatusCancelled)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	execution.CompletedAt = &now
	execution.DurationMS = 5

	if err := e.persistence.ExecutionRepository().Save(ctx, execution); err != nil {
		return nil, err
	}

	stepLogs, err := e.persistence.StepLogRepository().ListByExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}

	for _, stepLog := range stepLogs {
		if stepLog.Status != models.StepStatusRunning {
			continue
		}

		stepLog.Status = models.StepStatusError
		stepLog.Error = "execution terminated"
		stepLog.FinishedAt = &now

		if err := e.persistence.StepLogRepository().Update(ctx, stepLog); err != nil {
			return nil, err
		}
	}

	return &protocol.StepOutput{Data: map[string]any{"done": true}}, nil
}

func newTestScheduler(t *testing.T) (*Scheduler, persistence.Persistence) {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	reg := registry.NewRegistry(logger)
	reg.RegisterDefaultExecutors()
	reg.RegisterExecutor(&flakyFactory{})
	reg.RegisterExecutor(&cancellingFactory{persistence: p})

	return NewScheduler(logger, p, reg, nil, "worker-test"), p
}

func queueExecution(t *testing.T, p persistence.Persistence, workflow *models.Workflow, payload map[string]any) *models.WorkflowExecution {
	t.Helper()

	execution := &models.WorkflowExecution{
		ID:             uuid.NewString(),
		WorkflowID:     workflow.ID,
		Definition:     workflow,
		Status:         models.ExecutionStatusQueued,
		TriggerType:    models.TriggerTypeManual,
		TriggerPayload: payload,
		CreatedAt:      time.Now().UTC(),
	}

	require.NoError(t, p.ExecutionRepository().Create(context.Background(), execution))

	return execution
}

func echoNode(id string) *models.WorkflowNode {
	return &models.WorkflowNode{
		ID:   id,
		Kind: models.NodeKindAction,
		Type: "transform",
		Name: id,
		Parameters: map[string]any{
			"mapping": map[string]any{"echo": id},
		},
	}
}

func stepsByNode(t *testing.T, p persistence.Persistence, executionID string) map[string][]*models.StepLog {
	t.Helper()

	stepLogs, err := p.StepLogRepository().ListByExecution(context.Background(), executionID)
	require.NoError(t, err)

	byNode := make(map[string][]*models.StepLog)
	for _, stepLog := range stepLogs {
		byNode[stepLog.NodeID] = append(byNode[stepLog.NodeID], stepLog)
	}

	return byNode
}

func TestRun_BranchExclusivity(t *testing.T) {
	scheduler, p := newTestScheduler(t)

	workflow := &models.Workflow{
		ID: "wf-branch",
		Nodes: []*models.WorkflowNode{
			{ID: "trigger", Kind: models.NodeKindTrigger, Name: "Trigger"},
			{
				ID:   "check",
				Kind: models.NodeKindCondition,
				Name: "Check",
				Parameters: map[string]any{
					"condition": "{{ .trigger.approved }}",
				},
			},
			echoNode("yes"),
			echoNode("no"),
			echoNode("join"),
		},
		Connections: models.ConnectionMap{
			"trigger": {{Branch: models.BranchMain, Connections: []models.Connection{{TargetNode: "check"}}}},
			"check": {
				{Branch: "true", Connections: []models.Connection{{TargetNode: "yes"}}},
				{Branch: "false", Connections: []models.Connection{{TargetNode: "no"}}},
			},
			"yes": {{Branch: models.BranchMain, Connections: []models.Connection{{TargetNode: "join"}}}},
			"no":  {{Branch: models.BranchMain, Connections: []models.Connection{{TargetNode: "join"}}}},
		},
	}

	execution := queueExecution(t, p, workflow, map[string]any{"approved": true})

	require.NoError(t, scheduler.Run(context.Background(), execution.ID))

	final, err := p.ExecutionRepository().GetByID(context.Background(), execution.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, final.Status)
	assert.Equal(t, []string{"trigger", "check", "yes", "join"}, final.CompletedSteps)
	assert.Equal(t, "true", final.SelectedBranches["check"])
	assert.NotNil(t, final.StartedAt)
	assert.NotNil(t, final.CompletedAt)

	byNode := stepsByNode(t, p, execution.ID)

	require.Len(t, byNode["no"], 1)
	assert.Equal(t, models.StepStatusSkipped, byNode["no"][0].Status)

	require.Len(t, byNode["yes"], 1)
	assert.Equal(t, models.StepStatusSuccess, byNode["yes"][0].Status)
	assert.Equal(t, models.BranchMain, byNode["yes"][0].SelectedBranch)

	require.Len(t, byNode["check"], 1)
	assert.Equal(t, "true", byNode["check"][0].SelectedBranch)
}

func TestRun_WaitNodeSuspendsAndResumes(t *testing.T) {
	scheduler, p := newTestScheduler(t)

	workflow := &models.Workflow{
		ID: "wf-wait",
		Nodes: []*models.WorkflowNode{
			{ID: "trigger", Kind: models.NodeKindTrigger, Name: "Trigger"},
			{ID: "approval", Kind: models.NodeKindWait, Name: "Approval"},
			echoNode("notify"),
		},
		Connections: models.ConnectionMap{
			"trigger":  {{Branch: models.BranchMain, Connections: []models.Connection{{TargetNode: "approval"}}}},
			"approval": {{Branch: models.BranchMain, Connections: []models.Connection{{TargetNode: "notify"}}}},
		},
	}

	execution := queueExecution(t, p, workflow, map[string]any{"order": "42"})

	require.NoError(t, scheduler.Run(context.Background(), execution.ID))

	suspended, err := p.ExecutionRepository().GetByID(context.Background(), execution.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusWaiting, suspended.Status)
	require.NotNil(t, suspended.CurrentStep)
	assert.Equal(t, "approval", *suspended.CurrentStep)
	assert.Equal(t, []string{"trigger"}, suspended.CompletedSteps)

	byNode := stepsByNode(t, p, execution.ID)
	require.Len(t, byNode["approval"], 1)
	assert.Equal(t, models.StepStatusWaiting, byNode["approval"][0].Status)

	// A resume command moves the execution back to running, then a worker
	// re-runs it from the persisted traversal state.
	from := []models.ExecutionStatus{models.ExecutionStatusWaiting}
	_, err = p.ExecutionRepository().UpdateStatus(context.Background(), execution.ID, from, models.ExecutionStatusRunning)
	require.NoError(t, err)

	require.NoError(t, scheduler.Run(context.Background(), execution.ID))

	final, err := p.ExecutionRepository().GetByID(context.Background(), execution.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, final.Status)
	assert.Equal(t, []string{"trigger", "approval", "notify"}, final.CompletedSteps)

	byNode = stepsByNode(t, p, execution.ID)
	require.Len(t, byNode["approval"], 1)
	assert.Equal(t, models.StepStatusSuccess, byNode["approval"][0].Status)
	assert.Equal(t, models.BranchMain, byNode["approval"][0].SelectedBranch)
}

func TestRun_RetryExhaustion(t *testing.T) {
	scheduler, p := newTestScheduler(t)

	workflow := &models.Workflow{
		ID: "wf-retry",
		Nodes: []*models.WorkflowNode{
			{ID: "trigger", Kind: models.NodeKindTrigger, Name: "Trigger"},
			{
				ID:   "fetch",
				Kind: models.NodeKindAction,
				Type: "flaky",
				Name: "Fetch",
				Retry: &models.RetryPolicy{
					MaxAttempts: 3,
					Backoff:     models.BackoffFixed,
					Interval:    "1ms",
				},
			},
		},
		Connections: models.ConnectionMap{
			"trigger": {{Branch: models.BranchMain, Connections: []models.Connection{{TargetNode: "fetch"}}}},
		},
	}

	execution := queueExecution(t, p, workflow, nil)

	require.NoError(t, scheduler.Run(context.Background(), execution.ID))

	final, err := p.ExecutionRepository().GetByID(context.Background(), execution.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusErrored, final.Status)
	assert.Contains(t, final.ErrorMessage, "upstream unavailable")
	assert.NotNil(t, final.CompletedAt)

	byNode := stepsByNode(t, p, execution.ID)
	require.Len(t, byNode["fetch"], 3)

	assert.Equal(t, 1, byNode["fetch"][0].Attempt)
	assert.Equal(t, models.StepStatusRetrying, byNode["fetch"][0].Status)
	assert.Equal(t, 2, byNode["fetch"][1].Attempt)
	assert.Equal(t, models.StepStatusRetrying, byNode["fetch"][1].Status)
	assert.Equal(t, 3, byNode["fetch"][2].Attempt)
	assert.Equal(t, models.StepStatusError, byNode["fetch"][2].Status)
}

func TestRun_TerminalExecutionIsNoOp(t *testing.T) {
	scheduler, p := newTestScheduler(t)

	workflow := &models.Workflow{
		ID: "wf-noop",
		Nodes: []*models.WorkflowNode{
			{ID: "trigger", Kind: models.NodeKindTrigger, Name: "Trigger"},
		},
	}

	execution := queueExecution(t, p, workflow, nil)

	from := []models.ExecutionStatus{models.ExecutionStatusQueued}
	_, err := p.ExecutionRepository().UpdateStatus(context.Background(), execution.ID, from, models.ExecutionStatusCancelled)
	require.NoError(t, err)

	require.NoError(t, scheduler.Run(context.Background(), execution.ID))

	final, err := p.ExecutionRepository().GetByID(context.Background(), execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCancelled, final.Status)

	stepLogs, err := p.StepLogRepository().ListByExecution(context.Background(), execution.ID)
	require.NoError(t, err)
	assert.Empty(t, stepLogs)
}

func TestRun_TerminateRaceAtStart(t *testing.T) {
	scheduler, p := newTestScheduler(t)

	workflow := &models.Workflow{
		ID: "wf-race",
		Nodes: []*models.WorkflowNode{
			{ID: "trigger", Kind: models.NodeKindTrigger, Name: "Trigger"},
			echoNode("work"),
		},
		Connections: models.ConnectionMap{
			"trigger": {{Branch: models.BranchMain, Connections: []models.Connection{{TargetNode: "work"}}}},
		},
	}

	execution := queueExecution(t, p, workflow, nil)

	// Stale copy loaded before a terminate command lands.
	stale, err := p.ExecutionRepository().GetByID(context.Background(), execution.ID)
	require.NoError(t, err)

	from := []models.ExecutionStatus{models.ExecutionStatusQueued}
	_, err = p.ExecutionRepository().UpdateStatus(context.Background(), execution.ID, from, models.ExecutionStatusCancelled)
	require.NoError(t, err)

	// The lost start transition is a clean abort, never a crash.
	_, err = scheduler.markRunning(context.Background(), stale)
	require.ErrorIs(t, err, errRunAborted)

	require.NoError(t, scheduler.Run(context.Background(), execution.ID))

	final, err := p.ExecutionRepository().GetByID(context.Background(), execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCancelled, final.Status)
	assert.Empty(t, final.CompletedSteps)
}

func TestRun_TerminateMidStepPreservesCancellation(t *testing.T) {
	scheduler, p := newTestScheduler(t)

	executionID := uuid.NewString()

	workflow := &models.Workflow{
		ID: "wf-midstep",
		Nodes: []*models.WorkflowNode{
			{ID: "trigger", Kind: models.NodeKindTrigger, Name: "Trigger"},
			{
				ID:   "halt",
				Kind: models.NodeKindAction,
				Type: "cancelling",
				Name: "Halt",
				Parameters: map[string]any{
					"execution_id": executionID,
				},
			},
			echoNode("work"),
		},
		Connections: models.ConnectionMap{
			"trigger": {{Branch: models.BranchMain, Connections: []models.Connection{{TargetNode: "halt"}}}},
			"halt":    {{Branch: models.BranchMain, Connections: []models.Connection{{TargetNode: "work"}}}},
		},
	}

	execution := &models.WorkflowExecution{
		ID:          executionID,
		WorkflowID:  workflow.ID,
		Definition:  workflow,
		Status:      models.ExecutionStatusQueued,
		TriggerType: models.TriggerTypeManual,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, p.ExecutionRepository().Create(context.Background(), execution))

	require.NoError(t, scheduler.Run(context.Background(), executionID))

	final, err := p.ExecutionRepository().GetByID(context.Background(), executionID)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCancelled, final.Status)
	require.NotNil(t, final.CompletedAt, "termination stamps survive the post-step write")
	assert.Equal(t, int64(5), final.DurationMS)

	byNode := stepsByNode(t, p, executionID)
	require.Len(t, byNode["halt"], 1)
	assert.Equal(t, models.StepStatusError, byNode["halt"][0].Status)
	assert.Equal(t, "execution terminated", byNode["halt"][0].Error)
	assert.Empty(t, byNode["work"], "no step may start after termination")
}

func TestRun_PauseRequestedSuspendsAtBoundary(t *testing.T) {
	scheduler, p := newTestScheduler(t)

	workflow := &models.Workflow{
		ID: "wf-pause",
		Nodes: []*models.WorkflowNode{
			{ID: "trigger", Kind: models.NodeKindTrigger, Name: "Trigger"},
			echoNode("work"),
		},
		Connections: models.ConnectionMap{
			"trigger": {{Branch: models.BranchMain, Connections: []models.Connection{{TargetNode: "work"}}}},
		},
	}

	execution := queueExecution(t, p, workflow, nil)

	execution.PauseRequested = true
	require.NoError(t, p.ExecutionRepository().Save(context.Background(), execution))

	require.NoError(t, scheduler.Run(context.Background(), execution.ID))

	final, err := p.ExecutionRepository().GetByID(context.Background(), execution.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusWaiting, final.Status)
	assert.False(t, final.PauseRequested)
	assert.Empty(t, final.CompletedSteps, "no step may start once a pause is pending")
}

func TestRun_InvalidDefinitionErrors(t *testing.T) {
	scheduler, p := newTestScheduler(t)

	workflow := &models.Workflow{
		ID: "wf-bad",
		Nodes: []*models.WorkflowNode{
			echoNode("work"),
		},
	}

	execution := queueExecution(t, p, workflow, nil)

	require.NoError(t, scheduler.Run(context.Background(), execution.ID))

	final, err := p.ExecutionRepository().GetByID(context.Background(), execution.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusErrored, final.Status)
	assert.Contains(t, final.ErrorMessage, "does not compile")
}

func TestResolveBranch(t *testing.T) {
	conditional := &models.WorkflowNode{ID: "check", Kind: models.NodeKindCondition}
	action := &models.WorkflowNode{ID: "work", Kind: models.NodeKindAction}

	branch, err := resolveBranch(conditional, &protocol.StepOutput{Branch: "true"})
	require.NoError(t, err)
	assert.Equal(t, "true", branch)

	_, err = resolveBranch(conditional, &protocol.StepOutput{})
	require.Error(t, err)
	assert.False(t, protocol.IsRetryable(err))

	branch, err = resolveBranch(action, &protocol.StepOutput{})
	require.NoError(t, err)
	assert.Equal(t, models.BranchMain, branch)
}
