package services

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/rivetflow/rivet/pkg/models"
	"github.com/rivetflow/rivet/pkg/persistence"
	"github.com/rivetflow/rivet/pkg/persistence/file"
	"github.com/rivetflow/rivet/pkg/plan"
	"github.com/rivetflow/rivet/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWorkflowService(t *testing.T) (*Workflow, persistence.Persistence) {
	t.Helper()

	p := file.NewPersistence(t.TempDir())

	reg := registry.NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
	reg.RegisterDefaultExecutors()

	return NewWorkflow(p, reg), p
}

func TestWorkflowCreate(t *testing.T) {
	service, _ := newWorkflowService(t)

	workflow := validWorkflow("")
	workflow.ID = ""

	created, warnings, err := service.Create(context.Background(), workflow)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, 1, created.Version)
	assert.True(t, created.Active)
	assert.False(t, created.CreatedAt.IsZero())
}

func TestWorkflowCreate_Invalid(t *testing.T) {
	service, _ := newWorkflowService(t)

	tests := []struct {
		name     string
		mutate   func(w *models.Workflow)
		expected error
	}{
		{
			name:     "missing name",
			mutate:   func(w *models.Workflow) { w.Name = "" },
			expected: ErrWorkflowNameRequired,
		},
		{
			name:     "no nodes",
			mutate:   func(w *models.Workflow) { w.Nodes = nil },
			expected: ErrNodesRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			workflow := validWorkflow("wf-1")
			tt.mutate(workflow)

			_, _, err := service.Create(context.Background(), workflow)
			require.ErrorIs(t, err, tt.expected)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestWorkflowCreate_NilWorkflow(t *testing.T) {
	service, _ := newWorkflowService(t)

	_, _, err := service.Create(context.Background(), nil)
	require.ErrorIs(t, err, ErrWorkflowNil)
}

func TestWorkflowValidate_GraphErrors(t *testing.T) {
	service, _ := newWorkflowService(t)

	workflow := validWorkflow("wf-1")
	workflow.Connections = models.ConnectionMap{
		"trigger": {{Branch: models.BranchMain, Connections: []models.Connection{{TargetNode: "ghost"}}}},
	}

	findings, err := service.Validate(workflow)
	require.Error(t, err)

	var graphErr *GraphValidationError
	require.ErrorAs(t, err, &graphErr)
	assert.NotEmpty(t, findings)
	assert.Equal(t, plan.CodeDanglingEdge, graphErr.Errors[0].Code)
}

func TestWorkflowValidate_RejectsBadParameters(t *testing.T) {
	service, _ := newWorkflowService(t)

	workflow := validWorkflow("wf-1")
	// The transform executor requires a mapping parameter.
	workflow.NodeByID("work").Parameters = map[string]any{}

	_, err := service.Validate(workflow)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestWorkflowValidate_UnreachableIsWarningOnly(t *testing.T) {
	service, _ := newWorkflowService(t)

	workflow := validWorkflow("wf-1")
	workflow.Nodes = append(workflow.Nodes, &models.WorkflowNode{
		ID:   "orphan",
		Kind: models.NodeKindAction,
		Type: "transform",
		Name: "Orphan",
		Parameters: map[string]any{
			"mapping": map[string]any{"echo": "never"},
		},
	})

	findings, err := service.Validate(workflow)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.True(t, findings[0].Warning)
}

func TestWorkflowUpdate_BumpsVersion(t *testing.T) {
	service, _ := newWorkflowService(t)

	created, _, err := service.Create(context.Background(), validWorkflow("wf-1"))
	require.NoError(t, err)

	created.Name = "Order processing v2"

	updated, _, err := service.Update(context.Background(), created)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
}

func TestWorkflowDelete_RemovesBindings(t *testing.T) {
	service, p := newWorkflowService(t)

	_, _, err := service.Create(context.Background(), validWorkflow("wf-1"))
	require.NoError(t, err)

	webhooks := NewWebhook(p)

	_, err = webhooks.CreateBinding(context.Background(), &models.WebhookBinding{
		WorkflowID: "wf-1",
		Path:       "/orders",
		Method:     "POST",
	})
	require.NoError(t, err)

	require.NoError(t, service.Delete(context.Background(), "wf-1"))

	bindings, err := webhooks.ListBindings(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.Empty(t, bindings)

	_, err = service.Get(context.Background(), "wf-1")
	require.ErrorIs(t, err, ErrWorkflowNotFound)
}
