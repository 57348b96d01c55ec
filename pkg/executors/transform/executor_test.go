package transform

import (
	"context"
	"testing"

	"github.com/rivetflow/rivet/pkg/models"
	"github.com/rivetflow/rivet/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func transformNode(mapping map[string]any) *models.WorkflowNode {
	return &models.WorkflowNode{
		ID:         "shape",
		Kind:       models.NodeKindAction,
		Type:       "transform",
		Name:       "Shape",
		Parameters: map[string]any{"mapping": mapping},
	}
}

func TestNewExecutor_MissingMapping(t *testing.T) {
	_, err := NewExecutor(&models.WorkflowNode{ID: "shape", Parameters: map[string]any{}})
	require.Error(t, err)
}

func TestNewExecutor_NonStringExpression(t *testing.T) {
	_, err := NewExecutor(transformNode(map[string]any{"total": 42}))
	require.Error(t, err)
}

func TestExecute_RendersMapping(t *testing.T) {
	node := transformNode(map[string]any{
		"order_id": "{{ .trigger.order.id }}",
		"total":    "{{ .trigger.order.total }}",
		"source":   "webhook",
	})

	executor, err := NewExecutor(node)
	require.NoError(t, err)

	output, err := executor.Execute(context.Background(), node, map[string]any{
		"trigger": map[string]any{
			"order": map[string]any{"id": "ord-1", "total": 99.5},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "ord-1", output.Data["order_id"])
	assert.InDelta(t, 99.5, output.Data["total"], 0.001)
	assert.Equal(t, "webhook", output.Data["source"])
	assert.Empty(t, output.Branch)
}

func TestExecute_RenderFailureIsPermanent(t *testing.T) {
	node := transformNode(map[string]any{"bad": "{{ call .missing }}"})

	executor, err := NewExecutor(node)
	require.NoError(t, err)

	_, err = executor.Execute(context.Background(), node, map[string]any{})
	require.Error(t, err)
	assert.False(t, protocol.IsRetryable(err))
}
