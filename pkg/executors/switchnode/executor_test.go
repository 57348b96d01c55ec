package switchnode

import (
	"context"
	"testing"

	"github.com/rivetflow/rivet/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func switchNode(value string, cases []any) *models.WorkflowNode {
	return &models.WorkflowNode{
		ID:   "route",
		Kind: models.NodeKindSwitch,
		Name: "Route",
		Parameters: map[string]any{
			"value": value,
			"cases": cases,
		},
	}
}

func TestNewExecutor_MissingValue(t *testing.T) {
	_, err := NewExecutor(&models.WorkflowNode{ID: "route", Parameters: map[string]any{}})
	require.Error(t, err)
}

func TestNewExecutor_MalformedCase(t *testing.T) {
	node := switchNode("{{ .trigger.tier }}", []any{
		map[string]any{"value": "gold"},
	})

	_, err := NewExecutor(node)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "branch")
}

func TestExecute_MatchesCase(t *testing.T) {
	node := switchNode("{{ .trigger.tier }}", []any{
		map[string]any{"value": "gold", "branch": "vip"},
		map[string]any{"value": "silver", "branch": "standard"},
	})

	executor, err := NewExecutor(node)
	require.NoError(t, err)

	output, err := executor.Execute(context.Background(), node, map[string]any{
		"trigger": map[string]any{"tier": "gold"},
	})
	require.NoError(t, err)

	assert.Equal(t, "vip", output.Branch)
	assert.Equal(t, "gold", output.Data["matched_value"])
}

func TestExecute_FallsBackToDefault(t *testing.T) {
	node := switchNode("{{ .trigger.tier }}", []any{
		map[string]any{"value": "gold", "branch": "vip"},
	})

	executor, err := NewExecutor(node)
	require.NoError(t, err)

	output, err := executor.Execute(context.Background(), node, map[string]any{
		"trigger": map[string]any{"tier": "bronze"},
	})
	require.NoError(t, err)

	assert.Equal(t, BranchDefault, output.Branch)
	assert.Equal(t, true, output.Data["no_match"])
}
