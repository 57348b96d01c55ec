package condition

import (
	"context"
	"testing"

	"github.com/rivetflow/rivet/pkg/models"
	"github.com/rivetflow/rivet/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func conditionNode(expr string) *models.WorkflowNode {
	return &models.WorkflowNode{
		ID:         "check",
		Kind:       models.NodeKindCondition,
		Name:       "Check",
		Parameters: map[string]any{"condition": expr},
	}
}

func TestNewExecutor_MissingCondition(t *testing.T) {
	_, err := NewExecutor(&models.WorkflowNode{ID: "check", Parameters: map[string]any{}})
	require.Error(t, err)
}

func TestExecute_SelectsBranch(t *testing.T) {
	tests := []struct {
		name     string
		expr     string
		input    map[string]any
		expected string
	}{
		{
			name:     "boolean true",
			expr:     "{{ .trigger.approved }}",
			input:    map[string]any{"trigger": map[string]any{"approved": true}},
			expected: BranchTrue,
		},
		{
			name:     "boolean false",
			expr:     "{{ .trigger.approved }}",
			input:    map[string]any{"trigger": map[string]any{"approved": false}},
			expected: BranchFalse,
		},
		{
			name:     "nonzero number",
			expr:     "{{ .trigger.amount }}",
			input:    map[string]any{"trigger": map[string]any{"amount": 42}},
			expected: BranchTrue,
		},
		{
			name:     "comparison",
			expr:     "{{ gt (len .trigger.items) 0 }}",
			input:    map[string]any{"trigger": map[string]any{"items": []any{"a"}}},
			expected: BranchTrue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := conditionNode(tt.expr)

			executor, err := NewExecutor(node)
			require.NoError(t, err)

			output, err := executor.Execute(context.Background(), node, tt.input)
			require.NoError(t, err)

			assert.Equal(t, tt.expected, output.Branch)
			assert.Equal(t, tt.expected == BranchTrue, output.Data["condition_result"])
		})
	}
}

func TestExecute_EvaluationFailureIsPermanent(t *testing.T) {
	node := conditionNode("{{ call .missing }}")

	executor, err := NewExecutor(node)
	require.NoError(t, err)

	_, err = executor.Execute(context.Background(), node, map[string]any{})
	require.Error(t, err)
	assert.False(t, protocol.IsRetryable(err))
}
