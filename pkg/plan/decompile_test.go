package plan

import (
	"testing"

	"github.com/rivetflow/rivet/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecompile_RoundTrip(t *testing.T) {
	original := &models.Workflow{
		ID: "wf-1",
		Nodes: []*models.WorkflowNode{
			{
				ID:       "trigger",
				Kind:     models.NodeKindTrigger,
				Name:     "Trigger",
				Position: models.Position{X: 10, Y: 20},
			},
			{
				ID:   "check",
				Kind: models.NodeKindCondition,
				Name: "Check",
				Parameters: map[string]any{
					"condition": "{{ .trigger.approved }}",
				},
			},
			{ID: "yes", Kind: models.NodeKindAction, Name: "Yes"},
			{ID: "no", Kind: models.NodeKindAction, Name: "No"},
		},
		Connections: models.ConnectionMap{
			"trigger": {{Branch: models.BranchMain, Connections: []models.Connection{{TargetNode: "check"}}}},
			"check": {
				{Branch: "true", Connections: []models.Connection{{TargetNode: "yes", Label: "approved"}}},
				{Branch: "false", Connections: []models.Connection{{TargetNode: "no"}}},
			},
		},
	}

	executionPlan, errs := Compile(original)
	require.NotNil(t, executionPlan)
	require.Empty(t, errs)

	decompiled := Decompile(executionPlan)

	assert.Equal(t, original.ID, decompiled.ID)
	assert.Equal(t, original.Nodes, decompiled.Nodes)
	assert.Equal(t, original.Connections, decompiled.Connections)

	// Editor positions survive the round trip.
	assert.Equal(t, 10, decompiled.NodeByID("trigger").Position.X)

	// The decompiled graph compiles back to an equivalent plan.
	recompiled, errs := Compile(decompiled)
	require.NotNil(t, recompiled)
	require.Empty(t, errs)
	assert.Equal(t, executionPlan.Order, recompiled.Order)
}
