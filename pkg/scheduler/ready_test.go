package scheduler

import (
	"testing"

	"github.com/rivetflow/rivet/pkg/models"
	"github.com/rivetflow/rivet/pkg/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// branchedWorkflow builds trigger -> check -> (yes | no) -> join.
func branchedWorkflow() *models.Workflow {
	return &models.Workflow{
		ID: "wf-1",
		Nodes: []*models.WorkflowNode{
			{ID: "trigger", Kind: models.NodeKindTrigger, Name: "Trigger"},
			{ID: "check", Kind: models.NodeKindCondition, Name: "Check"},
			{ID: "yes", Kind: models.NodeKindAction, Name: "Yes"},
			{ID: "no", Kind: models.NodeKindAction, Name: "No"},
			{ID: "join", Kind: models.NodeKindAction, Name: "Join"},
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
}

func compileBranched(t *testing.T) *plan.ExecutionPlan {
	t.Helper()

	executionPlan, errs := plan.Compile(branchedWorkflow())
	require.NotNil(t, executionPlan)
	require.Empty(t, errs)

	return executionPlan
}

func TestNextReady_FreshExecution(t *testing.T) {
	executionPlan := compileBranched(t)
	execution := &models.WorkflowExecution{ID: "ex-1"}

	assert.Equal(t, "trigger", nextReady(executionPlan, execution))
}

func TestNextReady_FollowsSelectedBranch(t *testing.T) {
	executionPlan := compileBranched(t)
	execution := &models.WorkflowExecution{
		ID:               "ex-1",
		CompletedSteps:   []string{"trigger", "check"},
		SelectedBranches: map[string]string{"check": "true"},
	}

	assert.Equal(t, "yes", nextReady(executionPlan, execution))

	live := liveNodes(executionPlan, execution)
	assert.True(t, live["yes"])
	assert.False(t, live["no"], "node on the unselected branch must not be live")
	assert.True(t, live["join"])
}

func TestNextReady_JoinWaitsOnlyForLivePredecessors(t *testing.T) {
	executionPlan := compileBranched(t)
	execution := &models.WorkflowExecution{
		ID:               "ex-1",
		CompletedSteps:   []string{"trigger", "check", "yes"},
		SelectedBranches: map[string]string{"check": "true"},
	}

	// "no" never runs; the join must not wait for it.
	assert.Equal(t, "join", nextReady(executionPlan, execution))
}

func TestNextReady_Exhausted(t *testing.T) {
	executionPlan := compileBranched(t)
	execution := &models.WorkflowExecution{
		ID:               "ex-1",
		CompletedSteps:   []string{"trigger", "check", "yes", "join"},
		SelectedBranches: map[string]string{"check": "true"},
	}

	assert.Empty(t, nextReady(executionPlan, execution))
}

func TestUnreachedNodes(t *testing.T) {
	executionPlan := compileBranched(t)
	execution := &models.WorkflowExecution{
		ID:               "ex-1",
		CompletedSteps:   []string{"trigger", "check", "yes", "join"},
		SelectedBranches: map[string]string{"check": "true"},
	}

	assert.Equal(t, []string{"no"}, unreachedNodes(executionPlan, execution))
}
