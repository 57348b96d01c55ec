package scheduler

import (
	"github.com/rivetflow/rivet/pkg/models"
	"github.com/rivetflow/rivet/pkg/plan"
)

// liveNodes computes which nodes can still be reached given the branches
// selected so far. Triggers are always live; any other node is live when
// at least one inbound edge comes from a live source that either has not
// run yet or, having run, actually selected that edge's branch.
func liveNodes(executionPlan *plan.ExecutionPlan, execution *models.WorkflowExecution) map[string]bool {
	live := make(map[string]bool, len(executionPlan.Order))

	for _, id := range executionPlan.Order {
		node := executionPlan.Node(id)
		if node.Kind == models.NodeKindTrigger {
			live[id] = true

			continue
		}

		for _, edge := range executionPlan.InboundEdges(id) {
			if !live[edge.Source] {
				continue
			}

			if edgeTraversable(executionPlan, execution, edge) {
				live[id] = true

				break
			}
		}
	}

	return live
}

// edgeTraversable reports whether an edge can still carry the run forward.
// Edges out of a finished conditional node survive only on the selected
// branch; edges out of an unfinished node are still open.
func edgeTraversable(executionPlan *plan.ExecutionPlan, execution *models.WorkflowExecution, edge plan.Edge) bool {
	if !execution.HasCompleted(edge.Source) {
		return true
	}

	source := executionPlan.Node(edge.Source)
	if !source.Kind.IsConditional() {
		return true
	}

	return execution.SelectedBranches[edge.Source] == edge.Branch
}

// nextReady returns the first node in topological order that is live, has
// not run, and has no live unfinished predecessor left. An empty result
// means the traversal is exhausted.
func nextReady(executionPlan *plan.ExecutionPlan, execution *models.WorkflowExecution) string {
	live := liveNodes(executionPlan, execution)

	for _, id := range executionPlan.Order {
		if !live[id] || execution.HasCompleted(id) {
			continue
		}

		if hasPendingPredecessor(executionPlan, execution, live, id) {
			continue
		}

		return id
	}

	return ""
}

func hasPendingPredecessor(executionPlan *plan.ExecutionPlan, execution *models.WorkflowExecution, live map[string]bool, id string) bool {
	for _, edge := range executionPlan.InboundEdges(id) {
		if live[edge.Source] && !execution.HasCompleted(edge.Source) {
			return true
		}
	}

	return false
}

// unreachedNodes lists every node the finished traversal never executed,
// in topological order. Clients read these as skipped.
func unreachedNodes(executionPlan *plan.ExecutionPlan, execution *models.WorkflowExecution) []string {
	var unreached []string

	for _, id := range executionPlan.Order {
		if !execution.HasCompleted(id) {
			unreached = append(unreached, id)
		}
	}

	return unreached
}
