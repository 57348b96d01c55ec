package plan

import (
	"fmt"

	"github.com/rivetflow/rivet/pkg/models"
)

// Compile validates a workflow graph and lowers it into an ExecutionPlan.
// On hard validation errors the plan is nil; warnings are returned
// alongside a usable plan.
func Compile(workflow *models.Workflow) (*ExecutionPlan, []ValidationError) {
	var errs []ValidationError

	p := &ExecutionPlan{
		WorkflowID: workflow.ID,
		Nodes:      make(map[string]*models.WorkflowNode, len(workflow.Nodes)),
		Groups:     make(map[string][]models.OutputGroup, len(workflow.Connections)),
		Inbound:    make(map[string][]Edge),
	}

	// Arena of nodes by stable id. Duplicate ids would make every
	// adjacency lookup ambiguous, so they are rejected first.
	for _, node := range workflow.Nodes {
		if _, exists := p.Nodes[node.ID]; exists {
			errs = append(errs, ValidationError{
				Code:    CodeDuplicateNode,
				NodeID:  node.ID,
				Message: fmt.Sprintf("node id %q is declared more than once", node.ID),
			})

			continue
		}

		p.Nodes[node.ID] = node
		p.declared = append(p.declared, node.ID)

		if node.Kind == models.NodeKindTrigger {
			p.Triggers = append(p.Triggers, node.ID)
		}
	}

	if len(p.Triggers) == 0 {
		errs = append(errs, ValidationError{
			Code:    CodeNoTrigger,
			Message: "workflow has no trigger node",
		})
	}

	errs = append(errs, p.lowerConnections(workflow.Connections)...)
	errs = append(errs, p.checkBranchGroups()...)

	if HasFatal(errs) {
		return nil, errs
	}

	if cycleErrs := p.detectCycles(); len(cycleErrs) > 0 {
		return nil, append(errs, cycleErrs...)
	}

	errs = append(errs, p.checkReachability()...)
	p.Order = p.topologicalOrder()

	if HasFatal(errs) {
		return nil, errs
	}

	return p, errs
}

// lowerConnections copies the connection map into the plan and builds the
// inbound index, rejecting edges that reference unknown nodes.
func (p *ExecutionPlan) lowerConnections(connections models.ConnectionMap) []ValidationError {
	var errs []ValidationError

	for _, sourceID := range p.declared {
		groups, ok := connections[sourceID]
		if !ok {
			continue
		}

		p.Groups[sourceID] = groups

		for _, group := range groups {
			for _, conn := range group.Connections {
				if _, exists := p.Nodes[conn.TargetNode]; !exists {
					errs = append(errs, ValidationError{
						Code:    CodeDanglingEdge,
						NodeID:  sourceID,
						Message: fmt.Sprintf("connection targets unknown node %q", conn.TargetNode),
					})

					continue
				}

				p.Inbound[conn.TargetNode] = append(p.Inbound[conn.TargetNode], Edge{
					Source:      sourceID,
					Branch:      group.Branch,
					Target:      conn.TargetNode,
					TargetInput: conn.TargetInput,
					Label:       conn.Label,
				})
			}
		}
	}

	for sourceID := range connections {
		if _, exists := p.Nodes[sourceID]; !exists {
			errs = append(errs, ValidationError{
				Code:    CodeDanglingEdge,
				NodeID:  sourceID,
				Message: fmt.Sprintf("connection map references unknown source node %q", sourceID),
			})
		}
	}

	return errs
}

// checkBranchGroups enforces labeling rules: every output group carries a
// branch tag, and condition/switch nodes expose at least one group.
func (p *ExecutionPlan) checkBranchGroups() []ValidationError {
	var errs []ValidationError

	for _, nodeID := range p.declared {
		node := p.Nodes[nodeID]

		for _, group := range p.Groups[nodeID] {
			if group.Branch == "" {
				errs = append(errs, ValidationError{
					Code:    CodeUnlabeledBranch,
					NodeID:  nodeID,
					Message: "output group has no branch tag",
				})
			}
		}

		if node.Kind.IsConditional() && len(p.Groups[nodeID]) == 0 {
			errs = append(errs, ValidationError{
				Code:    CodeNoOutputGroups,
				NodeID:  nodeID,
				Message: fmt.Sprintf("%s node has no labeled output group", node.Kind),
			})
		}
	}

	return errs
}

// detectCycles runs DFS with three-color marking over the full edge set.
// Workflows are DAGs by design; any back edge is a hard error.
func (p *ExecutionPlan) detectCycles() []ValidationError {
	const (
		white = iota
		gray
		black
	)

	color := make(map[string]int, len(p.Nodes))

	var errs []ValidationError

	var visit func(id string) bool

	visit = func(id string) bool {
		color[id] = gray

		for _, edge := range p.AllSuccessors(id) {
			switch color[edge.Target] {
			case gray:
				errs = append(errs, ValidationError{
					Code:    CodeCycle,
					NodeID:  edge.Target,
					Message: fmt.Sprintf("cycle through node %q (edge from %q)", edge.Target, id),
				})

				return true
			case white:
				if visit(edge.Target) {
					return true
				}
			}
		}

		color[id] = black

		return false
	}

	for _, id := range p.declared {
		if color[id] == white {
			if visit(id) {
				break
			}
		}
	}

	return errs
}

// checkReachability flags non-trigger nodes not reachable from any
// trigger. These are warnings: unreachable nodes are dead code and will
// be reported skipped at runtime rather than failing the run.
func (p *ExecutionPlan) checkReachability() []ValidationError {
	reached := make(map[string]bool, len(p.Nodes))

	queue := append([]string(nil), p.Triggers...)
	for _, id := range queue {
		reached[id] = true
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		for _, edge := range p.AllSuccessors(id) {
			if !reached[edge.Target] {
				reached[edge.Target] = true
				queue = append(queue, edge.Target)
			}
		}
	}

	var errs []ValidationError

	for _, id := range p.declared {
		if !reached[id] {
			errs = append(errs, ValidationError{
				Code:    CodeUnreachable,
				NodeID:  id,
				Message: fmt.Sprintf("node %q is not reachable from any trigger", id),
				Warning: true,
			})
		}
	}

	return errs
}

// topologicalOrder computes a deterministic topological order with
// Kahn's algorithm, seeded and tie-broken by declaration order.
func (p *ExecutionPlan) topologicalOrder() []string {
	inDegree := make(map[string]int, len(p.Nodes))

	for _, edges := range p.Inbound {
		for _, edge := range edges {
			inDegree[edge.Target]++
		}
	}

	var queue []string

	for _, id := range p.declared {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]string, 0, len(p.Nodes))

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		released := make(map[string]bool)

		for _, edge := range p.AllSuccessors(id) {
			inDegree[edge.Target]--
			if inDegree[edge.Target] == 0 {
				released[edge.Target] = true
			}
		}

		// Keep declaration order among newly released nodes.
		for _, declared := range p.declared {
			if released[declared] {
				queue = append(queue, declared)
			}
		}
	}

	return order
}
