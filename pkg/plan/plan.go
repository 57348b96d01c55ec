// Package plan compiles authored workflow graphs into executable plans.
//
// The compiler validates the graph (triggers present, no dangling edges,
// no cycles, branch groups labeled) and lowers it into an adjacency
// representation keyed by node id with edges grouped by branch tag. It is
// pure: it never contacts executors or storage.
package plan

import (
	"fmt"

	"github.com/rivetflow/rivet/pkg/models"
)

// Edge is one lowered connection of the plan.
type Edge struct {
	Source      string `json:"source"`
	Branch      string `json:"branch"`
	Target      string `json:"target"`
	TargetInput int    `json:"target_input"`
	Label       string `json:"label,omitempty"`
}

// ExecutionPlan is the validated, lowered form of a workflow graph.
// Nodes live in an arena keyed by stable string ids; edges are grouped
// by branch tag per source node.
type ExecutionPlan struct {
	WorkflowID string
	Nodes      map[string]*models.WorkflowNode
	Groups     map[string][]models.OutputGroup
	Inbound    map[string][]Edge
	Triggers   []string
	Order      []string

	declared []string
}

// Node returns the node definition for an id, or nil.
func (p *ExecutionPlan) Node(id string) *models.WorkflowNode {
	return p.Nodes[id]
}

// Successors returns the outgoing edges of a node whose group tag equals
// branch. For conditional nodes this is the set traversed when the node
// selects that branch.
func (p *ExecutionPlan) Successors(nodeID, branch string) []Edge {
	var edges []Edge

	for _, group := range p.Groups[nodeID] {
		if group.Branch != branch {
			continue
		}

		for _, conn := range group.Connections {
			edges = append(edges, Edge{
				Source:      nodeID,
				Branch:      group.Branch,
				Target:      conn.TargetNode,
				TargetInput: conn.TargetInput,
				Label:       conn.Label,
			})
		}
	}

	return edges
}

// AllSuccessors returns the outgoing edges of a node across every output
// group, in group order.
func (p *ExecutionPlan) AllSuccessors(nodeID string) []Edge {
	var edges []Edge

	for _, group := range p.Groups[nodeID] {
		for _, conn := range group.Connections {
			edges = append(edges, Edge{
				Source:      nodeID,
				Branch:      group.Branch,
				Target:      conn.TargetNode,
				TargetInput: conn.TargetInput,
				Label:       conn.Label,
			})
		}
	}

	return edges
}

// InboundEdges returns the incoming edges of a node.
func (p *ExecutionPlan) InboundEdges(nodeID string) []Edge {
	return p.Inbound[nodeID]
}

// ValidationError describes one problem found while compiling a graph.
// Warnings (currently only unreachable nodes) do not prevent execution;
// unreached nodes are marked skipped at runtime instead.
type ValidationError struct {
	Code    string `json:"code"`
	NodeID  string `json:"node_id,omitempty"`
	Message string `json:"message"`
	Warning bool   `json:"warning,omitempty"`
}

func (e ValidationError) Error() string {
	if e.NodeID == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}

	return fmt.Sprintf("%s (node %s): %s", e.Code, e.NodeID, e.Message)
}

// Validation error codes.
const (
	CodeNoTrigger       = "no_trigger"
	CodeDuplicateNode   = "duplicate_node"
	CodeDanglingEdge    = "dangling_edge"
	CodeUnlabeledBranch = "unlabeled_branch"
	CodeNoOutputGroups  = "no_output_groups"
	CodeCycle           = "cycle"
	CodeUnreachable     = "unreachable_node"
)

// HasFatal reports whether any of the errors is a hard error.
func HasFatal(errs []ValidationError) bool {
	for _, e := range errs {
		if !e.Warning {
			return true
		}
	}

	return false
}

// Fatal filters the hard errors out of a validation result.
func Fatal(errs []ValidationError) []ValidationError {
	var fatal []ValidationError

	for _, e := range errs {
		if !e.Warning {
			fatal = append(fatal, e)
		}
	}

	return fatal
}
