// Package models defines the core domain models for node-based workflow automation.
package models

import "time"

// NodeKind classifies a node for the scheduler. The kind decides traversal
// semantics (branching, suspension); the node type decides which executor runs.
type NodeKind string

const (
	NodeKindTrigger   NodeKind = "trigger"
	NodeKindAction    NodeKind = "action"
	NodeKindAIAgent   NodeKind = "ai-agent"
	NodeKindCondition NodeKind = "condition"
	NodeKindSwitch    NodeKind = "switch"
	NodeKindWait      NodeKind = "wait"
)

// IsConditional reports whether the node selects exactly one outgoing branch.
func (k NodeKind) IsConditional() bool {
	return k == NodeKindCondition || k == NodeKindSwitch
}

// BranchMain is the output group tag used by unconditional nodes.
const BranchMain = "main"

// Connection is a directed edge from a source node's output group to a
// target node's input.
type Connection struct {
	TargetNode  string `json:"target_node"  validate:"required"`
	TargetInput int    `json:"target_input"`
	Label       string `json:"label,omitempty"`
}

// OutputGroup is an ordered list of connections sharing one branch tag.
// Unconditional nodes carry a single "main" group; condition and switch
// nodes carry one group per branch they can select.
type OutputGroup struct {
	Branch      string       `json:"branch" validate:"required"`
	Connections []Connection `json:"connections"`
}

// ConnectionMap maps a source node id to its ordered output groups.
type ConnectionMap map[string][]OutputGroup

// RetryPolicy is the engine-owned retry configuration of a single node.
type RetryPolicy struct {
	MaxAttempts int    `json:"max_attempts" validate:"omitempty,min=1"`
	Backoff     string `json:"backoff,omitempty"  validate:"omitempty,oneof=fixed exponential"`
	Interval    string `json:"interval,omitempty"`
}

const (
	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"

	defaultRetryInterval = time.Second
)

// Attempts returns the configured attempt budget, defaulting to one.
func (p *RetryPolicy) Attempts() int {
	if p == nil || p.MaxAttempts < 1 {
		return 1
	}

	return p.MaxAttempts
}

// BaseInterval returns the parsed backoff interval, defaulting to one second.
func (p *RetryPolicy) BaseInterval() time.Duration {
	if p == nil || p.Interval == "" {
		return defaultRetryInterval
	}

	d, err := time.ParseDuration(p.Interval)
	if err != nil || d < 0 {
		return defaultRetryInterval
	}

	return d
}

// Position holds editor coordinates. The engine ignores it entirely.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// WorkflowNode represents a node instance in a workflow graph.
type WorkflowNode struct {
	ID         string         `json:"id"         validate:"required"`
	Kind       NodeKind       `json:"kind"       validate:"required,oneof=trigger action ai-agent condition switch wait"`
	Type       string         `json:"type,omitempty"`
	Name       string         `json:"name"       validate:"required,min=1"`
	Position   Position       `json:"position"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Retry      *RetryPolicy   `json:"retry,omitempty"`
}

// ExecutorType returns the registry key for this node's executor. Nodes
// without an explicit type fall back to their kind.
func (n *WorkflowNode) ExecutorType() string {
	if n.Type != "" {
		return n.Type
	}

	return string(n.Kind)
}

// Workflow is a user-authored graph of nodes and tagged connections.
// Mutated only by explicit save operations; a running execution works
// against an immutable snapshot taken at start.
type Workflow struct {
	ID          string          `json:"id"`
	Owner       string          `json:"owner"`
	Name        string          `json:"name"        validate:"required,min=3"`
	Nodes       []*WorkflowNode `json:"nodes"`
	Connections ConnectionMap   `json:"connections"`
	Active      bool            `json:"active"`
	Version     int             `json:"version"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NodeByID returns the node with the given id, or nil.
func (w *Workflow) NodeByID(id string) *WorkflowNode {
	for _, node := range w.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}

// TriggerNodes returns all trigger nodes in declaration order.
func (w *Workflow) TriggerNodes() []*WorkflowNode {
	var triggers []*WorkflowNode

	for _, node := range w.Nodes {
		if node.Kind == NodeKindTrigger {
			triggers = append(triggers, node)
		}
	}

	return triggers
}
