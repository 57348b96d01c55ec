package models

import "time"

// ExecutionStatus is the lifecycle state of a workflow execution.
// queued is the only initial state; completed, errored and cancelled
// are terminal.
type ExecutionStatus string

const (
	ExecutionStatusQueued    ExecutionStatus = "queued"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusWaiting   ExecutionStatus = "waiting"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusErrored   ExecutionStatus = "errored"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are allowed.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusErrored || s == ExecutionStatusCancelled
}

// TriggerType identifies what fired an execution.
type TriggerType string

const (
	TriggerTypeManual   TriggerType = "manual"
	TriggerTypeWebhook  TriggerType = "webhook"
	TriggerTypeSchedule TriggerType = "schedule"
	TriggerTypeEvent    TriggerType = "event"
)

// WorkflowExecution is one run instance of a workflow. It snapshots the
// definition at start and is mutated only by the scheduler; control
// commands request transitions through guarded status updates.
type WorkflowExecution struct {
	ID             string          `json:"id"`
	WorkflowID     string          `json:"workflow_id"`
	Definition     *Workflow       `json:"definition"`
	InstanceID     string          `json:"instance_id,omitempty"`
	Status         ExecutionStatus `json:"status"`
	TriggerType    TriggerType     `json:"trigger_type"`
	TriggerPayload map[string]any  `json:"trigger_payload,omitempty"`

	CurrentStep      *string                   `json:"current_step,omitempty"`
	CompletedSteps   []string                  `json:"completed_steps,omitempty"`
	Results          map[string]map[string]any `json:"results,omitempty"`
	SelectedBranches map[string]string         `json:"selected_branches,omitempty"`
	PauseRequested   bool                      `json:"pause_requested,omitempty"`

	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	DurationMS   int64      `json:"duration_ms,omitempty"`
}

// HasCompleted reports whether the given node finished successfully in
// this execution.
func (e *WorkflowExecution) HasCompleted(nodeID string) bool {
	for _, id := range e.CompletedSteps {
		if id == nodeID {
			return true
		}
	}

	return false
}
