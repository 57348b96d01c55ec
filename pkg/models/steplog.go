package models

import "time"

// StepStatus is the lifecycle state of one node attempt within a run.
type StepStatus string

const (
	StepStatusPending  StepStatus = "pending"
	StepStatusRunning  StepStatus = "running"
	StepStatusSuccess  StepStatus = "success"
	StepStatusError    StepStatus = "error"
	StepStatusRetrying StepStatus = "retrying"
	StepStatusSkipped  StepStatus = "skipped"
	StepStatusWaiting  StepStatus = "waiting"
)

// StepLog records a single attempt of a node within an execution.
// Retries append a new row with an incremented attempt number instead of
// mutating the prior row, so the full attempt history is preserved.
type StepLog struct {
	ID          string     `json:"id"`
	ExecutionID string     `json:"execution_id"`
	NodeID      string     `json:"node_id"`
	StepName    string     `json:"step_name"`
	Status      StepStatus `json:"status"`
	Attempt     int        `json:"attempt"`

	Input          map[string]any `json:"input,omitempty"`
	Output         map[string]any `json:"output,omitempty"`
	SelectedBranch string         `json:"selected_branch,omitempty"`
	Error          string         `json:"error,omitempty"`

	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	DurationMS int64      `json:"duration_ms,omitempty"`
}
