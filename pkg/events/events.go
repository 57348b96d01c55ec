// Package events defines event types for execution lifecycle notifications.
package events

import (
	"time"

	"github.com/rivetflow/rivet/pkg/models"
)

type EventType string

// Topic carries all execution lifecycle events.
const Topic = "rivet.executions"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Dispatch events consumed by workers.
	ExecutionQueuedEvent          EventType = "execution.queued"
	ExecutionResumeRequestedEvent EventType = "execution.resume_requested"

	// Lifecycle notifications emitted by the scheduler.
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionCancelledEvent EventType = "execution.cancelled"
	ExecutionPausedEvent    EventType = "execution.paused"
	ExecutionResumedEvent   EventType = "execution.resumed"

	// Step level notifications.
	StepFinishedEvent EventType = "execution.step.finished"
	StepFailedEvent   EventType = "execution.step.failed"
)

type BaseEvent struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	WorkflowID  string         `json:"workflow_id"`
	ExecutionID string         `json:"execution_id"`
	WorkerID    string         `json:"worker_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// ExecutionQueued asks any available worker to pick up a queued execution.
type ExecutionQueued struct {
	BaseEvent

	TriggerType models.TriggerType `json:"trigger_type"`
}

func (e ExecutionQueued) GetType() EventType {
	return ExecutionQueuedEvent
}

// ExecutionResumeRequested asks a worker to continue a waiting execution.
type ExecutionResumeRequested struct {
	BaseEvent
}

func (e ExecutionResumeRequested) GetType() EventType {
	return ExecutionResumeRequestedEvent
}

type ExecutionStarted struct {
	BaseEvent
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	Results  map[string]map[string]any `json:"results,omitempty"`
	Duration time.Duration             `json:"duration"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	NodeID   string        `json:"node_id,omitempty"`
	Error    string        `json:"error"`
	Duration time.Duration `json:"duration"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

type ExecutionCancelled struct {
	BaseEvent
}

func (e ExecutionCancelled) GetType() EventType {
	return ExecutionCancelledEvent
}

type ExecutionPaused struct {
	BaseEvent

	NodeID string `json:"node_id,omitempty"`
}

func (e ExecutionPaused) GetType() EventType {
	return ExecutionPausedEvent
}

type ExecutionResumed struct {
	BaseEvent
}

func (e ExecutionResumed) GetType() EventType {
	return ExecutionResumedEvent
}

// StepFinished reports a single successful step.
type StepFinished struct {
	BaseEvent

	NodeID     string         `json:"node_id"`
	Branch     string         `json:"branch"`
	Output     map[string]any `json:"output,omitempty"`
	DurationMS int64          `json:"duration_ms"`
}

func (e StepFinished) GetType() EventType {
	return StepFinishedEvent
}

// StepFailed reports a step that exhausted its retry budget.
type StepFailed struct {
	BaseEvent

	NodeID   string `json:"node_id"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error"`
}

func (e StepFailed) GetType() EventType {
	return StepFailedEvent
}
