// Package web provides the HTTP handlers of the workflow API: workflow
// CRUD, execution dispatch and control commands, and webhook ingress.
package web

import (
	"github.com/rivetflow/rivet/pkg/models"
	"github.com/rivetflow/rivet/pkg/plan"
)

// CreateWorkflowRequest represents the request body for creating a new workflow.
type CreateWorkflowRequest struct {
	Name        string                 `json:"name"  validate:"required,min=3"`
	Owner       string                 `json:"owner" validate:"required"`
	Nodes       []*models.WorkflowNode `json:"nodes"`
	Connections models.ConnectionMap   `json:"connections"`
}

// WorkflowResponse pairs a stored workflow with non-fatal compiler
// findings, so clients see unreachable-node warnings at save time.
type WorkflowResponse struct {
	Workflow *models.Workflow       `json:"workflow"`
	Warnings []plan.ValidationError `json:"warnings,omitempty"`
}

// ValidateWorkflowResponse is the outcome of a dry validation run.
type ValidateWorkflowResponse struct {
	Valid  bool                   `json:"valid"`
	Errors []plan.ValidationError `json:"errors,omitempty"`
}

// ExecuteWorkflowRequest represents the request body for starting a run.
type ExecuteWorkflowRequest struct {
	Payload    map[string]any `json:"payload,omitempty"`
	InstanceID string         `json:"instance_id,omitempty"`
}

// ExecutionResponse is the status-polling read model of one execution.
type ExecutionResponse struct {
	ID               string                    `json:"id"`
	WorkflowID       string                    `json:"workflow_id"`
	Status           models.ExecutionStatus    `json:"status"`
	TriggerType      models.TriggerType        `json:"trigger_type"`
	CurrentStep      *string                   `json:"current_step,omitempty"`
	CompletedSteps   []string                  `json:"completed_steps,omitempty"`
	Results          map[string]map[string]any `json:"results,omitempty"`
	SelectedBranches map[string]string         `json:"selected_branches,omitempty"`
	ErrorMessage     string                    `json:"error_message,omitempty"`
	CreatedAt        string                    `json:"created_at"`
	StartedAt        *string                   `json:"started_at,omitempty"`
	CompletedAt      *string                   `json:"completed_at,omitempty"`
	DurationMS       int64                     `json:"duration_ms,omitempty"`
}

// CreateWebhookBindingRequest represents the request body for binding a
// (path, method) route to a workflow.
type CreateWebhookBindingRequest struct {
	Path     string `json:"path"      validate:"required"`
	Method   string `json:"method"    validate:"required,oneof=GET POST PUT PATCH DELETE"`
	AuthMode string `json:"auth_mode" validate:"omitempty,oneof=none token"`
	Token    string `json:"token,omitempty"`
}

// TransformExecutionResponse converts an execution record into its API
// shape. The definition snapshot is omitted; clients fetch the workflow
// separately if they need the graph.
func TransformExecutionResponse(execution *models.WorkflowExecution) ExecutionResponse {
	response := ExecutionResponse{
		ID:               execution.ID,
		WorkflowID:       execution.WorkflowID,
		Status:           execution.Status,
		TriggerType:      execution.TriggerType,
		CurrentStep:      execution.CurrentStep,
		CompletedSteps:   execution.CompletedSteps,
		Results:          execution.Results,
		SelectedBranches: execution.SelectedBranches,
		ErrorMessage:     execution.ErrorMessage,
		CreatedAt:        execution.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
		DurationMS:       execution.DurationMS,
	}

	if execution.StartedAt != nil {
		startedAt := execution.StartedAt.Format("2006-01-02T15:04:05.000Z07:00")
		response.StartedAt = &startedAt
	}

	if execution.CompletedAt != nil {
		completedAt := execution.CompletedAt.Format("2006-01-02T15:04:05.000Z07:00")
		response.CompletedAt = &completedAt
	}

	return response
}
