package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/rivetflow/rivet/pkg/models"
	"github.com/rivetflow/rivet/pkg/registry"
	"github.com/rivetflow/rivet/pkg/services"
)

type APIHandlers struct {
	workflowService  *services.Workflow
	executionService *services.Execution
	webhookService   *services.Webhook
	validator        *validator.Validate
	registry         *registry.Registry
}

func NewAPIHandlers(
	workflowService *services.Workflow,
	executionService *services.Execution,
	webhookService *services.Webhook,
	validator *validator.Validate,
	registry *registry.Registry,
) *APIHandlers {
	return &APIHandlers{
		workflowService:  workflowService,
		executionService: executionService,
		webhookService:   webhookService,
		validator:        validator,
		registry:         registry,
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryCheck, regOk := h.registry.HealthCheck()
	repositoryCheck, repOk := h.workflowService.HealthCheck(c.Context())

	status := "unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk && repOk {
		status = "healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"registry":   registryCheck,
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.workflowService.List(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"workflows": workflows})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.workflowService.Get(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow := &models.Workflow{
		Name:        req.Name,
		Owner:       req.Owner,
		Nodes:       req.Nodes,
		Connections: req.Connections,
	}

	created, warnings, err := h.workflowService.Create(c.Context(), workflow)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(WorkflowResponse{
		Workflow: created,
		Warnings: warnings,
	})
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	workflow := &models.Workflow{
		ID:          id,
		Name:        req.Name,
		Owner:       req.Owner,
		Nodes:       req.Nodes,
		Connections: req.Connections,
		Active:      true,
	}

	updated, warnings, err := h.workflowService.Update(c.Context(), workflow)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(WorkflowResponse{Workflow: updated, Warnings: warnings})
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	if err := h.workflowService.Delete(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// ValidateWorkflow runs the graph compiler without saving anything.
func (h *APIHandlers) ValidateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	workflow := &models.Workflow{
		Name:        req.Name,
		Owner:       req.Owner,
		Nodes:       req.Nodes,
		Connections: req.Connections,
	}

	findings, err := h.workflowService.Validate(workflow)
	if err != nil && !services.IsValidationError(err) {
		return handleServiceError(c, err)
	}

	return c.JSON(ValidateWorkflowResponse{
		Valid:  err == nil,
		Errors: findings,
	})
}

func (h *APIHandlers) ExecuteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req ExecuteWorkflowRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	execution, err := h.executionService.Execute(c.Context(), services.ExecuteRequest{
		WorkflowID:  id,
		TriggerType: models.TriggerTypeManual,
		Payload:     req.Payload,
		InstanceID:  req.InstanceID,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(TransformExecutionResponse(execution))
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	execution, err := h.executionService.Get(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(TransformExecutionResponse(execution))
}

func (h *APIHandlers) GetExecutionSteps(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	steps, err := h.executionService.Steps(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"steps": steps})
}

func (h *APIHandlers) GetWorkflowExecutions(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	executions, err := h.executionService.ListByWorkflow(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	responses := make([]ExecutionResponse, 0, len(executions))
	for _, execution := range executions {
		responses = append(responses, TransformExecutionResponse(execution))
	}

	return c.JSON(fiber.Map{"executions": responses})
}

func (h *APIHandlers) PauseExecution(c fiber.Ctx) error {
	return h.controlExecution(c, h.executionService.Pause)
}

func (h *APIHandlers) ResumeExecution(c fiber.Ctx) error {
	return h.controlExecution(c, h.executionService.Resume)
}

func (h *APIHandlers) TerminateExecution(c fiber.Ctx) error {
	return h.controlExecution(c, h.executionService.Terminate)
}

func (h *APIHandlers) controlExecution(c fiber.Ctx, command func(ctx context.Context, id string) error) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	if err := command(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	execution, err := h.executionService.Get(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(TransformExecutionResponse(execution))
}

func (h *APIHandlers) CreateWebhookBinding(c fiber.Ctx) error {
	workflowID := c.Params("id")
	if workflowID == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req CreateWebhookBindingRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	binding, err := h.webhookService.CreateBinding(c.Context(), &models.WebhookBinding{
		WorkflowID: workflowID,
		Path:       req.Path,
		Method:     req.Method,
		AuthMode:   models.WebhookAuthMode(req.AuthMode),
		Token:      req.Token,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(binding)
}

func (h *APIHandlers) GetWebhookBindings(c fiber.Ctx) error {
	workflowID := c.Params("id")
	if workflowID == "" {
		return badRequest(c, "Workflow ID is required")
	}

	bindings, err := h.webhookService.ListBindings(c.Context(), workflowID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"bindings": bindings})
}

func (h *APIHandlers) DeleteWebhookBinding(c fiber.Ctx) error {
	id := c.Params("bindingId")
	if id == "" {
		return badRequest(c, "Binding ID is required")
	}

	if err := h.webhookService.DeleteBinding(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// WebhookIngress resolves an inbound request against the stored route
// bindings and starts an execution with the request body as trigger
// payload.
func (h *APIHandlers) WebhookIngress(c fiber.Ctx) error {
	path := "/" + c.Params("*")

	binding, err := h.webhookService.Resolve(c.Context(), path, c.Method(), c.Get("X-Webhook-Token"))
	if err != nil {
		return handleServiceError(c, err)
	}

	var payload map[string]any
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&payload); err != nil {
			return badRequest(c, "Invalid JSON payload")
		}
	}

	execution, err := h.executionService.Execute(c.Context(), services.ExecuteRequest{
		WorkflowID:  binding.WorkflowID,
		TriggerType: models.TriggerTypeWebhook,
		Payload:     payload,
		InstanceID:  c.Get("X-Instance-Id"),
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(TransformExecutionResponse(execution))
}
