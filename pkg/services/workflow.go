package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rivetflow/rivet/pkg/models"
	"github.com/rivetflow/rivet/pkg/persistence"
	"github.com/rivetflow/rivet/pkg/plan"
	"github.com/rivetflow/rivet/pkg/registry"
)

// ErrWorkflowNotFound is returned when a workflow is not found.
var ErrWorkflowNotFound = persistence.ErrWorkflowNotFound

type Workflow struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	validate    *validator.Validate
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(persistence persistence.Persistence, registry *registry.Registry) *Workflow {
	return &Workflow{
		persistence: persistence,
		registry:    registry,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Validate checks a workflow definition without touching storage or
// executors. It returns the full set of compiler findings; warnings are
// included but do not make the workflow invalid.
func (w *Workflow) Validate(workflow *models.Workflow) ([]plan.ValidationError, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	if err := w.validate.Struct(workflow); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	if w.registry != nil {
		for _, node := range workflow.Nodes {
			if err := w.registry.ValidateParameters(node); err != nil {
				return nil, fmt.Errorf("%w: node %s: %w", ErrInvalidRequest, node.ID, err)
			}
		}
	}

	_, validationErrors := plan.Compile(workflow)
	if plan.HasFatal(validationErrors) {
		return validationErrors, &GraphValidationError{Errors: plan.Fatal(validationErrors)}
	}

	return validationErrors, nil
}

// Create validates and persists a new workflow.
func (w *Workflow) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, []plan.ValidationError, error) {
	if workflow == nil {
		return nil, nil, ErrWorkflowNil
	}

	if workflow.Name == "" {
		return nil, nil, ErrWorkflowNameRequired
	}

	if len(workflow.Nodes) == 0 {
		return nil, nil, ErrNodesRequired
	}

	warnings, err := w.Validate(workflow)
	if err != nil {
		return nil, warnings, err
	}

	now := time.Now().UTC()

	if workflow.ID == "" {
		workflow.ID = uuid.NewString()
	}

	workflow.Version = 1
	workflow.Active = true
	workflow.CreatedAt = now
	workflow.UpdatedAt = now

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, warnings, err
	}

	return workflow, warnings, nil
}

// Update validates and persists a new revision of an existing workflow.
// Running executions are unaffected: they hold their own snapshot.
func (w *Workflow) Update(ctx context.Context, workflow *models.Workflow) (*models.Workflow, []plan.ValidationError, error) {
	if workflow == nil {
		return nil, nil, ErrWorkflowNil
	}

	existing, err := w.persistence.WorkflowRepository().GetByID(ctx, workflow.ID)
	if err != nil {
		return nil, nil, err
	}

	warnings, err := w.Validate(workflow)
	if err != nil {
		return nil, warnings, err
	}

	workflow.Version = existing.Version + 1
	workflow.CreatedAt = existing.CreatedAt
	workflow.UpdatedAt = time.Now().UTC()

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, warnings, err
	}

	return workflow, warnings, nil
}

// Get fetches a workflow by id.
func (w *Workflow) Get(ctx context.Context, id string) (*models.Workflow, error) {
	return w.persistence.WorkflowRepository().GetByID(ctx, id)
}

// List returns all stored workflows.
func (w *Workflow) List(ctx context.Context) ([]*models.Workflow, error) {
	return w.persistence.WorkflowRepository().List(ctx)
}

// Delete removes a workflow definition and its webhook bindings.
func (w *Workflow) Delete(ctx context.Context, id string) error {
	bindings, err := w.persistence.WebhookBindingRepository().ListByWorkflow(ctx, id)
	if err != nil {
		return err
	}

	for _, binding := range bindings {
		if err := w.persistence.WebhookBindingRepository().Delete(ctx, binding.ID); err != nil {
			return err
		}
	}

	return w.persistence.WorkflowRepository().Delete(ctx, id)
}
