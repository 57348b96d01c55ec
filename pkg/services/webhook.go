package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rivetflow/rivet/pkg/models"
	"github.com/rivetflow/rivet/pkg/persistence"
)

var (
	// ErrBindingConflict is returned when the (path, method) pair is
	// already bound to a workflow.
	ErrBindingConflict = persistence.ErrBindingExists

	// ErrWebhookUnauthorized is returned when a token-protected binding
	// receives a request with a missing or wrong token.
	ErrWebhookUnauthorized = errors.New("webhook token mismatch")
)

// Webhook manages the (path, method) route bindings of the webhook
// ingress surface.
type Webhook struct {
	persistence persistence.Persistence
	validate    *validator.Validate
}

// NewWebhook creates a new webhook binding service.
func NewWebhook(persistence persistence.Persistence) *Webhook {
	return &Webhook{
		persistence: persistence,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

// CreateBinding registers a route for a workflow. The route must not be
// bound yet, and the workflow must exist.
func (s *Webhook) CreateBinding(ctx context.Context, binding *models.WebhookBinding) (*models.WebhookBinding, error) {
	if binding == nil {
		return nil, ErrInvalidRequest
	}

	if binding.AuthMode == "" {
		binding.AuthMode = models.WebhookAuthNone
	}

	if err := s.validate.Struct(binding); err != nil {
		return nil, errors.Join(ErrInvalidRequest, err)
	}

	if _, err := s.persistence.WorkflowRepository().GetByID(ctx, binding.WorkflowID); err != nil {
		return nil, err
	}

	if binding.ID == "" {
		binding.ID = uuid.NewString()
	}

	binding.CreatedAt = time.Now().UTC()

	if err := s.persistence.WebhookBindingRepository().Create(ctx, binding); err != nil {
		return nil, err
	}

	return binding, nil
}

// Resolve looks up the binding for an inbound request and checks its
// authentication, if any.
func (s *Webhook) Resolve(ctx context.Context, path, method, token string) (*models.WebhookBinding, error) {
	binding, err := s.persistence.WebhookBindingRepository().GetByRoute(ctx, path, method)
	if err != nil {
		return nil, err
	}

	if binding.AuthMode == models.WebhookAuthToken {
		if subtle.ConstantTimeCompare([]byte(binding.Token), []byte(token)) != 1 {
			return nil, ErrWebhookUnauthorized
		}
	}

	return binding, nil
}

// ListBindings lists the bindings of one workflow.
func (s *Webhook) ListBindings(ctx context.Context, workflowID string) ([]*models.WebhookBinding, error) {
	return s.persistence.WebhookBindingRepository().ListByWorkflow(ctx, workflowID)
}

// DeleteBinding removes a binding by id.
func (s *Webhook) DeleteBinding(ctx context.Context, id string) error {
	return s.persistence.WebhookBindingRepository().Delete(ctx, id)
}
