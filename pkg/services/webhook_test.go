package services

import (
	"context"
	"testing"

	"github.com/rivetflow/rivet/pkg/models"
	"github.com/rivetflow/rivet/pkg/persistence"
	"github.com/rivetflow/rivet/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWebhookService(t *testing.T) (*Webhook, persistence.Persistence) {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	saveWorkflow(t, p, validWorkflow("wf-1"))

	return NewWebhook(p), p
}

func TestCreateBinding(t *testing.T) {
	service, _ := newWebhookService(t)

	binding, err := service.CreateBinding(context.Background(), &models.WebhookBinding{
		WorkflowID: "wf-1",
		Path:       "/orders",
		Method:     "POST",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, binding.ID)
	assert.Equal(t, models.WebhookAuthNone, binding.AuthMode)
	assert.False(t, binding.CreatedAt.IsZero())
}

func TestCreateBinding_RouteConflict(t *testing.T) {
	service, _ := newWebhookService(t)

	_, err := service.CreateBinding(context.Background(), &models.WebhookBinding{
		WorkflowID: "wf-1",
		Path:       "/orders",
		Method:     "POST",
	})
	require.NoError(t, err)

	_, err = service.CreateBinding(context.Background(), &models.WebhookBinding{
		WorkflowID: "wf-1",
		Path:       "/orders",
		Method:     "POST",
	})
	require.ErrorIs(t, err, ErrBindingConflict)
}

func TestCreateBinding_UnknownWorkflow(t *testing.T) {
	service, _ := newWebhookService(t)

	_, err := service.CreateBinding(context.Background(), &models.WebhookBinding{
		WorkflowID: "missing",
		Path:       "/orders",
		Method:     "POST",
	})
	require.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestCreateBinding_InvalidMethod(t *testing.T) {
	service, _ := newWebhookService(t)

	_, err := service.CreateBinding(context.Background(), &models.WebhookBinding{
		WorkflowID: "wf-1",
		Path:       "/orders",
		Method:     "TRACE",
	})
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestResolve_TokenAuth(t *testing.T) {
	service, _ := newWebhookService(t)

	_, err := service.CreateBinding(context.Background(), &models.WebhookBinding{
		WorkflowID: "wf-1",
		Path:       "/orders",
		Method:     "POST",
		AuthMode:   models.WebhookAuthToken,
		Token:      "s3cret",
	})
	require.NoError(t, err)

	binding, err := service.Resolve(context.Background(), "/orders", "POST", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "wf-1", binding.WorkflowID)

	_, err = service.Resolve(context.Background(), "/orders", "POST", "wrong")
	require.ErrorIs(t, err, ErrWebhookUnauthorized)

	_, err = service.Resolve(context.Background(), "/orders", "POST", "")
	require.ErrorIs(t, err, ErrWebhookUnauthorized)
}

func TestResolve_UnknownRoute(t *testing.T) {
	service, _ := newWebhookService(t)

	_, err := service.Resolve(context.Background(), "/missing", "GET", "")
	require.ErrorIs(t, err, persistence.ErrBindingNotFound)
}
