package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rivetflow/rivet/pkg/models"
	"github.com/rivetflow/rivet/pkg/persistence"
)

// WebhookBindingRepository stores webhook bindings as JSON documents.
// A single mutex guards the uniqueness check on creation.
type WebhookBindingRepository struct {
	root string
	mu   *sync.Mutex
}

func (r *WebhookBindingRepository) path(id string) string {
	return filepath.Join(r.root, "bindings", id+".json")
}

func (r *WebhookBindingRepository) Create(ctx context.Context, binding *models.WebhookBinding) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.GetByRoute(ctx, binding.Path, binding.Method)
	if err != nil && !errors.Is(err, persistence.ErrBindingNotFound) {
		return err
	}

	if existing != nil {
		return persistence.ErrBindingExists
	}

	if err := writeDocument(r.path(binding.ID), binding); err != nil {
		return fmt.Errorf("failed to save webhook binding %s: %w", binding.ID, err)
	}

	return nil
}

func (r *WebhookBindingRepository) GetByRoute(ctx context.Context, path, method string) (*models.WebhookBinding, error) {
	bindings, err := r.list()
	if err != nil {
		return nil, err
	}

	routeKey := strings.ToUpper(method) + " " + path

	for _, binding := range bindings {
		if binding.RouteKey() == routeKey {
			return binding, nil
		}
	}

	return nil, persistence.ErrBindingNotFound
}

func (r *WebhookBindingRepository) ListByWorkflow(_ context.Context, workflowID string) ([]*models.WebhookBinding, error) {
	bindings, err := r.list()
	if err != nil {
		return nil, err
	}

	var matched []*models.WebhookBinding

	for _, binding := range bindings {
		if binding.WorkflowID == workflowID {
			matched = append(matched, binding)
		}
	}

	return matched, nil
}

func (r *WebhookBindingRepository) Delete(_ context.Context, id string) error {
	if err := os.Remove(r.path(id)); err != nil {
		if os.IsNotExist(err) {
			return persistence.ErrBindingNotFound
		}

		return fmt.Errorf("failed to delete webhook binding %s: %w", id, err)
	}

	return nil
}

func (r *WebhookBindingRepository) list() ([]*models.WebhookBinding, error) {
	dir := filepath.Join(r.root, "bindings")

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to list webhook bindings: %w", err)
	}

	var bindings []*models.WebhookBinding

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		var binding models.WebhookBinding

		if err := readDocument(filepath.Join(dir, entry.Name()), &binding); err != nil {
			return nil, fmt.Errorf("failed to read webhook binding file %s: %w", entry.Name(), err)
		}

		bindings = append(bindings, &binding)
	}

	return bindings, nil
}
