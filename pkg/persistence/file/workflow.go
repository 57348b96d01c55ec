package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rivetflow/rivet/pkg/models"
	"github.com/rivetflow/rivet/pkg/persistence"
)

// WorkflowRepository stores each workflow as one JSON document.
type WorkflowRepository struct {
	root string
}

func (r *WorkflowRepository) path(id string) string {
	return filepath.Join(r.root, "workflows", id+".json")
}

func (r *WorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	if err := writeDocument(r.path(workflow.ID), workflow); err != nil {
		return fmt.Errorf("failed to save workflow %s: %w", workflow.ID, err)
	}

	return nil
}

func (r *WorkflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	var workflow models.Workflow

	if err := readDocument(r.path(id), &workflow); err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.ErrWorkflowNotFound
		}

		return nil, fmt.Errorf("failed to read workflow %s: %w", id, err)
	}

	return &workflow, nil
}

func (r *WorkflowRepository) List(_ context.Context) ([]*models.Workflow, error) {
	dir := filepath.Join(r.root, "workflows")

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	var workflows []*models.Workflow

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		var workflow models.Workflow

		if err := readDocument(filepath.Join(dir, entry.Name()), &workflow); err != nil {
			return nil, fmt.Errorf("failed to read workflow file %s: %w", entry.Name(), err)
		}

		workflows = append(workflows, &workflow)
	}

	return workflows, nil
}

func (r *WorkflowRepository) Delete(_ context.Context, id string) error {
	if err := os.Remove(r.path(id)); err != nil {
		if os.IsNotExist(err) {
			return persistence.ErrWorkflowNotFound
		}

		return fmt.Errorf("failed to delete workflow %s: %w", id, err)
	}

	return nil
}
