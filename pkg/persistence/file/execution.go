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

// ExecutionRepository stores each execution as one JSON document. All
// writes for an execution id go through its keyed lock.
type ExecutionRepository struct {
	root  string
	locks *lockRegistry
}

func (r *ExecutionRepository) path(id string) string {
	return filepath.Join(r.root, "executions", id+".json")
}

func (r *ExecutionRepository) Create(ctx context.Context, execution *models.WorkflowExecution) error {
	release := r.locks.acquire(execution.ID)
	defer release()

	if execution.InstanceID != "" {
		existing, err := r.GetByInstanceID(ctx, execution.WorkflowID, execution.InstanceID)
		if err != nil && !persistence.IsExecutionNotFound(err) {
			return err
		}

		if existing != nil {
			return persistence.ErrExecutionExists
		}
	}

	if _, err := os.Stat(r.path(execution.ID)); err == nil {
		return persistence.ErrExecutionExists
	}

	if err := writeDocument(r.path(execution.ID), execution); err != nil {
		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) Save(_ context.Context, execution *models.WorkflowExecution) error {
	release := r.locks.acquire(execution.ID)
	defer release()

	if err := writeDocument(r.path(execution.ID), execution); err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(_ context.Context, id string) (*models.WorkflowExecution, error) {
	var execution models.WorkflowExecution

	if err := readDocument(r.path(id), &execution); err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.ErrExecutionNotFound
		}

		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	return &execution, nil
}

func (r *ExecutionRepository) GetByInstanceID(ctx context.Context, workflowID, instanceID string) (*models.WorkflowExecution, error) {
	executions, err := r.list(ctx)
	if err != nil {
		return nil, err
	}

	for _, execution := range executions {
		if execution.WorkflowID == workflowID && execution.InstanceID == instanceID {
			return execution, nil
		}
	}

	return nil, persistence.ErrExecutionNotFound
}

func (r *ExecutionRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error) {
	executions, err := r.list(ctx)
	if err != nil {
		return nil, err
	}

	var matched []*models.WorkflowExecution

	for _, execution := range executions {
		if execution.WorkflowID == workflowID {
			matched = append(matched, execution)
		}
	}

	return matched, nil
}

// UpdateStatus applies a compare-and-swap transition under the
// execution's lock so concurrent control commands cannot interleave.
func (r *ExecutionRepository) UpdateStatus(ctx context.Context, id string, from []models.ExecutionStatus, to models.ExecutionStatus) (*models.WorkflowExecution, error) {
	release := r.locks.acquire(id)
	defer release()

	execution, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !statusIn(execution.Status, from) {
		return nil, fmt.Errorf("%w: %s -> %s", persistence.ErrInvalidTransition, execution.Status, to)
	}

	execution.Status = to

	if err := writeDocument(r.path(id), execution); err != nil {
		return nil, persistence.NewExecutionError("UpdateStatus", id, err)
	}

	return execution, nil
}

func (r *ExecutionRepository) RequestPause(ctx context.Context, id string) error {
	release := r.locks.acquire(id)
	defer release()

	execution, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if execution.Status != models.ExecutionStatusRunning {
		return fmt.Errorf("%w: pause requires running, got %s", persistence.ErrInvalidTransition, execution.Status)
	}

	execution.PauseRequested = true

	if err := writeDocument(r.path(id), execution); err != nil {
		return persistence.NewExecutionError("RequestPause", id, err)
	}

	return nil
}

func (r *ExecutionRepository) list(_ context.Context) ([]*models.WorkflowExecution, error) {
	dir := filepath.Join(r.root, "executions")

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	var executions []*models.WorkflowExecution

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		var execution models.WorkflowExecution

		if err := readDocument(filepath.Join(dir, entry.Name()), &execution); err != nil {
			return nil, fmt.Errorf("failed to read execution file %s: %w", entry.Name(), err)
		}

		executions = append(executions, &execution)
	}

	return executions, nil
}

func statusIn(status models.ExecutionStatus, set []models.ExecutionStatus) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}

	return false
}
