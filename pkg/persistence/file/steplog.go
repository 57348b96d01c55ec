package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rivetflow/rivet/pkg/models"
	"github.com/rivetflow/rivet/pkg/persistence"
)

// StepLogRepository stores the step logs of an execution as one ordered
// JSON array, sharing the execution's keyed lock.
type StepLogRepository struct {
	root  string
	locks *lockRegistry
}

func (r *StepLogRepository) path(executionID string) string {
	return filepath.Join(r.root, "steplogs", executionID+".json")
}

func (r *StepLogRepository) Append(ctx context.Context, stepLog *models.StepLog) error {
	release := r.locks.acquire(stepLog.ExecutionID)
	defer release()

	stepLogs, err := r.read(stepLog.ExecutionID)
	if err != nil {
		return err
	}

	stepLogs = append(stepLogs, stepLog)

	if err := writeDocument(r.path(stepLog.ExecutionID), stepLogs); err != nil {
		return fmt.Errorf("failed to append step log for execution %s: %w", stepLog.ExecutionID, err)
	}

	return nil
}

func (r *StepLogRepository) Update(ctx context.Context, stepLog *models.StepLog) error {
	release := r.locks.acquire(stepLog.ExecutionID)
	defer release()

	stepLogs, err := r.read(stepLog.ExecutionID)
	if err != nil {
		return err
	}

	for i, existing := range stepLogs {
		if existing.ID == stepLog.ID {
			stepLogs[i] = stepLog

			if err := writeDocument(r.path(stepLog.ExecutionID), stepLogs); err != nil {
				return fmt.Errorf("failed to update step log %s: %w", stepLog.ID, err)
			}

			return nil
		}
	}

	return persistence.ErrStepLogNotFound
}

func (r *StepLogRepository) ListByExecution(_ context.Context, executionID string) ([]*models.StepLog, error) {
	return r.read(executionID)
}

func (r *StepLogRepository) read(executionID string) ([]*models.StepLog, error) {
	var stepLogs []*models.StepLog

	if err := readDocument(r.path(executionID), &stepLogs); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read step logs for execution %s: %w", executionID, err)
	}

	return stepLogs, nil
}
