package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/rivetflow/rivet/pkg/models"
	"github.com/rivetflow/rivet/pkg/persistence"
)

// StepLogRepository handles step log database operations. Rows are
// append-only per attempt; Update finalizes the row of the attempt in
// flight. The serial seq column preserves append order.
type StepLogRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *StepLogRepository) Append(ctx context.Context, stepLog *models.StepLog) error {
	input, output, err := marshalStepPayloads(stepLog)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO step_logs (
			id, execution_id, node_id, step_name, status, attempt,
			input, output, selected_branch, error, started_at, finished_at, duration_ms
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = r.db.ExecContext(ctx, query,
		stepLog.ID,
		stepLog.ExecutionID,
		stepLog.NodeID,
		stepLog.StepName,
		string(stepLog.Status),
		stepLog.Attempt,
		input,
		output,
		stepLog.SelectedBranch,
		stepLog.Error,
		stepLog.StartedAt,
		stepLog.FinishedAt,
		stepLog.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("failed to append step log %s: %w", stepLog.ID, err)
	}

	return nil
}

func (r *StepLogRepository) Update(ctx context.Context, stepLog *models.StepLog) error {
	input, output, err := marshalStepPayloads(stepLog)
	if err != nil {
		return err
	}

	query := `
		UPDATE step_logs SET
			status = $2,
			input = $3,
			output = $4,
			selected_branch = $5,
			error = $6,
			finished_at = $7,
			duration_ms = $8
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		stepLog.ID,
		string(stepLog.Status),
		input,
		output,
		stepLog.SelectedBranch,
		stepLog.Error,
		stepLog.FinishedAt,
		stepLog.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("failed to update step log %s: %w", stepLog.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check step log update: %w", err)
	}

	if affected == 0 {
		return persistence.ErrStepLogNotFound
	}

	return nil
}

func (r *StepLogRepository) ListByExecution(ctx context.Context, executionID string) ([]*models.StepLog, error) {
	query := `
		SELECT
			id
		  , execution_id
		  , node_id
		  , step_name
		  , status
		  , attempt
		  , input
		  , output
		  , selected_branch
		  , error
		  , started_at
		  , finished_at
		  , duration_ms
		FROM step_logs
		WHERE execution_id = $1
		ORDER BY seq ASC
	`

	rows, err := r.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query step logs: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	stepLogs := make([]*models.StepLog, 0)

	for rows.Next() {
		stepLog, err := scanStepLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step log: %w", err)
		}

		stepLogs = append(stepLogs, stepLog)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating step logs: %w", err)
	}

	return stepLogs, nil
}

func marshalStepPayloads(stepLog *models.StepLog) ([]byte, []byte, error) {
	input, err := json.Marshal(stepLog.Input)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal step input: %w", err)
	}

	output, err := json.Marshal(stepLog.Output)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal step output: %w", err)
	}

	return input, output, nil
}

func scanStepLog(row rowScanner) (*models.StepLog, error) {
	var (
		stepLog        models.StepLog
		status         string
		input          []byte
		output         []byte
		selectedBranch sql.NullString
		stepError      sql.NullString
	)

	err := row.Scan(
		&stepLog.ID,
		&stepLog.ExecutionID,
		&stepLog.NodeID,
		&stepLog.StepName,
		&status,
		&stepLog.Attempt,
		&input,
		&output,
		&selectedBranch,
		&stepError,
		&stepLog.StartedAt,
		&stepLog.FinishedAt,
		&stepLog.DurationMS,
	)
	if err != nil {
		return nil, err
	}

	stepLog.Status = models.StepStatus(status)
	stepLog.SelectedBranch = selectedBranch.String
	stepLog.Error = stepError.String

	if err := json.Unmarshal(input, &stepLog.Input); err != nil {
		return nil, fmt.Errorf("failed to unmarshal step input: %w", err)
	}

	if err := json.Unmarshal(output, &stepLog.Output); err != nil {
		return nil, fmt.Errorf("failed to unmarshal step output: %w", err)
	}

	return &stepLog, nil
}
