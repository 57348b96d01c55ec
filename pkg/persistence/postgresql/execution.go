package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"
	"github.com/rivetflow/rivet/pkg/models"
	"github.com/rivetflow/rivet/pkg/persistence"
)

const uniqueViolation = "23505"

// ExecutionRepository handles execution-related database operations.
// Status transitions predicate on the current status so concurrent
// control commands are rejected instead of interleaved.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const executionColumns = `
	id
  , workflow_id
  , definition
  , instance_id
  , status
  , trigger_type
  , trigger_payload
  , current_step
  , completed_steps
  , results
  , selected_branches
  , pause_requested
  , error_message
  , created_at
  , started_at
  , completed_at
  , duration_ms
`

func (r *ExecutionRepository) Create(ctx context.Context, execution *models.WorkflowExecution) error {
	fields, err := marshalExecutionFields(execution)
	if err != nil {
		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	query := `
		INSERT INTO executions (` + executionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err = r.db.ExecContext(ctx, query, executionArgs(execution, fields)...)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return persistence.ErrExecutionExists
		}

		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) Save(ctx context.Context, execution *models.WorkflowExecution) error {
	fields, err := marshalExecutionFields(execution)
	if err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	query := `
		UPDATE executions SET
			workflow_id = $2,
			definition = $3,
			instance_id = $4,
			status = $5,
			trigger_type = $6,
			trigger_payload = $7,
			current_step = $8,
			completed_steps = $9,
			results = $10,
			selected_branches = $11,
			pause_requested = $12,
			error_message = $13,
			created_at = $14,
			started_at = $15,
			completed_at = $16,
			duration_ms = $17
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, executionArgs(execution, fields)...)
	if err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	if affected == 0 {
		return persistence.ErrExecutionNotFound
	}

	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE id = $1`

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrExecutionNotFound
		}

		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	return execution, nil
}

func (r *ExecutionRepository) GetByInstanceID(ctx context.Context, workflowID, instanceID string) (*models.WorkflowExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE workflow_id = $1 AND instance_id = $2`

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query, workflowID, instanceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrExecutionNotFound
		}

		return nil, persistence.NewExecutionError("GetByInstanceID", instanceID, err)
	}

	return execution, nil
}

func (r *ExecutionRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE workflow_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	executions := make([]*models.WorkflowExecution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

// UpdateStatus performs a compare-and-swap transition in one statement;
// the WHERE clause is the guard.
func (r *ExecutionRepository) UpdateStatus(ctx context.Context, id string, from []models.ExecutionStatus, to models.ExecutionStatus) (*models.WorkflowExecution, error) {
	fromStatuses := make([]string, 0, len(from))
	for _, status := range from {
		fromStatuses = append(fromStatuses, string(status))
	}

	query := `UPDATE executions SET status = $1 WHERE id = $2 AND status = ANY($3)`

	result, err := r.db.ExecContext(ctx, query, string(to), id, pq.Array(fromStatuses))
	if err != nil {
		return nil, persistence.NewExecutionError("UpdateStatus", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, persistence.NewExecutionError("UpdateStatus", id, err)
	}

	if affected == 0 {
		execution, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}

		return nil, fmt.Errorf("%w: %s -> %s", persistence.ErrInvalidTransition, execution.Status, to)
	}

	return r.GetByID(ctx, id)
}

func (r *ExecutionRepository) RequestPause(ctx context.Context, id string) error {
	query := `UPDATE executions SET pause_requested = true WHERE id = $1 AND status = $2`

	result, err := r.db.ExecContext(ctx, query, id, string(models.ExecutionStatusRunning))
	if err != nil {
		return persistence.NewExecutionError("RequestPause", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewExecutionError("RequestPause", id, err)
	}

	if affected == 0 {
		execution, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return getErr
		}

		return fmt.Errorf("%w: pause requires running, got %s", persistence.ErrInvalidTransition, execution.Status)
	}

	return nil
}

type executionJSONFields struct {
	definition       []byte
	triggerPayload   []byte
	completedSteps   []byte
	results          []byte
	selectedBranches []byte
}

func marshalExecutionFields(execution *models.WorkflowExecution) (*executionJSONFields, error) {
	definition, err := json.Marshal(execution.Definition)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal definition: %w", err)
	}

	triggerPayload, err := json.Marshal(execution.TriggerPayload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal trigger payload: %w", err)
	}

	completedSteps := execution.CompletedSteps
	if completedSteps == nil {
		completedSteps = []string{}
	}

	completedStepsJSON, err := json.Marshal(completedSteps)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal completed steps: %w", err)
	}

	results, err := json.Marshal(execution.Results)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal results: %w", err)
	}

	selectedBranches, err := json.Marshal(execution.SelectedBranches)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal selected branches: %w", err)
	}

	return &executionJSONFields{
		definition:       definition,
		triggerPayload:   triggerPayload,
		completedSteps:   completedStepsJSON,
		results:          results,
		selectedBranches: selectedBranches,
	}, nil
}

func executionArgs(execution *models.WorkflowExecution, fields *executionJSONFields) []any {
	return []any{
		execution.ID,
		execution.WorkflowID,
		fields.definition,
		execution.InstanceID,
		string(execution.Status),
		string(execution.TriggerType),
		fields.triggerPayload,
		execution.CurrentStep,
		fields.completedSteps,
		fields.results,
		fields.selectedBranches,
		execution.PauseRequested,
		execution.ErrorMessage,
		execution.CreatedAt,
		execution.StartedAt,
		execution.CompletedAt,
		execution.DurationMS,
	}
}

func scanExecution(row rowScanner) (*models.WorkflowExecution, error) {
	var (
		execution        models.WorkflowExecution
		definition       []byte
		triggerPayload   []byte
		completedSteps   []byte
		results          []byte
		selectedBranches []byte
		instanceID       sql.NullString
		currentStep      sql.NullString
		errorMessage     sql.NullString
		status           string
		triggerType      string
	)

	err := row.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&definition,
		&instanceID,
		&status,
		&triggerType,
		&triggerPayload,
		&currentStep,
		&completedSteps,
		&results,
		&selectedBranches,
		&execution.PauseRequested,
		&errorMessage,
		&execution.CreatedAt,
		&execution.StartedAt,
		&execution.CompletedAt,
		&execution.DurationMS,
	)
	if err != nil {
		return nil, err
	}

	execution.Status = models.ExecutionStatus(status)
	execution.TriggerType = models.TriggerType(triggerType)
	execution.InstanceID = instanceID.String
	execution.ErrorMessage = errorMessage.String

	if currentStep.Valid {
		execution.CurrentStep = &currentStep.String
	}

	if err := json.Unmarshal(definition, &execution.Definition); err != nil {
		return nil, fmt.Errorf("failed to unmarshal definition: %w", err)
	}

	if err := json.Unmarshal(triggerPayload, &execution.TriggerPayload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger payload: %w", err)
	}

	if err := json.Unmarshal(completedSteps, &execution.CompletedSteps); err != nil {
		return nil, fmt.Errorf("failed to unmarshal completed steps: %w", err)
	}

	if err := json.Unmarshal(results, &execution.Results); err != nil {
		return nil, fmt.Errorf("failed to unmarshal results: %w", err)
	}

	if err := json.Unmarshal(selectedBranches, &execution.SelectedBranches); err != nil {
		return nil, fmt.Errorf("failed to unmarshal selected branches: %w", err)
	}

	return &execution, nil
}
