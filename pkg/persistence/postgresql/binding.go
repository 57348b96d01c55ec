package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lib/pq"
	"github.com/rivetflow/rivet/pkg/models"
	"github.com/rivetflow/rivet/pkg/persistence"
)

// WebhookBindingRepository handles webhook binding database operations.
// The unique index on (path, method) enforces route uniqueness.
type WebhookBindingRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *WebhookBindingRepository) Create(ctx context.Context, binding *models.WebhookBinding) error {
	query := `
		INSERT INTO webhook_bindings (id, workflow_id, path, method, auth_mode, token, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		binding.ID,
		binding.WorkflowID,
		binding.Path,
		strings.ToUpper(binding.Method),
		string(binding.AuthMode),
		binding.Token,
		binding.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return persistence.ErrBindingExists
		}

		return fmt.Errorf("failed to create webhook binding %s: %w", binding.ID, err)
	}

	return nil
}

func (r *WebhookBindingRepository) GetByRoute(ctx context.Context, path, method string) (*models.WebhookBinding, error) {
	query := `
		SELECT id, workflow_id, path, method, auth_mode, token, created_at
		FROM webhook_bindings
		WHERE path = $1 AND method = $2
	`

	binding, err := scanBinding(r.db.QueryRowContext(ctx, query, path, strings.ToUpper(method)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrBindingNotFound
		}

		return nil, fmt.Errorf("failed to scan webhook binding: %w", err)
	}

	return binding, nil
}

func (r *WebhookBindingRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WebhookBinding, error) {
	query := `
		SELECT id, workflow_id, path, method, auth_mode, token, created_at
		FROM webhook_bindings
		WHERE workflow_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query webhook bindings: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	bindings := make([]*models.WebhookBinding, 0)

	for rows.Next() {
		binding, err := scanBinding(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan webhook binding: %w", err)
		}

		bindings = append(bindings, binding)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating webhook bindings: %w", err)
	}

	return bindings, nil
}

func (r *WebhookBindingRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM webhook_bindings WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete webhook binding %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}

	if affected == 0 {
		return persistence.ErrBindingNotFound
	}

	return nil
}

func scanBinding(row rowScanner) (*models.WebhookBinding, error) {
	var (
		binding  models.WebhookBinding
		authMode string
		token    sql.NullString
	)

	err := row.Scan(
		&binding.ID,
		&binding.WorkflowID,
		&binding.Path,
		&binding.Method,
		&authMode,
		&token,
		&binding.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	binding.AuthMode = models.WebhookAuthMode(authMode)
	binding.Token = token.String

	return &binding, nil
}
