// Package postgresql provides the PostgreSQL persistence layer.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	// Registers the postgres driver.
	_ "github.com/lib/pq"
	"github.com/rivetflow/rivet/pkg/persistence"
	"github.com/rivetflow/rivet/pkg/persistence/sqlbase"
)

// Persistence implements persistence.Persistence on PostgreSQL. The
// single-writer-per-execution invariant is enforced with guarded UPDATE
// statements instead of advisory locks: every transition predicates on
// the current status, so concurrent commands lose the race cleanly.
type Persistence struct {
	db            *sql.DB
	logger        *slog.Logger
	workflowRepo  *WorkflowRepository
	executionRepo *ExecutionRepository
	stepLogRepo   *StepLogRepository
	bindingRepo   *WebhookBindingRepository
}

// NewPersistence connects, migrates and returns the persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:            database,
		logger:        logger,
		workflowRepo:  &WorkflowRepository{db: database, logger: logger},
		executionRepo: &ExecutionRepository{db: database, logger: logger},
		stepLogRepo:   &StepLogRepository{db: database, logger: logger},
		bindingRepo:   &WebhookBindingRepository{db: database, logger: logger},
	}, nil
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflowRepo
}

func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return p.executionRepo
}

func (p *Persistence) StepLogRepository() persistence.StepLogRepository {
	return p.stepLogRepo
}

func (p *Persistence) WebhookBindingRepository() persistence.WebhookBindingRepository {
	return p.bindingRepo
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}
