// Package triggers wires long-running trigger sources to workflow
// definitions: one source per schedule or event trigger node of every
// active workflow.
package triggers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rivetflow/rivet/pkg/models"
	"github.com/rivetflow/rivet/pkg/persistence"
	"github.com/rivetflow/rivet/pkg/protocol"
	"github.com/rivetflow/rivet/pkg/services"
	"github.com/rivetflow/rivet/pkg/triggers/queue"
	"github.com/rivetflow/rivet/pkg/triggers/schedule"
)

// Node types handled by the manager. Manual and webhook firings arrive
// through the API surface instead.
const (
	TypeSchedule = "schedule"
	TypeEvent    = "event"
)

type Manager struct {
	logger           *slog.Logger
	persistence      persistence.Persistence
	executionService *services.Execution
	sources          []protocol.TriggerSource
}

func NewManager(logger *slog.Logger, persistence persistence.Persistence, executionService *services.Execution) *Manager {
	return &Manager{
		logger:           logger.With("module", "trigger_manager"),
		persistence:      persistence,
		executionService: executionService,
	}
}

// Start builds and starts one source per schedule/event trigger node of
// every active workflow. A workflow whose trigger node is misconfigured
// is logged and skipped; the other sources still start.
func (m *Manager) Start(ctx context.Context) error {
	workflows, err := m.persistence.WorkflowRepository().List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list workflows: %w", err)
	}

	for _, workflow := range workflows {
		if !workflow.Active {
			continue
		}

		for _, node := range workflow.TriggerNodes() {
			source, err := m.buildSource(workflow.ID, node)
			if err != nil {
				m.logger.WarnContext(ctx, "Skipping misconfigured trigger node",
					"workflow_id", workflow.ID, "node_id", node.ID, "error", err)

				continue
			}

			if source == nil {
				continue
			}

			if err := source.Start(ctx, m.fire); err != nil {
				m.logger.ErrorContext(ctx, "Failed to start trigger source",
					"workflow_id", workflow.ID, "node_id", node.ID, "error", err)

				continue
			}

			m.sources = append(m.sources, source)
		}
	}

	m.logger.InfoContext(ctx, "Trigger sources started", "count", len(m.sources))

	return nil
}

func (m *Manager) buildSource(workflowID string, node *models.WorkflowNode) (protocol.TriggerSource, error) {
	switch node.ExecutorType() {
	case TypeSchedule:
		return schedule.NewSource(workflowID, node, m.logger)
	case TypeEvent:
		return queue.NewSource(workflowID, node, m.logger)
	default:
		return nil, nil
	}
}

func (m *Manager) fire(ctx context.Context, workflowID string, triggerType models.TriggerType, payload map[string]any) error {
	_, err := m.executionService.Execute(ctx, services.ExecuteRequest{
		WorkflowID:  workflowID,
		TriggerType: triggerType,
		Payload:     payload,
	})

	return err
}

// Stop stops every running source.
func (m *Manager) Stop(ctx context.Context) error {
	for _, source := range m.sources {
		if err := source.Stop(ctx); err != nil {
			m.logger.ErrorContext(ctx, "Failed to stop trigger source", "error", err)
		}
	}

	m.sources = nil

	return nil
}
