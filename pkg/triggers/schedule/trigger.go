// Package schedule provides the cron-based trigger source.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rivetflow/rivet/pkg/models"
	"github.com/rivetflow/rivet/pkg/protocol"
)

// Source fires a workflow on a cron expression taken from the trigger
// node's parameters.
type Source struct {
	NodeID     string
	WorkflowID string
	CronExpr   string

	cron     *cron.Cron
	callback protocol.TriggerCallback
	logger   *slog.Logger
}

// NewSource builds a schedule source for one trigger node. The node's
// parameters must carry a standard 5-field cron expression under "cron".
func NewSource(workflowID string, node *models.WorkflowNode, logger *slog.Logger) (*Source, error) {
	cronExpr, _ := node.Parameters["cron"].(string)

	source := &Source{
		NodeID:     node.ID,
		WorkflowID: workflowID,
		CronExpr:   cronExpr,
		logger: logger.With(
			"module", "schedule_trigger",
			"node_id", node.ID,
			"workflow_id", workflowID,
			"cron", cronExpr,
		),
	}

	if err := source.Validate(context.Background()); err != nil {
		return nil, err
	}

	return source, nil
}

func (s *Source) Validate(_ context.Context) error {
	if s.WorkflowID == "" {
		return errors.New("schedule trigger workflow id is required")
	}

	if s.CronExpr == "" {
		return errors.New("schedule trigger cron expression is required")
	}

	if _, err := cron.ParseStandard(s.CronExpr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	return nil
}

func (s *Source) Start(ctx context.Context, callback protocol.TriggerCallback) error {
	s.logger.InfoContext(ctx, "Starting schedule trigger")
	s.callback = callback

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	if _, err := s.cron.AddFunc(s.CronExpr, s.fire); err != nil {
		return fmt.Errorf("failed to add cron job for node %s: %w", s.NodeID, err)
	}

	s.cron.Start()

	return nil
}

func (s *Source) fire() {
	payload := map[string]any{
		"node_id":   s.NodeID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	go func() {
		if err := s.callback(context.Background(), s.WorkflowID, models.TriggerTypeSchedule, payload); err != nil {
			s.logger.Error("Failed to start scheduled execution", "error", err)
		}
	}()
}

func (s *Source) Stop(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Stopping schedule trigger")

	if s.cron != nil {
		s.cron.Stop()
	}

	return nil
}
