// Package main provides the rivet execution worker.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rivetflow/rivet/pkg/eventbus"
	"github.com/rivetflow/rivet/pkg/events"
	"github.com/rivetflow/rivet/pkg/otelhelper"
	"github.com/rivetflow/rivet/pkg/persistence"
	"github.com/rivetflow/rivet/pkg/registry"
	"github.com/rivetflow/rivet/pkg/scheduler"
	"github.com/rivetflow/rivet/pkg/services"
	"github.com/rivetflow/rivet/pkg/triggers"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Worker consumes execution dispatch events and runs the scheduler. One
// worker process also hosts the trigger sources (cron schedules, queue
// consumers) of the active workflows.
type Worker struct {
	id             string
	logger         *slog.Logger
	persistence    persistence.Persistence
	eventBus       eventbus.EventBus
	scheduler      *scheduler.Scheduler
	triggerManager *triggers.Manager
	tracer         trace.Tracer
}

func NewWorker(
	id string,
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *registry.Registry,
	eventBus eventbus.EventBus,
	tracer trace.Tracer,
) *Worker {
	executionService := services.NewExecution(logger, persistence, eventBus)

	return &Worker{
		id:             id,
		logger:         logger,
		persistence:    persistence,
		eventBus:       eventBus,
		scheduler:      scheduler.NewScheduler(logger, persistence, registry, eventBus, id),
		triggerManager: triggers.NewManager(logger, persistence, executionService),
		tracer:         tracer,
	}
}

// Start subscribes to dispatch events, starts the trigger sources and
// blocks until a shutdown signal arrives.
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := w.eventBus.Handle(events.ExecutionQueuedEvent, w.handleExecutionQueued); err != nil {
		return err
	}

	if err := w.eventBus.Handle(events.ExecutionResumeRequestedEvent, w.handleResumeRequested); err != nil {
		return err
	}

	if err := w.eventBus.Subscribe(ctx); err != nil {
		return err
	}

	if err := w.triggerManager.Start(ctx); err != nil {
		return err
	}

	w.logger.InfoContext(ctx, "Worker started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	w.logger.InfoContext(ctx, "Shutting down worker")

	if err := w.triggerManager.Stop(ctx); err != nil {
		w.logger.ErrorContext(ctx, "Failed to stop trigger manager", "error", err)
	}

	cancel()

	return nil
}

func (w *Worker) handleExecutionQueued(ctx context.Context, event interface{}) error {
	queued, ok := event.(*events.ExecutionQueued)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for execution queued")

		return nil
	}

	return w.run(ctx, "worker.execution_queued", queued.ExecutionID, queued.WorkflowID)
}

func (w *Worker) handleResumeRequested(ctx context.Context, event interface{}) error {
	resume, ok := event.(*events.ExecutionResumeRequested)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for resume request")

		return nil
	}

	return w.run(ctx, "worker.execution_resume", resume.ExecutionID, resume.WorkflowID)
}

func (w *Worker) run(ctx context.Context, spanName, executionID, workflowID string) error {
	runCtx, span := otelhelper.StartSpan(ctx, w.tracer, spanName,
		attribute.String(otelhelper.ExecutionIDKey, executionID),
		attribute.String(otelhelper.WorkflowIDKey, workflowID),
		attribute.String(otelhelper.WorkerIDKey, w.id),
	)
	defer span.End()

	if err := w.scheduler.Run(runCtx, executionID); err != nil {
		w.logger.ErrorContext(runCtx, "Execution run failed",
			"execution_id", executionID, "error", err)
		otelhelper.SetError(span, err)

		return err
	}

	return nil
}
