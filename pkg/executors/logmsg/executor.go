// Package logmsg provides a node executor that writes a templated message
// to the service log.
package logmsg

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rivetflow/rivet/pkg/models"
	"github.com/rivetflow/rivet/pkg/protocol"
	"github.com/rivetflow/rivet/pkg/template"
)

type Executor struct {
	message string
	level   string
	logger  *slog.Logger
}

func NewExecutor(node *models.WorkflowNode, logger *slog.Logger) (*Executor, error) {
	message, _ := node.Parameters["message"].(string)
	if message == "" {
		return nil, fmt.Errorf("missing required parameter 'message'")
	}

	level, _ := node.Parameters["level"].(string)
	if level == "" {
		level = "info"
	}

	return &Executor{message: message, level: level, logger: logger}, nil
}

func (e *Executor) Execute(ctx context.Context, node *models.WorkflowNode, input map[string]any) (*protocol.StepOutput, error) {
	rendered, err := template.Render(e.message, input)
	if err != nil {
		return nil, protocol.PermanentError(fmt.Errorf("message rendering failed: %w", err))
	}

	message := fmt.Sprintf("%v", rendered)

	switch e.level {
	case "debug":
		e.logger.DebugContext(ctx, message, "node_id", node.ID)
	case "warn":
		e.logger.WarnContext(ctx, message, "node_id", node.ID)
	case "error":
		e.logger.ErrorContext(ctx, message, "node_id", node.ID)
	default:
		e.logger.InfoContext(ctx, message, "node_id", node.ID)
	}

	return &protocol.StepOutput{
		Data: map[string]any{
			"logged":  true,
			"message": message,
			"level":   e.level,
		},
	}, nil
}

// Factory creates log executors bound to the service logger.
type Factory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) protocol.ExecutorFactory {
	return &Factory{logger: logger}
}

func (f *Factory) Create(ctx context.Context, node *models.WorkflowNode) (protocol.NodeExecutor, error) {
	return NewExecutor(node, f.logger)
}

func (f *Factory) Type() string {
	return "log"
}

func (f *Factory) Name() string {
	return "Log"
}

func (f *Factory) Description() string {
	return "Writes a templated message to the service log"
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "Message to log. Supports templating.",
			},
			"level": map[string]any{
				"type":        "string",
				"description": "Log level (debug, info, warn, error)",
				"default":     "info",
			},
		},
		"required": []string{"message"},
	}
}
