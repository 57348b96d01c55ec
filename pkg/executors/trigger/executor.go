// Package trigger provides the intake executor for trigger nodes. A
// trigger node is always the first step of a run; its output is the
// trigger payload, making it addressable by downstream expressions.
package trigger

import (
	"context"

	"github.com/rivetflow/rivet/pkg/models"
	"github.com/rivetflow/rivet/pkg/protocol"
)

// Executor passes the trigger payload through as the node's output.
type Executor struct{}

func NewExecutor() *Executor {
	return &Executor{}
}

func (e *Executor) Execute(ctx context.Context, node *models.WorkflowNode, input map[string]any) (*protocol.StepOutput, error) {
	payload, _ := input["trigger"].(map[string]any)
	if payload == nil {
		payload = make(map[string]any)
	}

	return &protocol.StepOutput{Data: payload}, nil
}

// Factory creates trigger intake executors. One factory instance is
// registered per trigger node type; the intake behavior is identical,
// only the parameter schema differs.
type Factory struct {
	nodeType string
}

func NewFactory(nodeType string) protocol.ExecutorFactory {
	return &Factory{nodeType: nodeType}
}

func (f *Factory) Create(ctx context.Context, node *models.WorkflowNode) (protocol.NodeExecutor, error) {
	return NewExecutor(), nil
}

func (f *Factory) Type() string {
	return f.nodeType
}

func (f *Factory) Name() string {
	return "Trigger (" + f.nodeType + ")"
}

func (f *Factory) Description() string {
	return "Receives the event that started the execution and exposes its payload"
}

func (f *Factory) Schema() map[string]any {
	switch f.nodeType {
	case "schedule":
		return map[string]any{
			"type": "object",
			"properties": map[string]any{
				"cron": map[string]any{
					"type":        "string",
					"description": "Standard 5-field cron expression",
				},
			},
			"required": []string{"cron"},
		}
	case "event":
		return map[string]any{
			"type": "object",
			"properties": map[string]any{
				"queue": map[string]any{
					"type":        "string",
					"description": "Queue name to consume trigger messages from",
				},
				"connection": map[string]any{
					"type":        "object",
					"description": "Queue connection overrides (addr, password, db)",
				},
			},
			"required": []string{"queue"},
		}
	default:
		return map[string]any{
			"type": "object",
			"properties": map[string]any{
				"description": map[string]any{
					"type": "string",
				},
			},
		}
	}
}
