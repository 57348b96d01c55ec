package switchnode

import (
	"context"

	"github.com/rivetflow/rivet/pkg/models"
	"github.com/rivetflow/rivet/pkg/protocol"
)

// Factory creates switch executors.
type Factory struct{}

func NewFactory() protocol.ExecutorFactory {
	return &Factory{}
}

func (f *Factory) Create(ctx context.Context, node *models.WorkflowNode) (protocol.NodeExecutor, error) {
	return NewExecutor(node)
}

func (f *Factory) Type() string {
	return "switch"
}

func (f *Factory) Name() string {
	return "Switch"
}

func (f *Factory) Description() string {
	return "Routes execution to one of several branches based on a value match"
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"value": map[string]any{
				"type":        "string",
				"description": "Expression to evaluate for routing. Supports templating.",
				"examples": []string{
					`{{.trigger.event_type}}`,
					`{{.nodes.api_call.status}}`,
				},
			},
			"cases": map[string]any{
				"type":        "array",
				"description": "Value-to-branch mappings; unmatched values route to 'default'",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"value":  map[string]any{"type": "string"},
						"branch": map[string]any{"type": "string"},
					},
					"required": []string{"value", "branch"},
				},
			},
		},
		"required": []string{"value"},
	}
}
