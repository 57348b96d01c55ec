package condition

import (
	"context"

	"github.com/rivetflow/rivet/pkg/models"
	"github.com/rivetflow/rivet/pkg/protocol"
)

// Factory creates condition executors.
type Factory struct{}

func NewFactory() protocol.ExecutorFactory {
	return &Factory{}
}

func (f *Factory) Create(ctx context.Context, node *models.WorkflowNode) (protocol.NodeExecutor, error) {
	return NewExecutor(node)
}

func (f *Factory) Type() string {
	return "condition"
}

func (f *Factory) Name() string {
	return "Condition"
}

func (f *Factory) Description() string {
	return "Evaluates a predicate and routes execution to the true or false branch"
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"condition": map[string]any{
				"type":        "string",
				"description": "Predicate expression rendered against the step input. Supports templating.",
				"examples": []string{
					`{{.trigger.approved}}`,
					`{{.nodes.check_stock.available}}`,
				},
			},
		},
		"required": []string{"condition"},
	}
}
