// Package wait provides the human-in-the-loop suspension node. The
// scheduler suspends the execution when it reaches a wait node; this
// executor only shapes the resume payload once traversal continues.
package wait

import (
	"context"

	"github.com/rivetflow/rivet/pkg/models"
	"github.com/rivetflow/rivet/pkg/protocol"
)

// Executor passes the resume payload through to downstream nodes.
type Executor struct{}

func NewExecutor() *Executor {
	return &Executor{}
}

func (e *Executor) Execute(ctx context.Context, node *models.WorkflowNode, input map[string]any) (*protocol.StepOutput, error) {
	return &protocol.StepOutput{
		Data: map[string]any{
			"resumed": true,
		},
	}, nil
}

// Factory creates wait executors.
type Factory struct{}

func NewFactory() protocol.ExecutorFactory {
	return &Factory{}
}

func (f *Factory) Create(ctx context.Context, node *models.WorkflowNode) (protocol.NodeExecutor, error) {
	return NewExecutor(), nil
}

func (f *Factory) Type() string {
	return "wait"
}

func (f *Factory) Name() string {
	return "Wait"
}

func (f *Factory) Description() string {
	return "Suspends the execution until it is resumed by an approval or external callback"
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"reason": map[string]any{
				"type":        "string",
				"description": "Human-readable reason shown while the execution is waiting",
			},
		},
	}
}
