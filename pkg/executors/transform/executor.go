// Package transform provides a node executor that reshapes step data
// through templated field mappings.
package transform

import (
	"context"
	"errors"
	"fmt"

	"github.com/rivetflow/rivet/pkg/models"
	"github.com/rivetflow/rivet/pkg/protocol"
	"github.com/rivetflow/rivet/pkg/template"
)

// Executor renders each mapping entry against the step input and emits
// the rendered values as its output.
type Executor struct {
	mapping map[string]string
}

func NewExecutor(node *models.WorkflowNode) (*Executor, error) {
	mappingParam, ok := node.Parameters["mapping"].(map[string]any)
	if !ok || len(mappingParam) == 0 {
		return nil, errors.New("missing required parameter 'mapping'")
	}

	mapping := make(map[string]string, len(mappingParam))

	for field, expr := range mappingParam {
		exprStr, ok := expr.(string)
		if !ok {
			return nil, fmt.Errorf("mapping field %q must be a string expression", field)
		}

		mapping[field] = exprStr
	}

	return &Executor{mapping: mapping}, nil
}

func (e *Executor) Execute(ctx context.Context, node *models.WorkflowNode, input map[string]any) (*protocol.StepOutput, error) {
	output := make(map[string]any, len(e.mapping))

	for field, expr := range e.mapping {
		value, err := template.Render(expr, input)
		if err != nil {
			return nil, protocol.PermanentError(fmt.Errorf("mapping field %q failed: %w", field, err))
		}

		output[field] = value
	}

	return &protocol.StepOutput{Data: output}, nil
}

// Factory creates transform executors.
type Factory struct{}

func NewFactory() protocol.ExecutorFactory {
	return &Factory{}
}

func (f *Factory) Create(ctx context.Context, node *models.WorkflowNode) (protocol.NodeExecutor, error) {
	return NewExecutor(node)
}

func (f *Factory) Type() string {
	return "transform"
}

func (f *Factory) Name() string {
	return "Transform"
}

func (f *Factory) Description() string {
	return "Reshapes step data through templated field mappings"
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"mapping": map[string]any{
				"type":        "object",
				"description": "Output field to template expression mapping",
			},
		},
		"required": []string{"mapping"},
	}
}
