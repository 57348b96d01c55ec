// Package condition provides the two-way branching executor for workflow
// graph execution.
package condition

import (
	"context"
	"errors"
	"fmt"

	"github.com/rivetflow/rivet/pkg/models"
	"github.com/rivetflow/rivet/pkg/protocol"
	"github.com/rivetflow/rivet/pkg/template"
)

const (
	BranchTrue  = "true"
	BranchFalse = "false"
)

// Executor evaluates a predicate expression and selects the "true" or
// "false" output branch.
type Executor struct {
	condition string
}

// NewExecutor creates a condition executor from node parameters.
func NewExecutor(node *models.WorkflowNode) (*Executor, error) {
	condition, ok := node.Parameters["condition"].(string)
	if !ok || condition == "" {
		return nil, errors.New("missing required parameter 'condition'")
	}

	return &Executor{condition: condition}, nil
}

// Execute renders the predicate against the step input and reports the
// selected branch. Evaluation failures are permanent: re-running the
// same expression against the same input cannot succeed.
func (e *Executor) Execute(ctx context.Context, node *models.WorkflowNode, input map[string]any) (*protocol.StepOutput, error) {
	value, err := template.Render(e.condition, input)
	if err != nil {
		return nil, protocol.PermanentError(fmt.Errorf("condition evaluation failed: %w", err))
	}

	branch := BranchFalse
	if template.Truthy(value) {
		branch = BranchTrue
	}

	return &protocol.StepOutput{
		Branch: branch,
		Data: map[string]any{
			"condition_result": branch == BranchTrue,
			"evaluated_value":  value,
		},
	}, nil
}
