// Package switchnode provides the multi-way branching executor for
// workflow graph execution.
package switchnode

import (
	"context"
	"errors"
	"fmt"

	"github.com/rivetflow/rivet/pkg/models"
	"github.com/rivetflow/rivet/pkg/protocol"
	"github.com/rivetflow/rivet/pkg/template"
)

// BranchDefault receives execution when no case matches.
const BranchDefault = "default"

// Executor routes execution to one of several output branches based on a
// value match.
type Executor struct {
	value string
	cases map[string]string // case value -> branch tag
}

// Case maps one matched value to a branch tag.
type Case struct {
	Value  string `json:"value"`
	Branch string `json:"branch"`
}

// NewExecutor creates a switch executor from node parameters.
func NewExecutor(node *models.WorkflowNode) (*Executor, error) {
	value, ok := node.Parameters["value"].(string)
	if !ok || value == "" {
		return nil, errors.New("missing required parameter 'value'")
	}

	cases := make(map[string]string)

	if casesParam, ok := node.Parameters["cases"].([]any); ok {
		for i, caseAny := range casesParam {
			caseMap, ok := caseAny.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("case %d must be an object", i)
			}

			caseValue, ok := caseMap["value"].(string)
			if !ok {
				return nil, fmt.Errorf("case %d missing 'value'", i)
			}

			branch, ok := caseMap["branch"].(string)
			if !ok {
				return nil, fmt.Errorf("case %d missing 'branch'", i)
			}

			cases[caseValue] = branch
		}
	}

	return &Executor{value: value, cases: cases}, nil
}

// Execute renders the value expression and selects the branch of the
// first matching case, falling back to the default branch.
func (e *Executor) Execute(ctx context.Context, node *models.WorkflowNode, input map[string]any) (*protocol.StepOutput, error) {
	result, err := template.Render(e.value, input)
	if err != nil {
		return nil, protocol.PermanentError(fmt.Errorf("switch value evaluation failed: %w", err))
	}

	valueStr := fmt.Sprintf("%v", result)

	if branch, exists := e.cases[valueStr]; exists {
		return &protocol.StepOutput{
			Branch: branch,
			Data: map[string]any{
				"matched_value": valueStr,
				"branch":        branch,
			},
		}, nil
	}

	return &protocol.StepOutput{
		Branch: BranchDefault,
		Data: map[string]any{
			"matched_value": valueStr,
			"branch":        BranchDefault,
			"no_match":      true,
		},
	}, nil
}
