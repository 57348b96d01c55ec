package registry

import (
	"fmt"

	"github.com/rivetflow/rivet/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// ValidateParameters checks a node's parameters against the JSON schema
// published by its executor factory. Unregistered types are rejected so
// typos surface at save time instead of mid-run.
func (r *Registry) ValidateParameters(node *models.WorkflowNode) error {
	factory, ok := r.factories[node.ExecutorType()]
	if !ok {
		return fmt.Errorf("node type %q not registered", node.ExecutorType())
	}

	schema := factory.Schema()
	if schema == nil {
		return nil
	}

	parameters := node.Parameters
	if parameters == nil {
		parameters = map[string]any{}
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(parameters)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("schema validation failed for node %q: %w", node.ID, err)
	}

	if !result.Valid() {
		first := result.Errors()[0]

		return fmt.Errorf("invalid parameters for node %q: %s", node.ID, first.String())
	}

	return nil
}
