// Package registry maps node types to their executor factories.
package registry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rivetflow/rivet/pkg/models"
	"github.com/rivetflow/rivet/pkg/protocol"
)

type Registry struct {
	logger    *slog.Logger
	factories map[string]protocol.ExecutorFactory
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger,
		factories: make(map[string]protocol.ExecutorFactory),
	}
}

// RegisterExecutor registers a factory under its node type.
func (r *Registry) RegisterExecutor(factory protocol.ExecutorFactory) {
	r.factories[factory.Type()] = factory
}

// CreateExecutor builds an executor for the node's type.
func (r *Registry) CreateExecutor(ctx context.Context, node *models.WorkflowNode) (protocol.NodeExecutor, error) {
	factory, ok := r.factories[node.ExecutorType()]
	if !ok {
		return nil, fmt.Errorf("node type %q not registered", node.ExecutorType())
	}

	return factory.Create(ctx, node)
}

// Factory returns the registered factory for a node type.
func (r *Registry) Factory(nodeType string) (protocol.ExecutorFactory, bool) {
	factory, ok := r.factories[nodeType]

	return factory, ok
}

// AvailableTypes lists the registered node types.
func (r *Registry) AvailableTypes() []string {
	types := make([]string, 0, len(r.factories))
	for nodeType := range r.factories {
		types = append(types, nodeType)
	}

	return types
}

// HealthCheck reports whether the registry is usable.
func (r *Registry) HealthCheck() (string, bool) {
	if len(r.factories) == 0 {
		return "no executor factories registered", false
	}

	return fmt.Sprintf("%d executor factories registered", len(r.factories)), true
}
