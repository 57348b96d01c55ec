package cmd

import (
	"log/slog"

	"github.com/rivetflow/rivet/pkg/registry"
)

// NewRegistry builds the executor registry with all built-in node types.
func NewRegistry(logger *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(logger)
	reg.RegisterDefaultExecutors()

	return reg
}
