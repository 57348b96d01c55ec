package httprequest

import (
	"context"

	"github.com/rivetflow/rivet/pkg/models"
	"github.com/rivetflow/rivet/pkg/protocol"
)

// Factory creates HTTP request executors.
type Factory struct{}

func NewFactory() protocol.ExecutorFactory {
	return &Factory{}
}

func (f *Factory) Create(ctx context.Context, node *models.WorkflowNode) (protocol.NodeExecutor, error) {
	return NewExecutor(node)
}

func (f *Factory) Type() string {
	return "http_request"
}

func (f *Factory) Name() string {
	return "HTTP Request"
}

func (f *Factory) Description() string {
	return "Performs an HTTP request and exposes the response to downstream nodes"
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Request URL. Supports templating.",
			},
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method",
				"default":     "GET",
				"enum":        []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "Request headers; values support templating",
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Request body. Supports templating.",
			},
			"timeout": map[string]any{
				"type":        "string",
				"description": "Request timeout as a Go duration",
				"default":     "30s",
			},
		},
		"required": []string{"url"},
	}
}
