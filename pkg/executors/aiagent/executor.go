// Package aiagent provides the AI agent invocation node. The agent
// runtime is external; this executor forwards the rendered prompt to a
// configured endpoint and exposes the agent's reply.
package aiagent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rivetflow/rivet/pkg/models"
	"github.com/rivetflow/rivet/pkg/protocol"
	"github.com/rivetflow/rivet/pkg/template"
)

const defaultTimeout = 120 * time.Second

type Executor struct {
	endpoint string
	model    string
	prompt   string
	client   *http.Client
}

func NewExecutor(node *models.WorkflowNode) (*Executor, error) {
	prompt, _ := node.Parameters["prompt"].(string)
	if prompt == "" {
		return nil, errors.New("missing required parameter 'prompt'")
	}

	endpoint, _ := node.Parameters["endpoint"].(string)
	model, _ := node.Parameters["model"].(string)

	return &Executor{
		endpoint: endpoint,
		model:    model,
		prompt:   prompt,
		client:   &http.Client{Timeout: defaultTimeout},
	}, nil
}

func (e *Executor) Execute(ctx context.Context, node *models.WorkflowNode, input map[string]any) (*protocol.StepOutput, error) {
	rendered, err := template.Render(e.prompt, input)
	if err != nil {
		return nil, protocol.PermanentError(fmt.Errorf("prompt rendering failed: %w", err))
	}

	prompt := fmt.Sprintf("%v", rendered)

	// Without a configured endpoint the node only renders the prompt,
	// which keeps authoring and dry runs independent of the agent runtime.
	if e.endpoint == "" {
		return &protocol.StepOutput{
			Data: map[string]any{
				"prompt": prompt,
				"model":  e.model,
			},
		}, nil
	}

	payload, err := json.Marshal(map[string]any{
		"model":  e.model,
		"prompt": prompt,
	})
	if err != nil {
		return nil, protocol.PermanentError(fmt.Errorf("failed to encode agent request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, protocol.PermanentError(fmt.Errorf("failed to build agent request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, protocol.RetryableError(fmt.Errorf("agent request failed: %w", err))
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, protocol.RetryableError(fmt.Errorf("failed to read agent response: %w", err))
	}

	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return nil, protocol.RetryableError(fmt.Errorf("agent returned status %d", resp.StatusCode))
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, protocol.PermanentError(fmt.Errorf("agent returned status %d", resp.StatusCode))
	}

	var reply any
	if err := json.Unmarshal(rawBody, &reply); err != nil {
		reply = string(rawBody)
	}

	return &protocol.StepOutput{
		Data: map[string]any{
			"prompt": prompt,
			"model":  e.model,
			"reply":  reply,
		},
	}, nil
}

// Factory creates AI agent executors.
type Factory struct{}

func NewFactory() protocol.ExecutorFactory {
	return &Factory{}
}

func (f *Factory) Create(ctx context.Context, node *models.WorkflowNode) (protocol.NodeExecutor, error) {
	return NewExecutor(node)
}

func (f *Factory) Type() string {
	return "ai_agent"
}

func (f *Factory) Name() string {
	return "AI Agent"
}

func (f *Factory) Description() string {
	return "Invokes an external AI agent with a templated prompt"
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"prompt": map[string]any{
				"type":        "string",
				"description": "Prompt sent to the agent. Supports templating.",
			},
			"endpoint": map[string]any{
				"type":        "string",
				"description": "Agent runtime endpoint; when empty the prompt is only rendered",
			},
			"model": map[string]any{
				"type":        "string",
				"description": "Model identifier forwarded to the agent runtime",
			},
		},
		"required": []string{"prompt"},
	}
}
