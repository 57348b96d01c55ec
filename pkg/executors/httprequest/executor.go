// Package httprequest provides the HTTP call node executor.
package httprequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rivetflow/rivet/pkg/models"
	"github.com/rivetflow/rivet/pkg/protocol"
	"github.com/rivetflow/rivet/pkg/template"
)

const defaultTimeout = 30 * time.Second

// Executor performs one HTTP request per invocation. URL, headers and
// body support templating against the step input.
type Executor struct {
	method  string
	url     string
	headers map[string]string
	body    string
	client  *http.Client
}

func NewExecutor(node *models.WorkflowNode) (*Executor, error) {
	url, _ := node.Parameters["url"].(string)
	if url == "" {
		return nil, errors.New("missing required parameter 'url'")
	}

	method, _ := node.Parameters["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	headers := make(map[string]string)

	if headersParam, ok := node.Parameters["headers"].(map[string]any); ok {
		for key, value := range headersParam {
			headers[key] = fmt.Sprintf("%v", value)
		}
	}

	body, _ := node.Parameters["body"].(string)

	timeout := defaultTimeout

	if timeoutParam, ok := node.Parameters["timeout"].(string); ok {
		if parsed, err := time.ParseDuration(timeoutParam); err == nil && parsed > 0 {
			timeout = parsed
		}
	}

	return &Executor{
		method:  strings.ToUpper(method),
		url:     url,
		headers: headers,
		body:    body,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (e *Executor) Execute(ctx context.Context, node *models.WorkflowNode, input map[string]any) (*protocol.StepOutput, error) {
	url, err := renderString(e.url, input)
	if err != nil {
		return nil, protocol.PermanentError(fmt.Errorf("url rendering failed: %w", err))
	}

	var bodyReader io.Reader

	if e.body != "" {
		body, err := renderString(e.body, input)
		if err != nil {
			return nil, protocol.PermanentError(fmt.Errorf("body rendering failed: %w", err))
		}

		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, e.method, url, bodyReader)
	if err != nil {
		return nil, protocol.PermanentError(fmt.Errorf("failed to build request: %w", err))
	}

	for key, value := range e.headers {
		rendered, err := renderString(value, input)
		if err != nil {
			return nil, protocol.PermanentError(fmt.Errorf("header %q rendering failed: %w", key, err))
		}

		req.Header.Set(key, rendered)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		// Transport failures are worth another attempt.
		return nil, protocol.RetryableError(fmt.Errorf("request failed: %w", err))
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, protocol.RetryableError(fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return nil, protocol.RetryableError(fmt.Errorf("upstream returned status %d", resp.StatusCode))
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, protocol.PermanentError(fmt.Errorf("upstream returned status %d", resp.StatusCode))
	}

	return &protocol.StepOutput{
		Data: map[string]any{
			"status_code": resp.StatusCode,
			"body":        parseBody(rawBody),
			"headers":     flattenHeaders(resp.Header),
		},
	}, nil
}

func renderString(expr string, input map[string]any) (string, error) {
	if !strings.Contains(expr, "{{") {
		return expr, nil
	}

	rendered, err := template.Render(expr, input)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%v", rendered), nil
}

func parseBody(raw []byte) any {
	var parsed any

	if err := json.Unmarshal(raw, &parsed); err == nil {
		return parsed
	}

	return string(raw)
}

func flattenHeaders(header http.Header) map[string]string {
	flattened := make(map[string]string, len(header))

	for key := range header {
		flattened[key] = header.Get(key)
	}

	return flattened
}
