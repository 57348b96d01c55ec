package models

import (
	"strings"
	"time"
)

// WebhookAuthMode controls how an inbound webhook request is authenticated.
type WebhookAuthMode string

const (
	WebhookAuthNone  WebhookAuthMode = "none"
	WebhookAuthToken WebhookAuthMode = "token"
)

// WebhookBinding routes an inbound (path, method) pair to a workflow.
// The pair is globally unique; uniqueness is enforced at creation time
// by the binding repository, not by the scheduler.
type WebhookBinding struct {
	ID         string          `json:"id"`
	WorkflowID string          `json:"workflow_id" validate:"required"`
	Path       string          `json:"path"        validate:"required"`
	Method     string          `json:"method"      validate:"required,oneof=GET POST PUT PATCH DELETE"`
	AuthMode   WebhookAuthMode `json:"auth_mode"   validate:"omitempty,oneof=none token"`
	Token      string          `json:"token,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// RouteKey returns the canonical uniqueness key for the binding.
func (b *WebhookBinding) RouteKey() string {
	return strings.ToUpper(b.Method) + " " + b.Path
}
