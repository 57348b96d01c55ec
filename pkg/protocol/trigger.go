package protocol

import (
	"context"

	"github.com/rivetflow/rivet/pkg/models"
)

// TriggerCallback starts an execution of the bound workflow with the
// payload produced by the trigger source.
type TriggerCallback func(ctx context.Context, workflowID string, triggerType models.TriggerType, payload map[string]any) error

// TriggerSource is a long-running producer of trigger firings, such as a
// cron schedule or a queue consumer. Sources fire the callback; they
// never traverse workflows themselves.
type TriggerSource interface {
	Validate(ctx context.Context) error
	Start(ctx context.Context, callback TriggerCallback) error
	Stop(ctx context.Context) error
}
