// Package registry provides executor factory registration.
package registry

import (
	"github.com/rivetflow/rivet/pkg/executors/aiagent"
	"github.com/rivetflow/rivet/pkg/executors/condition"
	"github.com/rivetflow/rivet/pkg/executors/httprequest"
	"github.com/rivetflow/rivet/pkg/executors/logmsg"
	"github.com/rivetflow/rivet/pkg/executors/switchnode"
	"github.com/rivetflow/rivet/pkg/executors/transform"
	"github.com/rivetflow/rivet/pkg/executors/trigger"
	"github.com/rivetflow/rivet/pkg/executors/wait"
)

// RegisterDefaultExecutors registers all built-in executor factories.
func (r *Registry) RegisterDefaultExecutors() {
	r.RegisterExecutor(trigger.NewFactory("trigger"))
	r.RegisterExecutor(trigger.NewFactory("manual"))
	r.RegisterExecutor(trigger.NewFactory("webhook"))
	r.RegisterExecutor(trigger.NewFactory("schedule"))
	r.RegisterExecutor(trigger.NewFactory("event"))
	r.RegisterExecutor(condition.NewFactory())
	r.RegisterExecutor(switchnode.NewFactory())
	r.RegisterExecutor(wait.NewFactory())
	r.RegisterExecutor(httprequest.NewFactory())
	r.RegisterExecutor(transform.NewFactory())
	r.RegisterExecutor(logmsg.NewFactory(r.logger))
	r.RegisterExecutor(aiagent.NewFactory())
}
