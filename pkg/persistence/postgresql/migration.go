package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id UUID PRIMARY KEY,
				owner VARCHAR(255),
				name VARCHAR(255) NOT NULL,
				nodes JSONB NOT NULL DEFAULT '[]',
				connections JSONB NOT NULL DEFAULT '{}',
				active BOOLEAN NOT NULL DEFAULT true,
				version INT NOT NULL DEFAULT 1,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflows_owner ON workflows(owner);
			CREATE INDEX idx_workflows_active ON workflows(active);
			CREATE INDEX idx_workflows_deleted_at ON workflows(deleted_at);

			CREATE TABLE executions (
				id UUID PRIMARY KEY,
				workflow_id UUID NOT NULL,
				definition JSONB NOT NULL,
				instance_id VARCHAR(255),
				status VARCHAR(50) NOT NULL CHECK (status IN ('queued', 'running', 'waiting', 'completed', 'errored', 'cancelled')),
				trigger_type VARCHAR(50) NOT NULL,
				trigger_payload JSONB,
				current_step VARCHAR(255),
				completed_steps JSONB NOT NULL DEFAULT '[]',
				results JSONB NOT NULL DEFAULT '{}',
				selected_branches JSONB NOT NULL DEFAULT '{}',
				pause_requested BOOLEAN NOT NULL DEFAULT false,
				error_message TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE,
				duration_ms BIGINT NOT NULL DEFAULT 0
			);

			CREATE INDEX idx_executions_workflow_id ON executions(workflow_id);
			CREATE INDEX idx_executions_status ON executions(status);
			CREATE UNIQUE INDEX idx_executions_instance
				ON executions(workflow_id, instance_id)
				WHERE instance_id IS NOT NULL AND instance_id <> '';

			CREATE TABLE step_logs (
				seq BIGSERIAL PRIMARY KEY,
				id UUID NOT NULL UNIQUE,
				execution_id UUID NOT NULL,
				node_id VARCHAR(255) NOT NULL,
				step_name VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('pending', 'running', 'success', 'error', 'retrying', 'skipped', 'waiting')),
				attempt INT NOT NULL DEFAULT 0,
				input JSONB,
				output JSONB,
				selected_branch VARCHAR(255),
				error TEXT,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				finished_at TIMESTAMP WITH TIME ZONE,
				duration_ms BIGINT NOT NULL DEFAULT 0
			);

			CREATE INDEX idx_step_logs_execution_id ON step_logs(execution_id);
			CREATE INDEX idx_step_logs_node_id ON step_logs(execution_id, node_id);

			CREATE TABLE webhook_bindings (
				id UUID PRIMARY KEY,
				workflow_id UUID NOT NULL,
				path VARCHAR(512) NOT NULL,
				method VARCHAR(10) NOT NULL,
				auth_mode VARCHAR(20) NOT NULL DEFAULT 'none',
				token VARCHAR(255),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE UNIQUE INDEX idx_webhook_bindings_route ON webhook_bindings(path, method);
			CREATE INDEX idx_webhook_bindings_workflow_id ON webhook_bindings(workflow_id);
		`,
	}
}
