package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				user_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('draft', 'active', 'paused')),
				nodes JSONB NOT NULL DEFAULT '[]',
				edges JSONB NOT NULL DEFAULT '[]',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflows_user_id ON workflows(user_id);

			CREATE TABLE executions (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				user_id VARCHAR(255) NOT NULL,
				triggered_by VARCHAR(50) NOT NULL,
				trigger_id VARCHAR(255),
				trigger_data JSONB,
				status VARCHAR(50) NOT NULL CHECK (status IN ('pending', 'running', 'completed', 'failed', 'cancelled')),
				started_at TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE,
				duration_ms BIGINT NOT NULL DEFAULT 0,
				error TEXT,
				error_detail JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_executions_workflow_id ON executions(workflow_id, created_at DESC);
			CREATE INDEX idx_executions_status ON executions(status);

			CREATE TABLE execution_steps (
				id VARCHAR(255) PRIMARY KEY,
				execution_id VARCHAR(255) NOT NULL REFERENCES executions(id) ON DELETE CASCADE,
				node_id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				type VARCHAR(100) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('pending', 'running', 'completed', 'failed', 'skipped')),
				step_order INT NOT NULL,
				iteration INT,
				input JSONB,
				output JSONB,
				error TEXT,
				error_detail JSONB,
				started_at TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE,
				duration_ms BIGINT NOT NULL DEFAULT 0,
				UNIQUE (execution_id, step_order)
			);
		`,
		2: `
			CREATE TABLE webhook_triggers (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				node_id VARCHAR(255) NOT NULL,
				trigger_type VARCHAR(100) NOT NULL,
				webhook_url TEXT NOT NULL DEFAULT '',
				webhook_token VARCHAR(255) NOT NULL UNIQUE,
				bearer_token TEXT,
				hmac_secret TEXT,
				auth_method VARCHAR(50) NOT NULL CHECK (auth_method IN ('url_token', 'bearer', 'hmac')),
				json_schema JSONB,
				is_active BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE schedule_triggers (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				node_id VARCHAR(255) NOT NULL,
				cron_expr VARCHAR(255) NOT NULL,
				enabled BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);
		`,
		3: `
			CREATE TABLE integrations (
				id VARCHAR(255) PRIMARY KEY,
				user_id VARCHAR(255) NOT NULL,
				type VARCHAR(100) NOT NULL,
				encrypted_config TEXT NOT NULL,
				key_version INT NOT NULL,
				is_active BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_integrations_user_type ON integrations(user_id, type) WHERE is_active;

			CREATE TABLE api_keys (
				id VARCHAR(255) PRIMARY KEY,
				user_id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				key_prefix VARCHAR(32) NOT NULL,
				hashed_key CHAR(64) NOT NULL UNIQUE,
				scopes TEXT[] NOT NULL DEFAULT '{}',
				expires_at TIMESTAMP WITH TIME ZONE,
				last_used_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);
		`,
	}
}
