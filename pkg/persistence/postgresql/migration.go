package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Workflow definitions. The step graph lives in the JSONB document;
			-- list/filter columns are extracted for indexing.
			CREATE TABLE workflows (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL,
				data JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflows_status ON workflows(status);
			CREATE INDEX idx_workflows_name ON workflows(name);
			CREATE INDEX idx_workflows_created_at ON workflows(created_at);

			-- Live execution state, one row per execution. cancel_requested is
			-- a real column so a cancel can never be overwritten by a stale
			-- JSONB document.
			CREATE TABLE executions (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL,
				cancel_requested BOOLEAN NOT NULL DEFAULT FALSE,
				data JSONB NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_executions_workflow_id ON executions(workflow_id);
			CREATE INDEX idx_executions_status ON executions(status);

			-- Append-only snapshot log per execution.
			CREATE TABLE snapshots (
				execution_id VARCHAR(255) NOT NULL,
				sequence BIGINT NOT NULL,
				audit BOOLEAN NOT NULL DEFAULT FALSE,
				data JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (execution_id, sequence)
			);

			CREATE INDEX idx_snapshots_created_at ON snapshots(created_at);

			-- Per-workflow execution locks with expiry.
			CREATE TABLE workflow_locks (
				workflow_id VARCHAR(255) PRIMARY KEY,
				owner_id VARCHAR(255) NOT NULL,
				expires_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_locks_expires_at ON workflow_locks(expires_at);
		`,
	}
}
