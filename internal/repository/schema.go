package repository

// Schema definitions for the fraudlens database.
// Compatible with both SQLite and PostgreSQL.

const schemaExplanations = `
CREATE TABLE IF NOT EXISTS explanations (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    tx_id TEXT NOT NULL,
    fraud_prediction INTEGER NOT NULL,
    rule_summary TEXT NOT NULL,
    narrative_status TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    payload TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_explanations_tenant ON explanations(tenant_id);
CREATE INDEX IF NOT EXISTS idx_explanations_tx ON explanations(tenant_id, tx_id);
CREATE INDEX IF NOT EXISTS idx_explanations_created ON explanations(tenant_id, created_at);
`

// schemaFeedback stores analyst ratings, one row per submission.
const schemaFeedback = `
CREATE TABLE IF NOT EXISTS feedback (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    explanation_id TEXT NOT NULL,
    tx_id TEXT NOT NULL,
    clarity_rating INTEGER NOT NULL,
    accuracy_rating INTEGER NOT NULL,
    actionability_rating INTEGER NOT NULL,
    comments TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_feedback_tenant ON feedback(tenant_id);
CREATE INDEX IF NOT EXISTS idx_feedback_explanation ON feedback(tenant_id, explanation_id);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaExplanations,
		schemaFeedback,
	}
}
