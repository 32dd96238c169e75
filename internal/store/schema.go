package store

const (
	proposalsSchema = `
		CREATE TABLE IF NOT EXISTS proposals (
			id TEXT PRIMARY KEY,
			root TEXT NOT NULL,
			verb TEXT NOT NULL,
			args TEXT NOT NULL,
			tier TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			status TEXT NOT NULL CHECK(status IN ('proposed', 'confirmed', 'executed', 'rejected', 'expired')),
			token_hash TEXT NOT NULL,
			token_consumed INTEGER NOT NULL DEFAULT 0,
			executing INTEGER NOT NULL DEFAULT 0,
			guard_names TEXT NOT NULL,
			guard_context TEXT NOT NULL,
			guards TEXT NOT NULL,
			created_at TEXT NOT NULL,
			expires_at TEXT NOT NULL,
			not_before TEXT,
			decided_at TEXT,
			executed_at TEXT,
			result TEXT
		)`

	auditSchema = `
		CREATE TABLE IF NOT EXISTS audit_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			proposal_id TEXT NOT NULL,
			event TEXT NOT NULL CHECK(event IN ('proposed', 'confirmed', 'executed', 'rejected', 'expired', 'denied')),
			actor TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			payload TEXT NOT NULL
		)`

	triggerPreventUpdate = `
		CREATE TRIGGER IF NOT EXISTS prevent_audit_update
		BEFORE UPDATE ON audit_log
		FOR EACH ROW
		BEGIN
			SELECT RAISE(FAIL, 'Updates not allowed on audit_log');
		END`

	triggerPreventDelete = `
		CREATE TRIGGER IF NOT EXISTS prevent_audit_delete
		BEFORE DELETE ON audit_log
		FOR EACH ROW
		BEGIN
			SELECT RAISE(FAIL, 'Deletes not allowed on audit_log');
		END`

	indexAuditTimestamp = `
		CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_log(timestamp DESC)`

	indexAuditProposal = `
		CREATE INDEX IF NOT EXISTS idx_audit_proposal ON audit_log(proposal_id)`

	indexProposalStatus = `
		CREATE INDEX IF NOT EXISTS idx_proposal_status ON proposals(status)`
)

func schemaStatements() []string {
	return []string{
		proposalsSchema,
		auditSchema,
		triggerPreventUpdate,
		triggerPreventDelete,
		indexAuditTimestamp,
		indexAuditProposal,
		indexProposalStatus,
	}
}
