package store

const (
	queryInsertProposal = `
		INSERT INTO proposals (
			id, root, verb, args, tier, fingerprint, status,
			token_hash, token_consumed, executing, guard_names, guard_context, guards,
			created_at, expires_at, not_before
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?, ?, ?, ?, ?)`

	proposalColumns = `
		id, root, verb, args, tier, fingerprint, status,
		token_hash, token_consumed, executing, guard_names, guard_context, guards,
		created_at, expires_at, not_before, decided_at, executed_at, result`

	querySelectProposal = `
		SELECT ` + proposalColumns + ` FROM proposals WHERE id = ?`

	querySelectDue = `
		SELECT ` + proposalColumns + ` FROM proposals
		WHERE status = 'confirmed' AND not_before IS NOT NULL AND not_before <= ?
		ORDER BY not_before ASC`

	querySelectOverdue = `
		SELECT ` + proposalColumns + ` FROM proposals
		WHERE status IN ('proposed', 'confirmed') AND expires_at <= ?
		ORDER BY expires_at ASC`

	queryInsertAudit = `
		INSERT INTO audit_log (proposal_id, event, actor, timestamp, payload)
		VALUES (?, ?, ?, ?, ?)`

	querySelectAuditByProposal = `
		SELECT id, proposal_id, event, actor, timestamp, payload
		FROM audit_log
		WHERE proposal_id = ?
		ORDER BY id ASC`

	querySelectAuditByRange = `
		SELECT id, proposal_id, event, actor, timestamp, payload
		FROM audit_log
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY id ASC`
)
