package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AppendDenied records a failure path that changed no proposal state: a
// refused destructive command, a failed confirmation, lock contention.
// Nothing is ever silently swallowed; every failure leaves a record.
func (s *Store) AppendDenied(ctx context.Context, proposalID string, actor Actor, payload any) error {
	payloadJSON, err := marshalPayload(payload)
	if err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		return appendAudit(ctx, tx, proposalID, EventDenied, actor, time.Now().UTC(), payloadJSON)
	})
}

// AuditByProposal returns all records for one proposal, oldest first, so the
// recorded sequence reads as the proposal's transition history.
func (s *Store) AuditByProposal(ctx context.Context, proposalID string) ([]AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx, querySelectAuditByProposal, proposalID)
	if err != nil {
		return nil, fmt.Errorf("query audit by proposal: %w", err)
	}
	defer rows.Close()

	return scanAuditRecords(rows)
}

// AuditByTimeRange returns all records between from and to inclusive.
func (s *Store) AuditByTimeRange(ctx context.Context, from, to time.Time) ([]AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx, querySelectAuditByRange,
		from.UTC().Format(timeLayout), to.UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("query audit by range: %w", err)
	}
	defer rows.Close()

	return scanAuditRecords(rows)
}

func appendAudit(ctx context.Context, tx *sql.Tx, proposalID string, event Event, actor Actor, ts time.Time, payloadJSON string) error {
	_, err := tx.ExecContext(ctx, queryInsertAudit,
		proposalID, string(event), string(actor), ts.UTC().Format(timeLayout), payloadJSON)
	if err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}
	return nil
}
