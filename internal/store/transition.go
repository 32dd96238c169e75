package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/adina8244/grounded-git-mcp-server/internal/token"
)

// Transition is the only proposal mutator. It verifies the expected prior
// status, applies the update and appends exactly one audit record, all
// inside a single transaction: a transition recorded but not applied, or
// applied but not recorded, cannot happen.
func (s *Store) Transition(ctx context.Context, id string, req TransitionRequest) error {
	if !transitionAllowed(req.From, req.To) {
		return fmt.Errorf("invalid transition %s -> %s", req.From, req.To)
	}

	payloadJSON, err := marshalPayload(req.Payload)
	if err != nil {
		return err
	}

	now := time.Now().UTC()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := lockProposal(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Status != req.From {
			return &StatusConflictError{ID: id, Expected: req.From, Actual: current.Status}
		}
		if current.Executing && req.To != StatusExecuted {
			// The command is running. Rejection or expiry now would record
			// "refused to try" for a mutation that happens anyway.
			return ErrExecutionInProgress
		}

		if req.To == StatusConfirmed {
			if err := consumeToken(current, req.Token); err != nil {
				return err
			}
		}

		if err := applyUpdate(ctx, tx, id, req, now); err != nil {
			return err
		}

		return appendAudit(ctx, tx, id, Event(req.To), req.Actor, now, payloadJSON)
	})
}

// BeginExecution marks a confirmed proposal as running, before the command
// starts. It is single-flight: a second caller fails with
// ErrExecutionInProgress, and once set no transition except to Executed is
// accepted.
func (s *Store) BeginExecution(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := lockProposal(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Status != StatusConfirmed {
			return &StatusConflictError{ID: id, Expected: StatusConfirmed, Actual: current.Status}
		}
		if current.Executing {
			return ErrExecutionInProgress
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE proposals SET executing = 1 WHERE id = ?`, id); err != nil {
			return fmt.Errorf("mark executing: %w", err)
		}
		return nil
	})
}

// AbortExecution clears the running mark for a command that never started,
// leaving the proposal confirmed and cancellable again.
func (s *Store) AbortExecution(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE proposals SET executing = 0 WHERE id = ? AND status = ?`,
		id, string(StatusConfirmed))
	if err != nil {
		return fmt.Errorf("clear executing: %w", err)
	}
	return nil
}

func lockProposal(ctx context.Context, tx *sql.Tx, id string) (Proposal, error) {
	row := tx.QueryRowContext(ctx, querySelectProposal, id)
	p, err := scanProposal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Proposal{}, ErrNotFound
	}
	return p, err
}

// consumeToken enforces the single-use token contract. Mismatch and reuse
// both fail without any state change because the surrounding transaction
// rolls back.
func consumeToken(p Proposal, presented string) error {
	if p.tokenConsumed {
		return ErrTokenConsumed
	}
	if presented == "" || !token.Matches(presented, p.tokenHash) {
		return ErrTokenMismatch
	}
	return nil
}

func applyUpdate(ctx context.Context, tx *sql.Tx, id string, req TransitionRequest, now time.Time) error {
	nowStr := now.Format(timeLayout)

	switch req.To {
	case StatusConfirmed:
		_, err := tx.ExecContext(ctx, `
			UPDATE proposals
			SET status = ?, token_consumed = 1, decided_at = ?, not_before = ?
			WHERE id = ?`,
			string(StatusConfirmed), nowStr, nullableTime(req.NotBefore), id)
		if err != nil {
			return fmt.Errorf("confirm proposal: %w", err)
		}
		return nil

	case StatusExecuted:
		resultJSON, err := json.Marshal(req.Result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE proposals SET status = ?, executing = 0, executed_at = ?, result = ? WHERE id = ?`,
			string(StatusExecuted), nowStr, string(resultJSON), id)
		if err != nil {
			return fmt.Errorf("mark executed: %w", err)
		}
		return nil

	case StatusRejected, StatusExpired:
		_, err := tx.ExecContext(ctx, `
			UPDATE proposals
			SET status = ?, decided_at = COALESCE(decided_at, ?)
			WHERE id = ?`,
			string(req.To), nowStr, id)
		if err != nil {
			return fmt.Errorf("mark %s: %w", req.To, err)
		}
		return nil
	}

	return fmt.Errorf("unsupported target status %s", req.To)
}
