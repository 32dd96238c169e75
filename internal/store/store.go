package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const timeLayout = time.RFC3339Nano

// Store is the single source of truth for proposal lifecycle plus the
// append-only audit log. Both live in one SQLite database so a transition
// and its audit record commit in the same transaction.
type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}

	if err := s.initializeSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initializeSchema() error {
	for _, stmt := range schemaStatements() {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("execute schema: %w", err)
		}
	}
	return nil
}

// CreateProposal inserts a fresh proposal in status "proposed" and appends
// its "proposed" audit record in the same transaction. tokenHash is the
// stored form of the single-use confirmation token.
func (s *Store) CreateProposal(ctx context.Context, p Proposal, tokenHash string, payload any) error {
	if p.ID == "" {
		return fmt.Errorf("proposal id required")
	}
	if p.Status != StatusProposed {
		return fmt.Errorf("new proposals must start as %s", StatusProposed)
	}

	args, guards, names, gctx, err := marshalProposalFields(p)
	if err != nil {
		return err
	}
	payloadJSON, err := marshalPayload(payload)
	if err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, queryInsertProposal,
			p.ID, p.Root, p.Verb, args, string(p.Tier), p.Fingerprint, string(p.Status),
			tokenHash, names, gctx, guards,
			p.CreatedAt.UTC().Format(timeLayout),
			p.ExpiresAt.UTC().Format(timeLayout),
			nullableTime(p.NotBefore),
		)
		if err != nil {
			return fmt.Errorf("insert proposal: %w", err)
		}

		return appendAudit(ctx, tx, p.ID, EventProposed, ActorAgent, p.CreatedAt, payloadJSON)
	})
}

// Get returns one proposal by id.
func (s *Store) Get(ctx context.Context, id string) (Proposal, error) {
	row := s.db.QueryRowContext(ctx, querySelectProposal, id)
	p, err := scanProposal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Proposal{}, ErrNotFound
	}
	return p, err
}

// List returns proposals matching the filter, newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Proposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM proposals`
	var args []any
	var where []string

	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Root != "" {
		where = append(where, "root = ?")
		args = append(args, f.Root)
	}
	for i, clause := range where {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()

	return scanProposals(rows)
}

// DueForExecution returns confirmed proposals whose deferral has elapsed.
func (s *Store) DueForExecution(ctx context.Context, now time.Time) ([]Proposal, error) {
	rows, err := s.db.QueryContext(ctx, querySelectDue, now.UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("query due proposals: %w", err)
	}
	defer rows.Close()

	return scanProposals(rows)
}

// Overdue returns live proposals past their time-to-live.
func (s *Store) Overdue(ctx context.Context, now time.Time) ([]Proposal, error) {
	rows, err := s.db.QueryContext(ctx, querySelectOverdue, now.UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("query overdue proposals: %w", err)
	}
	defer rows.Close()

	return scanProposals(rows)
}

// NewID generates a proposal id.
func NewID() string {
	return uuid.New().String()
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Warn().Err(rbErr).Msg("rollback failed")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func marshalProposalFields(p Proposal) (args, guards, names, gctx string, err error) {
	argsJSON, err := json.Marshal(p.Args)
	if err != nil {
		return "", "", "", "", fmt.Errorf("marshal args: %w", err)
	}
	guardsJSON, err := json.Marshal(p.Guards)
	if err != nil {
		return "", "", "", "", fmt.Errorf("marshal guards: %w", err)
	}
	namesJSON, err := json.Marshal(p.GuardNames)
	if err != nil {
		return "", "", "", "", fmt.Errorf("marshal guard names: %w", err)
	}
	ctxJSON, err := json.Marshal(p.GuardContext)
	if err != nil {
		return "", "", "", "", fmt.Errorf("marshal guard context: %w", err)
	}
	return string(argsJSON), string(guardsJSON), string(namesJSON), string(ctxJSON), nil
}

func marshalPayload(payload any) (string, error) {
	if payload == nil {
		return "{}", nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return string(data), nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeLayout)
}
