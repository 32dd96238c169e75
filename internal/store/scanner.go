package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/adina8244/grounded-git-mcp-server/internal/gitx"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProposals(rows *sql.Rows) ([]Proposal, error) {
	var proposals []Proposal

	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		proposals = append(proposals, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return proposals, nil
}

func scanProposal(row rowScanner) (Proposal, error) {
	var p Proposal
	var args, names, gctx, guards, createdAt, expiresAt string
	var tier, status string
	var consumed, executing int
	var notBefore, decidedAt, executedAt, result sql.NullString

	err := row.Scan(
		&p.ID, &p.Root, &p.Verb, &args, &tier, &p.Fingerprint, &status,
		&p.tokenHash, &consumed, &executing, &names, &gctx, &guards,
		&createdAt, &expiresAt, &notBefore, &decidedAt, &executedAt, &result,
	)
	if err != nil {
		return Proposal{}, err
	}

	p.Tier = gitx.RiskTier(tier)
	p.Status = Status(status)
	p.tokenConsumed = consumed != 0
	p.Executing = executing != 0

	if err := unmarshalInto(args, &p.Args, "args"); err != nil {
		return Proposal{}, err
	}
	if err := unmarshalInto(names, &p.GuardNames, "guard names"); err != nil {
		return Proposal{}, err
	}
	if err := unmarshalInto(gctx, &p.GuardContext, "guard context"); err != nil {
		return Proposal{}, err
	}
	if err := unmarshalInto(guards, &p.Guards, "guards"); err != nil {
		return Proposal{}, err
	}
	if result.Valid && result.String != "" && result.String != "null" {
		if err := unmarshalInto(result.String, &p.Result, "result"); err != nil {
			return Proposal{}, err
		}
	}

	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return Proposal{}, err
	}
	if p.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return Proposal{}, err
	}
	if p.NotBefore, err = parseNullTime(notBefore); err != nil {
		return Proposal{}, err
	}
	if p.DecidedAt, err = parseNullTime(decidedAt); err != nil {
		return Proposal{}, err
	}
	if p.ExecutedAt, err = parseNullTime(executedAt); err != nil {
		return Proposal{}, err
	}

	return p, nil
}

func scanAuditRecords(rows *sql.Rows) ([]AuditRecord, error) {
	var records []AuditRecord

	for rows.Next() {
		var r AuditRecord
		var event, actor, ts, payload string

		if err := rows.Scan(&r.ID, &r.ProposalID, &event, &actor, &ts, &payload); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}

		r.Event = Event(event)
		r.Actor = Actor(actor)
		r.Payload = json.RawMessage(payload)

		parsed, err := parseTime(ts)
		if err != nil {
			return nil, err
		}
		r.Timestamp = parsed

		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return records, nil
}

func unmarshalInto(raw string, dest any, what string) error {
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return fmt.Errorf("unmarshal %s: %w", what, err)
	}
	return nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp: %w", err)
	}
	return t, nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
