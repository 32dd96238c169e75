package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/adina8244/grounded-git-mcp-server/internal/gitx"
	"github.com/adina8244/grounded-git-mcp-server/internal/guard"
)

// Status is the proposal lifecycle. Transitions are monotonic and
// one-directional; nothing ever returns a proposal to an earlier status.
type Status string

const (
	StatusProposed  Status = "proposed"
	StatusConfirmed Status = "confirmed"
	StatusExecuted  Status = "executed"
	StatusRejected  Status = "rejected"
	StatusExpired   Status = "expired"
)

// Event is what an audit record witnesses: the five lifecycle transitions,
// plus "denied" for failure paths that change nothing but must still leave a
// trace (failed confirms, refused destructive commands, lock contention).
type Event string

const (
	EventProposed  Event = "proposed"
	EventConfirmed Event = "confirmed"
	EventExecuted  Event = "executed"
	EventRejected  Event = "rejected"
	EventExpired   Event = "expired"
	EventDenied    Event = "denied"
)

// Actor identifies who drove a transition.
type Actor string

const (
	ActorAgent     Actor = "agent"
	ActorHuman     Actor = "human"
	ActorScheduler Actor = "scheduler"
	ActorEngine    Actor = "engine"
)

// Proposal is the durable record of an intent to run one mutating git
// command. The command, guard set and guard context are fixed at creation.
type Proposal struct {
	ID           string         `json:"id"`
	Root         string         `json:"root"`
	Verb         string         `json:"verb"`
	Args         []string       `json:"args"`
	Tier         gitx.RiskTier  `json:"tier"`
	Fingerprint  string         `json:"fingerprint"`
	Status       Status         `json:"status"`
	GuardNames   []guard.Name   `json:"guard_names"`
	GuardContext guard.Context  `json:"guard_context"`
	Guards       []guard.Result `json:"preconditions_at_proposal"`
	CreatedAt    time.Time      `json:"created_at"`
	ExpiresAt    time.Time      `json:"expires_at"`
	NotBefore    *time.Time     `json:"not_before,omitempty"`
	DecidedAt    *time.Time     `json:"decided_at,omitempty"`
	ExecutedAt   *time.Time     `json:"executed_at,omitempty"`
	Result       *gitx.Result   `json:"result,omitempty"`

	// Executing marks a confirmed proposal whose command is running right
	// now. While set, the only transition out is to Executed: a cancel or
	// expiry can no longer land, so the audit trail cannot claim a refusal
	// for a command that actually ran.
	Executing bool `json:"executing,omitempty"`

	tokenHash     string
	tokenConsumed bool
}

// Command rebuilds the immutable command value for execution.
func (p Proposal) Command() (gitx.Command, error) {
	return gitx.Parse(p.Root, p.Args)
}

// AuditRecord is one immutable entry in the append-only audit log.
type AuditRecord struct {
	ID         int64           `json:"id"`
	ProposalID string          `json:"proposal_id"`
	Event      Event           `json:"event"`
	Actor      Actor           `json:"actor"`
	Timestamp  time.Time       `json:"timestamp"`
	Payload    json.RawMessage `json:"payload"`
}

// Filter narrows List results.
type Filter struct {
	Status Status
	Root   string
}

// TransitionRequest describes one state-machine step. Transition is the only
// mutator on proposals; it verifies From atomically with the update and the
// audit append.
type TransitionRequest struct {
	From      Status
	To        Status
	Actor     Actor
	Payload   any
	Token     string       // presented token, required for proposed->confirmed
	NotBefore *time.Time   // optional deferral, set on confirm
	Result    *gitx.Result // execution outcome, set on executed
}

var (
	ErrNotFound            = errors.New("proposal not found")
	ErrTokenMismatch       = errors.New("token does not match proposal")
	ErrTokenConsumed       = errors.New("token already consumed")
	ErrExecutionInProgress = errors.New("execution already in progress")
)

// StatusConflictError reports a transition attempted from the wrong status.
type StatusConflictError struct {
	ID       string
	Expected Status
	Actual   Status
}

func (e *StatusConflictError) Error() string {
	return fmt.Sprintf("proposal %s is %s, expected %s", e.ID, e.Actual, e.Expected)
}

// allowedTransitions is the whole state machine. Absent pairs are invalid.
var allowedTransitions = map[Status][]Status{
	StatusProposed:  {StatusConfirmed, StatusRejected, StatusExpired},
	StatusConfirmed: {StatusExecuted, StatusRejected, StatusExpired},
}

func transitionAllowed(from, to Status) bool {
	for _, t := range allowedTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}
