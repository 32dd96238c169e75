package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/adina8244/grounded-git-mcp-server/internal/guard"
	"github.com/adina8244/grounded-git-mcp-server/internal/store"
)

// Confirm accepts a human approval. Every guard must have passed both when
// the proposal was created and against a fresh snapshot taken here: a moved
// HEAD fails as a stale proposal, any other failing guard as a guard
// failure, and in both cases the proposal stays Proposed so the caller can
// re-propose. Only then is the single-use token consumed, atomically with
// the transition to Confirmed. notBefore, when set, defers execution to the
// scheduler.
func (e *Engine) Confirm(ctx context.Context, id, presented string, actor store.Actor, notBefore *time.Time) (store.Proposal, error) {
	p, err := e.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return store.Proposal{}, tokenFailure("unknown proposal", err)
	}
	if err != nil {
		return store.Proposal{}, storageFailure(err)
	}

	if expired, err := e.expireIfOverdue(ctx, p, actor); err != nil {
		return store.Proposal{}, err
	} else if expired {
		return store.Proposal{}, tokenFailure("proposal expired", nil)
	}

	if p.Status != store.StatusProposed {
		// The token was either consumed by the first confirm or voided by a
		// rejection; presenting it again is a token failure, not a retry.
		payload := map[string]any{"checkpoint": "confirm", "reason": "proposal is " + string(p.Status)}
		if auditErr := e.store.AppendDenied(ctx, p.ID, actor, payload); auditErr != nil {
			return store.Proposal{}, storageFailure(auditErr)
		}
		return store.Proposal{}, tokenFailure("proposal is "+string(p.Status), store.ErrTokenConsumed)
	}

	if fail, bad := guard.FirstFailure(p.Guards); bad {
		// A guard that failed when the snapshot was taken makes the proposal
		// unconfirmable; the caller must fix the repository and re-propose.
		payload := map[string]any{
			"checkpoint": "confirm",
			"guard":      fail.Name,
			"detail":     fail.Detail,
			"reason":     "guard failed at proposal time",
		}
		if auditErr := e.store.AppendDenied(ctx, p.ID, actor, payload); auditErr != nil {
			return store.Proposal{}, storageFailure(auditErr)
		}
		return store.Proposal{}, guardFailure(string(fail.Name), fail.Detail)
	}

	results, err := e.evaluateStored(ctx, p)
	if err != nil {
		return store.Proposal{}, err
	}
	if fail, bad := guard.FirstFailure(results); bad {
		return store.Proposal{}, e.denyGuardFailure(ctx, p, actor, fail, "confirm")
	}

	req := store.TransitionRequest{
		From:      store.StatusProposed,
		To:        store.StatusConfirmed,
		Actor:     actor,
		Token:     presented,
		NotBefore: notBefore,
		Payload: map[string]any{
			"guards":     results,
			"actor":      actor,
			"not_before": notBefore,
		},
	}
	if err := e.store.Transition(ctx, id, req); err != nil {
		return store.Proposal{}, e.classifyConfirmError(ctx, p, actor, err)
	}

	e.notifyWatchers()
	log.Info().Str("id", id).Str("actor", string(actor)).Msg("proposal confirmed")

	confirmed, err := e.store.Get(ctx, id)
	if err != nil {
		return store.Proposal{}, storageFailure(err)
	}
	return confirmed, nil
}

// Cancel rejects a proposal that has not started executing. Works on both
// Proposed and Confirmed (including scheduled-but-not-yet-running); once the
// command is running the cancel fails and the proposal finishes as Executed.
func (e *Engine) Cancel(ctx context.Context, id string, actor store.Actor, reason string) error {
	p, err := e.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return err
	}
	if err != nil {
		return storageFailure(err)
	}

	req := store.TransitionRequest{
		From:    p.Status,
		To:      store.StatusRejected,
		Actor:   actor,
		Payload: map[string]any{"reason": reason, "cancelled_from": p.Status},
	}
	if err := e.store.Transition(ctx, id, req); err != nil {
		if errors.Is(err, store.ErrExecutionInProgress) {
			return &Failure{Kind: KindConcurrentExecution, Message: "execution already started", Err: err}
		}
		var conflict *store.StatusConflictError
		if errors.As(err, &conflict) {
			return conflict
		}
		return storageFailure(err)
	}

	e.notifyWatchers()
	log.Info().Str("id", id).Str("reason", reason).Msg("proposal cancelled")
	return nil
}

// expireIfOverdue transitions a live proposal past its TTL to Expired.
func (e *Engine) expireIfOverdue(ctx context.Context, p store.Proposal, actor store.Actor) (bool, error) {
	if p.Status != store.StatusProposed && p.Status != store.StatusConfirmed {
		return false, nil
	}
	if time.Now().Before(p.ExpiresAt) {
		return false, nil
	}

	req := store.TransitionRequest{
		From:    p.Status,
		To:      store.StatusExpired,
		Actor:   actor,
		Payload: map[string]any{"expired_at": p.ExpiresAt},
	}
	if err := e.store.Transition(ctx, p.ID, req); err != nil {
		if errors.Is(err, store.ErrExecutionInProgress) {
			// The command is already running; it will finish as Executed.
			return false, nil
		}
		var conflict *store.StatusConflictError
		if errors.As(err, &conflict) {
			// Raced with another transition; the other one won.
			return true, nil
		}
		return false, storageFailure(err)
	}

	e.notifyWatchers()
	log.Info().Str("id", p.ID).Msg("proposal expired")
	return true, nil
}

// denyGuardFailure records the failed check without changing proposal state.
func (e *Engine) denyGuardFailure(ctx context.Context, p store.Proposal, actor store.Actor, fail guard.Result, checkpoint string) error {
	payload := map[string]any{
		"checkpoint": checkpoint,
		"guard":      fail.Name,
		"detail":     fail.Detail,
	}
	if err := e.store.AppendDenied(ctx, p.ID, actor, payload); err != nil {
		return storageFailure(err)
	}

	if fail.Name == guard.HeadUnchanged {
		return staleFailure(string(fail.Name), fail.Detail)
	}
	return guardFailure(string(fail.Name), fail.Detail)
}

func (e *Engine) classifyConfirmError(ctx context.Context, p store.Proposal, actor store.Actor, err error) error {
	switch {
	case errors.Is(err, store.ErrTokenMismatch), errors.Is(err, store.ErrTokenConsumed):
		payload := map[string]any{"checkpoint": "confirm", "reason": err.Error()}
		if auditErr := e.store.AppendDenied(ctx, p.ID, actor, payload); auditErr != nil {
			return storageFailure(auditErr)
		}
		return tokenFailure("confirmation rejected", err)
	default:
		var conflict *store.StatusConflictError
		if errors.As(err, &conflict) {
			return conflict
		}
		return storageFailure(err)
	}
}
