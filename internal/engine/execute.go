package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/adina8244/grounded-git-mcp-server/internal/executor"
	"github.com/adina8244/grounded-git-mcp-server/internal/gitx"
	"github.com/adina8244/grounded-git-mcp-server/internal/guard"
	"github.com/adina8244/grounded-git-mcp-server/internal/store"
)

// Execute runs a confirmed proposal. Guards are evaluated a third time
// immediately before running, because arbitrary time may separate confirm
// from execute under deferral: a failing guard here refuses execution and
// marks the proposal Rejected. The run itself holds the per-root lock and a
// bounded timeout. A nonzero exit or timeout still transitions to Executed
// with a failing result payload; "tried and failed" stays distinguishable
// from "refused to try".
func (e *Engine) Execute(ctx context.Context, id string, actor store.Actor) (store.Proposal, error) {
	p, err := e.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return store.Proposal{}, err
	}
	if err != nil {
		return store.Proposal{}, storageFailure(err)
	}

	if p.Status != store.StatusConfirmed {
		return store.Proposal{}, &store.StatusConflictError{ID: id, Expected: store.StatusConfirmed, Actual: p.Status}
	}

	if expired, err := e.expireIfOverdue(ctx, p, actor); err != nil {
		return store.Proposal{}, err
	} else if expired {
		return store.Proposal{}, tokenFailure("proposal expired before execution", nil)
	}

	results, err := e.evaluateStored(ctx, p)
	if err != nil {
		return store.Proposal{}, err
	}
	if fail, bad := guard.FirstFailure(results); bad {
		return store.Proposal{}, e.rejectOnGuardFailure(ctx, p, actor, fail)
	}

	cmd, err := p.Command()
	if err != nil {
		return store.Proposal{}, &Failure{Kind: KindClassification, Message: "stored command invalid", Err: err}
	}

	// Mark the execution as started before running. From here on a cancel
	// or expiry can no longer land, so the Executed transition below is
	// always recordable.
	if err := e.store.BeginExecution(ctx, id); err != nil {
		if errors.Is(err, store.ErrExecutionInProgress) {
			return store.Proposal{}, &Failure{Kind: KindConcurrentExecution, Message: "execution already in progress", Err: err}
		}
		var conflict *store.StatusConflictError
		if errors.As(err, &conflict) {
			return store.Proposal{}, conflict
		}
		return store.Proposal{}, storageFailure(err)
	}

	cfg := e.policy.Current()
	res, err := e.exec.Run(ctx, cmd, gitx.RunnerConfig{
		Timeout:   cfg.ExecTimeout.Std(),
		MaxOutput: cfg.MaxOutputBytes,
	})
	if errors.Is(err, executor.ErrRepoBusy) {
		// Never ran; the proposal stays confirmed and cancellable.
		if abortErr := e.store.AbortExecution(ctx, p.ID); abortErr != nil {
			return store.Proposal{}, storageFailure(abortErr)
		}
		payload := map[string]any{"checkpoint": "execute", "reason": "repository lock held"}
		if auditErr := e.store.AppendDenied(ctx, p.ID, actor, payload); auditErr != nil {
			return store.Proposal{}, storageFailure(auditErr)
		}
		return store.Proposal{}, busyFailure(p.Root)
	}
	if err != nil {
		// Could not start the process at all; record it as a failed run so
		// the attempt is still auditable.
		res = gitx.Result{ExitCode: -1, Stderr: err.Error()}
	}

	req := store.TransitionRequest{
		From:   store.StatusConfirmed,
		To:     store.StatusExecuted,
		Actor:  actor,
		Result: &res,
		Payload: map[string]any{
			"command":   cmd.String(),
			"exit_code": res.ExitCode,
			"timed_out": res.TimedOut,
			"truncated": res.Truncated,
		},
	}
	if err := e.store.Transition(ctx, id, req); err != nil {
		var conflict *store.StatusConflictError
		if errors.As(err, &conflict) {
			return store.Proposal{}, conflict
		}
		return store.Proposal{}, storageFailure(err)
	}

	e.notifyWatchers()
	log.Info().Str("id", id).Int("exit_code", res.ExitCode).Bool("timed_out", res.TimedOut).Msg("proposal executed")

	executed, err := e.store.Get(ctx, id)
	if err != nil {
		return store.Proposal{}, storageFailure(err)
	}

	if res.TimedOut {
		return executed, &Failure{Kind: KindTimeout, Message: "command exceeded execution bound"}
	}
	return executed, nil
}

// rejectOnGuardFailure refuses execution: the proposal moves to Rejected
// with the failing guard recorded, and no command is run.
func (e *Engine) rejectOnGuardFailure(ctx context.Context, p store.Proposal, actor store.Actor, fail guard.Result) error {
	req := store.TransitionRequest{
		From:  store.StatusConfirmed,
		To:    store.StatusRejected,
		Actor: actor,
		Payload: map[string]any{
			"checkpoint": "execute",
			"guard":      fail.Name,
			"detail":     fail.Detail,
		},
	}
	if err := e.store.Transition(ctx, p.ID, req); err != nil {
		var conflict *store.StatusConflictError
		if errors.As(err, &conflict) {
			return conflict
		}
		return storageFailure(err)
	}

	e.notifyWatchers()
	log.Warn().Str("id", p.ID).Str("guard", string(fail.Name)).Str("detail", fail.Detail).Msg("execution refused, proposal rejected")

	if fail.Name == guard.HeadUnchanged {
		return staleFailure(string(fail.Name), fail.Detail)
	}
	return guardFailure(string(fail.Name), fail.Detail)
}

// ConfirmAndMaybeExecute is the common inbound path: confirm, then execute
// immediately unless the caller deferred with notBefore.
func (e *Engine) ConfirmAndMaybeExecute(ctx context.Context, id, presented string, actor store.Actor, notBefore *time.Time) (store.Proposal, error) {
	p, err := e.Confirm(ctx, id, presented, actor, notBefore)
	if err != nil {
		return p, err
	}
	if notBefore != nil {
		return p, nil
	}
	return e.Execute(ctx, id, actor)
}
