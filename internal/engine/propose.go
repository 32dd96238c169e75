package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/adina8244/grounded-git-mcp-server/internal/gitx"
	"github.com/adina8244/grounded-git-mcp-server/internal/guard"
	"github.com/adina8244/grounded-git-mcp-server/internal/store"
	"github.com/adina8244/grounded-git-mcp-server/internal/token"
)

// ProposeOptions are the caller-supplied guardrails on a proposal.
type ProposeOptions struct {
	ExpectedBranch string `json:"expected_branch,omitempty"`
	RequireClean   bool   `json:"require_clean,omitempty"`
}

// Outcome is the result of classify-and-maybe-run: exactly one of Executed,
// Proposal or Refusal is set, depending on the risk tier.
type Outcome struct {
	Tier     gitx.RiskTier   `json:"tier"`
	Reasons  []string        `json:"reasons"`
	Executed *gitx.Result    `json:"executed,omitempty"` // read-only: ran immediately, no state
	Proposal *store.Proposal `json:"proposal,omitempty"` // mutating: awaits confirmation
	Token    string          `json:"token,omitempty"`    // returned exactly once, never stored plain
	Refusal  *Refusal        `json:"refusal,omitempty"`  // destructive: never executable
}

// Refusal records that a destructive command was explained and refused.
type Refusal struct {
	ID          string `json:"id"`
	Explanation string `json:"explanation"`
}

// Propose classifies a git command and dispatches on tier: read-only runs
// immediately with no state, destructive is refused with an audit record,
// mutating becomes a Proposed proposal with a freshly minted token.
func (e *Engine) Propose(ctx context.Context, root string, args []string, opts ProposeOptions) (Outcome, error) {
	resolved, err := gitx.ResolveRoot(ctx, root)
	if err != nil {
		return Outcome{}, &Failure{Kind: KindClassification, Message: "cannot resolve repository", Err: err}
	}

	cmd, err := gitx.Parse(resolved, args)
	if err != nil {
		return Outcome{}, &Failure{Kind: KindClassification, Message: "cannot parse command", Err: err}
	}

	reasons := gitx.ClassifyReasons(cmd)

	switch cmd.Tier {
	case gitx.TierReadOnly:
		return e.runReadOnly(ctx, cmd, reasons)
	case gitx.TierDestructive:
		return e.refuseDestructive(ctx, cmd, reasons)
	default:
		return e.createProposal(ctx, cmd, opts, reasons)
	}
}

func (e *Engine) runReadOnly(ctx context.Context, cmd gitx.Command, reasons []string) (Outcome, error) {
	res, err := e.readRunner(cmd.Root).Run(ctx, cmd.Args...)
	if err != nil {
		return Outcome{}, fmt.Errorf("run read-only command: %w", err)
	}
	return Outcome{Tier: cmd.Tier, Reasons: reasons, Executed: &res}, nil
}

// refuseDestructive records the refusal durably. No proposal is created and
// no execution path exists for this tier.
func (e *Engine) refuseDestructive(ctx context.Context, cmd gitx.Command, reasons []string) (Outcome, error) {
	id := store.NewID()
	payload := map[string]any{
		"command":     cmd.String(),
		"fingerprint": cmd.Fingerprint(),
		"tier":        cmd.Tier,
		"reasons":     reasons,
	}
	if err := e.store.AppendDenied(ctx, id, store.ActorEngine, payload); err != nil {
		return Outcome{}, storageFailure(err)
	}

	log.Warn().Str("id", id).Str("command", cmd.String()).Msg("destructive command refused")

	return Outcome{
		Tier:    cmd.Tier,
		Reasons: reasons,
		Refusal: &Refusal{ID: id, Explanation: reasons[0]},
	}, nil
}

func (e *Engine) createProposal(ctx context.Context, cmd gitx.Command, opts ProposeOptions, reasons []string) (Outcome, error) {
	cfg := e.policy.Current()
	runner := e.readRunner(cmd.Root)

	snap, err := gitx.TakeSnapshot(ctx, runner)
	if err != nil {
		return Outcome{}, fmt.Errorf("snapshot repository: %w", err)
	}

	gctx := guard.Context{
		ExpectedHead:   snap.HeadCommit,
		ExpectedBranch: opts.ExpectedBranch,
		TargetBranch:   guard.TargetBranch(cmd),
	}
	names := guard.Select(cmd, guard.Options{
		ExpectedBranch: opts.ExpectedBranch,
		RequireClean:   opts.RequireClean,
	}, cfg.GuardOverrides())

	results, err := guard.NewEvaluator(runner).EvaluateWith(ctx, snap, names, gctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("evaluate guards: %w", err)
	}

	plain, hash, err := token.Issue()
	if err != nil {
		return Outcome{}, fmt.Errorf("issue token: %w", err)
	}

	now := time.Now().UTC()
	p := store.Proposal{
		ID:           store.NewID(),
		Root:         cmd.Root,
		Verb:         string(cmd.Verb),
		Args:         cmd.Args,
		Tier:         cmd.Tier,
		Fingerprint:  cmd.Fingerprint(),
		Status:       store.StatusProposed,
		GuardNames:   names,
		GuardContext: gctx,
		Guards:       results,
		CreatedAt:    now,
		ExpiresAt:    now.Add(cfg.ProposalTTL.Std()),
	}

	payload := map[string]any{
		"command":     cmd.String(),
		"fingerprint": p.Fingerprint,
		"guards":      results,
		"reasons":     reasons,
	}
	if err := e.store.CreateProposal(ctx, p, hash, payload); err != nil {
		return Outcome{}, storageFailure(err)
	}

	e.notifyWatchers()
	log.Info().Str("id", p.ID).Str("command", cmd.String()).Time("expires_at", p.ExpiresAt).Msg("proposal created")

	return Outcome{Tier: cmd.Tier, Reasons: reasons, Proposal: &p, Token: plain}, nil
}
