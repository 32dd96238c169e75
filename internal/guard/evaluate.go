package guard

import (
	"context"
	"fmt"

	"github.com/adina8244/grounded-git-mcp-server/internal/gitx"
)

// Evaluator evaluates a fixed, ordered set of named guards against a fresh
// repository snapshot. The guard set for a proposal is selected once, at
// classification time, and re-used verbatim at confirm and execute time so
// re-evaluation checks the same predicates, never a set recomputed from
// mutated state.
type Evaluator struct {
	runner *gitx.Runner
}

func NewEvaluator(r *gitx.Runner) *Evaluator {
	return &Evaluator{runner: r}
}

// Evaluate runs each named guard against a snapshot taken now. Results come
// back in the same order as names. Read-only and side-effect free.
func (e *Evaluator) Evaluate(ctx context.Context, names []Name, gctx Context) ([]Result, error) {
	snap, err := gitx.TakeSnapshot(ctx, e.runner)
	if err != nil {
		return nil, fmt.Errorf("take snapshot: %w", err)
	}
	return e.EvaluateWith(ctx, snap, names, gctx)
}

// EvaluateWith evaluates against a snapshot the caller already holds, so
// proposal creation can record the exact state it judged.
func (e *Evaluator) EvaluateWith(ctx context.Context, snap gitx.Snapshot, names []Name, gctx Context) ([]Result, error) {
	results := make([]Result, 0, len(names))
	for _, name := range names {
		res, err := e.evaluateOne(ctx, name, snap, gctx)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (e *Evaluator) evaluateOne(ctx context.Context, name Name, snap gitx.Snapshot, gctx Context) (Result, error) {
	switch name {
	case HeadUnchanged:
		return headUnchanged(snap, gctx), nil
	case NoConflicts:
		return boolGuard(name, !snap.HasConflicts,
			"no unresolved conflicts", "unresolved merge conflicts present"), nil
	case CleanWorktree:
		return boolGuard(name, snap.Clean(),
			"working tree clean", "working tree has uncommitted changes"), nil
	case NoStagedChanges:
		return boolGuard(name, !snap.StagedChanges,
			"index empty", "staged changes would be discarded"), nil
	case BranchMatches:
		return branchMatches(snap, gctx), nil
	case BranchExists:
		return e.branchExists(ctx, gctx)
	case NoOperationInProgress:
		return boolGuard(name, !snap.MergeInProgress && !snap.RebaseInProgress,
			"no merge or rebase in progress", "merge or rebase in progress"), nil
	}
	return Result{}, fmt.Errorf("unknown guard: %s", name)
}

func headUnchanged(snap gitx.Snapshot, gctx Context) Result {
	if gctx.ExpectedHead == "" {
		return Result{Name: HeadUnchanged, Passed: true, Detail: "no expected HEAD recorded yet"}
	}
	if snap.HeadCommit == gctx.ExpectedHead {
		return Result{Name: HeadUnchanged, Passed: true, Detail: "HEAD at " + short(snap.HeadCommit)}
	}
	return Result{
		Name:   HeadUnchanged,
		Passed: false,
		Detail: fmt.Sprintf("HEAD moved from %s to %s", short(gctx.ExpectedHead), short(snap.HeadCommit)),
	}
}

func branchMatches(snap gitx.Snapshot, gctx Context) Result {
	if gctx.ExpectedBranch == "" {
		return Result{Name: BranchMatches, Passed: true, Detail: "no branch expectation"}
	}
	if snap.Branch == gctx.ExpectedBranch {
		return Result{Name: BranchMatches, Passed: true, Detail: "on " + snap.Branch}
	}
	return Result{
		Name:   BranchMatches,
		Passed: false,
		Detail: fmt.Sprintf("on %q, expected %q", snap.Branch, gctx.ExpectedBranch),
	}
}

func (e *Evaluator) branchExists(ctx context.Context, gctx Context) (Result, error) {
	if gctx.TargetBranch == "" {
		return Result{Name: BranchExists, Passed: true, Detail: "no target branch"}, nil
	}

	exists, err := gitx.BranchExists(ctx, e.runner, gctx.TargetBranch)
	if err != nil {
		return Result{}, err
	}
	if exists {
		return Result{Name: BranchExists, Passed: true, Detail: "branch " + gctx.TargetBranch + " exists"}, nil
	}
	return Result{Name: BranchExists, Passed: false, Detail: "branch " + gctx.TargetBranch + " does not exist"}, nil
}

func boolGuard(name Name, passed bool, okDetail, failDetail string) Result {
	detail := okDetail
	if !passed {
		detail = failDetail
	}
	return Result{Name: name, Passed: passed, Detail: detail}
}

func short(commit string) string {
	if len(commit) > 8 {
		return commit[:8]
	}
	if commit == "" {
		return "(none)"
	}
	return commit
}
