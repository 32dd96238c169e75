package guard

import (
	"strings"

	"github.com/adina8244/grounded-git-mcp-server/internal/gitx"
)

// Name identifies one precondition guard. Guards are read-only predicates
// over live repository state; they never mutate the repository or the
// proposal, so evaluating them any number of times is safe.
type Name string

const (
	// HeadUnchanged passes while HEAD still points at the commit captured
	// at proposal time. Its failure is the "stale proposal" signal.
	HeadUnchanged Name = "head_unchanged"
	// NoConflicts passes while the index carries no unresolved merge
	// conflict entries.
	NoConflicts Name = "no_conflicts"
	// CleanWorktree passes while neither index nor working tree carry
	// pending changes.
	CleanWorktree Name = "clean_worktree"
	// NoStagedChanges passes while the index is empty, protecting staged
	// work from being silently discarded.
	NoStagedChanges Name = "no_staged_changes"
	// BranchMatches passes while the checked-out branch is the one the
	// proposer expected.
	BranchMatches Name = "branch_matches"
	// BranchExists passes while the command's target branch exists locally.
	BranchExists Name = "branch_exists"
	// NoOperationInProgress passes while no merge or rebase is underway.
	NoOperationInProgress Name = "no_operation_in_progress"
)

// Result is one guard evaluation. The ordered result set is stored with the
// proposal and compared across the three check points.
type Result struct {
	Name   Name   `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// AllPassed reports whether every guard in the set passed.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

// FirstFailure returns the first failing guard, if any.
func FirstFailure(results []Result) (Result, bool) {
	for _, r := range results {
		if !r.Passed {
			return r, true
		}
	}
	return Result{}, false
}

// Context carries the proposal-time expectations guards compare against.
// It is fixed when the proposal is created and stored with it, so the same
// expectations are enforced at confirm and execute time.
type Context struct {
	ExpectedHead   string `json:"expected_head,omitempty"`
	ExpectedBranch string `json:"expected_branch,omitempty"`
	TargetBranch   string `json:"target_branch,omitempty"`
}

// TargetBranch extracts the branch a command operates on, for the
// branch_exists guard: the first non-flag argument after the verb.
func TargetBranch(cmd gitx.Command) string {
	switch cmd.Verb {
	case gitx.VerbCheckout, gitx.VerbSwitch, gitx.VerbMerge:
	default:
		return ""
	}

	for _, arg := range cmd.Args[1:] {
		if arg == "--" {
			return ""
		}
		if strings.HasPrefix(arg, "-") {
			continue
		}
		return arg
	}
	return ""
}
