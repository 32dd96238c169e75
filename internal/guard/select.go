package guard

import (
	"github.com/adina8244/grounded-git-mcp-server/internal/gitx"
)

// Options are the caller-supplied guardrails on a proposal.
type Options struct {
	ExpectedBranch string
	RequireClean   bool
}

// Select picks the guard set for a command. overrides, if non-nil, replaces
// the built-in set for a verb (policy file). The returned set is fixed for
// the proposal's lifetime.
func Select(cmd gitx.Command, opts Options, overrides map[string][]Name) []Name {
	var names []Name
	if override, ok := overrides[string(cmd.Verb)]; ok {
		names = append(names, override...)
	} else {
		names = append(names, defaultsFor(cmd.Verb)...)
	}

	if opts.ExpectedBranch != "" {
		names = appendMissing(names, BranchMatches)
	}
	if opts.RequireClean {
		names = appendMissing(names, CleanWorktree)
	}
	if TargetBranch(cmd) != "" {
		names = appendMissing(names, BranchExists)
	}

	return names
}

// defaultsFor is exhaustive over the mutating verbs; read-only and
// destructive commands never reach guard selection.
func defaultsFor(verb gitx.Verb) []Name {
	switch verb {
	case gitx.VerbCommit:
		return []Name{HeadUnchanged, NoConflicts}
	case gitx.VerbAdd:
		return []Name{NoConflicts}
	case gitx.VerbMerge, gitx.VerbCherryPick, gitx.VerbRevert, gitx.VerbPull:
		return []Name{HeadUnchanged, NoConflicts, NoOperationInProgress, CleanWorktree}
	case gitx.VerbCheckout, gitx.VerbSwitch:
		return []Name{NoConflicts, NoOperationInProgress, NoStagedChanges}
	case gitx.VerbBranch, gitx.VerbTag:
		return []Name{HeadUnchanged}
	case gitx.VerbStash:
		return []Name{NoConflicts, NoOperationInProgress}
	case gitx.VerbFetch, gitx.VerbRemote:
		return []Name{NoOperationInProgress}
	case gitx.VerbPush:
		return []Name{HeadUnchanged, NoConflicts}
	}
	return []Name{HeadUnchanged, NoConflicts, NoOperationInProgress}
}

func appendMissing(names []Name, name Name) []Name {
	for _, n := range names {
		if n == name {
			return names
		}
	}
	return append(names, name)
}
