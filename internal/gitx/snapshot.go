package gitx

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Snapshot is the live repository state a guard needs. It is computed fresh
// on every precondition check and never cached: arbitrary time may pass
// between proposal, confirmation and execution, and the repository is
// mutable by anyone in the meantime.
type Snapshot struct {
	HeadRef          string `json:"head_ref"`
	HeadCommit       string `json:"head_commit"`
	Branch           string `json:"branch"`
	StagedChanges    bool   `json:"staged_changes"`
	UnstagedChanges  bool   `json:"unstaged_changes"`
	UntrackedFiles   bool   `json:"untracked_files"`
	HasConflicts     bool   `json:"has_conflicts"`
	MergeInProgress  bool   `json:"merge_in_progress"`
	RebaseInProgress bool   `json:"rebase_in_progress"`
}

// Clean reports whether the working tree and index carry no pending changes.
func (s Snapshot) Clean() bool {
	return !s.StagedChanges && !s.UnstagedChanges
}

// TakeSnapshot inspects the repository with read-only git queries. It never
// mutates anything and is safe to call any number of times.
func TakeSnapshot(ctx context.Context, r *Runner) (Snapshot, error) {
	var snap Snapshot

	head, err := r.Run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return snap, fmt.Errorf("snapshot HEAD: %w", err)
	}
	if head.ExitCode == 0 {
		snap.HeadCommit = strings.TrimSpace(head.Stdout)
	}

	ref, err := r.Run(ctx, "symbolic-ref", "-q", "HEAD")
	if err != nil {
		return snap, fmt.Errorf("snapshot ref: %w", err)
	}
	if ref.ExitCode == 0 {
		snap.HeadRef = strings.TrimSpace(ref.Stdout)
		snap.Branch = strings.TrimPrefix(snap.HeadRef, "refs/heads/")
	}

	status, err := r.Run(ctx, "status", "--porcelain")
	if err != nil {
		return snap, fmt.Errorf("snapshot status: %w", err)
	}
	parseStatusInto(&snap, status.Stdout)

	snap.MergeInProgress = gitStateFileExists(r.Root(), "MERGE_HEAD")
	snap.RebaseInProgress = gitStateFileExists(r.Root(), "rebase-merge") ||
		gitStateFileExists(r.Root(), "rebase-apply")

	return snap, nil
}

// BranchExists checks for a local branch by name.
func BranchExists(ctx context.Context, r *Runner, branch string) (bool, error) {
	res, err := r.Run(ctx, "rev-parse", "--verify", "-q", "refs/heads/"+branch)
	if err != nil {
		return false, fmt.Errorf("verify branch: %w", err)
	}
	return res.ExitCode == 0, nil
}

func parseStatusInto(snap *Snapshot, porcelain string) {
	for _, line := range strings.Split(porcelain, "\n") {
		if len(line) < 2 {
			continue
		}
		x, y := line[0], line[1]

		switch {
		case x == '?' && y == '?':
			snap.UntrackedFiles = true
		case isConflictCode(x, y):
			snap.HasConflicts = true
		default:
			if x != ' ' {
				snap.StagedChanges = true
			}
			if y != ' ' {
				snap.UnstagedChanges = true
			}
		}
	}
}

// Conflict codes per git-status(1): DD, AU, UD, UA, DU, AA, UU.
func isConflictCode(x, y byte) bool {
	if x == 'U' || y == 'U' {
		return true
	}
	return (x == 'D' && y == 'D') || (x == 'A' && y == 'A')
}

func gitStateFileExists(root, name string) bool {
	_, err := os.Stat(filepath.Join(root, ".git", name))
	return err == nil
}
