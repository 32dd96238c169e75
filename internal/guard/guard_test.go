package guard_test

import (
	"context"
	"testing"
	"time"

	"github.com/adina8244/grounded-git-mcp-server/internal/gittest"
	"github.com/adina8244/grounded-git-mcp-server/internal/gitx"
	"github.com/adina8244/grounded-git-mcp-server/internal/guard"
)

func newEvaluator(root string) *guard.Evaluator {
	return guard.NewEvaluator(gitx.NewRunner(root, gitx.RunnerConfig{
		Timeout:   5 * time.Second,
		MaxOutput: 80000,
	}))
}

func TestEvaluateAllPassOnCleanRepo(t *testing.T) {
	root := gittest.InitRepo(t)
	head := gittest.Head(t, root)

	names := []guard.Name{
		guard.HeadUnchanged, guard.NoConflicts, guard.CleanWorktree,
		guard.NoStagedChanges, guard.NoOperationInProgress,
	}
	results, err := newEvaluator(root).Evaluate(context.Background(), names, guard.Context{ExpectedHead: head})
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}

	if len(results) != len(names) {
		t.Fatalf("expected %d results, got %d", len(names), len(results))
	}
	if !guard.AllPassed(results) {
		fail, _ := guard.FirstFailure(results)
		t.Fatalf("unexpected failure: %s: %s", fail.Name, fail.Detail)
	}
	for i, r := range results {
		if r.Name != names[i] {
			t.Errorf("result %d: expected %s, got %s", i, names[i], r.Name)
		}
	}
}

func TestHeadUnchangedFailsAfterCommit(t *testing.T) {
	root := gittest.InitRepo(t)
	head := gittest.Head(t, root)

	gittest.CommitFile(t, root, "later.txt", "later\n", "later commit")

	results, err := newEvaluator(root).Evaluate(context.Background(),
		[]guard.Name{guard.HeadUnchanged}, guard.Context{ExpectedHead: head})
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}

	fail, ok := guard.FirstFailure(results)
	if !ok {
		t.Fatal("expected head_unchanged to fail after a new commit")
	}
	if fail.Name != guard.HeadUnchanged {
		t.Errorf("expected head_unchanged, got %s", fail.Name)
	}
}

func TestCleanWorktreeFailsOnDirtyRepo(t *testing.T) {
	root := gittest.InitRepo(t)
	gittest.WriteFile(t, root, "README.md", "dirty\n")

	results, err := newEvaluator(root).Evaluate(context.Background(),
		[]guard.Name{guard.CleanWorktree}, guard.Context{})
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if guard.AllPassed(results) {
		t.Fatal("expected clean_worktree to fail")
	}
}

func TestNoConflictsFailsMidMerge(t *testing.T) {
	root := gittest.InitRepo(t)
	gittest.CreateConflict(t, root)

	results, err := newEvaluator(root).Evaluate(context.Background(),
		[]guard.Name{guard.NoConflicts, guard.NoOperationInProgress}, guard.Context{})
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}

	for _, r := range results {
		if r.Passed {
			t.Errorf("guard %s should fail during a conflicted merge", r.Name)
		}
	}
}

func TestBranchGuards(t *testing.T) {
	root := gittest.InitRepo(t)
	ev := newEvaluator(root)
	ctx := context.Background()

	results, err := ev.Evaluate(ctx, []guard.Name{guard.BranchMatches},
		guard.Context{ExpectedBranch: "main"})
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if !guard.AllPassed(results) {
		t.Error("branch_matches should pass on main")
	}

	results, err = ev.Evaluate(ctx, []guard.Name{guard.BranchMatches},
		guard.Context{ExpectedBranch: "release"})
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if guard.AllPassed(results) {
		t.Error("branch_matches should fail when expecting release")
	}

	results, err = ev.Evaluate(ctx, []guard.Name{guard.BranchExists},
		guard.Context{TargetBranch: "missing-branch"})
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if guard.AllPassed(results) {
		t.Error("branch_exists should fail for a missing branch")
	}
}

func TestEvaluateUnknownGuard(t *testing.T) {
	root := gittest.InitRepo(t)

	_, err := newEvaluator(root).Evaluate(context.Background(),
		[]guard.Name{"bogus"}, guard.Context{})
	if err == nil {
		t.Fatal("expected error for unknown guard name")
	}
}

func mustParse(t *testing.T, args ...string) gitx.Command {
	t.Helper()
	cmd, err := gitx.Parse("/repo", args)
	if err != nil {
		t.Fatalf("parse %v: %v", args, err)
	}
	return cmd
}

func TestSelectDefaults(t *testing.T) {
	cmd := mustParse(t, "commit", "-m", "msg")
	names := guard.Select(cmd, guard.Options{}, nil)

	want := []guard.Name{guard.HeadUnchanged, guard.NoConflicts}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, names)
		}
	}
}

func TestSelectOptionsAppendWithoutDuplicates(t *testing.T) {
	cmd := mustParse(t, "merge", "feature")
	names := guard.Select(cmd, guard.Options{ExpectedBranch: "main", RequireClean: true}, nil)

	seen := map[guard.Name]int{}
	for _, n := range names {
		seen[n]++
	}
	for n, count := range seen {
		if count > 1 {
			t.Errorf("guard %s selected %d times", n, count)
		}
	}
	if seen[guard.BranchMatches] == 0 {
		t.Error("expected branch_matches from ExpectedBranch option")
	}
	if seen[guard.CleanWorktree] == 0 {
		t.Error("expected clean_worktree from RequireClean option")
	}
	if seen[guard.BranchExists] == 0 {
		t.Error("expected branch_exists for a merge target")
	}
}

func TestSelectPolicyOverride(t *testing.T) {
	cmd := mustParse(t, "commit", "-m", "msg")
	overrides := map[string][]guard.Name{
		"commit": {guard.NoConflicts},
	}
	names := guard.Select(cmd, guard.Options{}, overrides)

	if len(names) != 1 || names[0] != guard.NoConflicts {
		t.Fatalf("expected override [no_conflicts], got %v", names)
	}
}

func TestTargetBranchExtraction(t *testing.T) {
	cases := []struct {
		args []string
		want string
	}{
		{[]string{"merge", "feature"}, "feature"},
		{[]string{"switch", "dev"}, "dev"},
		{[]string{"checkout", "-q", "topic"}, "topic"},
		{[]string{"commit", "-m", "msg"}, ""},
	}
	for _, tc := range cases {
		cmd := mustParse(t, tc.args...)
		if got := guard.TargetBranch(cmd); got != tc.want {
			t.Errorf("TargetBranch(%v) = %q, want %q", tc.args, got, tc.want)
		}
	}
}
