package inspect_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/adina8244/grounded-git-mcp-server/internal/gittest"
	"github.com/adina8244/grounded-git-mcp-server/internal/gitx"
	"github.com/adina8244/grounded-git-mcp-server/internal/inspect"
)

func newInspector(root string) *inspect.Inspector {
	return inspect.New(gitx.NewRunner(root, gitx.RunnerConfig{
		Timeout:   5 * time.Second,
		MaxOutput: 80000,
	}))
}

func TestRepoInfo(t *testing.T) {
	root := gittest.InitRepo(t)

	info, err := newInspector(root).RepoInfo(context.Background())
	if err != nil {
		t.Fatalf("repo info: %v", err)
	}
	if info.Branch != "main" {
		t.Errorf("branch = %s, want main", info.Branch)
	}
	if info.Head == "" {
		t.Error("expected a head commit")
	}
}

func TestStatusEntriesAndTruncation(t *testing.T) {
	root := gittest.InitRepo(t)
	gittest.WriteFile(t, root, "one.txt", "1\n")
	gittest.WriteFile(t, root, "two.txt", "2\n")
	gittest.WriteFile(t, root, "three.txt", "3\n")

	ins := newInspector(root)
	ctx := context.Background()

	entries, truncated, err := ins.Status(ctx, 0)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(entries) != 3 || truncated {
		t.Fatalf("expected 3 entries untruncated, got %d (truncated=%v)", len(entries), truncated)
	}
	if entries[0].Code != "??" {
		t.Errorf("untracked code = %q", entries[0].Code)
	}

	entries, truncated, err = ins.Status(ctx, 2)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(entries) != 2 || !truncated {
		t.Fatalf("expected 2 entries truncated, got %d (truncated=%v)", len(entries), truncated)
	}
}

func TestLogReturnsCommits(t *testing.T) {
	root := gittest.InitRepo(t)
	gittest.CommitFile(t, root, "a.txt", "a\n", "second commit")
	gittest.CommitFile(t, root, "b.txt", "b\n", "third commit")

	commits, err := newInspector(root).Log(context.Background(), 2)
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	if len(commits) != 2 {
		t.Fatalf("expected 2 commits, got %d", len(commits))
	}
	if commits[0].Subject != "third commit" {
		t.Errorf("newest first: got %q", commits[0].Subject)
	}
	if commits[0].Hash == "" || commits[0].Author == "" || commits[0].Date == "" {
		t.Errorf("incomplete commit: %+v", commits[0])
	}
}

func TestGrep(t *testing.T) {
	root := gittest.InitRepo(t)
	gittest.CommitFile(t, root, "code.go", "package main // needle\n", "add code")

	ins := newInspector(root)
	ctx := context.Background()

	hits, err := ins.Grep(ctx, "needle", "", false)
	if err != nil {
		t.Fatalf("grep: %v", err)
	}
	if len(hits) != 1 || !strings.Contains(hits[0], "code.go") {
		t.Fatalf("unexpected hits: %v", hits)
	}

	hits, err = ins.Grep(ctx, "absent-pattern", "", false)
	if err != nil {
		t.Fatalf("no matches must not be an error: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits, got %v", hits)
	}
}

func TestShowCommitWithPatch(t *testing.T) {
	root := gittest.InitRepo(t)
	gittest.CommitFile(t, root, "patch.txt", "patched line\n", "patch commit")

	out, _, err := newInspector(root).ShowCommit(context.Background(), "HEAD", true)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, "patched line") {
		t.Error("patch output should contain the added line")
	}
}

func TestBlame(t *testing.T) {
	root := gittest.InitRepo(t)
	gittest.CommitFile(t, root, "blame.txt", "first\nsecond\nthird\n", "blame target")

	lines, err := newInspector(root).Blame(context.Background(), "blame.txt", 2, 2)
	if err != nil {
		t.Fatalf("blame: %v", err)
	}
	if len(lines) != 1 || !strings.Contains(lines[0], "second") {
		t.Fatalf("unexpected blame output: %v", lines)
	}
}

func TestDetectConflicts(t *testing.T) {
	root := gittest.InitRepo(t)
	gittest.CreateConflict(t, root)

	snap, err := newInspector(root).DetectConflicts(context.Background())
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if !snap.HasConflicts || !snap.MergeInProgress {
		t.Errorf("conflict state not detected: %+v", snap)
	}
}
