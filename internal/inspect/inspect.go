// Package inspect holds the read-only repository tools: direct, unguarded
// pass-throughs to git queries with bounded output. Nothing here touches
// the approval engine, takes a repository lock, or mutates state.
package inspect

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/adina8244/grounded-git-mcp-server/internal/gitx"
)

// Inspector bundles a bounded runner for one repository root.
type Inspector struct {
	runner *gitx.Runner
}

func New(runner *gitx.Runner) *Inspector {
	return &Inspector{runner: runner}
}

// RepoInfo is high-level repository metadata, the usual first call of a
// session.
type RepoInfo struct {
	Root    string   `json:"root"`
	Branch  string   `json:"branch"`
	Head    string   `json:"head"`
	Remotes []string `json:"remotes"`
}

func (i *Inspector) RepoInfo(ctx context.Context) (RepoInfo, error) {
	snap, err := gitx.TakeSnapshot(ctx, i.runner)
	if err != nil {
		return RepoInfo{}, err
	}

	info := RepoInfo{
		Root:   i.runner.Root(),
		Branch: snap.Branch,
		Head:   snap.HeadCommit,
	}

	remotes, err := i.runner.Run(ctx, "remote")
	if err != nil {
		return RepoInfo{}, err
	}
	info.Remotes = nonEmptyLines(remotes.Stdout)

	return info, nil
}

// StatusEntry is one porcelain status line.
type StatusEntry struct {
	Code string `json:"code"`
	Path string `json:"path"`
}

// Status returns porcelain status entries, truncated at maxEntries to
// prevent runaway output on large repos.
func (i *Inspector) Status(ctx context.Context, maxEntries int) ([]StatusEntry, bool, error) {
	res, err := i.runner.Run(ctx, "status", "--porcelain")
	if err != nil {
		return nil, false, err
	}

	lines := nonEmptyLines(res.Stdout)
	truncated := false
	if maxEntries > 0 && len(lines) > maxEntries {
		lines = lines[:maxEntries]
		truncated = true
	}

	entries := make([]StatusEntry, 0, len(lines))
	for _, line := range lines {
		if len(line) < 3 {
			continue
		}
		entries = append(entries, StatusEntry{Code: line[:2], Path: strings.TrimSpace(line[3:])})
	}
	return entries, truncated, nil
}

// Commit is one log entry.
type Commit struct {
	Hash    string `json:"hash"`
	Author  string `json:"author"`
	Date    string `json:"date"`
	Subject string `json:"subject"`
}

// Log returns the n most recent commits.
func (i *Inspector) Log(ctx context.Context, n int) ([]Commit, error) {
	if n <= 0 {
		n = 20
	}
	res, err := i.runner.Run(ctx, "log", "-n", strconv.Itoa(n), "--pretty=format:%H%x1f%an%x1f%aI%x1f%s")
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("git log: %s", strings.TrimSpace(res.Stderr))
	}

	var commits []Commit
	for _, line := range nonEmptyLines(res.Stdout) {
		parts := strings.SplitN(line, "\x1f", 4)
		if len(parts) != 4 {
			continue
		}
		commits = append(commits, Commit{Hash: parts[0], Author: parts[1], Date: parts[2], Subject: parts[3]})
	}
	return commits, nil
}

// DiffSummary lists changed files with stats, compact by design; callers
// wanting full patches use DiffRange.
func (i *Inspector) DiffSummary(ctx context.Context, staged bool, against string) ([]string, error) {
	args := []string{"diff", "--stat"}
	if staged {
		args = append(args, "--cached")
	}
	if against != "" {
		args = append(args, against)
	}

	res, err := i.runner.Run(ctx, args...)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("git diff: %s", strings.TrimSpace(res.Stderr))
	}
	return nonEmptyLines(res.Stdout), nil
}

// ShowCommit returns commit details, optionally with its patch. Output is
// bounded by the runner's output cap.
func (i *Inspector) ShowCommit(ctx context.Context, commit string, patch bool) (string, bool, error) {
	args := []string{"show", "--stat"}
	if patch {
		args = []string{"show"}
	}
	args = append(args, commit)

	res, err := i.runner.Run(ctx, args...)
	if err != nil {
		return "", false, err
	}
	if res.ExitCode != 0 {
		return "", false, fmt.Errorf("git show: %s", strings.TrimSpace(res.Stderr))
	}
	return res.Stdout, res.Truncated, nil
}

// Grep searches tracked content for a pattern.
func (i *Inspector) Grep(ctx context.Context, pattern, pathspec string, ignoreCase bool) ([]string, error) {
	args := []string{"grep", "-n"}
	if ignoreCase {
		args = append(args, "-i")
	}
	args = append(args, "-e", pattern)
	if pathspec != "" {
		args = append(args, "--", pathspec)
	}

	res, err := i.runner.Run(ctx, args...)
	if err != nil {
		return nil, err
	}
	// Exit 1 means no matches, which is a valid empty result.
	if res.ExitCode > 1 {
		return nil, fmt.Errorf("git grep: %s", strings.TrimSpace(res.Stderr))
	}
	return nonEmptyLines(res.Stdout), nil
}

// Blame returns blame output for an inclusive line range of a file.
func (i *Inspector) Blame(ctx context.Context, path string, startLine, endLine int) ([]string, error) {
	if startLine <= 0 {
		startLine = 1
	}
	if endLine < startLine {
		endLine = startLine + 199
	}

	res, err := i.runner.Run(ctx, "blame",
		"-L", fmt.Sprintf("%d,%d", startLine, endLine), "--", path)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("git blame: %s", strings.TrimSpace(res.Stderr))
	}
	return nonEmptyLines(res.Stdout), nil
}

// DetectConflicts reports whether unresolved conflicts or an in-progress
// merge/rebase exist. Intended as a safety probe before write flows.
func (i *Inspector) DetectConflicts(ctx context.Context) (gitx.Snapshot, error) {
	return gitx.TakeSnapshot(ctx, i.runner)
}

func nonEmptyLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
