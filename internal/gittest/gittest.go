// Package gittest builds throwaway git repositories for tests. Tests that
// need a real git binary skip when one is not installed.
package gittest

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// InitRepo creates a repository in a temp dir with one initial commit on
// branch main and returns its root.
func InitRepo(t *testing.T) string {
	t.Helper()
	RequireGit(t)

	root := t.TempDir()
	Git(t, root, "init", "-q", "-b", "main")
	Git(t, root, "config", "user.email", "test@example.com")
	Git(t, root, "config", "user.name", "Test User")

	WriteFile(t, root, "README.md", "hello\n")
	Git(t, root, "add", "README.md")
	Git(t, root, "commit", "-q", "-m", "initial commit")

	return root
}

// RequireGit skips the test when git is not on PATH.
func RequireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
}

// Git runs a git command in the repo and fails the test on nonzero exit.
func Git(t *testing.T, root string, args ...string) string {
	t.Helper()

	cmd := exec.Command("git", args...)
	cmd.Dir = root
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s failed: %v\n%s", strings.Join(args, " "), err, out)
	}
	return strings.TrimSpace(string(out))
}

// WriteFile writes content under the repo root.
func WriteFile(t *testing.T, root, name, content string) {
	t.Helper()

	path := filepath.Join(root, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}

// Head returns the current HEAD commit id.
func Head(t *testing.T, root string) string {
	t.Helper()
	return Git(t, root, "rev-parse", "HEAD")
}

// CommitFile writes a file and commits it.
func CommitFile(t *testing.T, root, name, content, message string) {
	t.Helper()
	WriteFile(t, root, name, content)
	Git(t, root, "add", name)
	Git(t, root, "commit", "-q", "-m", message)
}

// CreateConflict sets up an unresolved merge conflict in the working tree.
func CreateConflict(t *testing.T, root string) {
	t.Helper()

	Git(t, root, "checkout", "-q", "-b", "conflict-branch")
	CommitFile(t, root, "conflict.txt", "branch side\n", "branch change")
	Git(t, root, "checkout", "-q", "main")
	CommitFile(t, root, "conflict.txt", "main side\n", "main change")

	cmd := exec.Command("git", "merge", "conflict-branch")
	cmd.Dir = root
	// Merge is expected to fail and leave conflict markers behind.
	if err := cmd.Run(); err == nil {
		t.Fatal("expected merge conflict, merge succeeded")
	}
}
