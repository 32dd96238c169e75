package gitx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// RunnerConfig bounds every subprocess the runner starts.
type RunnerConfig struct {
	Timeout   time.Duration
	MaxOutput int // bytes kept per stream; beyond that output is truncated
}

// Result captures one git invocation verbatim.
type Result struct {
	ExitCode   int    `json:"exit_code"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	Truncated  bool   `json:"truncated"`
	DurationMS int64  `json:"duration_ms"`
	TimedOut   bool   `json:"timed_out"`
}

// Runner executes git with a discrete argv list. Arguments are never joined
// into a shell string, so untrusted input cannot be interpolated.
type Runner struct {
	root   string
	config RunnerConfig
}

func NewRunner(root string, cfg RunnerConfig) *Runner {
	return &Runner{root: root, config: cfg}
}

// Root returns the resolved repository root the runner is bound to.
func (r *Runner) Root() string {
	return r.root
}

// Run executes "git <args...>" inside the repository root under the
// configured timeout. A nonzero exit is not an error here; it is a Result
// the caller records. Errors are reserved for failures to run at all.
func (r *Runner) Run(ctx context.Context, args ...string) (Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "git", args...)
	cmd.Dir = r.root

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()

	res := Result{
		DurationMS: time.Since(start).Milliseconds(),
	}
	res.Stdout, res.Stderr, res.Truncated = r.truncate(stdout.String(), stderr.String())

	if runCtx.Err() == context.DeadlineExceeded {
		res.TimedOut = true
		res.ExitCode = -1
		log.Warn().Str("root", r.root).Strs("args", args).Dur("timeout", r.config.Timeout).Msg("git command timed out")
		return res, nil
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, fmt.Errorf("run git: %w", err)
	}

	return res, nil
}

func (r *Runner) truncate(stdout, stderr string) (string, string, bool) {
	max := r.config.MaxOutput
	if max <= 0 {
		return stdout, stderr, false
	}

	truncated := false
	if len(stdout) > max {
		stdout = stdout[:max]
		truncated = true
	}
	if len(stderr) > max {
		stderr = stderr[:max]
		truncated = true
	}
	return stdout, stderr, truncated
}

// ResolveRoot resolves any path inside a repository to the repository root,
// using git itself so worktrees and symlinks behave.
func ResolveRoot(ctx context.Context, path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}

	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--show-toplevel")
	cmd.Dir = abs

	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("not a git repository: %s", abs)
	}

	return strings.TrimSpace(string(out)), nil
}
