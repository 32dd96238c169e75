// Package executor runs approved git commands under per-repository mutual
// exclusion. Two mutating commands against the same repository root never
// run with overlapping effect; commands against different roots proceed in
// parallel.
package executor

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/adina8244/grounded-git-mcp-server/internal/gitx"
)

// ErrRepoBusy is returned when another execution holds the repository lock.
// The caller fails fast rather than queueing behind an unknown-length run.
var ErrRepoBusy = errors.New("another execution holds the repository lock")

// Executor owns the lock registry. One instance per process, injected where
// needed; never ambient state.
type Executor struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New() *Executor {
	return &Executor{locks: make(map[string]*sync.Mutex)}
}

// Run executes the command under the root's exclusive lock with the given
// bounds. A nonzero exit or a timeout is a Result, not an error: those are
// outcomes the caller records, distinct from a refusal to run at all.
func (e *Executor) Run(ctx context.Context, cmd gitx.Command, cfg gitx.RunnerConfig) (gitx.Result, error) {
	release, ok := e.tryAcquire(cmd.Root)
	if !ok {
		return gitx.Result{}, ErrRepoBusy
	}
	defer release()

	log.Info().Str("root", cmd.Root).Str("command", cmd.String()).Msg("executing approved command")

	runner := gitx.NewRunner(cmd.Root, cfg)
	return runner.Run(ctx, cmd.Args...)
}

// tryAcquire takes the per-root lock without blocking. Read-only tool calls
// and guard evaluation never go through here; only execution contends.
func (e *Executor) tryAcquire(root string) (func(), bool) {
	e.mu.Lock()
	lock, ok := e.locks[root]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[root] = lock
	}
	e.mu.Unlock()

	if !lock.TryLock() {
		return nil, false
	}
	return lock.Unlock, true
}
