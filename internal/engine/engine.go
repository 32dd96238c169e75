// Package engine is the command safety and approval core: it classifies git
// commands, gates mutating ones behind single-use confirmation tokens,
// re-validates repository preconditions at every check point and hands
// approved commands to the executor.
package engine

import (
	"context"
	"fmt"

	"github.com/adina8244/grounded-git-mcp-server/internal/executor"
	"github.com/adina8244/grounded-git-mcp-server/internal/gitx"
	"github.com/adina8244/grounded-git-mcp-server/internal/guard"
	"github.com/adina8244/grounded-git-mcp-server/internal/policy"
	"github.com/adina8244/grounded-git-mcp-server/internal/store"
)

// Engine wires the proposal store, guard evaluator, policy and executor.
// All dependencies are injected; the engine holds no global state.
type Engine struct {
	store    *store.Store
	exec     *executor.Executor
	policy   *policy.Store
	notifyCh chan struct{}
}

func New(st *store.Store, exec *executor.Executor, pol *policy.Store) *Engine {
	return &Engine{
		store:    st,
		exec:     exec,
		policy:   pol,
		notifyCh: make(chan struct{}, 100),
	}
}

// NotifyChannel signals watchers (the WebSocket hub) after any proposal
// state change. Best-effort, never blocks.
func (e *Engine) NotifyChannel() <-chan struct{} {
	return e.notifyCh
}

// Store exposes the proposal store for read paths (list, audit queries).
func (e *Engine) Store() *store.Store {
	return e.store
}

func (e *Engine) notifyWatchers() {
	select {
	case e.notifyCh <- struct{}{}:
	default:
	}
}

// readRunner builds a runner bounded for read-only queries and guard
// snapshots.
func (e *Engine) readRunner(root string) *gitx.Runner {
	cfg := e.policy.Current()
	return gitx.NewRunner(root, gitx.RunnerConfig{
		Timeout:   cfg.ReadTimeout.Std(),
		MaxOutput: cfg.MaxOutputBytes,
	})
}

// evaluateStored re-evaluates a proposal's fixed guard set against a fresh
// snapshot. Used at confirm and execute time.
func (e *Engine) evaluateStored(ctx context.Context, p store.Proposal) ([]guard.Result, error) {
	ev := guard.NewEvaluator(e.readRunner(p.Root))
	results, err := ev.Evaluate(ctx, p.GuardNames, p.GuardContext)
	if err != nil {
		return nil, fmt.Errorf("evaluate guards: %w", err)
	}
	return results, nil
}
