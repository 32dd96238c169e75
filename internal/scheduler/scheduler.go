// Package scheduler drives deferred execution. A confirmed proposal may
// carry a not_before time; the scheduler picks it up once that has elapsed
// and hands it to the engine, whose execute-time guard check is the final
// gate. Proposals that outlive their time-to-live are expired instead of
// executed: staleness is preferred over surprising the user with a
// long-delayed mutation.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/adina8244/grounded-git-mcp-server/internal/engine"
	"github.com/adina8244/grounded-git-mcp-server/internal/policy"
	"github.com/adina8244/grounded-git-mcp-server/internal/store"
)

type Scheduler struct {
	engine *engine.Engine
	store  *store.Store
	policy *policy.Store
	done   chan struct{}
}

func New(eng *engine.Engine, st *store.Store, pol *policy.Store) *Scheduler {
	return &Scheduler{
		engine: eng,
		store:  st,
		policy: pol,
		done:   make(chan struct{}),
	}
}

// maxIntervalWait bounds how long Run sleeps in one stretch, so a shorter
// interval arriving through a policy reload is noticed without a restart.
const maxIntervalWait = time.Second

// Run loops until the context ends or Close is called. Each pass expires
// overdue proposals, then dispatches due ones. The interval comes from the
// live policy on every cycle, so a hot reload takes effect in a running
// scheduler.
func (s *Scheduler) Run(ctx context.Context) {
	log.Info().Dur("interval", s.policy.Current().SchedulerInterval.Std()).Msg("deferred scheduler started")

	last := time.Now()
	for {
		interval := s.policy.Current().SchedulerInterval.Std()
		wait := time.Until(last.Add(interval))
		if wait <= 0 {
			s.Sweep(ctx)
			last = time.Now()
			continue
		}
		if wait > maxIntervalWait {
			wait = maxIntervalWait
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.done:
			timer.Stop()
			return
		}
	}
}

func (s *Scheduler) Close() {
	close(s.done)
}

// Sweep runs one pass: expire overdue proposals, then dispatch due ones.
// Run calls it on every tick; callers may also invoke it directly to force
// an immediate pass.
func (s *Scheduler) Sweep(ctx context.Context) {
	now := time.Now().UTC()
	s.expireOverdue(ctx, now)
	s.dispatchDue(ctx, now)
}

func (s *Scheduler) expireOverdue(ctx context.Context, now time.Time) {
	overdue, err := s.store.Overdue(ctx, now)
	if err != nil {
		log.Error().Err(err).Msg("scheduler: overdue query failed")
		return
	}

	for _, p := range overdue {
		req := store.TransitionRequest{
			From:    p.Status,
			To:      store.StatusExpired,
			Actor:   store.ActorScheduler,
			Payload: map[string]any{"expired_at": p.ExpiresAt},
		}
		if err := s.store.Transition(ctx, p.ID, req); err != nil {
			if errors.Is(err, store.ErrExecutionInProgress) {
				continue // already running, will finish as executed
			}
			var conflict *store.StatusConflictError
			if errors.As(err, &conflict) {
				continue // raced with a confirm/execute, fine
			}
			log.Error().Err(err).Str("id", p.ID).Msg("scheduler: expire failed")
			continue
		}
		log.Info().Str("id", p.ID).Str("was", string(p.Status)).Msg("proposal expired by scheduler")
	}
}

func (s *Scheduler) dispatchDue(ctx context.Context, now time.Time) {
	due, err := s.store.DueForExecution(ctx, now)
	if err != nil {
		log.Error().Err(err).Msg("scheduler: due query failed")
		return
	}

	for _, p := range due {
		// The proposal's own status is the source of truth: a cancellation
		// between the query and this call surfaces as a status conflict
		// inside Execute, and the dispatch is dropped.
		if _, err := s.engine.Execute(ctx, p.ID, store.ActorScheduler); err != nil {
			var conflict *store.StatusConflictError
			if errors.As(err, &conflict) {
				continue
			}
			log.Warn().Err(err).Str("id", p.ID).Msg("scheduler: deferred execution failed")
		}
	}
}
