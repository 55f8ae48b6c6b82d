// Package scheduler runs the periodic task table from a single
// goroutine, so tasks never overlap and the store has one writer.
package scheduler

import (
	"context"
	"time"

	"github.com/onboardrbot/onboardrbot/internal/logging"
	"github.com/onboardrbot/onboardrbot/internal/store"
)

type Task struct {
	Name         string
	Every        time.Duration
	InitialDelay time.Duration
	Run          func(ctx context.Context) error
}

type Runner struct {
	st    *store.Store
	log   *logging.Logger
	tasks []*entry
}

type entry struct {
	Task
	next time.Time
}

func New(st *store.Store, log *logging.Logger) *Runner {
	return &Runner{st: st, log: log.With("module", "scheduler")}
}

func (r *Runner) Add(t Task) {
	r.tasks = append(r.tasks, &entry{Task: t})
}

// Run blocks until ctx is done. Due tasks execute sequentially in
// registration order; a slow task simply delays the ones behind it.
func (r *Runner) Run(ctx context.Context) error {
	now := time.Now()
	for _, t := range r.tasks {
		t.next = now.Add(t.InitialDelay)
	}
	for {
		wake := r.earliest()
		timer := time.NewTimer(time.Until(wake))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		for _, t := range r.tasks {
			if t.next.After(time.Now()) {
				continue
			}
			r.runOne(ctx, t)
			t.next = time.Now().Add(t.Every)
		}
	}
}

func (r *Runner) runOne(ctx context.Context, t *entry) {
	started := time.Now()
	err := t.Run(ctx)
	ended := time.Now()
	summary := "ok"
	if err != nil {
		summary = err.Error()
		r.log.Warn("task failed", "task", t.Name, "err", err)
		r.st.LogAction(ctx, "error", t.Name+": "+summary, 500)
	} else {
		r.log.Debug("task done", "task", t.Name, "took", ended.Sub(started))
	}
	if err := r.st.LogRun(ctx, t.Name, started, ended, summary); err != nil {
		r.log.Warn("run log failed", "task", t.Name, "err", err)
	}
}

func (r *Runner) earliest() time.Time {
	wake := r.tasks[0].next
	for _, t := range r.tasks[1:] {
		if t.next.Before(wake) {
			wake = t.next
		}
	}
	return wake
}
