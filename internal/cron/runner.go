package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
)

// DefaultPollInterval is how often the runner checks for due jobs.
const DefaultPollInterval = 2 * time.Second

// Handler executes one due job, typically by running an agent turn with
// the job's message.
type Handler func(ctx context.Context, job Job) error

// Runner polls the store and fires due jobs.
type Runner struct {
	store   *Store
	handler Handler
	poll    time.Duration
	gron    *gronx.Gronx
	now     func() time.Time
}

func NewRunner(store *Store, handler Handler) *Runner {
	return &Runner{
		store:   store,
		handler: handler,
		poll:    DefaultPollInterval,
		gron:    gronx.New(),
		now:     time.Now,
	}
}

// Run blocks until ctx is cancelled, checking for due jobs every poll
// interval.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.store.Load(); err != nil {
		return err
	}
	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// tick fires every due job once. Handler failures are logged and the
// job's last-run time still advances so a broken job cannot hot-loop.
func (r *Runner) tick(ctx context.Context) {
	now := r.now()
	for _, job := range r.store.Jobs() {
		if !job.Enabled || !r.due(job, now) {
			continue
		}
		slog.Info("cron job due", "job_id", job.ID, "message", job.Message)
		if err := r.handler(ctx, job); err != nil {
			slog.Error("cron job failed", "job_id", job.ID, "error", err)
		}
		if err := r.store.markRan(job.ID, now); err != nil {
			slog.Error("failed to persist cron run", "job_id", job.ID, "error", err)
		}
	}
}

func (r *Runner) due(job Job, now time.Time) bool {
	if job.EverySeconds > 0 {
		return now.Sub(job.LastRun) >= time.Duration(job.EverySeconds)*time.Second
	}
	if job.Schedule == "" {
		return false
	}
	// Cron expressions resolve to a minute; fire at most once per match.
	if !job.LastRun.IsZero() && now.Truncate(time.Minute).Equal(job.LastRun.Truncate(time.Minute)) {
		return false
	}
	ok, err := r.gron.IsDue(job.Schedule, now)
	if err != nil {
		slog.Warn("bad cron expression", "job_id", job.ID, "schedule", job.Schedule, "error", err)
		return false
	}
	return ok
}
