package indexer

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Scheduler invokes a full reindex (clear=true) at a fixed wall-clock time
// daily, indefinitely. A failed run is logged and the scheduler waits for the
// next slot instead of retrying immediately.
type Scheduler struct {
	orch   *Orchestrator
	hour   int
	minute int
	now    func() time.Time
}

func NewScheduler(orch *Orchestrator, hour, minute int) *Scheduler {
	return &Scheduler{orch: orch, hour: hour, minute: minute, now: time.Now}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.InfoContext(ctx, "sync scheduler started", "hour", s.hour, "minute", s.minute)

	for {
		next := nextAfter(s.now(), s.hour, s.minute)
		slog.InfoContext(ctx, "next sync scheduled", "at", next)

		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.InfoContext(ctx, "sync scheduler stopped")
			return ctx.Err()
		case <-timer.C:
		}

		if _, err := s.orch.RunOnce(ctx, true); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			// Outcome already logged by the orchestrator; keep scheduling.
			slog.WarnContext(ctx, "scheduled sync failed, waiting for next slot",
				"kind", FailureKind(err))
		}
	}
}

// nextAfter returns the next occurrence of hour:minute strictly after now.
func nextAfter(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
