package notification

import (
	"context"
	"log/slog"
	"time"
)

// NextRun returns the first hour:minute wall-clock instant in loc strictly after now
func NextRun(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}

	return next
}

// Scheduler invokes run once a day at a fixed wall-clock time.
type Scheduler struct {
	hour   int
	minute int
	loc    *time.Location
	run    func()
	now    func() time.Time
	logger *slog.Logger
}

func NewScheduler(hour, minute int, loc *time.Location, run func(), logger *slog.Logger) *Scheduler {
	return &Scheduler{
		hour:   hour,
		minute: minute,
		loc:    loc,
		run:    run,
		now:    time.Now,
		logger: logger.With("component", "daily_scheduler"),
	}
}

// Start blocks until ctx is cancelled
func (s *Scheduler) Start(ctx context.Context) {
	for {
		next := NextRun(s.now(), s.hour, s.minute, s.loc)
		s.logger.Info("next daily sweep scheduled", "at", next)

		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("daily scheduler stopped")
			return
		case <-timer.C:
			s.run()
		}
	}
}
