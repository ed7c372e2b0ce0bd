package tracker

import (
	"context"
	"log/slog"
	"time"
)

type Checker interface {
	Check(ctx context.Context) (*Report, error)
}

type SchedulerConfig struct {
	// Interval is the pause between the end of one cycle and the start of
	// the next. Default: 10 minutes.
	Interval time.Duration
}

func (c *SchedulerConfig) defaults() {
	if c.Interval <= 0 {
		c.Interval = 10 * time.Minute
	}
}

// Scheduler runs cycles one after another, never two at once.
type Scheduler struct {
	checker Checker
	config  SchedulerConfig
	logger  *slog.Logger
}

func NewScheduler(checker Checker, cfg SchedulerConfig, logger *slog.Logger) *Scheduler {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{checker: checker, config: cfg, logger: logger}
}

// Run checks once immediately, then again Interval after each cycle ends.
// A cycle that overruns the interval delays the next one instead of queueing
// it. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started", "interval", s.config.Interval)
	s.runCycle(ctx)

	timer := time.NewTimer(s.config.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-timer.C:
			s.runCycle(ctx)
			timer.Reset(s.config.Interval)
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	report, err := s.checker.Check(ctx)
	if err != nil {
		// Already logged by the checker; the next tick retries.
		return
	}
	if report != nil {
		s.logger.Debug("cycle finished", "cycle", report.CycleID, "took", report.FinishedAt.Sub(report.StartedAt))
	}
}
