package scheduler

import (
	"context"
	"log/slog"
	"time"

	"feed_updater/internal/domain"
)

// Runner performs one update run.
type Runner interface {
	Run(ctx context.Context) (*domain.RunStat, error)
}

type Scheduler struct {
	runner   Runner
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

func NewScheduler(runner Runner, interval, timeout time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		interval: interval,
		timeout:  timeout,
		logger:   logger.With("component", "scheduler"),
	}
}

// Start runs an update immediately and then on every tick until ctx is
// done. A failed run is logged and does not stop the loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval, "timeout", s.timeout)

	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// runOnce hands the runner a context carrying the run deadline. The runner
// decides which phases honour it.
func (s *Scheduler) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	stat, err := s.runner.Run(runCtx)
	if err != nil {
		s.logger.Error("update run failed", "error", err)
		return
	}

	s.logger.Info("update run finished",
		"sources", stat.SourcesTotal,
		"failed", stat.SourcesFailed,
		"new_entries", stat.EntriesNew,
	)
}
