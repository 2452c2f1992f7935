package evaluator

import (
	"context"
	"log/slog"
	"time"

	"github.com/ogulcanaydogan/pitchwatch/pkg/model"
)

// PassRunner is anything that can run one evaluation pass.
type PassRunner interface {
	RunPass(ctx context.Context) model.PassResult
}

// Scheduler runs passes on a fixed interval.
type Scheduler struct {
	runner   PassRunner
	interval time.Duration
	logger   *slog.Logger
}

// NewScheduler creates a Scheduler. A non-positive interval falls back to the
// default rule check interval.
func NewScheduler(runner PassRunner, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = model.DefaultCheckIntervalMinutes * time.Minute
	}
	return &Scheduler{runner: runner, interval: interval, logger: logger}
}

// Run executes a pass immediately and then once per interval until ctx is
// cancelled. Passes never overlap within one scheduler.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		result := s.runner.RunPass(ctx)
		if !result.Success {
			s.logger.Error("scheduled pass failed", "error", result.Error)
		}

		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}
