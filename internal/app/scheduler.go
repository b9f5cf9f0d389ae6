/**
 * @description
 * Cron scheduler setup for the in-process payout trigger. The same batch can
 * also be triggered externally through the HTTP surface; both paths run the
 * same orchestrator and are serialized by the run lock.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/consulto/payout-service/internal/config"
	"github.com/robfig/cron/v3"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron         *cron.Cron
	orchestrator *Orchestrator
	logger       *slog.Logger
	config       config.Config
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(orchestrator *Orchestrator, logger *slog.Logger, cfg config.Config) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:         c,
		orchestrator: orchestrator,
		logger:       logger,
		config:       cfg,
	}
}

// RunPayoutBatch is the scheduled job body.
func (s *Scheduler) RunPayoutBatch() {
	s.logger.Info("starting scheduled payout batch")

	summary, err := s.orchestrator.RunOnce(context.Background(), time.Now().UTC())
	if err != nil {
		s.logger.Error("scheduled payout batch failed", "error", err)
		return
	}

	s.logger.Info("scheduled payout batch finished",
		"considered", summary.Considered, "succeeded", summary.Succeeded, "failed", summary.Failed)
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.config.PayoutJobSchedule, s.RunPayoutBatch); err != nil {
		s.logger.Error("failed to schedule payout batch job", "error", err)
	} else {
		s.logger.Info("scheduled payout batch job", "schedule", s.config.PayoutJobSchedule)
	}

	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
