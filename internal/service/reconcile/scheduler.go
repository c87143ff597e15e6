package reconcile

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"accessledger/internal/domain"
)

// Scheduler triggers reconciliation runs on a cron schedule, one entry per
// environment.
type Scheduler struct {
	cron       *cron.Cron
	controller *Controller
	logger     *slog.Logger
}

// NewScheduler creates a run scheduler.
func NewScheduler(controller *Controller, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{cron: cron.New(), controller: controller, logger: logger}
}

// Add registers a cron schedule for the environment.
func (s *Scheduler) Add(environment, schedule string) error {
	_, err := s.cron.AddFunc(schedule, func() {
		ctx := context.Background()
		run, err := s.controller.Execute(ctx, environment, domain.TriggerTypeScheduled, "scheduler", "scheduled reconciliation")
		if err != nil {
			s.logger.Error("scheduled run failed", "environment", environment, "error", err)
			return
		}
		s.logger.Info("scheduled run complete", "environment", environment, "run", run.ID, "status", run.Status)
	})
	if err != nil {
		return err
	}
	s.logger.Info("reconciliation scheduled", "environment", environment, "schedule", schedule)
	return nil
}

// Start begins executing registered schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("run scheduler started")
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.logger.Info("run scheduler stopped")
}
