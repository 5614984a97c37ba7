package campaign

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mallsoft/peyk/internal/config"
)

// CronManager owns the cron entries for the scheduler sweep and the
// delivery status reconciler.
type CronManager struct {
	cron       *cron.Cron
	scheduler  *Scheduler
	reconciler *Reconciler
	logger     *slog.Logger
}

// NewCronManager creates a cron manager over the background jobs
func NewCronManager(scheduler *Scheduler, reconciler *Reconciler, logger *slog.Logger) *CronManager {
	return &CronManager{
		cron:       cron.New(),
		scheduler:  scheduler,
		reconciler: reconciler,
		logger:     logger,
	}
}

// SetupJobs registers the configured jobs
func (cm *CronManager) SetupJobs(schedulerCfg config.SchedulerConfig, reconcileCfg config.ReconcileConfig) error {
	if schedulerCfg.Enabled {
		_, err := cm.cron.AddFunc(schedulerCfg.Schedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			if err := cm.scheduler.RunOnce(ctx, time.Now()); err != nil {
				cm.logger.Error("scheduler sweep failed", "error", err)
			}
		})
		if err != nil {
			return err
		}
		cm.logger.Info("campaign scheduler enabled", "schedule", schedulerCfg.Schedule)
	}

	if reconcileCfg.Enabled {
		_, err := cm.cron.AddFunc(reconcileCfg.Schedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()

			if err := cm.reconciler.RunOnce(ctx); err != nil {
				cm.logger.Error("delivery reconciliation failed", "error", err)
			}
		})
		if err != nil {
			return err
		}
		cm.logger.Info("delivery reconciler enabled",
			"schedule", reconcileCfg.Schedule,
			"lookback", reconcileCfg.Lookback,
		)
	}

	return nil
}

// Start starts the cron scheduler
func (cm *CronManager) Start() {
	cm.cron.Start()
}

// Stop stops the cron scheduler and waits for running jobs
func (cm *CronManager) Stop() {
	ctx := cm.cron.Stop()
	<-ctx.Done()
	cm.logger.Info("cron jobs stopped")
}
