package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/safari/pkg/safari"
	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

const (
	// DefaultSweepInterval is how often stale holds are expired.
	DefaultSweepInterval = time.Minute
	// DefaultReconcileInterval is how often failed reconciliations are retried.
	DefaultReconcileInterval = 5 * time.Minute

	jobNameSweep     = "sweep-expired-holds"
	jobNameReconcile = "reconcile-pending-dates"
)

// Maintainer is the part of safari.Service the background jobs drive.
type Maintainer interface {
	SweepExpired(ctx context.Context, now time.Time) ([]safari.Reservation, error)
	ReconcilePending(ctx context.Context) error
}

// Config sets the job intervals.
type Config struct {
	SweepInterval     time.Duration
	ReconcileInterval time.Duration
}

// Scheduler runs the periodic hold sweep and reconciliation retry.
type Scheduler struct {
	maintainer Maintainer
	clock      func() time.Time
	logger     *zap.Logger
	config     Config
	scheduler  gocron.Scheduler
}

// NewScheduler validates dependencies and registers both jobs. Jobs are
// singletons: a run that outlasts its interval delays the next one.
func NewScheduler(maintainer Maintainer, clock func() time.Time, logger *zap.Logger, config Config) (*Scheduler, error) {
	if maintainer == nil || clock == nil {
		return nil, fmt.Errorf("%w: maintainer and clock are required", safari.ErrInvalidServiceConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = DefaultSweepInterval
	}
	if config.ReconcileInterval <= 0 {
		config.ReconcileInterval = DefaultReconcileInterval
	}
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("gocron scheduler: %w", err)
	}
	return &Scheduler{
		maintainer: maintainer,
		clock:      clock,
		logger:     logger,
		config:     config,
		scheduler:  scheduler,
	}, nil
}

// Start registers the jobs bound to ctx and starts the scheduler.
func (jobScheduler *Scheduler) Start(ctx context.Context) error {
	if _, err := jobScheduler.scheduler.NewJob(
		gocron.DurationJob(jobScheduler.config.SweepInterval),
		gocron.NewTask(func() { jobScheduler.Sweep(ctx) }),
		gocron.WithName(jobNameSweep),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	); err != nil {
		return fmt.Errorf("register %s: %w", jobNameSweep, err)
	}
	if _, err := jobScheduler.scheduler.NewJob(
		gocron.DurationJob(jobScheduler.config.ReconcileInterval),
		gocron.NewTask(func() { jobScheduler.Reconcile(ctx) }),
		gocron.WithName(jobNameReconcile),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return fmt.Errorf("register %s: %w", jobNameReconcile, err)
	}
	jobScheduler.scheduler.Start()
	jobScheduler.logger.Info("jobs started",
		zap.Duration("sweep_interval", jobScheduler.config.SweepInterval),
		zap.Duration("reconcile_interval", jobScheduler.config.ReconcileInterval))
	return nil
}

// Shutdown stops the scheduler and waits for running jobs.
func (jobScheduler *Scheduler) Shutdown() error {
	return jobScheduler.scheduler.Shutdown()
}

// Sweep expires every stale hold once.
func (jobScheduler *Scheduler) Sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	expired, err := jobScheduler.maintainer.SweepExpired(ctx, jobScheduler.clock())
	if err != nil {
		jobScheduler.logger.Warn("sweep failed", zap.Int("expired", len(expired)), zap.Error(err))
		return
	}
	if len(expired) > 0 {
		jobScheduler.logger.Info("sweep expired holds", zap.Int("expired", len(expired)))
	}
}

// Reconcile retries every date whose reconciliation failed.
func (jobScheduler *Scheduler) Reconcile(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := jobScheduler.maintainer.ReconcilePending(ctx); err != nil {
		jobScheduler.logger.Warn("reconcile retry failed", zap.Error(err))
	}
}
