package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/shopfloor/internal/clock"
	obsmetrics "github.com/smallbiznis/shopfloor/internal/observability/metrics"
	"github.com/smallbiznis/shopfloor/internal/ratelimit"
	statusdomain "github.com/smallbiznis/shopfloor/internal/statussync/domain"
	timelogdomain "github.com/smallbiznis/shopfloor/internal/timelog/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	JobOrderStatusReconcile = "order_status_reconcile"
	JobActiveTimers         = "active_timers"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	StatusSync statusdomain.Service
	TimeLogs   timelogdomain.Repository
	Locker     *ratelimit.Locker `optional:"true"`
	Config     Config            `optional:"true"`
}

type Scheduler struct {
	db         *gorm.DB
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	statusSync statusdomain.Service
	timeLogs   timelogdomain.Repository
	locker     *ratelimit.Locker
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.StatusSync == nil || p.TimeLogs == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:         p.DB,
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		genID:      p.GenID,
		clock:      p.Clock,
		statusSync: p.StatusSync,
		timeLogs:   p.TimeLogs,
		locker:     p.Locker,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	release, ok := s.acquireLease(ctx, name)
	if !ok {
		return nil
	}
	defer release()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// deadline is a soft timeout; the next tick picks up the remainder
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// acquireLease keeps a job to one instance at a time when Redis is configured.
// A Redis failure falls back to running locally.
func (s *Scheduler) acquireLease(ctx context.Context, job string) (func(), bool) {
	noop := func() {}
	if s.locker == nil {
		return noop, true
	}
	release, ok, err := s.locker.Acquire(ctx, LeaseKey(job), s.cfg.LeaseTTL)
	if err != nil {
		s.log.Warn("scheduler lease unavailable, running locally",
			zap.String("job", job),
			zap.Error(err),
		)
		return noop, true
	}
	if !ok {
		s.log.Debug("scheduler lease held elsewhere", zap.String("job", job))
		return noop, false
	}
	return func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn("scheduler lease release failed", zap.String("job", job), zap.Error(err))
		}
	}, true
}

// LeaseKey names the Redis lease a job run holds.
func LeaseKey(job string) string {
	return ratelimit.LockKey("scheduler", job)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobOrderStatusReconcile, func(ctx context.Context) error {
			return s.runJob(ctx, JobOrderStatusReconcile, s.cfg.BatchSize, s.cfg.JobTimeout, s.OrderStatusReconcileJob)
		}},
		{JobActiveTimers, func(ctx context.Context) error {
			return s.runJob(ctx, JobActiveTimers, 1, s.cfg.JobTimeout, s.ActiveTimersJob)
		}},
	}

	for _, job := range jobs {
		if s.isJobEnabled(job.Name) {
			err = errors.Join(err, job.Run(parent))
		}
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := s.clock.Now().Sub(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// empty means every job runs in this process
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// OrderStatusReconcileJob drains due order status updates in batches.
func (s *Scheduler) OrderStatusReconcileJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobOrderStatusReconcile, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}
	schedMetrics := obsmetrics.Scheduler()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		result, err := s.statusSync.ProcessDue(ctx, s.cfg.BatchSize)
		if err != nil {
			s.logSchedulerError(ctx, run, "scheduler.status_sync.failed", JobOrderStatusReconcile, err)
			return err
		}
		run.AddProcessed(result.Processed)
		schedMetrics.AddBatchProcessed(JobOrderStatusReconcile, "order_status_updates", result.Applied+result.Skipped+result.Failed)
		schedMetrics.AddBatchDeferred(JobOrderStatusReconcile, obsmetrics.SchedulerBatchDeferredReasonRetrying, result.Retrying)
		if result.Failed > 0 {
			run.errorCount += result.Failed
		}

		if result.Processed < s.cfg.BatchSize {
			return nil
		}
	}
}

// ActiveTimersJob refreshes the running timer gauge.
func (s *Scheduler) ActiveTimersJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobActiveTimers, 1)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	count, err := s.timeLogs.CountActive(ctx, s.db)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.active_timers.failed", JobActiveTimers, err)
		return err
	}
	obsmetrics.Scheduler().SetActiveTimers(count)
	run.AddProcessed(1)
	return nil
}
