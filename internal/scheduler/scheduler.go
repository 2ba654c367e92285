// Package scheduler runs periodic maintenance jobs. The only job today is the
// overdue sweep, which re-derives invoices whose due date has passed so their
// status turns overdue without waiting for a payment or edit.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/schoolfee/internal/auditcontext"
	"github.com/smallbiznis/schoolfee/internal/clock"
	invoicedomain "github.com/smallbiznis/schoolfee/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/schoolfee/internal/observability/metrics"
	"github.com/smallbiznis/schoolfee/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobOverdueSweep = "overdue_sweep"

	lockKeyPrefix = "schoolfee:scheduler:"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

// overdueRefresher is the slice of the invoice service the sweep needs.
type overdueRefresher interface {
	RefreshOverdue(ctx context.Context, now time.Time, limit int, after snowflake.ID) (invoicedomain.RefreshResult, error)
}

// jobLocker guards a job so only one replica runs it at a time.
type jobLocker interface {
	Enabled() bool
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, error)
	Release(ctx context.Context, key, token string) error
}

type Params struct {
	fx.In

	Log        *zap.Logger
	GenID      *snowflake.Node
	InvoiceSvc invoicedomain.Service
	Locker     *ratelimit.Locker `optional:"true"`
	Clock      clock.Clock       `optional:"true"`
	Config     Config
}

// job is one named unit of periodic work.
type job struct {
	name string
	run  func(ctx context.Context) error
}

type Scheduler struct {
	log      *zap.Logger
	cfg      Config
	genID    *snowflake.Node
	clock    clock.Clock
	invoices overdueRefresher
	locker   jobLocker
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.InvoiceSvc == nil {
		return nil, ErrInvalidConfig
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	s := &Scheduler{
		log:      p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:      p.Config.withDefaults(),
		genID:    p.GenID,
		clock:    clk,
		invoices: p.InvoiceSvc,
	}
	if p.Locker.Enabled() {
		s.locker = p.Locker
	}
	return s, nil
}

// jobs lists the enabled jobs in run order.
func (s *Scheduler) jobs() []job {
	all := []job{
		{name: JobOverdueSweep, run: s.OverdueSweepJob},
	}
	enabled := all[:0]
	for _, j := range all {
		if !s.disabled(j.name) {
			enabled = append(enabled, j)
		}
	}
	return enabled
}

func (s *Scheduler) disabled(name string) bool {
	for _, off := range s.cfg.JobsDisabled {
		if strings.EqualFold(strings.TrimSpace(off), name) {
			return true
		}
	}
	return false
}

// RunOnce runs every enabled job once and joins their errors.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	var errs error
	for _, j := range s.jobs() {
		errs = errors.Join(errs, s.runJob(ctx, j.name, s.cfg.BatchSize, s.cfg.JobTimeout, j.run))
	}
	return errs
}

// RunForever ticks every RunInterval until ctx is cancelled. The first run
// starts immediately.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	due := s.clock.Now()
	for {
		if lag := s.clock.Now().Sub(due); lag > 0 {
			obsmetrics.Scheduler().ObserveRunLoopLag(lag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		due = due.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// runJob bounds fn by timeout and records its outcome. A timeout is logged
// and swallowed: the next tick resumes from whatever is still pending.
func (s *Scheduler) runJob(parent context.Context, name string, batchSize int, timeout time.Duration, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	ctx = auditcontext.WithActor(ctx, auditcontext.ActorTypeSystem, "scheduler")

	ctx, run, owner := s.beginRun(ctx, name)
	m := obsmetrics.Scheduler()
	m.IncJobRun(name)
	started := s.clock.Now()

	err := fn(ctx)

	m.ObserveJobDuration(name, s.clock.Now().Sub(started))
	if owner {
		if err != nil && run.failures == 0 {
			run.fail()
		}
		s.endRun(ctx, run)
	}
	if err == nil {
		return nil
	}

	m.IncJobError(name, err)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		m.IncJobTimeout(name)
		s.logger(ctx).Warn("scheduler job timed out",
			zap.String("job", name),
			zap.String("run_id", run.id),
			zap.Int("batch_size", batchSize),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

// withLock runs fn only if this replica wins the job lock. Without Redis
// every replica runs the job; the invoice row locks keep that safe.
func (s *Scheduler) withLock(ctx context.Context, job string, fn func(context.Context) error) error {
	if s.locker == nil || !s.locker.Enabled() {
		return fn(ctx)
	}
	key := lockKeyPrefix + job
	token, err := s.locker.Acquire(ctx, key, s.cfg.LockTTL)
	if errors.Is(err, ratelimit.ErrLockHeld) {
		obsmetrics.Scheduler().IncBatchDeferred(job, obsmetrics.SchedulerBatchDeferredReasonLockHeld)
		s.logger(ctx).Debug("scheduler.job.skipped", zap.String("job", job), zap.String("reason", "lock_held"))
		return nil
	}
	if err != nil {
		return err
	}
	defer func() {
		// The job ctx may already be done; release on a fresh one.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.locker.Release(releaseCtx, key, token); err != nil {
			s.logger(ctx).Warn("scheduler lock release failed", zap.String("job", job), zap.Error(err))
		}
	}()
	return fn(ctx)
}
