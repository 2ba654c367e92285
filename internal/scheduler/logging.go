package scheduler

import (
	"context"
	"time"

	invoicedomain "github.com/smallbiznis/schoolfee/internal/invoice/domain"
	obslogger "github.com/smallbiznis/schoolfee/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/schoolfee/internal/observability/metrics"
	"go.uber.org/zap"
)

// sweepRun accumulates what one job invocation touched so a single summary
// line can be logged when it ends.
type sweepRun struct {
	job      string
	id       string
	started  time.Time
	batches  int
	scanned  int
	updated  int
	failures int
}

type sweepRunKey struct{}

func (r *sweepRun) observe(res invoicedomain.RefreshResult) {
	if r == nil {
		return
	}
	r.batches++
	r.scanned += res.Scanned
	r.updated += res.Updated
}

func (r *sweepRun) fail() {
	if r != nil {
		r.failures++
	}
}

func (r *sweepRun) summary(now time.Time) []zap.Field {
	return []zap.Field{
		zap.String("job", r.job),
		zap.String("run_id", r.id),
		zap.Duration("elapsed", now.Sub(r.started)),
		zap.Int("batches", r.batches),
		zap.Int("invoices_scanned", r.scanned),
		zap.Int("invoices_updated", r.updated),
		zap.Int("failures", r.failures),
	}
}

func sweepRunFrom(ctx context.Context) *sweepRun {
	run, _ := ctx.Value(sweepRunKey{}).(*sweepRun)
	return run
}

// beginRun attaches a run to ctx unless one is already there. The returned
// bool is true only for the caller that created it, which then owns endRun.
func (s *Scheduler) beginRun(ctx context.Context, job string) (context.Context, *sweepRun, bool) {
	if run := sweepRunFrom(ctx); run != nil {
		return ctx, run, false
	}
	run := &sweepRun{
		job:     job,
		id:      s.genID.Generate().String(),
		started: s.clock.Now(),
	}
	ctx = context.WithValue(ctx, sweepRunKey{}, run)
	s.logger(ctx).Info("scheduler job started",
		zap.String("job", job),
		zap.String("run_id", run.id),
		zap.Int("batch_size", s.cfg.BatchSize),
	)
	return ctx, run, true
}

func (s *Scheduler) endRun(ctx context.Context, run *sweepRun) {
	fields := run.summary(s.clock.Now())
	if run.failures > 0 {
		s.logger(ctx).Warn("scheduler job finished with failures", fields...)
		return
	}
	s.logger(ctx).Info("scheduler job finished", fields...)
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (s *Scheduler) logJobError(ctx context.Context, run *sweepRun, err error, fields ...zap.Field) {
	run.fail()
	fields = append(fields,
		zap.String("job", run.job),
		zap.String("error_type", obsmetrics.ClassifySchedulerErrorType(err)),
		zap.Bool("retryable", obsmetrics.IsSchedulerErrorRetryable(err)),
		zap.Error(err),
	)
	s.logger(ctx).Error("scheduler job step failed", fields...)
}
