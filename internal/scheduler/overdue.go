package scheduler

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	obsmetrics "github.com/smallbiznis/schoolfee/internal/observability/metrics"
	"go.uber.org/zap"
)

// OverdueSweepJob refreshes past-due invoices in batches, walking forward by
// invoice id. An invoice that fails is skipped until the next run. The sweep
// stops on a short batch or after MaxBatches.
func (s *Scheduler) OverdueSweepJob(ctx context.Context) error {
	return s.withLock(ctx, JobOverdueSweep, func(ctx context.Context) error {
		ctx, run, owner := s.beginRun(ctx, JobOverdueSweep)
		if owner {
			defer s.endRun(ctx, run)
		}
		now := s.clock.Now()
		schedMetrics := obsmetrics.Scheduler()
		var cursor snowflake.ID

		for i := 0; i < s.cfg.MaxBatches; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}

			lockStart := time.Now()
			res, err := s.invoices.RefreshOverdue(ctx, now, s.cfg.BatchSize, cursor)
			schedMetrics.ObserveDBLockWait(obsmetrics.LockResourceOverdueInvoices, time.Since(lockStart))
			if err != nil {
				s.logJobError(ctx, run, err, zap.Int("batch", i))
				return err
			}
			run.observe(res)
			schedMetrics.AddBatchProcessed(JobOverdueSweep, "invoice", res.Updated)
			s.logger(ctx).Debug("scheduler.overdue.batch",
				zap.Int("scanned", res.Scanned),
				zap.Int("updated", res.Updated),
				zap.Int("failed", res.Failed),
			)

			if res.Scanned < s.cfg.BatchSize || res.LastID <= cursor {
				return nil
			}
			cursor = res.LastID
		}
		return nil
	})
}
