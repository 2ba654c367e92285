package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/schoolfee/internal/authorization"
	"gorm.io/gorm"
)

// Error types are attached to scheduler log lines.
const (
	SchedulerErrorTypeDeadlineExceeded = "deadline_exceeded"
	SchedulerErrorTypeAuthorization    = "authorization"
	SchedulerErrorTypeBusinessRule     = "business_rule"
	SchedulerErrorTypeDB               = "db"
	SchedulerErrorTypeUnknown          = "unknown"
)

// Job reasons label the scheduler error counter.
const (
	SchedulerJobReasonDeadlineExceeded     = "deadline_exceeded"
	SchedulerJobReasonDBLockTimeout        = "db_lock_timeout"
	SchedulerJobReasonSerializationFailure = "serialization_failure"
	SchedulerJobReasonUniqueViolation      = "unique_violation"
	SchedulerJobReasonForbidden            = "forbidden"
	SchedulerJobReasonUnknown              = "unknown"

	SchedulerBatchDeferredReasonLockHeld = "lock_held"
)

// LockResourceOverdueInvoices labels lock waits taken while the overdue
// sweep claims a batch of invoices.
const LockResourceOverdueInvoices = "overdue_invoices"

// SchedulerMetrics are exported on /metrics through the default registry.
type SchedulerMetrics struct {
	runs      *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	timeouts  *prometheus.CounterVec
	failures  *prometheus.CounterVec
	processed *prometheus.CounterVec
	deferred  *prometheus.CounterVec
	lag       prometheus.Histogram
	lockWait  *prometheus.HistogramVec
}

var (
	schedulerOnce sync.Once
	scheduler     *SchedulerMetrics
)

// Scheduler returns the process-wide scheduler metrics.
func Scheduler() *SchedulerMetrics {
	return SchedulerWithConfig(Config{})
}

// SchedulerWithConfig registers the metrics on first use. Later calls return
// the same instance whatever cfg they pass.
func SchedulerWithConfig(cfg Config) *SchedulerMetrics {
	schedulerOnce.Do(func() {
		scheduler = newSchedulerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return scheduler
}

func ResetSchedulerMetricsForTest() {
	schedulerOnce = sync.Once{}
	scheduler = nil
}

func newSchedulerMetrics(reg prometheus.Registerer, cfg Config) *SchedulerMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	labels := serviceLabels(cfg)
	counter := func(name, help string, vars ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schoolfee_" + name, Help: help, ConstLabels: labels,
		}, vars)
	}
	secondsBuckets := prometheus.ExponentialBucketsRange(0.01, 300, 14)

	m := &SchedulerMetrics{
		runs:      counter("scheduler_job_runs_total", "Scheduler job runs.", "job"),
		timeouts:  counter("scheduler_job_timeouts_total", "Scheduler jobs stopped by their deadline.", "job"),
		failures:  counter("scheduler_job_errors_total", "Scheduler job failures by reason.", "job", "reason"),
		processed: counter("scheduler_batch_processed_total", "Rows changed by scheduler batches.", "job", "resource"),
		deferred:  counter("scheduler_batch_deferred_total", "Scheduler runs skipped, by reason.", "job", "reason"),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "schoolfee_scheduler_job_duration_seconds",
			Help:        "Scheduler job wall time.",
			Buckets:     secondsBuckets,
			ConstLabels: labels,
		}, []string{"job"}),
		lag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "schoolfee_scheduler_runloop_lag_seconds",
			Help:        "How late a scheduler tick started.",
			Buckets:     secondsBuckets,
			ConstLabels: labels,
		}),
		lockWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "schoolfee_db_lock_wait_seconds",
			Help:        "Time spent claiming invoice rows FOR UPDATE.",
			Buckets:     prometheus.ExponentialBucketsRange(0.001, 30, 14),
			ConstLabels: labels,
		}, []string{"resource"}),
	}
	reg.MustRegister(m.runs, m.duration, m.timeouts, m.failures, m.processed, m.deferred, m.lag, m.lockWait)
	return m
}

func (m *SchedulerMetrics) IncJobRun(job string) {
	if m != nil {
		m.runs.WithLabelValues(job).Inc()
	}
}

func (m *SchedulerMetrics) ObserveJobDuration(job string, d time.Duration) {
	if m != nil {
		m.duration.WithLabelValues(job).Observe(d.Seconds())
	}
}

func (m *SchedulerMetrics) IncJobTimeout(job string) {
	if m != nil {
		m.timeouts.WithLabelValues(job).Inc()
	}
}

func (m *SchedulerMetrics) IncJobError(job string, err error) {
	if m != nil && err != nil {
		m.failures.WithLabelValues(job, ClassifySchedulerJobReason(err)).Inc()
	}
}

func (m *SchedulerMetrics) AddBatchProcessed(job, resource string, n int) {
	if m != nil && n > 0 {
		m.processed.WithLabelValues(job, resource).Add(float64(n))
	}
}

func (m *SchedulerMetrics) IncBatchDeferred(job, reason string) {
	if m != nil {
		m.deferred.WithLabelValues(job, reason).Inc()
	}
}

// ObserveRunLoopLag ignores negative lag.
func (m *SchedulerMetrics) ObserveRunLoopLag(d time.Duration) {
	if m != nil {
		m.lag.Observe(max(d, 0).Seconds())
	}
}

func (m *SchedulerMetrics) ObserveDBLockWait(resource string, d time.Duration) {
	if m != nil {
		m.lockWait.WithLabelValues(resource).Observe(d.Seconds())
	}
}

// pgReasons maps Postgres SQLSTATE codes to job reasons.
var pgReasons = map[string]string{
	"55P03": SchedulerJobReasonDBLockTimeout,
	"40001": SchedulerJobReasonSerializationFailure,
	"40P01": SchedulerJobReasonSerializationFailure,
	"23505": SchedulerJobReasonUniqueViolation,
}

// ClassifySchedulerJobReason maps an error to a low-cardinality label.
func ClassifySchedulerJobReason(err error) string {
	switch {
	case err == nil:
		return SchedulerJobReasonUnknown
	case isCancellation(err):
		return SchedulerJobReasonDeadlineExceeded
	case isAuthorizationError(err):
		return SchedulerJobReasonForbidden
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return SchedulerJobReasonUniqueViolation
	}
	if pgErr, ok := asPgError(err); ok {
		if reason, known := pgReasons[pgErr.Code]; known {
			return reason
		}
	}
	return SchedulerJobReasonUnknown
}

// ClassifySchedulerErrorType buckets an error for log fields.
func ClassifySchedulerErrorType(err error) string {
	switch {
	case err == nil:
		return SchedulerErrorTypeUnknown
	case isCancellation(err):
		return SchedulerErrorTypeDeadlineExceeded
	case isAuthorizationError(err):
		return SchedulerErrorTypeAuthorization
	case isDBError(err):
		return SchedulerErrorTypeDB
	default:
		return SchedulerErrorTypeBusinessRule
	}
}

// IsSchedulerErrorRetryable is true for deadlines and database faults; the
// next tick repeats the same work.
func IsSchedulerErrorRetryable(err error) bool {
	return err != nil && (isCancellation(err) || isDBError(err))
}

func isCancellation(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

func asPgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	ok := errors.As(err, &pgErr)
	return pgErr, ok
}

var authorizationErrors = []error{
	authorization.ErrForbidden,
	authorization.ErrInvalidActor,
	authorization.ErrInvalidSchool,
	authorization.ErrInvalidObject,
	authorization.ErrInvalidAction,
}

var gormFaults = []error{
	gorm.ErrInvalidDB,
	gorm.ErrInvalidTransaction,
	gorm.ErrInvalidField,
	gorm.ErrInvalidData,
	gorm.ErrMissingWhereClause,
	gorm.ErrUnsupportedDriver,
	gorm.ErrInvalidValue,
	gorm.ErrDuplicatedKey,
}

func isAuthorizationError(err error) bool {
	return matchesAny(err, authorizationErrors)
}

// isDBError excludes not-found, which is a business outcome.
func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if matchesAny(err, gormFaults) {
		return true
	}
	_, ok := asPgError(err)
	return ok
}

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
