package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smallbiznis/schoolfee/internal/authorization"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestClassifySchedulerJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: SchedulerJobReasonDeadlineExceeded},
		{name: "forbidden", err: fmt.Errorf("sweep: %w", authorization.ErrForbidden), want: SchedulerJobReasonForbidden},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: SchedulerJobReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: SchedulerJobReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: SchedulerJobReasonUniqueViolation},
		{name: "unknown", err: errors.New("boom"), want: SchedulerJobReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifySchedulerJobReason(tc.err))
		})
	}
}

func TestClassifySchedulerErrorType(t *testing.T) {
	assert.Equal(t, SchedulerErrorTypeDB, ClassifySchedulerErrorType(&pgconn.PgError{Code: "23505"}))
	assert.Equal(t, SchedulerErrorTypeBusinessRule, ClassifySchedulerErrorType(gorm.ErrRecordNotFound))
	assert.True(t, IsSchedulerErrorRetryable(context.Canceled))
	assert.False(t, IsSchedulerErrorRetryable(errors.New("invoice_settled")))
}

func TestAddBatchProcessed(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newSchedulerMetrics(registry, Config{ServiceName: "schoolfee", Environment: "test"})

	m.AddBatchProcessed("overdue_sweep", "invoices", 3)
	m.AddBatchProcessed("overdue_sweep", "invoices", 0)

	got := testutil.ToFloat64(m.processed.WithLabelValues("overdue_sweep", "invoices"))
	assert.Equal(t, float64(3), got)
}

func TestDeadlockCountsAsSerializationFailure(t *testing.T) {
	err := fmt.Errorf("refresh overdue: %w", &pgconn.PgError{Code: "40P01"})
	assert.Equal(t, SchedulerJobReasonSerializationFailure, ClassifySchedulerJobReason(err))
	assert.True(t, IsSchedulerErrorRetryable(err))
	assert.Equal(t, SchedulerJobReasonUnknown, ClassifySchedulerJobReason(&pgconn.PgError{Code: "22001"}))
}

func TestLockWaitObservesAnyResource(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newSchedulerMetrics(registry, Config{})
	m.ObserveDBLockWait(LockResourceOverdueInvoices, 0)
	m.ObserveDBLockWait("guardian_invoice", 0)

	assert.Equal(t, 2, testutil.CollectAndCount(m.lockWait))
}
