package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/schoolfee/internal/audit/domain"
	"github.com/smallbiznis/schoolfee/internal/audit/repository"
	"github.com/smallbiznis/schoolfee/internal/auditcontext"
	"github.com/smallbiznis/schoolfee/internal/clock"
	"github.com/smallbiznis/schoolfee/internal/schoolcontext"
	"github.com/smallbiznis/schoolfee/internal/testutil/testdb"
	"github.com/smallbiznis/schoolfee/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (auditdomain.Service, *clock.FakeClock, *gorm.DB) {
	t.Helper()
	db := testdb.Open(t, &auditdomain.AuditLog{})

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC))
	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
		Clock: clk,
	})
	return svc, clk, db
}

func TestRecordStampsActorAndSchoolFromContext(t *testing.T) {
	svc, _, db := newTestService(t)

	schoolID := snowflake.ID(42)
	ctx := schoolcontext.WithSchoolID(context.Background(), schoolID)
	ctx = auditcontext.WithActor(ctx, auditcontext.ActorTypeStaff, "bursar-7")
	ctx = auditcontext.WithRequestID(ctx, "req-1")

	target := "900"
	require.NoError(t, svc.Record(ctx, auditdomain.Target{Type: "invoice", ID: target}, "invoice.generated", map[string]any{"total": "55000.00"}))

	var got auditdomain.AuditLog
	require.NoError(t, db.First(&got).Error)
	require.NotNil(t, got.TargetID)
	assert.Equal(t, "900", *got.TargetID)
	require.NotNil(t, got.SchoolID)
	assert.Equal(t, schoolID, *got.SchoolID)
	assert.Equal(t, "staff", got.ActorType)
	require.NotNil(t, got.ActorID)
	assert.Equal(t, "bursar-7", *got.ActorID)
	assert.Equal(t, "req-1", got.Metadata["request_id"])
	assert.Equal(t, "55000.00", got.Metadata["total"])
}

func TestRecordMasksReferenceNumbers(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := schoolcontext.WithSchoolID(context.Background(), 42)

	metadata := map[string]any{"reference_number": "CHQ-00012345", "amount": "10000.00"}
	require.NoError(t, svc.Record(ctx, auditdomain.Target{Type: "guardian_payment", ID: "1"}, "payment.recorded", metadata))

	var got auditdomain.AuditLog
	require.NoError(t, db.First(&got).Error)
	assert.Equal(t, "CHQ-****2345", got.Metadata["reference_number"])
	assert.Equal(t, "10000.00", got.Metadata["amount"])
	assert.Equal(t, "CHQ-00012345", metadata["reference_number"], "caller map must not be mutated")
}

func TestRecordRejectsEmptyAction(t *testing.T) {
	svc, _, _ := newTestService(t)
	err := svc.Record(context.Background(), auditdomain.Target{Type: "invoice"}, "  ", nil)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestRecordTxDefaultsToSystemActor(t *testing.T) {
	svc, _, db := newTestService(t)
	schoolID := snowflake.ID(7)

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.RecordTx(context.Background(), tx, auditdomain.Target{SchoolID: schoolID, Type: "payment"}, "payment.recorded", nil)
	})
	require.NoError(t, err)

	var got auditdomain.AuditLog
	require.NoError(t, db.First(&got).Error)
	assert.Equal(t, "system", got.ActorType)
	assert.Nil(t, got.ActorID)
}

func TestListPagesNewestFirst(t *testing.T) {
	svc, clk, _ := newTestService(t)
	schoolID := snowflake.ID(42)
	ctx := schoolcontext.WithSchoolID(context.Background(), schoolID)

	for _, action := range []string{"invoice.generated", "invoice.recalculated", "invoice.plan_changed"} {
		require.NoError(t, svc.Record(ctx, auditdomain.Target{Type: "invoice"}, action, nil))
		clk.Advance(time.Minute)
	}
	other := snowflake.ID(99)
	require.NoError(t, svc.Record(ctx, auditdomain.Target{SchoolID: other, Type: "invoice"}, "invoice.generated", nil))

	first, err := svc.List(ctx, auditdomain.ListAuditLogRequest{Pagination: pagination.Pagination{PageSize: 2}})
	require.NoError(t, err)
	require.Len(t, first.AuditLogs, 2)
	assert.True(t, first.HasMore)
	assert.Equal(t, "invoice.plan_changed", first.AuditLogs[0].Action)

	second, err := svc.List(ctx, auditdomain.ListAuditLogRequest{Pagination: pagination.Pagination{PageSize: 2, PageToken: first.NextPageToken}})
	require.NoError(t, err)
	require.Len(t, second.AuditLogs, 1)
	assert.False(t, second.HasMore)
	assert.Equal(t, "invoice.generated", second.AuditLogs[0].Action)
}

func TestListRequiresSchool(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidSchool)

	ctx := schoolcontext.WithSchoolID(context.Background(), 1)
	_, err = svc.List(ctx, auditdomain.ListAuditLogRequest{Pagination: pagination.Pagination{PageToken: "!!"}})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidPageToken)
}

func TestListFiltersByActor(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := schoolcontext.WithSchoolID(context.Background(), 7)

	bursar := auditcontext.WithActor(ctx, auditcontext.ActorTypeStaff, "bursar-1")
	admin := auditcontext.WithActor(ctx, auditcontext.ActorTypeStaff, "admin-1")
	payment := auditdomain.Target{Type: "guardian_payment"}
	require.NoError(t, svc.Record(bursar, payment, "payment.recorded", nil))
	require.NoError(t, svc.Record(admin, payment, "payment.deleted", nil))
	require.NoError(t, svc.Record(ctx, auditdomain.Target{Type: "invoice"}, "invoice.status_changed", nil))

	res, err := svc.List(ctx, auditdomain.ListAuditLogRequest{ActorID: "admin-1"})
	require.NoError(t, err)
	require.Len(t, res.AuditLogs, 1)
	assert.Equal(t, "payment.deleted", res.AuditLogs[0].Action)

	res, err = svc.List(ctx, auditdomain.ListAuditLogRequest{ActorType: auditcontext.ActorTypeSystem})
	require.NoError(t, err)
	require.Len(t, res.AuditLogs, 1)
	assert.Equal(t, "invoice.status_changed", res.AuditLogs[0].Action)
}
