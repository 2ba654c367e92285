package authorization

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/schoolfee/internal/audit/domain"
	auditrepo "github.com/smallbiznis/schoolfee/internal/audit/repository"
	auditservice "github.com/smallbiznis/schoolfee/internal/audit/service"
	schooldomain "github.com/smallbiznis/schoolfee/internal/school/domain"
	"github.com/smallbiznis/schoolfee/internal/testutil/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestAuthz(t *testing.T) (Service, func(schoolID int64, staffID, role string), *gorm.DB) {
	t.Helper()
	db := testdb.Open(t, &schooldomain.StaffMember{}, &auditdomain.AuditLog{})

	enforcer, err := NewEnforcer(db)
	require.NoError(t, err)

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	audit := auditservice.NewService(auditservice.Params{DB: db, Log: zap.NewNop(), GenID: node, Repo: auditrepo.Provide()})

	svc := NewService(Params{DB: db, Log: zap.NewNop(), Enforcer: enforcer, AuditSvc: audit})
	assign := func(schoolID int64, staffID, role string) {
		now := time.Now()
		require.NoError(t, db.Create(&schooldomain.StaffMember{
			ID:        node.Generate(),
			SchoolID:  snowflake.ID(schoolID),
			StaffID:   staffID,
			Role:      role,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}).Error)
	}
	return svc, assign, db
}

func TestAuthorizeRoles(t *testing.T) {
	svc, assign, _ := newTestAuthz(t)
	assign(10, "ada", RoleAdmin)
	assign(10, "ben", RoleBursar)
	assign(10, "tia", RoleTeacher)

	ctx := context.Background()
	cases := []struct {
		actor  string
		object string
		action string
		want   error
	}{
		{"staff:ada", ObjectCatalog, ActionCatalogManage, nil},
		{"staff:ada", ObjectPayment, ActionPaymentDelete, nil},
		{"staff:ben", ObjectCatalog, ActionCatalogManage, ErrForbidden},
		{"staff:ben", ObjectPayment, ActionPaymentRecord, nil},
		{"staff:ben", ObjectInvoice, ActionInvoiceGenerate, nil},
		{"staff:tia", ObjectInvoice, ActionInvoiceView, nil},
		{"staff:tia", ObjectPayment, ActionPaymentRecord, ErrForbidden},
		{"staff:nobody", ObjectInvoice, ActionInvoiceView, ErrForbidden},
		{"system", ObjectInvoice, ActionInvoiceAdjust, nil},
		{"system", ObjectCatalog, ActionCatalogManage, ErrForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.actor+" "+tc.action, func(t *testing.T) {
			err := svc.Authorize(ctx, tc.actor, "10", tc.object, tc.action)
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestAuthorizeIsScopedPerSchool(t *testing.T) {
	svc, assign, _ := newTestAuthz(t)
	assign(10, "ada", RoleAdmin)

	err := svc.Authorize(context.Background(), "staff:ada", "11", ObjectInvoice, ActionInvoiceView)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAuthorizeValidatesInput(t *testing.T) {
	svc, _, _ := newTestAuthz(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Authorize(ctx, "", "10", ObjectInvoice, ActionInvoiceView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, "user:1", "10", ObjectInvoice, ActionInvoiceView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, "staff:a", "abc", ObjectInvoice, ActionInvoiceView), ErrInvalidSchool)
	assert.ErrorIs(t, svc.Authorize(ctx, "staff:a", "10", "", ActionInvoiceView), ErrInvalidObject)
	assert.ErrorIs(t, svc.Authorize(ctx, "staff:a", "10", ObjectInvoice, " "), ErrInvalidAction)
}

func TestRoleChangeAppliesOnNextRequest(t *testing.T) {
	svc, assign, db := newTestAuthz(t)
	assign(10, "ben", RoleBursar)
	ctx := context.Background()

	require.NoError(t, svc.Authorize(ctx, "staff:ben", "10", ObjectPayment, ActionPaymentRecord))

	require.NoError(t, db.Model(&schooldomain.StaffMember{}).
		Where("staff_id = ?", "ben").
		Update("role", RoleTeacher).Error)

	assert.ErrorIs(t, svc.Authorize(ctx, "staff:ben", "10", ObjectPayment, ActionPaymentRecord), ErrForbidden)
	assert.NoError(t, svc.Authorize(ctx, "staff:ben", "10", ObjectInvoice, ActionInvoiceView))
}

func TestDeniedAccessIsAudited(t *testing.T) {
	svc, assign, db := newTestAuthz(t)
	assign(10, "tia", RoleTeacher)

	err := svc.Authorize(context.Background(), "staff:tia", "10", ObjectPayment, ActionPaymentDelete)
	require.ErrorIs(t, err, ErrForbidden)

	var rows []auditdomain.AuditLog
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "authorization.denied", rows[0].Action)
	assert.Equal(t, "staff", rows[0].ActorType)
	require.NotNil(t, rows[0].ActorID)
	assert.Equal(t, "tia", *rows[0].ActorID)
	require.NotNil(t, rows[0].TargetID)
	assert.Equal(t, ObjectPayment, *rows[0].TargetID)
	assert.Equal(t, ActionPaymentDelete, rows[0].Metadata["action"])
}
