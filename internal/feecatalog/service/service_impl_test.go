package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/schoolfee/internal/audit/domain"
	auditrepo "github.com/smallbiznis/schoolfee/internal/audit/repository"
	auditservice "github.com/smallbiznis/schoolfee/internal/audit/service"
	"github.com/smallbiznis/schoolfee/internal/clock"
	"github.com/smallbiznis/schoolfee/internal/feecatalog/domain"
	"github.com/smallbiznis/schoolfee/internal/testutil/fixture"
	"github.com/smallbiznis/schoolfee/internal/testutil/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setup(t *testing.T) (domain.Service, *fixture.Fixture, *gorm.DB) {
	t.Helper()
	db := testdb.Open(t, append(fixture.Models(), &auditdomain.AuditLog{})...)
	now := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	fx := fixture.New(t, db, now)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(now)
	audit := auditservice.NewService(auditservice.Params{DB: db, Log: zap.NewNop(), GenID: node, Repo: auditrepo.Provide(), Clock: clk})

	svc := New(Params{DB: db, Log: zap.NewNop(), GenID: node, AuditSvc: audit, Clock: clk})
	return svc, fx, db
}

func amount(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func ptr[T any](v T) *T { return &v }

func TestResolveTuitionPicksNewestActive(t *testing.T) {
	svc, fx, _ := setup(t)
	ctx := fx.Context()
	g4 := fx.Grade("Grade 4")

	missing, err := svc.ResolveTuition(ctx, g4, fx.YearID)
	require.NoError(t, err)
	assert.Nil(t, missing)

	created, err := svc.CreateTuitionFee(ctx, domain.CreateTuitionFeeRequest{
		GradeID:        g4,
		AcademicYearID: fx.YearID,
		AmountFullDay:  amount("35000"),
		AmountHalfDay:  amount("20000.005"),
	})
	require.NoError(t, err)
	assert.Equal(t, "20000.01", created.AmountHalfDay.StringFixed(2))

	got, err := svc.ResolveTuition(ctx, g4, fx.YearID)
	require.NoError(t, err)
	require.NotNil(t, got, "create must invalidate the cached miss")
	assert.Equal(t, created.ID, got.ID)

	other, err := svc.ResolveTuition(ctx, g4, snowflake.ID(999))
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestReviseSupersedesRow(t *testing.T) {
	svc, fx, db := setup(t)
	ctx := fx.Context()
	g4 := fx.Grade("Grade 4")
	original := fx.Tuition(g4, "35000", "20000")

	revised, err := svc.ReviseTuitionFee(ctx, domain.ReviseRequest{ID: original, AmountFullDay: ptr(amount("36000"))})
	require.NoError(t, err)
	assert.NotEqual(t, original, revised.ID)
	assert.True(t, revised.AmountFullDay.Equal(amount("36000")))
	assert.True(t, revised.AmountHalfDay.Equal(amount("20000")))

	var old domain.TuitionFee
	require.NoError(t, db.First(&old, "id = ?", original).Error)
	assert.False(t, old.IsActive)
	assert.True(t, old.AmountFullDay.Equal(amount("35000")), "superseded rates stay untouched")

	got, err := svc.ResolveTuition(ctx, g4, fx.YearID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, revised.ID, got.ID)

	_, err = svc.ReviseTuitionFee(ctx, domain.ReviseRequest{ID: original, AmountFullDay: ptr(amount("1"))})
	assert.ErrorIs(t, err, domain.ErrInactive)

	_, err = svc.ReviseTuitionFee(ctx, domain.ReviseRequest{ID: revised.ID, AmountHalfDay: ptr(amount("-1"))})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	all, err := svc.ListTuitionFees(ctx, domain.ListRequest{AcademicYearID: fx.YearID, IncludeInactive: true})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := svc.ListTuitionFees(ctx, domain.ListRequest{AcademicYearID: fx.YearID})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, revised.ID, active[0].ID)

	var audits []auditdomain.AuditLog
	require.NoError(t, db.Where("action = ?", "catalog.revised").Find(&audits).Error)
	require.Len(t, audits, 1)
	assert.Equal(t, "tuition", audits[0].Metadata["kind"])
}

func TestDeactivateRoute(t *testing.T) {
	svc, fx, _ := setup(t)
	ctx := fx.Context()
	route := fx.Route("Westlands", "7000", "12000")

	got, err := svc.GetRoute(ctx, route)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Westlands", got.Name)

	require.NoError(t, svc.Deactivate(ctx, domain.KindTransport, route))
	require.NoError(t, svc.Deactivate(ctx, domain.KindTransport, route), "deactivating twice is a no-op")

	got, err = svc.GetRoute(ctx, route)
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.ErrorIs(t, svc.Deactivate(ctx, domain.KindTransport, snowflake.ID(5)), domain.ErrNotFound)
	assert.ErrorIs(t, svc.Deactivate(ctx, domain.Kind("bogus"), route), domain.ErrInvalidKind)
}

func TestReviseRouteKeepsLineage(t *testing.T) {
	svc, fx, _ := setup(t)
	ctx := fx.Context()

	created, err := svc.CreateTransportRoute(ctx, domain.CreateTransportRouteRequest{
		AcademicYearID: fx.YearID,
		Name:           "Karen",
		AmountOneWay:   amount("6000"),
		AmountTwoWay:   amount("11000"),
	})
	require.NoError(t, err)
	assert.Equal(t, created.ID, created.RouteKey)

	revised, err := svc.ReviseTransportRoute(ctx, domain.ReviseRequest{ID: created.ID, AmountTwoWay: ptr(amount("11500"))})
	require.NoError(t, err)
	assert.Equal(t, created.ID, revised.RouteKey)

	got, err := svc.GetRoute(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got, "old version resolves to the current price")
	assert.Equal(t, revised.ID, got.ID)
	assert.True(t, got.AmountTwoWay.Equal(amount("11500")))

	other := fx.Route("Westlands", "7000", "12000")
	got, err = svc.GetRoute(ctx, other)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Westlands", got.Name)
}

func TestFeeAmountLabelRules(t *testing.T) {
	svc, fx, _ := setup(t)
	ctx := fx.Context()
	create := func(label, grades string) (domain.FeeAmount, error) {
		return svc.CreateFeeAmount(ctx, domain.CreateFeeAmountRequest{
			AcademicYearID: fx.YearID,
			Label:          label,
			GradeRange:     grades,
			Amount:         amount("1500"),
		})
	}

	for _, label := range []string{"Food", " tuition ", "SPORTS", "Transport"} {
		_, err := create(label, "1-3")
		assert.ErrorIs(t, err, domain.ErrReservedLabel, label)
	}

	swimming, err := create("Swimming", "PP1-PP2")
	require.NoError(t, err)
	_, err = create("swimming", "PP2-3")
	assert.ErrorIs(t, err, domain.ErrDuplicateLabel)
	_, err = create("Swimming", "1-3")
	require.NoError(t, err, "disjoint grades may reuse a label")

	lab, err := create("Lab kit", "PP1")
	require.NoError(t, err)
	_, err = svc.ReviseFeeAmount(ctx, domain.ReviseRequest{ID: lab.ID, Label: ptr("Swimming")})
	assert.ErrorIs(t, err, domain.ErrDuplicateLabel)
	_, err = svc.ReviseFeeAmount(ctx, domain.ReviseRequest{ID: lab.ID, Label: ptr("food")})
	assert.ErrorIs(t, err, domain.ErrReservedLabel)

	revised, err := svc.ReviseFeeAmount(ctx, domain.ReviseRequest{ID: swimming.ID, Label: ptr("Swimming"), Amount: ptr(amount("1800"))})
	require.NoError(t, err, "a revision does not collide with the row it supersedes")
	assert.True(t, revised.Amount.Equal(amount("1800")))
}

func TestResolveUniversal(t *testing.T) {
	svc, fx, _ := setup(t)
	ctx := fx.Context()
	fx.Universal(domain.FeeTypeFood, "8000")

	food, err := svc.ResolveUniversal(ctx, fx.YearID, domain.FeeTypeFood)
	require.NoError(t, err)
	require.NotNil(t, food)
	assert.True(t, food.Amount.Equal(amount("8000")))

	sports, err := svc.ResolveUniversal(ctx, fx.YearID, domain.FeeTypeSports)
	require.NoError(t, err)
	assert.Nil(t, sports)

	_, err = svc.ResolveUniversal(ctx, fx.YearID, domain.FeeType("music"))
	assert.ErrorIs(t, err, domain.ErrInvalidFeeType)
}

func TestFeeAmountsForGrade(t *testing.T) {
	svc, fx, _ := setup(t)
	ctx := fx.Context()
	fx.FeeAmount("Swimming", "PP1-PP2", "1500")
	fx.FeeAmount("Lab kit", "1-3", "2500")

	_, err := svc.CreateFeeAmount(ctx, domain.CreateFeeAmountRequest{AcademicYearID: fx.YearID, Label: "Trip", GradeRange: "3-1", Amount: amount("1")})
	assert.ErrorIs(t, err, domain.ErrInvalidGradeRange)

	trip, err := svc.CreateFeeAmount(ctx, domain.CreateFeeAmountRequest{AcademicYearID: fx.YearID, Label: "Trip", GradeRange: "Grade 2", Amount: amount("900")})
	require.NoError(t, err)
	assert.Equal(t, "2", trip.GradeRange)

	pp1, err := svc.FeeAmountsForGrade(ctx, fx.YearID, "PP1")
	require.NoError(t, err)
	require.Len(t, pp1, 1)
	assert.Equal(t, "Swimming", pp1[0].Label)

	g2, err := svc.FeeAmountsForGrade(ctx, fx.YearID, "Grade 2")
	require.NoError(t, err)
	assert.Len(t, g2, 2)

	g4, err := svc.FeeAmountsForGrade(ctx, fx.YearID, "Grade 4")
	require.NoError(t, err)
	assert.Empty(t, g4)
}

func TestCatalogRequiresSchool(t *testing.T) {
	svc, _, _ := setup(t)
	_, err := svc.ResolveTuition(context.Background(), 1, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidSchool)
}
