package service

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/schoolfee/internal/audit/domain"
	auditrepo "github.com/smallbiznis/schoolfee/internal/audit/repository"
	auditservice "github.com/smallbiznis/schoolfee/internal/audit/service"
	"github.com/smallbiznis/schoolfee/internal/clock"
	catalogdomain "github.com/smallbiznis/schoolfee/internal/feecatalog/domain"
	catalogservice "github.com/smallbiznis/schoolfee/internal/feecatalog/service"
	"github.com/smallbiznis/schoolfee/internal/feecompute/domain"
	"github.com/smallbiznis/schoolfee/internal/observability/metrics"
	prefdomain "github.com/smallbiznis/schoolfee/internal/preference/domain"
	prefrepo "github.com/smallbiznis/schoolfee/internal/preference/repository"
	prefservice "github.com/smallbiznis/schoolfee/internal/preference/service"
	schoolrepo "github.com/smallbiznis/schoolfee/internal/school/repository"
	schoolservice "github.com/smallbiznis/schoolfee/internal/school/service"
	"github.com/smallbiznis/schoolfee/internal/testutil/fixture"
	"github.com/smallbiznis/schoolfee/internal/testutil/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type harness struct {
	svc     domain.Service
	prefs   prefdomain.Service
	catalog catalogdomain.Service
	fx      *fixture.Fixture
}

func setup(t *testing.T) harness {
	t.Helper()
	models := append(fixture.Models(), prefdomain.Models()...)
	db := testdb.Open(t, append(models, &auditdomain.AuditLog{})...)
	now := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	f := fixture.New(t, db, now)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(now)
	log := zap.NewNop()

	audit := auditservice.NewService(auditservice.Params{DB: db, Log: log, GenID: node, Repo: auditrepo.Provide(), Clock: clk})
	directory := schoolservice.New(schoolservice.Params{DB: db, Log: log, Repo: schoolrepo.Provide()})
	prefs := prefservice.New(prefservice.Params{DB: db, Log: log, GenID: node, Repo: prefrepo.Provide(), Directory: directory, AuditSvc: audit, Clock: clk})
	catalog := catalogservice.New(catalogservice.Params{DB: db, Log: log, GenID: node, AuditSvc: audit, Clock: clk})

	svc := New(Params{Log: log, Directory: directory, Catalog: catalog, Preferences: prefs, Metrics: metrics.NewNoop()})
	return harness{svc: svc, prefs: prefs, catalog: catalog, fx: f}
}

func TestComputeFromStoredPreference(t *testing.T) {
	h := setup(t)
	ctx := h.fx.Context()
	g4 := h.fx.Grade("Grade 4")
	student := h.fx.Student(g4, "Zawadi Kamau")
	h.fx.Tuition(g4, "35000", "20000")
	route := h.fx.Route("Westlands", "7000", "12000")
	h.fx.Universal(catalogdomain.FeeTypeFood, "8000")
	h.fx.Universal(catalogdomain.FeeTypeSports, "3000")

	_, err := h.prefs.Update(ctx, prefdomain.UpdatePreferenceRequest{
		StudentID:        student,
		AcademicTermID:   h.fx.TermID,
		TuitionType:      prefdomain.TuitionFullDay,
		TransportRouteID: &route,
		TransportType:    prefdomain.TransportTwoWay,
		IncludeFood:      true,
	})
	require.NoError(t, err)

	res, err := h.svc.Compute(ctx, domain.ComputeRequest{StudentID: student, AcademicTermID: h.fx.TermID})
	require.NoError(t, err)
	assert.True(t, res.Total.Equal(decimal.NewFromInt(55000)), "total %s", res.Total)

	got := res.Breakdown.Map()
	require.Len(t, got, 3)
	assert.True(t, got["Tuition"].Equal(decimal.NewFromInt(35000)))
	assert.True(t, got["Transport"].Equal(decimal.NewFromInt(12000)))
	assert.True(t, got["Food"].Equal(decimal.NewFromInt(8000)))
}

func TestComputeFollowsRevisedRoute(t *testing.T) {
	h := setup(t)
	ctx := h.fx.Context()
	g4 := h.fx.Grade("Grade 4")
	student := h.fx.Student(g4, "Zawadi Kamau")
	h.fx.Tuition(g4, "35000", "20000")
	route := h.fx.Route("Westlands", "7000", "12000")

	_, err := h.prefs.Update(ctx, prefdomain.UpdatePreferenceRequest{
		StudentID:        student,
		AcademicTermID:   h.fx.TermID,
		TuitionType:      prefdomain.TuitionFullDay,
		TransportRouteID: &route,
		TransportType:    prefdomain.TransportTwoWay,
	})
	require.NoError(t, err)

	revised, err := h.catalog.ReviseTransportRoute(ctx, catalogdomain.ReviseRequest{ID: route, AmountTwoWay: ptr(decimal.NewFromInt(13000))})
	require.NoError(t, err)
	require.NotEqual(t, route, revised.ID)

	res, err := h.svc.Compute(ctx, domain.ComputeRequest{StudentID: student, AcademicTermID: h.fx.TermID})
	require.NoError(t, err)
	assert.True(t, res.Total.Equal(decimal.NewFromInt(48000)), "total %s", res.Total)
	assert.True(t, res.Breakdown.Map()["Transport"].Equal(decimal.NewFromInt(13000)))

	again, err := h.catalog.ReviseTransportRoute(ctx, catalogdomain.ReviseRequest{ID: revised.ID, AmountTwoWay: ptr(decimal.NewFromInt(14000))})
	require.NoError(t, err)
	res, err = h.svc.Compute(ctx, domain.ComputeRequest{StudentID: student, AcademicTermID: h.fx.TermID})
	require.NoError(t, err)
	assert.True(t, res.Breakdown.Map()["Transport"].Equal(decimal.NewFromInt(14000)))

	require.NoError(t, h.catalog.Deactivate(ctx, catalogdomain.KindTransport, again.ID))
	_, err = h.svc.Compute(ctx, domain.ComputeRequest{StudentID: student, AcademicTermID: h.fx.TermID})
	require.ErrorIs(t, err, domain.ErrMissingCatalogEntry, "a withdrawn route still blocks pricing")
}

func ptr[T any](v T) *T { return &v }

func TestComputeWithPreferencePreviewsAndAddsExtras(t *testing.T) {
	h := setup(t)
	ctx := h.fx.Context()
	pp1 := h.fx.Grade("Pre-Primary 1")
	student := h.fx.Student(pp1, "Amani Otieno")
	h.fx.Tuition(pp1, "28000", "16000")
	h.fx.FeeAmount("Swimming", "PP1-PP2", "1500")
	h.fx.FeeAmount("Lab kit", "1-3", "2500")

	preview := prefdomain.GuardianFeePreference{TuitionType: prefdomain.TuitionHalfDay, IncludeSports: true}
	res, err := h.svc.ComputeWithPreference(ctx, domain.ComputeRequest{StudentID: student, AcademicTermID: h.fx.TermID, IncludeExtras: true}, preview)
	require.NoError(t, err)
	assert.True(t, res.Total.Equal(decimal.NewFromInt(17500)), "total %s", res.Total)
	assert.Equal(t, []domain.Warning{{Code: domain.WarningMissingOptionalFee, Fee: "sports"}}, res.Warnings)

	stored, err := h.prefs.GetOrCreate(ctx, student, h.fx.TermID)
	require.NoError(t, err)
	assert.Equal(t, prefdomain.TuitionFullDay, stored.TuitionType, "preview must not persist")
}

func TestComputeRefusesMissingTuition(t *testing.T) {
	h := setup(t)
	ctx := h.fx.Context()
	student := h.fx.Student(h.fx.Grade("Grade 7"), "Neema Wafula")

	_, err := h.svc.Compute(ctx, domain.ComputeRequest{StudentID: student, AcademicTermID: h.fx.TermID})
	require.ErrorIs(t, err, domain.ErrMissingCatalogEntry)
	var missing *domain.MissingCatalogEntryError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, catalogdomain.KindTuition, missing.Kind)
	assert.Equal(t, h.fx.YearID, missing.AcademicYearID)

	_, err = h.svc.Compute(ctx, domain.ComputeRequest{StudentID: snowflake.ID(4), AcademicTermID: h.fx.TermID})
	assert.ErrorIs(t, err, domain.ErrInvalidStudent)
}
