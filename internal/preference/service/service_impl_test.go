package service

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/schoolfee/internal/audit/domain"
	auditrepo "github.com/smallbiznis/schoolfee/internal/audit/repository"
	auditservice "github.com/smallbiznis/schoolfee/internal/audit/service"
	"github.com/smallbiznis/schoolfee/internal/clock"
	"github.com/smallbiznis/schoolfee/internal/preference/domain"
	"github.com/smallbiznis/schoolfee/internal/preference/repository"
	schoolrepo "github.com/smallbiznis/schoolfee/internal/school/repository"
	schoolservice "github.com/smallbiznis/schoolfee/internal/school/service"
	"github.com/smallbiznis/schoolfee/internal/testutil/fixture"
	"github.com/smallbiznis/schoolfee/internal/testutil/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type harness struct {
	svc   domain.Service
	fx    *fixture.Fixture
	db    *gorm.DB
	clock *clock.FakeClock
}

func setup(t *testing.T) harness {
	t.Helper()
	models := append(fixture.Models(), domain.Models()...)
	db := testdb.Open(t, append(models, &auditdomain.AuditLog{})...)
	now := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	f := fixture.New(t, db, now)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(now)
	log := zap.NewNop()

	svc := New(Params{
		DB:        db,
		Log:       log,
		GenID:     node,
		Repo:      repository.Provide(),
		Directory: schoolservice.New(schoolservice.Params{DB: db, Log: log, Repo: schoolrepo.Provide()}),
		AuditSvc:  auditservice.NewService(auditservice.Params{DB: db, Log: log, GenID: node, Repo: auditrepo.Provide(), Clock: clk}),
		Clock:     clk,
	})
	return harness{svc: svc, fx: f, db: db, clock: clk}
}

func TestGetOrCreateDefaults(t *testing.T) {
	h := setup(t)
	ctx := h.fx.Context()
	student := h.fx.Student(h.fx.Grade("Grade 4"), "Zawadi Kamau")

	first, err := h.svc.GetOrCreate(ctx, student, h.fx.TermID)
	require.NoError(t, err)
	assert.Equal(t, domain.TuitionFullDay, first.TuitionType)
	assert.Equal(t, domain.TransportNone, first.TransportType)
	assert.Nil(t, first.TransportRouteID)
	assert.False(t, first.IncludeFood)
	assert.EqualValues(t, 1, first.Version)

	again, err := h.svc.GetOrCreate(ctx, student, h.fx.TermID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	var count int64
	require.NoError(t, h.db.Model(&domain.GuardianFeePreference{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	_, err = h.svc.GetOrCreate(ctx, snowflake.ID(77), h.fx.TermID)
	assert.ErrorIs(t, err, domain.ErrInvalidStudent)
	_, err = h.svc.GetOrCreate(ctx, student, snowflake.ID(77))
	assert.ErrorIs(t, err, domain.ErrInvalidTerm)
}

func TestUpdateSnapshotsPreviousValues(t *testing.T) {
	h := setup(t)
	ctx := h.fx.Context()
	student := h.fx.Student(h.fx.Grade("Grade 4"), "Zawadi Kamau")

	_, err := h.svc.GetOrCreate(ctx, student, h.fx.TermID)
	require.NoError(t, err)

	h.clock.Advance(time.Hour)
	updated, err := h.svc.Update(ctx, domain.UpdatePreferenceRequest{
		StudentID:      student,
		AcademicTermID: h.fx.TermID,
		TuitionType:    domain.TuitionHalfDay,
		TransportType:  domain.TransportNone,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TuitionHalfDay, updated.TuitionType)
	assert.EqualValues(t, 2, updated.Version)

	stored, err := h.svc.Get(ctx, updated.ID)
	require.NoError(t, err)
	assert.Equal(t, "full_day", stored.PreviousValues["tuition_type"])
	require.NotNil(t, stored.UpdatedBy)
	assert.Equal(t, "staff:bursar-1", *stored.UpdatedBy)

	history, err := h.svc.History(ctx, updated.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	diff := history[0].Diff.Data()
	assert.Equal(t, domain.FieldChange{From: "full_day", To: "half_day"}, diff["tuition_type"])
	assert.Len(t, diff, 1)
	assert.True(t, h.clock.Now().Equal(history[0].ChangedAt))

	var audits int64
	require.NoError(t, h.db.Model(&auditdomain.AuditLog{}).Where("action = ?", "preference.updated").Count(&audits).Error)
	assert.EqualValues(t, 1, audits)
}

func TestUpdateKeepsFullHistory(t *testing.T) {
	h := setup(t)
	ctx := h.fx.Context()
	student := h.fx.Student(h.fx.Grade("PP1"), "Amani Otieno")
	route := h.fx.Route("Karen", "6000", "11000")

	_, err := h.svc.Update(ctx, domain.UpdatePreferenceRequest{
		StudentID:        student,
		AcademicTermID:   h.fx.TermID,
		TuitionType:      domain.TuitionFullDay,
		TransportRouteID: &route,
		TransportType:    domain.TransportTwoWay,
	})
	require.NoError(t, err)

	second, err := h.svc.Update(ctx, domain.UpdatePreferenceRequest{
		StudentID:        student,
		AcademicTermID:   h.fx.TermID,
		TuitionType:      domain.TuitionFullDay,
		TransportRouteID: &route,
		TransportType:    domain.TransportTwoWay,
		IncludeFood:      true,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 3, second.Version)
	assert.Equal(t, true, second.IncludeFood)
	assert.Equal(t, "two_way", second.PreviousValues["transport_type"])

	history, err := h.svc.History(ctx, second.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Contains(t, history[0].Diff.Data(), "transport_route_id")
	assert.Contains(t, history[0].Diff.Data(), "transport_type")
	assert.Equal(t, domain.FieldChange{From: false, To: true}, history[1].Diff.Data()["include_food"])
}

func TestUpdateNoOpWritesNothing(t *testing.T) {
	h := setup(t)
	ctx := h.fx.Context()
	student := h.fx.Student(h.fx.Grade("Grade 1"), "Baraka Njoroge")

	pref, err := h.svc.GetOrCreate(ctx, student, h.fx.TermID)
	require.NoError(t, err)

	same, err := h.svc.Update(ctx, domain.UpdatePreferenceRequest{
		StudentID:      student,
		AcademicTermID: h.fx.TermID,
		TuitionType:    domain.TuitionFullDay,
	})
	require.NoError(t, err)
	assert.Equal(t, pref.Version, same.Version)

	history, err := h.svc.History(ctx, pref.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestUpdateNormalizesTransport(t *testing.T) {
	h := setup(t)
	ctx := h.fx.Context()
	student := h.fx.Student(h.fx.Grade("Grade 2"), "Neema Wafula")
	route := h.fx.Route("Runda", "5000", "9000")

	orphanType, err := h.svc.Update(ctx, domain.UpdatePreferenceRequest{
		StudentID:      student,
		AcademicTermID: h.fx.TermID,
		TuitionType:    domain.TuitionFullDay,
		TransportType:  domain.TransportOneWay,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TransportNone, orphanType.TransportType)

	orphanRoute, err := h.svc.Update(ctx, domain.UpdatePreferenceRequest{
		StudentID:        student,
		AcademicTermID:   h.fx.TermID,
		TuitionType:      domain.TuitionHalfDay,
		TransportRouteID: &route,
		TransportType:    domain.TransportNone,
	})
	require.NoError(t, err)
	assert.Nil(t, orphanRoute.TransportRouteID)
	assert.Equal(t, domain.TuitionHalfDay, orphanRoute.TuitionType)

	_, err = h.svc.Update(ctx, domain.UpdatePreferenceRequest{
		StudentID:      student,
		AcademicTermID: h.fx.TermID,
		TuitionType:    "evening",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidTuitionType)
}

func TestUpdateVersionConflict(t *testing.T) {
	h := setup(t)
	ctx := h.fx.Context()
	student := h.fx.Student(h.fx.Grade("Grade 3"), "Imani Mutua")

	pref, err := h.svc.GetOrCreate(ctx, student, h.fx.TermID)
	require.NoError(t, err)

	stale := pref.Version
	_, err = h.svc.Update(ctx, domain.UpdatePreferenceRequest{
		StudentID:       student,
		AcademicTermID:  h.fx.TermID,
		TuitionType:     domain.TuitionHalfDay,
		ExpectedVersion: &stale,
	})
	require.NoError(t, err)

	_, err = h.svc.Update(ctx, domain.UpdatePreferenceRequest{
		StudentID:       student,
		AcademicTermID:  h.fx.TermID,
		TuitionType:     domain.TuitionFullDay,
		ExpectedVersion: &stale,
	})
	assert.ErrorIs(t, err, domain.ErrVersionConflict)
}

func TestListForGuardian(t *testing.T) {
	h := setup(t)
	ctx := h.fx.Context()
	g4 := h.fx.Grade("Grade 4")
	a := h.fx.Student(g4, "Zawadi Kamau")
	b := h.fx.Student(g4, "Tumaini Kamau")
	guardian := h.fx.Guardian("Wanjiru Kamau", "wanjiru@example.com", a, b)

	prefs, err := h.svc.ListForGuardian(ctx, guardian, h.fx.TermID)
	require.NoError(t, err)
	require.Len(t, prefs, 2)

	again, err := h.svc.ListForGuardian(ctx, guardian, h.fx.TermID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []snowflake.ID{prefs[0].ID, prefs[1].ID}, []snowflake.ID{again[0].ID, again[1].ID})
}
