// Package fixture seeds a small school with catalog rates for service tests.
package fixture

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/schoolfee/internal/auditcontext"
	catalogdomain "github.com/smallbiznis/schoolfee/internal/feecatalog/domain"
	schooldomain "github.com/smallbiznis/schoolfee/internal/school/domain"
	"github.com/smallbiznis/schoolfee/internal/schoolcontext"
	"gorm.io/gorm"
)

// Models returns the school directory and catalog tables.
func Models() []any {
	return append(schooldomain.Models(), catalogdomain.Models()...)
}

type Fixture struct {
	t    testing.TB
	db   *gorm.DB
	now  time.Time
	next int64

	SchoolID snowflake.ID
	YearID   snowflake.ID
	TermID   snowflake.ID
}

// New creates one school with an academic year and its first term.
func New(t testing.TB, db *gorm.DB, now time.Time) *Fixture {
	t.Helper()
	f := &Fixture{t: t, db: db, now: now, next: 1000}

	f.SchoolID = f.id()
	f.create(&schooldomain.School{ID: f.SchoolID, Name: "Hillside Academy", Code: "HILL", IsActive: true, CreatedAt: now, UpdatedAt: now})
	f.YearID = f.id()
	f.create(&schooldomain.AcademicYear{ID: f.YearID, SchoolID: f.SchoolID, Name: "2026", StartsOn: now, EndsOn: now.AddDate(1, 0, 0), CreatedAt: now, UpdatedAt: now})
	f.TermID = f.Term("Term 1")
	return f
}

// Context scopes ctx to the fixture school with a bursar actor.
func (f *Fixture) Context() context.Context {
	ctx := schoolcontext.WithSchoolID(context.Background(), f.SchoolID)
	return auditcontext.WithActor(ctx, auditcontext.ActorTypeStaff, "bursar-1")
}

func (f *Fixture) Term(name string) snowflake.ID {
	id := f.id()
	f.create(&schooldomain.AcademicTerm{ID: id, SchoolID: f.SchoolID, AcademicYearID: f.YearID, Name: name, StartsOn: f.now, EndsOn: f.now.AddDate(0, 3, 0), CreatedAt: f.now, UpdatedAt: f.now})
	return id
}

func (f *Fixture) Grade(name string) snowflake.ID {
	id := f.id()
	f.create(&schooldomain.Grade{ID: id, SchoolID: f.SchoolID, Name: name, CreatedAt: f.now, UpdatedAt: f.now})
	return id
}

func (f *Fixture) Student(gradeID snowflake.ID, name string) snowflake.ID {
	id := f.id()
	first, last, _ := strings.Cut(name, " ")
	f.create(&schooldomain.Student{ID: id, SchoolID: f.SchoolID, GradeID: gradeID, FirstName: first, LastName: last, IsActive: true, CreatedAt: f.now, UpdatedAt: f.now})
	return id
}

// Guardian creates a guardian linked to each of studentIDs.
func (f *Fixture) Guardian(name, email string, studentIDs ...snowflake.ID) snowflake.ID {
	id := f.id()
	f.create(&schooldomain.Guardian{ID: id, SchoolID: f.SchoolID, Name: name, Email: email, CreatedAt: f.now, UpdatedAt: f.now})
	for _, studentID := range studentIDs {
		f.create(&schooldomain.GuardianStudent{GuardianID: id, StudentID: studentID, Relationship: "parent", CreatedAt: f.now})
	}
	return id
}

func (f *Fixture) Tuition(gradeID snowflake.ID, fullDay, halfDay string) snowflake.ID {
	id := f.id()
	f.create(&catalogdomain.TuitionFee{ID: id, SchoolID: f.SchoolID, GradeID: gradeID, AcademicYearID: f.YearID, AmountFullDay: dec(fullDay), AmountHalfDay: dec(halfDay), IsActive: true, CreatedAt: f.now, UpdatedAt: f.now})
	return id
}

func (f *Fixture) Route(name, oneWay, twoWay string) snowflake.ID {
	id := f.id()
	f.create(&catalogdomain.TransportRoute{ID: id, SchoolID: f.SchoolID, RouteKey: id, AcademicYearID: f.YearID, Name: name, AmountOneWay: dec(oneWay), AmountTwoWay: dec(twoWay), IsActive: true, CreatedAt: f.now, UpdatedAt: f.now})
	return id
}

func (f *Fixture) Universal(feeType catalogdomain.FeeType, amount string) snowflake.ID {
	id := f.id()
	f.create(&catalogdomain.UniversalFee{ID: id, SchoolID: f.SchoolID, AcademicYearID: f.YearID, FeeType: feeType, Amount: dec(amount), IsActive: true, CreatedAt: f.now, UpdatedAt: f.now})
	return id
}

func (f *Fixture) FeeAmount(label, gradeRange, amount string) snowflake.ID {
	id := f.id()
	f.create(&catalogdomain.FeeAmount{ID: id, SchoolID: f.SchoolID, AcademicYearID: f.YearID, Label: label, GradeRange: gradeRange, Amount: dec(amount), IsActive: true, CreatedAt: f.now, UpdatedAt: f.now})
	return id
}

func (f *Fixture) id() snowflake.ID {
	f.next++
	return snowflake.ID(f.next)
}

func (f *Fixture) create(v any) {
	f.t.Helper()
	if err := f.db.Create(v).Error; err != nil {
		f.t.Fatalf("seed %T: %v", v, err)
	}
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}
