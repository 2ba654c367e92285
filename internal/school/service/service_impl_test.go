package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/schoolfee/internal/school/domain"
	"github.com/smallbiznis/schoolfee/internal/school/repository"
	"github.com/smallbiznis/schoolfee/internal/schoolcontext"
	"github.com/smallbiznis/schoolfee/internal/testutil/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDirectoryLookups(t *testing.T) {
	db := testdb.Open(t, domain.Models()...)
	now := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	require.NoError(t, db.Create(&domain.School{ID: 1, Name: "Hillside", Code: "HILL", IsActive: true, CreatedAt: now, UpdatedAt: now}).Error)
	require.NoError(t, db.Create(&domain.AcademicYear{ID: 10, SchoolID: 1, Name: "2026", StartsOn: now, EndsOn: now.AddDate(1, 0, 0), CreatedAt: now, UpdatedAt: now}).Error)
	require.NoError(t, db.Create(&domain.AcademicTerm{ID: 11, SchoolID: 1, AcademicYearID: 10, Name: "Term 1", StartsOn: now, EndsOn: now.AddDate(0, 3, 0), CreatedAt: now, UpdatedAt: now}).Error)
	require.NoError(t, db.Create(&domain.Grade{ID: 20, SchoolID: 1, Name: "Grade 4", CreatedAt: now, UpdatedAt: now}).Error)
	require.NoError(t, db.Create(&domain.Student{ID: 30, SchoolID: 1, GradeID: 20, FirstName: "Zawadi", LastName: "K", IsActive: true, CreatedAt: now, UpdatedAt: now}).Error)
	require.NoError(t, db.Create(&domain.Student{ID: 31, SchoolID: 1, GradeID: 20, FirstName: "Amani", LastName: "K", IsActive: true, CreatedAt: now, UpdatedAt: now}).Error)
	require.NoError(t, db.Create(&domain.Guardian{ID: 40, SchoolID: 1, Name: "Wanjiru K", Email: "wk@example.com", CreatedAt: now, UpdatedAt: now}).Error)
	require.NoError(t, db.Create(&domain.GuardianStudent{GuardianID: 40, StudentID: 30, CreatedAt: now}).Error)
	require.NoError(t, db.Create(&domain.GuardianStudent{GuardianID: 40, StudentID: 31, CreatedAt: now}).Error)

	dir := New(Params{DB: db, Log: zap.NewNop(), Repo: repository.Provide()})
	ctx := schoolcontext.WithSchoolID(context.Background(), snowflake.ID(1))

	term, err := dir.GetTerm(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(10), term.AcademicYearID)
	assert.Equal(t, "2026", term.AcademicYearName)

	student, err := dir.GetStudent(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, "Grade 4", student.GradeName)
	assert.Equal(t, "Zawadi K", student.FullName())

	students, err := dir.StudentsForGuardian(ctx, 40)
	require.NoError(t, err)
	require.Len(t, students, 2)
	assert.Equal(t, "Amani", students[0].FirstName)

	guardians, err := dir.GuardiansForStudent(ctx, 31)
	require.NoError(t, err)
	require.Len(t, guardians, 1)
	assert.Equal(t, "wk@example.com", guardians[0].Email)

	otherSchool := schoolcontext.WithSchoolID(context.Background(), snowflake.ID(2))
	_, err = dir.GetStudent(otherSchool, 30)
	assert.ErrorIs(t, err, domain.ErrStudentNotFound)

	_, err = dir.GetTerm(context.Background(), 11)
	assert.ErrorIs(t, err, domain.ErrInvalidSchool)
}
