package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	prefdomain "github.com/smallbiznis/schoolfee/internal/preference/domain"
)

type ComputeRequest struct {
	StudentID      snowflake.ID
	AcademicTermID snowflake.ID
	// IncludeExtras adds the grade-range fee amounts configured for the
	// student's grade.
	IncludeExtras bool
}

type Service interface {
	// Compute prices a student's term from the stored preference, creating
	// the default preference when none exists.
	Compute(ctx context.Context, req ComputeRequest) (Result, error)
	// ComputeWithPreference prices an unsaved preference.
	ComputeWithPreference(ctx context.Context, req ComputeRequest, pref prefdomain.GuardianFeePreference) (Result, error)
}

var (
	ErrInvalidSchool  = errors.New("invalid_school")
	ErrInvalidStudent = errors.New("invalid_student")
	ErrInvalidTerm    = errors.New("invalid_academic_term")
)
