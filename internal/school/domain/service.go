package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Directory is the read-only view of school records the fee core depends on.
// Every lookup is scoped to the school in the request context.
type Directory interface {
	GetSchool(ctx context.Context) (School, error)
	GetTerm(ctx context.Context, termID snowflake.ID) (TermInfo, error)
	GetStudent(ctx context.Context, studentID snowflake.ID) (StudentProfile, error)
	GetGuardian(ctx context.Context, guardianID snowflake.ID) (Guardian, error)
	// StudentsForGuardian returns active linked students ordered by name.
	StudentsForGuardian(ctx context.Context, guardianID snowflake.ID) ([]StudentProfile, error)
	GuardiansForStudent(ctx context.Context, studentID snowflake.ID) ([]Guardian, error)
}

var (
	ErrInvalidSchool    = errors.New("invalid_school")
	ErrSchoolNotFound   = errors.New("school_not_found")
	ErrTermNotFound     = errors.New("academic_term_not_found")
	ErrStudentNotFound  = errors.New("student_not_found")
	ErrGuardianNotFound = errors.New("guardian_not_found")
)
