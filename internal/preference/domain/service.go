package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type UpdatePreferenceRequest struct {
	StudentID        snowflake.ID
	AcademicTermID   snowflake.ID
	TuitionType      TuitionType
	TransportRouteID *snowflake.ID
	TransportType    TransportType
	IncludeFood      bool
	IncludeSports    bool
	Notes            string
	// ExpectedVersion, when set, must match the stored version.
	ExpectedVersion *int64
}

// Apply returns current with the request's fields applied and normalized.
func (r UpdatePreferenceRequest) Apply(current GuardianFeePreference) GuardianFeePreference {
	next := current
	next.TuitionType = r.TuitionType
	next.TransportRouteID = r.TransportRouteID
	next.TransportType = r.TransportType
	next.IncludeFood = r.IncludeFood
	next.IncludeSports = r.IncludeSports
	next.Notes = r.Notes
	next.Normalize()
	return next
}

type Service interface {
	GetOrCreate(ctx context.Context, studentID, termID snowflake.ID) (GuardianFeePreference, error)
	Update(ctx context.Context, req UpdatePreferenceRequest) (GuardianFeePreference, error)
	Get(ctx context.Context, id snowflake.ID) (GuardianFeePreference, error)
	// ListForGuardian returns one preference per linked student, creating
	// defaults for students who have none yet.
	ListForGuardian(ctx context.Context, guardianID, termID snowflake.ID) ([]GuardianFeePreference, error)
	// History lists changes oldest first.
	History(ctx context.Context, preferenceID snowflake.ID) ([]PreferenceChange, error)
}

type Repository interface {
	FindByStudentTerm(ctx context.Context, db *gorm.DB, schoolID, studentID, termID snowflake.ID) (*GuardianFeePreference, error)
	FindByID(ctx context.Context, db *gorm.DB, schoolID, id snowflake.ID) (*GuardianFeePreference, error)
	Lock(ctx context.Context, db *gorm.DB, schoolID, id snowflake.ID) (*GuardianFeePreference, error)
	Insert(ctx context.Context, db *gorm.DB, pref *GuardianFeePreference) error
	// UpdateVersioned writes pref if the stored version is still
	// pref.Version-1 and reports whether a row changed.
	UpdateVersioned(ctx context.Context, db *gorm.DB, pref *GuardianFeePreference) (bool, error)
	InsertChange(ctx context.Context, db *gorm.DB, change *PreferenceChange) error
	ListChanges(ctx context.Context, db *gorm.DB, schoolID, preferenceID snowflake.ID) ([]*PreferenceChange, error)
}

var (
	ErrInvalidSchool        = errors.New("invalid_school")
	ErrInvalidStudent       = errors.New("invalid_student")
	ErrInvalidTerm          = errors.New("invalid_academic_term")
	ErrInvalidTuitionType   = errors.New("invalid_tuition_type")
	ErrInvalidTransportType = errors.New("invalid_transport_type")
	ErrNotFound             = errors.New("preference_not_found")
	ErrVersionConflict      = errors.New("preference_version_conflict")
)
