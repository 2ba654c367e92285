package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type School struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"type:varchar(255);not null" json:"name"`
	Code      string       `gorm:"type:varchar(32);not null;uniqueIndex" json:"code"`
	IsActive  bool         `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

type AcademicYear struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	SchoolID  snowflake.ID `gorm:"not null;index" json:"school_id"`
	Name      string       `gorm:"type:varchar(64);not null" json:"name"`
	StartsOn  time.Time    `gorm:"not null" json:"starts_on"`
	EndsOn    time.Time    `gorm:"not null" json:"ends_on"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

type AcademicTerm struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	SchoolID       snowflake.ID `gorm:"not null;index" json:"school_id"`
	AcademicYearID snowflake.ID `gorm:"not null;index" json:"academic_year_id"`
	Name           string       `gorm:"type:varchar(64);not null" json:"name"`
	StartsOn       time.Time    `gorm:"not null" json:"starts_on"`
	EndsOn         time.Time    `gorm:"not null" json:"ends_on"`
	CreatedAt      time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"not null" json:"updated_at"`
}

// Grade is a school's class level. Name holds the display label
// ("Pre-Primary 1", "Grade 4") parsed by the grade package.
type Grade struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	SchoolID  snowflake.ID `gorm:"not null;index" json:"school_id"`
	Name      string       `gorm:"type:varchar(64);not null" json:"name"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

type Student struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	SchoolID        snowflake.ID `gorm:"not null;index" json:"school_id"`
	GradeID         snowflake.ID `gorm:"not null;index" json:"grade_id"`
	AdmissionNumber string       `gorm:"type:varchar(64)" json:"admission_number"`
	FirstName       string       `gorm:"type:varchar(128);not null" json:"first_name"`
	LastName        string       `gorm:"type:varchar(128);not null" json:"last_name"`
	IsActive        bool         `gorm:"not null;default:true" json:"is_active"`
	CreatedAt       time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time    `gorm:"not null" json:"updated_at"`
}

func (s Student) FullName() string {
	switch {
	case s.FirstName == "":
		return s.LastName
	case s.LastName == "":
		return s.FirstName
	default:
		return s.FirstName + " " + s.LastName
	}
}

type Guardian struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	SchoolID  snowflake.ID `gorm:"not null;index" json:"school_id"`
	Name      string       `gorm:"type:varchar(255);not null" json:"name"`
	Email     string       `gorm:"type:varchar(255)" json:"email"`
	Phone     string       `gorm:"type:varchar(32)" json:"phone"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

// GuardianStudent links a guardian to a student they pay for.
type GuardianStudent struct {
	GuardianID   snowflake.ID `gorm:"primaryKey" json:"guardian_id"`
	StudentID    snowflake.ID `gorm:"primaryKey;index" json:"student_id"`
	Relationship string       `gorm:"type:varchar(32)" json:"relationship"`
	CreatedAt    time.Time    `gorm:"not null" json:"created_at"`
}

func (GuardianStudent) TableName() string { return "guardian_students" }

// StaffMember grants a staff identity a role within one school.
type StaffMember struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	SchoolID  snowflake.ID `gorm:"not null;uniqueIndex:ux_school_staff" json:"school_id"`
	StaffID   string       `gorm:"type:varchar(128);not null;uniqueIndex:ux_school_staff" json:"staff_id"`
	Role      string       `gorm:"type:varchar(32);not null" json:"role"`
	IsActive  bool         `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

func (StaffMember) TableName() string { return "school_staff" }

// StudentProfile is a student together with the grade label used for fee lookup.
type StudentProfile struct {
	Student
	GradeName string `json:"grade_name"`
}

// TermInfo is a term with the owning academic year's name.
type TermInfo struct {
	AcademicTerm
	AcademicYearName string `json:"academic_year_name"`
}

// Models lists every table owned by this package.
func Models() []any {
	return []any{
		&School{},
		&AcademicYear{},
		&AcademicTerm{},
		&Grade{},
		&Student{},
		&Guardian{},
		&GuardianStudent{},
		&StaffMember{},
	}
}
