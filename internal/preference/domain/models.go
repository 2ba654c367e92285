package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type TuitionType string

const (
	TuitionFullDay TuitionType = "full_day"
	TuitionHalfDay TuitionType = "half_day"
)

func (t TuitionType) Valid() bool {
	return t == TuitionFullDay || t == TuitionHalfDay
}

type TransportType string

const (
	TransportNone   TransportType = "none"
	TransportOneWay TransportType = "one_way"
	TransportTwoWay TransportType = "two_way"
)

func (t TransportType) Valid() bool {
	return t == TransportNone || t == TransportOneWay || t == TransportTwoWay
}

// GuardianFeePreference is what one student is billed for in one term.
type GuardianFeePreference struct {
	ID               snowflake.ID      `gorm:"primaryKey" json:"id"`
	SchoolID         snowflake.ID      `gorm:"not null;index" json:"school_id"`
	StudentID        snowflake.ID      `gorm:"not null;uniqueIndex:ux_preference_student_term" json:"student_id"`
	AcademicTermID   snowflake.ID      `gorm:"not null;uniqueIndex:ux_preference_student_term" json:"academic_term_id"`
	TuitionType      TuitionType       `gorm:"type:varchar(16);not null" json:"tuition_type"`
	TransportRouteID *snowflake.ID     `json:"transport_route_id,omitempty"`
	TransportType    TransportType     `gorm:"type:varchar(16);not null" json:"transport_type"`
	IncludeFood      bool              `gorm:"not null" json:"include_food"`
	IncludeSports    bool              `gorm:"not null" json:"include_sports"`
	Notes            string            `gorm:"type:text" json:"notes"`
	PreviousValues   datatypes.JSONMap `json:"previous_values,omitempty"`
	UpdatedBy        *string           `gorm:"type:varchar(128)" json:"updated_by,omitempty"`
	Version          int64             `gorm:"not null" json:"version"`
	CreatedAt        time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time         `gorm:"not null" json:"updated_at"`
}

func (GuardianFeePreference) TableName() string { return "guardian_fee_preferences" }

// Snapshot returns the billable fields keyed by column name.
func (p GuardianFeePreference) Snapshot() map[string]any {
	var route any
	if p.TransportRouteID != nil {
		route = p.TransportRouteID.String()
	}
	return map[string]any{
		"tuition_type":       string(p.TuitionType),
		"transport_route_id": route,
		"transport_type":     string(p.TransportType),
		"include_food":       p.IncludeFood,
		"include_sports":     p.IncludeSports,
		"notes":              p.Notes,
	}
}

// Normalize clears orphaned transport fields: a direction without a route
// becomes none, and a route with direction none is dropped.
func (p *GuardianFeePreference) Normalize() {
	if p.TransportType == "" {
		p.TransportType = TransportNone
	}
	if p.TransportRouteID != nil && *p.TransportRouteID == 0 {
		p.TransportRouteID = nil
	}
	switch {
	case p.TransportType != TransportNone && p.TransportRouteID == nil:
		p.TransportType = TransportNone
	case p.TransportType == TransportNone && p.TransportRouteID != nil:
		p.TransportRouteID = nil
	}
}

type FieldChange struct {
	From any `json:"from"`
	To   any `json:"to"`
}

type FieldDiff map[string]FieldChange

// Diff lists the snapshot fields that differ between before and after.
func Diff(before, after GuardianFeePreference) FieldDiff {
	prev, next := before.Snapshot(), after.Snapshot()
	diff := FieldDiff{}
	for key, to := range next {
		if from := prev[key]; from != to {
			diff[key] = FieldChange{From: from, To: to}
		}
	}
	return diff
}

// PreferenceChange is one append-only history entry.
type PreferenceChange struct {
	ID           snowflake.ID                  `gorm:"primaryKey" json:"id"`
	SchoolID     snowflake.ID                  `gorm:"not null;index" json:"school_id"`
	PreferenceID snowflake.ID                  `gorm:"not null;index" json:"preference_id"`
	Version      int64                         `gorm:"not null" json:"version"`
	ChangedAt    time.Time                     `gorm:"not null" json:"changed_at"`
	ChangedBy    *string                       `gorm:"type:varchar(128)" json:"changed_by,omitempty"`
	Diff         datatypes.JSONType[FieldDiff] `json:"diff"`
}

func (PreferenceChange) TableName() string { return "preference_changes" }

func Models() []any {
	return []any{&GuardianFeePreference{}, &PreferenceChange{}}
}
