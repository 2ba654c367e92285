package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type FeeType string

const (
	FeeTypeFood       FeeType = "food"
	FeeTypeSports     FeeType = "sports"
	FeeTypeLibrary    FeeType = "library"
	FeeTypeTechnology FeeType = "technology"
)

func (t FeeType) Valid() bool {
	switch t {
	case FeeTypeFood, FeeTypeSports, FeeTypeLibrary, FeeTypeTechnology:
		return true
	default:
		return false
	}
}

// Kind names a catalog table.
type Kind string

const (
	KindTuition   Kind = "tuition"
	KindTransport Kind = "transport"
	KindUniversal Kind = "universal"
	KindFeeAmount Kind = "fee_amount"
)

// TuitionFee is the tuition rate for one grade in one academic year.
type TuitionFee struct {
	ID             snowflake.ID    `gorm:"primaryKey" json:"id"`
	SchoolID       snowflake.ID    `gorm:"not null;index:ix_tuition_lookup" json:"school_id"`
	GradeID        snowflake.ID    `gorm:"not null;index:ix_tuition_lookup" json:"grade_id"`
	AcademicYearID snowflake.ID    `gorm:"not null;index:ix_tuition_lookup" json:"academic_year_id"`
	AmountFullDay  decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount_full_day"`
	AmountHalfDay  decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount_half_day"`
	IsActive       bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"not null" json:"updated_at"`
}

// TransportRoute is one priced version of a route. Revisions share RouteKey,
// the ID of the first version, so preferences pointing at any version
// resolve to the newest active one.
type TransportRoute struct {
	ID             snowflake.ID    `gorm:"primaryKey" json:"id"`
	SchoolID       snowflake.ID    `gorm:"not null;index" json:"school_id"`
	RouteKey       snowflake.ID    `gorm:"not null;index" json:"route_key"`
	AcademicYearID snowflake.ID    `gorm:"not null;index" json:"academic_year_id"`
	Name           string          `gorm:"type:varchar(128);not null" json:"name"`
	AmountOneWay   decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount_one_way"`
	AmountTwoWay   decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount_two_way"`
	IsActive       bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"not null" json:"updated_at"`
}

// Key returns the lineage shared by every revision of the route.
func (r TransportRoute) Key() snowflake.ID {
	if r.RouteKey != 0 {
		return r.RouteKey
	}
	return r.ID
}

// UniversalFee is a flat per-student charge such as food or sports.
type UniversalFee struct {
	ID             snowflake.ID    `gorm:"primaryKey" json:"id"`
	SchoolID       snowflake.ID    `gorm:"not null;index:ix_universal_lookup" json:"school_id"`
	AcademicYearID snowflake.ID    `gorm:"not null;index:ix_universal_lookup" json:"academic_year_id"`
	FeeType        FeeType         `gorm:"type:varchar(32);not null;index:ix_universal_lookup" json:"fee_type"`
	Amount         decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	IsActive       bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"not null" json:"updated_at"`
}

// FeeAmount is an ad-hoc charge applied to the grades inside GradeRange
// ("PP1-PP2", "1-3", "5").
type FeeAmount struct {
	ID             snowflake.ID    `gorm:"primaryKey" json:"id"`
	SchoolID       snowflake.ID    `gorm:"not null;index" json:"school_id"`
	AcademicYearID snowflake.ID    `gorm:"not null;index" json:"academic_year_id"`
	Label          string          `gorm:"type:varchar(128);not null" json:"label"`
	GradeRange     string          `gorm:"type:varchar(32);not null" json:"grade_range"`
	Amount         decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	IsActive       bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"not null" json:"updated_at"`
}

// reservedLabels are the breakdown categories priced from the other tables.
var reservedLabels = []string{"Tuition", "Transport", "Food", "Sports"}

// ReservedLabel reports whether label would collide with a standard charge
// category on a line item.
func ReservedLabel(label string) bool {
	label = strings.TrimSpace(label)
	for _, reserved := range reservedLabels {
		if strings.EqualFold(label, reserved) {
			return true
		}
	}
	return false
}

func Models() []any {
	return []any{&TuitionFee{}, &TransportRoute{}, &UniversalFee{}, &FeeAmount{}}
}
