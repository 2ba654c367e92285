package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type CreateTuitionFeeRequest struct {
	GradeID        snowflake.ID
	AcademicYearID snowflake.ID
	AmountFullDay  decimal.Decimal
	AmountHalfDay  decimal.Decimal
}

type CreateTransportRouteRequest struct {
	AcademicYearID snowflake.ID
	Name           string
	AmountOneWay   decimal.Decimal
	AmountTwoWay   decimal.Decimal
}

type CreateUniversalFeeRequest struct {
	AcademicYearID snowflake.ID
	FeeType        FeeType
	Amount         decimal.Decimal
}

type CreateFeeAmountRequest struct {
	AcademicYearID snowflake.ID
	Label          string
	GradeRange     string
	Amount         decimal.Decimal
}

// ReviseRequest changes the amounts of an existing entry. Catalog rows are
// never edited in place: the current row is deactivated and a new active row
// carrying the revised amounts is returned. Nil fields keep their value.
type ReviseRequest struct {
	ID            snowflake.ID
	Amount        *decimal.Decimal
	AmountFullDay *decimal.Decimal
	AmountHalfDay *decimal.Decimal
	AmountOneWay  *decimal.Decimal
	AmountTwoWay  *decimal.Decimal
	Name          *string
	Label         *string
}

type ListRequest struct {
	AcademicYearID  snowflake.ID
	IncludeInactive bool
}

type Service interface {
	CreateTuitionFee(ctx context.Context, req CreateTuitionFeeRequest) (TuitionFee, error)
	CreateTransportRoute(ctx context.Context, req CreateTransportRouteRequest) (TransportRoute, error)
	CreateUniversalFee(ctx context.Context, req CreateUniversalFeeRequest) (UniversalFee, error)
	CreateFeeAmount(ctx context.Context, req CreateFeeAmountRequest) (FeeAmount, error)

	ReviseTuitionFee(ctx context.Context, req ReviseRequest) (TuitionFee, error)
	ReviseTransportRoute(ctx context.Context, req ReviseRequest) (TransportRoute, error)
	ReviseUniversalFee(ctx context.Context, req ReviseRequest) (UniversalFee, error)
	ReviseFeeAmount(ctx context.Context, req ReviseRequest) (FeeAmount, error)

	ListTuitionFees(ctx context.Context, req ListRequest) ([]TuitionFee, error)
	ListTransportRoutes(ctx context.Context, req ListRequest) ([]TransportRoute, error)
	ListUniversalFees(ctx context.Context, req ListRequest) ([]UniversalFee, error)
	ListFeeAmounts(ctx context.Context, req ListRequest) ([]FeeAmount, error)

	Deactivate(ctx context.Context, kind Kind, id snowflake.ID) error

	// ResolveTuition returns the newest active rate, or nil when none exists.
	ResolveTuition(ctx context.Context, gradeID, academicYearID snowflake.ID) (*TuitionFee, error)
	// GetRoute returns the newest active version of the route routeID
	// belongs to, or nil when the route was deactivated or never existed.
	GetRoute(ctx context.Context, routeID snowflake.ID) (*TransportRoute, error)
	ResolveUniversal(ctx context.Context, academicYearID snowflake.ID, feeType FeeType) (*UniversalFee, error)
	FeeAmountsForGrade(ctx context.Context, academicYearID snowflake.ID, gradeLabel string) ([]FeeAmount, error)
}

var (
	ErrInvalidSchool       = errors.New("invalid_school")
	ErrInvalidAcademicYear = errors.New("invalid_academic_year")
	ErrInvalidGrade        = errors.New("invalid_grade")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidFeeType      = errors.New("invalid_fee_type")
	ErrInvalidGradeRange   = errors.New("invalid_grade_range")
	ErrReservedLabel       = errors.New("reserved_fee_label")
	ErrDuplicateLabel      = errors.New("duplicate_fee_label")
	ErrInvalidKind         = errors.New("invalid_catalog_kind")
	ErrNotFound            = errors.New("catalog_entry_not_found")
	ErrInactive            = errors.New("catalog_entry_inactive")
)
