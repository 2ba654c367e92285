package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/schoolfee/internal/feecatalog/domain"
	prefdomain "github.com/smallbiznis/schoolfee/internal/preference/domain"
	"github.com/smallbiznis/schoolfee/pkg/money"
)

const (
	CategoryTuition   = "Tuition"
	CategoryTransport = "Transport"
	CategoryFood      = "Food"
	CategorySports    = "Sports"
)

const WarningMissingOptionalFee = "missing_optional_fee"

var ErrMissingCatalogEntry = errors.New("missing_catalog_entry")

// MissingCatalogEntryError reports a required rate that is not configured.
// Computation refuses to produce a total rather than bill zero.
type MissingCatalogEntryError struct {
	Kind           catalogdomain.Kind
	StudentID      snowflake.ID
	GradeID        snowflake.ID
	AcademicYearID snowflake.ID
	RouteID        snowflake.ID
}

func (e *MissingCatalogEntryError) Error() string {
	switch e.Kind {
	case catalogdomain.KindTransport:
		return fmt.Sprintf("missing_catalog_entry: no active transport route %s", e.RouteID)
	default:
		return fmt.Sprintf("missing_catalog_entry: no active %s rate for grade %s in academic year %s", e.Kind, e.GradeID, e.AcademicYearID)
	}
}

func (e *MissingCatalogEntryError) Unwrap() error {
	return ErrMissingCatalogEntry
}

// Warning flags an optional add-on that was selected but has no rate.
type Warning struct {
	Code string `json:"code"`
	Fee  string `json:"fee"`
}

type Line struct {
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

// Breakdown keeps charge categories in billing order.
type Breakdown []Line

func (b Breakdown) Map() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(b))
	for _, line := range b {
		out[line.Category] = money.Round(out[line.Category].Add(line.Amount))
	}
	return out
}

// add appends a line, folding it into an existing line of the same category
// so the breakdown never repeats a key.
func (b Breakdown) add(category string, amount decimal.Decimal) Breakdown {
	for i := range b {
		if strings.EqualFold(b[i].Category, category) {
			b[i].Amount = money.Round(b[i].Amount.Add(amount))
			return b
		}
	}
	return append(b, Line{Category: category, Amount: money.Round(amount)})
}

func (b Breakdown) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range b {
		total = total.Add(line.Amount)
	}
	return money.Round(total)
}

// MarshalJSON writes an object whose keys follow billing order.
func (b Breakdown) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, line := range b {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(line.Category)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(money.Format(line.Amount))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

type Inputs struct {
	StudentID      snowflake.ID
	GradeID        snowflake.ID
	AcademicYearID snowflake.ID
	Preference     prefdomain.GuardianFeePreference

	Tuition *catalogdomain.TuitionFee
	Route   *catalogdomain.TransportRoute
	Food    *catalogdomain.UniversalFee
	Sports  *catalogdomain.UniversalFee
	Extras  []catalogdomain.FeeAmount
}

type Result struct {
	StudentID snowflake.ID    `json:"student_id"`
	Breakdown Breakdown       `json:"fee_breakdown"`
	Total     decimal.Decimal `json:"total_amount"`
	Warnings  []Warning       `json:"warnings,omitempty"`
}

// Calculate prices one student's term from already resolved catalog rows.
func Calculate(in Inputs) (Result, error) {
	pref := in.Preference
	pref.Normalize()

	if in.Tuition == nil {
		return Result{}, &MissingCatalogEntryError{
			Kind:           catalogdomain.KindTuition,
			StudentID:      in.StudentID,
			GradeID:        in.GradeID,
			AcademicYearID: in.AcademicYearID,
		}
	}

	tuition := in.Tuition.AmountFullDay
	if pref.TuitionType == prefdomain.TuitionHalfDay {
		tuition = in.Tuition.AmountHalfDay
	}
	result := Result{
		StudentID: in.StudentID,
		Breakdown: Breakdown{{Category: CategoryTuition, Amount: money.Round(tuition)}},
	}

	if pref.TransportRouteID != nil && pref.TransportType != prefdomain.TransportNone {
		if in.Route == nil {
			return Result{}, &MissingCatalogEntryError{
				Kind:           catalogdomain.KindTransport,
				StudentID:      in.StudentID,
				AcademicYearID: in.AcademicYearID,
				RouteID:        *pref.TransportRouteID,
			}
		}
		amount := in.Route.AmountOneWay
		if pref.TransportType == prefdomain.TransportTwoWay {
			amount = in.Route.AmountTwoWay
		}
		result.Breakdown = result.Breakdown.add(CategoryTransport, amount)
	}

	addOptional := func(included bool, fee *catalogdomain.UniversalFee, category string, feeType catalogdomain.FeeType) {
		if !included {
			return
		}
		if fee == nil {
			result.Warnings = append(result.Warnings, Warning{Code: WarningMissingOptionalFee, Fee: string(feeType)})
			return
		}
		result.Breakdown = result.Breakdown.add(category, fee.Amount)
	}
	addOptional(pref.IncludeFood, in.Food, CategoryFood, catalogdomain.FeeTypeFood)
	addOptional(pref.IncludeSports, in.Sports, CategorySports, catalogdomain.FeeTypeSports)

	for _, extra := range in.Extras {
		result.Breakdown = result.Breakdown.add(strings.TrimSpace(extra.Label), extra.Amount)
	}

	result.Total = result.Breakdown.Total()
	return result, nil
}
