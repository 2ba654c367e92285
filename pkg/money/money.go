// Package money holds the fixed-point helpers used for fee amounts.
// All currency values are decimal.Decimal rounded to two places.
package money

import (
	"github.com/shopspring/decimal"
)

const Places int32 = 2

var (
	Zero    = decimal.Zero
	hundred = decimal.NewFromInt(100)
)

// Round rounds half away from zero to two decimal places.
func Round(v decimal.Decimal) decimal.Decimal {
	return v.Round(Places)
}

// Sum adds the values and rounds the result.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return Round(total)
}

// Percent returns round(amount * pct / 100, 2).
func Percent(amount, pct decimal.Decimal) decimal.Decimal {
	if pct.IsZero() {
		return decimal.Zero
	}
	return Round(amount.Mul(pct).Div(hundred))
}

// Parse reads a decimal string and rounds it. Empty input is zero.
func Parse(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, err
	}
	return Round(v), nil
}

func Format(v decimal.Decimal) string {
	return Round(v).StringFixed(Places)
}
