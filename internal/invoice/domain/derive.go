package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/schoolfee/pkg/money"
)

type Totals struct {
	Subtotal           decimal.Decimal `json:"subtotal_amount"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	DiscountAmount     decimal.Decimal `json:"discount_amount"`
	Total              decimal.Decimal `json:"total_amount"`
	AmountPaid         decimal.Decimal `json:"amount_paid"`
	BalanceDue         decimal.Decimal `json:"balance_due"`
	Status             Status          `json:"status"`
}

func (t Totals) Equal(o Totals) bool {
	return t.Status == o.Status &&
		t.Subtotal.Equal(o.Subtotal) &&
		t.DiscountPercentage.Equal(o.DiscountPercentage) &&
		t.DiscountAmount.Equal(o.DiscountAmount) &&
		t.Total.Equal(o.Total) &&
		t.AmountPaid.Equal(o.AmountPaid) &&
		t.BalanceDue.Equal(o.BalanceDue)
}

type DeriveInput struct {
	LineTotals []decimal.Decimal
	Payments   []decimal.Decimal
	Plan       PaymentPlan
	DueDate    time.Time
	Now        time.Time
	// FullPaymentDiscountPercent applies only when Plan is PlanFull.
	FullPaymentDiscountPercent decimal.Decimal
}

// Derive computes an invoice's totals and status. It is a pure function of
// its input, so repeated calls agree.
func Derive(in DeriveInput) Totals {
	subtotal := money.Sum(in.LineTotals...)

	pct := decimal.Zero
	if in.Plan == PlanFull {
		pct = in.FullPaymentDiscountPercent
	}
	discount := money.Percent(subtotal, pct)
	total := money.Round(subtotal.Sub(discount))
	paid := money.Sum(in.Payments...)
	balance := money.Round(total.Sub(paid))

	return Totals{
		Subtotal:           subtotal,
		DiscountPercentage: money.Round(pct),
		DiscountAmount:     discount,
		Total:              total,
		AmountPaid:         paid,
		BalanceDue:         balance,
		Status:             deriveStatus(paid, balance, in.DueDate, in.Now),
	}
}

// deriveStatus applies the precedence paid > partial > overdue > pending.
// An overpaid invoice (negative balance) counts as paid.
func deriveStatus(paid, balance decimal.Decimal, due, now time.Time) Status {
	switch {
	case balance.Sign() <= 0:
		return StatusPaid
	case paid.Sign() > 0:
		return StatusPartial
	case !due.IsZero() && due.Before(now):
		return StatusOverdue
	default:
		return StatusPending
	}
}
