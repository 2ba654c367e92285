package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func amounts(values ...string) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(values))
	for _, v := range values {
		out = append(out, decimal.RequireFromString(v))
	}
	return out
}

func TestDeriveStatusPrecedence(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.AddDate(0, 0, -1)
	future := now.AddDate(0, 0, 10)

	cases := []struct {
		name     string
		lines    []string
		payments []string
		due      time.Time
		want     Status
		balance  string
	}{
		{name: "unpaid before due", lines: []string{"55000"}, due: future, want: StatusPending, balance: "55000"},
		{name: "unpaid after due", lines: []string{"55000"}, due: past, want: StatusOverdue, balance: "55000"},
		{name: "partial beats overdue", lines: []string{"55000"}, payments: []string{"10000"}, due: past, want: StatusPartial, balance: "45000"},
		{name: "partial before due", lines: []string{"55000"}, payments: []string{"10000"}, due: future, want: StatusPartial, balance: "45000"},
		{name: "exactly paid", lines: []string{"30000", "25000"}, payments: []string{"50000", "5000"}, due: past, want: StatusPaid, balance: "0"},
		{name: "overpaid", lines: []string{"55000"}, payments: []string{"56000"}, due: future, want: StatusPaid, balance: "-1000"},
		{name: "empty invoice", due: future, want: StatusPaid, balance: "0"},
		{name: "due now is not overdue", lines: []string{"100"}, due: now, want: StatusPending, balance: "100"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Derive(DeriveInput{
				LineTotals: amounts(tc.lines...),
				Payments:   amounts(tc.payments...),
				Plan:       PlanTermly,
				DueDate:    tc.due,
				Now:        now,
			})
			assert.Equal(t, tc.want, got.Status)
			assert.True(t, got.BalanceDue.Equal(decimal.RequireFromString(tc.balance)), "balance %s", got.BalanceDue)
			assert.True(t, got.BalanceDue.Equal(got.Total.Sub(got.AmountPaid)))
		})
	}
}

func TestDeriveDiscountOnlyForFullPlan(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	five := decimal.NewFromInt(5)

	cases := []struct {
		plan     PaymentPlan
		subtotal string
		discount string
		total    string
	}{
		{plan: PlanFull, subtotal: "55000", discount: "2750", total: "52250"},
		{plan: PlanFull, subtotal: "333.33", discount: "16.67", total: "316.66"},
		{plan: PlanInstallment, subtotal: "55000", discount: "0", total: "55000"},
		{plan: PlanTermly, subtotal: "55000", discount: "0", total: "55000"},
	}
	for _, tc := range cases {
		t.Run(string(tc.plan)+" "+tc.subtotal, func(t *testing.T) {
			got := Derive(DeriveInput{
				LineTotals:                 amounts(tc.subtotal),
				Plan:                       tc.plan,
				DueDate:                    now.AddDate(0, 1, 0),
				Now:                        now,
				FullPaymentDiscountPercent: five,
			})
			assert.True(t, got.Subtotal.Equal(decimal.RequireFromString(tc.subtotal)))
			assert.True(t, got.DiscountAmount.Equal(decimal.RequireFromString(tc.discount)), "discount %s", got.DiscountAmount)
			assert.True(t, got.Total.Equal(decimal.RequireFromString(tc.total)), "total %s", got.Total)
			assert.True(t, got.Total.Equal(got.Subtotal.Sub(got.DiscountAmount)))
			if tc.plan != PlanFull {
				assert.True(t, got.DiscountPercentage.IsZero())
			}
		})
	}
}

func TestDeriveIsDeterministic(t *testing.T) {
	in := DeriveInput{
		LineTotals:                 amounts("35000", "12000.50"),
		Payments:                   amounts("1000.25"),
		Plan:                       PlanFull,
		DueDate:                    time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		Now:                        time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		FullPaymentDiscountPercent: decimal.NewFromInt(5),
	}
	assert.True(t, Derive(in).Equal(Derive(in)))
}
