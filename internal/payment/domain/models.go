// Package domain holds the guardian payment ledger. Payments never carry
// their own balance; the owning invoice is re-derived on every change.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Method string

const (
	MethodCash         Method = "cash"
	MethodBankTransfer Method = "bank_transfer"
	MethodMobileMoney  Method = "mobile_money"
	MethodCheque       Method = "cheque"
	MethodCard         Method = "card"
)

func (m Method) Valid() bool {
	switch m {
	case MethodCash, MethodBankTransfer, MethodMobileMoney, MethodCheque, MethodCard:
		return true
	default:
		return false
	}
}

type GuardianPayment struct {
	ID              snowflake.ID    `gorm:"primaryKey" json:"id"`
	SchoolID        snowflake.ID    `gorm:"not null;index" json:"school_id"`
	InvoiceID       snowflake.ID    `gorm:"not null;index;uniqueIndex:ux_payment_reference" json:"invoice_id"`
	Amount          decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	PaymentDate     time.Time       `gorm:"not null" json:"payment_date"`
	PaymentMethod   Method          `gorm:"type:varchar(16);not null" json:"payment_method"`
	ReferenceNumber string          `gorm:"type:varchar(64);not null;uniqueIndex:ux_payment_reference" json:"reference_number"`
	RecordedBy      string          `gorm:"type:varchar(160)" json:"recorded_by,omitempty"`
	Notes           string          `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt       time.Time       `gorm:"not null" json:"created_at"`
}

func (GuardianPayment) TableName() string { return "guardian_payments" }

// SameAs reports whether an incoming payment under the same reference
// describes this stored one. A nil date matches any stored date; dates are
// compared by calendar day.
func (p GuardianPayment) SameAs(amount decimal.Decimal, method Method, date *time.Time) bool {
	if !p.Amount.Equal(amount) || p.PaymentMethod != method {
		return false
	}
	if date == nil {
		return true
	}
	const day = "2006-01-02"
	return p.PaymentDate.UTC().Format(day) == date.UTC().Format(day)
}

func Models() []any {
	return []any{&GuardianPayment{}}
}
