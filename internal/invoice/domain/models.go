// Package domain holds the guardian invoice models and the pure totals
// derivation shared by every code path that mutates an invoice.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusPartial Status = "partial"
	StatusPaid    Status = "paid"
	StatusOverdue Status = "overdue"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPartial, StatusPaid, StatusOverdue:
		return true
	default:
		return false
	}
}

type PaymentPlan string

const (
	PlanFull        PaymentPlan = "full"
	PlanInstallment PaymentPlan = "installment"
	PlanTermly      PaymentPlan = "termly"
)

func (p PaymentPlan) Valid() bool {
	switch p {
	case PlanFull, PlanInstallment, PlanTermly:
		return true
	default:
		return false
	}
}

// GuardianInvoice bills one guardian for one term. Every amount and the
// status are derived from its line items and payments.
type GuardianInvoice struct {
	ID                 snowflake.ID    `gorm:"primaryKey" json:"id"`
	SchoolID           snowflake.ID    `gorm:"not null;index;uniqueIndex:ux_invoice_sequence" json:"school_id"`
	GuardianID         snowflake.ID    `gorm:"not null;uniqueIndex:ux_invoice_guardian_term" json:"guardian_id"`
	AcademicTermID     snowflake.ID    `gorm:"not null;uniqueIndex:ux_invoice_guardian_term;index" json:"academic_term_id"`
	Sequence           int64           `gorm:"not null;uniqueIndex:ux_invoice_sequence" json:"-"`
	InvoiceNumber      string          `gorm:"type:varchar(64);not null" json:"invoice_number"`
	SubtotalAmount     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"subtotal_amount"`
	DiscountPercentage decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"discount_percentage"`
	DiscountAmount     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"discount_amount"`
	TotalAmount        decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total_amount"`
	AmountPaid         decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount_paid"`
	BalanceDue         decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"balance_due"`
	Status             Status          `gorm:"type:varchar(16);not null;index" json:"status"`
	PaymentPlan        PaymentPlan     `gorm:"type:varchar(16);not null" json:"payment_plan"`
	DueDate            time.Time       `gorm:"not null;index" json:"due_date"`
	IssuedAt           time.Time       `gorm:"not null" json:"issued_at"`
	Version            int64           `gorm:"not null" json:"version"`
	Notes              string          `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt          time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"not null" json:"updated_at"`
}

func (GuardianInvoice) TableName() string { return "guardian_invoices" }

// Totals returns the derived columns currently stored on the invoice.
func (i GuardianInvoice) Totals() Totals {
	return Totals{
		Subtotal:           i.SubtotalAmount,
		DiscountPercentage: i.DiscountPercentage,
		DiscountAmount:     i.DiscountAmount,
		Total:              i.TotalAmount,
		AmountPaid:         i.AmountPaid,
		BalanceDue:         i.BalanceDue,
		Status:             i.Status,
	}
}

func (i *GuardianInvoice) ApplyTotals(t Totals) {
	i.SubtotalAmount = t.Subtotal
	i.DiscountPercentage = t.DiscountPercentage
	i.DiscountAmount = t.DiscountAmount
	i.TotalAmount = t.Total
	i.AmountPaid = t.AmountPaid
	i.BalanceDue = t.BalanceDue
	i.Status = t.Status
}

// InvoiceLineItem is one student's charges on a guardian invoice.
type InvoiceLineItem struct {
	ID           snowflake.ID    `gorm:"primaryKey" json:"id"`
	SchoolID     snowflake.ID    `gorm:"not null;index" json:"school_id"`
	InvoiceID    snowflake.ID    `gorm:"not null;uniqueIndex:ux_line_item_invoice_student" json:"invoice_id"`
	StudentID    snowflake.ID    `gorm:"not null;uniqueIndex:ux_line_item_invoice_student;index" json:"student_id"`
	FeeBreakdown FeeBreakdown    `json:"fee_breakdown"`
	TotalAmount  decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total_amount"`
	CreatedAt    time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"not null" json:"updated_at"`
}

func (InvoiceLineItem) TableName() string { return "invoice_line_items" }

// BeforeSave recomputes TotalAmount so a caller-supplied total never lands.
func (l *InvoiceLineItem) BeforeSave(*gorm.DB) error {
	l.TotalAmount = l.FeeBreakdown.Total()
	return nil
}

// PaymentEntry is the ledger row as the invoice reads it.
type PaymentEntry struct {
	ID              snowflake.ID    `json:"id"`
	Amount          decimal.Decimal `json:"amount"`
	PaymentDate     time.Time       `json:"payment_date"`
	PaymentMethod   string          `json:"payment_method"`
	ReferenceNumber string          `json:"reference_number"`
	CreatedAt       time.Time       `json:"created_at"`
}

func Models() []any {
	return []any{&GuardianInvoice{}, &InvoiceLineItem{}}
}
