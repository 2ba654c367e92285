// Package notification tells guardians about issued invoices and recorded
// payments. Callers invoke it after their transaction commits and only log
// the returned error.
package notification

import (
	"context"
	"time"
)

type Notifier interface {
	InvoiceIssued(ctx context.Context, notice InvoiceNotice) error
	PaymentRecorded(ctx context.Context, notice PaymentNotice) error
}

type InvoiceNotice struct {
	SchoolName    string
	GuardianName  string
	GuardianEmail string
	InvoiceNumber string
	TermName      string
	PaymentPlan   string
	IssuedAt      time.Time
	DueDate       time.Time
	Lines         []NoticeLine

	Subtotal   string
	Discount   string
	Total      string
	BalanceDue string
}

type NoticeLine struct {
	StudentName string
	Category    string
	Amount      string
}

type PaymentNotice struct {
	SchoolName      string
	GuardianName    string
	GuardianEmail   string
	InvoiceNumber   string
	Amount          string
	PaymentMethod   string
	PaymentDate     time.Time
	ReferenceNumber string
	BalanceDue      string
	Status          string
}

type NoopNotifier struct{}

func (NoopNotifier) InvoiceIssued(context.Context, InvoiceNotice) error { return nil }

func (NoopNotifier) PaymentRecorded(context.Context, PaymentNotice) error { return nil }
