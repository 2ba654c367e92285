package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/schoolfee/internal/invoice/domain"
	"gorm.io/gorm"
)

type RecordPaymentRequest struct {
	InvoiceID snowflake.ID
	Amount    decimal.Decimal
	// PaymentDate defaults to now.
	PaymentDate   *time.Time
	PaymentMethod Method
	// ReferenceNumber defaults to a generated ULID. Recording the same
	// payment twice against one invoice returns the first one; a different
	// payment under a used reference fails with ErrReferenceConflict.
	ReferenceNumber string
	Notes           string
}

type RecordResult struct {
	Payment  GuardianPayment               `json:"payment"`
	Invoice  invoicedomain.GuardianInvoice `json:"invoice"`
	Replayed bool                          `json:"replayed"`
}

type Service interface {
	Record(ctx context.Context, req RecordPaymentRequest) (RecordResult, error)
	// Delete removes the payment and returns the re-derived invoice.
	Delete(ctx context.Context, paymentID snowflake.ID) (invoicedomain.GuardianInvoice, error)
	List(ctx context.Context, invoiceID snowflake.ID) ([]GuardianPayment, error)
	Get(ctx context.Context, paymentID snowflake.ID) (GuardianPayment, error)
	RenderReceipt(ctx context.Context, paymentID snowflake.ID) ([]byte, error)
}

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, schoolID, id snowflake.ID) (*GuardianPayment, error)
	FindByReference(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, reference string) (*GuardianPayment, error)
	// Insert reports false when the (invoice, reference) pair already exists.
	Insert(ctx context.Context, db *gorm.DB, payment *GuardianPayment) (bool, error)
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	ListByInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]GuardianPayment, error)
}

var (
	ErrInvalidSchool      = errors.New("invalid_school")
	ErrInvalidInvoice     = errors.New("invalid_invoice")
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrInvalidMethod      = errors.New("invalid_payment_method")
	ErrInvalidPaymentDate = errors.New("invalid_payment_date")
	ErrInvalidReference   = errors.New("invalid_reference_number")
	ErrReferenceConflict  = errors.New("payment_reference_conflict")
	ErrInvoiceNotFound    = errors.New("invoice_not_found")
	ErrPaymentNotFound    = errors.New("payment_not_found")
	ErrRendererMissing    = errors.New("renderer_not_configured")
)
