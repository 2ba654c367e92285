package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/schoolfee/pkg/db/pagination"
	"gorm.io/gorm"
)

type GenerateInvoiceRequest struct {
	GuardianID     snowflake.ID
	AcademicTermID snowflake.ID
	PaymentPlan    PaymentPlan
	// DueDate defaults to the fee policy's due days after issue.
	DueDate       *time.Time
	Notes         string
	IncludeExtras bool
}

type RegenerateInvoiceRequest struct {
	InvoiceID     snowflake.ID
	IncludeExtras bool
}

type UpsertLineItemRequest struct {
	InvoiceID    snowflake.ID
	StudentID    snowflake.ID
	FeeBreakdown FeeBreakdown
}

type UpdatePlanRequest struct {
	InvoiceID   snowflake.ID
	PaymentPlan PaymentPlan
	DueDate     *time.Time
}

type ListInvoiceRequest struct {
	pagination.Pagination
	Status         *Status
	AcademicTermID *snowflake.ID
	GuardianID     *snowflake.ID
}

type ListInvoiceResponse struct {
	pagination.PageInfo
	Invoices []GuardianInvoice `json:"invoices"`
}

type InvoiceDetails struct {
	Invoice   GuardianInvoice   `json:"invoice"`
	LineItems []InvoiceLineItem `json:"line_items"`
	Payments  []PaymentEntry    `json:"payments"`
}

// RefreshResult reports one overdue batch. LastID is the highest invoice id
// scanned, failures included, and is the cursor for the next batch.
type RefreshResult struct {
	Scanned int          `json:"scanned"`
	Updated int          `json:"updated"`
	Failed  int          `json:"failed"`
	LastID  snowflake.ID `json:"last_id"`
}

type Service interface {
	Generate(ctx context.Context, req GenerateInvoiceRequest) (InvoiceDetails, error)
	Regenerate(ctx context.Context, req RegenerateInvoiceRequest) (InvoiceDetails, error)

	// Recalculate re-derives totals and status under a row lock.
	Recalculate(ctx context.Context, invoiceID snowflake.ID) (GuardianInvoice, error)
	// RecalculateTx is Recalculate for callers already inside tx.
	RecalculateTx(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID) (GuardianInvoice, error)

	UpsertLineItem(ctx context.Context, req UpsertLineItemRequest) (InvoiceDetails, error)
	RemoveLineItem(ctx context.Context, invoiceID, studentID snowflake.ID) (InvoiceDetails, error)

	Get(ctx context.Context, invoiceID snowflake.ID) (GuardianInvoice, error)
	GetWithDetails(ctx context.Context, invoiceID snowflake.ID) (InvoiceDetails, error)
	List(ctx context.Context, req ListInvoiceRequest) (ListInvoiceResponse, error)
	UpdatePlan(ctx context.Context, req UpdatePlanRequest) (GuardianInvoice, error)

	// RefreshOverdue re-derives up to limit pending invoices whose due date
	// has passed and whose id is greater than after, across all schools.
	RefreshOverdue(ctx context.Context, now time.Time, limit int, after snowflake.ID) (RefreshResult, error)
	RenderPDF(ctx context.Context, invoiceID snowflake.ID) ([]byte, error)
}

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, schoolID, id snowflake.ID) (*GuardianInvoice, error)
	// LockByID loads the invoice with a row lock regardless of school.
	LockByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*GuardianInvoice, error)
	FindByGuardianTerm(ctx context.Context, db *gorm.DB, schoolID, guardianID, termID snowflake.ID) (*GuardianInvoice, error)
	LockSchool(ctx context.Context, db *gorm.DB, schoolID snowflake.ID) error
	NextSequence(ctx context.Context, db *gorm.DB, schoolID snowflake.ID) (int64, error)
	Insert(ctx context.Context, db *gorm.DB, invoice *GuardianInvoice) error
	UpdateTotals(ctx context.Context, db *gorm.DB, invoice *GuardianInvoice) error
	UpdatePlan(ctx context.Context, db *gorm.DB, invoice *GuardianInvoice) error

	ListLineItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]*InvoiceLineItem, error)
	FindLineItem(ctx context.Context, db *gorm.DB, invoiceID, studentID snowflake.ID) (*InvoiceLineItem, error)
	SaveLineItem(ctx context.Context, db *gorm.DB, item *InvoiceLineItem) error
	DeleteLineItem(ctx context.Context, db *gorm.DB, invoiceID, studentID snowflake.ID) (bool, error)
	DeleteLineItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) error

	ListPayments(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]PaymentEntry, error)
	ListOverdueCandidates(ctx context.Context, db *gorm.DB, now time.Time, after snowflake.ID, limit int) ([]snowflake.ID, error)
}

var (
	ErrInvalidSchool      = errors.New("invalid_school")
	ErrInvalidGuardian    = errors.New("invalid_guardian")
	ErrInvalidTerm        = errors.New("invalid_academic_term")
	ErrInvalidStudent     = errors.New("invalid_student")
	ErrInvalidPaymentPlan = errors.New("invalid_payment_plan")
	ErrInvalidDueDate     = errors.New("invalid_due_date")
	ErrInvalidStatus      = errors.New("invalid_status")
	ErrInvalidPageToken   = errors.New("invalid_page_token")
	ErrInvalidBreakdown   = errors.New("invalid_fee_breakdown")
	ErrNoStudents         = errors.New("guardian_has_no_students")
	ErrInvoiceNotFound    = errors.New("invoice_not_found")
	ErrInvoiceExists      = errors.New("invoice_exists")
	ErrInvoiceSettled     = errors.New("invoice_settled")
	ErrLineItemNotFound   = errors.New("line_item_not_found")
	ErrRendererMissing    = errors.New("renderer_not_configured")
)
