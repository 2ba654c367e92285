package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	auditdomain "github.com/smallbiznis/schoolfee/internal/audit/domain"
	"github.com/smallbiznis/schoolfee/internal/auditcontext"
	"github.com/smallbiznis/schoolfee/internal/clock"
	invoicedomain "github.com/smallbiznis/schoolfee/internal/invoice/domain"
	"github.com/smallbiznis/schoolfee/internal/notification"
	"github.com/smallbiznis/schoolfee/internal/observability/metrics"
	"github.com/smallbiznis/schoolfee/internal/payment/domain"
	"github.com/smallbiznis/schoolfee/internal/providers/pdf"
	schooldomain "github.com/smallbiznis/schoolfee/internal/school/domain"
	"github.com/smallbiznis/schoolfee/internal/schoolcontext"
	"github.com/smallbiznis/schoolfee/pkg/db"
	"github.com/smallbiznis/schoolfee/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const txAttempts = 3

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Repo        domain.Repository
	InvoiceRepo invoicedomain.Repository
	InvoiceSvc  invoicedomain.Service
	AuditSvc    auditdomain.Service
	Directory   schooldomain.Directory
	Notifier    notification.Notifier `optional:"true"`
	PDF         pdf.Provider          `optional:"true"`
	Metrics     *metrics.Metrics      `optional:"true"`
	Clock       clock.Clock           `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        domain.Repository
	invoiceRepo invoicedomain.Repository
	invoiceSvc  invoicedomain.Service
	auditSvc    auditdomain.Service
	directory   schooldomain.Directory
	notifier    notification.Notifier
	pdf         pdf.Provider
	metrics     *metrics.Metrics
	clock       clock.Clock
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	notifier := p.Notifier
	if notifier == nil {
		notifier = notification.NoopNotifier{}
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payment.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		invoiceRepo: p.InvoiceRepo,
		invoiceSvc:  p.InvoiceSvc,
		auditSvc:    p.AuditSvc,
		directory:   p.Directory,
		notifier:    notifier,
		pdf:         p.PDF,
		metrics:     p.Metrics,
		clock:       clk,
	}
}

// Record appends a payment and re-derives the invoice in the same
// transaction. A reference already recorded against the invoice replays the
// stored payment without touching the ledger.
func (s *Service) Record(ctx context.Context, req domain.RecordPaymentRequest) (domain.RecordResult, error) {
	schoolID, err := s.schoolIDFromContext(ctx)
	if err != nil {
		return domain.RecordResult{}, err
	}
	if req.InvoiceID == 0 {
		return domain.RecordResult{}, domain.ErrInvalidInvoice
	}
	amount := money.Round(req.Amount)
	if !amount.IsPositive() {
		return domain.RecordResult{}, domain.ErrInvalidAmount
	}
	if !req.PaymentMethod.Valid() {
		return domain.RecordResult{}, domain.ErrInvalidMethod
	}
	now := s.clock.Now().UTC()
	paidAt := now
	if req.PaymentDate != nil {
		if req.PaymentDate.IsZero() || req.PaymentDate.After(now) {
			return domain.RecordResult{}, domain.ErrInvalidPaymentDate
		}
		paidAt = req.PaymentDate.UTC()
	}
	reference := strings.TrimSpace(req.ReferenceNumber)
	if len(reference) > 64 {
		return domain.RecordResult{}, domain.ErrInvalidReference
	}
	if reference == "" {
		reference = ulid.Make().String()
	}

	var result domain.RecordResult
	// Replays are detected by reference inside the transaction, so a retry
	// after a serialization failure cannot double-count.
	err = db.Transact(ctx, s.db, txAttempts, func(tx *gorm.DB) error {
		invoice, err := s.lockInvoice(ctx, tx, schoolID, req.InvoiceID)
		if err != nil {
			return err
		}

		existing, err := s.repo.FindByReference(ctx, tx, invoice.ID, reference)
		if err != nil {
			return err
		}
		if existing != nil {
			if !existing.SameAs(amount, req.PaymentMethod, req.PaymentDate) {
				return domain.ErrReferenceConflict
			}
			result = domain.RecordResult{Payment: *existing, Invoice: *invoice, Replayed: true}
			return nil
		}

		payment := domain.GuardianPayment{
			ID:              s.genID.Generate(),
			SchoolID:        schoolID,
			InvoiceID:       invoice.ID,
			Amount:          amount,
			PaymentDate:     paidAt,
			PaymentMethod:   req.PaymentMethod,
			ReferenceNumber: reference,
			RecordedBy:      auditcontext.ActorLabel(ctx),
			Notes:           strings.TrimSpace(req.Notes),
			CreatedAt:       now,
		}
		inserted, err := s.repo.Insert(ctx, tx, &payment)
		if err != nil {
			return err
		}
		if !inserted {
			stored, err := s.repo.FindByReference(ctx, tx, invoice.ID, reference)
			if err != nil {
				return err
			}
			if stored == nil {
				return domain.ErrInvalidReference
			}
			if !stored.SameAs(amount, req.PaymentMethod, req.PaymentDate) {
				return domain.ErrReferenceConflict
			}
			result = domain.RecordResult{Payment: *stored, Invoice: *invoice, Replayed: true}
			return nil
		}

		updated, err := s.invoiceSvc.RecalculateTx(ctx, tx, invoice.ID)
		if err != nil {
			return err
		}

		if err := s.auditSvc.RecordTx(ctx, tx, auditdomain.Target{SchoolID: schoolID, Type: "guardian_payment", ID: payment.ID.String()}, "payment.recorded", map[string]any{
			"invoice_id":       invoice.ID.String(),
			"amount":           money.Format(amount),
			"payment_method":   string(payment.PaymentMethod),
			"reference_number": reference,
			"status":           string(updated.Status),
			"balance_due":      money.Format(updated.BalanceDue),
		}); err != nil {
			return err
		}

		result = domain.RecordResult{Payment: payment, Invoice: updated}
		return nil
	})
	if err != nil {
		return domain.RecordResult{}, err
	}
	if result.Replayed {
		s.log.Info("payment replayed",
			zap.String("payment_id", result.Payment.ID.String()),
			zap.String("invoice_id", result.Invoice.ID.String()),
		)
		return result, nil
	}

	s.metrics.RecordPayment(ctx, string(result.Payment.PaymentMethod))
	s.log.Info("payment recorded",
		zap.String("school_id", schoolID.String()),
		zap.String("payment_id", result.Payment.ID.String()),
		zap.String("invoice_id", result.Invoice.ID.String()),
		zap.String("status", string(result.Invoice.Status)),
	)
	s.notifyRecorded(ctx, result)
	return result, nil
}

// Delete removes a payment recorded in error. The invoice is re-derived, so
// a paid invoice falls back to partial or pending.
func (s *Service) Delete(ctx context.Context, paymentID snowflake.ID) (invoicedomain.GuardianInvoice, error) {
	schoolID, err := s.schoolIDFromContext(ctx)
	if err != nil {
		return invoicedomain.GuardianInvoice{}, err
	}
	payment, err := s.repo.FindByID(ctx, s.db, schoolID, paymentID)
	if err != nil {
		return invoicedomain.GuardianInvoice{}, err
	}
	if payment == nil {
		return invoicedomain.GuardianInvoice{}, domain.ErrPaymentNotFound
	}

	var updated invoicedomain.GuardianInvoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.lockInvoice(ctx, tx, schoolID, payment.InvoiceID)
		if err != nil {
			return err
		}
		// Re-read under the invoice lock; a concurrent delete may have won.
		current, err := s.repo.FindByID(ctx, tx, schoolID, paymentID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrPaymentNotFound
		}
		if err := s.repo.Delete(ctx, tx, current.ID); err != nil {
			return err
		}
		updated, err = s.invoiceSvc.RecalculateTx(ctx, tx, invoice.ID)
		if err != nil {
			return err
		}

		return s.auditSvc.RecordTx(ctx, tx, auditdomain.Target{SchoolID: schoolID, Type: "guardian_payment", ID: current.ID.String()}, "payment.deleted", map[string]any{
			"invoice_id":       invoice.ID.String(),
			"amount":           money.Format(current.Amount),
			"reference_number": current.ReferenceNumber,
			"status":           string(updated.Status),
		})
	})
	if err != nil {
		return invoicedomain.GuardianInvoice{}, err
	}
	s.log.Info("payment deleted",
		zap.String("payment_id", paymentID.String()),
		zap.String("invoice_id", updated.ID.String()),
	)
	return updated, nil
}

func (s *Service) List(ctx context.Context, invoiceID snowflake.ID) ([]domain.GuardianPayment, error) {
	schoolID, err := s.schoolIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	invoice, err := s.invoiceRepo.FindByID(ctx, s.db, schoolID, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, domain.ErrInvoiceNotFound
	}
	items, err := s.repo.ListByInvoice(ctx, s.db, invoice.ID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.GuardianPayment{}
	}
	return items, nil
}

func (s *Service) Get(ctx context.Context, paymentID snowflake.ID) (domain.GuardianPayment, error) {
	schoolID, err := s.schoolIDFromContext(ctx)
	if err != nil {
		return domain.GuardianPayment{}, err
	}
	payment, err := s.repo.FindByID(ctx, s.db, schoolID, paymentID)
	if err != nil {
		return domain.GuardianPayment{}, err
	}
	if payment == nil {
		return domain.GuardianPayment{}, domain.ErrPaymentNotFound
	}
	return *payment, nil
}

func (s *Service) RenderReceipt(ctx context.Context, paymentID snowflake.ID) ([]byte, error) {
	if s.pdf == nil {
		return nil, domain.ErrRendererMissing
	}
	payment, err := s.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	invoice, err := s.invoiceSvc.Get(ctx, payment.InvoiceID)
	if err != nil {
		return nil, err
	}
	school, err := s.directory.GetSchool(ctx)
	if err != nil {
		return nil, err
	}
	guardian, err := s.directory.GetGuardian(ctx, invoice.GuardianID)
	if err != nil {
		return nil, err
	}

	out, err := s.pdf.RenderReceipt(ctx, pdf.ReceiptData{
		SchoolName:      school.Name,
		InvoiceNumber:   invoice.InvoiceNumber,
		ReferenceNumber: payment.ReferenceNumber,
		GuardianName:    guardian.Name,
		DatePaid:        payment.PaymentDate.Format("2 Jan 2006"),
		PaymentMethod:   methodLabel(payment.PaymentMethod),
		Amount:          money.Format(payment.Amount),
		BalanceAfter:    money.Format(invoice.BalanceDue),
	})
	if err != nil {
		s.log.Error("render receipt", zap.String("payment_id", payment.ID.String()), zap.Error(err))
		return nil, err
	}
	return out, nil
}

func (s *Service) notifyRecorded(ctx context.Context, result domain.RecordResult) {
	school, err := s.directory.GetSchool(ctx)
	if err != nil {
		s.log.Warn("payment notification skipped", zap.Error(err))
		return
	}
	guardian, err := s.directory.GetGuardian(ctx, result.Invoice.GuardianID)
	if err != nil {
		s.log.Warn("payment notification skipped", zap.Error(err))
		return
	}
	err = s.notifier.PaymentRecorded(ctx, notification.PaymentNotice{
		SchoolName:      school.Name,
		GuardianName:    guardian.Name,
		GuardianEmail:   guardian.Email,
		InvoiceNumber:   result.Invoice.InvoiceNumber,
		Amount:          money.Format(result.Payment.Amount),
		PaymentMethod:   methodLabel(result.Payment.PaymentMethod),
		PaymentDate:     result.Payment.PaymentDate,
		ReferenceNumber: result.Payment.ReferenceNumber,
		BalanceDue:      money.Format(result.Invoice.BalanceDue),
		Status:          string(result.Invoice.Status),
	})
	if err != nil {
		s.metrics.RecordNotificationFailure(ctx, "payment_recorded")
		s.log.Warn("payment notification failed",
			zap.String("payment_id", result.Payment.ID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) lockInvoice(ctx context.Context, tx *gorm.DB, schoolID, invoiceID snowflake.ID) (*invoicedomain.GuardianInvoice, error) {
	invoice, err := s.invoiceRepo.LockByID(ctx, tx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil || invoice.SchoolID != schoolID {
		return nil, domain.ErrInvoiceNotFound
	}
	return invoice, nil
}

func (s *Service) schoolIDFromContext(ctx context.Context) (snowflake.ID, error) {
	schoolID, ok := schoolcontext.SchoolIDFromContext(ctx)
	if !ok {
		return 0, domain.ErrInvalidSchool
	}
	return schoolID, nil
}

func methodLabel(m domain.Method) string {
	switch m {
	case domain.MethodBankTransfer:
		return "Bank transfer"
	case domain.MethodMobileMoney:
		return "Mobile money"
	case domain.MethodCheque:
		return "Cheque"
	case domain.MethodCard:
		return "Card"
	default:
		return "Cash"
	}
}
