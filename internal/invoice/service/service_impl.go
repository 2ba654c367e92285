package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/schoolfee/internal/audit/domain"
	"github.com/smallbiznis/schoolfee/internal/clock"
	"github.com/smallbiznis/schoolfee/internal/config"
	computedomain "github.com/smallbiznis/schoolfee/internal/feecompute/domain"
	"github.com/smallbiznis/schoolfee/internal/invoice/domain"
	"github.com/smallbiznis/schoolfee/internal/invoice/format"
	"github.com/smallbiznis/schoolfee/internal/notification"
	"github.com/smallbiznis/schoolfee/internal/observability/metrics"
	"github.com/smallbiznis/schoolfee/internal/providers/pdf"
	schooldomain "github.com/smallbiznis/schoolfee/internal/school/domain"
	"github.com/smallbiznis/schoolfee/internal/schoolcontext"
	"github.com/smallbiznis/schoolfee/pkg/db"
	"github.com/smallbiznis/schoolfee/pkg/db/option"
	"github.com/smallbiznis/schoolfee/pkg/db/pagination"
	"github.com/smallbiznis/schoolfee/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultPageSize = 50

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Repo      domain.Repository
	AuditSvc  auditdomain.Service
	Directory schooldomain.Directory
	Compute   computedomain.Service
	Policy    *config.FeePolicyHolder
	Notifier  notification.Notifier `optional:"true"`
	PDF       pdf.Provider          `optional:"true"`
	Metrics   *metrics.Metrics      `optional:"true"`
	Clock     clock.Clock           `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	repo      domain.Repository
	store     repository.Repository[domain.GuardianInvoice]
	auditSvc  auditdomain.Service
	directory schooldomain.Directory
	compute   computedomain.Service
	policy    *config.FeePolicyHolder
	notifier  notification.Notifier
	pdf       pdf.Provider
	metrics   *metrics.Metrics
	clock     clock.Clock
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
		db:        p.DB,
		log:       p.Log.Named("invoice.service"),
		genID:     p.GenID,
		repo:      p.Repo,
		store:     repository.ProvideStore[domain.GuardianInvoice](p.DB),
		auditSvc:  p.AuditSvc,
		directory: p.Directory,
		compute:   p.Compute,
		policy:    p.Policy,
		notifier:  notifier,
		pdf:       p.PDF,
		metrics:   p.Metrics,
		clock:     clk,
	}
}

// Generate bills a guardian for a term: every linked student is priced,
// then the invoice and its line items are written in one transaction.
func (s *Service) Generate(ctx context.Context, req domain.GenerateInvoiceRequest) (domain.InvoiceDetails, error) {
	schoolID, err := s.schoolIDFromContext(ctx)
	if err != nil {
		return domain.InvoiceDetails{}, err
	}
	if req.GuardianID == 0 {
		return domain.InvoiceDetails{}, domain.ErrInvalidGuardian
	}
	if req.AcademicTermID == 0 {
		return domain.InvoiceDetails{}, domain.ErrInvalidTerm
	}
	plan := req.PaymentPlan
	if plan == "" {
		plan = domain.PlanFull
	}
	if !plan.Valid() {
		return domain.InvoiceDetails{}, domain.ErrInvalidPaymentPlan
	}

	school, err := s.directory.GetSchool(ctx)
	if err != nil {
		return domain.InvoiceDetails{}, mapDirectoryErr(err)
	}
	term, err := s.directory.GetTerm(ctx, req.AcademicTermID)
	if err != nil {
		return domain.InvoiceDetails{}, mapDirectoryErr(err)
	}
	guardian, err := s.directory.GetGuardian(ctx, req.GuardianID)
	if err != nil {
		return domain.InvoiceDetails{}, mapDirectoryErr(err)
	}

	existing, err := s.repo.FindByGuardianTerm(ctx, s.db, schoolID, guardian.ID, term.ID)
	if err != nil {
		return domain.InvoiceDetails{}, err
	}
	if existing != nil {
		return domain.InvoiceDetails{}, domain.ErrInvoiceExists
	}

	results, err := s.priceStudents(ctx, guardian.ID, term.ID, req.IncludeExtras)
	if err != nil {
		return domain.InvoiceDetails{}, err
	}

	policy := s.policy.Get()
	now := s.clock.Now()
	dueDate := now.AddDate(0, 0, policy.DefaultDueDays)
	if req.DueDate != nil {
		dueDate = req.DueDate.UTC()
	}
	if dueDate.Before(startOfDay(now)) {
		return domain.InvoiceDetails{}, domain.ErrInvalidDueDate
	}

	invoice := domain.GuardianInvoice{
		ID:             s.genID.Generate(),
		SchoolID:       schoolID,
		GuardianID:     guardian.ID,
		AcademicTermID: term.ID,
		PaymentPlan:    plan,
		DueDate:        dueDate,
		IssuedAt:       now,
		Notes:          strings.TrimSpace(req.Notes),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	lines := make([]domain.InvoiceLineItem, 0, len(results))
	for _, result := range results {
		lines = append(lines, domain.InvoiceLineItem{
			ID:           s.genID.Generate(),
			SchoolID:     schoolID,
			InvoiceID:    invoice.ID,
			StudentID:    result.StudentID,
			FeeBreakdown: toFeeBreakdown(result.Breakdown),
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	invoice.ApplyTotals(domain.Derive(domain.DeriveInput{
		LineTotals:                 lo.Map(lines, func(l domain.InvoiceLineItem, _ int) decimal.Decimal { return l.FeeBreakdown.Total() }),
		Plan:                       plan,
		DueDate:                    dueDate,
		Now:                        now,
		FullPaymentDiscountPercent: policy.FullPaymentDiscountPercent,
	}))
	invoice.Version = 1

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.LockSchool(ctx, tx, schoolID); err != nil {
			return err
		}
		dup, err := s.repo.FindByGuardianTerm(ctx, tx, schoolID, guardian.ID, term.ID)
		if err != nil {
			return err
		}
		if dup != nil {
			return domain.ErrInvoiceExists
		}

		seq, err := s.repo.NextSequence(ctx, tx, schoolID)
		if err != nil {
			return err
		}
		number, err := format.FormatInvoiceNumber(policy.InvoiceNumberTemplate, school.Code, now, seq)
		if err != nil {
			return err
		}
		invoice.Sequence = seq
		invoice.InvoiceNumber = number

		if err := s.repo.Insert(ctx, tx, &invoice); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrInvoiceExists
			}
			return err
		}
		for i := range lines {
			if err := s.repo.SaveLineItem(ctx, tx, &lines[i]); err != nil {
				return err
			}
		}

		return s.auditSvc.RecordTx(ctx, tx, auditdomain.Target{SchoolID: schoolID, Type: "invoice", ID: invoice.ID.String()}, "invoice.generated", map[string]any{
			"invoice_number":   invoice.InvoiceNumber,
			"guardian_id":      guardian.ID.String(),
			"academic_term_id": term.ID.String(),
			"payment_plan":     string(plan),
			"students":         len(lines),
			"total_amount":     invoice.TotalAmount.StringFixed(2),
		})
	})
	if err != nil {
		return domain.InvoiceDetails{}, err
	}

	s.metrics.RecordInvoiceGenerated(ctx, string(plan))
	s.log.Info("invoice generated",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.String("school_id", schoolID.String()),
		zap.Int("students", len(lines)),
	)

	details := domain.InvoiceDetails{Invoice: invoice, LineItems: lines, Payments: []domain.PaymentEntry{}}
	s.notifyIssued(ctx, school, guardian, term, details)
	return details, nil
}

// Regenerate reprices every linked student and replaces the line items.
// Payments are kept; a settled invoice is left alone.
func (s *Service) Regenerate(ctx context.Context, req domain.RegenerateInvoiceRequest) (domain.InvoiceDetails, error) {
	schoolID, err := s.schoolIDFromContext(ctx)
	if err != nil {
		return domain.InvoiceDetails{}, err
	}
	current, err := s.repo.FindByID(ctx, s.db, schoolID, req.InvoiceID)
	if err != nil {
		return domain.InvoiceDetails{}, err
	}
	if current == nil {
		return domain.InvoiceDetails{}, domain.ErrInvoiceNotFound
	}
	if current.Status == domain.StatusPaid {
		return domain.InvoiceDetails{}, domain.ErrInvoiceSettled
	}

	results, err := s.priceStudents(ctx, current.GuardianID, current.AcademicTermID, req.IncludeExtras)
	if err != nil {
		return domain.InvoiceDetails{}, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.lockInvoice(ctx, tx, schoolID, req.InvoiceID)
		if err != nil {
			return err
		}
		if invoice.Status == domain.StatusPaid {
			return domain.ErrInvoiceSettled
		}
		previous := invoice.Totals()

		if err := s.repo.DeleteLineItems(ctx, tx, invoice.ID); err != nil {
			return err
		}
		now := s.clock.Now()
		for _, result := range results {
			line := domain.InvoiceLineItem{
				ID:           s.genID.Generate(),
				SchoolID:     schoolID,
				InvoiceID:    invoice.ID,
				StudentID:    result.StudentID,
				FeeBreakdown: toFeeBreakdown(result.Breakdown),
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := s.repo.SaveLineItem(ctx, tx, &line); err != nil {
				return err
			}
		}
		if _, err := s.recalculate(ctx, tx, invoice, now); err != nil {
			return err
		}

		return s.auditSvc.RecordTx(ctx, tx, auditdomain.Target{SchoolID: schoolID, Type: "invoice", ID: invoice.ID.String()}, "invoice.regenerated", map[string]any{
			"previous_status": string(previous.Status),
			"previous_total":  previous.Total.StringFixed(2),
			"status":          string(invoice.Status),
			"total_amount":    invoice.TotalAmount.StringFixed(2),
			"students":        len(results),
		})
	})
	if err != nil {
		return domain.InvoiceDetails{}, err
	}
	return s.GetWithDetails(ctx, req.InvoiceID)
}

func (s *Service) Recalculate(ctx context.Context, invoiceID snowflake.ID) (domain.GuardianInvoice, error) {
	var out domain.GuardianInvoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.RecalculateTx(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		out = invoice
		return nil
	})
	if err != nil {
		return domain.GuardianInvoice{}, err
	}
	return out, nil
}

// RecalculateTx locks the invoice and re-derives it inside tx. When ctx
// carries a school the invoice must belong to it; the overdue sweep runs
// without one.
func (s *Service) RecalculateTx(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID) (domain.GuardianInvoice, error) {
	return s.recalculateAt(ctx, tx, invoiceID, s.clock.Now())
}

func (s *Service) recalculateAt(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID, now time.Time) (domain.GuardianInvoice, error) {
	if invoiceID == 0 {
		return domain.GuardianInvoice{}, domain.ErrInvoiceNotFound
	}
	invoice, err := s.repo.LockByID(ctx, tx, invoiceID)
	if err != nil {
		return domain.GuardianInvoice{}, err
	}
	if invoice == nil {
		return domain.GuardianInvoice{}, domain.ErrInvoiceNotFound
	}
	if schoolID, ok := schoolcontext.SchoolIDFromContext(ctx); ok && schoolID != invoice.SchoolID {
		return domain.GuardianInvoice{}, domain.ErrInvoiceNotFound
	}

	previous := invoice.Totals()
	changed, err := s.recalculate(ctx, tx, invoice, now)
	if err != nil {
		return domain.GuardianInvoice{}, err
	}
	s.metrics.RecordRecalculation(ctx, string(invoice.Status), changed)
	if !changed {
		return *invoice, nil
	}

	schoolID := invoice.SchoolID
	if err := s.auditSvc.RecordTx(ctx, tx, auditdomain.Target{SchoolID: schoolID, Type: "invoice", ID: invoice.ID.String()}, "invoice.recalculated", map[string]any{
		"previous_status":  string(previous.Status),
		"status":           string(invoice.Status),
		"previous_balance": previous.BalanceDue.StringFixed(2),
		"balance_due":      invoice.BalanceDue.StringFixed(2),
		"total_amount":     invoice.TotalAmount.StringFixed(2),
		"amount_paid":      invoice.AmountPaid.StringFixed(2),
		"version":          invoice.Version,
	}); err != nil {
		return domain.GuardianInvoice{}, err
	}
	return *invoice, nil
}

// recalculate derives invoice from its stored line items and payments and
// writes the result when anything changed. invoice must already be locked.
func (s *Service) recalculate(ctx context.Context, tx *gorm.DB, invoice *domain.GuardianInvoice, now time.Time) (bool, error) {
	lines, err := s.repo.ListLineItems(ctx, tx, invoice.ID)
	if err != nil {
		return false, err
	}
	payments, err := s.repo.ListPayments(ctx, tx, invoice.ID)
	if err != nil {
		return false, err
	}

	totals := domain.Derive(domain.DeriveInput{
		LineTotals:                 lo.Map(lines, func(l *domain.InvoiceLineItem, _ int) decimal.Decimal { return l.TotalAmount }),
		Payments:                   lo.Map(payments, func(p domain.PaymentEntry, _ int) decimal.Decimal { return p.Amount }),
		Plan:                       invoice.PaymentPlan,
		DueDate:                    invoice.DueDate,
		Now:                        now,
		FullPaymentDiscountPercent: s.policy.Get().FullPaymentDiscountPercent,
	})
	if totals.Equal(invoice.Totals()) {
		return false, nil
	}

	invoice.ApplyTotals(totals)
	invoice.Version++
	invoice.UpdatedAt = now
	if err := s.repo.UpdateTotals(ctx, tx, invoice); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) UpsertLineItem(ctx context.Context, req domain.UpsertLineItemRequest) (domain.InvoiceDetails, error) {
	schoolID, err := s.schoolIDFromContext(ctx)
	if err != nil {
		return domain.InvoiceDetails{}, err
	}
	breakdown, err := normalizeBreakdown(req.FeeBreakdown)
	if err != nil {
		return domain.InvoiceDetails{}, err
	}
	current, err := s.repo.FindByID(ctx, s.db, schoolID, req.InvoiceID)
	if err != nil {
		return domain.InvoiceDetails{}, err
	}
	if current == nil {
		return domain.InvoiceDetails{}, domain.ErrInvoiceNotFound
	}
	if err := s.ensureGuardianStudent(ctx, current.GuardianID, req.StudentID); err != nil {
		return domain.InvoiceDetails{}, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.lockInvoice(ctx, tx, schoolID, req.InvoiceID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		line, err := s.repo.FindLineItem(ctx, tx, invoice.ID, req.StudentID)
		if err != nil {
			return err
		}
		var previous decimal.Decimal
		if line == nil {
			line = &domain.InvoiceLineItem{
				ID:        s.genID.Generate(),
				SchoolID:  schoolID,
				InvoiceID: invoice.ID,
				StudentID: req.StudentID,
				CreatedAt: now,
			}
		} else {
			previous = line.TotalAmount
		}
		line.FeeBreakdown = breakdown
		line.UpdatedAt = now
		if err := s.repo.SaveLineItem(ctx, tx, line); err != nil {
			return err
		}
		if _, err := s.recalculate(ctx, tx, invoice, now); err != nil {
			return err
		}

		return s.auditSvc.RecordTx(ctx, tx, auditdomain.Target{SchoolID: schoolID, Type: "invoice", ID: invoice.ID.String()}, "invoice.line_item_upserted", map[string]any{
			"student_id":     req.StudentID.String(),
			"previous_total": previous.StringFixed(2),
			"line_total":     line.TotalAmount.StringFixed(2),
			"categories":     lo.Map(breakdown, func(e domain.FeeEntry, _ int) string { return e.Category }),
			"status":         string(invoice.Status),
		})
	})
	if err != nil {
		return domain.InvoiceDetails{}, err
	}
	return s.GetWithDetails(ctx, req.InvoiceID)
}

func (s *Service) RemoveLineItem(ctx context.Context, invoiceID, studentID snowflake.ID) (domain.InvoiceDetails, error) {
	schoolID, err := s.schoolIDFromContext(ctx)
	if err != nil {
		return domain.InvoiceDetails{}, err
	}
	if studentID == 0 {
		return domain.InvoiceDetails{}, domain.ErrInvalidStudent
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.lockInvoice(ctx, tx, schoolID, invoiceID)
		if err != nil {
			return err
		}
		removed, err := s.repo.DeleteLineItem(ctx, tx, invoice.ID, studentID)
		if err != nil {
			return err
		}
		if !removed {
			return domain.ErrLineItemNotFound
		}
		if _, err := s.recalculate(ctx, tx, invoice, s.clock.Now()); err != nil {
			return err
		}

		return s.auditSvc.RecordTx(ctx, tx, auditdomain.Target{SchoolID: schoolID, Type: "invoice", ID: invoice.ID.String()}, "invoice.line_item_removed", map[string]any{
			"student_id": studentID.String(),
			"status":     string(invoice.Status),
		})
	})
	if err != nil {
		return domain.InvoiceDetails{}, err
	}
	return s.GetWithDetails(ctx, invoiceID)
}

func (s *Service) Get(ctx context.Context, invoiceID snowflake.ID) (domain.GuardianInvoice, error) {
	schoolID, err := s.schoolIDFromContext(ctx)
	if err != nil {
		return domain.GuardianInvoice{}, err
	}
	invoice, err := s.repo.FindByID(ctx, s.db, schoolID, invoiceID)
	if err != nil {
		return domain.GuardianInvoice{}, err
	}
	if invoice == nil {
		return domain.GuardianInvoice{}, domain.ErrInvoiceNotFound
	}
	return *invoice, nil
}

func (s *Service) GetWithDetails(ctx context.Context, invoiceID snowflake.ID) (domain.InvoiceDetails, error) {
	invoice, err := s.Get(ctx, invoiceID)
	if err != nil {
		return domain.InvoiceDetails{}, err
	}
	lines, err := s.repo.ListLineItems(ctx, s.db, invoice.ID)
	if err != nil {
		return domain.InvoiceDetails{}, err
	}
	payments, err := s.repo.ListPayments(ctx, s.db, invoice.ID)
	if err != nil {
		return domain.InvoiceDetails{}, err
	}
	if payments == nil {
		payments = []domain.PaymentEntry{}
	}
	return domain.InvoiceDetails{
		Invoice:   invoice,
		LineItems: lo.FromSlicePtr(lines),
		Payments:  payments,
	}, nil
}

func (s *Service) List(ctx context.Context, req domain.ListInvoiceRequest) (domain.ListInvoiceResponse, error) {
	schoolID, err := s.schoolIDFromContext(ctx)
	if err != nil {
		return domain.ListInvoiceResponse{}, err
	}
	if token := strings.TrimSpace(req.PageToken); token != "" {
		if _, err := pagination.DecodeCursor(token); err != nil {
			return domain.ListInvoiceResponse{}, domain.ErrInvalidPageToken
		}
	}

	filter := &domain.GuardianInvoice{SchoolID: schoolID}
	if req.Status != nil {
		if !req.Status.Valid() {
			return domain.ListInvoiceResponse{}, domain.ErrInvalidStatus
		}
		filter.Status = *req.Status
	}
	if req.AcademicTermID != nil {
		filter.AcademicTermID = *req.AcademicTermID
	}
	if req.GuardianID != nil {
		filter.GuardianID = *req.GuardianID
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	items, err := s.store.Find(ctx, filter,
		option.WithSortBy(option.QuerySortBy{Allow: map[string]bool{"created_at": true}}),
		option.ApplyPagination(pagination.Pagination{PageToken: req.PageToken, PageSize: pageSize}),
	)
	if err != nil {
		return domain.ListInvoiceResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(pageSize), func(item *domain.GuardianInvoice) string {
		return pagination.CursorFor(item.ID.String(), item.CreatedAt)
	})
	if len(items) > pageSize {
		items = items[:pageSize]
	}

	return domain.ListInvoiceResponse{
		PageInfo: *pageInfo,
		Invoices: lo.FromSlicePtr(items),
	}, nil
}

// UpdatePlan switches the payment plan or due date and re-derives the
// discount. Settled invoices keep their plan.
func (s *Service) UpdatePlan(ctx context.Context, req domain.UpdatePlanRequest) (domain.GuardianInvoice, error) {
	schoolID, err := s.schoolIDFromContext(ctx)
	if err != nil {
		return domain.GuardianInvoice{}, err
	}
	if req.PaymentPlan != "" && !req.PaymentPlan.Valid() {
		return domain.GuardianInvoice{}, domain.ErrInvalidPaymentPlan
	}
	if req.PaymentPlan == "" && req.DueDate == nil {
		return domain.GuardianInvoice{}, domain.ErrInvalidPaymentPlan
	}

	var out domain.GuardianInvoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.lockInvoice(ctx, tx, schoolID, req.InvoiceID)
		if err != nil {
			return err
		}
		if invoice.Status == domain.StatusPaid {
			return domain.ErrInvoiceSettled
		}
		previousPlan := invoice.PaymentPlan
		previousDue := invoice.DueDate

		now := s.clock.Now()
		if req.PaymentPlan != "" {
			invoice.PaymentPlan = req.PaymentPlan
		}
		if req.DueDate != nil {
			due := req.DueDate.UTC()
			if due.Before(startOfDay(invoice.IssuedAt)) {
				return domain.ErrInvalidDueDate
			}
			invoice.DueDate = due
		}
		invoice.UpdatedAt = now
		if err := s.repo.UpdatePlan(ctx, tx, invoice); err != nil {
			return err
		}
		if _, err := s.recalculate(ctx, tx, invoice, now); err != nil {
			return err
		}

		if err := s.auditSvc.RecordTx(ctx, tx, auditdomain.Target{SchoolID: schoolID, Type: "invoice", ID: invoice.ID.String()}, "invoice.plan_changed", map[string]any{
			"previous_plan":     string(previousPlan),
			"payment_plan":      string(invoice.PaymentPlan),
			"previous_due_date": previousDue.Format(time.RFC3339),
			"due_date":          invoice.DueDate.Format(time.RFC3339),
			"total_amount":      invoice.TotalAmount.StringFixed(2),
		}); err != nil {
			return err
		}
		out = *invoice
		return nil
	})
	if err != nil {
		return domain.GuardianInvoice{}, err
	}
	return out, nil
}

// RefreshOverdue re-derives pending invoices whose due date has passed so
// their stored status turns overdue. One failing invoice does not stop the
// batch.
func (s *Service) RefreshOverdue(ctx context.Context, now time.Time, limit int, after snowflake.ID) (domain.RefreshResult, error) {
	if limit <= 0 {
		limit = 100
	}
	ids, err := s.repo.ListOverdueCandidates(ctx, s.db, now, after, limit)
	if err != nil {
		return domain.RefreshResult{}, err
	}

	result := domain.RefreshResult{Scanned: len(ids), LastID: after}
	for _, id := range ids {
		if id > result.LastID {
			result.LastID = id
		}
		var updated bool
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			invoice, err := s.recalculateAt(ctx, tx, id, now)
			if err != nil {
				return err
			}
			updated = invoice.Status == domain.StatusOverdue
			return nil
		})
		if err != nil {
			s.log.Warn("overdue refresh failed", zap.String("invoice_id", id.String()), zap.Error(err))
			result.Failed++
			continue
		}
		if updated {
			result.Updated++
		}
	}
	return result, nil
}

func (s *Service) lockInvoice(ctx context.Context, tx *gorm.DB, schoolID, invoiceID snowflake.ID) (*domain.GuardianInvoice, error) {
	invoice, err := s.repo.LockByID(ctx, tx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil || invoice.SchoolID != schoolID {
		return nil, domain.ErrInvoiceNotFound
	}
	return invoice, nil
}

// priceStudents computes every student linked to the guardian. Any required
// catalog miss aborts the whole invoice.
func (s *Service) priceStudents(ctx context.Context, guardianID, termID snowflake.ID, includeExtras bool) ([]computedomain.Result, error) {
	students, err := s.directory.StudentsForGuardian(ctx, guardianID)
	if err != nil {
		return nil, mapDirectoryErr(err)
	}
	if len(students) == 0 {
		return nil, domain.ErrNoStudents
	}

	results := make([]computedomain.Result, 0, len(students))
	for _, student := range students {
		result, err := s.compute.Compute(ctx, computedomain.ComputeRequest{
			StudentID:      student.ID,
			AcademicTermID: termID,
			IncludeExtras:  includeExtras,
		})
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

func (s *Service) ensureGuardianStudent(ctx context.Context, guardianID, studentID snowflake.ID) error {
	if studentID == 0 {
		return domain.ErrInvalidStudent
	}
	guardians, err := s.directory.GuardiansForStudent(ctx, studentID)
	if err != nil {
		return mapDirectoryErr(err)
	}
	if !lo.ContainsBy(guardians, func(g schooldomain.Guardian) bool { return g.ID == guardianID }) {
		return domain.ErrInvalidStudent
	}
	return nil
}

func (s *Service) schoolIDFromContext(ctx context.Context) (snowflake.ID, error) {
	schoolID, ok := schoolcontext.SchoolIDFromContext(ctx)
	if !ok {
		return 0, domain.ErrInvalidSchool
	}
	return schoolID, nil
}

func toFeeBreakdown(b computedomain.Breakdown) domain.FeeBreakdown {
	return lo.Map(b, func(line computedomain.Line, _ int) domain.FeeEntry {
		return domain.FeeEntry{Category: line.Category, Amount: line.Amount}
	})
}

func normalizeBreakdown(b domain.FeeBreakdown) (domain.FeeBreakdown, error) {
	if len(b) == 0 {
		return nil, domain.ErrInvalidBreakdown
	}
	seen := make(map[string]struct{}, len(b))
	out := make(domain.FeeBreakdown, 0, len(b))
	for _, entry := range b {
		category := strings.TrimSpace(entry.Category)
		if category == "" || entry.Amount.IsNegative() {
			return nil, domain.ErrInvalidBreakdown
		}
		if _, dup := seen[category]; dup {
			return nil, domain.ErrInvalidBreakdown
		}
		seen[category] = struct{}{}
		out = append(out, domain.FeeEntry{Category: category, Amount: entry.Amount.Round(2)})
	}
	return out, nil
}

func mapDirectoryErr(err error) error {
	switch {
	case errors.Is(err, schooldomain.ErrInvalidSchool), errors.Is(err, schooldomain.ErrSchoolNotFound):
		return domain.ErrInvalidSchool
	case errors.Is(err, schooldomain.ErrGuardianNotFound):
		return domain.ErrInvalidGuardian
	case errors.Is(err, schooldomain.ErrTermNotFound):
		return domain.ErrInvalidTerm
	case errors.Is(err, schooldomain.ErrStudentNotFound):
		return domain.ErrInvalidStudent
	default:
		return err
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
