package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/schoolfee/internal/invoice/domain"
	"github.com/smallbiznis/schoolfee/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, schoolID, id snowflake.ID) (*domain.GuardianInvoice, error) {
	return firstInvoice(conn.WithContext(ctx).Where("school_id = ? AND id = ?", schoolID, id))
}

func (r *repo) LockByID(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*domain.GuardianInvoice, error) {
	return firstInvoice(db.ForUpdate(conn.WithContext(ctx)).Where("id = ?", id))
}

func (r *repo) FindByGuardianTerm(ctx context.Context, conn *gorm.DB, schoolID, guardianID, termID snowflake.ID) (*domain.GuardianInvoice, error) {
	return firstInvoice(conn.WithContext(ctx).
		Where("school_id = ? AND guardian_id = ? AND academic_term_id = ?", schoolID, guardianID, termID))
}

// LockSchool serializes invoice numbering within a school.
func (r *repo) LockSchool(ctx context.Context, conn *gorm.DB, schoolID snowflake.ID) error {
	var id snowflake.ID
	err := db.ForUpdate(conn.WithContext(ctx)).
		Table("schools").
		Select("id").
		Where("id = ?", schoolID).
		Scan(&id).Error
	if err != nil {
		return err
	}
	if id == 0 {
		return domain.ErrInvalidSchool
	}
	return nil
}

func (r *repo) NextSequence(ctx context.Context, conn *gorm.DB, schoolID snowflake.ID) (int64, error) {
	var next int64
	err := conn.WithContext(ctx).Raw(
		`SELECT COALESCE(MAX(sequence), 0) + 1
		 FROM guardian_invoices
		 WHERE school_id = ?`,
		schoolID,
	).Scan(&next).Error
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, invoice *domain.GuardianInvoice) error {
	return conn.WithContext(ctx).Create(invoice).Error
}

func (r *repo) UpdateTotals(ctx context.Context, conn *gorm.DB, invoice *domain.GuardianInvoice) error {
	return conn.WithContext(ctx).Model(&domain.GuardianInvoice{}).
		Where("id = ?", invoice.ID).
		Updates(map[string]any{
			"subtotal_amount":     invoice.SubtotalAmount,
			"discount_percentage": invoice.DiscountPercentage,
			"discount_amount":     invoice.DiscountAmount,
			"total_amount":        invoice.TotalAmount,
			"amount_paid":         invoice.AmountPaid,
			"balance_due":         invoice.BalanceDue,
			"status":              invoice.Status,
			"version":             invoice.Version,
			"updated_at":          invoice.UpdatedAt,
		}).Error
}

func (r *repo) UpdatePlan(ctx context.Context, conn *gorm.DB, invoice *domain.GuardianInvoice) error {
	return conn.WithContext(ctx).Model(&domain.GuardianInvoice{}).
		Where("id = ?", invoice.ID).
		Updates(map[string]any{
			"payment_plan": invoice.PaymentPlan,
			"due_date":     invoice.DueDate,
			"updated_at":   invoice.UpdatedAt,
		}).Error
}

func (r *repo) ListLineItems(ctx context.Context, conn *gorm.DB, invoiceID snowflake.ID) ([]*domain.InvoiceLineItem, error) {
	var items []*domain.InvoiceLineItem
	err := conn.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("created_at ASC, id ASC").
		Find(&items).Error
	return items, err
}

func (r *repo) FindLineItem(ctx context.Context, conn *gorm.DB, invoiceID, studentID snowflake.ID) (*domain.InvoiceLineItem, error) {
	var item domain.InvoiceLineItem
	err := conn.WithContext(ctx).
		Where("invoice_id = ? AND student_id = ?", invoiceID, studentID).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

// SaveLineItem inserts or fully overwrites item; the BeforeSave hook
// recomputes its total.
func (r *repo) SaveLineItem(ctx context.Context, conn *gorm.DB, item *domain.InvoiceLineItem) error {
	return conn.WithContext(ctx).Save(item).Error
}

func (r *repo) DeleteLineItem(ctx context.Context, conn *gorm.DB, invoiceID, studentID snowflake.ID) (bool, error) {
	res := conn.WithContext(ctx).
		Where("invoice_id = ? AND student_id = ?", invoiceID, studentID).
		Delete(&domain.InvoiceLineItem{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) DeleteLineItems(ctx context.Context, conn *gorm.DB, invoiceID snowflake.ID) error {
	return conn.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Delete(&domain.InvoiceLineItem{}).Error
}

func (r *repo) ListPayments(ctx context.Context, conn *gorm.DB, invoiceID snowflake.ID) ([]domain.PaymentEntry, error) {
	var payments []domain.PaymentEntry
	err := conn.WithContext(ctx).Raw(
		`SELECT id, amount, payment_date, payment_method, reference_number, created_at
		 FROM guardian_payments
		 WHERE invoice_id = ?
		 ORDER BY payment_date ASC, id ASC`,
		invoiceID,
	).Scan(&payments).Error
	return payments, err
}

// ListOverdueCandidates pages by id so rows that fail to refresh are not
// returned again within the same sweep.
func (r *repo) ListOverdueCandidates(ctx context.Context, conn *gorm.DB, now time.Time, after snowflake.ID, limit int) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := conn.WithContext(ctx).Model(&domain.GuardianInvoice{}).
		Where("status = ? AND due_date < ? AND balance_due > 0 AND id > ?", domain.StatusPending, now, after).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

func firstInvoice(stmt *gorm.DB) (*domain.GuardianInvoice, error) {
	var invoice domain.GuardianInvoice
	if err := stmt.First(&invoice).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &invoice, nil
}
