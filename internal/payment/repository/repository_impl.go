package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/schoolfee/internal/payment/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, schoolID, id snowflake.ID) (*domain.GuardianPayment, error) {
	return first(db.WithContext(ctx).Where("school_id = ? AND id = ?", schoolID, id))
}

func (r *repo) FindByReference(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, reference string) (*domain.GuardianPayment, error) {
	return first(db.WithContext(ctx).Where("invoice_id = ? AND reference_number = ?", invoiceID, reference))
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payment *domain.GuardianPayment) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "invoice_id"}, {Name: "reference_number"}},
			DoNothing: true,
		}).
		Create(payment)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Where("id = ?", id).Delete(&domain.GuardianPayment{}).Error
}

func (r *repo) ListByInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]domain.GuardianPayment, error) {
	var items []domain.GuardianPayment
	err := db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("payment_date ASC, id ASC").
		Find(&items).Error
	return items, err
}

func first(stmt *gorm.DB) (*domain.GuardianPayment, error) {
	var item domain.GuardianPayment
	if err := stmt.First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}
