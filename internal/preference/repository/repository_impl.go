package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/schoolfee/internal/preference/domain"
	"github.com/smallbiznis/schoolfee/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByStudentTerm(ctx context.Context, conn *gorm.DB, schoolID, studentID, termID snowflake.ID) (*domain.GuardianFeePreference, error) {
	return first(conn.WithContext(ctx).
		Where("school_id = ? AND student_id = ? AND academic_term_id = ?", schoolID, studentID, termID))
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, schoolID, id snowflake.ID) (*domain.GuardianFeePreference, error) {
	return first(conn.WithContext(ctx).Where("school_id = ? AND id = ?", schoolID, id))
}

func (r *repo) Lock(ctx context.Context, conn *gorm.DB, schoolID, id snowflake.ID) (*domain.GuardianFeePreference, error) {
	return first(db.ForUpdate(conn.WithContext(ctx)).Where("school_id = ? AND id = ?", schoolID, id))
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, pref *domain.GuardianFeePreference) error {
	return conn.WithContext(ctx).Create(pref).Error
}

func (r *repo) UpdateVersioned(ctx context.Context, conn *gorm.DB, pref *domain.GuardianFeePreference) (bool, error) {
	res := conn.WithContext(ctx).Model(&domain.GuardianFeePreference{}).
		Where("id = ? AND version = ?", pref.ID, pref.Version-1).
		Updates(map[string]any{
			"tuition_type":       pref.TuitionType,
			"transport_route_id": pref.TransportRouteID,
			"transport_type":     pref.TransportType,
			"include_food":       pref.IncludeFood,
			"include_sports":     pref.IncludeSports,
			"notes":              pref.Notes,
			"previous_values":    pref.PreviousValues,
			"updated_by":         pref.UpdatedBy,
			"version":            pref.Version,
			"updated_at":         pref.UpdatedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) InsertChange(ctx context.Context, conn *gorm.DB, change *domain.PreferenceChange) error {
	return conn.WithContext(ctx).Create(change).Error
}

func (r *repo) ListChanges(ctx context.Context, conn *gorm.DB, schoolID, preferenceID snowflake.ID) ([]*domain.PreferenceChange, error) {
	var changes []*domain.PreferenceChange
	err := conn.WithContext(ctx).
		Where("school_id = ? AND preference_id = ?", schoolID, preferenceID).
		Order("version ASC").
		Find(&changes).Error
	return changes, err
}

func first(stmt *gorm.DB) (*domain.GuardianFeePreference, error) {
	var pref domain.GuardianFeePreference
	if err := stmt.First(&pref).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pref, nil
}
