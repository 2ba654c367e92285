package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/schoolfee/pkg/db/option"
	"gorm.io/gorm"
)

type gormStore[T any] struct {
	conn *gorm.DB
}

// ProvideStore returns a store for T bound to conn.
func ProvideStore[T any](conn *gorm.DB) Repository[T] {
	return gormStore[T]{conn: conn}
}

func (s gormStore[T]) WithTrx(tx *gorm.DB) Repository[T] {
	if tx == nil {
		return s
	}
	return gormStore[T]{conn: tx}
}

func (s gormStore[T]) Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error) {
	rows := make([]*T, 0)
	if err := s.scoped(ctx, query, opts).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (s gormStore[T]) FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error) {
	row := new(T)
	err := s.scoped(ctx, query, opts).Take(row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return row, nil
}

func (s gormStore[T]) Create(ctx context.Context, resource *T) error {
	return s.conn.WithContext(ctx).Create(resource).Error
}

func (s gormStore[T]) Update(ctx context.Context, id string, values map[string]any) error {
	if len(values) == 0 {
		return nil
	}
	res := s.conn.WithContext(ctx).Model(new(T)).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNoRowsAffected
	}
	return nil
}

func (s gormStore[T]) scoped(ctx context.Context, query *T, opts []option.QueryOption) *gorm.DB {
	stmt := s.conn.WithContext(ctx).Model(new(T))
	if query != nil {
		stmt = stmt.Where(query)
	}
	for _, opt := range opts {
		if opt != nil {
			stmt = opt.Apply(stmt)
		}
	}
	return stmt
}
