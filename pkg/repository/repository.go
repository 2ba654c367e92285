// Package repository provides a generic gorm-backed store for tables whose
// reads are plain field matches. Anything needing joins or aggregates lives
// in the owning domain's repository package instead.
package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/schoolfee/pkg/db/option"
	"gorm.io/gorm"
)

// ErrNoRowsAffected is returned by Update when the id matched nothing.
var ErrNoRowsAffected = errors.New("no_rows_affected")

type Repository[T any] interface {
	// WithTrx returns a store bound to tx.
	WithTrx(tx *gorm.DB) Repository[T]
	// Find matches the non-zero fields of query.
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	// FindOne returns nil, nil when nothing matches.
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	// Update applies a map of column values to the row with id.
	Update(ctx context.Context, id string, values map[string]any) error
}
