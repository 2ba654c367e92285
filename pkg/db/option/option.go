// Package option holds composable gorm query modifiers shared by repositories.
package option

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/schoolfee/pkg/db/pagination"
	"gorm.io/gorm"
)

type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type QueryOptionFunc func(db *gorm.DB) *gorm.DB

func (f QueryOptionFunc) Apply(db *gorm.DB) *gorm.DB {
	return f(db)
}

type Operator string

const (
	EQ  Operator = "="
	NEQ Operator = "<>"
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
	IN  Operator = "IN"
)

type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

// ApplyOperator adds a single WHERE condition. Unknown operators are ignored.
func ApplyOperator(cond Condition) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		field := strings.TrimSpace(cond.Field)
		if field == "" {
			return db
		}
		switch cond.Operator {
		case EQ, NEQ, GT, GTE, LT, LTE:
			return db.Where(fmt.Sprintf("%s %s ?", field, cond.Operator), cond.Value)
		case IN:
			return db.Where(fmt.Sprintf("%s IN ?", field), cond.Value)
		default:
			return db
		}
	})
}

type QuerySortBy struct {
	Allow     map[string]bool
	SortBy    string
	Direction string
}

// WithSortBy orders by an allow-listed column, newest first by default.
func WithSortBy(sort QuerySortBy) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		column := strings.TrimSpace(sort.SortBy)
		if column == "" || !sort.Allow[column] {
			column = "created_at"
		}
		direction := strings.ToLower(strings.TrimSpace(sort.Direction))
		if direction != "asc" {
			direction = "desc"
		}
		return db.Order(fmt.Sprintf("%s %s, id %s", column, direction, direction))
	})
}

// ApplyPagination applies keyset pagination on (created_at, id) and fetches
// one extra row so callers can detect another page.
func ApplyPagination(page pagination.Pagination) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if token := strings.TrimSpace(page.PageToken); token != "" {
			if cursor, err := pagination.DecodeCursor(token); err == nil {
				if createdAt, id, err := cursor.Keyset(); err == nil {
					db = db.Where("(created_at < ?) OR (created_at = ? AND id < ?)", createdAt, createdAt, id)
				}
			}
		}
		size := page.PageSize
		if size <= 0 {
			size = 50
		}
		if size > 250 {
			size = 250
		}
		return db.Limit(size + 1)
	})
}
