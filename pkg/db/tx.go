package db

import (
	"context"

	"gorm.io/gorm"
)

// Transact runs fn in a transaction, retrying up to attempts times when
// Postgres aborts it with a lock timeout or serialization failure. fn must
// be safe to repeat.
func Transact(ctx context.Context, conn *gorm.DB, attempts int, fn func(tx *gorm.DB) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		err = conn.WithContext(ctx).Transaction(fn)
		if err == nil || !IsRetryableTxErr(err) || ctx.Err() != nil {
			return err
		}
	}
	return err
}
