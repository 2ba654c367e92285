package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/smallbiznis/schoolfee/internal/testutil/testdb"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestTransactRetriesSerializationFailures(t *testing.T) {
	conn := testdb.Open(t)
	calls := 0
	err := Transact(context.Background(), conn, 3, func(tx *gorm.DB) error {
		calls++
		if calls < 3 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestTransactGivesUpAfterAttempts(t *testing.T) {
	conn := testdb.Open(t)
	calls := 0
	err := Transact(context.Background(), conn, 2, func(tx *gorm.DB) error {
		calls++
		return &pgconn.PgError{Code: "55P03"}
	})
	assert.True(t, IsRetryableTxErr(err))
	assert.Equal(t, 2, calls)
}

func TestTransactDoesNotRetryOtherErrors(t *testing.T) {
	conn := testdb.Open(t)
	boom := errors.New("invoice_settled")
	calls := 0
	err := Transact(context.Background(), conn, 5, func(tx *gorm.DB) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}
