package repository

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/schoolfee/internal/testutil/testdb"
	"github.com/smallbiznis/schoolfee/pkg/db/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type ledgerRow struct {
	ID        int64 `gorm:"primaryKey"`
	SchoolID  int64
	Label     string
	IsActive  bool
	CreatedAt time.Time
}

func seedRows(t *testing.T) (*gorm.DB, Repository[ledgerRow]) {
	t.Helper()
	conn := testdb.Open(t, &ledgerRow{})
	store := ProvideStore[ledgerRow](conn)
	base := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	for i, label := range []string{"tuition", "transport", "lunch"} {
		require.NoError(t, store.Create(context.Background(), &ledgerRow{
			ID:        int64(i + 1),
			SchoolID:  10,
			Label:     label,
			IsActive:  true,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, store.Create(context.Background(), &ledgerRow{ID: 9, SchoolID: 20, Label: "tuition", IsActive: true, CreatedAt: base}))
	return conn, store
}

func TestFindMatchesNonZeroFields(t *testing.T) {
	_, store := seedRows(t)
	ctx := context.Background()

	rows, err := store.Find(ctx, &ledgerRow{SchoolID: 10},
		option.WithSortBy(option.QuerySortBy{Allow: map[string]bool{"created_at": true}}))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "lunch", rows[0].Label)

	rows, err = store.Find(ctx, &ledgerRow{SchoolID: 30})
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestFindOneReturnsNilWhenMissing(t *testing.T) {
	_, store := seedRows(t)
	ctx := context.Background()

	row, err := store.FindOne(ctx, &ledgerRow{SchoolID: 20, Label: "tuition"})
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.EqualValues(t, 9, row.ID)

	row, err = store.FindOne(ctx, &ledgerRow{SchoolID: 20, Label: "lunch"})
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestUpdateAppliesMapAndReportsMissingRow(t *testing.T) {
	_, store := seedRows(t)
	ctx := context.Background()

	require.NoError(t, store.Update(ctx, "2", map[string]any{"is_active": false}))
	row, err := store.FindOne(ctx, &ledgerRow{ID: 2})
	require.NoError(t, err)
	assert.False(t, row.IsActive)

	assert.ErrorIs(t, store.Update(ctx, "404", map[string]any{"is_active": false}), ErrNoRowsAffected)
	assert.NoError(t, store.Update(ctx, "404", nil))
}

func TestWithTrxRollsBack(t *testing.T) {
	conn, store := seedRows(t)
	ctx := context.Background()

	err := conn.Transaction(func(tx *gorm.DB) error {
		if err := store.WithTrx(tx).Create(ctx, &ledgerRow{ID: 50, SchoolID: 10, Label: "trip"}); err != nil {
			return err
		}
		return gorm.ErrInvalidTransaction
	})
	require.ErrorIs(t, err, gorm.ErrInvalidTransaction)

	row, err := store.FindOne(ctx, &ledgerRow{ID: 50})
	require.NoError(t, err)
	assert.Nil(t, row)
}
