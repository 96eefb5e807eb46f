package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"posreports/backend/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("POSREPORTS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set POSREPORTS_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL, "Asia/Manila")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestTransactionsByDateUsesBusinessTimezone(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	stamp := time.Now().UnixNano()
	storeID := fmt.Sprintf("store-it-%d", stamp)
	lateID := fmt.Sprintf("tx-late-%d", stamp)
	otherID := fmt.Sprintf("tx-other-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM transactions WHERE store_id = $1`, storeID)
	})

	// 2024-01-15 17:30 UTC is 2024-01-16 01:30 in Manila.
	late := time.Date(2024, 1, 15, 17, 30, 0, 0, time.UTC)
	early := time.Date(2024, 1, 15, 2, 0, 0, 0, time.UTC)
	for _, row := range []struct {
		id string
		at time.Time
	}{{lateID, late}, {otherID, early}} {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO transactions (id, store_id, created_at, subtotal, tax, total, payment_method, receipt_number, items, status)
			VALUES ($1, $2, $3, 112, 12, 112, 'cash', $1, '[{"product_id":"p1","name":"Adobo","quantity":1,"price":112,"total":112}]', 'completed')
		`, row.id, storeID, row.at)
		require.NoError(t, err)
	}

	manila, err := time.LoadLocation("Asia/Manila")
	require.NoError(t, err)
	rng, err := domain.NewDateRange("2024-01-16", "2024-01-16", manila)
	require.NoError(t, err)

	txs, err := s.TransactionsByDate(ctx, storeID, rng, domain.TxStatusCompleted)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Equal(t, lateID, txs[0].ID)
	require.Len(t, txs[0].Items, 1)
	require.True(t, txs[0].Total.Equal(decimal.NewFromInt(112)))

	byTimestamp, err := s.TransactionsByTimestamp(ctx, storeID, rng.Start(), rng.End(), domain.TxStatusCompleted)
	require.NoError(t, err)
	require.Len(t, byTimestamp, 1)
}

func TestCloseShiftRecordsEndingCash(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	shiftID := fmt.Sprintf("shift-it-%d", time.Now().UnixNano())
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM shifts WHERE id = $1`, shiftID)
	})

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shifts (id, store_id, terminal_id, user_id, start_time, starting_cash, status)
		VALUES ($1, 'store-it', 'T1', 'u-it', now(), 5000, 'active')
	`, shiftID)
	require.NoError(t, err)

	closed, err := s.CloseShift(ctx, shiftID, decimal.NewFromInt(21950), time.Now())
	require.NoError(t, err)
	require.Equal(t, domain.ShiftStatusClosed, closed.Status)
	require.NotNil(t, closed.EndingCash)
	require.True(t, closed.EndingCash.Equal(decimal.NewFromInt(21950)))

	_, err = s.CloseShift(ctx, shiftID, decimal.Zero, time.Now())
	require.Error(t, err)
}
