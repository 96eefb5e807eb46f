package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"posreports/backend/internal/domain"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrSessionExpired = errors.New("session expired")
)

// TransactionSource exposes the three query shapes the report resolver
// cascades through. An empty storeID means every store.
type TransactionSource interface {
	TransactionsByDate(ctx context.Context, storeID string, rng domain.DateRange, status string) ([]domain.Transaction, error)
	TransactionsByTimestamp(ctx context.Context, storeID string, start time.Time, end time.Time, status string) ([]domain.Transaction, error)
	// RecentTransactions returns rows newest first, ordered by (created_at, id)
	// descending. When before is set only rows strictly below the cursor are
	// returned.
	RecentTransactions(ctx context.Context, status string, before *Cursor, limit int) ([]domain.Transaction, error)
}

// Cursor is a keyset position in the (created_at, id) ordering.
type Cursor struct {
	At time.Time
	ID string
}

// CursorOf positions a cursor on tx.
func CursorOf(tx domain.Transaction) *Cursor {
	return &Cursor{At: tx.CreatedAt, ID: tx.ID}
}

// After reports whether tx sorts at or above the cursor, i.e. was already
// returned by an earlier page.
func (c Cursor) After(tx domain.Transaction) bool {
	if cmp := tx.CreatedAt.Compare(c.At); cmp != 0 {
		return cmp > 0
	}
	return tx.ID >= c.ID
}

type ShiftStore interface {
	ListShifts(ctx context.Context, storeID string, start time.Time, end time.Time) ([]domain.Shift, error)
	GetActiveShift(ctx context.Context, storeID string, terminalID string) (*domain.Shift, error)
	CloseShift(ctx context.Context, shiftID string, endingCash decimal.Decimal, closedAt time.Time) (*domain.Shift, error)
}

type CatalogStore interface {
	ListProducts(ctx context.Context, storeID string) ([]domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	GetStockLevels(ctx context.Context, storeID string) (map[string]int, error)
}

type UserStore interface {
	GetUsersByIDs(ctx context.Context, ids []string) (map[string]domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
}

type PayoutStore interface {
	ListPayouts(ctx context.Context, storeID string, terminalID string, start time.Time, end time.Time) ([]domain.Payout, error)
}

type Repository interface {
	TransactionSource
	ShiftStore
	CatalogStore
	UserStore
	PayoutStore
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}
