package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"posreports/backend/internal/domain"
	"posreports/backend/internal/store"
	"posreports/backend/internal/xid"
)

type Store struct {
	db       *sql.DB
	timezone string
}

// New opens the pool. timezone is the IANA name used to evaluate the
// calendar date of created_at on the server side.
func New(ctx context.Context, databaseURL string, timezone string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, store.Classify(err)
	}

	if strings.TrimSpace(timezone) == "" {
		timezone = "Asia/Manila"
	}
	return &Store{db: db, timezone: timezone}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const transactionColumns = `
	id, store_id, COALESCE(terminal_id, ''), COALESCE(user_id, ''), COALESCE(shift_id, ''),
	created_at, subtotal, tax, COALESCE(discount, 0), COALESCE(discount_type, ''), total,
	COALESCE(payment_method, ''), COALESCE(receipt_number, ''), COALESCE(items, '[]'::jsonb),
	status, COALESCE(order_type, ''), COALESCE(delivery_platform, ''),
	COALESCE(vat_sales, 0), COALESCE(vat_exempt_sales, 0), COALESCE(zero_rated_sales, 0),
	COALESCE(senior_citizen_discount, 0), COALESCE(pwd_discount, 0)`

func (s *Store) TransactionsByDate(ctx context.Context, storeID string, rng domain.DateRange, status string) ([]domain.Transaction, error) {
	if status == "" {
		status = domain.TxStatusCompleted
	}
	return s.queryTransactions(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE status = $1
			AND ($2 = '' OR store_id = $2)
			AND (created_at AT TIME ZONE $3)::date BETWEEN $4::date AND $5::date
		ORDER BY created_at ASC
	`, status, storeID, s.timezone, rng.FromString(), rng.ToString())
}

func (s *Store) TransactionsByTimestamp(ctx context.Context, storeID string, start time.Time, end time.Time, status string) ([]domain.Transaction, error) {
	if status == "" {
		status = domain.TxStatusCompleted
	}
	return s.queryTransactions(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE status = $1
			AND ($2 = '' OR store_id = $2)
			AND created_at >= $3
			AND created_at <= $4
		ORDER BY created_at ASC
	`, status, storeID, start, end)
}

func (s *Store) RecentTransactions(ctx context.Context, status string, before *store.Cursor, limit int) ([]domain.Transaction, error) {
	if status == "" {
		status = domain.TxStatusCompleted
	}
	if limit < 1 {
		limit = 100
	}
	if before == nil {
		return s.queryTransactions(ctx, `
			SELECT `+transactionColumns+`
			FROM transactions
			WHERE status = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		`, status, limit)
	}
	return s.queryTransactions(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE status = $1
			AND (created_at, id) < ($2, $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`, status, before.At, before.ID, limit)
}

func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.Classify(err)
	}
	defer rows.Close()

	txs := make([]domain.Transaction, 0, 64)
	for rows.Next() {
		var tx domain.Transaction
		var itemsRaw []byte
		if err := rows.Scan(
			&tx.ID,
			&tx.StoreID,
			&tx.TerminalID,
			&tx.UserID,
			&tx.ShiftID,
			&tx.CreatedAt,
			&tx.Subtotal,
			&tx.Tax,
			&tx.Discount,
			&tx.DiscountType,
			&tx.Total,
			&tx.PaymentMethod,
			&tx.ReceiptNumber,
			&itemsRaw,
			&tx.Status,
			&tx.OrderType,
			&tx.DeliveryPlatform,
			&tx.VATSales,
			&tx.VATExemptSales,
			&tx.ZeroRatedSales,
			&tx.SeniorDiscount,
			&tx.PWDDiscount,
		); err != nil {
			return nil, err
		}
		items, err := decodeItems(itemsRaw)
		if err != nil {
			return nil, err
		}
		tx.Items = items
		tx.CreatedAt = tx.CreatedAt.UTC()
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Classify(err)
	}
	return txs, nil
}

// decodeItems tolerates both a JSON array and a JSON string holding an array,
// since older checkouts stored the serialized cart as text.
func decodeItems(raw []byte) ([]domain.LineItem, error) {
	if len(raw) == 0 {
		return []domain.LineItem{}, nil
	}
	items := make([]domain.LineItem, 0, 4)
	if err := json.Unmarshal(raw, &items); err == nil {
		return items, nil
	}
	var nested string
	if err := json.Unmarshal(raw, &nested); err != nil {
		return nil, err
	}
	if strings.TrimSpace(nested) == "" {
		return []domain.LineItem{}, nil
	}
	if err := json.Unmarshal([]byte(nested), &items); err != nil {
		return nil, err
	}
	return items, nil
}

const shiftColumns = `
	id, store_id, COALESCE(terminal_id, ''), user_id, start_time, end_time,
	COALESCE(starting_cash, 0), ending_cash, status, COALESCE(photo_url, '')`

func scanShift(row interface{ Scan(...any) error }) (domain.Shift, error) {
	var shift domain.Shift
	var endTime sql.NullTime
	var endingCash decimal.NullDecimal
	if err := row.Scan(
		&shift.ID,
		&shift.StoreID,
		&shift.TerminalID,
		&shift.UserID,
		&shift.StartTime,
		&endTime,
		&shift.StartingCash,
		&endingCash,
		&shift.Status,
		&shift.PhotoURL,
	); err != nil {
		return domain.Shift{}, err
	}
	shift.StartTime = shift.StartTime.UTC()
	if endTime.Valid {
		at := endTime.Time.UTC()
		shift.EndTime = &at
	}
	if endingCash.Valid {
		cash := endingCash.Decimal
		shift.EndingCash = &cash
	}
	return shift, nil
}

func (s *Store) ListShifts(ctx context.Context, storeID string, start time.Time, end time.Time) ([]domain.Shift, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+shiftColumns+`
		FROM shifts
		WHERE ($1 = '' OR store_id = $1)
			AND start_time >= $2
			AND start_time <= $3
		ORDER BY start_time ASC
	`, storeID, start, end)
	if err != nil {
		return nil, store.Classify(err)
	}
	defer rows.Close()

	shifts := make([]domain.Shift, 0, 16)
	for rows.Next() {
		shift, err := scanShift(rows)
		if err != nil {
			return nil, err
		}
		shifts = append(shifts, shift)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Classify(err)
	}
	return shifts, nil
}

func (s *Store) GetActiveShift(ctx context.Context, storeID string, terminalID string) (*domain.Shift, error) {
	shift, err := scanShift(s.db.QueryRowContext(ctx, `
		SELECT `+shiftColumns+`
		FROM shifts
		WHERE store_id = $1 AND ($2 = '' OR terminal_id = $2) AND status = 'active'
		ORDER BY start_time DESC
		LIMIT 1
	`, storeID, terminalID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, store.Classify(err)
	}
	return &shift, nil
}

func (s *Store) CloseShift(ctx context.Context, shiftID string, endingCash decimal.Decimal, closedAt time.Time) (*domain.Shift, error) {
	if strings.TrimSpace(shiftID) == "" {
		return nil, store.ErrInvalidInput
	}
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}

	shift, err := scanShift(s.db.QueryRowContext(ctx, `
		UPDATE shifts
		SET status = 'closed', ending_cash = $2, end_time = $3
		WHERE id = $1 AND status = 'active'
		RETURNING `+shiftColumns+`
	`, shiftID, endingCash, closedAt))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, store.Classify(err)
	}
	return &shift, nil
}

func (s *Store) ListProducts(ctx context.Context, storeID string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.store_id, p.name, COALESCE(c.name, ''), COALESCE(p.cost, 0), COALESCE(p.price, 0),
			COALESCE(p.reorder_level, 0)
		FROM products p
		LEFT JOIN categories c ON c.id = p.category_id
		WHERE ($1 = '' OR p.store_id = $1)
		ORDER BY p.name
	`, storeID)
	if err != nil {
		return nil, store.Classify(err)
	}
	defer rows.Close()
	return scanProducts(rows)
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.store_id, p.name, COALESCE(c.name, ''), COALESCE(p.cost, 0), COALESCE(p.price, 0),
			COALESCE(p.reorder_level, 0)
		FROM products p
		LEFT JOIN categories c ON c.id = p.category_id
		WHERE p.id = ANY($1)
	`, ids)
	if err != nil {
		return nil, store.Classify(err)
	}
	defer rows.Close()

	products, err := scanProducts(rows)
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		result[p.ID] = p
	}
	return result, nil
}

func scanProducts(rows *sql.Rows) ([]domain.Product, error) {
	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.StoreID, &p.Name, &p.Category, &p.Cost, &p.Price, &p.ReorderLevel); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Classify(err)
	}
	return products, nil
}

func (s *Store) GetStockLevels(ctx context.Context, storeID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, SUM(quantity)
		FROM stock_levels
		WHERE ($1 = '' OR store_id = $1)
		GROUP BY product_id
	`, storeID)
	if err != nil {
		return nil, store.Classify(err)
	}
	defer rows.Close()

	stock := make(map[string]int, 64)
	for rows.Next() {
		var productID string
		var qty int
		if err := rows.Scan(&productID, &qty); err != nil {
			return nil, err
		}
		stock[productID] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, store.Classify(err)
	}
	return stock, nil
}

func (s *Store) GetUsersByIDs(ctx context.Context, ids []string) (map[string]domain.User, error) {
	result := make(map[string]domain.User, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(name, ''), username, role
		FROM app_users
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, store.Classify(err)
	}
	defer rows.Close()

	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Username, &u.Role); err != nil {
			return nil, err
		}
		result[u.ID] = u
	}
	if err := rows.Err(); err != nil {
		return nil, store.Classify(err)
	}
	return result, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, COALESCE(name, ''), username, role, password_hash, active, created_at
		FROM app_users
		WHERE username = $1
	`, strings.ToLower(strings.TrimSpace(username))).Scan(
		&user.ID,
		&user.Name,
		&user.Username,
		&user.Role,
		&user.PasswordHash,
		&user.Active,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, store.Classify(err)
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

func (s *Store) ListPayouts(ctx context.Context, storeID string, terminalID string, start time.Time, end time.Time) ([]domain.Payout, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, COALESCE(terminal_id, ''), amount, COALESCE(reason, ''), created_at
		FROM payouts
		WHERE ($1 = '' OR store_id = $1)
			AND ($2 = '' OR terminal_id = $2)
			AND created_at >= $3
			AND created_at <= $4
		ORDER BY created_at ASC
	`, storeID, terminalID, start, end)
	if err != nil {
		return nil, store.Classify(err)
	}
	defer rows.Close()

	payouts := make([]domain.Payout, 0, 8)
	for rows.Next() {
		var p domain.Payout
		if err := rows.Scan(&p.ID, &p.StoreID, &p.TerminalID, &p.Amount, &p.Reason, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		payouts = append(payouts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Classify(err)
	}
	return payouts, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.StoreID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	if isUniqueViolation(err) {
		return store.ErrInvalidInput
	}
	return store.Classify(err)
}

func (s *Store) ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE ($1 = '' OR store_id = $1)
			AND created_at >= $2
			AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4
	`, storeID, from, to, limit)
	if err != nil {
		return nil, store.Classify(err)
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.StoreID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Classify(err)
	}
	return logs, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
