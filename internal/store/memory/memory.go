package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"posreports/backend/internal/domain"
	"posreports/backend/internal/store"
	"posreports/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	transactions    map[string]domain.Transaction
	shiftsByID      map[string]domain.Shift
	products        map[string]domain.Product
	stock           map[string]map[string]int
	usersByID       map[string]domain.UserAccount
	usersByUsername map[string]string
	payouts         []domain.Payout
	auditLogs       []domain.AuditLog
}

func New() *Store {
	return &Store{
		transactions:    make(map[string]domain.Transaction),
		shiftsByID:      make(map[string]domain.Shift),
		products:        make(map[string]domain.Product),
		stock:           make(map[string]map[string]int),
		usersByID:       make(map[string]domain.UserAccount),
		usersByUsername: make(map[string]string),
		payouts:         make([]domain.Payout, 0, 16),
		auditLogs:       make([]domain.AuditLog, 0, 128),
	}
}

// seedUsers builds the dev/demo accounts. Credentials come from
// SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD, falling back to
// hardcoded defaults with a warning.
func seedUsers(logger zerolog.Logger) ([]domain.UserAccount, error) {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		logger.Warn().Msg("using default dev credentials, set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := make([]domain.UserAccount, 0, 3)
	for _, u := range []struct {
		id       string
		name     string
		username string
		password string
		role     string
	}{
		{"user-admin", "Store Admin", "admin", adminPwd, domain.RoleAdmin},
		{"user-cashier-1", "Maria Santos", "cashier", cashierPwd, domain.RoleCashier},
		{"user-cashier-2", "Jose Reyes", "jose", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash seed password for %s: %w", u.username, err)
		}
		users = append(users, domain.UserAccount{
			User:         domain.User{ID: u.id, Name: u.name, Username: u.username, Role: u.role},
			PasswordHash: string(hash),
			Active:       true,
			CreatedAt:    now,
		})
	}
	return users, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store populated with a week of demo sales for storeID,
// dated relative to now in loc.
func NewSeeded(logger zerolog.Logger, storeID string, now time.Time, loc *time.Location) (*Store, error) {
	if loc == nil {
		loc = time.UTC
	}
	s := New()

	users, err := seedUsers(logger)
	if err != nil {
		return nil, err
	}
	s.AddUsers(users...)

	products := []domain.Product{
		{ID: "prod-adobo", StoreID: storeID, Name: "Chicken Adobo Meal", Category: "Meals", Cost: dec("85"), Price: dec("165"), ReorderLevel: 20},
		{ID: "prod-sinigang", StoreID: storeID, Name: "Pork Sinigang", Category: "Meals", Cost: dec("110"), Price: dec("210"), ReorderLevel: 15},
		{ID: "prod-lumpia", StoreID: storeID, Name: "Lumpiang Shanghai", Category: "Sides", Cost: dec("40"), Price: dec("95"), ReorderLevel: 30},
		{ID: "prod-rice", StoreID: storeID, Name: "Garlic Rice", Category: "Sides", Cost: dec("12"), Price: dec("35"), ReorderLevel: 50},
		{ID: "prod-halo", StoreID: storeID, Name: "Halo-Halo", Category: "Desserts", Cost: dec("45"), Price: dec("120"), ReorderLevel: 10},
		{ID: "prod-calamansi", StoreID: storeID, Name: "Calamansi Juice", Category: "Drinks", Cost: dec("15"), Price: dec("55"), ReorderLevel: 25},
	}
	s.AddProducts(products...)
	for i, p := range products {
		s.SetStock(storeID, p.ID, 8+i*9)
	}

	methods := []string{"cash", "card", "gcash", "cash", "maya"}
	discounts := []string{"", "", "senior", "", "pwd", "employee", ""}
	orderTypes := []string{"dine_in", "takeout", "delivery"}
	vatRate := dec("0.12")
	receipt := 1000

	today := domain.SingleDay(now, loc).Start()
	for day := 6; day >= 0; day-- {
		date := today.AddDate(0, 0, -day)
		shift := domain.Shift{
			ID:           xid.New("shift"),
			StoreID:      storeID,
			TerminalID:   "T1",
			UserID:       users[1].ID,
			StartTime:    date.Add(8 * time.Hour).UTC(),
			StartingCash: dec("5000"),
			Status:       domain.ShiftStatusActive,
		}
		if day > 0 {
			end := date.Add(20 * time.Hour).UTC()
			ending := dec("5000")
			shift.EndTime = &end
			shift.EndingCash = &ending
			shift.Status = domain.ShiftStatusClosed
		}

		for n := 0; n < 6+day%3; n++ {
			p := products[(n+day)%len(products)]
			side := products[3]
			qty := 1 + n%2
			lines := []domain.LineItem{
				{ProductID: p.ID, Name: p.Name, Quantity: qty, Price: p.Price, Total: p.Price.Mul(decimal.NewFromInt(int64(qty)))},
				{ProductID: side.ID, Name: side.Name, Quantity: 1, Price: side.Price, Total: side.Price},
			}
			subtotal := lines[0].Total.Add(lines[1].Total)
			discountType := discounts[(n+day)%len(discounts)]
			discount := decimal.Zero
			if discountType != "" {
				discount = subtotal.Mul(dec("0.20")).Round(2)
			}
			vatable := subtotal.Sub(discount)
			tax := vatable.Sub(vatable.Div(decimal.NewFromInt(1).Add(vatRate))).Round(2)
			cashier := users[1+n%2].ID
			createdAt := date.Add(time.Duration(9+n) * time.Hour).Add(time.Duration(7*n) * time.Minute)
			receipt++

			tx := domain.Transaction{
				ID:            xid.New("tx"),
				StoreID:       storeID,
				TerminalID:    "T1",
				UserID:        cashier,
				ShiftID:       shift.ID,
				CreatedAt:     createdAt.UTC(),
				Subtotal:      subtotal,
				Tax:           tax,
				Discount:      discount,
				DiscountType:  discountType,
				Total:         vatable,
				PaymentMethod: methods[(n+day)%len(methods)],
				ReceiptNumber: fmt.Sprintf("%08d", receipt),
				Items:         lines,
				Status:        domain.TxStatusCompleted,
				OrderType:     orderTypes[n%len(orderTypes)],
				VATSales:      vatable.Sub(tax),
			}
			if tx.OrderType == "delivery" {
				tx.DeliveryPlatform = "grabfood"
			}
			switch discountType {
			case "senior":
				tx.SeniorDiscount = discount
				tx.VATExemptSales = vatable
				tx.VATSales = decimal.Zero
				tx.Tax = decimal.Zero
			case "pwd":
				tx.PWDDiscount = discount
			}
			if n == 4 && day%2 == 0 {
				tx.Status = domain.TxStatusVoided
			}
			s.AddTransactions(tx)
		}
		s.AddShifts(shift)

		if day == 0 {
			s.AddPayouts(domain.Payout{
				ID:         xid.New("payout"),
				StoreID:    storeID,
				TerminalID: "T1",
				Amount:     dec("350"),
				Reason:     "ice delivery",
				CreatedAt:  date.Add(11 * time.Hour).UTC(),
			})
		}
	}

	return s, nil
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func (s *Store) AddTransactions(txs ...domain.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range txs {
		s.transactions[tx.ID] = cloneTransaction(tx)
	}
}

func (s *Store) AddShifts(shifts ...domain.Shift) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, shift := range shifts {
		s.shiftsByID[shift.ID] = shift
	}
}

func (s *Store) AddProducts(products ...domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range products {
		s.products[p.ID] = p
	}
}

func (s *Store) SetStock(storeID string, productID string, qty int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stock[storeID] == nil {
		s.stock[storeID] = make(map[string]int)
	}
	s.stock[storeID][productID] = qty
}

func (s *Store) AddUsers(users ...domain.UserAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range users {
		s.usersByID[u.ID] = u
		s.usersByUsername[strings.ToLower(u.Username)] = u.ID
	}
}

func (s *Store) AddPayouts(payouts ...domain.Payout) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payouts = append(s.payouts, payouts...)
}

func (s *Store) TransactionsByDate(_ context.Context, storeID string, rng domain.DateRange, status string) ([]domain.Transaction, error) {
	return s.filterTransactions(storeID, status, rng.ContainsDate), nil
}

func (s *Store) TransactionsByTimestamp(_ context.Context, storeID string, start time.Time, end time.Time, status string) ([]domain.Transaction, error) {
	return s.filterTransactions(storeID, status, func(at time.Time) bool {
		return !at.Before(start) && !at.After(end)
	}), nil
}

func (s *Store) filterTransactions(storeID string, status string, match func(time.Time) bool) []domain.Transaction {
	if status == "" {
		status = domain.TxStatusCompleted
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Transaction, 0, 32)
	for _, tx := range s.transactions {
		if tx.Status != status {
			continue
		}
		if storeID != "" && tx.StoreID != storeID {
			continue
		}
		if !match(tx.CreatedAt) {
			continue
		}
		result = append(result, cloneTransaction(tx))
	}
	slices.SortFunc(result, func(a, b domain.Transaction) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return result
}

func (s *Store) RecentTransactions(_ context.Context, status string, before *store.Cursor, limit int) ([]domain.Transaction, error) {
	if status == "" {
		status = domain.TxStatusCompleted
	}
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Transaction, 0, limit)
	for _, tx := range s.transactions {
		if tx.Status != status {
			continue
		}
		if before != nil && before.After(tx) {
			continue
		}
		result = append(result, cloneTransaction(tx))
	}
	slices.SortFunc(result, func(a, b domain.Transaction) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ListShifts(_ context.Context, storeID string, start time.Time, end time.Time) ([]domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Shift, 0, 16)
	for _, shift := range s.shiftsByID {
		if storeID != "" && shift.StoreID != storeID {
			continue
		}
		if shift.StartTime.Before(start) || shift.StartTime.After(end) {
			continue
		}
		result = append(result, shift)
	}
	slices.SortFunc(result, func(a, b domain.Shift) int {
		if c := a.StartTime.Compare(b.StartTime); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return result, nil
}

func (s *Store) GetActiveShift(_ context.Context, storeID string, terminalID string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *domain.Shift
	for _, shift := range s.shiftsByID {
		if shift.Status != domain.ShiftStatusActive || shift.StoreID != storeID {
			continue
		}
		if terminalID != "" && shift.TerminalID != terminalID {
			continue
		}
		if found == nil || shift.StartTime.After(found.StartTime) {
			copied := shift
			found = &copied
		}
	}
	if found == nil {
		return nil, store.ErrNotFound
	}
	return found, nil
}

func (s *Store) CloseShift(_ context.Context, shiftID string, endingCash decimal.Decimal, closedAt time.Time) (*domain.Shift, error) {
	if strings.TrimSpace(shiftID) == "" {
		return nil, store.ErrInvalidInput
	}
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	shift, ok := s.shiftsByID[shiftID]
	if !ok || shift.Status != domain.ShiftStatusActive {
		return nil, store.ErrNotFound
	}
	at := closedAt.UTC()
	cash := endingCash
	shift.Status = domain.ShiftStatusClosed
	shift.EndTime = &at
	shift.EndingCash = &cash
	s.shiftsByID[shiftID] = shift

	copied := shift
	return &copied, nil
}

func (s *Store) ListProducts(_ context.Context, storeID string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if storeID != "" && p.StoreID != storeID {
			continue
		}
		result = append(result, p)
	}
	slices.SortFunc(result, func(a, b domain.Product) int {
		return strings.Compare(a.Name, b.Name)
	})
	return result, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			result[id] = p
		}
	}
	return result, nil
}

func (s *Store) GetStockLevels(_ context.Context, storeID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]int, 32)
	for sid, levels := range s.stock {
		if storeID != "" && sid != storeID {
			continue
		}
		for productID, qty := range levels {
			result[productID] += qty
		}
	}
	return result, nil
}

func (s *Store) GetUsersByIDs(_ context.Context, ids []string) (map[string]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.User, len(ids))
	for _, id := range ids {
		if u, ok := s.usersByID[id]; ok {
			result[id] = u.User
		}
	}
	return result, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usersByUsername[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return nil, store.ErrNotFound
	}
	user := s.usersByID[id]
	return &user, nil
}

func (s *Store) ListPayouts(_ context.Context, storeID string, terminalID string, start time.Time, end time.Time) ([]domain.Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Payout, 0, 8)
	for _, p := range s.payouts {
		if storeID != "" && p.StoreID != storeID {
			continue
		}
		if terminalID != "" && p.TerminalID != terminalID {
			continue
		}
		if p.CreatedAt.Before(start) || p.CreatedAt.After(end) {
			continue
		}
		result = append(result, p)
	}
	return result, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if storeID != "" && entry.StoreID != storeID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func cloneTransaction(src domain.Transaction) domain.Transaction {
	dst := src
	dst.Items = slices.Clone(src.Items)
	return dst
}
