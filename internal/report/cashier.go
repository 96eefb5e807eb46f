package report

import (
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"posreports/backend/internal/domain"
)

type CashierPerformance struct {
	UserID             string          `json:"user_id"`
	Name               string          `json:"name"`
	Transactions       int             `json:"transactions"`
	TotalSales         decimal.Decimal `json:"total_sales"`
	AverageTransaction decimal.Decimal `json:"average_transaction"`
}

type HourlySales struct {
	Hour         int             `json:"hour"`
	Transactions int             `json:"transactions"`
	Sales        decimal.Decimal `json:"sales"`
}

type Attendance struct {
	ShiftID      string           `json:"shift_id"`
	UserID       string           `json:"user_id"`
	Name         string           `json:"name"`
	TerminalID   string           `json:"terminal_id"`
	StartTime    time.Time        `json:"start_time"`
	EndTime      *time.Time       `json:"end_time,omitempty"`
	StartingCash decimal.Decimal  `json:"starting_cash"`
	EndingCash   *decimal.Decimal `json:"ending_cash,omitempty"`
	Status       string           `json:"status"`
	PhotoURL     string           `json:"photo_url,omitempty"`
	HoursWorked  decimal.Decimal  `json:"hours_worked"`
}

type CashierReport struct {
	TotalSales        decimal.Decimal      `json:"total_sales"`
	TotalTransactions int                  `json:"total_transactions"`
	Cashiers          []CashierPerformance `json:"cashiers"`
	Hourly            []HourlySales        `json:"hourly"`
	Attendance        []Attendance         `json:"attendance"`
}

// AggregateCashiers builds the sales and attendance sections independently.
// A cashier with sales but no shift, or a shift but no sales, still appears
// in the section it belongs to. Returns nil only when there are neither
// transactions nor shifts. Open shifts are measured up to now.
func AggregateCashiers(txs []domain.Transaction, users map[string]domain.User, shifts []domain.Shift, loc *time.Location, now time.Time) *CashierReport {
	if len(txs) == 0 && len(shifts) == 0 {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}

	out := &CashierReport{
		Cashiers:   make([]CashierPerformance, 0, 8),
		Hourly:     make([]HourlySales, 24),
		Attendance: make([]Attendance, 0, len(shifts)),
	}
	for h := range out.Hourly {
		out.Hourly[h].Hour = h
	}

	byUser := make(map[string]*CashierPerformance)
	for _, tx := range txs {
		out.TotalSales = out.TotalSales.Add(tx.Total)
		out.TotalTransactions++

		cp, ok := byUser[tx.UserID]
		if !ok {
			cp = &CashierPerformance{UserID: tx.UserID, Name: CashierName(tx.UserID, users)}
			byUser[tx.UserID] = cp
		}
		cp.Transactions++
		cp.TotalSales = cp.TotalSales.Add(tx.Total)

		hour := tx.CreatedAt.In(loc).Hour()
		out.Hourly[hour].Transactions++
		out.Hourly[hour].Sales = out.Hourly[hour].Sales.Add(tx.Total)
	}

	for _, cp := range byUser {
		cp.AverageTransaction = average(cp.TotalSales, cp.Transactions)
		out.Cashiers = append(out.Cashiers, *cp)
	}
	slices.SortFunc(out.Cashiers, func(a, b CashierPerformance) int {
		if c := b.TotalSales.Cmp(a.TotalSales); c != 0 {
			return c
		}
		return strings.Compare(a.UserID, b.UserID)
	})

	for _, shift := range shifts {
		end := now
		if shift.EndTime != nil {
			end = *shift.EndTime
		}
		hours := decimal.Zero
		if end.After(shift.StartTime) {
			hours = decimal.NewFromFloat(end.Sub(shift.StartTime).Hours()).Round(2)
		}
		out.Attendance = append(out.Attendance, Attendance{
			ShiftID:      shift.ID,
			UserID:       shift.UserID,
			Name:         CashierName(shift.UserID, users),
			TerminalID:   shift.TerminalID,
			StartTime:    shift.StartTime.In(loc),
			EndTime:      localTime(shift.EndTime, loc),
			StartingCash: shift.StartingCash,
			EndingCash:   shift.EndingCash,
			Status:       shift.Status,
			PhotoURL:     shift.PhotoURL,
			HoursWorked:  hours,
		})
	}
	slices.SortFunc(out.Attendance, func(a, b Attendance) int {
		if c := a.StartTime.Compare(b.StartTime); c != 0 {
			return c
		}
		return strings.Compare(a.ShiftID, b.ShiftID)
	})

	return out
}

// CashierName resolves a display name, falling back to a short id label.
func CashierName(userID string, users map[string]domain.User) string {
	if u, ok := users[userID]; ok {
		if strings.TrimSpace(u.Name) != "" {
			return u.Name
		}
		if strings.TrimSpace(u.Username) != "" {
			return u.Username
		}
	}
	if userID == "" {
		return "Unassigned"
	}
	short := userID
	if len(short) > 8 {
		short = short[:8]
	}
	return "Cashier " + short
}

// UserIDs lists distinct cashier ids across transactions and shifts.
func UserIDs(txs []domain.Transaction, shifts []domain.Shift) []string {
	seen := make(map[string]struct{})
	ids := make([]string, 0, 8)
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for _, tx := range txs {
		add(tx.UserID)
	}
	for _, shift := range shifts {
		add(shift.UserID)
	}
	slices.Sort(ids)
	return ids
}

func localTime(t *time.Time, loc *time.Location) *time.Time {
	if t == nil {
		return nil
	}
	local := t.In(loc)
	return &local
}
