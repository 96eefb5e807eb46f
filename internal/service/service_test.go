package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"posreports/backend/internal/domain"
	"posreports/backend/internal/ledger"
	"posreports/backend/internal/report"
	"posreports/backend/internal/store"
	"posreports/backend/internal/store/memory"
)

var manila = time.FixedZone("PHT", 8*3600)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func cash(v string) *decimal.Decimal {
	amount := d(v)
	return &amount
}

func at(hour int, minute int) time.Time {
	return time.Date(2024, 1, 15, hour, minute, 0, 0, manila)
}

type zreadingCounter struct {
	results map[string]int
}

func (c *zreadingCounter) ObserveZReading(result string) {
	if c.results == nil {
		c.results = make(map[string]int)
	}
	c.results[result]++
}

func newTestService(t *testing.T) (*Service, *memory.Store, *zreadingCounter) {
	t.Helper()

	repo := memory.New()
	repo.AddUsers(
		domain.UserAccount{User: domain.User{ID: "user-admin", Name: "Store Admin", Username: "admin", Role: domain.RoleAdmin}, Active: true},
		domain.UserAccount{User: domain.User{ID: "user-maria", Name: "Maria Santos", Username: "maria", Role: domain.RoleCashier}, Active: true},
		domain.UserAccount{User: domain.User{ID: "user-jose", Name: "Jose Reyes", Username: "jose", Role: domain.RoleCashier}, Active: true},
	)
	repo.AddProducts(
		domain.Product{ID: "P1", StoreID: "S1", Name: "Chicken Adobo Meal", Category: "Meals", Cost: d("60"), Price: d("100"), ReorderLevel: 5},
		domain.Product{ID: "P2", StoreID: "S1", Name: "Halo-Halo", Category: "Desserts", Cost: d("30"), Price: d("50"), ReorderLevel: 5},
	)
	repo.SetStock("S1", "P1", 3)
	repo.SetStock("S1", "P2", 40)
	repo.AddShifts(
		domain.Shift{ID: "shift-1", StoreID: "S1", TerminalID: "T1", UserID: "user-maria", StartTime: at(8, 0), StartingCash: d("5000"), Status: domain.ShiftStatusActive},
		domain.Shift{ID: "shift-2", StoreID: "S1", TerminalID: "T2", UserID: "user-jose", StartTime: at(9, 0), StartingCash: d("2000"), Status: domain.ShiftStatusActive},
	)
	repo.AddTransactions(
		domain.Transaction{
			ID: "tx-1", StoreID: "S1", TerminalID: "T1", UserID: "user-maria", ShiftID: "shift-1",
			CreatedAt: at(10, 0), Subtotal: d("200"), Tax: d("21.43"), Total: d("200"),
			PaymentMethod: "cash", ReceiptNumber: "0001", Status: domain.TxStatusCompleted,
			Items: []domain.LineItem{{ProductID: "P1", Name: "Chicken Adobo Meal", Quantity: 2, Price: d("100"), Total: d("200")}},
		},
		domain.Transaction{
			ID: "tx-2", StoreID: "S1", TerminalID: "T1", UserID: "user-maria", ShiftID: "shift-1",
			CreatedAt: at(12, 30), Subtotal: d("150"), Tax: d("16.07"), Total: d("150"),
			PaymentMethod: "gcash", ReceiptNumber: "0002", Status: domain.TxStatusCompleted,
			Items: []domain.LineItem{{ProductID: "P2", Name: "Halo-Halo", Quantity: 3, Price: d("50"), Total: d("150")}},
		},
		domain.Transaction{
			ID: "tx-3", StoreID: "S1", TerminalID: "T1", UserID: "user-maria", ShiftID: "shift-1",
			CreatedAt: at(13, 0), Subtotal: d("100"), Total: d("100"),
			PaymentMethod: "cash", ReceiptNumber: "0003", Status: domain.TxStatusVoided,
		},
		domain.Transaction{
			ID: "tx-other-store", StoreID: "S2", TerminalID: "T1", UserID: "user-jose",
			CreatedAt: at(11, 0), Subtotal: d("999"), Total: d("999"),
			PaymentMethod: "card", ReceiptNumber: "9001", Status: domain.TxStatusCompleted,
		},
	)
	repo.AddPayouts(domain.Payout{ID: "payout-1", StoreID: "S1", TerminalID: "T1", Amount: d("50"), Reason: "ice", CreatedAt: at(14, 0)})

	counter := &zreadingCounter{}
	resolver := report.NewResolver(repo, report.ResolverOptions{Logger: zerolog.Nop()})
	svc := New(repo, resolver, ledger.NewMemoryLedger(), Options{
		DefaultStoreID:    "S1",
		Location:          manila,
		OperatingExpenses: d("40"),
		LowStockThreshold: 10,
		Logger:            zerolog.Nop(),
		Observer:          counter,
		Now:               func() time.Time { return at(18, 0) },
	})
	return svc, repo, counter
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{UserID: "user-admin", Username: "admin", Role: domain.RoleAdmin})
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{UserID: "user-maria", Username: "maria", Role: domain.RoleCashier})
}

func TestSalesReportScopesToStore(t *testing.T) {
	svc, _, _ := newTestService(t)

	env, err := svc.SalesReport(context.Background(), ReportRequest{StoreID: "S1", From: "2024-01-15"})
	require.NoError(t, err)
	require.Equal(t, report.KindSales, env.Kind)
	require.NotNil(t, env.Diagnostics)
	require.Equal(t, report.StrategyExactDate, env.Diagnostics.Strategy)

	sales, ok := env.Data.(*report.SalesReport)
	require.True(t, ok)
	require.True(t, d("350").Equal(sales.TotalSales))
	require.Equal(t, 2, sales.TotalTransactions)
}

func TestSalesReportAcrossAllStores(t *testing.T) {
	svc, _, _ := newTestService(t)

	env, err := svc.SalesReport(context.Background(), ReportRequest{StoreID: "all", From: "2024-01-15", To: "2024-01-15"})
	require.NoError(t, err)
	sales := env.Data.(*report.SalesReport)
	require.True(t, d("1349").Equal(sales.TotalSales))
	require.Equal(t, 3, sales.TotalTransactions)
}

func TestSalesReportWithoutDataHasNilData(t *testing.T) {
	svc, _, _ := newTestService(t)

	env, err := svc.SalesReport(context.Background(), ReportRequest{StoreID: "S1", From: "2024-02-01"})
	require.NoError(t, err)
	require.Nil(t, env.Data)
	require.Len(t, env.Diagnostics.Attempts, 3)
}

func TestReportRejectsReversedRange(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.VATReport(context.Background(), ReportRequest{StoreID: "S1", From: "2024-01-16", To: "2024-01-15"})
	require.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestReportDefaultsToToday(t *testing.T) {
	svc, _, _ := newTestService(t)

	env, err := svc.VATReport(context.Background(), ReportRequest{})
	require.NoError(t, err)
	vat := env.Data.(*report.VATReport)
	require.Len(t, vat.Rows, 2)
}

func TestProfitLossUsesCatalogCostAndExpenses(t *testing.T) {
	svc, _, _ := newTestService(t)

	env, err := svc.ProfitLossReport(context.Background(), ReportRequest{StoreID: "S1", From: "2024-01-15"})
	require.NoError(t, err)
	pl := env.Data.(*report.ProfitLossReport)
	require.True(t, d("350").Equal(pl.Revenue))
	require.True(t, d("210").Equal(pl.Cost))
	require.True(t, d("140").Equal(pl.GrossProfit))
	require.True(t, d("100").Equal(pl.NetProfit))
}

func TestDailySummaryCountsVoids(t *testing.T) {
	svc, _, _ := newTestService(t)

	env, err := svc.DailySummary(context.Background(), "S1", "2024-01-15")
	require.NoError(t, err)
	summary := env.Data.(*report.DailySummary)
	require.Equal(t, 2, summary.Transactions)
	require.Equal(t, 1, summary.VoidedTransactions)
	require.True(t, d("100").Equal(summary.VoidedAmount))
}

func TestInventoryRequiresSingleStore(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.InventoryReport(context.Background(), ReportRequest{StoreID: "all", From: "2024-01-15"})
	require.ErrorIs(t, err, store.ErrInvalidInput)

	env, err := svc.InventoryReport(context.Background(), ReportRequest{StoreID: "S1", From: "2024-01-15"})
	require.NoError(t, err)
	inv := env.Data.(*report.InventoryReport)
	require.Equal(t, 1, inv.LowStockCount)
	require.Equal(t, "P1", inv.Items[0].ProductID)
	require.Equal(t, 2, inv.Items[0].UnitsSold)
}

func TestCashierReportKeepsShiftOnlyCashiers(t *testing.T) {
	svc, _, _ := newTestService(t)

	env, err := svc.CashierReport(context.Background(), ReportRequest{StoreID: "S1", From: "2024-01-15"})
	require.NoError(t, err)
	rep := env.Data.(*report.CashierReport)
	require.Len(t, rep.Cashiers, 1)
	require.Equal(t, "Maria Santos", rep.Cashiers[0].Name)
	require.Len(t, rep.Attendance, 2)
	require.Equal(t, "Jose Reyes", rep.Attendance[1].Name)
	require.True(t, d("9").Equal(rep.Attendance[1].HoursWorked))
}

func TestXReadingHasNoSideEffects(t *testing.T) {
	svc, repo, _ := newTestService(t)

	env, err := svc.XReading(cashierCtx(), ReadingRequest{StoreID: "S1", TerminalID: "T1", Date: "2024-01-15"})
	require.NoError(t, err)
	x := env.Data.(report.XReading)
	require.Equal(t, 2, x.TransactionCount)
	require.Equal(t, report.ShiftStatusActive, x.ShiftStatus)
	require.Equal(t, "maria", x.GeneratedBy)

	shift, err := repo.GetActiveShift(context.Background(), "S1", "T1")
	require.NoError(t, err)
	require.Equal(t, "shift-1", shift.ID)
}

func TestXReadingRejectsAllStores(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.XReading(context.Background(), ReadingRequest{StoreID: "all", Date: "2024-01-15"})
	require.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestGenerateZReadingClosesShiftOnce(t *testing.T) {
	svc, repo, counter := newTestService(t)
	ctx := cashierCtx()
	req := domain.ZReadingRequest{StoreID: "S1", TerminalID: "T1", Date: "2024-01-15", ActualCash: cash("5100")}

	env, err := svc.GenerateZReading(ctx, req)
	require.NoError(t, err)
	z := env.Data.(report.ZReading)
	require.NotEmpty(t, z.ID)
	require.True(t, d("200").Equal(z.CashSales))
	require.True(t, d("5150").Equal(z.ExpectedCash))
	require.True(t, d("-50").Equal(z.CashVariance))

	_, err = repo.GetActiveShift(context.Background(), "S1", "T1")
	require.ErrorIs(t, err, store.ErrNotFound)
	other, err := repo.GetActiveShift(context.Background(), "S1", "T2")
	require.NoError(t, err)
	require.Equal(t, "shift-2", other.ID)

	logs, err := svc.ListAuditLogs(context.Background(), "S1", "2024-01-15", 10)
	require.NoError(t, err)
	actions := make([]string, 0, len(logs))
	for _, entry := range logs {
		actions = append(actions, entry.Action)
	}
	require.Contains(t, actions, "zreading_generate")
	require.Contains(t, actions, "shift_close")

	_, err = svc.GenerateZReading(ctx, req)
	require.ErrorIs(t, err, ErrZReadingAlreadyGenerated)
	var dup *DuplicateZReadingError
	require.ErrorAs(t, err, &dup)
	require.Equal(t, z.ID, dup.ReadingID)

	req.Force = true
	_, err = svc.GenerateZReading(ctx, req)
	require.ErrorIs(t, err, ErrAdminRequired)

	_, err = svc.GenerateZReading(adminCtx(), req)
	require.NoError(t, err)

	require.Equal(t, 2, counter.results["generated"])
	require.Equal(t, 2, counter.results["duplicate"])
}

func TestGenerateZReadingWithoutActiveShift(t *testing.T) {
	svc, _, _ := newTestService(t)

	env, err := svc.GenerateZReading(adminCtx(), domain.ZReadingRequest{StoreID: "S1", TerminalID: "T9", Date: "2024-01-15", ActualCash: cash("0")})
	require.NoError(t, err)
	z := env.Data.(report.ZReading)
	require.Equal(t, report.ShiftStatusNoActive, z.ShiftStatus)
	require.Equal(t, 0, z.TransactionCount)
	require.True(t, z.CashVariance.IsZero())
}

func TestGenerateZReadingRejectsNegativeCash(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.GenerateZReading(adminCtx(), domain.ZReadingRequest{StoreID: "S1", TerminalID: "T1", Date: "2024-01-15", ActualCash: cash("-1")})
	require.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestGenerateZReadingRequiresActualCash(t *testing.T) {
	svc, repo, _ := newTestService(t)

	_, err := svc.GenerateZReading(cashierCtx(), domain.ZReadingRequest{StoreID: "S1", TerminalID: "T1", Date: "2024-01-15"})
	require.ErrorIs(t, err, store.ErrInvalidInput)

	active, err := repo.GetActiveShift(context.Background(), "S1", "T1")
	require.NoError(t, err)
	require.Equal(t, "shift-1", active.ID)

	_, err = svc.GenerateZReading(cashierCtx(), domain.ZReadingRequest{StoreID: "S1", TerminalID: "T1", Date: "2024-01-15", ActualCash: cash("5150")})
	require.NoError(t, err)
}

// contendedLedger hands the key to another reading whenever it is released.
type contendedLedger struct {
	*ledger.MemoryLedger
}

func (l contendedLedger) Release(ctx context.Context, key ledger.Key) error {
	if err := l.MemoryLedger.Release(ctx, key); err != nil {
		return err
	}
	_, err := l.MemoryLedger.Reserve(ctx, key, "zr-other-admin", time.Hour)
	return err
}

func TestForcedZReadingLosingTheKeyIsADuplicate(t *testing.T) {
	svc, repo, counter := newTestService(t)
	svc.zledger = contendedLedger{MemoryLedger: ledger.NewMemoryLedger()}
	req := domain.ZReadingRequest{StoreID: "S1", TerminalID: "T2", Date: "2024-01-15", ActualCash: cash("2000")}

	_, err := svc.GenerateZReading(adminCtx(), req)
	require.NoError(t, err)
	repo.AddShifts(domain.Shift{ID: "shift-3", StoreID: "S1", TerminalID: "T2", UserID: "user-jose", StartTime: at(17, 0), StartingCash: d("1000"), Status: domain.ShiftStatusActive})

	req.Force = true
	_, err = svc.GenerateZReading(adminCtx(), req)
	var dup *DuplicateZReadingError
	require.ErrorAs(t, err, &dup)
	require.Equal(t, "zr-other-admin", dup.ReadingID)

	active, err := repo.GetActiveShift(context.Background(), "S1", "T2")
	require.NoError(t, err)
	require.Equal(t, "shift-3", active.ID)
	require.Equal(t, 1, counter.results["generated"])
	require.Equal(t, 1, counter.results["duplicate"])
}

func TestCloseShiftRequiresActiveShift(t *testing.T) {
	svc, _, _ := newTestService(t)

	resp, err := svc.CloseShift(adminCtx(), domain.ShiftCloseRequest{StoreID: "S1", TerminalID: "T2", EndingCash: d("2500")})
	require.NoError(t, err)
	require.Equal(t, domain.ShiftStatusClosed, resp.Shift.Status)
	require.NotNil(t, resp.Shift.EndingCash)
	require.True(t, d("2500").Equal(*resp.Shift.EndingCash))

	_, err = svc.CloseShift(adminCtx(), domain.ShiftCloseRequest{StoreID: "S1", TerminalID: "T2", EndingCash: d("2500")})
	require.ErrorIs(t, err, store.ErrNotFound)
}
