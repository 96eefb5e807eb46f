package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"posreports/backend/internal/domain"
	"posreports/backend/internal/ledger"
	"posreports/backend/internal/report"
	"posreports/backend/internal/store"
	"posreports/backend/internal/xid"
)

var (
	ErrZReadingAlreadyGenerated = errors.New("z-reading already generated for this business day")
	ErrAdminRequired            = errors.New("admin role required")
)

// DuplicateZReadingError reports the reading that already closed the day.
type DuplicateZReadingError struct {
	ReadingID string
}

func (e *DuplicateZReadingError) Error() string {
	if e.ReadingID == "" {
		return ErrZReadingAlreadyGenerated.Error()
	}
	return fmt.Sprintf("%s (reading %s)", ErrZReadingAlreadyGenerated, e.ReadingID)
}

func (e *DuplicateZReadingError) Unwrap() error {
	return ErrZReadingAlreadyGenerated
}

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// ZReadingObserver counts Z-Reading outcomes.
type ZReadingObserver interface {
	ObserveZReading(result string)
}

type Options struct {
	DefaultStoreID    string
	Location          *time.Location
	TopProducts       int
	LowStockThreshold int
	OperatingExpenses decimal.Decimal
	ZReadingTTL       time.Duration
	Logger            zerolog.Logger
	Observer          ZReadingObserver
	Now               func() time.Time
}

// ReportRequest is the common input of range reports. StoreID may be the
// "all" sentinel; To defaults to From and From defaults to today.
type ReportRequest struct {
	StoreID string
	From    string
	To      string
}

type ReadingRequest struct {
	StoreID    string
	TerminalID string
	Date       string
}

type Service struct {
	repo           store.Repository
	resolver       *report.Resolver
	zledger        ledger.ZReadingLedger
	defaultStoreID string
	loc            *time.Location
	topProducts    int
	lowStock       int
	expenses       decimal.Decimal
	zreadingTTL    time.Duration
	logger         zerolog.Logger
	observer       ZReadingObserver
	now            func() time.Time
}

func New(repo store.Repository, resolver *report.Resolver, zledger ledger.ZReadingLedger, opts Options) *Service {
	if opts.DefaultStoreID == "" {
		opts.DefaultStoreID = "main-store"
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.TopProducts < 1 {
		opts.TopProducts = report.DefaultTopProducts
	}
	if opts.LowStockThreshold < 0 {
		opts.LowStockThreshold = 0
	}
	if opts.ZReadingTTL <= 0 {
		opts.ZReadingTTL = 36 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if zledger == nil {
		zledger = ledger.NewMemoryLedger()
	}

	return &Service{
		repo:           repo,
		resolver:       resolver,
		zledger:        zledger,
		defaultStoreID: opts.DefaultStoreID,
		loc:            opts.Location,
		topProducts:    opts.TopProducts,
		lowStock:       opts.LowStockThreshold,
		expenses:       opts.OperatingExpenses,
		zreadingTTL:    opts.ZReadingTTL,
		logger:         opts.Logger.With().Str("component", "service").Logger(),
		observer:       opts.Observer,
		now:            opts.Now,
	}
}

func (s *Service) Location() *time.Location {
	return s.loc
}

func (s *Service) SalesReport(ctx context.Context, req ReportRequest) (report.Envelope, error) {
	scope, rng, err := s.scopeAndRange(req)
	if err != nil {
		return report.Envelope{}, err
	}
	res, err := s.resolve(ctx, scope, rng, domain.TxStatusCompleted)
	if err != nil {
		return report.Envelope{}, err
	}

	data := report.AggregateSales(res.Transactions, report.SalesOptions{TopProducts: s.topProducts, Location: s.loc})
	return wrap(report.KindSales, data, res.Diagnostics), nil
}

func (s *Service) ProfitLossReport(ctx context.Context, req ReportRequest) (report.Envelope, error) {
	scope, rng, err := s.scopeAndRange(req)
	if err != nil {
		return report.Envelope{}, err
	}
	res, err := s.resolve(ctx, scope, rng, domain.TxStatusCompleted)
	if err != nil {
		return report.Envelope{}, err
	}

	products := map[string]domain.Product{}
	if ids := report.ProductIDs(res.Transactions); len(ids) > 0 {
		products, err = s.repo.GetProductsByIDs(ctx, ids)
		if err != nil {
			return report.Envelope{}, store.Classify(err)
		}
	}

	data := report.AggregateProfitLoss(res.Transactions, products, report.ProfitLossOptions{
		Expenses: s.expenses,
		Location: s.loc,
	})
	return wrap(report.KindProfitLoss, data, res.Diagnostics), nil
}

func (s *Service) VATReport(ctx context.Context, req ReportRequest) (report.Envelope, error) {
	scope, rng, err := s.scopeAndRange(req)
	if err != nil {
		return report.Envelope{}, err
	}
	res, err := s.resolve(ctx, scope, rng, domain.TxStatusCompleted)
	if err != nil {
		return report.Envelope{}, err
	}
	return wrap(report.KindVAT, report.AggregateVAT(res.Transactions), res.Diagnostics), nil
}

// DailySummary resolves completed and voided sales of one business day. The
// diagnostics describe the completed set.
func (s *Service) DailySummary(ctx context.Context, storeID string, date string) (report.Envelope, error) {
	scope, rng, err := s.scopeAndRange(ReportRequest{StoreID: storeID, From: date, To: date})
	if err != nil {
		return report.Envelope{}, err
	}

	var completed, voided report.ResolveResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		completed, err = s.resolve(gctx, scope, rng, domain.TxStatusCompleted)
		return err
	})
	g.Go(func() error {
		var err error
		voided, err = s.resolve(gctx, scope, rng, domain.TxStatusVoided)
		return err
	})
	if err := g.Wait(); err != nil {
		return report.Envelope{}, err
	}

	data := report.AggregateDailySummary(completed.Transactions, voided.Transactions, rng.FromString(), s.loc)
	return wrap(report.KindDailySummary, data, completed.Diagnostics), nil
}

// InventoryReport needs a single store because stock levels are per store.
func (s *Service) InventoryReport(ctx context.Context, req ReportRequest) (report.Envelope, error) {
	scope, rng, err := s.scopeAndRange(req)
	if err != nil {
		return report.Envelope{}, err
	}
	if scope.All() {
		return report.Envelope{}, fmt.Errorf("%w: inventory requires a single store", store.ErrInvalidInput)
	}

	var (
		products []domain.Product
		stock    map[string]int
		res      report.ResolveResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		products, err = s.repo.ListProducts(gctx, scope.StoreID)
		return store.Classify(err)
	})
	g.Go(func() error {
		var err error
		stock, err = s.repo.GetStockLevels(gctx, scope.StoreID)
		return store.Classify(err)
	})
	g.Go(func() error {
		var err error
		res, err = s.resolve(gctx, scope, rng, domain.TxStatusCompleted)
		return err
	})
	if err := g.Wait(); err != nil {
		return report.Envelope{}, err
	}

	data := report.AggregateInventory(products, stock, res.Transactions, s.lowStock)
	return wrap(report.KindInventory, data, res.Diagnostics), nil
}

// CashierReport resolves transactions and loads shifts concurrently, then
// looks up every user appearing in either set.
func (s *Service) CashierReport(ctx context.Context, req ReportRequest) (report.Envelope, error) {
	scope, rng, err := s.scopeAndRange(req)
	if err != nil {
		return report.Envelope{}, err
	}

	var (
		res    report.ResolveResult
		shifts []domain.Shift
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		res, err = s.resolve(gctx, scope, rng, domain.TxStatusCompleted)
		return err
	})
	g.Go(func() error {
		var err error
		shifts, err = s.repo.ListShifts(gctx, scope.StoreID, rng.Start(), rng.End())
		return store.Classify(err)
	})
	if err := g.Wait(); err != nil {
		return report.Envelope{}, err
	}

	users := map[string]domain.User{}
	if ids := report.UserIDs(res.Transactions, shifts); len(ids) > 0 {
		users, err = s.repo.GetUsersByIDs(ctx, ids)
		if err != nil {
			return report.Envelope{}, store.Classify(err)
		}
	}

	data := report.AggregateCashiers(res.Transactions, users, shifts, s.loc, s.now())
	return wrap(report.KindCashier, data, res.Diagnostics), nil
}

// XReading is a read-only snapshot of the business day so far.
func (s *Service) XReading(ctx context.Context, req ReadingRequest) (report.Envelope, error) {
	in, err := s.loadReadingInputs(ctx, req)
	if err != nil {
		return report.Envelope{}, err
	}
	reading := report.ComputeXReading(in.txs, in.shifts, s.readingMeta(ctx, in))
	return report.Wrap(report.KindXReading, reading, &in.diag), nil
}

// GenerateZReading computes the closing reading and then closes the active
// shift with the counted cash. A day can be closed once per store and
// terminal; an admin may force a regeneration.
func (s *Service) GenerateZReading(ctx context.Context, req domain.ZReadingRequest) (report.Envelope, error) {
	if req.ActualCash == nil {
		return report.Envelope{}, fmt.Errorf("%w: actual_cash is required", store.ErrInvalidInput)
	}
	if req.ActualCash.IsNegative() {
		return report.Envelope{}, fmt.Errorf("%w: actual_cash must not be negative", store.ErrInvalidInput)
	}
	actualCash := *req.ActualCash
	actor, _ := ActorFromContext(ctx)

	in, err := s.loadReadingInputs(ctx, ReadingRequest{StoreID: req.StoreID, TerminalID: req.TerminalID, Date: req.Date})
	if err != nil {
		s.observeZReading("error")
		return report.Envelope{}, err
	}

	key := ledger.Key{StoreID: in.scope.StoreID, TerminalID: in.scope.TerminalID, Date: in.rng.FromString()}
	readingID := xid.New("zr")
	reserved, err := s.zledger.Reserve(ctx, key, readingID, s.zreadingTTL)
	if err != nil {
		s.observeZReading("error")
		return report.Envelope{}, fmt.Errorf("reserve z-reading: %w", err)
	}
	if !reserved {
		if !req.Force {
			s.observeZReading("duplicate")
			return report.Envelope{}, s.duplicateZReading(ctx, key)
		}
		if actor.Role != domain.RoleAdmin {
			s.observeZReading("duplicate")
			return report.Envelope{}, ErrAdminRequired
		}
		if err := s.zledger.Release(ctx, key); err != nil {
			s.observeZReading("error")
			return report.Envelope{}, fmt.Errorf("release z-reading: %w", err)
		}
		reserved, err = s.zledger.Reserve(ctx, key, readingID, s.zreadingTTL)
		if err != nil {
			s.observeZReading("error")
			return report.Envelope{}, fmt.Errorf("reserve z-reading: %w", err)
		}
		if !reserved {
			// Another forced regeneration won the key between release and reserve.
			s.observeZReading("duplicate")
			return report.Envelope{}, s.duplicateZReading(ctx, key)
		}
		s.logger.Warn().Str("key", key.String()).Str("actor", actor.Username).Msg("z-reading regenerated by force")
	}

	reading := report.ComputeZReading(in.txs, in.shifts, in.payouts, actualCash, s.readingMeta(ctx, in))
	reading.ID = readingID

	if reading.ShiftStatus == report.ShiftStatusActive {
		if _, err := s.CloseShift(ctx, domain.ShiftCloseRequest{
			StoreID:    in.scope.StoreID,
			TerminalID: in.scope.TerminalID,
			EndingCash: actualCash,
		}); err != nil && !errors.Is(err, store.ErrNotFound) {
			if relErr := s.zledger.Release(ctx, key); relErr != nil {
				s.logger.Warn().Err(relErr).Str("key", key.String()).Msg("failed to release z-reading reservation")
			}
			s.observeZReading("error")
			return report.Envelope{}, err
		}
	}

	s.logAudit(ctx, in.scope.StoreID, "zreading_generate", "zreading", reading.ID, fmt.Sprintf(
		"terminal=%s,date=%s,net_sales=%s,expected_cash=%s,actual_cash=%s,variance=%s,force=%t",
		defaultString(in.scope.TerminalID, "all"),
		reading.Date,
		reading.NetSales.StringFixed(2),
		reading.ExpectedCash.StringFixed(2),
		reading.ActualCash.StringFixed(2),
		reading.CashVariance.StringFixed(2),
		req.Force,
	))
	s.observeZReading("generated")
	s.logger.Info().
		Str("store", in.scope.StoreID).
		Str("terminal", in.scope.TerminalID).
		Str("date", reading.Date).
		Str("variance", reading.CashVariance.StringFixed(2)).
		Msg("z-reading generated")

	return report.Wrap(report.KindZReading, reading, &in.diag), nil
}

func (s *Service) duplicateZReading(ctx context.Context, key ledger.Key) error {
	existing, _, err := s.zledger.Lookup(ctx, key)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key.String()).Msg("z-reading lookup failed")
	}
	return &DuplicateZReadingError{ReadingID: existing}
}

// CloseShift closes the active shift of a terminal, or of the store when no
// terminal is given.
func (s *Service) CloseShift(ctx context.Context, req domain.ShiftCloseRequest) (domain.ShiftResponse, error) {
	if req.StoreID == "" {
		req.StoreID = s.defaultStoreID
	}
	if strings.EqualFold(req.StoreID, domain.AllStores) {
		return domain.ShiftResponse{}, fmt.Errorf("%w: store_id is required", store.ErrInvalidInput)
	}
	if req.EndingCash.IsNegative() {
		return domain.ShiftResponse{}, fmt.Errorf("%w: ending_cash must not be negative", store.ErrInvalidInput)
	}

	active, err := s.repo.GetActiveShift(ctx, req.StoreID, req.TerminalID)
	if err != nil {
		return domain.ShiftResponse{}, store.Classify(err)
	}
	closed, err := s.repo.CloseShift(ctx, active.ID, req.EndingCash, s.now().UTC())
	if err != nil {
		return domain.ShiftResponse{}, store.Classify(err)
	}
	s.logAudit(ctx, req.StoreID, "shift_close", "shift", closed.ID, fmt.Sprintf("ending_cash=%s", req.EndingCash.StringFixed(2)))

	return domain.ShiftResponse{Shift: *closed}, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, storeID string, date string, limit int) ([]domain.AuditLog, error) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = s.now().UTC().Add(-24 * time.Hour)
	} else {
		rng, err := domain.NewDateRange(date, date, s.loc)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
		}
		from = rng.Start()
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, storeID, from, to, limit)
}

type readingInputs struct {
	scope   domain.StoreScope
	rng     domain.DateRange
	txs     []domain.Transaction
	shifts  []domain.Shift
	payouts []domain.Payout
	diag    report.Diagnostics
}

func (s *Service) loadReadingInputs(ctx context.Context, req ReadingRequest) (readingInputs, error) {
	scope, rng, err := s.scopeAndRange(ReportRequest{StoreID: req.StoreID, From: req.Date, To: req.Date})
	if err != nil {
		return readingInputs{}, err
	}
	if scope.All() {
		return readingInputs{}, fmt.Errorf("%w: readings require a single store", store.ErrInvalidInput)
	}
	scope.TerminalID = strings.TrimSpace(req.TerminalID)

	in := readingInputs{scope: scope, rng: rng}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := s.resolve(gctx, scope, rng, domain.TxStatusCompleted)
		in.txs, in.diag = res.Transactions, res.Diagnostics
		return err
	})
	g.Go(func() error {
		shifts, err := s.repo.ListShifts(gctx, scope.StoreID, rng.Start(), rng.End())
		if err != nil {
			return store.Classify(err)
		}
		in.shifts = shiftsForTerminal(shifts, scope.TerminalID)
		return nil
	})
	g.Go(func() error {
		var err error
		in.payouts, err = s.repo.ListPayouts(gctx, scope.StoreID, scope.TerminalID, rng.Start(), rng.End())
		return store.Classify(err)
	})
	if err := g.Wait(); err != nil {
		return readingInputs{}, err
	}
	return in, nil
}

func (s *Service) readingMeta(ctx context.Context, in readingInputs) report.ReadingMeta {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system"}
	}
	return report.ReadingMeta{
		StoreID:     in.scope.StoreID,
		TerminalID:  in.scope.TerminalID,
		Date:        in.rng.FromString(),
		GeneratedAt: s.now().In(s.loc),
		GeneratedBy: actor.Username,
	}
}

func (s *Service) resolve(ctx context.Context, scope domain.StoreScope, rng domain.DateRange, status string) (report.ResolveResult, error) {
	return s.resolver.Resolve(ctx, report.Query{Scope: scope, Range: rng, Status: status})
}

// scopeAndRange applies the store default and parses dates in the business
// location. An empty from means today.
func (s *Service) scopeAndRange(req ReportRequest) (domain.StoreScope, domain.DateRange, error) {
	storeID := defaultString(req.StoreID, s.defaultStoreID)
	scope := domain.ParseStoreScope(storeID)

	if strings.TrimSpace(req.From) == "" {
		if strings.TrimSpace(req.To) != "" {
			return scope, domain.DateRange{}, fmt.Errorf("%w: from is required when to is set", store.ErrInvalidInput)
		}
		return scope, domain.SingleDay(s.now(), s.loc), nil
	}
	rng, err := domain.NewDateRange(req.From, req.To, s.loc)
	if err != nil {
		return scope, domain.DateRange{}, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	return scope, rng, nil
}

func (s *Service) observeZReading(result string) {
	if s.observer != nil {
		s.observer.ObserveZReading(result)
	}
}

func (s *Service) logAudit(ctx context.Context, storeID string, action string, entityType string, entityID string, detail string) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}

	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		StoreID:       storeID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now().UTC(),
	}); err != nil {
		s.logger.Warn().Err(err).
			Str("action", action).
			Str("entity", entityType+"/"+entityID).
			Msg("failed to write audit log")
	}
}

// wrap keeps a nil report pointer as a nil interface so the envelope
// encodes data as null.
func wrap[T any, P interface {
	*T
	report.Report
}](kind report.Kind, data P, diag report.Diagnostics) report.Envelope {
	if data == nil {
		return report.Wrap(kind, nil, &diag)
	}
	return report.Wrap(kind, data, &diag)
}

func shiftsForTerminal(shifts []domain.Shift, terminalID string) []domain.Shift {
	if terminalID == "" {
		return shifts
	}
	kept := make([]domain.Shift, 0, len(shifts))
	for _, shift := range shifts {
		if shift.TerminalID == terminalID {
			kept = append(kept, shift)
		}
	}
	return kept
}

func defaultString(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
