package report

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"posreports/backend/internal/domain"
	"posreports/backend/internal/store"
)

type Strategy string

const (
	StrategyExactDate      Strategy = "exact_date"
	StrategyTimestampRange Strategy = "timestamp_range"
	StrategyManualFilter   Strategy = "manual_filter"
)

// ErrLoadFailed wraps the last strategy error when every strategy failed.
var ErrLoadFailed = errors.New("failed to load transactions")

const (
	DefaultPageSize = 100
	DefaultMaxPages = 20
)

// Outcome is the tri-state result of a single strategy attempt.
type Outcome string

const (
	OutcomeRows  Outcome = "rows"
	OutcomeEmpty Outcome = "empty"
	OutcomeError Outcome = "error"
)

// Query is what a caller asks the resolver for. Status defaults to completed.
type Query struct {
	Scope  domain.StoreScope
	Range  domain.DateRange
	Status string
}

type Attempt struct {
	Strategy Strategy `json:"strategy"`
	Outcome  Outcome  `json:"outcome"`
	Rows     int      `json:"rows"`
	Err      string   `json:"error,omitempty"`
}

// Diagnostics records how a result was obtained. It is for operators only.
type Diagnostics struct {
	Strategy  Strategy  `json:"strategy,omitempty"`
	Attempts  []Attempt `json:"attempts"`
	Truncated bool      `json:"truncated,omitempty"`
}

type ResolveResult struct {
	Transactions []domain.Transaction
	Diagnostics  Diagnostics
}

// StrategyObserver is notified after every strategy attempt.
type StrategyObserver interface {
	ObserveStrategy(strategy string, outcome string)
}

type ResolverOptions struct {
	PageSize int
	MaxPages int
	Logger   zerolog.Logger
	Observer StrategyObserver
}

type strategyResult struct {
	txs       []domain.Transaction
	truncated bool
	err       error
}

func (r strategyResult) outcome() Outcome {
	switch {
	case r.err != nil:
		return OutcomeError
	case len(r.txs) == 0:
		return OutcomeEmpty
	default:
		return OutcomeRows
	}
}

type strategy struct {
	name Strategy
	run  func(ctx context.Context, q Query) strategyResult
}

// Resolver fetches transactions for a store scope and date range, degrading
// from the strictest query shape to the loosest until one yields rows.
type Resolver struct {
	source     store.TransactionSource
	pageSize   int
	maxPages   int
	logger     zerolog.Logger
	observer   StrategyObserver
	strategies []strategy
}

func NewResolver(source store.TransactionSource, opts ResolverOptions) *Resolver {
	if opts.PageSize < 1 {
		opts.PageSize = DefaultPageSize
	}
	if opts.MaxPages < 1 {
		opts.MaxPages = DefaultMaxPages
	}

	r := &Resolver{
		source:   source,
		pageSize: opts.PageSize,
		maxPages: opts.MaxPages,
		logger:   opts.Logger.With().Str("component", "resolver").Logger(),
		observer: opts.Observer,
	}
	r.strategies = []strategy{
		{name: StrategyExactDate, run: r.exactDate},
		{name: StrategyTimestampRange, run: r.timestampRange},
		{name: StrategyManualFilter, run: r.manualFilter},
	}
	return r
}

// Resolve runs the strategies in order and stops at the first one returning
// rows. Session expiry and context cancellation end the cascade at once.
// When every strategy fails the last error is returned. An all-empty cascade
// is a valid empty result.
func (r *Resolver) Resolve(ctx context.Context, q Query) (ResolveResult, error) {
	if q.Status == "" {
		q.Status = domain.TxStatusCompleted
	}

	var result ResolveResult
	result.Diagnostics.Attempts = make([]Attempt, 0, len(r.strategies))

	var lastErr error
	failures := 0
	for _, st := range r.strategies {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		res := st.run(ctx, q)
		outcome := res.outcome()
		attempt := Attempt{Strategy: st.name, Outcome: outcome, Rows: len(res.txs)}
		if res.truncated {
			result.Diagnostics.Truncated = true
		}
		r.observe(st.name, outcome)

		if res.err != nil {
			err := store.Classify(res.err)
			attempt.Err = err.Error()
			result.Diagnostics.Attempts = append(result.Diagnostics.Attempts, attempt)
			if store.IsTerminal(err) {
				return result, err
			}
			r.logger.Warn().Err(err).
				Str("strategy", string(st.name)).
				Str("store", q.Scope.String()).
				Str("from", q.Range.FromString()).
				Str("to", q.Range.ToString()).
				Msg("strategy failed, falling through")
			lastErr = err
			failures++
			continue
		}

		result.Diagnostics.Attempts = append(result.Diagnostics.Attempts, attempt)
		if outcome == OutcomeEmpty {
			continue
		}

		result.Transactions = res.txs
		result.Diagnostics.Strategy = st.name
		r.logger.Debug().
			Str("strategy", string(st.name)).
			Int("rows", len(res.txs)).
			Int("attempts", len(result.Diagnostics.Attempts)).
			Msg("transactions resolved")
		return result, nil
	}

	if failures == len(r.strategies) && lastErr != nil {
		return result, fmt.Errorf("%w: %w", ErrLoadFailed, lastErr)
	}
	result.Transactions = []domain.Transaction{}
	return result, nil
}

func (r *Resolver) observe(name Strategy, outcome Outcome) {
	if r.observer != nil {
		r.observer.ObserveStrategy(string(name), string(outcome))
	}
}

func (r *Resolver) exactDate(ctx context.Context, q Query) strategyResult {
	txs, err := r.source.TransactionsByDate(ctx, q.Scope.StoreID, q.Range, q.Status)
	return strategyResult{txs: byTerminal(txs, q.Scope), err: err}
}

func (r *Resolver) timestampRange(ctx context.Context, q Query) strategyResult {
	txs, err := r.source.TransactionsByTimestamp(ctx, q.Scope.StoreID, q.Range.Start(), q.Range.End(), q.Status)
	return strategyResult{txs: byTerminal(txs, q.Scope), err: err}
}

// manualFilter walks recent transactions newest first and keeps those whose
// business calendar date and store match. Paging stops once a page ends
// before the range, the source runs dry, or the page cap is hit. Hitting the
// cap while rows could still be in range marks the result truncated.
func (r *Resolver) manualFilter(ctx context.Context, q Query) strategyResult {
	matched := make([]domain.Transaction, 0, 32)
	from := q.Range.FromString()

	var before *store.Cursor
	for page := 0; page < r.maxPages; page++ {
		rows, err := r.source.RecentTransactions(ctx, q.Status, before, r.pageSize)
		if err != nil {
			return strategyResult{err: err}
		}
		for _, tx := range rows {
			if q.Range.ContainsDate(tx.CreatedAt) && q.Scope.Includes(tx) {
				matched = append(matched, tx)
			}
		}
		if len(rows) < r.pageSize {
			return strategyResult{txs: sortByCreated(matched)}
		}

		oldest := rows[len(rows)-1]
		if q.Range.DateOf(oldest.CreatedAt) < from {
			return strategyResult{txs: sortByCreated(matched)}
		}
		before = store.CursorOf(oldest)
	}

	r.logger.Warn().
		Str("store", q.Scope.String()).
		Str("from", from).
		Str("to", q.Range.ToString()).
		Int("page_size", r.pageSize).
		Int("max_pages", r.maxPages).
		Msg("manual filter reached page cap, older in-range transactions may be missing")
	return strategyResult{txs: sortByCreated(matched), truncated: true}
}

// byTerminal narrows rows to the scope's terminal. Store filtering already
// happened in the query.
func byTerminal(txs []domain.Transaction, scope domain.StoreScope) []domain.Transaction {
	if scope.TerminalID == "" || len(txs) == 0 {
		return txs
	}
	kept := make([]domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.TerminalID == scope.TerminalID {
			kept = append(kept, tx)
		}
	}
	return kept
}

func sortByCreated(txs []domain.Transaction) []domain.Transaction {
	slices.SortFunc(txs, func(a, b domain.Transaction) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return txs
}

// ErrorMessage turns an error into the text shown to operators. Details of
// internal failures are never included.
func ErrorMessage(err error) string {
	switch {
	case errors.Is(err, store.ErrSessionExpired):
		return "session expired, refresh and log in again"
	case errors.Is(err, ErrLoadFailed):
		return ErrLoadFailed.Error()
	default:
		return "internal server error"
	}
}
