package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/unrolled/secure"

	"posreports/backend/internal/domain"
	"posreports/backend/internal/export"
	"posreports/backend/internal/observability"
	"posreports/backend/internal/report"
	"posreports/backend/internal/service"
	"posreports/backend/internal/store"
)

const (
	formatJSON = "json"
	formatCSV  = "csv"
	formatHTML = "html"
)

type Options struct {
	AllowedOrigin string
	Metrics       *observability.Metrics
	Logger        zerolog.Logger
	// LoginPerMinute and ReportsPerMinute cap requests per client IP.
	LoginPerMinute   int
	ReportsPerMinute int
	Development      bool
}

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	metrics       *observability.Metrics
	logger        zerolog.Logger
	validate      *validator.Validate
	secure        *secure.Secure
	loginLimit    int
	reportLimit   int
	handler       http.Handler
}

func New(svc *service.Service, auth *AuthManager, opts Options) *API {
	if opts.AllowedOrigin == "" {
		opts.AllowedOrigin = "http://127.0.0.1:3000"
	}
	if opts.LoginPerMinute < 1 {
		opts.LoginPerMinute = 5
	}
	if opts.ReportsPerMinute < 1 {
		opts.ReportsPerMinute = 120
	}
	a := &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: opts.AllowedOrigin,
		metrics:       opts.Metrics,
		logger:        opts.Logger.With().Str("component", "httpapi").Logger(),
		validate:      newValidator(),
		secure: secure.New(secure.Options{
			FrameDeny:             true,
			ContentTypeNosniff:    true,
			BrowserXssFilter:      true,
			ReferrerPolicy:        "strict-origin-when-cross-origin",
			ContentSecurityPolicy: "default-src 'self'; style-src 'self' 'unsafe-inline'",
			IsDevelopment:         opts.Development,
		}),
		loginLimit:  opts.LoginPerMinute,
		reportLimit: opts.ReportsPerMinute,
	}
	a.handler = a.routes()
	return a
}

// rangeQuery is shared by the range report endpoints.
type rangeQuery struct {
	StoreID string `validate:"max=64"`
	From    string `validate:"omitempty,datetime=2006-01-02"`
	To      string `validate:"omitempty,datetime=2006-01-02"`
	Format  string `validate:"omitempty,oneof=json csv"`
}

type readingQuery struct {
	StoreID    string `validate:"max=64"`
	TerminalID string `validate:"max=64"`
	Date       string `validate:"omitempty,datetime=2006-01-02"`
	Format     string `validate:"omitempty,oneof=json csv html"`
}

type rangeReportFunc func(ctx context.Context, req service.ReportRequest) (report.Envelope, error)

// Handler returns the router. Rate limiter state lives in it, so the same
// handler is returned on every call.
func (a *API) Handler() http.Handler {
	return a.handler
}

func (a *API) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(a.metrics.Middleware)
	r.Use(a.requestLogger)
	r.Use(a.secure.Handler)
	r.Use(a.withMiddleware)

	r.Get("/healthz", a.handleHealth)
	r.Method(http.MethodGet, "/metrics", a.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.With(a.limiter(a.loginLimit, "too many login attempts")).Post("/auth/login", a.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(a.limiter(a.reportLimit, "too many requests"))

			r.Get("/reports/sales", a.requireAuth(a.handleRangeReport(a.service.SalesReport), domain.RoleAdmin))
			r.Get("/reports/profit-loss", a.requireAuth(a.handleRangeReport(a.service.ProfitLossReport), domain.RoleAdmin))
			r.Get("/reports/vat", a.requireAuth(a.handleRangeReport(a.service.VATReport), domain.RoleAdmin))
			r.Get("/reports/cashiers", a.requireAuth(a.handleRangeReport(a.service.CashierReport), domain.RoleAdmin))
			r.Get("/reports/inventory", a.requireAuth(a.handleRangeReport(a.service.InventoryReport), domain.RoleAdmin))
			r.Get("/reports/daily", a.requireAuth(a.handleDailyReport, domain.RoleAdmin))
			r.Get("/reports/x-reading", a.requireAuth(a.handleXReading, domain.RoleCashier, domain.RoleAdmin))
			r.Post("/reports/z-reading", a.requireAuth(a.handleZReading, domain.RoleCashier, domain.RoleAdmin))
			r.Post("/shifts/close", a.requireAuth(a.handleShiftClose, domain.RoleCashier, domain.RoleAdmin))
			r.Get("/audit-logs", a.requireAuth(a.handleAuditLogs, domain.RoleAdmin))
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeMethodNotAllowed(w)
	})
	return r
}

func (a *API) limiter(limit int, message string) func(http.Handler) http.Handler {
	return httprate.Limit(limit, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusTooManyRequests, errors.New(message))
		}),
	)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("username and password are required"))
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrAccountInactive) {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		a.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleRangeReport(fn rangeReportFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		params := rangeQuery{
			StoreID: strings.TrimSpace(q.Get("store_id")),
			From:    strings.TrimSpace(q.Get("from")),
			To:      strings.TrimSpace(q.Get("to")),
			Format:  normalizeFormat(q.Get("format")),
		}
		if err := a.validate.Struct(params); err != nil {
			writeError(w, http.StatusBadRequest, validationError(err))
			return
		}

		env, err := fn(r.Context(), service.ReportRequest{StoreID: params.StoreID, From: params.From, To: params.To})
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		a.writeReport(w, env, params.Format, params.From)
	}
}

func (a *API) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := rangeQuery{
		StoreID: strings.TrimSpace(q.Get("store_id")),
		From:    strings.TrimSpace(q.Get("date")),
		Format:  normalizeFormat(q.Get("format")),
	}
	if err := a.validate.Struct(params); err != nil {
		writeError(w, http.StatusBadRequest, validationError(err))
		return
	}

	env, err := a.service.DailySummary(r.Context(), params.StoreID, params.From)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeReport(w, env, params.Format, params.From)
}

func (a *API) handleXReading(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := readingQuery{
		StoreID:    strings.TrimSpace(q.Get("store_id")),
		TerminalID: strings.TrimSpace(q.Get("terminal_id")),
		Date:       strings.TrimSpace(q.Get("date")),
		Format:     normalizeFormat(q.Get("format")),
	}
	if err := a.validate.Struct(params); err != nil {
		writeError(w, http.StatusBadRequest, validationError(err))
		return
	}

	env, err := a.service.XReading(r.Context(), service.ReadingRequest{
		StoreID:    params.StoreID,
		TerminalID: params.TerminalID,
		Date:       params.Date,
	})
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeReport(w, env, params.Format, params.Date)
}

func (a *API) handleZReading(w http.ResponseWriter, r *http.Request) {
	var req domain.ZReadingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationError(err))
		return
	}
	format := normalizeFormat(r.URL.Query().Get("format"))
	if err := a.validate.Var(format, "omitempty,oneof=json csv html"); err != nil {
		writeError(w, http.StatusBadRequest, validationError(err))
		return
	}

	env, err := a.service.GenerateZReading(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	if format == formatJSON {
		writeJSON(w, http.StatusCreated, env)
		return
	}
	a.writeReport(w, env, format, req.Date)
}

func (a *API) handleShiftClose(w http.ResponseWriter, r *http.Request) {
	var req domain.ShiftCloseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationError(err))
		return
	}

	resp, err := a.service.CloseShift(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	storeID := r.URL.Query().Get("store_id")
	date := r.URL.Query().Get("date")
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)

	logs, err := a.service.ListAuditLogs(r.Context(), storeID, date, limit)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (a *API) writeReport(w http.ResponseWriter, env report.Envelope, format string, date string) {
	if date == "" {
		date = time.Now().In(a.service.Location()).Format(domain.DateLayout)
	}
	filename := fmt.Sprintf("%s-%s", strings.ReplaceAll(string(env.Kind), "_", "-"), date)

	switch format {
	case formatCSV:
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename+".csv"))
		if err := export.WriteCSV(w, env); err != nil {
			a.logger.Error().Err(err).Str("kind", string(env.Kind)).Msg("csv export failed")
		}
	case formatHTML:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := export.WriteReadingHTML(w, env); err != nil {
			a.logger.Error().Err(err).Str("kind", string(env.Kind)).Msg("printable export failed")
		}
	default:
		writeJSON(w, http.StatusOK, env)
	}
}

// statusForError maps service and store errors onto HTTP statuses.
func statusForError(err error) int {
	switch {
	case errors.Is(err, store.ErrInvalidInput), errors.Is(err, domain.ErrInvalidDateRange):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrSessionExpired):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrAdminRequired):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrZReadingAlreadyGenerated):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	switch {
	case status == http.StatusUnauthorized:
		writeJSON(w, status, map[string]any{"error": report.ErrorMessage(err)})
	case status >= 500:
		a.logger.Error().Err(err).Int("status", status).Msg("request failed")
		writeJSON(w, status, map[string]any{"error": report.ErrorMessage(err)})
	case status == http.StatusConflict:
		body := map[string]any{"error": service.ErrZReadingAlreadyGenerated.Error()}
		var dup *service.DuplicateZReadingError
		if errors.As(err, &dup) && dup.ReadingID != "" {
			body["reading_id"] = dup.ReadingID
		}
		writeJSON(w, status, body)
	default:
		writeError(w, status, err)
	}
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		startedAt := time.Now()
		next.ServeHTTP(ww, r)
		a.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(startedAt)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

func normalizeFormat(raw string) string {
	format := strings.ToLower(strings.TrimSpace(raw))
	if format == "" {
		return formatJSON
	}
	return format
}

// newValidator reports fields by their JSON name when they have one.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := strings.ToLower(fe.Field())
		if field == "" {
			field = "value"
		}
		return fmt.Errorf("invalid %s", field)
	}
	return err
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

// writeError returns the error text for 4xx and a generic body for 5xx.
func writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
