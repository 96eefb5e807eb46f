package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"posreports/backend/internal/config"
	"posreports/backend/internal/httpapi"
	"posreports/backend/internal/ledger"
	"posreports/backend/internal/logging"
	"posreports/backend/internal/observability"
	"posreports/backend/internal/report"
	"posreports/backend/internal/service"
	"posreports/backend/internal/store"
	"posreports/backend/internal/store/memory"
	pgstore "posreports/backend/internal/store/postgres"
)

var rootCmd = &cobra.Command{
	Use:   "posreports",
	Short: "POS back-office reporting server",
	Long: `posreports serves sales, tax and cashier reports for a point-of-sale
back office, including the X-Reading and Z-Reading terminal reports.

Configuration is read from the environment (and a .env file when present).`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app holds the wired dependencies shared by every subcommand.
type app struct {
	cfg     config.Config
	logger  zerolog.Logger
	repo    store.Repository
	service *service.Service
	metrics *observability.Metrics
	closers []func() error
}

func (a *app) close() {
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			a.logger.Warn().Err(err).Msg("close error")
		}
	}
}

func loadConfig() (config.Config, zerolog.Logger, error) {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return config.Config{}, zerolog.Nop(), fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return cfg, logger, nil
}

func buildApp(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, metrics: observability.NewMetrics()}

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL, cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback: %w", err)
		}
		a.repo = pg
		a.closers = append(a.closers, pg.Close)
		logger.Info().Str("repository", "postgres").Msg("repository ready")
	} else {
		seeded, err := memory.NewSeeded(logging.Component(logger, "seed"), cfg.StoreID, time.Now(), loc)
		if err != nil {
			return nil, fmt.Errorf("seed in-memory store: %w", err)
		}
		a.repo = seeded
		logger.Info().Str("repository", "memory").Msg("repository ready")
	}

	var zledger ledger.ZReadingLedger = ledger.NewMemoryLedger()
	if cfg.RedisAddr != "" {
		redisLedger := ledger.NewRedisLedger(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisLedger.Ping(ctx); err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, using in-process z-reading ledger")
			_ = redisLedger.Close()
		} else {
			zledger = redisLedger
			a.closers = append(a.closers, redisLedger.Close)
			logger.Info().Str("ledger", "redis").Msg("z-reading ledger ready")
		}
	}

	resolver := report.NewResolver(a.repo, report.ResolverOptions{
		PageSize: cfg.FallbackPageSize,
		MaxPages: cfg.FallbackMaxPages,
		Logger:   logging.Component(logger, "resolver"),
		Observer: a.metrics,
	})
	a.service = service.New(a.repo, resolver, zledger, service.Options{
		DefaultStoreID:    cfg.StoreID,
		Location:          loc,
		TopProducts:       cfg.TopProductsLimit,
		LowStockThreshold: cfg.LowStockThreshold,
		OperatingExpenses: cfg.OperatingExpenses,
		ZReadingTTL:       cfg.ZReadingLockTTL,
		Logger:            logging.Component(logger, "service"),
		Observer:          a.metrics,
	})
	return a, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if err := validateSecurityConfig(cfg); err != nil {
		return fmt.Errorf("invalid security configuration: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL, a.repo)
	api := httpapi.New(a.service, auth, httpapi.Options{
		AllowedOrigin:    cfg.AllowedOrigin,
		Metrics:          a.metrics,
		Logger:           logging.Component(logger, "http"),
		LoginPerMinute:   cfg.LoginPerMinute,
		ReportsPerMinute: cfg.ReportsPerMinute,
		Development:      cfg.Development,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Address()).Msg("posreports listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}
