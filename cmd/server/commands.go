package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"posreports/backend/internal/export"
	"posreports/backend/internal/report"
	"posreports/backend/internal/service"
	pgstore "posreports/backend/internal/store/postgres"
)

var reportCmd = &cobra.Command{
	Use:   "report <kind>",
	Short: "Print a report envelope without starting the server",
	Long: `Build one report against the configured repository and print it.

Supported kinds: sales, profit-loss, vat, cashiers, inventory, daily, x-reading.
Z-Readings close shifts and are only generated through the API.`,
	Example: `  # Today's sales for the default store
  posreports report sales

  # VAT breakdown for a month as CSV
  posreports report vat --from 2025-01-01 --to 2025-01-31 --format csv

  # X-Reading of one terminal
  posreports report x-reading --store S1 --terminal T1 --date 2025-01-15`,
	Args: cobra.ExactArgs(1),
	RunE: runReport,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the PostgreSQL schema",
	Long:  "Apply the reporting schema to DATABASE_URL. Statements are idempotent.",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(migrateCmd)

	reportCmd.Flags().String("store", "", "Store ID, or \"all\" (default: DEFAULT_STORE_ID)")
	reportCmd.Flags().String("terminal", "", "Terminal ID for x-reading (default: all terminals)")
	reportCmd.Flags().String("from", "", "Range start, YYYY-MM-DD (default: today)")
	reportCmd.Flags().String("to", "", "Range end, YYYY-MM-DD (default: from)")
	reportCmd.Flags().String("date", "", "Business date for daily and x-reading, YYYY-MM-DD (default: today)")
	reportCmd.Flags().String("format", "json", "Output format: json or csv")
}

func runReport(cmd *cobra.Command, args []string) error {
	storeID, _ := cmd.Flags().GetString("store")
	terminalID, _ := cmd.Flags().GetString("terminal")
	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")
	date, _ := cmd.Flags().GetString("date")
	format, _ := cmd.Flags().GetString("format")

	format = strings.ToLower(strings.TrimSpace(format))
	if format != "json" && format != "csv" {
		return fmt.Errorf("unsupported format %q", format)
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	rangeReq := service.ReportRequest{StoreID: storeID, From: from, To: to}
	var env report.Envelope
	switch strings.ToLower(args[0]) {
	case "sales":
		env, err = a.service.SalesReport(ctx, rangeReq)
	case "profit-loss":
		env, err = a.service.ProfitLossReport(ctx, rangeReq)
	case "vat":
		env, err = a.service.VATReport(ctx, rangeReq)
	case "cashiers":
		env, err = a.service.CashierReport(ctx, rangeReq)
	case "inventory":
		env, err = a.service.InventoryReport(ctx, rangeReq)
	case "daily":
		env, err = a.service.DailySummary(ctx, storeID, date)
	case "x-reading":
		env, err = a.service.XReading(ctx, service.ReadingRequest{StoreID: storeID, TerminalID: terminalID, Date: date})
	default:
		return fmt.Errorf("unknown report kind %q", args[0])
	}
	if err != nil {
		return err
	}
	if env.Diagnostics != nil && env.Diagnostics.Truncated {
		logger.Warn().Str("kind", string(env.Kind)).Msg("result truncated; older transactions may be missing")
	}
	return writeEnvelope(cmd.OutOrStdout(), env, format)
}

func writeEnvelope(w io.Writer, env report.Envelope, format string) error {
	if format == "csv" {
		return export.WriteCSV(w, env)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(env)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must be set to migrate")
	}

	ctx := cmd.Context()
	pg, err := pgstore.New(ctx, cfg.DatabaseURL, cfg.Timezone)
	if err != nil {
		return err
	}
	defer pg.Close()

	started := time.Now()
	if err := pg.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info().Dur("took", time.Since(started)).Msg("schema applied")
	return nil
}
