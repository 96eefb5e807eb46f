// Package export renders report envelopes as CSV downloads and printable
// HTML readings.
package export

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"posreports/backend/internal/report"
)

const (
	csvFlushEvery = 200
	csvBufferSize = 32 * 1024
)

type csvStreamer struct {
	buf          *bufio.Writer
	csv          *csv.Writer
	flushEvery   int
	pendingLines int
}

func newCSVStreamer(w io.Writer) *csvStreamer {
	buf := bufio.NewWriterSize(w, csvBufferSize)
	writer := csv.NewWriter(buf)
	writer.UseCRLF = true
	return &csvStreamer{buf: buf, csv: writer, flushEvery: csvFlushEvery}
}

func (s *csvStreamer) writeRow(row ...string) error {
	if err := s.csv.Write(row); err != nil {
		return err
	}
	s.pendingLines++
	if s.flushEvery > 0 && s.pendingLines >= s.flushEvery {
		return s.flush()
	}
	return nil
}

func (s *csvStreamer) writeRows(rows [][]string) error {
	for _, row := range rows {
		if err := s.writeRow(row...); err != nil {
			return err
		}
	}
	return nil
}

func (s *csvStreamer) blank() error {
	return s.writeRow("")
}

func (s *csvStreamer) flush() error {
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return err
	}
	if err := s.buf.Flush(); err != nil {
		return err
	}
	s.pendingLines = 0
	return nil
}

// WriteCSV writes the envelope's report. A report without data produces
// only the kind line.
func WriteCSV(w io.Writer, env report.Envelope) error {
	s := newCSVStreamer(w)
	if err := s.writeRow("report", string(env.Kind)); err != nil {
		return err
	}
	if env.Diagnostics != nil && env.Diagnostics.Truncated {
		if err := s.writeRow("warning", "older transactions may be missing"); err != nil {
			return err
		}
	}

	var err error
	switch data := env.Data.(type) {
	case nil:
	case *report.SalesReport:
		if data != nil {
			err = writeSales(s, data)
		}
	case *report.ProfitLossReport:
		if data != nil {
			err = writeProfitLoss(s, data)
		}
	case *report.VATReport:
		if data != nil {
			err = writeVAT(s, data)
		}
	case *report.CashierReport:
		if data != nil {
			err = writeCashiers(s, data)
		}
	case *report.DailySummary:
		if data != nil {
			err = writeDaily(s, data)
		}
	case *report.InventoryReport:
		if data != nil {
			err = writeInventory(s, data)
		}
	case report.XReading:
		err = writeReadingTotals(s, data.ReadingTotals)
	case report.ZReading:
		err = writeZReading(s, data)
	default:
		err = fmt.Errorf("export: unsupported report kind %q", env.Kind)
	}
	if err != nil {
		return err
	}
	return s.flush()
}

func writeSales(s *csvStreamer, r *report.SalesReport) error {
	if err := s.writeRows([][]string{
		{"summary", "total_sales", money(r.TotalSales)},
		{"summary", "total_transactions", strconv.Itoa(r.TotalTransactions)},
		{"summary", "average_transaction", money(r.AverageTransaction)},
	}); err != nil {
		return err
	}

	if err := section(s, "date", "amount", "transactions"); err != nil {
		return err
	}
	for _, row := range r.SalesByDate {
		if err := s.writeRow(row.Date, money(row.Amount), strconv.Itoa(row.Transactions)); err != nil {
			return err
		}
	}

	if err := section(s, "product_id", "name", "quantity", "revenue"); err != nil {
		return err
	}
	for _, row := range r.TopProducts {
		if err := s.writeRow(row.ProductID, row.Name, strconv.Itoa(row.Quantity), money(row.Revenue)); err != nil {
			return err
		}
	}
	return writePayments(s, r.PaymentMethods)
}

func writePayments(s *csvStreamer, payments []report.PaymentShare) error {
	if err := section(s, "payment_method", "amount", "transactions", "percentage"); err != nil {
		return err
	}
	for _, row := range payments {
		if err := s.writeRow(row.Method, money(row.Amount), strconv.Itoa(row.Transactions), percent(row.Percentage)); err != nil {
			return err
		}
	}
	return nil
}

func writeProfitLoss(s *csvStreamer, r *report.ProfitLossReport) error {
	if err := s.writeRows([][]string{
		{"summary", "revenue", money(r.Revenue)},
		{"summary", "cost", money(r.Cost)},
		{"summary", "gross_profit", money(r.GrossProfit)},
		{"summary", "expenses", money(r.Expenses)},
		{"summary", "net_profit", money(r.NetProfit)},
		{"summary", "cost_ratio", percent(r.CostRatio)},
		{"summary", "gross_margin", percent(r.GrossMargin)},
		{"summary", "net_margin", percent(r.NetMargin)},
	}); err != nil {
		return err
	}

	if err := section(s, "product_id", "name", "category", "quantity", "revenue", "cost", "profit", "margin"); err != nil {
		return err
	}
	for _, row := range r.Products {
		if err := s.writeRow(row.ProductID, row.Name, row.Category, strconv.Itoa(row.Quantity),
			money(row.Revenue), money(row.Cost), money(row.Profit), percent(row.Margin)); err != nil {
			return err
		}
	}

	if err := section(s, "date", "revenue", "cost", "profit"); err != nil {
		return err
	}
	for _, row := range r.Daily {
		if err := s.writeRow(row.Date, money(row.Revenue), money(row.Cost), money(row.Profit)); err != nil {
			return err
		}
	}
	return nil
}

func writeVAT(s *csvStreamer, r *report.VATReport) error {
	if err := s.writeRow("transaction_id", "receipt_number", "created_at", "subtotal", "discount",
		"vatable_sales", "vat_amount", "vat_exempt_sales", "zero_rated_sales", "total"); err != nil {
		return err
	}
	for _, row := range r.Rows {
		if err := s.writeRow(row.TransactionID, row.ReceiptNumber, row.CreatedAt.Format(time.RFC3339),
			money(row.Subtotal), money(row.Discount), money(row.VatableSales), money(row.VATAmount),
			money(row.VATExemptSales), money(row.ZeroRatedSales), money(row.Total)); err != nil {
			return err
		}
	}
	t := r.Totals
	return s.writeRow("totals", strconv.Itoa(t.Transactions), "", "", "",
		money(t.VatableSales), money(t.VATAmount), money(t.VATExemptSales), money(t.ZeroRatedSales), money(t.TotalSales))
}

func writeCashiers(s *csvStreamer, r *report.CashierReport) error {
	if err := s.writeRows([][]string{
		{"summary", "total_sales", money(r.TotalSales)},
		{"summary", "total_transactions", strconv.Itoa(r.TotalTransactions)},
	}); err != nil {
		return err
	}

	if err := section(s, "user_id", "name", "transactions", "total_sales", "average_transaction"); err != nil {
		return err
	}
	for _, row := range r.Cashiers {
		if err := s.writeRow(row.UserID, row.Name, strconv.Itoa(row.Transactions), money(row.TotalSales), money(row.AverageTransaction)); err != nil {
			return err
		}
	}

	if err := section(s, "hour", "transactions", "sales"); err != nil {
		return err
	}
	for _, row := range r.Hourly {
		if err := s.writeRow(fmt.Sprintf("%02d:00", row.Hour), strconv.Itoa(row.Transactions), money(row.Sales)); err != nil {
			return err
		}
	}

	if err := section(s, "shift_id", "user_id", "name", "terminal_id", "start_time", "end_time", "status", "hours_worked"); err != nil {
		return err
	}
	for _, row := range r.Attendance {
		end := ""
		if row.EndTime != nil {
			end = row.EndTime.Format(time.RFC3339)
		}
		if err := s.writeRow(row.ShiftID, row.UserID, row.Name, row.TerminalID,
			row.StartTime.Format(time.RFC3339), end, row.Status, row.HoursWorked.StringFixed(2)); err != nil {
			return err
		}
	}
	return nil
}

func writeDaily(s *csvStreamer, r *report.DailySummary) error {
	if err := s.writeRows([][]string{
		{"summary", "date", r.Date},
		{"summary", "transactions", strconv.Itoa(r.Transactions)},
		{"summary", "gross_sales", money(r.GrossSales)},
		{"summary", "discounts", money(r.Discounts)},
		{"summary", "tax", money(r.Tax)},
		{"summary", "net_sales", money(r.NetSales)},
		{"summary", "average_ticket", money(r.AverageTicket)},
		{"summary", "voided_transactions", strconv.Itoa(r.VoidedTransactions)},
		{"summary", "voided_amount", money(r.VoidedAmount)},
	}); err != nil {
		return err
	}
	if err := writePayments(s, r.Payments); err != nil {
		return err
	}
	if err := section(s, "channel", "transactions", "amount"); err != nil {
		return err
	}
	for _, row := range r.Channels {
		if err := s.writeRow(row.Channel, strconv.Itoa(row.Transactions), money(row.Amount)); err != nil {
			return err
		}
	}
	return nil
}

func writeInventory(s *csvStreamer, r *report.InventoryReport) error {
	if err := s.writeRow("product_id", "name", "category", "on_hand", "units_sold", "revenue",
		"unit_cost", "unit_price", "stock_value_cost", "stock_value_retail", "reorder_level", "low_stock"); err != nil {
		return err
	}
	for _, row := range r.Items {
		if err := s.writeRow(row.ProductID, row.Name, row.Category, strconv.Itoa(row.OnHand), strconv.Itoa(row.UnitsSold),
			money(row.Revenue), money(row.UnitCost), money(row.UnitPrice), money(row.StockValueCost),
			money(row.StockValueRetail), strconv.Itoa(row.ReorderLevel), strconv.FormatBool(row.LowStock)); err != nil {
			return err
		}
	}
	return s.writeRow("totals", strconv.Itoa(r.Products), "", strconv.Itoa(r.UnitsOnHand), strconv.Itoa(r.UnitsSold),
		"", "", "", money(r.TotalStockValueCost), money(r.TotalStockValueRetail), "", strconv.Itoa(r.LowStockCount))
}

func writeReadingTotals(s *csvStreamer, r report.ReadingTotals) error {
	return s.writeRows([][]string{
		{"reading", "store_id", r.StoreID},
		{"reading", "terminal_id", r.TerminalID},
		{"reading", "date", r.Date},
		{"reading", "generated_at", r.GeneratedAt.Format(time.RFC3339)},
		{"reading", "generated_by", r.GeneratedBy},
		{"reading", "shift_status", r.ShiftStatus},
		{"sales", "transactions", strconv.Itoa(r.TransactionCount)},
		{"sales", "gross_sales", money(r.GrossSales)},
		{"sales", "net_sales", money(r.NetSales)},
		{"discount", "senior_citizen", money(r.Discounts.Senior)},
		{"discount", "pwd", money(r.Discounts.PWD)},
		{"discount", "employee", money(r.Discounts.Employee)},
		{"discount", "other", money(r.Discounts.Other)},
		{"discount", "total", money(r.Discounts.Total)},
		{"payment", "cash", money(r.Payments.Cash)},
		{"payment", "card", money(r.Payments.Card)},
		{"payment", "ewallet", money(r.Payments.EWallet)},
		{"payment", "other", money(r.Payments.Other)},
		{"receipt", "first", r.Receipts.First},
		{"receipt", "last", r.Receipts.Last},
		{"vat", "vatable_sales", money(r.VAT.VatableSales)},
		{"vat", "vat_amount", money(r.VAT.VATAmount)},
		{"vat", "vat_exempt_sales", money(r.VAT.VATExemptSales)},
		{"vat", "zero_rated_sales", money(r.VAT.ZeroRatedSales)},
		{"cash", "beginning_cash", money(r.BeginningCash)},
	})
}

func writeZReading(s *csvStreamer, z report.ZReading) error {
	if err := s.writeRow("reading", "id", z.ID); err != nil {
		return err
	}
	if err := writeReadingTotals(s, z.ReadingTotals); err != nil {
		return err
	}
	return s.writeRows([][]string{
		{"cash", "cash_sales", money(z.CashSales)},
		{"cash", "payouts", money(z.Payouts)},
		{"cash", "expected_cash", money(z.ExpectedCash)},
		{"cash", "actual_cash", money(z.ActualCash)},
		{"cash", "variance", money(z.CashVariance)},
	})
}

func section(s *csvStreamer, header ...string) error {
	if err := s.blank(); err != nil {
		return err
	}
	return s.writeRow(header...)
}

func money(v decimal.Decimal) string {
	return v.StringFixed(2)
}

func percent(v decimal.Decimal) string {
	return v.StringFixed(1)
}
