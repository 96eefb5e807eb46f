package report

import (
	"time"

	"github.com/shopspring/decimal"

	"posreports/backend/internal/domain"
)

const (
	ShiftStatusActive   = "Active"
	ShiftStatusNoActive = "No Active Shift"
)

// ReadingMeta identifies a reading. It is echoed into the output unchanged.
type ReadingMeta struct {
	StoreID     string
	TerminalID  string
	Date        string
	GeneratedAt time.Time
	GeneratedBy string
}

type DiscountBreakdown struct {
	Senior   decimal.Decimal `json:"senior_citizen"`
	PWD      decimal.Decimal `json:"pwd"`
	Employee decimal.Decimal `json:"employee"`
	Other    decimal.Decimal `json:"other"`
	Total    decimal.Decimal `json:"total"`
}

type PaymentBreakdown struct {
	Cash    decimal.Decimal `json:"cash"`
	Card    decimal.Decimal `json:"card"`
	EWallet decimal.Decimal `json:"ewallet"`
	Other   decimal.Decimal `json:"other"`
}

type ReceiptRange struct {
	First string `json:"first"`
	Last  string `json:"last"`
}

type VATSummary struct {
	VatableSales   decimal.Decimal `json:"vatable_sales"`
	VATAmount      decimal.Decimal `json:"vat_amount"`
	VATExemptSales decimal.Decimal `json:"vat_exempt_sales"`
	ZeroRatedSales decimal.Decimal `json:"zero_rated_sales"`
}

// ReadingTotals is shared by X and Z readings.
type ReadingTotals struct {
	StoreID          string            `json:"store_id"`
	TerminalID       string            `json:"terminal_id"`
	Date             string            `json:"date"`
	GeneratedAt      time.Time         `json:"generated_at"`
	GeneratedBy      string            `json:"generated_by"`
	ShiftStatus      string            `json:"shift_status"`
	ShiftIDs         []string          `json:"shift_ids"`
	TransactionCount int               `json:"transaction_count"`
	GrossSales       decimal.Decimal   `json:"gross_sales"`
	NetSales         decimal.Decimal   `json:"net_sales"`
	Discounts        DiscountBreakdown `json:"discounts"`
	Payments         PaymentBreakdown  `json:"payments"`
	Receipts         ReceiptRange      `json:"receipts"`
	VAT              VATSummary        `json:"vat"`
	BeginningCash    decimal.Decimal   `json:"beginning_cash"`
}

// XReading is a mid-day snapshot. Computing it has no side effects.
type XReading struct {
	ReadingTotals
}

// ZReading is the end-of-day closing reading with cash reconciliation.
type ZReading struct {
	ReadingTotals
	ID           string          `json:"id,omitempty"`
	CashSales    decimal.Decimal `json:"cash_sales"`
	Payouts      decimal.Decimal `json:"payouts"`
	ExpectedCash decimal.Decimal `json:"expected_cash"`
	ActualCash   decimal.Decimal `json:"actual_cash"`
	CashVariance decimal.Decimal `json:"cash_variance"`
}

// ComputeXReading never returns nil. A day without sales still yields a
// printable zero-valued reading.
func ComputeXReading(txs []domain.Transaction, shifts []domain.Shift, meta ReadingMeta) XReading {
	return XReading{ReadingTotals: computeTotals(txs, shifts, meta)}
}

// ComputeZReading reconciles the drawer: expected cash is beginning cash plus
// cash sales minus payouts, and variance is actual minus expected. Variance
// keeps its sign.
func ComputeZReading(txs []domain.Transaction, shifts []domain.Shift, payouts []domain.Payout, actualCash decimal.Decimal, meta ReadingMeta) ZReading {
	totals := computeTotals(txs, shifts, meta)

	paid := decimal.Zero
	for _, p := range payouts {
		paid = paid.Add(p.Amount)
	}

	expected := totals.BeginningCash.Add(totals.Payments.Cash).Sub(paid)
	return ZReading{
		ReadingTotals: totals,
		CashSales:     totals.Payments.Cash,
		Payouts:       paid,
		ExpectedCash:  expected,
		ActualCash:    actualCash,
		CashVariance:  actualCash.Sub(expected),
	}
}

func computeTotals(txs []domain.Transaction, shifts []domain.Shift, meta ReadingMeta) ReadingTotals {
	out := ReadingTotals{
		StoreID:          meta.StoreID,
		TerminalID:       meta.TerminalID,
		Date:             meta.Date,
		GeneratedAt:      meta.GeneratedAt,
		GeneratedBy:      meta.GeneratedBy,
		ShiftStatus:      ShiftStatusNoActive,
		ShiftIDs:         make([]string, 0, len(shifts)),
		TransactionCount: len(txs),
	}

	for _, shift := range shifts {
		out.ShiftIDs = append(out.ShiftIDs, shift.ID)
		out.BeginningCash = out.BeginningCash.Add(shift.StartingCash)
		if shift.Status == domain.ShiftStatusActive {
			out.ShiftStatus = ShiftStatusActive
		}
	}

	for _, tx := range txs {
		out.GrossSales = out.GrossSales.Add(tx.Subtotal)

		discount := splitDiscount(tx)
		out.Discounts.Senior = out.Discounts.Senior.Add(discount.senior)
		out.Discounts.PWD = out.Discounts.PWD.Add(discount.pwd)
		out.Discounts.Employee = out.Discounts.Employee.Add(discount.employee)
		out.Discounts.Other = out.Discounts.Other.Add(discount.other)

		switch classifyPayment(tx.PaymentMethod) {
		case PaymentCash:
			out.Payments.Cash = out.Payments.Cash.Add(tx.Total)
		case PaymentCard:
			out.Payments.Card = out.Payments.Card.Add(tx.Total)
		case PaymentEWallet:
			out.Payments.EWallet = out.Payments.EWallet.Add(tx.Total)
		default:
			out.Payments.Other = out.Payments.Other.Add(tx.Total)
		}

		if tx.ReceiptNumber != "" {
			if out.Receipts.First == "" || compareReceipts(tx.ReceiptNumber, out.Receipts.First) < 0 {
				out.Receipts.First = tx.ReceiptNumber
			}
			if out.Receipts.Last == "" || compareReceipts(tx.ReceiptNumber, out.Receipts.Last) > 0 {
				out.Receipts.Last = tx.ReceiptNumber
			}
		}

		out.VAT.VatableSales = out.VAT.VatableSales.Add(tx.Subtotal.Sub(discount.total()))
		out.VAT.VATAmount = out.VAT.VATAmount.Add(tx.Tax)
		out.VAT.VATExemptSales = out.VAT.VATExemptSales.Add(tx.VATExemptSales)
		out.VAT.ZeroRatedSales = out.VAT.ZeroRatedSales.Add(tx.ZeroRatedSales)
	}

	out.Discounts.Total = out.Discounts.Senior.
		Add(out.Discounts.PWD).
		Add(out.Discounts.Employee).
		Add(out.Discounts.Other)
	out.NetSales = out.GrossSales.Sub(out.Discounts.Total)
	return out
}
