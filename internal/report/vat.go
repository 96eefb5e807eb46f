package report

import (
	"time"

	"github.com/shopspring/decimal"

	"posreports/backend/internal/domain"
)

type VATRow struct {
	TransactionID  string          `json:"transaction_id"`
	ReceiptNumber  string          `json:"receipt_number"`
	CreatedAt      time.Time       `json:"created_at"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Discount       decimal.Decimal `json:"discount"`
	VatableSales   decimal.Decimal `json:"vatable_sales"`
	VATAmount      decimal.Decimal `json:"vat_amount"`
	VATExemptSales decimal.Decimal `json:"vat_exempt_sales"`
	ZeroRatedSales decimal.Decimal `json:"zero_rated_sales"`
	Total          decimal.Decimal `json:"total"`
}

type VATTotals struct {
	Transactions   int             `json:"transactions"`
	VatableSales   decimal.Decimal `json:"vatable_sales"`
	VATAmount      decimal.Decimal `json:"vat_amount"`
	VATExemptSales decimal.Decimal `json:"vat_exempt_sales"`
	ZeroRatedSales decimal.Decimal `json:"zero_rated_sales"`
	TotalSales     decimal.Decimal `json:"total_sales"`
}

type VATReport struct {
	Totals VATTotals `json:"totals"`
	Rows   []VATRow  `json:"rows"`
}

// AggregateVAT works at transaction level only. Exempt and zero-rated
// amounts are passed through from the stored columns. Returns nil for an
// empty set.
func AggregateVAT(txs []domain.Transaction) *VATReport {
	if len(txs) == 0 {
		return nil
	}

	rows := make([]VATRow, 0, len(txs))
	var totals VATTotals
	for _, tx := range txs {
		row := VATRow{
			TransactionID:  tx.ID,
			ReceiptNumber:  tx.ReceiptNumber,
			CreatedAt:      tx.CreatedAt,
			Subtotal:       tx.Subtotal,
			Discount:       tx.Discount,
			VatableSales:   tx.Subtotal.Sub(tx.Discount),
			VATAmount:      tx.Tax,
			VATExemptSales: tx.VATExemptSales,
			ZeroRatedSales: tx.ZeroRatedSales,
			Total:          tx.Total,
		}
		rows = append(rows, row)

		totals.Transactions++
		totals.VatableSales = totals.VatableSales.Add(row.VatableSales)
		totals.VATAmount = totals.VATAmount.Add(row.VATAmount)
		totals.VATExemptSales = totals.VATExemptSales.Add(row.VATExemptSales)
		totals.ZeroRatedSales = totals.ZeroRatedSales.Add(row.ZeroRatedSales)
		totals.TotalSales = totals.TotalSales.Add(row.Total)
	}

	return &VATReport{Totals: totals, Rows: rows}
}
