package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"posreports/backend/internal/report"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestPesoGroupsThousands(t *testing.T) {
	require.Equal(t, "₱1,234,567.89", Peso(d("1234567.891")))
	require.Equal(t, "₱0.00", Peso(decimal.Zero))
	require.Equal(t, "-₱50.00", Peso(d("-50")))
}

func TestWriteCSVSales(t *testing.T) {
	sales := &report.SalesReport{
		TotalSales:         d("350"),
		TotalTransactions:  2,
		AverageTransaction: d("175"),
		SalesByDate:        []report.DateSales{{Date: "2024-01-15", Amount: d("350"), Transactions: 2}},
		TopProducts:        []report.ProductSales{{ProductID: "P1", Name: "Adobo, Chicken", Quantity: 2, Revenue: d("200")}},
		PaymentMethods:     []report.PaymentShare{{Method: "cash", Amount: d("200"), Transactions: 1, Percentage: d("57.142857")}},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, report.Wrap(report.KindSales, sales, nil)))

	out := buf.String()
	require.True(t, strings.HasPrefix(out, "report,sales\r\n"))
	require.Contains(t, out, "summary,total_sales,350.00\r\n")
	require.Contains(t, out, "P1,\"Adobo, Chicken\",2,200.00\r\n")
	require.Contains(t, out, "cash,200.00,1,57.1\r\n")
}

func TestWriteCSVWithoutDataWritesKindOnly(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, report.Wrap(report.KindVAT, nil, nil)))
	require.Equal(t, "report,vat\r\n", buf.String())

	var typedNil *report.VATReport
	buf.Reset()
	require.NoError(t, WriteCSV(&buf, report.Wrap(report.KindVAT, typedNil, nil)))
	require.Equal(t, "report,vat\r\n", buf.String())
}

func TestWriteCSVFlagsTruncation(t *testing.T) {
	var buf bytes.Buffer
	diag := &report.Diagnostics{Strategy: report.StrategyManualFilter, Truncated: true}
	require.NoError(t, WriteCSV(&buf, report.Wrap(report.KindSales, nil, diag)))
	require.Contains(t, buf.String(), "warning,older transactions may be missing")
}

func TestWriteCSVZReadingKeepsVarianceSign(t *testing.T) {
	z := report.ZReading{
		ID:           "zr-1",
		ExpectedCash: d("22000"),
		ActualCash:   d("21950"),
		CashVariance: d("-50"),
	}
	z.Date = "2024-01-15"

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, report.Wrap(report.KindZReading, z, nil)))
	require.Contains(t, buf.String(), "cash,variance,-50.00\r\n")
	require.Contains(t, buf.String(), "reading,id,zr-1\r\n")
}

func TestWriteReadingHTML(t *testing.T) {
	z := report.ZReading{
		ID:           "zr-1",
		CashSales:    d("16500"),
		ExpectedCash: d("22000"),
		ActualCash:   d("21950"),
		CashVariance: d("-50"),
	}
	z.StoreID = "S1"
	z.Date = "2024-01-15"
	z.ShiftStatus = report.ShiftStatusNoActive
	z.GeneratedAt = time.Date(2024, 1, 15, 22, 0, 0, 0, time.UTC)
	z.GeneratedBy = "<admin>"

	var buf bytes.Buffer
	require.NoError(t, WriteReadingHTML(&buf, report.Wrap(report.KindZReading, z, nil)))
	out := buf.String()
	require.Contains(t, out, "<h2>Z-Reading</h2>")
	require.Contains(t, out, "₱22,000.00")
	require.Contains(t, out, "-₱50.00")
	require.Contains(t, out, "variance-negative")
	require.Contains(t, out, "All terminals")
	require.Contains(t, out, "&lt;admin&gt;")
}

func TestWriteReadingHTMLRejectsOtherReports(t *testing.T) {
	var buf bytes.Buffer
	err := WriteReadingHTML(&buf, report.Wrap(report.KindSales, &report.SalesReport{}, nil))
	require.ErrorIs(t, err, ErrNotPrintable)
}
