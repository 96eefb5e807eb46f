package export

import (
	"errors"
	"html/template"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"posreports/backend/internal/report"
)

var ErrNotPrintable = errors.New("export: only readings are printable")

var pesoPrinter = message.NewPrinter(language.English)

// Peso formats an amount for print with thousands grouping, for example
// ₱1,234.50. Rounding happens here and nowhere earlier.
func Peso(v decimal.Decimal) string {
	f, _ := v.Round(2).Float64()
	if f < 0 {
		return pesoPrinter.Sprintf("-₱%.2f", -f)
	}
	return pesoPrinter.Sprintf("₱%.2f", f)
}

type printableReading struct {
	Title   string
	Reading report.ReadingTotals
	Z       *report.ZReading
}

var readingFuncs = template.FuncMap{
	"peso": Peso,
	"stamp": func(t time.Time) string {
		return t.Format("2006-01-02 15:04:05 MST")
	},
}

var readingHTMLTmpl = template.Must(template.New("reading").Funcs(readingFuncs).Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>{{.Title}} {{.Reading.Date}}</title>
  <style>
    body { font-family: monospace; margin: 24px; max-width: 420px; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; }
    td { padding: 2px 0; font-size: 13px; }
    td.amount { text-align: right; }
    h2, h3 { margin-bottom: 4px; text-align: center; }
    .variance-negative { color: #b00020; }
  </style>
</head>
<body>
  <h2>{{.Title}}</h2>
  <p>Store: {{.Reading.StoreID}}<br />Terminal: {{if .Reading.TerminalID}}{{.Reading.TerminalID}}{{else}}All terminals{{end}}<br />Date: {{.Reading.Date}}<br />Shift: {{.Reading.ShiftStatus}}</p>
  {{with .Z}}{{if .ID}}<p>Reading ID: {{.ID}}</p>{{end}}{{end}}

  <h3>Sales</h3>
  <table>
    <tr><td>Transactions</td><td class="amount">{{.Reading.TransactionCount}}</td></tr>
    <tr><td>Gross Sales</td><td class="amount">{{peso .Reading.GrossSales}}</td></tr>
    <tr><td>Net Sales</td><td class="amount">{{peso .Reading.NetSales}}</td></tr>
    <tr><td>First OR</td><td class="amount">{{.Reading.Receipts.First}}</td></tr>
    <tr><td>Last OR</td><td class="amount">{{.Reading.Receipts.Last}}</td></tr>
  </table>

  <h3>Discounts</h3>
  <table>
    <tr><td>Senior Citizen</td><td class="amount">{{peso .Reading.Discounts.Senior}}</td></tr>
    <tr><td>PWD</td><td class="amount">{{peso .Reading.Discounts.PWD}}</td></tr>
    <tr><td>Employee</td><td class="amount">{{peso .Reading.Discounts.Employee}}</td></tr>
    <tr><td>Other</td><td class="amount">{{peso .Reading.Discounts.Other}}</td></tr>
    <tr><td>Total</td><td class="amount">{{peso .Reading.Discounts.Total}}</td></tr>
  </table>

  <h3>Payments</h3>
  <table>
    <tr><td>Cash</td><td class="amount">{{peso .Reading.Payments.Cash}}</td></tr>
    <tr><td>Card</td><td class="amount">{{peso .Reading.Payments.Card}}</td></tr>
    <tr><td>E-Wallet</td><td class="amount">{{peso .Reading.Payments.EWallet}}</td></tr>
    <tr><td>Other</td><td class="amount">{{peso .Reading.Payments.Other}}</td></tr>
  </table>

  <h3>VAT</h3>
  <table>
    <tr><td>VATable Sales</td><td class="amount">{{peso .Reading.VAT.VatableSales}}</td></tr>
    <tr><td>VAT Amount</td><td class="amount">{{peso .Reading.VAT.VATAmount}}</td></tr>
    <tr><td>VAT-Exempt Sales</td><td class="amount">{{peso .Reading.VAT.VATExemptSales}}</td></tr>
    <tr><td>Zero-Rated Sales</td><td class="amount">{{peso .Reading.VAT.ZeroRatedSales}}</td></tr>
  </table>

  <h3>Cash Drawer</h3>
  <table>
    <tr><td>Beginning Cash</td><td class="amount">{{peso .Reading.BeginningCash}}</td></tr>
    {{with .Z}}
    <tr><td>Cash Sales</td><td class="amount">{{peso .CashSales}}</td></tr>
    <tr><td>Payouts</td><td class="amount">{{peso .Payouts}}</td></tr>
    <tr><td>Expected Cash</td><td class="amount">{{peso .ExpectedCash}}</td></tr>
    <tr><td>Actual Cash</td><td class="amount">{{peso .ActualCash}}</td></tr>
    <tr><td>Variance</td><td class="amount{{if .CashVariance.IsNegative}} variance-negative{{end}}">{{peso .CashVariance}}</td></tr>
    {{end}}
  </table>

  <p>Generated {{stamp .Reading.GeneratedAt}}{{if .Reading.GeneratedBy}} by {{.Reading.GeneratedBy}}{{end}}</p>
</body>
</html>
`))

// WriteReadingHTML renders an X or Z reading as a printable page. Other
// report kinds return ErrNotPrintable.
func WriteReadingHTML(w io.Writer, env report.Envelope) error {
	var page printableReading
	switch data := env.Data.(type) {
	case report.XReading:
		page = printableReading{Title: "X-Reading", Reading: data.ReadingTotals}
	case report.ZReading:
		page = printableReading{Title: "Z-Reading", Reading: data.ReadingTotals, Z: &data}
	default:
		return ErrNotPrintable
	}
	return readingHTMLTmpl.Execute(w, page)
}
