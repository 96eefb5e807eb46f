// Package report resolves transaction sets for a store and date range and
// reduces them into the back-office report shapes.
//
// Aggregators are pure. They never filter the rows they are handed, so every
// total equals a derivation over exactly the resolved set.
package report

type Kind string

const (
	KindSales        Kind = "sales"
	KindProfitLoss   Kind = "profit_loss"
	KindVAT          Kind = "vat"
	KindXReading     Kind = "x_reading"
	KindZReading     Kind = "z_reading"
	KindCashier      Kind = "cashier"
	KindDailySummary Kind = "daily_summary"
	KindInventory    Kind = "inventory"
)

// Report is implemented by every report DTO.
type Report interface {
	Kind() Kind
}

// Envelope is the wire form of a report. Data is null when the resolved set
// was empty for reports that have a distinct no-data state.
type Envelope struct {
	Kind        Kind         `json:"kind"`
	Data        Report       `json:"data"`
	Diagnostics *Diagnostics `json:"diagnostics,omitempty"`
}

func Wrap(kind Kind, data Report, diag *Diagnostics) Envelope {
	return Envelope{Kind: kind, Data: data, Diagnostics: diag}
}

func (*SalesReport) Kind() Kind      { return KindSales }
func (*ProfitLossReport) Kind() Kind { return KindProfitLoss }
func (*VATReport) Kind() Kind        { return KindVAT }
func (XReading) Kind() Kind          { return KindXReading }
func (ZReading) Kind() Kind          { return KindZReading }
func (*CashierReport) Kind() Kind    { return KindCashier }
func (*DailySummary) Kind() Kind     { return KindDailySummary }
func (*InventoryReport) Kind() Kind  { return KindInventory }
