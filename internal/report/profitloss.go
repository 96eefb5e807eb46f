package report

import (
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"posreports/backend/internal/domain"
)

const uncategorized = "Uncategorized"

type ProfitLossOptions struct {
	// Expenses is the operating expense figure for the period, supplied by
	// the caller.
	Expenses decimal.Decimal
	Location *time.Location
}

type ProductProfit struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	Quantity  int             `json:"quantity"`
	Revenue   decimal.Decimal `json:"revenue"`
	Cost      decimal.Decimal `json:"cost"`
	Profit    decimal.Decimal `json:"profit"`
	Margin    decimal.Decimal `json:"margin"`
}

type DailyProfit struct {
	Date    string          `json:"date"`
	Revenue decimal.Decimal `json:"revenue"`
	Cost    decimal.Decimal `json:"cost"`
	Profit  decimal.Decimal `json:"profit"`
}

type ProfitLossReport struct {
	Revenue     decimal.Decimal `json:"revenue"`
	Cost        decimal.Decimal `json:"cost"`
	GrossProfit decimal.Decimal `json:"gross_profit"`
	Expenses    decimal.Decimal `json:"expenses"`
	NetProfit   decimal.Decimal `json:"net_profit"`
	CostRatio   decimal.Decimal `json:"cost_ratio"`
	GrossMargin decimal.Decimal `json:"gross_margin"`
	NetMargin   decimal.Decimal `json:"net_margin"`
	Products    []ProductProfit `json:"products"`
	Daily       []DailyProfit   `json:"daily"`
}

// AggregateProfitLoss costs every line item against products. Unknown
// products cost zero and land in Uncategorized under the line item's name.
// Returns nil for an empty set.
func AggregateProfitLoss(txs []domain.Transaction, products map[string]domain.Product, opts ProfitLossOptions) *ProfitLossReport {
	if len(txs) == 0 {
		return nil
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	byProduct := make(map[string]*ProductProfit)
	byDay := make(map[string]*DailyProfit)
	revenue := decimal.Zero
	cost := decimal.Zero

	for _, tx := range txs {
		date := tx.CreatedAt.In(loc).Format(domain.DateLayout)
		day, ok := byDay[date]
		if !ok {
			day = &DailyProfit{Date: date}
			byDay[date] = day
		}

		for _, item := range tx.Items {
			lineRev := lineRevenue(item)
			qty := decimal.NewFromInt(int64(item.Quantity))
			product, known := products[item.ProductID]
			lineCost := decimal.Zero
			if known {
				lineCost = product.Cost.Mul(qty)
			}

			key := lineKey(item)
			pp, ok := byProduct[key]
			if !ok {
				pp = &ProductProfit{ProductID: item.ProductID, Name: item.Name, Category: uncategorized}
				if known {
					if product.Name != "" {
						pp.Name = product.Name
					}
					if product.Category != "" {
						pp.Category = product.Category
					}
				}
				byProduct[key] = pp
			}
			pp.Quantity += item.Quantity
			pp.Revenue = pp.Revenue.Add(lineRev)
			pp.Cost = pp.Cost.Add(lineCost)

			day.Revenue = day.Revenue.Add(lineRev)
			day.Cost = day.Cost.Add(lineCost)
			revenue = revenue.Add(lineRev)
			cost = cost.Add(lineCost)
		}
	}

	productRows := make([]ProductProfit, 0, len(byProduct))
	for _, pp := range byProduct {
		pp.Profit = pp.Revenue.Sub(pp.Cost)
		pp.Margin = percentOf(pp.Profit, pp.Revenue)
		productRows = append(productRows, *pp)
	}
	slices.SortFunc(productRows, func(a, b ProductProfit) int {
		if c := b.Revenue.Cmp(a.Revenue); c != 0 {
			return c
		}
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ProductID, b.ProductID)
	})

	days := make([]DailyProfit, 0, len(byDay))
	for _, day := range byDay {
		day.Profit = day.Revenue.Sub(day.Cost)
		days = append(days, *day)
	}
	slices.SortFunc(days, func(a, b DailyProfit) int {
		return strings.Compare(a.Date, b.Date)
	})

	gross := revenue.Sub(cost)
	net := gross.Sub(opts.Expenses)
	return &ProfitLossReport{
		Revenue:     revenue,
		Cost:        cost,
		GrossProfit: gross,
		Expenses:    opts.Expenses,
		NetProfit:   net,
		CostRatio:   percentOf(cost, revenue),
		GrossMargin: percentOf(gross, revenue),
		NetMargin:   percentOf(net, revenue),
		Products:    productRows,
		Daily:       days,
	}
}

// ProductIDs lists the distinct product ids referenced by line items.
func ProductIDs(txs []domain.Transaction) []string {
	seen := make(map[string]struct{})
	ids := make([]string, 0, 32)
	for _, tx := range txs {
		for _, item := range tx.Items {
			if item.ProductID == "" {
				continue
			}
			if _, ok := seen[item.ProductID]; ok {
				continue
			}
			seen[item.ProductID] = struct{}{}
			ids = append(ids, item.ProductID)
		}
	}
	slices.Sort(ids)
	return ids
}
