package report

import (
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"posreports/backend/internal/domain"
)

const DefaultTopProducts = 10

type SalesOptions struct {
	TopProducts int
	Location    *time.Location
}

type DateSales struct {
	Date         string          `json:"date"`
	Amount       decimal.Decimal `json:"amount"`
	Transactions int             `json:"transactions"`
}

type ProductSales struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Revenue   decimal.Decimal `json:"revenue"`
}

type PaymentShare struct {
	Method       string          `json:"method"`
	Amount       decimal.Decimal `json:"amount"`
	Transactions int             `json:"transactions"`
	Percentage   decimal.Decimal `json:"percentage"`
}

type SalesReport struct {
	TotalSales         decimal.Decimal `json:"total_sales"`
	TotalTransactions  int             `json:"total_transactions"`
	AverageTransaction decimal.Decimal `json:"average_transaction"`
	SalesByDate        []DateSales     `json:"sales_by_date"`
	TopProducts        []ProductSales  `json:"top_products"`
	PaymentMethods     []PaymentShare  `json:"payment_methods"`
}

// AggregateSales returns nil for an empty set.
func AggregateSales(txs []domain.Transaction, opts SalesOptions) *SalesReport {
	if len(txs) == 0 {
		return nil
	}
	if opts.TopProducts < 1 {
		opts.TopProducts = DefaultTopProducts
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	total := decimal.Zero
	byDate := make(map[string]*DateSales)
	byProduct := make(map[string]*ProductSales)

	for _, tx := range txs {
		total = total.Add(tx.Total)

		date := tx.CreatedAt.In(loc).Format(domain.DateLayout)
		ds, ok := byDate[date]
		if !ok {
			ds = &DateSales{Date: date}
			byDate[date] = ds
		}
		ds.Amount = ds.Amount.Add(tx.Total)
		ds.Transactions++

		for _, item := range tx.Items {
			key := lineKey(item)
			ps, ok := byProduct[key]
			if !ok {
				ps = &ProductSales{ProductID: item.ProductID, Name: item.Name}
				byProduct[key] = ps
			}
			ps.Quantity += item.Quantity
			ps.Revenue = ps.Revenue.Add(lineRevenue(item))
		}
	}

	dates := make([]DateSales, 0, len(byDate))
	for _, ds := range byDate {
		dates = append(dates, *ds)
	}
	slices.SortFunc(dates, func(a, b DateSales) int {
		return strings.Compare(a.Date, b.Date)
	})

	products := make([]ProductSales, 0, len(byProduct))
	for _, ps := range byProduct {
		products = append(products, *ps)
	}
	slices.SortFunc(products, func(a, b ProductSales) int {
		if c := b.Revenue.Cmp(a.Revenue); c != 0 {
			return c
		}
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ProductID, b.ProductID)
	})
	if len(products) > opts.TopProducts {
		products = products[:opts.TopProducts]
	}

	return &SalesReport{
		TotalSales:         total,
		TotalTransactions:  len(txs),
		AverageTransaction: average(total, len(txs)),
		SalesByDate:        dates,
		TopProducts:        products,
		PaymentMethods:     paymentShares(txs, total),
	}
}

// paymentShares groups by the normalized payment method label.
func paymentShares(txs []domain.Transaction, total decimal.Decimal) []PaymentShare {
	byMethod := make(map[string]*PaymentShare)
	for _, tx := range txs {
		label := paymentLabel(tx.PaymentMethod)
		ps, ok := byMethod[label]
		if !ok {
			ps = &PaymentShare{Method: label}
			byMethod[label] = ps
		}
		ps.Amount = ps.Amount.Add(tx.Total)
		ps.Transactions++
	}

	shares := make([]PaymentShare, 0, len(byMethod))
	for _, ps := range byMethod {
		ps.Percentage = percentOf(ps.Amount, total)
		shares = append(shares, *ps)
	}
	slices.SortFunc(shares, func(a, b PaymentShare) int {
		if c := b.Amount.Cmp(a.Amount); c != 0 {
			return c
		}
		return strings.Compare(a.Method, b.Method)
	})
	return shares
}
