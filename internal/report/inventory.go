package report

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"posreports/backend/internal/domain"
)

type InventoryItem struct {
	ProductID        string          `json:"product_id"`
	Name             string          `json:"name"`
	Category         string          `json:"category"`
	OnHand           int             `json:"on_hand"`
	UnitsSold        int             `json:"units_sold"`
	Revenue          decimal.Decimal `json:"revenue"`
	UnitCost         decimal.Decimal `json:"unit_cost"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	StockValueCost   decimal.Decimal `json:"stock_value_cost"`
	StockValueRetail decimal.Decimal `json:"stock_value_retail"`
	ReorderLevel     int             `json:"reorder_level"`
	LowStock         bool            `json:"low_stock"`
}

type InventoryReport struct {
	Products              int             `json:"products"`
	LowStockCount         int             `json:"low_stock_count"`
	UnitsOnHand           int             `json:"units_on_hand"`
	UnitsSold             int             `json:"units_sold"`
	TotalStockValueCost   decimal.Decimal `json:"total_stock_value_cost"`
	TotalStockValueRetail decimal.Decimal `json:"total_stock_value_retail"`
	Items                 []InventoryItem `json:"items"`
}

// AggregateInventory joins the catalog with on-hand stock and units sold in
// the resolved set. A product is low on stock at or below its reorder level,
// or the global threshold when it has none. Returns nil without products.
func AggregateInventory(products []domain.Product, stock map[string]int, txs []domain.Transaction, threshold int) *InventoryReport {
	if len(products) == 0 {
		return nil
	}

	sold := make(map[string]int)
	revenue := make(map[string]decimal.Decimal)
	for _, tx := range txs {
		for _, item := range tx.Items {
			if item.ProductID == "" {
				continue
			}
			sold[item.ProductID] += item.Quantity
			revenue[item.ProductID] = revenue[item.ProductID].Add(lineRevenue(item))
		}
	}

	out := &InventoryReport{Items: make([]InventoryItem, 0, len(products))}
	for _, p := range products {
		onHand := stock[p.ID]
		qty := decimal.NewFromInt(int64(onHand))
		level := p.ReorderLevel
		if level <= 0 {
			level = threshold
		}
		category := p.Category
		if category == "" {
			category = uncategorized
		}

		item := InventoryItem{
			ProductID:        p.ID,
			Name:             p.Name,
			Category:         category,
			OnHand:           onHand,
			UnitsSold:        sold[p.ID],
			Revenue:          revenue[p.ID],
			UnitCost:         p.Cost,
			UnitPrice:        p.Price,
			StockValueCost:   p.Cost.Mul(qty),
			StockValueRetail: p.Price.Mul(qty),
			ReorderLevel:     level,
			LowStock:         onHand <= level,
		}
		out.Items = append(out.Items, item)

		out.Products++
		out.UnitsOnHand += onHand
		out.UnitsSold += item.UnitsSold
		out.TotalStockValueCost = out.TotalStockValueCost.Add(item.StockValueCost)
		out.TotalStockValueRetail = out.TotalStockValueRetail.Add(item.StockValueRetail)
		if item.LowStock {
			out.LowStockCount++
		}
	}

	slices.SortFunc(out.Items, func(a, b InventoryItem) int {
		if a.LowStock != b.LowStock {
			if a.LowStock {
				return -1
			}
			return 1
		}
		if c := strings.Compare(a.Category, b.Category); c != 0 {
			return c
		}
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ProductID, b.ProductID)
	})
	return out
}
