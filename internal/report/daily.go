package report

import (
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"posreports/backend/internal/domain"
)

type ChannelSales struct {
	Channel      string          `json:"channel"`
	Transactions int             `json:"transactions"`
	Amount       decimal.Decimal `json:"amount"`
}

type DailySummary struct {
	Date               string          `json:"date"`
	Transactions       int             `json:"transactions"`
	GrossSales         decimal.Decimal `json:"gross_sales"`
	Discounts          decimal.Decimal `json:"discounts"`
	Tax                decimal.Decimal `json:"tax"`
	NetSales           decimal.Decimal `json:"net_sales"`
	AverageTicket      decimal.Decimal `json:"average_ticket"`
	VoidedTransactions int             `json:"voided_transactions"`
	VoidedAmount       decimal.Decimal `json:"voided_amount"`
	Payments           []PaymentShare  `json:"payments"`
	Channels           []ChannelSales  `json:"channels"`
	FirstSaleAt        *time.Time      `json:"first_sale_at,omitempty"`
	LastSaleAt         *time.Time      `json:"last_sale_at,omitempty"`
}

// AggregateDailySummary summarizes one business day. Channels are keyed by
// delivery platform when set, otherwise by order type. Returns nil when
// there are neither completed nor voided transactions.
func AggregateDailySummary(completed []domain.Transaction, voided []domain.Transaction, day string, loc *time.Location) *DailySummary {
	if len(completed) == 0 && len(voided) == 0 {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}

	out := &DailySummary{
		Date:         day,
		Transactions: len(completed),
		Payments:     []PaymentShare{},
		Channels:     []ChannelSales{},
	}

	byChannel := make(map[string]*ChannelSales)
	for _, tx := range completed {
		out.GrossSales = out.GrossSales.Add(tx.Subtotal)
		out.Discounts = out.Discounts.Add(splitDiscount(tx).total())
		out.Tax = out.Tax.Add(tx.Tax)
		out.NetSales = out.NetSales.Add(tx.Total)

		at := tx.CreatedAt.In(loc)
		if out.FirstSaleAt == nil || at.Before(*out.FirstSaleAt) {
			first := at
			out.FirstSaleAt = &first
		}
		if out.LastSaleAt == nil || at.After(*out.LastSaleAt) {
			last := at
			out.LastSaleAt = &last
		}

		channel := channelOf(tx)
		cs, ok := byChannel[channel]
		if !ok {
			cs = &ChannelSales{Channel: channel}
			byChannel[channel] = cs
		}
		cs.Transactions++
		cs.Amount = cs.Amount.Add(tx.Total)
	}
	out.AverageTicket = average(out.NetSales, len(completed))

	for _, tx := range voided {
		out.VoidedTransactions++
		out.VoidedAmount = out.VoidedAmount.Add(tx.Total)
	}

	if len(completed) > 0 {
		out.Payments = paymentShares(completed, out.NetSales)
	}
	for _, cs := range byChannel {
		out.Channels = append(out.Channels, *cs)
	}
	slices.SortFunc(out.Channels, func(a, b ChannelSales) int {
		if c := b.Amount.Cmp(a.Amount); c != 0 {
			return c
		}
		return strings.Compare(a.Channel, b.Channel)
	})
	return out
}

func channelOf(tx domain.Transaction) string {
	if p := normalizeTag(tx.DeliveryPlatform); p != "" {
		return p
	}
	if t := normalizeTag(tx.OrderType); t != "" {
		return t
	}
	return "walk_in"
}
