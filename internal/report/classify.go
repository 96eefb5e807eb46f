package report

import (
	"strings"

	"github.com/shopspring/decimal"

	"posreports/backend/internal/domain"
)

var hundred = decimal.NewFromInt(100)

type discountBucket int

const (
	bucketSenior discountBucket = iota
	bucketPWD
	bucketEmployee
	bucketOther
)

func normalizeTag(raw string) string {
	tag := strings.ToLower(strings.TrimSpace(raw))
	tag = strings.ReplaceAll(tag, "-", "_")
	return strings.ReplaceAll(tag, " ", "_")
}

func classifyDiscount(discountType string) discountBucket {
	switch normalizeTag(discountType) {
	case "senior", "senior_citizen", "sc", "senior_discount":
		return bucketSenior
	case "pwd", "pwd_discount", "disability":
		return bucketPWD
	case "employee", "staff", "employee_discount":
		return bucketEmployee
	default:
		return bucketOther
	}
}

// discountSplit is one transaction's discount broken into reading buckets.
type discountSplit struct {
	senior   decimal.Decimal
	pwd      decimal.Decimal
	employee decimal.Decimal
	other    decimal.Decimal
}

func (d discountSplit) total() decimal.Decimal {
	return d.senior.Add(d.pwd).Add(d.employee).Add(d.other)
}

// splitDiscount prefers the transaction level discount, bucketed by its
// discount_type. Without one it falls back to the BIR senior and PWD columns
// written by older checkouts, which carry their own bucket.
func splitDiscount(tx domain.Transaction) discountSplit {
	var out discountSplit
	if tx.Discount.IsPositive() {
		switch classifyDiscount(tx.DiscountType) {
		case bucketSenior:
			out.senior = tx.Discount
		case bucketPWD:
			out.pwd = tx.Discount
		case bucketEmployee:
			out.employee = tx.Discount
		default:
			out.other = tx.Discount
		}
		return out
	}
	if tx.SeniorDiscount.IsPositive() {
		out.senior = tx.SeniorDiscount
	}
	if tx.PWDDiscount.IsPositive() {
		out.pwd = tx.PWDDiscount
	}
	return out
}

const (
	PaymentCash    = "cash"
	PaymentCard    = "card"
	PaymentEWallet = "ewallet"
	PaymentOther   = "other"
)

func classifyPayment(method string) string {
	switch normalizeTag(method) {
	case "cash":
		return PaymentCash
	case "card", "credit", "debit", "credit_card", "debit_card", "visa", "mastercard":
		return PaymentCard
	case "ewallet", "e_wallet", "gcash", "maya", "paymaya", "grabpay", "shopeepay", "qr", "qrph":
		return PaymentEWallet
	default:
		return PaymentOther
	}
}

func paymentLabel(method string) string {
	label := normalizeTag(method)
	if label == "" {
		return "unknown"
	}
	return label
}

// percentOf returns part/whole*100, or zero when whole is zero.
func percentOf(part decimal.Decimal, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred)
}

func average(total decimal.Decimal, count int) decimal.Decimal {
	if count == 0 {
		return decimal.Zero
	}
	return total.Div(decimal.NewFromInt(int64(count)))
}

func lineRevenue(item domain.LineItem) decimal.Decimal {
	if !item.Total.IsZero() {
		return item.Total
	}
	return item.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
}

func lineKey(item domain.LineItem) string {
	if item.ProductID != "" {
		return item.ProductID
	}
	return "name:" + strings.ToLower(strings.TrimSpace(item.Name))
}

// compareReceipts orders digit-only receipt numbers numerically and anything
// else lexicographically.
func compareReceipts(a string, b string) int {
	if isDigits(a) && isDigits(b) {
		a = strings.TrimLeft(a, "0")
		b = strings.TrimLeft(b, "0")
		if len(a) != len(b) {
			if len(a) < len(b) {
				return -1
			}
			return 1
		}
	}
	return strings.Compare(a, b)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
