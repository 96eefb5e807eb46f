package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type LineItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Total     decimal.Decimal `json:"total"`
}

// Transaction is one completed (or voided) sale written by the POS checkout.
// It is read-only for the report layer.
type Transaction struct {
	ID               string          `json:"id"`
	StoreID          string          `json:"store_id"`
	TerminalID       string          `json:"terminal_id,omitempty"`
	UserID           string          `json:"user_id,omitempty"`
	ShiftID          string          `json:"shift_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	Tax              decimal.Decimal `json:"tax"`
	Discount         decimal.Decimal `json:"discount"`
	DiscountType     string          `json:"discount_type,omitempty"`
	Total            decimal.Decimal `json:"total"`
	PaymentMethod    string          `json:"payment_method"`
	ReceiptNumber    string          `json:"receipt_number"`
	Items            []LineItem      `json:"items"`
	Status           string          `json:"status"`
	OrderType        string          `json:"order_type,omitempty"`
	DeliveryPlatform string          `json:"delivery_platform,omitempty"`
	VATSales         decimal.Decimal `json:"vat_sales"`
	VATExemptSales   decimal.Decimal `json:"vat_exempt_sales"`
	ZeroRatedSales   decimal.Decimal `json:"zero_rated_sales"`
	SeniorDiscount   decimal.Decimal `json:"senior_citizen_discount"`
	PWDDiscount      decimal.Decimal `json:"pwd_discount"`
}

type Shift struct {
	ID           string           `json:"id"`
	StoreID      string           `json:"store_id"`
	TerminalID   string           `json:"terminal_id"`
	UserID       string           `json:"user_id"`
	StartTime    time.Time        `json:"start_time"`
	EndTime      *time.Time       `json:"end_time,omitempty"`
	StartingCash decimal.Decimal  `json:"starting_cash"`
	EndingCash   *decimal.Decimal `json:"ending_cash,omitempty"`
	Status       string           `json:"status"`
	PhotoURL     string           `json:"photo_url,omitempty"`
}

type Product struct {
	ID           string          `json:"id"`
	StoreID      string          `json:"store_id"`
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	Cost         decimal.Decimal `json:"cost"`
	Price        decimal.Decimal `json:"price"`
	ReorderLevel int             `json:"reorder_level"`
}

type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	User
	PasswordHash string
	Active       bool
	CreatedAt    time.Time
}

// Payout is cash taken out of a drawer during the business day.
type Payout struct {
	ID         string          `json:"id"`
	StoreID    string          `json:"store_id"`
	TerminalID string          `json:"terminal_id"`
	Amount     decimal.Decimal `json:"amount"`
	Reason     string          `json:"reason"`
	CreatedAt  time.Time       `json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=128"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	UserID   string
	Username string
	Role     string
}

type ShiftCloseRequest struct {
	StoreID    string          `json:"store_id" validate:"max=64"`
	TerminalID string          `json:"terminal_id" validate:"required,max=64"`
	EndingCash decimal.Decimal `json:"ending_cash"`
}

type ShiftResponse struct {
	Shift Shift `json:"shift"`
}

type ZReadingRequest struct {
	StoreID    string           `json:"store_id" validate:"max=64"`
	TerminalID string           `json:"terminal_id" validate:"max=64"`
	Date       string           `json:"date" validate:"omitempty,datetime=2006-01-02"`
	ActualCash *decimal.Decimal `json:"actual_cash" validate:"required"`
	Force      bool             `json:"force"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	StoreID       string    `json:"store_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	TxStatusCompleted = "completed"
	TxStatusVoided    = "voided"
)

const (
	ShiftStatusActive = "active"
	ShiftStatusClosed = "closed"
)

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)
