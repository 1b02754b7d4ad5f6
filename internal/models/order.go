package models

import (
	"time"

	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
	OrderRefunded  OrderStatus = "refunded"
)

// Order is the persisted record created when a checkout session is
// consumed. One order per session; the session ID is unique so a
// session can never complete twice.
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	OrderID         string      `bun:"order_id,pk" json:"order_id"`
	SessionID       string      `bun:"session_id,unique" json:"session_id"`
	EventID         string      `bun:"event_id" json:"event_id"`
	UserID          string      `bun:"user_id" json:"user_id"`
	BuyerFirstName  string      `bun:"buyer_first_name" json:"buyer_first_name"`
	BuyerLastName   string      `bun:"buyer_last_name" json:"buyer_last_name"`
	BuyerEmail      string      `bun:"buyer_email" json:"buyer_email"`
	BuyerPhone      string      `bun:"buyer_phone,nullzero" json:"buyer_phone,omitempty"`
	Status          OrderStatus `bun:"status" json:"status"`
	Subtotal        int64       `bun:"subtotal" json:"subtotal"`
	Discount        int64       `bun:"discount" json:"discount"`
	Fees            int64       `bun:"fees" json:"fees"`
	Tax             int64       `bun:"tax" json:"tax"`
	Total           int64       `bun:"total" json:"total"`
	Currency        string      `bun:"currency" json:"currency"`
	PromoCodeID     string      `bun:"promo_code_id,nullzero" json:"promo_code_id,omitempty"`
	PaymentIntentID string      `bun:"payment_intent_id,nullzero" json:"payment_intent_id,omitempty"`
	PaymentMethod   string      `bun:"payment_method" json:"payment_method"`
	CreatedAt       time.Time   `bun:"created_at" json:"created_at"`
	CompletedAt     time.Time   `bun:"completed_at,nullzero" json:"completed_at,omitempty"`
}

type OrderWithTickets struct {
	Order   Order    `json:"order"`
	Tickets []Ticket `json:"tickets"`
}
