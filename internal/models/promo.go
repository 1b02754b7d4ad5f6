package models

import (
	"time"

	"github.com/uptrace/bun"
)

type PromoType string

const (
	PromoPercent PromoType = "percent"
	PromoFixed   PromoType = "fixed"
)

// PromoCode is created and updated by the admin API; this service only
// reads it, validates eligibility and computes the discount.
type PromoCode struct {
	bun.BaseModel `bun:"table:promo_codes"`

	ID            string    `bun:"promo_id,pk" json:"id"`
	Code          string    `bun:"code" json:"code"`
	EventID       string    `bun:"event_id" json:"event_id"`
	Active        bool      `bun:"active" json:"active"`
	ValidFrom     time.Time `bun:"valid_from" json:"valid_from"`
	ValidTo       time.Time `bun:"valid_to" json:"valid_to"`
	Type          PromoType `bun:"type" json:"type"`
	Amount        int64     `bun:"amount" json:"amount"`
	MaxUses       int       `bun:"max_uses" json:"max_uses"`
	CurrentUses   int       `bun:"current_uses" json:"current_uses"`
	MaxPerUser    int       `bun:"max_per_user" json:"max_per_user"`
	MinOrderValue int64     `bun:"min_order_value" json:"min_order_value"`

	// Empty means the code applies to every ticket type.
	AppliesToTicketTypeIDs []string `bun:"applies_to_ticket_type_ids,array" json:"applies_to_ticket_type_ids"`
}
