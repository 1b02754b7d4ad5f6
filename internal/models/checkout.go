package models

import "time"

// CartItem is one line of a checkout session's cart. UnitPrice is the
// price captured when the session was created, in minor units.
type CartItem struct {
	TicketTypeID string `json:"ticket_type_id"`
	Quantity     int    `json:"quantity"`
	UnitPrice    int64  `json:"unit_price"`
	SeatID       string `json:"seat_id,omitempty"`
}

// BuyerInfo is collected during the info step. Phone is optional.
type BuyerInfo struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
}

// CheckoutSession is a time-boxed pending purchase. It lives in Redis
// until ExpiresAt and is consumed exactly once by a successful
// completion. Totals are snapshotted at creation so the buyer pays what
// they were shown.
type CheckoutSession struct {
	SessionID    string     `json:"session_id"`
	EventID      string     `json:"event_id"`
	UserID       string     `json:"user_id"`
	Items        []CartItem `json:"items"`
	Subtotal     int64      `json:"subtotal"`
	Discount     int64      `json:"discount"`
	Fees         int64      `json:"fees"`
	FeeBreakdown []FeeLine  `json:"fee_breakdown"`
	Tax          int64      `json:"tax"`
	Total        int64      `json:"total"`
	Currency     string     `json:"currency"`
	PromoCode    string     `json:"promo_code,omitempty"`
	PromoCodeID  string     `json:"promo_code_id,omitempty"`
	Buyer        *BuyerInfo `json:"buyer,omitempty"`
	FeePaidBy    FeePayer   `json:"fee_paid_by"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
}

// TicketTypeIDs returns the distinct ticket type IDs in the cart.
func (s *CheckoutSession) TicketTypeIDs() []string {
	seen := make(map[string]bool)
	ids := make([]string, 0, len(s.Items))
	for _, item := range s.Items {
		if !seen[item.TicketTypeID] {
			seen[item.TicketTypeID] = true
			ids = append(ids, item.TicketTypeID)
		}
	}
	return ids
}
