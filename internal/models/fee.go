package models

// All monetary amounts are int64 minor currency units (pence for GBP).
// Derived amounts are always produced by an explicit rounding rule,
// never by float truncation.

type FeePayer string

const (
	FeePaidByBuyer     FeePayer = "buyer"
	FeePaidByOrganizer FeePayer = "organizer"
)

// FeeConfig describes the platform's fee schedule. It is loaded once at
// startup and passed into the fee calculator; there is no runtime
// mutation path.
type FeeConfig struct {
	ServiceFeeRate  float64 // percent of subtotal charged to the buyer
	ServiceFeeCap   int64   // minor units, 0 = uncapped
	ProcessingFee   int64   // flat per-order fee in minor units
	PlatformFeeRate float64 // percent deducted from the organizer side
	Currency        string
}

// FeeLine is a single display line in a fee breakdown. Order of lines
// is stable: service fee first, then processing fee.
type FeeLine struct {
	Name        string `json:"name"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

type BuyerFees struct {
	ServiceFee    int64     `json:"service_fee"`
	ProcessingFee int64     `json:"processing_fee"`
	TotalFees     int64     `json:"total_fees"`
	Breakdown     []FeeLine `json:"breakdown"`
}

type OrganizerFees struct {
	PlatformFee int64     `json:"platform_fee"`
	TotalFees   int64     `json:"total_fees"`
	Breakdown   []FeeLine `json:"breakdown"`
}

// OrderTotals is computed fresh per request and never persisted by the
// fee calculator itself.
type OrderTotals struct {
	Subtotal           int64     `json:"subtotal"`
	Discount           int64     `json:"discount"`
	DiscountedSubtotal int64     `json:"discounted_subtotal"`
	Fees               int64     `json:"fees"`
	FeeBreakdown       []FeeLine `json:"fee_breakdown"`
	Total              int64     `json:"total"`
	Currency           string    `json:"currency"`
}

// OrganizerPayout itemizes the organizer settlement for an event.
// Refunds and the platform fee appear as negative deltas from gross.
type OrganizerPayout struct {
	GrossRevenue int64     `json:"gross_revenue"`
	Refunds      int64     `json:"refunds"`
	NetRevenue   int64     `json:"net_revenue"`
	PlatformFee  int64     `json:"platform_fee"`
	Payout       int64     `json:"payout"`
	Breakdown    []FeeLine `json:"breakdown"`
	Currency     string    `json:"currency"`
}
