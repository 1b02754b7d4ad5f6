package fees

import (
	"fmt"
	"math"

	"parlomo-ticketing/internal/models"
)

// Calculator computes service, processing and platform fees from
// integer minor-currency-unit amounts. All functions are pure and
// total: no validation is performed and nothing is returned as an
// error. Callers guarantee sane non-negative inputs; in particular
// discount must never exceed the subtotal it is applied against.
type Calculator struct {
	cfg models.FeeConfig
}

// DefaultConfig is the platform fee schedule: 5% service fee capped at
// 1000 minor units, flat 200 processing fee, 10% organizer platform
// fee, GBP.
func DefaultConfig() models.FeeConfig {
	return models.FeeConfig{
		ServiceFeeRate:  5,
		ServiceFeeCap:   1000,
		ProcessingFee:   200,
		PlatformFeeRate: 10,
		Currency:        "GBP",
	}
}

func NewCalculator(cfg models.FeeConfig) *Calculator {
	if cfg.Currency == "" {
		cfg.Currency = "GBP"
	}
	return &Calculator{cfg: cfg}
}

// roundPercent computes amount * rate/100 rounded half-up to the
// nearest minor unit. Money rounding is always half-up here, never
// truncation.
func roundPercent(amount int64, rate float64) int64 {
	return int64(math.Floor(float64(amount)*rate/100 + 0.5))
}

// ServiceFee is the buyer-side percentage fee, capped at the configured
// maximum when a cap is set.
func (c *Calculator) ServiceFee(subtotal int64) int64 {
	fee := roundPercent(subtotal, c.cfg.ServiceFeeRate)
	if c.cfg.ServiceFeeCap > 0 && fee > c.cfg.ServiceFeeCap {
		fee = c.cfg.ServiceFeeCap
	}
	return fee
}

// ProcessingFee is a flat per-order fee, independent of the subtotal.
func (c *Calculator) ProcessingFee() int64 {
	return c.cfg.ProcessingFee
}

// BuyerFees itemizes every fee the buyer pays on top of the (already
// discounted) subtotal. Breakdown order is stable: service fee first,
// then processing fee.
func (c *Calculator) BuyerFees(subtotal int64) models.BuyerFees {
	serviceFee := c.ServiceFee(subtotal)
	processingFee := c.ProcessingFee()
	return models.BuyerFees{
		ServiceFee:    serviceFee,
		ProcessingFee: processingFee,
		TotalFees:     serviceFee + processingFee,
		Breakdown: []models.FeeLine{
			{
				Name:        "Service Fee",
				Amount:      serviceFee,
				Description: fmt.Sprintf("%.4g%% service fee", c.cfg.ServiceFeeRate),
			},
			{
				Name:        "Processing Fee",
				Amount:      processingFee,
				Description: "Flat payment processing fee",
			},
		},
	}
}

// PlatformFee is the organizer-side percentage fee. Unlike the service
// fee it is never capped.
func (c *Calculator) PlatformFee(subtotal int64) int64 {
	return roundPercent(subtotal, c.cfg.PlatformFeeRate)
}

// OrganizerFees mirrors BuyerFees for the organizer side: a single
// platform fee line, no cap.
func (c *Calculator) OrganizerFees(subtotal int64) models.OrganizerFees {
	platformFee := c.PlatformFee(subtotal)
	return models.OrganizerFees{
		PlatformFee: platformFee,
		TotalFees:   platformFee,
		Breakdown: []models.FeeLine{
			{
				Name:        "Platform Fee",
				Amount:      platformFee,
				Description: fmt.Sprintf("%.4g%% platform fee", c.cfg.PlatformFeeRate),
			},
		},
	}
}

// OrderTotalParams are the inputs to OrderTotal. Discount defaults to
// zero; IncludeFees defaults should be set explicitly by the caller.
type OrderTotalParams struct {
	Subtotal    int64
	Discount    int64
	IncludeFees bool
}

// OrderTotal computes the buyer-facing totals for an order. Fees are
// computed on the discounted subtotal; when IncludeFees is false every
// fee is zero and the breakdown is empty.
func (c *Calculator) OrderTotal(p OrderTotalParams) models.OrderTotals {
	discountedSubtotal := p.Subtotal - p.Discount

	var fees int64
	var breakdown []models.FeeLine
	if p.IncludeFees {
		buyerFees := c.BuyerFees(discountedSubtotal)
		fees = buyerFees.TotalFees
		breakdown = buyerFees.Breakdown
	} else {
		breakdown = []models.FeeLine{}
	}

	return models.OrderTotals{
		Subtotal:           p.Subtotal,
		Discount:           p.Discount,
		DiscountedSubtotal: discountedSubtotal,
		Fees:               fees,
		FeeBreakdown:       breakdown,
		Total:              discountedSubtotal + fees,
		Currency:           c.cfg.Currency,
	}
}

// PayoutParams are the inputs to OrganizerPayout.
type PayoutParams struct {
	TicketRevenue int64
	Refunds       int64
}

// OrganizerPayout settles an organizer's earnings: refunds come off the
// gross, the platform fee is computed on the net, and both appear as
// negative deltas in the breakdown.
func (c *Calculator) OrganizerPayout(p PayoutParams) models.OrganizerPayout {
	netRevenue := p.TicketRevenue - p.Refunds
	platformFee := c.PlatformFee(netRevenue)
	return models.OrganizerPayout{
		GrossRevenue: p.TicketRevenue,
		Refunds:      p.Refunds,
		NetRevenue:   netRevenue,
		PlatformFee:  platformFee,
		Payout:       netRevenue - platformFee,
		Breakdown: []models.FeeLine{
			{Name: "Ticket Revenue", Amount: p.TicketRevenue, Description: "Gross ticket sales"},
			{Name: "Refunds", Amount: -p.Refunds, Description: "Refunded orders"},
			{Name: "Platform Fee", Amount: -platformFee, Description: fmt.Sprintf("%.4g%% of net revenue", c.cfg.PlatformFeeRate)},
		},
		Currency: c.cfg.Currency,
	}
}

// Tax returns the rounded percentage tax on an amount, or zero for a
// non-positive rate.
func (c *Calculator) Tax(amount int64, taxRate float64) int64 {
	if taxRate <= 0 {
		return 0
	}
	return roundPercent(amount, taxRate)
}

// DiscountParams describe a discount to apply to an amount.
type DiscountParams struct {
	Amount        int64
	DiscountType  models.PromoType
	DiscountValue int64
}

// ApplyDiscount computes the discounted delta for an amount. A percent
// discount is rounded half-up; a fixed discount can never exceed the
// amount it is applied to.
func (c *Calculator) ApplyDiscount(p DiscountParams) int64 {
	switch p.DiscountType {
	case models.PromoPercent:
		return roundPercent(p.Amount, float64(p.DiscountValue))
	default:
		if p.DiscountValue > p.Amount {
			return p.Amount
		}
		return p.DiscountValue
	}
}
