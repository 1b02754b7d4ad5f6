package promo

import (
	"fmt"
	"strings"
	"time"

	"parlomo-ticketing/internal/models"
)

// ErrorCode identifies why a promo code was rejected. Codes are stable
// and surfaced to the UI layer.
type ErrorCode string

const (
	CodeNotFound        ErrorCode = "NOT_FOUND"
	CodeInactive        ErrorCode = "INACTIVE"
	CodeNotYetValid     ErrorCode = "NOT_YET_VALID"
	CodeExpired         ErrorCode = "EXPIRED"
	CodeMaxUsesReached  ErrorCode = "MAX_USES_REACHED"
	CodeUserLimit       ErrorCode = "USER_LIMIT_REACHED"
	CodeMinOrderNotMet  ErrorCode = "MIN_ORDER_NOT_MET"
	CodeNotApplicable   ErrorCode = "NOT_APPLICABLE"
)

// Context is the cart-side state a promo code is evaluated against.
type Context struct {
	Now               time.Time
	CartTotal         int64 // minor units
	CartTicketTypeIDs []string
	UserUseCount      int // prior uses of this code by the buyer
	Currency          string
}

// Result is a structured validation outcome. Business failures are
// never Go errors; the caller branches on Valid and shows Error to the
// user.
type Result struct {
	Valid     bool              `json:"valid"`
	Error     string            `json:"error,omitempty"`
	ErrorCode ErrorCode         `json:"error_code,omitempty"`
	PromoCode *models.PromoCode `json:"promo_code,omitempty"`
}

func invalid(code ErrorCode, message string) Result {
	return Result{Valid: false, Error: message, ErrorCode: code}
}

// Validate runs the eligibility checks for a single promo code. Checks
// are ordered and the first failure short-circuits, so the user always
// sees the most fundamental problem first.
func Validate(code *models.PromoCode, ctx Context) Result {
	if code == nil {
		return invalid(CodeNotFound, "Promo code not found")
	}

	if !code.Active {
		return invalid(CodeInactive, "This promo code is no longer active")
	}

	if ctx.Now.Before(code.ValidFrom) {
		return invalid(CodeNotYetValid, "This promo code is not valid yet")
	}
	if ctx.Now.After(code.ValidTo) {
		return invalid(CodeExpired, "This promo code has expired")
	}

	if code.MaxUses > 0 && code.CurrentUses >= code.MaxUses {
		return invalid(CodeMaxUsesReached, "This promo code has reached its usage limit")
	}

	if code.MaxPerUser > 0 && ctx.UserUseCount >= code.MaxPerUser {
		return invalid(CodeUserLimit, "You have already used this promo code the maximum number of times")
	}

	if code.MinOrderValue > 0 && ctx.CartTotal < code.MinOrderValue {
		return invalid(CodeMinOrderNotMet,
			fmt.Sprintf("A minimum order of %s is required to use this code", FormatAmount(code.MinOrderValue, ctx.Currency)))
	}

	if len(code.AppliesToTicketTypeIDs) > 0 {
		applicable := make(map[string]bool, len(code.AppliesToTicketTypeIDs))
		for _, id := range code.AppliesToTicketTypeIDs {
			applicable[id] = true
		}
		found := false
		for _, id := range ctx.CartTicketTypeIDs {
			if applicable[id] {
				found = true
				break
			}
		}
		if !found {
			return invalid(CodeNotApplicable, "This promo code does not apply to the tickets in your cart")
		}
	}

	return Result{Valid: true, PromoCode: code}
}

// CalculateDiscount computes the discount a promo code yields on a cart
// total. The result is always clamped so a discount can never make the
// order negative.
func CalculateDiscount(code *models.PromoCode, cartTotal int64) int64 {
	var discount int64
	switch code.Type {
	case models.PromoPercent:
		discount = roundPercent(cartTotal, code.Amount)
	default:
		discount = code.Amount
	}
	if discount > cartTotal {
		discount = cartTotal
	}
	return discount
}

// MultiResult is the outcome of validating a batch of stacked codes.
type MultiResult struct {
	Valid         bool     `json:"valid"`
	Error         string   `json:"error,omitempty"`
	ErrorCode     ErrorCode `json:"error_code,omitempty"`
	FailedCode    string   `json:"failed_code,omitempty"`
	TotalDiscount int64    `json:"total_discount"`
}

// ValidateMultiple validates stacked promo codes all-or-nothing: any
// single invalid code fails the whole batch. Per-code discounts are
// summed and the total clamped to the cart total.
func ValidateMultiple(codes []*models.PromoCode, ctx Context) MultiResult {
	var total int64
	for _, code := range codes {
		result := Validate(code, ctx)
		if !result.Valid {
			failed := ""
			if code != nil {
				failed = code.Code
			}
			return MultiResult{
				Valid:      false,
				Error:      result.Error,
				ErrorCode:  result.ErrorCode,
				FailedCode: failed,
			}
		}
		total += CalculateDiscount(code, ctx.CartTotal)
	}
	if total > ctx.CartTotal {
		total = ctx.CartTotal
	}
	return MultiResult{Valid: true, TotalDiscount: total}
}

// ExpiringSoon reports whether a code's validity window ends within
// daysThreshold days of now. Already-expired codes are not "expiring".
func ExpiringSoon(code *models.PromoCode, now time.Time, daysThreshold int) bool {
	remaining := code.ValidTo.Sub(now)
	return remaining > 0 && remaining <= time.Duration(daysThreshold)*24*time.Hour
}

// RunningLow reports whether a capped code has threshold percent or
// less of its uses remaining. Unlimited codes never run low.
func RunningLow(code *models.PromoCode, thresholdPct float64) bool {
	if code.MaxUses == 0 {
		return false
	}
	remaining := code.MaxUses - code.CurrentUses
	remainingPct := float64(remaining) / float64(code.MaxUses) * 100
	return remainingPct > 0 && remainingPct <= thresholdPct
}

// SanitizeCode normalizes user-entered promo codes before lookup:
// uppercased, trimmed, stripped to [A-Z0-9].
func SanitizeCode(raw string) string {
	upper := strings.ToUpper(strings.TrimSpace(raw))
	var b strings.Builder
	b.Grow(len(upper))
	for _, r := range upper {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FormatAmount renders a minor-unit amount for user-facing messages.
func FormatAmount(minor int64, currency string) string {
	major := float64(minor) / 100
	switch strings.ToUpper(currency) {
	case "", "GBP":
		return fmt.Sprintf("£%.2f", major)
	case "USD":
		return fmt.Sprintf("$%.2f", major)
	case "EUR":
		return fmt.Sprintf("€%.2f", major)
	default:
		return fmt.Sprintf("%.2f %s", major, strings.ToUpper(currency))
	}
}

func roundPercent(amount int64, rate int64) int64 {
	// Integer half-up rounding of amount * rate / 100.
	product := amount * rate
	return (product + 50) / 100
}
