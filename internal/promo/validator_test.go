package promo_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"parlomo-ticketing/internal/models"
	"parlomo-ticketing/internal/promo"
)

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

// validPromo returns a code that passes every check against defaultCtx.
func validPromo() *models.PromoCode {
	return &models.PromoCode{
		ID:          "promo-1",
		Code:        "SUMMER10",
		Active:      true,
		ValidFrom:   now.Add(-24 * time.Hour),
		ValidTo:     now.Add(24 * time.Hour),
		Type:        models.PromoPercent,
		Amount:      10,
		MaxUses:     100,
		CurrentUses: 5,
	}
}

func defaultCtx() promo.Context {
	return promo.Context{
		Now:               now,
		CartTotal:         10000,
		CartTicketTypeIDs: []string{"tt-1", "tt-2"},
		Currency:          "GBP",
	}
}

func TestValidateAcceptsValidCode(t *testing.T) {
	result := promo.Validate(validPromo(), defaultCtx())

	assert.True(t, result.Valid)
	assert.Empty(t, result.ErrorCode)
	assert.Equal(t, "SUMMER10", result.PromoCode.Code)
}

func TestValidateNilCode(t *testing.T) {
	result := promo.Validate(nil, defaultCtx())

	assert.False(t, result.Valid)
	assert.Equal(t, promo.CodeNotFound, result.ErrorCode)
}

func TestValidateInactive(t *testing.T) {
	code := validPromo()
	code.Active = false

	result := promo.Validate(code, defaultCtx())
	assert.Equal(t, promo.CodeInactive, result.ErrorCode)
}

func TestValidateWindow(t *testing.T) {
	code := validPromo()
	code.ValidFrom = now.Add(1 * time.Hour)
	result := promo.Validate(code, defaultCtx())
	assert.Equal(t, promo.CodeNotYetValid, result.ErrorCode)

	// Expired wins regardless of every other field being valid
	code = validPromo()
	code.ValidTo = now.Add(-1 * time.Minute)
	result = promo.Validate(code, defaultCtx())
	assert.Equal(t, promo.CodeExpired, result.ErrorCode)
}

func TestValidateUsageCaps(t *testing.T) {
	code := validPromo()
	code.MaxUses = 10
	code.CurrentUses = 10
	result := promo.Validate(code, defaultCtx())
	assert.Equal(t, promo.CodeMaxUsesReached, result.ErrorCode)

	// MaxUses == 0 means unlimited
	code = validPromo()
	code.MaxUses = 0
	code.CurrentUses = 99999
	assert.True(t, promo.Validate(code, defaultCtx()).Valid)

	code = validPromo()
	code.MaxPerUser = 2
	ctx := defaultCtx()
	ctx.UserUseCount = 2
	result = promo.Validate(code, ctx)
	assert.Equal(t, promo.CodeUserLimit, result.ErrorCode)
}

func TestValidateMinOrderValue(t *testing.T) {
	code := validPromo()
	code.MinOrderValue = 20000

	result := promo.Validate(code, defaultCtx())
	assert.Equal(t, promo.CodeMinOrderNotMet, result.ErrorCode)
	// The message carries the formatted minimum
	assert.Contains(t, result.Error, "£200.00")
}

func TestValidateApplicability(t *testing.T) {
	code := validPromo()
	code.AppliesToTicketTypeIDs = []string{"tt-9"}

	result := promo.Validate(code, defaultCtx())
	assert.Equal(t, promo.CodeNotApplicable, result.ErrorCode)

	// One intersecting ticket type is enough
	code.AppliesToTicketTypeIDs = []string{"tt-9", "tt-2"}
	assert.True(t, promo.Validate(code, defaultCtx()).Valid)

	// Empty set applies to everything
	code.AppliesToTicketTypeIDs = nil
	assert.True(t, promo.Validate(code, defaultCtx()).Valid)
}

func TestCheckOrderIsDeterministic(t *testing.T) {
	// A code that is inactive AND expired reports INACTIVE: the active
	// flag is checked before the validity window.
	code := validPromo()
	code.Active = false
	code.ValidTo = now.Add(-1 * time.Hour)

	result := promo.Validate(code, defaultCtx())
	assert.Equal(t, promo.CodeInactive, result.ErrorCode)
}

func TestCalculateDiscount(t *testing.T) {
	code := validPromo()
	code.Type = models.PromoPercent
	code.Amount = 10
	assert.Equal(t, int64(1000), promo.CalculateDiscount(code, 10000))

	// 150% clamps to the cart total
	code.Amount = 150
	assert.Equal(t, int64(1000), promo.CalculateDiscount(code, 1000))

	code.Type = models.PromoFixed
	code.Amount = 500
	assert.Equal(t, int64(500), promo.CalculateDiscount(code, 10000))

	// Fixed discount clamps too
	code.Amount = 50000
	assert.Equal(t, int64(10000), promo.CalculateDiscount(code, 10000))
}

func TestValidateMultiple(t *testing.T) {
	first := validPromo()
	second := validPromo()
	second.ID = "promo-2"
	second.Code = "EXTRA5"
	second.Type = models.PromoFixed
	second.Amount = 500

	result := promo.ValidateMultiple([]*models.PromoCode{first, second}, defaultCtx())
	assert.True(t, result.Valid)
	// 10% of 10000 + fixed 500
	assert.Equal(t, int64(1500), result.TotalDiscount)
}

func TestValidateMultipleAllOrNothing(t *testing.T) {
	good := validPromo()
	expired := validPromo()
	expired.Code = "OLD"
	expired.ValidTo = now.Add(-1 * time.Hour)

	result := promo.ValidateMultiple([]*models.PromoCode{good, expired}, defaultCtx())
	assert.False(t, result.Valid)
	assert.Equal(t, promo.CodeExpired, result.ErrorCode)
	assert.Equal(t, "OLD", result.FailedCode)
	assert.Zero(t, result.TotalDiscount)
}

func TestValidateMultipleClampsTotal(t *testing.T) {
	first := validPromo()
	first.Type = models.PromoFixed
	first.Amount = 8000
	second := validPromo()
	second.ID = "promo-2"
	second.Code = "MORE"
	second.Type = models.PromoFixed
	second.Amount = 8000

	result := promo.ValidateMultiple([]*models.PromoCode{first, second}, defaultCtx())
	assert.True(t, result.Valid)
	assert.Equal(t, int64(10000), result.TotalDiscount)
}

func TestExpiringSoon(t *testing.T) {
	code := validPromo()

	code.ValidTo = now.Add(3 * 24 * time.Hour)
	assert.True(t, promo.ExpiringSoon(code, now, 7))

	code.ValidTo = now.Add(10 * 24 * time.Hour)
	assert.False(t, promo.ExpiringSoon(code, now, 7))

	// Already expired is not "expiring soon"
	code.ValidTo = now.Add(-1 * time.Hour)
	assert.False(t, promo.ExpiringSoon(code, now, 7))
}

func TestRunningLow(t *testing.T) {
	code := validPromo()

	code.MaxUses = 100
	code.CurrentUses = 95
	assert.True(t, promo.RunningLow(code, 10))

	code.CurrentUses = 50
	assert.False(t, promo.RunningLow(code, 10))

	// Exhausted codes are not "running low", they are done
	code.CurrentUses = 100
	assert.False(t, promo.RunningLow(code, 10))

	// Unlimited codes never run low
	code.MaxUses = 0
	code.CurrentUses = 0
	assert.False(t, promo.RunningLow(code, 10))
}

func TestSanitizeCode(t *testing.T) {
	assert.Equal(t, "SUMMER10", promo.SanitizeCode("  summer10  "))
	assert.Equal(t, "SUMMER10", promo.SanitizeCode("sum-mer_10!"))
	assert.Equal(t, "ABC123", promo.SanitizeCode("abc 123"))
	assert.Equal(t, "", promo.SanitizeCode("***"))
}
