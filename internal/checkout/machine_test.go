package checkout_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"parlomo-ticketing/internal/checkout"
	"parlomo-ticketing/internal/logger"
	"parlomo-ticketing/internal/models"
)

// Mock implementations
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreatePaymentIntent(ctx context.Context, sessionID string, buyer models.BuyerInfo) (*checkout.PaymentIntentResult, error) {
	args := m.Called(ctx, sessionID, buyer)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*checkout.PaymentIntentResult), args.Error(1)
}

func (m *MockGateway) VerifyPayment(ctx context.Context, params checkout.VerifyPaymentParams) (*models.Order, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockGateway) CompleteFreeCheckout(ctx context.Context, params checkout.FreeCheckoutParams) (*models.Order, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

var testLogger = logger.NewLogger()

func testSession(clock *fakeClock, ttl time.Duration) models.CheckoutSession {
	return models.CheckoutSession{
		SessionID: "session-1",
		EventID:   "event-1",
		UserID:    "user-1",
		Items: []models.CartItem{
			{TicketTypeID: "tt-1", Quantity: 2, UnitPrice: 5000},
		},
		Subtotal:  10000,
		Fees:      700,
		Total:     10700,
		Currency:  "GBP",
		CreatedAt: clock.Now(),
		ExpiresAt: clock.Now().Add(ttl),
	}
}

func validBuyer() models.BuyerInfo {
	return models.BuyerInfo{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "ada@example.com",
	}
}

func TestCountdown(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)}
	gateway := new(MockGateway)

	machine := checkout.NewMachine(testSession(clock, 5*time.Second), gateway, testLogger,
		checkout.WithClock(clock.Now))

	// Countdown starts at 5 and ticks down one per poll
	assert.Equal(t, int64(5), machine.State().TimeRemaining)

	for expected := int64(4); expected >= 0; expected-- {
		clock.Advance(1 * time.Second)
		snapshot := machine.Poll()
		assert.Equal(t, expected, snapshot.TimeRemaining)
	}

	// Never negative, even when polls fire late
	clock.Advance(10 * time.Second)
	snapshot := machine.Poll()
	assert.Equal(t, int64(0), snapshot.TimeRemaining)
	assert.Equal(t, checkout.StepExpired, snapshot.Step)
}

func TestExpiryForcesExitFromAnyStep(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)}
	gateway := new(MockGateway)
	gateway.On("CreatePaymentIntent", mock.Anything, "session-1", mock.Anything).
		Return(&checkout.PaymentIntentResult{RequiresPayment: true, ClientSecret: "cs_123"}, nil)

	expired := make(chan struct{}, 1)
	machine := checkout.NewMachine(testSession(clock, 10*time.Minute), gateway, testLogger,
		checkout.WithClock(clock.Now),
		checkout.WithExpiryCallback(func() { expired <- struct{}{} }))

	snapshot := machine.ProceedToPayment(context.Background(), validBuyer())
	require.Equal(t, checkout.StepPayment, snapshot.Step)
	require.Equal(t, "cs_123", snapshot.ClientSecret)

	clock.Advance(11 * time.Minute)
	snapshot = machine.Poll()

	assert.Equal(t, checkout.StepExpired, snapshot.Step)
	// Expiry clears the in-flight payment UI state
	assert.Empty(t, snapshot.ClientSecret)

	select {
	case <-expired:
	case <-time.After(2 * time.Second):
		t.Fatal("expiry callback was not invoked")
	}

	// Terminal: transitions are ignored after expiry
	snapshot = machine.ProceedToPayment(context.Background(), validBuyer())
	assert.Equal(t, checkout.StepExpired, snapshot.Step)
}

func TestProceedToPaymentValidatesBuyerInfo(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)}
	gateway := new(MockGateway)

	machine := checkout.NewMachine(testSession(clock, 10*time.Minute), gateway, testLogger,
		checkout.WithClock(clock.Now))

	buyer := validBuyer()
	buyer.Email = ""
	snapshot := machine.ProceedToPayment(context.Background(), buyer)

	assert.Equal(t, checkout.StepInfo, snapshot.Step)
	assert.Equal(t, "Please fill in all required fields", snapshot.PaymentError)
	// The gateway is never called when local validation fails
	gateway.AssertNotCalled(t, "CreatePaymentIntent", mock.Anything, mock.Anything, mock.Anything)

	// Phone is optional
	buyer = validBuyer()
	buyer.Phone = ""
	gateway.On("CreatePaymentIntent", mock.Anything, "session-1", mock.Anything).
		Return(&checkout.PaymentIntentResult{RequiresPayment: true, ClientSecret: "cs_123"}, nil)
	snapshot = machine.ProceedToPayment(context.Background(), buyer)
	assert.Equal(t, checkout.StepPayment, snapshot.Step)
}

func TestFreeOrderSkipsPaymentStep(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)}
	gateway := new(MockGateway)
	gateway.On("CreatePaymentIntent", mock.Anything, "session-1", mock.Anything).
		Return(&checkout.PaymentIntentResult{RequiresPayment: false}, nil)

	order := &models.Order{OrderID: "order-1", PaymentMethod: "free"}
	gateway.On("CompleteFreeCheckout", mock.Anything, checkout.FreeCheckoutParams{
		SessionID:     "session-1",
		Buyer:         validBuyer(),
		PaymentMethod: "free",
	}).Return(order, nil)

	machine := checkout.NewMachine(testSession(clock, 10*time.Minute), gateway, testLogger,
		checkout.WithClock(clock.Now))

	snapshot := machine.ProceedToPayment(context.Background(), validBuyer())

	assert.Equal(t, checkout.StepComplete, snapshot.Step)
	assert.Equal(t, "order-1", snapshot.Order.OrderID)
	assert.Empty(t, snapshot.ClientSecret)
	// The payment verification path is never reached
	gateway.AssertNotCalled(t, "VerifyPayment", mock.Anything, mock.Anything)
}

func TestGatewayFailureIsRetryable(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)}
	gateway := new(MockGateway)
	gateway.On("CreatePaymentIntent", mock.Anything, "session-1", mock.Anything).
		Return(nil, assert.AnError).Once()
	gateway.On("CreatePaymentIntent", mock.Anything, "session-1", mock.Anything).
		Return(&checkout.PaymentIntentResult{RequiresPayment: true, ClientSecret: "cs_retry"}, nil).Once()

	machine := checkout.NewMachine(testSession(clock, 10*time.Minute), gateway, testLogger,
		checkout.WithClock(clock.Now))

	snapshot := machine.ProceedToPayment(context.Background(), validBuyer())
	assert.Equal(t, checkout.StepInfo, snapshot.Step)
	assert.NotEmpty(t, snapshot.PaymentError)

	// Retrying the same transition succeeds
	snapshot = machine.ProceedToPayment(context.Background(), validBuyer())
	assert.Equal(t, checkout.StepPayment, snapshot.Step)
	assert.Equal(t, "cs_retry", snapshot.ClientSecret)
	assert.Empty(t, snapshot.PaymentError)
}

func TestConfirmPayment(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)}
	gateway := new(MockGateway)
	gateway.On("CreatePaymentIntent", mock.Anything, "session-1", mock.Anything).
		Return(&checkout.PaymentIntentResult{RequiresPayment: true, ClientSecret: "cs_123"}, nil)

	order := &models.Order{OrderID: "order-1", PaymentIntentID: "pi_123"}
	gateway.On("VerifyPayment", mock.Anything, checkout.VerifyPaymentParams{
		SessionID:       "session-1",
		PaymentIntentID: "pi_123",
		Buyer:           validBuyer(),
	}).Return(order, nil)

	machine := checkout.NewMachine(testSession(clock, 10*time.Minute), gateway, testLogger,
		checkout.WithClock(clock.Now))

	machine.ProceedToPayment(context.Background(), validBuyer())
	snapshot := machine.ConfirmPayment(context.Background(), "pi_123")

	assert.Equal(t, checkout.StepComplete, snapshot.Step)
	assert.Equal(t, "order-1", snapshot.Order.OrderID)
}

func TestConfirmPaymentFailureKeepsPaymentStep(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)}
	gateway := new(MockGateway)
	gateway.On("CreatePaymentIntent", mock.Anything, "session-1", mock.Anything).
		Return(&checkout.PaymentIntentResult{RequiresPayment: true, ClientSecret: "cs_123"}, nil)
	gateway.On("VerifyPayment", mock.Anything, mock.Anything).
		Return(nil, assert.AnError)

	machine := checkout.NewMachine(testSession(clock, 10*time.Minute), gateway, testLogger,
		checkout.WithClock(clock.Now))

	machine.ProceedToPayment(context.Background(), validBuyer())
	snapshot := machine.ConfirmPayment(context.Background(), "pi_123")

	assert.Equal(t, checkout.StepPayment, snapshot.Step)
	assert.NotEmpty(t, snapshot.PaymentError)
	// Client secret survives so the buyer can retry the same card form
	assert.Equal(t, "cs_123", snapshot.ClientSecret)
}

func TestBackNavigation(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)}
	gateway := new(MockGateway)
	gateway.On("CreatePaymentIntent", mock.Anything, "session-1", mock.Anything).
		Return(&checkout.PaymentIntentResult{RequiresPayment: true, ClientSecret: "cs_123"}, nil)

	machine := checkout.NewMachine(testSession(clock, 10*time.Minute), gateway, testLogger,
		checkout.WithClock(clock.Now))

	machine.ProceedToPayment(context.Background(), validBuyer())
	snapshot := machine.Back()

	assert.Equal(t, checkout.StepInfo, snapshot.Step)
	assert.Empty(t, snapshot.ClientSecret)
	assert.Empty(t, snapshot.PaymentError)

	// Back from info is a no-op
	snapshot = machine.Back()
	assert.Equal(t, checkout.StepInfo, snapshot.Step)
}

func TestStopCancelsTicker(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)}
	gateway := new(MockGateway)

	machine := checkout.NewMachine(testSession(clock, 10*time.Minute), gateway, testLogger,
		checkout.WithClock(clock.Now))
	machine.Start()

	// Stop twice must not panic
	machine.Stop()
	machine.Stop()
}
