package checkout

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"parlomo-ticketing/internal/logger"
	"parlomo-ticketing/internal/models"
)

// Step is the buyer-facing checkout step. complete and expired are
// terminal.
type Step string

const (
	StepInfo     Step = "info"
	StepPayment  Step = "payment"
	StepComplete Step = "complete"
	StepExpired  Step = "expired"
)

const requiredFieldsMessage = "Please fill in all required fields"

// PaymentIntentResult is the outcome of asking the gateway for a
// payment intent. RequiresPayment false means the order is free and
// the payment step is skipped entirely.
type PaymentIntentResult struct {
	RequiresPayment bool   `json:"requires_payment"`
	ClientSecret    string `json:"client_secret,omitempty"`
}

// VerifyPaymentParams keys the server-side verification call that
// atomically consumes the session and creates the order.
type VerifyPaymentParams struct {
	SessionID       string
	PaymentIntentID string
	Buyer           models.BuyerInfo
}

// FreeCheckoutParams completes a zero-total order without a payment
// intent.
type FreeCheckoutParams struct {
	SessionID     string
	Buyer         models.BuyerInfo
	PaymentMethod string
}

// Gateway is everything the machine needs from the payment/order side.
// The atomic consume-session-and-create-order guarantee lives behind
// VerifyPayment and CompleteFreeCheckout, not in the machine.
type Gateway interface {
	CreatePaymentIntent(ctx context.Context, sessionID string, buyer models.BuyerInfo) (*PaymentIntentResult, error)
	VerifyPayment(ctx context.Context, params VerifyPaymentParams) (*models.Order, error)
	CompleteFreeCheckout(ctx context.Context, params FreeCheckoutParams) (*models.Order, error)
}

// Snapshot is the observable state the UI layer renders from.
type Snapshot struct {
	Step          Step          `json:"step"`
	TimeRemaining int64         `json:"time_remaining"`
	PaymentError  string        `json:"payment_error,omitempty"`
	ClientSecret  string        `json:"client_secret,omitempty"`
	Order         *models.Order `json:"order,omitempty"`
}

// Machine drives one buyer through a checkout session: info →
// payment → complete, or expired when the countdown hits zero. The
// countdown is advisory; session validity is re-checked server-side at
// completion.
type Machine struct {
	mu      sync.Mutex
	session models.CheckoutSession
	gateway Gateway
	log     *logger.Logger
	now     func() time.Time

	step          Step
	timeRemaining int64
	paymentError  string
	clientSecret  string
	buyer         models.BuyerInfo
	order         *models.Order

	stopTicker chan struct{}
	stopOnce   sync.Once
	onExpire   func()
}

type Option func(*Machine)

// WithClock injects the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithExpiryCallback registers a hook invoked once when the countdown
// forces the session into the expired state.
func WithExpiryCallback(fn func()) Option {
	return func(m *Machine) { m.onExpire = fn }
}

func NewMachine(session models.CheckoutSession, gateway Gateway, log *logger.Logger, opts ...Option) *Machine {
	m := &Machine{
		session:    session,
		gateway:    gateway,
		log:        log,
		now:        time.Now,
		step:       StepInfo,
		stopTicker: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.Poll()
	return m
}

// Start begins the 1-second countdown cadence. Stop must be called on
// teardown or the ticker goroutine leaks.
func (m *Machine) Start() {
	ticker := time.NewTicker(1 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Poll()
			case <-m.stopTicker:
				return
			}
		}
	}()
}

func (m *Machine) Stop() {
	m.stopOnce.Do(func() { close(m.stopTicker) })
}

// Poll recomputes the countdown from the wall clock and forces expiry
// when it reaches zero. It is called once at construction and then on
// every tick.
func (m *Machine) Poll() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	remaining := m.session.ExpiresAt.Sub(m.now()).Seconds()
	if remaining < 0 {
		remaining = 0
	}
	m.timeRemaining = int64(remaining)

	if m.timeRemaining == 0 && m.step != StepComplete && m.step != StepExpired {
		m.log.LogCheckout("EXPIRED", m.session.SessionID, "countdown reached zero, forcing exit")
		m.step = StepExpired
		m.clientSecret = ""
		m.paymentError = ""
		if m.onExpire != nil {
			go m.onExpire()
		}
	}

	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() Snapshot {
	return Snapshot{
		Step:          m.step,
		TimeRemaining: m.timeRemaining,
		PaymentError:  m.paymentError,
		ClientSecret:  m.clientSecret,
		Order:         m.order,
	}
}

// State returns the current observable state.
func (m *Machine) State() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Session returns the session snapshot the machine was created with.
func (m *Machine) Session() models.CheckoutSession {
	return m.session
}

func validateBuyerInfo(buyer models.BuyerInfo) bool {
	return strings.TrimSpace(buyer.FirstName) != "" &&
		strings.TrimSpace(buyer.LastName) != "" &&
		strings.TrimSpace(buyer.Email) != ""
}

// ProceedToPayment validates buyer info and asks the gateway for a
// payment intent. Free orders skip the payment step and complete
// immediately via the free checkout path. Failures surface as
// paymentError without changing step; the buyer may retry.
func (m *Machine) ProceedToPayment(ctx context.Context, buyer models.BuyerInfo) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.step != StepInfo {
		return m.snapshotLocked()
	}

	if !validateBuyerInfo(buyer) {
		m.paymentError = requiredFieldsMessage
		return m.snapshotLocked()
	}

	m.buyer = buyer
	m.paymentError = ""

	m.mu.Unlock()
	result, err := m.gateway.CreatePaymentIntent(ctx, m.session.SessionID, buyer)
	m.mu.Lock()

	if m.step != StepInfo {
		// Expired while the call was in flight
		return m.snapshotLocked()
	}

	if err != nil {
		m.log.Error("CHECKOUT", fmt.Sprintf("payment intent creation failed for session %s: %v", m.session.SessionID, err))
		m.paymentError = "Unable to start payment. Please try again."
		return m.snapshotLocked()
	}

	if !result.RequiresPayment {
		m.log.LogCheckout("FREE", m.session.SessionID, "no payment required, completing via free checkout")
		m.mu.Unlock()
		order, err := m.gateway.CompleteFreeCheckout(ctx, FreeCheckoutParams{
			SessionID:     m.session.SessionID,
			Buyer:         buyer,
			PaymentMethod: "free",
		})
		m.mu.Lock()
		if err != nil {
			m.paymentError = "Unable to complete your order. Please try again."
			return m.snapshotLocked()
		}
		m.order = order
		m.step = StepComplete
		return m.snapshotLocked()
	}

	m.clientSecret = result.ClientSecret
	m.step = StepPayment
	return m.snapshotLocked()
}

// ConfirmPayment reacts to the gateway's success callback: it verifies
// the payment server-side, which consumes the session and creates the
// order atomically.
func (m *Machine) ConfirmPayment(ctx context.Context, paymentIntentID string) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.step != StepPayment {
		return m.snapshotLocked()
	}

	buyer := m.buyer

	m.mu.Unlock()
	order, err := m.gateway.VerifyPayment(ctx, VerifyPaymentParams{
		SessionID:       m.session.SessionID,
		PaymentIntentID: paymentIntentID,
		Buyer:           buyer,
	})
	m.mu.Lock()

	if m.step != StepPayment {
		return m.snapshotLocked()
	}

	if err != nil {
		m.log.Error("CHECKOUT", fmt.Sprintf("payment verification failed for session %s: %v", m.session.SessionID, err))
		m.paymentError = "Payment verification failed. Please try again."
		return m.snapshotLocked()
	}

	m.order = order
	m.paymentError = ""
	m.clientSecret = ""
	m.step = StepComplete
	return m.snapshotLocked()
}

// Back returns from the payment step to info. The client secret and
// any payment error are cleared; the session itself stays valid.
func (m *Machine) Back() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.step == StepPayment {
		m.step = StepInfo
		m.clientSecret = ""
		m.paymentError = ""
	}
	return m.snapshotLocked()
}
