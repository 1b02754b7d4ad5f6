package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"

	"parlomo-ticketing/internal/logger"
)

// Intent is the provider-neutral view of a payment intent. Amount is in
// minor units, matching everything else in the system.
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
	Amount       int64
	Currency     string
	Metadata     map[string]string
}

// Succeeded reports whether the intent has been captured.
func (i *Intent) Succeeded() bool {
	return i.Status == string(stripe.PaymentIntentStatusSucceeded)
}

// StripeProvider creates and retrieves payment intents via Stripe.
type StripeProvider struct {
	logger *logger.Logger
}

func NewStripeProvider(secretKey string, log *logger.Logger) *StripeProvider {
	stripe.Key = secretKey
	return &StripeProvider{logger: log}
}

// CreateIntent creates a payment intent for a checkout session. The
// session ID travels in metadata so webhooks can find their way back.
func (p *StripeProvider) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Params:   stripe.Params{Context: ctx},
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(strings.ToLower(currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	intent, err := paymentintent.New(params)
	if err != nil {
		p.logger.Error("PAYMENT", fmt.Sprintf("Failed to create Stripe payment intent: %v", err))
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	p.logger.LogPayment("INTENT_CREATED", metadata["session_id"], fmt.Sprintf("intent %s for %d %s", intent.ID, amount, currency))
	return fromStripeIntent(intent), nil
}

// RetrieveIntent fetches the current state of a payment intent.
func (p *StripeProvider) RetrieveIntent(ctx context.Context, id string) (*Intent, error) {
	intent, err := paymentintent.Get(id, &stripe.PaymentIntentParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		p.logger.Error("PAYMENT", fmt.Sprintf("Failed to retrieve Stripe payment intent %s: %v", id, err))
		return nil, fmt.Errorf("failed to retrieve payment intent %s: %w", id, err)
	}
	return fromStripeIntent(intent), nil
}

func fromStripeIntent(intent *stripe.PaymentIntent) *Intent {
	return &Intent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       string(intent.Status),
		Amount:       intent.Amount,
		Currency:     string(intent.Currency),
		Metadata:     intent.Metadata,
	}
}
