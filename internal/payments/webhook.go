package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"parlomo-ticketing/internal/logger"
)

// WebhookError carries the split between what the caller may expose and
// what belongs in logs.
type WebhookError struct {
	Category      string // "configuration", "validation", "processing"
	StatusCode    int
	PublicError   string
	InternalError string
	OriginalErr   error
}

func (e *WebhookError) Error() string {
	return e.InternalError
}

// OrderCompleter finalizes or fails an order when Stripe reports the
// payment outcome out of band.
type OrderCompleter interface {
	CompleteFromWebhook(ctx context.Context, sessionID, paymentIntentID string) error
	FailFromWebhook(ctx context.Context, sessionID, reason string) error
}

// WebhookHandler verifies and dispatches Stripe webhook events.
type WebhookHandler struct {
	secret    string
	completer OrderCompleter
	logger    *logger.Logger
}

func NewWebhookHandler(secret string, completer OrderCompleter, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{secret: secret, completer: completer, logger: log}
}

// Handle processes one webhook request. Callers map the returned
// WebhookError's StatusCode and PublicError onto the HTTP response.
func (h *WebhookHandler) Handle(r *http.Request) error {
	if h.secret == "" {
		h.logger.Error("WEBHOOK", "Stripe webhook secret is not configured")
		return &WebhookError{
			Category:      "configuration",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Webhook processing error",
			InternalError: "Stripe webhook secret is not configured",
		}
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error("WEBHOOK", fmt.Sprintf("Failed to read webhook payload: %v", err))
		return &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid webhook payload",
			InternalError: fmt.Sprintf("Failed to read webhook payload: %v", err),
			OriginalErr:   err,
		}
	}

	opts := webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	}
	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), h.secret, opts)
	if err != nil {
		h.logger.Error("WEBHOOK", fmt.Sprintf("Webhook signature verification failed: %v", err))
		return &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid webhook signature",
			InternalError: fmt.Sprintf("Webhook signature verification failed: %v", err),
			OriginalErr:   err,
		}
	}

	h.logger.Info("WEBHOOK", fmt.Sprintf("Processing Stripe webhook event: %s", event.Type))

	switch event.Type {
	case "payment_intent.succeeded":
		return h.handleIntentSucceeded(r.Context(), event)
	case "payment_intent.payment_failed":
		return h.handleIntentFailed(r.Context(), event)
	default:
		h.logger.Info("WEBHOOK", fmt.Sprintf("Unhandled event type: %s", event.Type))
	}

	return nil
}

func (h *WebhookHandler) handleIntentSucceeded(ctx context.Context, event stripe.Event) error {
	intent, werr := h.unmarshalIntent(event)
	if werr != nil {
		return werr
	}

	sessionID, exists := intent.Metadata["session_id"]
	if !exists {
		h.logger.Error("WEBHOOK", "Payment intent has no session_id in metadata")
		return &WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid payment intent data",
			InternalError: "Payment intent has no session_id in metadata",
		}
	}

	if err := h.completer.CompleteFromWebhook(ctx, sessionID, intent.ID); err != nil {
		h.logger.Error("WEBHOOK", fmt.Sprintf("Failed to complete order for session %s: %v", sessionID, err))
		return &WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Failed to process payment",
			InternalError: fmt.Sprintf("Failed to complete order for session %s: %v", sessionID, err),
			OriginalErr:   err,
		}
	}

	h.logger.Info("WEBHOOK", fmt.Sprintf("Successfully processed payment for session %s", sessionID))
	return nil
}

func (h *WebhookHandler) handleIntentFailed(ctx context.Context, event stripe.Event) error {
	intent, werr := h.unmarshalIntent(event)
	if werr != nil {
		return werr
	}

	sessionID, exists := intent.Metadata["session_id"]
	if !exists {
		h.logger.Error("WEBHOOK", "Failed payment intent has no session_id in metadata")
		return &WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid payment intent data",
			InternalError: "Failed payment intent has no session_id in metadata",
		}
	}

	reason := "payment failed"
	if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
		reason = intent.LastPaymentError.Msg
	}

	if err := h.completer.FailFromWebhook(ctx, sessionID, reason); err != nil {
		h.logger.Error("WEBHOOK", fmt.Sprintf("Failed to record payment failure for session %s: %v", sessionID, err))
		return &WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Failed to record payment failure",
			InternalError: fmt.Sprintf("Failed to record payment failure for session %s: %v", sessionID, err),
			OriginalErr:   err,
		}
	}

	h.logger.Info("WEBHOOK", fmt.Sprintf("Recorded payment failure for session %s", sessionID))
	return nil
}

func (h *WebhookHandler) unmarshalIntent(event stripe.Event) (*stripe.PaymentIntent, *WebhookError) {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		h.logger.Error("WEBHOOK", fmt.Sprintf("Failed to unmarshal payment intent: %v", err))
		return nil, &WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid event data",
			InternalError: fmt.Sprintf("Failed to unmarshal payment intent: %v", err),
			OriginalErr:   err,
		}
	}
	return &intent, nil
}
