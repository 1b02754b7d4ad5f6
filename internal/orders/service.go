package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"parlomo-ticketing/internal/checkout"
	"parlomo-ticketing/internal/checkout/session"
	"parlomo-ticketing/internal/logger"
	"parlomo-ticketing/internal/models"
	"parlomo-ticketing/internal/payments"
)

var (
	ErrSessionExpired      = errors.New("checkout session has expired")
	ErrSessionConsumed     = errors.New("checkout session was already completed")
	ErrPaymentNotCompleted = errors.New("payment has not completed")
	ErrPaymentMismatch     = errors.New("payment intent does not belong to this session")
)

type DBLayer interface {
	CreateOrder(ctx context.Context, order models.Order) error
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrderBySessionID(ctx context.Context, sessionID string) (*models.Order, error)
	UpdateOrder(ctx context.Context, order models.Order) error
	GetOrdersWithTicketsByUser(ctx context.Context, userID string) ([]models.OrderWithTickets, error)
}

type SessionStore interface {
	Get(ctx context.Context, sessionID string) (*models.CheckoutSession, error)
	Save(ctx context.Context, s models.CheckoutSession) error
	Consume(ctx context.Context, sessionID string) (bool, error)
	Delete(ctx context.Context, s models.CheckoutSession) error
	IncrementPromoUse(ctx context.Context, promoCodeID, userID string) (int64, error)
}

type PaymentProvider interface {
	CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*payments.Intent, error)
	RetrieveIntent(ctx context.Context, id string) (*payments.Intent, error)
}

type TicketIssuer interface {
	IssueForOrder(ctx context.Context, order models.Order, s models.CheckoutSession) ([]models.Ticket, error)
}

type KafkaPublisher interface {
	PublishOrderCompleted(order models.Order) error
	PublishOrderExpired(sessionID, eventID string) error
}

// Service turns consumed checkout sessions into persisted orders. It is
// the only component allowed to create orders, and it always goes
// through the session's consume-once gate first.
type Service struct {
	DB       DBLayer
	Sessions SessionStore
	Payments PaymentProvider
	Tickets  TicketIssuer
	Kafka    KafkaPublisher
	logger   *logger.Logger
}

func NewService(db DBLayer, sessions SessionStore, provider PaymentProvider, tickets TicketIssuer, kafka KafkaPublisher, log *logger.Logger) *Service {
	return &Service{
		DB:       db,
		Sessions: sessions,
		Payments: provider,
		Tickets:  tickets,
		Kafka:    kafka,
		logger:   log,
	}
}

// CreatePaymentIntent starts payment for a session. Free sessions skip
// the provider entirely. The buyer info is saved back onto the session
// so a webhook can finish the order if the client disappears.
func (s *Service) CreatePaymentIntent(ctx context.Context, sessionID string, buyer models.BuyerInfo) (*checkout.PaymentIntentResult, error) {
	sess, err := s.Sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return nil, ErrSessionExpired
		}
		return nil, err
	}

	sess.Buyer = &buyer
	if err := s.Sessions.Save(ctx, *sess); err != nil {
		return nil, fmt.Errorf("failed to save buyer info: %w", err)
	}

	if sess.Total == 0 {
		return &checkout.PaymentIntentResult{RequiresPayment: false}, nil
	}

	intent, err := s.Payments.CreateIntent(ctx, sess.Total, sess.Currency, map[string]string{
		"session_id": sess.SessionID,
		"event_id":   sess.EventID,
		"user_id":    sess.UserID,
	})
	if err != nil {
		return nil, err
	}

	return &checkout.PaymentIntentResult{
		RequiresPayment: true,
		ClientSecret:    intent.ClientSecret,
	}, nil
}

// VerifyPayment checks the intent directly with the provider and, on
// success, consumes the session and creates the order. The session
// lookup doubles as the server-side expiry check; the client countdown
// is never trusted.
func (s *Service) VerifyPayment(ctx context.Context, params checkout.VerifyPaymentParams) (*models.Order, error) {
	sess, err := s.Sessions.Get(ctx, params.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			// The webhook may have beaten us to it
			if order, dbErr := s.DB.GetOrderBySessionID(ctx, params.SessionID); dbErr == nil {
				return order, nil
			}
			return nil, ErrSessionExpired
		}
		return nil, err
	}

	intent, err := s.Payments.RetrieveIntent(ctx, params.PaymentIntentID)
	if err != nil {
		return nil, err
	}
	if intent.Metadata["session_id"] != params.SessionID {
		return nil, ErrPaymentMismatch
	}
	if !intent.Succeeded() {
		return nil, fmt.Errorf("%w: intent status %s", ErrPaymentNotCompleted, intent.Status)
	}

	return s.finalize(ctx, *sess, params.Buyer, intent.ID, "card")
}

// CompleteFreeCheckout finalizes a session with a zero total.
func (s *Service) CompleteFreeCheckout(ctx context.Context, params checkout.FreeCheckoutParams) (*models.Order, error) {
	sess, err := s.Sessions.Get(ctx, params.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return nil, ErrSessionExpired
		}
		return nil, err
	}
	if sess.Total != 0 {
		return nil, fmt.Errorf("session %s requires payment of %d %s", sess.SessionID, sess.Total, sess.Currency)
	}

	return s.finalize(ctx, *sess, params.Buyer, "", params.PaymentMethod)
}

// finalize is the single path from session to order. The consume gate
// ensures at most one caller gets past it per session.
func (s *Service) finalize(ctx context.Context, sess models.CheckoutSession, buyer models.BuyerInfo, paymentIntentID, paymentMethod string) (*models.Order, error) {
	ok, err := s.Sessions.Consume(ctx, sess.SessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost the race; return the order the winner created
		if order, dbErr := s.DB.GetOrderBySessionID(ctx, sess.SessionID); dbErr == nil {
			return order, nil
		}
		return nil, ErrSessionConsumed
	}

	now := time.Now()
	order := models.Order{
		OrderID:         uuid.NewString(),
		SessionID:       sess.SessionID,
		EventID:         sess.EventID,
		UserID:          sess.UserID,
		BuyerFirstName:  buyer.FirstName,
		BuyerLastName:   buyer.LastName,
		BuyerEmail:      buyer.Email,
		BuyerPhone:      buyer.Phone,
		Status:          models.OrderCompleted,
		Subtotal:        sess.Subtotal,
		Discount:        sess.Discount,
		Fees:            sess.Fees,
		Tax:             sess.Tax,
		Total:           sess.Total,
		Currency:        sess.Currency,
		PromoCodeID:     sess.PromoCodeID,
		PaymentIntentID: paymentIntentID,
		PaymentMethod:   paymentMethod,
		CreatedAt:       now,
		CompletedAt:     now,
	}

	if err := s.DB.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order for session %s: %w", sess.SessionID, err)
	}

	s.logger.LogCheckout("COMPLETED", sess.SessionID, fmt.Sprintf("order %s created, total %d %s", order.OrderID, order.Total, order.Currency))

	if sess.PromoCodeID != "" {
		if _, err := s.Sessions.IncrementPromoUse(ctx, sess.PromoCodeID, sess.UserID); err != nil {
			s.logger.Error("CHECKOUT", fmt.Sprintf("failed to record promo use for order %s: %v", order.OrderID, err))
		}
	}

	if _, err := s.Tickets.IssueForOrder(ctx, order, sess); err != nil {
		// The order stands; tickets can be reissued from it
		s.logger.Error("TICKET", fmt.Sprintf("failed to issue tickets for order %s: %v", order.OrderID, err))
	}

	if err := s.Kafka.PublishOrderCompleted(order); err != nil {
		s.logger.Error("KAFKA", fmt.Sprintf("failed to publish order completed for %s: %v", order.OrderID, err))
	}

	if err := s.Sessions.Delete(ctx, sess); err != nil {
		s.logger.Warn("CHECKOUT", fmt.Sprintf("failed to delete session %s: %v", sess.SessionID, err))
	}

	return &order, nil
}

// ExpireSession releases a session that ran out of time. Safe to call
// more than once; the consume gate makes the expiry event fire at most
// once per session.
func (s *Service) ExpireSession(ctx context.Context, sessionID string) error {
	sess, err := s.Sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return nil
		}
		return err
	}

	ok, err := s.Sessions.Consume(ctx, sessionID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	s.logger.LogCheckout("EXPIRED", sessionID, "session expired before completion")

	if err := s.Kafka.PublishOrderExpired(sessionID, sess.EventID); err != nil {
		s.logger.Error("KAFKA", fmt.Sprintf("failed to publish session expired for %s: %v", sessionID, err))
	}

	return s.Sessions.Delete(ctx, *sess)
}

// CompleteFromWebhook finalizes an order when Stripe reports success
// out of band. The buyer info saved at intent creation is used.
func (s *Service) CompleteFromWebhook(ctx context.Context, sessionID, paymentIntentID string) error {
	sess, err := s.Sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			// Already finalized through the synchronous path
			if _, dbErr := s.DB.GetOrderBySessionID(ctx, sessionID); dbErr == nil {
				return nil
			}
			return ErrSessionExpired
		}
		return err
	}

	var buyer models.BuyerInfo
	if sess.Buyer != nil {
		buyer = *sess.Buyer
	}

	_, err = s.finalize(ctx, *sess, buyer, paymentIntentID, "card")
	if errors.Is(err, ErrSessionConsumed) {
		return nil
	}
	return err
}

// FailFromWebhook records an out-of-band payment failure. The session is
// left alive so the buyer can retry until the countdown runs out.
func (s *Service) FailFromWebhook(ctx context.Context, sessionID, reason string) error {
	s.logger.LogPayment("FAILED", sessionID, reason)
	return nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	return s.DB.GetOrderByID(ctx, id)
}

func (s *Service) GetOrdersForUser(ctx context.Context, userID string) ([]models.OrderWithTickets, error) {
	return s.DB.GetOrdersWithTicketsByUser(ctx, userID)
}
