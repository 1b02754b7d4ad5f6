package handlers

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"parlomo-ticketing/internal/logger"
	"parlomo-ticketing/internal/models"
	"parlomo-ticketing/internal/payment/storage"
	"parlomo-ticketing/internal/payments"
	"parlomo-ticketing/internal/utils"
)

type StripeHandler struct {
	provider     *payments.StripeProvider
	paymentStore storage.Store
	logger       *logger.Logger
}

func NewStripeHandler(provider *payments.StripeProvider, paymentStore storage.Store, log *logger.Logger) *StripeHandler {
	return &StripeHandler{
		provider:     provider,
		paymentStore: paymentStore,
		logger:       log,
	}
}

func (h *StripeHandler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1/payments")
	{
		api.POST("/intents", h.CreateIntent)
		api.GET("/intents/:id", h.GetIntent)
		api.GET("/sessions/:sessionID", h.GetSessionPayment)
	}
	r.GET("/health", h.Health)
}

// CreateIntentRequest opens a payment intent for a checkout session.
// Amount is in minor units and must match the session total the
// ticketing service computed.
type CreateIntentRequest struct {
	SessionID string            `json:"session_id" binding:"required"`
	Amount    int64             `json:"amount" binding:"required,gt=0"`
	Currency  string            `json:"currency" binding:"required"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (h *StripeHandler) CreateIntent(c *gin.Context) {
	var req CreateIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", err.Error()))
		return
	}

	metadata := map[string]string{"session_id": req.SessionID}
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	intent, err := h.provider.CreateIntent(c.Request.Context(), req.Amount, req.Currency, metadata)
	if err != nil {
		h.logger.Error("PAYMENT", fmt.Sprintf("Failed to create intent for session %s: %v", req.SessionID, err))
		c.JSON(http.StatusBadGateway, utils.ErrorResponse("Payment provider error", err.Error()))
		return
	}

	payment := &models.Payment{
		PaymentID: uuid.NewString(),
		SessionID: req.SessionID,
		IntentID:  intent.ID,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Status:    models.PaymentPending,
		CreatedAt: time.Now(),
	}
	if err := h.paymentStore.SavePayment(payment); err != nil {
		h.logger.Error("PAYMENT", fmt.Sprintf("Failed to record payment %s: %v", payment.PaymentID, err))
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Failed to record payment", err.Error()))
		return
	}

	h.logger.LogPayment("INTENT_CREATED", req.SessionID, fmt.Sprintf("intent %s for %d %s", intent.ID, req.Amount, req.Currency))
	c.JSON(http.StatusCreated, utils.SuccessResponse("Payment intent created", gin.H{
		"payment_id":    payment.PaymentID,
		"intent_id":     intent.ID,
		"client_secret": intent.ClientSecret,
		"status":        intent.Status,
	}))
}

// GetIntent re-reads the intent from Stripe and syncs the stored
// payment record with its status.
func (h *StripeHandler) GetIntent(c *gin.Context) {
	intentID := c.Param("id")

	intent, err := h.provider.RetrieveIntent(c.Request.Context(), intentID)
	if err != nil {
		c.JSON(http.StatusNotFound, utils.ErrorResponse("Payment intent not found", err.Error()))
		return
	}

	if sessionID := intent.Metadata["session_id"]; sessionID != "" {
		if payment, err := h.paymentStore.GetPaymentBySessionID(sessionID); err == nil {
			status := paymentStatusFromIntent(intent)
			if status != payment.Status {
				if err := h.paymentStore.UpdatePaymentStatus(payment.PaymentID, status); err != nil {
					h.logger.Error("PAYMENT", fmt.Sprintf("Failed to sync payment %s: %v", payment.PaymentID, err))
				}
			}
		}
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Payment intent retrieved", gin.H{
		"intent_id": intent.ID,
		"status":    intent.Status,
		"amount":    intent.Amount,
		"currency":  intent.Currency,
	}))
}

func (h *StripeHandler) GetSessionPayment(c *gin.Context) {
	sessionID := c.Param("sessionID")

	payment, err := h.paymentStore.GetPaymentBySessionID(sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, utils.ErrorResponse("No payment for session", sessionID))
			return
		}
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Failed to load payment", err.Error()))
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Payment retrieved", payment))
}

func (h *StripeHandler) Health(c *gin.Context) {
	if err := h.paymentStore.HealthCheck(); err != nil {
		c.JSON(http.StatusServiceUnavailable, utils.ErrorResponse("Storage unavailable", err.Error()))
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse("OK", nil))
}

func paymentStatusFromIntent(intent *payments.Intent) models.PaymentStatus {
	switch {
	case intent.Succeeded():
		return models.PaymentSucceeded
	case intent.Status == "canceled":
		return models.PaymentFailed
	default:
		return models.PaymentPending
	}
}
