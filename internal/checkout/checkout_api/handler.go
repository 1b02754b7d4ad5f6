package checkout_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"parlomo-ticketing/internal/auth"
	"parlomo-ticketing/internal/checkout"
	"parlomo-ticketing/internal/fees"
	"parlomo-ticketing/internal/logger"
	"parlomo-ticketing/internal/models"
	"parlomo-ticketing/internal/promo"
	"parlomo-ticketing/internal/sse"
)

// SessionStore is the slice of the Redis session layer the HTTP
// surface needs.
type SessionStore interface {
	Save(ctx context.Context, session models.CheckoutSession) error
	HoldSeats(ctx context.Context, seatIDs []string, sessionID string, ttl time.Duration) (bool, error)
	ReleaseSeats(ctx context.Context, seatIDs []string, sessionID string) error
	PromoUseCount(ctx context.Context, promoCodeID, userID string) (int, error)
}

// PromoSource resolves promo codes for an event. Backed by the
// promo.Fetcher in production.
type PromoSource interface {
	FetchByCode(ctx context.Context, code, eventID string) (*models.PromoCode, error)
}

type Handler struct {
	Registry   *checkout.Registry
	Store      SessionStore
	Fees       *fees.Calculator
	Promos     PromoSource
	Emitter    *sse.CheckoutEventEmitter
	SessionTTL time.Duration
	Logger     *logger.Logger

	now func() time.Time
}

func NewHandler(registry *checkout.Registry, store SessionStore, calc *fees.Calculator, promos PromoSource, emitter *sse.CheckoutEventEmitter, sessionTTL time.Duration) *Handler {
	return &Handler{
		Registry:   registry,
		Store:      store,
		Fees:       calc,
		Promos:     promos,
		Emitter:    emitter,
		SessionTTL: sessionTTL,
		Logger:     logger.NewLogger(),
		now:        time.Now,
	}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/checkout/sessions", h.CreateSession)
	r.Get("/checkout/sessions/{sessionID}", h.GetSession)
	r.Post("/checkout/sessions/{sessionID}/payment", h.ProceedToPayment)
	r.Post("/checkout/sessions/{sessionID}/confirm", h.ConfirmPayment)
	r.Post("/checkout/sessions/{sessionID}/back", h.Back)
	r.Get("/checkout/sessions/{sessionID}/events", h.StreamSession)
	r.Post("/checkout/promo/validate", h.ValidatePromo)
}

// CreateSessionRequest opens a checkout. Unit prices are snapshotted by
// the caller's catalog lookup and arrive in minor units.
type CreateSessionRequest struct {
	EventID   string            `json:"event_id"`
	UserID    string            `json:"user_id,omitempty"`
	Items     []models.CartItem `json:"items"`
	PromoCode string            `json:"promo_code,omitempty"`
	FeePaidBy models.FeePayer   `json:"fee_paid_by,omitempty"`
}

// CreateSessionResponse is returned on session creation and on
// snapshot reads.
type CreateSessionResponse struct {
	Session  models.CheckoutSession `json:"session"`
	Snapshot checkout.Snapshot      `json:"snapshot"`
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	h.Logger.Info("API", "CreateSession: received request")

	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateSession: failed to decode request body: %v", err))
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	userID := auth.UserID(r.Context())
	if userID == "" {
		userID = req.UserID
	}
	if req.EventID == "" || userID == "" {
		http.Error(w, "event_id and user_id are required", http.StatusBadRequest)
		return
	}
	if len(req.Items) == 0 {
		http.Error(w, "Cart cannot be empty", http.StatusBadRequest)
		return
	}

	var subtotal int64
	seatIDs := []string{}
	for _, item := range req.Items {
		if item.Quantity <= 0 || item.UnitPrice < 0 {
			http.Error(w, "Invalid cart item", http.StatusBadRequest)
			return
		}
		subtotal += item.UnitPrice * int64(item.Quantity)
		if item.SeatID != "" {
			seatIDs = append(seatIDs, item.SeatID)
		}
	}

	session := models.CheckoutSession{
		SessionID: uuid.NewString(),
		EventID:   req.EventID,
		UserID:    userID,
		Items:     req.Items,
		FeePaidBy: req.FeePaidBy,
		CreatedAt: h.now(),
		ExpiresAt: h.now().Add(h.SessionTTL),
	}
	if session.FeePaidBy == "" {
		session.FeePaidBy = models.FeePaidByBuyer
	}

	// Resolve the promo before computing totals so the discount is part
	// of the snapshot the buyer pays against.
	var discount int64
	if code := promo.SanitizeCode(req.PromoCode); code != "" {
		promoCode, err := h.Promos.FetchByCode(r.Context(), code, req.EventID)
		if err != nil {
			h.Logger.Error("API", fmt.Sprintf("CreateSession: promo lookup failed: %v", err))
			http.Error(w, "Promo code lookup failed", http.StatusBadGateway)
			return
		}
		result := h.validatePromo(r.Context(), promoCode, promoContext{
			userID:        userID,
			cartTotal:     subtotal,
			ticketTypeIDs: session.TicketTypeIDs(),
		})
		if !result.Valid {
			h.Logger.Warn("API", fmt.Sprintf("CreateSession: promo rejected: %s", result.ErrorCode))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnprocessableEntity)
			json.NewEncoder(w).Encode(result)
			return
		}
		discount = promo.CalculateDiscount(promoCode, subtotal)
		session.PromoCode = promoCode.Code
		session.PromoCodeID = promoCode.ID
	}

	totals := h.Fees.OrderTotal(fees.OrderTotalParams{
		Subtotal:    subtotal,
		Discount:    discount,
		IncludeFees: session.FeePaidBy == models.FeePaidByBuyer,
	})
	session.Subtotal = totals.Subtotal
	session.Discount = totals.Discount
	session.Fees = totals.Fees
	session.FeeBreakdown = totals.FeeBreakdown
	session.Total = totals.Total
	session.Currency = totals.Currency

	if len(seatIDs) > 0 {
		ok, err := h.Store.HoldSeats(r.Context(), seatIDs, session.SessionID, h.SessionTTL)
		if err != nil {
			h.Logger.Error("API", fmt.Sprintf("CreateSession: seat hold failed: %v", err))
			http.Error(w, "Could not hold seats: "+err.Error(), http.StatusInternalServerError)
			return
		}
		if !ok {
			http.Error(w, "One or more seats are no longer available", http.StatusConflict)
			return
		}
	}

	if err := h.Store.Save(r.Context(), session); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateSession: failed to save session: %v", err))
		if len(seatIDs) > 0 {
			if relErr := h.Store.ReleaseSeats(r.Context(), seatIDs, session.SessionID); relErr != nil {
				h.Logger.Error("API", fmt.Sprintf("CreateSession: failed to release seats: %v", relErr))
			}
		}
		http.Error(w, "Could not create checkout session: "+err.Error(), http.StatusInternalServerError)
		return
	}

	machine := h.Registry.Create(session)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(CreateSessionResponse{Session: session, Snapshot: machine.State()}); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateSession: failed to encode response: %v", err))
		return
	}
	h.Logger.LogCheckout("CREATE", session.SessionID, fmt.Sprintf("session opened, total=%d %s", session.Total, session.Currency))
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	machine, ok := h.Registry.Get(sessionID)
	if !ok {
		http.Error(w, "Checkout session not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(CreateSessionResponse{Session: machine.Session(), Snapshot: machine.Poll()}); err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetSession: failed to encode response: %v", err))
	}
}

func (h *Handler) ProceedToPayment(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	h.Logger.Info("API", fmt.Sprintf("ProceedToPayment: sessionID=%s", sessionID))

	machine, ok := h.Registry.Get(sessionID)
	if !ok {
		http.Error(w, "Checkout session not found", http.StatusNotFound)
		return
	}

	var buyer models.BuyerInfo
	if err := json.NewDecoder(r.Body).Decode(&buyer); err != nil {
		http.Error(w, "Invalid buyer info JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	snap := machine.ProceedToPayment(r.Context(), buyer)
	if snap.Step == checkout.StepComplete {
		h.Registry.Remove(sessionID)
	}
	h.emit(machine, snap)
	h.writeSnapshot(w, snap)
}

func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	h.Logger.Info("API", fmt.Sprintf("ConfirmPayment: sessionID=%s", sessionID))

	machine, ok := h.Registry.Get(sessionID)
	if !ok {
		http.Error(w, "Checkout session not found", http.StatusNotFound)
		return
	}

	var req struct {
		PaymentIntentID string `json:"payment_intent_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	snap := machine.ConfirmPayment(r.Context(), req.PaymentIntentID)
	if snap.Step == checkout.StepComplete {
		h.Registry.Remove(sessionID)
	}
	h.emit(machine, snap)
	h.writeSnapshot(w, snap)
}

func (h *Handler) Back(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	machine, ok := h.Registry.Get(sessionID)
	if !ok {
		http.Error(w, "Checkout session not found", http.StatusNotFound)
		return
	}

	snap := machine.Back()
	h.emit(machine, snap)
	h.writeSnapshot(w, snap)
}

// ValidatePromoRequest previews a promo code against a cart without
// opening a session.
type ValidatePromoRequest struct {
	Code          string   `json:"code"`
	EventID       string   `json:"event_id"`
	UserID        string   `json:"user_id,omitempty"`
	CartTotal     int64    `json:"cart_total"`
	TicketTypeIDs []string `json:"ticket_type_ids,omitempty"`
}

// ValidatePromoResponse carries the validation result plus the discount
// the code would yield on the given cart.
type ValidatePromoResponse struct {
	promo.Result
	Discount int64 `json:"discount"`
}

func (h *Handler) ValidatePromo(w http.ResponseWriter, r *http.Request) {
	var req ValidatePromoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	userID := auth.UserID(r.Context())
	if userID == "" {
		userID = req.UserID
	}

	var promoCode *models.PromoCode
	code := promo.SanitizeCode(req.Code)
	if code != "" {
		var err error
		promoCode, err = h.Promos.FetchByCode(r.Context(), code, req.EventID)
		if err != nil {
			h.Logger.Error("API", fmt.Sprintf("ValidatePromo: promo lookup failed: %v", err))
			http.Error(w, "Promo code lookup failed", http.StatusBadGateway)
			return
		}
	}

	result := h.validatePromo(r.Context(), promoCode, promoContext{
		userID:        userID,
		cartTotal:     req.CartTotal,
		ticketTypeIDs: req.TicketTypeIDs,
	})

	resp := ValidatePromoResponse{Result: result}
	if result.Valid {
		resp.Discount = promo.CalculateDiscount(promoCode, req.CartTotal)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.Logger.Error("API", fmt.Sprintf("ValidatePromo: failed to encode response: %v", err))
	}
}

// StreamSession pushes checkout snapshots over SSE: one per second for
// the countdown, plus every state change, until the session reaches a
// terminal step or the client disconnects.
func (h *Handler) StreamSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	machine, ok := h.Registry.Get(sessionID)
	if !ok {
		http.Error(w, "Checkout session not found", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	setupSSEHeaders(w)
	ctx := r.Context()
	eventChan := h.Emitter.SubscribeToSession(ctx, sessionID)

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",\"sessionID\":\"%s\"}\n\n", sessionID)
	flusher.Flush()

	h.Logger.Info("SSE", fmt.Sprintf("Client connected to checkout stream for session: %s", sessionID))

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	writeSnap := func(snap checkout.Snapshot) bool {
		jsonData, err := json.Marshal(snap)
		if err != nil {
			h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize snapshot: %v", err))
			return true
		}
		fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", jsonData)
		flusher.Flush()
		return snap.Step != checkout.StepComplete && snap.Step != checkout.StepExpired
	}

	if !writeSnap(machine.State()) {
		return
	}

	for {
		select {
		case <-ticker.C:
			if !writeSnap(machine.Poll()) {
				return
			}
		case ev, open := <-eventChan:
			if !open {
				h.Logger.Debug("SSE", fmt.Sprintf("Channel closed for session: %s", sessionID))
				return
			}
			if !writeSnap(ev.Snapshot) {
				return
			}
		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client disconnected from checkout stream for: %s", sessionID))
			return
		}
	}
}

type promoContext struct {
	userID        string
	cartTotal     int64
	ticketTypeIDs []string
}

func (h *Handler) validatePromo(ctx context.Context, promoCode *models.PromoCode, pc promoContext) promo.Result {
	useCount := 0
	if promoCode != nil && pc.userID != "" {
		count, err := h.Store.PromoUseCount(ctx, promoCode.ID, pc.userID)
		if err != nil {
			h.Logger.Error("API", fmt.Sprintf("validatePromo: failed to read use count: %v", err))
		} else {
			useCount = count
		}
	}

	return promo.Validate(promoCode, promo.Context{
		Now:               h.now(),
		CartTotal:         pc.cartTotal,
		CartTicketTypeIDs: pc.ticketTypeIDs,
		UserUseCount:      useCount,
	})
}

func (h *Handler) emit(machine *checkout.Machine, snap checkout.Snapshot) {
	if h.Emitter == nil {
		return
	}
	sess := machine.Session()
	h.Emitter.EmitSnapshot(sess.SessionID, sess.EventID, snap)
}

func (h *Handler) writeSnapshot(w http.ResponseWriter, snap checkout.Snapshot) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		h.Logger.Error("API", fmt.Sprintf("Failed to encode snapshot response: %v", err))
	}
}

func setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
