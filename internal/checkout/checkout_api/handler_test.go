package checkout_api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parlomo-ticketing/internal/checkout"
	"parlomo-ticketing/internal/fees"
	"parlomo-ticketing/internal/logger"
	"parlomo-ticketing/internal/models"
	"parlomo-ticketing/internal/promo"
	"parlomo-ticketing/internal/sse"
)

type stubGateway struct {
	verifyErr error
}

func (g *stubGateway) CreatePaymentIntent(ctx context.Context, sessionID string, buyer models.BuyerInfo) (*checkout.PaymentIntentResult, error) {
	return &checkout.PaymentIntentResult{RequiresPayment: true, ClientSecret: "cs_test_123"}, nil
}

func (g *stubGateway) VerifyPayment(ctx context.Context, params checkout.VerifyPaymentParams) (*models.Order, error) {
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	return &models.Order{OrderID: "order-1", SessionID: params.SessionID, Status: models.OrderCompleted}, nil
}

func (g *stubGateway) CompleteFreeCheckout(ctx context.Context, params checkout.FreeCheckoutParams) (*models.Order, error) {
	return &models.Order{OrderID: "order-free", SessionID: params.SessionID, Status: models.OrderCompleted}, nil
}

type memStore struct {
	mu        sync.Mutex
	sessions  map[string]models.CheckoutSession
	holds     map[string]string
	uses      map[string]int
	failHolds bool
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[string]models.CheckoutSession),
		holds:    make(map[string]string),
		uses:     make(map[string]int),
	}
}

func (s *memStore) Save(ctx context.Context, session models.CheckoutSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.SessionID] = session
	return nil
}

func (s *memStore) HoldSeats(ctx context.Context, seatIDs []string, sessionID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failHolds {
		return false, nil
	}
	for _, id := range seatIDs {
		if owner, held := s.holds[id]; held && owner != sessionID {
			return false, nil
		}
	}
	for _, id := range seatIDs {
		s.holds[id] = sessionID
	}
	return true, nil
}

func (s *memStore) ReleaseSeats(ctx context.Context, seatIDs []string, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range seatIDs {
		if s.holds[id] == sessionID {
			delete(s.holds, id)
		}
	}
	return nil
}

func (s *memStore) PromoUseCount(ctx context.Context, promoCodeID, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uses[promoCodeID+":"+userID], nil
}

type stubPromos struct {
	codes map[string]*models.PromoCode
}

func (p *stubPromos) FetchByCode(ctx context.Context, code, eventID string) (*models.PromoCode, error) {
	return p.codes[code], nil
}

func activePromo() *models.PromoCode {
	return &models.PromoCode{
		ID:        "promo-1",
		Code:      "SUMMER10",
		EventID:   "event-1",
		Active:    true,
		ValidFrom: time.Now().Add(-24 * time.Hour),
		ValidTo:   time.Now().Add(24 * time.Hour),
		Type:      models.PromoPercent,
		Amount:    10,
	}
}

type testEnv struct {
	handler *Handler
	router  *chi.Mux
	store   *memStore
	promos  *stubPromos
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := newMemStore()
	promos := &stubPromos{codes: map[string]*models.PromoCode{"SUMMER10": activePromo()}}
	registry := checkout.NewRegistry(&stubGateway{}, logger.NewLogger())
	t.Cleanup(registry.Shutdown)

	h := NewHandler(registry, store, fees.NewCalculator(fees.DefaultConfig()), promos, sse.NewCheckoutEventEmitter(), 15*time.Minute)
	r := chi.NewRouter()
	h.Routes(r)

	return &testEnv{handler: h, router: r, store: store, promos: promos}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) createSession(t *testing.T, req CreateSessionRequest) CreateSessionResponse {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/checkout/sessions", req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp CreateSessionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func standardCart() CreateSessionRequest {
	return CreateSessionRequest{
		EventID: "event-1",
		UserID:  "user-1",
		Items: []models.CartItem{
			{TicketTypeID: "tt-ga", Quantity: 2, UnitPrice: 2500},
		},
	}
}

func TestCreateSessionComputesTotals(t *testing.T) {
	env := newTestEnv(t)

	resp := env.createSession(t, standardCart())

	// 5000 subtotal, 5% service fee (250) + 200 processing fee
	assert.Equal(t, int64(5000), resp.Session.Subtotal)
	assert.Equal(t, int64(450), resp.Session.Fees)
	assert.Equal(t, int64(5450), resp.Session.Total)
	assert.Equal(t, "GBP", resp.Session.Currency)
	assert.Equal(t, checkout.StepInfo, resp.Snapshot.Step)
	assert.Greater(t, resp.Snapshot.TimeRemaining, int64(890))

	env.store.mu.Lock()
	_, saved := env.store.sessions[resp.Session.SessionID]
	env.store.mu.Unlock()
	assert.True(t, saved)
}

func TestCreateSessionAppliesPromo(t *testing.T) {
	env := newTestEnv(t)

	req := standardCart()
	req.PromoCode = "  summer10 "
	resp := env.createSession(t, req)

	// 10% of 5000 = 500 off, fees computed on the discounted 4500
	assert.Equal(t, int64(500), resp.Session.Discount)
	assert.Equal(t, int64(425), resp.Session.Fees)
	assert.Equal(t, int64(4925), resp.Session.Total)
	assert.Equal(t, "SUMMER10", resp.Session.PromoCode)
	assert.Equal(t, "promo-1", resp.Session.PromoCodeID)
}

func TestCreateSessionRejectsExpiredPromo(t *testing.T) {
	env := newTestEnv(t)
	expired := activePromo()
	expired.ValidTo = time.Now().Add(-time.Hour)
	env.promos.codes["SUMMER10"] = expired

	req := standardCart()
	req.PromoCode = "SUMMER10"
	rec := env.do(t, http.MethodPost, "/checkout/sessions", req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var result promo.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.False(t, result.Valid)
	assert.Equal(t, promo.CodeExpired, result.ErrorCode)
}

func TestCreateSessionSeatConflict(t *testing.T) {
	env := newTestEnv(t)
	env.store.holds["seat-A1"] = "someone-else"

	req := standardCart()
	req.Items = []models.CartItem{
		{TicketTypeID: "tt-vip", Quantity: 1, UnitPrice: 9000, SeatID: "seat-A1"},
	}
	rec := env.do(t, http.MethodPost, "/checkout/sessions", req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateSessionRejectsEmptyCart(t *testing.T) {
	env := newTestEnv(t)

	req := standardCart()
	req.Items = nil
	rec := env.do(t, http.MethodPost, "/checkout/sessions", req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSessionNotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/checkout/sessions/nope", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckoutFlowThroughPayment(t *testing.T) {
	env := newTestEnv(t)
	created := env.createSession(t, standardCart())
	base := "/checkout/sessions/" + created.Session.SessionID

	buyer := models.BuyerInfo{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"}
	rec := env.do(t, http.MethodPost, base+"/payment", buyer)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap checkout.Snapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snap))
	assert.Equal(t, checkout.StepPayment, snap.Step)
	assert.Equal(t, "cs_test_123", snap.ClientSecret)

	rec = env.do(t, http.MethodPost, base+"/confirm", map[string]string{"payment_intent_id": "pi_123"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snap))
	assert.Equal(t, checkout.StepComplete, snap.Step)
	require.NotNil(t, snap.Order)
	assert.Equal(t, "order-1", snap.Order.OrderID)

	// Completed sessions leave the registry
	rec = env.do(t, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProceedToPaymentRequiresBuyerInfo(t *testing.T) {
	env := newTestEnv(t)
	created := env.createSession(t, standardCart())

	rec := env.do(t, http.MethodPost, "/checkout/sessions/"+created.Session.SessionID+"/payment", models.BuyerInfo{FirstName: "Ada"})
	require.Equal(t, http.StatusOK, rec.Code)

	var snap checkout.Snapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snap))
	assert.Equal(t, checkout.StepInfo, snap.Step)
	assert.NotEmpty(t, snap.PaymentError)
}

func TestBackFromPayment(t *testing.T) {
	env := newTestEnv(t)
	created := env.createSession(t, standardCart())
	base := "/checkout/sessions/" + created.Session.SessionID

	buyer := models.BuyerInfo{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"}
	rec := env.do(t, http.MethodPost, base+"/payment", buyer)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, base+"/back", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap checkout.Snapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snap))
	assert.Equal(t, checkout.StepInfo, snap.Step)
	assert.Empty(t, snap.ClientSecret)
}

func TestValidatePromoEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/checkout/promo/validate", ValidatePromoRequest{
		Code:      "SUMMER10",
		EventID:   "event-1",
		UserID:    "user-1",
		CartTotal: 5000,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ValidatePromoResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Valid)
	assert.Equal(t, int64(500), resp.Discount)
}

func TestValidatePromoUnknownCode(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/checkout/promo/validate", ValidatePromoRequest{
		Code:      "NOPE",
		EventID:   "event-1",
		CartTotal: 5000,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ValidatePromoResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.False(t, resp.Valid)
	assert.Equal(t, promo.CodeNotFound, resp.ErrorCode)
	assert.Zero(t, resp.Discount)
}
