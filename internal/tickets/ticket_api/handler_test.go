package ticket_api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parlomo-ticketing/internal/logger"
	"parlomo-ticketing/internal/models"
	"parlomo-ticketing/internal/tickets"
	"parlomo-ticketing/internal/tickets/qr"
	"parlomo-ticketing/internal/utils"
)

const testSigningKey = "handler-test-signing-key"

type fakeDB struct {
	tickets map[string]models.Ticket
	types   map[string]models.TicketType
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		tickets: make(map[string]models.Ticket),
		types:   make(map[string]models.TicketType),
	}
}

func (db *fakeDB) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	ticket.ID = int64(len(db.tickets) + 1)
	db.tickets[ticket.Code] = *ticket
	return nil
}

func (db *fakeDB) GetTicketByCode(ctx context.Context, code string) (*models.Ticket, error) {
	t, ok := db.tickets[code]
	if !ok {
		return nil, tickets.ErrTicketNotFound
	}
	return &t, nil
}

func (db *fakeDB) UpdateTicket(ctx context.Context, ticket models.Ticket) error {
	db.tickets[ticket.Code] = ticket
	return nil
}

func (db *fakeDB) GetTicketsByOrder(ctx context.Context, orderID string) ([]models.Ticket, error) {
	var out []models.Ticket
	for _, t := range db.tickets {
		if t.OrderID == orderID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (db *fakeDB) GetTicketType(ctx context.Context, id string) (*models.TicketType, error) {
	tt, ok := db.types[id]
	if !ok {
		return nil, tickets.ErrTicketNotFound
	}
	return &tt, nil
}

type noopKafka struct{}

func (noopKafka) PublishTicketIssued(ticket models.Ticket) error { return nil }

type apiEnv struct {
	db     *fakeDB
	qrGen  *qr.Generator
	router *chi.Mux
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	qrGen, err := qr.NewGenerator(testSigningKey)
	require.NoError(t, err)

	db := newFakeDB()
	svc := tickets.NewService(db, qrGen, noopKafka{}, logger.NewLogger())
	h := NewHandler(svc)

	r := chi.NewRouter()
	h.Routes(r)
	return &apiEnv{db: db, qrGen: qrGen, router: r}
}

// seedTicket stores a valid ticket with a signed QR token and returns
// it along with the token.
func (e *apiEnv) seedTicket(t *testing.T) (models.Ticket, string) {
	t.Helper()

	ticket := models.Ticket{
		ID:           42,
		Code:         "TKT-A1B2C3D4",
		UUID:         "uuid-42",
		OrderID:      "order-1",
		TicketTypeID: "tt-ga",
		EventID:      "event-1",
		Status:       models.TicketValid,
		QRCode:       []byte{0x89, 'P', 'N', 'G'},
	}

	token, err := e.qrGen.Generate(qr.Payload{
		TicketID:     ticket.UUID,
		TicketCode:   ticket.Code,
		EventID:      ticket.EventID,
		TicketTypeID: ticket.TicketTypeID,
		OrderID:      ticket.OrderID,
	})
	require.NoError(t, err)

	ticket.QRToken = token
	e.db.tickets[ticket.Code] = ticket
	e.db.types[ticket.TicketTypeID] = models.TicketType{
		ID:              ticket.TicketTypeID,
		EventID:         ticket.EventID,
		Name:            "General Admission",
		TransferAllowed: true,
		Refundable:      true,
	}
	return ticket, token
}

func (e *apiEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
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

func TestViewTicket(t *testing.T) {
	env := newAPIEnv(t)
	ticket, _ := env.seedTicket(t)

	rec := env.do(t, http.MethodGet, "/tickets/"+ticket.Code, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.Ticket
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, ticket.Code, got.Code)
	assert.Equal(t, models.TicketValid, got.Status)
}

func TestViewTicketNotFound(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodGet, "/tickets/TKT-MISSING1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTicketQRImage(t *testing.T) {
	env := newAPIEnv(t)
	ticket, _ := env.seedTicket(t)

	rec := env.do(t, http.MethodGet, "/tickets/"+ticket.Code+"/qr", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, ticket.QRCode, rec.Body.Bytes())
}

func TestCheckinTicket(t *testing.T) {
	env := newAPIEnv(t)
	ticket, token := env.seedTicket(t)

	rec := env.do(t, http.MethodPost, "/tickets/checkin", map[string]string{"qr_token": token})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp utils.APIResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Success)

	assert.Equal(t, models.TicketUsed, env.db.tickets[ticket.Code].Status)
}

func TestCheckinTicketTwiceConflicts(t *testing.T) {
	env := newAPIEnv(t)
	_, token := env.seedTicket(t)

	rec := env.do(t, http.MethodPost, "/tickets/checkin", map[string]string{"qr_token": token})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/tickets/checkin", map[string]string{"qr_token": token})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCheckinRejectsGarbageToken(t *testing.T) {
	env := newAPIEnv(t)
	env.seedTicket(t)

	rec := env.do(t, http.MethodPost, "/tickets/checkin", map[string]string{"qr_token": "not-a-token"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCheckinRequiresToken(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodPost, "/tickets/checkin", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransferTicket(t *testing.T) {
	env := newAPIEnv(t)
	ticket, _ := env.seedTicket(t)

	rec := env.do(t, http.MethodPost, "/tickets/"+ticket.Code+"/transfer", map[string]string{
		"to_name":  "Grace Hopper",
		"to_email": "grace@example.com",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	updated := env.db.tickets[ticket.Code]
	assert.Equal(t, "Grace Hopper", updated.AttendeeName)
	require.Len(t, updated.TransferHistory, 1)
	assert.Equal(t, "grace@example.com", updated.TransferHistory[0].ToEmail)
	assert.NotNil(t, env.qrGen.Verify(updated.QRToken))
}

func TestTransferNotAllowedByTicketType(t *testing.T) {
	env := newAPIEnv(t)
	ticket, _ := env.seedTicket(t)
	tt := env.db.types[ticket.TicketTypeID]
	tt.TransferAllowed = false
	env.db.types[ticket.TicketTypeID] = tt

	rec := env.do(t, http.MethodPost, "/tickets/"+ticket.Code+"/transfer", map[string]string{
		"to_name":  "Grace Hopper",
		"to_email": "grace@example.com",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRefundTicket(t *testing.T) {
	env := newAPIEnv(t)
	ticket, _ := env.seedTicket(t)

	rec := env.do(t, http.MethodPost, "/tickets/"+ticket.Code+"/refund", map[string]interface{}{
		"event_date": time.Now().Add(48 * time.Hour),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, models.TicketRefunded, env.db.tickets[ticket.Code].Status)
}

func TestRefundRequiresEventDate(t *testing.T) {
	env := newAPIEnv(t)
	ticket, _ := env.seedTicket(t)

	rec := env.do(t, http.MethodPost, "/tickets/"+ticket.Code+"/refund", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListTicketsByOrder(t *testing.T) {
	env := newAPIEnv(t)
	ticket, _ := env.seedTicket(t)

	rec := env.do(t, http.MethodGet, "/orders/"+ticket.OrderID+"/tickets", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list []models.Ticket
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, ticket.Code, list[0].Code)
}

func TestTicketPDFUnknownTicket(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodGet, "/tickets/TKT-MISSING1/pdf", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTicketPDFWithoutFontAsset(t *testing.T) {
	env := newAPIEnv(t)
	ticket, _ := env.seedTicket(t)

	// No font file is shipped with the test binary, so rendering is
	// reported as unavailable rather than panicking.
	rec := env.do(t, http.MethodGet, "/tickets/"+ticket.Code+"/pdf", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
