package ticket_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"parlomo-ticketing/internal/logger"
	"parlomo-ticketing/internal/tickets"
	"parlomo-ticketing/internal/tickets/pdf"
	"parlomo-ticketing/internal/utils"
)

type Handler struct {
	TicketService *tickets.Service
	PDF           *pdf.Renderer
	Logger        *logger.Logger
}

func NewHandler(ticketService *tickets.Service) *Handler {
	return &Handler{
		TicketService: ticketService,
		PDF:           pdf.NewRenderer(""),
		Logger:        logger.NewLogger(),
	}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/tickets/{code}", h.ViewTicket)
	r.Get("/tickets/{code}/qr", h.TicketQRImage)
	r.Get("/tickets/{code}/pdf", h.TicketPDF)
	r.Get("/orders/{orderId}/tickets", h.ListTicketsByOrder)
	r.Post("/tickets/checkin", h.CheckinTicket)
	r.Post("/tickets/{code}/transfer", h.TransferTicket)
	r.Post("/tickets/{code}/refund", h.RefundTicket)
}

func (h *Handler) ViewTicket(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	h.Logger.Info("API", fmt.Sprintf("ViewTicket: code=%s", code))

	ticket, err := h.TicketService.GetTicket(r.Context(), code)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ViewTicket: ticket not found: %v", err))
		http.Error(w, "Ticket not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(ticket); err != nil {
		h.Logger.Error("API", fmt.Sprintf("ViewTicket: failed to encode response: %v", err))
	}
}

// TicketQRImage serves the stored QR PNG for a ticket.
func (h *Handler) TicketQRImage(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	ticket, err := h.TicketService.GetTicket(r.Context(), code)
	if err != nil {
		http.Error(w, "Ticket not found", http.StatusNotFound)
		return
	}
	if len(ticket.QRCode) == 0 {
		http.Error(w, "Ticket has no QR code", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=0")
	if _, err := w.Write(ticket.QRCode); err != nil {
		h.Logger.Error("API", fmt.Sprintf("TicketQRImage: failed to write image: %v", err))
	}
}

// TicketPDF renders a printable ticket with the embedded QR image.
func (h *Handler) TicketPDF(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	ticket, err := h.TicketService.GetTicket(r.Context(), code)
	if err != nil {
		http.Error(w, "Ticket not found", http.StatusNotFound)
		return
	}

	// Best effort; the PDF falls back to the type ID if the lookup fails.
	ticketType, err := h.TicketService.GetTicketType(r.Context(), ticket.TicketTypeID)
	if err != nil {
		ticketType = nil
	}

	doc, err := h.PDF.Render(*ticket, ticketType)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("TicketPDF: render failed for %s: %v", code, err))
		http.Error(w, "Ticket rendering unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.pdf", ticket.Code))
	if _, err := w.Write(doc); err != nil {
		h.Logger.Error("API", fmt.Sprintf("TicketPDF: failed to write document: %v", err))
	}
}

func (h *Handler) ListTicketsByOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	h.Logger.Info("API", fmt.Sprintf("ListTicketsByOrder: orderId=%s", orderID))

	ticketList, err := h.TicketService.GetTicketsByOrder(r.Context(), orderID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListTicketsByOrder: failed to get tickets: %v", err))
		http.Error(w, "Failed to retrieve tickets: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(ticketList); err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListTicketsByOrder: failed to encode response: %v", err))
	}
}

// CheckinTicket verifies a presented QR token and checks the ticket in.
// Expected POST request body: {"qr_token": "signed_jwt_string"}
func (h *Handler) CheckinTicket(w http.ResponseWriter, r *http.Request) {
	var requestBody struct {
		QRToken string `json:"qr_token"`
	}

	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if requestBody.QRToken == "" {
		http.Error(w, "qr_token is required", http.StatusBadRequest)
		return
	}

	result, err := h.TicketService.Scan(r.Context(), requestBody.QRToken)
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("CheckinTicket: scan rejected: %v", err))
		h.writeCheckinError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(utils.SuccessResponse("Ticket checked in", result)); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CheckinTicket: failed to encode response: %v", err))
		return
	}
	h.Logger.LogTicket("CHECKIN_API", result.Ticket.Code, "check-in response sent")
}

func (h *Handler) writeCheckinError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, tickets.ErrExpiredQR), errors.Is(err, tickets.ErrInvalidQR):
		status = http.StatusUnauthorized
	case errors.Is(err, tickets.ErrTicketNotFound):
		status = http.StatusNotFound
	case errors.Is(err, tickets.ErrAlreadyCheckedIn), errors.Is(err, tickets.ErrTicketNotValid):
		status = http.StatusConflict
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(utils.ErrorResponse("Check-in failed", err.Error()))
}

// TransferTicket reassigns a ticket to a new attendee and reissues its
// QR token.
func (h *Handler) TransferTicket(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	h.Logger.Info("API", fmt.Sprintf("TransferTicket: code=%s", code))

	var req struct {
		ToName  string `json:"to_name"`
		ToEmail string `json:"to_email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.ToName == "" || req.ToEmail == "" {
		http.Error(w, "to_name and to_email are required", http.StatusBadRequest)
		return
	}

	ticket, err := h.TicketService.Transfer(r.Context(), code, req.ToName, req.ToEmail)
	if err != nil {
		h.writeEligibilityError(w, "TransferTicket", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(utils.SuccessResponse("Ticket transferred", ticket)); err != nil {
		h.Logger.Error("API", fmt.Sprintf("TransferTicket: failed to encode response: %v", err))
	}
}

// RefundTicket marks a ticket refunded when the ticket type allows it
// and the event has not started.
func (h *Handler) RefundTicket(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	h.Logger.Info("API", fmt.Sprintf("RefundTicket: code=%s", code))

	var req struct {
		EventDate time.Time `json:"event_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.EventDate.IsZero() {
		http.Error(w, "event_date is required", http.StatusBadRequest)
		return
	}

	ticket, err := h.TicketService.Refund(r.Context(), code, req.EventDate)
	if err != nil {
		h.writeEligibilityError(w, "RefundTicket", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(utils.SuccessResponse("Ticket refunded", ticket)); err != nil {
		h.Logger.Error("API", fmt.Sprintf("RefundTicket: failed to encode response: %v", err))
	}
}

func (h *Handler) writeEligibilityError(w http.ResponseWriter, op string, err error) {
	var notEligible *tickets.NotEligibleError

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, tickets.ErrTicketNotFound):
		status = http.StatusNotFound
	case errors.As(err, &notEligible):
		status = http.StatusUnprocessableEntity
	}

	h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(utils.ErrorResponse("Request failed", err.Error()))
}
