package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"parlomo-ticketing/internal/analytics"
	"parlomo-ticketing/internal/logger"
)

type Handler struct {
	Service *analytics.Service
	Logger  *logger.Logger
}

func NewHandler(service *analytics.Service) *Handler {
	return &Handler{
		Service: service,
		Logger:  logger.NewLogger(),
	}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/analytics/events/{eventID}", h.GetEventAnalytics)
	r.Get("/analytics/events/{eventID}/promos", h.GetPromoUsage)
}

func (h *Handler) GetEventAnalytics(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	if eventID == "" {
		http.Error(w, "event ID is required", http.StatusBadRequest)
		return
	}

	summary, err := h.Service.EventAnalytics(r.Context(), eventID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Failed to load analytics for event %s: %v", eventID, err))
		http.Error(w, "Failed to load event analytics", http.StatusInternalServerError)
		return
	}

	h.Logger.Info("API", fmt.Sprintf("Served analytics for event %s (%d orders)", eventID, summary.OrdersCompleted))
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}

func (h *Handler) GetPromoUsage(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	if eventID == "" {
		http.Error(w, "event ID is required", http.StatusBadRequest)
		return
	}

	usage, err := h.Service.PromoUsageForEvent(r.Context(), eventID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Failed to load promo usage for event %s: %v", eventID, err))
		http.Error(w, "Failed to load promo usage", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(usage)
}
