package orders_api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"parlomo-ticketing/internal/auth"
	"parlomo-ticketing/internal/logger"
	"parlomo-ticketing/internal/orders"
)

type Handler struct {
	OrderService *orders.Service
	Logger       *logger.Logger
}

func NewHandler(orderService *orders.Service) *Handler {
	return &Handler{
		OrderService: orderService,
		Logger:       logger.NewLogger(),
	}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/orders/{orderId}", h.GetOrder)
	r.Get("/users/{userId}/orders", h.GetOrdersByUserID)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	h.Logger.Info("API", fmt.Sprintf("GetOrder: orderId=%s", orderID))

	orderData, err := h.OrderService.GetOrder(r.Context(), orderID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetOrder: order not found: %v", err))
		http.Error(w, "Order not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(orderData); err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetOrder: failed to encode response: %v", err))
	}
}

// GetOrdersByUserID returns a user's order history with the tickets
// issued for each order.
func (h *Handler) GetOrdersByUserID(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	h.Logger.Info("API", fmt.Sprintf("GetOrdersByUserID: userId=%s", userID))

	if userID == "" {
		http.Error(w, "User ID is required", http.StatusBadRequest)
		return
	}

	// Buyers may only read their own history when authenticated
	if caller := auth.UserID(r.Context()); caller != "" && caller != userID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	ordersWithTickets, err := h.OrderService.GetOrdersForUser(r.Context(), userID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetOrdersByUserID: failed to get orders: %v", err))
		http.Error(w, "Failed to retrieve orders: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(ordersWithTickets); err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetOrdersByUserID: failed to encode response: %v", err))
	}
}
