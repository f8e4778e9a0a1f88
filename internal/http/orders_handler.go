package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/go_cart/orders-service/internal/domain"
	"github.com/fjod/go_cart/orders-service/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	// HeaderReplayed marks a response that returned an earlier order for a
	// repeated idempotency key.
	HeaderReplayed = "Idempotent-Replayed"
)

// OrdersHandler handles order placement and lifecycle requests
type OrdersHandler struct {
	placer  service.OrderPlacer
	tracker service.OrderTracker
	timeout time.Duration
}

func NewOrdersHandler(placer service.OrderPlacer, tracker service.OrderTracker, timeout time.Duration) *OrdersHandler {
	return &OrdersHandler{
		placer:  placer,
		tracker: tracker,
		timeout: timeout,
	}
}

// PlaceOrder handles POST /api/v1/orders
func (h *OrdersHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	caller, ok := service.CallerFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthenticated", "User not authenticated")
		return
	}

	var req PlaceOrderRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	order, err := h.placer.PlaceOrder(ctx, service.PlaceOrderRequest{
		Email:            caller.Email,
		AddressID:        req.AddressID,
		PaymentMethod:    req.PaymentMethod,
		GatewayName:      req.GatewayName,
		GatewayPaymentID: req.GatewayPaymentID,
		GatewayStatus:    req.GatewayStatus,
		GatewayMessage:   req.GatewayMessage,
		IdempotencyKey:   strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey)),
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	if order.Replayed {
		w.Header().Set(HeaderReplayed, "true")
	}
	respondJSON(w, http.StatusCreated, convertOrder(order))
}

// GetOrderTracking handles GET /api/v1/orders/{order_id}/tracking
func (h *OrdersHandler) GetOrderTracking(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	tracking, err := h.tracker.GetOrderTracking(ctx, orderID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, convertTracking(tracking))
}

// CancelOrder handles POST /api/v1/orders/{order_id}/cancel
func (h *OrdersHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}

	// the body is optional
	var req CancelOrderRequestDTO
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	tracking, err := h.tracker.CancelOrder(ctx, orderID, req.Reason)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, convertTracking(tracking))
}

// UpdateOrderStatus handles PUT /api/v1/admin/orders/{order_id}/status
func (h *OrdersHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}

	var req UpdateStatusRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	status, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_status", "Invalid order status: "+req.Status)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	tracking, err := h.tracker.UpdateOrderStatus(ctx, orderID, status, req.Notes)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, convertTracking(tracking))
}

// AddTrackingInfo handles POST /api/v1/admin/orders/{order_id}/tracking
func (h *OrdersHandler) AddTrackingInfo(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}

	var req AddTrackingRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	tracking, err := h.tracker.AddTrackingInfo(ctx, orderID, req.TrackingNumber, req.Carrier)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, convertTracking(tracking))
}

// ListOrdersByStatus handles GET /api/v1/admin/orders?status=
func (h *OrdersHandler) ListOrdersByStatus(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("status")
	status, err := domain.ParseOrderStatus(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_status", "Invalid order status: "+raw)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orders, err := h.tracker.ListOrdersByStatus(ctx, status)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]OrderResponseDTO, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, convertOrder(o))
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *OrdersHandler) orderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "order_id")
	if raw == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "Order ID is required")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid order ID")
		return uuid.Nil, false
	}
	return id, true
}
