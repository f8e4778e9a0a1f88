package http

import (
	"net/http"
	"time"

	"github.com/fjod/go_cart/orders-service/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

type HealthChecker func(r *http.Request) error

// NewRouter wires the order routes. gatherer and health may be nil.
func NewRouter(h *OrdersHandler, m *metrics.Metrics, gatherer prometheus.Gatherer, health HealthChecker, timeout time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(middleware.Compress(5))
	r.Use(m.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			if err := health(r); err != nil {
				respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
				return
			}
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	if gatherer != nil {
		r.Handle("/metrics", metrics.Handler(gatherer))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware)

		r.Post("/orders", h.PlaceOrder)
		r.Get("/orders/{order_id}/tracking", h.GetOrderTracking)
		r.Post("/orders/{order_id}/cancel", h.CancelOrder)

		r.Route("/admin/orders", func(r chi.Router) {
			r.Get("/", h.ListOrdersByStatus)
			r.Put("/{order_id}/status", h.UpdateOrderStatus)
			r.Post("/{order_id}/tracking", h.AddTrackingInfo)
		})
	})

	return r
}
