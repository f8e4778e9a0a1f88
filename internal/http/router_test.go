package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fjod/go_cart/orders-service/internal/domain"
	"github.com/fjod/go_cart/orders-service/internal/metrics"
	"github.com/fjod/go_cart/orders-service/internal/service"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(tracker *trackerMock, health HealthChecker) (http.Handler, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	h := NewOrdersHandler(&placerMock{order: sampleOrder()}, tracker, 5*time.Second)
	return NewRouter(h, metrics.New(reg), reg, health, 10*time.Second), reg
}

func TestRouter_IdentityHeaders(t *testing.T) {
	tracker := &trackerMock{tracking: sampleTracking(domain.OrderStatusConfirmed)}
	router, _ := newTestRouter(tracker, nil)

	id := uuid.New()
	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/orders/"+id.String()+"/status", strings.NewReader(`{"status":"CONFIRMED"}`))
	req.Header.Set(HeaderUserEmail, "admin@example.com")
	req.Header.Set(HeaderUserName, "admin")
	req.Header.Set(HeaderUserRoles, "ROLE_USER, ROLE_ADMIN")
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get(HeaderRequestID))
	assert.Equal(t, id, tracker.gotID)
	assert.Equal(t, "admin@example.com", tracker.gotCaller.Email)
	assert.Equal(t, "admin", tracker.gotCaller.Name())
	assert.True(t, tracker.gotCaller.IsAdmin())
}

func TestRouter_AnonymousCaller(t *testing.T) {
	tracker := &trackerMock{err: service.ErrForbidden}
	router, _ := newTestRouter(tracker, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+uuid.NewString()+"/tracking", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Empty(t, tracker.gotCaller.Email)
}

func TestRouter_PreservesRequestID(t *testing.T) {
	router, _ := newTestRouter(&trackerMock{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(HeaderRequestID, "req-abc")
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	assert.Equal(t, "req-abc", rr.Header().Get(HeaderRequestID))
}

func TestRouter_Health(t *testing.T) {
	router, _ := newTestRouter(&trackerMock{}, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	router, _ = newTestRouter(&trackerMock{}, func(*http.Request) error { return errors.New("db down") })
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "db down")
}

func TestRouter_MetricsUseRoutePattern(t *testing.T) {
	tracker := &trackerMock{orders: nil}
	router, _ := newTestRouter(tracker, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders?status=SHIPPED", nil)
	req.Header.Set(HeaderUserEmail, "admin@example.com")
	req.Header.Set(HeaderUserRoles, service.RoleAdmin)
	router.ServeHTTP(httptest.NewRecorder(), req)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `route="/api/v1/admin/orders`)
	assert.Equal(t, domain.OrderStatusShipped, tracker.gotStatus)
}
