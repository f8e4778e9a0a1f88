package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/fjod/go_cart/orders-service/internal/domain"
	"github.com/fjod/go_cart/orders-service/internal/service"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.WithError(err).Error("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleServiceError maps the service error taxonomy onto HTTP statuses.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		nf *service.NotFoundError
		c  *service.ConflictError
	)

	switch {
	case errors.Is(err, service.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, "invalid_argument", err.Error())
	case errors.As(err, &nf):
		respondJSON(w, http.StatusNotFound, ErrorResponse{Error: nf.Error(), Code: "not_found", Details: nf.Resource})
	case errors.As(err, &c):
		respondError(w, http.StatusConflict, c.Code, c.Message)
	case errors.Is(err, service.ErrForbidden):
		respondError(w, http.StatusForbidden, "permission_denied", "You don't have access to this order")
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	case errors.Is(err, domain.ErrUnknownStatus):
		log.WithError(err).WithField("request_id", getRequestID(r.Context())).Error("order has corrupt status")
		respondError(w, http.StatusInternalServerError, "data_integrity", "order data is inconsistent")
	default:
		log.WithError(err).WithField("request_id", getRequestID(r.Context())).Error("request failed")
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
