package notifier

import (
	"context"
	"time"

	"github.com/fjod/go_cart/orders-service/internal/domain"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type Kind string

const (
	KindOrderConfirmation Kind = "ORDER_CONFIRMATION"
	KindShipping          Kind = "SHIPPING_NOTIFICATION"
	KindStatusUpdate      Kind = "STATUS_UPDATE"
)

// Notification is what the customer should be told about an order. Delivery
// (mail templates, SMTP) belongs to whoever consumes it.
type Notification struct {
	To                string             `json:"to"`
	Kind              Kind               `json:"kind"`
	OrderID           uuid.UUID          `json:"order_id"`
	OrderDate         time.Time          `json:"order_date"`
	TotalAmount       float64            `json:"total_amount"`
	Status            domain.OrderStatus `json:"status"`
	StatusDisplayName string             `json:"status_display_name"`
	StatusDescription string             `json:"status_description"`
	TrackingNumber    string             `json:"tracking_number,omitempty"`
	Carrier           string             `json:"carrier,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
}

// New fills the order fields of a notification.
func New(kind Kind, order *domain.Order) Notification {
	return Notification{
		To:                order.Email,
		Kind:              kind,
		OrderID:           order.ID,
		OrderDate:         order.OrderDate,
		TotalAmount:       order.TotalAmount,
		Status:            order.Status,
		StatusDisplayName: order.Status.DisplayName(),
		StatusDescription: order.Status.Description(),
		CreatedAt:         time.Now().UTC(),
	}
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier only logs. Used when no broker is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, n Notification) error {
	log.WithFields(log.Fields{
		"to":       n.To,
		"kind":     n.Kind,
		"order_id": n.OrderID,
		"status":   n.Status,
	}).Info("notification")
	return nil
}
