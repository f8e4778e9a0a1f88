package domain

import (
	"time"

	"github.com/google/uuid"
)

// StatusHistory is one append-only entry of an order's status trail.
type StatusHistory struct {
	ID             int64       `db:"id" json:"id"`
	OrderID        uuid.UUID   `db:"order_id" json:"order_id"`
	Status         OrderStatus `db:"status" json:"status"`
	Notes          string      `db:"notes" json:"notes"`
	TrackingNumber string      `db:"tracking_number" json:"tracking_number,omitempty"`
	Carrier        string      `db:"carrier" json:"carrier,omitempty"`
	Location       string      `db:"location" json:"location,omitempty"`
	UpdatedBy      string      `db:"updated_by" json:"updated_by"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
}

// OrderTracking is the read view of an order with its history, newest first.
type OrderTracking struct {
	OrderID        uuid.UUID       `json:"order_id"`
	Email          string          `json:"email"`
	OrderDate      time.Time       `json:"order_date"`
	TotalAmount    float64         `json:"total_amount"`
	CurrentStatus  OrderStatus     `json:"current_status"`
	TrackingNumber string          `json:"tracking_number,omitempty"`
	Carrier        string          `json:"carrier,omitempty"`
	History        []StatusHistory `json:"history"`
}

// NewOrderTracking expects history ordered newest first. The tracking number
// and carrier come from the newest entry that carries one.
func NewOrderTracking(order *Order, history []StatusHistory) *OrderTracking {
	t := &OrderTracking{
		OrderID:       order.ID,
		Email:         order.Email,
		OrderDate:     order.OrderDate,
		TotalAmount:   order.TotalAmount,
		CurrentStatus: order.Status,
		History:       history,
	}
	for _, h := range history {
		if h.TrackingNumber != "" {
			t.TrackingNumber = h.TrackingNumber
			t.Carrier = h.Carrier
			break
		}
	}
	return t
}

const (
	AuditStatusSuccess = "SUCCESS"
	AuditStatusFailure = "FAILURE"
)

type AuditEntry struct {
	ID         int64     `db:"id"`
	Actor      string    `db:"actor"`
	Action     string    `db:"action"`
	EntityType string    `db:"entity_type"`
	EntityID   string    `db:"entity_id"`
	OldValue   string    `db:"old_value"`
	NewValue   string    `db:"new_value"`
	Status     string    `db:"status"`
	Details    string    `db:"details"`
	CreatedAt  time.Time `db:"created_at"`
}
