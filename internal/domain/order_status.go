package domain

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "PENDING"
	OrderStatusConfirmed      OrderStatus = "CONFIRMED"
	OrderStatusProcessing     OrderStatus = "PROCESSING"
	OrderStatusShipped        OrderStatus = "SHIPPED"
	OrderStatusOutForDelivery OrderStatus = "OUT_FOR_DELIVERY"
	OrderStatusDelivered      OrderStatus = "DELIVERED"
	OrderStatusCancelled      OrderStatus = "CANCELLED"
	OrderStatusReturned       OrderStatus = "RETURNED"
	OrderStatusRefunded       OrderStatus = "REFUNDED"
)

// ErrUnknownStatus is returned when a stored or requested status does not
// name any known order status.
var ErrUnknownStatus = errors.New("unknown order status")

type statusInfo struct {
	displayName string
	description string
}

var orderStatuses = map[OrderStatus]statusInfo{
	OrderStatusPending:        {"Pending", "Order has been placed, awaiting confirmation"},
	OrderStatusConfirmed:      {"Confirmed", "Order has been confirmed"},
	OrderStatusProcessing:     {"Processing", "Order is being prepared"},
	OrderStatusShipped:        {"Shipped", "Order has been shipped"},
	OrderStatusOutForDelivery: {"Out for Delivery", "Order is out for delivery"},
	OrderStatusDelivered:      {"Delivered", "Order has been delivered"},
	OrderStatusCancelled:      {"Cancelled", "Order has been cancelled"},
	OrderStatusReturned:       {"Returned", "Order has been returned"},
	OrderStatusRefunded:       {"Refunded", "Order has been refunded"},
}

var orderStatusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:        {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:      {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing:     {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:        {OrderStatusOutForDelivery, OrderStatusDelivered},
	OrderStatusOutForDelivery: {OrderStatusDelivered},
	OrderStatusDelivered:      {OrderStatusReturned},
	OrderStatusReturned:       {OrderStatusRefunded},
}

// AllOrderStatuses lists every status in lifecycle order.
func AllOrderStatuses() []OrderStatus {
	return []OrderStatus{
		OrderStatusPending,
		OrderStatusConfirmed,
		OrderStatusProcessing,
		OrderStatusShipped,
		OrderStatusOutForDelivery,
		OrderStatusDelivered,
		OrderStatusCancelled,
		OrderStatusReturned,
		OrderStatusRefunded,
	}
}

// ParseOrderStatus accepts either the canonical code ("OUT_FOR_DELIVERY") or
// the display name ("Out for Delivery"), ignoring case and surrounding space.
func ParseOrderStatus(text string) (OrderStatus, error) {
	normalized := strings.ToUpper(strings.TrimSpace(text))
	normalized = strings.NewReplacer(" ", "_", "-", "_").Replace(normalized)

	s := OrderStatus(normalized)
	if !s.IsValid() {
		return "", errors.Wrapf(ErrUnknownStatus, "%q", text)
	}
	return s, nil
}

func (s OrderStatus) IsValid() bool {
	_, ok := orderStatuses[s]
	return ok
}

func (s OrderStatus) DisplayName() string {
	if info, ok := orderStatuses[s]; ok {
		return info.displayName
	}
	return string(s)
}

func (s OrderStatus) Description() string {
	return orderStatuses[s].description
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderStatusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s OrderStatus) IsTerminal() bool {
	return s.IsValid() && len(orderStatusTransitions[s]) == 0
}

// String representation (for logging)
func (s OrderStatus) String() string {
	return string(s)
}

// Scan rejects any stored value that is not a canonical status, so corrupt
// rows surface as ErrUnknownStatus instead of being read as Pending.
func (s *OrderStatus) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("order status: unsupported scan type %T", src)
	}

	parsed := OrderStatus(raw)
	if !parsed.IsValid() {
		return errors.Wrapf(ErrUnknownStatus, "stored value %q", raw)
	}
	*s = parsed
	return nil
}

func (s OrderStatus) Value() (driver.Value, error) {
	if !s.IsValid() {
		return nil, errors.Wrapf(ErrUnknownStatus, "%q", string(s))
	}
	return string(s), nil
}
