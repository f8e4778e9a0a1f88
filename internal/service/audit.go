package service

import (
	"context"
	"encoding/json"

	"github.com/fjod/go_cart/orders-service/internal/domain"
	"github.com/fjod/go_cart/orders-service/internal/repository"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	ActionPlaceOrder        = "PLACE_ORDER"
	ActionUpdateOrderStatus = "UPDATE_ORDER_STATUS"
	ActionAddTrackingInfo   = "ADD_TRACKING_INFO"
	ActionCancelOrder       = "CANCEL_ORDER"

	entityOrder     = "Order"
	maxAuditDetails = 2000

	detailsReplay = "idempotent replay"
)

// AuditedOrders records every mutating call of the wrapped services. Success
// entries are written in the same transaction as the change itself; failure
// entries are written afterwards in their own transaction and may be lost.
type AuditedOrders struct {
	placer  OrderPlacer
	tracker OrderTracker
	store   repository.Store
}

var (
	_ OrderPlacer  = (*AuditedOrders)(nil)
	_ OrderTracker = (*AuditedOrders)(nil)
)

func NewAuditedOrders(placer OrderPlacer, tracker OrderTracker, store repository.Store) *AuditedOrders {
	return &AuditedOrders{placer: placer, tracker: tracker, store: store}
}

func (a *AuditedOrders) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*domain.Order, error) {
	entry := &domain.AuditEntry{
		Actor:      actorOf(ctx, req.Email),
		Action:     ActionPlaceOrder,
		EntityType: entityOrder,
	}

	var order *domain.Order
	err := a.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		order, err = a.placer.PlaceOrder(ctx, req)
		if err != nil {
			return err
		}
		entry.EntityID = order.ID.String()
		if order.Replayed {
			entry.Details = detailsReplay
			return a.success(ctx, tx, entry)
		}
		entry.NewValue = snapshot(order)
		return a.success(ctx, tx, entry)
	})
	if err != nil {
		a.failure(ctx, entry, err)
		return nil, err
	}
	return order, nil
}

func (a *AuditedOrders) GetOrderTracking(ctx context.Context, orderID uuid.UUID) (*domain.OrderTracking, error) {
	return a.tracker.GetOrderTracking(ctx, orderID)
}

func (a *AuditedOrders) ListOrdersByStatus(ctx context.Context, status domain.OrderStatus) ([]*domain.Order, error) {
	return a.tracker.ListOrdersByStatus(ctx, status)
}

func (a *AuditedOrders) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status domain.OrderStatus, notes string) (*domain.OrderTracking, error) {
	return a.auditTransition(ctx, ActionUpdateOrderStatus, orderID, false, func(ctx context.Context) (*domain.OrderTracking, error) {
		return a.tracker.UpdateOrderStatus(ctx, orderID, status, notes)
	})
}

func (a *AuditedOrders) AddTrackingInfo(ctx context.Context, orderID uuid.UUID, trackingNumber, carrier string) (*domain.OrderTracking, error) {
	return a.auditTransition(ctx, ActionAddTrackingInfo, orderID, false, func(ctx context.Context) (*domain.OrderTracking, error) {
		return a.tracker.AddTrackingInfo(ctx, orderID, trackingNumber, carrier)
	})
}

func (a *AuditedOrders) CancelOrder(ctx context.Context, orderID uuid.UUID, reason string) (*domain.OrderTracking, error) {
	return a.auditTransition(ctx, ActionCancelOrder, orderID, true, func(ctx context.Context) (*domain.OrderTracking, error) {
		return a.tracker.CancelOrder(ctx, orderID, reason)
	})
}

// auditTransition records a status change. ownerMayAct tells whether the
// order's owner, and not only an admin, may perform the action.
func (a *AuditedOrders) auditTransition(ctx context.Context, action string, orderID uuid.UUID, ownerMayAct bool, call func(ctx context.Context) (*domain.OrderTracking, error)) (*domain.OrderTracking, error) {
	entry := &domain.AuditEntry{
		Actor:      actorOf(ctx, ""),
		Action:     action,
		EntityType: entityOrder,
		EntityID:   orderID.String(),
	}

	var tracking *domain.OrderTracking
	err := a.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		// Lock first so the before-image matches what the change sees.
		if mayChange(ctx, tx, orderID, ownerMayAct) {
			if before, err := tx.GetOrderForUpdate(ctx, orderID); err == nil {
				entry.OldValue = snapshot(statusSnapshot{Status: before.Status})
			}
		}

		var err error
		tracking, err = call(ctx)
		if err != nil {
			return err
		}
		entry.NewValue = snapshot(statusSnapshot{
			Status:         tracking.CurrentStatus,
			TrackingNumber: tracking.TrackingNumber,
			Carrier:        tracking.Carrier,
		})
		return a.success(ctx, tx, entry)
	})
	if err != nil {
		a.failure(ctx, entry, err)
		return nil, err
	}
	return tracking, nil
}

// mayChange mirrors the access rules of the tracker, so callers it will
// reject neither lock the order nor have its state written to their audit row.
func mayChange(ctx context.Context, tx repository.Tx, orderID uuid.UUID, ownerMayAct bool) bool {
	caller, ok := CallerFromContext(ctx)
	switch {
	case !ok:
		return false
	case caller.IsAdmin():
		return true
	case !ownerMayAct:
		return false
	}
	order, err := tx.GetOrder(ctx, orderID)
	return err == nil && caller.canAccess(order.Email)
}

type statusSnapshot struct {
	Status         domain.OrderStatus `json:"status"`
	TrackingNumber string             `json:"tracking_number,omitempty"`
	Carrier        string             `json:"carrier,omitempty"`
}

func (a *AuditedOrders) success(ctx context.Context, tx repository.Tx, entry *domain.AuditEntry) error {
	entry.Status = domain.AuditStatusSuccess
	return errors.Wrap(tx.InsertAudit(ctx, entry), "write audit log")
}

func (a *AuditedOrders) failure(ctx context.Context, entry *domain.AuditEntry, cause error) {
	entry.Status = domain.AuditStatusFailure
	entry.Details = truncate(cause.Error(), maxAuditDetails)

	err := a.store.WithinTx(context.WithoutCancel(ctx), func(ctx context.Context, tx repository.Tx) error {
		return tx.InsertAudit(ctx, entry)
	})
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"action":    entry.Action,
			"entity_id": entry.EntityID,
		}).Error("failed to write failure audit log")
	}
}

func actorOf(ctx context.Context, fallback string) string {
	if caller, ok := CallerFromContext(ctx); ok {
		return caller.Name()
	}
	return fallback
}

func snapshot(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return truncate(string(data), maxAuditDetails)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
