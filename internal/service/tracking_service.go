package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/fjod/go_cart/orders-service/internal/cache"
	"github.com/fjod/go_cart/orders-service/internal/domain"
	"github.com/fjod/go_cart/orders-service/internal/metrics"
	"github.com/fjod/go_cart/orders-service/internal/notifier"
	"github.com/fjod/go_cart/orders-service/internal/repository"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// OrderTracker reads and advances the status of placed orders.
type OrderTracker interface {
	GetOrderTracking(ctx context.Context, orderID uuid.UUID) (*domain.OrderTracking, error)
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status domain.OrderStatus, notes string) (*domain.OrderTracking, error)
	AddTrackingInfo(ctx context.Context, orderID uuid.UUID, trackingNumber, carrier string) (*domain.OrderTracking, error)
	CancelOrder(ctx context.Context, orderID uuid.UUID, reason string) (*domain.OrderTracking, error)
	ListOrdersByStatus(ctx context.Context, status domain.OrderStatus) ([]*domain.Order, error)
}

// trackingLoadTimeout bounds a tracking read shared by concurrent callers.
const trackingLoadTimeout = 10 * time.Second

type TrackingService struct {
	store   repository.Store
	events  notifier.Waker
	cache   cache.TrackingCache
	metrics *metrics.Metrics
	sfg     singleflight.Group

	// generation changes on every invalidation. A cache fill that read the
	// order under an older generation may be stale and is not kept.
	generation atomic.Uint64
}

func NewTrackingService(store repository.Store, events notifier.Waker, c cache.TrackingCache, m *metrics.Metrics) *TrackingService {
	if c == nil {
		c = cache.NoopCache{}
	}
	return &TrackingService{
		store:   store,
		events:  events,
		cache:   c,
		metrics: m,
	}
}

// GetOrderTracking is open to the order's owner and to admins. Callers
// without access get ErrForbidden whether or not the order exists.
func (s *TrackingService) GetOrderTracking(ctx context.Context, orderID uuid.UUID) (*domain.OrderTracking, error) {
	caller, ok := CallerFromContext(ctx)
	if !ok {
		return nil, ErrForbidden
	}

	ch := s.sfg.DoChan(orderID.String(), func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), trackingLoadTimeout)
		defer cancel()
		return s.load(loadCtx, orderID)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if errors.Is(res.Err, repository.ErrOrderNotFound) {
		if !caller.IsAdmin() {
			return nil, ErrForbidden
		}
		return nil, notFound("Order", "orderId", orderID)
	}
	if res.Err != nil {
		return nil, res.Err
	}

	tracking := res.Val.(*domain.OrderTracking)
	if !caller.canAccess(tracking.Email) {
		return nil, ErrForbidden
	}
	return tracking, nil
}

func (s *TrackingService) load(ctx context.Context, orderID uuid.UUID) (*domain.OrderTracking, error) {
	tracking, err := s.cache.Get(ctx, orderID)
	if err == nil {
		return tracking, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		log.WithError(err).Warn("tracking cache get failed")
	}

	gen := s.generation.Load()
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		order, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		history, err := tx.ListHistory(ctx, orderID)
		if err != nil {
			return err
		}
		tracking = domain.NewOrderTracking(order, history)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.fill(ctx, tracking, gen)
	return tracking, nil
}

// fill caches a view read under generation gen. invalidate bumps the
// generation before deleting, so a Set that lands after that delete is seen
// by the second check and removed again.
func (s *TrackingService) fill(ctx context.Context, tracking *domain.OrderTracking, gen uint64) {
	if s.generation.Load() != gen {
		return
	}
	if err := s.cache.Set(ctx, tracking); err != nil {
		log.WithError(err).Warn("tracking cache set failed")
		return
	}
	if s.generation.Load() != gen {
		s.drop(ctx, tracking.OrderID)
	}
}

// UpdateOrderStatus is an admin operation. The current status is read under
// a row lock, so concurrent updates of one order are validated one at a time.
func (s *TrackingService) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status domain.OrderStatus, notes string) (*domain.OrderTracking, error) {
	caller, err := requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	if !status.IsValid() {
		return nil, invalidInput("unknown status %q", status)
	}

	var tracking *domain.OrderTracking
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		order, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !order.Status.CanTransitionTo(status) {
			return conflict(CodeIllegalTransition, "Cannot transition from %s to %s",
				order.Status.DisplayName(), status.DisplayName())
		}
		tracking, err = s.transition(ctx, tx, order, status, notes, caller)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tracking, nil
}

// AddTrackingInfo attaches a tracking number. The history entry is always
// tagged Shipped. Orders that have not shipped yet are moved to Shipped;
// orders already further along keep their status.
func (s *TrackingService) AddTrackingInfo(ctx context.Context, orderID uuid.UUID, trackingNumber, carrier string) (*domain.OrderTracking, error) {
	caller, err := requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	if trackingNumber == "" {
		return nil, invalidInput("tracking number is required")
	}

	var tracking *domain.OrderTracking
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		order, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		// Cancelled and Refunded orders never ship, so no history row is
		// appended for them.
		if order.Status.IsTerminal() {
			return conflict(CodeIllegalTransition, "Cannot add tracking information to an order in status %s",
				order.Status.DisplayName())
		}

		err = tx.AppendHistory(ctx, &domain.StatusHistory{
			OrderID:        order.ID,
			Status:         domain.OrderStatusShipped,
			Notes:          "Tracking information added",
			TrackingNumber: trackingNumber,
			Carrier:        carrier,
			UpdatedBy:      caller.Name(),
		})
		if err != nil {
			return err
		}

		previous := order.Status
		if advancesToShipped(previous) {
			if err := tx.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusShipped); err != nil {
				return err
			}
			order.Status = domain.OrderStatusShipped
		}

		history, err := tx.ListHistory(ctx, order.ID)
		if err != nil {
			return err
		}
		tracking = domain.NewOrderTracking(order, history)

		msg := notifier.New(notifier.KindShipping, order)
		msg.TrackingNumber = trackingNumber
		msg.Carrier = carrier
		if err := notifier.Enqueue(ctx, tx, msg); err != nil {
			return err
		}

		tx.AfterCommit(func() {
			s.invalidate(ctx, order.ID)
			if previous != order.Status {
				s.metrics.StatusChanged(previous.String(), order.Status.String())
			}
			log.WithFields(log.Fields{
				"order_id": order.ID,
				"tracking": trackingNumber,
				"carrier":  carrier,
			}).Info("tracking information added")
			wake(s.events)
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tracking, nil
}

// CancelOrder is open to the order's owner and to admins.
func (s *TrackingService) CancelOrder(ctx context.Context, orderID uuid.UUID, reason string) (*domain.OrderTracking, error) {
	caller, ok := CallerFromContext(ctx)
	if !ok {
		return nil, ErrForbidden
	}

	var tracking *domain.OrderTracking
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		// Callers without access are turned away before the row lock.
		if !caller.IsAdmin() {
			order, err := tx.GetOrder(ctx, orderID)
			if errors.Is(err, repository.ErrOrderNotFound) {
				return ErrForbidden
			}
			if err != nil {
				return err
			}
			if !caller.canAccess(order.Email) {
				return ErrForbidden
			}
		}

		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if errors.Is(err, repository.ErrOrderNotFound) {
			if !caller.IsAdmin() {
				return ErrForbidden
			}
			return notFound("Order", "orderId", orderID)
		}
		if err != nil {
			return err
		}
		if !caller.canAccess(order.Email) {
			return ErrForbidden
		}
		if !order.Status.CanTransitionTo(domain.OrderStatusCancelled) {
			return conflict(CodeNotCancellable, "Order cannot be cancelled in current status: %s",
				order.Status.DisplayName())
		}
		tracking, err = s.transition(ctx, tx, order, domain.OrderStatusCancelled, reason, caller)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tracking, nil
}

func (s *TrackingService) ListOrdersByStatus(ctx context.Context, status domain.OrderStatus) ([]*domain.Order, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if !status.IsValid() {
		return nil, invalidInput("unknown status %q", status)
	}

	var orders []*domain.Order
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		orders, err = tx.ListOrdersByStatus(ctx, status)
		return err
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// transition writes a status change the caller has already validated.
func (s *TrackingService) transition(ctx context.Context, tx repository.Tx, order *domain.Order, status domain.OrderStatus, notes string, caller Caller) (*domain.OrderTracking, error) {
	previous := order.Status
	if err := tx.UpdateOrderStatus(ctx, order.ID, status); err != nil {
		return nil, err
	}
	order.Status = status

	err := tx.AppendHistory(ctx, &domain.StatusHistory{
		OrderID:   order.ID,
		Status:    status,
		Notes:     notes,
		UpdatedBy: caller.Name(),
	})
	if err != nil {
		return nil, err
	}

	history, err := tx.ListHistory(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	if err := notifier.Enqueue(ctx, tx, notifier.New(notifier.KindStatusUpdate, order)); err != nil {
		return nil, err
	}

	tx.AfterCommit(func() {
		s.invalidate(ctx, order.ID)
		s.metrics.StatusChanged(previous.String(), status.String())
		log.WithFields(log.Fields{
			"order_id": order.ID,
			"from":     previous,
			"to":       status,
			"by":       caller.Name(),
		}).Info("order status changed")
		wake(s.events)
	})

	return domain.NewOrderTracking(order, history), nil
}

// invalidate runs after commit. Reads already in flight may hold the old
// view; they are detached from later callers and their cache fill is undone.
func (s *TrackingService) invalidate(ctx context.Context, orderID uuid.UUID) {
	s.generation.Add(1)
	s.sfg.Forget(orderID.String())
	s.drop(ctx, orderID)
}

func (s *TrackingService) drop(ctx context.Context, orderID uuid.UUID) {
	if err := s.cache.Delete(context.WithoutCancel(ctx), orderID); err != nil {
		log.WithError(err).WithField("order_id", orderID).Warn("tracking cache invalidation failed")
	}
}

func lockOrder(ctx context.Context, tx repository.Tx, orderID uuid.UUID) (*domain.Order, error) {
	order, err := tx.GetOrderForUpdate(ctx, orderID)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return nil, notFound("Order", "orderId", orderID)
	}
	return order, err
}

func advancesToShipped(current domain.OrderStatus) bool {
	switch current {
	case domain.OrderStatusPending, domain.OrderStatusConfirmed, domain.OrderStatusProcessing:
		return true
	}
	return false
}

func requireAdmin(ctx context.Context) (Caller, error) {
	caller, ok := CallerFromContext(ctx)
	if !ok || !caller.IsAdmin() {
		return Caller{}, ErrForbidden
	}
	return caller, nil
}
