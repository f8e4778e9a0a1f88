package service

import (
	"context"
	"strings"
	"time"

	"github.com/fjod/go_cart/orders-service/internal/domain"
	"github.com/fjod/go_cart/orders-service/internal/metrics"
	"github.com/fjod/go_cart/orders-service/internal/notifier"
	"github.com/fjod/go_cart/orders-service/internal/repository"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// OrderPlacer turns a customer's cart into an order.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*domain.Order, error)
}

type PlaceOrderRequest struct {
	Email            string
	AddressID        int64
	PaymentMethod    string
	GatewayName      string
	GatewayPaymentID string
	GatewayStatus    string
	GatewayMessage   string
	// IdempotencyKey is optional. A repeated key returns the order created
	// by the first request.
	IdempotencyKey string
}

func (r PlaceOrderRequest) validate() error {
	if strings.TrimSpace(r.Email) == "" {
		return invalidInput("email is required")
	}
	if r.AddressID <= 0 {
		return invalidInput("address id must be positive")
	}
	if strings.TrimSpace(r.PaymentMethod) == "" {
		return invalidInput("payment method is required")
	}
	return nil
}

type OrderService struct {
	store   repository.Store
	events  notifier.Waker
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewOrderService writes customer notifications to the outbox; events, if not
// nil, is woken after every commit that added one.
func NewOrderService(store repository.Store, events notifier.Waker, m *metrics.Metrics) *OrderService {
	return &OrderService{
		store:   store,
		events:  events,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// PlaceOrder creates the payment, the order with its items, decrements stock
// and removes the ordered items from the cart in one transaction. The cart
// row stays locked for the whole transaction, so concurrent submits for the
// same customer run one after another and the later one finds the cart
// already emptied.
func (s *OrderService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*domain.Order, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	var order *domain.Order
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		order, err = s.placeOrder(ctx, tx, req)
		return err
	})
	if err != nil {
		s.metrics.PlacementFailed(failureReason(err))
		log.WithError(err).WithField("customer", req.Email).Warn("order placement failed")
		return nil, err
	}
	return order, nil
}

func (s *OrderService) placeOrder(ctx context.Context, tx repository.Tx, req PlaceOrderRequest) (*domain.Order, error) {
	cart, err := tx.GetCartForUpdate(ctx, req.Email)
	if errors.Is(err, repository.ErrCartNotFound) {
		return nil, notFound("Cart", "email", req.Email)
	}
	if err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		existing, err := tx.GetOrderByIdempotencyKey(ctx, req.Email, req.IdempotencyKey)
		if err == nil {
			log.WithFields(log.Fields{"order_id": existing.ID, "customer": req.Email}).
				Info("idempotent replay of order placement")
			existing.Replayed = true
			return existing, nil
		}
		if !errors.Is(err, repository.ErrOrderNotFound) {
			return nil, err
		}
	}

	address, err := tx.GetAddress(ctx, req.AddressID)
	if errors.Is(err, repository.ErrAddressNotFound) {
		return nil, notFound("Address", "addressId", req.AddressID)
	}
	if err != nil {
		return nil, err
	}
	if address.OwnerEmail != req.Email {
		return nil, notFound("Address", "addressId", req.AddressID)
	}

	if cart.IsEmpty() {
		return nil, ErrEmptyCart
	}

	if err := checkStock(ctx, tx, cart.Items); err != nil {
		return nil, err
	}

	payment := &domain.Payment{
		ID:               uuid.New(),
		Method:           req.PaymentMethod,
		GatewayName:      req.GatewayName,
		GatewayPaymentID: req.GatewayPaymentID,
		GatewayStatus:    req.GatewayStatus,
		GatewayMessage:   req.GatewayMessage,
	}
	if err := tx.CreatePayment(ctx, payment); err != nil {
		return nil, err
	}

	now := s.now()
	order := &domain.Order{
		ID:          uuid.New(),
		Email:       req.Email,
		OrderDate:   now,
		TotalAmount: cart.Total(),
		Status:      domain.OrderStatusPending,
		AddressID:   address.ID,
		PaymentID:   payment.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
		Payment:     payment,
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		order.IdempotencyKey = &key
	}
	err = tx.CreateOrder(ctx, order)
	if errors.Is(err, repository.ErrDuplicateIdempotencyKey) {
		// only reachable if the cart lock was bypassed
		return nil, conflict(CodeDuplicateRequest, "an order with idempotency key %q already exists", req.IdempotencyKey)
	}
	if err != nil {
		return nil, err
	}

	ordered := make(map[int64]struct{}, len(cart.Items))
	productIDs := make([]int64, 0, len(cart.Items))
	order.Items = make([]domain.OrderItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		order.Items = append(order.Items, domain.OrderItem{
			OrderID:     order.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Discount:    item.Discount,
		})
		ordered[item.ProductID] = struct{}{}
		productIDs = append(productIDs, item.ProductID)
	}
	if err := tx.CreateOrderItems(ctx, order.Items); err != nil {
		return nil, err
	}

	for _, item := range order.Items {
		err := tx.DecrementStock(ctx, item.ProductID, item.Quantity)
		if errors.Is(err, repository.ErrInsufficientStock) {
			return nil, conflict(CodeInsufficientStock,
				"insufficient stock for product %s (id %d)", item.ProductName, item.ProductID)
		}
		if err != nil {
			return nil, err
		}
	}

	if err := tx.RemoveCartItems(ctx, cart.ID, productIDs); err != nil {
		return nil, err
	}
	if err := tx.UpdateCartTotal(ctx, cart.ID, cart.Without(ordered).TotalPrice); err != nil {
		return nil, err
	}

	err = tx.AppendHistory(ctx, &domain.StatusHistory{
		OrderID:   order.ID,
		Status:    domain.OrderStatusPending,
		Notes:     "Order placed",
		UpdatedBy: req.Email,
	})
	if err != nil {
		return nil, err
	}

	if err := notifier.Enqueue(ctx, tx, notifier.New(notifier.KindOrderConfirmation, order)); err != nil {
		return nil, err
	}

	tx.AfterCommit(func() {
		s.metrics.OrderPlaced()
		log.WithFields(log.Fields{
			"order_id": order.ID,
			"customer": order.Email,
			"total":    order.TotalAmount,
			"items":    len(order.Items),
		}).Info("order placed")
		wake(s.events)
	})

	return order, nil
}

// checkStock rejects the order before any write if a product is gone or
// short. DecrementStock re-checks atomically later.
func checkStock(ctx context.Context, tx repository.Tx, items []domain.CartItem) error {
	for _, item := range items {
		product, err := tx.GetProduct(ctx, item.ProductID)
		if errors.Is(err, repository.ErrProductNotFound) {
			return notFound("Product", "productId", item.ProductID)
		}
		if err != nil {
			return err
		}
		if !product.HasStock(item.Quantity) {
			return conflict(CodeInsufficientStock,
				"insufficient stock for product %s: requested %d, available %d",
				product.Name, item.Quantity, product.Quantity)
		}
	}
	return nil
}

func failureReason(err error) string {
	var c *ConflictError
	switch {
	case errors.As(err, &c):
		return c.Code
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}

func wake(w notifier.Waker) {
	if w != nil {
		w.Wake()
	}
}
