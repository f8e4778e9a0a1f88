package repository

import (
	"context"
	"database/sql"

	"github.com/fjod/go_cart/orders-service/internal/domain"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

const orderColumns = `id, customer_email, order_date, total_amount, status, address_id, payment_id,
	idempotency_key, created_at, updated_at`

func (t *pgTx) CreateOrder(ctx context.Context, order *domain.Order) error {
	_, err := t.tx.NamedExecContext(ctx,
		`INSERT INTO orders (id, customer_email, order_date, total_amount, status, address_id, payment_id, idempotency_key)
		 VALUES (:id, :customer_email, :order_date, :total_amount, :status, :address_id, :payment_id, :idempotency_key)`,
		order)
	if isUniqueViolation(err) {
		return ErrDuplicateIdempotencyKey
	}
	return errors.Wrap(err, "insert order")
}

func (t *pgTx) CreateOrderItems(ctx context.Context, items []domain.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	_, err := t.tx.NamedExecContext(ctx,
		`INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price, discount)
		 VALUES (:order_id, :product_id, :product_name, :quantity, :unit_price, :discount)`,
		items)
	return errors.Wrap(err, "insert order items")
}

func (t *pgTx) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	order, err := t.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if err := t.loadItems(ctx, []*domain.Order{order}); err != nil {
		return nil, err
	}

	var payment domain.Payment
	err = t.tx.GetContext(ctx, &payment,
		`SELECT id, method, gateway_name, gateway_payment_id, gateway_status, gateway_message, created_at
		 FROM payments WHERE id = $1`, order.PaymentID)
	if err != nil {
		return nil, errors.Wrap(err, "query payment")
	}
	order.Payment = &payment

	return order, nil
}

func (t *pgTx) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return t.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
}

func (t *pgTx) GetOrderByIdempotencyKey(ctx context.Context, email, key string) (*domain.Order, error) {
	order, err := t.getOrder(ctx,
		`SELECT id FROM orders WHERE customer_email = $1 AND idempotency_key = $2`, email, key)
	if err != nil {
		return nil, err
	}
	return t.GetOrder(ctx, order.ID)
}

func (t *pgTx) getOrder(ctx context.Context, query string, args ...any) (*domain.Order, error) {
	var order domain.Order
	err := t.tx.GetContext(ctx, &order, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "query order")
	}
	return &order, nil
}

func (t *pgTx) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return errors.Wrap(err, "update order status")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (t *pgTx) ListOrdersByStatus(ctx context.Context, status domain.OrderStatus) ([]*domain.Order, error) {
	var orders []*domain.Order
	err := t.tx.SelectContext(ctx, &orders,
		`SELECT `+orderColumns+` FROM orders WHERE status = $1 ORDER BY order_date DESC`, status)
	if err != nil {
		return nil, errors.Wrap(err, "query orders by status")
	}
	if err := t.loadItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (t *pgTx) loadItems(ctx context.Context, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	byID := make(map[uuid.UUID]*domain.Order, len(orders))
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		o.Items = make([]domain.OrderItem, 0)
		byID[o.ID] = o
		ids = append(ids, o.ID.String())
	}

	var items []domain.OrderItem
	err := t.tx.SelectContext(ctx, &items,
		`SELECT id, order_id, product_id, product_name, quantity, unit_price, discount
		 FROM order_items WHERE order_id = ANY($1::uuid[]) ORDER BY id`, pq.Array(ids))
	if err != nil {
		return errors.Wrap(err, "query order items")
	}

	for _, item := range items {
		if o, ok := byID[item.OrderID]; ok {
			o.Items = append(o.Items, item)
		}
	}
	return nil
}

func (t *pgTx) AppendHistory(ctx context.Context, entry *domain.StatusHistory) error {
	err := t.tx.QueryRowxContext(ctx,
		`INSERT INTO order_status_history (order_id, status, notes, tracking_number, carrier, location, updated_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		entry.OrderID,
		entry.Status,
		entry.Notes,
		entry.TrackingNumber,
		entry.Carrier,
		entry.Location,
		entry.UpdatedBy,
	).Scan(&entry.ID, &entry.CreatedAt)
	return errors.Wrap(err, "insert status history")
}

func (t *pgTx) ListHistory(ctx context.Context, orderID uuid.UUID) ([]domain.StatusHistory, error) {
	history := make([]domain.StatusHistory, 0)
	err := t.tx.SelectContext(ctx, &history,
		`SELECT id, order_id, status, notes, tracking_number, carrier, location, updated_by, created_at
		 FROM order_status_history
		 WHERE order_id = $1
		 ORDER BY created_at DESC, id DESC`, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "query status history")
	}
	return history, nil
}

func (t *pgTx) InsertAudit(ctx context.Context, entry *domain.AuditEntry) error {
	err := t.tx.QueryRowxContext(ctx,
		`INSERT INTO audit_logs (actor, action, entity_type, entity_id, old_value, new_value, status, details)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at`,
		entry.Actor,
		entry.Action,
		entry.EntityType,
		entry.EntityID,
		entry.OldValue,
		entry.NewValue,
		entry.Status,
		entry.Details,
	).Scan(&entry.ID, &entry.CreatedAt)
	return errors.Wrap(err, "insert audit log")
}
