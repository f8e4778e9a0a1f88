package repository

import (
	"context"
	"database/sql"

	"github.com/fjod/go_cart/orders-service/internal/domain"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

func (t *pgTx) GetCartForUpdate(ctx context.Context, email string) (*domain.Cart, error) {
	var cart domain.Cart
	err := t.tx.GetContext(ctx, &cart,
		`SELECT id, customer_email, total_price FROM carts WHERE customer_email = $1 FOR UPDATE`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCartNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "query cart")
	}

	err = t.tx.SelectContext(ctx, &cart.Items,
		`SELECT ci.id, ci.cart_id, ci.product_id, p.name AS product_name, ci.quantity, ci.unit_price, ci.discount
		 FROM cart_items ci
		 JOIN products p ON p.id = ci.product_id
		 WHERE ci.cart_id = $1
		 ORDER BY ci.id`, cart.ID)
	if err != nil {
		return nil, errors.Wrap(err, "query cart items")
	}

	return &cart, nil
}

func (t *pgTx) RemoveCartItems(ctx context.Context, cartID int64, productIDs []int64) error {
	if len(productIDs) == 0 {
		return nil
	}
	_, err := t.tx.ExecContext(ctx,
		`DELETE FROM cart_items WHERE cart_id = $1 AND product_id = ANY($2)`,
		cartID, pq.Array(productIDs))
	return errors.Wrap(err, "delete cart items")
}

func (t *pgTx) UpdateCartTotal(ctx context.Context, cartID int64, total float64) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE carts SET total_price = $2 WHERE id = $1`, cartID, total)
	return errors.Wrap(err, "update cart total")
}

func (t *pgTx) GetAddress(ctx context.Context, id int64) (*domain.Address, error) {
	var addr domain.Address
	err := t.tx.GetContext(ctx, &addr,
		`SELECT id, owner_email, street, city, state, country, pincode FROM addresses WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAddressNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "query address")
	}
	return &addr, nil
}

func (t *pgTx) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	var p domain.Product
	err := t.tx.GetContext(ctx, &p,
		`SELECT id, name, price, discount, special_price, quantity FROM products WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "query product")
	}
	return &p, nil
}

// SaveProduct persists quantity and pricing. The special price is derived
// again before writing.
func (t *pgTx) SaveProduct(ctx context.Context, product *domain.Product) error {
	product.RecalculateSpecialPrice()
	res, err := t.tx.NamedExecContext(ctx,
		`UPDATE products
		 SET name = :name, price = :price, discount = :discount, special_price = :special_price, quantity = :quantity
		 WHERE id = :id`, product)
	if err != nil {
		return errors.Wrap(err, "update product")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (t *pgTx) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE products SET quantity = quantity - $2 WHERE id = $1 AND quantity >= $2`,
		productID, quantity)
	if err != nil {
		return errors.Wrap(err, "decrement stock")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "decrement stock rows affected")
	}
	if n == 0 {
		return ErrInsufficientStock
	}
	return nil
}

func (t *pgTx) CreatePayment(ctx context.Context, payment *domain.Payment) error {
	err := t.tx.QueryRowxContext(ctx,
		`INSERT INTO payments (id, method, gateway_name, gateway_payment_id, gateway_status, gateway_message)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at`,
		payment.ID,
		payment.Method,
		payment.GatewayName,
		payment.GatewayPaymentID,
		payment.GatewayStatus,
		payment.GatewayMessage,
	).Scan(&payment.CreatedAt)
	return errors.Wrap(err, "insert payment")
}
