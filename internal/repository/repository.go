package repository

import (
	"context"

	"github.com/fjod/go_cart/orders-service/internal/domain"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

var (
	ErrCartNotFound            = errors.New("cart not found")
	ErrAddressNotFound         = errors.New("address not found")
	ErrProductNotFound         = errors.New("product not found")
	ErrOrderNotFound           = errors.New("order not found")
	ErrInsufficientStock       = errors.New("insufficient stock")
	ErrDuplicateIdempotencyKey = errors.New("order with this idempotency key already exists")
)

type CartRepository interface {
	// GetCartForUpdate loads the customer's cart with its items and holds a
	// row lock on the cart until the transaction ends.
	GetCartForUpdate(ctx context.Context, email string) (*domain.Cart, error)
	RemoveCartItems(ctx context.Context, cartID int64, productIDs []int64) error
	UpdateCartTotal(ctx context.Context, cartID int64, total float64) error
}

type AddressRepository interface {
	GetAddress(ctx context.Context, id int64) (*domain.Address, error)
}

type ProductRepository interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	SaveProduct(ctx context.Context, product *domain.Product) error
	// DecrementStock subtracts quantity only if enough stock is left and
	// returns ErrInsufficientStock otherwise.
	DecrementStock(ctx context.Context, productID int64, quantity int) error
}

type PaymentRepository interface {
	CreatePayment(ctx context.Context, payment *domain.Payment) error
}

type OrderRepository interface {
	CreateOrder(ctx context.Context, order *domain.Order) error
	CreateOrderItems(ctx context.Context, items []domain.OrderItem) error
	// GetOrder returns the order with its items and payment.
	GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	// GetOrderForUpdate returns the order header and locks its row.
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, email, key string) (*domain.Order, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) error
	ListOrdersByStatus(ctx context.Context, status domain.OrderStatus) ([]*domain.Order, error)
}

type HistoryRepository interface {
	AppendHistory(ctx context.Context, entry *domain.StatusHistory) error
	// ListHistory returns entries newest first.
	ListHistory(ctx context.Context, orderID uuid.UUID) ([]domain.StatusHistory, error)
}

type AuditRepository interface {
	InsertAudit(ctx context.Context, entry *domain.AuditEntry) error
}

type OutboxRepository interface {
	// EnqueueEvent stores an event that is published once the transaction
	// has committed.
	EnqueueEvent(ctx context.Context, event *domain.OutboxEvent) error
}

// Tx is a unit of work. Every write made through it commits or rolls back
// together.
type Tx interface {
	CartRepository
	AddressRepository
	ProductRepository
	PaymentRepository
	OrderRepository
	HistoryRepository
	AuditRepository
	OutboxRepository

	// AfterCommit registers fn to run once the outermost transaction has
	// committed. Hooks are dropped on rollback.
	AfterCommit(fn func())
}

type Store interface {
	// WithinTx runs fn in a transaction. A ctx that already carries a
	// transaction started by WithinTx joins it instead of opening a new one.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Close() error
}
