package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

type Address struct {
	ID         int64  `db:"id" json:"id"`
	OwnerEmail string `db:"owner_email" json:"owner_email"`
	Street     string `db:"street" json:"street"`
	City       string `db:"city" json:"city"`
	State      string `db:"state" json:"state"`
	Country    string `db:"country" json:"country"`
	Pincode    string `db:"pincode" json:"pincode"`
}

// Payment is written once at placement and never updated.
type Payment struct {
	ID               uuid.UUID `db:"id" json:"id"`
	Method           string    `db:"method" json:"method"`
	GatewayName      string    `db:"gateway_name" json:"gateway_name"`
	GatewayPaymentID string    `db:"gateway_payment_id" json:"gateway_payment_id"`
	GatewayStatus    string    `db:"gateway_status" json:"gateway_status"`
	GatewayMessage   string    `db:"gateway_message" json:"gateway_message"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

type OrderItem struct {
	ID          int64     `db:"id" json:"id"`
	OrderID     uuid.UUID `db:"order_id" json:"order_id"`
	ProductID   int64     `db:"product_id" json:"product_id"`
	ProductName string    `db:"product_name" json:"product_name"`
	Quantity    int       `db:"quantity" json:"quantity"`
	UnitPrice   float64   `db:"unit_price" json:"unit_price"`
	Discount    float64   `db:"discount" json:"discount"`
}

func (i OrderItem) LineTotal() float64 {
	return RoundMoney(i.UnitPrice * float64(i.Quantity))
}

type Order struct {
	ID             uuid.UUID   `db:"id" json:"id"`
	Email          string      `db:"customer_email" json:"email"`
	OrderDate      time.Time   `db:"order_date" json:"order_date"`
	TotalAmount    float64     `db:"total_amount" json:"total_amount"`
	Status         OrderStatus `db:"status" json:"status"`
	AddressID      int64       `db:"address_id" json:"address_id"`
	PaymentID      uuid.UUID   `db:"payment_id" json:"payment_id"`
	IdempotencyKey *string     `db:"idempotency_key" json:"-"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updated_at"`

	Items   []OrderItem `db:"-" json:"items"`
	Payment *Payment    `db:"-" json:"payment,omitempty"`

	// Replayed is set when a repeated idempotency key returned this order
	// instead of placing a new one.
	Replayed bool `db:"-" json:"-"`
}

// ItemsTotal sums unit price × quantity over the order's items. Unit prices
// already carry the per-item discount.
func (o *Order) ItemsTotal() float64 {
	total := 0.0
	for _, item := range o.Items {
		total += item.LineTotal()
	}
	return RoundMoney(total)
}

// RoundMoney rounds half away from zero to two decimals.
func RoundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}
