package http

import (
	"time"

	"github.com/fjod/go_cart/orders-service/internal/domain"
)

type PlaceOrderRequestDTO struct {
	AddressID        int64  `json:"address_id"`
	PaymentMethod    string `json:"payment_method"`
	GatewayName      string `json:"pg_name"`
	GatewayPaymentID string `json:"pg_payment_id"`
	GatewayStatus    string `json:"pg_status"`
	GatewayMessage   string `json:"pg_response_message"`
}

type UpdateStatusRequestDTO struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

type AddTrackingRequestDTO struct {
	TrackingNumber string `json:"tracking_number"`
	Carrier        string `json:"carrier"`
}

type CancelOrderRequestDTO struct {
	Reason string `json:"reason"`
}

type OrderItemDTO struct {
	ProductID   int64   `json:"product_id"`
	ProductName string  `json:"product_name"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
	Discount    float64 `json:"discount"`
}

type PaymentDTO struct {
	ID               string `json:"id"`
	Method           string `json:"payment_method"`
	GatewayName      string `json:"pg_name"`
	GatewayPaymentID string `json:"pg_payment_id"`
	GatewayStatus    string `json:"pg_status"`
	GatewayMessage   string `json:"pg_response_message"`
}

type OrderResponseDTO struct {
	ID          string         `json:"id"`
	Email       string         `json:"email"`
	OrderDate   string         `json:"order_date"`
	TotalAmount float64        `json:"total_amount"`
	Status      string         `json:"status"`
	AddressID   int64          `json:"address_id"`
	Payment     *PaymentDTO    `json:"payment,omitempty"`
	Items       []OrderItemDTO `json:"items"`
}

type StatusHistoryDTO struct {
	Status         string `json:"status"`
	Description    string `json:"description"`
	Notes          string `json:"notes,omitempty"`
	TrackingNumber string `json:"tracking_number,omitempty"`
	Carrier        string `json:"carrier,omitempty"`
	Location       string `json:"location,omitempty"`
	UpdatedBy      string `json:"updated_by,omitempty"`
	Timestamp      string `json:"timestamp"`
}

type OrderTrackingDTO struct {
	OrderID        string             `json:"order_id"`
	Email          string             `json:"email"`
	OrderDate      string             `json:"order_date"`
	TotalAmount    float64            `json:"total_amount"`
	CurrentStatus  string             `json:"current_status"`
	TrackingNumber string             `json:"tracking_number,omitempty"`
	Carrier        string             `json:"carrier,omitempty"`
	StatusHistory  []StatusHistoryDTO `json:"status_history"`
}

func convertOrder(o *domain.Order) OrderResponseDTO {
	items := make([]OrderItemDTO, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, OrderItemDTO{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			Price:       item.UnitPrice,
			Discount:    item.Discount,
		})
	}

	dto := OrderResponseDTO{
		ID:          o.ID.String(),
		Email:       o.Email,
		OrderDate:   o.OrderDate.Format(time.RFC3339),
		TotalAmount: o.TotalAmount,
		Status:      o.Status.DisplayName(),
		AddressID:   o.AddressID,
		Items:       items,
	}
	if o.Payment != nil {
		dto.Payment = &PaymentDTO{
			ID:               o.Payment.ID.String(),
			Method:           o.Payment.Method,
			GatewayName:      o.Payment.GatewayName,
			GatewayPaymentID: o.Payment.GatewayPaymentID,
			GatewayStatus:    o.Payment.GatewayStatus,
			GatewayMessage:   o.Payment.GatewayMessage,
		}
	}
	return dto
}

func convertTracking(t *domain.OrderTracking) OrderTrackingDTO {
	history := make([]StatusHistoryDTO, 0, len(t.History))
	for _, h := range t.History {
		history = append(history, StatusHistoryDTO{
			Status:         h.Status.DisplayName(),
			Description:    h.Status.Description(),
			Notes:          h.Notes,
			TrackingNumber: h.TrackingNumber,
			Carrier:        h.Carrier,
			Location:       h.Location,
			UpdatedBy:      h.UpdatedBy,
			Timestamp:      h.CreatedAt.Format(time.RFC3339),
		})
	}

	return OrderTrackingDTO{
		OrderID:        t.OrderID.String(),
		Email:          t.Email,
		OrderDate:      t.OrderDate.Format(time.RFC3339),
		TotalAmount:    t.TotalAmount,
		CurrentStatus:  t.CurrentStatus.DisplayName(),
		TrackingNumber: t.TrackingNumber,
		Carrier:        t.Carrier,
		StatusHistory:  history,
	}
}
