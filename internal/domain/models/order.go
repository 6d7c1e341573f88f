package models

import (
	"encoding/json"
	"time"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusConfirmed  OrderStatus = "confirmed"
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
	StatusFailed     OrderStatus = "failed"
	StatusCompleted  OrderStatus = "completed"
)

// Valid reports whether s is one of the known statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusProcessing, StatusShipped,
		StatusDelivered, StatusCancelled, StatusFailed, StatusCompleted:
		return true
	}
	return false
}

// OrderItem is a price snapshot taken at checkout; the referenced product
// may change later, the snapshot never does.
type OrderItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
}

// Order represents a single checkout attempt. OrderID is the external
// reference exchanged with the payment gateway as its buy-order field.
type Order struct {
	ID              int64           `json:"-"`
	OrderID         string          `json:"order_id"`
	UserID          int64           `json:"user_id"`
	CustomerName    string          `json:"customer_name"`
	CustomerEmail   string          `json:"customer_email"`
	Items           []OrderItem     `json:"items"`
	Subtotal        int64           `json:"subtotal"`
	DiscountAmount  int64           `json:"discount_amount"`
	TotalAmount     int64           `json:"total_amount"`
	Status          OrderStatus     `json:"status"`
	WebpayToken     string          `json:"webpay_token,omitempty"`
	WebpaySessionID string          `json:"webpay_session_id,omitempty"`
	WebpayResult    json.RawMessage `json:"webpay_result,omitempty"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}
