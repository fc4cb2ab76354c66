package domain

import (
	"time"

	"github.com/google/uuid"
)

// Domain events are returned by operations and published by the caller
// after commit. Nothing is emitted for work that rolled back.

type OrderPlacedEvent struct {
	OrderID       uuid.UUID `json:"order_id"`
	OrderNumber   string    `json:"order_number"`
	CustomerEmail string    `json:"customer_email"`
	TotalAmount   string    `json:"total_amount"`
	ItemCount     int       `json:"item_count"`
	Timestamp     time.Time `json:"timestamp"`
}

type OrderCancelledEvent struct {
	OrderID       uuid.UUID `json:"order_id"`
	OrderNumber   string    `json:"order_number"`
	CustomerEmail string    `json:"customer_email"`
	Timestamp     time.Time `json:"timestamp"`
}

type PaymentSucceededEvent struct {
	PaymentID     uuid.UUID `json:"payment_id"`
	OrderID       uuid.UUID `json:"order_id"`
	OrderNumber   string    `json:"order_number"`
	CustomerEmail string    `json:"customer_email"`
	Amount        string    `json:"amount"`
	Timestamp     time.Time `json:"timestamp"`
}
