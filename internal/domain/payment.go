package domain

import "time"

type PaymentStatus string

const (
	PaymentStatusCaptured PaymentStatus = "captured"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// Payment records a gateway capture for an order, one per order.
type Payment struct {
	OrderID       string        `json:"order_id"`
	TransactionID string        `json:"transaction_id"`
	AmountMinor   int64         `json:"amount_minor"`
	Currency      string        `json:"currency"`
	Status        PaymentStatus `json:"status"`
	CapturedAt    time.Time     `json:"captured_at"`
}
