package domain

import "time"

// Kafka topics carrying the lifecycle events below.
const (
	TopicOrderPlaced     = "order.placed"
	TopicOrderConfirmed  = "order.confirmed"
	TopicOrderCancelled  = "order.cancelled"
	TopicShipmentUpdated = "shipment.status.changed"
)

type OrderPlacedEvent struct {
	OrderID    string      `json:"order_id"`
	CustomerID string      `json:"customer_id"`
	Items      []OrderItem `json:"items"`
	TotalMinor int64       `json:"total_minor"`
	Timestamp  time.Time   `json:"timestamp"`
}

type OrderConfirmedEvent struct {
	OrderID       string    `json:"order_id"`
	CustomerID    string    `json:"customer_id"`
	TransactionID string    `json:"transaction_id"`
	TotalMinor    int64     `json:"total_minor"`
	Timestamp     time.Time `json:"timestamp"`
}

type OrderCancelledEvent struct {
	OrderID    string    `json:"order_id"`
	CustomerID string    `json:"customer_id"`
	Reason     string    `json:"reason"`
	Timestamp  time.Time `json:"timestamp"`
}

type ShipmentStatusChangedEvent struct {
	ShipmentID     string         `json:"shipment_id"`
	OrderID        string         `json:"order_id"`
	CustomerID     string         `json:"customer_id"`
	Status         ShipmentStatus `json:"status"`
	Courier        string         `json:"courier"`
	TrackingNumber string         `json:"tracking_number"`
	Timestamp      time.Time      `json:"timestamp"`
}
