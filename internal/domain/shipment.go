package domain

import "time"

type ShipmentStatus string

const (
	ShipmentStatusPending   ShipmentStatus = "pending"
	ShipmentStatusShipped   ShipmentStatus = "shipped"
	ShipmentStatusDelivered ShipmentStatus = "delivered"
)

// Shipment status only moves forward; delivered is terminal.
var shipmentTransitions = map[ShipmentStatus][]ShipmentStatus{
	ShipmentStatusPending:   {ShipmentStatusShipped},
	ShipmentStatusShipped:   {ShipmentStatusDelivered},
	ShipmentStatusDelivered: {},
}

func (s ShipmentStatus) Valid() bool {
	_, ok := shipmentTransitions[s]
	return ok
}

func (s ShipmentStatus) CanTransition(target ShipmentStatus) bool {
	for _, next := range shipmentTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// Shipment is the one-to-one shipping record for an order. It is created by
// vendor or admin action, independent of payment confirmation timing.
type Shipment struct {
	ID                string         `json:"id"`
	OrderID           string         `json:"order_id"`
	CustomerID        string         `json:"customer_id"`
	Courier           string         `json:"courier"`
	TrackingNumber    string         `json:"tracking_number"`
	Status            ShipmentStatus `json:"status"`
	EstimatedDelivery *time.Time     `json:"estimated_delivery,omitempty"`
	ShippedAt         *time.Time     `json:"shipped_at,omitempty"`
	DeliveredAt       *time.Time     `json:"delivered_at,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// Transition validates a status change against the forward-only table.
func (s *Shipment) Transition(target ShipmentStatus) error {
	if s.Status == ShipmentStatusDelivered {
		return ErrShipmentDelivered
	}
	if !s.Status.CanTransition(target) {
		return NewTransitionError(string(s.Status), string(target))
	}
	return nil
}

// Editable reports whether courier and tracking details may still change.
// Once a parcel is shipped the tracking identity is frozen.
func (s *Shipment) Editable() bool {
	return s.Status == ShipmentStatusPending
}
