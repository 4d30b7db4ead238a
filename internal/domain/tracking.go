package domain

import "time"

type StepState string

const (
	StepStateCompleted  StepState = "completed"
	StepStateInProgress StepState = "in_progress"
	StepStatePending    StepState = "pending"
)

// TrackingStep is one row of the fixed customer-facing timeline.
type TrackingStep struct {
	Label     string     `json:"label"`
	State     StepState  `json:"state"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// TrackingView is derived display state, recomputed on every read and never
// persisted.
type TrackingView struct {
	OrderID   string         `json:"order_id"`
	Cancelled bool           `json:"cancelled"`
	Steps     []TrackingStep `json:"steps"`
}

var trackingLabels = [5]string{"Placed", "Confirmed", "Processing", "Shipped", "Delivered"}

// orderRank maps a status to the last completed timeline step, -1 meaning
// only placement happened.
var orderRank = map[OrderStatus]int{
	OrderStatusPending:    0,
	OrderStatusConfirmed:  1,
	OrderStatusProcessing: 2,
	OrderStatusShipped:    3,
	OrderStatusDelivered:  4,
}

// TrackingSteps projects an order and its optional shipment onto the fixed
// five-step timeline. The shipment, when further along than the order
// status, wins: couriers report delivery before the order record catches up.
func TrackingSteps(order *Order, shipment *Shipment) TrackingView {
	view := TrackingView{OrderID: order.ID}

	if order.Status == OrderStatusCancelled {
		view.Cancelled = true
		for i, label := range trackingLabels {
			step := TrackingStep{Label: label, State: StepStatePending}
			if i == 0 {
				step.State = StepStateCompleted
				ts := order.CreatedAt
				step.Timestamp = &ts
			}
			view.Steps = append(view.Steps, step)
		}
		return view
	}

	reached := orderRank[order.Status]
	if shipment != nil {
		switch shipment.Status {
		case ShipmentStatusShipped:
			if reached < 3 {
				reached = 3
			}
		case ShipmentStatusDelivered:
			reached = 4
		}
	}

	for i, label := range trackingLabels {
		step := TrackingStep{Label: label}
		switch {
		case i <= reached:
			step.State = StepStateCompleted
		case i == reached+1:
			step.State = StepStateInProgress
		default:
			step.State = StepStatePending
		}

		switch i {
		case 0:
			ts := order.CreatedAt
			step.Timestamp = &ts
		case 3:
			if shipment != nil && shipment.ShippedAt != nil {
				step.Timestamp = shipment.ShippedAt
			} else if i == reached {
				ts := order.UpdatedAt
				step.Timestamp = &ts
			}
		case 4:
			// Orders can be marked delivered without a courier record; the
			// order's last update then stands in for the delivery scan so a
			// completed terminal step never shows without a time.
			switch {
			case shipment != nil && shipment.DeliveredAt != nil:
				step.Timestamp = shipment.DeliveredAt
			case step.State == StepStateCompleted:
				ts := order.UpdatedAt
				step.Timestamp = &ts
			case shipment != nil:
				step.Timestamp = shipment.EstimatedDelivery
			}
		default:
			if i == reached {
				ts := order.UpdatedAt
				step.Timestamp = &ts
			}
		}

		view.Steps = append(view.Steps, step)
	}

	return view
}
