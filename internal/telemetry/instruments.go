package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// OrderMetrics counts lifecycle outcomes; one instance per orders service.
type OrderMetrics struct {
	placed    metric.Int64Counter
	confirmed metric.Int64Counter
	cancelled metric.Int64Counter
}

func NewOrderMetrics() (*OrderMetrics, error) {
	meter := otel.Meter("marketflow/orders")

	placed, err := meter.Int64Counter("orders_placed_total",
		metric.WithDescription("Orders created at checkout"))
	if err != nil {
		return nil, err
	}

	confirmed, err := meter.Int64Counter("orders_confirmed_total",
		metric.WithDescription("Orders confirmed after payment capture"))
	if err != nil {
		return nil, err
	}

	cancelled, err := meter.Int64Counter("orders_cancelled_total",
		metric.WithDescription("Orders cancelled before fulfilment"))
	if err != nil {
		return nil, err
	}

	return &OrderMetrics{placed: placed, confirmed: confirmed, cancelled: cancelled}, nil
}

func (m *OrderMetrics) OrderPlaced(ctx context.Context) {
	if m == nil {
		return
	}
	m.placed.Add(ctx, 1)
}

func (m *OrderMetrics) OrderConfirmed(ctx context.Context) {
	if m == nil {
		return
	}
	m.confirmed.Add(ctx, 1)
}

func (m *OrderMetrics) OrderCancelled(ctx context.Context) {
	if m == nil {
		return
	}
	m.cancelled.Add(ctx, 1)
}
