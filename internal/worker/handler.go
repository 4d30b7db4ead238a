package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/andre-campbell/marketflow/internal/domain"
	"github.com/andre-campbell/marketflow/internal/email"
)

// errStatusConflict marks order updates the orders service rejects for good:
// the order is gone or its status can never absorb the requested change.
// Retrying the message cannot succeed, so handlers skip it and let the
// offset commit instead of wedging the consumer group.
var errStatusConflict = errors.New("order status conflict")

// LifecycleHandler reacts to order and shipment events: it reserves stock
// for new orders, keeps the order record in step with shipment progress, and
// sends the customer-facing emails. Emails are best-effort; reservation and
// status sync failures surface so the message is retried.
type LifecycleHandler struct {
	emailServiceURL     string
	ordersServiceURL    string
	inventoryServiceURL string
	httpClient          *http.Client
	logger              *slog.Logger
}

func NewLifecycleHandler(emailServiceURL, ordersServiceURL, inventoryServiceURL string, client *http.Client, logger *slog.Logger) *LifecycleHandler {
	return &LifecycleHandler{
		emailServiceURL:     emailServiceURL,
		ordersServiceURL:    ordersServiceURL,
		inventoryServiceURL: inventoryServiceURL,
		httpClient:          client,
		logger:              logger,
	}
}

func (h *LifecycleHandler) Handle(ctx context.Context, topic string, payload []byte) error {
	switch topic {
	case domain.TopicOrderPlaced:
		return h.handleOrderPlaced(ctx, payload)
	case domain.TopicOrderConfirmed:
		return h.handleOrderConfirmed(ctx, payload)
	case domain.TopicOrderCancelled:
		return h.handleOrderCancelled(ctx, payload)
	case domain.TopicShipmentUpdated:
		return h.handleShipmentUpdated(ctx, payload)
	default:
		h.logger.Warn("ignoring event on unexpected topic", "topic", topic)
		return nil
	}
}

// handleOrderPlaced reserves stock for every line of a new order. A failed
// line releases whatever was already reserved and cancels the order; the
// cancellation event then drives the customer email. Releases are keyed by
// order on the inventory side, so the cancellation side effect releasing the
// same lines again is a no-op rather than a double credit.
func (h *LifecycleHandler) handleOrderPlaced(ctx context.Context, payload []byte) error {
	var event domain.OrderPlacedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order placed event: %w", err)
	}

	h.logger.Info("processing order placed event", "order_id", event.OrderID, "customer_id", event.CustomerID)

	reserved, err := h.reserveStock(ctx, event.OrderID, event.Items)
	if err != nil {
		h.logger.Error("failed to reserve stock", "error", err, "order_id", event.OrderID)

		h.releaseStock(ctx, event.OrderID, reserved)

		if err := h.updateOrderStatus(ctx, event.OrderID, domain.OrderStatusCancelled, "insufficient stock"); err != nil {
			if errors.Is(err, errStatusConflict) {
				h.logger.Warn("order already settled, skipping cancellation", "error", err, "order_id", event.OrderID)
				return nil
			}
			return fmt.Errorf("cancel order after stock failure: %w", err)
		}

		h.logger.Info("order cancelled due to insufficient stock", "order_id", event.OrderID)
		return nil
	}

	h.logger.Info("stock reserved", "order_id", event.OrderID, "lines", len(reserved))
	return nil
}

func (h *LifecycleHandler) handleOrderConfirmed(ctx context.Context, payload []byte) error {
	var event domain.OrderConfirmedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order confirmed event: %w", err)
	}

	subject, body := email.ConfirmationMessage(event.OrderID, event.TotalMinor)
	if err := h.sendEmail(ctx, event.CustomerID, subject, body); err != nil {
		h.logger.Error("failed to send confirmation email", "error", err, "order_id", event.OrderID)
	}
	return nil
}

func (h *LifecycleHandler) handleOrderCancelled(ctx context.Context, payload []byte) error {
	var event domain.OrderCancelledEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order cancelled event: %w", err)
	}

	subject, body := email.CancellationMessage(event.OrderID, event.Reason)
	if err := h.sendEmail(ctx, event.CustomerID, subject, body); err != nil {
		h.logger.Error("failed to send cancellation email", "error", err, "order_id", event.OrderID)
	}
	return nil
}

// handleShipmentUpdated advances the order record to match the courier's
// report, stepping through intermediate statuses as the transition table
// requires, then notifies the customer. An order that can never absorb the
// report, a cancelled one for instance, is logged and skipped so the event
// does not pin the consumer group; transient failures still surface for
// redelivery.
func (h *LifecycleHandler) handleShipmentUpdated(ctx context.Context, payload []byte) error {
	var event domain.ShipmentStatusChangedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal shipment event: %w", err)
	}

	target, ok := orderStatusForShipment(event.Status)
	if !ok {
		return nil
	}

	if err := h.advanceOrder(ctx, event.OrderID, target); err != nil {
		if errors.Is(err, errStatusConflict) {
			h.logger.Warn("order cannot follow shipment, skipping event", "error", err, "order_id", event.OrderID, "target", target)
			return nil
		}
		h.logger.Error("failed to sync order with shipment", "error", err, "order_id", event.OrderID, "target", target)
		return fmt.Errorf("advance order %s to %s: %w", event.OrderID, target, err)
	}

	subject, body := email.ShipmentMessage(event.OrderID, string(event.Status), event.Courier, event.TrackingNumber)
	if err := h.sendEmail(ctx, event.CustomerID, subject, body); err != nil {
		h.logger.Error("failed to send shipment email", "error", err, "order_id", event.OrderID)
	}
	return nil
}

func orderStatusForShipment(status domain.ShipmentStatus) (domain.OrderStatus, bool) {
	switch status {
	case domain.ShipmentStatusShipped:
		return domain.OrderStatusShipped, true
	case domain.ShipmentStatusDelivered:
		return domain.OrderStatusDelivered, true
	default:
		return "", false
	}
}

// fulfilmentPath is the forward order of statuses the shipment sync walks.
var fulfilmentPath = []domain.OrderStatus{
	domain.OrderStatusConfirmed,
	domain.OrderStatusProcessing,
	domain.OrderStatusShipped,
	domain.OrderStatusDelivered,
}

func (h *LifecycleHandler) advanceOrder(ctx context.Context, orderID string, target domain.OrderStatus) error {
	current, err := h.getOrderStatus(ctx, orderID)
	if err != nil {
		return err
	}

	if current == target {
		return nil
	}

	started := false
	for _, step := range fulfilmentPath {
		if step == current {
			started = true
			continue
		}
		if !started {
			continue
		}
		if err := h.updateOrderStatus(ctx, orderID, step, ""); err != nil {
			return err
		}
		if step == target {
			return nil
		}
	}

	if !started {
		return fmt.Errorf("order %s in status %s cannot reach %s: %w", orderID, current, target, errStatusConflict)
	}
	return nil
}

func (h *LifecycleHandler) getOrderStatus(ctx context.Context, orderID string) (domain.OrderStatus, error) {
	url := fmt.Sprintf("%s/orders/%s", h.ordersServiceURL, orderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("order %s not found: %w", orderID, errStatusConflict)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("orders service returned status %d", resp.StatusCode)
	}

	var order struct {
		Status domain.OrderStatus `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return "", fmt.Errorf("decode order: %w", err)
	}
	return order.Status, nil
}

func (h *LifecycleHandler) reserveStock(ctx context.Context, orderID string, items []domain.OrderItem) ([]string, error) {
	var reserved []string

	for _, item := range items {
		body := map[string]any{"order_id": orderID, "quantity": item.Quantity}
		data, err := json.Marshal(body)
		if err != nil {
			return reserved, fmt.Errorf("marshal reserve request: %w", err)
		}

		url := fmt.Sprintf("%s/stock/%s/reserve", h.inventoryServiceURL, item.SKU)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return reserved, fmt.Errorf("create reserve request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := h.httpClient.Do(req)
		if err != nil {
			return reserved, fmt.Errorf("reserve stock for %s: %w", item.SKU, err)
		}
		_ = resp.Body.Close()

		if resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusNotFound {
			return reserved, fmt.Errorf("insufficient stock for %s", item.SKU)
		}

		if resp.StatusCode != http.StatusOK {
			return reserved, fmt.Errorf("inventory service returned status %d for %s", resp.StatusCode, item.SKU)
		}

		reserved = append(reserved, item.SKU)
	}

	return reserved, nil
}

func (h *LifecycleHandler) releaseStock(ctx context.Context, orderID string, skus []string) {
	for _, sku := range skus {
		data, err := json.Marshal(map[string]string{"order_id": orderID})
		if err != nil {
			h.logger.Error("failed to marshal release request", "error", err, "sku", sku)
			continue
		}

		url := fmt.Sprintf("%s/stock/%s/release", h.inventoryServiceURL, sku)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			h.logger.Error("failed to create release request", "error", err, "sku", sku)
			continue
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := h.httpClient.Do(req)
		if err != nil {
			h.logger.Error("failed to release stock", "error", err, "sku", sku)
			continue
		}
		_ = resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			h.logger.Error("failed to release stock", "status", resp.StatusCode, "sku", sku)
		}
	}
}

func (h *LifecycleHandler) sendEmail(ctx context.Context, customerID, subject, body string) error {
	payload := map[string]string{
		"to":      customerID + "@example.com",
		"subject": subject,
		"body":    body,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.emailServiceURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}

	return nil
}

func (h *LifecycleHandler) updateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus, reason string) error {
	body := map[string]string{"status": string(status)}
	if reason != "" {
		body["reason"] = reason
	}

	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/orders/%s/status", h.ordersServiceURL, orderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("orders service rejected %s for order %s: %w", status, orderID, errStatusConflict)
	default:
		return fmt.Errorf("orders service returned status %d", resp.StatusCode)
	}
}
