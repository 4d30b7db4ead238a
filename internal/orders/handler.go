package orders

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/andre-campbell/marketflow/internal/domain"
	"github.com/andre-campbell/marketflow/internal/telemetry"
)

// The handler depends on narrow interfaces so the checkout and capture flows
// can be exercised against fakes; the concrete types live in this package
// and in internal/carts.
type OrderStore interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	List(ctx context.Context, customerID string) ([]domain.Order, error)
	UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus) (*domain.Order, error)
	ConfirmPayment(ctx context.Context, payment *domain.Payment) error
	RevertConfirmation(ctx context.Context, orderID string) error
	GetPayment(ctx context.Context, orderID string) (*domain.Payment, error)
}

type CartStore interface {
	Get(ctx context.Context, customerID string) (*domain.Cart, error)
	Clear(ctx context.Context, customerID string) error
}

type StockGateway interface {
	Available(ctx context.Context, sku string, quantity int) error
	Commit(ctx context.Context, orderID string, lines []domain.StockCommitLine) error
	Release(ctx context.Context, orderID, sku string) error
}

type ShipmentGateway interface {
	GetByOrder(ctx context.Context, orderID string) (*domain.Shipment, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, topic, key string, event any) error
}

type Handler struct {
	repo      OrderStore
	carts     CartStore
	stock     StockGateway
	shipments ShipmentGateway
	publisher EventPublisher
	metrics   *telemetry.OrderMetrics
	logger    *slog.Logger
}

func NewHandler(repo OrderStore, carts CartStore, stock StockGateway, shipments ShipmentGateway,
	publisher EventPublisher, metrics *telemetry.OrderMetrics, logger *slog.Logger) *Handler {
	return &Handler{
		repo:      repo,
		carts:     carts,
		stock:     stock,
		shipments: shipments,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
	}
}

type checkoutRequest struct {
	CustomerID string         `json:"customer_id"`
	Address    domain.Address `json:"address"`
}

// HandleCheckout turns the customer's cart into a pending order. Totals are
// snapshotted here and never recomputed; the order header and all lines
// persist in one transaction.
func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.CustomerID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrCustomerRequired.Error())
		return
	}
	if err := req.Address.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cart, err := h.carts.Get(r.Context(), req.CustomerID)
	if err != nil {
		h.logger.Error("failed to load cart", "error", err, "customer_id", req.CustomerID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if cart == nil || len(cart.Lines) == 0 {
		h.writeError(w, http.StatusBadRequest, domain.ErrEmptyCart.Error())
		return
	}

	for _, line := range cart.Lines {
		if err := h.stock.Available(r.Context(), line.SKU, line.Quantity); err != nil {
			if errors.Is(err, domain.ErrInsufficientStock) {
				h.writeError(w, http.StatusConflict, err.Error())
				return
			}
			h.logger.Error("stock check failed", "error", err, "sku", line.SKU)
			h.writeError(w, http.StatusBadGateway, "inventory unavailable")
			return
		}
	}

	order := buildOrder(req.CustomerID, req.Address, cart)
	if err := order.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.repo.Create(r.Context(), order); err != nil {
		h.logger.Error("failed to create order", "error", err, "customer_id", req.CustomerID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.publish(r.Context(), domain.TopicOrderPlaced, order.ID, domain.OrderPlacedEvent{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		Items:      order.Items,
		TotalMinor: order.TotalMinor,
		Timestamp:  order.CreatedAt,
	})
	h.metrics.OrderPlaced(r.Context())

	created, err := h.repo.GetByID(r.Context(), order.ID)
	if err != nil || created == nil {
		h.logger.Error("failed to reload order", "error", err, "order_id", order.ID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("order placed", "order_id", created.ID, "customer_id", created.CustomerID, "total_minor", created.TotalMinor)
	h.writeJSON(w, http.StatusCreated, created)
}

// buildOrder snapshots cart pricing into an immutable order. The vendor is
// taken from the first cart line; checkout produces one order per vendor and
// this marketplace ships carts as a single vendor's order.
func buildOrder(customerID string, address domain.Address, cart *domain.Cart) *domain.Order {
	pricing := domain.PriceCart(cart.Lines)

	items := make([]domain.OrderItem, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		items = append(items, domain.OrderItem{
			SKU:            line.SKU,
			Name:           line.Name,
			Quantity:       line.Quantity,
			UnitPriceMinor: line.UnitPriceMinor,
			ListPriceMinor: line.ListPriceMinor,
			LineTotalMinor: int64(line.Quantity) * line.UnitPriceMinor,
		})
	}

	currency := cart.Currency
	if currency == "" {
		currency = "USD"
	}

	return &domain.Order{
		CustomerID:    customerID,
		VendorID:      cart.Lines[0].VendorID,
		Status:        domain.OrderStatusPending,
		Currency:      currency,
		SubtotalMinor: pricing.SubtotalMinor,
		DiscountMinor: pricing.DiscountMinor,
		TotalMinor:    pricing.TotalMinor,
		Address:       address,
		Items:         items,
		CreatedAt:     time.Now().UTC(),
	}
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get order", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if order == nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	orders, err := h.repo.List(r.Context(), r.URL.Query().Get("customer_id"))
	if err != nil {
		h.logger.Error("failed to list orders", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, orders)
}

type capturePaymentRequest struct {
	TransactionID string `json:"transaction_id"`
	AmountMinor   int64  `json:"amount_minor"`
}

// HandleCapturePayment confirms a pending order after the gateway reports a
// successful capture. The pending->confirmed flip and the payment row commit
// together and double as the duplicate-capture guard; the inventory
// decrement is a single all-or-nothing commit, compensated by reverting the
// flip when it fails.
func (h *Handler) HandleCapturePayment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	var req capturePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TransactionID == "" {
		h.writeError(w, http.StatusBadRequest, "transaction_id is required")
		return
	}

	order, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get order", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if order == nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	if req.AmountMinor != order.TotalMinor {
		h.writeError(w, http.StatusBadRequest, domain.ErrAmountMismatch.Error())
		return
	}

	payment := &domain.Payment{
		OrderID:       order.ID,
		TransactionID: req.TransactionID,
		AmountMinor:   req.AmountMinor,
		Currency:      order.Currency,
		Status:        domain.PaymentStatusCaptured,
		CapturedAt:    time.Now().UTC(),
	}

	if err := h.repo.ConfirmPayment(r.Context(), payment); err != nil {
		if errors.Is(err, domain.ErrOrderNotPending) {
			h.writeError(w, http.StatusConflict, "order is not pending")
			return
		}
		h.logger.Error("failed to confirm payment", "error", err, "order_id", order.ID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	lines := make([]domain.StockCommitLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, domain.StockCommitLine{SKU: item.SKU, Quantity: item.Quantity})
	}

	if err := h.stock.Commit(r.Context(), order.ID, lines); err != nil {
		h.logger.Error("stock commit failed, reverting confirmation", "error", err, "order_id", order.ID)
		if revertErr := h.repo.RevertConfirmation(r.Context(), order.ID); revertErr != nil {
			h.logger.Error("failed to revert confirmation", "error", revertErr, "order_id", order.ID)
		}
		if errors.Is(err, domain.ErrInsufficientStock) {
			h.writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.writeError(w, http.StatusBadGateway, "inventory unavailable")
		return
	}

	// Cart clearing is best-effort: the order is confirmed either way.
	if err := h.carts.Clear(r.Context(), order.CustomerID); err != nil {
		h.logger.Error("failed to clear cart", "error", err, "customer_id", order.CustomerID)
	}

	h.publish(r.Context(), domain.TopicOrderConfirmed, order.ID, domain.OrderConfirmedEvent{
		OrderID:       order.ID,
		CustomerID:    order.CustomerID,
		TransactionID: payment.TransactionID,
		TotalMinor:    order.TotalMinor,
		Timestamp:     payment.CapturedAt,
	})
	h.metrics.OrderConfirmed(r.Context())

	confirmed, err := h.repo.GetByID(r.Context(), order.ID)
	if err != nil || confirmed == nil {
		h.logger.Error("failed to reload order", "error", err, "order_id", order.ID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("payment captured", "order_id", confirmed.ID, "transaction_id", payment.TransactionID)
	h.writeJSON(w, http.StatusOK, confirmed)
}

type updateStatusRequest struct {
	Status domain.OrderStatus `json:"status"`
	Reason string             `json:"reason,omitempty"`
}

// HandleUpdateStatus applies the transition table. Cancellation releases the
// reserved stock and notifies the customer via the worker.
func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !req.Status.Valid() {
		h.writeError(w, http.StatusBadRequest, "unknown order status")
		return
	}

	order, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get order", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if order == nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	if !order.Status.CanTransition(req.Status) {
		h.writeError(w, http.StatusConflict, domain.NewTransitionError(string(order.Status), string(req.Status)).Error())
		return
	}

	updated, err := h.repo.UpdateStatus(r.Context(), id, order.Status, req.Status)
	if err != nil {
		if domain.IsTransitionError(err) {
			h.writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Error("failed to update order status", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if updated.Status == domain.OrderStatusCancelled {
		h.releaseStock(r.Context(), updated)
		h.publish(r.Context(), domain.TopicOrderCancelled, updated.ID, domain.OrderCancelledEvent{
			OrderID:    updated.ID,
			CustomerID: updated.CustomerID,
			Reason:     req.Reason,
			Timestamp:  updated.UpdatedAt,
		})
		h.metrics.OrderCancelled(r.Context())
	}

	h.logger.Info("order status updated", "order_id", updated.ID, "status", updated.Status)
	h.writeJSON(w, http.StatusOK, updated)
}

// releaseStock compensates reservations on cancellation. The release is
// keyed by order on the inventory side, so lines this order never reserved,
// or that the worker already returned, are no-ops rather than deductions
// from some other order's hold.
func (h *Handler) releaseStock(ctx context.Context, order *domain.Order) {
	for _, item := range order.Items {
		if err := h.stock.Release(ctx, order.ID, item.SKU); err != nil {
			h.logger.Error("failed to release stock", "error", err, "order_id", order.ID, "sku", item.SKU)
		}
	}
}

// HandleTracking projects the order and its shipment onto the fixed
// five-step timeline. The shipment lookup is best-effort: tracking is a
// display view and an unreachable shipping service should not 500 it.
func (h *Handler) HandleTracking(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get order", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if order == nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	var shipment *domain.Shipment
	if h.shipments != nil {
		shipment, err = h.shipments.GetByOrder(r.Context(), order.ID)
		if err != nil {
			h.logger.Error("failed to get shipment", "error", err, "order_id", order.ID)
			shipment = nil
		}
	}

	h.writeJSON(w, http.StatusOK, domain.TrackingSteps(order, shipment))
}

func (h *Handler) HandleGetPayment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	payment, err := h.repo.GetPayment(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get payment", "error", err, "order_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if payment == nil {
		h.writeError(w, http.StatusNotFound, "payment not found")
		return
	}

	h.writeJSON(w, http.StatusOK, payment)
}

func (h *Handler) publish(ctx context.Context, topic, key string, event any) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.Publish(ctx, topic, key, event); err != nil {
		h.logger.Error("failed to publish event", "error", err, "topic", topic, "key", key)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
