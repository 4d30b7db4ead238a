package shipping

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/andre-campbell/marketflow/internal/domain"
)

// EventPublisher is the slice of the Kafka producer the handler needs.
type EventPublisher interface {
	Publish(ctx context.Context, topic, key string, event any) error
}

type Handler struct {
	repo      *ShipmentRepository
	publisher EventPublisher
	logger    *slog.Logger
}

func NewHandler(repo *ShipmentRepository, publisher EventPublisher, logger *slog.Logger) *Handler {
	return &Handler{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
	}
}

type createShipmentRequest struct {
	OrderID           string     `json:"order_id"`
	CustomerID        string     `json:"customer_id"`
	Courier           string     `json:"courier"`
	TrackingNumber    string     `json:"tracking_number"`
	EstimatedDelivery *time.Time `json:"estimated_delivery,omitempty"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createShipmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.OrderID == "" || req.Courier == "" {
		h.writeError(w, http.StatusBadRequest, "order_id and courier are required")
		return
	}

	shipment := &domain.Shipment{
		OrderID:           req.OrderID,
		CustomerID:        req.CustomerID,
		Courier:           req.Courier,
		TrackingNumber:    req.TrackingNumber,
		EstimatedDelivery: req.EstimatedDelivery,
	}

	if err := h.repo.Create(r.Context(), shipment); err != nil {
		if errors.Is(err, domain.ErrShipmentExists) {
			h.writeError(w, http.StatusConflict, "order already has a shipment")
			return
		}
		h.logger.Error("failed to create shipment", "error", err, "order_id", req.OrderID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("shipment created", "shipment_id", shipment.ID, "order_id", shipment.OrderID)
	h.writeJSON(w, http.StatusCreated, shipment)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing shipment id")
		return
	}

	shipment, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get shipment", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if shipment == nil {
		h.writeError(w, http.StatusNotFound, "shipment not found")
		return
	}

	h.writeJSON(w, http.StatusOK, shipment)
}

func (h *Handler) HandleGetByOrder(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("orderId")
	if orderID == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	shipment, err := h.repo.GetByOrderID(r.Context(), orderID)
	if err != nil {
		h.logger.Error("failed to get shipment", "error", err, "order_id", orderID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if shipment == nil {
		h.writeError(w, http.StatusNotFound, "shipment not found")
		return
	}

	h.writeJSON(w, http.StatusOK, shipment)
}

type updateShipmentStatusRequest struct {
	Status domain.ShipmentStatus `json:"status"`
}

func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing shipment id")
		return
	}

	var req updateShipmentStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !req.Status.Valid() {
		h.writeError(w, http.StatusBadRequest, "unknown shipment status")
		return
	}

	shipment, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get shipment", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if shipment == nil {
		h.writeError(w, http.StatusNotFound, "shipment not found")
		return
	}

	if err := shipment.Transition(req.Status); err != nil {
		if errors.Is(err, domain.ErrShipmentDelivered) {
			h.writeError(w, http.StatusConflict, "shipment already delivered")
			return
		}
		h.writeError(w, http.StatusConflict, err.Error())
		return
	}

	updated, err := h.repo.UpdateStatus(r.Context(), id, shipment.Status, req.Status)
	if err != nil {
		if domain.IsTransitionError(err) {
			// Lost a race with another update between the read and the write.
			h.writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Error("failed to update shipment status", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.publishStatusChange(r.Context(), updated)

	h.logger.Info("shipment status updated", "shipment_id", updated.ID, "status", updated.Status)
	h.writeJSON(w, http.StatusOK, updated)
}

type updateShipmentRequest struct {
	Courier           string     `json:"courier"`
	TrackingNumber    string     `json:"tracking_number"`
	EstimatedDelivery *time.Time `json:"estimated_delivery,omitempty"`
}

func (h *Handler) HandleUpdateDetails(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing shipment id")
		return
	}

	var req updateShipmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Courier == "" {
		h.writeError(w, http.StatusBadRequest, "courier is required")
		return
	}

	shipment, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get shipment", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if shipment == nil {
		h.writeError(w, http.StatusNotFound, "shipment not found")
		return
	}

	if !shipment.Editable() {
		h.writeError(w, http.StatusConflict, "tracking details cannot change after dispatch")
		return
	}

	updated, err := h.repo.UpdateDetails(r.Context(), id, req.Courier, req.TrackingNumber, req.EstimatedDelivery)
	if err != nil {
		if errors.Is(err, domain.ErrShipmentLocked) {
			h.writeError(w, http.StatusConflict, "tracking details cannot change after dispatch")
			return
		}
		h.logger.Error("failed to update shipment details", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("shipment details updated", "shipment_id", updated.ID)
	h.writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) publishStatusChange(ctx context.Context, shipment *domain.Shipment) {
	if h.publisher == nil {
		return
	}

	event := domain.ShipmentStatusChangedEvent{
		ShipmentID:     shipment.ID,
		OrderID:        shipment.OrderID,
		CustomerID:     shipment.CustomerID,
		Status:         shipment.Status,
		Courier:        shipment.Courier,
		TrackingNumber: shipment.TrackingNumber,
		Timestamp:      shipment.UpdatedAt,
	}
	if err := h.publisher.Publish(ctx, domain.TopicShipmentUpdated, shipment.OrderID, event); err != nil {
		h.logger.Error("failed to publish shipment event", "error", err, "shipment_id", shipment.ID)
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
