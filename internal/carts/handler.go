package carts

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/andre-campbell/marketflow/internal/domain"
)

type Handler struct {
	repo   *CartRepository
	logger *slog.Logger
}

func NewHandler(repo *CartRepository, logger *slog.Logger) *Handler {
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	customerID := r.PathValue("customerId")
	if customerID == "" {
		h.writeError(w, http.StatusBadRequest, "missing customer id")
		return
	}

	cart, err := h.repo.Get(r.Context(), customerID)
	if err != nil {
		h.logger.Error("failed to get cart", "error", err, "customer_id", customerID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, cart)
}

type replaceCartRequest struct {
	Lines []domain.CartLine `json:"lines"`
}

func (h *Handler) HandleReplace(w http.ResponseWriter, r *http.Request) {
	customerID := r.PathValue("customerId")
	if customerID == "" {
		h.writeError(w, http.StatusBadRequest, "missing customer id")
		return
	}

	var req replaceCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cart := &domain.Cart{CustomerID: customerID, Lines: req.Lines}
	if err := cart.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.repo.Replace(r.Context(), customerID, req.Lines); err != nil {
		h.logger.Error("failed to replace cart", "error", err, "customer_id", customerID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	updated, err := h.repo.Get(r.Context(), customerID)
	if err != nil {
		h.logger.Error("failed to get updated cart", "error", err, "customer_id", customerID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("cart replaced", "customer_id", customerID, "lines", len(req.Lines))
	h.writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) HandleClear(w http.ResponseWriter, r *http.Request) {
	customerID := r.PathValue("customerId")
	if customerID == "" {
		h.writeError(w, http.StatusBadRequest, "missing customer id")
		return
	}

	if err := h.repo.Clear(r.Context(), customerID); err != nil {
		h.logger.Error("failed to clear cart", "error", err, "customer_id", customerID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("cart cleared", "customer_id", customerID)
	w.WriteHeader(http.StatusNoContent)
}

// HandleSummary returns the checkout pricing view shown before placement.
func (h *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	customerID := r.PathValue("customerId")
	if customerID == "" {
		h.writeError(w, http.StatusBadRequest, "missing customer id")
		return
	}

	cart, err := h.repo.Get(r.Context(), customerID)
	if err != nil {
		h.logger.Error("failed to get cart", "error", err, "customer_id", customerID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, domain.PriceCart(cart.Lines))
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
