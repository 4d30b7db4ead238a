package inventory

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/andre-campbell/marketflow/internal/domain"
)

type Handler struct {
	repo   *StockRepository
	logger *slog.Logger
}

func NewHandler(repo *StockRepository, logger *slog.Logger) *Handler {
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

func (h *Handler) HandleListStock(w http.ResponseWriter, r *http.Request) {
	levels, err := h.repo.ListAll(r.Context())
	if err != nil {
		h.logger.Error("failed to list stock", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, levels)
}

func (h *Handler) HandleGetStock(w http.ResponseWriter, r *http.Request) {
	sku := r.PathValue("sku")
	if sku == "" {
		h.writeError(w, http.StatusBadRequest, "missing sku")
		return
	}

	level, err := h.repo.GetStock(r.Context(), sku)
	if err != nil {
		h.logger.Error("failed to get stock", "error", err, "sku", sku)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if level == nil {
		h.writeError(w, http.StatusNotFound, "sku not found")
		return
	}

	h.writeJSON(w, http.StatusOK, level)
}

type reserveRequest struct {
	OrderID  string `json:"order_id"`
	Quantity int    `json:"quantity"`
}

func (h *Handler) HandleReserve(w http.ResponseWriter, r *http.Request) {
	sku := r.PathValue("sku")
	if sku == "" {
		h.writeError(w, http.StatusBadRequest, "missing sku")
		return
	}

	var req reserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OrderID == "" {
		h.writeError(w, http.StatusBadRequest, "order_id is required")
		return
	}

	level, err := h.repo.GetStock(r.Context(), sku)
	if err != nil {
		h.logger.Error("failed to get stock", "error", err, "sku", sku)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if level == nil {
		h.writeError(w, http.StatusNotFound, "sku not found")
		return
	}

	if err := h.repo.Reserve(r.Context(), req.OrderID, sku, req.Quantity); err != nil {
		switch {
		case errors.Is(err, domain.ErrInsufficientStock):
			h.writeError(w, http.StatusConflict, "insufficient stock")
		case errors.Is(err, domain.ErrItemQuantityInvalid):
			h.writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("failed to reserve stock", "error", err, "sku", sku, "order_id", req.OrderID, "quantity", req.Quantity)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h.logger.Info("stock reserved", "sku", sku, "order_id", req.OrderID, "quantity", req.Quantity)
	h.respondWithLevel(w, r, sku)
}

type releaseRequest struct {
	OrderID string `json:"order_id"`
}

// HandleRelease returns an order's hold on a sku. An order with no live
// reservation gets the current level back unchanged, so duplicate release
// calls cannot inflate availability.
func (h *Handler) HandleRelease(w http.ResponseWriter, r *http.Request) {
	sku := r.PathValue("sku")
	if sku == "" {
		h.writeError(w, http.StatusBadRequest, "missing sku")
		return
	}

	var req releaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OrderID == "" {
		h.writeError(w, http.StatusBadRequest, "order_id is required")
		return
	}

	level, err := h.repo.GetStock(r.Context(), sku)
	if err != nil {
		h.logger.Error("failed to get stock", "error", err, "sku", sku)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if level == nil {
		h.writeError(w, http.StatusNotFound, "sku not found")
		return
	}

	if err := h.repo.Release(r.Context(), req.OrderID, sku); err != nil {
		h.logger.Error("failed to release stock", "error", err, "sku", sku, "order_id", req.OrderID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("stock released", "sku", sku, "order_id", req.OrderID)
	h.respondWithLevel(w, r, sku)
}

type commitRequest struct {
	OrderID string                   `json:"order_id"`
	Lines   []domain.StockCommitLine `json:"lines"`
}

// HandleCommit spends the order's reservations for all lines at once.
// All-or-nothing: the repository wraps the lines in one transaction.
func (h *Handler) HandleCommit(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.OrderID == "" {
		h.writeError(w, http.StatusBadRequest, "order_id is required")
		return
	}
	if len(req.Lines) == 0 {
		h.writeError(w, http.StatusBadRequest, "no lines to commit")
		return
	}

	if err := h.repo.CommitLines(r.Context(), req.OrderID, req.Lines); err != nil {
		switch {
		case errors.Is(err, domain.ErrInsufficientStock):
			h.writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, domain.ErrItemQuantityInvalid):
			h.writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("failed to commit stock", "error", err, "order_id", req.OrderID)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h.logger.Info("stock committed", "order_id", req.OrderID, "lines", len(req.Lines))
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "committed"})
}

func (h *Handler) respondWithLevel(w http.ResponseWriter, r *http.Request, sku string) {
	level, err := h.repo.GetStock(r.Context(), sku)
	if err != nil {
		h.logger.Error("failed to get updated stock", "error", err, "sku", sku)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, level)
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
