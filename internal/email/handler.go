package email

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"time"
)

// Handler simulates an email provider. Sends are logged, not delivered;
// latency is randomized so traces look like a real upstream.
type Handler struct {
	logger *slog.Logger
}

func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{
		logger: logger,
	}
}

type sendRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type sendResponse struct {
	Status string `json:"status"`
}

func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.To == "" {
		h.writeError(w, http.StatusBadRequest, "recipient is required")
		return
	}

	delay := time.Duration(50+rand.Intn(151)) * time.Millisecond
	time.Sleep(delay)

	h.logger.Info("email sent", "to", req.To, "subject", req.Subject)

	h.writeJSON(w, http.StatusOK, sendResponse{Status: "sent"})
}

// Subjects and bodies for the lifecycle notifications the worker sends.
func ConfirmationMessage(orderID string, totalMinor int64) (subject, body string) {
	return fmt.Sprintf("Order %s confirmed", orderID),
		fmt.Sprintf("Thanks for your purchase. Order %s is confirmed for a total of %d.", orderID, totalMinor)
}

func CancellationMessage(orderID, reason string) (subject, body string) {
	body = fmt.Sprintf("Order %s has been cancelled.", orderID)
	if reason != "" {
		body = fmt.Sprintf("Order %s has been cancelled: %s.", orderID, reason)
	}
	return fmt.Sprintf("Order %s cancelled", orderID), body
}

func ShipmentMessage(orderID, status, courier, trackingNumber string) (subject, body string) {
	subject = fmt.Sprintf("Order %s %s", orderID, status)
	body = fmt.Sprintf("Your order %s is now %s.", orderID, status)
	if trackingNumber != "" {
		body = fmt.Sprintf("%s Track it with %s reference %s.", body, courier, trackingNumber)
	}
	return subject, body
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
