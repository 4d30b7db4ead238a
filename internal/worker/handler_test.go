package worker

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andre-campbell/marketflow/internal/domain"
)

type capturedEmail struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type emailCapture struct {
	sent []capturedEmail
}

func (c *emailCapture) server() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var email capturedEmail
		_ = json.NewDecoder(r.Body).Decode(&email)
		c.sent = append(c.sent, email)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"sent"}`))
	}))
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandleOrderPlaced(t *testing.T) {
	event := domain.OrderPlacedEvent{
		OrderID:    "order-1",
		CustomerID: "cust-1",
		Items: []domain.OrderItem{
			{SKU: "sku-1", Quantity: 2},
			{SKU: "sku-2", Quantity: 1},
		},
		TotalMinor: 20000,
		Timestamp:  time.Now().UTC(),
	}

	t.Run("reserves every line for the order", func(t *testing.T) {
		var reserves []string
		var orderIDs []string
		inventory := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			reserves = append(reserves, r.URL.Path)
			orderID, _ := body["order_id"].(string)
			orderIDs = append(orderIDs, orderID)
			w.WriteHeader(http.StatusOK)
		}))
		defer inventory.Close()

		handler := NewLifecycleHandler("http://unused", "http://unused", inventory.URL, inventory.Client(), testLogger())

		if err := handler.Handle(context.Background(), domain.TopicOrderPlaced, mustJSON(t, event)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(reserves) != 2 {
			t.Fatalf("expected 2 reserve calls, got %d: %v", len(reserves), reserves)
		}
		if reserves[0] != "/stock/sku-1/reserve" || reserves[1] != "/stock/sku-2/reserve" {
			t.Errorf("unexpected reserve paths: %v", reserves)
		}
		for i, orderID := range orderIDs {
			if orderID != "order-1" {
				t.Errorf("reserve %d: expected order-1, got %q", i, orderID)
			}
		}
	})

	t.Run("releases reserved lines and cancels on shortage", func(t *testing.T) {
		var released []string
		var releaseOrders []string
		inventory := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch {
			case strings.HasSuffix(r.URL.Path, "/release"):
				var body map[string]string
				_ = json.NewDecoder(r.Body).Decode(&body)
				released = append(released, r.URL.Path)
				releaseOrders = append(releaseOrders, body["order_id"])
				w.WriteHeader(http.StatusOK)
			case strings.Contains(r.URL.Path, "sku-2"):
				w.WriteHeader(http.StatusConflict)
			default:
				w.WriteHeader(http.StatusOK)
			}
		}))
		defer inventory.Close()

		var cancelled bool
		orders := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPatch && r.URL.Path == "/orders/order-1/status" {
				var body map[string]string
				_ = json.NewDecoder(r.Body).Decode(&body)
				if body["status"] == string(domain.OrderStatusCancelled) {
					cancelled = true
				}
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer orders.Close()

		handler := NewLifecycleHandler("http://unused", orders.URL, inventory.URL, inventory.Client(), testLogger())

		if err := handler.Handle(context.Background(), domain.TopicOrderPlaced, mustJSON(t, event)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(released) != 1 || released[0] != "/stock/sku-1/release" {
			t.Errorf("expected sku-1 to be released, got %v", released)
		}
		if len(releaseOrders) != 1 || releaseOrders[0] != "order-1" {
			t.Errorf("expected the release to carry order-1, got %v", releaseOrders)
		}
		if !cancelled {
			t.Error("expected the order to be cancelled")
		}
	})

	t.Run("does not retry when the cancellation is rejected", func(t *testing.T) {
		inventory := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
		}))
		defer inventory.Close()

		// The order was already settled by someone else; 409 on the cancel
		// must not wedge the consumer on this message.
		orders := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
		}))
		defer orders.Close()

		handler := NewLifecycleHandler("http://unused", orders.URL, inventory.URL, inventory.Client(), testLogger())

		if err := handler.Handle(context.Background(), domain.TopicOrderPlaced, mustJSON(t, event)); err != nil {
			t.Fatalf("expected the event to be skipped, got %v", err)
		}
	})
}

func TestHandleOrderConfirmed(t *testing.T) {
	t.Run("emails the customer", func(t *testing.T) {
		capture := &emailCapture{}
		emailServer := capture.server()
		defer emailServer.Close()

		handler := NewLifecycleHandler(emailServer.URL, "http://unused", "http://unused", emailServer.Client(), testLogger())

		event := domain.OrderConfirmedEvent{
			OrderID:       "order-1",
			CustomerID:    "cust-1",
			TransactionID: "txn-1",
			TotalMinor:    20000,
			Timestamp:     time.Now().UTC(),
		}
		if err := handler.Handle(context.Background(), domain.TopicOrderConfirmed, mustJSON(t, event)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(capture.sent) != 1 {
			t.Fatalf("expected 1 email, got %d", len(capture.sent))
		}
		if capture.sent[0].To != "cust-1@example.com" {
			t.Errorf("unexpected recipient: %s", capture.sent[0].To)
		}
		if !strings.Contains(capture.sent[0].Subject, "order-1") {
			t.Errorf("subject should mention the order: %s", capture.sent[0].Subject)
		}
	})
}

func TestHandleOrderCancelled(t *testing.T) {
	t.Run("emails the cancellation reason", func(t *testing.T) {
		capture := &emailCapture{}
		emailServer := capture.server()
		defer emailServer.Close()

		handler := NewLifecycleHandler(emailServer.URL, "http://unused", "http://unused", emailServer.Client(), testLogger())

		event := domain.OrderCancelledEvent{
			OrderID:    "order-1",
			CustomerID: "cust-1",
			Reason:     "insufficient stock",
			Timestamp:  time.Now().UTC(),
		}
		if err := handler.Handle(context.Background(), domain.TopicOrderCancelled, mustJSON(t, event)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(capture.sent) != 1 {
			t.Fatalf("expected 1 email, got %d", len(capture.sent))
		}
		if !strings.Contains(capture.sent[0].Body, "insufficient stock") {
			t.Errorf("body should carry the reason: %s", capture.sent[0].Body)
		}
	})
}

func TestHandleShipmentUpdated(t *testing.T) {
	t.Run("walks the order through to shipped", func(t *testing.T) {
		var patched []string
		orders := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"id":"order-1","status":"confirmed"}`))
			case http.MethodPatch:
				var body map[string]string
				_ = json.NewDecoder(r.Body).Decode(&body)
				patched = append(patched, body["status"])
				w.WriteHeader(http.StatusOK)
			}
		}))
		defer orders.Close()

		capture := &emailCapture{}
		emailServer := capture.server()
		defer emailServer.Close()

		handler := NewLifecycleHandler(emailServer.URL, orders.URL, "http://unused", orders.Client(), testLogger())

		event := domain.ShipmentStatusChangedEvent{
			ShipmentID:     "ship-1",
			OrderID:        "order-1",
			CustomerID:     "cust-1",
			Status:         domain.ShipmentStatusShipped,
			Courier:        "DHL",
			TrackingNumber: "TRK123",
			Timestamp:      time.Now().UTC(),
		}
		if err := handler.Handle(context.Background(), domain.TopicShipmentUpdated, mustJSON(t, event)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := []string{"processing", "shipped"}
		if len(patched) != len(want) {
			t.Fatalf("expected patches %v, got %v", want, patched)
		}
		for i := range want {
			if patched[i] != want[i] {
				t.Errorf("patch %d: expected %s, got %s", i, want[i], patched[i])
			}
		}
		if len(capture.sent) != 1 {
			t.Fatalf("expected 1 email, got %d", len(capture.sent))
		}
		if !strings.Contains(capture.sent[0].Body, "TRK123") {
			t.Errorf("body should carry the tracking number: %s", capture.sent[0].Body)
		}
	})

	t.Run("does nothing when the order already matches", func(t *testing.T) {
		var patched int
		orders := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"id":"order-1","status":"shipped"}`))
			case http.MethodPatch:
				patched++
				w.WriteHeader(http.StatusOK)
			}
		}))
		defer orders.Close()

		capture := &emailCapture{}
		emailServer := capture.server()
		defer emailServer.Close()

		handler := NewLifecycleHandler(emailServer.URL, orders.URL, "http://unused", orders.Client(), testLogger())

		event := domain.ShipmentStatusChangedEvent{
			OrderID:    "order-1",
			CustomerID: "cust-1",
			Status:     domain.ShipmentStatusShipped,
			Timestamp:  time.Now().UTC(),
		}
		if err := handler.Handle(context.Background(), domain.TopicShipmentUpdated, mustJSON(t, event)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if patched != 0 {
			t.Errorf("expected no status patches, got %d", patched)
		}
	})

	t.Run("skips shipment events for a cancelled order", func(t *testing.T) {
		var patched int
		orders := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"id":"order-1","status":"cancelled"}`))
			case http.MethodPatch:
				patched++
				w.WriteHeader(http.StatusConflict)
			}
		}))
		defer orders.Close()

		capture := &emailCapture{}
		emailServer := capture.server()
		defer emailServer.Close()

		handler := NewLifecycleHandler(emailServer.URL, orders.URL, "http://unused", orders.Client(), testLogger())

		event := domain.ShipmentStatusChangedEvent{
			OrderID:    "order-1",
			CustomerID: "cust-1",
			Status:     domain.ShipmentStatusShipped,
			Timestamp:  time.Now().UTC(),
		}

		// A cancelled order can never absorb a shipment scan; the event must
		// be dropped, not returned for redelivery, or it pins the consumer.
		if err := handler.Handle(context.Background(), domain.TopicShipmentUpdated, mustJSON(t, event)); err != nil {
			t.Fatalf("expected the event to be skipped, got %v", err)
		}

		if patched != 0 {
			t.Errorf("expected no status patches, got %d", patched)
		}
		if len(capture.sent) != 0 {
			t.Errorf("expected no email for a dead shipment event, got %d", len(capture.sent))
		}
	})

	t.Run("surfaces transient orders-service failures for retry", func(t *testing.T) {
		orders := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer orders.Close()

		handler := NewLifecycleHandler("http://unused", orders.URL, "http://unused", orders.Client(), testLogger())

		event := domain.ShipmentStatusChangedEvent{
			OrderID:    "order-1",
			CustomerID: "cust-1",
			Status:     domain.ShipmentStatusShipped,
		}
		if err := handler.Handle(context.Background(), domain.TopicShipmentUpdated, mustJSON(t, event)); err == nil {
			t.Fatal("expected an error so the message is redelivered")
		}
	})

	t.Run("ignores pending shipment updates", func(t *testing.T) {
		handler := NewLifecycleHandler("http://unused", "http://unused", "http://unused", http.DefaultClient, testLogger())

		event := domain.ShipmentStatusChangedEvent{
			OrderID: "order-1",
			Status:  domain.ShipmentStatusPending,
		}
		if err := handler.Handle(context.Background(), domain.TopicShipmentUpdated, mustJSON(t, event)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestHandleUnknownTopic(t *testing.T) {
	handler := NewLifecycleHandler("http://unused", "http://unused", "http://unused", http.DefaultClient, testLogger())

	if err := handler.Handle(context.Background(), "something.else", []byte(`{}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
