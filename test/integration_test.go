//go:build integration

package test

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

	"github.com/google/uuid"

	"github.com/andre-campbell/marketflow/internal/carts"
	"github.com/andre-campbell/marketflow/internal/domain"
	"github.com/andre-campbell/marketflow/internal/inventory"
	"github.com/andre-campbell/marketflow/internal/messaging"
	"github.com/andre-campbell/marketflow/internal/orders"
	"github.com/andre-campbell/marketflow/internal/shipping"
)

const testSKU = "sku-keyboard-87"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type orderStack struct {
	ordersRepo    *orders.OrderRepository
	cartRepo      *carts.CartRepository
	inventoryRepo *inventory.StockRepository
	ordersHandler *orders.Handler
}

// newOrderStack wires the orders service against a live inventory service
// over HTTP, the way the deployed system runs.
func newOrderStack(t *testing.T, pg *PostgresSetup) *orderStack {
	t.Helper()
	logger := discardLogger()

	ordersDB, err := DBWithSchema(pg.ConnStr, "orders")
	if err != nil {
		t.Fatalf("failed to create orders DB: %v", err)
	}
	t.Cleanup(func() { _ = ordersDB.Close() })

	inventoryDB, err := DBWithSchema(pg.ConnStr, "inventory")
	if err != nil {
		t.Fatalf("failed to create inventory DB: %v", err)
	}
	t.Cleanup(func() { _ = inventoryDB.Close() })

	inventoryRepo := inventory.NewStockRepository(inventoryDB)
	inventoryHandler := inventory.NewHandler(inventoryRepo, logger)
	inventoryMux := http.NewServeMux()
	inventoryMux.HandleFunc("GET /stock/{sku}", inventoryHandler.HandleGetStock)
	inventoryMux.HandleFunc("POST /stock/{sku}/reserve", inventoryHandler.HandleReserve)
	inventoryMux.HandleFunc("POST /stock/{sku}/release", inventoryHandler.HandleRelease)
	inventoryMux.HandleFunc("POST /stock/commit", inventoryHandler.HandleCommit)
	inventoryServer := httptest.NewServer(inventoryMux)
	t.Cleanup(inventoryServer.Close)

	httpClient := &http.Client{Timeout: 10 * time.Second}

	ordersRepo := orders.NewOrderRepository(ordersDB)
	cartRepo := carts.NewCartRepository(ordersDB)
	stockClient := orders.NewStockClient(inventoryServer.URL, httpClient)

	ordersHandler := orders.NewHandler(ordersRepo, cartRepo, stockClient, nil, nil, nil, logger)

	return &orderStack{
		ordersRepo:    ordersRepo,
		cartRepo:      cartRepo,
		inventoryRepo: inventoryRepo,
		ordersHandler: ordersHandler,
	}
}

func fillCart(t *testing.T, ctx context.Context, stack *orderStack, customerID string, quantity int) {
	t.Helper()
	err := stack.cartRepo.Replace(ctx, customerID, []domain.CartLine{
		{SKU: testSKU, Name: "87-key keyboard", VendorID: "vendor-1", Quantity: quantity,
			UnitPriceMinor: 10000, ListPriceMinor: 12000},
	})
	if err != nil {
		t.Fatalf("failed to fill cart: %v", err)
	}
}

func checkout(t *testing.T, stack *orderStack, customerID string) domain.Order {
	t.Helper()

	reqBody := `{"customer_id": "` + customerID + `", "address": {"line1": "12 Harbour Way", "city": "Portsmouth", "postal_code": "PO1 2AB", "country": "GB"}}`
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	stack.ordersHandler.HandleCheckout(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}

	var order domain.Order
	if err := json.NewDecoder(rec.Body).Decode(&order); err != nil {
		t.Fatalf("failed to decode order: %v", err)
	}
	return order
}

func TestCheckoutFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	stack := newOrderStack(t, pg)
	fillCart(t, ctx, stack, "cust-checkout", 2)

	order := checkout(t, stack, "cust-checkout")

	if order.ID == "" {
		t.Fatal("expected order ID to be set")
	}
	if order.Status != domain.OrderStatusPending {
		t.Fatalf("expected status %s, got %s", domain.OrderStatusPending, order.Status)
	}
	if order.SubtotalMinor != 24000 {
		t.Fatalf("expected subtotal 24000, got %d", order.SubtotalMinor)
	}
	if order.DiscountMinor != 4000 {
		t.Fatalf("expected discount 4000, got %d", order.DiscountMinor)
	}
	if order.TotalMinor != 20000 {
		t.Fatalf("expected total 20000, got %d", order.TotalMinor)
	}

	stored, err := stack.ordersRepo.GetByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("failed to fetch order from DB: %v", err)
	}
	if stored == nil {
		t.Fatal("order not found in database")
	}
	if len(stored.Items) != 1 || stored.Items[0].SKU != testSKU {
		t.Fatalf("unexpected items: %+v", stored.Items)
	}
}

func TestPaymentCaptureFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	stack := newOrderStack(t, pg)
	fillCart(t, ctx, stack, "cust-capture", 2)
	order := checkout(t, stack, "cust-capture")

	// Reserve as the worker would have on order.placed.
	if err := stack.inventoryRepo.Reserve(ctx, order.ID, testSKU, 2); err != nil {
		t.Fatalf("failed to reserve stock: %v", err)
	}

	captureBody := `{"transaction_id": "txn-42", "amount_minor": 20000}`
	req := httptest.NewRequest(http.MethodPost, "/orders/"+order.ID+"/payment", strings.NewReader(captureBody))
	req.SetPathValue("id", order.ID)
	rec := httptest.NewRecorder()
	stack.ordersHandler.HandleCapturePayment(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	confirmed, err := stack.ordersRepo.GetByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("failed to fetch order: %v", err)
	}
	if confirmed.Status != domain.OrderStatusConfirmed {
		t.Fatalf("expected status %s, got %s", domain.OrderStatusConfirmed, confirmed.Status)
	}

	payment, err := stack.ordersRepo.GetPayment(ctx, order.ID)
	if err != nil {
		t.Fatalf("failed to fetch payment: %v", err)
	}
	if payment == nil || payment.TransactionID != "txn-42" {
		t.Fatalf("unexpected payment: %+v", payment)
	}

	level, err := stack.inventoryRepo.GetStock(ctx, testSKU)
	if err != nil {
		t.Fatalf("failed to fetch stock: %v", err)
	}
	if level.Available != 118 {
		t.Fatalf("expected available 118, got %d", level.Available)
	}
	if level.Reserved != 0 {
		t.Fatalf("expected reserved 0 after commit, got %d", level.Reserved)
	}

	cart, err := stack.cartRepo.Get(ctx, "cust-capture")
	if err != nil {
		t.Fatalf("failed to fetch cart: %v", err)
	}
	if len(cart.Lines) != 0 {
		t.Fatalf("expected cart to be cleared, got %d lines", len(cart.Lines))
	}

	// The same capture arriving again must not confirm or decrement twice.
	req = httptest.NewRequest(http.MethodPost, "/orders/"+order.ID+"/payment", strings.NewReader(captureBody))
	req.SetPathValue("id", order.ID)
	rec = httptest.NewRecorder()
	stack.ordersHandler.HandleCapturePayment(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status %d on duplicate capture, got %d: %s", http.StatusConflict, rec.Code, rec.Body.String())
	}

	level, err = stack.inventoryRepo.GetStock(ctx, testSKU)
	if err != nil {
		t.Fatalf("failed to fetch stock: %v", err)
	}
	if level.Available != 118 || level.Reserved != 0 {
		t.Fatalf("stock must be untouched by the duplicate: available=%d reserved=%d", level.Available, level.Reserved)
	}
}

func TestStockCommitRollback(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	inventoryDB, err := DBWithSchema(pg.ConnStr, "inventory")
	if err != nil {
		t.Fatalf("failed to create inventory DB: %v", err)
	}
	defer func() { _ = inventoryDB.Close() }()

	repo := inventory.NewStockRepository(inventoryDB)

	orderID := uuid.New().String()
	if err := repo.Reserve(ctx, orderID, testSKU, 2); err != nil {
		t.Fatalf("failed to reserve: %v", err)
	}

	// Second line has no reservation, so the whole commit must fail and the
	// first line's reservation must survive.
	err = repo.CommitLines(ctx, orderID, []domain.StockCommitLine{
		{SKU: testSKU, Quantity: 2},
		{SKU: "sku-monitor-27", Quantity: 5},
	})
	if err == nil {
		t.Fatal("expected commit to fail")
	}

	level, err := repo.GetStock(ctx, testSKU)
	if err != nil {
		t.Fatalf("failed to fetch stock: %v", err)
	}
	if level.Reserved != 2 {
		t.Fatalf("expected reservation to survive the rollback, got reserved=%d", level.Reserved)
	}
}

func TestStockReleaseScopedToOrder(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	inventoryDB, err := DBWithSchema(pg.ConnStr, "inventory")
	if err != nil {
		t.Fatalf("failed to create inventory DB: %v", err)
	}
	defer func() { _ = inventoryDB.Close() }()

	repo := inventory.NewStockRepository(inventoryDB)

	// Two orders hold the same sku. Cancelling one must not touch the
	// other's units, however many times its release is replayed.
	if err := repo.Reserve(ctx, "order-a", testSKU, 2); err != nil {
		t.Fatalf("failed to reserve for order-a: %v", err)
	}
	if err := repo.Reserve(ctx, "order-b", testSKU, 3); err != nil {
		t.Fatalf("failed to reserve for order-b: %v", err)
	}

	// A redelivered placement event must not stack a second hold.
	if err := repo.Reserve(ctx, "order-b", testSKU, 3); err != nil {
		t.Fatalf("repeated reserve should be a no-op: %v", err)
	}

	// Worker compensation and the cancellation side effect both release.
	if err := repo.Release(ctx, "order-b", testSKU); err != nil {
		t.Fatalf("first release failed: %v", err)
	}
	if err := repo.Release(ctx, "order-b", testSKU); err != nil {
		t.Fatalf("second release should be a no-op: %v", err)
	}

	level, err := repo.GetStock(ctx, testSKU)
	if err != nil {
		t.Fatalf("failed to fetch stock: %v", err)
	}
	if level.Available != 118 || level.Reserved != 2 {
		t.Fatalf("order-a's hold must survive: available=%d reserved=%d", level.Available, level.Reserved)
	}

	// order-a's reservation is still spendable.
	if err := repo.CommitLines(ctx, "order-a", []domain.StockCommitLine{{SKU: testSKU, Quantity: 2}}); err != nil {
		t.Fatalf("failed to commit order-a: %v", err)
	}

	level, err = repo.GetStock(ctx, testSKU)
	if err != nil {
		t.Fatalf("failed to fetch stock: %v", err)
	}
	if level.Available != 118 || level.Reserved != 0 {
		t.Fatalf("unexpected stock after commit: available=%d reserved=%d", level.Available, level.Reserved)
	}
}

func TestShipmentLifecycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	shippingDB, err := DBWithSchema(pg.ConnStr, "shipping")
	if err != nil {
		t.Fatalf("failed to create shipping DB: %v", err)
	}
	defer func() { _ = shippingDB.Close() }()

	repo := shipping.NewShipmentRepository(shippingDB)
	handler := shipping.NewHandler(repo, nil, discardLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("POST /shipments", handler.HandleCreate)
	mux.HandleFunc("GET /shipments/{id}", handler.HandleGet)
	mux.HandleFunc("PATCH /shipments/{id}/status", handler.HandleUpdateStatus)
	mux.HandleFunc("PATCH /shipments/{id}", handler.HandleUpdateDetails)
	server := httptest.NewServer(mux)
	defer server.Close()

	client := server.Client()
	orderID := uuid.New().String()

	createBody := `{"order_id": "` + orderID + `", "customer_id": "cust-ship", "courier": "DHL", "tracking_number": "TRK1"}`
	resp, err := client.Post(server.URL+"/shipments", "application/json", strings.NewReader(createBody))
	if err != nil {
		t.Fatalf("failed to create shipment: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, resp.StatusCode)
	}
	var shipment domain.Shipment
	if err := json.NewDecoder(resp.Body).Decode(&shipment); err != nil {
		t.Fatalf("failed to decode shipment: %v", err)
	}
	_ = resp.Body.Close()

	patch := func(path, body string) *http.Response {
		t.Helper()
		req, err := http.NewRequestWithContext(ctx, http.MethodPatch, server.URL+path, strings.NewReader(body))
		if err != nil {
			t.Fatalf("failed to build request: %v", err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		return resp
	}

	// Second shipment for the same order must be rejected.
	resp, err = client.Post(server.URL+"/shipments", "application/json", strings.NewReader(createBody))
	if err != nil {
		t.Fatalf("failed to post duplicate shipment: %v", err)
	}
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected status %d for duplicate shipment, got %d", http.StatusConflict, resp.StatusCode)
	}
	_ = resp.Body.Close()

	resp = patch("/shipments/"+shipment.ID+"/status", `{"status": "shipped"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d for dispatch, got %d", http.StatusOK, resp.StatusCode)
	}
	_ = resp.Body.Close()

	// Tracking details are frozen after dispatch.
	resp = patch("/shipments/"+shipment.ID, `{"courier": "UPS", "tracking_number": "TRK2"}`)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected status %d for post-dispatch edit, got %d", http.StatusConflict, resp.StatusCode)
	}
	_ = resp.Body.Close()

	// Shipped never goes back to pending.
	resp = patch("/shipments/"+shipment.ID+"/status", `{"status": "pending"}`)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected status %d for backward transition, got %d", http.StatusConflict, resp.StatusCode)
	}
	_ = resp.Body.Close()

	resp = patch("/shipments/"+shipment.ID+"/status", `{"status": "delivered"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d for delivery, got %d", http.StatusOK, resp.StatusCode)
	}
	_ = resp.Body.Close()

	resp = patch("/shipments/"+shipment.ID+"/status", `{"status": "delivered"}`)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected status %d for double delivery, got %d", http.StatusConflict, resp.StatusCode)
	}
	var errBody map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&errBody); err != nil {
		t.Fatalf("failed to decode error: %v", err)
	}
	_ = resp.Body.Close()
	if !strings.Contains(errBody["error"], "already delivered") {
		t.Fatalf("expected 'already delivered' error, got %q", errBody["error"])
	}
}

func TestKafkaRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	brokers, cleanup := SetupKafka(ctx, t)
	defer cleanup()

	producer := messaging.NewProducer(brokers)
	defer func() { _ = producer.Close() }()

	event := domain.OrderConfirmedEvent{
		OrderID:       uuid.New().String(),
		CustomerID:    "cust-kafka",
		TransactionID: "txn-1",
		TotalMinor:    20000,
		Timestamp:     time.Now().UTC(),
	}
	if err := producer.Publish(ctx, domain.TopicOrderConfirmed, event.OrderID, event); err != nil {
		t.Fatalf("failed to publish: %v", err)
	}

	consumer := messaging.NewConsumer(brokers, []string{domain.TopicOrderConfirmed}, "roundtrip-test")
	defer func() { _ = consumer.Close() }()

	received := make(chan domain.OrderConfirmedEvent, 1)
	consumeCtx, stop := context.WithCancel(ctx)
	defer stop()

	go func() {
		_ = consumer.Consume(consumeCtx, func(_ context.Context, topic string, payload []byte) error {
			if topic != domain.TopicOrderConfirmed {
				t.Errorf("unexpected topic %s", topic)
			}
			var got domain.OrderConfirmedEvent
			if err := json.Unmarshal(payload, &got); err != nil {
				t.Errorf("failed to unmarshal event: %v", err)
				return nil
			}
			received <- got
			return nil
		})
	}()

	select {
	case got := <-received:
		if got.OrderID != event.OrderID {
			t.Fatalf("expected order %s, got %s", event.OrderID, got.OrderID)
		}
	case <-time.After(90 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}
