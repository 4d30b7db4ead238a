package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/andre-campbell/marketflow/internal/carts"
	"github.com/andre-campbell/marketflow/internal/messaging"
	"github.com/andre-campbell/marketflow/internal/orders"
	"github.com/andre-campbell/marketflow/internal/telemetry"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "orders", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("orders", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	postgresURL := os.Getenv("POSTGRES_URL")
	if postgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	db, err := telemetry.OpenDB("postgres", postgresURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	if _, err := db.Exec("SET search_path TO orders"); err != nil {
		logger.Error("failed to set search_path", "error", err)
		os.Exit(1)
	}

	var producer *messaging.Producer
	kafkaBrokers := os.Getenv("KAFKA_BROKERS")
	if kafkaBrokers != "" {
		producer = messaging.NewProducer(strings.Split(kafkaBrokers, ","))
		defer func() { _ = producer.Close() }()
	}

	inventoryServiceURL := os.Getenv("INVENTORY_SERVICE_URL")
	if inventoryServiceURL == "" {
		logger.Error("INVENTORY_SERVICE_URL environment variable is required")
		os.Exit(1)
	}
	shippingServiceURL := os.Getenv("SHIPPING_SERVICE_URL")
	if shippingServiceURL == "" {
		logger.Error("SHIPPING_SERVICE_URL environment variable is required")
		os.Exit(1)
	}

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	metrics, err := telemetry.NewOrderMetrics()
	if err != nil {
		logger.Error("failed to create metrics", "error", err)
		os.Exit(1)
	}

	repo := orders.NewOrderRepository(db)
	cartRepo := carts.NewCartRepository(db)
	stockClient := orders.NewStockClient(inventoryServiceURL, httpClient)
	shippingClient := orders.NewShippingClient(shippingServiceURL, httpClient)

	handler := orders.NewHandler(repo, cartRepo, stockClient, shippingClient, producerOrNil(producer), metrics, logger)
	cartHandler := carts.NewHandler(cartRepo, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /orders", handler.HandleList)
	mux.HandleFunc("POST /orders", handler.HandleCheckout)
	mux.HandleFunc("GET /orders/{id}", handler.HandleGet)
	mux.HandleFunc("PATCH /orders/{id}/status", handler.HandleUpdateStatus)
	mux.HandleFunc("POST /orders/{id}/payment", handler.HandleCapturePayment)
	mux.HandleFunc("GET /orders/{id}/payment", handler.HandleGetPayment)
	mux.HandleFunc("GET /orders/{id}/tracking", handler.HandleTracking)
	mux.HandleFunc("GET /carts/{customerId}", cartHandler.HandleGet)
	mux.HandleFunc("PUT /carts/{customerId}", cartHandler.HandleReplace)
	mux.HandleFunc("DELETE /carts/{customerId}", cartHandler.HandleClear)
	mux.HandleFunc("GET /carts/{customerId}/summary", cartHandler.HandleSummary)
	mux.Handle("GET /metrics", metricsHandler)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting orders service", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

// producerOrNil keeps the publisher interface nil when Kafka is not
// configured; a typed nil would dodge the handler's nil check.
func producerOrNil(p *messaging.Producer) orders.EventPublisher {
	if p == nil {
		return nil
	}
	return p
}
