package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/andre-campbell/marketflow/internal/gateway"
	"github.com/andre-campbell/marketflow/internal/telemetry"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "gateway", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	ordersServiceURL := os.Getenv("ORDERS_SERVICE_URL")
	if ordersServiceURL == "" {
		logger.Error("ORDERS_SERVICE_URL is required")
		os.Exit(1)
	}

	inventoryServiceURL := os.Getenv("INVENTORY_SERVICE_URL")
	if inventoryServiceURL == "" {
		logger.Error("INVENTORY_SERVICE_URL is required")
		os.Exit(1)
	}

	shippingServiceURL := os.Getenv("SHIPPING_SERVICE_URL")
	if shippingServiceURL == "" {
		logger.Error("SHIPPING_SERVICE_URL is required")
		os.Exit(1)
	}

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	ordersProxy := gateway.NewServiceProxy(ordersServiceURL, httpClient)
	inventoryProxy := gateway.NewServiceProxy(inventoryServiceURL, httpClient)
	shippingProxy := gateway.NewServiceProxy(shippingServiceURL, httpClient)
	handler := gateway.NewHandler(ordersProxy, inventoryProxy, shippingProxy, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /orders", telemetry.WithHTTPRoute(handler.HandleOrders))
	mux.HandleFunc("POST /orders", telemetry.WithHTTPRoute(handler.HandleOrders))
	mux.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(handler.HandleOrders))
	mux.HandleFunc("PATCH /orders/{id}/status", telemetry.WithHTTPRoute(handler.HandleOrders))
	mux.HandleFunc("POST /orders/{id}/payment", telemetry.WithHTTPRoute(handler.HandleOrders))
	mux.HandleFunc("GET /orders/{id}/payment", telemetry.WithHTTPRoute(handler.HandleOrders))
	mux.HandleFunc("GET /orders/{id}/tracking", telemetry.WithHTTPRoute(handler.HandleOrders))
	mux.HandleFunc("GET /carts/{customerId}", telemetry.WithHTTPRoute(handler.HandleCarts))
	mux.HandleFunc("PUT /carts/{customerId}", telemetry.WithHTTPRoute(handler.HandleCarts))
	mux.HandleFunc("DELETE /carts/{customerId}", telemetry.WithHTTPRoute(handler.HandleCarts))
	mux.HandleFunc("GET /carts/{customerId}/summary", telemetry.WithHTTPRoute(handler.HandleCarts))
	mux.HandleFunc("GET /inventory", telemetry.WithHTTPRoute(handler.HandleInventory))
	mux.HandleFunc("GET /inventory/{sku}", telemetry.WithHTTPRoute(handler.HandleInventory))
	mux.HandleFunc("POST /shipments", telemetry.WithHTTPRoute(handler.HandleShipments))
	mux.HandleFunc("GET /shipments/{id}", telemetry.WithHTTPRoute(handler.HandleShipments))
	mux.HandleFunc("GET /shipments/by-order/{orderId}", telemetry.WithHTTPRoute(handler.HandleShipments))
	mux.HandleFunc("PATCH /shipments/{id}", telemetry.WithHTTPRoute(handler.HandleShipments))
	mux.HandleFunc("PATCH /shipments/{id}/status", telemetry.WithHTTPRoute(handler.HandleShipments))

	server := &http.Server{
		Addr: ":" + port,
		Handler: otelhttp.NewHandler(mux, "gateway",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting gateway service", "port", port)
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
