package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/andre-campbell/marketflow/internal/domain"
)

// StockClient talks to the inventory service over HTTP.
type StockClient struct {
	baseURL string
	client  *http.Client
}

func NewStockClient(baseURL string, client *http.Client) *StockClient {
	return &StockClient{baseURL: baseURL, client: client}
}

// Available verifies the sku has at least quantity sellable units. This is
// the pre-checkout inventory check; the authoritative guard stays in the
// inventory service's conditional updates.
func (c *StockClient) Available(ctx context.Context, sku string, quantity int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/stock/%s", c.baseURL, sku), nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("check stock for %s: %w", sku, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("sku %s: %w", sku, domain.ErrInsufficientStock)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inventory service returned status %d for sku %s", resp.StatusCode, sku)
	}

	var level domain.StockLevel
	if err := json.NewDecoder(resp.Body).Decode(&level); err != nil {
		return fmt.Errorf("decode stock level for %s: %w", sku, err)
	}

	if level.Available < quantity {
		return fmt.Errorf("sku %s: %w", sku, domain.ErrInsufficientStock)
	}

	return nil
}

// Commit consumes the order's reserved stock for all lines at once. The
// inventory service applies the lines in one transaction, so this either
// decrements every line or none.
func (c *StockClient) Commit(ctx context.Context, orderID string, lines []domain.StockCommitLine) error {
	body, err := json.Marshal(map[string]any{"order_id": orderID, "lines": lines})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/stock/commit", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("commit stock: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusConflict {
		return domain.ErrInsufficientStock
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inventory service returned status %d on commit", resp.StatusCode)
	}

	return nil
}

// Release returns the order's hold on one sku, used when an order is
// cancelled. Inventory treats an order without a live reservation as a
// no-op.
func (c *StockClient) Release(ctx context.Context, orderID, sku string) error {
	body, err := json.Marshal(map[string]string{"order_id": orderID})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/stock/%s/release", c.baseURL, sku)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("release stock for %s: %w", sku, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inventory service returned status %d for sku %s", resp.StatusCode, sku)
	}

	return nil
}

// ShippingClient fetches shipment records for the tracking view.
type ShippingClient struct {
	baseURL string
	client  *http.Client
}

func NewShippingClient(baseURL string, client *http.Client) *ShippingClient {
	return &ShippingClient{baseURL: baseURL, client: client}
}

// GetByOrder returns the order's shipment, or nil when none exists yet.
func (c *ShippingClient) GetByOrder(ctx context.Context, orderID string) (*domain.Shipment, error) {
	url := fmt.Sprintf("%s/shipments/by-order/%s", c.baseURL, orderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get shipment for order %s: %w", orderID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("shipping service returned status %d for order %s", resp.StatusCode, orderID)
	}

	var shipment domain.Shipment
	if err := json.NewDecoder(resp.Body).Decode(&shipment); err != nil {
		return nil, fmt.Errorf("decode shipment for order %s: %w", orderID, err)
	}

	return &shipment, nil
}
