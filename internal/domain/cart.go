package domain

import "time"

// CartLine is one product in a customer's cart. UnitPriceMinor is the
// selling price, ListPriceMinor the pre-discount reference price. The
// checkout subtotal comes from the list price; the payable total from the
// unit price. Swapping the two inverts the discount, so the naming is load
// bearing.
type CartLine struct {
	SKU            string `json:"sku"`
	Name           string `json:"name"`
	VendorID       string `json:"vendor_id"`
	Quantity       int    `json:"quantity"`
	UnitPriceMinor int64  `json:"unit_price_minor"`
	ListPriceMinor int64  `json:"list_price_minor"`
}

type Cart struct {
	CustomerID string     `json:"customer_id"`
	Currency   string     `json:"currency"`
	Lines      []CartLine `json:"lines"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (c *Cart) Validate() error {
	seen := make(map[string]bool, len(c.Lines))
	for _, line := range c.Lines {
		if line.SKU == "" || line.Quantity <= 0 {
			return ErrItemQuantityInvalid
		}
		if line.UnitPriceMinor < 0 || line.ListPriceMinor < 0 {
			return ErrItemPriceInvalid
		}
		if seen[line.SKU] {
			return ErrDuplicateSKU
		}
		seen[line.SKU] = true
	}
	return nil
}

// PricingSummary is the checkout pricing view shown before placement.
type PricingSummary struct {
	SubtotalMinor int64 `json:"subtotal_minor"`
	DiscountMinor int64 `json:"discount_minor"`
	TotalMinor    int64 `json:"total_minor"`
}

// PriceCart computes the summary for a set of cart lines. The subtotal sums
// list prices, the total sums selling prices, and the discount is their
// difference, keeping total == subtotal - discount by construction.
func PriceCart(lines []CartLine) PricingSummary {
	var subtotal, payable int64
	for _, line := range lines {
		qty := int64(line.Quantity)
		subtotal += qty * line.ListPriceMinor
		payable += qty * line.UnitPriceMinor
	}
	return PricingSummary{
		SubtotalMinor: subtotal,
		DiscountMinor: subtotal - payable,
		TotalMinor:    payable,
	}
}
