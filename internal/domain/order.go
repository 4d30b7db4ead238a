package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// orderTransitions is the total transition table for order statuses.
// Delivered and cancelled are terminal; anything absent is rejected.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
	OrderStatusDelivered:  {},
	OrderStatusCancelled:  {},
}

func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

func (s OrderStatus) Terminal() bool {
	return s.Valid() && len(orderTransitions[s]) == 0
}

// CanTransition reports whether an order may move from s to target.
func (s OrderStatus) CanTransition(target OrderStatus) bool {
	for _, next := range orderTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// Address is the shipping address snapshot captured at checkout.
type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

func (a Address) Validate() error {
	if a.Line1 == "" || a.City == "" || a.PostalCode == "" || a.Country == "" {
		return ErrAddressIncomplete
	}
	return nil
}

// OrderItem is one order line. Prices are snapshotted at checkout:
// UnitPriceMinor is what the customer pays per unit, ListPriceMinor is the
// pre-discount reference price the subtotal is computed from.
type OrderItem struct {
	SKU            string `json:"sku"`
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	UnitPriceMinor int64  `json:"unit_price_minor"`
	ListPriceMinor int64  `json:"list_price_minor"`
	LineTotalMinor int64  `json:"line_total_minor"`
}

// Order totals are fixed at creation time and never recomputed.
type Order struct {
	ID            string      `json:"id"`
	CustomerID    string      `json:"customer_id"`
	VendorID      string      `json:"vendor_id"`
	Status        OrderStatus `json:"status"`
	Currency      string      `json:"currency"`
	SubtotalMinor int64       `json:"subtotal_minor"`
	DiscountMinor int64       `json:"discount_minor"`
	ShippingMinor int64       `json:"shipping_minor"`
	TaxMinor      int64       `json:"tax_minor"`
	TotalMinor    int64       `json:"total_minor"`
	Address       Address     `json:"address"`
	Items         []OrderItem `json:"items"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// Validate checks the invariants every persisted order must hold.
func (o *Order) Validate() error {
	if o.CustomerID == "" {
		return ErrCustomerRequired
	}
	if len(o.Items) == 0 {
		return ErrEmptyCart
	}
	seen := make(map[string]bool, len(o.Items))
	for _, item := range o.Items {
		if item.Quantity <= 0 {
			return ErrItemQuantityInvalid
		}
		if item.UnitPriceMinor < 0 || item.ListPriceMinor < 0 {
			return ErrItemPriceInvalid
		}
		if seen[item.SKU] {
			return ErrDuplicateSKU
		}
		seen[item.SKU] = true
	}
	if o.TotalMinor != o.SubtotalMinor-o.DiscountMinor {
		return ErrTotalMismatch
	}
	return nil
}
