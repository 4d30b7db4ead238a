package domain

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrOrderNotPending     = errors.New("order is not pending")
	ErrCustomerRequired    = errors.New("customer_id is required")
	ErrEmptyCart           = errors.New("cart is empty")
	ErrDuplicateSKU        = errors.New("cart contains the same sku twice")
	ErrItemQuantityInvalid = errors.New("item quantity must be greater than zero")
	ErrItemPriceInvalid    = errors.New("item price must be non-negative")
	ErrTotalMismatch       = errors.New("order total does not equal subtotal minus discount")
	ErrAddressIncomplete   = errors.New("shipping address is incomplete")
	ErrAmountMismatch      = errors.New("payment amount does not match order total")

	ErrInsufficientStock = errors.New("insufficient stock")

	ErrShipmentNotFound  = errors.New("shipment not found")
	ErrShipmentExists    = errors.New("order already has a shipment")
	ErrShipmentDelivered = errors.New("shipment already delivered")
	ErrShipmentLocked    = errors.New("tracking details cannot change after dispatch")
)

// TransitionError reports an illegal status change with both endpoints,
// so handlers can surface a precise conflict message.
type TransitionError struct {
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal status transition from %s to %s", e.From, e.To)
}

func NewTransitionError(from, to string) error {
	return &TransitionError{From: from, To: to}
}

// IsTransitionError reports whether err is (or wraps) a TransitionError.
func IsTransitionError(err error) bool {
	var te *TransitionError
	return errors.As(err, &te)
}
