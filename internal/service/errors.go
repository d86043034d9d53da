package service

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrProductNotFound     = errors.New("one or more products not found")
	ErrInvalidStatus       = errors.New("invalid delivery status")
	ErrForbidden           = errors.New("access denied")
	ErrOrderNumberConflict = errors.New("order number conflict, retry the request")
	ErrDuplicateRequest    = errors.New("duplicate request: idempotency key already used")
	ErrDuplicateSKU        = errors.New("a product with this SKU already exists")
)

// ValidationError reports malformed or missing input rejected before
// the transaction starts.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func validationErr(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// ProductUnavailableError marks an item referencing an inactive product.
type ProductUnavailableError struct {
	ProductName string
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("product %q is no longer available", e.ProductName)
}

// InsufficientStockError carries both quantities so the caller can
// adjust without another round trip.
type InsufficientStockError struct {
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("product %q has insufficient stock. Available: %d, Requested: %d",
		e.ProductName, e.Available, e.Requested)
}

// InvalidTransitionError rejects an illegal delivery-status change.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}
