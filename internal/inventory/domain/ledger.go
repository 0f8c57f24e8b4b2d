package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("not_found")
	ErrInvalidID         = errors.New("invalid_id")
	ErrInvalidAmount     = errors.New("invalid_amount")
	ErrInvalidOrg        = errors.New("invalid_organization")
	ErrInsufficientStock = errors.New("insufficient_stock")
)

// InsufficientStockError reports a deduction larger than the quantity on hand.
type InsufficientStockError struct {
	ItemName  string
	Needed    decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	name := e.ItemName
	if name == "" {
		name = "item"
	}
	return fmt.Sprintf("insufficient stock for %s: needed %s, available %s",
		name, e.Needed.String(), e.Available.String())
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// ApplyDeduction returns quantity minus amount, refusing to go below zero.
// A zero amount leaves quantity unchanged.
func ApplyDeduction(quantity, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return quantity, ErrInvalidAmount
	}
	if amount.GreaterThan(quantity) {
		return quantity, &InsufficientStockError{Needed: amount, Available: quantity}
	}
	return quantity.Sub(amount), nil
}
