package domain

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the stock store and the sale ledger.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("product not found")
	ErrDuplicateCode      = errors.New("product code already exists")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrPartialSale        = errors.New("partial sale: stock decremented without ledger entry")
)

// Invalidf builds an ErrInvalidInput with a caller-facing message.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// InsufficientStockError reports how much stock was available when a sale was refused.
type InsufficientStockError struct {
	Code      string
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.Code, e.Requested, e.Available)
}

// Is matches ErrInsufficientStock.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// PartialSaleError is returned when the stock decrement committed but the ledger append did not.
// Stock and ledger disagree until an operator reconciles them.
type PartialSaleError struct {
	SaleID string
	Code   string
	Amount int64
	Before int64
	After  int64
	Err    error
}

func (e *PartialSaleError) Error() string {
	return fmt.Sprintf("partial sale %s: %s decremented %d -> %d but ledger append failed: %v",
		e.SaleID, e.Code, e.Before, e.After, e.Err)
}

// Is matches ErrPartialSale.
func (e *PartialSaleError) Is(target error) bool {
	return target == ErrPartialSale
}

func (e *PartialSaleError) Unwrap() error {
	return e.Err
}
