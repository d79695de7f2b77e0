package domain

import (
	"errors"
	"fmt"
	"time"
)

// Validation errors.
var (
	ErrInvalidQuantity  = errors.New("stock: quantity must not be negative")
	ErrInvalidAmount    = errors.New("stock: amount must be greater than zero")
	ErrInvalidProductID = errors.New("stock: invalid product id")
	ErrInvalidStockID   = errors.New("stock: invalid product stock id")
	ErrInvalidRequestID = errors.New("stock: request id is required")
)

// Business-rule errors.
var (
	ErrInsufficientStock = errors.New("stock: insufficient stock")
	ErrStockOverflow     = errors.New("stock: quantity overflow")
)

var (
	// ErrVersionConflict is returned by the persistence port when the stored
	// version no longer matches the snapshot being written.
	ErrVersionConflict = errors.New("stock: version conflict")

	ErrConcurrentModification = errors.New("stock: concurrent modification")
	ErrLockNotAcquired        = errors.New("stock: lock not acquired")

	ErrStockNotFound      = errors.New("stock: product stock not found")
	ErrStockAlreadyExists = errors.New("stock: product stock already exists")

	// ErrCounterNotFound marks an absent cache counter. It is distinct from a
	// counter holding zero.
	ErrCounterNotFound = errors.New("stock: counter not found")

	ErrDuplicateRequest = errors.New("stock: duplicate request")
)

type InsufficientStockError struct {
	ProductID ProductID
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("stock: insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

type StockOverflowError struct {
	ProductID ProductID
	Current   int
	Amount    int
}

func (e *StockOverflowError) Error() string {
	return fmt.Sprintf("stock: restoring %d onto %d for product %d exceeds %d",
		e.Amount, e.Current, e.ProductID, MaxStockQuantity)
}

func (e *StockOverflowError) Is(target error) bool { return target == ErrStockOverflow }

// ConcurrentModificationError is the terminal form of a version conflict once
// the retry budget is spent.
type ConcurrentModificationError struct {
	ProductID ProductID
	Attempts  int
	Err       error
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("stock: concurrent modification of product %d after %d attempts",
		e.ProductID, e.Attempts)
}

func (e *ConcurrentModificationError) Is(target error) bool {
	return target == ErrConcurrentModification
}

func (e *ConcurrentModificationError) Unwrap() error { return e.Err }

type LockAcquisitionError struct {
	Key  string
	Wait time.Duration
}

func (e *LockAcquisitionError) Error() string {
	return fmt.Sprintf("stock: could not acquire lock %q within %s", e.Key, e.Wait)
}

func (e *LockAcquisitionError) Is(target error) bool { return target == ErrLockNotAcquired }

// IsValidation reports whether err was caused by malformed input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidProductID) ||
		errors.Is(err, ErrInvalidStockID) ||
		errors.Is(err, ErrInvalidRequestID)
}

// IsBusinessRule reports whether err is a definitive domain rejection.
func IsBusinessRule(err error) bool {
	return errors.Is(err, ErrInsufficientStock) || errors.Is(err, ErrStockOverflow)
}
