package domain

import (
	"math"
	"time"
)

// MaxStockQuantity is the ceiling of the quantity column.
const MaxStockQuantity = math.MaxInt32

type ProductID int64

func (id ProductID) Validate() error {
	if id <= 0 {
		return ErrInvalidProductID
	}
	return nil
}

// ProductStockID identifies a persisted stock row. The zero value means the
// stock has not been persisted yet.
type ProductStockID int64

func NewProductStockID(v int64) (ProductStockID, error) {
	if v <= 0 {
		return 0, ErrInvalidStockID
	}
	return ProductStockID(v), nil
}

func (id ProductStockID) IsZero() bool { return id == 0 }

// StockQuantity is a non-negative count bounded by MaxStockQuantity.
type StockQuantity int

func NewStockQuantity(v int) (StockQuantity, error) {
	if v < 0 || v > MaxStockQuantity {
		return 0, ErrInvalidQuantity
	}
	return StockQuantity(v), nil
}

func (q StockQuantity) Int() int { return int(q) }

// ProductStock is an immutable snapshot of the stock held for one product.
// Transitions return a new snapshot; persisting it and detecting version
// conflicts is the caller's job.
type ProductStock struct {
	id        ProductStockID
	productID ProductID
	quantity  StockQuantity
	version   int64
	createdAt time.Time
	updatedAt time.Time
}

// NewProductStock builds a stock that has not been persisted yet.
func NewProductStock(productID ProductID, quantity int, now time.Time) (ProductStock, error) {
	if err := productID.Validate(); err != nil {
		return ProductStock{}, err
	}
	q, err := NewStockQuantity(quantity)
	if err != nil {
		return ProductStock{}, err
	}
	return ProductStock{
		productID: productID,
		quantity:  q,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// ReconstituteProductStock rebuilds a snapshot loaded from storage.
func ReconstituteProductStock(
	id ProductStockID,
	productID ProductID,
	quantity int,
	version int64,
	createdAt, updatedAt time.Time,
) (ProductStock, error) {
	if id.IsZero() {
		return ProductStock{}, ErrInvalidStockID
	}
	s, err := NewProductStock(productID, quantity, createdAt)
	if err != nil {
		return ProductStock{}, err
	}
	s.id = id
	s.version = version
	s.updatedAt = updatedAt
	return s, nil
}

func (s ProductStock) ID() ProductStockID   { return s.id }
func (s ProductStock) ProductID() ProductID { return s.productID }
func (s ProductStock) Quantity() int        { return s.quantity.Int() }
func (s ProductStock) Version() int64       { return s.version }
func (s ProductStock) CreatedAt() time.Time { return s.createdAt }
func (s ProductStock) UpdatedAt() time.Time { return s.updatedAt }
func (s ProductStock) IsNew() bool          { return s.id.IsZero() }

// Deduct removes amount from the stock.
func (s ProductStock) Deduct(amount int, now time.Time) (ProductStock, error) {
	if amount <= 0 {
		return ProductStock{}, ErrInvalidAmount
	}
	if amount > s.quantity.Int() {
		return ProductStock{}, &InsufficientStockError{
			ProductID: s.productID,
			Requested: amount,
			Available: s.quantity.Int(),
		}
	}
	return s.with(s.quantity.Int()-amount, now), nil
}

// Restore adds amount back to the stock. Results above MaxStockQuantity are
// rejected, not clamped.
func (s ProductStock) Restore(amount int, now time.Time) (ProductStock, error) {
	if amount <= 0 {
		return ProductStock{}, ErrInvalidAmount
	}
	if s.quantity.Int() > MaxStockQuantity-amount {
		return ProductStock{}, &StockOverflowError{
			ProductID: s.productID,
			Current:   s.quantity.Int(),
			Amount:    amount,
		}
	}
	return s.with(s.quantity.Int()+amount, now), nil
}

// SetQuantity replaces the quantity unconditionally. Administrative use only.
func (s ProductStock) SetQuantity(quantity int, now time.Time) (ProductStock, error) {
	if _, err := NewStockQuantity(quantity); err != nil {
		return ProductStock{}, err
	}
	return s.with(quantity, now), nil
}

func (s ProductStock) IsAvailable(amount int) bool {
	return amount >= 0 && s.quantity.Int() >= amount
}

func (s ProductStock) HasStock() bool { return s.quantity > 0 }

func (s ProductStock) IsEmpty() bool { return s.quantity == 0 }

// Persisted returns a copy carrying the identity and version assigned by
// storage.
func (s ProductStock) Persisted(id ProductStockID, version int64) ProductStock {
	s.id = id
	s.version = version
	return s
}

func (s ProductStock) with(quantity int, now time.Time) ProductStock {
	s.quantity = StockQuantity(quantity)
	s.updatedAt = now
	return s
}
