package service

import (
	"context"
	"errors"

	"github.com/rl1809/inventory-control/internal/core/domain"
	"github.com/rl1809/inventory-control/internal/port"
)

// Availability is the cache's answer to "are N available". Known is false
// when the counter has not been initialized.
type Availability struct {
	StockID   domain.ProductStockID
	Requested int64
	Cached    int64
	Known     bool
	Available bool
}

type StockQueryService struct {
	reader  port.StockReader
	counter port.StockCounter
}

func NewStockQueryService(reader port.StockReader, counter port.StockCounter) *StockQueryService {
	return &StockQueryService{reader: reader, counter: counter}
}

// Get returns the authoritative snapshot.
func (s *StockQueryService) Get(ctx context.Context, productID domain.ProductID) (domain.ProductStock, error) {
	if err := productID.Validate(); err != nil {
		return domain.ProductStock{}, err
	}
	return s.reader.FindByProductID(ctx, productID)
}

// Availability never touches the relational store. Callers must still go
// through the deduct path before committing a sale.
func (s *StockQueryService) Availability(ctx context.Context, stockID domain.ProductStockID, amount int64) (Availability, error) {
	if _, err := domain.NewProductStockID(int64(stockID)); err != nil {
		return Availability{}, err
	}
	if amount <= 0 {
		return Availability{}, domain.ErrInvalidAmount
	}

	result := Availability{StockID: stockID, Requested: amount}
	current, err := s.counter.GetStock(ctx, stockID)
	if errors.Is(err, domain.ErrCounterNotFound) {
		return result, nil
	}
	if err != nil {
		return Availability{}, err
	}

	result.Known = true
	result.Cached = current
	result.Available = current >= amount
	return result, nil
}
