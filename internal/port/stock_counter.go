package port

import (
	"context"

	"github.com/rl1809/inventory-control/internal/core/domain"
)

// StockCounter is the cache-resident stock count. It is advisory: the
// relational stock stays authoritative. Single-key operations report an absent
// key with domain.ErrCounterNotFound.
type StockCounter interface {
	// Initialize overwrites the counter
	Initialize(ctx context.Context, id domain.ProductStockID, quantity int64) error

	InitializeAll(ctx context.Context, quantities map[domain.ProductStockID]int64) error

	// Decrement atomically subtracts amount and returns the remainder, which may be negative
	Decrement(ctx context.Context, id domain.ProductStockID, amount int64) (int64, error)

	// Increment atomically adds amount; also used to roll back a Decrement
	Increment(ctx context.Context, id domain.ProductStockID, amount int64) (int64, error)

	GetStock(ctx context.Context, id domain.ProductStockID) (int64, error)

	// GetStocks omits absent keys from the result
	GetStocks(ctx context.Context, ids []domain.ProductStockID) (map[domain.ProductStockID]int64, error)

	// HasStock is false both when the counter is short and when it is absent
	HasStock(ctx context.Context, id domain.ProductStockID, amount int64) (bool, error)

	Exists(ctx context.Context, id domain.ProductStockID) (bool, error)
	Delete(ctx context.Context, id domain.ProductStockID) error
}
