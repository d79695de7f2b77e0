package port

import (
	"context"

	"github.com/rl1809/inventory-control/internal/core/domain"
)

type StockReader interface {
	// FindByProductID returns domain.ErrStockNotFound when no row exists
	FindByProductID(ctx context.Context, productID domain.ProductID) (domain.ProductStock, error)
}

type StockPersister interface {
	// Persist inserts a new stock row at version 0 and returns its id
	Persist(ctx context.Context, stock domain.ProductStock) (domain.ProductStockID, error)

	// Update writes the snapshot if the stored version still equals stock.Version(),
	// otherwise it returns domain.ErrVersionConflict
	Update(ctx context.Context, stock domain.ProductStock) (domain.ProductStock, error)
}

type StockRepository interface {
	StockReader
	StockPersister

	// Scan pages through stock rows ordered by id, starting after afterID
	Scan(ctx context.Context, afterID domain.ProductStockID, limit int) ([]domain.ProductStock, error)
}
