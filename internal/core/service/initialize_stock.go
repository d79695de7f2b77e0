package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/rl1809/inventory-control/internal/core/domain"
	"github.com/rl1809/inventory-control/internal/port"
)

type InitializeStockService struct {
	persister port.StockPersister
	opts      Options
}

func NewInitializeStockService(persister port.StockPersister, opts Options) *InitializeStockService {
	return &InitializeStockService{persister: persister, opts: opts.withDefaults()}
}

// Initialize creates the stock row for a product that becomes sellable.
// It fails with domain.ErrStockAlreadyExists if the product already has one.
func (s *InitializeStockService) Initialize(ctx context.Context, productID domain.ProductID, quantity int) (domain.ProductStock, error) {
	return s.opts.observe(ctx, "initialize", productID, quantity, func(ctx context.Context) (domain.ProductStock, error) {
		stock, err := domain.NewProductStock(productID, quantity, s.opts.Clock())
		if err != nil {
			return domain.ProductStock{}, err
		}

		id, err := s.persister.Persist(ctx, stock)
		if err != nil {
			return domain.ProductStock{}, err
		}
		saved := stock.Persisted(id, 0)

		s.opts.Logger.Info("stock initialized",
			zap.Int64("product_id", int64(productID)),
			zap.Int64("stock_id", int64(id)),
			zap.Int("quantity", quantity))

		s.opts.publish(ctx, domain.StockOperationInitialize, saved)
		return saved, nil
	})
}
