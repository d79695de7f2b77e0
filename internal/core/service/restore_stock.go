package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/inventory-control/internal/core/domain"
	"github.com/rl1809/inventory-control/internal/port"
)

// RestoreStockService returns stock on order cancellation. It shares the
// optimistic retry loop with DeductStockService.
type RestoreStockService struct {
	executor optimisticExecutor
	opts     Options
}

func NewRestoreStockService(reader port.StockReader, persister port.StockPersister, policy RetryPolicy, opts Options) *RestoreStockService {
	opts = opts.withDefaults()
	return &RestoreStockService{
		executor: newOptimisticExecutor(reader, persister, policy, opts),
		opts:     opts,
	}
}

func (s *RestoreStockService) Restore(ctx context.Context, productID domain.ProductID, amount int) (domain.ProductStock, error) {
	return s.opts.observe(ctx, "restore", productID, amount, func(ctx context.Context) (domain.ProductStock, error) {
		if err := productID.Validate(); err != nil {
			return domain.ProductStock{}, err
		}
		if amount <= 0 {
			return domain.ProductStock{}, domain.ErrInvalidAmount
		}

		saved, err := s.executor.execute(ctx, "restore", productID, func(current domain.ProductStock, now time.Time) (domain.ProductStock, error) {
			return current.Restore(amount, now)
		})
		if err != nil {
			return domain.ProductStock{}, err
		}

		s.opts.Logger.Info("stock restored",
			zap.Int64("product_id", int64(productID)),
			zap.Int("amount", amount),
			zap.Int("quantity", saved.Quantity()),
			zap.Int64("version", saved.Version()))

		s.opts.publish(ctx, domain.StockOperationRestore, saved)
		return saved, nil
	})
}
