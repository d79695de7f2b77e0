package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/inventory-control/internal/core/domain"
	"github.com/rl1809/inventory-control/internal/port"
)

// DeductStockService removes stock on order placement using optimistic
// versioning with bounded retry.
type DeductStockService struct {
	executor optimisticExecutor
	opts     Options
}

func NewDeductStockService(reader port.StockReader, persister port.StockPersister, policy RetryPolicy, opts Options) *DeductStockService {
	opts = opts.withDefaults()
	return &DeductStockService{
		executor: newOptimisticExecutor(reader, persister, policy, opts),
		opts:     opts,
	}
}

func (s *DeductStockService) Deduct(ctx context.Context, productID domain.ProductID, amount int) (domain.ProductStock, error) {
	return s.opts.observe(ctx, "deduct", productID, amount, func(ctx context.Context) (domain.ProductStock, error) {
		if err := productID.Validate(); err != nil {
			return domain.ProductStock{}, err
		}
		if amount <= 0 {
			return domain.ProductStock{}, domain.ErrInvalidAmount
		}

		saved, err := s.executor.execute(ctx, "deduct", productID, func(current domain.ProductStock, now time.Time) (domain.ProductStock, error) {
			return current.Deduct(amount, now)
		})
		if err != nil {
			return domain.ProductStock{}, err
		}

		s.opts.Logger.Info("stock deducted",
			zap.Int64("product_id", int64(productID)),
			zap.Int("amount", amount),
			zap.Int("quantity", saved.Quantity()),
			zap.Int64("version", saved.Version()))

		s.opts.publish(ctx, domain.StockOperationDeduct, saved)
		return saved, nil
	})
}
