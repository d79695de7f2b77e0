package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/inventory-control/internal/core/domain"
	"github.com/rl1809/inventory-control/internal/port"
)

const (
	DefaultLockWait  = 3 * time.Second
	DefaultLockLease = 10 * time.Second
)

type LockPolicy struct {
	Wait  time.Duration
	Lease time.Duration
}

func DefaultLockPolicy() LockPolicy {
	return LockPolicy{Wait: DefaultLockWait, Lease: DefaultLockLease}
}

// StockLockKey names the lock guarding one product's stock.
func StockLockKey(productID domain.ProductID) string {
	return fmt.Sprintf("lock:stock:%d", productID)
}

// SetStockService applies administrative corrections under an exclusive
// distributed lock. It never falls back to optimistic retry.
type SetStockService struct {
	reader    port.StockReader
	persister port.StockPersister
	lock      port.DistributedLock
	policy    LockPolicy
	opts      Options
}

func NewSetStockService(
	reader port.StockReader,
	persister port.StockPersister,
	lock port.DistributedLock,
	policy LockPolicy,
	opts Options,
) *SetStockService {
	if policy.Wait <= 0 {
		policy.Wait = DefaultLockWait
	}
	if policy.Lease <= 0 {
		policy.Lease = DefaultLockLease
	}
	return &SetStockService{
		reader:    reader,
		persister: persister,
		lock:      lock,
		policy:    policy,
		opts:      opts.withDefaults(),
	}
}

func (s *SetStockService) SetQuantity(ctx context.Context, productID domain.ProductID, quantity int) (domain.ProductStock, error) {
	return s.opts.observe(ctx, "set", productID, quantity, func(ctx context.Context) (domain.ProductStock, error) {
		if err := productID.Validate(); err != nil {
			return domain.ProductStock{}, err
		}
		if _, err := domain.NewStockQuantity(quantity); err != nil {
			return domain.ProductStock{}, err
		}

		key := StockLockKey(productID)
		release, ok, err := s.lock.TryLock(ctx, key, s.policy.Wait, s.policy.Lease)
		if err != nil {
			return domain.ProductStock{}, fmt.Errorf("acquire stock lock: %w", err)
		}
		if !ok {
			s.opts.Metrics.IncLockFailure()
			s.opts.Logger.Warn("stock lock not acquired",
				zap.String("key", key),
				zap.Duration("wait", s.policy.Wait))
			return domain.ProductStock{}, &domain.LockAcquisitionError{Key: key, Wait: s.policy.Wait}
		}
		defer s.unlock(ctx, key, release)

		return s.setLocked(ctx, productID, quantity)
	})
}

func (s *SetStockService) setLocked(ctx context.Context, productID domain.ProductID, quantity int) (domain.ProductStock, error) {
	current, err := s.reader.FindByProductID(ctx, productID)
	if err != nil {
		return domain.ProductStock{}, err
	}

	next, err := current.SetQuantity(quantity, s.opts.Clock())
	if err != nil {
		return domain.ProductStock{}, err
	}

	saved, err := s.persister.Update(ctx, next)
	if errors.Is(err, domain.ErrVersionConflict) {
		// an optimistic writer committed between our read and write
		return domain.ProductStock{}, &domain.ConcurrentModificationError{
			ProductID: productID,
			Attempts:  1,
			Err:       err,
		}
	}
	if err != nil {
		return domain.ProductStock{}, err
	}

	s.opts.Logger.Info("stock quantity set",
		zap.Int64("product_id", int64(productID)),
		zap.Int("previous", current.Quantity()),
		zap.Int("quantity", saved.Quantity()),
		zap.Int64("version", saved.Version()))

	s.opts.publish(ctx, domain.StockOperationSet, saved)
	return saved, nil
}

func (s *SetStockService) unlock(ctx context.Context, key string, release port.ReleaseFunc) {
	if err := release(context.WithoutCancel(ctx)); err != nil {
		s.opts.Logger.Error("failed to release stock lock, lease will expire it",
			zap.String("key", key),
			zap.Duration("lease", s.policy.Lease),
			zap.Error(err))
	}
}
