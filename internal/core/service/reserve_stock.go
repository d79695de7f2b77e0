package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rl1809/inventory-control/internal/core/domain"
	"github.com/rl1809/inventory-control/internal/port"
)

// ReservationRequest identifies one order line. Order lines carry both the
// product id and the id of its stock row.
type ReservationRequest struct {
	RequestID string
	ProductID domain.ProductID
	StockID   domain.ProductStockID
	Amount    int
}

func (r ReservationRequest) validate() error {
	if r.RequestID == "" {
		return domain.ErrInvalidRequestID
	}
	if err := r.ProductID.Validate(); err != nil {
		return err
	}
	if _, err := domain.NewProductStockID(int64(r.StockID)); err != nil {
		return err
	}
	if r.Amount <= 0 {
		return domain.ErrInvalidAmount
	}
	return nil
}

// ReserveStockService screens demand against the cache counter before
// deducting the authoritative stock. A cache decrement is rolled back whenever
// the request does not end in a committed deduction.
type ReserveStockService struct {
	idempotency port.IdempotencyStore
	counter     port.StockCounter
	deduct      *DeductStockService
	opts        Options
}

func NewReserveStockService(
	idempotency port.IdempotencyStore,
	counter port.StockCounter,
	deduct *DeductStockService,
	opts Options,
) *ReserveStockService {
	return &ReserveStockService{
		idempotency: idempotency,
		counter:     counter,
		deduct:      deduct,
		opts:        opts.withDefaults(),
	}
}

func (s *ReserveStockService) Reserve(ctx context.Context, req ReservationRequest) (domain.ProductStock, error) {
	return s.opts.observe(ctx, "reserve", req.ProductID, req.Amount, func(ctx context.Context) (domain.ProductStock, error) {
		if err := req.validate(); err != nil {
			return domain.ProductStock{}, err
		}

		claimKey := fmt.Sprintf("reservation:%s", req.RequestID)
		ok, err := s.idempotency.Claim(ctx, claimKey)
		if err != nil {
			return domain.ProductStock{}, fmt.Errorf("idempotency check failed: %w", err)
		}
		if !ok {
			return domain.ProductStock{}, domain.ErrDuplicateRequest
		}

		stock, err := s.reserve(ctx, req)
		if err != nil {
			s.releaseClaim(ctx, claimKey)
			return domain.ProductStock{}, err
		}
		return stock, nil
	})
}

func (s *ReserveStockService) reserve(ctx context.Context, req ReservationRequest) (domain.ProductStock, error) {
	amount := int64(req.Amount)
	cached := true

	remaining, err := s.counter.Decrement(ctx, req.StockID, amount)
	switch {
	case errors.Is(err, domain.ErrCounterNotFound):
		cached = false
	case err != nil:
		// the counter is advisory, an unreachable cache must not block sales
		s.opts.Logger.Warn("stock counter unavailable, using relational path",
			zap.Int64("stock_id", int64(req.StockID)),
			zap.Error(err))
		cached = false
	case remaining < 0:
		s.compensate(ctx, req)
		return domain.ProductStock{}, &domain.InsufficientStockError{
			ProductID: req.ProductID,
			Requested: req.Amount,
			Available: int(remaining + amount),
		}
	}

	stock, err := s.deduct.Deduct(ctx, req.ProductID, req.Amount)
	if err != nil {
		if cached {
			s.compensate(ctx, req)
		}
		return domain.ProductStock{}, err
	}

	if stock.ID() != req.StockID {
		s.opts.Logger.Warn("reservation stock id does not match product stock",
			zap.String("request_id", req.RequestID),
			zap.Int64("stock_id", int64(req.StockID)),
			zap.Int64("actual_stock_id", int64(stock.ID())))
	}
	return stock, nil
}

// compensate adds the decrement back. If a committed write reset the counter
// in between, the counter overshoots until the next resync.
func (s *ReserveStockService) compensate(ctx context.Context, req ReservationRequest) {
	s.opts.Metrics.IncCompensation("reserve")
	if _, err := s.counter.Increment(context.WithoutCancel(ctx), req.StockID, int64(req.Amount)); err != nil {
		s.opts.Logger.Error("CRITICAL counter rollback failed",
			zap.String("request_id", req.RequestID),
			zap.Int64("stock_id", int64(req.StockID)),
			zap.Int("amount", req.Amount),
			zap.Error(err))
		return
	}
	s.opts.Logger.Debug("rolled back counter decrement",
		zap.String("request_id", req.RequestID),
		zap.Int64("stock_id", int64(req.StockID)))
}

func (s *ReserveStockService) releaseClaim(ctx context.Context, key string) {
	if err := s.idempotency.Release(context.WithoutCancel(ctx), key); err != nil {
		s.opts.Logger.Warn("failed to release idempotency key", zap.String("key", key), zap.Error(err))
	}
}
