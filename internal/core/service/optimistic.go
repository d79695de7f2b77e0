package service

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/inventory-control/internal/core/domain"
	"github.com/rl1809/inventory-control/internal/port"
)

const DefaultMaxAttempts = 3

// RetryPolicy bounds the optimistic read-compute-save loop by attempts.
// Backoff, when set, is the base of a jittered exponential delay between
// attempts; zero retries immediately.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: DefaultMaxAttempts}
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	if p.Backoff <= 0 {
		return 0
	}
	d := p.Backoff << (attempt - 1)
	return d + rand.N(p.Backoff)
}

type transition func(current domain.ProductStock, now time.Time) (domain.ProductStock, error)

type optimisticExecutor struct {
	reader    port.StockReader
	persister port.StockPersister
	policy    RetryPolicy
	opts      Options
}

func newOptimisticExecutor(reader port.StockReader, persister port.StockPersister, policy RetryPolicy, opts Options) optimisticExecutor {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultMaxAttempts
	}
	return optimisticExecutor{reader: reader, persister: persister, policy: policy, opts: opts}
}

// execute re-runs the whole read-compute-save sequence on a version conflict.
// Any other failure, including domain rule violations, aborts immediately.
func (e optimisticExecutor) execute(
	ctx context.Context,
	operation string,
	productID domain.ProductID,
	apply transition,
) (domain.ProductStock, error) {
	var lastErr error

	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		current, err := e.reader.FindByProductID(ctx, productID)
		if err != nil {
			return domain.ProductStock{}, err
		}

		next, err := apply(current, e.opts.Clock())
		if err != nil {
			return domain.ProductStock{}, err
		}

		saved, err := e.persister.Update(ctx, next)
		if err == nil {
			return saved, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return domain.ProductStock{}, err
		}

		lastErr = err
		e.opts.Metrics.IncRetry(operation)
		e.opts.Logger.Debug("stock version conflict",
			zap.String("operation", operation),
			zap.Int64("product_id", int64(productID)),
			zap.Int64("version", current.Version()),
			zap.Int("attempt", attempt))

		if attempt < e.policy.MaxAttempts {
			if err := sleep(ctx, e.policy.delay(attempt)); err != nil {
				return domain.ProductStock{}, err
			}
		}
	}

	e.opts.Logger.Warn("stock retries exhausted",
		zap.String("operation", operation),
		zap.Int64("product_id", int64(productID)),
		zap.Int("attempts", e.policy.MaxAttempts))

	return domain.ProductStock{}, &domain.ConcurrentModificationError{
		ProductID: productID,
		Attempts:  e.policy.MaxAttempts,
		Err:       lastErr,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
