package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/inventory-control/internal/core/domain"
	"github.com/rl1809/inventory-control/internal/port"
)

var tracer = otel.Tracer("github.com/rl1809/inventory-control/internal/core/service")

// Options carries the collaborators shared by all stock services. Zero values
// are replaced with no-op implementations.
type Options struct {
	Publisher port.StockEventPublisher
	Metrics   port.Metrics
	Logger    *zap.Logger
	Clock     func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Publisher == nil {
		o.Publisher = port.NopStockEventPublisher{}
	}
	if o.Metrics == nil {
		o.Metrics = port.NopMetrics{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

func (o Options) observe(
	ctx context.Context,
	operation string,
	productID domain.ProductID,
	amount int,
	fn func(ctx context.Context) (domain.ProductStock, error),
) (domain.ProductStock, error) {
	ctx, span := tracer.Start(ctx, "stock."+operation, trace.WithAttributes(
		attribute.Int64("stock.product_id", int64(productID)),
		attribute.Int("stock.amount", amount),
	))
	defer span.End()

	start := time.Now()
	stock, err := fn(ctx)
	o.Metrics.ObserveOperation(operation, resultOf(err), time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return stock, err
	}

	span.SetAttributes(
		attribute.Int("stock.quantity", stock.Quantity()),
		attribute.Int64("stock.version", stock.Version()),
	)
	span.SetStatus(codes.Ok, "")
	return stock, nil
}

// publish is best effort: the relational write has already committed.
func (o Options) publish(ctx context.Context, op domain.StockOperation, stock domain.ProductStock) {
	event := domain.NewStockChanged(uuid.NewString(), op, stock)
	if err := o.Publisher.Publish(ctx, event); err != nil {
		o.Logger.Warn("failed to publish stock change",
			zap.String("operation", string(op)),
			zap.Int64("product_id", int64(stock.ProductID())),
			zap.Int64("version", stock.Version()),
			zap.Error(err))
	}
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case domain.IsValidation(err):
		return "invalid"
	case domain.IsBusinessRule(err):
		return "rejected"
	case errors.Is(err, domain.ErrConcurrentModification):
		return "conflict"
	case errors.Is(err, domain.ErrLockNotAcquired):
		return "lock_timeout"
	case errors.Is(err, domain.ErrStockNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrDuplicateRequest):
		return "duplicate"
	default:
		return "error"
	}
}
