package port

import (
	"context"

	"github.com/rl1809/inventory-control/internal/core/domain"
)

type StockEventPublisher interface {
	Publish(ctx context.Context, event domain.StockChanged) error
}

type NopStockEventPublisher struct{}

func (NopStockEventPublisher) Publish(context.Context, domain.StockChanged) error { return nil }
