package domain

import "time"

type StockOperation string

const (
	StockOperationInitialize StockOperation = "initialize"
	StockOperationDeduct     StockOperation = "deduct"
	StockOperationRestore    StockOperation = "restore"
	StockOperationSet        StockOperation = "set"
)

// StockChanged is emitted after a stock write has been committed to the
// relational store.
type StockChanged struct {
	EventID    string         `json:"event_id"`
	StockID    ProductStockID `json:"stock_id"`
	ProductID  ProductID      `json:"product_id"`
	Operation  StockOperation `json:"operation"`
	Quantity   int            `json:"quantity"`
	Version    int64          `json:"version"`
	OccurredAt time.Time      `json:"occurred_at"`
}

func NewStockChanged(eventID string, op StockOperation, s ProductStock) StockChanged {
	return StockChanged{
		EventID:    eventID,
		StockID:    s.ID(),
		ProductID:  s.ProductID(),
		Operation:  op,
		Quantity:   s.Quantity(),
		Version:    s.Version(),
		OccurredAt: s.UpdatedAt(),
	}
}
