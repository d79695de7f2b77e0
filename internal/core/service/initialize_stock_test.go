package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rl1809/inventory-control/internal/core/domain"
)

func TestInitialize(t *testing.T) {
	repo := newMockStockRepo()
	pub := &recordingPublisher{}
	svc := NewInitializeStockService(repo, Options{Publisher: pub, Clock: fixedClock})

	stock, err := svc.Initialize(context.Background(), 100, 25)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stock.IsNew() || stock.Version() != 0 || stock.Quantity() != 25 {
		t.Errorf("unexpected stock: id=%d version=%d quantity=%d", stock.ID(), stock.Version(), stock.Quantity())
	}
	if !stock.CreatedAt().Equal(testNow) {
		t.Errorf("expected createdAt from clock, got %v", stock.CreatedAt())
	}

	events := pub.published()
	if len(events) != 1 || events[0].Operation != domain.StockOperationInitialize || events[0].StockID != stock.ID() {
		t.Errorf("unexpected events: %+v", events)
	}
}

func TestInitialize_Errors(t *testing.T) {
	repo := newMockStockRepo()
	repo.seed(100, 1)
	svc := NewInitializeStockService(repo, Options{})

	tests := []struct {
		name      string
		productID domain.ProductID
		quantity  int
		wantErr   error
	}{
		{"already exists", 100, 5, domain.ErrStockAlreadyExists},
		{"negative quantity", 200, -1, domain.ErrInvalidQuantity},
		{"invalid product", 0, 5, domain.ErrInvalidProductID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Initialize(context.Background(), tt.productID, tt.quantity); !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}
