package service

import (
	"context"
	"testing"
	"time"

	"github.com/rl1809/inventory-control/internal/core/domain"
)

func TestCounterSync_ApplySkipsStaleEvents(t *testing.T) {
	counter := newMockCounter()
	svc := NewCounterSyncService(newMockStockRepo(), counter, 0, nil)
	ctx := context.Background()

	events := []domain.StockChanged{
		{StockID: 1, Quantity: 10, Version: 0},
		{StockID: 1, Quantity: 7, Version: 2},
		{StockID: 1, Quantity: 9, Version: 1},
	}
	for _, e := range events {
		if err := svc.Apply(ctx, e); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}

	if v, _ := counter.value(1); v != 7 {
		t.Errorf("expected counter 7 from newest event, got %d", v)
	}
}

func TestCounterSync_RejectsMissingStockID(t *testing.T) {
	svc := NewCounterSyncService(newMockStockRepo(), newMockCounter(), 0, nil)
	if err := svc.Apply(context.Background(), domain.StockChanged{Quantity: 1}); err == nil {
		t.Error("expected error for event without stock id")
	}
}

func TestCounterSync_SyncAll(t *testing.T) {
	repo := newMockStockRepo()
	for p := domain.ProductID(1); p <= 5; p++ {
		repo.seed(p, int(p)*10)
	}
	counter := newMockCounter()
	counter.values[3] = -99
	svc := NewCounterSyncService(repo, counter, 2, nil)

	n, err := svc.SyncAll(context.Background())
	if err != nil {
		t.Fatalf("sync all: %v", err)
	}
	if n != 5 {
		t.Errorf("expected 5 counters, got %d", n)
	}
	for id := domain.ProductStockID(1); id <= 5; id++ {
		if v, _ := counter.value(id); v != int64(id)*10 {
			t.Errorf("stock %d: expected %d, got %d", id, int64(id)*10, v)
		}
	}
}

// scanHookRepo runs afterScan once a page has been read, before SyncAll
// writes it.
type scanHookRepo struct {
	*mockStockRepo
	afterScan func()
}

func (r *scanHookRepo) Scan(ctx context.Context, afterID domain.ProductStockID, limit int) ([]domain.ProductStock, error) {
	page, err := r.mockStockRepo.Scan(ctx, afterID, limit)
	if r.afterScan != nil {
		r.afterScan()
		r.afterScan = nil
	}
	return page, err
}

func TestCounterSync_SyncAllKeepsEventAppliedDuringScan(t *testing.T) {
	ctx := context.Background()
	base := newMockStockRepo()
	base.seed(1, 10)
	base.seed(2, 20)
	repo := &scanHookRepo{mockStockRepo: base}
	counter := newMockCounter()
	svc := NewCounterSyncService(repo, counter, 0, nil)

	// a deduct on stock 1 commits and is applied inline after the page was read
	repo.afterScan = func() {
		if err := svc.Apply(ctx, domain.StockChanged{StockID: 1, Quantity: 7, Version: 1}); err != nil {
			t.Errorf("apply: %v", err)
		}
	}

	n, err := svc.SyncAll(ctx)
	if err != nil {
		t.Fatalf("sync all: %v", err)
	}
	if n != 1 {
		t.Errorf("expected only stock 2 written, got %d", n)
	}
	if v, _ := counter.value(1); v != 7 {
		t.Errorf("stock 1: scanned snapshot overwrote newer event, got %d", v)
	}
	if v, _ := counter.value(2); v != 20 {
		t.Errorf("stock 2: expected 20, got %d", v)
	}

	// the watermark must still be at version 1
	if err := svc.Apply(ctx, domain.StockChanged{StockID: 1, Quantity: 10, Version: 0}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if v, _ := counter.value(1); v != 7 {
		t.Errorf("stock 1: stale event applied after sync, got %d", v)
	}
}

func TestCounterSync_SyncOne(t *testing.T) {
	repo := newMockStockRepo()
	stock := repo.seed(100, 12)
	counter := newMockCounter()
	svc := NewCounterSyncService(repo, counter, 0, nil)

	got, err := svc.SyncOne(context.Background(), 100)
	if err != nil || got.ID() != stock.ID() {
		t.Fatalf("sync one: %v", err)
	}
	if v, _ := counter.value(stock.ID()); v != 12 {
		t.Errorf("expected 12, got %d", v)
	}
}

func TestCounterSync_InlinePublisherFollowsWrites(t *testing.T) {
	repo := newMockStockRepo()
	counter := newMockCounter()
	syncer := NewCounterSyncService(repo, counter, 0, nil)
	opts := Options{Publisher: syncer}

	ctx := context.Background()
	stock, err := NewInitializeStockService(repo, opts).Initialize(ctx, 100, 10)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if _, err := NewDeductStockService(repo, repo, DefaultRetryPolicy(), opts).Deduct(ctx, 100, 4); err != nil {
		t.Fatalf("deduct: %v", err)
	}

	if v, _ := counter.value(stock.ID()); v != 6 {
		t.Errorf("expected counter to follow relational stock at 6, got %d", v)
	}
}

func TestCounterSync_RunResyncsUntilCancelled(t *testing.T) {
	repo := newMockStockRepo()
	stock := repo.seed(100, 3)
	counter := newMockCounter()
	svc := NewCounterSyncService(repo, counter, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ok := counter.value(stock.ID()); ok {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	cancel()
	<-done

	if v, ok := counter.value(stock.ID()); !ok || v != 3 {
		t.Errorf("expected counter 3, got %d (present=%v)", v, ok)
	}
}
