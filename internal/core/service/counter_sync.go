package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/inventory-control/internal/core/domain"
	"github.com/rl1809/inventory-control/internal/port"
)

const defaultSyncBatchSize = 500

// CounterSyncService copies authoritative quantities from the relational store
// into the cache counter. It also serves as the inline StockEventPublisher.
type CounterSyncService struct {
	repo      port.StockRepository
	counter   port.StockCounter
	batchSize int
	logger    *zap.Logger

	mu       sync.Mutex
	versions map[domain.ProductStockID]int64
}

func NewCounterSyncService(repo port.StockRepository, counter port.StockCounter, batchSize int, logger *zap.Logger) *CounterSyncService {
	if batchSize <= 0 {
		batchSize = defaultSyncBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CounterSyncService{
		repo:      repo,
		counter:   counter,
		batchSize: batchSize,
		logger:    logger,
		versions:  make(map[domain.ProductStockID]int64),
	}
}

// Apply overwrites the counter with the quantity carried by event. Events
// older than one already applied for the same stock are skipped.
func (s *CounterSyncService) Apply(ctx context.Context, event domain.StockChanged) error {
	if event.StockID.IsZero() {
		return domain.ErrInvalidStockID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if last, ok := s.versions[event.StockID]; ok && event.Version < last {
		s.logger.Debug("skipping stale stock event",
			zap.String("event_id", event.EventID),
			zap.Int64("stock_id", int64(event.StockID)),
			zap.Int64("version", event.Version),
			zap.Int64("applied_version", last))
		return nil
	}

	if err := s.counter.Initialize(ctx, event.StockID, int64(event.Quantity)); err != nil {
		return fmt.Errorf("sync counter %d: %w", event.StockID, err)
	}
	s.versions[event.StockID] = event.Version
	return nil
}

func (s *CounterSyncService) Publish(ctx context.Context, event domain.StockChanged) error {
	return s.Apply(ctx, event)
}

// SyncOne refreshes the counter of a single product.
func (s *CounterSyncService) SyncOne(ctx context.Context, productID domain.ProductID) (domain.ProductStock, error) {
	stock, err := s.repo.FindByProductID(ctx, productID)
	if err != nil {
		return domain.ProductStock{}, err
	}
	if err := s.Apply(ctx, domain.NewStockChanged("", domain.StockOperationSet, stock)); err != nil {
		return domain.ProductStock{}, err
	}
	return stock, nil
}

// SyncAll pages through every stock row and overwrites the matching counters.
// It returns the number of counters written; rows superseded by a newer
// event during the scan are skipped.
func (s *CounterSyncService) SyncAll(ctx context.Context) (int, error) {
	var (
		after domain.ProductStockID
		total int
	)

	for {
		page, err := s.repo.Scan(ctx, after, s.batchSize)
		if err != nil {
			return total, fmt.Errorf("scan stocks after %d: %w", after, err)
		}
		if len(page) == 0 {
			break
		}

		written, err := s.applyPage(ctx, page)
		if err != nil {
			return total, err
		}

		total += written
		after = page[len(page)-1].ID()
		if len(page) < s.batchSize {
			break
		}
	}

	s.logger.Info("stock counters synchronized", zap.Int("count", total))
	return total, nil
}

// applyPage writes a scanned page under the watermark lock. Rows whose
// counter already reflects a newer version were applied after the scan and
// are left alone.
func (s *CounterSyncService) applyPage(ctx context.Context, page []domain.ProductStock) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make(map[domain.ProductStockID]int64, len(page))
	for _, stock := range page {
		if last, ok := s.versions[stock.ID()]; ok && last > stock.Version() {
			continue
		}
		batch[stock.ID()] = int64(stock.Quantity())
	}
	if len(batch) == 0 {
		return 0, nil
	}
	if err := s.counter.InitializeAll(ctx, batch); err != nil {
		return 0, fmt.Errorf("initialize counters: %w", err)
	}
	for _, stock := range page {
		if _, ok := batch[stock.ID()]; ok {
			s.versions[stock.ID()] = stock.Version()
		}
	}
	return len(batch), nil
}

// Run repeats SyncAll every interval until ctx is cancelled.
func (s *CounterSyncService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("counter resync worker started", zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("counter resync worker stopped")
			return
		case <-ticker.C:
			if _, err := s.SyncAll(ctx); err != nil {
				s.logger.Error("failed to resync stock counters", zap.Error(err))
			}
		}
	}
}
