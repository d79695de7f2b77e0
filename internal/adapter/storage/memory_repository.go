package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/rl1809/inventory-control/internal/core/domain"
)

// MemoryStockRepository is an in-process StockRepository with the same
// version-check semantics as the MySQL one. Used for local runs and tests.
type MemoryStockRepository struct {
	mu        sync.RWMutex
	nextID    domain.ProductStockID
	byID      map[domain.ProductStockID]domain.ProductStock
	byProduct map[domain.ProductID]domain.ProductStockID
}

func NewMemoryStockRepository() *MemoryStockRepository {
	return &MemoryStockRepository{
		byID:      make(map[domain.ProductStockID]domain.ProductStock),
		byProduct: make(map[domain.ProductID]domain.ProductStockID),
	}
}

func (m *MemoryStockRepository) FindByProductID(_ context.Context, productID domain.ProductID) (domain.ProductStock, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byProduct[productID]
	if !ok {
		return domain.ProductStock{}, domain.ErrStockNotFound
	}
	return m.byID[id], nil
}

func (m *MemoryStockRepository) Persist(_ context.Context, stock domain.ProductStock) (domain.ProductStockID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byProduct[stock.ProductID()]; ok {
		return 0, domain.ErrStockAlreadyExists
	}

	m.nextID++
	id := m.nextID
	m.byID[id] = stock.Persisted(id, 0)
	m.byProduct[stock.ProductID()] = id
	return id, nil
}

func (m *MemoryStockRepository) Update(_ context.Context, stock domain.ProductStock) (domain.ProductStock, error) {
	if stock.IsNew() {
		return domain.ProductStock{}, domain.ErrInvalidStockID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.byID[stock.ID()]
	if !ok || current.Version() != stock.Version() {
		return domain.ProductStock{}, domain.ErrVersionConflict
	}

	saved := stock.Persisted(stock.ID(), stock.Version()+1)
	m.byID[stock.ID()] = saved
	return saved, nil
}

func (m *MemoryStockRepository) Scan(_ context.Context, afterID domain.ProductStockID, limit int) ([]domain.ProductStock, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]domain.ProductStockID, 0, len(m.byID))
	for id := range m.byID {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	stocks := make([]domain.ProductStock, 0, len(ids))
	for _, id := range ids {
		stocks = append(stocks, m.byID[id])
	}
	return stocks, nil
}
