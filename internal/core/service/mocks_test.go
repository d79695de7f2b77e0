package service

import (
	"context"
	"sync"
	"time"

	"github.com/rl1809/inventory-control/internal/core/domain"
	"github.com/rl1809/inventory-control/internal/port"
)

var testNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func fixedClock() time.Time { return testNow }

// Mock StockRepository with version checking
type mockStockRepo struct {
	mu     sync.Mutex
	nextID domain.ProductStockID
	stocks map[domain.ProductID]domain.ProductStock

	// conflicts makes the next N updates fail as if another writer won
	conflicts   int
	findErr     error
	updateErr   error
	updateCalls int
}

func newMockStockRepo() *mockStockRepo {
	return &mockStockRepo{stocks: make(map[domain.ProductID]domain.ProductStock)}
}

func (m *mockStockRepo) seed(productID domain.ProductID, quantity int) domain.ProductStock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	s, err := domain.NewProductStock(productID, quantity, testNow)
	if err != nil {
		panic(err)
	}
	s = s.Persisted(m.nextID, 0)
	m.stocks[productID] = s
	return s
}

func (m *mockStockRepo) get(productID domain.ProductID) domain.ProductStock {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stocks[productID]
}

func (m *mockStockRepo) FindByProductID(_ context.Context, productID domain.ProductID) (domain.ProductStock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return domain.ProductStock{}, m.findErr
	}
	s, ok := m.stocks[productID]
	if !ok {
		return domain.ProductStock{}, domain.ErrStockNotFound
	}
	return s, nil
}

func (m *mockStockRepo) Persist(_ context.Context, stock domain.ProductStock) (domain.ProductStockID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stocks[stock.ProductID()]; ok {
		return 0, domain.ErrStockAlreadyExists
	}
	m.nextID++
	m.stocks[stock.ProductID()] = stock.Persisted(m.nextID, 0)
	return m.nextID, nil
}

func (m *mockStockRepo) Update(_ context.Context, stock domain.ProductStock) (domain.ProductStock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++

	if m.updateErr != nil {
		return domain.ProductStock{}, m.updateErr
	}

	current := m.stocks[stock.ProductID()]
	if m.conflicts > 0 {
		m.conflicts--
		m.stocks[stock.ProductID()] = current.Persisted(current.ID(), current.Version()+1)
		return domain.ProductStock{}, domain.ErrVersionConflict
	}
	if current.Version() != stock.Version() {
		return domain.ProductStock{}, domain.ErrVersionConflict
	}

	saved := stock.Persisted(stock.ID(), stock.Version()+1)
	m.stocks[stock.ProductID()] = saved
	return saved, nil
}

func (m *mockStockRepo) Scan(_ context.Context, afterID domain.ProductStockID, limit int) ([]domain.ProductStock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var page []domain.ProductStock
	for id := afterID + 1; id <= m.nextID && len(page) < limit; id++ {
		for _, s := range m.stocks {
			if s.ID() == id {
				page = append(page, s)
			}
		}
	}
	return page, nil
}

// Mock StockCounter
type mockCounter struct {
	mu         sync.Mutex
	values     map[domain.ProductStockID]int64
	err        error
	incErr     error
	increments int
}

func newMockCounter() *mockCounter {
	return &mockCounter{values: make(map[domain.ProductStockID]int64)}
}

func (m *mockCounter) Initialize(_ context.Context, id domain.ProductStockID, quantity int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.values[id] = quantity
	return nil
}

func (m *mockCounter) InitializeAll(ctx context.Context, quantities map[domain.ProductStockID]int64) error {
	for id, q := range quantities {
		if err := m.Initialize(ctx, id, q); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockCounter) Decrement(_ context.Context, id domain.ProductStockID, amount int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	v, ok := m.values[id]
	if !ok {
		return 0, domain.ErrCounterNotFound
	}
	m.values[id] = v - amount
	return v - amount, nil
}

func (m *mockCounter) Increment(_ context.Context, id domain.ProductStockID, amount int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.increments++
	if m.incErr != nil {
		return 0, m.incErr
	}
	v, ok := m.values[id]
	if !ok {
		return 0, domain.ErrCounterNotFound
	}
	m.values[id] = v + amount
	return v + amount, nil
}

func (m *mockCounter) GetStock(_ context.Context, id domain.ProductStockID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	v, ok := m.values[id]
	if !ok {
		return 0, domain.ErrCounterNotFound
	}
	return v, nil
}

func (m *mockCounter) GetStocks(ctx context.Context, ids []domain.ProductStockID) (map[domain.ProductStockID]int64, error) {
	out := make(map[domain.ProductStockID]int64)
	for _, id := range ids {
		if v, err := m.GetStock(ctx, id); err == nil {
			out[id] = v
		}
	}
	return out, nil
}

func (m *mockCounter) HasStock(ctx context.Context, id domain.ProductStockID, amount int64) (bool, error) {
	v, err := m.GetStock(ctx, id)
	if err != nil {
		return false, nil
	}
	return v >= amount, nil
}

func (m *mockCounter) Exists(_ context.Context, id domain.ProductStockID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.values[id]
	return ok, nil
}

func (m *mockCounter) Delete(_ context.Context, id domain.ProductStockID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, id)
	return nil
}

func (m *mockCounter) value(id domain.ProductStockID) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[id]
	return v, ok
}

// Mock IdempotencyStore
type mockIdempotency struct {
	mu       sync.Mutex
	keys     map[string]bool
	released []string
	err      error
}

func newMockIdempotency() *mockIdempotency {
	return &mockIdempotency{keys: make(map[string]bool)}
}

func (m *mockIdempotency) Claim(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *mockIdempotency) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	m.released = append(m.released, key)
	return nil
}

// Mock DistributedLock
type mockLock struct {
	mu        sync.Mutex
	held      map[string]bool
	deny      bool
	err       error
	acquired  []string
	unlocked  []string
	lastWait  time.Duration
	lastLease time.Duration
}

func newMockLock() *mockLock {
	return &mockLock{held: make(map[string]bool)}
}

func (m *mockLock) TryLock(_ context.Context, key string, wait, lease time.Duration) (port.ReleaseFunc, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastWait, m.lastLease = wait, lease
	if m.err != nil {
		return nil, false, m.err
	}
	if m.deny || m.held[key] {
		return nil, false, nil
	}
	m.held[key] = true
	m.acquired = append(m.acquired, key)
	return func(context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.held, key)
		m.unlocked = append(m.unlocked, key)
		return nil
	}, true, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.StockChanged
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.StockChanged) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) published() []domain.StockChanged {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.StockChanged(nil), p.events...)
}

type recordingMetrics struct {
	mu            sync.Mutex
	results       map[string]int
	retries       int
	lockFailures  int
	compensations int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{results: make(map[string]int)}
}

func (m *recordingMetrics) ObserveOperation(op, result string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[op+"/"+result]++
}

func (m *recordingMetrics) IncRetry(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries++
}

func (m *recordingMetrics) IncLockFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lockFailures++
}

func (m *recordingMetrics) IncCompensation(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.compensations++
}
