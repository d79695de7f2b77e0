package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/inventory-control/internal/core/domain"
)

const stockKeyPrefix = "stock:"

// The existence check, the arithmetic and the write run as one script so no
// other client can interleave. An absent key returns nil and writes nothing.
var decrementStockScript = redis.NewScript(`
local key = KEYS[1]
local amount = tonumber(ARGV[1])

if not amount or amount <= 0 then
	return redis.error_reply('amount must be a positive integer')
end

if redis.call('EXISTS', key) == 0 then
	return false
end

return redis.call('DECRBY', key, amount)
`)

var incrementStockScript = redis.NewScript(`
local key = KEYS[1]
local amount = tonumber(ARGV[1])

if not amount or amount <= 0 then
	return redis.error_reply('amount must be a positive integer')
end

if redis.call('EXISTS', key) == 0 then
	return false
end

return redis.call('INCRBY', key, amount)
`)

// StockCounterAdapter keeps a per-stock counter in Redis. Decrements may
// drive the counter below zero; the relational stock enforces non-negativity.
type StockCounterAdapter struct {
	client redis.UniversalClient
}

func NewStockCounterAdapter(client redis.UniversalClient) *StockCounterAdapter {
	return &StockCounterAdapter{client: client}
}

func stockKey(id domain.ProductStockID) string {
	return stockKeyPrefix + strconv.FormatInt(int64(id), 10)
}

func (r *StockCounterAdapter) Initialize(ctx context.Context, id domain.ProductStockID, quantity int64) error {
	return r.client.Set(ctx, stockKey(id), quantity, 0).Err()
}

func (r *StockCounterAdapter) InitializeAll(ctx context.Context, quantities map[domain.ProductStockID]int64) error {
	if len(quantities) == 0 {
		return nil
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for id, quantity := range quantities {
			pipe.Set(ctx, stockKey(id), quantity, 0)
		}
		return nil
	})
	return err
}

func (r *StockCounterAdapter) Decrement(ctx context.Context, id domain.ProductStockID, amount int64) (int64, error) {
	return r.runDelta(ctx, decrementStockScript, id, amount)
}

func (r *StockCounterAdapter) Increment(ctx context.Context, id domain.ProductStockID, amount int64) (int64, error) {
	return r.runDelta(ctx, incrementStockScript, id, amount)
}

func (r *StockCounterAdapter) runDelta(ctx context.Context, script *redis.Script, id domain.ProductStockID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}

	result, err := script.Run(ctx, r.client, []string{stockKey(id)}, amount).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, domain.ErrCounterNotFound
	}
	if err != nil {
		return 0, err
	}
	return result, nil
}

func (r *StockCounterAdapter) GetStock(ctx context.Context, id domain.ProductStockID) (int64, error) {
	result, err := r.client.Get(ctx, stockKey(id)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, domain.ErrCounterNotFound
	}
	if err != nil {
		return 0, err
	}
	return result, nil
}

func (r *StockCounterAdapter) GetStocks(ctx context.Context, ids []domain.ProductStockID) (map[domain.ProductStockID]int64, error) {
	stocks := make(map[domain.ProductStockID]int64, len(ids))
	if len(ids) == 0 {
		return stocks, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = stockKey(id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse counter %s: %w", keys[i], err)
		}
		stocks[ids[i]] = n
	}
	return stocks, nil
}

func (r *StockCounterAdapter) HasStock(ctx context.Context, id domain.ProductStockID, amount int64) (bool, error) {
	current, err := r.GetStock(ctx, id)
	if errors.Is(err, domain.ErrCounterNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return current >= amount, nil
}

func (r *StockCounterAdapter) Exists(ctx context.Context, id domain.ProductStockID) (bool, error) {
	n, err := r.client.Exists(ctx, stockKey(id)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *StockCounterAdapter) Delete(ctx context.Context, id domain.ProductStockID) error {
	return r.client.Del(ctx, stockKey(id)).Err()
}
