package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/inventory-control/internal/port"
)

const defaultLockRetryInterval = 50 * time.Millisecond

// ErrLockNotHeld is returned by Unlock when this process does not own the
// lock, usually because its lease already expired.
var ErrLockNotHeld = errors.New("lock not held")

var releaseLockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisLock is a leased mutual exclusion lock on a Redis key. Each acquisition
// stores a random token that only its own release can delete, so a holder
// whose lease expired cannot release the lock of the next holder.
type RedisLock struct {
	client        redis.UniversalClient
	retryInterval time.Duration
}

func NewRedisLock(client redis.UniversalClient, retryInterval time.Duration) *RedisLock {
	if retryInterval <= 0 {
		retryInterval = defaultLockRetryInterval
	}
	return &RedisLock{client: client, retryInterval: retryInterval}
}

func (l *RedisLock) TryLock(ctx context.Context, key string, wait, lease time.Duration) (port.ReleaseFunc, bool, error) {
	if lease <= 0 {
		return nil, false, fmt.Errorf("lock %s: lease must be positive", key)
	}

	token := uuid.NewString()
	deadline := time.Now().Add(wait)

	for {
		ok, err := l.client.SetNX(ctx, key, token, lease).Result()
		if err != nil {
			return nil, false, err
		}
		if ok {
			return l.releaser(key, token), true, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, false, nil
		}
		if err := sleep(ctx, min(l.retryInterval, remaining)); err != nil {
			return nil, false, err
		}
	}
}

func (l *RedisLock) releaser(key, token string) port.ReleaseFunc {
	return func(ctx context.Context) error {
		released, err := releaseLockScript.Run(ctx, l.client, []string{key}, token).Int64()
		if err != nil {
			return err
		}
		if released == 0 {
			return ErrLockNotHeld
		}
		return nil
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
