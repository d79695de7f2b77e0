package storage

import (
	"context"
	"sync"
	"time"

	"github.com/rl1809/inventory-control/internal/port"
)

type localHold struct {
	released chan struct{}
	expiry   *time.Timer
}

// LocalLock is an in-process stand-in for a distributed lock with the same
// wait and lease semantics. It only excludes goroutines of one process.
type LocalLock struct {
	mu    sync.Mutex
	holds map[string]*localHold
}

func NewLocalLock() *LocalLock {
	return &LocalLock{holds: make(map[string]*localHold)}
}

func (l *LocalLock) TryLock(ctx context.Context, key string, wait, lease time.Duration) (port.ReleaseFunc, bool, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		l.mu.Lock()
		current, held := l.holds[key]
		if !held {
			hold := &localHold{released: make(chan struct{})}
			hold.expiry = time.AfterFunc(lease, func() { l.release(key, hold) })
			l.holds[key] = hold
			l.mu.Unlock()
			return l.releaser(key, hold), true, nil
		}
		l.mu.Unlock()

		select {
		case <-current.released:
		case <-timer.C:
			return nil, false, nil
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
}

// releaser frees only hold. After the lease fired, or another holder took
// the key, it reports ErrLockNotHeld.
func (l *LocalLock) releaser(key string, hold *localHold) port.ReleaseFunc {
	return func(context.Context) error {
		hold.expiry.Stop()
		if !l.release(key, hold) {
			return ErrLockNotHeld
		}
		return nil
	}
}

func (l *LocalLock) release(key string, hold *localHold) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holds[key] != hold {
		return false
	}
	delete(l.holds, key)
	close(hold.released)
	return true
}
