package port

import (
	"context"
	"time"
)

// ReleaseFunc releases the single acquisition that returned it. Calling it
// after the lease expired must not release a later holder.
type ReleaseFunc func(ctx context.Context) error

// DistributedLock is an exclusive, named, leased lock.
type DistributedLock interface {
	// TryLock waits up to wait for the lock. A held lock expires after lease
	// even if release is never called. ok is false when wait elapsed.
	TryLock(ctx context.Context, key string, wait, lease time.Duration) (release ReleaseFunc, ok bool, err error)
}
