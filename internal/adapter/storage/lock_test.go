package storage

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-zookeeper/zk"

	"github.com/rl1809/inventory-control/internal/port"
)

func TestRedisLock_MutualExclusion(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	first := NewRedisLock(client, 5*time.Millisecond)
	second := NewRedisLock(client, 5*time.Millisecond)

	release, ok, err := first.TryLock(ctx, "lock:stock:1", time.Second, 10*time.Second)
	if err != nil || !ok {
		t.Fatalf("first acquire: %v (%v)", ok, err)
	}
	if ttl := mr.TTL("lock:stock:1"); ttl != 10*time.Second {
		t.Errorf("expected lease 10s, got %s", ttl)
	}

	start := time.Now()
	_, ok, err = second.TryLock(ctx, "lock:stock:1", 50*time.Millisecond, 10*time.Second)
	if err != nil || ok {
		t.Fatalf("second acquire: expected timeout, got %v (%v)", ok, err)
	}
	if waited := time.Since(start); waited < 50*time.Millisecond {
		t.Errorf("expected to wait at least 50ms, waited %s", waited)
	}

	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	_, ok, err = second.TryLock(ctx, "lock:stock:1", 50*time.Millisecond, 10*time.Second)
	if err != nil || !ok {
		t.Fatalf("acquire after release: %v (%v)", ok, err)
	}
}

func TestRedisLock_ExpiredHolderCannotReleaseSuccessor(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	first := NewRedisLock(client, 0)
	second := NewRedisLock(client, 0)

	releaseFirst, _, _ := first.TryLock(ctx, "lock:stock:2", 0, time.Second)
	mr.FastForward(2 * time.Second)

	_, ok, err := second.TryLock(ctx, "lock:stock:2", 0, time.Second)
	if err != nil || !ok {
		t.Fatalf("expected acquire after lease expiry, got %v (%v)", ok, err)
	}

	if err := releaseFirst(ctx); !errors.Is(err, ErrLockNotHeld) {
		t.Fatalf("expected ErrLockNotHeld, got %v", err)
	}
	if !mr.Exists("lock:stock:2") {
		t.Error("successor's lock was released")
	}
}

// One instance serves every request in the server, so two acquisitions of the
// same key on it must not share ownership.
func TestRedisLock_StaleReleaseOnSharedInstance(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	lock := NewRedisLock(client, 0)

	releaseA, ok, err := lock.TryLock(ctx, "lock:stock:3", 0, time.Second)
	if err != nil || !ok {
		t.Fatalf("A acquire: %v (%v)", ok, err)
	}
	mr.FastForward(2 * time.Second)

	releaseB, ok, err := lock.TryLock(ctx, "lock:stock:3", 0, time.Minute)
	if err != nil || !ok {
		t.Fatalf("B acquire: %v (%v)", ok, err)
	}

	if err := releaseA(ctx); !errors.Is(err, ErrLockNotHeld) {
		t.Fatalf("stale release: expected ErrLockNotHeld, got %v", err)
	}
	if !mr.Exists("lock:stock:3") {
		t.Fatal("stale release removed the current holder's key")
	}
	if _, ok, _ := NewRedisLock(client, 0).TryLock(ctx, "lock:stock:3", 0, time.Minute); ok {
		t.Fatal("another caller acquired while B still holds the lock")
	}

	if err := releaseB(ctx); err != nil {
		t.Fatalf("B release: %v", err)
	}
	if mr.Exists("lock:stock:3") {
		t.Error("expected key removed after B released")
	}
}

func TestRedisLock_RejectsZeroLease(t *testing.T) {
	_, client := newTestRedis(t)
	if _, _, err := NewRedisLock(client, 0).TryLock(context.Background(), "k", time.Second, 0); err == nil {
		t.Error("expected error for zero lease")
	}
}

func TestLocalLock_WaitsForRelease(t *testing.T) {
	ctx := context.Background()
	lock := NewLocalLock()

	releaseFirst, ok, _ := lock.TryLock(ctx, "k", 0, time.Minute)
	if !ok {
		t.Fatal("expected first acquire")
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		releaseFirst(ctx)
	}()

	releaseSecond, ok, err := lock.TryLock(ctx, "k", time.Second, time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected acquire once released, got %v (%v)", ok, err)
	}
	releaseSecond(ctx)
}

func TestLocalLock_Timeout(t *testing.T) {
	ctx := context.Background()
	lock := NewLocalLock()
	lock.TryLock(ctx, "k", 0, time.Minute)

	_, ok, err := lock.TryLock(ctx, "k", 20*time.Millisecond, time.Minute)
	if err != nil || ok {
		t.Fatalf("expected timeout, got %v (%v)", ok, err)
	}

	if _, ok, _ := lock.TryLock(ctx, "other", 0, time.Minute); !ok {
		t.Error("independent keys must not block each other")
	}
}

func TestLocalLock_LeaseExpiry(t *testing.T) {
	ctx := context.Background()
	lock := NewLocalLock()
	lock.TryLock(ctx, "k", 0, 10*time.Millisecond)

	_, ok, err := lock.TryLock(ctx, "k", time.Second, time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected acquire after lease expiry, got %v (%v)", ok, err)
	}
}

func TestLocalLock_StaleReleaseKeepsSuccessor(t *testing.T) {
	ctx := context.Background()
	lock := NewLocalLock()

	releaseA, _, _ := lock.TryLock(ctx, "k", 0, 10*time.Millisecond)
	releaseB, ok, err := lock.TryLock(ctx, "k", time.Second, time.Minute)
	if err != nil || !ok {
		t.Fatalf("B acquire: %v (%v)", ok, err)
	}

	if err := releaseA(ctx); !errors.Is(err, ErrLockNotHeld) {
		t.Fatalf("stale release: expected ErrLockNotHeld, got %v", err)
	}
	if _, ok, _ := lock.TryLock(ctx, "k", 0, time.Minute); ok {
		t.Fatal("acquired while B still holds the lock")
	}

	if err := releaseB(ctx); err != nil {
		t.Fatalf("B release: %v", err)
	}
	if err := releaseB(ctx); !errors.Is(err, ErrLockNotHeld) {
		t.Errorf("second release: expected ErrLockNotHeld, got %v", err)
	}
}

func TestLocalLock_ContextCancel(t *testing.T) {
	lock := NewLocalLock()
	lock.TryLock(context.Background(), "k", 0, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := lock.TryLock(ctx, "k", time.Second, time.Minute); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestLocks_SerializeCriticalSection(t *testing.T) {
	_, client := newTestRedis(t)
	locks := map[string]port.DistributedLock{
		"local": NewLocalLock(),
		"redis": NewRedisLock(client, time.Millisecond),
	}

	for name, lock := range locks {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				inside  int
				maxSeen int
			)
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					release, ok, err := lock.TryLock(ctx, "critical", 5*time.Second, 10*time.Second)
					if err != nil || !ok {
						t.Errorf("acquire: %v (%v)", ok, err)
						return
					}
					mu.Lock()
					inside++
					maxSeen = max(maxSeen, inside)
					mu.Unlock()

					time.Sleep(2 * time.Millisecond)

					mu.Lock()
					inside--
					mu.Unlock()
					release(ctx)
				}()
			}
			wg.Wait()

			if maxSeen != 1 {
				t.Errorf("expected at most one holder, saw %d", maxSeen)
			}
		})
	}
}

func TestZookeeperLock_RejectsLeaseShorterThanSession(t *testing.T) {
	lock := NewZookeeperLock(nil, 10*time.Second)
	for _, lease := range []time.Duration{0, time.Second, 10*time.Second - time.Millisecond} {
		if _, ok, err := lock.TryLock(context.Background(), "k", time.Second, lease); err == nil || ok {
			t.Errorf("lease %s: expected rejection, got %v (%v)", lease, ok, err)
		}
	}
}

func TestZookeeperLock(t *testing.T) {
	servers := os.Getenv("ZK_SERVERS")
	if servers == "" {
		t.Skip("ZK_SERVERS not set")
	}

	const session = 4 * time.Second
	conn, _, err := zk.Connect(strings.Split(servers, ","), session)
	if err != nil {
		t.Skipf("ZooKeeper not available: %v", err)
	}
	defer conn.Close()

	ctx := context.Background()
	first := NewZookeeperLock(conn, session)
	second := NewZookeeperLock(conn, session)

	release, ok, err := first.TryLock(ctx, "lock:stock:zk-test", time.Second, session)
	if err != nil || !ok {
		t.Fatalf("first acquire: %v (%v)", ok, err)
	}

	_, ok, err = second.TryLock(ctx, "lock:stock:zk-test", 100*time.Millisecond, session)
	if err != nil || ok {
		t.Fatalf("expected timeout, got %v (%v)", ok, err)
	}

	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}

	// never released: the lease must hand the lock over
	stale, ok, err := first.TryLock(ctx, "lock:stock:zk-test", time.Second, session)
	if err != nil || !ok {
		t.Fatalf("re-acquire: %v (%v)", ok, err)
	}
	next, ok, err := second.TryLock(ctx, "lock:stock:zk-test", 3*session, session)
	if err != nil || !ok {
		t.Fatalf("acquire after lease: %v (%v)", ok, err)
	}
	if err := stale(ctx); !errors.Is(err, ErrLockNotHeld) {
		t.Errorf("stale release: expected ErrLockNotHeld, got %v", err)
	}
	next(ctx)
}

func TestSequenceOf(t *testing.T) {
	names := []string{
		"_c_0f7e-lock-0000000012",
		"_c_a1b2-lock-0000000003",
		"_c_ffff-lock-0000000007",
	}
	if !(sequenceOf(names[1]) < sequenceOf(names[2]) && sequenceOf(names[2]) < sequenceOf(names[0])) {
		t.Error("sequence ordering must ignore the protected prefix")
	}
	if got := sanitizeZKName("a/b/c"); got != "a_b_c" {
		t.Errorf("expected a_b_c, got %s", got)
	}
}
