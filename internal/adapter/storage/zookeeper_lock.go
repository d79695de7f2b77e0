package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"

	"github.com/rl1809/inventory-control/internal/port"
)

const (
	zkLockRoot   = "/inventory_locks"
	zkNodePrefix = "lock-"
	zkSeqLen     = 10
)

// ZookeeperLock queues contenders as ephemeral sequential nodes under
// /inventory_locks/<key>; the lowest sequence holds the lock. A holder's node
// is deleted when its lease fires. If the process dies first, the node lives
// until the session expires, so a lease shorter than the session timeout is
// rejected.
type ZookeeperLock struct {
	conn           *zk.Conn
	sessionTimeout time.Duration
}

func NewZookeeperLock(conn *zk.Conn, sessionTimeout time.Duration) *ZookeeperLock {
	return &ZookeeperLock{conn: conn, sessionTimeout: sessionTimeout}
}

func (l *ZookeeperLock) TryLock(ctx context.Context, key string, wait, lease time.Duration) (port.ReleaseFunc, bool, error) {
	if lease <= 0 || lease < l.sessionTimeout {
		return nil, false, fmt.Errorf("lock %s: lease %s must cover the zookeeper session timeout %s",
			key, lease, l.sessionTimeout)
	}

	lockPath := zkLockRoot + "/" + sanitizeZKName(key)
	if err := l.ensurePath(lockPath); err != nil {
		return nil, false, err
	}

	node, err := l.conn.CreateProtectedEphemeralSequential(lockPath+"/"+zkNodePrefix, nil, zk.WorldACL(zk.PermAll))
	if err != nil {
		return nil, false, fmt.Errorf("create sequential node: %w", err)
	}

	acquired, err := l.await(ctx, lockPath, node, wait)
	if err != nil || !acquired {
		if delErr := l.deleteNode(node); delErr != nil && !errors.Is(delErr, ErrLockNotHeld) {
			err = errors.Join(err, fmt.Errorf("abandon lock node: %w", delErr))
		}
		return nil, false, err
	}

	expiry := time.AfterFunc(lease, func() { l.deleteNode(node) })
	release := func(context.Context) error {
		expiry.Stop()
		return l.deleteNode(node)
	}
	return release, true, nil
}

func (l *ZookeeperLock) await(ctx context.Context, lockPath, node string, wait time.Duration) (bool, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	myName := strings.TrimPrefix(node, lockPath+"/")
	for {
		children, _, err := l.conn.Children(lockPath)
		if err != nil {
			return false, fmt.Errorf("list lock nodes: %w", err)
		}
		sort.Slice(children, func(i, j int) bool {
			return sequenceOf(children[i]) < sequenceOf(children[j])
		})

		idx := -1
		for i, child := range children {
			if child == myName {
				idx = i
				break
			}
		}
		switch {
		case idx < 0:
			return false, fmt.Errorf("lock node %s disappeared", node)
		case idx == 0:
			return true, nil
		}

		exists, _, events, err := l.conn.ExistsW(lockPath + "/" + children[idx-1])
		if err != nil {
			return false, fmt.Errorf("watch previous node: %w", err)
		}
		if !exists {
			continue
		}

		select {
		case <-events:
		case <-timer.C:
			return false, nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

// deleteNode removes one acquisition's node. Sequential names are never
// reused, so a stale delete cannot touch a later holder.
func (l *ZookeeperLock) deleteNode(node string) error {
	if err := l.conn.Delete(node, -1); err != nil {
		if errors.Is(err, zk.ErrNoNode) {
			return ErrLockNotHeld
		}
		return fmt.Errorf("delete lock node: %w", err)
	}
	return nil
}

func (l *ZookeeperLock) ensurePath(path string) error {
	for _, p := range []string{zkLockRoot, path} {
		_, err := l.conn.Create(p, nil, 0, zk.WorldACL(zk.PermAll))
		if err != nil && !errors.Is(err, zk.ErrNodeExists) {
			return fmt.Errorf("create lock path %s: %w", p, err)
		}
	}
	return nil
}

// sequenceOf extracts the zero-padded sequence suffix. Protected nodes carry a
// random prefix, so names cannot be sorted as a whole.
func sequenceOf(name string) string {
	if len(name) < zkSeqLen {
		return name
	}
	return name[len(name)-zkSeqLen:]
}

func sanitizeZKName(key string) string {
	return strings.ReplaceAll(key, "/", "_")
}
