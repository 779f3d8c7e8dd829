// Package synccache remembers when the global identity was last reconciled,
// so the synchronizer can skip redundant directory calls. The memory is
// device-local and allowed to be stale; it is an optimization, not a
// correctness mechanism.
package synccache

import (
	"context"
	"strconv"
	"time"
)

// KV is the persistent key-value storage behind the cache. Implementations
// must survive process restarts but are scoped to one device.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

const keyPrefix = "identity_sync:"

type Cache struct {
	kv  KV
	ttl time.Duration
	now func() time.Time
}

// New creates a cache gating syncs to once per window.
func New(kv KV, window time.Duration) *Cache {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Cache{kv: kv, ttl: window, now: time.Now}
}

// ShouldSync reports whether a reconciliation is due for userID. Forced calls
// always sync. Missing, unreadable, or unparseable entries count as stale:
// an extra remote call is cheaper than a missed one.
func (c *Cache) ShouldSync(ctx context.Context, userID string, force bool) bool {
	if force {
		return true
	}
	value, ok, err := c.kv.Get(ctx, keyPrefix+userID)
	if err != nil || !ok {
		return true
	}
	lastMillis, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return true
	}
	elapsed := c.now().UnixMilli() - lastMillis
	return elapsed >= c.ttl.Milliseconds()
}

// MarkSynced records now as the last successful reconciliation for userID.
func (c *Cache) MarkSynced(ctx context.Context, userID string) error {
	return c.kv.Set(ctx, keyPrefix+userID, strconv.FormatInt(c.now().UnixMilli(), 10))
}
