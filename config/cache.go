package config

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/studyos/aigateway"
)

// SnapshotCache serves routing configuration with a bounded staleness
// window, avoiding a store round trip per request while still reacting
// quickly to admin changes such as emergency key revocation. When the store
// is unreachable it falls back to the last good snapshot, and failing that
// to the built-in defaults.
type SnapshotCache struct {
	store     Store
	staleness time.Duration
	clock     clock.Clock
	logger    *zap.SugaredLogger

	mu        sync.RWMutex
	snapshot  *aigateway.Snapshot
	fetchedAt time.Time
}

func NewSnapshotCache(store Store, staleness time.Duration, clk clock.Clock, logger *zap.SugaredLogger) *SnapshotCache {
	return &SnapshotCache{
		store:     store,
		staleness: staleness,
		clock:     clk,
		logger:    logger,
	}
}

// Snapshot returns the current configuration. The result must be treated as
// read-only; all mutation goes through the store.
func (c *SnapshotCache) Snapshot(ctx context.Context) *aigateway.Snapshot {
	c.mu.RLock()
	fresh := c.snapshot != nil && c.clock.Now().Sub(c.fetchedAt) < c.staleness
	snapshot := c.snapshot
	c.mu.RUnlock()
	if fresh {
		return snapshot
	}
	return c.refresh(ctx)
}

// Invalidate forces the next Snapshot call to hit the store. Called after
// status transitions so revocations take effect within one request.
func (c *SnapshotCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchedAt = time.Time{}
}

func (c *SnapshotCache) refresh(ctx context.Context) *aigateway.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Another request may have refreshed while we waited for the lock.
	if c.snapshot != nil && c.clock.Now().Sub(c.fetchedAt) < c.staleness {
		return c.snapshot
	}

	snapshot, err := c.store.LoadSnapshot(ctx)
	if err != nil {
		c.logger.Warnw("Failed to load config snapshot, serving stale data", "error", err)
		if c.snapshot != nil {
			return c.snapshot
		}
		return DefaultSnapshot()
	}

	if isEmpty(snapshot) {
		// Bootstrap: an unseeded store serves the built-in defaults.
		snapshot = DefaultSnapshot()
	}

	c.snapshot = snapshot
	c.fetchedAt = c.clock.Now()
	return c.snapshot
}

func isEmpty(snapshot *aigateway.Snapshot) bool {
	return len(snapshot.Providers) == 0 && len(snapshot.Models) == 0 && len(snapshot.Routes) == 0
}
