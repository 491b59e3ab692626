package config

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/studyos/aigateway"
)

// countingStore wraps a Store and counts snapshot loads, optionally failing.
type countingStore struct {
	Store

	mu    sync.Mutex
	loads int
	fail  error
}

func (s *countingStore) LoadSnapshot(ctx context.Context) (*aigateway.Snapshot, error) {
	s.mu.Lock()
	s.loads++
	fail := s.fail
	s.mu.Unlock()
	if fail != nil {
		return nil, fail
	}
	return s.Store.LoadSnapshot(ctx)
}

func (s *countingStore) loadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

func (s *countingStore) setFail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

func TestSnapshotCache(t *testing.T) {
	t.Run("serves cached snapshot within the staleness window", func(t *testing.T) {
		store := &countingStore{Store: NewMemoryStore(storeSnapshot())}
		mockClock := clock.NewMock()
		cache := NewSnapshotCache(store, time.Second, mockClock, zaptest.NewLogger(t).Sugar())

		first := cache.Snapshot(context.Background())
		mockClock.Add(500 * time.Millisecond)
		second := cache.Snapshot(context.Background())

		assert.Same(t, first, second)
		assert.Equal(t, 1, store.loadCount())
	})

	t.Run("refreshes once the window expires", func(t *testing.T) {
		store := &countingStore{Store: NewMemoryStore(storeSnapshot())}
		mockClock := clock.NewMock()
		cache := NewSnapshotCache(store, time.Second, mockClock, zaptest.NewLogger(t).Sugar())

		cache.Snapshot(context.Background())
		mockClock.Add(2 * time.Second)
		cache.Snapshot(context.Background())

		assert.Equal(t, 2, store.loadCount())
	})

	t.Run("invalidate forces an immediate reload", func(t *testing.T) {
		memory := NewMemoryStore(storeSnapshot())
		store := &countingStore{Store: memory}
		mockClock := clock.NewMock()
		cache := NewSnapshotCache(store, time.Hour, mockClock, zaptest.NewLogger(t).Sugar())

		cache.Snapshot(context.Background())
		require.NoError(t, memory.UpdateKeyStatus(context.Background(), "groq-k1", aigateway.KeyRevoked))
		cache.Invalidate()

		snapshot := cache.Snapshot(context.Background())
		assert.Equal(t, aigateway.KeyRevoked, snapshot.Keys[0].Status)
		assert.Equal(t, 2, store.loadCount())
	})

	t.Run("store failure falls back to the last good snapshot", func(t *testing.T) {
		store := &countingStore{Store: NewMemoryStore(storeSnapshot())}
		mockClock := clock.NewMock()
		cache := NewSnapshotCache(store, time.Second, mockClock, zaptest.NewLogger(t).Sugar())

		good := cache.Snapshot(context.Background())
		store.setFail(errors.New("connection refused"))
		mockClock.Add(2 * time.Second)

		stale := cache.Snapshot(context.Background())
		assert.Same(t, good, stale)
	})

	t.Run("store failure before any load serves the defaults", func(t *testing.T) {
		store := &countingStore{Store: NewMemoryStore(nil)}
		store.setFail(errors.New("connection refused"))
		cache := NewSnapshotCache(store, time.Second, clock.NewMock(), zaptest.NewLogger(t).Sugar())

		snapshot := cache.Snapshot(context.Background())
		require.NotNil(t, snapshot)
		assert.NotEmpty(t, snapshot.Routes)
	})

	t.Run("empty store bootstraps the defaults", func(t *testing.T) {
		cache := NewSnapshotCache(NewMemoryStore(nil), time.Second, clock.NewMock(), zaptest.NewLogger(t).Sugar())

		snapshot := cache.Snapshot(context.Background())
		assert.NotEmpty(t, snapshot.Providers)
		assert.NotEmpty(t, snapshot.Models)
		_, ok := snapshot.RouteForTask(aigateway.TaskChat)
		assert.True(t, ok)
	})
}
