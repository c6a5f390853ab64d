package routing_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardroute/cardroute/internal/routing"
)

// flakyStore counts reads and fails on demand.
type flakyStore struct {
	*routing.MemoryStore
	trafficReads int
	retryReads   int
	failing      bool
}

func (s *flakyStore) ActiveTrafficRules(ctx context.Context) ([]routing.TrafficRule, error) {
	s.trafficReads++
	if s.failing {
		return nil, errors.New("store unavailable")
	}
	return s.MemoryStore.ActiveTrafficRules(ctx)
}

func (s *flakyStore) ActiveRetryRules(ctx context.Context) ([]routing.RetryRule, error) {
	s.retryReads++
	if s.failing {
		return nil, errors.New("store unavailable")
	}
	return s.MemoryStore.ActiveRetryRules(ctx)
}

func newFlakyStore() *flakyStore {
	inner := routing.NewMemoryStore()
	inner.SetTrafficRules([]routing.TrafficRule{
		{ID: "tr_1", PSP: "stripe", Weight: 100, IsActive: true},
	})
	inner.SetRetryRules([]routing.RetryRule{
		{ID: "rr_1", SourcePSP: "stripe", TargetPSP: "adyen", MaxRetries: 2, Position: 1, IsActive: true},
	})
	return &flakyStore{MemoryStore: inner}
}

func TestCachedStore_CachesWithinTTL(t *testing.T) {
	inner := newFlakyStore()
	cached := routing.NewCachedStore(routing.CachedStoreConfig{
		Inner:    inner,
		Logger:   zerolog.New(io.Discard),
		CacheTTL: time.Minute,
	})

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		rules, err := cached.ActiveTrafficRules(ctx)
		require.NoError(t, err)
		require.Len(t, rules, 1)
		assert.Equal(t, "stripe", rules[0].PSP)
	}

	assert.Equal(t, 1, inner.trafficReads)
}

func TestCachedStore_RefreshesAfterExpiry(t *testing.T) {
	inner := newFlakyStore()
	cached := routing.NewCachedStore(routing.CachedStoreConfig{
		Inner:    inner,
		Logger:   zerolog.New(io.Discard),
		CacheTTL: time.Nanosecond,
	})

	ctx := context.Background()
	_, err := cached.ActiveRetryRules(ctx)
	require.NoError(t, err)

	time.Sleep(time.Millisecond)

	_, err = cached.ActiveRetryRules(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.retryReads)
}

func TestCachedStore_ServesStaleOnError(t *testing.T) {
	inner := newFlakyStore()
	cached := routing.NewCachedStore(routing.CachedStoreConfig{
		Inner:           inner,
		Logger:          zerolog.New(io.Discard),
		CacheTTL:        time.Nanosecond,
		StaleIfErrorTTL: time.Minute,
	})

	ctx := context.Background()
	rules, err := cached.ActiveTrafficRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)

	// Store goes down; the cached rules are expired but inside the
	// stale-if-error window.
	inner.failing = true
	time.Sleep(time.Millisecond)

	rules, err = cached.ActiveTrafficRules(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tr_1", rules[0].ID)
}

func TestCachedStore_ErrorWithoutCacheSurfaces(t *testing.T) {
	inner := newFlakyStore()
	inner.failing = true

	cached := routing.NewCachedStore(routing.CachedStoreConfig{
		Inner:  inner,
		Logger: zerolog.New(io.Discard),
	})

	_, err := cached.ActiveTrafficRules(context.Background())
	assert.Error(t, err)
}

type countingCacheMetrics struct {
	hits   int
	misses int
}

func (m *countingCacheMetrics) RecordCacheHit(_, _ string)  { m.hits++ }
func (m *countingCacheMetrics) RecordCacheMiss(_, _ string) { m.misses++ }

func TestCachedStore_RecordsHitsAndMisses(t *testing.T) {
	inner := newFlakyStore()
	metrics := &countingCacheMetrics{}
	cached := routing.NewCachedStore(routing.CachedStoreConfig{
		Inner:    inner,
		Metrics:  metrics,
		Logger:   zerolog.New(io.Discard),
		CacheTTL: time.Minute,
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := cached.ActiveTrafficRules(ctx)
		require.NoError(t, err)
	}

	assert.Equal(t, 1, metrics.misses, "only the first read goes to the store")
	assert.Equal(t, 2, metrics.hits)
}

func TestCachedStore_InvalidateForcesRefresh(t *testing.T) {
	inner := newFlakyStore()
	cached := routing.NewCachedStore(routing.CachedStoreConfig{
		Inner:    inner,
		Logger:   zerolog.New(io.Discard),
		CacheTTL: time.Minute,
	})

	ctx := context.Background()
	_, err := cached.ActiveTrafficRules(ctx)
	require.NoError(t, err)

	cached.Invalidate()

	_, err = cached.ActiveTrafficRules(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.trafficReads)
}
