package routing

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// CacheMetrics records rule-cache effectiveness.
type CacheMetrics interface {
	RecordCacheHit(provider, operation string)
	RecordCacheMiss(provider, operation string)
}

// CachedStoreConfig holds configuration for the caching store wrapper.
type CachedStoreConfig struct {
	// Inner is the backing store (required).
	Inner Store

	// Metrics counts cache hits and misses (optional).
	Metrics CacheMetrics

	// Logger for cache operations.
	Logger zerolog.Logger

	// CacheTTL is how long a fetched rule set stays fresh (default: 30 seconds).
	CacheTTL time.Duration

	// StaleIfErrorTTL allows serving stale rules on store errors (default: 5 minutes).
	StaleIfErrorTTL time.Duration
}

// CachedStore caches rule reads in front of another Store. Routing rules
// change rarely but are read on every payment, so a short TTL takes the
// store off the hot path; when the store errors, rules within the
// stale-if-error window keep serving so payments continue.
type CachedStore struct {
	inner           Store
	metrics         CacheMetrics
	logger          zerolog.Logger
	cacheTTL        time.Duration
	staleIfErrorTTL time.Duration

	mu      sync.RWMutex
	traffic cachedRuleSet[TrafficRule]
	retry   cachedRuleSet[RetryRule]
}

type cachedRuleSet[T any] struct {
	rules     []T
	fetchedAt time.Time
	expiresAt time.Time
}

func (c cachedRuleSet[T]) fresh(now time.Time) bool {
	return !c.fetchedAt.IsZero() && now.Before(c.expiresAt)
}

func (c cachedRuleSet[T]) usableOnError(now time.Time, window time.Duration) bool {
	return !c.fetchedAt.IsZero() && now.Before(c.fetchedAt.Add(window))
}

// NewCachedStore creates a caching store wrapper.
func NewCachedStore(cfg CachedStoreConfig) *CachedStore {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 30 * time.Second
	}

	staleIfErrorTTL := cfg.StaleIfErrorTTL
	if staleIfErrorTTL == 0 {
		staleIfErrorTTL = 5 * time.Minute
	}

	return &CachedStore{
		inner:           cfg.Inner,
		metrics:         cfg.Metrics,
		logger:          cfg.Logger,
		cacheTTL:        cacheTTL,
		staleIfErrorTTL: staleIfErrorTTL,
	}
}

func (s *CachedStore) recordHit(operation string) {
	if s.metrics != nil {
		s.metrics.RecordCacheHit("routing", operation)
	}
}

func (s *CachedStore) recordMiss(operation string) {
	if s.metrics != nil {
		s.metrics.RecordCacheMiss("routing", operation)
	}
}

var _ Store = (*CachedStore)(nil)

// ActiveTrafficRules returns the cached traffic rules, refreshing them
// from the inner store when expired.
func (s *CachedStore) ActiveTrafficRules(ctx context.Context) ([]TrafficRule, error) {
	s.mu.RLock()
	if s.traffic.fresh(time.Now()) {
		rules := s.traffic.rules
		s.mu.RUnlock()
		s.recordHit("traffic_rules")
		return rules, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after taking the write lock (prevents thundering herd)
	now := time.Now()
	if s.traffic.fresh(now) {
		s.recordHit("traffic_rules")
		return s.traffic.rules, nil
	}

	s.recordMiss("traffic_rules")
	rules, err := s.inner.ActiveTrafficRules(ctx)
	if err != nil {
		if s.traffic.usableOnError(now, s.staleIfErrorTTL) {
			s.logger.Warn().
				Err(err).
				Time("fetched_at", s.traffic.fetchedAt).
				Msg("serving stale traffic rules due to store error")
			return s.traffic.rules, nil
		}
		return nil, err
	}

	s.traffic = cachedRuleSet[TrafficRule]{
		rules:     rules,
		fetchedAt: now,
		expiresAt: now.Add(s.cacheTTL),
	}
	return rules, nil
}

// ActiveRetryRules returns the cached retry rules, refreshing them from
// the inner store when expired.
func (s *CachedStore) ActiveRetryRules(ctx context.Context) ([]RetryRule, error) {
	s.mu.RLock()
	if s.retry.fresh(time.Now()) {
		rules := s.retry.rules
		s.mu.RUnlock()
		s.recordHit("retry_rules")
		return rules, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if s.retry.fresh(now) {
		s.recordHit("retry_rules")
		return s.retry.rules, nil
	}

	s.recordMiss("retry_rules")
	rules, err := s.inner.ActiveRetryRules(ctx)
	if err != nil {
		if s.retry.usableOnError(now, s.staleIfErrorTTL) {
			s.logger.Warn().
				Err(err).
				Time("fetched_at", s.retry.fetchedAt).
				Msg("serving stale retry rules due to store error")
			return s.retry.rules, nil
		}
		return nil, err
	}

	s.retry = cachedRuleSet[RetryRule]{
		rules:     rules,
		fetchedAt: now,
		expiresAt: now.Add(s.cacheTTL),
	}
	return rules, nil
}

// SaveHealthSnapshot writes through to the inner store.
func (s *CachedStore) SaveHealthSnapshot(ctx context.Context, snap HealthSnapshot) error {
	return s.inner.SaveHealthSnapshot(ctx, snap)
}

// Invalidate clears the cached rule sets.
func (s *CachedStore) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.traffic = cachedRuleSet[TrafficRule]{}
	s.retry = cachedRuleSet[RetryRule]{}
}
