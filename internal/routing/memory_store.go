package routing

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store for tests and single-node setups.
type MemoryStore struct {
	mu           sync.RWMutex
	trafficRules []TrafficRule
	retryRules   []RetryRule
	health       map[string]HealthSnapshot
}

// NewMemoryStore creates an empty in-memory routing store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{health: make(map[string]HealthSnapshot)}
}

// SetTrafficRules replaces the traffic rule set.
func (s *MemoryStore) SetTrafficRules(rules []TrafficRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trafficRules = append([]TrafficRule(nil), rules...)
}

// SetRetryRules replaces the retry rule set.
func (s *MemoryStore) SetRetryRules(rules []RetryRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retryRules = append([]RetryRule(nil), rules...)
}

// ActiveTrafficRules returns all active traffic rules.
func (s *MemoryStore) ActiveTrafficRules(_ context.Context) ([]TrafficRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []TrafficRule
	for _, r := range s.trafficRules {
		if r.IsActive {
			active = append(active, r)
		}
	}
	return active, nil
}

// ActiveRetryRules returns all active retry rules in position order.
func (s *MemoryStore) ActiveRetryRules(_ context.Context) ([]RetryRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []RetryRule
	for _, r := range s.retryRules {
		if r.IsActive {
			active = append(active, r)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Position < active[j].Position
	})
	return active, nil
}

// SaveHealthSnapshot upserts one endpoint's observed health.
func (s *MemoryStore) SaveHealthSnapshot(_ context.Context, snap HealthSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health[snap.Endpoint] = snap
	return nil
}

// HealthSnapshots returns the stored snapshots, for tests.
func (s *MemoryStore) HealthSnapshots() map[string]HealthSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]HealthSnapshot, len(s.health))
	for k, v := range s.health {
		out[k] = v
	}
	return out
}

// Ensure MemoryStore implements Store interface.
var _ Store = (*MemoryStore)(nil)
