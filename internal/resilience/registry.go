package resilience

import (
	"sort"
	"sync"
)

// Registry tracks one circuit breaker per endpoint key (a PSP name or a
// backend endpoint name). Breakers are created lazily on first observation
// and live for the process lifetime.
type Registry struct {
	mu       sync.RWMutex
	cfg      BreakerConfig
	breakers map[string]*Breaker
}

// NewRegistry creates a registry whose breakers use the given configuration.
func NewRegistry(cfg BreakerConfig) *Registry {
	return &Registry{
		cfg:      cfg,
		breakers: make(map[string]*Breaker),
	}
}

// Breaker returns the breaker for the given key, creating it if needed.
func (r *Registry) Breaker(key string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[key]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[key]; ok {
		return b
	}
	b = NewBreaker(r.cfg)
	r.breakers[key] = b
	return b
}

// IsOpen reports whether the breaker for key currently rejects traffic.
func (r *Registry) IsOpen(key string) bool {
	return r.Breaker(key).IsOpen()
}

// RecordSuccess records a successful call against key.
func (r *Registry) RecordSuccess(key string) {
	r.Breaker(key).RecordSuccess()
}

// RecordFailure records a failed call against key.
func (r *Registry) RecordFailure(key string) {
	r.Breaker(key).RecordFailure()
}

// EndpointSnapshot pairs an endpoint key with its breaker snapshot.
type EndpointSnapshot struct {
	Endpoint string   `json:"endpoint"`
	Breaker  Snapshot `json:"breaker"`
}

// Snapshots returns breaker snapshots for all observed endpoints, sorted by
// endpoint key for stable output.
func (r *Registry) Snapshots() []EndpointSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snaps := make([]EndpointSnapshot, 0, len(r.breakers))
	for key, b := range r.breakers {
		snaps = append(snaps, EndpointSnapshot{
			Endpoint: key,
			Breaker:  b.Snapshot(),
		})
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Endpoint < snaps[j].Endpoint })
	return snaps
}
