package resilience

import (
	"sort"
	"sync"
	"time"
)

// HealthStatus classifies observed endpoint health.
type HealthStatus string

// Health statuses.
const (
	StatusHealthy  HealthStatus = "healthy"
	StatusDegraded HealthStatus = "degraded"
	StatusDown     HealthStatus = "down"
)

// DefaultDegradedLatency is the latency above which a successful call marks
// an endpoint as degraded.
const DefaultDegradedLatency = 1 * time.Second

// ServiceHealth is the observed health of a single endpoint. It informs
// routing decisions indirectly (via ops snapshots and health-sweep writes);
// only the circuit breaker gates selection directly.
type ServiceHealth struct {
	Status      HealthStatus  `json:"status"`
	LatencyMS   int64         `json:"latency_ms"`
	LastCheckAt time.Time     `json:"last_check_at"`
	Latency     time.Duration `json:"-"`
}

// HealthTracker tracks ServiceHealth per endpoint key. Entries are created
// lazily on first observation.
type HealthTracker struct {
	mu              sync.RWMutex
	degradedLatency time.Duration
	endpoints       map[string]ServiceHealth

	now func() time.Time
}

// NewHealthTracker creates a health tracker. A zero degradedLatency uses
// DefaultDegradedLatency.
func NewHealthTracker(degradedLatency time.Duration) *HealthTracker {
	if degradedLatency <= 0 {
		degradedLatency = DefaultDegradedLatency
	}
	return &HealthTracker{
		degradedLatency: degradedLatency,
		endpoints:       make(map[string]ServiceHealth),
		now:             time.Now,
	}
}

// ObserveSuccess records a successful call and scores the endpoint healthy,
// or degraded when latency exceeds the degraded threshold.
func (t *HealthTracker) ObserveSuccess(key string, latency time.Duration) {
	status := StatusHealthy
	if latency > t.degradedLatency {
		status = StatusDegraded
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.endpoints[key] = ServiceHealth{
		Status:      status,
		LatencyMS:   latency.Milliseconds(),
		Latency:     latency,
		LastCheckAt: t.now(),
	}
}

// ObserveFailure marks the endpoint down.
func (t *HealthTracker) ObserveFailure(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev := t.endpoints[key]
	t.endpoints[key] = ServiceHealth{
		Status:      StatusDown,
		LatencyMS:   prev.LatencyMS,
		Latency:     prev.Latency,
		LastCheckAt: t.now(),
	}
}

// Health returns the health record for key and whether it has been observed.
func (t *HealthTracker) Health(key string) (ServiceHealth, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.endpoints[key]
	return h, ok
}

// HealthSnapshot pairs an endpoint key with its health record.
type HealthSnapshot struct {
	Endpoint string        `json:"endpoint"`
	Health   ServiceHealth `json:"health"`
}

// Snapshots returns health records for all observed endpoints, sorted by
// endpoint key.
func (t *HealthTracker) Snapshots() []HealthSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snaps := make([]HealthSnapshot, 0, len(t.endpoints))
	for key, h := range t.endpoints {
		snaps = append(snaps, HealthSnapshot{Endpoint: key, Health: h})
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Endpoint < snaps[j].Endpoint })
	return snaps
}
