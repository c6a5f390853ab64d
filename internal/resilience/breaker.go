// Package resilience provides per-endpoint circuit breakers and service
// health tracking shared by the routing selector, the orchestration engine,
// and the failover transport.
package resilience

import (
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

// Circuit breaker states.
const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Default breaker thresholds.
const (
	// DefaultFailureThreshold is the number of consecutive failures that
	// opens the circuit.
	DefaultFailureThreshold = 3

	// DefaultRecoveryTimeout is how long the circuit stays open before the
	// next check is allowed through as a probe.
	DefaultRecoveryTimeout = 30 * time.Second

	// DefaultSuccessThreshold is the number of successes required to close
	// a half-open circuit.
	DefaultSuccessThreshold = 2
)

// BreakerConfig holds configuration for a circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that opens the
	// circuit. Default: 3.
	FailureThreshold int

	// RecoveryTimeout is the open-state duration before a probe is allowed.
	// Default: 30 seconds.
	RecoveryTimeout time.Duration

	// SuccessThreshold is the success count that closes a half-open
	// circuit. Default: 2.
	SuccessThreshold int
}

// DefaultBreakerConfig returns the default breaker configuration.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: DefaultFailureThreshold,
		RecoveryTimeout:  DefaultRecoveryTimeout,
		SuccessThreshold: DefaultSuccessThreshold,
	}
}

// Breaker is a circuit breaker for a single endpoint.
//
// Outcomes are recorded explicitly via RecordSuccess and RecordFailure
// rather than by wrapping calls, because a payment attempt can complete at
// the HTTP level and still count as an endpoint failure (a processing error
// reported in the response body) or complete with a buyer-side decline that
// still marks the processor as reachable-but-failing.
type Breaker struct {
	mu  sync.Mutex
	cfg BreakerConfig

	state         State
	failures      int
	successCount  int
	lastFailureAt time.Time

	// now is injectable for tests.
	now func() time.Time
}

// NewBreaker creates a breaker with the given configuration.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = DefaultRecoveryTimeout
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = DefaultSuccessThreshold
	}

	return &Breaker{
		cfg:   cfg,
		state: StateClosed,
		now:   time.Now,
	}
}

// IsOpen reports whether the circuit currently rejects traffic.
//
// The open-to-half-open transition is evaluated lazily here: once the
// recovery timeout has elapsed the breaker moves to half-open and this call
// reports false, letting exactly that caller through as a probe.
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return false
	}

	if b.now().Sub(b.lastFailureAt) >= b.cfg.RecoveryTimeout {
		b.state = StateHalfOpen
		b.successCount = 0
		return false
	}

	return true
}

// RecordSuccess records a successful call against the endpoint.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= b.cfg.SuccessThreshold {
			b.state = StateClosed
			b.failures = 0
		}
	case StateClosed:
		b.failures = 0
	case StateOpen:
		// A success while open can only come from a caller that checked
		// before the circuit tripped; it does not reopen traffic.
	}
}

// RecordFailure records a failed call against the endpoint.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailureAt = b.now()

	if b.state == StateHalfOpen {
		// The probe failed; reopen immediately without re-counting.
		b.state = StateOpen
		b.successCount = 0
		return
	}

	b.failures++
	if b.failures >= b.cfg.FailureThreshold {
		b.state = StateOpen
	}
}

// Snapshot is a point-in-time view of breaker state.
type Snapshot struct {
	State         State      `json:"state"`
	Failures      int        `json:"failures"`
	SuccessCount  int        `json:"success_count"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
}

// Snapshot returns the current breaker state without side effects.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := Snapshot{
		State:        b.state,
		Failures:     b.failures,
		SuccessCount: b.successCount,
	}
	if !b.lastFailureAt.IsZero() {
		t := b.lastFailureAt
		snap.LastFailureAt = &t
	}
	return snap
}
