package models

// Health represents the health status of the service.
type Health struct {
	Status  HealthStatus           `json:"status"`
	Time    Timestamp              `json:"time"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ProviderStatus is the observed state of one payment provider or backend
// endpoint: its circuit breaker and, when observed, its latency-scored
// health.
type ProviderStatus struct {
	Name          string     `json:"name"`
	BreakerState  string     `json:"breakerState"`
	Failures      int        `json:"failures"`
	LastFailureAt *Timestamp `json:"lastFailureAt,omitempty"`

	HealthStatus string     `json:"healthStatus,omitempty"`
	LatencyMS    int64      `json:"latencyMs,omitempty"`
	LastCheckAt  *Timestamp `json:"lastCheckAt,omitempty"`
}

// ProvidersResponse is the body of GET /v1/ops/providers.
type ProvidersResponse struct {
	Providers []ProviderStatus `json:"providers"`
	Time      Timestamp        `json:"time"`
}
