// Package handler provides HTTP handlers for the cardroute API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/cardroute/cardroute/internal/api/models"
	"github.com/cardroute/cardroute/internal/api/response"
	"github.com/cardroute/cardroute/internal/resilience"
)

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	breakers  *resilience.Registry
	health    *resilience.HealthTracker
	ready     func(ctx context.Context) error
}

// NewOpsHandler creates a new OpsHandler. The ready function reports
// readiness of backing dependencies (nil means always ready).
func NewOpsHandler(version, buildTime string, breakers *resilience.Registry, health *resilience.HealthTracker, ready func(ctx context.Context) error) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		breakers:  breakers,
		health:    health,
		ready:     ready,
	}
}

// HealthCheck handles GET /healthz - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /readyz - readiness check.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	status := models.HealthStatusOK
	httpStatus := http.StatusOK

	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			status = models.HealthStatusFail
			httpStatus = http.StatusServiceUnavailable
		}
	}

	health := models.Health{
		Status: status,
		Time:   models.Timestamp(time.Now()),
	}
	response.JSON(w, r, httpStatus, health)
}

// Providers handles GET /v1/ops/providers - breaker and health snapshots
// for every observed provider and backend endpoint.
func (h *OpsHandler) Providers(w http.ResponseWriter, r *http.Request) {
	snapshots := h.breakers.Snapshots()

	providers := make([]models.ProviderStatus, 0, len(snapshots))
	for _, snap := range snapshots {
		status := models.ProviderStatus{
			Name:         snap.Endpoint,
			BreakerState: snap.Breaker.State.String(),
			Failures:     snap.Breaker.Failures,
		}
		if snap.Breaker.LastFailureAt != nil {
			ts := models.Timestamp(*snap.Breaker.LastFailureAt)
			status.LastFailureAt = &ts
		}
		if sh, ok := h.health.Health(snap.Endpoint); ok {
			status.HealthStatus = string(sh.Status)
			status.LatencyMS = sh.LatencyMS
			ts := models.Timestamp(sh.LastCheckAt)
			status.LastCheckAt = &ts
		}
		providers = append(providers, status)
	}

	response.JSON(w, r, http.StatusOK, models.ProvidersResponse{
		Providers: providers,
		Time:      models.Timestamp(time.Now()),
	})
}
