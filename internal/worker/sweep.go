package worker

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/cardroute/cardroute/internal/resilience"
	"github.com/cardroute/cardroute/internal/routing"
)

// HealthSweep persists the in-memory endpoint health observations so the
// admin surface can read them from the configuration store.
type HealthSweep struct {
	tracker *resilience.HealthTracker
	store   routing.Store
	logger  zerolog.Logger
}

// NewHealthSweep creates a health sweep job.
func NewHealthSweep(tracker *resilience.HealthTracker, store routing.Store, logger zerolog.Logger) *HealthSweep {
	return &HealthSweep{
		tracker: tracker,
		store:   store,
		logger:  logger,
	}
}

// SweepResult contains the result of one health sweep.
type SweepResult struct {
	Written int
	Failed  int
}

// Run writes every observed endpoint's health to the store.
func (s *HealthSweep) Run(ctx context.Context) *SweepResult {
	result := &SweepResult{}

	for _, snap := range s.tracker.Snapshots() {
		err := s.store.SaveHealthSnapshot(ctx, routing.HealthSnapshot{
			Endpoint:  snap.Endpoint,
			Status:    string(snap.Health.Status),
			LatencyMS: snap.Health.LatencyMS,
			CheckedAt: snap.Health.LastCheckAt,
		})
		if err != nil {
			s.logger.Error().
				Err(err).
				Str("endpoint", snap.Endpoint).
				Msg("failed to persist health snapshot")
			result.Failed++
			continue
		}
		result.Written++
	}

	s.logger.Info().
		Int("written", result.Written).
		Int("failed", result.Failed).
		Msg("health sweep completed")

	return result
}
