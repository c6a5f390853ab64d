package routing

import "context"

// Store reads routing configuration and persists health snapshots. Rule
// rows are written by the admin surface; the engine only reads them.
type Store interface {
	// ActiveTrafficRules returns all active traffic rules.
	ActiveTrafficRules(ctx context.Context) ([]TrafficRule, error)

	// ActiveRetryRules returns all active retry rules in position order.
	ActiveRetryRules(ctx context.Context) ([]RetryRule, error)

	// SaveHealthSnapshot upserts one endpoint's observed health.
	SaveHealthSnapshot(ctx context.Context, snap HealthSnapshot) error
}
