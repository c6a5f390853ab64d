package routing

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cardroute/cardroute/internal/psp"
)

// PostgresStore is a PostgreSQL implementation of Store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL routing store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// ActiveTrafficRules returns all active traffic rules.
func (s *PostgresStore) ActiveTrafficRules(ctx context.Context) ([]TrafficRule, error) {
	query := `
		SELECT
			id, psp, weight,
			currencies, min_amount, max_amount, card_brands,
			is_active
		FROM traffic_rules
		WHERE is_active
		ORDER BY id
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []TrafficRule
	for rows.Next() {
		var rule TrafficRule
		err := rows.Scan(
			&rule.ID,
			&rule.PSP,
			&rule.Weight,
			&rule.Currencies,
			&rule.MinAmount,
			&rule.MaxAmount,
			&rule.CardBrands,
			&rule.IsActive,
		)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

// ActiveRetryRules returns all active retry rules in position order.
func (s *PostgresStore) ActiveRetryRules(ctx context.Context) ([]RetryRule, error) {
	query := `
		SELECT
			id, source_psp, target_psp, max_retries,
			failure_categories, position, is_active
		FROM retry_rules
		WHERE is_active
		ORDER BY position, id
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []RetryRule
	for rows.Next() {
		var rule RetryRule
		var categories []string
		err := rows.Scan(
			&rule.ID,
			&rule.SourcePSP,
			&rule.TargetPSP,
			&rule.MaxRetries,
			&categories,
			&rule.Position,
			&rule.IsActive,
		)
		if err != nil {
			return nil, err
		}
		for _, c := range categories {
			rule.FailureCategories = append(rule.FailureCategories, psp.FailureCategory(c))
		}
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

// SaveHealthSnapshot upserts one endpoint's observed health.
func (s *PostgresStore) SaveHealthSnapshot(ctx context.Context, snap HealthSnapshot) error {
	query := `
		INSERT INTO service_health (endpoint, status, latency_ms, checked_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (endpoint) DO UPDATE SET
			status = EXCLUDED.status,
			latency_ms = EXCLUDED.latency_ms,
			checked_at = EXCLUDED.checked_at
	`

	_, err := s.pool.Exec(ctx, query, snap.Endpoint, snap.Status, snap.LatencyMS, snap.CheckedAt)
	return err
}

// Ensure PostgresStore implements Store interface.
var _ Store = (*PostgresStore)(nil)
