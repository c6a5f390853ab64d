package routing

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/cardroute/cardroute/internal/psp"
)

// ResolverConfig holds configuration for the retry resolver.
type ResolverConfig struct {
	// Store supplies the active retry rules (required).
	Store Store

	// Breakers excludes failover targets whose breaker is open (required).
	Breakers BreakerGate

	// Logger for resolution decisions.
	Logger zerolog.Logger
}

// Resolver decides where a failed payment attempt fails over to. Unlike
// the selector's weighted draw, retry rules resolve by first match in
// position order.
type Resolver struct {
	store    Store
	breakers BreakerGate
	logger   zerolog.Logger
}

// NewResolver creates a retry resolver.
func NewResolver(cfg ResolverConfig) *Resolver {
	return &Resolver{
		store:    cfg.Store,
		breakers: cfg.Breakers,
		logger:   cfg.Logger,
	}
}

// RetryPSP returns the failover target for a failed attempt, or "" when no
// rule applies and the caller must stop retrying. attempt is the number of
// retries already consumed for the source provider.
func (r *Resolver) RetryPSP(ctx context.Context, source string, category psp.FailureCategory, attempt int) (string, error) {
	rules, err := r.store.ActiveRetryRules(ctx)
	if err != nil {
		return "", err
	}

	for _, rule := range rules {
		if !rule.AppliesTo(source, category) {
			continue
		}
		if attempt >= rule.MaxRetries {
			continue
		}
		if r.breakers.IsOpen(rule.TargetPSP) {
			r.logger.Debug().
				Str("target_psp", rule.TargetPSP).
				Str("rule_id", rule.ID).
				Msg("failover target excluded, circuit open")
			continue
		}

		r.logger.Debug().
			Str("source_psp", source).
			Str("target_psp", rule.TargetPSP).
			Str("category", string(category)).
			Int("attempt", attempt).
			Msg("failover target resolved")
		return rule.TargetPSP, nil
	}

	return "", nil
}
