package routing

import (
	"context"
	"math/rand/v2"

	"github.com/rs/zerolog"
)

// BreakerGate reports whether a provider's circuit breaker currently
// excludes it from selection.
type BreakerGate interface {
	IsOpen(name string) bool
}

// SelectorConfig holds configuration for the routing selector.
type SelectorConfig struct {
	// Store supplies the active traffic rules (required).
	Store Store

	// Breakers excludes providers whose breaker is open (required).
	Breakers BreakerGate

	// Rand draws a value in [0, 1) for the weighted pick (optional,
	// defaults to the shared PRNG; injectable for tests).
	Rand func() float64

	// Logger for selection decisions.
	Logger zerolog.Logger
}

// Selector picks the provider for a payment's first attempt by a weighted
// draw over the traffic rules that match it.
type Selector struct {
	store    Store
	breakers BreakerGate
	randFn   func() float64
	logger   zerolog.Logger
}

// NewSelector creates a routing selector.
func NewSelector(cfg SelectorConfig) *Selector {
	randFn := cfg.Rand
	if randFn == nil {
		randFn = rand.Float64
	}
	return &Selector{
		store:    cfg.Store,
		breakers: cfg.Breakers,
		randFn:   randFn,
		logger:   cfg.Logger,
	}
}

// SelectPSP returns the provider for the payment, or ErrNoRouteAvailable
// when no active rule matches. Providers with an open breaker are excluded
// before the draw.
func (s *Selector) SelectPSP(ctx context.Context, p PaymentProfile) (string, error) {
	rules, err := s.store.ActiveTrafficRules(ctx)
	if err != nil {
		return "", err
	}

	var candidates []TrafficRule
	totalWeight := 0
	for _, rule := range rules {
		if !rule.Matches(p) {
			continue
		}
		if s.breakers.IsOpen(rule.PSP) {
			s.logger.Debug().
				Str("psp", rule.PSP).
				Str("rule_id", rule.ID).
				Msg("rule excluded, circuit open")
			continue
		}
		candidates = append(candidates, rule)
		totalWeight += rule.Weight
	}

	if len(candidates) == 0 {
		return "", ErrNoRouteAvailable
	}
	if totalWeight <= 0 {
		return candidates[0].PSP, nil
	}

	r := s.randFn() * float64(totalWeight)
	for _, rule := range candidates {
		r -= float64(rule.Weight)
		if r <= 0 {
			s.logger.Debug().
				Str("psp", rule.PSP).
				Str("rule_id", rule.ID).
				Msg("psp selected")
			return rule.PSP, nil
		}
	}

	// Rounding can leave a sliver of r unconsumed; fall back
	// deterministically to the first candidate.
	return candidates[0].PSP, nil
}
