package routing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardroute/cardroute/internal/resilience"
	"github.com/cardroute/cardroute/internal/routing"
)

func activeRule(id, provider string, weight int) routing.TrafficRule {
	return routing.TrafficRule{ID: id, PSP: provider, Weight: weight, IsActive: true}
}

func newStore(rules ...routing.TrafficRule) *routing.MemoryStore {
	store := routing.NewMemoryStore()
	store.SetTrafficRules(rules)
	return store
}

func TestSelector_NoMatchingRule(t *testing.T) {
	selector := routing.NewSelector(routing.SelectorConfig{
		Store:    newStore(),
		Breakers: resilience.NewRegistry(resilience.BreakerConfig{}),
	})

	_, err := selector.SelectPSP(context.Background(), routing.PaymentProfile{Amount: 100, Currency: "EUR"})
	assert.ErrorIs(t, err, routing.ErrNoRouteAvailable)
}

func TestSelector_ConditionMatching(t *testing.T) {
	store := newStore(
		routing.TrafficRule{
			ID: "r1", PSP: "stripe", Weight: 100, IsActive: true,
			Currencies: []string{"EUR", "GBP"},
			MinAmount:  100, MaxAmount: 5000,
			CardBrands: []string{"visa"},
		},
	)
	selector := routing.NewSelector(routing.SelectorConfig{
		Store:    store,
		Breakers: resilience.NewRegistry(resilience.BreakerConfig{}),
	})
	ctx := context.Background()

	tests := []struct {
		name    string
		profile routing.PaymentProfile
		routed  bool
	}{
		{"all conditions match", routing.PaymentProfile{Amount: 1000, Currency: "EUR", CardBrand: "visa"}, true},
		{"currency is case-insensitive", routing.PaymentProfile{Amount: 1000, Currency: "gbp", CardBrand: "visa"}, true},
		{"amount bounds are inclusive", routing.PaymentProfile{Amount: 5000, Currency: "EUR", CardBrand: "visa"}, true},
		{"brand condition skipped without request brand", routing.PaymentProfile{Amount: 1000, Currency: "EUR"}, true},
		{"wrong currency", routing.PaymentProfile{Amount: 1000, Currency: "USD", CardBrand: "visa"}, false},
		{"below min amount", routing.PaymentProfile{Amount: 99, Currency: "EUR", CardBrand: "visa"}, false},
		{"above max amount", routing.PaymentProfile{Amount: 5001, Currency: "EUR", CardBrand: "visa"}, false},
		{"wrong brand", routing.PaymentProfile{Amount: 1000, Currency: "EUR", CardBrand: "amex"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := selector.SelectPSP(ctx, tt.profile)
			if tt.routed {
				require.NoError(t, err)
				assert.Equal(t, "stripe", provider)
			} else {
				assert.ErrorIs(t, err, routing.ErrNoRouteAvailable)
			}
		})
	}
}

func TestSelector_OpenBreakerExcludesProvider(t *testing.T) {
	registry := resilience.NewRegistry(resilience.BreakerConfig{FailureThreshold: 1})
	registry.RecordFailure("stripe")
	require.True(t, registry.IsOpen("stripe"))

	selector := routing.NewSelector(routing.SelectorConfig{
		Store:    newStore(activeRule("r1", "stripe", 90), activeRule("r2", "adyen", 10)),
		Breakers: registry,
	})

	for i := 0; i < 20; i++ {
		provider, err := selector.SelectPSP(context.Background(), routing.PaymentProfile{Amount: 100, Currency: "EUR"})
		require.NoError(t, err)
		assert.Equal(t, "adyen", provider)
	}
}

func TestSelector_DeterministicDraw(t *testing.T) {
	store := newStore(activeRule("r1", "stripe", 75), activeRule("r2", "adyen", 25))
	registry := resilience.NewRegistry(resilience.BreakerConfig{})

	tests := []struct {
		name string
		draw float64
		want string
	}{
		{"low draw hits first rule", 0.0, "stripe"},
		{"draw inside first weight band", 0.74, "stripe"},
		{"draw past first weight band", 0.76, "adyen"},
		{"draw at the upper bound lands on the last rule", 1.0, "adyen"},
		{"leftover past every weight band falls back to first rule", 1.01, "stripe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			selector := routing.NewSelector(routing.SelectorConfig{
				Store:    store,
				Breakers: registry,
				Rand:     func() float64 { return tt.draw },
			})
			provider, err := selector.SelectPSP(context.Background(), routing.PaymentProfile{Amount: 100, Currency: "EUR"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, provider)
		})
	}
}

func TestSelector_WeightedDistribution(t *testing.T) {
	selector := routing.NewSelector(routing.SelectorConfig{
		Store:    newStore(activeRule("r1", "stripe", 75), activeRule("r2", "adyen", 25)),
		Breakers: resilience.NewRegistry(resilience.BreakerConfig{}),
	})
	ctx := context.Background()

	const draws = 10000
	counts := map[string]int{}
	for i := 0; i < draws; i++ {
		provider, err := selector.SelectPSP(ctx, routing.PaymentProfile{Amount: 100, Currency: "EUR"})
		require.NoError(t, err)
		counts[provider]++
	}

	ratio := float64(counts["stripe"]) / draws
	assert.InDelta(t, 0.75, ratio, 0.03, "observed stripe share %v", ratio)
}

func TestSelector_ZeroTotalWeightFallsBackToFirst(t *testing.T) {
	selector := routing.NewSelector(routing.SelectorConfig{
		Store:    newStore(activeRule("r1", "stripe", 0), activeRule("r2", "adyen", 0)),
		Breakers: resilience.NewRegistry(resilience.BreakerConfig{}),
	})

	provider, err := selector.SelectPSP(context.Background(), routing.PaymentProfile{Amount: 100, Currency: "EUR"})
	require.NoError(t, err)
	assert.Equal(t, "stripe", provider)
}
