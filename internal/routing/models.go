// Package routing decides which payment provider handles a charge: a
// weighted draw over matching traffic rules for the first attempt, and
// ordered retry rules for failover after a retryable decline.
package routing

import (
	"errors"
	"strings"
	"time"

	"github.com/cardroute/cardroute/internal/psp"
)

// ErrNoRouteAvailable indicates no active traffic rule matched the payment.
// Fatal for that payment.
var ErrNoRouteAvailable = errors.New("no route available for payment")

// TrafficRule is one weighted routing candidate. Rules are configuration,
// edited by an external admin surface and read-only to the engine. Empty
// condition fields match any request.
type TrafficRule struct {
	ID string `json:"id"`

	// PSP is the provider this rule routes to.
	PSP string `json:"psp"`

	// Weight is the rule's share of the weighted draw.
	Weight int `json:"weight"`

	// Currencies restricts the rule to these currencies (empty = any).
	Currencies []string `json:"currencies,omitempty"`

	// MinAmount and MaxAmount bound the charge amount, inclusive, in the
	// currency's minor unit. Zero means unbounded.
	MinAmount int64 `json:"min_amount,omitempty"`
	MaxAmount int64 `json:"max_amount,omitempty"`

	// CardBrands restricts the rule to these card brands (empty = any).
	CardBrands []string `json:"card_brands,omitempty"`

	IsActive bool `json:"is_active"`
}

// RetryRule maps a failed attempt at one provider to a failover target.
// Rules are evaluated in position order; the first match wins.
type RetryRule struct {
	ID string `json:"id"`

	// SourcePSP is the provider whose failure this rule handles.
	SourcePSP string `json:"source_psp"`

	// TargetPSP is the provider to fail over to.
	TargetPSP string `json:"target_psp"`

	// MaxRetries caps how many retry attempts this rule allows.
	MaxRetries int `json:"max_retries"`

	// FailureCategories restricts the rule to these categories (empty =
	// any retryable failure).
	FailureCategories []psp.FailureCategory `json:"failure_categories,omitempty"`

	// Position orders rules for first-match evaluation.
	Position int `json:"position"`

	IsActive bool `json:"is_active"`
}

// AppliesTo reports whether the rule handles the given failure.
func (r RetryRule) AppliesTo(source string, category psp.FailureCategory) bool {
	if !r.IsActive || r.SourcePSP != source {
		return false
	}
	if len(r.FailureCategories) == 0 {
		return true
	}
	for _, c := range r.FailureCategories {
		if c == category {
			return true
		}
	}
	return false
}

// PaymentProfile is the routing-relevant shape of a charge.
type PaymentProfile struct {
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	CardBrand string `json:"card_brand,omitempty"`
}

// Matches reports whether the rule's conditions accept the payment. A
// card-brand condition only applies when both the rule and the request
// carry a brand.
func (r TrafficRule) Matches(p PaymentProfile) bool {
	if !r.IsActive {
		return false
	}
	if len(r.Currencies) > 0 && !containsFold(r.Currencies, p.Currency) {
		return false
	}
	if r.MinAmount > 0 && p.Amount < r.MinAmount {
		return false
	}
	if r.MaxAmount > 0 && p.Amount > r.MaxAmount {
		return false
	}
	if len(r.CardBrands) > 0 && p.CardBrand != "" && !containsFold(r.CardBrands, p.CardBrand) {
		return false
	}
	return true
}

func containsFold(haystack []string, needle string) bool {
	for _, s := range haystack {
		if strings.EqualFold(s, needle) {
			return true
		}
	}
	return false
}

// HealthSnapshot is a persisted view of one endpoint's observed health,
// written by the reconcile worker for the admin surface.
type HealthSnapshot struct {
	Endpoint  string    `json:"endpoint"`
	Status    string    `json:"status"`
	LatencyMS int64     `json:"latency_ms"`
	CheckedAt time.Time `json:"checked_at"`
}
