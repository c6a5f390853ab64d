// Package orchestration runs the payment attempt loop: select a provider,
// charge, classify the outcome, and fail over by retry rule until the
// payment succeeds, fails terminally, or runs out of attempts.
package orchestration

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/cardroute/cardroute/internal/psp"
	"github.com/cardroute/cardroute/internal/resilience"
	"github.com/cardroute/cardroute/internal/routing"
	"github.com/cardroute/cardroute/internal/vault"
)

// DefaultMaxAttempts bounds the attempt loop.
const DefaultMaxAttempts = 3

// PaymentRequest is a charge to orchestrate. IdempotencyKey is the base
// key; each attempt sends its own suffixed key so retries are
// independently idempotent at the provider.
type PaymentRequest struct {
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	TokenID        string            `json:"token_id"`
	CardBrand      string            `json:"card_brand,omitempty"`
	IdempotencyKey string            `json:"idempotency_key"`
	Description    string            `json:"description,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Attempt is one provider call and its outcome.
type Attempt struct {
	PSP      string              `json:"psp"`
	Response *psp.ChargeResponse `json:"response"`
}

// Result is the orchestration outcome: the final response, the provider
// that produced it, and the full attempt trail.
type Result struct {
	Response *psp.ChargeResponse `json:"response"`
	PSP      string              `json:"psp"`
	Attempts []Attempt           `json:"attempts"`
}

// Config holds the engine's collaborators.
type Config struct {
	// Selector picks the first provider (required).
	Selector *routing.Selector

	// Resolver picks failover targets (required).
	Resolver *routing.Resolver

	// Adapters builds provider adapters (required).
	Adapters psp.Factory

	// Breakers records per-provider outcomes (required).
	Breakers *resilience.Registry

	// MaxAttempts bounds the attempt loop (optional, defaults to 3).
	MaxAttempts int

	// Tracer for per-attempt spans (optional).
	Tracer trace.Tracer

	// Logger for orchestration decisions.
	Logger zerolog.Logger
}

// Engine executes payments across providers.
type Engine struct {
	selector    *routing.Selector
	resolver    *routing.Resolver
	adapters    psp.Factory
	breakers    *resilience.Registry
	maxAttempts int
	tracer      trace.Tracer
	logger      zerolog.Logger
}

// NewEngine creates an orchestration engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Selector == nil || cfg.Resolver == nil {
		return nil, fmt.Errorf("selector and resolver are required")
	}
	if cfg.Adapters == nil {
		return nil, fmt.Errorf("adapter factory is required")
	}
	if cfg.Breakers == nil {
		return nil, fmt.Errorf("breaker registry is required")
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("orchestration")
	}

	return &Engine{
		selector:    cfg.Selector,
		resolver:    cfg.Resolver,
		adapters:    cfg.Adapters,
		breakers:    cfg.Breakers,
		maxAttempts: maxAttempts,
		tracer:      tracer,
		logger:      cfg.Logger,
	}, nil
}

// ExecutePayment runs the attempt loop for one payment.
//
// Successful and requires-action responses return immediately. Terminal
// declines stop routing: a buyer-side decline will not change on another
// provider. Retryable failures consult the retry rules; when no rule
// applies or attempts run out, the last structured response is returned
// rather than an error. A decryption failure is fatal for the token and
// never triggers failover.
func (e *Engine) ExecutePayment(ctx context.Context, req PaymentRequest) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "orchestration.execute_payment", trace.WithAttributes(
		attribute.String("payment.currency", req.Currency),
		attribute.Int64("payment.amount", req.Amount),
	))
	defer span.End()

	provider, err := e.selector.SelectPSP(ctx, routing.PaymentProfile{
		Amount:    req.Amount,
		Currency:  req.Currency,
		CardBrand: req.CardBrand,
	})
	if err != nil {
		return nil, err
	}

	result := &Result{}

	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		resp, err := e.charge(ctx, provider, req, attempt)

		if err != nil {
			if errors.Is(err, vault.ErrDecryptionFailed) {
				return nil, err
			}
			var verr *psp.ValidationError
			if errors.As(err, &verr) || errors.Is(err, psp.ErrUnknownProvider) {
				return nil, err
			}

			// A transport failure has no structured response; synthesize
			// one so the attempt trail stays complete.
			resp = &psp.ChargeResponse{
				FailureCode:     "transport_error",
				FailureMessage:  err.Error(),
				FailureCategory: psp.CategoryProcessingError,
			}
			result.Attempts = append(result.Attempts, Attempt{PSP: provider, Response: resp})
			result.Response = resp
			result.PSP = provider
			e.breakers.RecordFailure(provider)

			target, rerr := e.resolver.RetryPSP(ctx, provider, psp.CategoryProcessingError, attempt)
			if rerr != nil {
				return nil, rerr
			}
			if target == "" {
				return nil, err
			}
			provider = target
			continue
		}

		result.Attempts = append(result.Attempts, Attempt{PSP: provider, Response: resp})
		result.Response = resp
		result.PSP = provider

		if resp.Success {
			e.breakers.RecordSuccess(provider)
			e.logger.Info().
				Str("psp", provider).
				Str("transaction_id", resp.TransactionID).
				Int("attempts", len(result.Attempts)).
				Msg("payment succeeded")
			return result, nil
		}

		if resp.RequiresAction {
			// Step-up authentication pending; not a failure to route around.
			return result, nil
		}

		category := resp.Category()
		e.breakers.RecordFailure(provider)

		if category.Terminal() {
			e.logger.Info().
				Str("psp", provider).
				Str("category", string(category)).
				Msg("payment declined terminally")
			return result, nil
		}

		target, rerr := e.resolver.RetryPSP(ctx, provider, category, attempt)
		if rerr != nil {
			return nil, rerr
		}
		if target == "" {
			e.logger.Info().
				Str("psp", provider).
				Str("category", string(category)).
				Msg("no failover target, returning last response")
			return result, nil
		}

		e.logger.Info().
			Str("source_psp", provider).
			Str("target_psp", target).
			Str("category", string(category)).
			Int("attempt", attempt).
			Msg("failing over")
		provider = target
	}

	return result, nil
}

// charge builds the adapter and executes one attempt with an
// attempt-scoped idempotency key.
func (e *Engine) charge(ctx context.Context, provider string, req PaymentRequest, attempt int) (*psp.ChargeResponse, error) {
	adapter, err := e.adapters.Adapter(provider)
	if err != nil {
		return nil, err
	}

	ctx, span := e.tracer.Start(ctx, "orchestration.charge", trace.WithAttributes(
		attribute.String("psp", provider),
		attribute.Int("attempt", attempt),
	))
	defer span.End()

	return adapter.Charge(ctx, psp.ChargeRequest{
		Amount:         req.Amount,
		Currency:       req.Currency,
		TokenID:        req.TokenID,
		CardBrand:      req.CardBrand,
		IdempotencyKey: fmt.Sprintf("%s_%d", req.IdempotencyKey, attempt+1),
		Description:    req.Description,
		Metadata:       req.Metadata,
	})
}
