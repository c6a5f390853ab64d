package orchestration

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/cardroute/cardroute/internal/psp"
	"github.com/cardroute/cardroute/internal/resilience"
	"github.com/cardroute/cardroute/internal/routing"
	"github.com/cardroute/cardroute/internal/transport"
	"github.com/cardroute/cardroute/internal/vault"
)

// DefaultCloseTimeout bounds the pending-sync flush during Close.
const DefaultCloseTimeout = 10 * time.Second

// RuntimeConfig holds everything a process needs to execute payments.
type RuntimeConfig struct {
	// Vault resolves card tokens (required).
	Vault vault.Provider

	// Store serves routing rules and receives health snapshots (required).
	Store routing.Store

	// Adapters builds provider adapters (required).
	Adapters psp.Factory

	// Endpoints is the ordered backend failover list (optional). When set,
	// the runtime owns a failover transport and its background health
	// checker.
	Endpoints []transport.FailoverEndpoint

	// FlushPendingSync reconciles one queued emergency transaction during
	// Close (optional). Entries it cannot reconcile stay queued.
	FlushPendingSync func(ctx context.Context, tx transport.PendingSyncTransaction) error

	// MaxAttempts bounds the engine's attempt loop (optional).
	MaxAttempts int

	// Tracer for payment spans (optional).
	Tracer trace.Tracer

	// Logger for runtime lifecycle and orchestration decisions.
	Logger zerolog.Logger
}

// Runtime owns the shared state behind payment execution: the breaker
// registry, the health tracker, the routing selector and resolver, the
// provider adapters, and the failover transport with its pending-sync
// queue. Exactly one Runtime is built per process at startup and passed
// by reference to the components that need it; Close tears it down.
type Runtime struct {
	breakers  *resilience.Registry
	health    *resilience.HealthTracker
	store     routing.Store
	vault     vault.Provider
	adapters  psp.Factory
	engine    *Engine
	transport *transport.Transport
	flush     func(ctx context.Context, tx transport.PendingSyncTransaction) error
	logger    zerolog.Logger

	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewRuntime wires the payment execution state for one process.
func NewRuntime(cfg RuntimeConfig) (*Runtime, error) {
	breakers := resilience.NewRegistry(resilience.DefaultBreakerConfig())
	health := resilience.NewHealthTracker(0)

	selector := routing.NewSelector(routing.SelectorConfig{
		Store:    cfg.Store,
		Breakers: breakers,
		Logger:   cfg.Logger,
	})
	resolver := routing.NewResolver(routing.ResolverConfig{
		Store:    cfg.Store,
		Breakers: breakers,
		Logger:   cfg.Logger,
	})

	engine, err := NewEngine(Config{
		Selector:    selector,
		Resolver:    resolver,
		Adapters:    cfg.Adapters,
		Breakers:    breakers,
		MaxAttempts: cfg.MaxAttempts,
		Tracer:      cfg.Tracer,
		Logger:      cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	rt := &Runtime{
		breakers: breakers,
		health:   health,
		store:    cfg.Store,
		vault:    cfg.Vault,
		adapters: cfg.Adapters,
		engine:   engine,
		flush:    cfg.FlushPendingSync,
		logger:   cfg.Logger,
		cancel:   cancel,
	}

	if len(cfg.Endpoints) > 0 {
		tr, err := transport.New(transport.Config{
			Endpoints: cfg.Endpoints,
			Breakers:  breakers,
			Health:    health,
			Logger:    cfg.Logger,
		})
		if err != nil {
			cancel()
			return nil, err
		}
		tr.StartHealthChecks(ctx)
		rt.transport = tr
	}

	return rt, nil
}

// Engine returns the payment execution engine.
func (r *Runtime) Engine() *Engine { return r.engine }

// Breakers returns the shared breaker registry.
func (r *Runtime) Breakers() *resilience.Registry { return r.breakers }

// Health returns the shared endpoint health tracker.
func (r *Runtime) Health() *resilience.HealthTracker { return r.health }

// Vault returns the card vault provider.
func (r *Runtime) Vault() vault.Provider { return r.vault }

// Adapters returns the provider adapter factory.
func (r *Runtime) Adapters() psp.Factory { return r.adapters }

// Store returns the routing rule store.
func (r *Runtime) Store() routing.Store { return r.store }

// Transport returns the backend failover transport, or nil when no
// endpoints were configured.
func (r *Runtime) Transport() *transport.Transport { return r.transport }

// Close stops the background health checker and flushes the pending-sync
// queue. It is safe to call more than once.
func (r *Runtime) Close(ctx context.Context) {
	r.closeOnce.Do(func() {
		r.cancel()

		if r.transport == nil || r.flush == nil {
			return
		}

		queue := r.transport.PendingSync()
		if queue.Len() == 0 {
			return
		}

		ctx, cancel := context.WithTimeout(ctx, DefaultCloseTimeout)
		defer cancel()

		reconciled := queue.Drain(ctx, r.flush)
		r.logger.Info().
			Int("reconciled", reconciled).
			Int("remaining", queue.Len()).
			Msg("pending-sync queue flushed on shutdown")
	})
}
