// Package transport reaches the orchestration backend over an ordered list
// of failover endpoints, with per-endpoint health scoring, a circuit
// breaker on the primary, and an optional emergency direct-PSP path when
// every endpoint is down.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/cardroute/cardroute/internal/resilience"
)

// Defaults.
const (
	// DefaultCallTimeout bounds one endpoint call.
	DefaultCallTimeout = 5 * time.Second

	// DefaultHealthInterval is how often the background checker probes
	// each endpoint.
	DefaultHealthInterval = 30 * time.Second

	// DefaultHealthPath is probed when an endpoint configures none.
	DefaultHealthPath = "/healthz"
)

// ErrAllEndpointsUnavailable indicates every configured endpoint failed
// and no emergency path was available.
var ErrAllEndpointsUnavailable = errors.New("all endpoints unavailable")

// FailoverEndpoint is one backend target, tried in list order.
type FailoverEndpoint struct {
	// Name keys the endpoint's breaker and health state.
	Name string

	// BaseURL is the endpoint's base URL.
	BaseURL string

	// HealthPath overrides the liveness probe path (optional).
	HealthPath string
}

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds configuration for the resilient transport.
type Config struct {
	// Endpoints is the ordered failover list; the first entry is the
	// primary (required, non-empty).
	Endpoints []FailoverEndpoint

	// Breakers tracks the primary endpoint's breaker (required).
	Breakers *resilience.Registry

	// Health scores endpoint observations (required).
	Health *resilience.HealthTracker

	// HTTPClient executes endpoint calls (optional).
	HTTPClient HTTPDoer

	// CallTimeout bounds one endpoint call (optional, defaults to 5s).
	CallTimeout time.Duration

	// HealthInterval is the background probe period (optional, defaults
	// to 30s).
	HealthInterval time.Duration

	// PendingSync receives emergency-path transactions (optional; created
	// when nil).
	PendingSync *PendingSyncQueue

	// Logger for transport decisions.
	Logger zerolog.Logger
}

// Request is one backend call.
type Request struct {
	Method  string
	Path    string
	Headers map[string]string
	Body    []byte

	// SessionID scopes an emergency-path transaction record.
	SessionID string

	// Emergency, when set, is invoked after every endpoint has failed. A
	// successful emergency result is recorded on the pending-sync queue
	// and returned to the caller.
	Emergency func(ctx context.Context) (*Response, error)
}

// Response is the backend's reply.
type Response struct {
	StatusCode int
	Body       []byte

	// Endpoint names the endpoint that served the call; "emergency" for
	// the direct-PSP path.
	Endpoint string
}

// Transport fans a call across the failover endpoints in order.
type Transport struct {
	endpoints      []FailoverEndpoint
	breakers       *resilience.Registry
	health         *resilience.HealthTracker
	httpClient     HTTPDoer
	callTimeout    time.Duration
	healthInterval time.Duration
	pending        *PendingSyncQueue
	logger         zerolog.Logger

	now func() time.Time
}

// New creates a resilient transport.
func New(cfg Config) (*Transport, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("at least one endpoint is required")
	}
	if cfg.Breakers == nil {
		return nil, fmt.Errorf("breaker registry is required")
	}
	if cfg.Health == nil {
		return nil, fmt.Errorf("health tracker is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	callTimeout := cfg.CallTimeout
	if callTimeout == 0 {
		callTimeout = DefaultCallTimeout
	}
	healthInterval := cfg.HealthInterval
	if healthInterval == 0 {
		healthInterval = DefaultHealthInterval
	}
	pending := cfg.PendingSync
	if pending == nil {
		pending = NewPendingSyncQueue()
	}

	return &Transport{
		endpoints:      cfg.Endpoints,
		breakers:       cfg.Breakers,
		health:         cfg.Health,
		httpClient:     httpClient,
		callTimeout:    callTimeout,
		healthInterval: healthInterval,
		pending:        pending,
		logger:         cfg.Logger,
		now:            time.Now,
	}, nil
}

// PendingSync returns the queue of emergency transactions awaiting
// reconciliation.
func (t *Transport) PendingSync() *PendingSyncQueue {
	return t.pending
}

// Fetch tries each endpoint in order until one answers. The primary is
// skipped while its breaker is open. When every endpoint fails, the
// request's emergency path runs if configured; otherwise
// ErrAllEndpointsUnavailable is returned.
func (t *Transport) Fetch(ctx context.Context, req Request) (*Response, error) {
	primary := t.endpoints[0].Name

	start := 0
	if len(t.endpoints) > 1 && t.breakers.IsOpen(primary) {
		t.logger.Debug().Str("endpoint", primary).Msg("primary skipped, circuit open")
		start = 1
	}

	var lastErr error
	for i := start; i < len(t.endpoints); i++ {
		endpoint := t.endpoints[i]

		resp, latency, err := t.call(ctx, endpoint, req)
		if err != nil {
			lastErr = err
			t.health.ObserveFailure(endpoint.Name)
			// Only the primary's own failures count against its breaker; a
			// down fallback must not trip the primary.
			if endpoint.Name == primary {
				t.breakers.RecordFailure(primary)
			}
			t.logger.Warn().
				Err(err).
				Str("endpoint", endpoint.Name).
				Msg("endpoint call failed")
			continue
		}

		t.health.ObserveSuccess(endpoint.Name, latency)
		if endpoint.Name == primary {
			t.breakers.RecordSuccess(primary)
		}
		return resp, nil
	}

	if req.Emergency != nil {
		return t.emergency(ctx, req, lastErr)
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrAllEndpointsUnavailable, lastErr)
	}
	return nil, ErrAllEndpointsUnavailable
}

// emergency runs the direct-PSP path and queues the result for later
// reconciliation with the backend.
func (t *Transport) emergency(ctx context.Context, req Request, cause error) (*Response, error) {
	t.logger.Warn().
		AnErr("cause", cause).
		Str("path", req.Path).
		Msg("all endpoints down, taking emergency direct path")

	resp, err := req.Emergency(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: emergency path: %w", ErrAllEndpointsUnavailable, err)
	}

	t.pending.Append(PendingSyncTransaction{
		SessionID: req.SessionID,
		Route:     req.Path,
		Payload:   resp.Body,
		Timestamp: t.now(),
	})

	resp.Endpoint = "emergency"
	return resp, nil
}

func (t *Transport) call(ctx context.Context, endpoint FailoverEndpoint, req Request) (*Response, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, t.callTimeout)
	defer cancel()

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint.BaseURL+req.Path, body)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	startedAt := t.now()
	httpResp, err := t.httpClient.Do(httpReq)
	latency := t.now().Sub(startedAt)
	if err != nil {
		return nil, latency, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 500 {
		return nil, latency, fmt.Errorf("endpoint %s returned status %d", endpoint.Name, httpResp.StatusCode)
	}

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, latency, fmt.Errorf("reading response: %w", err)
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Body:       respBody,
		Endpoint:   endpoint.Name,
	}, latency, nil
}

// StartHealthChecks probes every endpoint on a fixed interval until ctx is
// cancelled, applying the same scoring rule as request traffic. It returns
// after the first tick loop is scheduled; cancel ctx to stop the checker.
func (t *Transport) StartHealthChecks(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(t.healthInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.probeAll(ctx)
			}
		}
	}()
}

func (t *Transport) probeAll(ctx context.Context) {
	for _, endpoint := range t.endpoints {
		path := endpoint.HealthPath
		if path == "" {
			path = DefaultHealthPath
		}

		_, latency, err := t.call(ctx, endpoint, Request{Method: http.MethodGet, Path: path})
		if err != nil {
			t.health.ObserveFailure(endpoint.Name)
			continue
		}
		t.health.ObserveSuccess(endpoint.Name, latency)
	}
}
