package transport_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardroute/cardroute/internal/resilience"
	"github.com/cardroute/cardroute/internal/transport"
)

type fixture struct {
	transport *transport.Transport
	registry  *resilience.Registry
	health    *resilience.HealthTracker
}

func newFixture(t *testing.T, endpoints ...transport.FailoverEndpoint) *fixture {
	t.Helper()

	registry := resilience.NewRegistry(resilience.BreakerConfig{})
	health := resilience.NewHealthTracker(0)

	tr, err := transport.New(transport.Config{
		Endpoints:   endpoints,
		Breakers:    registry,
		Health:      health,
		CallTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	return &fixture{transport: tr, registry: registry, health: health}
}

func okServer(t *testing.T, body string, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		_, _ = w.Write([]byte(body))
	}))
}

func failingServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
}

func TestTransport_PrimaryServes(t *testing.T) {
	primary := okServer(t, `{"ok":true}`, nil)
	defer primary.Close()
	fallback := okServer(t, `{"fallback":true}`, nil)
	defer fallback.Close()

	f := newFixture(t,
		transport.FailoverEndpoint{Name: "primary", BaseURL: primary.URL},
		transport.FailoverEndpoint{Name: "reactor", BaseURL: fallback.URL},
	)

	resp, err := f.transport.Fetch(context.Background(), transport.Request{Path: "/v1/status"})
	require.NoError(t, err)
	assert.Equal(t, "primary", resp.Endpoint)
	assert.Equal(t, `{"ok":true}`, string(resp.Body))

	h, ok := f.health.Health("primary")
	require.True(t, ok)
	assert.Equal(t, resilience.StatusHealthy, h.Status)
}

func TestTransport_FallsOverWhenPrimaryFails(t *testing.T) {
	var primaryHits atomic.Int32
	primary := failingServer(t, &primaryHits)
	defer primary.Close()
	fallback := okServer(t, `{"fallback":true}`, nil)
	defer fallback.Close()

	f := newFixture(t,
		transport.FailoverEndpoint{Name: "primary", BaseURL: primary.URL},
		transport.FailoverEndpoint{Name: "reactor", BaseURL: fallback.URL},
	)

	resp, err := f.transport.Fetch(context.Background(), transport.Request{Path: "/v1/status"})
	require.NoError(t, err)
	assert.Equal(t, "reactor", resp.Endpoint)

	primaryHealth, ok := f.health.Health("primary")
	require.True(t, ok)
	assert.Equal(t, resilience.StatusDown, primaryHealth.Status)

	reactorHealth, ok := f.health.Health("reactor")
	require.True(t, ok)
	assert.Equal(t, resilience.StatusHealthy, reactorHealth.Status)

	snap := f.registry.Breaker("primary").Snapshot()
	assert.Equal(t, 1, snap.Failures, "primary breaker records the failure")
}

func TestTransport_FallbackFailuresDoNotCountAgainstPrimary(t *testing.T) {
	bad1 := failingServer(t, nil)
	defer bad1.Close()
	bad2 := failingServer(t, nil)
	defer bad2.Close()
	good := okServer(t, `{"ok":true}`, nil)
	defer good.Close()

	f := newFixture(t,
		transport.FailoverEndpoint{Name: "primary", BaseURL: bad1.URL},
		transport.FailoverEndpoint{Name: "reactor", BaseURL: bad2.URL},
		transport.FailoverEndpoint{Name: "direct", BaseURL: good.URL},
	)

	resp, err := f.transport.Fetch(context.Background(), transport.Request{Path: "/v1/status"})
	require.NoError(t, err)
	assert.Equal(t, "direct", resp.Endpoint)

	// One fetch over two down endpoints records exactly one failure on the
	// primary; the reactor's failure belongs to the reactor alone.
	snap := f.registry.Breaker("primary").Snapshot()
	assert.Equal(t, 1, snap.Failures)
	assert.False(t, f.registry.IsOpen("primary"))

	reactorHealth, found := f.health.Health("reactor")
	require.True(t, found)
	assert.Equal(t, resilience.StatusDown, reactorHealth.Status)
}

func TestTransport_OpenPrimaryIsSkipped(t *testing.T) {
	var primaryHits atomic.Int32
	primary := okServer(t, `{"ok":true}`, &primaryHits)
	defer primary.Close()
	fallback := okServer(t, `{"fallback":true}`, nil)
	defer fallback.Close()

	f := newFixture(t,
		transport.FailoverEndpoint{Name: "primary", BaseURL: primary.URL},
		transport.FailoverEndpoint{Name: "reactor", BaseURL: fallback.URL},
	)

	for i := 0; i < 3; i++ {
		f.registry.RecordFailure("primary")
	}
	require.True(t, f.registry.IsOpen("primary"))

	resp, err := f.transport.Fetch(context.Background(), transport.Request{Path: "/v1/status"})
	require.NoError(t, err)
	assert.Equal(t, "reactor", resp.Endpoint)
	assert.Equal(t, int32(0), primaryHits.Load(), "open primary must not be called")
}

func TestTransport_AllEndpointsDown(t *testing.T) {
	bad1 := failingServer(t, nil)
	defer bad1.Close()
	bad2 := failingServer(t, nil)
	defer bad2.Close()

	f := newFixture(t,
		transport.FailoverEndpoint{Name: "primary", BaseURL: bad1.URL},
		transport.FailoverEndpoint{Name: "reactor", BaseURL: bad2.URL},
	)

	_, err := f.transport.Fetch(context.Background(), transport.Request{Path: "/v1/status"})
	assert.ErrorIs(t, err, transport.ErrAllEndpointsUnavailable)
}

func TestTransport_EmergencyPathQueuesPendingSync(t *testing.T) {
	bad := failingServer(t, nil)
	defer bad.Close()

	f := newFixture(t, transport.FailoverEndpoint{Name: "primary", BaseURL: bad.URL})

	resp, err := f.transport.Fetch(context.Background(), transport.Request{
		Method:    http.MethodPost,
		Path:      "/v1/payments",
		SessionID: "sess_1",
		Emergency: func(_ context.Context) (*transport.Response, error) {
			return &transport.Response{StatusCode: http.StatusOK, Body: []byte(`{"id":"pi_em"}`)}, nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "emergency", resp.Endpoint)

	queued := f.transport.PendingSync().Snapshot()
	require.Len(t, queued, 1)
	assert.Equal(t, "sess_1", queued[0].SessionID)
	assert.Equal(t, "/v1/payments", queued[0].Route)
	assert.NotEmpty(t, queued[0].ID)
	assert.Equal(t, `{"id":"pi_em"}`, string(queued[0].Payload))
}

func TestTransport_EmergencyFailureSurfacesExhaustion(t *testing.T) {
	bad := failingServer(t, nil)
	defer bad.Close()

	f := newFixture(t, transport.FailoverEndpoint{Name: "primary", BaseURL: bad.URL})

	_, err := f.transport.Fetch(context.Background(), transport.Request{
		Path: "/v1/payments",
		Emergency: func(_ context.Context) (*transport.Response, error) {
			return nil, errors.New("psp also down")
		},
	})
	assert.ErrorIs(t, err, transport.ErrAllEndpointsUnavailable)
	assert.Zero(t, f.transport.PendingSync().Len())
}

func TestTransport_HealthCheckerRunsAndStops(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			hits.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	registry := resilience.NewRegistry(resilience.BreakerConfig{})
	health := resilience.NewHealthTracker(0)

	tr, err := transport.New(transport.Config{
		Endpoints:      []transport.FailoverEndpoint{{Name: "primary", BaseURL: server.URL}},
		Breakers:       registry,
		Health:         health,
		HealthInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	tr.StartHealthChecks(ctx)

	assert.Eventually(t, func() bool { return hits.Load() >= 2 }, time.Second, 5*time.Millisecond)

	cancel()
	time.Sleep(30 * time.Millisecond)
	settled := hits.Load()
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, hits.Load(), settled+1, "checker stops after cancellation")
}

func TestPendingSyncQueue_ConcurrentAppend(t *testing.T) {
	q := transport.NewPendingSyncQueue()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Append(transport.PendingSyncTransaction{Route: "/v1/payments"})
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, q.Len())
}

func TestPendingSyncQueue_DrainKeepsFailures(t *testing.T) {
	q := transport.NewPendingSyncQueue()
	q.Append(transport.PendingSyncTransaction{ID: "a"})
	q.Append(transport.PendingSyncTransaction{ID: "b"})
	q.Append(transport.PendingSyncTransaction{ID: "c"})

	reconciled := q.Drain(context.Background(), func(_ context.Context, tx transport.PendingSyncTransaction) error {
		if tx.ID == "b" {
			return errors.New("backend still down")
		}
		return nil
	})
	assert.Equal(t, 2, reconciled)

	remaining := q.Snapshot()
	require.Len(t, remaining, 1)
	assert.Equal(t, "b", remaining[0].ID)
}
