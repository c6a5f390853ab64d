package worker

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/cardroute/cardroute/internal/transport"
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ReconcileJob replays emergency transactions from the pending-sync queue
// to the orchestration backend. Each transaction is retried with
// exponential backoff; transactions the backend does not accept stay
// queued for the next run.
type ReconcileJob struct {
	config ReconcileConfig
	queue  *transport.PendingSyncQueue
	client HTTPDoer
	logger zerolog.Logger

	metrics *ReconcileMetrics
}

// ReconcileMetrics tracks reconcile job statistics.
type ReconcileMetrics struct {
	mu sync.RWMutex

	TotalRuns       int64
	Reconciled      int64
	Failed          int64
	LastRunAt       time.Time
	LastRunDuration time.Duration
}

// ReconcileJobConfig holds configuration for creating a ReconcileJob.
type ReconcileJobConfig struct {
	Config ReconcileConfig
	Queue  *transport.PendingSyncQueue
	Client HTTPDoer
	Logger zerolog.Logger
}

// NewReconcileJob creates a reconcile job processor.
func NewReconcileJob(cfg ReconcileJobConfig) *ReconcileJob {
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	return &ReconcileJob{
		config:  cfg.Config.withDefaults(),
		queue:   cfg.Queue,
		client:  client,
		logger:  cfg.Logger,
		metrics: &ReconcileMetrics{},
	}
}

// ReconcileResult contains the result of one reconcile run.
type ReconcileResult struct {
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Reconciled int
	Remaining  int
}

// Run drains the pending-sync queue once.
func (j *ReconcileJob) Run(ctx context.Context) *ReconcileResult {
	startTime := time.Now()
	pending := j.queue.Len()

	j.logger.Info().
		Int("pending", pending).
		Msg("starting pending-sync reconcile")

	reconciled := j.queue.Drain(ctx, j.sync)

	result := &ReconcileResult{
		StartTime:  startTime,
		EndTime:    time.Now(),
		Reconciled: reconciled,
		Remaining:  j.queue.Len(),
	}
	result.Duration = result.EndTime.Sub(startTime)

	j.updateMetrics(result)

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("reconciled", result.Reconciled).
		Int("remaining", result.Remaining).
		Msg("pending-sync reconcile completed")

	return result
}

// sync replays one transaction, retrying transient failures with
// exponential backoff until the per-transaction timeout.
func (j *ReconcileJob) sync(ctx context.Context, tx transport.PendingSyncTransaction) error {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = j.config.InitialBackoff
	bo.MaxInterval = j.config.MaxBackoff
	policy := backoff.WithContext(bo, ctx)

	operation := func() error {
		return j.replay(ctx, tx)
	}

	if err := backoff.Retry(operation, policy); err != nil {
		j.logger.Warn().
			Err(err).
			Str("tx_id", tx.ID).
			Str("route", tx.Route).
			Msg("transaction not reconciled, keeping queued")
		return err
	}
	return nil
}

// replay delivers one transaction to the backend sync endpoint.
func (j *ReconcileJob) replay(ctx context.Context, tx transport.PendingSyncTransaction) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.config.SyncURL, bytes.NewReader(tx.Payload))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("building sync request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Pending-Sync-Id", tx.ID)
	req.Header.Set("X-Pending-Sync-Route", tx.Route)
	if tx.SessionID != "" {
		req.Header.Set("X-Session-Id", tx.SessionID)
	}

	resp, err := j.client.Do(req)
	if err != nil {
		return fmt.Errorf("sync call: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusConflict:
		// Already known to the backend; reconciled on a previous pass.
		return nil
	case resp.StatusCode >= 500:
		return fmt.Errorf("sync endpoint returned %d", resp.StatusCode)
	default:
		return backoff.Permanent(fmt.Errorf("sync endpoint rejected transaction: %d", resp.StatusCode))
	}
}

func (j *ReconcileJob) updateMetrics(result *ReconcileResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRuns++
	j.metrics.Reconciled += int64(result.Reconciled)
	j.metrics.Failed += int64(result.Remaining)
	j.metrics.LastRunAt = result.EndTime
	j.metrics.LastRunDuration = result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (j *ReconcileJob) GetMetrics() ReconcileMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return ReconcileMetrics{
		TotalRuns:       j.metrics.TotalRuns,
		Reconciled:      j.metrics.Reconciled,
		Failed:          j.metrics.Failed,
		LastRunAt:       j.metrics.LastRunAt,
		LastRunDuration: j.metrics.LastRunDuration,
	}
}
