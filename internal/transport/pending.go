package transport

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PendingSyncTransaction records a payment executed over the emergency
// direct-PSP path while the orchestration backend was unreachable. It must
// be reconciled with the backend later.
type PendingSyncTransaction struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Route     string    `json:"route"`
	Payload   []byte    `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// PendingSyncQueue holds transactions awaiting reconciliation. Safe for
// concurrent appends.
type PendingSyncQueue struct {
	mu  sync.Mutex
	txs []PendingSyncTransaction
}

// NewPendingSyncQueue creates an empty queue.
func NewPendingSyncQueue() *PendingSyncQueue {
	return &PendingSyncQueue{}
}

// Append records a transaction for later reconciliation, assigning an id
// when the transaction carries none.
func (q *PendingSyncQueue) Append(tx PendingSyncTransaction) {
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	if tx.Timestamp.IsZero() {
		tx.Timestamp = time.Now()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.txs = append(q.txs, tx)
}

// Len returns the number of queued transactions.
func (q *PendingSyncQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.txs)
}

// Snapshot returns a copy of the queued transactions.
func (q *PendingSyncQueue) Snapshot() []PendingSyncTransaction {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]PendingSyncTransaction(nil), q.txs...)
}

// Drain attempts to reconcile every queued transaction with sync. Only the
// transactions sync accepts are removed; the rest stay queued for a later
// pass. Returns how many were reconciled.
func (q *PendingSyncQueue) Drain(ctx context.Context, sync func(context.Context, PendingSyncTransaction) error) int {
	q.mu.Lock()
	pending := q.txs
	q.txs = nil
	q.mu.Unlock()

	var kept []PendingSyncTransaction
	reconciled := 0
	for _, tx := range pending {
		if err := sync(ctx, tx); err != nil {
			kept = append(kept, tx)
			continue
		}
		reconciled++
	}

	if len(kept) > 0 {
		q.mu.Lock()
		// Appends that raced the drain land after the kept ones.
		q.txs = append(kept, q.txs...)
		q.mu.Unlock()
	}
	return reconciled
}
