// Package worker provides background reconciliation jobs for cardroute.
package worker

import "time"

// ReconcileConfig holds configuration for the pending-sync reconcile job.
type ReconcileConfig struct {
	// SyncURL is the backend endpoint pending transactions are replayed
	// to.
	SyncURL string

	// Timeout bounds the reconciliation of one transaction, retries
	// included. Default: 30 seconds.
	Timeout time.Duration

	// InitialBackoff is the first retry interval for a failed replay.
	// Default: 500ms.
	InitialBackoff time.Duration

	// MaxBackoff caps the retry interval. Default: 10 seconds.
	MaxBackoff time.Duration
}

// DefaultReconcileConfig returns the default reconcile configuration.
func DefaultReconcileConfig() ReconcileConfig {
	return ReconcileConfig{
		Timeout:        30 * time.Second,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
	}
}

// withDefaults fills zero fields with defaults.
func (c ReconcileConfig) withDefaults() ReconcileConfig {
	def := DefaultReconcileConfig()
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = def.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = def.MaxBackoff
	}
	return c
}
