// Package local provides the direct-capture vault provider: card data is
// encrypted at rest in this process's store and decrypted only immediately
// before PSP submission.
package local

import (
	"context"

	"github.com/cardroute/cardroute/internal/vault"
)

// Record pairs a token projection with its encrypted card envelope.
type Record struct {
	Token    vault.Token
	Envelope vault.Envelope
}

// Store persists token records. Implementations must treat Deactivate as
// idempotent: deactivating an already-inactive token is a no-op.
type Store interface {
	// Insert stores a new token record.
	Insert(ctx context.Context, rec Record) error

	// Get returns the record for a canonical token id, or (nil, nil) when
	// it does not exist.
	Get(ctx context.Context, id string) (*Record, error)

	// FindActiveByFingerprint returns the newest active record with the
	// given fingerprint, or (nil, nil) when none exists.
	FindActiveByFingerprint(ctx context.Context, fingerprint string) (*Record, error)

	// Deactivate flips the record's active flag off.
	Deactivate(ctx context.Context, id string) error
}
