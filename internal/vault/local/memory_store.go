package local

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store implementation for tests and local
// development.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Insert stores a new token record.
func (s *MemoryStore) Insert(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Token.ID] = rec
	return nil
}

// Get returns the record for a token id, or (nil, nil) when absent.
func (s *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// FindActiveByFingerprint returns the newest active record with the given
// fingerprint, or (nil, nil) when none exists.
func (s *MemoryStore) FindActiveByFingerprint(_ context.Context, fingerprint string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var newest *Record
	var newestAt time.Time
	for id := range s.records {
		rec := s.records[id]
		if !rec.Token.Active || rec.Token.Fingerprint != fingerprint {
			continue
		}
		if newest == nil || rec.Token.CreatedAt.After(newestAt) {
			r := rec
			newest = &r
			newestAt = rec.Token.CreatedAt
		}
	}
	return newest, nil
}

// Deactivate flips the record's active flag off; unknown ids are a no-op.
func (s *MemoryStore) Deactivate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok || !rec.Token.Active {
		return nil
	}
	rec.Token.Active = false
	s.records[id] = rec
	return nil
}
