// Package memory provides in-memory implementations of storage ports.
// Used for tests and single-process development setups.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/llmgate/llmgate/domain/principal"
	"github.com/llmgate/llmgate/ports"
)

// TokenStore is an in-memory implementation of ports.TokenStore.
type TokenStore struct {
	mu      sync.RWMutex
	records map[string]ports.TokenRecord
}

// NewTokenStore creates a new in-memory token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{records: make(map[string]ports.TokenRecord)}
}

// Lookup retrieves the principal for a token digest.
func (s *TokenStore) Lookup(ctx context.Context, digest string) (principal.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[digest]
	if !ok || rec.RevokedAt != nil {
		return principal.Principal{}, ports.ErrNotFound
	}
	return rec.Principal, nil
}

// Create stores a new token.
func (s *TokenStore) Create(ctx context.Context, rec ports.TokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Digest] = rec
	return nil
}

// Revoke marks a token as revoked.
func (s *TokenStore) Revoke(ctx context.Context, digest string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[digest]
	if !ok {
		return ports.ErrNotFound
	}
	rec.RevokedAt = &at
	s.records[digest] = rec
	return nil
}

// List returns all tokens.
func (s *TokenStore) List(ctx context.Context) ([]ports.TokenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ports.TokenRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out, nil
}

// TouchLastActive updates the last-active timestamp for a user's tokens.
func (s *TokenStore) TouchLastActive(ctx context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for digest, rec := range s.records {
		if rec.Principal.UserID == userID {
			rec.LastActiveAt = &at
			s.records[digest] = rec
		}
	}
	return nil
}

// Ensure interface compliance.
var _ ports.TokenStore = (*TokenStore)(nil)
