package memory

import (
	"context"
	"sync"

	"github.com/llmgate/llmgate/ports"
)

// CreditStore is an in-memory implementation of ports.CreditStore.
type CreditStore struct {
	mu       sync.RWMutex
	balances map[string]int64
}

// NewCreditStore creates a new in-memory credit store.
func NewCreditStore() *CreditStore {
	return &CreditStore{balances: make(map[string]int64)}
}

// Balance returns the credit balance for a user, 0 if absent.
func (s *CreditStore) Balance(ctx context.Context, userID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[userID], nil
}

// SetBalance sets a user's balance (for tests and seeding).
func (s *CreditStore) SetBalance(userID string, balance int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[userID] = balance
}

// Ensure interface compliance.
var _ ports.CreditStore = (*CreditStore)(nil)
