package memory

import (
	"context"
	"sync"

	"github.com/llmgate/llmgate/domain/quota"
	"github.com/llmgate/llmgate/ports"
)

// RateWindowStore is an in-memory implementation of ports.RateWindowStore.
type RateWindowStore struct {
	mu      sync.Mutex
	windows map[string]quota.WindowState

	// FailIncrements makes Increment return an error (for testing the
	// best-effort contract).
	FailIncrements bool
}

// NewRateWindowStore creates a new in-memory rate window store.
func NewRateWindowStore() *RateWindowStore {
	return &RateWindowStore{windows: make(map[string]quota.WindowState)}
}

// Get retrieves the window state for a user.
func (s *RateWindowStore) Get(ctx context.Context, userID string) (quota.WindowState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.windows[userID], nil
}

// Put replaces the window state for a user.
func (s *RateWindowStore) Put(ctx context.Context, userID string, state quota.WindowState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows[userID] = state
	return nil
}

// Increment bumps requests_this_minute by one.
func (s *RateWindowStore) Increment(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailIncrements {
		return context.DeadlineExceeded
	}
	state := s.windows[userID]
	state.Requests++
	s.windows[userID] = state
	return nil
}

// AddTokens adds completed-request token counts to the current window.
func (s *RateWindowStore) AddTokens(ctx context.Context, userID string, n int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.windows[userID]
	state.Tokens += n
	s.windows[userID] = state
	return nil
}

// Ensure interface compliance.
var _ ports.RateWindowStore = (*RateWindowStore)(nil)
