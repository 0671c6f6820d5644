package sqlite

import (
	"context"
	"database/sql"

	"github.com/llmgate/llmgate/domain/quota"
	"github.com/llmgate/llmgate/ports"
)

// RateWindowStore implements ports.RateWindowStore using SQLite.
type RateWindowStore struct {
	db *DB
}

// NewRateWindowStore creates a new SQLite rate window store.
func NewRateWindowStore(db *DB) *RateWindowStore {
	return &RateWindowStore{db: db}
}

// Get retrieves the window state for a user. Users with no row get a zero
// state so the reset-on-read logic treats them as a fresh minute.
func (s *RateWindowStore) Get(ctx context.Context, userID string) (quota.WindowState, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT minute_epoch, requests, tokens, last_reset
		FROM rate_windows
		WHERE user_id = ?
	`, userID)

	var state quota.WindowState
	err := row.Scan(&state.MinuteEpoch, &state.Requests, &state.Tokens, &state.LastReset)
	if err == sql.ErrNoRows {
		return quota.WindowState{}, nil
	}
	if err != nil {
		return quota.WindowState{}, err
	}
	return state, nil
}

// Put replaces the window state for a user.
func (s *RateWindowStore) Put(ctx context.Context, userID string, state quota.WindowState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rate_windows (user_id, minute_epoch, requests, tokens, last_reset)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			minute_epoch = excluded.minute_epoch,
			requests = excluded.requests,
			tokens = excluded.tokens,
			last_reset = excluded.last_reset
	`, userID, state.MinuteEpoch, state.Requests, state.Tokens, state.LastReset)
	return err
}

// Increment bumps requests_this_minute by one.
func (s *RateWindowStore) Increment(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE rate_windows SET requests = requests + 1 WHERE user_id = ?
	`, userID)
	return err
}

// AddTokens adds completed-request token counts to the current window.
// Admission always writes the row first, so a plain UPDATE suffices.
func (s *RateWindowStore) AddTokens(ctx context.Context, userID string, n int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE rate_windows SET tokens = tokens + ? WHERE user_id = ?
	`, n, userID)
	return err
}

// Ensure interface compliance.
var _ ports.RateWindowStore = (*RateWindowStore)(nil)
