package sqlite

import (
	"context"
	"database/sql"

	"github.com/llmgate/llmgate/ports"
)

// CreditStore implements ports.CreditStore using SQLite.
type CreditStore struct {
	db *DB
}

// NewCreditStore creates a new SQLite credit store.
func NewCreditStore(db *DB) *CreditStore {
	return &CreditStore{db: db}
}

// Balance returns the credit balance for a user, 0 if absent.
func (s *CreditStore) Balance(ctx context.Context, userID string) (int64, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT balance FROM credit_balances WHERE user_id = ?
	`, userID)

	var balance int64
	err := row.Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// SetBalance upserts a user's balance. Used by seeding and tests; the proxy
// path itself never writes balances.
func (s *CreditStore) SetBalance(ctx context.Context, userID string, balance int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credit_balances (user_id, balance) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET balance = excluded.balance
	`, userID, balance)
	return err
}

// Ensure interface compliance.
var _ ports.CreditStore = (*CreditStore)(nil)
