package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/llmgate/llmgate/domain/principal"
	"github.com/llmgate/llmgate/ports"
)

// TokenStore implements ports.TokenStore using SQLite.
type TokenStore struct {
	db *DB
}

// NewTokenStore creates a new SQLite token store.
func NewTokenStore(db *DB) *TokenStore {
	return &TokenStore{db: db}
}

// Lookup retrieves the principal for a token digest. A revoked token behaves
// like an unknown one.
func (s *TokenStore) Lookup(ctx context.Context, digest string) (principal.Principal, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, plan, effective_plan, effective_plan_until, billing_mode
		FROM gateway_tokens
		WHERE digest = ? AND revoked_at IS NULL
	`, digest)

	var p principal.Principal
	var billingMode string
	var effectiveUntil sql.NullTime
	err := row.Scan(&p.UserID, &p.Plan, &p.EffectivePlan, &effectiveUntil, &billingMode)
	if err == sql.ErrNoRows {
		return principal.Principal{}, ports.ErrNotFound
	}
	if err != nil {
		return principal.Principal{}, err
	}

	if effectiveUntil.Valid {
		p.EffectivePlanUntil = effectiveUntil.Time
	}
	p.BillingMode = principal.BillingMode(billingMode)
	return p, nil
}

// Create stores a new token.
func (s *TokenStore) Create(ctx context.Context, rec ports.TokenRecord) error {
	var effectiveUntil interface{}
	if !rec.Principal.EffectivePlanUntil.IsZero() {
		effectiveUntil = rec.Principal.EffectivePlanUntil.UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO gateway_tokens (
			digest, user_id, plan, effective_plan, effective_plan_until,
			billing_mode, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.Digest, rec.Principal.UserID, rec.Principal.Plan,
		rec.Principal.EffectivePlan, effectiveUntil,
		string(rec.Principal.BillingMode), rec.CreatedAt.UTC())
	return err
}

// Revoke marks a token as revoked.
func (s *TokenStore) Revoke(ctx context.Context, digest string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE gateway_tokens SET revoked_at = ? WHERE digest = ? AND revoked_at IS NULL
	`, at.UTC(), digest)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// List returns all tokens.
func (s *TokenStore) List(ctx context.Context) ([]ports.TokenRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT digest, user_id, plan, effective_plan, effective_plan_until,
		       billing_mode, created_at, revoked_at, last_active_at
		FROM gateway_tokens
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ports.TokenRecord
	for rows.Next() {
		var rec ports.TokenRecord
		var billingMode string
		var effectiveUntil, revokedAt, lastActiveAt sql.NullTime

		err := rows.Scan(&rec.Digest, &rec.Principal.UserID, &rec.Principal.Plan,
			&rec.Principal.EffectivePlan, &effectiveUntil, &billingMode,
			&rec.CreatedAt, &revokedAt, &lastActiveAt)
		if err != nil {
			return nil, err
		}

		rec.Principal.BillingMode = principal.BillingMode(billingMode)
		if effectiveUntil.Valid {
			rec.Principal.EffectivePlanUntil = effectiveUntil.Time
		}
		if revokedAt.Valid {
			t := revokedAt.Time
			rec.RevokedAt = &t
		}
		if lastActiveAt.Valid {
			t := lastActiveAt.Time
			rec.LastActiveAt = &t
		}

		records = append(records, rec)
	}

	return records, rows.Err()
}

// TouchLastActive updates the last-active timestamp for a user's tokens.
func (s *TokenStore) TouchLastActive(ctx context.Context, userID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE gateway_tokens SET last_active_at = ? WHERE user_id = ?
	`, at.UTC(), userID)
	return err
}

// Ensure interface compliance.
var _ ports.TokenStore = (*TokenStore)(nil)
