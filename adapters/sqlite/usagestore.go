package sqlite

import (
	"context"
	"time"

	"github.com/llmgate/llmgate/domain/usage"
	"github.com/llmgate/llmgate/ports"
)

// UsageStore implements ports.UsageStore using SQLite.
type UsageStore struct {
	db *DB
}

// NewUsageStore creates a new SQLite usage store.
func NewUsageStore(db *DB) *UsageStore {
	return &UsageStore{db: db}
}

// InsertBatch stores multiple usage records in one transaction.
func (s *UsageStore) InsertBatch(ctx context.Context, records []usage.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO usage_records (
			id, user_id, provider, model, endpoint,
			input_tokens, output_tokens, cache_creation, cache_read,
			cost_microdollars, credits, request_id, duration_ms, error, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		// Store timestamp in UTC for consistent querying
		_, err := stmt.ExecContext(ctx,
			r.ID, r.UserID, r.Provider, r.Model, r.Endpoint,
			r.InputTokens, r.OutputTokens, r.CacheCreation, r.CacheRead,
			r.CostMicrodollars, r.Credits, r.RequestID, r.DurationMs, r.Error,
			r.Timestamp.UTC(),
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// CreditsUsedSince sums credits consumed by a user since the given time.
func (s *UsageStore) CreditsUsedSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	sinceStr := since.UTC().Format("2006-01-02 15:04:05")
	row := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(credits), 0)
		FROM usage_records
		WHERE user_id = ? AND datetime(timestamp) >= datetime(?)
	`, userID, sinceStr)

	var total int64
	if err := row.Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// Summary returns aggregated usage for a period.
func (s *UsageStore) Summary(ctx context.Context, userID string, start, end time.Time) (usage.Summary, error) {
	// Format times as ISO8601 strings for SQLite comparison
	startStr := start.UTC().Format("2006-01-02 15:04:05")
	endStr := end.UTC().Format("2006-01-02 15:04:05")
	row := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) as request_count,
			COALESCE(SUM(input_tokens), 0) as input_tokens,
			COALESCE(SUM(output_tokens), 0) as output_tokens,
			COALESCE(SUM(cache_creation), 0) as cache_creation,
			COALESCE(SUM(cache_read), 0) as cache_read,
			COALESCE(SUM(cost_microdollars), 0) as cost_microdollars,
			COALESCE(SUM(credits), 0) as credits,
			COALESCE(SUM(CASE WHEN error != '' THEN 1 ELSE 0 END), 0) as error_count
		FROM usage_records
		WHERE user_id = ? AND datetime(timestamp) >= datetime(?) AND datetime(timestamp) < datetime(?)
	`, userID, startStr, endStr)

	var summary usage.Summary
	summary.UserID = userID
	summary.PeriodStart = start
	summary.PeriodEnd = end

	err := row.Scan(
		&summary.RequestCount,
		&summary.InputTokens,
		&summary.OutputTokens,
		&summary.CacheCreation,
		&summary.CacheRead,
		&summary.CostMicrodollars,
		&summary.Credits,
		&summary.ErrorCount,
	)
	if err != nil {
		return usage.Summary{}, err
	}

	return summary, nil
}

// Recent returns the most recent records for a user.
func (s *UsageStore) Recent(ctx context.Context, userID string, limit int) ([]usage.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, provider, model, endpoint,
		       input_tokens, output_tokens, cache_creation, cache_read,
		       cost_microdollars, credits, request_id, duration_ms, error, timestamp
		FROM usage_records
		WHERE user_id = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []usage.Record
	for rows.Next() {
		var r usage.Record
		err := rows.Scan(
			&r.ID, &r.UserID, &r.Provider, &r.Model, &r.Endpoint,
			&r.InputTokens, &r.OutputTokens, &r.CacheCreation, &r.CacheRead,
			&r.CostMicrodollars, &r.Credits, &r.RequestID, &r.DurationMs, &r.Error,
			&r.Timestamp,
		)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}

	return records, rows.Err()
}

// Ensure interface compliance.
var _ ports.UsageStore = (*UsageStore)(nil)
