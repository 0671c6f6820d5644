// Package usage provides the usage record type and aggregation helpers.
// All functions are pure - no side effects.
package usage

import (
	"time"

	"github.com/llmgate/llmgate/domain/gateway"
)

// Record represents one completed request (immutable, append-only).
// A record is produced exactly once per request, on success and on failure
// alike; failed requests carry whatever partial token counts were observed.
type Record struct {
	ID               string
	UserID           string
	Provider         string
	Model            string
	Endpoint         string
	InputTokens      int64
	OutputTokens     int64
	CacheCreation    int64
	CacheRead        int64
	CostMicrodollars int64
	Credits          int64
	RequestID        string
	DurationMs       int64
	Error            string
	Timestamp        time.Time
}

// TokenUsage returns the record's counts as a usage value.
func (r Record) TokenUsage() gateway.TokenUsage {
	return gateway.TokenUsage{
		InputTokens:         r.InputTokens,
		OutputTokens:        r.OutputTokens,
		CacheCreationTokens: r.CacheCreation,
		CacheReadTokens:     r.CacheRead,
	}
}

// Failed reports whether the request ended in an error.
func (r Record) Failed() bool {
	return r.Error != ""
}

// Summary represents aggregated usage for a period (value type).
type Summary struct {
	UserID           string
	PeriodStart      time.Time
	PeriodEnd        time.Time
	RequestCount     int64
	InputTokens      int64
	OutputTokens     int64
	CacheCreation    int64
	CacheRead        int64
	CostMicrodollars int64
	Credits          int64
	ErrorCount       int64
}

// Aggregate folds records into a summary for the given period bounds.
func Aggregate(records []Record, userID string, start, end time.Time) Summary {
	s := Summary{UserID: userID, PeriodStart: start, PeriodEnd: end}
	for _, r := range records {
		s.RequestCount++
		s.InputTokens += r.InputTokens
		s.OutputTokens += r.OutputTokens
		s.CacheCreation += r.CacheCreation
		s.CacheRead += r.CacheRead
		s.CostMicrodollars += r.CostMicrodollars
		s.Credits += r.Credits
		if r.Failed() {
			s.ErrorCount++
		}
	}
	return s
}
