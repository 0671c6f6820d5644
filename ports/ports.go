// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/llmgate/llmgate/domain/gateway"
	"github.com/llmgate/llmgate/domain/principal"
	"github.com/llmgate/llmgate/domain/quota"
	"github.com/llmgate/llmgate/domain/usage"
)

// ErrNotFound is returned by stores when a row does not exist.
var ErrNotFound = errors.New("not found")

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// TokenRecord is a stored gateway token row. The raw token is never stored;
// lookups are single point reads keyed by its SHA-256 digest.
type TokenRecord struct {
	Digest       string
	Principal    principal.Principal
	CreatedAt    time.Time
	RevokedAt    *time.Time
	LastActiveAt *time.Time
}

// TokenStore persists gateway tokens and their principals.
type TokenStore interface {
	// Lookup retrieves the principal for a token digest.
	// Returns ErrNotFound for unknown or revoked tokens.
	Lookup(ctx context.Context, digest string) (principal.Principal, error)

	// Create stores a new token.
	Create(ctx context.Context, rec TokenRecord) error

	// Revoke marks a token as revoked.
	Revoke(ctx context.Context, digest string, at time.Time) error

	// List returns all tokens (for the management CLI).
	List(ctx context.Context) ([]TokenRecord, error)

	// TouchLastActive updates the last-active timestamp. Best-effort.
	TouchLastActive(ctx context.Context, userID string, at time.Time) error
}

// RateWindowStore persists per-user minute-window counters.
type RateWindowStore interface {
	// Get retrieves the window state for a user. A user with no history
	// gets a zero state, not ErrNotFound.
	Get(ctx context.Context, userID string) (quota.WindowState, error)

	// Put replaces the window state for a user.
	Put(ctx context.Context, userID string, state quota.WindowState) error

	// Increment bumps requests_this_minute by one. Best-effort: a lost
	// increment under race only slightly under-enforces the limit.
	Increment(ctx context.Context, userID string) error

	// AddTokens adds completed-request token counts to the current
	// window. Best-effort, same contract as Increment.
	AddTokens(ctx context.Context, userID string, n int64) error
}

// CreditStore reads prepaid credit balances. The proxy core only observes
// balances; deduction happens downstream from recorded usage.
type CreditStore interface {
	// Balance returns the credit balance for a user, 0 if absent.
	Balance(ctx context.Context, userID string) (int64, error)
}

// UsageStore persists usage records and serves aggregate reads.
type UsageStore interface {
	// InsertBatch appends usage records.
	InsertBatch(ctx context.Context, records []usage.Record) error

	// CreditsUsedSince sums credits consumed by a user since the given time.
	CreditsUsedSince(ctx context.Context, userID string, since time.Time) (int64, error)

	// Summary returns aggregated usage for a period.
	Summary(ctx context.Context, userID string, start, end time.Time) (usage.Summary, error)

	// Recent returns the most recent records for a user.
	Recent(ctx context.Context, userID string, limit int) ([]usage.Record, error)
}

// -----------------------------------------------------------------------------
// Event Ports
// -----------------------------------------------------------------------------

// UsageRecorder accepts usage records for async processing.
type UsageRecorder interface {
	// Record queues a usage record. Never blocks the request path and
	// never propagates failures back to it.
	Record(rec usage.Record)

	// Flush forces immediate processing of queued records.
	Flush(ctx context.Context) error

	// Close stops the recorder and flushes remaining records.
	Close() error
}

// -----------------------------------------------------------------------------
// External Service Ports
// -----------------------------------------------------------------------------

// StreamBody is a live upstream response body handed to the relay before it
// has been read. The caller must close it.
type StreamBody struct {
	Status int
	Body   io.ReadCloser
}

// Forwarder issues requests against the upstream LLM provider.
type Forwarder interface {
	// Forward sends a non-streaming request and returns the parsed
	// response. Provider errors (non-2xx with a provider body) are
	// returned as a Response, not an error, so the status and body can
	// be relayed verbatim.
	Forward(ctx context.Context, req gateway.Request) (gateway.Response, error)

	// OpenStream sends a streaming request and hands back the live body
	// as soon as response headers arrive.
	OpenStream(ctx context.Context, req gateway.Request) (StreamBody, error)
}
