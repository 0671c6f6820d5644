// Package app provides application services that orchestrate domain logic.
package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/llmgate/llmgate/domain/principal"
	"github.com/llmgate/llmgate/ports"
)

// DefaultAuthCacheTTL bounds how long a token lookup is served from cache.
// Revocation takes effect within this window.
const DefaultAuthCacheTTL = 5 * time.Minute

// Authenticator resolves gateway tokens to principals.
// Tokens are opaque bearer credentials; only their SHA-256 digest is stored,
// logged, or used as a lookup key.
type Authenticator struct {
	tokens ports.TokenStore
	clock  ports.Clock
	log    zerolog.Logger
	ttl    time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	principal principal.Principal
	expires   time.Time
}

// NewAuthenticator creates an authenticator with a TTL lookup cache.
func NewAuthenticator(tokens ports.TokenStore, clock ports.Clock, log zerolog.Logger, ttl time.Duration) *Authenticator {
	if ttl == 0 {
		ttl = DefaultAuthCacheTTL
	}
	return &Authenticator{
		tokens: tokens,
		clock:  clock,
		log:    log,
		ttl:    ttl,
		cache:  make(map[string]cacheEntry),
	}
}

// Digest returns the hex SHA-256 of a raw token.
func Digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// digestPrefix is what reaches logs. Never the raw token.
func digestPrefix(digest string) string {
	if len(digest) > 8 {
		return digest[:8]
	}
	return digest
}

// Authenticate resolves a raw bearer token to a principal.
// Returns ports.ErrNotFound for unknown or revoked tokens.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (principal.Principal, error) {
	digest := Digest(token)
	now := a.clock.Now()

	a.mu.Lock()
	if entry, ok := a.cache[digest]; ok && entry.expires.After(now) {
		a.mu.Unlock()
		a.touchAsync(entry.principal.UserID, now)
		return entry.principal, nil
	}
	a.mu.Unlock()

	p, err := a.tokens.Lookup(ctx, digest)
	if err != nil {
		if err != ports.ErrNotFound {
			a.log.Error().Err(err).Str("digest", digestPrefix(digest)).Msg("token lookup failed")
		}
		return principal.Principal{}, err
	}

	a.mu.Lock()
	a.cache[digest] = cacheEntry{principal: p, expires: now.Add(a.ttl)}
	a.mu.Unlock()

	a.touchAsync(p.UserID, now)
	return p, nil
}

// Invalidate drops a digest from the cache. Called after revocation so the
// CLI sees the effect immediately in-process.
func (a *Authenticator) Invalidate(digest string) {
	a.mu.Lock()
	delete(a.cache, digest)
	a.mu.Unlock()
}

func (a *Authenticator) touchAsync(userID string, at time.Time) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tokens.TouchLastActive(ctx, userID, at); err != nil {
			a.log.Debug().Err(err).Str("user_id", userID).Msg("touch last active failed")
		}
	}()
}
