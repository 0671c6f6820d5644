package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/llmgate/llmgate/domain/principal"
	"github.com/llmgate/llmgate/domain/quota"
	"github.com/llmgate/llmgate/ports"
)

// LedgerService runs the layered admission check for a principal:
// budget gate first (prepaid balance or monthly credits), then the
// per-minute request window. Checks are ordered cheapest-rejection-first
// and the in-flight request is never pre-billed.
type LedgerService struct {
	windows ports.RateWindowStore
	credits ports.CreditStore
	usage   ports.UsageStore
	clock   ports.Clock
	log     zerolog.Logger

	mu    sync.RWMutex
	plans map[string]principal.Limits
}

// NewLedgerService creates a ledger service. A nil plan table falls back to
// the built-in catalog.
func NewLedgerService(windows ports.RateWindowStore, credits ports.CreditStore, usage ports.UsageStore, clock ports.Clock, log zerolog.Logger, plans map[string]principal.Limits) *LedgerService {
	if plans == nil {
		plans = principal.DefaultLimits
	}
	return &LedgerService{
		windows: windows,
		credits: credits,
		usage:   usage,
		clock:   clock,
		log:     log,
		plans:   plans,
	}
}

// Check admits or rejects a request for the principal. Store read errors
// surface to the caller; only the post-admission window write is
// best-effort.
func (s *LedgerService) Check(ctx context.Context, p principal.Principal) (quota.Decision, error) {
	now := s.clock.Now()
	plan := p.ActivePlan(now)

	s.mu.RLock()
	limits := principal.FindLimits(s.plans, plan)
	s.mu.RUnlock()

	var usedCredits int64
	switch p.BillingMode {
	case principal.BillingPrepaid:
		balance, err := s.credits.Balance(ctx, p.UserID)
		if err != nil {
			return quota.Decision{}, err
		}
		if d := quota.CheckCredits(balance, limits); !d.Allowed {
			return d, nil
		}
	default:
		used, err := s.usage.CreditsUsedSince(ctx, p.UserID, principal.MonthStart(now))
		if err != nil {
			return quota.Decision{}, err
		}
		usedCredits = used
		if d := quota.CheckBudget(used, limits); !d.Allowed {
			return d, nil
		}
	}

	raw, err := s.windows.Get(ctx, p.UserID)
	if err != nil {
		return quota.Decision{}, err
	}
	state := quota.ResetIfStale(raw, now)
	wasReset := state != raw

	decision, newState := quota.CheckWindow(state, usedCredits, limits, now)
	if !decision.Allowed {
		return decision, nil
	}

	// A reset is persisted synchronously so the new minute starts from a
	// clean row. The steady-state increment is fire-and-forget: a lost
	// increment under race only under-counts by one.
	if wasReset {
		if err := s.windows.Put(ctx, p.UserID, newState); err != nil {
			s.log.Warn().Err(err).Str("user_id", p.UserID).Msg("rate window put failed")
		}
	} else {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.windows.Increment(ctx, p.UserID); err != nil {
				s.log.Debug().Err(err).Str("user_id", p.UserID).Msg("rate window increment failed")
			}
		}()
	}

	return decision, nil
}

// RecordTokens feeds a completed request's token total back into the
// user's minute window so the token gate sees it on the next admission.
// Fire-and-forget, same contract as the request increment.
func (s *LedgerService) RecordTokens(userID string, n int64) {
	if n <= 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.windows.AddTokens(ctx, userID, n); err != nil {
			s.log.Debug().Err(err).Str("user_id", userID).Msg("rate window token add failed")
		}
	}()
}

// UpdatePlans replaces the plan catalog. Called on config hot reload;
// in-flight checks keep the catalog they started with.
func (s *LedgerService) UpdatePlans(plans map[string]principal.Limits) {
	if plans == nil {
		plans = principal.DefaultLimits
	}
	s.mu.Lock()
	s.plans = plans
	s.mu.Unlock()
}
