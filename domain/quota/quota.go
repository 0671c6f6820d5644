// Package quota provides pure quota and rate limiting decisions.
// All functions are deterministic - same input always produces same output.
// The application layer owns the surrounding I/O.
package quota

import (
	"fmt"
	"time"

	"github.com/llmgate/llmgate/domain/gateway"
	"github.com/llmgate/llmgate/domain/principal"
)

// WindowState is the per-user sliding minute counter (value type).
// MinuteEpoch is floor(unix/60) at last touch; a state whose epoch differs
// from the current minute is stale and must be reset before checking.
type WindowState struct {
	MinuteEpoch int64
	Requests    int
	Tokens      int64
	LastReset   int64
}

// Decision is the outcome of a ledger check (value type).
type Decision struct {
	Allowed    bool
	Reason     string
	RetryAfter int // seconds, only set for minute-window rejections
	Limits     gateway.LimitsInfo
}

// MinuteEpoch returns floor(unix/60) for t.
func MinuteEpoch(t time.Time) int64 {
	return t.Unix() / 60
}

// ResetIfStale returns the window state valid for the current minute,
// zeroing counters when the stored epoch belongs to an earlier minute.
// This is reset-on-read: no background sweeper is needed.
func ResetIfStale(state WindowState, now time.Time) WindowState {
	epoch := MinuteEpoch(now)
	if state.MinuteEpoch != epoch {
		return WindowState{MinuteEpoch: epoch, LastReset: now.Unix()}
	}
	return state
}

// CheckCredits gates a prepaid principal on its credit balance.
func CheckCredits(balance int64, limits principal.Limits) Decision {
	if balance <= 0 {
		return Decision{
			Reason: "No credits remaining. Purchase more credits to continue.",
			Limits: gateway.LimitsInfo{
				MonthlyCredits:    gateway.Window{Used: 0, Limit: 0},
				RequestsPerMinute: gateway.Window{Used: 0, Limit: int64(limits.RequestsPerMinute)},
				TokensPerMinute:   gateway.Window{Used: 0, Limit: limits.TokensPerMinute},
			},
		}
	}
	return Decision{Allowed: true}
}

// CheckBudget gates a subscription principal on its month-to-date credit
// consumption. The gate only considers already-consumed credits; the
// in-flight request is billed after completion.
func CheckBudget(usedCredits int64, limits principal.Limits) Decision {
	if usedCredits >= limits.MonthlyCredits {
		return Decision{
			Reason: fmt.Sprintf("Monthly credit limit reached (%d / %d)", usedCredits, limits.MonthlyCredits),
			Limits: gateway.LimitsInfo{
				MonthlyCredits:    gateway.Window{Used: usedCredits, Limit: limits.MonthlyCredits},
				RequestsPerMinute: gateway.Window{Used: 0, Limit: int64(limits.RequestsPerMinute)},
				TokensPerMinute:   gateway.Window{Used: 0, Limit: limits.TokensPerMinute},
			},
		}
	}
	return Decision{Allowed: true}
}

// CheckWindow gates on the per-minute request and token counters. The
// caller must pass a state already normalized by ResetIfStale. The token
// counter only grows after a request completes, so the gate closes the
// minute after heavy usage, never mid-request. The returned state reflects
// the optimistic request increment for an allowed request; persisting it
// is best-effort.
func CheckWindow(state WindowState, usedCredits int64, limits principal.Limits, now time.Time) (Decision, WindowState) {
	windows := func(s WindowState) gateway.LimitsInfo {
		return gateway.LimitsInfo{
			MonthlyCredits:    gateway.Window{Used: usedCredits, Limit: limits.MonthlyCredits},
			RequestsPerMinute: gateway.Window{Used: int64(s.Requests), Limit: int64(limits.RequestsPerMinute)},
			TokensPerMinute:   gateway.Window{Used: s.Tokens, Limit: limits.TokensPerMinute},
		}
	}

	if state.Requests >= limits.RequestsPerMinute {
		return Decision{
			Reason:     fmt.Sprintf("Rate limit exceeded (%d/%d requests/min)", state.Requests, limits.RequestsPerMinute),
			RetryAfter: int(60 - now.Unix()%60),
			Limits:     windows(state),
		}, state
	}

	if limits.TokensPerMinute > 0 && state.Tokens >= limits.TokensPerMinute {
		return Decision{
			Reason:     fmt.Sprintf("Token rate limit exceeded (%d/%d tokens/min)", state.Tokens, limits.TokensPerMinute),
			RetryAfter: int(60 - now.Unix()%60),
			Limits:     windows(state),
		}, state
	}

	state.Requests++
	return Decision{
		Allowed: true,
		Limits:  windows(state),
	}, state
}
