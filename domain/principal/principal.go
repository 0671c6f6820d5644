// Package principal provides identity and plan value types.
// All functions are pure - no side effects.
package principal

import "time"

// BillingMode determines how a principal's budget is gated.
type BillingMode string

const (
	// BillingSubscription gates by a monthly credit budget that resets each
	// calendar month.
	BillingSubscription BillingMode = "subscription"
	// BillingPrepaid gates by a decrementing prepaid credit balance.
	BillingPrepaid BillingMode = "prepaid"
)

// Principal represents an authenticated caller (immutable value type).
// Created per request from a token lookup, discarded after the request.
type Principal struct {
	UserID             string
	Plan               string
	EffectivePlan      string
	EffectivePlanUntil time.Time
	BillingMode        BillingMode
}

// ActivePlan resolves the plan in effect at time now.
// A non-expired EffectivePlan overrides Plan, which supports a grace window
// after a downgrade.
func (p Principal) ActivePlan(now time.Time) string {
	if p.EffectivePlan != "" && p.EffectivePlanUntil.After(now) {
		return p.EffectivePlan
	}
	return p.Plan
}

// Limits describes the quota envelope of a plan (value type).
type Limits struct {
	MonthlyCredits    int64
	RequestsPerMinute int
	TokensPerMinute   int64
}

// DefaultPlan is used when a principal's plan is unknown.
const DefaultPlan = "starter"

// DefaultLimits is the built-in plan catalog. Config may override it.
var DefaultLimits = map[string]Limits{
	"free":     {MonthlyCredits: 10_000, RequestsPerMinute: 5, TokensPerMinute: 10_000},
	"lite":     {MonthlyCredits: 50_000, RequestsPerMinute: 10, TokensPerMinute: 25_000},
	"starter":  {MonthlyCredits: 200_000, RequestsPerMinute: 20, TokensPerMinute: 50_000},
	"pro":      {MonthlyCredits: 1_000_000, RequestsPerMinute: 60, TokensPerMinute: 150_000},
	"business": {MonthlyCredits: 5_000_000, RequestsPerMinute: 120, TokensPerMinute: 300_000},
}

// FindLimits returns the limits for a plan, falling back to the default
// plan when the name is unknown.
func FindLimits(table map[string]Limits, plan string) Limits {
	if l, ok := table[plan]; ok {
		return l
	}
	return table[DefaultPlan]
}

// MonthStart returns the start of the calendar month containing t, in UTC.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
