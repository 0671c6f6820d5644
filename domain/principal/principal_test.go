package principal_test

import (
	"testing"
	"time"

	"github.com/llmgate/llmgate/domain/principal"
)

var baseTime = time.Date(2026, 3, 15, 12, 30, 0, 0, time.UTC)

func TestActivePlan_NoOverride(t *testing.T) {
	p := principal.Principal{Plan: "pro"}

	if got := p.ActivePlan(baseTime); got != "pro" {
		t.Errorf("ActivePlan = %q, want pro", got)
	}
}

func TestActivePlan_GraceWindow(t *testing.T) {
	p := principal.Principal{
		Plan:               "free",
		EffectivePlan:      "pro",
		EffectivePlanUntil: baseTime.Add(24 * time.Hour),
	}

	if got := p.ActivePlan(baseTime); got != "pro" {
		t.Errorf("ActivePlan = %q, want pro during grace window", got)
	}
}

func TestActivePlan_ExpiredOverride(t *testing.T) {
	p := principal.Principal{
		Plan:               "free",
		EffectivePlan:      "pro",
		EffectivePlanUntil: baseTime.Add(-time.Minute),
	}

	if got := p.ActivePlan(baseTime); got != "free" {
		t.Errorf("ActivePlan = %q, want free after grace window", got)
	}
}

func TestFindLimits_KnownPlan(t *testing.T) {
	l := principal.FindLimits(principal.DefaultLimits, "pro")
	if l.RequestsPerMinute != 60 {
		t.Errorf("RequestsPerMinute = %d, want 60", l.RequestsPerMinute)
	}
	if l.MonthlyCredits != 1_000_000 {
		t.Errorf("MonthlyCredits = %d, want 1000000", l.MonthlyCredits)
	}
}

func TestFindLimits_UnknownPlanFallsBack(t *testing.T) {
	l := principal.FindLimits(principal.DefaultLimits, "enterprise-legacy")
	want := principal.DefaultLimits[principal.DefaultPlan]
	if l != want {
		t.Errorf("FindLimits = %+v, want default plan limits %+v", l, want)
	}
}

func TestMonthStart(t *testing.T) {
	got := principal.MonthStart(time.Date(2026, 3, 15, 23, 59, 59, 0, time.FixedZone("X", 3600)))
	want := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("MonthStart = %v, want %v", got, want)
	}
}
