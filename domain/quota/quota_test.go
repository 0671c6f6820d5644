package quota_test

import (
	"strings"
	"testing"
	"time"

	"github.com/llmgate/llmgate/domain/principal"
	"github.com/llmgate/llmgate/domain/quota"
)

var (
	baseTime = time.Date(2026, 1, 15, 12, 0, 30, 0, time.UTC)
	limits   = principal.Limits{
		MonthlyCredits:    1000,
		RequestsPerMinute: 10,
		TokensPerMinute:   50000,
	}
)

func TestResetIfStale_SameMinuteKeepsCounters(t *testing.T) {
	state := quota.WindowState{
		MinuteEpoch: quota.MinuteEpoch(baseTime),
		Requests:    7,
		Tokens:      500,
	}

	got := quota.ResetIfStale(state, baseTime)

	if got.Requests != 7 || got.Tokens != 500 {
		t.Errorf("counters changed within the same minute: %+v", got)
	}
}

func TestResetIfStale_NewMinuteResets(t *testing.T) {
	state := quota.WindowState{
		MinuteEpoch: quota.MinuteEpoch(baseTime) - 1,
		Requests:    10,
		Tokens:      9999,
	}

	got := quota.ResetIfStale(state, baseTime)

	if got.Requests != 0 || got.Tokens != 0 {
		t.Errorf("counters not reset: %+v", got)
	}
	if got.MinuteEpoch != quota.MinuteEpoch(baseTime) {
		t.Errorf("epoch = %d, want %d", got.MinuteEpoch, quota.MinuteEpoch(baseTime))
	}
	if got.LastReset != baseTime.Unix() {
		t.Errorf("lastReset = %d, want %d", got.LastReset, baseTime.Unix())
	}
}

func TestCheckCredits_ZeroBalanceRejected(t *testing.T) {
	d := quota.CheckCredits(0, limits)

	if d.Allowed {
		t.Fatal("expected rejection at zero balance")
	}
	if !strings.Contains(strings.ToLower(d.Reason), "credits") {
		t.Errorf("reason %q does not mention credits", d.Reason)
	}
	if d.Limits.MonthlyCredits.Limit != 0 || d.Limits.MonthlyCredits.Used != 0 {
		t.Errorf("expected zeroed limits payload, got %+v", d.Limits.MonthlyCredits)
	}
}

func TestCheckCredits_PositiveBalanceAllowed(t *testing.T) {
	if d := quota.CheckCredits(1, limits); !d.Allowed {
		t.Errorf("expected allowed with positive balance, got %+v", d)
	}
}

func TestCheckBudget_UnderLimitAllowed(t *testing.T) {
	// 999 of 1000 consumed: the gate only checks already-consumed credits,
	// so one more request goes through.
	if d := quota.CheckBudget(999, limits); !d.Allowed {
		t.Errorf("expected allowed at 999/1000, got %+v", d)
	}
}

func TestCheckBudget_AtLimitRejected(t *testing.T) {
	d := quota.CheckBudget(1000, limits)

	if d.Allowed {
		t.Fatal("expected rejection at limit")
	}
	if !strings.Contains(d.Reason, "1000 / 1000") {
		t.Errorf("reason %q missing used/limit counts", d.Reason)
	}
}

func TestCheckBudget_OverLimitRejected(t *testing.T) {
	if d := quota.CheckBudget(1049, limits); d.Allowed {
		t.Error("expected rejection over limit")
	}
}

func TestCheckWindow_LastSlotAllowed(t *testing.T) {
	state := quota.WindowState{
		MinuteEpoch: quota.MinuteEpoch(baseTime),
		Requests:    limits.RequestsPerMinute - 1,
	}

	d, newState := quota.CheckWindow(state, 0, limits, baseTime)

	if !d.Allowed {
		t.Fatal("expected final slot in window to be allowed")
	}
	if newState.Requests != limits.RequestsPerMinute {
		t.Errorf("requests = %d, want %d", newState.Requests, limits.RequestsPerMinute)
	}

	// The very next request must be rejected.
	d2, _ := quota.CheckWindow(newState, 0, limits, baseTime)
	if d2.Allowed {
		t.Error("expected rejection once window is full")
	}
	if d2.RetryAfter < 1 || d2.RetryAfter > 60 {
		t.Errorf("retryAfter = %d, want within [1, 60]", d2.RetryAfter)
	}
}

func TestCheckWindow_RejectionCarriesCounts(t *testing.T) {
	state := quota.WindowState{
		MinuteEpoch: quota.MinuteEpoch(baseTime),
		Requests:    10,
	}

	d, newState := quota.CheckWindow(state, 123, limits, baseTime)

	if d.Allowed {
		t.Fatal("expected rejection")
	}
	if newState.Requests != 10 {
		t.Errorf("rejection must not increment: requests = %d", newState.Requests)
	}
	if d.Limits.RequestsPerMinute.Used != 10 || d.Limits.RequestsPerMinute.Limit != 10 {
		t.Errorf("limits payload = %+v", d.Limits.RequestsPerMinute)
	}
	if d.Limits.MonthlyCredits.Used != 123 {
		t.Errorf("monthly used = %d, want 123", d.Limits.MonthlyCredits.Used)
	}
}

func TestCheckWindow_TokenBudgetExhaustedRejected(t *testing.T) {
	state := quota.WindowState{
		MinuteEpoch: quota.MinuteEpoch(baseTime),
		Requests:    2,
		Tokens:      50000,
	}

	d, newState := quota.CheckWindow(state, 0, limits, baseTime)

	if d.Allowed {
		t.Fatal("expected rejection once minute token budget is spent")
	}
	if !strings.Contains(d.Reason, "tokens/min") {
		t.Errorf("reason %q does not mention tokens", d.Reason)
	}
	if d.RetryAfter < 1 || d.RetryAfter > 60 {
		t.Errorf("retryAfter = %d, want within [1, 60]", d.RetryAfter)
	}
	if newState.Requests != 2 {
		t.Errorf("rejection must not increment: requests = %d", newState.Requests)
	}
	if d.Limits.TokensPerMinute.Used != 50000 || d.Limits.TokensPerMinute.Limit != 50000 {
		t.Errorf("limits payload = %+v", d.Limits.TokensPerMinute)
	}
}

func TestCheckWindow_ZeroTokenLimitMeansUnlimited(t *testing.T) {
	unmetered := principal.Limits{MonthlyCredits: 1000, RequestsPerMinute: 10}
	state := quota.WindowState{
		MinuteEpoch: quota.MinuteEpoch(baseTime),
		Tokens:      1 << 40,
	}

	if d, _ := quota.CheckWindow(state, 0, unmetered, baseTime); !d.Allowed {
		t.Errorf("expected allowed with no token limit, got %+v", d)
	}
}

func TestCheckWindow_RetryAfterTracksClock(t *testing.T) {
	state := quota.WindowState{MinuteEpoch: quota.MinuteEpoch(baseTime), Requests: 10}

	for _, sec := range []int{0, 1, 30, 59} {
		now := time.Date(2026, 1, 15, 12, 0, sec, 0, time.UTC)
		st := quota.ResetIfStale(state, now)
		st.Requests = 10
		d, _ := quota.CheckWindow(st, 0, limits, now)
		want := 60 - sec
		if d.RetryAfter != want {
			t.Errorf("at :%02d retryAfter = %d, want %d", sec, d.RetryAfter, want)
		}
	}
}
