package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/llmgate/llmgate/adapters/memory"
	"github.com/llmgate/llmgate/domain/principal"
	"github.com/llmgate/llmgate/domain/usage"
	"github.com/llmgate/llmgate/ports"
)

func TestTokenStoreLookupAndRevoke(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTokenStore()

	rec := ports.TokenRecord{
		Digest: "abc123",
		Principal: principal.Principal{
			UserID: "user-1",
			Plan:   "pro",
		},
		CreatedAt: time.Now(),
	}
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := store.Lookup(ctx, "abc123")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.UserID != "user-1" || got.Plan != "pro" {
		t.Errorf("Lookup = %+v, want user-1/pro", got)
	}

	if _, err := store.Lookup(ctx, "missing"); err != ports.ErrNotFound {
		t.Errorf("Lookup missing = %v, want ErrNotFound", err)
	}

	if err := store.Revoke(ctx, "abc123", time.Now()); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := store.Lookup(ctx, "abc123"); err != ports.ErrNotFound {
		t.Errorf("Lookup revoked = %v, want ErrNotFound", err)
	}
}

func TestRateWindowStoreIncrement(t *testing.T) {
	ctx := context.Background()
	store := memory.NewRateWindowStore()

	state, err := store.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if state.Requests != 0 {
		t.Errorf("fresh window Requests = %d, want 0", state.Requests)
	}

	for i := 0; i < 3; i++ {
		if err := store.Increment(ctx, "user-1"); err != nil {
			t.Fatalf("Increment: %v", err)
		}
	}
	state, _ = store.Get(ctx, "user-1")
	if state.Requests != 3 {
		t.Errorf("Requests = %d, want 3", state.Requests)
	}
}

func TestRateWindowStoreAddTokens(t *testing.T) {
	ctx := context.Background()
	store := memory.NewRateWindowStore()

	if err := store.AddTokens(ctx, "user-1", 1500); err != nil {
		t.Fatalf("AddTokens: %v", err)
	}
	if err := store.AddTokens(ctx, "user-1", 500); err != nil {
		t.Fatalf("AddTokens: %v", err)
	}

	state, err := store.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if state.Tokens != 2000 {
		t.Errorf("Tokens = %d, want 2000", state.Tokens)
	}
}

func TestCreditStoreBalanceDefaultsToZero(t *testing.T) {
	ctx := context.Background()
	store := memory.NewCreditStore()

	bal, err := store.Balance(ctx, "nobody")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if bal != 0 {
		t.Errorf("Balance = %d, want 0", bal)
	}

	store.SetBalance("user-1", 500)
	bal, _ = store.Balance(ctx, "user-1")
	if bal != 500 {
		t.Errorf("Balance = %d, want 500", bal)
	}
}

func TestUsageStoreCreditsUsedSince(t *testing.T) {
	ctx := context.Background()
	store := memory.NewUsageStore()

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	monthStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	records := []usage.Record{
		{ID: "r1", UserID: "user-1", Credits: 10, Timestamp: now},
		{ID: "r2", UserID: "user-1", Credits: 5, Timestamp: now.Add(-time.Hour)},
		{ID: "r3", UserID: "user-1", Credits: 99, Timestamp: monthStart.Add(-time.Second)},
		{ID: "r4", UserID: "user-2", Credits: 7, Timestamp: now},
	}
	if err := store.InsertBatch(ctx, records); err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}

	used, err := store.CreditsUsedSince(ctx, "user-1", monthStart)
	if err != nil {
		t.Fatalf("CreditsUsedSince: %v", err)
	}
	if used != 15 {
		t.Errorf("CreditsUsedSince = %d, want 15", used)
	}
}

func TestUsageStoreRecentOrdering(t *testing.T) {
	ctx := context.Background()
	store := memory.NewUsageStore()

	base := time.Now()
	for i := 0; i < 5; i++ {
		_ = store.InsertBatch(ctx, []usage.Record{
			{ID: string(rune('a' + i)), UserID: "user-1", Timestamp: base.Add(time.Duration(i) * time.Second)},
		})
	}

	recent, err := store.Recent(ctx, "user-1", 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("len(recent) = %d, want 2", len(recent))
	}
	if recent[0].ID != "e" || recent[1].ID != "d" {
		t.Errorf("Recent order = %s, %s, want e, d", recent[0].ID, recent[1].ID)
	}
}
