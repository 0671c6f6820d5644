package usage_test

import (
	"testing"
	"time"

	"github.com/llmgate/llmgate/domain/usage"
)

func TestAggregate(t *testing.T) {
	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	records := []usage.Record{
		{UserID: "u1", InputTokens: 100, OutputTokens: 50, CostMicrodollars: 1050, Credits: 11},
		{UserID: "u1", InputTokens: 200, OutputTokens: 80, CostMicrodollars: 1800, Credits: 18, Error: "upstream_500"},
		{UserID: "u1", CacheCreation: 30, CacheRead: 400, CostMicrodollars: 388, Credits: 4},
	}

	s := usage.Aggregate(records, "u1", start, end)

	if s.RequestCount != 3 {
		t.Errorf("requestCount = %d, want 3", s.RequestCount)
	}
	if s.InputTokens != 300 || s.OutputTokens != 130 {
		t.Errorf("tokens = %d/%d, want 300/130", s.InputTokens, s.OutputTokens)
	}
	if s.CacheCreation != 30 || s.CacheRead != 400 {
		t.Errorf("cache = %d/%d, want 30/400", s.CacheCreation, s.CacheRead)
	}
	if s.CostMicrodollars != 3238 {
		t.Errorf("cost = %d, want 3238", s.CostMicrodollars)
	}
	if s.Credits != 33 {
		t.Errorf("credits = %d, want 33", s.Credits)
	}
	if s.ErrorCount != 1 {
		t.Errorf("errorCount = %d, want 1", s.ErrorCount)
	}
}

func TestRecord_Failed(t *testing.T) {
	if (usage.Record{}).Failed() {
		t.Error("empty record must not be failed")
	}
	if !(usage.Record{Error: "timeout"}).Failed() {
		t.Error("record with error must be failed")
	}
}
