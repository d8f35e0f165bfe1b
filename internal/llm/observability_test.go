package llm

import (
	"context"
	"testing"

	"ragorchestrator/internal/domain"
)

func resetTokenTotals() {
	totalsMu.Lock()
	modelTotals = map[string]struct{ Prompt, Completion int64 }{}
	totalsMu.Unlock()
}

func TestRecordTokenMetricsAccumulatesPerModel(t *testing.T) {
	resetTokenTotals()
	defer resetTokenTotals()

	RecordTokenMetrics("gpt-5", 100, 50)
	RecordTokenMetrics("gpt-5", 200, 150)
	RecordTokenMetrics("gpt-4", 10, 10)

	totals := TokenTotalsSnapshot()
	if len(totals) != 2 {
		t.Fatalf("expected 2 models, got %d: %+v", len(totals), totals)
	}
	if totals[0].Model != "gpt-5" || totals[0].Prompt != 300 || totals[0].Completion != 200 || totals[0].Total != 500 {
		t.Fatalf("unexpected totals for gpt-5: %+v", totals[0])
	}
	if totals[1].Model != "gpt-4" || totals[1].Total != 20 {
		t.Fatalf("unexpected totals for gpt-4: %+v", totals[1])
	}
}

func TestRecordTokenMetricsIgnoresEmptyCalls(t *testing.T) {
	resetTokenTotals()
	defer resetTokenTotals()

	RecordTokenMetrics("", 10, 10)
	RecordTokenMetrics("gpt-5", 0, 0)

	if totals := TokenTotalsSnapshot(); len(totals) != 0 {
		t.Fatalf("expected no recorded totals, got %+v", totals)
	}
}

func TestConfigureLoggingGatesRedactedLogging(t *testing.T) {
	ConfigureLogging(false, 0)
	defer ConfigureLogging(false, 0)

	// With logging disabled this must be a no-op regardless of payload shape.
	LogRedactedPrompt(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "hello"}})
	LogRedactedResponse(context.Background(), map[string]string{"content": "hi"})

	ConfigureLogging(true, 5)
	ok, truncate := shouldLog()
	if !ok || truncate != 5 {
		t.Fatalf("expected logging enabled with truncate=5, got ok=%v truncate=%d", ok, truncate)
	}
}
