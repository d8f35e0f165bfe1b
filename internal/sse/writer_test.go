package sse

import (
	"net/http/httptest"
	"strings"
	"testing"

	"ragorchestrator/internal/domain"
)

func TestNewWriterSetsEventStreamHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if w == nil {
		t.Fatal("expected a non-nil writer")
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected text/event-stream, got %q", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Fatalf("expected no-cache, got %q", cc)
	}
	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestSendWritesOneEventPerFrame(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	if err := w.Send(domain.StatusUpdateEvent{Status: "thinking"}, "conv-1"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := w.Send(domain.CompletedEvent{IterationsUsed: 2, TokensUsed: 40}, "conv-1"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "event: StatusUpdate\n") {
		t.Fatalf("expected a StatusUpdate frame, got: %s", body)
	}
	if !strings.Contains(body, "event: Completed\n") {
		t.Fatalf("expected a Completed frame, got: %s", body)
	}
	if !strings.Contains(body, `"conversationId":"conv-1"`) {
		t.Fatalf("expected the envelope to carry the conversation id, got: %s", body)
	}
	if got := strings.Count(body, "\n\n"); got != 2 {
		t.Fatalf("expected 2 event frames separated by blank lines, got %d", got)
	}
}
