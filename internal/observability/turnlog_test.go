package observability

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"ragorchestrator/internal/config"
	"ragorchestrator/internal/domain"
)

type recordingTurnWriter struct {
	mu    sync.Mutex
	msgs  []kafka.Message
	err   error
	wrote chan struct{}
	once  sync.Once
}

func newRecordingTurnWriter() *recordingTurnWriter {
	return &recordingTurnWriter{wrote: make(chan struct{})}
}

func (w *recordingTurnWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	defer w.once.Do(func() { close(w.wrote) })
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingTurnWriter) Close() error { return nil }

func TestNewTurnAuditorNilWhenNoBrokersConfigured(t *testing.T) {
	if a := NewTurnAuditor(config.KafkaConfig{Topic: "conversation.turns"}); a != nil {
		t.Fatalf("expected a nil auditor with no brokers configured, got %+v", a)
	}
}

func TestTurnAuditorPublishIsNoOpOnNilReceiver(t *testing.T) {
	var a *TurnAuditor
	a.Publish("conv-1", domain.Message{ID: "m1"})
	if err := a.Close(); err != nil {
		t.Fatalf("Close on nil auditor: %v", err)
	}
}

func TestTurnAuditorPublishWritesRecord(t *testing.T) {
	w := newRecordingTurnWriter()
	a := &TurnAuditor{writer: w, topic: "conversation.turns"}

	reasoning := "because"
	meta := &domain.MessageMetadata{Reasoning: &reasoning}
	a.Publish("conv-1", domain.Message{ID: "m1", Role: domain.RoleAssistant, Content: "final answer", Metadata: meta})

	select {
	case <-w.wrote:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the fire-and-forget publish")
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.msgs) != 1 {
		t.Fatalf("expected one published message, got %d", len(w.msgs))
	}
	var rec turnAuditRecord
	if err := json.Unmarshal(w.msgs[0].Value, &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.ConversationID != "conv-1" || rec.MessageID != "m1" || rec.Content != "final answer" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.Metadata == nil || rec.Metadata.Reasoning == nil || *rec.Metadata.Reasoning != "because" {
		t.Fatalf("expected metadata to round-trip, got %+v", rec.Metadata)
	}
	if string(w.msgs[0].Key) != "conv-1" {
		t.Fatalf("expected conversation id as the message key, got %q", w.msgs[0].Key)
	}
}

func TestTurnAuditorPublishSwallowsWriteErrors(t *testing.T) {
	w := newRecordingTurnWriter()
	w.err = errors.New("broker unreachable")
	a := &TurnAuditor{writer: w, topic: "conversation.turns"}

	a.Publish("conv-1", domain.Message{ID: "m1"})

	select {
	case <-w.wrote:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the fire-and-forget publish attempt")
	}
}
