package observability

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"ragorchestrator/internal/config"
	"ragorchestrator/internal/domain"
)

// turnWriter is the subset of *kafka.Writer the auditor needs, so tests can
// substitute a recording fake without a broker.
type turnWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// TurnAuditor publishes every persisted assistant message to a Kafka topic
// for offline replay/analysis (§4.12 DOMAIN STACK), off the orchestrator's
// hot path. A nil *TurnAuditor is valid and every method is a no-op, so the
// orchestrator runs unchanged with KAFKA_BROKERS unset.
type TurnAuditor struct {
	writer turnWriter
	topic  string
}

// turnAuditRecord is the JSON shape written to conversation.turns.
type turnAuditRecord struct {
	ConversationID string                  `json:"conversationId"`
	MessageID      string                  `json:"messageId"`
	Role           domain.MessageRole      `json:"role"`
	Content        string                  `json:"content"`
	Metadata       *domain.MessageMetadata `json:"metadata,omitempty"`
	EmittedAt      time.Time               `json:"emittedAt"`
}

// NewTurnAuditor builds a TurnAuditor from KAFKA_BROKERS/KAFKA_TURNS_TOPIC.
// Returns a nil *TurnAuditor, no error, when no broker is configured — Kafka
// is an optional sink, not a startup dependency.
func NewTurnAuditor(cfg config.KafkaConfig) *TurnAuditor {
	brokers := strings.TrimSpace(cfg.Brokers)
	if brokers == "" {
		return nil
	}
	addrs := strings.Split(brokers, ",")
	for i := range addrs {
		addrs[i] = strings.TrimSpace(addrs[i])
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(addrs...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
		Async:        true,
	}
	return &TurnAuditor{writer: w, topic: cfg.Topic}
}

// Publish fire-and-forgets one persisted message to the turns topic. It never
// blocks the caller's turn: the actual write happens on its own goroutine
// with its own bounded timeout, and any failure is only logged.
func (a *TurnAuditor) Publish(conversationID string, msg domain.Message) {
	if a == nil || a.writer == nil {
		return
	}
	rec := turnAuditRecord{
		ConversationID: conversationID,
		MessageID:      msg.ID,
		Role:           msg.Role,
		Content:        msg.Content,
		Metadata:       msg.Metadata,
		EmittedAt:      time.Now().UTC(),
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.writer.WriteMessages(ctx, kafka.Message{Key: []byte(conversationID), Value: payload}); err != nil {
			log.Warn().Err(err).Str("topic", a.topic).Msg("turn audit publish failed")
		}
	}()
}

// Close releases the underlying Kafka writer. Safe on a nil *TurnAuditor.
func (a *TurnAuditor) Close() error {
	if a == nil || a.writer == nil {
		return nil
	}
	return a.writer.Close()
}
