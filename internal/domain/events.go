package domain

import "encoding/json"

// StreamEvent is the tagged union written to clients over SSE (C10). Each
// concrete type's name minus its "Event" suffix (StatusUpdateEvent ->
// "StatusUpdate") is the wire "event:" line; EventName returns it directly so the SSE writer never needs a
// type switch with hardcoded strings in two places.
type StreamEvent interface {
	EventName() string
}

// envelope carries the fields every StreamEvent variant shares on the wire.
// It is embedded, not wrapped, so each variant still marshals as one flat
// JSON object.
type envelope struct {
	ConversationID string `json:"conversationId"`
	Timestamp      string `json:"timestamp"`
}

type StatusUpdateEvent struct {
	envelope
	Status    string `json:"status"`
	Details   string `json:"details,omitempty"`
	Iteration int    `json:"iteration,omitempty"`
}

func (StatusUpdateEvent) EventName() string { return "StatusUpdate" }

type ToolCallStartEvent struct {
	envelope
	ToolName   string          `json:"toolName"`
	ToolCallID string          `json:"toolCallId"`
	Arguments  json.RawMessage `json:"arguments"`
	Iteration  int             `json:"iteration"`
}

func (ToolCallStartEvent) EventName() string { return "ToolCallStart" }

type ToolCallResultEvent struct {
	envelope
	ToolName   string `json:"toolName"`
	ToolCallID string `json:"toolCallId"`
	Result     string `json:"result"`
	Success    bool   `json:"success"`
	Iteration  int    `json:"iteration"`
}

func (ToolCallResultEvent) EventName() string { return "ToolCallResult" }

type ResponseChunkEvent struct {
	envelope
	Content       string `json:"content"`
	Iteration     int    `json:"iteration"`
	IsFinalAnswer bool   `json:"isFinalAnswer"`
}

func (ResponseChunkEvent) EventName() string { return "ResponseChunk" }

type ReasoningTraceEvent struct {
	envelope
	Content   string `json:"content"`
	Stage     string `json:"stage"`
	Iteration int    `json:"iteration"`
}

func (ReasoningTraceEvent) EventName() string { return "ReasoningTrace" }

type CompletedEvent struct {
	envelope
	IterationsUsed int `json:"iterationsUsed"`
	TokensUsed     int `json:"tokensUsed"`
}

func (CompletedEvent) EventName() string { return "Completed" }

type ErrorEvent struct {
	envelope
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (ErrorEvent) EventName() string { return "Error" }

// WithEnvelope stamps the shared conversationId/timestamp fields onto a
// StreamEvent just before it is serialized. Returns the (possibly modified)
// event so call sites can chain it straight into the SSE writer.
func WithEnvelope(ev StreamEvent, conversationID string, timestamp string) StreamEvent {
	switch e := ev.(type) {
	case StatusUpdateEvent:
		e.envelope = envelope{conversationID, timestamp}
		return e
	case ToolCallStartEvent:
		e.envelope = envelope{conversationID, timestamp}
		return e
	case ToolCallResultEvent:
		e.envelope = envelope{conversationID, timestamp}
		return e
	case ResponseChunkEvent:
		e.envelope = envelope{conversationID, timestamp}
		return e
	case ReasoningTraceEvent:
		e.envelope = envelope{conversationID, timestamp}
		return e
	case CompletedEvent:
		e.envelope = envelope{conversationID, timestamp}
		return e
	case ErrorEvent:
		e.envelope = envelope{conversationID, timestamp}
		return e
	default:
		return ev
	}
}

// StrategyEvent is the tagged union a strategy executor emits internally
// (C7); the orchestrator translates these into StreamEvents.
type StrategyEvent interface {
	strategyEvent()
}

type ReasoningChunk struct{ Content string }

func (ReasoningChunk) strategyEvent() {}

type ContentChunk struct{ Content string }

func (ContentChunk) strategyEvent() {}

type ToolCallDetected struct{ ToolCall ToolCall }

func (ToolCallDetected) strategyEvent() {}

type ToolCallsComplete struct{ ToolCalls []ToolCall }

func (ToolCallsComplete) strategyEvent() {}

type FinalResponse struct {
	Message     Message
	PromptTok   int
	CompleteTok int
}

func (FinalResponse) strategyEvent() {}

type StrategyStatusUpdate struct{ Status string }

func (StrategyStatusUpdate) strategyEvent() {}

type IterationComplete struct {
	Iteration      int
	TokensUsed     int
	ShouldContinue bool
}

func (IterationComplete) strategyEvent() {}
