// Package domain holds the wire- and storage-shaped types that flow through
// the orchestrator: conversations, messages, tool calls, and the two
// tagged-union event streams (StreamEvent for SSE, StrategyEvent internal to
// a strategy executor).
package domain

import (
	"encoding/json"
	"time"
)

// ConversationStatus is the lifecycle state of a Conversation.
type ConversationStatus string

const (
	StatusActive   ConversationStatus = "ACTIVE"
	StatusArchived ConversationStatus = "ARCHIVED"
	StatusDeleted  ConversationStatus = "DELETED"
)

// MessageRole identifies who produced a Message.
type MessageRole string

const (
	RoleUser      MessageRole = "USER"
	RoleAssistant MessageRole = "ASSISTANT"
	RoleTool      MessageRole = "TOOL"
	RoleSystem    MessageRole = "SYSTEM"
)

// Conversation is the durable record of a multi-turn exchange.
type Conversation struct {
	ID             string             `json:"id"`
	CallerID       string             `json:"callerId"`
	UserID         *string            `json:"userId,omitempty"`
	AccountID      *string            `json:"accountId,omitempty"`
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`
	LastMessageAt  time.Time          `json:"lastMessageAt"`
	MessageCount   int                `json:"messageCount"`
	ToolCallsCount int                `json:"toolCallsCount"`
	TotalTokens    int                `json:"totalTokens"`
	Status         ConversationStatus `json:"status"`
}

// ToolCallFunction is the function-call payload of a ToolCall.
type ToolCallFunction struct {
	Name         string `json:"name"`
	ArgumentsRaw string `json:"arguments"`
}

// ToolCall mirrors the OpenAI-style tool_calls entry attached to an
// assistant Message.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"` // always "function"
	Function ToolCallFunction `json:"function"`
}

// ToolResult is the normalized outcome of dispatching one ToolCall.
type ToolResult struct {
	Type    string `json:"type"`
	Summary string `json:"summary"`
	Success bool   `json:"success"`
}

// ToolCallRecord is the persisted record of a tool invocation within a turn,
// stored inside MessageMetadata.ToolCalls.
type ToolCallRecord struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	Result    ToolResult      `json:"result"`
	Success   bool            `json:"success"`
	Iteration int             `json:"iteration"`
}

// IterationRecord captures what happened during one loop iteration.
type IterationRecord struct {
	Iteration   int      `json:"iteration"`
	Reasoning   *string  `json:"reasoning,omitempty"`
	ToolCallIDs []string `json:"toolCallIds"`
}

// Metrics aggregates counters for a single turn.
type Metrics struct {
	Iterations  int `json:"iterations"`
	TotalTokens int `json:"totalTokens"`
}

// MessageMetadata accumulates everything that happened while an assistant
// message was produced: every tool call, every iteration's reasoning, and
// the turn's metrics.
type MessageMetadata struct {
	ToolCalls     []ToolCallRecord  `json:"toolCalls,omitempty"`
	Reasoning     *string           `json:"reasoning,omitempty"`
	IterationData []IterationRecord `json:"iterationData,omitempty"`
	Metrics       Metrics           `json:"metrics"`
}

// Message is one turn-unit of conversation history.
type Message struct {
	ID         string           `json:"id"`
	Role       MessageRole      `json:"role"`
	Content    string           `json:"content"`
	ToolCallID string           `json:"toolCallId,omitempty"`
	ToolCalls  []ToolCall       `json:"toolCalls,omitempty"`
	CreatedAt  time.Time        `json:"createdAt"`
	TokenCount int              `json:"tokenCount"`
	Metadata   *MessageMetadata `json:"metadata,omitempty"`
}

// ConversationContext is the rolling window handed to a strategy: the
// conversation header plus the bounded slice of messages the model sees.
type ConversationContext struct {
	Conversation Conversation `json:"conversation"`
	Messages     []Message    `json:"messages"`
	TotalTokens  int          `json:"totalTokens"`
}
