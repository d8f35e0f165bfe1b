package llm

import (
	"context"

	"ragorchestrator/internal/domain"
)

// ToolSchema is the provider-agnostic description of a callable tool, as
// registered by the Tool Registry (C3) and handed to a Provider per request.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Usage is the normalized token accounting a Provider reports per call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// ProviderInfo identifies the backend and model a Provider is configured
// with. The /agent/health handler does not report it.
type ProviderInfo struct {
	Name  string
	Model string
}

// StreamHandler receives incremental output from ChatStream. OnReasoning is
// only called by providers with native extended-thinking support (Anthropic,
// and Google for thought parts);
// providers whose reasoning arrives inline in the content stream (the
// "thinking" wire protocol) rely on internal/thinktag instead, downstream of
// OnDelta.
type StreamHandler interface {
	OnDelta(content string)
	OnReasoning(content string)
	OnToolCall(tc domain.ToolCall)
}

// Provider is the normalized interface every LLM backend implements (C1).
// Implementations translate domain.Message history and ToolSchema
// definitions into their wire protocol and normalize the response back,
// including OpenAI-style tool_calls regardless of vendor.
type Provider interface {
	Chat(ctx context.Context, msgs []domain.Message, tools []ToolSchema, model string) (domain.Message, Usage, error)
	ChatStream(ctx context.Context, msgs []domain.Message, tools []ToolSchema, model string, h StreamHandler) (Usage, error)
	Info() ProviderInfo
}
