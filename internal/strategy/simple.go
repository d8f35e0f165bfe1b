package strategy

import (
	"context"
	"strings"

	"ragorchestrator/internal/domain"
	"ragorchestrator/internal/llm"
)

// simpleExecutor backs both the "chat" and "instruct" strategies: neither
// surfaces a reasoning stream, so both just forward provider deltas and tool
// calls straight through.
type simpleExecutor struct {
	name     Name
	provider llm.Provider
	model    string
}

// NewChat returns the "chat" strategy: no reasoning surface, uses the
// provider directly.
func NewChat(provider llm.Provider, model string) Executor {
	return &simpleExecutor{name: NameChat, provider: provider, model: model}
}

// NewInstruct returns the "instruct" strategy, used internally by the
// finalize phase because its content stream is free of <think> tags.
func NewInstruct(provider llm.Provider, model string) Executor {
	return &simpleExecutor{name: NameInstruct, provider: provider, model: model}
}

func (e *simpleExecutor) ExecuteIteration(ctx context.Context, messages []domain.Message, tools []llm.ToolSchema, ic IterationContext) <-chan domain.StrategyEvent {
	out := make(chan domain.StrategyEvent, 16)

	go func() {
		defer close(out)

		var content strings.Builder
		var toolCalls []domain.ToolCall
		h := &simpleHandler{out: out, content: &content, toolCalls: &toolCalls, progressive: ic.StreamingMode == Progressive}

		usage, err := e.provider.ChatStream(ctx, messages, tools, e.model, h)
		if err != nil {
			out <- domain.StrategyStatusUpdate{Status: "provider error: " + err.Error()}
			out <- domain.IterationComplete{Iteration: ic.Iteration}
			return
		}

		emittedFinal := false
		if len(toolCalls) == 0 && content.Len() > 0 {
			out <- domain.FinalResponse{
				Message:     domain.Message{Role: domain.RoleAssistant, Content: content.String()},
				PromptTok:   usage.PromptTokens,
				CompleteTok: usage.CompletionTokens,
			}
			emittedFinal = true
		}
		out <- domain.IterationComplete{
			Iteration:      ic.Iteration,
			TokensUsed:     usage.PromptTokens + usage.CompletionTokens,
			ShouldContinue: len(toolCalls) > 0 && !emittedFinal,
		}
	}()

	return out
}

type simpleHandler struct {
	out         chan<- domain.StrategyEvent
	content     *strings.Builder
	toolCalls   *[]domain.ToolCall
	progressive bool
}

func (h *simpleHandler) OnDelta(s string) {
	h.content.WriteString(s)
	if h.progressive && s != "" {
		h.out <- domain.ContentChunk{Content: s}
	}
}

func (h *simpleHandler) OnReasoning(string) {}

func (h *simpleHandler) OnToolCall(tc domain.ToolCall) {
	*h.toolCalls = append(*h.toolCalls, tc)
	h.out <- domain.ToolCallDetected{ToolCall: tc}
}
