package strategy

import (
	"context"
	"strings"

	"ragorchestrator/internal/domain"
	"ragorchestrator/internal/llm"
	"ragorchestrator/internal/thinktag"
)

// thinkingExecutor is the default strategy: it runs the content stream
// through the thinking-tag parser (C2) to separate reasoning from answer
// text, and additionally surfaces any provider-native reasoning delta
// (Anthropic extended thinking, Gemini thought summaries) directly.
type thinkingExecutor struct {
	provider llm.Provider
	model    string
}

// NewThinking returns the "thinking" strategy (default).
func NewThinking(provider llm.Provider, model string) Executor {
	return &thinkingExecutor{provider: provider, model: model}
}

func (e *thinkingExecutor) ExecuteIteration(ctx context.Context, messages []domain.Message, tools []llm.ToolSchema, ic IterationContext) <-chan domain.StrategyEvent {
	out := make(chan domain.StrategyEvent, 16)

	go func() {
		defer close(out)

		parser := thinktag.New()
		var reasoning, content strings.Builder
		var toolCalls []domain.ToolCall
		nativeReasoning := false
		progressive := ic.StreamingMode == Progressive

		h := &thinkingHandler{
			out:         out,
			parser:      parser,
			reasoning:   &reasoning,
			content:     &content,
			toolCalls:   &toolCalls,
			native:      &nativeReasoning,
			progressive: progressive,
		}

		usage, err := e.provider.ChatStream(ctx, messages, tools, e.model, h)
		if err != nil {
			out <- domain.StrategyStatusUpdate{Status: "provider error: " + err.Error()}
			out <- domain.IterationComplete{Iteration: ic.Iteration}
			return
		}

		if !nativeReasoning {
			if tail := parser.Flush(); tail != "" {
				reasoning.WriteString(tail)
				if progressive {
					out <- domain.ReasoningChunk{Content: tail}
				}
			}
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

type thinkingHandler struct {
	out         chan<- domain.StrategyEvent
	parser      *thinktag.Parser
	reasoning   *strings.Builder
	content     *strings.Builder
	toolCalls   *[]domain.ToolCall
	native      *bool
	progressive bool
}

// OnDelta is only run through the tag parser until native reasoning has been
// observed on this stream; a provider with a dedicated reasoning channel
// never emits literal <think> tags in its content.
func (h *thinkingHandler) OnDelta(s string) {
	if *h.native {
		h.content.WriteString(s)
		if h.progressive && s != "" {
			h.out <- domain.ContentChunk{Content: s}
		}
		return
	}
	reasoningPart, contentPart := h.parser.Feed(s)
	if reasoningPart != "" {
		h.reasoning.WriteString(reasoningPart)
		if h.progressive {
			h.out <- domain.ReasoningChunk{Content: reasoningPart}
		}
	}
	if contentPart != "" {
		h.content.WriteString(contentPart)
		if h.progressive {
			h.out <- domain.ContentChunk{Content: contentPart}
		}
	}
}

// OnReasoning carries a native reasoningDelta (source tag reasoning_content).
func (h *thinkingHandler) OnReasoning(s string) {
	*h.native = true
	if s == "" {
		return
	}
	h.reasoning.WriteString(s)
	if h.progressive {
		h.out <- domain.ReasoningChunk{Content: s}
	}
}

func (h *thinkingHandler) OnToolCall(tc domain.ToolCall) {
	*h.toolCalls = append(*h.toolCalls, tc)
	h.out <- domain.ToolCallDetected{ToolCall: tc}
}
