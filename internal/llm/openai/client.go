// Package openai adapts the OpenAI chat-completions API to the llm.Provider
// contract (C1).
package openai

import (
	"context"
	"net/http"
	"strings"
	"time"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"ragorchestrator/internal/config"
	"ragorchestrator/internal/domain"
	"ragorchestrator/internal/llm"
	"ragorchestrator/internal/observability"
)

// Client is an llm.Provider backed by the OpenAI chat completions API (or
// any OpenAI-compatible endpoint reachable via config.OpenAIConfig.BaseURL).
type Client struct {
	sdk   sdk.Client
	model string
}

// New constructs a Client from configuration.
func New(c config.OpenAIConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{option.WithAPIKey(c.APIKey), option.WithHTTPClient(httpClient)}
	if c.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(c.BaseURL))
	}
	return &Client{sdk: sdk.NewClient(opts...), model: c.Model}
}

func (c *Client) Info() llm.ProviderInfo {
	return llm.ProviderInfo{Name: "openai", Model: c.model}
}

func (c *Client) modelOrDefault(model string) string {
	if strings.TrimSpace(model) != "" {
		return model
	}
	return c.model
}

// Chat performs a single non-streaming completion.
func (c *Client) Chat(ctx context.Context, msgs []domain.Message, tools []llm.ToolSchema, model string) (domain.Message, llm.Usage, error) {
	log := observability.LoggerWithTrace(ctx)
	effectiveModel := c.modelOrDefault(model)

	params := sdk.ChatCompletionNewParams{Model: sdk.ChatModel(effectiveModel)}
	params.Messages = AdaptMessages(msgs)
	if len(tools) > 0 {
		params.Tools = AdaptSchemas(tools)
	}

	ctx, span := llm.StartRequestSpan(ctx, "OpenAI Chat", effectiveModel, len(tools), len(msgs))
	defer span.End()
	llm.LogRedactedPrompt(ctx, msgs)

	start := time.Now()
	comp, err := c.sdk.Chat.Completions.New(ctx, params)
	dur := time.Since(start)
	if err != nil {
		log.Error().Err(err).Str("model", effectiveModel).Dur("duration", dur).Msg("chat_completion_error")
		span.RecordError(err)
		return domain.Message{}, llm.Usage{}, err
	}
	log.Debug().Str("model", effectiveModel).Dur("duration", dur).Int("tools", len(tools)).Msg("chat_completion_ok")

	usage := llm.Usage{PromptTokens: int(comp.Usage.PromptTokens), CompletionTokens: int(comp.Usage.CompletionTokens)}
	llm.RecordTokenAttributes(span, usage.PromptTokens, usage.CompletionTokens, int(comp.Usage.TotalTokens))
	llm.RecordTokenMetrics(effectiveModel, usage.PromptTokens, usage.CompletionTokens)

	var out domain.Message
	if len(comp.Choices) == 0 {
		return out, usage, nil
	}
	msg := comp.Choices[0].Message
	out = domain.Message{Role: domain.RoleAssistant, Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		if fn, ok := tc.AsAny().(sdk.ChatCompletionMessageFunctionToolCall); ok {
			if isEmptyArgs(fn.Function.Arguments) {
				log.Warn().Str("tool", fn.Function.Name).Str("id", fn.ID).Msg("skipping tool call with empty arguments")
				continue
			}
			out.ToolCalls = append(out.ToolCalls, domain.ToolCall{
				ID:   fn.ID,
				Type: "function",
				Function: domain.ToolCallFunction{
					Name:         fn.Function.Name,
					ArgumentsRaw: fn.Function.Arguments,
				},
			})
		}
	}
	llm.LogRedactedResponse(ctx, comp.Choices)
	return out, usage, nil
}

// ChatStream performs a streaming completion, flushing accumulated tool
// calls only once the model signals finish_reason.
func (c *Client) ChatStream(ctx context.Context, msgs []domain.Message, tools []llm.ToolSchema, model string, h llm.StreamHandler) (llm.Usage, error) {
	log := observability.LoggerWithTrace(ctx)
	effectiveModel := c.modelOrDefault(model)

	params := sdk.ChatCompletionNewParams{Model: sdk.ChatModel(effectiveModel)}
	params.Messages = AdaptMessages(msgs)
	if len(tools) > 0 {
		params.Tools = AdaptSchemas(tools)
	}
	params.StreamOptions.IncludeUsage = sdk.Bool(true)

	ctx, span := llm.StartRequestSpan(ctx, "OpenAI ChatStream", effectiveModel, len(tools), len(msgs))
	defer span.End()
	llm.LogRedactedPrompt(ctx, msgs)

	start := time.Now()
	stream := c.sdk.Chat.Completions.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	toolCalls := make(map[int]*domain.ToolCall)
	flushed := false
	var usage llm.Usage

	for stream.Next() {
		chunk := stream.Current()
		if chunk.Usage.TotalTokens > 0 {
			usage = llm.Usage{PromptTokens: int(chunk.Usage.PromptTokens), CompletionTokens: int(chunk.Usage.CompletionTokens)}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			h.OnDelta(delta.Content)
		}
		// Index is the API-provided slot, not the range index: chunks may
		// arrive interleaved or contain only a subset of the tool calls.
		for _, tc := range delta.ToolCalls {
			idx := int(tc.Index)
			if toolCalls[idx] == nil {
				toolCalls[idx] = &domain.ToolCall{ID: tc.ID, Type: "function"}
			}
			if tc.Function.Name != "" {
				toolCalls[idx].Function.Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				toolCalls[idx].Function.ArgumentsRaw += tc.Function.Arguments
			}
		}
		if chunk.Choices[0].FinishReason != "" && !flushed {
			for _, tc := range toolCalls {
				if tc != nil && tc.Function.Name != "" && !isEmptyArgs(tc.Function.ArgumentsRaw) {
					h.OnToolCall(*tc)
				}
			}
			flushed = true
		}
	}

	err := stream.Err()
	dur := time.Since(start)
	if err != nil {
		log.Error().Err(err).Str("model", effectiveModel).Dur("duration", dur).Msg("chat_stream_error")
		span.RecordError(err)
		return usage, err
	}
	log.Debug().Str("model", effectiveModel).Dur("duration", dur).Msg("chat_stream_ok")
	llm.RecordTokenAttributes(span, usage.PromptTokens, usage.CompletionTokens, usage.PromptTokens+usage.CompletionTokens)
	llm.RecordTokenMetrics(effectiveModel, usage.PromptTokens, usage.CompletionTokens)
	return usage, nil
}

func isEmptyArgs(raw string) bool {
	s := strings.TrimSpace(raw)
	return s == "" || s == "{}"
}
