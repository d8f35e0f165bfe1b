// Package anthropic adapts the Anthropic Messages API to the llm.Provider
// contract (C1), mapping extended-thinking output to StreamHandler.OnReasoning.
package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"ragorchestrator/internal/config"
	"ragorchestrator/internal/domain"
	"ragorchestrator/internal/llm"
	"ragorchestrator/internal/observability"
)

const defaultMaxTokens = 4096

// Client is an llm.Provider backed by the Anthropic Messages API.
type Client struct {
	sdk       anthropic.Client
	model     string
	maxTokens int64
}

// New constructs a Client from configuration.
func New(c config.AnthropicConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{option.WithAPIKey(c.APIKey), option.WithHTTPClient(httpClient)}
	if c.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(c.BaseURL))
	}
	model := c.Model
	if model == "" {
		model = string(anthropic.ModelClaudeSonnet4_5)
	}
	return &Client{sdk: anthropic.NewClient(opts...), model: model, maxTokens: defaultMaxTokens}
}

func (c *Client) Info() llm.ProviderInfo {
	return llm.ProviderInfo{Name: "anthropic", Model: c.model}
}

func (c *Client) pickModel(model string) string {
	if strings.TrimSpace(model) != "" {
		return model
	}
	return c.model
}

// shouldIncludeThinking reports whether a model supports Anthropic extended
// thinking; only Claude 3.7+/4.x models do.
func shouldIncludeThinking(model string) bool {
	return strings.Contains(model, "3-7") || strings.Contains(model, "sonnet-4") || strings.Contains(model, "opus-4")
}

func (c *Client) Chat(ctx context.Context, msgs []domain.Message, tools []llm.ToolSchema, model string) (domain.Message, llm.Usage, error) {
	log := observability.LoggerWithTrace(ctx)
	effectiveModel := c.pickModel(model)

	system, messages := adaptMessages(msgs)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(effectiveModel),
		MaxTokens: c.maxTokens,
		System:    system,
		Messages:  messages,
	}
	if len(tools) > 0 {
		params.Tools = adaptTools(tools)
	}
	if shouldIncludeThinking(effectiveModel) {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(c.maxTokens / 2)
	}

	ctx, span := llm.StartRequestSpan(ctx, "Anthropic Chat", effectiveModel, len(tools), len(msgs))
	defer span.End()
	llm.LogRedactedPrompt(ctx, msgs)

	start := time.Now()
	resp, err := c.sdk.Messages.New(ctx, params)
	dur := time.Since(start)
	if err != nil {
		log.Error().Err(err).Str("model", effectiveModel).Dur("duration", dur).Msg("anthropic_message_error")
		span.RecordError(err)
		return domain.Message{}, llm.Usage{}, err
	}
	log.Debug().Str("model", effectiveModel).Dur("duration", dur).Msg("anthropic_message_ok")

	usage := llm.Usage{PromptTokens: int(resp.Usage.InputTokens), CompletionTokens: int(resp.Usage.OutputTokens)}
	llm.RecordTokenAttributes(span, usage.PromptTokens, usage.CompletionTokens, usage.PromptTokens+usage.CompletionTokens)
	llm.RecordTokenMetrics(effectiveModel, usage.PromptTokens, usage.CompletionTokens)

	out := messageFromResponse(resp)
	llm.LogRedactedResponse(ctx, resp)
	return out, usage, nil
}

func (c *Client) ChatStream(ctx context.Context, msgs []domain.Message, tools []llm.ToolSchema, model string, h llm.StreamHandler) (llm.Usage, error) {
	log := observability.LoggerWithTrace(ctx)
	effectiveModel := c.pickModel(model)

	system, messages := adaptMessages(msgs)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(effectiveModel),
		MaxTokens: c.maxTokens,
		System:    system,
		Messages:  messages,
	}
	if len(tools) > 0 {
		params.Tools = adaptTools(tools)
	}
	if shouldIncludeThinking(effectiveModel) {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(c.maxTokens / 2)
	}

	ctx, span := llm.StartRequestSpan(ctx, "Anthropic ChatStream", effectiveModel, len(tools), len(msgs))
	defer span.End()
	llm.LogRedactedPrompt(ctx, msgs)

	start := time.Now()
	stream := c.sdk.Messages.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	toolBlocks := make(map[int64]*domain.ToolCall)
	var usage llm.Usage

	for stream.Next() {
		ev := stream.Current()
		switch e := ev.AsAny().(type) {
		case anthropic.ContentBlockStartEvent:
			if tu, ok := e.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
				toolBlocks[e.Index] = &domain.ToolCall{ID: tu.ID, Type: "function", Function: domain.ToolCallFunction{Name: tu.Name}}
			}
		case anthropic.ContentBlockDeltaEvent:
			switch d := e.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				h.OnDelta(d.Text)
			case anthropic.ThinkingDelta:
				h.OnReasoning(d.Thinking)
			case anthropic.InputJSONDelta:
				if tc := toolBlocks[e.Index]; tc != nil {
					tc.Function.ArgumentsRaw += d.PartialJSON
				}
			}
		case anthropic.ContentBlockStopEvent:
			if tc := toolBlocks[e.Index]; tc != nil {
				h.OnToolCall(*tc)
				delete(toolBlocks, e.Index)
			}
		case anthropic.MessageDeltaEvent:
			if e.Usage.OutputTokens > 0 {
				usage.CompletionTokens = int(e.Usage.OutputTokens)
			}
		}
	}

	err := stream.Err()
	dur := time.Since(start)
	if err != nil {
		log.Error().Err(err).Str("model", effectiveModel).Dur("duration", dur).Msg("anthropic_stream_error")
		span.RecordError(err)
		return usage, err
	}
	log.Debug().Str("model", effectiveModel).Dur("duration", dur).Msg("anthropic_stream_ok")
	llm.RecordTokenAttributes(span, usage.PromptTokens, usage.CompletionTokens, usage.PromptTokens+usage.CompletionTokens)
	llm.RecordTokenMetrics(effectiveModel, usage.PromptTokens, usage.CompletionTokens)
	return usage, nil
}

func adaptTools(tools []llm.ToolSchema) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		schema := anthropic.ToolInputSchemaParam{}
		if props, ok := t.Parameters["properties"]; ok {
			schema.Properties = props
		}
		if req, ok := t.Parameters["required"]; ok {
			if rs, ok := req.([]string); ok {
				schema.Required = rs
			}
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: schema,
		}})
	}
	return out
}

func adaptMessages(msgs []domain.Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam) {
	var system []anthropic.TextBlockParam
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case domain.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
		case domain.RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case domain.RoleTool:
			out = append(out, anthropic.NewUserMessage(anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false)))
		case domain.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, decodeArgs(json.RawMessage(tc.Function.ArgumentsRaw)), tc.Function.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		}
	}
	return system, out
}

func messageFromResponse(resp *anthropic.Message) domain.Message {
	out := domain.Message{Role: domain.RoleAssistant}
	var content, reasoning strings.Builder
	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			content.WriteString(b.Text)
		case anthropic.ThinkingBlock:
			reasoning.WriteString(b.Thinking)
		case anthropic.ToolUseBlock:
			out.ToolCalls = append(out.ToolCalls, domain.ToolCall{
				ID:   b.ID,
				Type: "function",
				Function: domain.ToolCallFunction{
					Name:         b.Name,
					ArgumentsRaw: string(b.Input),
				},
			})
		}
	}
	out.Content = content.String()
	if reasoning.Len() > 0 {
		r := reasoning.String()
		out.Metadata = &domain.MessageMetadata{Reasoning: &r}
	}
	return out
}

func decodeArgs(raw json.RawMessage) any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err == nil {
		return m
	}
	return map[string]any{}
}
