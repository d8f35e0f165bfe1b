// Package google adapts the Gemini GenerateContent API to the llm.Provider
// contract (C1), mapping extended-thinking summaries to StreamHandler.OnReasoning.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	genai "google.golang.org/genai"

	"ragorchestrator/internal/config"
	"ragorchestrator/internal/domain"
	"ragorchestrator/internal/llm"
	"ragorchestrator/internal/observability"
)

// Client is an llm.Provider backed by Gemini's native function-calling API.
type Client struct {
	client *genai.Client
	model  string
}

// New constructs a Client from configuration.
func New(cfg config.GoogleConfig, httpClient *http.Client) (*Client, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}
	httpOpts := genai.HTTPOptions{}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		httpOpts.BaseURL = strings.TrimSuffix(base, "/") + "/"
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      strings.TrimSpace(cfg.APIKey),
		HTTPClient:  httpClient,
		HTTPOptions: httpOpts,
	})
	if err != nil {
		return nil, fmt.Errorf("init google client: %w", err)
	}
	return &Client{client: client, model: model}, nil
}

func (c *Client) Info() llm.ProviderInfo {
	return llm.ProviderInfo{Name: "google", Model: c.model}
}

func (c *Client) pickModel(model string) string {
	if strings.TrimSpace(model) != "" {
		return model
	}
	return c.model
}

func shouldIncludeThoughtSummaries(model string) bool {
	return strings.Contains(model, "2.5") || strings.Contains(model, "gemini-3")
}

func (c *Client) buildContentConfig(model string, tools []*genai.Tool, toolCfg *genai.ToolConfig) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{Tools: tools, ToolConfig: toolCfg}
	if shouldIncludeThoughtSummaries(model) {
		cfg.ThinkingConfig = &genai.ThinkingConfig{IncludeThoughts: true}
	}
	return cfg
}

func (c *Client) Chat(ctx context.Context, msgs []domain.Message, tools []llm.ToolSchema, model string) (domain.Message, llm.Usage, error) {
	log := observability.LoggerWithTrace(ctx)
	effectiveModel := c.pickModel(model)

	ctx, span := llm.StartRequestSpan(ctx, "Google Chat", effectiveModel, len(tools), len(msgs))
	defer span.End()
	llm.LogRedactedPrompt(ctx, msgs)

	contents := toContents(msgs)
	toolDecls, toolCfg := adaptTools(tools)

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, effectiveModel, contents, c.buildContentConfig(effectiveModel, toolDecls, toolCfg))
	dur := time.Since(start)
	if err != nil {
		span.RecordError(err)
		log.Error().Err(err).Str("model", effectiveModel).Dur("duration", dur).Msg("google_chat_error")
		return domain.Message{}, llm.Usage{}, err
	}

	msg := messageFromResponse(resp)
	var usage llm.Usage
	if resp.UsageMetadata != nil {
		usage = llm.Usage{PromptTokens: int(resp.UsageMetadata.PromptTokenCount), CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount)}
	}
	llm.RecordTokenAttributes(span, usage.PromptTokens, usage.CompletionTokens, usage.PromptTokens+usage.CompletionTokens)
	llm.RecordTokenMetrics(effectiveModel, usage.PromptTokens, usage.CompletionTokens)
	llm.LogRedactedResponse(ctx, resp)
	log.Debug().Str("model", effectiveModel).Dur("duration", dur).Int("tool_calls", len(msg.ToolCalls)).Msg("google_chat_ok")
	return msg, usage, nil
}

func (c *Client) ChatStream(ctx context.Context, msgs []domain.Message, tools []llm.ToolSchema, model string, h llm.StreamHandler) (llm.Usage, error) {
	log := observability.LoggerWithTrace(ctx)
	effectiveModel := c.pickModel(model)

	ctx, span := llm.StartRequestSpan(ctx, "Google ChatStream", effectiveModel, len(tools), len(msgs))
	defer span.End()
	llm.LogRedactedPrompt(ctx, msgs)

	contents := toContents(msgs)
	toolDecls, toolCfg := adaptTools(tools)

	start := time.Now()
	stream := c.client.Models.GenerateContentStream(ctx, effectiveModel, contents, c.buildContentConfig(effectiveModel, toolDecls, toolCfg))

	var usage llm.Usage
	for resp, err := range stream {
		if err != nil {
			dur := time.Since(start)
			span.RecordError(err)
			log.Error().Err(err).Dur("duration", dur).Msg("google_stream_error")
			return usage, err
		}
		if resp.UsageMetadata != nil {
			usage = llm.Usage{PromptTokens: int(resp.UsageMetadata.PromptTokenCount), CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount)}
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			continue
		}
		for _, part := range resp.Candidates[0].Content.Parts {
			switch {
			case part.Thought && part.Text != "":
				h.OnReasoning(part.Text)
			case part.Text != "":
				h.OnDelta(part.Text)
			case part.FunctionCall != nil:
				args, _ := argsToRaw(part.FunctionCall.Args)
				h.OnToolCall(domain.ToolCall{
					ID:   part.FunctionCall.ID,
					Type: "function",
					Function: domain.ToolCallFunction{
						Name:         part.FunctionCall.Name,
						ArgumentsRaw: args,
					},
				})
			}
		}
	}

	dur := time.Since(start)
	log.Debug().Str("model", effectiveModel).Dur("duration", dur).Msg("google_stream_ok")
	llm.RecordTokenAttributes(span, usage.PromptTokens, usage.CompletionTokens, usage.PromptTokens+usage.CompletionTokens)
	llm.RecordTokenMetrics(effectiveModel, usage.PromptTokens, usage.CompletionTokens)
	return usage, nil
}

func toContents(msgs []domain.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case domain.RoleSystem:
			// Gemini has no distinct system role in content history; fold it
			// in as a leading user turn, matching the teacher's fallback.
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		case domain.RoleUser:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		case domain.RoleTool:
			respMap, _ := rawToArgs(m.Content)
			part := genai.NewPartFromFunctionResponse(m.ToolCallID, respMap)
			contents = append(contents, genai.NewContentFromParts([]*genai.Part{part}, genai.RoleUser))
		case domain.RoleAssistant:
			var parts []*genai.Part
			if m.Content != "" {
				parts = append(parts, genai.NewPartFromText(m.Content))
			}
			for _, tc := range m.ToolCalls {
				args, _ := rawToArgs(tc.Function.ArgumentsRaw)
				parts = append(parts, genai.NewPartFromFunctionCall(tc.Function.Name, args))
			}
			if len(parts) > 0 {
				contents = append(contents, genai.NewContentFromParts(parts, genai.RoleModel))
			}
		}
	}
	return contents
}

func messageFromResponse(resp *genai.GenerateContentResponse) domain.Message {
	out := domain.Message{Role: domain.RoleAssistant}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out
	}
	var content, reasoning strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		switch {
		case part.Thought && part.Text != "":
			reasoning.WriteString(part.Text)
		case part.Text != "":
			content.WriteString(part.Text)
		case part.FunctionCall != nil:
			args, _ := argsToRaw(part.FunctionCall.Args)
			out.ToolCalls = append(out.ToolCalls, domain.ToolCall{
				ID:   part.FunctionCall.ID,
				Type: "function",
				Function: domain.ToolCallFunction{
					Name:         part.FunctionCall.Name,
					ArgumentsRaw: args,
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

func adaptTools(schemas []llm.ToolSchema) ([]*genai.Tool, *genai.ToolConfig) {
	if len(schemas) == 0 {
		return nil, nil
	}
	fd := make([]*genai.FunctionDeclaration, 0, len(schemas))
	for _, s := range schemas {
		fd = append(fd, &genai.FunctionDeclaration{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  mapToSchema(s.Parameters),
		})
	}
	cfg := &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeAuto}}
	return []*genai.Tool{{FunctionDeclarations: fd}}, cfg
}

func mapToSchema(params map[string]any) *genai.Schema {
	s := &genai.Schema{Type: genai.TypeObject}
	if props, ok := params["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if pm, ok := raw.(map[string]any); ok {
				s.Properties[name] = &genai.Schema{Type: genai.TypeString, Description: fmt.Sprint(pm["description"])}
			}
		}
	}
	if req, ok := params["required"].([]string); ok {
		s.Required = req
	}
	return s
}

func rawToArgs(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return map[string]any{}, err
	}
	return m, nil
}

func argsToRaw(m map[string]any) (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "{}", err
	}
	return string(b), nil
}
