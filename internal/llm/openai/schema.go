package openai

import (
	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/shared"

	"ragorchestrator/internal/domain"
	"ragorchestrator/internal/llm"
)

// AdaptSchemas converts the registry's provider-agnostic tool schemas into
// the SDK's tool-union params.
func AdaptSchemas(schemas []llm.ToolSchema) []sdk.ChatCompletionToolUnionParam {
	out := make([]sdk.ChatCompletionToolUnionParam, 0, len(schemas))
	for _, s := range schemas {
		params := shared.FunctionParameters(s.Parameters)
		out = append(out, sdk.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        s.Name,
			Description: sdk.String(s.Description),
			Parameters:  params,
		}))
	}
	return out
}

// AdaptMessages converts domain.Message history into the SDK's message
// union, mapping USER/ASSISTANT/TOOL/SYSTEM roles and re-attaching tool
// calls/tool results by id.
func AdaptMessages(msgs []domain.Message) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case domain.RoleSystem:
			out = append(out, sdk.SystemMessage(m.Content))
		case domain.RoleUser:
			out = append(out, sdk.UserMessage(m.Content))
		case domain.RoleTool:
			out = append(out, sdk.ToolMessage(m.Content, m.ToolCallID))
		case domain.RoleAssistant:
			asst := sdk.ChatCompletionAssistantMessageParam{}
			if m.Content != "" {
				asst.Content = sdk.ChatCompletionAssistantMessageParamContentUnion{
					OfString: sdk.String(m.Content),
				}
			}
			for _, tc := range m.ToolCalls {
				asst.ToolCalls = append(asst.ToolCalls, sdk.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &sdk.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: sdk.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Function.Name,
							Arguments: tc.Function.ArgumentsRaw,
						},
					},
				})
			}
			out = append(out, sdk.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		}
	}
	return out
}
