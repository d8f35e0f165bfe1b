// Package finalize declares the Finalize Tool (C5): a sentinel the model is
// told about so it can choose to call it, but whose invocation the registry
// never actually executes — the Orchestrator intercepts the call by name
// before dispatch (§4.8).
package finalize

import (
	"context"
	"encoding/json"
	"fmt"
)

// ToolName is the sentinel name the Orchestrator intercepts.
const ToolName = "finalize_answer"

// Tool is registered so its schema reaches the model, but Call is never
// invoked in practice: the Orchestrator recognizes ToolName before dispatch
// and diverts to its own finalize subroutine instead of calling Dispatch.
type Tool struct{}

// New constructs the finalize sentinel tool.
func New() *Tool { return &Tool{} }

func (t *Tool) Name() string { return ToolName }

func (t *Tool) JSONSchema() map[string]any {
	return map[string]any{
		"name":        ToolName,
		"description": "Call this when you have enough information to give the user a complete final answer. Do not call any other tool afterwards.",
		"parameters": map[string]any{
			"type":     "object",
			"required": []string{"context", "user_question"},
			"properties": map[string]any{
				"context": map[string]any{
					"type":        "string",
					"description": "Everything gathered so far (tool results, reasoning) needed to answer the question.",
				},
				"user_question": map[string]any{
					"type":        "string",
					"description": "The user's original question, verbatim.",
				},
				"answer_style": map[string]any{
					"type":        "string",
					"enum":        []string{"concise", "detailed", "step_by_step"},
					"description": "Defaults to \"detailed\" if omitted.",
				},
			},
		},
	}
}

// Call should never be reached in a correctly wired orchestrator; it exists
// only so Tool satisfies tools.Tool.
func (t *Tool) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	return nil, fmt.Errorf("%s is a sentinel tool; the orchestrator must intercept it before dispatch", ToolName)
}

// Args is the parsed argument shape the Orchestrator's finalize subroutine
// reads off the intercepted tool call.
type Args struct {
	Context      string `json:"context"`
	UserQuestion string `json:"user_question"`
	AnswerStyle  string `json:"answer_style"`
}

// ParseArgs decodes a finalize_answer tool call's raw arguments.
func ParseArgs(raw json.RawMessage) (Args, error) {
	var a Args
	if err := json.Unmarshal(raw, &a); err != nil {
		return Args{}, err
	}
	if a.AnswerStyle == "" {
		a.AnswerStyle = "detailed"
	}
	return a, nil
}
