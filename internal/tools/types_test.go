package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

type stubTool struct {
	name   string
	result any
	err    error
}

func (s stubTool) Name() string { return s.name }
func (s stubTool) JSONSchema() map[string]any {
	return map[string]any{
		"description": "a stub tool",
		"parameters":  map[string]any{"type": "object"},
	}
}
func (s stubTool) Call(ctx context.Context, raw json.RawMessage) (any, error) { return s.result, s.err }

func TestDispatchUnknownToolReturnsStructuredError(t *testing.T) {
	r := NewRegistry()
	out, err := r.Dispatch(context.Background(), "nope", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("expected no Go error, got %v", err)
	}
	if string(out) != `{"error":"tool not found"}` {
		t.Fatalf("unexpected payload: %s", out)
	}
}

func TestDispatchSucceeds(t *testing.T) {
	r := NewRegistry()
	r.Register(stubTool{name: "echo", result: map[string]any{"ok": true}})

	out, err := r.Dispatch(context.Background(), "echo", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["ok"] != true {
		t.Fatalf("unexpected payload: %s", out)
	}
}

func TestDispatchWrapsToolError(t *testing.T) {
	r := NewRegistry()
	r.Register(stubTool{name: "broken", err: errors.New("boom")})

	out, err := r.Dispatch(context.Background(), "broken", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("expected no Go error, got %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["ok"] != false || decoded["error"] != "boom" {
		t.Fatalf("unexpected payload: %s", out)
	}
}

func TestSchemasReflectRegisteredTools(t *testing.T) {
	r := NewRegistry()
	r.Register(stubTool{name: "echo"})

	schemas := r.Schemas()
	if len(schemas) != 1 || schemas[0].Name != "echo" || schemas[0].Description != "a stub tool" {
		t.Fatalf("unexpected schemas: %+v", schemas)
	}
}
