package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"ragorchestrator/internal/config"
	ctxmgr "ragorchestrator/internal/context"
	"ragorchestrator/internal/domain"
	"ragorchestrator/internal/llm"
	"ragorchestrator/internal/orchestrator"
	"ragorchestrator/internal/persistence/databases"
	"ragorchestrator/internal/strategy"
	"ragorchestrator/internal/tools"
	"ragorchestrator/internal/tools/finalize"
)

// fakeProvider answers with fixed content and no tool calls, letting the
// orchestrator loop terminate after one iteration.
type fakeProvider struct{}

func (fakeProvider) Chat(ctx context.Context, msgs []domain.Message, schemas []llm.ToolSchema, model string) (domain.Message, llm.Usage, error) {
	return domain.Message{Role: domain.RoleAssistant, Content: "hello"}, llm.Usage{PromptTokens: 1, CompletionTokens: 1}, nil
}

func (fakeProvider) ChatStream(ctx context.Context, msgs []domain.Message, schemas []llm.ToolSchema, model string, h llm.StreamHandler) (llm.Usage, error) {
	h.OnDelta("hello")
	return llm.Usage{PromptTokens: 1, CompletionTokens: 1}, nil
}

func (fakeProvider) Info() llm.ProviderInfo { return llm.ProviderInfo{Name: "fake", Model: "fake-model"} }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := databases.NewMemoryConversationStore()
	mgr := ctxmgr.New(store, 20)

	registry := tools.NewRegistry()
	registry.Register(finalize.New())

	cfg := config.Config{Loop: config.LoopConfig{ModelStrategy: config.StrategyQwenThinking, MaxIterations: 3}}
	factory := strategy.NewFactory(cfg, fakeProvider{})

	orch := orchestrator.New(mgr, registry, factory, orchestrator.NewTurnLock(nil), cfg.Loop, nil, nil)
	return NewServer(orch, mgr, registry)
}

func TestHealthAndPing(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/api/v1/agent/health", "/api/v1/agent/ping"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}

func TestCreateAndGetConversation(t *testing.T) {
	srv := newTestServer(t)

	body, _ := json.Marshal(createConversationRequest{CallerID: "caller-1"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/conversations", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var created domain.ConversationContext
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.Conversation.ID == "" {
		t.Fatal("expected a conversation id")
	}

	getReq := httptest.NewRequest(http.MethodGet, "/api/v1/chat/conversations/"+created.Conversation.ID, nil)
	getRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", getRec.Code)
	}
}

func TestGetConversationNotFound(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/conversations/does-not-exist", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestListTools(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/agent/tools", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp toolsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Tools) != 1 || resp.Tools[0].Name != finalize.ToolName {
		t.Fatalf("expected the finalize tool to be listed, got %+v", resp.Tools)
	}
}

func TestStreamMessage(t *testing.T) {
	srv := newTestServer(t)

	body, _ := json.Marshal(createConversationRequest{CallerID: "caller-1"})
	createReq := httptest.NewRequest(http.MethodPost, "/api/v1/chat/conversations", bytes.NewReader(body))
	createRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(createRec, createReq)
	var created domain.ConversationContext
	_ = json.Unmarshal(createRec.Body.Bytes(), &created)

	msgBody, _ := json.Marshal(streamMessageRequest{Message: "hi there"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/conversations/"+created.Conversation.ID+"/messages/stream", bytes.NewReader(msgBody))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected text/event-stream, got %q", ct)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("event: Completed")) {
		t.Fatalf("expected a Completed event in the stream, got: %s", rec.Body.String())
	}
}
