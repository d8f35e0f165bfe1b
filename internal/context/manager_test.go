package ctxmgr

import (
	"context"
	"testing"

	"ragorchestrator/internal/domain"
	"ragorchestrator/internal/persistence/databases"
)

func TestCreateConversationWithInitialMessage(t *testing.T) {
	mgr := New(databases.NewMemoryConversationStore(), 20)
	initial := "hello there"

	cc, err := mgr.CreateConversation(context.Background(), "caller-1", nil, nil, &initial)
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if len(cc.Messages) != 1 || cc.Messages[0].Content != initial {
		t.Fatalf("expected the initial message to be persisted, got %+v", cc.Messages)
	}
	if cc.Conversation.MessageCount != 1 {
		t.Fatalf("expected MessageCount=1, got %d", cc.Conversation.MessageCount)
	}
}

func TestAddMessageUpdatesCounters(t *testing.T) {
	mgr := New(databases.NewMemoryConversationStore(), 20)
	cc, err := mgr.CreateConversation(context.Background(), "caller-1", nil, nil, nil)
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	cc, err = mgr.AddMessage(context.Background(), cc.Conversation.ID, domain.Message{Role: domain.RoleUser, Content: "hi"})
	if err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	cc, err = mgr.AddMessage(context.Background(), cc.Conversation.ID, domain.Message{Role: domain.RoleTool, Content: "result"})
	if err != nil {
		t.Fatalf("AddMessage: %v", err)
	}

	if cc.Conversation.MessageCount != 2 {
		t.Fatalf("expected MessageCount=2, got %d", cc.Conversation.MessageCount)
	}
	if cc.Conversation.ToolCallsCount != 1 {
		t.Fatalf("expected ToolCallsCount=1, got %d", cc.Conversation.ToolCallsCount)
	}
	if cc.TotalTokens == 0 {
		t.Fatal("expected a non-zero token estimate")
	}
}

func TestRollingWindowCutsOldestFirst(t *testing.T) {
	mgr := New(databases.NewMemoryConversationStore(), 2)
	cc, err := mgr.CreateConversation(context.Background(), "caller-1", nil, nil, nil)
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	id := cc.Conversation.ID

	for i := 0; i < 5; i++ {
		cc, err = mgr.AddMessage(context.Background(), id, domain.Message{Role: domain.RoleUser, Content: "msg"})
		if err != nil {
			t.Fatalf("AddMessage %d: %v", i, err)
		}
	}

	if len(cc.Messages) != 2 {
		t.Fatalf("expected the window to be clamped to 2, got %d", len(cc.Messages))
	}
}

func TestRollingWindowAdjustsBackwardsPastOrphanToolMessages(t *testing.T) {
	mgr := New(databases.NewMemoryConversationStore(), 2)
	cc, err := mgr.CreateConversation(context.Background(), "caller-1", nil, nil, nil)
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	id := cc.Conversation.ID

	// assistant (with tool call) -> tool result -> tool result -> user
	// A naive last-2 cut would start mid-way through the tool results,
	// stranding them without their requesting assistant message.
	msgs := []domain.Message{
		{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{{ID: "t1"}, {ID: "t2"}}},
		{Role: domain.RoleTool, Content: "r1", ToolCallID: "t1"},
		{Role: domain.RoleTool, Content: "r2", ToolCallID: "t2"},
		{Role: domain.RoleUser, Content: "thanks"},
	}
	for _, m := range msgs {
		cc, err = mgr.AddMessage(context.Background(), id, m)
		if err != nil {
			t.Fatalf("AddMessage: %v", err)
		}
	}

	if cc.Messages[0].Role == domain.RoleTool {
		t.Fatalf("expected the window to back up past orphaned tool messages, got first role %q", cc.Messages[0].Role)
	}
}

func TestEstimateTokensNeverZero(t *testing.T) {
	if n := EstimateTokens(""); n < 1 {
		t.Fatalf("expected a floor of 1 token, got %d", n)
	}
	if n := EstimateTokens("a reasonably long message body"); n < 1 {
		t.Fatalf("expected a positive estimate, got %d", n)
	}
}
