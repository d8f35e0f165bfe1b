package databases

import (
	"context"
	"errors"
	"testing"
	"time"

	"ragorchestrator/internal/domain"
	"ragorchestrator/internal/persistence"
)

func TestMemoryStoreGetUnknownConversationReturnsErrNotFound(t *testing.T) {
	store := NewMemoryConversationStore()
	if _, err := store.GetConversation(context.Background(), "nope"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreAppendMessageRequiresExistingConversation(t *testing.T) {
	store := NewMemoryConversationStore()
	err := store.AppendMessage(context.Background(), "nope", domain.Message{Content: "hi"})
	if !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreCreateAppendListRoundTrip(t *testing.T) {
	store := NewMemoryConversationStore()
	ctx := context.Background()

	conv := domain.Conversation{ID: "c1", CallerID: "caller-1"}
	if err := store.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if err := store.AppendMessage(ctx, "c1", domain.Message{ID: "m1", Content: "hello"}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	msgs, err := store.ListMessages(ctx, "c1")
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "hello" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
}

func TestMemoryStoreRecentByCallerOrdersNewestFirstAndFilters(t *testing.T) {
	store := NewMemoryConversationStore()
	ctx := context.Background()
	now := time.Now().UTC()

	_ = store.CreateConversation(ctx, domain.Conversation{ID: "a", CallerID: "caller-1", LastMessageAt: now.Add(-time.Hour)})
	_ = store.CreateConversation(ctx, domain.Conversation{ID: "b", CallerID: "caller-1", LastMessageAt: now})
	_ = store.CreateConversation(ctx, domain.Conversation{ID: "c", CallerID: "other-caller", LastMessageAt: now})

	convs, err := store.RecentByCaller(ctx, "caller-1", 10)
	if err != nil {
		t.Fatalf("RecentByCaller: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("expected only caller-1's conversations, got %+v", convs)
	}
	if convs[0].ID != "b" || convs[1].ID != "a" {
		t.Fatalf("expected newest-first ordering, got %+v", convs)
	}
}

func TestMemoryStoreRecentByCallerRespectsLimit(t *testing.T) {
	store := NewMemoryConversationStore()
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		_ = store.CreateConversation(ctx, domain.Conversation{ID: id, CallerID: "caller-1", LastMessageAt: now.Add(time.Duration(i) * time.Minute)})
	}

	convs, err := store.RecentByCaller(ctx, "caller-1", 2)
	if err != nil {
		t.Fatalf("RecentByCaller: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("expected limit to clamp to 2, got %d", len(convs))
	}
}
