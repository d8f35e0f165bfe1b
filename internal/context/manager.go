// Package ctxmgr implements the Context Manager (C6): conversation
// load/append/persist with a rolling-window policy over message history.
package ctxmgr

import (
	stdctx "context"
	"time"

	"github.com/google/uuid"

	"ragorchestrator/internal/domain"
	"ragorchestrator/internal/persistence"
)

// Manager is the Context Manager (C6). One instance is built at startup over
// whichever persistence.ConversationStore CONVERSATION_STORAGE_MODE selected.
type Manager struct {
	store      persistence.ConversationStore
	windowSize int
}

// New constructs a Manager. windowSize is the rolling-window size W
// (CONVERSATION_ROLLING_WINDOW_SIZE, default 20).
func New(store persistence.ConversationStore, windowSize int) *Manager {
	if windowSize <= 0 {
		windowSize = 20
	}
	return &Manager{store: store, windowSize: windowSize}
}

// Load returns the current rolling window over a conversation's stored
// messages. Fails with persistence.ErrNotFound if the id is unknown.
func (m *Manager) Load(ctx stdctx.Context, conversationID string) (domain.ConversationContext, error) {
	conv, err := m.store.GetConversation(ctx, conversationID)
	if err != nil {
		return domain.ConversationContext{}, err
	}
	all, err := m.store.ListMessages(ctx, conversationID)
	if err != nil {
		return domain.ConversationContext{}, err
	}
	return m.buildContext(conv, all), nil
}

// CreateConversation creates a new conversation, optionally seeded with an
// initial user message.
func (m *Manager) CreateConversation(ctx stdctx.Context, callerID string, userID, accountID, initialMessage *string) (domain.ConversationContext, error) {
	now := time.Now().UTC()
	conv := domain.Conversation{
		ID:            uuid.NewString(),
		CallerID:      callerID,
		UserID:        userID,
		AccountID:     accountID,
		CreatedAt:     now,
		UpdatedAt:     now,
		LastMessageAt: now,
		Status:        domain.StatusActive,
	}
	if err := m.store.CreateConversation(ctx, conv); err != nil {
		return domain.ConversationContext{}, err
	}
	if initialMessage == nil || *initialMessage == "" {
		return domain.ConversationContext{Conversation: conv}, nil
	}
	msg := domain.Message{
		ID:         uuid.NewString(),
		Role:       domain.RoleUser,
		Content:    *initialMessage,
		CreatedAt:  now,
		TokenCount: EstimateTokens(*initialMessage),
	}
	return m.AddMessage(ctx, conv.ID, msg)
}

// AddMessage appends a message atomically, updates counters and
// lastMessageAt, and returns the refreshed context.
func (m *Manager) AddMessage(ctx stdctx.Context, conversationID string, msg domain.Message) (domain.ConversationContext, error) {
	return m.addMessage(ctx, conversationID, msg)
}

// AddMessageWithMetadata is AddMessage but stores metadata alongside the
// message (it sets msg.Metadata itself before persisting).
func (m *Manager) AddMessageWithMetadata(ctx stdctx.Context, conversationID string, msg domain.Message, metadata *domain.MessageMetadata) (domain.ConversationContext, error) {
	msg.Metadata = metadata
	return m.addMessage(ctx, conversationID, msg)
}

func (m *Manager) addMessage(ctx stdctx.Context, conversationID string, msg domain.Message) (domain.ConversationContext, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if msg.TokenCount == 0 {
		msg.TokenCount = EstimateTokens(msg.Content)
	}

	conv, err := m.store.GetConversation(ctx, conversationID)
	if err != nil {
		return domain.ConversationContext{}, err
	}
	if err := m.store.AppendMessage(ctx, conversationID, msg); err != nil {
		return domain.ConversationContext{}, err
	}

	conv.MessageCount++
	if msg.Role == domain.RoleTool {
		conv.ToolCallsCount++
	}
	conv.TotalTokens += msg.TokenCount
	conv.LastMessageAt = msg.CreatedAt
	conv.UpdatedAt = msg.CreatedAt
	if err := m.store.SaveConversation(ctx, conv); err != nil {
		return domain.ConversationContext{}, err
	}

	all, err := m.store.ListMessages(ctx, conversationID)
	if err != nil {
		return domain.ConversationContext{}, err
	}
	return m.buildContext(conv, all), nil
}

// IncrementToolCallsCount bumps Conversation.ToolCallsCount for a tool
// dispatch that never produces a persisted message (§4.8 step 3): tool
// results live only in the orchestrator's in-memory working list for the
// turn, so the counter has no persisted RoleTool message to piggyback on.
func (m *Manager) IncrementToolCallsCount(ctx stdctx.Context, conversationID string) error {
	conv, err := m.store.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	conv.ToolCallsCount++
	conv.UpdatedAt = time.Now().UTC()
	return m.store.SaveConversation(ctx, conv)
}

// SaveConversation persists the counter updates accumulated during a turn.
func (m *Manager) SaveConversation(ctx stdctx.Context, cc domain.ConversationContext) error {
	return m.store.SaveConversation(ctx, cc.Conversation)
}

// RecentByCaller returns the caller's most recently active conversations.
func (m *Manager) RecentByCaller(ctx stdctx.Context, callerID string, limit int) ([]domain.Conversation, error) {
	return m.store.RecentByCaller(ctx, callerID, limit)
}

// buildContext applies the rolling-window policy (§4.4) to the full message
// history: window = messages[-W:], adjusted backwards until the first
// message in the window is not a TOOL message whose requesting ASSISTANT
// message fell before the cut (invariant 5, §3).
func (m *Manager) buildContext(conv domain.Conversation, all []domain.Message) domain.ConversationContext {
	window := rollingWindow(all, m.windowSize)
	total := 0
	for _, msg := range window {
		total += msg.TokenCount
	}
	return domain.ConversationContext{Conversation: conv, Messages: window, TotalTokens: total}
}

func rollingWindow(all []domain.Message, windowSize int) []domain.Message {
	if len(all) <= windowSize {
		return all
	}
	start := len(all) - windowSize
	for start > 0 && all[start].Role == domain.RoleTool {
		start--
	}
	return all[start:]
}

// EstimateTokens is the cheap token-count heuristic (§4.4): a production
// decision never depends on its exact value.
func EstimateTokens(content string) int {
	n := len(content) / 4
	if n < 1 {
		return 1
	}
	return n
}
