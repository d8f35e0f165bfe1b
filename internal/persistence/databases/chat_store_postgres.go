package databases

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ragorchestrator/internal/domain"
	"ragorchestrator/internal/observability"
	"ragorchestrator/internal/persistence"
)

// NewPostgresConversationStore returns a Postgres-backed
// persistence.ConversationStore, used when CONVERSATION_STORAGE_MODE=database.
func NewPostgresConversationStore(pool *pgxpool.Pool) persistence.ConversationStore {
	return &pgConversationStore{pool: pool}
}

type pgConversationStore struct {
	pool *pgxpool.Pool
}

// Init creates the two column-exact tables this store is compatible with.
func (s *pgConversationStore) Init(ctx context.Context) error {
	if s.pool == nil {
		return errors.New("postgres conversation store requires pool")
	}
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS conversations (
    conversation_id   VARCHAR(36) PRIMARY KEY,
    caller_id         VARCHAR(100) NOT NULL,
    user_id           VARCHAR(100),
    account_id        VARCHAR(100),
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    last_message_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    message_count     INTEGER NOT NULL DEFAULT 0,
    tool_calls_count  INTEGER NOT NULL DEFAULT 0,
    total_tokens      INTEGER NOT NULL DEFAULT 0,
    status            VARCHAR(20) NOT NULL DEFAULT 'active',
    s3_key            VARCHAR(255),
    metadata          TEXT
);

CREATE INDEX IF NOT EXISTS conversations_caller_id_idx ON conversations(caller_id);
CREATE INDEX IF NOT EXISTS conversations_caller_created_idx ON conversations(caller_id, created_at);
CREATE INDEX IF NOT EXISTS conversations_status_idx ON conversations(status);

CREATE TABLE IF NOT EXISTS conversation_messages (
    message_id      VARCHAR(36) PRIMARY KEY,
    conversation_id VARCHAR(36) NOT NULL REFERENCES conversations(conversation_id) ON DELETE CASCADE,
    role            VARCHAR(20) NOT NULL,
    content         TEXT NOT NULL,
    tool_call_id    VARCHAR(100),
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    token_count     INTEGER NOT NULL DEFAULT 0,
    metadata        TEXT
);

CREATE INDEX IF NOT EXISTS conversation_messages_conversation_id_idx ON conversation_messages(conversation_id);
`)
	return err
}

func (s *pgConversationStore) CreateConversation(ctx context.Context, conv domain.Conversation) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO conversations (conversation_id, caller_id, user_id, account_id, created_at, updated_at, last_message_at,
    message_count, tool_calls_count, total_tokens, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		conv.ID, conv.CallerID, conv.UserID, conv.AccountID, conv.CreatedAt, conv.UpdatedAt, conv.LastMessageAt,
		conv.MessageCount, conv.ToolCallsCount, conv.TotalTokens, string(conv.Status))
	return err
}

func (s *pgConversationStore) scanConversation(row pgx.Row) (domain.Conversation, error) {
	var conv domain.Conversation
	var status string
	var userID, accountID sql.NullString
	if err := row.Scan(&conv.ID, &conv.CallerID, &userID, &accountID, &conv.CreatedAt, &conv.UpdatedAt,
		&conv.LastMessageAt, &conv.MessageCount, &conv.ToolCallsCount, &conv.TotalTokens, &status); err != nil {
		return domain.Conversation{}, err
	}
	conv.Status = domain.ConversationStatus(status)
	if userID.Valid {
		v := userID.String
		conv.UserID = &v
	}
	if accountID.Valid {
		v := accountID.String
		conv.AccountID = &v
	}
	return conv, nil
}

func (s *pgConversationStore) GetConversation(ctx context.Context, id string) (domain.Conversation, error) {
	row := s.pool.QueryRow(ctx, `
SELECT conversation_id, caller_id, user_id, account_id, created_at, updated_at, last_message_at,
       message_count, tool_calls_count, total_tokens, status
FROM conversations WHERE conversation_id = $1`, id)
	conv, err := s.scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Conversation{}, persistence.ErrNotFound
	}
	return conv, err
}

func (s *pgConversationStore) SaveConversation(ctx context.Context, conv domain.Conversation) error {
	cmd, err := s.pool.Exec(ctx, `
UPDATE conversations
SET updated_at = $2, last_message_at = $3, message_count = $4, tool_calls_count = $5, total_tokens = $6, status = $7
WHERE conversation_id = $1`,
		conv.ID, conv.UpdatedAt, conv.LastMessageAt, conv.MessageCount, conv.ToolCallsCount, conv.TotalTokens, string(conv.Status))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func (s *pgConversationStore) AppendMessage(ctx context.Context, conversationID string, msg domain.Message) error {
	log := observability.LoggerWithTrace(ctx)
	var metadataJSON []byte
	if msg.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(msg.Metadata)
		if err != nil {
			return err
		}
	}
	cmd, err := s.pool.Exec(ctx, `
INSERT INTO conversation_messages (message_id, conversation_id, role, content, tool_call_id, created_at, token_count, metadata)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8)`,
		msg.ID, conversationID, string(msg.Role), msg.Content, msg.ToolCallID, msg.CreatedAt, msg.TokenCount, nullableJSON(metadataJSON))
	if err != nil {
		log.Error().Err(err).Str("conversation_id", conversationID).Msg("append_message_failed")
		return err
	}
	if cmd.RowsAffected() == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func (s *pgConversationStore) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
SELECT message_id, role, content, tool_call_id, created_at, token_count, metadata
FROM conversation_messages
WHERE conversation_id = $1
ORDER BY created_at ASC, message_id ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var msg domain.Message
		var role string
		var toolCallID sql.NullString
		var metadataJSON sql.NullString
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &toolCallID, &msg.CreatedAt, &msg.TokenCount, &metadataJSON); err != nil {
			return nil, err
		}
		msg.Role = domain.MessageRole(role)
		if toolCallID.Valid {
			msg.ToolCallID = toolCallID.String
		}
		if metadataJSON.Valid && metadataJSON.String != "" {
			var meta domain.MessageMetadata
			if err := json.Unmarshal([]byte(metadataJSON.String), &meta); err == nil {
				msg.Metadata = &meta
			}
		}
		out = append(out, msg)
	}
	if out == nil {
		out = make([]domain.Message, 0)
	}
	return out, rows.Err()
}

func (s *pgConversationStore) RecentByCaller(ctx context.Context, callerID string, limit int) ([]domain.Conversation, error) {
	rows, err := s.pool.Query(ctx, `
SELECT conversation_id, caller_id, user_id, account_id, created_at, updated_at, last_message_at,
       message_count, tool_calls_count, total_tokens, status
FROM conversations
WHERE caller_id = $1
ORDER BY last_message_at DESC
LIMIT $2`, callerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Conversation
	for rows.Next() {
		conv, err := s.scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, conv)
	}
	if out == nil {
		out = make([]domain.Conversation, 0)
	}
	return out, rows.Err()
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
