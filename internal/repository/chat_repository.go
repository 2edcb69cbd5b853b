package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/studyhub-io/studyhub-api/internal/models"
)

// ChatRepository provides database access for conversations and messages.
type ChatRepository struct {
	db *sqlx.DB
}

// NewChatRepository creates a new instance of ChatRepository.
func NewChatRepository(db *sqlx.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// CreateConversation inserts a new conversation.
func (r *ChatRepository) CreateConversation(ctx context.Context, c *models.Conversation) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	const query = `INSERT INTO conversations (id, user_id, material_id, title, created_at, updated_at)
		VALUES (:id, :user_id, :material_id, :title, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, c); err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

// FindConversationByID returns a conversation by identifier.
func (r *ChatRepository) FindConversationByID(ctx context.Context, id string) (*models.Conversation, error) {
	const query = `SELECT id, user_id, material_id, title, created_at, updated_at FROM conversations WHERE id = $1 LIMIT 1`
	var c models.Conversation
	if err := r.db.GetContext(ctx, &c, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	return &c, nil
}

// ListConversations returns a user's conversations, most recent activity first.
func (r *ChatRepository) ListConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	const query = `SELECT id, user_id, material_id, title, created_at, updated_at FROM conversations WHERE user_id = $1 ORDER BY updated_at DESC`
	var list []models.Conversation
	if err := r.db.SelectContext(ctx, &list, query, userID); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return list, nil
}

// TouchConversation bumps a conversation's updated_at so it sorts to the top.
func (r *ChatRepository) TouchConversation(ctx context.Context, id string) error {
	const query = `UPDATE conversations SET updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

// DeleteConversation removes a conversation and, via cascade, its messages.
func (r *ChatRepository) DeleteConversation(ctx context.Context, id string) error {
	const query = `DELETE FROM conversations WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

// CreateMessage inserts a message turn.
func (r *ChatRepository) CreateMessage(ctx context.Context, m *models.Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO messages (id, conversation_id, role, content, created_at)
		VALUES (:id, :conversation_id, :role, :content, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, m); err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

// ListMessages returns one page of a conversation's messages in
// chronological order, plus the total turn count.
func (r *ChatRepository) ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]models.Message, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM messages WHERE conversation_id = $1`, conversationID); err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}
	const query = `SELECT id, conversation_id, role, content, created_at FROM messages WHERE conversation_id = $1 ORDER BY created_at ASC LIMIT $2 OFFSET $3`
	var list []models.Message
	if err := r.db.SelectContext(ctx, &list, query, conversationID, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("list messages: %w", err)
	}
	return list, total, nil
}

// RecentMessages returns the latest N messages in chronological order. Used
// to build the assistant prompt without loading the whole history.
func (r *ChatRepository) RecentMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT id, conversation_id, role, content, created_at FROM (
		SELECT id, conversation_id, role, content, created_at FROM messages WHERE conversation_id = $1 ORDER BY created_at DESC LIMIT %d
	) recent ORDER BY created_at ASC`, limit)
	var list []models.Message
	if err := r.db.SelectContext(ctx, &list, query, conversationID); err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	return list, nil
}
