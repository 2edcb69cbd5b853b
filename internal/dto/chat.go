package dto

import "github.com/studyhub-io/studyhub-api/internal/models"

// ChatMessageRequest sends one user turn. ConversationID is optional: the
// first message of a thread omits it and the response carries the new ID.
type ChatMessageRequest struct {
	ConversationID *string `json:"conversation_id,omitempty"`
	MaterialID     *string `json:"material_id,omitempty"`
	Content        string  `json:"content" validate:"required,max=8000"`
}

// ChatMessageResponse returns the persisted turns and the conversation ID.
type ChatMessageResponse struct {
	ConversationID string         `json:"conversation_id"`
	UserMessage    models.Message `json:"user_message"`
	Reply          models.Message `json:"reply"`
}

// ConversationDetail bundles a conversation with a page of its turns.
type ConversationDetail struct {
	Conversation models.Conversation `json:"conversation"`
	Messages     []models.Message    `json:"messages"`
}
