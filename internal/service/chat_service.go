package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/studyhub-io/studyhub-api/internal/dto"
	"github.com/studyhub-io/studyhub-api/internal/models"
	"github.com/studyhub-io/studyhub-api/internal/repository"
	"github.com/studyhub-io/studyhub-api/pkg/config"
	appErrors "github.com/studyhub-io/studyhub-api/pkg/errors"
)

type chatRepository interface {
	CreateConversation(ctx context.Context, c *models.Conversation) error
	FindConversationByID(ctx context.Context, id string) (*models.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]models.Conversation, error)
	TouchConversation(ctx context.Context, id string) error
	DeleteConversation(ctx context.Context, id string) error
	CreateMessage(ctx context.Context, m *models.Message) error
	ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]models.Message, int, error)
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
}

var _ chatRepository = (*repository.ChatRepository)(nil)

// ChatService runs the study assistant. Conversations are created lazily on
// the first message; replies are grounded in the bound material's summary.
type ChatService struct {
	repo      chatRepository
	materials *MaterialService
	llm       textGenerator
	cfg       config.ChatConfig
	validator *validator.Validate
	logger    *zap.Logger
}

// NewChatService constructs a ChatService instance.
func NewChatService(repo chatRepository, materials *MaterialService, generator textGenerator, cfg config.ChatConfig, validate *validator.Validate, logger *zap.Logger) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ChatService{repo: repo, materials: materials, llm: generator, cfg: cfg, validator: validate, logger: logger}
}

// SendMessage adds a user turn, generates the assistant reply and persists
// both. A missing conversation ID starts a new thread.
func (s *ChatService) SendMessage(ctx context.Context, claims *models.JWTClaims, req dto.ChatMessageRequest) (*dto.ChatMessageResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid chat payload")
	}

	var conversation *models.Conversation
	var err error
	if req.ConversationID != nil {
		conversation, err = s.getOwnedConversation(ctx, claims.UserID, *req.ConversationID)
		if err != nil {
			return nil, err
		}
	} else {
		conversation, err = s.startConversation(ctx, claims, req)
		if err != nil {
			return nil, err
		}
	}

	history, err := s.repo.RecentMessages(ctx, conversation.ID, s.cfg.HistoryLimit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load history")
	}

	prompt, err := s.buildPrompt(ctx, claims, conversation, history, req.Content)
	if err != nil {
		return nil, err
	}

	// The user turn is kept even when the assistant is down, so the thread
	// can be retried without retyping.
	userMessage := &models.Message{ConversationID: conversation.ID, Role: models.MessageRoleUser, Content: req.Content}
	if err := s.repo.CreateMessage(ctx, userMessage); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store message")
	}

	replyText, err := s.llm.Generate(ctx, prompt)
	if err != nil {
		s.logger.Error("assistant generation failed", zap.String("conversation_id", conversation.ID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrAssistantUpstream.Code, appErrors.ErrAssistantUpstream.Status, "assistant is temporarily unavailable")
	}

	reply := &models.Message{ConversationID: conversation.ID, Role: models.MessageRoleAssistant, Content: strings.TrimSpace(replyText)}
	if err := s.repo.CreateMessage(ctx, reply); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store reply")
	}
	if err := s.repo.TouchConversation(ctx, conversation.ID); err != nil {
		s.logger.Warn("failed to touch conversation", zap.String("conversation_id", conversation.ID), zap.Error(err))
	}

	return &dto.ChatMessageResponse{
		ConversationID: conversation.ID,
		UserMessage:    *userMessage,
		Reply:          *reply,
	}, nil
}

// ListConversations returns the caller's threads, most recent first.
func (s *ChatService) ListConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	list, err := s.repo.ListConversations(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list conversations")
	}
	return list, nil
}

// GetConversation returns a thread with one page of its turns.
func (s *ChatService) GetConversation(ctx context.Context, userID, id string, page, pageSize int) (*dto.ConversationDetail, *models.Pagination, error) {
	conversation, err := s.getOwnedConversation(ctx, userID, id)
	if err != nil {
		return nil, nil, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	messages, total, err := s.repo.ListMessages(ctx, conversation.ID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load messages")
	}
	detail := &dto.ConversationDetail{Conversation: *conversation, Messages: messages}
	return detail, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// DeleteConversation removes a thread and its messages.
func (s *ChatService) DeleteConversation(ctx context.Context, userID, id string) error {
	conversation, err := s.getOwnedConversation(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteConversation(ctx, conversation.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete conversation")
	}
	return nil
}

func (s *ChatService) startConversation(ctx context.Context, claims *models.JWTClaims, req dto.ChatMessageRequest) (*models.Conversation, error) {
	conversation := &models.Conversation{
		UserID: claims.UserID,
		Title:  threadTitle(req.Content),
	}
	if req.MaterialID != nil {
		// Binding a material requires visibility; Get enforces scope.
		material, err := s.materials.Get(ctx, claims, *req.MaterialID)
		if err != nil {
			return nil, err
		}
		conversation.MaterialID = &material.ID
	}
	if err := s.repo.CreateConversation(ctx, conversation); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create conversation")
	}
	return conversation, nil
}

func (s *ChatService) getOwnedConversation(ctx context.Context, userID, id string) (*models.Conversation, error) {
	conversation, err := s.repo.FindConversationByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "conversation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load conversation")
	}
	if conversation.UserID != userID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "conversation not found")
	}
	return conversation, nil
}

func (s *ChatService) buildPrompt(ctx context.Context, claims *models.JWTClaims, conversation *models.Conversation, history []models.Message, content string) (string, error) {
	var b strings.Builder
	b.WriteString("You are a study assistant helping a university student. Answer concisely and accurately.\n")

	if conversation.MaterialID != nil {
		material, err := s.materials.Get(ctx, claims, *conversation.MaterialID)
		if err != nil {
			// The material may have been deleted since the thread started.
			var appErr *appErrors.Error
			if !(errors.As(err, &appErr) && appErr.Code == appErrors.ErrNotFound.Code) {
				return "", err
			}
		} else if material.Summary != "" {
			b.WriteString(fmt.Sprintf("\nThe student is studying %q. Material summary:\n%s\n", material.Title, material.Summary))
		}
	}

	if len(history) > 0 {
		b.WriteString("\nConversation so far:\n")
		for _, m := range history {
			b.WriteString(fmt.Sprintf("%s: %s\n", m.Role, m.Content))
		}
	}
	b.WriteString("\nuser: " + content + "\nassistant:")

	prompt := b.String()
	if s.cfg.MaxContextChars > 0 && utf8.RuneCountInString(prompt) > s.cfg.MaxContextChars {
		runes := []rune(prompt)
		prompt = string(runes[len(runes)-s.cfg.MaxContextChars:])
	}
	return prompt, nil
}

// threadTitle derives a short title from the opening message.
func threadTitle(content string) string {
	title := strings.TrimSpace(content)
	if idx := strings.IndexByte(title, '\n'); idx > 0 {
		title = title[:idx]
	}
	runes := []rune(title)
	if len(runes) > 80 {
		title = string(runes[:80])
	}
	if title == "" {
		title = "New conversation"
	}
	return title
}
