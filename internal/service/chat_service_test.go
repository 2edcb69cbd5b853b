package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/studyhub-io/studyhub-api/internal/dto"
	"github.com/studyhub-io/studyhub-api/internal/models"
	"github.com/studyhub-io/studyhub-api/pkg/config"
	appErrors "github.com/studyhub-io/studyhub-api/pkg/errors"
)

type mockChatRepo struct {
	conversations map[string]*models.Conversation
	messages      map[string][]models.Message
}

func newMockChatRepo() *mockChatRepo {
	return &mockChatRepo{
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string][]models.Message),
	}
}

func (m *mockChatRepo) CreateConversation(ctx context.Context, c *models.Conversation) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = time.Now()
	clone := *c
	m.conversations[c.ID] = &clone
	return nil
}

func (m *mockChatRepo) FindConversationByID(ctx context.Context, id string) (*models.Conversation, error) {
	c, ok := m.conversations[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *c
	return &clone, nil
}

func (m *mockChatRepo) ListConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	out := make([]models.Conversation, 0)
	for _, c := range m.conversations {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *mockChatRepo) TouchConversation(ctx context.Context, id string) error {
	if c, ok := m.conversations[id]; ok {
		c.UpdatedAt = time.Now()
	}
	return nil
}

func (m *mockChatRepo) DeleteConversation(ctx context.Context, id string) error {
	delete(m.conversations, id)
	delete(m.messages, id)
	return nil
}

func (m *mockChatRepo) CreateMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.CreatedAt = time.Now()
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], *msg)
	return nil
}

func (m *mockChatRepo) ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]models.Message, int, error) {
	msgs := m.messages[conversationID]
	total := len(msgs)
	if offset >= total {
		return nil, total, nil
	}
	msgs = msgs[offset:]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, total, nil
}

func (m *mockChatRepo) RecentMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	msgs := m.messages[conversationID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func newChatFixture(t *testing.T, gen *fakeGenerator) (*ChatService, *mockChatRepo, *materialFixture) {
	t.Helper()
	materials := newMaterialFixture(t)
	repo := newMockChatRepo()
	cfg := config.ChatConfig{HistoryLimit: 20, MaxContextChars: 10000}
	svc := NewChatService(repo, materials.svc, gen, cfg, validator.New(), zap.NewNop())
	return svc, repo, materials
}

func TestChatSendMessageStartsConversation(t *testing.T) {
	gen := &fakeGenerator{response: "A graph is a set of vertices and edges."}
	svc, repo, _ := newChatFixture(t, gen)
	claims := studentClaims("u1", "", "")

	res, err := svc.SendMessage(context.Background(), claims, dto.ChatMessageRequest{Content: "What is a graph?"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.ConversationID)
	assert.Equal(t, models.MessageRoleUser, res.UserMessage.Role)
	assert.Equal(t, models.MessageRoleAssistant, res.Reply.Role)
	assert.Equal(t, gen.response, res.Reply.Content)

	conversation := repo.conversations[res.ConversationID]
	require.NotNil(t, conversation)
	assert.Equal(t, "What is a graph?", conversation.Title)
	assert.Len(t, repo.messages[res.ConversationID], 2)
}

func TestChatSendMessageContinuesThread(t *testing.T) {
	gen := &fakeGenerator{response: "Yes, trees are acyclic graphs."}
	svc, repo, _ := newChatFixture(t, gen)
	claims := studentClaims("u1", "", "")

	first, err := svc.SendMessage(context.Background(), claims, dto.ChatMessageRequest{Content: "What is a graph?"})
	require.NoError(t, err)

	second, err := svc.SendMessage(context.Background(), claims, dto.ChatMessageRequest{
		ConversationID: &first.ConversationID,
		Content:        "Is a tree a graph?",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ConversationID, second.ConversationID)
	assert.Len(t, repo.messages[first.ConversationID], 4)

	// Prior turns feed the prompt for the follow-up.
	assert.Contains(t, gen.prompts[len(gen.prompts)-1], "What is a graph?")
}

func TestChatSendMessageGroundsInMaterial(t *testing.T) {
	gen := &fakeGenerator{response: "Per your notes, a cycle is a closed walk."}
	svc, repo, materials := newChatFixture(t, gen)
	material := readyMaterial(t, materials, "owner")
	claims := studentClaims("u1", "", "")

	res, err := svc.SendMessage(context.Background(), claims, dto.ChatMessageRequest{
		MaterialID: &material.ID,
		Content:    "What is a cycle?",
	})
	require.NoError(t, err)
	require.NotNil(t, repo.conversations[res.ConversationID].MaterialID)
	assert.Equal(t, material.ID, *repo.conversations[res.ConversationID].MaterialID)
	assert.Contains(t, gen.prompts[0], material.Summary)
}

func TestChatSendMessageUpstreamFailureKeepsUserTurn(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("model unavailable")}
	svc, repo, _ := newChatFixture(t, gen)
	claims := studentClaims("u1", "", "")

	_, err := svc.SendMessage(context.Background(), claims, dto.ChatMessageRequest{Content: "Hello?"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrAssistantUpstream.Code, appErr.Code)

	// The user turn survives the outage so the thread can be retried.
	require.Len(t, repo.conversations, 1)
	for id := range repo.conversations {
		msgs := repo.messages[id]
		require.Len(t, msgs, 1)
		assert.Equal(t, models.MessageRoleUser, msgs[0].Role)
		assert.Equal(t, "Hello?", msgs[0].Content)
	}
}

func TestChatConversationOwnership(t *testing.T) {
	gen := &fakeGenerator{response: "reply"}
	svc, _, _ := newChatFixture(t, gen)

	first, err := svc.SendMessage(context.Background(), studentClaims("u1", "", ""), dto.ChatMessageRequest{Content: "mine"})
	require.NoError(t, err)

	_, _, err = svc.GetConversation(context.Background(), "intruder", first.ConversationID, 1, 50)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)

	_, err = svc.SendMessage(context.Background(), studentClaims("intruder", "", ""), dto.ChatMessageRequest{
		ConversationID: &first.ConversationID,
		Content:        "hijack",
	})
	require.Error(t, err)
}

func TestChatGetConversationPaginatesTurns(t *testing.T) {
	gen := &fakeGenerator{response: "reply"}
	svc, _, _ := newChatFixture(t, gen)
	claims := studentClaims("u1", "", "")

	first, err := svc.SendMessage(context.Background(), claims, dto.ChatMessageRequest{Content: "turn 1"})
	require.NoError(t, err)
	for i := 2; i <= 3; i++ {
		_, err = svc.SendMessage(context.Background(), claims, dto.ChatMessageRequest{
			ConversationID: &first.ConversationID,
			Content:        "another turn",
		})
		require.NoError(t, err)
	}

	// Three exchanges make six turns; a page of four leaves two for page two.
	detail, pagination, err := svc.GetConversation(context.Background(), "u1", first.ConversationID, 1, 4)
	require.NoError(t, err)
	assert.Len(t, detail.Messages, 4)
	require.NotNil(t, pagination)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 4, pagination.PageSize)
	assert.Equal(t, 6, pagination.TotalCount)

	detail, _, err = svc.GetConversation(context.Background(), "u1", first.ConversationID, 2, 4)
	require.NoError(t, err)
	assert.Len(t, detail.Messages, 2)

	// Out-of-range page sizes fall back to the default.
	_, pagination, err = svc.GetConversation(context.Background(), "u1", first.ConversationID, 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 50, pagination.PageSize)
}

func TestChatDeleteConversation(t *testing.T) {
	gen := &fakeGenerator{response: "reply"}
	svc, repo, _ := newChatFixture(t, gen)
	claims := studentClaims("u1", "", "")

	first, err := svc.SendMessage(context.Background(), claims, dto.ChatMessageRequest{Content: "hello"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteConversation(context.Background(), "u1", first.ConversationID))
	assert.Empty(t, repo.conversations)
}
