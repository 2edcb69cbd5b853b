package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/studyhub-io/studyhub-api/internal/dto"
	"github.com/studyhub-io/studyhub-api/internal/service"
	appErrors "github.com/studyhub-io/studyhub-api/pkg/errors"
	"github.com/studyhub-io/studyhub-api/pkg/response"
)

// ChatHandler exposes the study assistant endpoints.
type ChatHandler struct {
	chat *service.ChatService
}

// NewChatHandler constructs ChatHandler.
func NewChatHandler(chat *service.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

// SendMessage godoc
// @Summary Send a chat message
// @Description Add a user turn and return the assistant reply; omit conversation_id to start a thread
// @Tags Chat
// @Accept json
// @Produce json
// @Param payload body dto.ChatMessageRequest true "Message payload"
// @Success 200 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /chat/message [post]
func (h *ChatHandler) SendMessage(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ChatMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid chat payload"))
		return
	}
	res, err := h.chat.SendMessage(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// ListConversations godoc
// @Summary List conversations
// @Tags Chat
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /chat/conversations [get]
func (h *ChatHandler) ListConversations(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	conversations, err := h.chat.ListConversations(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, conversations, nil)
}

// GetConversation godoc
// @Summary Get a conversation with a page of its turns
// @Tags Chat
// @Produce json
// @Param id path string true "Conversation ID"
// @Param page query int false "Page number"
// @Param limit query int false "Turns per page"
// @Success 200 {object} response.Envelope
// @Router /chat/conversations/{id} [get]
func (h *ChatHandler) GetConversation(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	detail, pagination, err := h.chat.GetConversation(c.Request.Context(), claims.UserID, c.Param("id"), page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, pagination)
}

// DeleteConversation godoc
// @Summary Delete a conversation
// @Tags Chat
// @Produce json
// @Param id path string true "Conversation ID"
// @Success 204 {object} response.Envelope
// @Router /chat/conversations/{id} [delete]
func (h *ChatHandler) DeleteConversation(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.chat.DeleteConversation(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
