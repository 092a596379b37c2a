package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"jan-server/services/support-api/internal/domain/support"
	"jan-server/services/support-api/internal/interfaces/httpserver/requests"
	"jan-server/services/support-api/internal/interfaces/httpserver/responses"
)

// ConversationHandler exposes the widget facing conversation endpoints.
// Visitors are anonymous; ownership is asserted by matching the caller
// supplied user id against the conversation record, and a mismatch is
// answered as not-found so conversation ids cannot be probed.
type ConversationHandler struct {
	service *support.Service
	log     zerolog.Logger
}

func NewConversationHandler(service *support.Service, log zerolog.Logger) *ConversationHandler {
	return &ConversationHandler{
		service: service,
		log:     log.With().Str("component", "conversation-handler").Logger(),
	}
}

// List godoc
// @Summary      List conversations
// @Description  Returns the visitor's conversations, most recently active first.
// @Tags         conversations
// @Produce      json
// @Param        user_id  query     string  true  "Visitor id"
// @Success      200      {object}  responses.ConversationListEnvelope
// @Failure      400      {object}  responses.ErrorResponse
// @Router       /v1/conversations [get]
func (h *ConversationHandler) List(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("user_id"))
	if userID == "" {
		responses.WriteError(c, http.StatusBadRequest, "user_id is required")
		return
	}

	conversations, err := h.service.ListConversations(c.Request.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("failed to list conversations")
		responses.HandleError(c, err, "failed to list conversations")
		return
	}
	if conversations == nil {
		conversations = []*support.Conversation{}
	}
	c.JSON(http.StatusOK, responses.ConversationListEnvelope{Conversations: conversations})
}

// Create godoc
// @Summary      Create a conversation
// @Description  Opens a conversation for a visitor, optionally with the first message.
// @Tags         conversations
// @Accept       json
// @Produce      json
// @Param        request  body      requests.CreateConversationRequest  true  "Conversation request"
// @Success      201      {object}  responses.CreateConversationEnvelope
// @Failure      400      {object}  responses.ErrorResponse
// @Router       /v1/conversations [post]
func (h *ConversationHandler) Create(c *gin.Context) {
	var req requests.CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.WriteError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	conv, err := h.service.CreateConversation(ctx, req.UserID, req.Metadata)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", req.UserID).Msg("failed to create conversation")
		responses.HandleError(c, err, "failed to create conversation")
		return
	}

	var messages []*support.Message
	if strings.TrimSpace(req.Message) != "" || strings.TrimSpace(req.ImageURL) != "" {
		msg, err := h.service.SendUserMessage(ctx, conv.PublicID, req.Message, req.ImageURL)
		if err != nil {
			// The conversation exists; surface the message failure without
			// rolling it back so the visitor can retry the send.
			h.log.Warn().Err(err).Str("conversation_id", conv.PublicID).Msg("initial message failed")
		} else {
			messages = append(messages, msg)
		}
	}
	if messages == nil {
		messages = []*support.Message{}
	}

	c.JSON(http.StatusCreated, responses.CreateConversationEnvelope{
		Conversation: conv,
		Messages:     messages,
	})
}

// Get godoc
// @Summary      Fetch a conversation
// @Tags         conversations
// @Produce      json
// @Param        id       path      string  true  "Conversation id"
// @Param        user_id  query     string  true  "Visitor id"
// @Success      200      {object}  responses.ConversationEnvelope
// @Failure      404      {object}  responses.ErrorResponse
// @Router       /v1/conversations/{id} [get]
func (h *ConversationHandler) Get(c *gin.Context) {
	conv, ok := h.ownedConversation(c, c.Query("user_id"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, responses.ConversationEnvelope{Conversation: conv})
}

// Update godoc
// @Summary      Update conversation status
// @Description  Applies a validated status transition (open/resolved/closed).
// @Tags         conversations
// @Accept       json
// @Produce      json
// @Param        id       path      string                               true  "Conversation id"
// @Param        request  body      requests.UpdateConversationRequest   true  "Status change"
// @Success      200      {object}  responses.ConversationEnvelope
// @Failure      400      {object}  responses.ErrorResponse
// @Failure      404      {object}  responses.ErrorResponse
// @Router       /v1/conversations/{id} [patch]
func (h *ConversationHandler) Update(c *gin.Context) {
	var req requests.UpdateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.WriteError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	conv, ok := h.ownedConversation(c, req.UserID)
	if !ok {
		return
	}

	updated, err := h.service.UpdateStatus(c.Request.Context(), conv.PublicID, support.ConversationStatus(req.Status))
	if err != nil {
		h.log.Warn().Err(err).
			Str("conversation_id", conv.PublicID).
			Str("status", req.Status).
			Msg("status update rejected")
		responses.HandleError(c, err, "failed to update conversation status")
		return
	}
	c.JSON(http.StatusOK, responses.ConversationEnvelope{Conversation: updated})
}

// ListMessages godoc
// @Summary      List messages
// @Description  Returns the conversation's messages oldest first.
// @Tags         messages
// @Produce      json
// @Param        id       path      string  true  "Conversation id"
// @Param        user_id  query     string  true  "Visitor id"
// @Success      200      {object}  responses.MessageListEnvelope
// @Failure      404      {object}  responses.ErrorResponse
// @Router       /v1/conversations/{id}/messages [get]
func (h *ConversationHandler) ListMessages(c *gin.Context) {
	conv, ok := h.ownedConversation(c, c.Query("user_id"))
	if !ok {
		return
	}

	messages, err := h.service.ListMessages(c.Request.Context(), conv.PublicID)
	if err != nil {
		h.log.Error().Err(err).Str("conversation_id", conv.PublicID).Msg("failed to list messages")
		responses.HandleError(c, err, "failed to list messages")
		return
	}
	if messages == nil {
		messages = []*support.Message{}
	}
	c.JSON(http.StatusOK, responses.MessageListEnvelope{Messages: messages})
}

// SendMessage godoc
// @Summary      Send a visitor message
// @Description  Persists the message, relays it into the support group topic, and publishes it to live streams.
// @Tags         messages
// @Accept       json
// @Produce      json
// @Param        id       path      string                       true  "Conversation id"
// @Param        request  body      requests.SendMessageRequest  true  "Message"
// @Success      201      {object}  responses.MessageEnvelope
// @Failure      400      {object}  responses.ErrorResponse
// @Failure      404      {object}  responses.ErrorResponse
// @Failure      409      {object}  responses.ErrorResponse
// @Router       /v1/conversations/{id}/messages [post]
func (h *ConversationHandler) SendMessage(c *gin.Context) {
	var req requests.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.WriteError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	conv, ok := h.ownedConversation(c, req.UserID)
	if !ok {
		return
	}

	msg, err := h.service.SendUserMessage(c.Request.Context(), conv.PublicID, req.Content, req.ImageURL)
	if err != nil {
		h.log.Warn().Err(err).Str("conversation_id", conv.PublicID).Msg("visitor message rejected")
		responses.HandleError(c, err, "failed to send message")
		return
	}
	c.JSON(http.StatusCreated, responses.MessageEnvelope{Message: msg})
}

// MarkRead godoc
// @Summary      Mark support replies read
// @Tags         messages
// @Accept       json
// @Produce      json
// @Param        id       path      string                    true  "Conversation id"
// @Param        request  body      requests.MarkReadRequest  true  "Visitor id"
// @Success      200      {object}  responses.MarkReadEnvelope
// @Failure      404      {object}  responses.ErrorResponse
// @Router       /v1/conversations/{id}/read [post]
func (h *ConversationHandler) MarkRead(c *gin.Context) {
	var req requests.MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.WriteError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	conv, ok := h.ownedConversation(c, req.UserID)
	if !ok {
		return
	}

	updated, err := h.service.MarkMessagesRead(c.Request.Context(), conv.PublicID)
	if err != nil {
		h.log.Error().Err(err).Str("conversation_id", conv.PublicID).Msg("failed to mark messages read")
		responses.HandleError(c, err, "failed to mark messages read")
		return
	}
	c.JSON(http.StatusOK, responses.MarkReadEnvelope{Updated: updated})
}

// ownedConversation loads the :id conversation and verifies the caller
// owns it. On failure the response has already been written.
func (h *ConversationHandler) ownedConversation(c *gin.Context, userID string) (*support.Conversation, bool) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		responses.WriteError(c, http.StatusBadRequest, "user_id is required")
		return nil, false
	}

	publicID := c.Param("id")
	conv, err := h.service.GetConversation(c.Request.Context(), publicID)
	if err != nil {
		responses.HandleError(c, err, "conversation not found")
		return nil, false
	}
	if conv.UserID != userID {
		responses.WriteError(c, http.StatusNotFound, "conversation not found")
		return nil, false
	}
	return conv, true
}
