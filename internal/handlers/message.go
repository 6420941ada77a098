package handlers

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"convo-service/internal/events"
	"convo-service/internal/middleware"
	"convo-service/internal/models"
	"convo-service/internal/observability"
	"convo-service/internal/repositories"
	"convo-service/internal/telemetry"
	"convo-service/internal/ws"
)

// Assistant produces and persists an assistant reply for a conversation.
type Assistant interface {
	Dispatch(ctx context.Context, conversationID uuid.UUID, content string) (models.Message, error)
}

// MessageHandler manages the message thread endpoints.
type MessageHandler struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	assistant     Assistant
	hub           *ws.Hub
	bus           *events.Bus
	audit         *telemetry.AuditEmitter
	aiTimeout     time.Duration
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(conversations repositories.ConversationRepository, messages repositories.MessageRepository, assistant Assistant, hub *ws.Hub, bus *events.Bus, audit *telemetry.AuditEmitter, aiTimeout time.Duration) *MessageHandler {
	return &MessageHandler{
		conversations: conversations,
		messages:      messages,
		assistant:     assistant,
		hub:           hub,
		bus:           bus,
		audit:         audit,
		aiTimeout:     aiTimeout,
	}
}

// ListMessages returns the conversation's full ordered history joined with
// sender profiles, then applies the read-receipt transition for the caller.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	conversationID, userID, ok := h.authorizeThread(c)
	if !ok {
		return
	}

	msgs, err := h.messages.ListForConversation(c.Request.Context(), conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	// Every unread incoming message flips to read on open. The update is
	// idempotent; a failure degrades unread counts but not the thread view.
	affected, err := h.messages.MarkConversationRead(c.Request.Context(), conversationID, userID)
	if err != nil {
		log.Printf("mark conversation %s read: %v", conversationID, err)
	} else if affected > 0 {
		h.emitConversationChanged(c.Request.Context(), conversationID)
	}

	isAI := false
	for _, m := range msgs {
		if m.SenderID == models.AIAssistantID {
			isAI = true
			break
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"messages":           msgs,
		"is_ai_conversation": isAI,
	})
}

// PostMessage stores a message authored by the caller, broadcasts it on the
// conversation's push channel and, in assistant conversations, hands the turn
// to the dispatcher. Assistant failures never affect the stored message.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	conversationID, userID, ok := h.authorizeThread(c)
	if !ok {
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message content is empty"})
		return
	}

	msg, err := h.messages.CreateMessage(c.Request.Context(), conversationID, userID, content)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	if err := h.conversations.Touch(c.Request.Context(), conversationID); err != nil {
		log.Printf("touch conversation %s: %v", conversationID, err)
	}

	h.hub.BroadcastNewMessage(conversationID, msg)
	h.emitConversationChanged(c.Request.Context(), conversationID)

	aiPresent, err := h.messages.HasSender(c.Request.Context(), conversationID, models.AIAssistantID)
	if err != nil {
		log.Printf("classify conversation %s: %v", conversationID, err)
	}
	if aiPresent {
		requestID := requestIDFromContext(c)
		sender := auditUserID(c)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), h.aiTimeout)
			defer cancel()
			if _, err := h.runAssistant(ctx, conversationID, content); err != nil {
				h.audit.Emit(ctx, "ERROR", "assistant dispatch failed: "+err.Error(), requestID, sender)
			}
		}()
	}

	c.JSON(http.StatusCreated, msg)
}

// runAssistant dispatches one assistant turn and fans the stored reply out to
// the push channels.
func (h *MessageHandler) runAssistant(ctx context.Context, conversationID uuid.UUID, content string) (models.Message, error) {
	start := time.Now()
	reply, err := h.assistant.Dispatch(ctx, conversationID, content)
	if err != nil {
		observability.ObserveAIDispatch("error", time.Since(start))
		return models.Message{}, err
	}
	observability.ObserveAIDispatch("ok", time.Since(start))

	if err := h.conversations.Touch(ctx, conversationID); err != nil {
		log.Printf("touch conversation %s: %v", conversationID, err)
	}
	h.hub.BroadcastNewMessage(conversationID, reply)
	h.emitConversationChanged(ctx, conversationID)
	return reply, nil
}

// emitConversationChanged publishes a typed conversation-changed event naming
// the affected conversation and its members.
func (h *MessageHandler) emitConversationChanged(ctx context.Context, conversationID uuid.UUID) {
	participants, err := h.conversations.ParticipantIDs(ctx, conversationID)
	if err != nil {
		log.Printf("load participants of %s: %v", conversationID, err)
		return
	}
	h.bus.Emit(events.ConversationChanged{
		ConversationID: conversationID,
		ParticipantIDs: participants,
	})
}

// authorizeThread parses the conversation id and verifies the caller's
// membership.
func (h *MessageHandler) authorizeThread(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	conversationID, err := uuid.Parse(c.Param("conversation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return uuid.Nil, uuid.Nil, false
	}

	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user"})
		return uuid.Nil, uuid.Nil, false
	}

	member, err := h.conversations.IsParticipant(c.Request.Context(), conversationID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return uuid.Nil, uuid.Nil, false
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a conversation member"})
		return uuid.Nil, uuid.Nil, false
	}
	return conversationID, userID, true
}
