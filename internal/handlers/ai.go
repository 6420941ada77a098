package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"convo-service/internal/ai"
	"convo-service/internal/middleware"
)

// Assist is the assistant function endpoint: it takes the user's latest
// message, produces a reply with bounded conversation context and returns the
// reply text. The caller's own message is expected to be persisted already
// and is never rolled back on failure here.
func (h *MessageHandler) Assist(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user"})
		return
	}

	var req struct {
		Message        string    `json:"message" binding:"required"`
		ConversationID uuid.UUID `json:"conversationId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	member, err := h.conversations.IsParticipant(c.Request.Context(), req.ConversationID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a conversation member"})
		return
	}

	reply, err := h.runAssistant(c.Request.Context(), req.ConversationID, req.Message)
	if err != nil {
		h.audit.Emit(c.Request.Context(), "ERROR", "assistant dispatch failed: "+err.Error(),
			requestIDFromContext(c), auditUserID(c))
		if errors.Is(err, ai.ErrDispatchInFlight) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "assistant is busy"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to get AI response"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"response": reply.Content})
}
