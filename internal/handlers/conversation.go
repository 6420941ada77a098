package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"convo-service/internal/middleware"
	"convo-service/internal/models"
	"convo-service/internal/repositories"
	"convo-service/internal/telemetry"
)

// ConversationHandler manages the conversation index and creation endpoints.
type ConversationHandler struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	users         repositories.UserRepository
	audit         *telemetry.AuditEmitter
}

// NewConversationHandler builds a ConversationHandler.
func NewConversationHandler(conversations repositories.ConversationRepository, messages repositories.MessageRepository, users repositories.UserRepository, audit *telemetry.AuditEmitter) *ConversationHandler {
	return &ConversationHandler{
		conversations: conversations,
		messages:      messages,
		users:         users,
		audit:         audit,
	}
}

// ListConversations returns the authenticated user's conversation index: each
// conversation annotated with the co-participant's profile, the latest
// message and the unread count. The per-conversation lookups fan out
// concurrently; the result keeps the store's ordering.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user"})
		return
	}

	convs, err := h.conversations.ListForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}

	summaries := make([]*models.ConversationSummary, len(convs))
	g, ctx := errgroup.WithContext(c.Request.Context())
	for i, conv := range convs {
		i, conv := i, conv
		g.Go(func() error {
			other, err := h.conversations.OtherParticipant(ctx, conv.ID, userID)
			if err != nil {
				// A conversation whose co-participant cannot be resolved is
				// dropped from the index, not surfaced as an error.
				if errors.Is(err, repositories.ErrParticipantNotFound) {
					return nil
				}
				return err
			}

			last, err := h.messages.LatestMessage(ctx, conv.ID)
			if err != nil {
				return err
			}
			unread, err := h.messages.UnreadCount(ctx, conv.ID, userID)
			if err != nil {
				return err
			}

			profile := models.ParticipantProfile{
				ID:        other.ID,
				Username:  other.DisplayName(),
				Email:     other.Email,
				AvatarURL: other.AvatarURL,
			}
			if other.IsAssistant() {
				profile.Username = models.AIAssistantLabel
			}

			summaries[i] = &models.ConversationSummary{
				ID:               conv.ID,
				CreatedAt:        conv.CreatedAt,
				UpdatedAt:        conv.UpdatedAt,
				OtherParticipant: profile,
				LastMessage:      last,
				UnreadCount:      unread,
				IsAIConversation: other.IsAssistant(),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}

	result := make([]models.ConversationSummary, 0, len(summaries))
	for _, summary := range summaries {
		if summary != nil {
			result = append(result, *summary)
		}
	}

	c.JSON(http.StatusOK, gin.H{"conversations": result})
}

// StartConversation returns the pairwise conversation with the target user,
// creating it when none exists yet.
func (h *ConversationHandler) StartConversation(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user"})
		return
	}

	var req struct {
		ParticipantID uuid.UUID `json:"participant_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.ParticipantID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot start a conversation with yourself"})
		return
	}

	if _, err := h.users.GetByID(c.Request.Context(), req.ParticipantID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrUserNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "user not found"})
		return
	}

	conv, err := h.conversations.CreateOrGetConversation(c.Request.Context(), userID, req.ParticipantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create conversation"})
		return
	}

	h.audit.Emit(c.Request.Context(), "INFO",
		fmt.Sprintf("conversation %s started with %s", conv.ID, req.ParticipantID),
		requestIDFromContext(c), auditUserID(c))

	c.JSON(http.StatusOK, gin.H{"conversation_id": conv.ID})
}
