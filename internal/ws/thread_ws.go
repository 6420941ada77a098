package ws

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"convo-service/internal/middleware"
	"convo-service/internal/observability"
	"convo-service/internal/repositories"
)

// ThreadWebSocketHandler serves the per-conversation push channel. Exactly
// one registration exists per accepted connection; it is released when the
// read loop observes the close.
type ThreadWebSocketHandler struct {
	hub           *Hub
	conversations repositories.ConversationRepository
	jwtSecret     string
}

// NewThreadWebSocketHandler constructs a ThreadWebSocketHandler.
func NewThreadWebSocketHandler(hub *Hub, conversations repositories.ConversationRepository, jwtSecret string) *ThreadWebSocketHandler {
	return &ThreadWebSocketHandler{hub: hub, conversations: conversations, jwtSecret: jwtSecret}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and registers the client on the
// conversation's room.
func (h *ThreadWebSocketHandler) Handle(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("conversation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	ctx, span := otel.Tracer("convo-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, err := tokenUser(c, h.jwtSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	member, err := h.conversations.IsParticipant(ctx, conversationID, userID)
	if err != nil || !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a conversation member"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	h.hub.AddThreadClient(conversationID, conn, info)

	observability.IncWSActive("thread")
	observability.IncWSEvent("thread", "ws_connect")
	publishWSEvent(ctx, "thread", conversationID, "ws_connect", info, "")

	go func() {
		var closeReason string
		defer func() {
			h.hub.RemoveThreadClient(conversationID, conn)
			observability.DecWSActive("thread")
			observability.IncWSEvent("thread", "ws_disconnect")
			publishWSEvent(ctx, "thread", conversationID, "ws_disconnect", info, closeReason)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				closeReason = err.Error()
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					observability.IncWSEvent("thread", "ws_error")
					publishWSEvent(ctx, "thread", conversationID, "ws_error", info, closeReason)
				}
				return
			}
		}
	}()
}

// tokenUser resolves the authenticated user from the Authorization header or,
// for browser websocket clients, the token query parameter.
func tokenUser(c *gin.Context, secret string) (uuid.UUID, error) {
	header := c.GetHeader("Authorization")
	token := ""
	if parts := strings.SplitN(header, " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		token = parts[1]
	}
	if token == "" {
		token = c.Query("token")
	}
	return middleware.ValidateToken(token, secret)
}
