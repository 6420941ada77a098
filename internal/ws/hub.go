package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"convo-service/internal/models"
	"convo-service/internal/observability"
)

// Hub maintains active websocket rooms: one per open conversation thread and
// one inbox per connected user for conversation-changed notifications.
type Hub struct {
	threadRooms map[uuid.UUID]map[*websocket.Conn]ConnInfo
	inboxRooms  map[uuid.UUID]map[*websocket.Conn]ConnInfo
	mu          sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		threadRooms: make(map[uuid.UUID]map[*websocket.Conn]ConnInfo),
		inboxRooms:  make(map[uuid.UUID]map[*websocket.Conn]ConnInfo),
	}
}

// AddThreadClient registers a websocket connection on a conversation room.
func (h *Hub) AddThreadClient(conversationID uuid.UUID, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.threadRooms[conversationID]; !ok {
		h.threadRooms[conversationID] = make(map[*websocket.Conn]ConnInfo)
	}
	h.threadRooms[conversationID][conn] = info
}

// RemoveThreadClient removes a conversation websocket connection.
func (h *Hub) RemoveThreadClient(conversationID uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.threadRooms[conversationID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.threadRooms, conversationID)
		}
	}
}

// AddInboxClient registers a websocket connection on a user's inbox room.
func (h *Hub) AddInboxClient(userID uuid.UUID, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.inboxRooms[userID]; !ok {
		h.inboxRooms[userID] = make(map[*websocket.Conn]ConnInfo)
	}
	h.inboxRooms[userID][conn] = info
}

// RemoveInboxClient removes an inbox websocket connection.
func (h *Hub) RemoveInboxClient(userID uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.inboxRooms[userID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.inboxRooms, userID)
		}
	}
}

// BroadcastNewMessage fans a message-insert event out to every subscriber of
// the conversation. Clients use it as an invalidation trigger and re-fetch.
func (h *Hub) BroadcastNewMessage(conversationID uuid.UUID, msg models.Message) {
	event := models.ThreadEvent{Type: "message", Message: &msg}
	payload, _ := json.Marshal(event)
	h.broadcast("thread", h.snapshotThread(conversationID), conversationID, payload)
}

// NotifyConversationChanged pushes an inbox notification to each listed user.
func (h *Hub) NotifyConversationChanged(userIDs []uuid.UUID, conversationID uuid.UUID) {
	event := models.InboxEvent{Type: "conversation_changed", ConversationID: conversationID}
	payload, _ := json.Marshal(event)
	for _, userID := range userIDs {
		h.broadcast("inbox", h.snapshotInbox(userID), userID, payload)
	}
}

func (h *Hub) snapshotThread(conversationID uuid.UUID) map[*websocket.Conn]ConnInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := make(map[*websocket.Conn]ConnInfo, len(h.threadRooms[conversationID]))
	for conn, info := range h.threadRooms[conversationID] {
		conns[conn] = info
	}
	return conns
}

func (h *Hub) snapshotInbox(userID uuid.UUID) map[*websocket.Conn]ConnInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := make(map[*websocket.Conn]ConnInfo, len(h.inboxRooms[userID]))
	for conn, info := range h.inboxRooms[userID] {
		conns[conn] = info
	}
	return conns
}

func (h *Hub) broadcast(kind string, conns map[*websocket.Conn]ConnInfo, roomID uuid.UUID, payload []byte) {
	for conn, info := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Printf("websocket write error: %v", err)
			conn.Close()
			if kind == "thread" {
				h.RemoveThreadClient(roomID, conn)
			} else {
				h.RemoveInboxClient(roomID, conn)
			}
			publishWSEvent(context.Background(), kind, roomID, "ws_error", info, err.Error())
			observability.IncWSEvent(kind, "ws_error")
		}
	}
}

// publishWSEvent emits a websocket lifecycle event to the observability
// exchange.
func publishWSEvent(ctx context.Context, kind string, roomID uuid.UUID, event string, info ConnInfo, reason string) {
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        kind,
			"resource_id": roomID.String(),
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID.String(),
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(ctx, wsRoutingKey(kind), observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   payload,
	}, headers)
}

func wsRoutingKey(kind string) string {
	if kind == "inbox" {
		return "ws_events.inbox"
	}
	return "ws_events.threads"
}
