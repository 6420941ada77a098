package ws

import (
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubThreadRoomLifecycle(t *testing.T) {
	hub := NewHub()
	conversationID := uuid.New()
	connA := &websocket.Conn{}
	connB := &websocket.Conn{}

	hub.AddThreadClient(conversationID, connA, ConnInfo{ConnID: "a"})
	hub.AddThreadClient(conversationID, connB, ConnInfo{ConnID: "b"})

	require.Len(t, hub.threadRooms, 1)
	assert.Len(t, hub.threadRooms[conversationID], 2)

	hub.RemoveThreadClient(conversationID, connA)
	assert.Len(t, hub.threadRooms[conversationID], 1)

	// removing the last client drops the room entirely
	hub.RemoveThreadClient(conversationID, connB)
	assert.Empty(t, hub.threadRooms)
}

func TestHubInboxRoomLifecycle(t *testing.T) {
	hub := NewHub()
	userID := uuid.New()
	conn := &websocket.Conn{}

	hub.AddInboxClient(userID, conn, ConnInfo{ConnID: "a", UserID: userID})
	require.Len(t, hub.inboxRooms, 1)

	hub.RemoveInboxClient(userID, conn)
	assert.Empty(t, hub.inboxRooms)
}

func TestHubRemoveFromUnknownRoom(t *testing.T) {
	hub := NewHub()
	assert.NotPanics(t, func() {
		hub.RemoveThreadClient(uuid.New(), &websocket.Conn{})
		hub.RemoveInboxClient(uuid.New(), &websocket.Conn{})
	})
}

func TestHubSnapshotIsolatedFromMutation(t *testing.T) {
	hub := NewHub()
	conversationID := uuid.New()
	conn := &websocket.Conn{}

	hub.AddThreadClient(conversationID, conn, ConnInfo{ConnID: "a"})
	snapshot := hub.snapshotThread(conversationID)
	hub.RemoveThreadClient(conversationID, conn)

	assert.Len(t, snapshot, 1)
	assert.Empty(t, hub.threadRooms)
}

func TestWSRoutingKey(t *testing.T) {
	assert.Equal(t, "ws_events.inbox", wsRoutingKey("inbox"))
	assert.Equal(t, "ws_events.threads", wsRoutingKey("thread"))
}
