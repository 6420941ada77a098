package models

import (
	"time"

	"github.com/google/uuid"
)

// Message is immutable after creation except for the read flag, which
// transitions false to true exactly once, set by the non-sending participant.
type Message struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	ConversationID uuid.UUID  `db:"conversation_id" json:"conversation_id"`
	SenderID       uuid.UUID  `db:"sender_id" json:"sender_id"`
	Content        string     `db:"content" json:"content"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	IsRead         bool       `db:"is_read" json:"is_read"`
	ReadAt         *time.Time `db:"read_at" json:"read_at,omitempty"`
}

// MessageWithSender joins a message with its sender's profile for the thread
// view.
type MessageWithSender struct {
	Message
	Sender User `json:"sender"`
}

// ThreadEvent is broadcast on a conversation's push channel. Clients treat it
// as an invalidation trigger and re-fetch rather than applying the payload.
type ThreadEvent struct {
	Type    string   `json:"type"`
	Message *Message `json:"message,omitempty"`
}

// InboxEvent is delivered on a user's inbox channel when one of their
// conversations changed (new message, read receipts).
type InboxEvent struct {
	Type           string    `json:"type"`
	ConversationID uuid.UUID `json:"conversation_id"`
}
