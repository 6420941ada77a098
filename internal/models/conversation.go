package models

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is a pairwise thread between exactly two participants.
type Conversation struct {
	ID        uuid.UUID `db:"id" json:"id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Participant is a (conversation, user) membership row. The set is written
// once at creation and never modified afterwards.
type Participant struct {
	ConversationID uuid.UUID `db:"conversation_id" json:"conversation_id"`
	UserID         uuid.UUID `db:"user_id" json:"user_id"`
}

// LastMessage is the newest message preview shown in the index.
type LastMessage struct {
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	SenderID  uuid.UUID `db:"sender_id" json:"sender_id"`
}

// ParticipantProfile is the co-participant view embedded in a summary, with
// the assistant's username rewritten to its display label.
type ParticipantProfile struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	AvatarURL *string   `json:"avatar_url,omitempty"`
}

// ConversationSummary is one entry of the per-user conversation index.
type ConversationSummary struct {
	ID               uuid.UUID          `json:"id"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
	OtherParticipant ParticipantProfile `json:"other_participant"`
	LastMessage      *LastMessage       `json:"last_message,omitempty"`
	UnreadCount      int                `json:"unread_count"`
	IsAIConversation bool               `json:"is_ai_conversation"`
}
