package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"convo-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for conversation messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, conversationID, senderID uuid.UUID, content string) (models.Message, error)
	ListForConversation(ctx context.Context, conversationID uuid.UUID) ([]models.MessageWithSender, error)
	LatestMessage(ctx context.Context, conversationID uuid.UUID) (*models.LastMessage, error)
	UnreadCount(ctx context.Context, conversationID, userID uuid.UUID) (int, error)
	MarkConversationRead(ctx context.Context, conversationID, readerID uuid.UUID) (int64, error)
	RecentWindow(ctx context.Context, conversationID uuid.UUID, limit int) ([]models.Message, error)
	HasSender(ctx context.Context, conversationID, senderID uuid.UUID) (bool, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a message in a conversation.
func (r *MessageRepo) CreateMessage(ctx context.Context, conversationID, senderID uuid.UUID, content string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO messages (conversation_id, sender_id, content) VALUES ($1, $2, $3)
         RETURNING id, conversation_id, sender_id, content, created_at, is_read, read_at`,
		conversationID, senderID, content).
		Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &msg.CreatedAt, &msg.IsRead, &msg.ReadAt)
	return msg, err
}

// ListForConversation returns the full ordered history joined with sender
// profiles, oldest first.
func (r *MessageRepo) ListForConversation(ctx context.Context, conversationID uuid.UUID) ([]models.MessageWithSender, error) {
	query := `SELECT m.id, m.conversation_id, m.sender_id, m.content, m.created_at, m.is_read, m.read_at,
            u.id AS "sender.id", u.email AS "sender.email", u.username AS "sender.username", u.avatar_url AS "sender.avatar_url"
        FROM messages m
        JOIN users u ON u.id = m.sender_id
        WHERE m.conversation_id = $1
        ORDER BY m.created_at ASC`
	var msgs []models.MessageWithSender
	err := r.db.SelectContext(ctx, &msgs, query, conversationID)
	return msgs, err
}

// LatestMessage returns the newest message of a conversation, or nil when the
// conversation has no messages yet.
func (r *MessageRepo) LatestMessage(ctx context.Context, conversationID uuid.UUID) (*models.LastMessage, error) {
	var last models.LastMessage
	err := r.db.GetContext(ctx, &last,
		`SELECT content, created_at, sender_id FROM messages
         WHERE conversation_id=$1 ORDER BY created_at DESC LIMIT 1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &last, nil
}

// UnreadCount counts unread messages not sent by the user.
func (r *MessageRepo) UnreadCount(ctx context.Context, conversationID, userID uuid.UUID) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM messages
         WHERE conversation_id=$1 AND sender_id<>$2 AND is_read = FALSE`,
		conversationID, userID)
	return count, err
}

// MarkConversationRead flips every unread message not authored by the reader
// to read in one bulk update and reports how many rows transitioned. The WHERE
// clause makes the transition idempotent: re-reading an already-read thread
// touches zero rows.
func (r *MessageRepo) MarkConversationRead(ctx context.Context, conversationID, readerID uuid.UUID) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET is_read = TRUE, read_at = NOW()
         WHERE conversation_id=$1 AND sender_id<>$2 AND is_read = FALSE`,
		conversationID, readerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RecentWindow returns the most recent N messages of a conversation in
// chronological order.
func (r *MessageRepo) RecentWindow(ctx context.Context, conversationID uuid.UUID, limit int) ([]models.Message, error) {
	query := `SELECT id, conversation_id, sender_id, content, created_at, is_read, read_at FROM (
            SELECT * FROM messages WHERE conversation_id=$1 ORDER BY created_at DESC LIMIT $2
        ) recent ORDER BY created_at ASC`
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, query, conversationID, limit)
	return msgs, err
}

// HasSender reports whether any message in the conversation was authored by
// the given sender. Used to classify assistant conversations.
func (r *MessageRepo) HasSender(ctx context.Context, conversationID, senderID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM messages WHERE conversation_id=$1 AND sender_id=$2)`,
		conversationID, senderID)
	return exists, err
}
