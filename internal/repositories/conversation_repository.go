package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"convo-service/internal/models"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrParticipantNotFound  = errors.New("participant not found")
)

// ConversationRepository abstracts conversation persistence.
type ConversationRepository interface {
	CreateOrGetConversation(ctx context.Context, userID, otherID uuid.UUID) (models.Conversation, error)
	GetConversation(ctx context.Context, conversationID uuid.UUID) (models.Conversation, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error)
	IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error)
	OtherParticipant(ctx context.Context, conversationID, userID uuid.UUID) (models.User, error)
	ParticipantIDs(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error)
	Touch(ctx context.Context, conversationID uuid.UUID) error
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// CreateOrGetConversation returns the pairwise conversation between two users,
// creating it when none exists. The lookup and insert run in one transaction
// holding an advisory lock keyed on the unordered pair, so two concurrent
// "start chat" calls from both sides cannot each create a conversation.
func (r *ConversationRepo) CreateOrGetConversation(ctx context.Context, userID, otherID uuid.UUID) (models.Conversation, error) {
	if userID == otherID {
		return models.Conversation{}, errors.New("cannot create conversation with self")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, pairKey(userID, otherID)); err != nil {
		return models.Conversation{}, err
	}

	var conv models.Conversation
	query := `SELECT c.id, c.created_at, c.updated_at FROM conversations c
        JOIN conversation_participants p1 ON p1.conversation_id = c.id AND p1.user_id = $1
        JOIN conversation_participants p2 ON p2.conversation_id = c.id AND p2.user_id = $2
        LIMIT 1`
	err = tx.GetContext(ctx, &conv, query, userID, otherID)
	if err == nil {
		return conv, tx.Commit()
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, err
	}

	if err := tx.QueryRowxContext(ctx, `INSERT INTO conversations DEFAULT VALUES RETURNING id, created_at, updated_at`).
		Scan(&conv.ID, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
		return models.Conversation{}, err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO conversation_participants (conversation_id, user_id) VALUES ($1, $2), ($1, $3)`,
		conv.ID, userID, otherID); err != nil {
		return models.Conversation{}, err
	}

	return conv, tx.Commit()
}

// GetConversation fetches a conversation by id.
func (r *ConversationRepo) GetConversation(ctx context.Context, conversationID uuid.UUID) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT id, created_at, updated_at FROM conversations WHERE id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// ListForUser returns the conversations the user participates in, most
// recently updated first.
func (r *ConversationRepo) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	query := `SELECT c.id, c.created_at, c.updated_at FROM conversations c
        JOIN conversation_participants p ON p.conversation_id = c.id
        WHERE p.user_id = $1
        ORDER BY c.updated_at DESC`
	var convs []models.Conversation
	err := r.db.SelectContext(ctx, &convs, query, userID)
	return convs, err
}

// IsParticipant checks whether a user belongs to the conversation.
func (r *ConversationRepo) IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM conversation_participants WHERE conversation_id=$1 AND user_id=$2)`,
		conversationID, userID)
	return exists, err
}

// OtherParticipant resolves the co-participant's profile.
func (r *ConversationRepo) OtherParticipant(ctx context.Context, conversationID, userID uuid.UUID) (models.User, error) {
	query := `SELECT u.id, u.email, u.username, u.avatar_url FROM users u
        JOIN conversation_participants p ON p.user_id = u.id
        WHERE p.conversation_id = $1 AND p.user_id <> $2
        LIMIT 1`
	var user models.User
	err := r.db.GetContext(ctx, &user, query, conversationID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrParticipantNotFound
	}
	return user, err
}

// ParticipantIDs returns the member ids of a conversation.
func (r *ConversationRepo) ParticipantIDs(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.SelectContext(ctx, &ids,
		`SELECT user_id FROM conversation_participants WHERE conversation_id=$1`, conversationID)
	return ids, err
}

// Touch bumps the conversation's updated_at so the index orders it first.
func (r *ConversationRepo) Touch(ctx context.Context, conversationID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `UPDATE conversations SET updated_at = NOW() WHERE id=$1`, conversationID)
	return err
}

// pairKey builds a stable advisory-lock key for an unordered user pair.
func pairKey(a, b uuid.UUID) string {
	if a.String() < b.String() {
		return a.String() + ":" + b.String()
	}
	return b.String() + ":" + a.String()
}
