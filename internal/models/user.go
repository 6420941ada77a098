package models

import (
	"strings"

	"github.com/google/uuid"
)

// AIAssistantID is the reserved identity of the assistant participant. It is
// seeded by migration and shared as a literal convention with every client:
// conversation classification and role mapping both key off it.
var AIAssistantID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// AIAssistantLabel is the display name shown instead of the assistant's
// stored username.
const AIAssistantLabel = "AI Assistant"

// User is a chat participant profile.
type User struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Username  *string   `db:"username" json:"username,omitempty"`
	AvatarURL *string   `db:"avatar_url" json:"avatar_url,omitempty"`
}

// DisplayName returns the username, falling back to the local part of the
// email address when no username is set.
func (u User) DisplayName() string {
	if u.Username != nil && *u.Username != "" {
		return *u.Username
	}
	if at := strings.Index(u.Email, "@"); at > 0 {
		return u.Email[:at]
	}
	return u.Email
}

// IsAssistant reports whether the user is the reserved assistant identity.
func (u User) IsAssistant() bool {
	return u.ID == AIAssistantID
}
