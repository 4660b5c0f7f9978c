package models

import (
	"time"

	"github.com/google/uuid"
)

// Sign-in providers. Password accounts carry a bcrypt hash, OAuth accounts a provider id.
const (
	ProviderPassword = "password"
	ProviderGitHub   = "github"
	ProviderGoogle   = "google"
)

// User is a row of the profiles relation.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	AvatarURL    *string   `json:"avatar_url,omitempty"`
	PasswordHash *string   `json:"-"`
	Provider     string    `json:"provider"`
	ProviderID   *string   `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
