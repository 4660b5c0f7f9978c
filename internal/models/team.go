package models

import (
	"time"

	"github.com/google/uuid"
)

type Team struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Code      string     `json:"code"`
	CreatedBy *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type TeamMember struct {
	ID          uuid.UUID `json:"id"`
	TeamID      uuid.UUID `json:"team_id"`
	UserID      uuid.UUID `json:"user_id"`
	Role        string    `json:"role"`
	DisplayName *string   `json:"display_name,omitempty"`
	Email       string    `json:"email,omitempty"`
	JoinedAt    time.Time `json:"joined_at"`
}

const (
	RoleOwner  = "owner"
	RoleMember = "member"
)

// UserTeam is a team as seen by one of its members.
type UserTeam struct {
	Team
	Role string `json:"role"`
}

// IsOwner reports whether the membership carries the owner role.
func (m *TeamMember) IsOwner() bool {
	return m.Role == RoleOwner
}
