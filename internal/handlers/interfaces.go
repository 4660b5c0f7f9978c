package handlers

import (
	"context"
	"time"

	"github.com/dimitrije/teamboard/internal/models"
	"github.com/dimitrije/teamboard/internal/oauth"
	"github.com/dimitrije/teamboard/internal/realtime"
	"github.com/dimitrije/teamboard/internal/services"
	"github.com/google/uuid"
)

// UserServiceInterface defines the methods used by handlers from UserService
type UserServiceInterface interface {
	SignUp(ctx context.Context, email, password, displayName string) (*models.User, error)
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
	FindOrCreateFromOAuth(ctx context.Context, info *oauth.UserInfo) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	Update(ctx context.Context, id uuid.UUID, displayName string) (*models.User, error)
}

// TeamServiceInterface defines the methods used by handlers from TeamService
type TeamServiceInterface interface {
	Create(ctx context.Context, name string, creatorID uuid.UUID) (*models.Team, error)
	GetByID(ctx context.Context, teamID uuid.UUID) (*models.Team, error)
	GetByCode(ctx context.Context, code string) (*models.Team, error)
	Join(ctx context.Context, code string, userID uuid.UUID, displayName string) (*models.Team, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.UserTeam, error)
	GetMembership(ctx context.Context, teamID, userID uuid.UUID) (*models.TeamMember, error)
	IsMember(ctx context.Context, teamID, userID uuid.UUID) (bool, error)
	GetMembers(ctx context.Context, teamID uuid.UUID) ([]models.TeamMember, error)
	Rename(ctx context.Context, teamID, userID uuid.UUID, name string) (*models.Team, error)
	Delete(ctx context.Context, teamID, userID uuid.UUID) error
	Leave(ctx context.Context, teamID, userID uuid.UUID) error
	RemoveMember(ctx context.Context, teamID, ownerID, userID uuid.UUID) error
}

// TaskServiceInterface defines the methods used by handlers from TaskService
type TaskServiceInterface interface {
	List(ctx context.Context, teamID uuid.UUID) ([]models.Task, error)
	GetByID(ctx context.Context, taskID uuid.UUID) (*models.Task, error)
	Create(ctx context.Context, teamID, creatorID uuid.UUID, title string, description *string, assigneeID *uuid.UUID) (*models.Task, error)
	UpdateStatus(ctx context.Context, taskID, userID uuid.UUID, status models.TaskStatus) (*models.Task, error)
	Update(ctx context.Context, taskID, userID uuid.UUID, patch services.TaskPatch) (*models.Task, error)
	Delete(ctx context.Context, taskID, userID uuid.UUID) (*models.Task, error)
}

// TokenServiceInterface defines the methods used by handlers from TokenService
type TokenServiceInterface interface {
	Store(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error
	Consume(ctx context.Context, tokenHash string) (uuid.UUID, error)
	Revoke(ctx context.Context, tokenHash string) error
	RevokeAll(ctx context.Context, userID uuid.UUID) (int64, error)
}

// JWTServiceInterface defines the methods used by handlers from JWTService
type JWTServiceInterface interface {
	GenerateTokenPair(userID uuid.UUID, email string) (*services.TokenPair, error)
	ValidateAccessToken(token string) (*services.Claims, error)
	ValidateRefreshToken(token string) (uuid.UUID, error)
	RefreshExpiry() time.Duration
}

// HubInterface defines the methods used by handlers from the realtime Hub
type HubInterface interface {
	Register(client *realtime.Client)
	Unregister(client *realtime.Client)
	Subscribe(clientID string, teamID uuid.UUID)
	Unsubscribe(clientID string, teamID uuid.UUID)
}
