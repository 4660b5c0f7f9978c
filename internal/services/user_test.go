package services

import (
	"context"
	"testing"
	"time"

	"github.com/dimitrije/teamboard/internal/database"
	"github.com/dimitrije/teamboard/internal/models"
	"github.com/dimitrije/teamboard/internal/oauth"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var profileRowColumns = []string{
	"id", "email", "display_name", "avatar_url", "password_hash", "provider", "provider_id", "created_at", "updated_at",
}

func setupUserService(t *testing.T) (*UserService, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	db := &database.DB{Pool: mock}
	return NewUserService(db).WithHashCost(bcrypt.MinCost), mock
}

func TestUserService_SignUp(t *testing.T) {
	svc, mock := setupUserService(t)
	ctx := context.Background()
	userID := uuid.New()
	now := time.Now()
	hash := "stored-hash"

	rows := pgxmock.NewRows(profileRowColumns).
		AddRow(userID, "ana@example.com", "Ana", nil, &hash, models.ProviderPassword, nil, now, now)

	mock.ExpectQuery(`INSERT INTO profiles`).
		WithArgs("ana@example.com", "Ana", pgxmock.AnyArg(), models.ProviderPassword).
		WillReturnRows(rows)

	user, err := svc.SignUp(ctx, "  Ana@Example.com ", "secret-pw", " Ana ")

	require.NoError(t, err)
	assert.Equal(t, userID, user.ID)
	assert.Equal(t, "Ana", user.DisplayName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserService_SignUp_Validation(t *testing.T) {
	svc, mock := setupUserService(t)
	ctx := context.Background()

	testCases := []struct {
		name        string
		email       string
		password    string
		displayName string
		want        error
	}{
		{"bad email", "not-an-email", "secret-pw", "Ana", ErrInvalidEmail},
		{"short password", "ana@example.com", "123", "Ana", ErrWeakPassword},
		{"blank display name", "ana@example.com", "secret-pw", "   ", ErrDisplayNameRequired},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.SignUp(ctx, tc.email, tc.password, tc.displayName)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserService_SignUp_EmailTaken(t *testing.T) {
	svc, mock := setupUserService(t)
	ctx := context.Background()

	mock.ExpectQuery(`INSERT INTO profiles`).
		WithArgs("ana@example.com", "Ana", pgxmock.AnyArg(), models.ProviderPassword).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "profiles_email_key"})

	_, err := svc.SignUp(ctx, "ana@example.com", "secret-pw", "Ana")

	assert.ErrorIs(t, err, ErrEmailTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserService_Authenticate(t *testing.T) {
	svc, mock := setupUserService(t)
	ctx := context.Background()
	userID := uuid.New()
	now := time.Now()

	hashed, err := bcrypt.GenerateFromPassword([]byte("secret-pw"), bcrypt.MinCost)
	require.NoError(t, err)
	hash := string(hashed)

	for range 2 {
		mock.ExpectQuery(`SELECT .+ FROM profiles WHERE email`).
			WithArgs("ana@example.com").
			WillReturnRows(pgxmock.NewRows(profileRowColumns).
				AddRow(userID, "ana@example.com", "Ana", nil, &hash, models.ProviderPassword, nil, now, now))
	}

	user, err := svc.Authenticate(ctx, "ANA@example.com", "secret-pw")
	require.NoError(t, err)
	assert.Equal(t, userID, user.ID)

	_, err = svc.Authenticate(ctx, "ana@example.com", "wrong-pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserService_Authenticate_UnknownEmail(t *testing.T) {
	svc, mock := setupUserService(t)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT .+ FROM profiles WHERE email`).
		WithArgs("ghost@example.com").
		WillReturnError(pgx.ErrNoRows)

	_, err := svc.Authenticate(ctx, "ghost@example.com", "secret-pw")

	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserService_Authenticate_OAuthAccount(t *testing.T) {
	svc, mock := setupUserService(t)
	ctx := context.Background()
	providerID := "gh-1"
	now := time.Now()

	mock.ExpectQuery(`SELECT .+ FROM profiles WHERE email`).
		WithArgs("ana@example.com").
		WillReturnRows(pgxmock.NewRows(profileRowColumns).
			AddRow(uuid.New(), "ana@example.com", "Ana", nil, nil, models.ProviderGitHub, &providerID, now, now))

	_, err := svc.Authenticate(ctx, "ana@example.com", "anything")

	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserService_FindOrCreateFromOAuth_CreateNew(t *testing.T) {
	svc, mock := setupUserService(t)
	ctx := context.Background()
	info := &oauth.UserInfo{
		Email:     "new@example.com",
		Name:      "New User",
		AvatarURL: "https://example.com/avatar.png",
		ID:        "provider-123",
		Provider:  "github",
	}
	userID := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`SELECT .+ FROM profiles WHERE provider = .+ AND provider_id`).
		WithArgs(info.Provider, info.ID).
		WillReturnError(pgx.ErrNoRows)

	rows := pgxmock.NewRows(profileRowColumns).
		AddRow(userID, info.Email, info.Name, &info.AvatarURL, nil, info.Provider, &info.ID, now, now)

	mock.ExpectQuery(`INSERT INTO profiles`).
		WithArgs(info.Email, info.Name, &info.AvatarURL, info.Provider, info.ID).
		WillReturnRows(rows)

	user, err := svc.FindOrCreateFromOAuth(ctx, info)

	require.NoError(t, err)
	assert.Equal(t, userID, user.ID)
	assert.Equal(t, info.Email, user.Email)
	assert.Equal(t, info.Name, user.DisplayName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserService_FindOrCreateFromOAuth_FindExisting(t *testing.T) {
	svc, mock := setupUserService(t)
	ctx := context.Background()
	info := &oauth.UserInfo{
		Email:     "existing@example.com",
		Name:      "Existing User",
		AvatarURL: "https://example.com/avatar.png",
		ID:        "provider-456",
		Provider:  "github",
	}
	userID := uuid.New()
	now := time.Now()
	avatarURL := "https://example.com/avatar.png"

	rows := pgxmock.NewRows(profileRowColumns).
		AddRow(userID, info.Email, info.Name, &avatarURL, nil, info.Provider, &info.ID, now, now)

	mock.ExpectQuery(`SELECT .+ FROM profiles WHERE provider = .+ AND provider_id`).
		WithArgs(info.Provider, info.ID).
		WillReturnRows(rows)

	user, err := svc.FindOrCreateFromOAuth(ctx, info)

	require.NoError(t, err)
	assert.Equal(t, userID, user.ID)
	assert.Equal(t, info.Email, user.Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserService_FindOrCreateFromOAuth_UpdateExisting(t *testing.T) {
	svc, mock := setupUserService(t)
	ctx := context.Background()
	info := &oauth.UserInfo{
		Email:     "updated@example.com",
		Name:      "Updated Name",
		AvatarURL: "https://example.com/new-avatar.png",
		ID:        "provider-789",
		Provider:  "github",
	}
	userID := uuid.New()
	now := time.Now()

	rows := pgxmock.NewRows(profileRowColumns).
		AddRow(userID, "old@example.com", "Old Name", nil, nil, info.Provider, &info.ID, now, now)

	mock.ExpectQuery(`SELECT .+ FROM profiles WHERE provider = .+ AND provider_id`).
		WithArgs(info.Provider, info.ID).
		WillReturnRows(rows)

	mock.ExpectExec(`UPDATE profiles SET email = .+, display_name = .+, avatar_url`).
		WithArgs(info.Email, info.Name, &info.AvatarURL, userID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	user, err := svc.FindOrCreateFromOAuth(ctx, info)

	require.NoError(t, err)
	assert.Equal(t, info.Email, user.Email)
	assert.Equal(t, info.Name, user.DisplayName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserService_GetByID(t *testing.T) {
	svc, mock := setupUserService(t)
	ctx := context.Background()
	userID := uuid.New()
	now := time.Now()

	rows := pgxmock.NewRows(profileRowColumns).
		AddRow(userID, "test@example.com", "Test User", nil, nil, models.ProviderPassword, nil, now, now)

	mock.ExpectQuery(`SELECT .+ FROM profiles WHERE id`).
		WithArgs(userID).
		WillReturnRows(rows)

	user, err := svc.GetByID(ctx, userID)

	require.NoError(t, err)
	assert.Equal(t, userID, user.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserService_GetByID_NotFound(t *testing.T) {
	svc, mock := setupUserService(t)
	ctx := context.Background()
	userID := uuid.New()

	mock.ExpectQuery(`SELECT .+ FROM profiles WHERE id`).
		WithArgs(userID).
		WillReturnError(pgx.ErrNoRows)

	_, err := svc.GetByID(ctx, userID)

	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserService_Update(t *testing.T) {
	svc, mock := setupUserService(t)
	ctx := context.Background()
	userID := uuid.New()
	now := time.Now()

	rows := pgxmock.NewRows(profileRowColumns).
		AddRow(userID, "test@example.com", "Renamed", nil, nil, models.ProviderPassword, nil, now, now)

	mock.ExpectQuery(`UPDATE profiles SET display_name = .+ WHERE id`).
		WithArgs("Renamed", userID).
		WillReturnRows(rows)

	user, err := svc.Update(ctx, userID, " Renamed ")

	require.NoError(t, err)
	assert.Equal(t, "Renamed", user.DisplayName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserService_Update_BlankName(t *testing.T) {
	svc, mock := setupUserService(t)

	_, err := svc.Update(context.Background(), uuid.New(), "  ")

	assert.ErrorIs(t, err, ErrDisplayNameRequired)
	assert.NoError(t, mock.ExpectationsWereMet())
}
