package services

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJWT(access, refresh time.Duration) *JWTService {
	return NewJWTService("board-secret", access, refresh)
}

func TestJWTService_TokenPair(t *testing.T) {
	svc := newTestJWT(15*time.Minute, 7*24*time.Hour)
	userID := uuid.New()

	pair, err := svc.GenerateTokenPair(userID, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(900), pair.ExpiresIn)
	assert.Equal(t, 7*24*time.Hour, svc.RefreshExpiry())

	claims, err := svc.ValidateAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "ada@example.com", claims.Email)
	assert.Equal(t, userID.String(), claims.Subject)
	assert.Equal(t, jwt.ClaimStrings{accessAudience}, claims.Audience)

	owner, err := svc.ValidateRefreshToken(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, userID, owner)
}

func TestJWTService_TokensDoNotStandInForEachOther(t *testing.T) {
	svc := newTestJWT(15*time.Minute, time.Hour)
	pair, err := svc.GenerateTokenPair(uuid.New(), "ada@example.com")
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(pair.RefreshToken)
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidAudience)

	_, err = svc.ValidateRefreshToken(pair.AccessToken)
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidAudience)
}

func TestJWTService_Rejects(t *testing.T) {
	issuer := newTestJWT(time.Millisecond, time.Millisecond)
	stale, err := issuer.GenerateTokenPair(uuid.New(), "ada@example.com")
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	fresh, err := NewJWTService("other-secret", time.Hour, time.Hour).GenerateTokenPair(uuid.New(), "ada@example.com")
	require.NoError(t, err)

	svc := newTestJWT(time.Hour, time.Hour)
	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"not a jwt", "board-token"},
		{"header only", "eyJhbGciOiJIUzI1NiJ9."},
		{"expired", stale.AccessToken},
		{"signed with another secret", fresh.AccessToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ValidateAccessToken(tt.token)
			assert.ErrorContains(t, err, "failed to parse token")
		})
	}

	t.Run("expired refresh", func(t *testing.T) {
		_, err := svc.ValidateRefreshToken(stale.RefreshToken)
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})
	t.Run("refresh from another secret", func(t *testing.T) {
		_, err := svc.ValidateRefreshToken(fresh.RefreshToken)
		assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
	})
}

func TestJWTService_RejectsOtherAlgorithms(t *testing.T) {
	svc := newTestJWT(time.Hour, time.Hour)
	token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		UserID:           uuid.New(),
		RegisteredClaims: svc.registered(uuid.New(), time.Now(), time.Hour, accessAudience),
	})
	unsigned, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(unsigned)

	assert.Error(t, err)
}

func TestJWTService_RefreshTokensAreUnique(t *testing.T) {
	svc := newTestJWT(time.Hour, time.Hour)
	userID := uuid.New()

	first, err := svc.GenerateTokenPair(userID, "ada@example.com")
	require.NoError(t, err)
	second, err := svc.GenerateTokenPair(userID, "ada@example.com")
	require.NoError(t, err)

	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.NotEqual(t, HashToken(first.RefreshToken), HashToken(second.RefreshToken))
}

func TestHashToken(t *testing.T) {
	hash := HashToken("refresh-token")

	assert.Len(t, hash, 64)
	assert.Equal(t, hash, HashToken("refresh-token"))
	assert.NotEqual(t, hash, HashToken("refresh-token2"))
}
