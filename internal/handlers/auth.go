package handlers

import (
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/dimitrije/teamboard/internal/config"
	"github.com/dimitrije/teamboard/internal/logger"
	"github.com/dimitrije/teamboard/internal/metrics"
	"github.com/dimitrije/teamboard/internal/middleware"
	"github.com/dimitrije/teamboard/internal/models"
	"github.com/dimitrije/teamboard/internal/oauth"
	"github.com/dimitrije/teamboard/internal/services"
	"github.com/dimitrije/teamboard/pkg/dto"
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
)

const (
	stateTTL    = 10 * time.Minute
	authCodeTTL = 30 * time.Second
)

type AuthHandler struct {
	cfg          *config.Config
	providers    map[string]oauth.Provider
	userService  UserServiceInterface
	tokenService TokenServiceInterface
	jwtService   JWTServiceInterface
	metrics      *metrics.Metrics
	log          *slog.Logger
	states       sync.Map
	authCodes    sync.Map
}

type stateData struct {
	expiresAt time.Time
}

type authCodeData struct {
	userID    uuid.UUID
	expiresAt time.Time
}

func NewAuthHandler(
	cfg *config.Config,
	userService UserServiceInterface,
	tokenService TokenServiceInterface,
	jwtService JWTServiceInterface,
	m *metrics.Metrics,
	log *slog.Logger,
) *AuthHandler {
	h := &AuthHandler{
		cfg:          cfg,
		providers:    make(map[string]oauth.Provider),
		userService:  userService,
		tokenService: tokenService,
		jwtService:   jwtService,
		metrics:      m,
		log:          log,
	}

	if cfg.GitHub.ClientID != "" {
		h.providers[models.ProviderGitHub] = oauth.NewGitHubProvider(cfg.GitHub)
	}
	if cfg.Google.ClientID != "" {
		h.providers[models.ProviderGoogle] = oauth.NewGoogleProvider(cfg.Google)
	}

	return h
}

// pruneExpired drops stale OAuth states and one-time codes.
func (h *AuthHandler) pruneExpired() {
	now := time.Now()
	h.states.Range(func(key, value any) bool {
		if sd, ok := value.(stateData); ok && now.After(sd.expiresAt) {
			h.states.Delete(key)
		}
		return true
	})
	h.authCodes.Range(func(key, value any) bool {
		if acd, ok := value.(authCodeData); ok && now.After(acd.expiresAt) {
			h.authCodes.Delete(key)
		}
		return true
	})
}

func (h *AuthHandler) SignUp(c *drift.Context) {
	var req dto.SignUpRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}

	if req.Email == "" || req.Password == "" {
		c.BadRequest("email and password are required")
		return
	}

	user, err := h.userService.SignUp(c.Request.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		respondError(c, h.log, err, "failed to create account")
		return
	}

	h.metrics.RecordAuthEvent("signup", models.ProviderPassword)
	h.issueSession(c, 201, user)
}

func (h *AuthHandler) SignIn(c *drift.Context) {
	var req dto.SignInRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}

	if req.Email == "" || req.Password == "" {
		c.BadRequest("email and password are required")
		return
	}

	user, err := h.userService.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			h.metrics.RecordAuthEvent("signin_failed", models.ProviderPassword)
		}
		respondError(c, h.log, err, "failed to sign in")
		return
	}

	h.metrics.RecordAuthEvent("signin", models.ProviderPassword)
	h.issueSession(c, 200, user)
}

// issueSession mints a token pair, stores the refresh token hash and
// writes an AuthResponse.
func (h *AuthHandler) issueSession(c *drift.Context, status int, user *models.User) {
	pair, err := h.newTokenPair(c, user)
	if err != nil {
		return
	}

	_ = c.JSON(status, dto.AuthResponse{
		TokenResponse: dto.TokenResponse{
			AccessToken:  pair.AccessToken,
			RefreshToken: pair.RefreshToken,
			ExpiresIn:    pair.ExpiresIn,
		},
		User: toUserResponse(user),
	})
}

func (h *AuthHandler) newTokenPair(c *drift.Context, user *models.User) (*services.TokenPair, error) {
	tokenPair, err := h.jwtService.GenerateTokenPair(user.ID, user.Email)
	if err != nil {
		c.InternalServerError("failed to generate tokens")
		return nil, err
	}

	tokenHash := services.HashToken(tokenPair.RefreshToken)
	expiresAt := time.Now().Add(h.jwtService.RefreshExpiry())
	if err := h.tokenService.Store(c.Request.Context(), user.ID, tokenHash, expiresAt); err != nil {
		h.log.Error("store refresh token", logger.Err(err), slog.String("user_id", user.ID.String()))
		c.InternalServerError("failed to store refresh token")
		return nil, err
	}
	return tokenPair, nil
}

func (h *AuthHandler) GetConsentURL(c *drift.Context) {
	provider := c.Param("provider")

	p, ok := h.providers[provider]
	if !ok {
		c.BadRequest("unsupported provider: " + provider)
		return
	}

	state, err := oauth.GenerateState()
	if err != nil {
		c.InternalServerError("failed to generate state")
		return
	}

	h.pruneExpired()
	h.states.Store(state, stateData{expiresAt: time.Now().Add(stateTTL)})

	_ = c.JSON(200, dto.ConsentURLResponse{
		URL: p.GetConsentURL(state),
	})
}

func (h *AuthHandler) Callback(c *drift.Context) {
	provider := c.Param("provider")

	p, ok := h.providers[provider]
	if !ok {
		h.redirectWithError(c, "unsupported provider")
		return
	}

	state := c.QueryParam("state")
	if state == "" {
		h.redirectWithError(c, "missing state parameter")
		return
	}

	sd, ok := h.states.LoadAndDelete(state)
	if !ok {
		h.redirectWithError(c, "invalid or expired state")
		return
	}

	if sdTyped, ok := sd.(stateData); !ok || time.Now().After(sdTyped.expiresAt) {
		h.redirectWithError(c, "state expired")
		return
	}

	code := c.QueryParam("code")
	if code == "" {
		h.redirectWithError(c, "missing authorization code")
		return
	}

	ctx := c.Request.Context()

	userInfo, err := p.ExchangeCode(ctx, code)
	if err != nil {
		h.log.Warn("oauth exchange failed", logger.Err(err), slog.String("provider", provider))
		h.redirectWithError(c, "failed to exchange code")
		return
	}

	user, err := h.userService.FindOrCreateFromOAuth(ctx, userInfo)
	if err != nil {
		h.log.Error("oauth user upsert failed", logger.Err(err), slog.String("provider", provider))
		h.redirectWithError(c, "failed to create user")
		return
	}

	authCode, err := oauth.GenerateState()
	if err != nil {
		h.redirectWithError(c, "failed to generate auth code")
		return
	}

	h.authCodes.Store(authCode, authCodeData{
		userID:    user.ID,
		expiresAt: time.Now().Add(authCodeTTL),
	})
	h.metrics.RecordAuthEvent("signin", provider)

	redirectURL := fmt.Sprintf("%s?code=%s",
		h.cfg.FrontendCallbackURL,
		url.QueryEscape(authCode),
	)

	h.renderCallbackPage(c, redirectURL, authCode, "")
}

func (h *AuthHandler) ExchangeCode(c *drift.Context) {
	var req dto.ExchangeCodeRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}

	if req.Code == "" {
		c.BadRequest("code is required")
		return
	}

	acd, ok := h.authCodes.LoadAndDelete(req.Code)
	if !ok {
		c.Unauthorized("invalid or expired code")
		return
	}

	codeData, ok := acd.(authCodeData)
	if !ok || time.Now().After(codeData.expiresAt) {
		c.Unauthorized("code expired")
		return
	}

	user, err := h.userService.GetByID(c.Request.Context(), codeData.userID)
	if err != nil {
		c.Unauthorized("user not found")
		return
	}

	h.issueSession(c, 200, user)
}

func (h *AuthHandler) RefreshToken(c *drift.Context) {
	var req dto.RefreshTokenRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}

	if req.RefreshToken == "" {
		c.BadRequest("refresh_token is required")
		return
	}

	userID, err := h.jwtService.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		c.Unauthorized("invalid refresh token")
		return
	}

	ctx := c.Request.Context()

	storedUserID, err := h.tokenService.Consume(ctx, services.HashToken(req.RefreshToken))
	switch {
	case errors.Is(err, services.ErrRefreshTokenNotFound), err == nil && storedUserID != userID:
		c.Unauthorized("refresh token not found or expired")
		return
	case err != nil:
		h.log.Error("consume refresh token", logger.Err(err))
		c.InternalServerError("failed to refresh session")
		return
	}

	user, err := h.userService.GetByID(ctx, userID)
	if err != nil {
		c.Unauthorized("user not found")
		return
	}

	pair, err := h.newTokenPair(c, user)
	if err != nil {
		return
	}

	h.metrics.RecordAuthEvent("refresh", user.Provider)
	_ = c.JSON(200, dto.TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	})
}

func (h *AuthHandler) Logout(c *drift.Context) {
	var req dto.RefreshTokenRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}

	if req.RefreshToken != "" {
		tokenHash := services.HashToken(req.RefreshToken)
		if err := h.tokenService.Revoke(c.Request.Context(), tokenHash); err != nil {
			h.log.Warn("revoke refresh token", logger.Err(err))
		}
	}

	_ = c.JSON(200, map[string]string{"message": "logged out"})
}

func (h *AuthHandler) LogoutAll(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	revoked, err := h.tokenService.RevokeAll(c.Request.Context(), userID)
	if err != nil {
		c.InternalServerError("failed to revoke tokens")
		return
	}
	h.log.Info("signed out everywhere", slog.String("user_id", userID.String()), slog.Int64("sessions", revoked))

	_ = c.JSON(200, map[string]string{"message": "all sessions logged out"})
}

func (h *AuthHandler) redirectWithError(c *drift.Context, errMsg string) {
	redirectURL := fmt.Sprintf("%s?error=%s",
		h.cfg.FrontendCallbackURL,
		url.QueryEscape(errMsg),
	)
	h.renderCallbackPage(c, redirectURL, errMsg, "error")
}

func (h *AuthHandler) renderCallbackPage(c *drift.Context, deepLink, code, status string) {
	heading := "You're signed in"
	subtitle := "Returning to Teamboard..."
	statusCode := 200
	codeSection := ""

	if status == "error" {
		heading = "Sign-in failed"
		subtitle = code
		statusCode = 400
	} else {
		codeSection = fmt.Sprintf(`
    <p>Not redirected? Paste this code into <code>teamboard signin --code</code>:</p>
    <pre id="auth-code">%s</pre>`, html.EscapeString(code))
	}

	page := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>Teamboard</title>
  <style>
    body { font-family: system-ui, sans-serif; background: #f9fafb; color: #374151; padding: 40px 20px; }
    main { max-width: 420px; margin: 0 auto; background: #fff; border: 1px solid #e5e7eb; border-radius: 8px; padding: 32px; text-align: center; }
    pre { background: #f3f4f6; padding: 8px; border-radius: 6px; white-space: pre-wrap; word-break: break-all; }
  </style>
</head>
<body>
  <main>
    <h1>%s</h1>
    <p>%s</p>%s
  </main>
  <script>window.location.href = %q;</script>
</body>
</html>`, html.EscapeString(heading), html.EscapeString(subtitle), codeSection, deepLink)

	_ = c.HTML(statusCode, page)
}
