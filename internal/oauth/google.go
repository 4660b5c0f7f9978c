package oauth

import (
	"context"
	"net/http"

	"github.com/dimitrije/teamboard/internal/config"
	"github.com/dimitrije/teamboard/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleAPI = "https://www.googleapis.com"

func NewGoogleProvider(cfg config.OAuthConfig) Provider {
	return newGoogle(cfg, google.Endpoint, googleAPI)
}

func newGoogle(cfg config.OAuthConfig, endpoint oauth2.Endpoint, apiBase string) *oauth2Provider {
	return &oauth2Provider{
		name: models.ProviderGoogle,
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
			Endpoint: endpoint,
		},
		apiBase: apiBase,
		fetch:   fetchGoogleProfile,
	}
}

func fetchGoogleProfile(ctx context.Context, client *http.Client, apiBase string) (*UserInfo, error) {
	var user struct {
		ID            string `json:"id"`
		Email         string `json:"email"`
		VerifiedEmail bool   `json:"verified_email"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := getJSON(ctx, client, apiBase+"/oauth2/v2/userinfo", &user); err != nil {
		return nil, err
	}

	if !user.VerifiedEmail {
		return nil, ErrNoEmail
	}

	return &UserInfo{
		Email:     user.Email,
		Name:      user.Name,
		AvatarURL: user.Picture,
		ID:        user.ID,
	}, nil
}
