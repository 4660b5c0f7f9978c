package oauth

import (
	"context"
	"net/http"
	"strconv"

	"github.com/dimitrije/teamboard/internal/config"
	"github.com/dimitrije/teamboard/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const githubAPI = "https://api.github.com"

func NewGitHubProvider(cfg config.OAuthConfig) Provider {
	return newGitHub(cfg, github.Endpoint, githubAPI)
}

func newGitHub(cfg config.OAuthConfig, endpoint oauth2.Endpoint, apiBase string) *oauth2Provider {
	return &oauth2Provider{
		name: models.ProviderGitHub,
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"user:email", "read:user"},
			Endpoint:     endpoint,
		},
		apiBase: apiBase,
		fetch:   fetchGitHubProfile,
	}
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func fetchGitHubProfile(ctx context.Context, client *http.Client, apiBase string) (*UserInfo, error) {
	var user struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := getJSON(ctx, client, apiBase+"/user", &user); err != nil {
		return nil, err
	}

	email := user.Email
	if email == "" {
		var emails []githubEmail
		if err := getJSON(ctx, client, apiBase+"/user/emails", &emails); err != nil {
			return nil, err
		}
		email = pickGitHubEmail(emails)
	}

	// The board shows display names, so fall back to the login.
	name := user.Name
	if name == "" {
		name = user.Login
	}

	return &UserInfo{
		Email:     email,
		Name:      name,
		AvatarURL: user.AvatarURL,
		ID:        strconv.FormatInt(user.ID, 10),
	}, nil
}

// pickGitHubEmail prefers the primary verified address, then any verified one.
func pickGitHubEmail(emails []githubEmail) string {
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e.Email
		}
	}
	return ""
}
