// Package oauth signs users in through third-party identity providers.
package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

var ErrNoEmail = errors.New("provider returned no email address")

type UserInfo struct {
	Email     string
	Name      string
	AvatarURL string
	ID        string
	Provider  string
}

type Provider interface {
	GetConsentURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*UserInfo, error)
	Name() string
}

// profileFetcher loads the signed-in profile using an authorized client.
type profileFetcher func(ctx context.Context, client *http.Client, apiBase string) (*UserInfo, error)

// oauth2Provider is an authorization-code provider. Only the profile lookup
// differs between GitHub and Google.
type oauth2Provider struct {
	name    string
	config  *oauth2.Config
	apiBase string
	fetch   profileFetcher
}

func (p *oauth2Provider) Name() string {
	return p.name
}

func (p *oauth2Provider) GetConsentURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

func (p *oauth2Provider) ExchangeCode(ctx context.Context, code string) (*UserInfo, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	info, err := p.fetch(ctx, p.config.Client(ctx, token), p.apiBase)
	if err != nil {
		return nil, err
	}
	if info.Email == "" {
		return nil, ErrNoEmail
	}
	info.Provider = p.name
	return info, nil
}

// getJSON decodes a 200 response from url into v.
func getJSON(ctx context.Context, client *http.Client, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to get %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", url, err)
	}
	return nil
}

func GenerateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
