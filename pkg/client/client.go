// Package client is a typed HTTP client for the teamboard API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dimitrije/teamboard/pkg/dto"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
)

const defaultTimeout = 15 * time.Second

// APIError is a non-2xx response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

type Client struct {
	baseURL *url.URL
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]

	mu    sync.RWMutex
	token string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithBreakerSettings replaces the default circuit breaker.
func WithBreakerSettings(st gobreaker.Settings) Option {
	return func(c *Client) {
		if st.IsSuccessful == nil {
			st.IsSuccessful = breakerSuccess
		}
		c.breaker = gobreaker.NewCircuitBreaker[[]byte](st)
	}
}

// New returns a client for an API rooted at baseURL, e.g. http://localhost:8080/api/v1.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid api url %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: defaultTimeout},
		breaker: gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:        "teamboard-api",
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			IsSuccessful: breakerSuccess,
		}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// breakerSuccess counts client errors as successes. Only transport failures
// and 5xx responses trip the breaker.
func breakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status < 500
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

func (c *Client) endpoint(path string) string {
	return c.baseURL.String() + path
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	data, err := c.breaker.Execute(func() ([]byte, error) {
		return c.send(ctx, method, path, payload)
	})
	if err != nil {
		return err
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Message: errorMessage(data, resp.Status)}
	}
	return data, nil
}

// errorMessage extracts {"error": ...} or {"message": ...} from an error body.
func errorMessage(body []byte, fallback string) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return fallback
}

func (c *Client) SignUp(ctx context.Context, email, password, displayName string) (*dto.AuthResponse, error) {
	var resp dto.AuthResponse
	err := c.do(ctx, http.MethodPost, "/auth/signup", dto.SignUpRequest{
		Email:       email,
		Password:    password,
		DisplayName: displayName,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*dto.AuthResponse, error) {
	var resp dto.AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/signin", dto.SignInRequest{Email: email, Password: password}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ExchangeCode trades a one-time OAuth code for a session.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*dto.AuthResponse, error) {
	var resp dto.AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/exchange", dto.ExchangeCodeRequest{Code: code}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (*dto.TokenResponse, error) {
	var resp dto.TokenResponse
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", dto.RefreshTokenRequest{RefreshToken: refreshToken}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", dto.RefreshTokenRequest{RefreshToken: refreshToken}, nil)
}

func (c *Client) ConsentURL(ctx context.Context, provider string) (string, error) {
	var resp dto.ConsentURLResponse
	if err := c.do(ctx, http.MethodGet, "/auth/"+url.PathEscape(provider)+"/consent", nil, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

func (c *Client) Me(ctx context.Context) (*dto.UserResponse, error) {
	var resp dto.UserResponse
	if err := c.do(ctx, http.MethodGet, "/users/me", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Teams(ctx context.Context) ([]dto.TeamResponse, error) {
	var resp []dto.TeamResponse
	if err := c.do(ctx, http.MethodGet, "/teams", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Team(ctx context.Context, teamID uuid.UUID) (*dto.TeamResponse, error) {
	var resp dto.TeamResponse
	if err := c.do(ctx, http.MethodGet, "/teams/"+teamID.String(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) CreateTeam(ctx context.Context, name string) (*dto.TeamResponse, error) {
	var resp dto.TeamResponse
	if err := c.do(ctx, http.MethodPost, "/teams", dto.CreateTeamRequest{Name: name}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) JoinTeam(ctx context.Context, code, displayName string) (*dto.TeamResponse, error) {
	var resp dto.TeamResponse
	if err := c.do(ctx, http.MethodPost, "/join", dto.JoinTeamRequest{Code: code, DisplayName: displayName}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LookupCode resolves a share code without joining.
func (c *Client) LookupCode(ctx context.Context, code string) (*dto.TeamResponse, error) {
	var resp dto.TeamResponse
	if err := c.do(ctx, http.MethodGet, "/codes/"+url.PathEscape(code), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Members(ctx context.Context, teamID uuid.UUID) ([]dto.TeamMemberResponse, error) {
	var resp []dto.TeamMemberResponse
	if err := c.do(ctx, http.MethodGet, "/teams/"+teamID.String()+"/members", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) LeaveTeam(ctx context.Context, teamID uuid.UUID) error {
	return c.do(ctx, http.MethodPost, "/teams/"+teamID.String()+"/leave", nil, nil)
}

func (c *Client) Tasks(ctx context.Context, teamID uuid.UUID) ([]dto.Task, error) {
	var resp []dto.Task
	if err := c.do(ctx, http.MethodGet, "/teams/"+teamID.String()+"/tasks", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) CreateTask(ctx context.Context, teamID uuid.UUID, req dto.CreateTaskRequest) (*dto.Task, error) {
	var resp dto.Task
	if err := c.do(ctx, http.MethodPost, "/teams/"+teamID.String()+"/tasks", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) SetTaskStatus(ctx context.Context, taskID uuid.UUID, status string) (*dto.Task, error) {
	var resp dto.Task
	if err := c.do(ctx, http.MethodPatch, "/tasks/"+taskID.String()+"/status", dto.UpdateTaskStatusRequest{Status: status}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) DeleteTask(ctx context.Context, taskID uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/tasks/"+taskID.String(), nil, nil)
}
