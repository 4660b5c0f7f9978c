package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dimitrije/teamboard/pkg/dto"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := New(server.URL + "/api/v1/")
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New("ftp://example.com")
	assert.Error(t, err)

	_, err = New("://nope")
	assert.Error(t, err)
}

func TestClient_SignInAndBearerToken(t *testing.T) {
	userID := uuid.New()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/signin", func(w http.ResponseWriter, r *http.Request) {
		var req dto.SignInRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ada@example.com", req.Email)
		writeJSON(w, http.StatusOK, dto.AuthResponse{
			TokenResponse: dto.TokenResponse{AccessToken: "access", RefreshToken: "refresh", ExpiresIn: 900},
			User:          dto.UserResponse{ID: userID, Email: req.Email},
		})
	})
	mux.HandleFunc("GET /api/v1/users/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing authorization header"})
			return
		}
		writeJSON(w, http.StatusOK, dto.UserResponse{ID: userID, DisplayName: "Ada"})
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	_, err := c.Me(ctx)
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusUnauthorized))

	auth, err := c.SignIn(ctx, "ada@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, userID, auth.User.ID)

	c.SetToken(auth.AccessToken)
	me, err := c.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Ada", me.DisplayName)
}

func TestClient_ErrorMessages(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"error field", http.StatusConflict, `{"error":"already a member of this team"}`, "already a member of this team"},
		{"message field", http.StatusNotFound, `{"message":"invalid team code"}`, "invalid team code"},
		{"plain text", http.StatusBadRequest, "bad input\n", "bad input"},
		{"empty body", http.StatusForbidden, "", "403 Forbidden"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))

			_, err := c.JoinTeam(context.Background(), "K7M3QZ", "Bob")

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.message, apiErr.Message)
		})
	}
}

func TestClient_TaskRoutes(t *testing.T) {
	teamID := uuid.New()
	taskID := uuid.New()
	var (
		mu    sync.Mutex
		calls []string
	)

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, r.Method+" "+r.URL.Path)
		mu.Unlock()
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, []dto.Task{{ID: taskID, TeamID: teamID, Status: dto.StatusTodo}})
		case http.MethodPost:
			var req dto.CreateTaskRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			writeJSON(w, http.StatusCreated, dto.Task{ID: taskID, TeamID: teamID, Title: req.Title, Status: dto.StatusTodo})
		case http.MethodPatch:
			var req dto.UpdateTaskStatusRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			writeJSON(w, http.StatusOK, dto.Task{ID: taskID, TeamID: teamID, Status: req.Status})
		case http.MethodDelete:
			writeJSON(w, http.StatusOK, dto.Task{ID: taskID})
		}
	}))
	ctx := context.Background()

	tasks, err := c.Tasks(ctx, teamID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	created, err := c.CreateTask(ctx, teamID, dto.CreateTaskRequest{Title: "Write report"})
	require.NoError(t, err)
	assert.Equal(t, "Write report", created.Title)

	moved, err := c.SetTaskStatus(ctx, taskID, dto.StatusDone)
	require.NoError(t, err)
	assert.Equal(t, dto.StatusDone, moved.Status)

	require.NoError(t, c.DeleteTask(ctx, taskID))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"GET /api/v1/teams/" + teamID.String() + "/tasks",
		"POST /api/v1/teams/" + teamID.String() + "/tasks",
		"PATCH /api/v1/tasks/" + taskID.String() + "/status",
		"DELETE /api/v1/tasks/" + taskID.String(),
	}, calls)
}

func TestClient_BreakerTripsOnServerErrors(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "boom"})
	}))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := c.Teams(ctx)
		assert.True(t, IsStatus(err, http.StatusInternalServerError))
	}

	_, err := c.Teams(ctx)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, gobreaker.StateOpen, c.BreakerState())
	assert.Equal(t, int32(5), hits.Load())
}

func TestClient_ClientErrorsKeepBreakerClosed(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "team not found"})
	}))

	for i := 0; i < 10; i++ {
		_, err := c.Team(context.Background(), uuid.New())
		assert.True(t, IsStatus(err, http.StatusNotFound))
	}
	assert.Equal(t, gobreaker.StateClosed, c.BreakerState())
}
