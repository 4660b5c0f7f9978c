package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dimitrije/teamboard/pkg/board"
	"github.com/dimitrije/teamboard/pkg/dto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testUserID  = uuid.MustParse("7f1c2a9e-4b3d-4e5f-8a6b-1c2d3e4f5a6b")
	testGraceID = uuid.MustParse("3b9d0c4e-1a2b-4c3d-9e8f-0a1b2c3d4e5f")
	testTeamID  = uuid.MustParse("c0ffee00-1111-4222-8333-444455556666")
)

func newFakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	authorized := func(r *http.Request) bool {
		return r.Header.Get("Authorization") == "Bearer access-1"
	}

	mux.HandleFunc("POST /auth/signin", func(w http.ResponseWriter, r *http.Request) {
		var req dto.SignInRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Password != "secret123" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid email or password"})
			return
		}
		writeJSON(w, http.StatusOK, dto.AuthResponse{
			TokenResponse: dto.TokenResponse{AccessToken: "access-1", RefreshToken: "refresh-1", ExpiresIn: 900},
			User:          dto.UserResponse{ID: testUserID, Email: req.Email, DisplayName: "Ada"},
		})
	})
	mux.HandleFunc("POST /auth/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /users/me", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		writeJSON(w, http.StatusOK, dto.UserResponse{ID: testUserID, Email: "ada@example.com", DisplayName: "Ada"})
	})
	mux.HandleFunc("POST /join", func(w http.ResponseWriter, r *http.Request) {
		var req dto.JoinTeamRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		switch req.Code {
		case "K7M3QZ":
			writeJSON(w, http.StatusConflict, map[string]string{"error": "already a member of this team"})
		case "ABCDEF":
			writeJSON(w, http.StatusCreated, dto.TeamResponse{ID: uuid.New(), Name: "Alpha", Code: req.Code, Role: dto.RoleMember})
		default:
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "invalid team code"})
		}
	})
	mux.HandleFunc("GET /teams", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []dto.TeamResponse{{ID: uuid.New(), Name: "Alpha", Code: "K7M3QZ", Role: dto.RoleOwner}})
	})

	var (
		mu    sync.Mutex
		tasks []dto.Task
	)
	mux.HandleFunc("GET /teams/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, dto.TeamResponse{ID: testTeamID, Name: "Alpha", Code: "K7M3QZ", Role: dto.RoleOwner})
	})
	mux.HandleFunc("GET /teams/{id}/members", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []dto.TeamMemberResponse{
			{UserID: testUserID, DisplayName: "Ada", Role: dto.RoleOwner},
			{UserID: testGraceID, DisplayName: "Grace", Role: dto.RoleMember},
		})
	})
	mux.HandleFunc("GET /teams/{id}/tasks", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		writeJSON(w, http.StatusOK, tasks)
	})
	mux.HandleFunc("POST /teams/{id}/tasks", func(w http.ResponseWriter, r *http.Request) {
		var req dto.CreateTaskRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		task := dto.Task{
			ID:         uuid.New(),
			TeamID:     testTeamID,
			Title:      req.Title,
			Status:     dto.StatusTodo,
			CreatedBy:  &testUserID,
			AssignedTo: req.AssignedTo,
			CreatedAt:  time.Now(),
			UpdatedAt:  time.Now(),
		}
		mu.Lock()
		tasks = append([]dto.Task{task}, tasks...)
		mu.Unlock()
		writeJSON(w, http.StatusCreated, task)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type cliEnv struct {
	apiURL      string
	sessionFile string
}

func newCLIEnv(t *testing.T) cliEnv {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	return cliEnv{
		apiURL:      newFakeAPI(t).URL,
		sessionFile: filepath.Join(t.TempDir(), "session.json"),
	}
}

func (e cliEnv) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--api-url", e.apiURL, "--session-file", e.sessionFile}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestCLI_SignInThenWhoAmI(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "", "signin", "--email", "ada@example.com", "--password", "secret123")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as ada@example.com.")
	assert.FileExists(t, env.sessionFile)

	out, err = env.run(t, "", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Ada <ada@example.com>")
}

func TestCLI_WhoAmIWithoutSession(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "", "whoami")

	assert.ErrorIs(t, err, errSignIn)
}

func TestCLI_SignInRejected(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "", "signin", "--email", "ada@example.com", "--password", "nope")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid email or password")
	assert.NoFileExists(t, env.sessionFile)
}

func TestCLI_SignOut(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run(t, "", "signin", "--email", "ada@example.com", "--password", "secret123")
	require.NoError(t, err)

	out, err := env.run(t, "", "signout")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed out.")
	assert.NoFileExists(t, env.sessionFile)

	out, err = env.run(t, "", "signout")
	require.NoError(t, err)
	assert.Contains(t, out, "Not signed in.")
}

func TestCLI_JoinTeam(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run(t, "", "signin", "--email", "ada@example.com", "--password", "secret123")
	require.NoError(t, err)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"lowercase code", []string{"join-team", "abcdef", "--name", "Ada"}, "Joined Alpha as Ada."},
		{"already a member", []string{"join-team", "k7m3qz", "--name", "Ada"}, "You are already a member of this team."},
		{"unknown code", []string{"join-team", "ZZZZZZ", "--name", "Ada"}, "No team uses code ZZZZZZ."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := env.run(t, "", tt.args...)
			require.NoError(t, err)
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestCLI_JoinTeamValidation(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run(t, "", "signin", "--email", "ada@example.com", "--password", "secret123")
	require.NoError(t, err)

	_, err = env.run(t, "", "join-team", "ab", "--name", "Ada")
	assert.ErrorContains(t, err, "at least 4")

	_, err = env.run(t, "", "join-team", "ABCDEF")
	assert.ErrorContains(t, err, "--name")
}

func TestCLI_Teams(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run(t, "", "signin", "--email", "ada@example.com", "--password", "secret123")
	require.NoError(t, err)

	out, err := env.run(t, "", "teams")

	require.NoError(t, err)
	assert.Contains(t, out, "Alpha")
	assert.Contains(t, out, "K7M3QZ")
	assert.Contains(t, out, dto.RoleOwner)
}

func TestRenderBoard(t *testing.T) {
	other := uuid.New()
	mine := dto.Task{ID: uuid.New(), Title: "Write report", Status: dto.StatusInProgress, AssignedTo: &testUserID}
	theirs := dto.Task{ID: uuid.New(), Title: "Review", Status: dto.StatusTodo, AssignedTo: &other}

	out := renderBoard("Alpha", board.Columns{
		Todo:       []dto.Task{theirs},
		InProgress: []dto.Task{mine},
	}, testUserID, map[uuid.UUID]string{other: "Grace"})

	assert.Contains(t, out, "Alpha")
	assert.Contains(t, out, "To Do (1)")
	assert.Contains(t, out, "In Progress (1)")
	assert.Contains(t, out, "Done (0)")
	assert.Contains(t, out, shortID(mine.ID))
	assert.Contains(t, out, "(you)")
	assert.Contains(t, out, "Assigned to: Grace")
}

func TestRenderTask_UnknownAssignee(t *testing.T) {
	gone := uuid.New()
	task := dto.Task{ID: uuid.New(), Title: "Old", Status: dto.StatusTodo, AssignedTo: &gone}

	out := renderTask(task, testUserID, nil)

	assert.Contains(t, out, "Assigned to: "+shortID(gone))
}

func TestTeamBoard_FindMember(t *testing.T) {
	tb := &teamBoard{
		team: &dto.TeamResponse{Name: "Alpha"},
		members: []dto.TeamMemberResponse{
			{UserID: testUserID, DisplayName: "Ada"},
			{UserID: testGraceID, DisplayName: "Grace"},
			{UserID: uuid.MustParse("3b9d0c4e-0000-4000-8000-000000000000"), DisplayName: "grace"},
		},
	}

	got, err := tb.findMember("ada")
	require.NoError(t, err)
	assert.Equal(t, testUserID, got)

	got, err = tb.findMember("7F1C")
	require.NoError(t, err)
	assert.Equal(t, testUserID, got)

	_, err = tb.findMember("Grace")
	assert.ErrorContains(t, err, "matches 2 members")

	got, err = tb.findMember(testGraceID.String()[:12])
	require.NoError(t, err)
	assert.Equal(t, testGraceID, got)

	_, err = tb.findMember("Linus")
	assert.ErrorContains(t, err, "no member of Alpha")
}

func TestCLI_AddAssignsByName(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run(t, "", "signin", "--email", "ada@example.com", "--password", "secret123")
	require.NoError(t, err)

	out, err := env.run(t, "", "add", testTeamID.String(), "Review", "--assignee", "grace")
	require.NoError(t, err)
	assert.Contains(t, out, "Added")

	out, err = env.run(t, "", "board", testTeamID.String())
	require.NoError(t, err)
	assert.Contains(t, out, "Review")
	assert.Contains(t, out, "Assigned to: Grace")

	_, err = env.run(t, "", "add", testTeamID.String(), "Deploy", "--assignee", "Linus")
	assert.ErrorContains(t, err, "no member of Alpha")
}

func TestTeamBoard_FindTask(t *testing.T) {
	teamID := uuid.New()
	store := board.NewStore(nil, teamID, board.Member{UserID: testUserID}, nil)
	a := dto.Task{ID: uuid.MustParse("aaaa1111-0000-0000-0000-000000000000"), TeamID: teamID, Title: "a", Status: dto.StatusTodo, UpdatedAt: time.Now()}
	b := dto.Task{ID: uuid.MustParse("aaaa2222-0000-0000-0000-000000000000"), TeamID: teamID, Title: "b", Status: dto.StatusTodo, UpdatedAt: time.Now()}
	store.Apply(dto.Change{Op: dto.OpInsert, Row: a})
	store.Apply(dto.Change{Op: dto.OpInsert, Row: b})
	tb := &teamBoard{store: store}

	got, err := tb.findTask("AAAA1")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	_, err = tb.findTask("aaaa")
	assert.ErrorContains(t, err, "matches 2 tasks")

	_, err = tb.findTask("ffff")
	assert.ErrorContains(t, err, "no task matches")
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		assert.Equal(t, tt.want, confirm(strings.NewReader(tt.input), &out, "Delete?"), "input %q", tt.input)
		assert.Contains(t, out.String(), "[y/N]")
	}
}
