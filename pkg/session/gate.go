// Package session resolves the signed-in user for the terminal client and
// notifies listeners when that changes.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/dimitrije/teamboard/pkg/client"
	"github.com/dimitrije/teamboard/pkg/dto"
	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
)

// ErrNoSession means nobody is signed in. Callers send the user to sign-in.
var ErrNoSession = errors.New("not signed in")

type Session struct {
	AccessToken  string           `json:"access_token"`
	RefreshToken string           `json:"refresh_token"`
	ExpiresAt    time.Time        `json:"expires_at"`
	User         dto.UserResponse `json:"user"`
}

func (s *Session) UserID() uuid.UUID {
	return s.User.ID
}

// API is the part of the HTTP client the gate needs. *client.Client implements it.
type API interface {
	SetToken(token string)
	SignUp(ctx context.Context, email, password, displayName string) (*dto.AuthResponse, error)
	SignIn(ctx context.Context, email, password string) (*dto.AuthResponse, error)
	ExchangeCode(ctx context.Context, code string) (*dto.AuthResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*dto.TokenResponse, error)
	Logout(ctx context.Context, refreshToken string) error
	Me(ctx context.Context) (*dto.UserResponse, error)
}

// Gate owns the current session. Safe for concurrent use.
type Gate struct {
	api   API
	store fileStore
	log   *slog.Logger

	mu        sync.Mutex
	current   *Session
	listeners map[int]func(*Session)
	nextID    int
}

func NewGate(api API, sessionFile string, log *slog.Logger) *Gate {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Gate{
		api:       api,
		store:     fileStore{path: sessionFile},
		log:       log,
		listeners: make(map[int]func(*Session)),
	}
}

// Init loads the persisted session and checks it against the API, refreshing
// once if the access token was rejected. A session the API refuses is dropped.
func (g *Gate) Init(ctx context.Context) error {
	sess, err := g.store.load()
	if err != nil {
		return err
	}
	if sess == nil {
		g.set(nil)
		return nil
	}

	g.api.SetToken(sess.AccessToken)
	user, err := g.api.Me(ctx)
	if client.IsStatus(err, http.StatusUnauthorized) {
		sess, err = g.refresh(ctx, sess)
		if err == nil {
			// The old refresh token is spent now.
			if err := g.store.save(sess); err != nil {
				return err
			}
			user, err = g.api.Me(ctx)
		}
	}

	switch {
	case err == nil:
		sess.User = *user
		return g.persist(sess)
	case client.IsStatus(err, http.StatusUnauthorized), client.IsStatus(err, http.StatusNotFound):
		g.log.Info("stored session rejected, signing out", slog.Any("error", err))
		g.api.SetToken("")
		g.set(nil)
		return g.store.clear()
	default:
		return fmt.Errorf("failed to validate session: %w", err)
	}
}

func (g *Gate) refresh(ctx context.Context, sess *Session) (*Session, error) {
	tokens, err := g.api.Refresh(ctx, sess.RefreshToken)
	if err != nil {
		return nil, err
	}
	g.api.SetToken(tokens.AccessToken)
	return &Session{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    expiry(tokens.ExpiresIn),
		User:         sess.User,
	}, nil
}

// Refresh rotates the current token pair.
func (g *Gate) Refresh(ctx context.Context) error {
	sess, err := g.Require()
	if err != nil {
		return err
	}
	next, err := g.refresh(ctx, sess)
	if err != nil {
		return err
	}
	return g.persist(next)
}

func (g *Gate) Current() (*Session, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current, g.current != nil
}

// Require returns the current session or ErrNoSession.
func (g *Gate) Require() (*Session, error) {
	if sess, ok := g.Current(); ok {
		return sess, nil
	}
	return nil, ErrNoSession
}

func (g *Gate) SignUp(ctx context.Context, email, password, displayName string) (*Session, error) {
	resp, err := g.api.SignUp(ctx, email, password, displayName)
	if err != nil {
		return nil, err
	}
	return g.start(resp)
}

func (g *Gate) SignIn(ctx context.Context, email, password string) (*Session, error) {
	resp, err := g.api.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return g.start(resp)
}

// SignInWithCode completes an OAuth sign-in started in the browser.
func (g *Gate) SignInWithCode(ctx context.Context, code string) (*Session, error) {
	resp, err := g.api.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return g.start(resp)
}

func (g *Gate) start(resp *dto.AuthResponse) (*Session, error) {
	sess := &Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    expiry(resp.ExpiresIn),
		User:         resp.User,
	}
	g.api.SetToken(sess.AccessToken)
	if err := g.persist(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// SignOut revokes the refresh token and forgets the session. The local
// session is cleared even when the API call fails.
func (g *Gate) SignOut(ctx context.Context) error {
	sess, ok := g.Current()
	if !ok {
		return nil
	}

	var apiErr error
	if err := g.api.Logout(ctx, sess.RefreshToken); err != nil {
		g.log.Warn("logout request failed", slog.Any("error", err))
		apiErr = err
	}

	g.api.SetToken("")
	g.set(nil)
	if err := g.store.clear(); err != nil {
		return err
	}
	return apiErr
}

func (g *Gate) persist(sess *Session) error {
	if err := g.store.save(sess); err != nil {
		return err
	}
	g.set(sess)
	return nil
}

// set swaps the session and notifies listeners if the identity or tokens changed.
func (g *Gate) set(sess *Session) {
	g.mu.Lock()
	if sameSession(g.current, sess) {
		g.current = sess
		g.mu.Unlock()
		return
	}
	g.current = sess
	listeners := make([]func(*Session), 0, len(g.listeners))
	for _, fn := range g.listeners {
		listeners = append(listeners, fn)
	}
	g.mu.Unlock()

	for _, fn := range listeners {
		fn(sess)
	}
}

func sameSession(a, b *Session) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.AccessToken == b.AccessToken && a.RefreshToken == b.RefreshToken && a.User.ID == b.User.ID
}

// Subscription detaches a listener registered with OnChange.
type Subscription struct {
	gate *Gate
	id   int
	once sync.Once
}

func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.gate.mu.Lock()
		delete(s.gate.listeners, s.id)
		s.gate.mu.Unlock()
	})
}

// OnChange calls fn with the new session (nil after sign-out) whenever it changes.
func (g *Gate) OnChange(fn func(*Session)) *Subscription {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.nextID
	g.nextID++
	g.listeners[id] = fn
	return &Subscription{gate: g, id: id}
}

// Teardown detaches every listener.
func (g *Gate) Teardown() {
	g.mu.Lock()
	g.listeners = make(map[int]func(*Session))
	g.mu.Unlock()
}

func (g *Gate) listenerCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.listeners)
}

// Watch follows the session file so a sign-in or sign-out from another
// process shows up here. It blocks until ctx is done.
func (g *Gate) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(g.store.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	name := filepath.Clean(g.store.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			g.reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			g.log.Warn("session watch error", slog.Any("error", err))
		}
	}
}

func (g *Gate) reload() {
	sess, err := g.store.load()
	if err != nil {
		g.log.Warn("failed to reload session", slog.Any("error", err))
		return
	}
	if sess == nil {
		g.api.SetToken("")
	} else {
		g.api.SetToken(sess.AccessToken)
	}
	g.set(sess)
}

func expiry(expiresIn int64) time.Time {
	return time.Now().Add(time.Duration(expiresIn) * time.Second)
}
