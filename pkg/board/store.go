// Package board keeps a team's task list in memory and merges local edits
// with the realtime change feed.
package board

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/dimitrije/teamboard/pkg/dto"
	"github.com/google/uuid"
)

var (
	ErrEmptyTitle    = errors.New("task title is required")
	ErrInvalidStatus = errors.New("invalid task status")
	ErrTaskNotFound  = errors.New("task not found")
	ErrNotAssignee   = errors.New("only the assignee can change a task's status")
	ErrForbidden     = errors.New("only the creator, assignee or team owner can delete a task")
)

// Backend persists tasks. *client.Client implements it.
type Backend interface {
	Tasks(ctx context.Context, teamID uuid.UUID) ([]dto.Task, error)
	CreateTask(ctx context.Context, teamID uuid.UUID, req dto.CreateTaskRequest) (*dto.Task, error)
	SetTaskStatus(ctx context.Context, taskID uuid.UUID, status string) (*dto.Task, error)
	DeleteTask(ctx context.Context, taskID uuid.UUID) error
}

// Member is the signed-in user as seen by the team.
type Member struct {
	UserID uuid.UUID
	Role   string
}

func (m Member) IsOwner() bool {
	return m.Role == dto.RoleOwner
}

// Columns groups tasks by status, keeping the store's order.
type Columns struct {
	Todo       []dto.Task
	InProgress []dto.Task
	Done       []dto.Task
}

func (c Columns) ByStatus(status string) []dto.Task {
	switch status {
	case dto.StatusTodo:
		return c.Todo
	case dto.StatusInProgress:
		return c.InProgress
	case dto.StatusDone:
		return c.Done
	}
	return nil
}

// Store holds one team's tasks, newest first. Local edits and realtime
// changes both go through Apply, so the order they arrive in does not matter.
type Store struct {
	backend Backend
	teamID  uuid.UUID
	me      Member
	log     *slog.Logger

	mu        sync.Mutex
	tasks     []dto.Task
	listeners map[int]func()
	nextID    int
}

func NewStore(backend Backend, teamID uuid.UUID, me Member, log *slog.Logger) *Store {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Store{
		backend:   backend,
		teamID:    teamID,
		me:        me,
		log:       log.With(slog.String("team_id", teamID.String())),
		listeners: make(map[int]func()),
	}
}

func (s *Store) TeamID() uuid.UUID {
	return s.teamID
}

// Load replaces the local list with the backend's.
func (s *Store) Load(ctx context.Context) error {
	tasks, err := s.backend.Tasks(ctx, s.teamID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.tasks = append([]dto.Task(nil), tasks...)
	s.mu.Unlock()

	s.notify()
	return nil
}

// Add creates a todo task assigned to assigneeID, or to the current user when nil.
func (s *Store) Add(ctx context.Context, title string, assigneeID *uuid.UUID) (*dto.Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	if assigneeID == nil {
		self := s.me.UserID
		assigneeID = &self
	}

	task, err := s.backend.CreateTask(ctx, s.teamID, dto.CreateTaskRequest{
		Title:      title,
		AssignedTo: assigneeID,
	})
	if err != nil {
		s.log.Warn("create task failed", slog.Any("error", err))
		return nil, err
	}

	s.Apply(dto.Change{Op: dto.OpInsert, Row: *task})
	return task, nil
}

// SetStatus moves a task the current user is assigned to. The change shows
// locally before the backend answers and is undone if the backend refuses
// it and no newer version arrived meanwhile.
func (s *Store) SetStatus(ctx context.Context, taskID uuid.UUID, status string) error {
	if !dto.ValidStatus(status) {
		return ErrInvalidStatus
	}

	s.mu.Lock()
	i := s.indexLocked(taskID)
	if i < 0 {
		s.mu.Unlock()
		return ErrTaskNotFound
	}
	previous := s.tasks[i]
	if !previous.IsAssignee(s.me.UserID) {
		s.mu.Unlock()
		return ErrNotAssignee
	}
	optimistic := previous
	optimistic.Status = status
	s.tasks[i] = optimistic
	s.mu.Unlock()
	s.notify()

	updated, err := s.backend.SetTaskStatus(ctx, taskID, status)
	if err != nil {
		s.log.Warn("set status failed, reverting",
			slog.String("task_id", taskID.String()),
			slog.String("status", status),
			slog.Any("error", err))
		s.revert(optimistic, previous)
		return err
	}

	s.Apply(dto.Change{Op: dto.OpUpdate, Row: *updated})
	return nil
}

// revert puts previous back if the entry still holds the optimistic version.
func (s *Store) revert(optimistic, previous dto.Task) {
	s.mu.Lock()
	i := s.indexLocked(optimistic.ID)
	if i < 0 || s.tasks[i].Status != optimistic.Status || !s.tasks[i].UpdatedAt.Equal(optimistic.UpdatedAt) {
		s.mu.Unlock()
		return
	}
	s.tasks[i] = previous
	s.mu.Unlock()
	s.notify()
}

// Delete removes a task locally, then on the backend. A refused delete puts
// the task back where it was.
func (s *Store) Delete(ctx context.Context, taskID uuid.UUID) error {
	s.mu.Lock()
	i := s.indexLocked(taskID)
	if i < 0 {
		s.mu.Unlock()
		return ErrTaskNotFound
	}
	task := s.tasks[i]
	if !task.IsCreator(s.me.UserID) && !task.IsAssignee(s.me.UserID) && !s.me.IsOwner() {
		s.mu.Unlock()
		return ErrForbidden
	}
	s.tasks = append(s.tasks[:i:i], s.tasks[i+1:]...)
	s.mu.Unlock()
	s.notify()

	if err := s.backend.DeleteTask(ctx, taskID); err != nil {
		s.log.Warn("delete task failed, restoring",
			slog.String("task_id", taskID.String()),
			slog.Any("error", err))
		s.restore(task, i)
		return err
	}
	return nil
}

func (s *Store) restore(task dto.Task, at int) {
	s.mu.Lock()
	if s.indexLocked(task.ID) >= 0 {
		s.mu.Unlock()
		return
	}
	if at > len(s.tasks) {
		at = len(s.tasks)
	}
	s.tasks = append(s.tasks[:at:at], append([]dto.Task{task}, s.tasks[at:]...)...)
	s.mu.Unlock()
	s.notify()
}

// Apply merges one change by task id. Inserts of a known id, updates of an
// unknown id and updates older than the stored row are ignored, so replays,
// echoes and late responses are harmless.
func (s *Store) Apply(change dto.Change) {
	if change.Row.TeamID != uuid.Nil && change.Row.TeamID != s.teamID {
		return
	}

	s.mu.Lock()
	changed := s.applyLocked(change)
	s.mu.Unlock()

	if changed {
		s.notify()
	}
}

func (s *Store) applyLocked(change dto.Change) bool {
	i := s.indexLocked(change.Row.ID)

	switch change.Op {
	case dto.OpInsert:
		if i >= 0 {
			return false
		}
		s.tasks = append([]dto.Task{change.Row}, s.tasks...)
		return true
	case dto.OpUpdate:
		if i < 0 || s.tasks[i].UpdatedAt.After(change.Row.UpdatedAt) {
			return false
		}
		s.tasks[i] = change.Row
		return true
	case dto.OpDelete:
		if i < 0 {
			return false
		}
		s.tasks = append(s.tasks[:i:i], s.tasks[i+1:]...)
		return true
	}
	s.log.Debug("ignoring unknown change op", slog.String("op", change.Op))
	return false
}

func (s *Store) indexLocked(id uuid.UUID) int {
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			return i
		}
	}
	return -1
}

// Tasks returns a copy of the current list.
func (s *Store) Tasks() []dto.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]dto.Task(nil), s.tasks...)
}

func (s *Store) Task(id uuid.UUID) (dto.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.tasks[i], true
	}
	return dto.Task{}, false
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Columns is computed from the current list on every call.
func (s *Store) Columns() Columns {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cols Columns
	for _, t := range s.tasks {
		switch t.Status {
		case dto.StatusTodo:
			cols.Todo = append(cols.Todo, t)
		case dto.StatusInProgress:
			cols.InProgress = append(cols.InProgress, t)
		case dto.StatusDone:
			cols.Done = append(cols.Done, t)
		}
	}
	return cols
}

// OnChange registers fn to run after every change. The returned func removes it.
func (s *Store) OnChange(fn func()) (remove func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) notify() {
	s.mu.Lock()
	listeners := make([]func(), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}
