package dto

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	StatusTodo       = "todo"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
)

// Statuses lists the board columns in display order.
var Statuses = []string{StatusTodo, StatusInProgress, StatusDone}

func ValidStatus(status string) bool {
	switch status {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

type Task struct {
	ID          uuid.UUID  `json:"id"`
	TeamID      uuid.UUID  `json:"team_id"`
	Title       string     `json:"title"`
	Description *string    `json:"description,omitempty"`
	Status      string     `json:"status"`
	CreatedBy   *uuid.UUID `json:"created_by,omitempty"`
	AssignedTo  *uuid.UUID `json:"assigned_to,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (t *Task) IsAssignee(userID uuid.UUID) bool {
	return t.AssignedTo != nil && *t.AssignedTo == userID
}

func (t *Task) IsCreator(userID uuid.UUID) bool {
	return t.CreatedBy != nil && *t.CreatedBy == userID
}

type CreateTaskRequest struct {
	Title       string     `json:"title"`
	Description *string    `json:"description,omitempty"`
	AssignedTo  *uuid.UUID `json:"assigned_to,omitempty"`
}

type UpdateTaskRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

type UpdateTaskStatusRequest struct {
	Status string `json:"status"`
}

// Change operations carried by task_change events.
const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

type Change struct {
	Op  string `json:"op"`
	Row Task   `json:"row"`
}

// Change feed event types.
const (
	EventConnected      = "connected"
	EventTaskChange     = "task_change"
	EventPresenceUpdate = "presence_update"
	EventSubscribed     = "subscribed"
	EventUnsubscribed   = "unsubscribed"
	EventPong           = "pong"
	EventError          = "error"
)

// Actions accepted on the sync websocket.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionPing        = "ping"
)

// Event is one frame of the change feed. Data is decoded according to Type.
type Event struct {
	Type      string          `json:"type"`
	TeamID    *uuid.UUID      `json:"team_id,omitempty"`
	ClientID  string          `json:"client_id,omitempty"`
	Message   string          `json:"message,omitempty"`
	RefAction string          `json:"ref_action,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// FeedAction is sent by clients over the sync websocket.
type FeedAction struct {
	Action string `json:"action"`
	TeamID string `json:"team_id,omitempty"`
}
