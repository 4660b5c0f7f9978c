// Package realtime fans task changes out to the clients watching a team.
package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/dimitrije/teamboard/internal/metrics"
	"github.com/dimitrije/teamboard/internal/models"
	"github.com/google/uuid"
)

const (
	EventTaskChange     = "task_change"
	EventPresenceUpdate = "presence_update"
)

// Op is the kind of row change carried by a task_change event.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

const sendBuffer = 256

type Change struct {
	Op  Op          `json:"op"`
	Row models.Task `json:"row"`
}

type Event struct {
	Type   string     `json:"type"`
	TeamID *uuid.UUID `json:"team_id,omitempty"`
	Data   any        `json:"data,omitempty"`
}

type OnlineUser struct {
	UserID   uuid.UUID `json:"user_id"`
	UserName string    `json:"user_name"`
}

type PresenceUpdateData struct {
	OnlineUsers []OnlineUser `json:"online_users"`
}

type Client struct {
	ID       string
	UserID   uuid.UUID
	UserName string
	Teams    map[uuid.UUID]bool
	Send     chan []byte
}

func NewClient(userID uuid.UUID, userName string) *Client {
	return &Client{
		ID:       uuid.NewString(),
		UserID:   userID,
		UserName: userName,
		Teams:    make(map[uuid.UUID]bool),
		Send:     make(chan []byte, sendBuffer),
	}
}

type TeamMessage struct {
	TeamID uuid.UUID
	Event  Event
	op     Op
}

type registration struct {
	client *Client
	ack    chan struct{}
}

type Hub struct {
	clients    map[string]*Client
	register   chan registration
	unregister chan *Client
	broadcast  chan *TeamMessage
	done       chan struct{}
	mu         sync.RWMutex
	metrics    *metrics.Metrics
}

func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan registration),
		unregister: make(chan *Client),
		broadcast:  make(chan *TeamMessage, sendBuffer),
		done:       make(chan struct{}),
		metrics:    m,
	}
}

// Run processes registrations and broadcasts until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, client := range h.clients {
				delete(h.clients, id)
				close(client.Send)
				h.metrics.ClientDisconnected()
			}
			h.mu.Unlock()
			return

		case reg := <-h.register:
			h.mu.Lock()
			h.clients[reg.client.ID] = reg.client
			h.mu.Unlock()
			close(reg.ack)
			h.metrics.ClientConnected()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				teams := make([]uuid.UUID, 0, len(client.Teams))
				for teamID := range client.Teams {
					teams = append(teams, teamID)
				}
				delete(h.clients, client.ID)
				close(client.Send)
				h.mu.Unlock()
				h.metrics.ClientDisconnected()

				for _, teamID := range teams {
					h.broadcastPresence(teamID)
				}
			} else {
				h.mu.Unlock()
			}

		case msg := <-h.broadcast:
			data, err := json.Marshal(msg.Event)
			if err != nil {
				continue
			}
			h.mu.RLock()
			for _, client := range h.clients {
				if client.Teams[msg.TeamID] {
					select {
					case client.Send <- data:
					default:
						// Client buffer full, skip
					}
				}
			}
			h.mu.RUnlock()
			if msg.op != "" {
				h.metrics.RecordChange(string(msg.op))
			}
		}
	}
}

// Register returns once the client is in the hub, so a following Subscribe
// always finds it.
func (h *Hub) Register(client *Client) {
	reg := registration{client: client, ack: make(chan struct{})}
	select {
	case h.register <- reg:
		<-reg.ack
	case <-h.done:
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Subscribe adds teamID to the client's teams. Membership is checked by the caller.
func (h *Hub) Subscribe(clientID string, teamID uuid.UUID) {
	h.mu.Lock()
	if client, ok := h.clients[clientID]; ok {
		client.Teams[teamID] = true
	}
	h.mu.Unlock()

	h.broadcastPresence(teamID)
}

func (h *Hub) Unsubscribe(clientID string, teamID uuid.UUID) {
	h.mu.Lock()
	if client, ok := h.clients[clientID]; ok {
		delete(client.Teams, teamID)
	}
	h.mu.Unlock()

	h.broadcastPresence(teamID)
}

// Broadcast queues a task change for every client subscribed to teamID.
func (h *Hub) Broadcast(teamID uuid.UUID, change Change) {
	msg := &TeamMessage{
		TeamID: teamID,
		Event: Event{
			Type:   EventTaskChange,
			TeamID: &teamID,
			Data:   change,
		},
		op: change.Op,
	}
	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}

// OnlineUsers lists the distinct users currently subscribed to teamID.
func (h *Hub) OnlineUsers(teamID uuid.UUID) []OnlineUser {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[uuid.UUID]bool)
	onlineUsers := []OnlineUser{}
	for _, client := range h.clients {
		if client.Teams[teamID] && !seen[client.UserID] {
			seen[client.UserID] = true
			onlineUsers = append(onlineUsers, OnlineUser{
				UserID:   client.UserID,
				UserName: client.UserName,
			})
		}
	}
	return onlineUsers
}

func (h *Hub) broadcastPresence(teamID uuid.UUID) {
	event := Event{
		Type:   EventPresenceUpdate,
		TeamID: &teamID,
		Data: PresenceUpdateData{
			OnlineUsers: h.OnlineUsers(teamID),
		},
	}

	data, _ := json.Marshal(event)

	h.mu.RLock()
	for _, client := range h.clients {
		if client.Teams[teamID] {
			select {
			case client.Send <- data:
			default:
			}
		}
	}
	h.mu.RUnlock()
}
