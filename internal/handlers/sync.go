package handlers

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/dimitrije/teamboard/internal/logger"
	"github.com/dimitrije/teamboard/internal/middleware"
	"github.com/dimitrije/teamboard/internal/realtime"
	"github.com/dimitrije/teamboard/pkg/dto"
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
	"github.com/m1z23r/drift/pkg/websocket"
)

const (
	syncPingInterval = 30 * time.Second
	syncWriteTimeout = 10 * time.Second
	syncReadTimeout  = 60 * time.Second
	syncReplyBuffer  = 16
)

// SyncHandler serves the websocket change feed. A single connection can
// follow several teams.
type SyncHandler struct {
	hub         HubInterface
	teamService TeamServiceInterface
	userService UserServiceInterface
	log         *slog.Logger
}

func NewSyncHandler(hub HubInterface, teamService TeamServiceInterface, userService UserServiceInterface, log *slog.Logger) *SyncHandler {
	return &SyncHandler{
		hub:         hub,
		teamService: teamService,
		userService: userService,
		log:         log,
	}
}

// syncSession is the per-connection state shared by the read and write pumps.
// Only the write pump touches the connection for writing.
type syncSession struct {
	client  *realtime.Client
	replies chan []byte
}

func (s *syncSession) reply(event dto.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	select {
	case s.replies <- data:
	default:
	}
}

func (s *syncSession) fail(action, message string) {
	s.reply(dto.Event{Type: dto.EventError, Message: message, RefAction: action})
}

func (h *SyncHandler) Connect(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	user, err := h.userService.GetByID(c.Request.Context(), userID)
	if err != nil {
		c.Unauthorized("user not found")
		return
	}

	conn, err := websocket.Upgrade(c)
	if err != nil {
		h.log.Warn("websocket upgrade failed", logger.Err(err))
		return
	}

	session := &syncSession{
		client:  realtime.NewClient(userID, user.DisplayName),
		replies: make(chan []byte, syncReplyBuffer),
	}
	client := session.client

	h.hub.Register(client)
	session.reply(dto.Event{Type: dto.EventConnected, ClientID: client.ID})

	done := make(chan struct{})

	// Write pump
	go func() {
		ticker := time.NewTicker(syncPingInterval)
		defer ticker.Stop()
		defer func() {
			if err := conn.Close(websocket.CloseNormalClosure, ""); err != nil {
				h.log.Debug("websocket close", logger.Err(err))
			}
		}()

		for {
			select {
			case msg, ok := <-client.Send:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(syncWriteTimeout))
				if err := conn.WriteText(string(msg)); err != nil {
					return
				}
			case msg := <-session.replies:
				_ = conn.SetWriteDeadline(time.Now().Add(syncWriteTimeout))
				if err := conn.WriteText(string(msg)); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.Ping(nil); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	// Read pump (blocks until disconnect)
	defer func() {
		close(done)
		h.hub.Unregister(client)
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(syncReadTimeout))
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		if msgType != websocket.TextMessage {
			continue
		}

		var msg dto.FeedAction
		if err := json.Unmarshal(data, &msg); err != nil {
			session.fail("", "invalid message format")
			continue
		}

		switch msg.Action {
		case dto.ActionSubscribe:
			h.handleSubscribe(c, session, msg)
		case dto.ActionUnsubscribe:
			h.handleUnsubscribe(session, msg)
		case dto.ActionPing:
			session.reply(dto.Event{Type: dto.EventPong})
		default:
			session.fail(msg.Action, "unknown action")
		}
	}
}

func (h *SyncHandler) handleSubscribe(c *drift.Context, session *syncSession, msg dto.FeedAction) {
	teamID, err := uuid.Parse(msg.TeamID)
	if err != nil {
		session.fail(dto.ActionSubscribe, "invalid team_id")
		return
	}

	isMember, err := h.teamService.IsMember(c.Request.Context(), teamID, session.client.UserID)
	if err != nil || !isMember {
		session.fail(dto.ActionSubscribe, "team not found")
		return
	}

	h.hub.Subscribe(session.client.ID, teamID)
	session.reply(dto.Event{Type: dto.EventSubscribed, TeamID: &teamID})
}

func (h *SyncHandler) handleUnsubscribe(session *syncSession, msg dto.FeedAction) {
	teamID, err := uuid.Parse(msg.TeamID)
	if err != nil {
		session.fail(dto.ActionUnsubscribe, "invalid team_id")
		return
	}

	h.hub.Unsubscribe(session.client.ID, teamID)
	session.reply(dto.Event{Type: dto.EventUnsubscribed, TeamID: &teamID})
}
