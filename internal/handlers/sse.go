package handlers

import (
	"log/slog"

	"github.com/dimitrije/teamboard/internal/middleware"
	"github.com/dimitrije/teamboard/internal/realtime"
	"github.com/dimitrije/teamboard/pkg/dto"
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
)

// SSEHandler streams a single team's change feed as server-sent events.
type SSEHandler struct {
	hub         HubInterface
	teamService TeamServiceInterface
	userService UserServiceInterface
	log         *slog.Logger
}

func NewSSEHandler(hub HubInterface, teamService TeamServiceInterface, userService UserServiceInterface, log *slog.Logger) *SSEHandler {
	return &SSEHandler{
		hub:         hub,
		teamService: teamService,
		userService: userService,
		log:         log,
	}
}

func (h *SSEHandler) Connect(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	teamID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.BadRequest("invalid team id")
		return
	}

	ctx := c.Request.Context()

	isMember, err := h.teamService.IsMember(ctx, teamID, userID)
	if err != nil || !isMember {
		c.NotFound("team not found")
		return
	}

	name := middleware.GetUserEmail(c)
	if user, err := h.userService.GetByID(ctx, userID); err == nil {
		name = user.DisplayName
	}

	sseCtx := c.SSE()

	client := realtime.NewClient(userID, name)
	h.hub.Register(client)
	defer h.hub.Unregister(client)
	h.hub.Subscribe(client.ID, teamID)

	if err := sseCtx.SendJSON(dto.Event{
		Type:     dto.EventConnected,
		TeamID:   &teamID,
		ClientID: client.ID,
	}, "system", ""); err != nil {
		return
	}

	for {
		select {
		case msg, ok := <-client.Send:
			if !ok {
				return
			}
			if err := sseCtx.Send(string(msg), "message", ""); err != nil {
				h.log.Debug("sse client gone", slog.String("client_id", client.ID))
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
