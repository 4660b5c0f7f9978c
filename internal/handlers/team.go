package handlers

import (
	"errors"
	"log/slog"

	"github.com/dimitrije/teamboard/internal/middleware"
	"github.com/dimitrije/teamboard/internal/models"
	"github.com/dimitrije/teamboard/internal/services"
	"github.com/dimitrije/teamboard/internal/teamcode"
	"github.com/dimitrije/teamboard/pkg/dto"
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
)

type TeamHandler struct {
	teamService TeamServiceInterface
	log         *slog.Logger
}

func NewTeamHandler(teamService TeamServiceInterface, log *slog.Logger) *TeamHandler {
	return &TeamHandler{
		teamService: teamService,
		log:         log,
	}
}

func toTeamResponse(team *models.Team, role string) dto.TeamResponse {
	return dto.TeamResponse{
		ID:        team.ID,
		Name:      team.Name,
		Code:      team.Code,
		CreatedBy: team.CreatedBy,
		Role:      role,
		CreatedAt: team.CreatedAt,
	}
}

// teamIDParam parses :id and confirms the caller belongs to the team.
// Non-members get the same 404 as a missing team.
func (h *TeamHandler) teamIDParam(c *drift.Context, userID uuid.UUID) (uuid.UUID, *models.TeamMember, bool) {
	teamID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.BadRequest("invalid team id")
		return uuid.Nil, nil, false
	}

	member, err := h.teamService.GetMembership(c.Request.Context(), teamID, userID)
	if err != nil {
		if errors.Is(err, services.ErrNotMember) {
			c.NotFound("team not found")
		} else {
			respondError(c, h.log, err, "failed to check membership")
		}
		return uuid.Nil, nil, false
	}
	return teamID, member, true
}

func (h *TeamHandler) Create(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	var req dto.CreateTeamRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}

	team, err := h.teamService.Create(c.Request.Context(), req.Name, userID)
	if err != nil {
		respondError(c, h.log, err, "failed to create team")
		return
	}

	_ = c.JSON(201, toTeamResponse(team, models.RoleOwner))
}

func (h *TeamHandler) Join(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	var req dto.JoinTeamRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}

	if len(teamcode.Normalize(req.Code)) < teamcode.MinJoinLength {
		c.BadRequest(services.ErrInvalidCode.Error())
		return
	}

	team, err := h.teamService.Join(c.Request.Context(), req.Code, userID, req.DisplayName)
	if err != nil {
		respondError(c, h.log, err, "failed to join team")
		return
	}

	_ = c.JSON(201, toTeamResponse(team, models.RoleMember))
}

// Lookup resolves a share code so the client can show what it is joining.
func (h *TeamHandler) Lookup(c *drift.Context) {
	if middleware.GetUserID(c) == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	team, err := h.teamService.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		if errors.Is(err, services.ErrTeamNotFound) {
			c.NotFound(services.ErrInvalidCode.Error())
			return
		}
		respondError(c, h.log, err, "failed to look up team")
		return
	}

	_ = c.JSON(200, dto.TeamResponse{ID: team.ID, Name: team.Name, Code: team.Code})
}

func (h *TeamHandler) List(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	teams, err := h.teamService.ListForUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err, "failed to get teams")
		return
	}

	response := make([]dto.TeamResponse, len(teams))
	for i := range teams {
		response[i] = toTeamResponse(&teams[i].Team, teams[i].Role)
	}

	_ = c.JSON(200, response)
}

func (h *TeamHandler) Get(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	teamID, member, ok := h.teamIDParam(c, userID)
	if !ok {
		return
	}

	team, err := h.teamService.GetByID(c.Request.Context(), teamID)
	if err != nil {
		respondError(c, h.log, err, "failed to get team")
		return
	}

	_ = c.JSON(200, toTeamResponse(team, member.Role))
}

func (h *TeamHandler) Update(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	teamID, _, ok := h.teamIDParam(c, userID)
	if !ok {
		return
	}

	var req dto.UpdateTeamRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}

	team, err := h.teamService.Rename(c.Request.Context(), teamID, userID, req.Name)
	if err != nil {
		respondError(c, h.log, err, "failed to update team")
		return
	}

	_ = c.JSON(200, toTeamResponse(team, models.RoleOwner))
}

func (h *TeamHandler) Delete(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	teamID, _, ok := h.teamIDParam(c, userID)
	if !ok {
		return
	}

	if err := h.teamService.Delete(c.Request.Context(), teamID, userID); err != nil {
		respondError(c, h.log, err, "failed to delete team")
		return
	}

	_ = c.JSON(200, map[string]string{"message": "team deleted"})
}

func (h *TeamHandler) GetMembers(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	teamID, _, ok := h.teamIDParam(c, userID)
	if !ok {
		return
	}

	members, err := h.teamService.GetMembers(c.Request.Context(), teamID)
	if err != nil {
		respondError(c, h.log, err, "failed to get members")
		return
	}

	response := make([]dto.TeamMemberResponse, len(members))
	for i, m := range members {
		name := ""
		if m.DisplayName != nil {
			name = *m.DisplayName
		}
		response[i] = dto.TeamMemberResponse{
			ID:          m.ID,
			UserID:      m.UserID,
			Role:        m.Role,
			DisplayName: name,
			Email:       m.Email,
			JoinedAt:    m.JoinedAt,
		}
	}

	_ = c.JSON(200, response)
}

func (h *TeamHandler) RemoveMember(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	teamID, _, ok := h.teamIDParam(c, userID)
	if !ok {
		return
	}

	memberID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		c.BadRequest("invalid user id")
		return
	}

	if err := h.teamService.RemoveMember(c.Request.Context(), teamID, userID, memberID); err != nil {
		respondError(c, h.log, err, "failed to remove member")
		return
	}

	_ = c.JSON(200, map[string]string{"message": "member removed"})
}

func (h *TeamHandler) Leave(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	teamID, _, ok := h.teamIDParam(c, userID)
	if !ok {
		return
	}

	if err := h.teamService.Leave(c.Request.Context(), teamID, userID); err != nil {
		respondError(c, h.log, err, "failed to leave team")
		return
	}

	_ = c.JSON(200, map[string]string{"message": "left team"})
}
