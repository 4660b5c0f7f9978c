package handlers

import (
	"log/slog"

	"github.com/dimitrije/teamboard/internal/middleware"
	"github.com/dimitrije/teamboard/internal/models"
	"github.com/dimitrije/teamboard/internal/services"
	"github.com/dimitrije/teamboard/pkg/dto"
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
)

type TaskHandler struct {
	taskService TaskServiceInterface
	teamService TeamServiceInterface
	log         *slog.Logger
}

func NewTaskHandler(taskService TaskServiceInterface, teamService TeamServiceInterface, log *slog.Logger) *TaskHandler {
	return &TaskHandler{
		taskService: taskService,
		teamService: teamService,
		log:         log,
	}
}

func toTaskDTO(task *models.Task) dto.Task {
	return dto.Task{
		ID:          task.ID,
		TeamID:      task.TeamID,
		Title:       task.Title,
		Description: task.Description,
		Status:      string(task.Status),
		CreatedBy:   task.CreatedBy,
		AssignedTo:  task.AssignedTo,
		CreatedAt:   task.CreatedAt,
		UpdatedAt:   task.UpdatedAt,
	}
}

func (h *TaskHandler) requireMember(c *drift.Context, teamID, userID uuid.UUID) bool {
	ok, err := h.teamService.IsMember(c.Request.Context(), teamID, userID)
	if err != nil {
		respondError(c, h.log, err, "failed to check membership")
		return false
	}
	if !ok {
		c.NotFound("team not found")
		return false
	}
	return true
}

// loadTask resolves :taskId to a task of a team the caller belongs to.
func (h *TaskHandler) loadTask(c *drift.Context, userID uuid.UUID) (uuid.UUID, bool) {
	taskID, err := uuid.Parse(c.Param("taskId"))
	if err != nil {
		c.BadRequest("invalid task id")
		return uuid.Nil, false
	}

	task, err := h.taskService.GetByID(c.Request.Context(), taskID)
	if err != nil {
		respondError(c, h.log, err, "failed to get task")
		return uuid.Nil, false
	}

	ok, err := h.teamService.IsMember(c.Request.Context(), task.TeamID, userID)
	if err != nil {
		respondError(c, h.log, err, "failed to check membership")
		return uuid.Nil, false
	}
	if !ok {
		c.NotFound(services.ErrTaskNotFound.Error())
		return uuid.Nil, false
	}
	return taskID, true
}

func (h *TaskHandler) List(c *drift.Context) {
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

	if !h.requireMember(c, teamID, userID) {
		return
	}

	tasks, err := h.taskService.List(c.Request.Context(), teamID)
	if err != nil {
		respondError(c, h.log, err, "failed to list tasks")
		return
	}

	response := make([]dto.Task, len(tasks))
	for i := range tasks {
		response[i] = toTaskDTO(&tasks[i])
	}

	_ = c.JSON(200, response)
}

func (h *TaskHandler) Create(c *drift.Context) {
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

	if !h.requireMember(c, teamID, userID) {
		return
	}

	var req dto.CreateTaskRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}

	task, err := h.taskService.Create(c.Request.Context(), teamID, userID, req.Title, req.Description, req.AssignedTo)
	if err != nil {
		respondError(c, h.log, err, "failed to create task")
		return
	}

	_ = c.JSON(201, toTaskDTO(task))
}

func (h *TaskHandler) Update(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	taskID, ok := h.loadTask(c, userID)
	if !ok {
		return
	}

	var req dto.UpdateTaskRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}

	task, err := h.taskService.Update(c.Request.Context(), taskID, userID, services.TaskPatch{
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		respondError(c, h.log, err, "failed to update task")
		return
	}

	_ = c.JSON(200, toTaskDTO(task))
}

func (h *TaskHandler) UpdateStatus(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	taskID, ok := h.loadTask(c, userID)
	if !ok {
		return
	}

	var req dto.UpdateTaskStatusRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}

	task, err := h.taskService.UpdateStatus(c.Request.Context(), taskID, userID, models.TaskStatus(req.Status))
	if err != nil {
		respondError(c, h.log, err, "failed to update task status")
		return
	}

	_ = c.JSON(200, toTaskDTO(task))
}

func (h *TaskHandler) Delete(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	taskID, ok := h.loadTask(c, userID)
	if !ok {
		return
	}

	task, err := h.taskService.Delete(c.Request.Context(), taskID, userID)
	if err != nil {
		respondError(c, h.log, err, "failed to delete task")
		return
	}

	_ = c.JSON(200, toTaskDTO(task))
}
