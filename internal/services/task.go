package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dimitrije/teamboard/internal/database"
	"github.com/dimitrije/teamboard/internal/logger"
	"github.com/dimitrije/teamboard/internal/models"
	"github.com/dimitrije/teamboard/internal/realtime"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const taskColumns = `id, team_id, title, description, status, created_by, assigned_to, created_at, updated_at`

// TaskService owns the task access rules. Every rule is part of the SQL statement that
// performs the change, so a client can never bypass it.
type TaskService struct {
	db     *database.DB
	broker realtime.Broker
	logger *slog.Logger
}

func NewTaskService(db *database.DB, broker realtime.Broker, log *slog.Logger) *TaskService {
	return &TaskService{db: db, broker: broker, logger: log}
}

type TaskPatch struct {
	Title       *string
	Description *string
}

func scanTask(row pgx.Row) (*models.Task, error) {
	var task models.Task
	err := row.Scan(
		&task.ID, &task.TeamID, &task.Title, &task.Description, &task.Status,
		&task.CreatedBy, &task.AssignedTo, &task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return &task, nil
}

// publish never fails the write that triggered it. Subscribers reconcile on their next load.
func (s *TaskService) publish(ctx context.Context, op realtime.Op, task *models.Task) {
	if s.broker == nil {
		return
	}
	if err := s.broker.Publish(ctx, task.TeamID, realtime.Change{Op: op, Row: *task}); err != nil {
		s.logger.Error("failed to publish task change",
			slog.String("op", string(op)),
			slog.String("task_id", task.ID.String()),
			logger.Err(err))
	}
}

func (s *TaskService) List(ctx context.Context, teamID uuid.UUID) ([]models.Task, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE team_id = $1
		ORDER BY created_at DESC
	`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

func (s *TaskService) GetByID(ctx context.Context, taskID uuid.UUID) (*models.Task, error) {
	return scanTask(s.db.Pool.QueryRow(ctx, `
		SELECT `+taskColumns+`
		FROM tasks WHERE id = $1
	`, taskID))
}

// Create adds a todo task. A nil assignee means the creator.
func (s *TaskService) Create(ctx context.Context, teamID, creatorID uuid.UUID, title string, description *string, assigneeID *uuid.UUID) (*models.Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	if assigneeID == nil {
		assigneeID = &creatorID
	}

	task, err := scanTask(s.db.Pool.QueryRow(ctx, `
		INSERT INTO tasks (team_id, title, description, status, created_by, assigned_to)
		SELECT $1, $2, $3, $4, $5, $6
		WHERE EXISTS(SELECT 1 FROM team_members WHERE team_id = $1 AND user_id = $6)
		RETURNING `+taskColumns,
		teamID, title, description, models.StatusTodo, creatorID, *assigneeID))
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			return nil, ErrAssigneeNotMember
		}
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	s.publish(ctx, realtime.OpInsert, task)
	return task, nil
}

// UpdateStatus moves a task between columns. Only the assignee may do this.
func (s *TaskService) UpdateStatus(ctx context.Context, taskID, userID uuid.UUID, status models.TaskStatus) (*models.Task, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	task, err := scanTask(s.db.Pool.QueryRow(ctx, `
		UPDATE tasks SET status = $1, updated_at = NOW()
		WHERE id = $2 AND assigned_to = $3
		RETURNING `+taskColumns,
		status, taskID, userID))
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			return nil, s.explainMiss(ctx, taskID, ErrNotAssignee)
		}
		return nil, fmt.Errorf("failed to update task status: %w", err)
	}

	s.publish(ctx, realtime.OpUpdate, task)
	return task, nil
}

// Update edits title and description. Creator or assignee only.
func (s *TaskService) Update(ctx context.Context, taskID, userID uuid.UUID, patch TaskPatch) (*models.Task, error) {
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, ErrEmptyTitle
		}
		patch.Title = &title
	}

	task, err := scanTask(s.db.Pool.QueryRow(ctx, `
		UPDATE tasks
		SET title = COALESCE($1, title), description = COALESCE($2, description), updated_at = NOW()
		WHERE id = $3 AND (created_by = $4 OR assigned_to = $4)
		RETURNING `+taskColumns,
		patch.Title, patch.Description, taskID, userID))
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			return nil, s.explainMiss(ctx, taskID, ErrTaskForbidden)
		}
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	s.publish(ctx, realtime.OpUpdate, task)
	return task, nil
}

// Delete removes a task for its creator, its assignee or the team owner and returns the removed row.
func (s *TaskService) Delete(ctx context.Context, taskID, userID uuid.UUID) (*models.Task, error) {
	task, err := scanTask(s.db.Pool.QueryRow(ctx, `
		DELETE FROM tasks t
		WHERE t.id = $1 AND (
			t.created_by = $2 OR t.assigned_to = $2 OR EXISTS(
				SELECT 1 FROM team_members tm
				WHERE tm.team_id = t.team_id AND tm.user_id = $2 AND tm.role = $3
			)
		)
		RETURNING `+taskColumns,
		taskID, userID, models.RoleOwner))
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			return nil, s.explainMiss(ctx, taskID, ErrTaskForbidden)
		}
		return nil, fmt.Errorf("failed to delete task: %w", err)
	}

	s.publish(ctx, realtime.OpDelete, task)
	return task, nil
}

// explainMiss tells a missing task apart from a rule that filtered the row out.
func (s *TaskService) explainMiss(ctx context.Context, taskID uuid.UUID, forbidden error) error {
	var exists bool
	err := s.db.Pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tasks WHERE id = $1)`, taskID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check task: %w", err)
	}
	if exists {
		return forbidden
	}
	return ErrTaskNotFound
}
