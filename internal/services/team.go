package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dimitrije/teamboard/internal/database"
	"github.com/dimitrije/teamboard/internal/metrics"
	"github.com/dimitrije/teamboard/internal/models"
	"github.com/dimitrije/teamboard/internal/teamcode"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// maxCodeAttempts bounds the pre-insert uniqueness check. After that the insert goes ahead and
// the UNIQUE constraint on teams.code catches what is left.
const maxCodeAttempts = 10

const teamColumns = `id, name, code, created_by, created_at, updated_at`

type TeamService struct {
	db       *database.DB
	generate func() string
	metrics  *metrics.Metrics
}

func NewTeamService(db *database.DB) *TeamService {
	return &TeamService{db: db, generate: teamcode.Generate}
}

// WithMetrics counts code regenerations on m.
func (s *TeamService) WithMetrics(m *metrics.Metrics) *TeamService {
	s.metrics = m
	return s
}

func scanTeam(row pgx.Row) (*models.Team, error) {
	var team models.Team
	err := row.Scan(&team.ID, &team.Name, &team.Code, &team.CreatedBy, &team.CreatedAt, &team.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTeamNotFound
		}
		return nil, err
	}
	return &team, nil
}

// Create inserts a team with a fresh code and makes the creator its owner in the same transaction.
func (s *TeamService) Create(ctx context.Context, name string, creatorID uuid.UUID) (*models.Team, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}

	code, err := s.availableCode(ctx)
	if err != nil {
		return nil, err
	}

	team, err := s.insertWithOwner(ctx, name, code, creatorID)
	if database.IsUniqueViolation(err) {
		team, err = s.insertWithOwner(ctx, name, s.generate(), creatorID)
	}
	if err != nil {
		return nil, err
	}
	return team, nil
}

func (s *TeamService) availableCode(ctx context.Context) (string, error) {
	var code string
	for range maxCodeAttempts {
		code = s.generate()

		var exists bool
		err := s.db.Pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM teams WHERE code = $1)`, code).Scan(&exists)
		if err != nil {
			return "", fmt.Errorf("failed to check team code: %w", err)
		}
		if !exists {
			return code, nil
		}
		s.metrics.RecordCodeRetry()
	}
	return code, nil
}

func (s *TeamService) insertWithOwner(ctx context.Context, name, code string, creatorID uuid.UUID) (*models.Team, error) {
	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	team, err := scanTeam(tx.QueryRow(ctx, `
		INSERT INTO teams (name, code, created_by)
		VALUES ($1, $2, $3)
		RETURNING `+teamColumns,
		name, code, creatorID))
	if err != nil {
		return nil, fmt.Errorf("failed to create team: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO team_members (team_id, user_id, role, display_name)
		VALUES ($1, $2, $3, (SELECT display_name FROM profiles WHERE id = $2))
	`, team.ID, creatorID, models.RoleOwner)
	if err != nil {
		return nil, fmt.Errorf("failed to add owner as member: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return team, nil
}

func (s *TeamService) GetByID(ctx context.Context, teamID uuid.UUID) (*models.Team, error) {
	return scanTeam(s.db.Pool.QueryRow(ctx, `
		SELECT `+teamColumns+`
		FROM teams WHERE id = $1
	`, teamID))
}

// GetByCode resolves a share code through the get_team_by_code function.
func (s *TeamService) GetByCode(ctx context.Context, code string) (*models.Team, error) {
	return scanTeam(s.db.Pool.QueryRow(ctx, `
		SELECT `+teamColumns+`
		FROM get_team_by_code($1)
	`, teamcode.Normalize(code)))
}

// Join adds userID to the team behind code as a plain member.
func (s *TeamService) Join(ctx context.Context, code string, userID uuid.UUID, displayName string) (*models.Team, error) {
	code = teamcode.Normalize(code)
	if len(code) < teamcode.MinJoinLength {
		return nil, ErrInvalidCode
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, ErrDisplayNameRequired
	}

	team, err := s.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrTeamNotFound) {
			return nil, ErrInvalidCode
		}
		return nil, fmt.Errorf("failed to look up team: %w", err)
	}

	_, err = s.db.Pool.Exec(ctx, `
		INSERT INTO team_members (team_id, user_id, role, display_name)
		VALUES ($1, $2, $3, $4)
	`, team.ID, userID, models.RoleMember, displayName)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrAlreadyMember
		}
		return nil, fmt.Errorf("failed to join team: %w", err)
	}

	return team, nil
}

// ListForUser returns the user's teams newest first. Memberships and teams are read separately.
func (s *TeamService) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.UserTeam, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT team_id, role FROM team_members WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, err
	}

	roles := make(map[uuid.UUID]string)
	var ids []string
	for rows.Next() {
		var teamID uuid.UUID
		var role string
		if err := rows.Scan(&teamID, &role); err != nil {
			rows.Close()
			return nil, err
		}
		roles[teamID] = role
		ids = append(ids, teamID.String())
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	teams := []models.UserTeam{}
	if len(ids) == 0 {
		return teams, nil
	}

	rows, err = s.db.Pool.Query(ctx, `
		SELECT `+teamColumns+`
		FROM teams
		WHERE id = ANY($1::uuid[])
		ORDER BY created_at DESC
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		team, err := scanTeam(rows)
		if err != nil {
			return nil, err
		}
		teams = append(teams, models.UserTeam{Team: *team, Role: roles[team.ID]})
	}
	return teams, rows.Err()
}

func (s *TeamService) GetMembership(ctx context.Context, teamID, userID uuid.UUID) (*models.TeamMember, error) {
	var member models.TeamMember
	err := s.db.Pool.QueryRow(ctx, `
		SELECT id, team_id, user_id, role, display_name, joined_at
		FROM team_members WHERE team_id = $1 AND user_id = $2
	`, teamID, userID).Scan(
		&member.ID, &member.TeamID, &member.UserID, &member.Role, &member.DisplayName, &member.JoinedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotMember
		}
		return nil, err
	}
	return &member, nil
}

func (s *TeamService) IsMember(ctx context.Context, teamID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.Pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM team_members WHERE team_id = $1 AND user_id = $2)
	`, teamID, userID).Scan(&exists)
	return exists, err
}

func (s *TeamService) GetMembers(ctx context.Context, teamID uuid.UUID) ([]models.TeamMember, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT tm.id, tm.team_id, tm.user_id, tm.role,
		       COALESCE(tm.display_name, p.display_name), p.email, tm.joined_at
		FROM team_members tm
		JOIN profiles p ON tm.user_id = p.id
		WHERE tm.team_id = $1
		ORDER BY tm.joined_at
	`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := []models.TeamMember{}
	for rows.Next() {
		var member models.TeamMember
		if err := rows.Scan(
			&member.ID, &member.TeamID, &member.UserID, &member.Role,
			&member.DisplayName, &member.Email, &member.JoinedAt,
		); err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

func (s *TeamService) requireOwner(ctx context.Context, teamID, userID uuid.UUID) error {
	member, err := s.GetMembership(ctx, teamID, userID)
	if err != nil {
		return err
	}
	if !member.IsOwner() {
		return ErrNotOwner
	}
	return nil
}

// Rename changes the team name. The code never changes.
func (s *TeamService) Rename(ctx context.Context, teamID, userID uuid.UUID, name string) (*models.Team, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	if err := s.requireOwner(ctx, teamID, userID); err != nil {
		return nil, err
	}
	return scanTeam(s.db.Pool.QueryRow(ctx, `
		UPDATE teams SET name = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING `+teamColumns,
		name, teamID))
}

func (s *TeamService) Delete(ctx context.Context, teamID, userID uuid.UUID) error {
	if err := s.requireOwner(ctx, teamID, userID); err != nil {
		return err
	}
	tag, err := s.db.Pool.Exec(ctx, `DELETE FROM teams WHERE id = $1`, teamID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTeamNotFound
	}
	return nil
}

// Leave removes the caller's own membership. Owners cannot leave their team.
func (s *TeamService) Leave(ctx context.Context, teamID, userID uuid.UUID) error {
	member, err := s.GetMembership(ctx, teamID, userID)
	if err != nil {
		return err
	}
	if member.IsOwner() {
		return ErrCannotRemoveOwner
	}
	_, err = s.db.Pool.Exec(ctx, `DELETE FROM team_members WHERE id = $1`, member.ID)
	return err
}

// RemoveMember lets the owner remove someone else from the team.
func (s *TeamService) RemoveMember(ctx context.Context, teamID, ownerID, userID uuid.UUID) error {
	if err := s.requireOwner(ctx, teamID, ownerID); err != nil {
		return err
	}
	if ownerID == userID {
		return ErrCannotRemoveOwner
	}
	tag, err := s.db.Pool.Exec(ctx, `
		DELETE FROM team_members WHERE team_id = $1 AND user_id = $2 AND role != $3
	`, teamID, userID, models.RoleOwner)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotMember
	}
	return nil
}
