package services

import "errors"

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrEmailTaken          = errors.New("email already registered")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrInvalidEmail        = errors.New("invalid email")
	ErrWeakPassword        = errors.New("password must be at least 6 characters")
	ErrDisplayNameRequired = errors.New("display name is required")

	ErrInvalidName       = errors.New("team name is required")
	ErrTeamNotFound      = errors.New("team not found")
	ErrInvalidCode       = errors.New("invalid team code")
	ErrAlreadyMember     = errors.New("already a member of this team")
	ErrNotMember         = errors.New("not a member of this team")
	ErrNotOwner          = errors.New("only the team owner can do this")
	ErrCannotRemoveOwner = errors.New("the team owner cannot leave or be removed")

	ErrEmptyTitle        = errors.New("task title is required")
	ErrInvalidStatus     = errors.New("invalid task status")
	ErrTaskNotFound      = errors.New("task not found")
	ErrNotAssignee       = errors.New("only the assignee can change a task's status")
	ErrTaskForbidden     = errors.New("not allowed to modify this task")
	ErrAssigneeNotMember = errors.New("assignee is not a member of this team")
)
