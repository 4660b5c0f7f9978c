package handlers

import (
	"errors"
	"log/slog"

	"github.com/dimitrije/teamboard/internal/logger"
	"github.com/dimitrije/teamboard/internal/services"
	"github.com/m1z23r/drift/pkg/drift"
)

func conflict(c *drift.Context, msg string) {
	_ = c.JSON(409, map[string]string{"error": msg})
}

// respondError maps service errors onto HTTP responses. Anything unknown is
// logged and reported as fallback with a 500.
func respondError(c *drift.Context, log *slog.Logger, err error, fallback string) {
	switch {
	case errors.Is(err, services.ErrInvalidName),
		errors.Is(err, services.ErrDisplayNameRequired),
		errors.Is(err, services.ErrEmptyTitle),
		errors.Is(err, services.ErrInvalidStatus),
		errors.Is(err, services.ErrInvalidEmail),
		errors.Is(err, services.ErrWeakPassword),
		errors.Is(err, services.ErrAssigneeNotMember),
		errors.Is(err, services.ErrCannotRemoveOwner):
		c.BadRequest(err.Error())
	case errors.Is(err, services.ErrInvalidCredentials):
		c.Unauthorized(err.Error())
	case errors.Is(err, services.ErrNotOwner),
		errors.Is(err, services.ErrNotAssignee),
		errors.Is(err, services.ErrTaskForbidden):
		c.Forbidden(err.Error())
	case errors.Is(err, services.ErrInvalidCode),
		errors.Is(err, services.ErrTeamNotFound),
		errors.Is(err, services.ErrTaskNotFound),
		errors.Is(err, services.ErrNotMember),
		errors.Is(err, services.ErrUserNotFound):
		c.NotFound(err.Error())
	case errors.Is(err, services.ErrAlreadyMember),
		errors.Is(err, services.ErrEmailTaken):
		conflict(c, err.Error())
	default:
		if log != nil {
			log.Error(fallback, logger.Err(err), slog.String("path", c.Request.URL.Path))
		}
		c.InternalServerError(fallback)
	}
}
