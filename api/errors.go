package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"taskboard/domain"
)

var errForbidden = errors.New("forbidden")

func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrDuplicateEmail):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidRole),
		errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, domain.ErrInvalidPriority),
		errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// domainError writes err with its mapped status. Unexpected errors are logged
// and hidden from the client.
func domainError(c echo.Context, stage string, err error) error {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		return internalError(c, stage, err)
	}
	metricsFrom(c).SetErrorStage(stage)
	return c.JSON(status, errorResponse{Error: err.Error()})
}

func internalError(c echo.Context, stage string, err error) error {
	metricsFrom(c).SetErrorStage(stage)
	c.Logger().Error(err)
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

func forbidden(c echo.Context) error {
	metricsFrom(c).SetErrorStage("access")
	return c.JSON(http.StatusForbidden, errorResponse{Error: errForbidden.Error()})
}

func notFound(c echo.Context, what string) error {
	metricsFrom(c).SetErrorStage("not_found")
	return c.JSON(http.StatusNotFound, errorResponse{Error: what + " not found"})
}

func badRequest(c echo.Context, msg string) error {
	metricsFrom(c).SetErrorStage("invalid_body")
	return c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
}
