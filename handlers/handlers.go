package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v5"

	"ticket-gate/internal/status"
)

// httpError maps domain sentinels onto transport codes in one place so every
// handler reports the same way.
func httpError(err error) error {
	switch {
	case errors.Is(err, status.ErrNotFound), errors.Is(err, status.ErrNotInQueue):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, status.ErrQueueInactive),
		errors.Is(err, status.ErrInsufficientStock),
		errors.Is(err, status.ErrAlreadyAdmitted):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, status.ErrLockTimeout):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// memberID resolves the calling member. Authentication happens upstream; the
// gateway forwards the verified identity in this header.
func memberID(c echo.Context) (string, error) {
	id := c.Request().Header.Get("X-Member-Id")
	if id == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing member identity")
	}
	return id, nil
}
