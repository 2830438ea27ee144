package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-gate/internal/status"
)

func TestHTTPErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"not found", status.ErrNotFound, http.StatusNotFound},
		{"not in queue", status.ErrNotInQueue, http.StatusNotFound},
		{"queue inactive", status.ErrQueueInactive, http.StatusConflict},
		{"insufficient stock", status.ErrInsufficientStock, http.StatusConflict},
		{"already admitted", status.ErrAlreadyAdmitted, http.StatusConflict},
		{"lock timeout", status.ErrLockTimeout, http.StatusServiceUnavailable},
		{"unmapped error", fmt.Errorf("connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Services wrap sentinels with context; the mapping must see
			// through the wrapping.
			wrapped := fmt.Errorf("event e-1: %w", tt.err)

			var httpErr *echo.HTTPError
			require.ErrorAs(t, httpError(wrapped), &httpErr)
			assert.Equal(t, tt.code, httpErr.Code)
		})
	}
}

func TestMemberID(t *testing.T) {
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Member-Id", "m-1")
	c := e.NewContext(req, httptest.NewRecorder())

	member, err := memberID(c)
	require.NoError(t, err)
	assert.Equal(t, "m-1", member)
}

func TestMemberIDMissingHeader(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	_, err := memberID(c)
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
}
