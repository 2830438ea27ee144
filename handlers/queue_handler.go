package handlers

import (
	"net/http"

	"github.com/labstack/echo/v5"

	"ticket-gate/services"
)

type QueueHandler struct {
	queueService *services.QueueService
}

func NewQueueHandler(queueService *services.QueueService) *QueueHandler {
	return &QueueHandler{queueService: queueService}
}

func (h *QueueHandler) EnterQueue(c echo.Context) error {
	member, err := memberID(c)
	if err != nil {
		return err
	}

	var req struct {
		EventID string `json:"event_id"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}
	if req.EventID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "event_id is required")
	}

	position, err := h.queueService.Enqueue(c.Request().Context(), req.EventID, member)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, position)
}

func (h *QueueHandler) GetPosition(c echo.Context) error {
	member, err := memberID(c)
	if err != nil {
		return err
	}

	eventID := c.QueryParam("event_id")
	if eventID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "event_id is required")
	}

	position, err := h.queueService.PositionOf(c.Request().Context(), eventID, member)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, position)
}

func (h *QueueHandler) GetStatus(c echo.Context) error {
	eventID := c.PathParam("eventId")

	info, err := h.queueService.QueueStatus(c.Request().Context(), eventID)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, info)
}

func (h *QueueHandler) LeaveQueue(c echo.Context) error {
	member, err := memberID(c)
	if err != nil {
		return err
	}

	var req struct {
		EventID string `json:"event_id"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}

	if err := h.queueService.Leave(c.Request().Context(), req.EventID, member); err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "left queue"})
}
