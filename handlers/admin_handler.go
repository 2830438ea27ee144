package handlers

import (
	"net/http"

	"github.com/labstack/echo/v5"

	"ticket-gate/models"
	"ticket-gate/services"
)

type AdminHandler struct {
	queueService *services.QueueService
	stockService *services.StockService
	commands     *services.CommandService
}

func NewAdminHandler(queueService *services.QueueService, stockService *services.StockService, commands *services.CommandService) *AdminHandler {
	return &AdminHandler{
		queueService: queueService,
		stockService: stockService,
		commands:     commands,
	}
}

func (h *AdminHandler) ToggleQueue(c echo.Context) error {
	var req struct {
		Active bool `json:"active"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}

	if err := h.queueService.ToggleQueue(c.Request().Context(), c.PathParam("eventId"), req.Active); err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, map[string]any{"queue_active": req.Active})
}

// AdmitNext goes through the command worker so manual triggers and scheduled
// admissions share one serialized path.
func (h *AdminHandler) AdmitNext(c echo.Context) error {
	var req struct {
		Count int `json:"count"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}

	err := h.commands.Submit(c.Request().Context(), models.Command{
		Type:    models.CommandAdmitNext,
		EventID: c.PathParam("eventId"),
		Count:   req.Count,
	})
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusAccepted, map[string]string{"message": "admission scheduled"})
}

func (h *AdminHandler) InitializeStock(c echo.Context) error {
	if err := h.stockService.Initialize(c.Request().Context(), c.PathParam("ticketTypeId")); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "stock initialized"})
}

func (h *AdminHandler) ReconcileStock(c echo.Context) error {
	if err := h.stockService.Reconcile(c.Request().Context(), c.PathParam("ticketTypeId")); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "stock reconciled"})
}

func (h *AdminHandler) GetStock(c echo.Context) error {
	available, err := h.stockService.CurrentAvailable(c.Request().Context(), c.PathParam("ticketTypeId"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"available": available})
}
