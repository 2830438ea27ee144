package handlers

import (
	"net/http"

	"github.com/labstack/echo/v5"

	"ticket-gate/models"
	"ticket-gate/services"
	"ticket-gate/store"
)

type ReservationHandler struct {
	commands     *services.CommandService
	reservations store.ReservationStore
}

func NewReservationHandler(commands *services.CommandService, reservations store.ReservationStore) *ReservationHandler {
	return &ReservationHandler{commands: commands, reservations: reservations}
}

// CreateReservation runs the reservation synchronously so the caller gets the
// seat and reservation id in the response instead of polling for them.
func (h *ReservationHandler) CreateReservation(c echo.Context) error {
	member, err := memberID(c)
	if err != nil {
		return err
	}

	var req struct {
		EventID      string `json:"event_id"`
		TicketTypeID string `json:"ticket_type_id"`
		Quantity     int    `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}
	if req.EventID == "" || req.TicketTypeID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "event_id and ticket_type_id are required")
	}

	reservation, err := h.commands.Reserve(c.Request().Context(), models.Command{
		Type:         models.CommandReserve,
		EventID:      req.EventID,
		TicketTypeID: req.TicketTypeID,
		MemberID:     member,
		Quantity:     req.Quantity,
	})
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusCreated, reservation)
}

func (h *ReservationHandler) GetReservation(c echo.Context) error {
	reservation, err := h.reservations.GetReservation(c.Request().Context(), c.PathParam("reservationId"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, reservation)
}

func (h *ReservationHandler) ConfirmReservation(c echo.Context) error {
	var req struct {
		PaymentID string `json:"payment_id"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}

	if err := h.commands.ConfirmReservation(c.Request().Context(), c.PathParam("reservationId"), req.PaymentID); err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "reservation confirmed"})
}

func (h *ReservationHandler) CancelReservation(c echo.Context) error {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}
	if req.Reason == "" {
		req.Reason = "cancelled by member"
	}

	if err := h.commands.CancelReservation(c.Request().Context(), c.PathParam("reservationId"), req.Reason); err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "reservation cancelled"})
}
