// Package store defines the durable persistence collaborators consumed by the
// waiting room and stock ledger. The shared Redis state is the fast path;
// these stores are the ground truth the cache and the reaper reconcile
// against. Implementations must return status.ErrNotFound for unknown keys.
package store

import (
	"context"
	"time"

	"ticket-gate/models"
)

type EventStore interface {
	GetEvent(ctx context.Context, eventID string) (*models.Event, error)
	SetQueueActive(ctx context.Context, eventID string, active bool) error
	ListQueueActive(ctx context.Context) ([]models.Event, error)
}

type QueueEntryStore interface {
	CreateWaiting(ctx context.Context, entry *models.QueueEntry) error
	GetEntry(ctx context.Context, eventID, memberID string) (*models.QueueEntry, error)
	MarkNotified(ctx context.Context, eventID, memberID string, notifiedAt, expiresAt time.Time) error
	MarkEntered(ctx context.Context, eventID, memberID string, enteredAt time.Time) error
	MarkExpired(ctx context.Context, eventID, memberID string) error
	// FindExpiredNotified returns NOTIFIED entries whose deadline passed
	// before cutoff, oldest first, capped at limit.
	FindExpiredNotified(ctx context.Context, cutoff time.Time, limit int) ([]models.QueueEntry, error)
}

type TicketStore interface {
	GetTicketType(ctx context.Context, ticketTypeID string) (*models.TicketType, error)
	// DecreaseAvailable durably subtracts count and returns the new available
	// quantity. Fails with status.ErrInsufficientStock when count units are
	// not left; the row is untouched in that case.
	DecreaseAvailable(ctx context.Context, ticketTypeID string, count int) (int, error)
	// IncreaseAvailable durably adds count, clamped at the total quantity,
	// and returns the new available quantity.
	IncreaseAvailable(ctx context.Context, ticketTypeID string, count int) (int, error)
	CreateTicket(ctx context.Context, ticket *models.Ticket) error
	CancelTicket(ctx context.Context, ticketID string) error
}

type ReservationStore interface {
	Create(ctx context.Context, reservation *models.Reservation) error
	GetReservation(ctx context.Context, reservationID string) (*models.Reservation, error)
	Confirm(ctx context.Context, reservationID string, at time.Time) error
	// Cancel reports whether this call performed the transition. Cancelling
	// an already cancelled reservation is a no-op returning false, so
	// concurrent reaper runs can tell who won and only the winner releases
	// the reservation's stock.
	Cancel(ctx context.Context, reservationID, reason string, at time.Time) (bool, error)
	FindExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]models.Reservation, error)
}
