package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "PENDING"
	ReservationConfirmed ReservationStatus = "CONFIRMED"
	ReservationCompleted ReservationStatus = "COMPLETED"
	ReservationCancelled ReservationStatus = "CANCELLED"
)

var ErrInvalidTransition = errors.New("reservation: invalid state transition")

// Reservation tracks a pending sale. A PENDING reservation older than the
// configured timeout is reclaimed by the reaper, which restores its stock.
type Reservation struct {
	ID           string            `json:"id"`
	MemberID     string            `json:"member_id"`
	EventID      string            `json:"event_id"`
	TicketID     string            `json:"ticket_id"`
	TicketTypeID string            `json:"ticket_type_id"`
	Quantity     int               `json:"quantity"`
	TotalAmount  decimal.Decimal   `json:"total_amount"`
	Status       ReservationStatus `json:"status"`
	PaymentID    string            `json:"payment_id,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	ConfirmedAt  *time.Time        `json:"confirmed_at,omitempty"`
	CancelledAt  *time.Time        `json:"cancelled_at,omitempty"`
	CancelReason string            `json:"cancel_reason,omitempty"`
}

func (r *Reservation) Confirm(now time.Time) error {
	if r.Status != ReservationPending {
		return ErrInvalidTransition
	}
	r.Status = ReservationConfirmed
	r.ConfirmedAt = &now
	return nil
}

// Cancel is valid from PENDING or CONFIRMED. Cancelling an already cancelled
// reservation is a no-op so the reaper can safely re-run on reclaimed items.
func (r *Reservation) Cancel(reason string, now time.Time) error {
	if r.Status == ReservationCancelled {
		return nil
	}
	if r.Status != ReservationPending && r.Status != ReservationConfirmed {
		return ErrInvalidTransition
	}
	r.Status = ReservationCancelled
	r.CancelledAt = &now
	r.CancelReason = reason
	return nil
}

func (r *Reservation) Complete(paymentID string) error {
	if r.Status != ReservationConfirmed {
		return ErrInvalidTransition
	}
	r.Status = ReservationCompleted
	r.PaymentID = paymentID
	return nil
}

// Notification is the best-effort message sent when a member is admitted or a
// reservation changes state. Delivery failures never roll anything back.
type Notification struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Link    string `json:"link,omitempty"`
}
