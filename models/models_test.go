package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueEntry_Lifecycle(t *testing.T) {
	now := time.Now()
	entry := QueueEntry{
		EventID:  "event-1",
		MemberID: "member-1",
		Status:   EntryWaiting,
		JoinedAt: now,
	}

	entry.Notify(now, 30*time.Minute)
	assert.Equal(t, EntryNotified, entry.Status)
	require.NotNil(t, entry.NotifiedAt)
	require.NotNil(t, entry.ExpiresAt)
	assert.Equal(t, now.Add(30*time.Minute), *entry.ExpiresAt)

	entry.Enter(now.Add(time.Minute))
	assert.Equal(t, EntryEntered, entry.Status)
	require.NotNil(t, entry.EnteredAt)
}

func TestQueueEntry_IsExpired(t *testing.T) {
	now := time.Now()
	entry := QueueEntry{Status: EntryWaiting}

	assert.False(t, entry.IsExpired(now), "no deadline means never expired")

	entry.Notify(now, 30*time.Minute)
	assert.False(t, entry.IsExpired(now.Add(29*time.Minute)))
	assert.True(t, entry.IsExpired(now.Add(31*time.Minute)))
}

func TestQueueEntry_Expire(t *testing.T) {
	entry := QueueEntry{Status: EntryNotified}
	entry.Expire()
	assert.Equal(t, EntryExpired, entry.Status)
}

func TestTicketType_DecreaseAvailable(t *testing.T) {
	tt := TicketType{Quantity: 100, AvailableQuantity: 10}

	assert.True(t, tt.DecreaseAvailable(4))
	assert.Equal(t, 6, tt.AvailableQuantity)

	assert.False(t, tt.DecreaseAvailable(7), "over-draw must be rejected")
	assert.Equal(t, 6, tt.AvailableQuantity, "failed draw must not mutate")

	assert.True(t, tt.DecreaseAvailable(6))
	assert.Equal(t, 0, tt.AvailableQuantity)
	assert.False(t, tt.DecreaseAvailable(1))
}

func TestTicketType_IncreaseAvailableClamped(t *testing.T) {
	tt := TicketType{Quantity: 100, AvailableQuantity: 95}

	tt.IncreaseAvailable(3)
	assert.Equal(t, 98, tt.AvailableQuantity)

	tt.IncreaseAvailable(50)
	assert.Equal(t, 100, tt.AvailableQuantity, "restore must clamp at total capacity")
}

func TestTicket_Lifecycle(t *testing.T) {
	now := time.Now()
	ticket := Ticket{
		ID:     "ticket-1",
		Status: TicketAvailable,
		Price:  decimal.NewFromInt(50),
	}

	assert.True(t, ticket.Reserve("member-1", now))
	assert.Equal(t, TicketReserved, ticket.Status)
	assert.Equal(t, "member-1", ticket.ReservedBy)

	assert.False(t, ticket.Reserve("member-2", now), "double reserve must fail")
	assert.Equal(t, "member-1", ticket.ReservedBy)

	assert.True(t, ticket.Confirm())
	assert.Equal(t, TicketSold, ticket.Status)
	assert.False(t, ticket.Confirm(), "confirm is only valid from RESERVED")
}

func TestTicket_Cancel(t *testing.T) {
	now := time.Now()
	ticket := Ticket{Status: TicketAvailable}
	ticket.Reserve("member-1", now)

	ticket.Cancel()
	assert.Equal(t, TicketCancelled, ticket.Status)
	assert.Empty(t, ticket.ReservedBy)
	assert.Nil(t, ticket.ReservedAt)
}

func TestReservation_ConfirmFromPending(t *testing.T) {
	now := time.Now()
	r := Reservation{Status: ReservationPending}

	require.NoError(t, r.Confirm(now))
	assert.Equal(t, ReservationConfirmed, r.Status)
	require.NotNil(t, r.ConfirmedAt)

	assert.ErrorIs(t, r.Confirm(now), ErrInvalidTransition)
}

func TestReservation_CancelIdempotent(t *testing.T) {
	now := time.Now()
	r := Reservation{Status: ReservationPending}

	require.NoError(t, r.Cancel("timed out", now))
	assert.Equal(t, ReservationCancelled, r.Status)
	assert.Equal(t, "timed out", r.CancelReason)

	// Second cancel is a no-op, not an error.
	require.NoError(t, r.Cancel("other reason", now))
	assert.Equal(t, "timed out", r.CancelReason)
}

func TestReservation_CancelFromConfirmed(t *testing.T) {
	now := time.Now()
	r := Reservation{Status: ReservationConfirmed}

	require.NoError(t, r.Cancel("refunded", now))
	assert.Equal(t, ReservationCancelled, r.Status)
}

func TestReservation_CompleteRequiresConfirmed(t *testing.T) {
	r := Reservation{Status: ReservationPending}
	assert.ErrorIs(t, r.Complete("pay-1"), ErrInvalidTransition)

	r.Status = ReservationConfirmed
	require.NoError(t, r.Complete("pay-1"))
	assert.Equal(t, ReservationCompleted, r.Status)
	assert.Equal(t, "pay-1", r.PaymentID)
}

func TestReservation_TotalAmount(t *testing.T) {
	price := decimal.NewFromFloat(49.99)
	total := price.Mul(decimal.NewFromInt(3))
	assert.Equal(t, "149.97", total.StringFixed(2))
}
