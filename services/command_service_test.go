package services

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-gate/internal/status"
	"ticket-gate/models"
)

func testCommandService() (*CommandService, *stubStore, *stubNotifier, redismock.ClientMock) {
	client, mock := redismock.NewClientMock()
	locks := NewLockService(client, 10*time.Millisecond, nil)
	locks.newToken = func() string { return "token-1" }

	db := newStubStore()
	db.events["e-1"] = &models.Event{ID: "e-1", Name: "Arena Show", QueueActive: true}
	db.ticketTypes["tt-1"] = &models.TicketType{
		ID:                "tt-1",
		EventID:           "e-1",
		Name:              "General",
		Price:             decimal.NewFromInt(50),
		Quantity:          100,
		AvailableQuantity: 10,
	}

	cfg := testConfig()
	notifier := &stubNotifier{}
	stock := NewStockService(client, locks, db, 24*time.Hour, time.Second, 10*time.Second, nil)
	queue := NewQueueService(client, locks, db, db, notifier, cfg, nil)
	svc := NewCommandService(stock, queue, db, db, notifier, cfg, nil)
	return svc, db, notifier, mock
}

func TestCommandService_ReserveSuccess(t *testing.T) {
	svc, db, notifier, mock := testCommandService()

	// Optimistic cache hold.
	mock.ExpectSetNX("lock:stock:tt-1", "token-1", 10*time.Second).SetVal(true)
	mock.ExpectGet("stock:ticket_type:tt-1").SetVal("10")
	mock.ExpectSet("stock:ticket_type:tt-1", 8, redis.KeepTTL).SetVal("OK")
	mock.ExpectEval(releaseLockScript, []string{"lock:stock:tt-1"}, "token-1").SetVal(int64(1))
	// Durable commit.
	mock.ExpectSetNX("lock:stock:tt-1", "token-1", 10*time.Second).SetVal(true)
	mock.ExpectSet("stock:ticket_type:tt-1", 8, redis.KeepTTL).SetVal("OK")
	mock.ExpectEval(releaseLockScript, []string{"lock:stock:tt-1"}, "token-1").SetVal(int64(1))

	reservation, err := svc.Reserve(context.Background(), models.Command{
		Type:         models.CommandReserve,
		EventID:      "e-1",
		TicketTypeID: "tt-1",
		MemberID:     "m-1",
		Quantity:     2,
	})
	require.NoError(t, err)

	assert.Equal(t, models.ReservationPending, reservation.Status)
	assert.Equal(t, 2, reservation.Quantity)
	assert.Equal(t, "100", reservation.TotalAmount.String())
	assert.NotEmpty(t, reservation.TicketID)

	ticket := db.tickets[reservation.TicketID]
	require.NotNil(t, ticket)
	assert.Equal(t, models.TicketReserved, ticket.Status)
	assert.Equal(t, "m-1", ticket.ReservedBy)
	assert.Len(t, ticket.SeatNumber, 6)

	assert.Equal(t, 8, db.ticketTypes["tt-1"].AvailableQuantity)
	assert.True(t, notifier.sentTo("m-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommandService_ReserveInsufficientStock(t *testing.T) {
	svc, db, _, mock := testCommandService()

	mock.ExpectSetNX("lock:stock:tt-1", "token-1", 10*time.Second).SetVal(true)
	mock.ExpectGet("stock:ticket_type:tt-1").SetVal("1")
	mock.ExpectEval(releaseLockScript, []string{"lock:stock:tt-1"}, "token-1").SetVal(int64(1))

	_, err := svc.Reserve(context.Background(), models.Command{
		Type:         models.CommandReserve,
		EventID:      "e-1",
		TicketTypeID: "tt-1",
		MemberID:     "m-1",
		Quantity:     5,
	})
	assert.ErrorIs(t, err, status.ErrInsufficientStock)
	assert.Empty(t, db.tickets, "failed reserve must not cut a ticket")
	assert.Empty(t, db.reservations)
}

func TestCommandService_ReserveDefaultsQuantityToOne(t *testing.T) {
	svc, _, _, mock := testCommandService()

	mock.ExpectSetNX("lock:stock:tt-1", "token-1", 10*time.Second).SetVal(true)
	mock.ExpectGet("stock:ticket_type:tt-1").SetVal("10")
	mock.ExpectSet("stock:ticket_type:tt-1", 9, redis.KeepTTL).SetVal("OK")
	mock.ExpectEval(releaseLockScript, []string{"lock:stock:tt-1"}, "token-1").SetVal(int64(1))
	mock.ExpectSetNX("lock:stock:tt-1", "token-1", 10*time.Second).SetVal(true)
	mock.ExpectSet("stock:ticket_type:tt-1", 9, redis.KeepTTL).SetVal("OK")
	mock.ExpectEval(releaseLockScript, []string{"lock:stock:tt-1"}, "token-1").SetVal(int64(1))

	reservation, err := svc.Reserve(context.Background(), models.Command{
		Type:         models.CommandReserve,
		EventID:      "e-1",
		TicketTypeID: "tt-1",
		MemberID:     "m-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, reservation.Quantity)
	assert.Equal(t, "50", reservation.TotalAmount.String())
}

func TestCommandService_ConfirmReservation(t *testing.T) {
	svc, db, notifier, mock := testCommandService()
	db.entries["e-1:m-1"] = &models.QueueEntry{EventID: "e-1", MemberID: "m-1", Status: models.EntryNotified}
	db.reservations["r-1"] = &models.Reservation{
		ID:       "r-1",
		MemberID: "m-1",
		EventID:  "e-1",
		Status:   models.ReservationPending,
	}

	mock.ExpectSRem("queue:active:e-1", "e-1:m-1").SetVal(1)

	require.NoError(t, svc.ConfirmReservation(context.Background(), "r-1", "pay-1"))

	assert.Equal(t, models.ReservationConfirmed, db.reservations["r-1"].Status)
	entry, err := db.GetEntry(context.Background(), "e-1", "m-1")
	require.NoError(t, err)
	assert.Equal(t, models.EntryEntered, entry.Status)
	assert.True(t, notifier.sentTo("m-1"))
}

func TestCommandService_ConfirmUnknownReservation(t *testing.T) {
	svc, _, _, _ := testCommandService()
	err := svc.ConfirmReservation(context.Background(), "r-missing", "pay-1")
	assert.ErrorIs(t, err, status.ErrNotFound)
}

func TestCommandService_CancelReservationRestoresStock(t *testing.T) {
	svc, db, notifier, mock := testCommandService()
	db.ticketTypes["tt-1"].AvailableQuantity = 8
	db.tickets["tk-1"] = &models.Ticket{ID: "tk-1", Status: models.TicketReserved, ReservedBy: "m-1"}
	db.reservations["r-1"] = &models.Reservation{
		ID:           "r-1",
		MemberID:     "m-1",
		EventID:      "e-1",
		TicketID:     "tk-1",
		TicketTypeID: "tt-1",
		Quantity:     2,
		Status:       models.ReservationPending,
	}

	mock.ExpectSetNX("lock:stock:tt-1", "token-1", 10*time.Second).SetVal(true)
	mock.ExpectSet("stock:ticket_type:tt-1", 10, redis.KeepTTL).SetVal("OK")
	mock.ExpectEval(releaseLockScript, []string{"lock:stock:tt-1"}, "token-1").SetVal(int64(1))

	require.NoError(t, svc.CancelReservation(context.Background(), "r-1", "changed my mind"))

	assert.Equal(t, models.ReservationCancelled, db.reservations["r-1"].Status)
	assert.Equal(t, "changed my mind", db.reservations["r-1"].CancelReason)
	assert.Equal(t, models.TicketCancelled, db.tickets["tk-1"].Status)
	assert.Equal(t, 10, db.ticketTypes["tt-1"].AvailableQuantity)
	assert.True(t, notifier.sentTo("m-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommandService_CancelAlreadyCancelledIsNoop(t *testing.T) {
	svc, db, _, _ := testCommandService()
	db.reservations["r-1"] = &models.Reservation{
		ID:           "r-1",
		TicketTypeID: "tt-1",
		Quantity:     2,
		Status:       models.ReservationCancelled,
		CancelReason: "timed out",
	}

	require.NoError(t, svc.CancelReservation(context.Background(), "r-1", "other reason"))
	assert.Equal(t, "timed out", db.reservations["r-1"].CancelReason)
}

func TestCommandService_SubmitRejectsUnknownType(t *testing.T) {
	svc, _, _, _ := testCommandService()
	err := svc.Submit(context.Background(), models.Command{Type: "EXPLODE"})
	assert.Error(t, err)
}

func TestCommandService_WorkerProcessesSubmittedCommand(t *testing.T) {
	svc, db, _, mock := testCommandService()
	db.ticketTypes["tt-1"].AvailableQuantity = 5

	mock.ExpectSetNX("lock:stock:tt-1", "token-1", 10*time.Second).SetVal(true)
	mock.ExpectSet("stock:ticket_type:tt-1", 8, redis.KeepTTL).SetVal("OK")
	mock.ExpectEval(releaseLockScript, []string{"lock:stock:tt-1"}, "token-1").SetVal(int64(1))

	svc.Start()
	err := svc.Submit(context.Background(), models.Command{
		Type:         models.CommandRestore,
		TicketTypeID: "tt-1",
		Quantity:     3,
	})
	require.NoError(t, err)
	svc.Shutdown()

	assert.Equal(t, 8, db.ticketTypes["tt-1"].AvailableQuantity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommandService_SubmitAfterShutdown(t *testing.T) {
	svc, _, _, _ := testCommandService()
	svc.Start()
	svc.Shutdown()

	err := svc.Submit(context.Background(), models.Command{
		Type:    models.CommandAdmitNext,
		EventID: "e-1",
	})
	assert.ErrorIs(t, err, ErrWorkerStopped)
}
