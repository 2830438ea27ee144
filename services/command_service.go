package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ticket-gate/config"
	"ticket-gate/models"
	"ticket-gate/monitoring"
	"ticket-gate/store"
	"ticket-gate/utils"
)

const commandBufferSize = 256

var ErrWorkerStopped = errors.New("command worker stopped")

// CommandService serializes purchase-side mutations through a single worker.
// Every command carries an explicit Type discriminant; dispatch is a switch,
// and an unknown type is rejected at submit time instead of silently dropped.
type CommandService struct {
	Stock        *StockService
	Queue        *QueueService
	Tickets      store.TicketStore
	Reservations store.ReservationStore
	Notifier     Notifier
	Config       *config.Config

	monitor  *monitoring.Monitor
	commands chan models.Command
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewCommandService(stock *StockService, queue *QueueService, tickets store.TicketStore, reservations store.ReservationStore, notifier Notifier, cfg *config.Config, monitor *monitoring.Monitor) *CommandService {
	return &CommandService{
		Stock:        stock,
		Queue:        queue,
		Tickets:      tickets,
		Reservations: reservations,
		Notifier:     notifier,
		Config:       cfg,
		monitor:      monitor,
		commands:     make(chan models.Command, commandBufferSize),
		stopChan:     make(chan struct{}),
	}
}

// Start launches the worker loop. Call Shutdown to drain and stop it.
func (s *CommandService) Start() {
	s.wg.Add(1)
	go s.workerLoop()
	log.Println("Command worker started")
}

func (s *CommandService) workerLoop() {
	defer s.wg.Done()

	for {
		select {
		case cmd := <-s.commands:
			s.dispatch(context.Background(), cmd)
		case <-s.stopChan:
			// Drain whatever was accepted before the stop signal.
			for {
				select {
				case cmd := <-s.commands:
					s.dispatch(context.Background(), cmd)
				default:
					log.Println("Command worker stopping")
					return
				}
			}
		}
	}
}

// Submit enqueues a command for the worker. Rejects unknown command types
// immediately so a bad producer fails loudly instead of poisoning the queue.
func (s *CommandService) Submit(ctx context.Context, cmd models.Command) error {
	switch cmd.Type {
	case models.CommandReserve, models.CommandConfirm, models.CommandCancel,
		models.CommandAdmitNext, models.CommandRestore:
	default:
		return fmt.Errorf("unknown command type %q", cmd.Type)
	}

	if cmd.RequestedAt.IsZero() {
		cmd.RequestedAt = time.Now()
	}

	// The buffered send below is usually ready, so a select alone could pick
	// it even after Shutdown and the command would never be processed. Check
	// the stop signal first.
	select {
	case <-s.stopChan:
		return ErrWorkerStopped
	default:
	}

	select {
	case s.commands <- cmd:
		return nil
	case <-s.stopChan:
		return ErrWorkerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *CommandService) dispatch(ctx context.Context, cmd models.Command) {
	var err error
	switch cmd.Type {
	case models.CommandReserve:
		_, err = s.Reserve(ctx, cmd)
	case models.CommandConfirm:
		err = s.ConfirmReservation(ctx, cmd.ReservationID, cmd.PaymentID)
	case models.CommandCancel:
		err = s.CancelReservation(ctx, cmd.ReservationID, cmd.Reason)
	case models.CommandAdmitNext:
		err = s.admitNext(ctx, cmd)
	case models.CommandRestore:
		err = s.restoreStock(ctx, cmd)
	}

	result := "success"
	if err != nil {
		result = "failure"
		log.Printf("Error processing command: type=%s, error=%v", cmd.Type, err)
	}
	s.monitor.TrackCommand(string(cmd.Type), result)
}

// Reserve runs the full purchase-side reservation: hold cached stock, cut the
// ticket and PENDING reservation, then durably commit. A failed commit undoes
// the durable artifacts and reconciles the cache back to the ground truth.
func (s *CommandService) Reserve(ctx context.Context, cmd models.Command) (*models.Reservation, error) {
	quantity := cmd.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	if err := s.Stock.TryReserve(ctx, cmd.TicketTypeID, quantity); err != nil {
		return nil, err
	}

	ticketType, err := s.Tickets.GetTicketType(ctx, cmd.TicketTypeID)
	if err != nil {
		s.compensateReserve(ctx, cmd.TicketTypeID, "", "")
		return nil, err
	}

	now := time.Now()
	ticket := &models.Ticket{
		ID:           uuid.NewString(),
		EventID:      cmd.EventID,
		TicketTypeID: cmd.TicketTypeID,
		SeatNumber:   utils.GenerateCode(6),
		Price:        ticketType.Price,
		Status:       models.TicketReserved,
		ReservedBy:   cmd.MemberID,
		ReservedAt:   &now,
	}
	if err := s.Tickets.CreateTicket(ctx, ticket); err != nil {
		s.compensateReserve(ctx, cmd.TicketTypeID, "", "")
		return nil, err
	}

	reservation := &models.Reservation{
		ID:           uuid.NewString(),
		MemberID:     cmd.MemberID,
		EventID:      cmd.EventID,
		TicketID:     ticket.ID,
		TicketTypeID: cmd.TicketTypeID,
		Quantity:     quantity,
		TotalAmount:  ticketType.Price.Mul(decimal.NewFromInt(int64(quantity))),
		Status:       models.ReservationPending,
		CreatedAt:    now,
	}
	if err := s.Reservations.Create(ctx, reservation); err != nil {
		s.compensateReserve(ctx, cmd.TicketTypeID, ticket.ID, "")
		return nil, err
	}

	if err := s.Stock.Commit(ctx, cmd.TicketTypeID, quantity); err != nil {
		s.compensateReserve(ctx, cmd.TicketTypeID, ticket.ID, reservation.ID)
		return nil, err
	}

	s.notify(ctx, cmd.MemberID, models.Notification{
		Type:    "RESERVATION_CREATED",
		Title:   "Reservation created",
		Content: fmt.Sprintf("Seat %s held for you. Complete payment within %s.", ticket.SeatNumber, s.Config.ReservationTimeout),
		Link:    fmt.Sprintf("/reservations/%s", reservation.ID),
	})

	log.Printf("Reservation created: reservationId=%s, memberId=%s, ticketTypeId=%s, quantity=%d",
		reservation.ID, cmd.MemberID, cmd.TicketTypeID, quantity)
	return reservation, nil
}

// compensateReserve rolls back whatever a failed Reserve had built so far.
// The cache hold is healed by reconciling against the durable value, which a
// failed commit never changed.
func (s *CommandService) compensateReserve(ctx context.Context, ticketTypeID, ticketID, reservationID string) {
	if reservationID != "" {
		if _, err := s.Reservations.Cancel(ctx, reservationID, "reservation rolled back", time.Now()); err != nil {
			log.Printf("Error rolling back reservation: reservationId=%s, error=%v", reservationID, err)
		}
	}
	if ticketID != "" {
		if err := s.Tickets.CancelTicket(ctx, ticketID); err != nil {
			log.Printf("Error rolling back ticket: ticketId=%s, error=%v", ticketID, err)
		}
	}
	if err := s.Stock.Reconcile(ctx, ticketTypeID); err != nil {
		log.Printf("Error reconciling stock after rollback: ticketTypeId=%s, error=%v", ticketTypeID, err)
	}
}

// ConfirmReservation moves a PENDING reservation to CONFIRMED after payment
// and releases the member's active queue slot.
func (s *CommandService) ConfirmReservation(ctx context.Context, reservationID, paymentID string) error {
	reservation, err := s.Reservations.GetReservation(ctx, reservationID)
	if err != nil {
		return err
	}

	if err := s.Reservations.Confirm(ctx, reservationID, time.Now()); err != nil {
		return err
	}

	if err := s.Queue.CompleteEntry(ctx, reservation.EventID, reservation.MemberID); err != nil {
		log.Printf("Error completing queue entry: eventId=%s, memberId=%s, error=%v",
			reservation.EventID, reservation.MemberID, err)
	}

	s.notify(ctx, reservation.MemberID, models.Notification{
		Type:    "RESERVATION_CONFIRMED",
		Title:   "Payment confirmed",
		Content: "Your tickets are confirmed. See you there!",
		Link:    fmt.Sprintf("/reservations/%s", reservationID),
	})

	log.Printf("Reservation confirmed: reservationId=%s, paymentId=%s", reservationID, paymentID)
	return nil
}

// CancelReservation cancels the reservation, releases its ticket, and returns
// its stock. Safe to call on an already cancelled reservation.
func (s *CommandService) CancelReservation(ctx context.Context, reservationID, reason string) error {
	reservation, err := s.Reservations.GetReservation(ctx, reservationID)
	if err != nil {
		return err
	}
	if reservation.Status == models.ReservationCancelled {
		return nil
	}

	cancelled, err := s.Reservations.Cancel(ctx, reservationID, reason, time.Now())
	if err != nil {
		return err
	}
	if !cancelled {
		// Lost the race against the reaper or another cancel; the winner has
		// already released the ticket and stock.
		return nil
	}

	if reservation.TicketID != "" {
		if err := s.Tickets.CancelTicket(ctx, reservation.TicketID); err != nil {
			return err
		}
	}

	if err := s.Stock.Restore(ctx, reservation.TicketTypeID, reservation.Quantity); err != nil {
		return err
	}

	s.notify(ctx, reservation.MemberID, models.Notification{
		Type:    "RESERVATION_CANCELLED",
		Title:   "Reservation cancelled",
		Content: fmt.Sprintf("Your reservation was cancelled: %s", reason),
	})

	log.Printf("Reservation cancelled: reservationId=%s, reason=%s", reservationID, reason)
	return nil
}

func (s *CommandService) admitNext(ctx context.Context, cmd models.Command) error {
	count := cmd.Count
	if count <= 0 {
		count = s.Config.AdmitBatchSize
	}
	_, err := s.Queue.AdmitNext(ctx, cmd.EventID, count)
	return err
}

func (s *CommandService) restoreStock(ctx context.Context, cmd models.Command) error {
	if cmd.Quantity <= 0 {
		return s.Stock.Reconcile(ctx, cmd.TicketTypeID)
	}
	return s.Stock.Restore(ctx, cmd.TicketTypeID, cmd.Quantity)
}

func (s *CommandService) notify(ctx context.Context, memberID string, notification models.Notification) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.Notify(ctx, memberID, notification); err != nil {
		log.Printf("Error sending notification: memberId=%s, type=%s, error=%v", memberID, notification.Type, err)
	}
}

// Shutdown stops accepting commands, drains the buffer, and waits for the
// worker to exit.
func (s *CommandService) Shutdown() {
	close(s.stopChan)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Command worker stopped")
	case <-time.After(30 * time.Second):
		log.Println("Timeout waiting for command worker to stop")
	}
}
