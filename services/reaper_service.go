package services

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"ticket-gate/config"
	"ticket-gate/internal/status"
	"ticket-gate/models"
	"ticket-gate/monitoring"
	"ticket-gate/store"
)

// ReaperService runs the two reclamation sweeps: timed-out queue admissions
// and timed-out pending reservations. Both are pure cleanup - safe to run
// concurrently with live traffic and safe to re-run on items another process
// already reclaimed.
type ReaperService struct {
	Redis        *redis.Client
	Stock        *StockService
	Events       store.EventStore
	Entries      store.QueueEntryStore
	Reservations store.ReservationStore
	Config       *config.Config

	monitor  *monitoring.Monitor
	stopChan chan struct{}
	wg       sync.WaitGroup
}

const reservationBatchSize = 100

func NewReaperService(redisClient *redis.Client, stock *StockService, events store.EventStore, entries store.QueueEntryStore, reservations store.ReservationStore, cfg *config.Config, monitor *monitoring.Monitor) *ReaperService {
	return &ReaperService{
		Redis:        redisClient,
		Stock:        stock,
		Events:       events,
		Entries:      entries,
		Reservations: reservations,
		Config:       cfg,
		monitor:      monitor,
		stopChan:     make(chan struct{}),
	}
}

// Start launches both sweep loops. Call Shutdown to stop them.
func (s *ReaperService) Start() {
	s.wg.Add(1)
	go s.queueSweepLoop()

	s.wg.Add(1)
	go s.reservationSweepLoop()

	log.Println("Reaper started")
}

func (s *ReaperService) queueSweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.Config.QueueSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.SweepExpiredQueueEntries(context.Background())
		case <-s.stopChan:
			log.Println("Queue sweep stopping")
			return
		}
	}
}

func (s *ReaperService) reservationSweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.Config.ReservationSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.SweepExpiredReservations(context.Background())
		case <-s.stopChan:
			log.Println("Reservation sweep stopping")
			return
		}
	}
}

// SweepExpiredQueueEntries transitions every NOTIFIED entry past its deadline
// to EXPIRED and frees its active slot. One bad item never aborts the sweep.
func (s *ReaperService) SweepExpiredQueueEntries(ctx context.Context) int {
	now := time.Now()
	expired := 0

	events, err := s.Events.ListQueueActive(ctx)
	if err != nil {
		log.Printf("Error listing queue-active events: %v", err)
		events = nil
	}

	for _, event := range events {
		members, err := s.Redis.SMembers(ctx, activeKey(event.ID)).Result()
		if err != nil {
			log.Printf("Error reading active set: eventId=%s, error=%v", event.ID, err)
			continue
		}

		for _, key := range members {
			if reaped, err := s.reapActiveMember(ctx, event.ID, key, now); err != nil {
				log.Printf("Error reaping active member: key=%s, error=%v", key, err)
			} else if reaped {
				expired++
			}
		}
	}

	// Catch entries whose active set was dropped wholesale by its Redis TTL
	// but whose durable record never transitioned.
	entries, err := s.Entries.FindExpiredNotified(ctx, now, reservationBatchSize)
	if err != nil {
		log.Printf("Error finding expired entries: %v", err)
		entries = nil
	}
	for _, entry := range entries {
		if err := s.Entries.MarkExpired(ctx, entry.EventID, entry.MemberID); err != nil {
			log.Printf("Error expiring entry: eventId=%s, memberId=%s, error=%v", entry.EventID, entry.MemberID, err)
			continue
		}
		if err := s.Redis.SRem(ctx, activeKey(entry.EventID), memberKey(entry.EventID, entry.MemberID)).Err(); err != nil {
			log.Printf("Error removing expired member from active set: %v", err)
		}
		expired++
		s.monitor.TrackReaped("queue_entry")
	}

	if expired > 0 {
		log.Printf("Queue sweep reclaimed %d entries", expired)
	}
	return expired
}

func (s *ReaperService) reapActiveMember(ctx context.Context, ownerEventID, key string, now time.Time) (bool, error) {
	eventID, memberID, ok := splitMemberKey(key)
	if !ok {
		// Malformed member: drop it so it cannot clog every sweep.
		return false, s.Redis.SRem(ctx, activeKey(ownerEventID), key).Err()
	}

	entry, err := s.Entries.GetEntry(ctx, eventID, memberID)
	if errors.Is(err, status.ErrNotFound) {
		// Orphaned slot with no durable entry behind it.
		return true, s.Redis.SRem(ctx, activeKey(ownerEventID), key).Err()
	}
	if err != nil {
		return false, err
	}

	// Someone else may have reclaimed or completed this entry already;
	// reclaiming a non-NOTIFIED entry is a no-op.
	if entry.Status != models.EntryNotified || !entry.IsExpired(now) {
		return false, nil
	}

	if err := s.Redis.SRem(ctx, activeKey(eventID), key).Err(); err != nil {
		return false, err
	}
	if err := s.Entries.MarkExpired(ctx, eventID, memberID); err != nil {
		return false, err
	}

	s.monitor.TrackReaped("queue_entry")
	log.Printf("Expired queue entry reclaimed: eventId=%s, memberId=%s", eventID, memberID)
	return true, nil
}

// SweepExpiredReservations cancels PENDING reservations older than the
// configured timeout, releases their tickets, and restores their stock.
func (s *ReaperService) SweepExpiredReservations(ctx context.Context) int {
	cutoff := time.Now().Add(-s.Config.ReservationTimeout)

	reservations, err := s.Reservations.FindExpiredPending(ctx, cutoff, reservationBatchSize)
	if err != nil {
		log.Printf("Error finding expired reservations: %v", err)
		return 0
	}

	processed := 0
	for _, reservation := range reservations {
		if err := s.reapReservation(ctx, &reservation); err != nil {
			log.Printf("Error reaping reservation: reservationId=%s, error=%v", reservation.ID, err)
			continue
		}
		processed++
	}

	if processed > 0 {
		log.Printf("Reservation sweep reclaimed %d reservations", processed)
	}
	return processed
}

func (s *ReaperService) reapReservation(ctx context.Context, reservation *models.Reservation) error {
	now := time.Now()

	cancelled, err := s.Reservations.Cancel(ctx, reservation.ID, "reservation timed out", now)
	if err != nil {
		return err
	}
	if !cancelled {
		// A concurrent sweep won the cancel and already restored the stock;
		// restoring again would credit the same units twice.
		return nil
	}

	if reservation.TicketID != "" {
		if err := s.Stock.Tickets.CancelTicket(ctx, reservation.TicketID); err != nil {
			return err
		}
	}

	if err := s.Stock.Restore(ctx, reservation.TicketTypeID, reservation.Quantity); err != nil {
		return err
	}

	s.monitor.TrackReaped("reservation")
	log.Printf("Expired reservation reclaimed: reservationId=%s, ticketTypeId=%s, quantity=%d",
		reservation.ID, reservation.TicketTypeID, reservation.Quantity)
	return nil
}

// Shutdown stops both sweep loops and waits for them to exit.
func (s *ReaperService) Shutdown() {
	close(s.stopChan)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Reaper stopped")
	case <-time.After(30 * time.Second):
		log.Println("Timeout waiting for reaper to stop")
	}
}
