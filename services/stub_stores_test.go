package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ticket-gate/config"
	"ticket-gate/internal/status"
	"ticket-gate/models"
)

// stubStore is an in-memory stand-in for the SQL-backed stores.
type stubStore struct {
	mu           sync.Mutex
	events       map[string]*models.Event
	entries      map[string]*models.QueueEntry
	ticketTypes  map[string]*models.TicketType
	tickets      map[string]*models.Ticket
	reservations map[string]*models.Reservation

	failCreateWaiting error
}

func newStubStore() *stubStore {
	return &stubStore{
		events:       make(map[string]*models.Event),
		entries:      make(map[string]*models.QueueEntry),
		ticketTypes:  make(map[string]*models.TicketType),
		tickets:      make(map[string]*models.Ticket),
		reservations: make(map[string]*models.Reservation),
	}
}

func entryID(eventID, memberID string) string {
	return eventID + ":" + memberID
}

func (s *stubStore) GetEvent(_ context.Context, eventID string) (*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[eventID]
	if !ok {
		return nil, fmt.Errorf("event %s: %w", eventID, status.ErrNotFound)
	}
	copied := *event
	return &copied, nil
}

func (s *stubStore) SetQueueActive(_ context.Context, eventID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[eventID]
	if !ok {
		return fmt.Errorf("event %s: %w", eventID, status.ErrNotFound)
	}
	event.QueueActive = active
	return nil
}

func (s *stubStore) ListQueueActive(_ context.Context) ([]models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Event
	for _, event := range s.events {
		if event.QueueActive {
			out = append(out, *event)
		}
	}
	return out, nil
}

func (s *stubStore) CreateWaiting(_ context.Context, entry *models.QueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreateWaiting != nil {
		return s.failCreateWaiting
	}
	copied := *entry
	s.entries[entryID(entry.EventID, entry.MemberID)] = &copied
	return nil
}

func (s *stubStore) GetEntry(_ context.Context, eventID, memberID string) (*models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[entryID(eventID, memberID)]
	if !ok {
		return nil, fmt.Errorf("entry %s/%s: %w", eventID, memberID, status.ErrNotFound)
	}
	copied := *entry
	return &copied, nil
}

func (s *stubStore) MarkNotified(_ context.Context, eventID, memberID string, notifiedAt, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[entryID(eventID, memberID)]
	if !ok {
		return fmt.Errorf("entry %s/%s: %w", eventID, memberID, status.ErrNotFound)
	}
	entry.Status = models.EntryNotified
	entry.NotifiedAt = &notifiedAt
	entry.ExpiresAt = &expiresAt
	return nil
}

func (s *stubStore) MarkEntered(_ context.Context, eventID, memberID string, enteredAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[entryID(eventID, memberID)]
	if !ok {
		return fmt.Errorf("entry %s/%s: %w", eventID, memberID, status.ErrNotFound)
	}
	entry.Status = models.EntryEntered
	entry.EnteredAt = &enteredAt
	return nil
}

func (s *stubStore) MarkExpired(_ context.Context, eventID, memberID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[entryID(eventID, memberID)]
	if !ok {
		return fmt.Errorf("entry %s/%s: %w", eventID, memberID, status.ErrNotFound)
	}
	entry.Status = models.EntryExpired
	return nil
}

func (s *stubStore) FindExpiredNotified(_ context.Context, cutoff time.Time, limit int) ([]models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.QueueEntry
	for _, entry := range s.entries {
		if len(out) >= limit {
			break
		}
		if entry.Status == models.EntryNotified && entry.ExpiresAt != nil && entry.ExpiresAt.Before(cutoff) {
			out = append(out, *entry)
		}
	}
	return out, nil
}

func (s *stubStore) GetTicketType(_ context.Context, ticketTypeID string) (*models.TicketType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tt, ok := s.ticketTypes[ticketTypeID]
	if !ok {
		return nil, fmt.Errorf("ticket type %s: %w", ticketTypeID, status.ErrNotFound)
	}
	copied := *tt
	return &copied, nil
}

func (s *stubStore) DecreaseAvailable(_ context.Context, ticketTypeID string, count int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tt, ok := s.ticketTypes[ticketTypeID]
	if !ok {
		return 0, fmt.Errorf("ticket type %s: %w", ticketTypeID, status.ErrNotFound)
	}
	if !tt.DecreaseAvailable(count) {
		return 0, fmt.Errorf("ticket type %s: %w", ticketTypeID, status.ErrInsufficientStock)
	}
	return tt.AvailableQuantity, nil
}

func (s *stubStore) IncreaseAvailable(_ context.Context, ticketTypeID string, count int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tt, ok := s.ticketTypes[ticketTypeID]
	if !ok {
		return 0, fmt.Errorf("ticket type %s: %w", ticketTypeID, status.ErrNotFound)
	}
	tt.IncreaseAvailable(count)
	return tt.AvailableQuantity, nil
}

func (s *stubStore) CreateTicket(_ context.Context, ticket *models.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *ticket
	s.tickets[ticket.ID] = &copied
	return nil
}

func (s *stubStore) CancelTicket(_ context.Context, ticketID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[ticketID]
	if !ok {
		return fmt.Errorf("ticket %s: %w", ticketID, status.ErrNotFound)
	}
	ticket.Cancel()
	return nil
}

func (s *stubStore) Create(_ context.Context, reservation *models.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *reservation
	s.reservations[reservation.ID] = &copied
	return nil
}

func (s *stubStore) GetReservation(_ context.Context, reservationID string) (*models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reservation, ok := s.reservations[reservationID]
	if !ok {
		return nil, fmt.Errorf("reservation %s: %w", reservationID, status.ErrNotFound)
	}
	copied := *reservation
	return &copied, nil
}

func (s *stubStore) Confirm(_ context.Context, reservationID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	reservation, ok := s.reservations[reservationID]
	if !ok {
		return fmt.Errorf("reservation %s: %w", reservationID, status.ErrNotFound)
	}
	return reservation.Confirm(at)
}

func (s *stubStore) Cancel(_ context.Context, reservationID, reason string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reservation, ok := s.reservations[reservationID]
	if !ok {
		return false, fmt.Errorf("reservation %s: %w", reservationID, status.ErrNotFound)
	}
	if reservation.Status == models.ReservationCancelled {
		return false, nil
	}
	if err := reservation.Cancel(reason, at); err != nil {
		return false, err
	}
	return true, nil
}

func (s *stubStore) FindExpiredPending(_ context.Context, cutoff time.Time, limit int) ([]models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Reservation
	for _, reservation := range s.reservations {
		if len(out) >= limit {
			break
		}
		if reservation.Status == models.ReservationPending && reservation.CreatedAt.Before(cutoff) {
			out = append(out, *reservation)
		}
	}
	return out, nil
}

// stubNotifier records deliveries instead of publishing them.
type stubNotifier struct {
	mu       sync.Mutex
	sent     []models.Notification
	members  []string
	failWith error
}

func (n *stubNotifier) Notify(_ context.Context, memberID string, notification models.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failWith != nil {
		return n.failWith
	}
	n.members = append(n.members, memberID)
	n.sent = append(n.sent, notification)
	return nil
}

func (n *stubNotifier) sentTo(memberID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, m := range n.members {
		if m == memberID {
			return true
		}
	}
	return false
}

func testConfig() *config.Config {
	return &config.Config{
		MaxActiveUsers:           100,
		AdmitBatchSize:           10,
		QueueEntryTTL:            30 * time.Minute,
		StockCacheTTL:            24 * time.Hour,
		LockWaitTimeout:          time.Second,
		LockLeaseTimeout:         10 * time.Second,
		LockRetryInterval:        10 * time.Millisecond,
		QueueSweepInterval:       time.Minute,
		ReservationSweepInterval: time.Minute,
		ReservationTimeout:       30 * time.Minute,
	}
}
