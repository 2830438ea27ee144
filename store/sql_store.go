package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pocketbase/dbx"
	"github.com/shopspring/decimal"

	"ticket-gate/internal/status"
	"ticket-gate/models"
)

// SQLStore implements every store interface against MySQL through dbx.
type SQLStore struct {
	db *dbx.DB
}

func NewSQLStore(sqlDB *sql.DB) *SQLStore {
	return &SQLStore{db: dbx.NewFromDB(sqlDB, "mysql")}
}

var (
	_ EventStore       = (*SQLStore)(nil)
	_ QueueEntryStore  = (*SQLStore)(nil)
	_ TicketStore      = (*SQLStore)(nil)
	_ ReservationStore = (*SQLStore)(nil)
)

func parsePrice(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse price %q: %w", raw, err)
	}
	return price, nil
}

type eventRow struct {
	ID             string    `db:"id"`
	Name           string    `db:"name"`
	Description    string    `db:"description"`
	Venue          string    `db:"venue"`
	StartTime      time.Time `db:"start_time"`
	EndTime        time.Time `db:"end_time"`
	Status         string    `db:"status"`
	QueueActive    bool      `db:"queue_active"`
	MaxActiveUsers int       `db:"max_active_users"`
}

func (r *eventRow) toModel() *models.Event {
	return &models.Event{
		ID:             r.ID,
		Name:           r.Name,
		Description:    r.Description,
		Venue:          r.Venue,
		StartTime:      r.StartTime,
		EndTime:        r.EndTime,
		Status:         r.Status,
		QueueActive:    r.QueueActive,
		MaxActiveUsers: r.MaxActiveUsers,
	}
}

func (s *SQLStore) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	var row eventRow
	err := s.db.Select("id", "name", "description", "venue", "start_time", "end_time", "status", "queue_active", "max_active_users").
		From("event").
		Where(dbx.HashExp{"id": eventID}).
		WithContext(ctx).
		One(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", eventID, status.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return row.toModel(), nil
}

func (s *SQLStore) SetQueueActive(ctx context.Context, eventID string, active bool) error {
	res, err := s.db.Update("event",
		dbx.Params{"queue_active": active},
		dbx.HashExp{"id": eventID},
	).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("toggle queue: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// RowsAffected is 0 both for a missing row and an unchanged flag,
		// so confirm the event exists before reporting NotFound.
		if _, err := s.GetEvent(ctx, eventID); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) ListQueueActive(ctx context.Context) ([]models.Event, error) {
	var rows []eventRow
	err := s.db.Select("id", "name", "description", "venue", "start_time", "end_time", "status", "queue_active", "max_active_users").
		From("event").
		Where(dbx.HashExp{"queue_active": true}).
		WithContext(ctx).
		All(&rows)
	if err != nil {
		return nil, fmt.Errorf("list queue-active events: %w", err)
	}
	events := make([]models.Event, 0, len(rows))
	for i := range rows {
		events = append(events, *rows[i].toModel())
	}
	return events, nil
}

type queueEntryRow struct {
	ID           string       `db:"id"`
	EventID      string       `db:"event_id"`
	MemberID     string       `db:"member_id"`
	EnqueueScore int64        `db:"enqueue_score"`
	Status       string       `db:"status"`
	JoinedAt     time.Time    `db:"joined_at"`
	NotifiedAt   sql.NullTime `db:"notified_at"`
	EnteredAt    sql.NullTime `db:"entered_at"`
	ExpiresAt    sql.NullTime `db:"expires_at"`
}

func (r *queueEntryRow) toModel() *models.QueueEntry {
	entry := &models.QueueEntry{
		ID:           r.ID,
		EventID:      r.EventID,
		MemberID:     r.MemberID,
		EnqueueScore: r.EnqueueScore,
		Status:       models.EntryStatus(r.Status),
		JoinedAt:     r.JoinedAt,
	}
	if r.NotifiedAt.Valid {
		t := r.NotifiedAt.Time
		entry.NotifiedAt = &t
	}
	if r.EnteredAt.Valid {
		t := r.EnteredAt.Time
		entry.EnteredAt = &t
	}
	if r.ExpiresAt.Valid {
		t := r.ExpiresAt.Time
		entry.ExpiresAt = &t
	}
	return entry
}

const queueEntryColumns = "id, event_id, member_id, enqueue_score, status, joined_at, notified_at, entered_at, expires_at"

func (s *SQLStore) CreateWaiting(ctx context.Context, entry *models.QueueEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	_, err := s.db.Insert("queue_entry", dbx.Params{
		"id":            entry.ID,
		"event_id":      entry.EventID,
		"member_id":     entry.MemberID,
		"enqueue_score": entry.EnqueueScore,
		"status":        string(entry.Status),
		"joined_at":     entry.JoinedAt,
	}).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("create queue entry: %w", err)
	}
	return nil
}

func (s *SQLStore) GetEntry(ctx context.Context, eventID, memberID string) (*models.QueueEntry, error) {
	var row queueEntryRow
	err := s.db.NewQuery(
		"SELECT "+queueEntryColumns+" FROM queue_entry WHERE event_id={:event} AND member_id={:member} ORDER BY joined_at DESC LIMIT 1",
	).Bind(dbx.Params{"event": eventID, "member": memberID}).WithContext(ctx).One(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("queue entry %s/%s: %w", eventID, memberID, status.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get queue entry: %w", err)
	}
	return row.toModel(), nil
}

func (s *SQLStore) MarkNotified(ctx context.Context, eventID, memberID string, notifiedAt, expiresAt time.Time) error {
	_, err := s.db.NewQuery(
		"UPDATE queue_entry SET status={:to}, notified_at={:notified}, expires_at={:expires} "+
			"WHERE event_id={:event} AND member_id={:member} AND status={:from}",
	).Bind(dbx.Params{
		"to":       string(models.EntryNotified),
		"from":     string(models.EntryWaiting),
		"notified": notifiedAt,
		"expires":  expiresAt,
		"event":    eventID,
		"member":   memberID,
	}).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("mark notified: %w", err)
	}
	return nil
}

func (s *SQLStore) MarkEntered(ctx context.Context, eventID, memberID string, enteredAt time.Time) error {
	_, err := s.db.NewQuery(
		"UPDATE queue_entry SET status={:to}, entered_at={:entered} "+
			"WHERE event_id={:event} AND member_id={:member} AND status={:from}",
	).Bind(dbx.Params{
		"to":      string(models.EntryEntered),
		"from":    string(models.EntryNotified),
		"entered": enteredAt,
		"event":   eventID,
		"member":  memberID,
	}).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("mark entered: %w", err)
	}
	return nil
}

func (s *SQLStore) MarkExpired(ctx context.Context, eventID, memberID string) error {
	// Guarded on NOTIFIED so re-reclaiming an already terminal entry is a
	// silent no-op.
	_, err := s.db.NewQuery(
		"UPDATE queue_entry SET status={:to} WHERE event_id={:event} AND member_id={:member} AND status={:from}",
	).Bind(dbx.Params{
		"to":     string(models.EntryExpired),
		"from":   string(models.EntryNotified),
		"event":  eventID,
		"member": memberID,
	}).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("mark expired: %w", err)
	}
	return nil
}

func (s *SQLStore) FindExpiredNotified(ctx context.Context, cutoff time.Time, limit int) ([]models.QueueEntry, error) {
	var rows []queueEntryRow
	err := s.db.NewQuery(
		"SELECT "+queueEntryColumns+" FROM queue_entry WHERE status={:status} AND expires_at < {:cutoff} ORDER BY expires_at ASC LIMIT {:limit}",
	).Bind(dbx.Params{
		"status": string(models.EntryNotified),
		"cutoff": cutoff,
		"limit":  limit,
	}).WithContext(ctx).All(&rows)
	if err != nil {
		return nil, fmt.Errorf("find expired entries: %w", err)
	}
	entries := make([]models.QueueEntry, 0, len(rows))
	for i := range rows {
		entries = append(entries, *rows[i].toModel())
	}
	return entries, nil
}

type ticketTypeRow struct {
	ID                string `db:"id"`
	EventID           string `db:"event_id"`
	Name              string `db:"name"`
	Price             string `db:"price"`
	Quantity          int    `db:"quantity"`
	AvailableQuantity int    `db:"available_quantity"`
}

func (s *SQLStore) GetTicketType(ctx context.Context, ticketTypeID string) (*models.TicketType, error) {
	var row ticketTypeRow
	err := s.db.Select("id", "event_id", "name", "price", "quantity", "available_quantity").
		From("ticket_type").
		Where(dbx.HashExp{"id": ticketTypeID}).
		WithContext(ctx).
		One(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ticket type %s: %w", ticketTypeID, status.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get ticket type: %w", err)
	}
	price, err := parsePrice(row.Price)
	if err != nil {
		return nil, err
	}
	return &models.TicketType{
		ID:                row.ID,
		EventID:           row.EventID,
		Name:              row.Name,
		Price:             price,
		Quantity:          row.Quantity,
		AvailableQuantity: row.AvailableQuantity,
	}, nil
}

func (s *SQLStore) DecreaseAvailable(ctx context.Context, ticketTypeID string, count int) (int, error) {
	// The guard in the WHERE clause keeps the decrement atomic; no row
	// changed means not enough stock was left.
	res, err := s.db.NewQuery(
		"UPDATE ticket_type SET available_quantity = available_quantity - {:n} "+
			"WHERE id={:id} AND available_quantity >= {:n}",
	).Bind(dbx.Params{"n": count, "id": ticketTypeID}).WithContext(ctx).Execute()
	if err != nil {
		return 0, fmt.Errorf("decrease stock: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		tt, err := s.GetTicketType(ctx, ticketTypeID)
		if err != nil {
			return 0, err
		}
		return tt.AvailableQuantity, fmt.Errorf("ticket type %s has %d left, need %d: %w",
			ticketTypeID, tt.AvailableQuantity, count, status.ErrInsufficientStock)
	}
	return s.availableQuantity(ctx, ticketTypeID)
}

func (s *SQLStore) IncreaseAvailable(ctx context.Context, ticketTypeID string, count int) (int, error) {
	res, err := s.db.NewQuery(
		"UPDATE ticket_type SET available_quantity = LEAST(quantity, available_quantity + {:n}) WHERE id={:id}",
	).Bind(dbx.Params{"n": count, "id": ticketTypeID}).WithContext(ctx).Execute()
	if err != nil {
		return 0, fmt.Errorf("increase stock: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// The clamp can leave the row unchanged; distinguish that from a
		// missing ticket type.
		if _, err := s.GetTicketType(ctx, ticketTypeID); err != nil {
			return 0, err
		}
	}
	return s.availableQuantity(ctx, ticketTypeID)
}

func (s *SQLStore) availableQuantity(ctx context.Context, ticketTypeID string) (int, error) {
	var available int
	err := s.db.NewQuery("SELECT available_quantity FROM ticket_type WHERE id={:id}").
		Bind(dbx.Params{"id": ticketTypeID}).WithContext(ctx).Row(&available)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("ticket type %s: %w", ticketTypeID, status.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("read available quantity: %w", err)
	}
	return available, nil
}

func (s *SQLStore) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	params := dbx.Params{
		"id":             ticket.ID,
		"event_id":       ticket.EventID,
		"ticket_type_id": ticket.TicketTypeID,
		"seat_number":    ticket.SeatNumber,
		"price":          ticket.Price.String(),
		"status":         string(ticket.Status),
		"reserved_by":    ticket.ReservedBy,
	}
	if ticket.ReservedAt != nil {
		params["reserved_at"] = *ticket.ReservedAt
	}
	if _, err := s.db.Insert("ticket", params).WithContext(ctx).Execute(); err != nil {
		return fmt.Errorf("create ticket: %w", err)
	}
	return nil
}

func (s *SQLStore) CancelTicket(ctx context.Context, ticketID string) error {
	_, err := s.db.NewQuery(
		"UPDATE ticket SET status={:to}, reserved_by='', reserved_at=NULL WHERE id={:id} AND status <> {:to}",
	).Bind(dbx.Params{
		"to": string(models.TicketCancelled),
		"id": ticketID,
	}).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("cancel ticket: %w", err)
	}
	return nil
}

type reservationRow struct {
	ID           string       `db:"id"`
	MemberID     string       `db:"member_id"`
	EventID      string       `db:"event_id"`
	TicketID     string       `db:"ticket_id"`
	TicketTypeID string       `db:"ticket_type_id"`
	Quantity     int          `db:"quantity"`
	TotalAmount  string       `db:"total_amount"`
	Status       string       `db:"status"`
	PaymentID    string       `db:"payment_id"`
	CreatedAt    time.Time    `db:"created_at"`
	ConfirmedAt  sql.NullTime `db:"confirmed_at"`
	CancelledAt  sql.NullTime `db:"cancelled_at"`
	CancelReason string       `db:"cancel_reason"`
}

func (r *reservationRow) toModel() (*models.Reservation, error) {
	amount, err := parsePrice(r.TotalAmount)
	if err != nil {
		return nil, err
	}
	reservation := &models.Reservation{
		ID:           r.ID,
		MemberID:     r.MemberID,
		EventID:      r.EventID,
		TicketID:     r.TicketID,
		TicketTypeID: r.TicketTypeID,
		Quantity:     r.Quantity,
		TotalAmount:  amount,
		Status:       models.ReservationStatus(r.Status),
		PaymentID:    r.PaymentID,
		CreatedAt:    r.CreatedAt,
		CancelReason: r.CancelReason,
	}
	if r.ConfirmedAt.Valid {
		t := r.ConfirmedAt.Time
		reservation.ConfirmedAt = &t
	}
	if r.CancelledAt.Valid {
		t := r.CancelledAt.Time
		reservation.CancelledAt = &t
	}
	return reservation, nil
}

const reservationColumns = "id, member_id, event_id, ticket_id, ticket_type_id, quantity, total_amount, status, payment_id, created_at, confirmed_at, cancelled_at, cancel_reason"

func (s *SQLStore) Create(ctx context.Context, reservation *models.Reservation) error {
	if reservation.ID == "" {
		reservation.ID = uuid.NewString()
	}
	_, err := s.db.Insert("reservation", dbx.Params{
		"id":             reservation.ID,
		"member_id":      reservation.MemberID,
		"event_id":       reservation.EventID,
		"ticket_id":      reservation.TicketID,
		"ticket_type_id": reservation.TicketTypeID,
		"quantity":       reservation.Quantity,
		"total_amount":   reservation.TotalAmount.String(),
		"status":         string(reservation.Status),
		"payment_id":     reservation.PaymentID,
		"created_at":     reservation.CreatedAt,
	}).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("create reservation: %w", err)
	}
	return nil
}

func (s *SQLStore) GetReservation(ctx context.Context, reservationID string) (*models.Reservation, error) {
	var row reservationRow
	err := s.db.NewQuery("SELECT "+reservationColumns+" FROM reservation WHERE id={:id}").
		Bind(dbx.Params{"id": reservationID}).WithContext(ctx).One(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reservation %s: %w", reservationID, status.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return row.toModel()
}

func (s *SQLStore) Confirm(ctx context.Context, reservationID string, at time.Time) error {
	res, err := s.db.NewQuery(
		"UPDATE reservation SET status={:to}, confirmed_at={:at} WHERE id={:id} AND status={:from}",
	).Bind(dbx.Params{
		"to":   string(models.ReservationConfirmed),
		"from": string(models.ReservationPending),
		"at":   at,
		"id":   reservationID,
	}).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("confirm reservation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("reservation %s not pending: %w", reservationID, models.ErrInvalidTransition)
	}
	return nil
}

func (s *SQLStore) Cancel(ctx context.Context, reservationID, reason string, at time.Time) (bool, error) {
	res, err := s.db.NewQuery(
		"UPDATE reservation SET status={:to}, cancelled_at={:at}, cancel_reason={:reason} "+
			"WHERE id={:id} AND status IN ({:pending}, {:confirmed})",
	).Bind(dbx.Params{
		"to":        string(models.ReservationCancelled),
		"pending":   string(models.ReservationPending),
		"confirmed": string(models.ReservationConfirmed),
		"at":        at,
		"reason":    reason,
		"id":        reservationID,
	}).WithContext(ctx).Execute()
	if err != nil {
		return false, fmt.Errorf("cancel reservation: %w", err)
	}
	// The guarded UPDATE is the arbiter under concurrent cancels: exactly one
	// caller sees an affected row and owns the follow-up stock restore.
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (s *SQLStore) FindExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]models.Reservation, error) {
	var rows []reservationRow
	err := s.db.NewQuery(
		"SELECT "+reservationColumns+" FROM reservation WHERE status={:status} AND created_at < {:cutoff} ORDER BY created_at ASC LIMIT {:limit}",
	).Bind(dbx.Params{
		"status": string(models.ReservationPending),
		"cutoff": cutoff,
		"limit":  limit,
	}).WithContext(ctx).All(&rows)
	if err != nil {
		return nil, fmt.Errorf("find expired reservations: %w", err)
	}
	reservations := make([]models.Reservation, 0, len(rows))
	for i := range rows {
		r, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, *r)
	}
	return reservations, nil
}
