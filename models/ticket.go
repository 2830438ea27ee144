package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TicketStatus string

const (
	TicketAvailable TicketStatus = "AVAILABLE"
	TicketReserved  TicketStatus = "RESERVED"
	TicketSold      TicketStatus = "SOLD"
	TicketCancelled TicketStatus = "CANCELLED"
)

// TicketType carries the authoritative stock numbers. Quantity is the total
// capacity; AvailableQuantity is the durable ground truth the Redis cache
// mirrors.
type TicketType struct {
	ID                string          `json:"id"`
	EventID           string          `json:"event_id"`
	Name              string          `json:"name"`
	Price             decimal.Decimal `json:"price"`
	Quantity          int             `json:"quantity"`
	AvailableQuantity int             `json:"available_quantity"`
}

// DecreaseAvailable takes count units off the available pool. Returns false
// without mutating when there are not enough units left.
func (t *TicketType) DecreaseAvailable(count int) bool {
	if t.AvailableQuantity < count {
		return false
	}
	t.AvailableQuantity -= count
	return true
}

// IncreaseAvailable returns count units to the pool, clamped at Quantity.
func (t *TicketType) IncreaseAvailable(count int) {
	t.AvailableQuantity += count
	if t.AvailableQuantity > t.Quantity {
		t.AvailableQuantity = t.Quantity
	}
}

type Ticket struct {
	ID           string          `json:"id"`
	EventID      string          `json:"event_id"`
	TicketTypeID string          `json:"ticket_type_id"`
	SeatNumber   string          `json:"seat_number"`
	Price        decimal.Decimal `json:"price"`
	Status       TicketStatus    `json:"status"`
	ReservedBy   string          `json:"reserved_by,omitempty"`
	ReservedAt   *time.Time      `json:"reserved_at,omitempty"`
}

// Reserve marks an available ticket as held by a member.
func (t *Ticket) Reserve(memberID string, now time.Time) bool {
	if t.Status != TicketAvailable {
		return false
	}
	t.Status = TicketReserved
	t.ReservedBy = memberID
	t.ReservedAt = &now
	return true
}

// Confirm marks a reserved ticket as sold.
func (t *Ticket) Confirm() bool {
	if t.Status != TicketReserved {
		return false
	}
	t.Status = TicketSold
	return true
}

// Cancel releases the ticket back to the pool.
func (t *Ticket) Cancel() {
	t.Status = TicketCancelled
	t.ReservedBy = ""
	t.ReservedAt = nil
}
