package models

import (
	"time"
)

// CommandType is the explicit discriminant for queued ticket commands.
// Dispatch switches on this field; payloads are never type-inspected.
type CommandType string

const (
	CommandReserve   CommandType = "RESERVE"
	CommandConfirm   CommandType = "CONFIRM"
	CommandCancel    CommandType = "CANCEL"
	CommandAdmitNext CommandType = "ADMIT_NEXT"
	CommandRestore   CommandType = "RESTORE"
)

// Command is the tagged union carried through the command worker. Only the
// fields relevant to its Type are set.
type Command struct {
	Type CommandType `json:"type"`

	// RESERVE / ADMIT_NEXT / RESTORE
	EventID      string `json:"event_id,omitempty"`
	TicketTypeID string `json:"ticket_type_id,omitempty"`
	MemberID     string `json:"member_id,omitempty"`
	Quantity     int    `json:"quantity,omitempty"`
	Count        int    `json:"count,omitempty"`

	// CONFIRM / CANCEL
	ReservationID string `json:"reservation_id,omitempty"`
	PaymentID     string `json:"payment_id,omitempty"`
	Reason        string `json:"reason,omitempty"`

	PaymentMethod string    `json:"payment_method,omitempty"`
	RequestedAt   time.Time `json:"requested_at"`
}
