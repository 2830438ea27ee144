package models

import (
	"time"
)

type EntryStatus string

const (
	EntryWaiting   EntryStatus = "WAITING"
	EntryNotified  EntryStatus = "NOTIFIED"
	EntryEntered   EntryStatus = "ENTERED"
	EntryExpired   EntryStatus = "EXPIRED"
	EntryCompleted EntryStatus = "COMPLETED"
)

// QueueEntry is the durable record of a member's trip through the waiting
// room. The live ordering lives in Redis; this record is never deleted, only
// soft-transitioned until it reaches a terminal state.
type QueueEntry struct {
	ID           string      `json:"id"`
	EventID      string      `json:"event_id"`
	MemberID     string      `json:"member_id"`
	EnqueueScore int64       `json:"enqueue_score"`
	Status       EntryStatus `json:"status"`
	JoinedAt     time.Time   `json:"joined_at"`
	NotifiedAt   *time.Time  `json:"notified_at,omitempty"`
	EnteredAt    *time.Time  `json:"entered_at,omitempty"`
	ExpiresAt    *time.Time  `json:"expires_at,omitempty"`
}

// Notify transitions WAITING -> NOTIFIED and stamps the admission TTL.
func (e *QueueEntry) Notify(now time.Time, ttl time.Duration) {
	e.Status = EntryNotified
	e.NotifiedAt = &now
	deadline := now.Add(ttl)
	e.ExpiresAt = &deadline
}

// Enter transitions NOTIFIED -> ENTERED.
func (e *QueueEntry) Enter(now time.Time) {
	e.Status = EntryEntered
	e.EnteredAt = &now
}

// Expire transitions to the terminal EXPIRED state.
func (e *QueueEntry) Expire() {
	e.Status = EntryExpired
}

// IsExpired reports whether the admission TTL has lapsed. Entries without a
// deadline never expire.
func (e *QueueEntry) IsExpired(now time.Time) bool {
	if e.ExpiresAt == nil {
		return false
	}
	return e.ExpiresAt.Before(now)
}

// QueuePosition is the 1-based rank of a member plus the documented linear
// wait estimate (position x fixed seconds, intentionally naive).
type QueuePosition struct {
	EventID              string    `json:"event_id"`
	MemberID             string    `json:"member_id"`
	Position             int       `json:"position"`
	EstimatedWaitSeconds int64     `json:"estimated_wait_seconds"`
	Timestamp            time.Time `json:"timestamp"`
}

// QueueStatusInfo is a lock-free snapshot of one event's waiting room. The
// active count may lag until the next reaper sweep.
type QueueStatusInfo struct {
	EventID        string    `json:"event_id"`
	TotalWaiting   int64     `json:"total_waiting"`
	ActiveUsers    int64     `json:"active_users"`
	MaxActiveUsers int       `json:"max_active_users"`
	QueueActive    bool      `json:"queue_active"`
	Timestamp      time.Time `json:"timestamp"`
}
