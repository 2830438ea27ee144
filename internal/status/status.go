package status

import "errors"

var (
	ErrNotFound          = errors.New("status: record not found")
	ErrNotInQueue        = errors.New("queue: member not in queue")
	ErrQueueInactive     = errors.New("queue: queue is not active for this event")
	ErrInsufficientStock = errors.New("stock: insufficient stock")
	ErrLockTimeout       = errors.New("lock: timed out waiting for lock")
	ErrAlreadyAdmitted   = errors.New("queue: member already admitted")
)
