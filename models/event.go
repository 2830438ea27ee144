package models

import (
	"time"
)

type Event struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Venue          string    `json:"venue"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Status         string    `json:"status"` // draft, published, started, ended
	QueueActive    bool      `json:"queue_active"`
	MaxActiveUsers int       `json:"max_active_users"`
}
