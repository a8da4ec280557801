package storage

import (
	"errors"
	"time"

	"memobot/internal/intent"
)

var (
	ErrNotFound = errors.New("reminder not found")
	ErrDisabled = errors.New("storage disabled")
)

// Config configures storage.
//
// Driver values:
//   - "memory": in-process map, nothing survives a restart
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Status is the reminder lifecycle state.
//
// pending -> done | failed | cancelled; terminal states may re-enter
// pending through an explicit external retry/reschedule.
type Status string

const (
	StatusPending   Status = "pending"
	StatusDone      Status = "done"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether s ends the automatic lifecycle.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed || s == StatusCancelled
}

// Reminder is one scheduled notification row.
type Reminder struct {
	ID            string
	UserID        int64
	Channel       string
	Task          string
	ScheduledAt   time.Time
	Recurrence    intent.Recurrence
	Status        Status
	FailureReason string
	CreatedAt     time.Time
	CompletedAt   time.Time // zero until a terminal transition
}

// NewReminder carries the fields a caller provides on create; id, status
// and timestamps are owned by the store.
type NewReminder struct {
	UserID      int64
	Channel     string
	Task        string
	ScheduledAt time.Time
	Recurrence  intent.Recurrence
}
