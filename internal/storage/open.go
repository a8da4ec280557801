package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "memobot/pkg/logx"
)

// ReminderStore is the persistence API the core depends on.
//
// Transition is the linearizable status mutation: it only succeeds when the
// row is still in the expected state, which is what makes concurrent
// dispatch idempotent.
type ReminderStore interface {
	CreateReminder(ctx context.Context, n NewReminder) (Reminder, error)
	GetReminder(ctx context.Context, id string) (Reminder, error)
	ListPending(ctx context.Context, userID int64) ([]Reminder, error)
	PendingBefore(ctx context.Context, cutoff time.Time) ([]Reminder, error)
	Transition(ctx context.Context, id string, from, to Status, reason string) (bool, error)
	SetStatus(ctx context.Context, id string, to Status, reason string) error
	Reschedule(ctx context.Context, id string, at time.Time) error

	UserTimezone(ctx context.Context, userID int64) (string, error)
	SetUserTimezone(ctx context.Context, userID int64, tz string) error
	EraseUser(ctx context.Context, userID int64) error

	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (ReminderStore, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "memory":
		return NewMemory(), nil
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
