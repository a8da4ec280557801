package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"memobot/internal/intent"
)

// Memory is a map-backed ReminderStore with the same transition semantics
// as the SQLite backend. Used by tests and the "memory" driver.
type Memory struct {
	mu        sync.Mutex
	reminders map[string]Reminder
	timezones map[int64]string
}

func NewMemory() *Memory {
	return &Memory{
		reminders: map[string]Reminder{},
		timezones: map[int64]string{},
	}
}

func (m *Memory) CreateReminder(ctx context.Context, n NewReminder) (Reminder, error) {
	rec := n.Recurrence
	if rec == "" {
		rec = intent.None
	}
	r := Reminder{
		ID:          uuid.NewString(),
		UserID:      n.UserID,
		Channel:     n.Channel,
		Task:        n.Task,
		ScheduledAt: n.ScheduledAt.UTC(),
		Recurrence:  rec,
		Status:      StatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	m.mu.Lock()
	m.reminders[r.ID] = r
	m.mu.Unlock()
	return r, nil
}

func (m *Memory) GetReminder(ctx context.Context, id string) (Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reminders[id]
	if !ok {
		return Reminder{}, ErrNotFound
	}
	return r, nil
}

func (m *Memory) ListPending(ctx context.Context, userID int64) ([]Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Reminder
	for _, r := range m.reminders {
		if r.UserID == userID && r.Status == StatusPending {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (m *Memory) PendingBefore(ctx context.Context, cutoff time.Time) ([]Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Reminder
	for _, r := range m.reminders {
		if r.Status == StatusPending && !r.ScheduledAt.After(cutoff) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (m *Memory) Transition(ctx context.Context, id string, from, to Status, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reminders[id]
	if !ok {
		return false, ErrNotFound
	}
	if r.Status != from {
		return false, nil
	}
	m.apply(&r, to, reason)
	m.reminders[id] = r
	return true, nil
}

func (m *Memory) SetStatus(ctx context.Context, id string, to Status, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reminders[id]
	if !ok {
		return ErrNotFound
	}
	m.apply(&r, to, reason)
	m.reminders[id] = r
	return nil
}

func (m *Memory) Reschedule(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reminders[id]
	if !ok {
		return ErrNotFound
	}
	r.ScheduledAt = at.UTC()
	m.apply(&r, StatusPending, "")
	m.reminders[id] = r
	return nil
}

func (m *Memory) apply(r *Reminder, to Status, reason string) {
	r.Status = to
	r.FailureReason = reason
	if to.Terminal() {
		r.CompletedAt = time.Now().UTC()
	} else {
		r.CompletedAt = time.Time{}
	}
}

func (m *Memory) UserTimezone(ctx context.Context, userID int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timezones[userID], nil
}

func (m *Memory) SetUserTimezone(ctx context.Context, userID int64, tz string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timezones[userID] = tz
	return nil
}

func (m *Memory) EraseUser(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.reminders {
		if r.UserID == userID {
			delete(m.reminders, id)
		}
	}
	delete(m.timezones, userID)
	return nil
}

func (m *Memory) Close() error { return nil }
