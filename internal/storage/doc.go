// Package storage persists reminders and per-user settings.
//
// The dispatch engine only depends on the ReminderStore interface; backends
// are selected by config (memory for tests and dev, sqlite for real runs).
package storage
