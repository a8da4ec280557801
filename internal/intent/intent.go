// Package intent defines the canonical result of classifying a user message.
//
// Every producer (NLU provider adapter, heuristic parser) normalizes into
// this one shape at its boundary, so consumers never branch on where a
// result came from.
package intent

import (
	"strings"
	"time"
)

// Intent is the classified purpose of a user message.
type Intent string

const (
	Create   Intent = "create"
	List     Intent = "list"
	Done     Intent = "done"
	Help     Intent = "help"
	Billing  Intent = "billing"
	Erase    Intent = "erase"
	Timezone Intent = "timezone"
	Unknown  Intent = "unknown"
)

// Recurrence is the repeat rule attached to a reminder.
type Recurrence string

const (
	None    Recurrence = "none"
	Daily   Recurrence = "daily"
	Weekly  Recurrence = "weekly"
	Monthly Recurrence = "monthly"
)

// ParseRecurrence maps free-form provider spellings onto the enum.
// Anything unrecognized is None.
func ParseRecurrence(s string) Recurrence {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "daily", "day", "every day", "everyday":
		return Daily
	case "weekly", "week", "every week":
		return Weekly
	case "monthly", "month", "every month":
		return Monthly
	default:
		return None
	}
}

// Result is the canonical intent union. Which fields are meaningful depends
// on Intent:
//
//	Create:   Task, ScheduledAt (UTC), Recurrence
//	Done:     Query (optional)
//	Timezone: Timezone
//
// The rest carry no payload.
type Result struct {
	Intent      Intent
	Task        string
	ScheduledAt time.Time
	Recurrence  Recurrence
	Query       string
	Timezone    string
}

// Valid reports whether the result respects the Create invariant: a Create
// must carry both a non-empty task and a usable instant. Producers emit
// Unknown instead of a partially populated Create.
func (r Result) Valid() bool {
	if r.Intent != Create {
		return true
	}
	return strings.TrimSpace(r.Task) != "" && !r.ScheduledAt.IsZero()
}

// Normalize downgrades an invalid Create to Unknown and defaults the
// recurrence. Adapters call this last before returning.
func (r Result) Normalize() Result {
	if r.Recurrence == "" {
		r.Recurrence = None
	}
	if !r.Valid() {
		return Result{Intent: Unknown}
	}
	if r.Intent == Create {
		r.Task = strings.TrimSpace(r.Task)
		r.ScheduledAt = r.ScheduledAt.UTC()
	}
	return r
}
