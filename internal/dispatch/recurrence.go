package dispatch

import (
	"context"
	"time"

	"memobot/internal/eventbus"
	"memobot/internal/intent"
	"memobot/internal/storage"
	logx "memobot/pkg/logx"
)

// NextOccurrence computes the follow-up instant for a recurrence rule.
// Monthly addition is calendar-aware: Jan 31 recurs on the last valid day
// of February, not on Mar 2/3 the way naive AddDate would.
func NextOccurrence(at time.Time, rec intent.Recurrence) time.Time {
	switch rec {
	case intent.Daily:
		return at.AddDate(0, 0, 1)
	case intent.Weekly:
		return at.AddDate(0, 0, 7)
	case intent.Monthly:
		return addMonthClamped(at)
	default:
		return time.Time{}
	}
}

func addMonthClamped(at time.Time) time.Time {
	y, m, d := at.Date()
	first := time.Date(y, m+1, 1, at.Hour(), at.Minute(), at.Second(), at.Nanosecond(), at.Location())
	if last := lastDayOfMonth(first); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d,
		at.Hour(), at.Minute(), at.Second(), at.Nanosecond(), at.Location())
}

func lastDayOfMonth(t time.Time) int {
	// Day 0 of the next month is the last day of t's month.
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}

// recur creates the next pending sibling for a just-delivered recurring
// reminder and arms its timer. The delivered row stays done: recurrence
// produces siblings, never mutated originals, so the audit trail holds.
// Failures here are logged, not retried; the delivery itself already
// succeeded.
func (s *Service) recur(ctx context.Context, r storage.Reminder) {
	next := NextOccurrence(r.ScheduledAt, r.Recurrence)
	if next.IsZero() {
		return
	}

	sibling, err := s.store.CreateReminder(ctx, storage.NewReminder{
		UserID:      r.UserID,
		Channel:     r.Channel,
		Task:        r.Task,
		ScheduledAt: next,
		Recurrence:  r.Recurrence,
	})
	if err != nil {
		s.log.Error("failed to create recurrence sibling",
			logx.String("reminder_id", r.ID), logx.Err(err))
		return
	}
	if err := s.Schedule(JobFromReminder(sibling)); err != nil {
		s.log.Warn("recurrence sibling not armed; sweep will pick it up",
			logx.String("reminder_id", sibling.ID), logx.Err(err))
	}

	s.log.Debug("recurring reminder re-enqueued",
		logx.String("reminder_id", r.ID),
		logx.String("next_id", sibling.ID),
		logx.Time("next_at", next))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{
			Type: eventbus.TypeReminderRecurred,
			Data: map[string]any{"reminder_id": r.ID, "next_id": sibling.ID},
		})
	}
}
