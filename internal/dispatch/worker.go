package dispatch

import (
	"context"
	"errors"
	"time"

	"memobot/internal/eventbus"
	"memobot/internal/intent"
	"memobot/internal/storage"
	logx "memobot/pkg/logx"
)

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan Job) {
	for {
		// Fast-exit check so a closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case job := <-queue:
			s.execOne(ctx, stopCh, job)
		}
	}
}

// execOne drives the bounded retry loop for one due job and marks the
// reminder failed once attempts are exhausted.
func (s *Service) execOne(ctx context.Context, stopCh <-chan struct{}, job Job) {
	start := time.Now()
	p := s.cfg.Retry

	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err = s.attempt(ctx, job)
		if err == nil {
			s.log.Debug("job finished",
				logx.String("reminder_id", job.ReminderID),
				logx.Int("attempts", attempt),
				logx.Duration("took", time.Since(start)))
			return
		}
		if attempt >= p.MaxAttempts {
			break
		}

		delay := backoffDelay(p, attempt)
		s.log.Warn("delivery attempt failed, retrying",
			logx.String("reminder_id", job.ReminderID),
			logx.Int("attempt", attempt),
			logx.Duration("delay", delay),
			logx.Err(err))
		tmr := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			if !tmr.Stop() {
				<-tmr.C
			}
			return
		case <-stopCh:
			if !tmr.Stop() {
				<-tmr.C
			}
			return
		case <-tmr.C:
		}
	}

	s.exhaust(ctx, job, err)
}

// attempt is one delivery try: re-fetch, guard, send, transition, recur.
// A nil return either delivered the reminder or established that nothing
// needed doing; any error is retryable.
func (s *Service) attempt(ctx context.Context, job Job) error {
	r, err := s.store.GetReminder(ctx, job.ReminderID)
	if errors.Is(err, storage.ErrNotFound) {
		s.log.Debug("job for missing reminder", logx.String("reminder_id", job.ReminderID))
		return nil
	}
	if err != nil {
		// Store unavailable: retryable, never swallowed.
		return err
	}
	// Idempotency guard: the read sits immediately before the send, and the
	// transition below re-checks the status atomically.
	if r.Status != storage.StatusPending {
		return nil
	}

	if err := s.sender.Send(ctx, r.UserID, r.Channel, "⏰ "+r.Task); err != nil {
		return err
	}

	ok, err := s.store.Transition(ctx, r.ID, storage.StatusPending, storage.StatusDone, "")
	if err != nil {
		return err
	}
	if !ok {
		// Lost the race against a cancel or another worker; their outcome
		// stands and no recurrence is spawned here.
		return nil
	}

	if s.bus != nil {
		s.bus.Publish(eventbus.Event{
			Type: eventbus.TypeReminderDispatched,
			Data: map[string]any{"reminder_id": r.ID, "user_id": r.UserID},
		})
	}

	if r.Recurrence != intent.None {
		s.recur(ctx, r)
	}
	return nil
}

// exhaust records the terminal failure; the row stays visible for manual
// inspection and external retry.
func (s *Service) exhaust(ctx context.Context, job Job, cause error) {
	reason := "delivery failed"
	if cause != nil {
		reason = cause.Error()
	}
	ok, err := s.store.Transition(ctx, job.ReminderID, storage.StatusPending, storage.StatusFailed, reason)
	if err != nil {
		s.log.Error("failed to mark reminder failed",
			logx.String("reminder_id", job.ReminderID), logx.Err(err))
		return
	}
	if !ok {
		return
	}
	s.log.Warn("reminder failed after exhausting retries",
		logx.String("reminder_id", job.ReminderID),
		logx.Int("attempts", s.cfg.Retry.MaxAttempts),
		logx.String("reason", reason))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{
			Type: eventbus.TypeReminderFailed,
			Data: map[string]any{"reminder_id": job.ReminderID, "reason": reason},
		})
	}
}
