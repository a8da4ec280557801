package dispatch

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"memobot/internal/eventbus"
	"memobot/internal/notify"
	"memobot/internal/storage"
	logx "memobot/pkg/logx"
)

type Service struct {
	mu sync.Mutex

	cfg    Config
	log    logx.Logger
	store  storage.ReminderStore
	sender notify.Sender
	bus    eventbus.Bus

	queue    chan Job
	stopCh   chan struct{}
	runCtx   context.Context
	cancel   context.CancelFunc
	workerWG sync.WaitGroup
	cr       *cron.Cron

	tmu    sync.Mutex
	timers map[string]*time.Timer
}

func New(cfg Config, store storage.ReminderStore, sender notify.Sender, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg.withDefaults(),
		log:    log,
		store:  store,
		sender: sender,
		bus:    bus,
		timers: map[string]*time.Timer{},
	}
}

// Start launches the worker pool, re-arms every pending reminder from the
// store and begins the periodic sweep.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.stopCh != nil {
		s.mu.Unlock()
		return nil
	}
	s.stopCh = make(chan struct{})
	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.queue = make(chan Job, s.cfg.QueueSize)

	runCtx := s.runCtx
	stopCh := s.stopCh
	queue := s.queue

	s.workerWG.Add(s.cfg.Workers)
	for i := 0; i < s.cfg.Workers; i++ {
		idx := i
		go func() {
			defer s.workerWG.Done()
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("panic in dispatch worker",
						logx.Int("worker", idx), logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())))
				}
			}()
			s.worker(runCtx, stopCh, queue)
		}()
	}

	s.cr = cron.New()
	_, err := s.cr.AddFunc("@every "+s.cfg.SweepEvery.String(), func() {
		s.sweep(runCtx)
	})
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.cr.Start()

	s.sweep(runCtx)
	s.log.Info("dispatch started",
		logx.Int("workers", s.cfg.Workers),
		logx.Duration("sweep_every", s.cfg.SweepEvery))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	stopCh := s.stopCh
	cancel := s.cancel
	cr := s.cr
	s.stopCh = nil
	s.cancel = nil
	s.cr = nil
	s.queue = nil
	s.mu.Unlock()

	close(stopCh)
	if cancel != nil {
		cancel()
	}
	if cr != nil {
		<-cr.Stop().Done()
	}

	s.tmu.Lock()
	for _, t := range s.timers {
		_ = t.Stop()
	}
	s.timers = map[string]*time.Timer{}
	s.tmu.Unlock()

	done := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	s.log.Info("dispatch stopped")
}

// Schedule arms (or re-arms) the timer for one reminder. The delay clamps
// at zero, so past-due instants dispatch immediately. Any previously armed
// timer for the same id is superseded, keeping at most one active job per
// reminder.
func (s *Service) Schedule(job Job) error {
	s.mu.Lock()
	running := s.stopCh != nil
	s.mu.Unlock()
	if !running {
		return ErrStopped
	}

	delay := time.Until(job.Due)
	if delay < 0 {
		delay = 0
	}

	s.tmu.Lock()
	defer s.tmu.Unlock()
	if old, ok := s.timers[job.ReminderID]; ok {
		_ = old.Stop()
	}
	id := job.ReminderID
	s.timers[id] = time.AfterFunc(delay, func() {
		s.tmu.Lock()
		delete(s.timers, id)
		s.tmu.Unlock()
		s.enqueue(job)
	})
	s.log.Debug("reminder scheduled",
		logx.String("reminder_id", id), logx.Duration("delay", delay))
	return nil
}

// Cancel disarms the timer and moves a still-pending reminder to
// cancelled. A reminder already picked up by a worker is left to the
// worker's own status guard.
func (s *Service) Cancel(ctx context.Context, reminderID string) (bool, error) {
	s.tmu.Lock()
	if t, ok := s.timers[reminderID]; ok {
		_ = t.Stop()
		delete(s.timers, reminderID)
	}
	s.tmu.Unlock()

	ok, err := s.store.Transition(ctx, reminderID, storage.StatusPending, storage.StatusCancelled, "")
	if err != nil {
		return false, err
	}
	if ok && s.bus != nil {
		s.bus.Publish(eventbus.Event{
			Type: eventbus.TypeReminderCancelled,
			Data: map[string]string{"reminder_id": reminderID},
		})
	}
	return ok, nil
}

// Complete disarms the timer and moves a still-pending reminder straight
// to done, for users finishing a task before the reminder fires.
func (s *Service) Complete(ctx context.Context, reminderID string) (bool, error) {
	s.tmu.Lock()
	if t, ok := s.timers[reminderID]; ok {
		_ = t.Stop()
		delete(s.timers, reminderID)
	}
	s.tmu.Unlock()

	return s.store.Transition(ctx, reminderID, storage.StatusPending, storage.StatusDone, "")
}

// Reschedule moves a reminder (terminal or pending) back to pending at a
// new instant and arms its timer. This is the only path that re-enters
// pending from a terminal state.
func (s *Service) Reschedule(ctx context.Context, reminderID string, at time.Time) error {
	if err := s.store.Reschedule(ctx, reminderID, at); err != nil {
		return err
	}
	r, err := s.store.GetReminder(ctx, reminderID)
	if err != nil {
		return err
	}
	return s.Schedule(JobFromReminder(r))
}

func (s *Service) enqueue(job Job) {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		return
	}
	select {
	case q <- job:
	default:
		// The sweeper re-arms the reminder on its next pass.
		s.log.Warn("dispatch queue full, deferring job",
			logx.String("reminder_id", job.ReminderID))
	}
}

// sweep re-arms timers for every pending reminder due within the horizon.
// It runs at startup and on the cron period, which is what recovers
// reminders after a restart and re-queues anything dropped under load.
func (s *Service) sweep(ctx context.Context) {
	cutoff := time.Now().Add(s.cfg.SweepHorizon)
	due, err := s.store.PendingBefore(ctx, cutoff)
	if err != nil {
		s.log.Warn("sweep failed", logx.Err(err))
		return
	}
	for _, r := range due {
		if err := s.Schedule(JobFromReminder(r)); err != nil {
			return
		}
	}
	if len(due) > 0 {
		s.log.Debug("sweep armed reminders", logx.Int("count", len(due)))
	}
}

// JobFromReminder builds the dispatch job for a stored reminder.
func JobFromReminder(r storage.Reminder) Job {
	return Job{
		ReminderID: r.ID,
		UserID:     r.UserID,
		Channel:    r.Channel,
		Task:       r.Task,
		Due:        r.ScheduledAt,
	}
}
