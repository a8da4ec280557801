package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"memobot/internal/eventbus"
	"memobot/internal/intent"
	"memobot/internal/notify"
	"memobot/internal/storage"
	logx "memobot/pkg/logx"
)

// fakeSender records sends and can be scripted to fail.
type fakeSender struct {
	mu       sync.Mutex
	sends    []string
	failures int // fail this many leading calls
	always   error
}

func (f *fakeSender) Send(ctx context.Context, userID int64, channel, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, text)
	if f.always != nil {
		return f.always
	}
	if len(f.sends) <= f.failures {
		return errors.New("transient send failure")
	}
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

func testConfig() Config {
	return Config{
		Workers:   2,
		QueueSize: 16,
		Retry:     RetryPolicy{MaxAttempts: 3, Backoff: 10 * time.Millisecond, MaxBackoff: 40 * time.Millisecond},
	}
}

func startService(t *testing.T, st storage.ReminderStore, sender notify.Sender, bus eventbus.Bus) *Service {
	t.Helper()
	s := New(testConfig(), st, sender, bus, logx.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { s.Stop(context.Background()) })
	return s
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before timeout")
}

func TestDeliverDueReminder(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	sender := &fakeSender{}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	s := startService(t, st, sender, bus)
	ctx := context.Background()

	r, _ := st.CreateReminder(ctx, storage.NewReminder{
		UserID: 1, Channel: "telegram", Task: "call mom",
		ScheduledAt: time.Now().Add(-time.Second), // past due clamps to immediate
	})
	if err := s.Schedule(JobFromReminder(r)); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	waitUntil(t, time.Second, func() bool {
		got, _ := st.GetReminder(ctx, r.ID)
		return got.Status == storage.StatusDone
	})
	if sender.count() != 1 {
		t.Fatalf("sends = %d, want 1", sender.count())
	}

	select {
	case e := <-events:
		if e.Type != eventbus.TypeReminderDispatched {
			t.Fatalf("event type = %s", e.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("no dispatched event")
	}
}

func TestRetryExhaustionMarksFailed(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	sender := &fakeSender{always: errors.New("gateway down")}
	s := startService(t, st, sender, nil)
	ctx := context.Background()

	r, _ := st.CreateReminder(ctx, storage.NewReminder{
		UserID: 1, Task: "x", ScheduledAt: time.Now(),
	})
	_ = s.Schedule(JobFromReminder(r))

	waitUntil(t, 2*time.Second, func() bool {
		got, _ := st.GetReminder(ctx, r.ID)
		return got.Status == storage.StatusFailed
	})

	if sender.count() != 3 {
		t.Fatalf("attempts = %d, want 3", sender.count())
	}
	got, _ := st.GetReminder(ctx, r.ID)
	if got.FailureReason == "" {
		t.Fatal("failure reason is empty")
	}
}

func TestTransientFailureThenSuccess(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	sender := &fakeSender{failures: 1}
	s := startService(t, st, sender, nil)
	ctx := context.Background()

	r, _ := st.CreateReminder(ctx, storage.NewReminder{
		UserID: 1, Task: "x", ScheduledAt: time.Now(),
	})
	_ = s.Schedule(JobFromReminder(r))

	waitUntil(t, 2*time.Second, func() bool {
		got, _ := st.GetReminder(ctx, r.ID)
		return got.Status == storage.StatusDone
	})
	if sender.count() != 2 {
		t.Fatalf("sends = %d, want 2 (one failure, one success)", sender.count())
	}
}

func TestCancelBeforeFire(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	sender := &fakeSender{}
	s := startService(t, st, sender, nil)
	ctx := context.Background()

	r, _ := st.CreateReminder(ctx, storage.NewReminder{
		UserID: 1, Task: "x", Recurrence: intent.Daily,
		ScheduledAt: time.Now().Add(60 * time.Millisecond),
	})
	_ = s.Schedule(JobFromReminder(r))

	ok, err := s.Cancel(ctx, r.ID)
	if err != nil || !ok {
		t.Fatalf("cancel: ok=%v err=%v", ok, err)
	}

	time.Sleep(200 * time.Millisecond)
	if sender.count() != 0 {
		t.Fatalf("sends = %d after cancel, want 0", sender.count())
	}
	got, _ := st.GetReminder(ctx, r.ID)
	if got.Status != storage.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", got.Status)
	}
	// No recurrence sibling either.
	pend, _ := st.PendingBefore(ctx, time.Now().AddDate(1, 0, 0))
	if len(pend) != 0 {
		t.Fatalf("pending rows after cancel = %d, want 0", len(pend))
	}
}

func TestAttemptIsIdempotent(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	sender := &fakeSender{}
	s := New(testConfig(), st, sender, nil, logx.Nop())
	ctx := context.Background()

	r, _ := st.CreateReminder(ctx, storage.NewReminder{
		UserID: 1, Task: "x", ScheduledAt: time.Now(),
	})
	job := JobFromReminder(r)

	// Two pulls of the same job: the second sees a non-pending row and
	// no-ops without sending.
	if err := s.attempt(ctx, job); err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	if err := s.attempt(ctx, job); err != nil {
		t.Fatalf("second attempt: %v", err)
	}
	if sender.count() != 1 {
		t.Fatalf("sends = %d, want 1", sender.count())
	}
	got, _ := st.GetReminder(ctx, r.ID)
	if got.Status != storage.StatusDone {
		t.Fatalf("status = %s, want done", got.Status)
	}
}

func TestAttemptForMissingReminderIsNoop(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	sender := &fakeSender{}
	s := New(testConfig(), st, sender, nil, logx.Nop())

	err := s.attempt(context.Background(), Job{ReminderID: "gone"})
	if err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if sender.count() != 0 {
		t.Fatalf("sends = %d, want 0", sender.count())
	}
}

// flakyStore fails reads a few times to exercise the store-error retry path.
type flakyStore struct {
	storage.ReminderStore
	mu       sync.Mutex
	getFails int
}

func (f *flakyStore) GetReminder(ctx context.Context, id string) (storage.Reminder, error) {
	f.mu.Lock()
	if f.getFails > 0 {
		f.getFails--
		f.mu.Unlock()
		return storage.Reminder{}, errors.New("store unavailable")
	}
	f.mu.Unlock()
	return f.ReminderStore.GetReminder(ctx, id)
}

func TestStoreErrorRetriedLikeSendFailure(t *testing.T) {
	t.Parallel()
	mem := storage.NewMemory()
	st := &flakyStore{ReminderStore: mem, getFails: 1}
	sender := &fakeSender{}
	s := startService(t, st, sender, nil)
	ctx := context.Background()

	r, _ := mem.CreateReminder(ctx, storage.NewReminder{
		UserID: 1, Task: "x", ScheduledAt: time.Now(),
	})
	_ = s.Schedule(JobFromReminder(r))

	waitUntil(t, 2*time.Second, func() bool {
		got, _ := mem.GetReminder(ctx, r.ID)
		return got.Status == storage.StatusDone
	})
	if sender.count() != 1 {
		t.Fatalf("sends = %d, want 1", sender.count())
	}
}

func TestScheduleSupersedesPriorTimer(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	sender := &fakeSender{}
	s := startService(t, st, sender, nil)
	ctx := context.Background()

	r, _ := st.CreateReminder(ctx, storage.NewReminder{
		UserID: 1, Task: "x", ScheduledAt: time.Now().Add(time.Hour),
	})
	_ = s.Schedule(JobFromReminder(r))

	// Reschedule to fire immediately; the hour-long timer must be replaced,
	// not doubled.
	job := JobFromReminder(r)
	job.Due = time.Now()
	_ = s.Schedule(job)

	waitUntil(t, time.Second, func() bool {
		got, _ := st.GetReminder(ctx, r.ID)
		return got.Status == storage.StatusDone
	})
	time.Sleep(50 * time.Millisecond)
	if sender.count() != 1 {
		t.Fatalf("sends = %d, want exactly 1", sender.count())
	}
}

func TestCompleteBeforeFire(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	sender := &fakeSender{}
	s := startService(t, st, sender, nil)
	ctx := context.Background()

	r, _ := st.CreateReminder(ctx, storage.NewReminder{
		UserID: 1, Task: "x", ScheduledAt: time.Now().Add(60 * time.Millisecond),
	})
	_ = s.Schedule(JobFromReminder(r))

	ok, err := s.Complete(ctx, r.ID)
	if err != nil || !ok {
		t.Fatalf("complete: ok=%v err=%v", ok, err)
	}
	time.Sleep(150 * time.Millisecond)
	if sender.count() != 0 {
		t.Fatalf("sends = %d after early completion, want 0", sender.count())
	}
	got, _ := st.GetReminder(ctx, r.ID)
	if got.Status != storage.StatusDone {
		t.Fatalf("status = %s, want done", got.Status)
	}
}

func TestRescheduleRearmsFailedReminder(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	sender := &fakeSender{}
	s := startService(t, st, sender, nil)
	ctx := context.Background()

	r, _ := st.CreateReminder(ctx, storage.NewReminder{
		UserID: 1, Task: "x", ScheduledAt: time.Now().Add(-time.Hour),
	})
	_ = st.SetStatus(ctx, r.ID, storage.StatusFailed, "gateway down")

	if err := s.Reschedule(ctx, r.ID, time.Now()); err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	waitUntil(t, time.Second, func() bool {
		got, _ := st.GetReminder(ctx, r.ID)
		return got.Status == storage.StatusDone
	})
	if sender.count() != 1 {
		t.Fatalf("sends = %d, want 1", sender.count())
	}
}

func TestRecurringReminderSpawnsSibling(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	sender := &fakeSender{}
	s := startService(t, st, sender, nil)
	ctx := context.Background()

	due := time.Now().Add(-time.Second)
	r, _ := st.CreateReminder(ctx, storage.NewReminder{
		UserID: 1, Task: "vitamins", Recurrence: intent.Daily, ScheduledAt: due,
	})
	_ = s.Schedule(JobFromReminder(r))

	waitUntil(t, time.Second, func() bool {
		got, _ := st.GetReminder(ctx, r.ID)
		return got.Status == storage.StatusDone
	})

	waitUntil(t, time.Second, func() bool {
		pend, _ := st.ListPending(ctx, 1)
		return len(pend) == 1
	})
	pend, _ := st.ListPending(ctx, 1)
	sib := pend[0]
	if sib.ID == r.ID {
		t.Fatal("recurrence mutated the original instead of creating a sibling")
	}
	if sib.Task != "vitamins" || sib.Recurrence != intent.Daily {
		t.Fatalf("sibling = %+v", sib)
	}
	if !sib.ScheduledAt.Equal(due.UTC().AddDate(0, 0, 1)) {
		t.Fatalf("sibling due = %v, want %v", sib.ScheduledAt, due.UTC().AddDate(0, 0, 1))
	}
}

func TestSweepArmsPendingReminders(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	ctx := context.Background()
	// Created before Start: simulates rows surviving a restart.
	r, _ := st.CreateReminder(ctx, storage.NewReminder{
		UserID: 1, Task: "x", ScheduledAt: time.Now().Add(-time.Minute),
	})

	sender := &fakeSender{}
	startService(t, st, sender, nil)

	waitUntil(t, time.Second, func() bool {
		got, _ := st.GetReminder(ctx, r.ID)
		return got.Status == storage.StatusDone
	})
	if sender.count() != 1 {
		t.Fatalf("sends = %d, want 1", sender.count())
	}
}
