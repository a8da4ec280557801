package resolver

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"memobot/internal/intent"
	"memobot/internal/intent/heuristic"
	"memobot/pkg/logx"
)

// fakeAdapter is a scriptable provider for chain tests.
type fakeAdapter struct {
	name  string
	res   intent.Result
	err   error
	delay time.Duration
	calls atomic.Int64
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Parse(ctx context.Context, message, timezone string) (intent.Result, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return intent.Result{}, ctx.Err()
		}
	}
	return f.res, f.err
}

func createResult(task string) intent.Result {
	return intent.Result{
		Intent:      intent.Create,
		Task:        task,
		ScheduledAt: time.Now().Add(time.Hour),
		Recurrence:  intent.None,
	}
}

func TestFastPathSkipsProviders(t *testing.T) {
	t.Parallel()
	p := &fakeAdapter{name: "primary", res: createResult("x")}
	r := New(logx.Nop(), Entry{Adapter: p})

	for msg, want := range map[string]intent.Intent{
		"list":   intent.List,
		" HELP ": intent.Help,
		"feito":  intent.Done,
		"borrar": intent.Erase,
	} {
		got := r.Resolve(context.Background(), msg, "UTC")
		if got.Intent != want {
			t.Errorf("Resolve(%q) = %s, want %s", msg, got.Intent, want)
		}
	}
	if n := p.calls.Load(); n != 0 {
		t.Fatalf("provider invoked %d times on fast-path messages", n)
	}
}

func TestFirstSuccessShortCircuits(t *testing.T) {
	t.Parallel()
	p1 := &fakeAdapter{name: "primary", res: createResult("from p1")}
	p2 := &fakeAdapter{name: "secondary", res: createResult("from p2")}
	r := New(logx.Nop(), Entry{Adapter: p1}, Entry{Adapter: p2})

	got := r.Resolve(context.Background(), "remind me to x at 5pm", "UTC")
	if got.Task != "from p1" {
		t.Fatalf("Task = %q, want from p1", got.Task)
	}
	if p2.calls.Load() != 0 {
		t.Fatal("secondary invoked although primary succeeded")
	}
}

func TestTimeoutFallsThrough(t *testing.T) {
	t.Parallel()
	slow := &fakeAdapter{name: "primary", res: createResult("late"), delay: 500 * time.Millisecond}
	fast := &fakeAdapter{name: "secondary", res: createResult("from p2")}
	r := New(logx.Nop(),
		Entry{Adapter: slow, Timeout: 20 * time.Millisecond},
		Entry{Adapter: fast, Timeout: 20 * time.Millisecond},
	)

	start := time.Now()
	got := r.Resolve(context.Background(), "remind me to x at 5pm", "UTC")
	if got.Task != "from p2" {
		t.Fatalf("Task = %q, want from p2", got.Task)
	}
	if elapsed := time.Since(start); elapsed > 400*time.Millisecond {
		t.Fatalf("resolution waited for the slow provider: %v", elapsed)
	}
}

func TestUnknownTreatedAsFailure(t *testing.T) {
	t.Parallel()
	p1 := &fakeAdapter{name: "primary", res: intent.Result{Intent: intent.Unknown}}
	p2 := &fakeAdapter{name: "secondary", res: createResult("from p2")}
	r := New(logx.Nop(), Entry{Adapter: p1}, Entry{Adapter: p2})

	got := r.Resolve(context.Background(), "remind me to x at 5pm", "UTC")
	if got.Task != "from p2" {
		t.Fatalf("Task = %q, want from p2", got.Task)
	}
	if p1.calls.Load() != 1 || p2.calls.Load() != 1 {
		t.Fatalf("calls = %d/%d, want 1/1", p1.calls.Load(), p2.calls.Load())
	}
}

func TestPartialCreateFromProviderFallsThrough(t *testing.T) {
	t.Parallel()
	// A provider emitting Create without a time violates the invariant and
	// must not short-circuit the chain.
	p1 := &fakeAdapter{name: "primary", res: intent.Result{Intent: intent.Create, Task: "x"}}
	p2 := &fakeAdapter{name: "secondary", res: createResult("from p2")}
	r := New(logx.Nop(), Entry{Adapter: p1}, Entry{Adapter: p2})

	got := r.Resolve(context.Background(), "remind me to x at 5pm", "UTC")
	if got.Task != "from p2" {
		t.Fatalf("Task = %q, want from p2", got.Task)
	}
}

func TestAllProvidersFailFallsBackToHeuristic(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	chain := []Entry{
		{Adapter: &fakeAdapter{name: "primary", err: boom}},
		{Adapter: &fakeAdapter{name: "secondary", err: boom}},
		{Adapter: &fakeAdapter{name: "tertiary", res: intent.Result{Intent: intent.Unknown}}},
	}
	r := New(logx.Nop(), chain...)
	fixed := time.Date(2025, time.March, 4, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	msg := "remind me to call mom tomorrow at 7pm"
	got := r.Resolve(context.Background(), msg, "UTC")
	want := heuristic.Parse(msg, "UTC", fixed)
	if got != want {
		t.Fatalf("Resolve = %+v, want heuristic result %+v", got, want)
	}
}

func TestResolveNeverPanicsOrErrors(t *testing.T) {
	t.Parallel()
	r := New(logx.Nop()) // empty chain
	for _, msg := range []string{"", "garbage", "remind me", "list", "remind me to x at 25pm"} {
		got := r.Resolve(context.Background(), msg, "")
		switch got.Intent {
		case intent.Create, intent.List, intent.Done, intent.Help,
			intent.Billing, intent.Erase, intent.Timezone, intent.Unknown:
		default:
			t.Fatalf("Resolve(%q) produced unexpected intent %q", msg, got.Intent)
		}
	}
}
