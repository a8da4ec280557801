// Package app wires intent resolution to the reminder store and dispatch
// engine. It is transport-agnostic: adapters feed it raw text and relay the
// returned reply.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"memobot/internal/dispatch"
	"memobot/internal/eventbus"
	"memobot/internal/intent"
	"memobot/internal/storage"
	logx "memobot/pkg/logx"
)

const (
	helpText = "I can schedule reminders for you.\n\n" +
		"Just tell me what and when, e.g.:\n" +
		"  remind me to call mom tomorrow at 7pm\n" +
		"  remind me in 20 minutes to check the oven\n" +
		"  remind me daily at 8am to take vitamins\n\n" +
		"Commands:\n" +
		"  list - show pending reminders\n" +
		"  done - mark a reminder completed\n" +
		"  timezone <IANA zone> - set your timezone\n" +
		"  erase - delete all your data\n" +
		"  billing - plan info"

	billingText = "You are on the free plan: unlimited reminders, " +
		"best-effort delivery. Paid plans are not available yet."

	unknownText = "Sorry, I didn't catch that. Tell me what to remind " +
		"you about and when, or send \"help\" for examples."

	timeFormat = "Mon, 02 Jan 2006 15:04 MST"
)

// Resolver is the part of the intent pipeline the app depends on.
type Resolver interface {
	Resolve(ctx context.Context, message, timezone string) intent.Result
}

type Config struct {
	// DefaultTimezone applies when the user has not set one (default UTC).
	DefaultTimezone string
}

type App struct {
	cfg      Config
	log      logx.Logger
	store    storage.ReminderStore
	resolver Resolver
	disp     *dispatch.Service
	bus      eventbus.Bus
}

func New(cfg Config, store storage.ReminderStore, res Resolver, disp *dispatch.Service, bus eventbus.Bus, log logx.Logger) *App {
	if cfg.DefaultTimezone == "" {
		cfg.DefaultTimezone = "UTC"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &App{cfg: cfg, log: log, store: store, resolver: res, disp: disp, bus: bus}
}

// HandleMessage resolves one inbound message and executes the resulting
// intent. The returned string is the reply for the user; it is never empty.
func (a *App) HandleMessage(ctx context.Context, userID int64, channel, text string) (string, error) {
	tz := a.userTimezone(ctx, userID)
	res := a.resolver.Resolve(ctx, text, tz)

	a.log.Debug("message resolved",
		logx.Int64("user_id", userID),
		logx.String("intent", string(res.Intent)))

	switch res.Intent {
	case intent.Create:
		return a.create(ctx, userID, channel, res, tz)
	case intent.List:
		return a.list(ctx, userID, tz)
	case intent.Done:
		return a.done(ctx, userID, res.Query, tz)
	case intent.Help:
		return helpText, nil
	case intent.Billing:
		return billingText, nil
	case intent.Erase:
		return a.erase(ctx, userID)
	case intent.Timezone:
		return a.setTimezone(ctx, userID, res.Timezone)
	default:
		return unknownText, nil
	}
}

func (a *App) userTimezone(ctx context.Context, userID int64) string {
	if a.store == nil {
		return a.cfg.DefaultTimezone
	}
	tz, err := a.store.UserTimezone(ctx, userID)
	if err != nil {
		a.log.Warn("timezone lookup failed", logx.Int64("user_id", userID), logx.Err(err))
		return a.cfg.DefaultTimezone
	}
	if tz == "" {
		return a.cfg.DefaultTimezone
	}
	return tz
}

func (a *App) create(ctx context.Context, userID int64, channel string, res intent.Result, tz string) (string, error) {
	if a.store == nil {
		return "Reminders are unavailable: storage is disabled.", nil
	}
	r, err := a.store.CreateReminder(ctx, storage.NewReminder{
		UserID:      userID,
		Channel:     channel,
		Task:        res.Task,
		ScheduledAt: res.ScheduledAt,
		Recurrence:  res.Recurrence,
	})
	if err != nil {
		return "", fmt.Errorf("create reminder: %w", err)
	}
	if err := a.disp.Schedule(dispatch.JobFromReminder(r)); err != nil {
		// The row is durable; the sweeper arms it once dispatch is back.
		a.log.Warn("reminder not armed", logx.String("reminder_id", r.ID), logx.Err(err))
	}
	if a.bus != nil {
		a.bus.Publish(eventbus.Event{
			Type: eventbus.TypeReminderCreated,
			Data: map[string]any{"reminder_id": r.ID, "user_id": userID},
		})
	}

	reply := fmt.Sprintf("Got it! I'll remind you to %s on %s.",
		r.Task, formatLocal(r.ScheduledAt, tz))
	if r.Recurrence != intent.None {
		reply += fmt.Sprintf(" Repeats %s.", r.Recurrence)
	}
	return reply, nil
}

func (a *App) list(ctx context.Context, userID int64, tz string) (string, error) {
	if a.store == nil {
		return "Reminders are unavailable: storage is disabled.", nil
	}
	pend, err := a.store.ListPending(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("list reminders: %w", err)
	}
	if len(pend) == 0 {
		return "You have no pending reminders.", nil
	}

	var b strings.Builder
	b.WriteString("Your pending reminders:\n")
	for i, r := range pend {
		fmt.Fprintf(&b, "%d. %s - %s", i+1, r.Task, formatLocal(r.ScheduledAt, tz))
		if r.Recurrence != intent.None {
			fmt.Fprintf(&b, " (%s)", r.Recurrence)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// done completes the reminder the user most plausibly means: a query
// matches by task substring; with no query and exactly one pending
// reminder, that one.
func (a *App) done(ctx context.Context, userID int64, query, tz string) (string, error) {
	if a.store == nil {
		return "Reminders are unavailable: storage is disabled.", nil
	}
	pend, err := a.store.ListPending(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("list reminders: %w", err)
	}
	if len(pend) == 0 {
		return "You have no pending reminders.", nil
	}

	var target *storage.Reminder
	switch {
	case query != "":
		q := strings.ToLower(strings.TrimSpace(query))
		for i := range pend {
			if strings.Contains(strings.ToLower(pend[i].Task), q) {
				target = &pend[i]
				break
			}
		}
		if target == nil {
			return fmt.Sprintf("No pending reminder matches %q.", query), nil
		}
	case len(pend) == 1:
		target = &pend[0]
	default:
		listing, err := a.list(ctx, userID, tz)
		if err != nil {
			return "", err
		}
		return "Which one? Say e.g. \"done call mom\".\n\n" + listing, nil
	}

	ok, err := a.disp.Complete(ctx, target.ID)
	if err != nil {
		return "", fmt.Errorf("complete reminder: %w", err)
	}
	if !ok {
		return "That reminder was already handled.", nil
	}
	return fmt.Sprintf("Done: %s.", target.Task), nil
}

func (a *App) erase(ctx context.Context, userID int64) (string, error) {
	if a.store == nil {
		return "There is no stored data to erase.", nil
	}
	pend, err := a.store.ListPending(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("erase user: %w", err)
	}
	for _, r := range pend {
		if _, err := a.disp.Cancel(ctx, r.ID); err != nil {
			a.log.Warn("cancel during erase failed",
				logx.String("reminder_id", r.ID), logx.Err(err))
		}
	}
	if err := a.store.EraseUser(ctx, userID); err != nil {
		return "", fmt.Errorf("erase user: %w", err)
	}
	return "All your reminders and settings have been erased.", nil
}

func (a *App) setTimezone(ctx context.Context, userID int64, tz string) (string, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return "Tell me your IANA timezone, e.g. \"timezone America/Sao_Paulo\".", nil
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return fmt.Sprintf("%q is not a timezone I know. Use an IANA name like Europe/Lisbon.", tz), nil
	}
	if a.store == nil {
		return "Settings are unavailable: storage is disabled.", nil
	}
	if err := a.store.SetUserTimezone(ctx, userID, tz); err != nil {
		return "", fmt.Errorf("set timezone: %w", err)
	}
	return fmt.Sprintf("Timezone set to %s. New reminders use it right away.", tz), nil
}

func formatLocal(at time.Time, tz string) string {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	return at.In(loc).Format(timeFormat)
}
