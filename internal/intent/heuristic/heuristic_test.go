package heuristic

import (
	"testing"
	"time"

	"memobot/internal/intent"
)

// A fixed Tuesday noon UTC keeps every expectation deterministic.
var now = time.Date(2025, time.March, 4, 12, 0, 0, 0, time.UTC)

func TestParseCreateVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		msg   string
		tz    string
		task  string
		at    time.Time
		recur intent.Recurrence
	}{
		{
			name:  "tomorrow with clock time",
			msg:   "remind me to call mom tomorrow at 7pm",
			tz:    "UTC",
			task:  "call mom",
			at:    time.Date(2025, time.March, 5, 19, 0, 0, 0, time.UTC),
			recur: intent.None,
		},
		{
			name:  "relative minutes",
			msg:   "remind me to check the oven in 20 minutes",
			tz:    "UTC",
			task:  "check the oven",
			at:    now.Add(20 * time.Minute),
			recur: intent.None,
		},
		{
			name:  "relative hours",
			msg:   "remind me to stretch in 2 hours",
			tz:    "UTC",
			task:  "stretch",
			at:    now.Add(2 * time.Hour),
			recur: intent.None,
		},
		{
			name:  "relative days",
			msg:   "remind me to water plants in 3 days",
			tz:    "UTC",
			task:  "water plants",
			at:    now.Add(72 * time.Hour),
			recur: intent.None,
		},
		{
			name:  "minute precedence over hour",
			msg:   "remind me in 5 minutes to ask about in 2 hours",
			tz:    "UTC",
			task:  "ask about in 2 hours",
			at:    now.Add(5 * time.Minute),
			recur: intent.None,
		},
		{
			name:  "past clock time rolls forward",
			msg:   "remind me to take meds at 9am",
			tz:    "UTC",
			task:  "take meds",
			at:    time.Date(2025, time.March, 5, 9, 0, 0, 0, time.UTC),
			recur: intent.None,
		},
		{
			name:  "future clock time stays today",
			msg:   "remind me to join standup at 3:30 pm",
			tz:    "UTC",
			task:  "join standup",
			at:    time.Date(2025, time.March, 4, 15, 30, 0, 0, time.UTC),
			recur: intent.None,
		},
		{
			name: "clock time in user zone",
			msg:  "remind me to call the bank at 10am",
			tz:   "America/Sao_Paulo",
			task: "call the bank",
			// 10:00 in Sao Paulo (UTC-3) is 13:00 UTC, still ahead of noon.
			at:    time.Date(2025, time.March, 4, 13, 0, 0, 0, time.UTC),
			recur: intent.None,
		},
		{
			name:  "daily recurrence",
			msg:   "remind me to take vitamins every day at 8am",
			tz:    "UTC",
			task:  "take vitamins",
			at:    time.Date(2025, time.March, 5, 8, 0, 0, 0, time.UTC),
			recur: intent.Daily,
		},
		{
			name:  "weekly recurrence",
			msg:   "remind me to file the report weekly at 5pm",
			tz:    "UTC",
			task:  "file the report",
			at:    time.Date(2025, time.March, 4, 17, 0, 0, 0, time.UTC),
			recur: intent.Weekly,
		},
		{
			name:  "monthly recurrence",
			msg:   "remind me to pay rent every month at 9am",
			tz:    "UTC",
			task:  "pay rent",
			at:    time.Date(2025, time.March, 5, 9, 0, 0, 0, time.UTC),
			recur: intent.Monthly,
		},
		{
			name:  "tomorrow alone",
			msg:   "remind me to renew the passport tomorrow",
			tz:    "UTC",
			task:  "renew the passport",
			at:    now.AddDate(0, 0, 1),
			recur: intent.None,
		},
		{
			name:  "empty residue falls back to placeholder",
			msg:   "remind me in 10 minutes",
			tz:    "UTC",
			task:  DefaultTask,
			at:    now.Add(10 * time.Minute),
			recur: intent.None,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Parse(tt.msg, tt.tz, now)
			if got.Intent != intent.Create {
				t.Fatalf("Intent = %s, want create (%+v)", got.Intent, got)
			}
			if got.Task != tt.task {
				t.Errorf("Task = %q, want %q", got.Task, tt.task)
			}
			if !got.ScheduledAt.Equal(tt.at) {
				t.Errorf("ScheduledAt = %v, want %v", got.ScheduledAt, tt.at)
			}
			if got.Recurrence != tt.recur {
				t.Errorf("Recurrence = %s, want %s", got.Recurrence, tt.recur)
			}
		})
	}
}

func TestParseCommands(t *testing.T) {
	t.Parallel()
	tests := []struct {
		msg  string
		want intent.Intent
	}{
		{"show my list", intent.List},
		{"meus lembretes", intent.List},
		{"done buy milk", intent.Done},
		{"help", intent.Help},
		{"ayuda", intent.Help},
		{"billing please", intent.Billing},
		{"erase everything", intent.Erase},
		{"timezone America/Sao_Paulo", intent.Timezone},
	}
	for _, tt := range tests {
		got := Parse(tt.msg, "UTC", now)
		if got.Intent != tt.want {
			t.Errorf("Parse(%q).Intent = %s, want %s", tt.msg, got.Intent, tt.want)
		}
	}

	if got := Parse("timezone America/Sao_Paulo", "UTC", now); got.Timezone != "America/Sao_Paulo" {
		t.Errorf("Timezone = %q, want America/Sao_Paulo", got.Timezone)
	}
	if got := Parse("done buy milk", "UTC", now); got.Query != "buy milk" {
		t.Errorf("Done query = %q, want %q", got.Query, "buy milk")
	}
}

func TestParseUnknown(t *testing.T) {
	t.Parallel()
	for _, msg := range []string{
		"",
		"what a lovely morning",
		"remind me to do the thing", // no time phrase
		"timezone",                  // no zone token
	} {
		if got := Parse(msg, "UTC", now); got.Intent != intent.Unknown {
			t.Errorf("Parse(%q).Intent = %s, want unknown", msg, got.Intent)
		}
	}
}

func TestParseNeverPartialCreate(t *testing.T) {
	t.Parallel()
	got := Parse("remind me to stretch daily", "UTC", now)
	if got.Intent == intent.Create && got.ScheduledAt.IsZero() {
		t.Fatalf("partial create leaked: %+v", got)
	}
}

func TestParseInvalidZoneFallsBackToUTC(t *testing.T) {
	t.Parallel()
	got := Parse("remind me to call at 3pm", "Not/AZone", now)
	want := time.Date(2025, time.March, 4, 15, 0, 0, 0, time.UTC)
	if !got.ScheduledAt.Equal(want) {
		t.Fatalf("ScheduledAt = %v, want %v", got.ScheduledAt, want)
	}
}
