package provider

import (
	"testing"
	"time"

	"memobot/internal/intent"
)

func TestDecodeResultSpellings(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		raw  string
		want intent.Result
	}{
		{
			name: "canonical create",
			raw:  `{"intent":"create","task":"call mom","scheduled_at":"2025-03-05T19:00:00Z","recurrence":"none"}`,
			want: intent.Result{
				Intent:      intent.Create,
				Task:        "call mom",
				ScheduledAt: time.Date(2025, time.March, 5, 19, 0, 0, 0, time.UTC),
				Recurrence:  intent.None,
			},
		},
		{
			name: "datetime spelling with repeat",
			raw:  `{"intent":"reminder","task":"pay rent","datetime":"2025-03-05 09:00","repeat":"monthly"}`,
			want: intent.Result{
				Intent:      intent.Create,
				Task:        "pay rent",
				ScheduledAt: time.Date(2025, time.March, 5, 9, 0, 0, 0, time.UTC),
				Recurrence:  intent.Monthly,
			},
		},
		{
			name: "prose-wrapped object",
			raw:  "Sure! Here you go:\n```json\n{\"intent\":\"list\"}\n```",
			want: intent.Result{Intent: intent.List, Recurrence: intent.None},
		},
		{
			name: "timezone intent",
			raw:  `{"intent":"set_timezone","timezone":"Europe/Berlin"}`,
			want: intent.Result{Intent: intent.Timezone, Timezone: "Europe/Berlin", Recurrence: intent.None},
		},
		{
			name: "unknown intent name",
			raw:  `{"intent":"dance"}`,
			want: intent.Result{Intent: intent.Unknown},
		},
		{
			name: "partial create normalized to unknown",
			raw:  `{"intent":"create","task":"stretch"}`,
			want: intent.Result{Intent: intent.Unknown},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := decodeResult(tt.raw, "UTC")
			if err != nil {
				t.Fatalf("decodeResult error: %v", err)
			}
			if got.Intent != tt.want.Intent || got.Task != tt.want.Task ||
				!got.ScheduledAt.Equal(tt.want.ScheduledAt) ||
				got.Recurrence != tt.want.Recurrence || got.Timezone != tt.want.Timezone {
				t.Fatalf("decodeResult = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecodeResultRepairsBrokenJSON(t *testing.T) {
	t.Parallel()
	// Trailing comma: invalid for encoding/json, recoverable via repair.
	raw := `{"intent":"create","task":"call mom","scheduled_at":"2025-03-05T19:00:00Z",}`
	got, err := decodeResult(raw, "UTC")
	if err != nil {
		t.Fatalf("decodeResult error: %v", err)
	}
	if got.Intent != intent.Create || got.Task != "call mom" {
		t.Fatalf("decodeResult = %+v", got)
	}
}

func TestDecodeResultNoObject(t *testing.T) {
	t.Parallel()
	if _, err := decodeResult("I could not parse that", "UTC"); err == nil {
		t.Fatal("expected error for response without JSON")
	}
}

func TestDecodeResultZonedTimestamp(t *testing.T) {
	t.Parallel()
	// No offset in the timestamp: interpret in the user's zone.
	raw := `{"intent":"create","task":"call the bank","scheduled_at":"2025-03-05T10:00:00"}`
	got, err := decodeResult(raw, "America/Sao_Paulo")
	if err != nil {
		t.Fatalf("decodeResult error: %v", err)
	}
	want := time.Date(2025, time.March, 5, 13, 0, 0, 0, time.UTC)
	if !got.ScheduledAt.Equal(want) {
		t.Fatalf("ScheduledAt = %v, want %v", got.ScheduledAt, want)
	}
}
