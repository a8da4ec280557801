package provider

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"

	"memobot/internal/intent"
)

var errNoJSON = errors.New("no JSON object in provider response")

// payload tolerates the field spellings the different providers use.
// Normalization into intent.Result happens here, once, so the resolver
// never branches on provider identity.
type payload struct {
	Intent      string `json:"intent"`
	Task        string `json:"task"`
	ScheduledAt string `json:"scheduled_at"`
	Datetime    string `json:"datetime"`
	Time        string `json:"time"`
	Recurrence  string `json:"recurrence"`
	Repeat      string `json:"repeat"`
	Query       string `json:"query"`
	Timezone    string `json:"timezone"`
}

// decodeResult turns raw model output into a canonical result. Models
// routinely wrap the object in prose or emit slightly broken JSON, so the
// object is cut out first and repaired on a failed decode.
func decodeResult(raw, timezone string) (intent.Result, error) {
	obj, err := extractObject(raw)
	if err != nil {
		return intent.Result{}, err
	}

	var p payload
	if err := json.Unmarshal([]byte(obj), &p); err != nil {
		fixed, repairErr := jsonrepair.JSONRepair(obj)
		if repairErr != nil {
			return intent.Result{}, err
		}
		if err := json.Unmarshal([]byte(fixed), &p); err != nil {
			return intent.Result{}, err
		}
	}

	res := intent.Result{
		Intent:   mapIntent(p.Intent),
		Task:     strings.TrimSpace(p.Task),
		Query:    strings.TrimSpace(p.Query),
		Timezone: strings.TrimSpace(p.Timezone),
	}

	res.Recurrence = intent.ParseRecurrence(firstNonEmpty(p.Recurrence, p.Repeat))
	if at, ok := parseInstant(firstNonEmpty(p.ScheduledAt, p.Datetime, p.Time), timezone); ok {
		res.ScheduledAt = at
	}

	return res.Normalize(), nil
}

func extractObject(raw string) (string, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return "", errNoJSON
	}
	return raw[start : end+1], nil
}

func mapIntent(s string) intent.Intent {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "create", "reminder", "create_reminder":
		return intent.Create
	case "list", "list_reminders":
		return intent.List
	case "done", "complete", "mark_done":
		return intent.Done
	case "help":
		return intent.Help
	case "billing", "subscription":
		return intent.Billing
	case "erase", "delete_data":
		return intent.Erase
	case "timezone", "set_timezone":
		return intent.Timezone
	default:
		return intent.Unknown
	}
}

// parseInstant accepts the timestamp shapes providers actually produce.
// Formats without an offset are interpreted in the user's zone.
func parseInstant(s, timezone string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}

	loc := time.UTC
	if tz := strings.TrimSpace(timezone); tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02 15:04"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
