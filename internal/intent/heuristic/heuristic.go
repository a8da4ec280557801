// Package heuristic is the deterministic, non-AI fallback parser.
//
// It operates on the lower-cased trimmed message with a fixed rule order:
// command keywords, then "remind me" phrasing, relative dates, relative
// offsets, absolute clock times (in the user's zone) and recurrence tokens.
// It never fails; when no usable time or intent is found it yields Unknown.
package heuristic

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"memobot/internal/intent"
)

// DefaultTask is used when token stripping leaves nothing of the message.
const DefaultTask = "Reminder"

var (
	reRemindLead = regexp.MustCompile(`^(?:please\s+)?remind(?:\s+me)?(?:\s+to)?\s+`)
	reTomorrow   = regexp.MustCompile(`\btomorrow\b`)
	reInMinutes  = regexp.MustCompile(`\bin\s+(\d+)\s*(?:minutes?|mins?)\b`)
	reInHours    = regexp.MustCompile(`\bin\s+(\d+)\s*(?:hours?|hrs?)\b`)
	reInDays     = regexp.MustCompile(`\bin\s+(\d+)\s*days?\b`)
	reAtClock    = regexp.MustCompile(`\bat\s+(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\b`)

	reDaily   = regexp.MustCompile(`\bevery\s?day\b|\bdaily\b`)
	reWeekly  = regexp.MustCompile(`\bevery\s?week\b|\bweekly\b`)
	reMonthly = regexp.MustCompile(`\bevery\s?month\b|\bmonthly\b`)

	reSpaces = regexp.MustCompile(`\s+`)
)

// Command keyword vocabulary checked before the reminder rules. Substring
// match on the lowered message, first hit wins in this order.
var keywordIntents = []struct {
	intent intent.Intent
	words  []string
}{
	{intent.List, []string{"list", "lembretes", "recordatorios", "agenda"}},
	{intent.Done, []string{"done", "feito", "hecho", "concluido"}},
	{intent.Help, []string{"help", "ajuda", "ayuda"}},
	{intent.Timezone, []string{"timezone", "time zone", "fuso"}},
	{intent.Billing, []string{"billing", "subscription", "assinatura", "suscripcion"}},
	{intent.Erase, []string{"erase", "apagar", "borrar"}},
}

// Parse classifies msg deterministically. The timezone is an IANA name used
// to interpret absolute clock times; invalid or empty zones fall back to UTC.
// now is injected so callers and tests share one notion of the current
// instant.
func Parse(msg, timezone string, now time.Time) intent.Result {
	text := strings.ToLower(strings.TrimSpace(msg))
	if text == "" {
		return intent.Result{Intent: intent.Unknown}
	}

	creating := reRemindLead.MatchString(text)
	if !creating {
		// Zone names are case-sensitive, so extraction looks at the raw
		// message rather than the lowered copy.
		if res, ok := classifyKeyword(text, strings.TrimSpace(msg)); ok {
			return res
		}
	}
	if !creating && !hasTemporalCue(text) {
		return intent.Result{Intent: intent.Unknown}
	}

	task := reRemindLead.ReplaceAllString(text, "")

	dayOffset := 0
	if reTomorrow.MatchString(task) {
		dayOffset = 1
		task = reTomorrow.ReplaceAllString(task, " ")
	}

	var sched time.Time
	if n, unit, rest, ok := matchOffset(task); ok {
		sched = now.Add(time.Duration(n) * unit)
		task = rest
	}

	if m := reAtClock.FindStringSubmatch(task); m != nil {
		if at, ok := resolveClock(m, timezone, now, dayOffset); ok {
			sched = at
			task = strings.Replace(task, m[0], " ", 1)
		}
	}

	if sched.IsZero() && dayOffset == 1 {
		sched = now.AddDate(0, 0, 1)
	}

	rec := intent.None
	switch {
	case reDaily.MatchString(task):
		rec = intent.Daily
		task = reDaily.ReplaceAllString(task, " ")
	case reWeekly.MatchString(task):
		rec = intent.Weekly
		task = reWeekly.ReplaceAllString(task, " ")
	case reMonthly.MatchString(task):
		rec = intent.Monthly
		task = reMonthly.ReplaceAllString(task, " ")
	}

	// "remind me in 5 minutes to X" leaves a dangling "to" once the offset
	// token is gone.
	task = strings.TrimPrefix(strings.TrimSpace(task), "to ")

	task = cleanTask(task)
	if task == "" {
		task = DefaultTask
	}

	return intent.Result{
		Intent:      intent.Create,
		Task:        task,
		ScheduledAt: sched,
		Recurrence:  rec,
	}.Normalize()
}

func classifyKeyword(text, raw string) (intent.Result, bool) {
	for _, k := range keywordIntents {
		for _, w := range k.words {
			if !strings.Contains(text, w) {
				continue
			}
			res := intent.Result{Intent: k.intent}
			switch k.intent {
			case intent.Done:
				res.Query = cleanTask(strings.Replace(text, w, " ", 1))
			case intent.Timezone:
				tz := extractZone(raw)
				if tz == "" {
					return intent.Result{Intent: intent.Unknown}, true
				}
				res.Timezone = tz
			}
			return res, true
		}
	}
	return intent.Result{}, false
}

// extractZone picks the first IANA-looking token (Region/City) from the text.
func extractZone(text string) string {
	for _, f := range strings.Fields(text) {
		if strings.Contains(f, "/") {
			return strings.Trim(f, ".,!?")
		}
	}
	return ""
}

func hasTemporalCue(text string) bool {
	return strings.Contains(text, "remind") ||
		reTomorrow.MatchString(text) ||
		reInMinutes.MatchString(text) ||
		reInHours.MatchString(text) ||
		reInDays.MatchString(text) ||
		reAtClock.MatchString(text)
}

// matchOffset applies the single first-match offset rule with the fixed
// minute > hour > day precedence.
func matchOffset(text string) (n int, unit time.Duration, rest string, ok bool) {
	type rule struct {
		re   *regexp.Regexp
		unit time.Duration
	}
	for _, r := range []rule{
		{reInMinutes, time.Minute},
		{reInHours, time.Hour},
		{reInDays, 24 * time.Hour},
	} {
		m := r.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		v, err := strconv.Atoi(m[1])
		if err != nil || v <= 0 {
			return 0, 0, text, false
		}
		return v, r.unit, strings.Replace(text, m[0], " ", 1), true
	}
	return 0, 0, text, false
}

// resolveClock interprets "at H[:MM] am/pm" as wall-clock time in the user's
// zone on today's (or tomorrow's) date, rolling forward one day when the
// instant would already be in the past and "tomorrow" was not given.
func resolveClock(m []string, timezone string, now time.Time, dayOffset int) (time.Time, bool) {
	hour, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Time{}, false
	}
	minute := 0
	if m[2] != "" {
		if minute, err = strconv.Atoi(m[2]); err != nil || minute > 59 {
			return time.Time{}, false
		}
	}
	switch m[3] {
	case "pm":
		if hour < 1 || hour > 12 {
			return time.Time{}, false
		}
		if hour != 12 {
			hour += 12
		}
	case "am":
		if hour < 1 || hour > 12 {
			return time.Time{}, false
		}
		if hour == 12 {
			hour = 0
		}
	default:
		if hour > 23 {
			return time.Time{}, false
		}
	}

	loc := loadLocation(timezone)
	local := now.In(loc)
	target := time.Date(local.Year(), local.Month(), local.Day()+dayOffset, hour, minute, 0, 0, loc)
	if dayOffset == 0 && !target.After(now) {
		target = target.AddDate(0, 0, 1)
	}
	return target.UTC(), true
}

func loadLocation(timezone string) *time.Location {
	tz := strings.TrimSpace(timezone)
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

func cleanTask(s string) string {
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.Trim(s, " .,!?-")
}
