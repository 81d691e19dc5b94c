// Package recurrence evaluates recurrence rules: pure functions, no
// I/O, total over every valid rule.
package recurrence

import (
	"fmt"
	"time"

	"github.com/campusmate/planner/internal/model"
)

var typeLabels = map[model.RecurrenceType]string{
	model.RecurDaily:   "Daily",
	model.RecurWeekly:  "Weekly",
	model.RecurMonthly: "Monthly",
	model.RecurYearly:  "Yearly",
}

var typePlurals = map[model.RecurrenceType]string{
	model.RecurDaily:   "days",
	model.RecurWeekly:  "weeks",
	model.RecurMonthly: "months",
	model.RecurYearly:  "years",
}

// Describe returns the human-readable label for a rule. Non-empty
// specific dates override the type/interval description entirely.
func Describe(rule model.RecurrenceRule) string {
	if n := len(rule.SpecificDates); n > 0 {
		if n == 1 {
			return "1 specific date"
		}
		return fmt.Sprintf("%d specific dates", n)
	}

	interval := rule.Interval
	if interval < 1 {
		interval = 1
	}

	label, ok := typeLabels[rule.Type]
	if !ok {
		label = typeLabels[model.RecurDaily]
	}
	if interval == 1 {
		return label
	}

	plural, ok := typePlurals[rule.Type]
	if !ok {
		plural = typePlurals[model.RecurDaily]
	}
	return fmt.Sprintf("Every %d %s", interval, plural)
}

// NextAfter returns the first occurrence of the rule strictly after
// the given instant, iterating from base (the original scheduled
// time). It returns the zero time when the rule has run out: every
// specific date has passed, or the next occurrence falls beyond the
// rule's end date.
func NextAfter(rule model.RecurrenceRule, base, after time.Time) time.Time {
	if len(rule.SpecificDates) > 0 {
		var next time.Time
		for _, d := range rule.SpecificDates {
			if d.After(after) && (next.IsZero() || d.Before(next)) {
				next = d
			}
		}
		if !next.IsZero() && rule.EndDate != nil && next.After(*rule.EndDate) {
			return time.Time{}
		}
		return next
	}

	interval := rule.Interval
	if interval < 1 {
		interval = 1
	}

	// Safety limit to prevent infinite loops on degenerate input.
	const maxSteps = 10000

	t := base
	for i := 0; i < maxSteps; i++ {
		if t.After(after) {
			if rule.EndDate != nil && t.After(*rule.EndDate) {
				return time.Time{}
			}
			return t
		}

		switch rule.Type {
		case model.RecurWeekly:
			t = t.AddDate(0, 0, 7*interval)
		case model.RecurMonthly:
			t = addMonths(t, interval, base.Day())
		case model.RecurYearly:
			t = t.AddDate(interval, 0, 0)
		default:
			t = t.AddDate(0, 0, interval)
		}
	}
	return time.Time{}
}

// addMonths advances by whole months, clamping the day of month to the
// target month's last day (Jan 31 + 1 month = Feb 28/29).
func addMonths(t time.Time, months, day int) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	next := first.AddDate(0, months, 0)

	year, month, _ := next.Date()
	if last := daysInMonth(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
