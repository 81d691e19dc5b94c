package model

import (
	"encoding/json"
	"strings"
	"time"
)

// RecurrenceType names how often an entry or reminder repeats.
type RecurrenceType string

const (
	RecurDaily   RecurrenceType = "daily"
	RecurWeekly  RecurrenceType = "weekly"
	RecurMonthly RecurrenceType = "monthly"
	RecurYearly  RecurrenceType = "yearly"
)

// UnmarshalJSON falls back to daily for unknown or malformed input.
func (t *RecurrenceType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*t = RecurDaily
		return nil
	}
	switch RecurrenceType(strings.ToLower(strings.TrimSpace(s))) {
	case RecurDaily:
		*t = RecurDaily
	case RecurWeekly:
		*t = RecurWeekly
	case RecurMonthly:
		*t = RecurMonthly
	case RecurYearly:
		*t = RecurYearly
	default:
		*t = RecurDaily
	}
	return nil
}

// RecurrenceRule describes how an entry or reminder repeats. When
// SpecificDates is non-empty it overrides Type/Interval entirely; both
// field sets live on the same record to keep the wire format stable.
type RecurrenceRule struct {
	Type          RecurrenceType `json:"type"`
	Interval      int            `json:"interval"`
	EndDate       *time.Time     `json:"endDate"`
	SpecificDates []time.Time    `json:"specificDates"`
}

// UnmarshalJSON applies defaults for missing or malformed fields: the
// type falls back to daily and the interval is clamped to at least 1.
func (r *RecurrenceRule) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type          RecurrenceType  `json:"type"`
		Interval      json.RawMessage `json:"interval"`
		EndDate       *time.Time      `json:"endDate"`
		SpecificDates []time.Time     `json:"specificDates"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.Type = raw.Type
	if r.Type == "" {
		r.Type = RecurDaily
	}
	r.Interval = lenientInt(raw.Interval, 1)
	if r.Interval < 1 {
		r.Interval = 1
	}
	r.EndDate = raw.EndDate
	r.SpecificDates = raw.SpecificDates
	return nil
}
