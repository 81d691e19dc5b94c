package model

import (
	"encoding/json"
	"strings"
)

// Priority of a planner entry or notice reminder.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// UnmarshalJSON accepts any JSON value and falls back to medium for
// unknown or malformed input. Persisted data may predate the current
// enum set and must never fail to decode.
func (p *Priority) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*p = PriorityMedium
		return nil
	}
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case PriorityLow:
		*p = PriorityLow
	case PriorityMedium:
		*p = PriorityMedium
	case PriorityHigh:
		*p = PriorityHigh
	default:
		*p = PriorityMedium
	}
	return nil
}

// Category of a planner entry or notice reminder.
type Category string

const (
	CategoryExam     Category = "exam"
	CategoryDeadline Category = "deadline"
	CategoryReminder Category = "reminder"
	CategoryDocument Category = "document"
	CategoryOther    Category = "other"
)

// Categories lists all known categories in display order.
func Categories() []Category {
	return []Category{CategoryExam, CategoryDeadline, CategoryReminder, CategoryDocument, CategoryOther}
}

// UnmarshalJSON falls back to deadline for unknown or malformed input.
func (c *Category) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*c = CategoryDeadline
		return nil
	}
	switch Category(strings.ToLower(strings.TrimSpace(s))) {
	case CategoryExam:
		*c = CategoryExam
	case CategoryDeadline:
		*c = CategoryDeadline
	case CategoryReminder:
		*c = CategoryReminder
	case CategoryDocument:
		*c = CategoryDocument
	case CategoryOther:
		*c = CategoryOther
	default:
		*c = CategoryDeadline
	}
	return nil
}
