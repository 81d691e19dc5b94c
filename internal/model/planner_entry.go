package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SubTask is a checklist item owned by a single PlannerEntry. It has no
// lifecycle of its own.
type SubTask struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	IsCompleted bool   `json:"isCompleted"`
}

// PlannerEntry is a user task or event in the personal planner.
type PlannerEntry struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	Notes          string          `json:"notes"`
	DateTime       time.Time       `json:"dateTime"`
	Priority       Priority        `json:"priority"`
	Category       Category        `json:"category"`
	IsCompleted    bool            `json:"isCompleted"`
	Subtasks       []SubTask       `json:"subtasks"`
	Recurrence     *RecurrenceRule `json:"recurrence"`
	ReminderOffset Minutes         `json:"reminderOffset"`
	IsArchived     bool            `json:"isArchived"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// NewPlannerEntry creates an entry with a fresh id and creation
// timestamps. Ids are never reused.
func NewPlannerEntry(title string, due time.Time) PlannerEntry {
	now := time.Now().UTC()
	return PlannerEntry{
		ID:        uuid.NewString(),
		Title:     title,
		DateTime:  due,
		Priority:  PriorityMedium,
		Category:  CategoryDeadline,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// UnmarshalJSON decodes an entry, filling documented defaults for
// fields absent from older records.
func (e *PlannerEntry) UnmarshalJSON(data []byte) error {
	type alias PlannerEntry
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*e = PlannerEntry(a)
	if e.Priority == "" {
		e.Priority = PriorityMedium
	}
	if e.Category == "" {
		e.Category = CategoryDeadline
	}
	return nil
}

// IsFullyCompleted reports whether the entry itself and every subtask
// are done. An entry with no subtasks is fully completed when the entry
// is. Analytics and filtering both depend on this exact rule.
func (e PlannerEntry) IsFullyCompleted() bool {
	if !e.IsCompleted {
		return false
	}
	for _, st := range e.Subtasks {
		if !st.IsCompleted {
			return false
		}
	}
	return true
}
