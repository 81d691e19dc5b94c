package model

import "time"

// ItemKind discriminates the variants of Item.
type ItemKind string

const (
	ItemKindEntry  ItemKind = "entry"
	ItemKindNotice ItemKind = "notice"
)

// Item is a tagged union over the things search and aggregation views
// mix together: planner entries and notice reminders. Exactly one
// variant pointer is set, matching Kind.
type Item struct {
	Kind   ItemKind        `json:"kind"`
	Entry  *PlannerEntry   `json:"entry,omitempty"`
	Notice *NoticeReminder `json:"notice,omitempty"`
}

// EntryItem wraps a planner entry.
func EntryItem(e PlannerEntry) Item {
	return Item{Kind: ItemKindEntry, Entry: &e}
}

// NoticeItem wraps a notice reminder.
func NoticeItem(n NoticeReminder) Item {
	return Item{Kind: ItemKindNotice, Notice: &n}
}

// Title returns the variant's display title.
func (i Item) Title() string {
	switch i.Kind {
	case ItemKindEntry:
		return i.Entry.Title
	case ItemKindNotice:
		return i.Notice.NoticeTitle
	}
	return ""
}

// When returns the instant the variant sorts by.
func (i Item) When() time.Time {
	switch i.Kind {
	case ItemKindEntry:
		return i.Entry.DateTime
	case ItemKindNotice:
		return i.Notice.EffectiveReminderTime()
	}
	return time.Time{}
}
