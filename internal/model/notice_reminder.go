package model

import (
	"encoding/json"
	"html"
	"time"
)

// NoticeReminder is a reminder attached to an externally sourced notice
// item. At most one reminder may exist per newsId.
type NoticeReminder struct {
	NewsID         int64           `json:"newsId"`
	NoticeTitle    string          `json:"noticeTitle"`
	ScheduledAt    time.Time       `json:"scheduledAt"`
	ReminderAt     *time.Time      `json:"reminderAt"`
	NotificationID int             `json:"notificationId"`
	CreatedAt      time.Time       `json:"createdAt"`
	Priority       Priority        `json:"priority"`
	Category       Category        `json:"category"`
	Recurrence     *RecurrenceRule `json:"recurrence"`
	ReminderOffset Minutes         `json:"reminderOffset"`
}

// NewNoticeReminder creates a reminder for a notice. The title is
// HTML-unescaped here, once, so search and comparison operate on
// human-readable text; it is stored unescaped and never re-decoded.
func NewNoticeReminder(newsID int64, title string, scheduledAt time.Time) NoticeReminder {
	return NoticeReminder{
		NewsID:      newsID,
		NoticeTitle: html.UnescapeString(title),
		ScheduledAt: scheduledAt,
		CreatedAt:   time.Now().UTC(),
		Priority:    PriorityMedium,
		Category:    CategoryReminder,
	}
}

// UnmarshalJSON decodes a reminder, defaulting enum fields absent from
// older records and parsing the notification id leniently.
func (n *NoticeReminder) UnmarshalJSON(data []byte) error {
	type alias NoticeReminder
	var raw struct {
		alias
		NewsID         json.RawMessage `json:"newsId"`
		NotificationID json.RawMessage `json:"notificationId"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*n = NoticeReminder(raw.alias)
	n.NewsID = int64(lenientInt(raw.NewsID, 0))
	n.NotificationID = lenientInt(raw.NotificationID, 0)
	if n.Priority == "" {
		n.Priority = PriorityMedium
	}
	if n.Category == "" {
		n.Category = CategoryDeadline
	}
	return nil
}

// EffectiveReminderTime is the next fire reference: the snoozed
// reminderAt when present, otherwise the original scheduledAt.
// ScheduledAt itself never changes on snooze.
func (n NoticeReminder) EffectiveReminderTime() time.Time {
	if n.ReminderAt != nil {
		return *n.ReminderAt
	}
	return n.ScheduledAt
}
