// Package reminder keeps stored reminders and the external
// notification scheduler consistent: it derives fire times, allocates
// notification ids, and orders cancel/schedule/persist so there is
// never more than one live notification per logical reminder.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"time"

	"github.com/campusmate/planner/internal/model"
	"github.com/campusmate/planner/internal/notify"
	"github.com/campusmate/planner/internal/recurrence"
	"github.com/campusmate/planner/internal/store"
)

var (
	// ErrPastReminderTime is returned when the derived fire time is
	// not strictly in the future. Nothing is scheduled or stored.
	ErrPastReminderTime = errors.New("reminder time is in the past")
	// ErrPermissionDenied is returned when notifications cannot be
	// delivered. The store is left untouched.
	ErrPermissionDenied = errors.New("notification permission not granted")
)

// ChangeFunc is called after every mutating operation so dependent
// observers can invalidate immediately.
type ChangeFunc func(entity, action, id string)

// Coordinator translates a reminder's logical schedule into a concrete
// notification.
type Coordinator struct {
	reminders *store.ReminderStore
	planner   *store.PlannerStore
	service   notify.Service
	onChange  ChangeFunc
	logger    *slog.Logger

	// Injectable for tests.
	now func() time.Time
}

func NewCoordinator(reminders *store.ReminderStore, planner *store.PlannerStore, service notify.Service, onChange ChangeFunc, logger *slog.Logger) *Coordinator {
	if onChange == nil {
		onChange = func(string, string, string) {}
	}
	return &Coordinator{
		reminders: reminders,
		planner:   planner,
		service:   service,
		onChange:  onChange,
		logger:    logger,
		now:       time.Now,
	}
}

// ScheduleNotice schedules (or reschedules) the notification for a
// notice reminder and persists it. The store is only written after the
// schedule call succeeds.
func (c *Coordinator) ScheduleNotice(ctx context.Context, rem model.NoticeReminder) (model.NoticeReminder, error) {
	fireAt := rem.EffectiveReminderTime().Add(-rem.ReminderOffset.Duration())
	if !fireAt.After(c.now()) {
		return model.NoticeReminder{}, ErrPastReminderTime
	}

	if err := c.checkPermission(ctx); err != nil {
		return model.NoticeReminder{}, err
	}

	existing, err := c.reminders.GetByNewsID(ctx, rem.NewsID)
	if err != nil {
		return model.NoticeReminder{}, err
	}
	if existing != nil && existing.NotificationID != 0 {
		// Cancel before rescheduling so at most one notification is
		// ever live for this reminder; the id is reused.
		if err := c.service.Cancel(ctx, existing.NotificationID); err != nil {
			return model.NoticeReminder{}, fmt.Errorf("cancel prior notification: %w", err)
		}
		rem.NotificationID = existing.NotificationID
	}
	if rem.NotificationID == 0 {
		rem.NotificationID, err = c.allocateID(ctx)
		if err != nil {
			return model.NoticeReminder{}, err
		}
	}

	err = c.service.Schedule(ctx, notify.Notification{
		ID:      rem.NotificationID,
		Title:   "Notice Reminder",
		Body:    rem.NoticeTitle,
		FireAt:  fireAt,
		Payload: fmt.Sprintf("notice:%d", rem.NewsID),
	})
	if err != nil {
		return model.NoticeReminder{}, fmt.Errorf("schedule notification: %w", err)
	}

	if err := c.reminders.Upsert(ctx, rem); err != nil {
		return model.NoticeReminder{}, err
	}
	c.onChange("reminder", "upserted", fmt.Sprint(rem.NewsID))
	return rem, nil
}

// SnoozeNotice moves the next fire of a reminder to the given instant.
// The original scheduledAt never changes. Snoozing an unknown newsId
// is a silent no-op.
func (c *Coordinator) SnoozeNotice(ctx context.Context, newsID int64, until time.Time) error {
	rem, err := c.reminders.GetByNewsID(ctx, newsID)
	if err != nil {
		return err
	}
	if rem == nil {
		return nil
	}

	rem.ReminderAt = &until
	_, err = c.ScheduleNotice(ctx, *rem)
	return err
}

// AdvanceRecurring rolls a recurring notice reminder forward to its
// next occurrence after now. Reminders without a recurrence rule, or
// whose rule has run out, are left alone.
func (c *Coordinator) AdvanceRecurring(ctx context.Context, newsID int64) error {
	rem, err := c.reminders.GetByNewsID(ctx, newsID)
	if err != nil {
		return err
	}
	if rem == nil || rem.Recurrence == nil {
		return nil
	}

	next := recurrence.NextAfter(*rem.Recurrence, rem.ScheduledAt, c.now())
	if next.IsZero() {
		return nil
	}

	rem.ReminderAt = &next
	_, err = c.ScheduleNotice(ctx, *rem)
	return err
}

// HandleDelivered reacts to a notification having fired: a recurring
// notice reminder is rolled forward to its next occurrence so it keeps
// firing without a client intervening. Wired as the dispatcher's
// post-delivery hook. Non-notice notifications and one-shot reminders
// are left alone.
func (c *Coordinator) HandleDelivered(ctx context.Context, n notify.Notification) {
	var newsID int64
	if _, err := fmt.Sscanf(n.Payload, "notice:%d", &newsID); err != nil {
		return
	}
	if err := c.AdvanceRecurring(ctx, newsID); err != nil {
		c.logger.Warn("advance recurring reminder after delivery", "newsId", newsID, "error", err)
	}
}

// RemoveNotice cancels the notification and deletes the stored
// reminder. The record is removed even when cancellation fails, so a
// reminder can always be deleted.
func (c *Coordinator) RemoveNotice(ctx context.Context, newsID int64) error {
	rem, err := c.reminders.GetByNewsID(ctx, newsID)
	if err != nil {
		return err
	}
	if rem == nil {
		return nil
	}

	if rem.NotificationID != 0 {
		if err := c.service.Cancel(ctx, rem.NotificationID); err != nil {
			c.logger.Warn("cancel notification failed, removing reminder anyway", "newsId", newsID, "error", err)
		}
	}

	if err := c.reminders.DeleteByNewsID(ctx, newsID); err != nil {
		return err
	}
	c.onChange("reminder", "deleted", fmt.Sprint(newsID))
	return nil
}

// ScheduleEntry schedules the notification for a planner entry. A
// disabled reminder is never scheduled; any pending notification for
// the entry is cancelled instead, and the offset is kept on the entry
// for redisplay only.
func (c *Coordinator) ScheduleEntry(ctx context.Context, entry model.PlannerEntry, enabled bool) error {
	id := entryNotificationID(entry.ID)

	if !enabled {
		if err := c.service.Cancel(ctx, id); err != nil {
			c.logger.Warn("cancel entry notification", "id", entry.ID, "error", err)
		}
		return nil
	}

	fireAt := entry.DateTime.Add(-entry.ReminderOffset.Duration())
	if !fireAt.After(c.now()) {
		return ErrPastReminderTime
	}
	if err := c.checkPermission(ctx); err != nil {
		return err
	}

	// Entry ids map to a stable notification id, so rescheduling
	// replaces the pending notification rather than duplicating it.
	if err := c.service.Cancel(ctx, id); err != nil {
		return fmt.Errorf("cancel prior notification: %w", err)
	}

	err := c.service.Schedule(ctx, notify.Notification{
		ID:      id,
		Title:   "Planner Reminder",
		Body:    entry.Title,
		FireAt:  fireAt,
		Payload: "entry:" + entry.ID,
	})
	if err != nil {
		return fmt.Errorf("schedule notification: %w", err)
	}
	c.onChange("entry", "scheduled", entry.ID)
	return nil
}

// CancelEntry drops any pending notification for a planner entry.
func (c *Coordinator) CancelEntry(ctx context.Context, entryID string) error {
	if err := c.service.Cancel(ctx, entryNotificationID(entryID)); err != nil {
		c.logger.Warn("cancel entry notification", "id", entryID, "error", err)
	}
	c.onChange("entry", "unscheduled", entryID)
	return nil
}

func (c *Coordinator) checkPermission(ctx context.Context) error {
	granted, err := c.service.PermissionGranted(ctx)
	if err != nil {
		return err
	}
	if !granted {
		return ErrPermissionDenied
	}
	return nil
}

// allocateID derives a fresh notification id from the high-resolution
// clock, reduced into the positive 32-bit range the service accepts,
// skipping ids already held by stored reminders.
func (c *Coordinator) allocateID(ctx context.Context) (int, error) {
	existing, err := c.reminders.GetAll(ctx)
	if err != nil {
		return 0, err
	}
	taken := make(map[int]bool, len(existing))
	for _, r := range existing {
		taken[r.NotificationID] = true
	}

	for {
		id := int(time.Now().UnixNano() % math.MaxInt32)
		if id != 0 && !taken[id] {
			return id, nil
		}
	}
}

// entryNotificationID maps an entry's string id onto the service's id
// range. The mapping is stable so reschedules reuse the same id.
func entryNotificationID(entryID string) int {
	h := fnv.New32a()
	h.Write([]byte(entryID))
	id := int(h.Sum32() & math.MaxInt32)
	if id == 0 {
		id = 1
	}
	return id
}
