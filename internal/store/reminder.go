package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	"github.com/campusmate/planner/internal/kv"
	"github.com/campusmate/planner/internal/model"
)

const remindersKey = "notice_reminders_v1"

// ReminderStore persists notice reminders keyed by the external notice
// id. Single schema version, no migration; every mutation rewrites the
// document atomically.
type ReminderStore struct {
	mu     sync.Mutex
	kv     *kv.Store
	logger *slog.Logger
}

func NewReminderStore(kvs *kv.Store, logger *slog.Logger) *ReminderStore {
	return &ReminderStore{kv: kvs, logger: logger}
}

// GetAll returns every reminder in ascending scheduledAt order.
func (s *ReminderStore) GetAll(ctx context.Context) ([]model.NoticeReminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// GetByNewsID returns the reminder for a notice, or nil when none
// exists.
func (s *ReminderStore) GetByNewsID(ctx context.Context, newsID int64) (*model.NoticeReminder, error) {
	reminders, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range reminders {
		if reminders[i].NewsID == newsID {
			return &reminders[i], nil
		}
	}
	return nil, nil
}

// Upsert replaces any prior reminder for the same newsId; exactly one
// reminder per notice exists at a time.
func (s *ReminderStore) Upsert(ctx context.Context, reminder model.NoticeReminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reminders, err := s.load(ctx)
	if err != nil {
		return err
	}

	replaced := false
	for i := range reminders {
		if reminders[i].NewsID == reminder.NewsID {
			reminders[i] = reminder
			replaced = true
			break
		}
	}
	if !replaced {
		reminders = append(reminders, reminder)
	}

	return s.save(ctx, reminders)
}

// DeleteByNewsID removes the reminder for a notice; unknown ids are a
// silent no-op.
func (s *ReminderStore) DeleteByNewsID(ctx context.Context, newsID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reminders, err := s.load(ctx)
	if err != nil {
		return err
	}

	kept := reminders[:0]
	for _, r := range reminders {
		if r.NewsID != newsID {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(reminders) {
		return nil
	}
	return s.save(ctx, kept)
}

func (s *ReminderStore) load(ctx context.Context) ([]model.NoticeReminder, error) {
	data, ok, err := s.kv.Get(ctx, remindersKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.Warn("reminder document is not a JSON array, treating as empty", "error", err)
		return nil, nil
	}

	reminders := make([]model.NoticeReminder, 0, len(raw))
	for _, r := range raw {
		var rem model.NoticeReminder
		if err := json.Unmarshal(r, &rem); err != nil {
			s.logger.Warn("skipping unparsable notice reminder", "error", err)
			continue
		}
		reminders = append(reminders, rem)
	}
	sortReminders(reminders)
	return reminders, nil
}

func (s *ReminderStore) save(ctx context.Context, reminders []model.NoticeReminder) error {
	if reminders == nil {
		reminders = []model.NoticeReminder{}
	}
	sortReminders(reminders)
	data, err := json.Marshal(reminders)
	if err != nil {
		return err
	}
	return s.kv.Put(ctx, remindersKey, data)
}

func sortReminders(reminders []model.NoticeReminder) {
	sort.SliceStable(reminders, func(i, j int) bool {
		return reminders[i].ScheduledAt.Before(reminders[j].ScheduledAt)
	})
}
