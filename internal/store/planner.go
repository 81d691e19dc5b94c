package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/campusmate/planner/internal/kv"
	"github.com/campusmate/planner/internal/model"
)

// Document keys are wire-stable; renaming one requires a new schema
// version and a migration.
const (
	legacyEntriesKey = "planner_entries_v1"
	entriesKey       = "planner_entries_v2"
	migratedFlagKey  = "planner_v2_migrated"
)

// PlannerStore persists planner entries as one JSON array document,
// migrating the legacy v1 document on first read. A read-modify-write
// mutation cycle is guarded by a single mutex so concurrent upserts
// cannot lose updates.
type PlannerStore struct {
	mu     sync.Mutex
	kv     *kv.Store
	logger *slog.Logger
}

func NewPlannerStore(kvs *kv.Store, logger *slog.Logger) *PlannerStore {
	return &PlannerStore{kv: kvs, logger: logger}
}

// GetAll returns every entry in ascending dateTime order. The one-time
// legacy migration check runs before the read.
func (s *PlannerStore) GetAll(ctx context.Context) ([]model.PlannerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getAllLocked(ctx)
}

func (s *PlannerStore) getAllLocked(ctx context.Context) ([]model.PlannerEntry, error) {
	if err := s.migrateLocked(ctx); err != nil {
		return nil, err
	}
	entries, err := s.load(ctx, entriesKey)
	if err != nil {
		return nil, err
	}
	sortEntries(entries)
	return entries, nil
}

// Upsert replaces the entry with the same id, or appends when no such
// entry exists, then persists the whole collection atomically.
func (s *PlannerStore) Upsert(ctx context.Context, entry model.PlannerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.getAllLocked(ctx)
	if err != nil {
		return err
	}

	replaced := false
	for i := range entries {
		if entries[i].ID == entry.ID {
			entries[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, entry)
	}

	return s.save(ctx, entries)
}

// DeleteByID removes the matching entry; deleting an unknown id is a
// silent no-op.
func (s *PlannerStore) DeleteByID(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.getAllLocked(ctx)
	if err != nil {
		return err
	}

	kept := entries[:0]
	for _, e := range entries {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(entries) {
		return nil
	}
	return s.save(ctx, kept)
}

// GetByID returns the entry with the given id, or nil when absent.
func (s *PlannerStore) GetByID(ctx context.Context, id string) (*model.PlannerEntry, error) {
	entries, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].ID == id {
			return &entries[i], nil
		}
	}
	return nil, nil
}

// ToggleCompletion flips the entry's completion state and refreshes
// updatedAt. Unknown ids are a silent no-op.
func (s *PlannerStore) ToggleCompletion(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.getAllLocked(ctx)
	if err != nil {
		return err
	}

	for i := range entries {
		if entries[i].ID == id {
			entries[i].IsCompleted = !entries[i].IsCompleted
			entries[i].UpdatedAt = time.Now().UTC()
			return s.save(ctx, entries)
		}
	}
	return nil
}

// ToggleSubtask flips one subtask's completion state inside the named
// entry and refreshes the entry's updatedAt. Unknown entry or subtask
// ids are a silent no-op.
func (s *PlannerStore) ToggleSubtask(ctx context.Context, entryID, subtaskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.getAllLocked(ctx)
	if err != nil {
		return err
	}

	for i := range entries {
		if entries[i].ID != entryID {
			continue
		}
		for j := range entries[i].Subtasks {
			if entries[i].Subtasks[j].ID == subtaskID {
				entries[i].Subtasks[j].IsCompleted = !entries[i].Subtasks[j].IsCompleted
				entries[i].UpdatedAt = time.Now().UTC()
				return s.save(ctx, entries)
			}
		}
		return nil
	}
	return nil
}

// GetByCategory filters GetAll down to one category.
func (s *PlannerStore) GetByCategory(ctx context.Context, category model.Category) ([]model.PlannerEntry, error) {
	return s.filter(ctx, func(e model.PlannerEntry) bool { return e.Category == category })
}

// GetByPriority filters GetAll down to one priority.
func (s *PlannerStore) GetByPriority(ctx context.Context, priority model.Priority) ([]model.PlannerEntry, error) {
	return s.filter(ctx, func(e model.PlannerEntry) bool { return e.Priority == priority })
}

// GetCompleted returns entries that are fully completed, subtasks
// included.
func (s *PlannerStore) GetCompleted(ctx context.Context) ([]model.PlannerEntry, error) {
	return s.filter(ctx, model.PlannerEntry.IsFullyCompleted)
}

// GetIncomplete returns entries with any work remaining.
func (s *PlannerStore) GetIncomplete(ctx context.Context) ([]model.PlannerEntry, error) {
	return s.filter(ctx, func(e model.PlannerEntry) bool { return !e.IsFullyCompleted() })
}

func (s *PlannerStore) filter(ctx context.Context, keep func(model.PlannerEntry) bool) ([]model.PlannerEntry, error) {
	entries, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.PlannerEntry
	for _, e := range entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Analytics aggregates over non-archived entries only.
func (s *PlannerStore) Analytics(ctx context.Context, now time.Time) (model.PlannerAnalytics, error) {
	entries, err := s.GetAll(ctx)
	if err != nil {
		return model.PlannerAnalytics{}, err
	}

	a := model.PlannerAnalytics{
		CategoryDistribution: make(map[model.Category]int),
	}

	weekStart := startOfWeek(now)
	weekEnd := weekStart.AddDate(0, 0, 7)

	for _, e := range entries {
		if e.IsArchived {
			continue
		}
		a.TotalTasks++
		if e.IsFullyCompleted() {
			a.CompletedTasks++
		} else if e.Priority == model.PriorityHigh {
			a.HighPriorityPending++
		}
		a.CategoryDistribution[e.Category]++

		if !e.DateTime.Before(weekStart) && e.DateTime.Before(weekEnd) {
			day := (int(e.DateTime.Weekday()) + 6) % 7 // Monday first
			a.WeeklyTaskCounts[day]++
		}
	}

	a.PendingTasks = a.TotalTasks - a.CompletedTasks
	if a.TotalTasks > 0 {
		a.CompletionRate = float64(a.CompletedTasks) / float64(a.TotalTasks)
	}
	return a, nil
}

// migrateLocked runs the one-way v1 to v2 migration on the first read
// after install. Undecodable legacy records are dropped rather than
// aborting, and the flag write is last so a crash mid-migration
// retries on the next read.
func (s *PlannerStore) migrateLocked(ctx context.Context) error {
	flag, ok, err := s.kv.Get(ctx, migratedFlagKey)
	if err != nil {
		return err
	}
	if ok && string(flag) == "true" {
		return nil
	}

	legacy, err := s.load(ctx, legacyEntriesKey)
	if err != nil {
		return err
	}
	if len(legacy) > 0 {
		if err := s.save(ctx, legacy); err != nil {
			return err
		}
		s.logger.Info("migrated planner entries", "count", len(legacy))
	}

	return s.kv.Put(ctx, migratedFlagKey, []byte("true"))
}

// load decodes the array document under key. A document that is not a
// JSON array counts as absent; an element that fails to decode is
// skipped. Corruption is self-healing, never fatal.
func (s *PlannerStore) load(ctx context.Context, key string) ([]model.PlannerEntry, error) {
	data, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.Warn("planner document is not a JSON array, treating as empty", "key", key, "error", err)
		return nil, nil
	}

	entries := make([]model.PlannerEntry, 0, len(raw))
	for _, r := range raw {
		var e model.PlannerEntry
		if err := json.Unmarshal(r, &e); err != nil {
			s.logger.Warn("skipping unparsable planner entry", "key", key, "error", err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *PlannerStore) save(ctx context.Context, entries []model.PlannerEntry) error {
	if entries == nil {
		entries = []model.PlannerEntry{}
	}
	sortEntries(entries)
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return s.kv.Put(ctx, entriesKey, data)
}

func sortEntries(entries []model.PlannerEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].DateTime.Before(entries[j].DateTime)
	})
}

// startOfWeek returns Monday 00:00 of t's week in t's location.
func startOfWeek(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	monday := t.AddDate(0, 0, -offset)
	return time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, t.Location())
}
