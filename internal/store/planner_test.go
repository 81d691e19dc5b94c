package store

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/campusmate/planner/internal/database"
	"github.com/campusmate/planner/internal/kv"
	"github.com/campusmate/planner/internal/model"
)

func testKV(t *testing.T) *kv.Store {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return kv.New(db)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPlannerStore(t *testing.T) (*PlannerStore, *kv.Store) {
	t.Helper()
	kvs := testKV(t)
	return NewPlannerStore(kvs, testLogger()), kvs
}

func entryAt(title string, due time.Time) model.PlannerEntry {
	return model.NewPlannerEntry(title, due)
}

func TestPlannerUpsertAndGet(t *testing.T) {
	s, _ := newTestPlannerStore(t)
	ctx := context.Background()

	e := entryAt("read chapter 4", time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))
	if err := s.Upsert(ctx, e); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.GetByID(ctx, e.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Title != "read chapter 4" {
		t.Fatalf("got = %+v, want stored entry", got)
	}

	// Second upsert with the same id replaces, never duplicates.
	e.Title = "read chapters 4-5"
	if err := s.Upsert(ctx, e); err != nil {
		t.Fatalf("upsert replace: %v", err)
	}
	all, err := s.GetAll(ctx)
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("len = %d, want 1", len(all))
	}
	if all[0].Title != "read chapters 4-5" {
		t.Errorf("title = %q, want replaced title", all[0].Title)
	}
}

func TestPlannerGetAllSortedByDateTime(t *testing.T) {
	s, _ := newTestPlannerStore(t)
	ctx := context.Background()

	later := entryAt("later", time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	earlier := entryAt("earlier", time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	for _, e := range []model.PlannerEntry{later, earlier} {
		if err := s.Upsert(ctx, e); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	all, err := s.GetAll(ctx)
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(all) != 2 || all[0].Title != "earlier" || all[1].Title != "later" {
		t.Errorf("order = %v, want ascending dateTime", []string{all[0].Title, all[1].Title})
	}
}

func TestPlannerDeleteUnknownIDIsNoOp(t *testing.T) {
	s, _ := newTestPlannerStore(t)
	ctx := context.Background()

	e := entryAt("keep me", time.Now().UTC())
	if err := s.Upsert(ctx, e); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.DeleteByID(ctx, "no-such-id"); err != nil {
		t.Fatalf("delete unknown: %v", err)
	}
	all, _ := s.GetAll(ctx)
	if len(all) != 1 {
		t.Errorf("len = %d, want 1", len(all))
	}

	if err := s.DeleteByID(ctx, e.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	all, _ = s.GetAll(ctx)
	if len(all) != 0 {
		t.Errorf("len after delete = %d, want 0", len(all))
	}
}

func TestPlannerToggles(t *testing.T) {
	s, _ := newTestPlannerStore(t)
	ctx := context.Background()

	e := entryAt("with subtasks", time.Now().UTC())
	e.Subtasks = []model.SubTask{{ID: "st1", Title: "outline"}, {ID: "st2", Title: "draft"}}
	e.UpdatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := s.Upsert(ctx, e); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := s.ToggleCompletion(ctx, e.ID); err != nil {
		t.Fatalf("toggle completion: %v", err)
	}
	got, _ := s.GetByID(ctx, e.ID)
	if !got.IsCompleted {
		t.Error("entry should be completed after toggle")
	}
	if !got.UpdatedAt.After(e.UpdatedAt) {
		t.Error("updatedAt should refresh on toggle")
	}

	if err := s.ToggleSubtask(ctx, e.ID, "st1"); err != nil {
		t.Fatalf("toggle subtask: %v", err)
	}
	got, _ = s.GetByID(ctx, e.ID)
	if !got.Subtasks[0].IsCompleted || got.Subtasks[1].IsCompleted {
		t.Errorf("subtask states = %v/%v, want true/false", got.Subtasks[0].IsCompleted, got.Subtasks[1].IsCompleted)
	}

	// Unknown ids are silent no-ops.
	if err := s.ToggleCompletion(ctx, "missing"); err != nil {
		t.Errorf("toggle unknown entry: %v", err)
	}
	if err := s.ToggleSubtask(ctx, e.ID, "missing"); err != nil {
		t.Errorf("toggle unknown subtask: %v", err)
	}
}

func TestPlannerFilters(t *testing.T) {
	s, _ := newTestPlannerStore(t)
	ctx := context.Background()

	exam := entryAt("exam prep", time.Now().UTC())
	exam.Category = model.CategoryExam
	exam.Priority = model.PriorityHigh

	done := entryAt("done task", time.Now().UTC())
	done.IsCompleted = true

	halfDone := entryAt("half done", time.Now().UTC())
	halfDone.IsCompleted = true
	halfDone.Subtasks = []model.SubTask{{ID: "a", IsCompleted: false}}

	for _, e := range []model.PlannerEntry{exam, done, halfDone} {
		if err := s.Upsert(ctx, e); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	byCat, _ := s.GetByCategory(ctx, model.CategoryExam)
	if len(byCat) != 1 || byCat[0].ID != exam.ID {
		t.Errorf("by category = %d entries, want the exam entry", len(byCat))
	}

	byPri, _ := s.GetByPriority(ctx, model.PriorityHigh)
	if len(byPri) != 1 || byPri[0].ID != exam.ID {
		t.Errorf("by priority = %d entries, want the exam entry", len(byPri))
	}

	// halfDone has an open subtask, so it counts as incomplete.
	completed, _ := s.GetCompleted(ctx)
	if len(completed) != 1 || completed[0].ID != done.ID {
		t.Errorf("completed = %d entries, want only the fully done one", len(completed))
	}
	incomplete, _ := s.GetIncomplete(ctx)
	if len(incomplete) != 2 {
		t.Errorf("incomplete = %d entries, want 2", len(incomplete))
	}
}

func TestPlannerMigration(t *testing.T) {
	s, kvs := newTestPlannerStore(t)
	ctx := context.Background()

	legacy := []model.PlannerEntry{
		entryAt("old one", time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)),
		entryAt("old two", time.Date(2026, 1, 6, 9, 0, 0, 0, time.UTC)),
	}
	data, _ := json.Marshal(legacy)
	if err := kvs.Put(ctx, legacyEntriesKey, data); err != nil {
		t.Fatalf("seed legacy: %v", err)
	}

	all, err := s.GetAll(ctx)
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("migrated %d entries, want 2", len(all))
	}

	flag, ok, err := kvs.Get(ctx, migratedFlagKey)
	if err != nil || !ok || string(flag) != "true" {
		t.Fatalf("flag = %q ok=%v err=%v, want \"true\"", flag, ok, err)
	}

	// A second legacy write after migration must be ignored.
	extra := []model.PlannerEntry{entryAt("late arrival", time.Now().UTC())}
	data, _ = json.Marshal(extra)
	kvs.Put(ctx, legacyEntriesKey, data)

	all, _ = s.GetAll(ctx)
	if len(all) != 2 {
		t.Errorf("entries after second read = %d, migration must run once", len(all))
	}
}

func TestPlannerMigrationEmptyLegacySetsFlagOnly(t *testing.T) {
	s, kvs := newTestPlannerStore(t)
	ctx := context.Background()

	all, err := s.GetAll(ctx)
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("entries = %d, want 0", len(all))
	}

	if _, ok, _ := kvs.Get(ctx, migratedFlagKey); !ok {
		t.Error("flag should be set even with no legacy data")
	}
	// No v2 document should be written for an empty migration.
	if _, ok, _ := kvs.Get(ctx, entriesKey); ok {
		t.Error("empty migration should not create the v2 document")
	}
}

func TestPlannerCorruptDocumentRecovery(t *testing.T) {
	s, kvs := newTestPlannerStore(t)
	ctx := context.Background()

	kvs.Put(ctx, migratedFlagKey, []byte("true"))

	// One good element, one garbage element.
	good := entryAt("survivor", time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC))
	goodJSON, _ := json.Marshal(good)
	doc := []byte(`[` + string(goodJSON) + `,"not an object",12]`)
	kvs.Put(ctx, entriesKey, doc)

	all, err := s.GetAll(ctx)
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(all) != 1 || all[0].ID != good.ID {
		t.Fatalf("recovered %d entries, want only the good one", len(all))
	}

	// A document that is not an array reads as empty, not as an error.
	kvs.Put(ctx, entriesKey, []byte(`{"oops":true}`))
	all, err = s.GetAll(ctx)
	if err != nil {
		t.Fatalf("get all non-array: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("non-array document yielded %d entries, want 0", len(all))
	}
}

func TestPlannerAnalytics(t *testing.T) {
	s, _ := newTestPlannerStore(t)
	ctx := context.Background()

	now := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC) // a Wednesday

	doneNoSubtasks := entryAt("done", now)
	doneNoSubtasks.IsCompleted = true
	doneNoSubtasks.Category = model.CategoryExam

	doneWithOpenSubtask := entryAt("almost", now.Add(time.Hour))
	doneWithOpenSubtask.IsCompleted = true
	doneWithOpenSubtask.Priority = model.PriorityHigh
	doneWithOpenSubtask.Subtasks = []model.SubTask{{ID: "a"}}

	pending := entryAt("pending", now.AddDate(0, 1, 0))
	pending.Priority = model.PriorityHigh

	archived := entryAt("archived", now)
	archived.IsArchived = true

	for _, e := range []model.PlannerEntry{doneNoSubtasks, doneWithOpenSubtask, pending, archived} {
		if err := s.Upsert(ctx, e); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	a, err := s.Analytics(ctx, now)
	if err != nil {
		t.Fatalf("analytics: %v", err)
	}

	if a.TotalTasks != 3 {
		t.Errorf("total = %d, want 3 (archived excluded)", a.TotalTasks)
	}
	// The entry with an open subtask is not completed.
	if a.CompletedTasks != 1 {
		t.Errorf("completed = %d, want 1", a.CompletedTasks)
	}
	if a.PendingTasks != 2 {
		t.Errorf("pending = %d, want 2", a.PendingTasks)
	}
	if a.HighPriorityPending != 2 {
		t.Errorf("high priority pending = %d, want 2", a.HighPriorityPending)
	}
	if want := 1.0 / 3.0; a.CompletionRate != want {
		t.Errorf("completion rate = %v, want %v", a.CompletionRate, want)
	}
	if a.CategoryDistribution[model.CategoryExam] != 1 || a.CategoryDistribution[model.CategoryDeadline] != 2 {
		t.Errorf("category distribution = %v", a.CategoryDistribution)
	}
	// Wednesday is index 2 with Monday first; two entries fall on it
	// this week, the pending one is next month.
	if a.WeeklyTaskCounts[2] != 2 {
		t.Errorf("wednesday count = %d, want 2", a.WeeklyTaskCounts[2])
	}
}

func TestPlannerAnalyticsEmpty(t *testing.T) {
	s, _ := newTestPlannerStore(t)

	a, err := s.Analytics(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("analytics: %v", err)
	}
	if a.TotalTasks != 0 || a.CompletionRate != 0 {
		t.Errorf("empty analytics = %+v, want zeroes", a)
	}
}

func TestStartOfWeek(t *testing.T) {
	// Sunday belongs to the week that started the previous Monday.
	sunday := time.Date(2026, 6, 14, 23, 0, 0, 0, time.UTC)
	if got := startOfWeek(sunday); !got.Equal(time.Date(2026, 6, 8, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("startOfWeek(sunday) = %v", got)
	}
	monday := time.Date(2026, 6, 8, 1, 0, 0, 0, time.UTC)
	if got := startOfWeek(monday); !got.Equal(time.Date(2026, 6, 8, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("startOfWeek(monday) = %v", got)
	}
}
