package notify

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestTickRunsDeliveredHookPerNotification(t *testing.T) {
	w, _, db := newTestWebPush(t, Config{})
	ctx := context.Background()

	if err := w.Schedule(ctx, Notification{ID: 1, Title: "due", FireAt: time.Now().Add(-time.Minute), Payload: "notice:10"}); err != nil {
		t.Fatalf("schedule due: %v", err)
	}
	if err := w.Schedule(ctx, Notification{ID: 2, Title: "future", FireAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("schedule future: %v", err)
	}

	var seen []Notification
	hook := func(_ context.Context, n Notification) {
		seen = append(seen, n)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := NewDispatcher(w, time.Hour, hook, logger)

	d.tick(ctx)

	if len(seen) != 1 {
		t.Fatalf("hook ran for %d notifications, want 1", len(seen))
	}
	if seen[0].ID != 1 || seen[0].Payload != "notice:10" {
		t.Errorf("hook saw %+v, want the due notification", seen[0])
	}
	if ids := pendingIDs(t, db); len(ids) != 1 || ids[0] != 2 {
		t.Errorf("pending after tick = %v, want [2]", ids)
	}

	// A second tick finds nothing due; the hook must not fire again.
	d.tick(ctx)
	if len(seen) != 1 {
		t.Errorf("hook ran %d times after empty tick, want still 1", len(seen))
	}
}

func TestTickWithoutHook(t *testing.T) {
	w, _, _ := newTestWebPush(t, Config{})
	ctx := context.Background()

	if err := w.Schedule(ctx, Notification{ID: 1, FireAt: time.Now().Add(-time.Minute)}); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := NewDispatcher(w, time.Hour, nil, logger)

	// Must not panic with no hook configured.
	d.tick(ctx)
}
