package notify

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/campusmate/planner/internal/database"
)

func newTestWebPush(t *testing.T, cfg Config) (*WebPush, *SubscriptionStore, *sql.DB) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	subs := NewSubscriptionStore(db)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewWebPush(db, subs, cfg, logger), subs, db
}

func pendingIDs(t *testing.T, db *sql.DB) []int {
	t.Helper()
	rows, err := db.Query(`SELECT id FROM scheduled_notifications ORDER BY id`)
	if err != nil {
		t.Fatalf("query pending: %v", err)
	}
	defer rows.Close()
	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			t.Fatalf("scan: %v", err)
		}
		ids = append(ids, id)
	}
	return ids
}

func TestScheduleReplacesSameID(t *testing.T) {
	w, _, db := newTestWebPush(t, Config{})
	ctx := context.Background()

	n := Notification{ID: 7, Title: "first", FireAt: time.Now().Add(time.Hour)}
	if err := w.Schedule(ctx, n); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	n.Title = "second"
	n.FireAt = time.Now().Add(2 * time.Hour)
	if err := w.Schedule(ctx, n); err != nil {
		t.Fatalf("reschedule: %v", err)
	}

	ids := pendingIDs(t, db)
	if len(ids) != 1 || ids[0] != 7 {
		t.Fatalf("pending = %v, want exactly [7]", ids)
	}

	var title string
	if err := db.QueryRow(`SELECT title FROM scheduled_notifications WHERE id = 7`).Scan(&title); err != nil {
		t.Fatalf("read back: %v", err)
	}
	if title != "second" {
		t.Errorf("title = %q, want the replacement", title)
	}
}

func TestCancel(t *testing.T) {
	w, _, db := newTestWebPush(t, Config{})
	ctx := context.Background()

	if err := w.Schedule(ctx, Notification{ID: 1, FireAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := w.Cancel(ctx, 1); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if ids := pendingIDs(t, db); len(ids) != 0 {
		t.Errorf("pending = %v, want empty", ids)
	}

	// Cancelling an unknown id is a no-op.
	if err := w.Cancel(ctx, 42); err != nil {
		t.Errorf("cancel unknown: %v", err)
	}
}

func TestPermissionGranted(t *testing.T) {
	ctx := context.Background()

	// No VAPID keys: denied regardless of subscriptions.
	w, subs, _ := newTestWebPush(t, Config{})
	if _, err := subs.Create("https://push.example/1", "p", "a", "phone"); err != nil {
		t.Fatalf("create sub: %v", err)
	}
	if granted, _ := w.PermissionGranted(ctx); granted {
		t.Error("granted without VAPID keys")
	}

	// Keys but no subscriptions: denied.
	w2, subs2, _ := newTestWebPush(t, Config{VAPIDPublicKey: "pub", VAPIDPrivateKey: "priv"})
	if granted, _ := w2.PermissionGranted(ctx); granted {
		t.Error("granted without any subscription")
	}

	// Keys and a subscription: granted.
	if _, err := subs2.Create("https://push.example/2", "p", "a", "laptop"); err != nil {
		t.Fatalf("create sub: %v", err)
	}
	if granted, _ := w2.PermissionGranted(ctx); !granted {
		t.Error("expected permission with keys and a subscription")
	}
}

func TestDeliverDueRemovesOnlyDueRows(t *testing.T) {
	w, _, db := newTestWebPush(t, Config{})
	ctx := context.Background()
	now := time.Now()

	if err := w.Schedule(ctx, Notification{ID: 1, Title: "due", FireAt: now.Add(-time.Minute)}); err != nil {
		t.Fatalf("schedule due: %v", err)
	}
	if err := w.Schedule(ctx, Notification{ID: 2, Title: "future", FireAt: now.Add(time.Hour)}); err != nil {
		t.Fatalf("schedule future: %v", err)
	}

	// With no registered endpoints delivery is a no-op, but due rows
	// must still be consumed.
	delivered, err := w.DeliverDue(ctx, now)
	if err != nil {
		t.Fatalf("deliver due: %v", err)
	}
	if len(delivered) != 1 || delivered[0].ID != 1 {
		t.Errorf("delivered = %v, want the due notification only", delivered)
	}

	ids := pendingIDs(t, db)
	if len(ids) != 1 || ids[0] != 2 {
		t.Errorf("pending after delivery = %v, want [2]", ids)
	}
}

func TestSubscriptionStore(t *testing.T) {
	_, subs, _ := newTestWebPush(t, Config{})

	created, err := subs.Create("https://push.example/a", "p256", "auth", "tablet")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == 0 || created.Endpoint != "https://push.example/a" {
		t.Fatalf("created = %+v", created)
	}

	// Re-registering the same endpoint refreshes keys, not rows.
	again, err := subs.Create("https://push.example/a", "p256-new", "auth-new", "tablet")
	if err != nil {
		t.Fatalf("re-create: %v", err)
	}
	if again.P256dhKey != "p256-new" {
		t.Errorf("p256dh = %q, want refreshed key", again.P256dhKey)
	}
	if n, _ := subs.Count(); n != 1 {
		t.Errorf("count = %d, want 1", n)
	}

	missing, err := subs.GetByEndpoint("https://push.example/nope")
	if err != nil || missing != nil {
		t.Errorf("missing = %v err = %v, want nil/nil", missing, err)
	}

	if err := subs.DeleteByEndpoint("https://push.example/a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n, _ := subs.Count(); n != 0 {
		t.Errorf("count after delete = %d, want 0", n)
	}
}
