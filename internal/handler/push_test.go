package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/campusmate/planner/internal/database"
	"github.com/campusmate/planner/internal/model"
	"github.com/campusmate/planner/internal/notify"
)

func newPushEnv(t *testing.T) (*PushHandler, *notify.SubscriptionStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	subs := notify.NewSubscriptionStore(db)
	svc := notify.NewWebPush(db, subs, notify.Config{VAPIDPublicKey: "public-key"}, logger)
	return NewPushHandler(subs, svc, logger), subs
}

func TestVAPIDKey(t *testing.T) {
	h, _ := newPushEnv(t)

	rec := httptest.NewRecorder()
	h.VAPIDKey(rec, httptest.NewRequest("GET", "/api/push/vapid-key", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	json.NewDecoder(rec.Body).Decode(&body)
	if body["key"] != "public-key" {
		t.Errorf("key = %q", body["key"])
	}
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	h, subs := newPushEnv(t)

	payload, _ := json.Marshal(map[string]string{
		"endpoint": "https://push.example/ep", "p256dh": "p", "auth": "a", "device_name": "phone",
	})
	rec := httptest.NewRecorder()
	h.Subscribe(rec, httptest.NewRequest("POST", "/api/push/subscribe", bytes.NewReader(payload)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("subscribe status = %d body %s", rec.Code, rec.Body)
	}
	var sub model.PushSubscription
	json.NewDecoder(rec.Body).Decode(&sub)
	if sub.Endpoint != "https://push.example/ep" {
		t.Errorf("endpoint = %q", sub.Endpoint)
	}

	// Missing keys are rejected.
	bad, _ := json.Marshal(map[string]string{"endpoint": "https://push.example/other"})
	rec = httptest.NewRecorder()
	h.Subscribe(rec, httptest.NewRequest("POST", "/api/push/subscribe", bytes.NewReader(bad)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("incomplete subscribe status = %d, want 400", rec.Code)
	}

	del, _ := json.Marshal(map[string]string{"endpoint": "https://push.example/ep"})
	rec = httptest.NewRecorder()
	h.Unsubscribe(rec, httptest.NewRequest("DELETE", "/api/push/subscribe", bytes.NewReader(del)))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("unsubscribe status = %d", rec.Code)
	}
	if n, _ := subs.Count(); n != 0 {
		t.Errorf("count = %d, want 0", n)
	}
}
