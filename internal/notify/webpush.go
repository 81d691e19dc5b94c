package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/sethvargo/go-retry"
)

// Config holds VAPID configuration for web push delivery.
type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subscriber      string
}

// payload is the JSON sent to the push service.
type payload struct {
	Title   string `json:"title"`
	Body    string `json:"body"`
	Payload string `json:"payload,omitempty"`
	Tag     string `json:"tag,omitempty"`
}

// WebPush implements Service: Schedule persists the notification in
// the scheduled_notifications table and the Dispatcher pushes it to
// every registered endpoint once it comes due.
type WebPush struct {
	db     *sql.DB
	subs   *SubscriptionStore
	cfg    Config
	logger *slog.Logger
}

func NewWebPush(db *sql.DB, subs *SubscriptionStore, cfg Config, logger *slog.Logger) *WebPush {
	return &WebPush{db: db, subs: subs, cfg: cfg, logger: logger}
}

// VAPIDPublicKey returns the public key for client-side subscription.
func (w *WebPush) VAPIDPublicKey() string {
	return w.cfg.VAPIDPublicKey
}

// Schedule registers a notification, replacing any pending one with
// the same id.
func (w *WebPush) Schedule(ctx context.Context, n Notification) error {
	_, err := w.db.ExecContext(ctx,
		`INSERT INTO scheduled_notifications (id, title, body, fire_at, payload)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET title = excluded.title, body = excluded.body, fire_at = excluded.fire_at, payload = excluded.payload`,
		n.ID, n.Title, n.Body, n.FireAt.UTC(), n.Payload,
	)
	if err != nil {
		return fmt.Errorf("schedule notification %d: %w", n.ID, err)
	}
	return nil
}

// Cancel drops the pending notification with the given id.
func (w *WebPush) Cancel(ctx context.Context, id int) error {
	_, err := w.db.ExecContext(ctx, `DELETE FROM scheduled_notifications WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("cancel notification %d: %w", id, err)
	}
	return nil
}

// PermissionGranted reports whether delivery is possible: VAPID keys
// configured and at least one endpoint registered.
func (w *WebPush) PermissionGranted(ctx context.Context) (bool, error) {
	if w.cfg.VAPIDPublicKey == "" || w.cfg.VAPIDPrivateKey == "" {
		return false, nil
	}
	n, err := w.subs.Count()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeliverDue pushes every notification whose fire time has passed,
// removes it from the pending table, and returns what was delivered so
// the Dispatcher can run its post-delivery hook. Called by the
// Dispatcher.
func (w *WebPush) DeliverDue(ctx context.Context, now time.Time) ([]Notification, error) {
	rows, err := w.db.QueryContext(ctx,
		`SELECT id, title, body, fire_at, payload FROM scheduled_notifications WHERE fire_at <= ?`,
		now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("query due notifications: %w", err)
	}
	defer rows.Close()

	var due []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.Title, &n.Body, &n.FireAt, &n.Payload); err != nil {
			return nil, fmt.Errorf("scan due notification: %w", err)
		}
		due = append(due, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var delivered []Notification
	for _, n := range due {
		w.deliver(ctx, n)
		if err := w.Cancel(ctx, n.ID); err != nil {
			return delivered, err
		}
		delivered = append(delivered, n)
	}
	return delivered, nil
}

func (w *WebPush) deliver(ctx context.Context, n Notification) {
	subs, err := w.subs.List()
	if err != nil {
		w.logger.Error("list subscriptions", "error", err)
		return
	}

	for _, sub := range subs {
		err := w.sendWithRetry(ctx, sub.Endpoint, sub.P256dhKey, sub.AuthKey, payload{
			Title:   n.Title,
			Body:    n.Body,
			Payload: n.Payload,
			Tag:     fmt.Sprintf("reminder-%d", n.ID),
		})
		if errors.Is(err, ErrExpired) {
			w.subs.DeleteByEndpoint(sub.Endpoint)
			continue
		}
		if err != nil {
			w.logger.Error("send notification", "id", n.ID, "error", err)
		}
	}
}

// sendWithRetry pushes one payload, retrying transient failures with
// exponential backoff. Expired endpoints are reported as ErrExpired
// without retrying.
func (w *WebPush) sendWithRetry(ctx context.Context, endpoint, p256dh, auth string, p payload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp, err := webpush.SendNotificationWithContext(ctx, data, &webpush.Subscription{
			Endpoint: endpoint,
			Keys: webpush.Keys{
				P256dh: p256dh,
				Auth:   auth,
			},
		}, &webpush.Options{
			VAPIDPublicKey:  w.cfg.VAPIDPublicKey,
			VAPIDPrivateKey: w.cfg.VAPIDPrivateKey,
			Subscriber:      w.cfg.Subscriber,
			TTL:             86400,
		})
		if err != nil {
			return retry.RetryableError(fmt.Errorf("send push: %w", err))
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusGone {
			return ErrExpired
		}
		if resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("push service returned %d", resp.StatusCode))
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("push service returned %d", resp.StatusCode)
		}
		return nil
	})
}
