// Package notify delivers local reminder notifications. The
// coordinator talks to the Service interface only; the web-push
// implementation behind it persists pending notifications and a
// dispatcher delivers them when they come due.
package notify

import (
	"context"
	"errors"
	"time"
)

// ErrExpired is returned when a push subscription is no longer valid
// (410 Gone).
var ErrExpired = errors.New("push subscription expired")

// Notification is one pending notification. ID correlates the stored
// reminder with the scheduled delivery; scheduling the same ID again
// replaces the pending notification.
type Notification struct {
	ID      int
	Title   string
	Body    string
	FireAt  time.Time
	Payload string
}

// Service is the external notification scheduler consumed by the
// reminder coordinator.
type Service interface {
	// Schedule registers a notification for delivery at its fire
	// time, replacing any pending notification with the same id.
	Schedule(ctx context.Context, n Notification) error
	// Cancel drops the pending notification with the given id;
	// cancelling an unknown id is a no-op.
	Cancel(ctx context.Context, id int) error
	// PermissionGranted reports whether notifications can be
	// delivered at all.
	PermissionGranted(ctx context.Context) (bool, error)
}
