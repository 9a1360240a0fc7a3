// Package notification displays push notifications to open RideCheck
// instances and keeps track of which instances the shell controls.
package notification

import (
	"time"

	"github.com/google/uuid"

	"github.com/ridecheck/ridecheck/internal/shell"
)

// Notification is a displayed notification.
type Notification struct {
	ID        string                     `json:"id"`
	Title     string                     `json:"title"`
	Body      string                     `json:"body"`
	Icon      string                     `json:"icon,omitempty"`
	Badge     string                     `json:"badge,omitempty"`
	Vibrate   []int                      `json:"vibrate,omitempty"`
	Actions   []shell.NotificationAction `json:"actions,omitempty"`
	CreatedAt time.Time                  `json:"created_at"`
}

// NewNotification assigns an id to a notification requested by the shell.
func NewNotification(n shell.Notification) *Notification {
	created := n.Timestamp
	if created.IsZero() {
		created = time.Now()
	}
	return &Notification{
		ID:        uuid.NewString(),
		Title:     n.Title,
		Body:      n.Body,
		Icon:      n.Icon,
		Badge:     n.Badge,
		Vibrate:   append([]int(nil), n.Vibrate...),
		Actions:   append([]shell.NotificationAction(nil), n.Actions...),
		CreatedAt: created,
	}
}

// Client event types.
const (
	EventNotification          = "notification"
	EventNotificationDismissed = "notification.dismissed"
	EventWindowOpen            = "window.open"
	EventControllerClaimed     = "controller.claimed"
)

// ClientEvent is delivered to every subscribed application instance.
type ClientEvent struct {
	Type           string        `json:"type"`
	Notification   *Notification `json:"notification,omitempty"`
	NotificationID string        `json:"notification_id,omitempty"`
	URL            string        `json:"url,omitempty"`
	Generation     string        `json:"generation,omitempty"`
	Timestamp      time.Time     `json:"timestamp"`
}
