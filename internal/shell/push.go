package shell

import (
	"context"
	"fmt"
	"time"

	"github.com/ridecheck/ridecheck/internal/logger"
)

// Notification action identifiers.
const (
	ActionExplore = "explore"
	ActionClose   = "close"
)

// NotificationAction is a button shown on a notification.
type NotificationAction struct {
	Action string `json:"action" mapstructure:"action"`
	Title  string `json:"title" mapstructure:"title"`
	Icon   string `json:"icon" mapstructure:"icon"`
}

// Notification is what the controller asks the platform to display.
type Notification struct {
	Title     string               `json:"title"`
	Body      string               `json:"body"`
	Icon      string               `json:"icon"`
	Badge     string               `json:"badge"`
	Vibrate   []int                `json:"vibrate"`
	Actions   []NotificationAction `json:"actions"`
	Timestamp time.Time            `json:"timestamp"`
}

// NotificationClick is a user interaction with a displayed notification.
// An empty Action means the notification body itself was clicked.
type NotificationClick struct {
	NotificationID string `json:"notification_id"`
	Action         string `json:"action"`
}

// Notifier displays and dismisses notifications.
type Notifier interface {
	// Show displays n and returns its identifier.
	Show(ctx context.Context, n Notification) (string, error)
	Dismiss(ctx context.Context, id string) error
}

// Clients is the set of open application instances.
type Clients interface {
	// Claim puts every open instance under the control of the named generation.
	Claim(ctx context.Context, generation string) error
	// OpenWindow focuses an existing instance showing url or opens a new one.
	OpenWindow(ctx context.Context, url string) error
}

// buildNotification renders a push payload with the configured template.
func (c *Controller) buildNotification(payload []byte) Notification {
	tmpl := c.cfg.Notification
	body := string(payload)
	if len(payload) == 0 {
		body = tmpl.DefaultBody
	}
	actions := make([]NotificationAction, len(tmpl.Actions))
	copy(actions, tmpl.Actions)
	vibrate := make([]int, len(tmpl.Vibrate))
	copy(vibrate, tmpl.Vibrate)

	return Notification{
		Title:     tmpl.Title,
		Body:      body,
		Icon:      tmpl.Icon,
		Badge:     tmpl.Badge,
		Vibrate:   vibrate,
		Actions:   actions,
		Timestamp: c.now(),
	}
}

// OnPush displays a notification for a push payload. The payload text is
// the body verbatim; an empty payload uses the default body. A failed
// display is returned and not retried.
func (c *Controller) OnPush(ctx context.Context, payload []byte) error {
	if c.notifier == nil {
		return ErrNotifierUnavailable
	}
	n := c.buildNotification(payload)
	if _, err := c.notifier.Show(ctx, n); err != nil {
		return fmt.Errorf("show notification: %w", err)
	}
	return nil
}

// OnNotificationAction handles a notification click. The notification is
// always dismissed; explore additionally opens the application root.
func (c *Controller) OnNotificationAction(ctx context.Context, click NotificationClick) error {
	if c.notifier != nil && click.NotificationID != "" {
		if err := c.notifier.Dismiss(ctx, click.NotificationID); err != nil {
			c.log.Debug("dismiss notification failed",
				logger.String("notification_id", click.NotificationID),
				logger.Error(err))
		}
	}
	if click.Action != ActionExplore || c.clients == nil {
		return nil
	}
	if err := c.clients.OpenWindow(ctx, c.cfg.Root); err != nil {
		return fmt.Errorf("open window: %w", err)
	}
	return nil
}
