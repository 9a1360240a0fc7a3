package alerting

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ridecheck/ridecheck/internal/logger"
	"github.com/ridecheck/ridecheck/internal/notification"
	"github.com/ridecheck/ridecheck/internal/shell"
)

// defaultSendTimeout bounds one provider send.
const defaultSendTimeout = 30 * time.Second

// Dispatcher renders fired alerts and sends them to providers.
type Dispatcher struct {
	providers []notification.Provider
	timeout   time.Duration
	log       logger.Logger
	wg        sync.WaitGroup
}

// NewDispatcher creates a dispatcher. A non-positive timeout uses the default.
func NewDispatcher(providers []notification.Provider, timeout time.Duration, log logger.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Dispatcher{providers: providers, timeout: timeout, log: log.Module("alerting")}
}

// Dispatch implements ActionFunc. Sends run in the background; Wait joins them.
func (d *Dispatcher) Dispatch(alert *Alert) {
	n := notification.NewNotification(shell.Notification{
		Title:     renderTemplate(alert.Rule.Title, alert),
		Body:      renderTemplate(alert.Rule.Message, alert),
		Timestamp: alert.FiredAt,
	})
	for _, p := range d.providers {
		d.wg.Add(1)
		go func(p notification.Provider) {
			defer d.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			defer cancel()
			if err := p.Send(ctx, n); err != nil {
				d.log.Error("failed to send alert",
					logger.String("provider", p.Name()),
					logger.String("rule", alert.Rule.Name),
					logger.Error(err))
			}
		}(p)
	}
}

// Wait blocks until in-flight sends finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// renderTemplate substitutes alert variables in tmpl. An empty template
// renders a generic line.
func renderTemplate(tmpl string, alert *Alert) string {
	if tmpl == "" {
		return defaultTemplate(alert)
	}
	errText := ""
	if alert.Event.Err != nil {
		errText = alert.Event.Err.Error()
	}
	return strings.NewReplacer(
		"{{rule_name}}", alert.Rule.Name,
		"{{event}}", string(alert.Event.Kind),
		"{{generation}}", alert.Event.Generation,
		"{{key}}", alert.Event.Key,
		"{{error}}", errText,
		"{{count}}", strconv.Itoa(alert.Count),
	).Replace(tmpl)
}

func defaultTemplate(alert *Alert) string {
	if alert.Event.Generation != "" {
		return fmt.Sprintf("Alert: %s (%s, %s)", alert.Rule.Name, alert.Event.Kind, alert.Event.Generation)
	}
	return fmt.Sprintf("Alert: %s (%s)", alert.Rule.Name, alert.Event.Kind)
}
