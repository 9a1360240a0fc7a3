// Package telemetry reports controller failures to Sentry.
package telemetry

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/ridecheck/ridecheck/internal/conf"
	"github.com/ridecheck/ridecheck/internal/errors"
	"github.com/ridecheck/ridecheck/internal/logger"
	"github.com/ridecheck/ridecheck/internal/shell"
)

// Reporter sends errors to Sentry. A Reporter built without a DSN is
// disabled and drops everything.
type Reporter struct {
	hub *sentry.Hub
	log logger.Logger
}

// New builds a reporter from settings. An empty DSN yields a disabled
// reporter, not an error.
func New(settings conf.TelemetrySettings, release string, log logger.Logger) (*Reporter, error) {
	if log == nil {
		log = logger.Nop()
	}
	if settings.SentryDSN == "" {
		return &Reporter{log: log.Module("telemetry")}, nil
	}
	return newReporter(sentry.ClientOptions{
		Dsn:         settings.SentryDSN,
		Environment: settings.Environment,
		Release:     release,
	}, log)
}

func newReporter(opts sentry.ClientOptions, log logger.Logger) (*Reporter, error) {
	client, err := sentry.NewClient(opts)
	if err != nil {
		return nil, errors.Categorize(fmt.Errorf("sentry client: %w", err), errors.CategoryConfig, "telemetry")
	}
	r := &Reporter{hub: sentry.NewHub(client, sentry.NewScope()), log: log.Module("telemetry")}
	r.log.Info("error reporting enabled", logger.String("environment", opts.Environment))
	return r, nil
}

// Enabled reports whether events are sent anywhere.
func (r *Reporter) Enabled() bool { return r != nil && r.hub != nil }

// Attach subscribes the reporter to controller lifecycle events.
func (r *Reporter) Attach(bus *shell.EventBus) {
	if !r.Enabled() || bus == nil {
		return
	}
	bus.Subscribe(r.HandleEvent)
}

// HandleEvent captures install failures and keeps other events as
// breadcrumbs for later reports.
func (r *Reporter) HandleEvent(ev *shell.LifecycleEvent) {
	if !r.Enabled() || ev == nil {
		return
	}
	switch ev.Kind {
	case shell.EventInstallFailed:
		r.capture(ev.Err, map[string]string{
			"event":      string(ev.Kind),
			"generation": ev.Generation,
		})
	default:
		data := map[string]any{"generation": ev.Generation}
		if ev.Key != "" {
			data["key"] = ev.Key
		}
		level := sentry.LevelInfo
		if ev.Err != nil {
			level = sentry.LevelWarning
			data["error"] = ev.Err.Error()
		}
		r.hub.AddBreadcrumb(&sentry.Breadcrumb{
			Category:  "lifecycle",
			Message:   string(ev.Kind),
			Level:     level,
			Data:      data,
			Timestamp: ev.Timestamp,
		}, nil)
	}
}

// CaptureError reports err tagged with the component that saw it.
func (r *Reporter) CaptureError(err error, component string) {
	if !r.Enabled() || err == nil {
		return
	}
	r.capture(err, map[string]string{"component": component})
}

func (r *Reporter) capture(err error, tags map[string]string) {
	if err == nil {
		return
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			if v != "" {
				scope.SetTag(k, v)
			}
		}
		if category, ok := errors.CategoryOf(err); ok {
			scope.SetTag("category", string(category))
		}
		r.hub.CaptureException(err)
	})
}

// Flush waits up to timeout for queued events to be sent.
func (r *Reporter) Flush(timeout time.Duration) bool {
	if !r.Enabled() {
		return true
	}
	return r.hub.Flush(timeout)
}
