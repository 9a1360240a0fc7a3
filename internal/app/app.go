// Package app wires the shell host components together from settings.
package app

import (
	"context"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ridecheck/ridecheck/internal/alerting"
	"github.com/ridecheck/ridecheck/internal/build"
	"github.com/ridecheck/ridecheck/internal/conf"
	"github.com/ridecheck/ridecheck/internal/datastore"
	"github.com/ridecheck/ridecheck/internal/errors"
	"github.com/ridecheck/ridecheck/internal/fetch"
	"github.com/ridecheck/ridecheck/internal/logger"
	"github.com/ridecheck/ridecheck/internal/notification"
	"github.com/ridecheck/ridecheck/internal/observability/metrics"
	"github.com/ridecheck/ridecheck/internal/shell"
	"github.com/ridecheck/ridecheck/internal/telemetry"
)

const flushTimeout = 2 * time.Second

// App owns every long-lived component of the host.
type App struct {
	Settings      *conf.Settings
	Log           logger.Logger
	Storage       shell.Storage
	Fetcher       *fetch.Client
	Notifications *notification.Service
	Registration  *shell.Registration
	Events        *shell.EventBus
	Registry      *prometheus.Registry
	ShellMetrics  *metrics.ShellMetrics
	HTTPMetrics   *metrics.HTTPMetrics
	Reporter      *telemetry.Reporter
	Alerts        *alerting.Engine

	alertDispatcher *alerting.Dispatcher
	closeStorage    func() error
}

// NewLogger builds the host logger from the logging settings.
func NewLogger(settings conf.LoggingSettings, out io.Writer) (logger.Logger, error) {
	level, err := logger.ParseLevel(settings.Level)
	if err != nil {
		return nil, errors.Categorize(err, errors.CategoryConfig, "app")
	}
	loc, err := settings.Location()
	if err != nil {
		return nil, errors.Categorize(err, errors.CategoryConfig, "app")
	}
	return logger.NewSlogLoggerWithOptions(out, logger.Options{Level: level, JSON: settings.JSON, Location: loc}), nil
}

// New builds the components described by settings. On error everything
// created so far is released.
func New(settings *conf.Settings, log logger.Logger) (a *App, err error) {
	if log == nil {
		log = logger.Nop()
	}
	a = &App{Settings: settings, Log: log, Registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			_ = a.Close()
			a = nil
		}
	}()

	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if a.ShellMetrics, err = metrics.NewShellMetrics(a.Registry); err != nil {
		return nil, err
	}
	if a.HTTPMetrics, err = metrics.NewHTTPMetrics(a.Registry); err != nil {
		return nil, err
	}

	if a.Reporter, err = telemetry.New(settings.Telemetry, build.Version, log); err != nil {
		return nil, err
	}
	a.Events = shell.NewEventBus()
	a.Reporter.Attach(a.Events)
	if err = a.initAlerting(settings.Alerting); err != nil {
		return nil, err
	}

	if a.Storage, a.closeStorage, err = datastore.NewStorage(settings.Storage, log); err != nil {
		return nil, err
	}

	a.Fetcher, err = fetch.New(settings.Shell.Upstream,
		fetch.WithTimeout(settings.Fetch.Timeout.Std()),
		fetch.WithMaxBodyBytes(settings.Fetch.MaxBodyBytes),
		fetch.WithUserAgent(settings.Fetch.UserAgent),
		fetch.WithLogger(log))
	if err != nil {
		return nil, err
	}

	providers, err := newProviders(settings.Push)
	if err != nil {
		return nil, err
	}
	a.Notifications = notification.NewService(&notification.ServiceConfig{
		TTL:       settings.Push.NotificationTTL.Std(),
		Providers: providers,
		Logger:    log,
	})
	if err := metrics.RegisterGauge(a.Registry, "connected_clients", "Application instances subscribed to shell events.",
		func() float64 { return float64(a.Notifications.SubscriberCount()) }); err != nil {
		return nil, err
	}

	a.Registration = shell.NewRegistration(a.Fetcher, log)
	return a, nil
}

func newProviders(push conf.PushSettings) ([]notification.Provider, error) {
	if len(push.ShoutrrrURLs) == 0 {
		return nil, nil
	}
	p, err := notification.NewShoutrrrProvider("shoutrrr", push.ShoutrrrURLs, 30*time.Second)
	if err != nil {
		return nil, err
	}
	return []notification.Provider{p}, nil
}

func (a *App) initAlerting(settings conf.AlertingSettings) error {
	if !settings.Enabled {
		return nil
	}
	p, err := notification.NewShoutrrrProvider("alerting", settings.ShoutrrrURLs, 30*time.Second)
	if err != nil {
		return err
	}
	a.alertDispatcher = alerting.NewDispatcher([]notification.Provider{p}, 0, a.Log)
	a.Alerts = alerting.NewEngine(alerting.DefaultRules(settings), a.alertDispatcher.Dispatch, a.Log)
	a.Alerts.Attach(a.Events)
	return nil
}

// ShellConfig maps the shell settings onto a controller configuration.
func ShellConfig(s conf.ShellSettings) shell.Config {
	cfg := shell.Config{
		CacheName:          s.CacheName,
		Manifest:           s.Manifest,
		Root:               s.Root,
		CacheUnsafeMethods: s.CacheUnsafeMethods,
		CacheAuthorized:    s.CacheAuthorized,
		InstallConcurrency: s.InstallConcurrency,
		Notification: shell.NotificationTemplate{
			Title:       s.Notification.Title,
			DefaultBody: s.Notification.DefaultBody,
			Icon:        s.Notification.Icon,
			Badge:       s.Notification.Badge,
			Vibrate:     s.Notification.Vibrate,
		},
	}
	for _, action := range s.Notification.Actions {
		cfg.Notification.Actions = append(cfg.Notification.Actions, shell.NotificationAction{
			Action: action.Action,
			Title:  action.Title,
			Icon:   action.Icon,
		})
	}
	return cfg
}

// NewController builds a controller for the configured deployment.
func (a *App) NewController() (*shell.Controller, error) {
	return shell.NewController(ShellConfig(a.Settings.Shell), a.Storage, a.Fetcher,
		shell.WithNotifier(a.Notifications),
		shell.WithClients(a.Notifications),
		shell.WithMetrics(a.ShellMetrics),
		shell.WithEventBus(a.Events),
		shell.WithLogger(a.Log))
}

// Install installs and activates the configured version.
func (a *App) Install(ctx context.Context) error {
	ctrl, err := a.NewController()
	if err != nil {
		return err
	}
	if err := a.Registration.Update(ctx, ctrl); err != nil {
		return fmt.Errorf("install %s: %w", ctrl.CacheName(), err)
	}
	a.Log.Info("controller active",
		logger.String("generation", ctrl.CacheName()),
		logger.Int("manifest", len(ctrl.Manifest())))
	return nil
}

// Prune deletes every generation except keep and returns the deleted names.
func (a *App) Prune(ctx context.Context, keep string) ([]string, error) {
	names, err := a.Storage.Names(ctx)
	if err != nil {
		return nil, err
	}
	slices.Sort(names)
	var deleted []string
	for _, name := range names {
		if name == keep {
			continue
		}
		ok, err := a.Storage.Delete(ctx, name)
		if err != nil {
			return deleted, fmt.Errorf("delete %s: %w", name, err)
		}
		if ok {
			deleted = append(deleted, name)
		}
	}
	return deleted, nil
}

// Close releases everything New created.
func (a *App) Close() error {
	if a.Registration != nil {
		a.Registration.Flush()
	}
	if a.Notifications != nil {
		a.Notifications.Stop()
	}
	if a.Events != nil {
		a.Events.Stop()
	}
	if a.alertDispatcher != nil {
		a.alertDispatcher.Wait()
	}
	a.Reporter.Flush(flushTimeout)
	if a.closeStorage != nil {
		return a.closeStorage()
	}
	return nil
}
