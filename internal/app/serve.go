package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ridecheck/ridecheck/internal/api"
	"github.com/ridecheck/ridecheck/internal/logger"
	"github.com/ridecheck/ridecheck/internal/pushsub"
)

// NewServer builds the HTTP host adapter for a.
func (a *App) NewServer() (*api.Server, error) {
	return api.New(a.Settings.Server, api.Deps{
		Registration:  a.Registration,
		NewController: a.NewController,
		Storage:       a.Storage,
		Notifications: a.Notifications,
		Gatherer:      a.Registry,
		HTTPMetrics:   a.HTTPMetrics,
		Reporter:      a.Reporter,
		Logger:        a.Log,
	})
}

// Serve installs the configured version, then serves HTTP and, when
// enabled, MQTT push until ctx ends. A failed install is logged and the
// host keeps passing requests through to the origin; POST /_shell/update
// retries it.
func (a *App) Serve(ctx context.Context) error {
	server, err := a.NewServer()
	if err != nil {
		return err
	}

	var sub *pushsub.Subscriber
	if mqttSettings := a.Settings.Push.MQTT; mqttSettings.Enabled {
		sub, err = pushsub.New(pushsub.ConfigFromSettings(mqttSettings), a.Registration, a.Log)
		if err != nil {
			return err
		}
	}

	if err := a.Install(ctx); err != nil {
		a.Log.Error("initial install failed, serving uncached", logger.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	if sub != nil {
		g.Go(func() error { return sub.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), time.Minute)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			a.Log.Warn("http shutdown incomplete", logger.Error(err))
		}
		return nil
	})

	err = g.Wait()
	a.Log.Info("host stopped")
	return err
}
