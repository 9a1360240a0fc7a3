// Package shell implements the offline cache controller for the RideCheck
// application shell.
//
// A Controller owns one cache generation, named after the deployed version.
// It installs the shell into that generation, evicts every other generation on
// activation, and answers intercepted requests network-first for navigations
// and cache-first for everything else.
package shell

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ridecheck/ridecheck/internal/errors"
	"github.com/ridecheck/ridecheck/internal/logger"
)

var (
	// ErrNotActive is returned by Route when the controller is not ACTIVE.
	ErrNotActive = errors.New("cache controller is not active")
	// ErrInvalidTransition is returned when a lifecycle step is called out of order.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
	// ErrNotifierUnavailable is returned by OnPush when no Notifier is configured.
	ErrNotifierUnavailable = errors.New("notifier not configured")
)

// CacheController is the set of host events a controller reacts to.
type CacheController interface {
	OnInstall(ctx context.Context) error
	OnActivate(ctx context.Context) error
	Route(ctx context.Context, req *http.Request) (*Response, error)
	OnPush(ctx context.Context, payload []byte) error
	OnNotificationAction(ctx context.Context, click NotificationClick) error
	OnSync(ctx context.Context, tag string) error
}

// FetchMode selects how the network layer treats intermediate caches.
type FetchMode int

const (
	// FetchDefault lets intermediate HTTP caches answer.
	FetchDefault FetchMode = iota
	// FetchNoCache bypasses intermediate HTTP caches.
	FetchNoCache
)

// Fetcher performs network requests. An error means the network could not
// be reached; HTTP error statuses are returned as responses.
type Fetcher interface {
	Fetch(ctx context.Context, req *http.Request, mode FetchMode) (*Response, error)
}

// InstallError reports why installing a generation failed.
type InstallError struct {
	Generation string
	Err        error
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("install generation %q: %v", e.Generation, e.Err)
}

func (e *InstallError) Unwrap() error { return e.Err }

// StatusError reports a seed resource answered with a non-2xx status.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.URL, e.Status)
}

// Controller implements CacheController for one deployed version.
type Controller struct {
	cfg      Config
	storage  Storage
	fetcher  Fetcher
	notifier Notifier
	clients  Clients
	syncs    *SyncRegistry
	metrics  Metrics
	events   *EventBus
	log      logger.Logger
	now      func() time.Time

	mu         sync.RWMutex
	state      State
	generation Generation

	installs singleflight.Group
	writer   *backgroundWriter
}

var _ CacheController = (*Controller)(nil)

// Option configures a Controller.
type Option func(*Controller)

func WithNotifier(n Notifier) Option { return func(c *Controller) { c.notifier = n } }

func WithClients(cl Clients) Option { return func(c *Controller) { c.clients = cl } }

func WithMetrics(m Metrics) Option { return func(c *Controller) { c.metrics = m } }

// WithEventBus publishes lifecycle events on bus. The caller owns the bus.
func WithEventBus(bus *EventBus) Option { return func(c *Controller) { c.events = bus } }

func WithLogger(l logger.Logger) Option { return func(c *Controller) { c.log = l } }

func WithSyncRegistry(r *SyncRegistry) Option { return func(c *Controller) { c.syncs = r } }

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option { return func(c *Controller) { c.now = now } }

// NewController creates a controller in the UNREGISTERED state.
func NewController(cfg Config, storage Storage, fetcher Fetcher, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if storage == nil || fetcher == nil {
		return nil, errors.Categorize(errors.New("storage and fetcher are required"), errors.CategoryConfig, "shell")
	}

	c := &Controller{
		cfg:     cfg.withDefaults(),
		storage: storage,
		fetcher: fetcher,
		metrics: NoopMetrics{},
		log:     logger.Nop(),
		now:     time.Now,
		state:   StateUnregistered,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.syncs == nil {
		c.syncs = NewSyncRegistry()
	}
	c.log = c.log.With(logger.String("generation", c.cfg.CacheName))
	c.writer = newBackgroundWriter(c.log, c.storeFailed)
	return c, nil
}

// CacheName returns the generation this controller owns.
func (c *Controller) CacheName() string { return c.cfg.CacheName }

// Manifest returns a copy of the seed manifest.
func (c *Controller) Manifest() []string {
	out := make([]string, len(c.cfg.Manifest))
	copy(out, c.cfg.Manifest)
	return out
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Flush waits for every pending cache write.
func (c *Controller) Flush() {
	c.writer.Wait()
}

func (c *Controller) currentGeneration() Generation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// transition moves from one state to another, failing if the controller is
// somewhere else.
func (c *Controller) transition(from, to State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != from {
		return fmt.Errorf("%w: %s -> %s (current %s)", ErrInvalidTransition, from, to, c.state)
	}
	c.state = to
	return nil
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Controller) publish(kind EventKind, generation, key string, err error) {
	c.events.Publish(&LifecycleEvent{
		Kind:       kind,
		Generation: generation,
		Key:        key,
		Err:        err,
		Timestamp:  c.now(),
	})
}

func (c *Controller) storeFailed(key string, err error) {
	c.metrics.RecordStoreFailure()
	c.publish(EventStoreFailed, c.cfg.CacheName, key, err)
}
