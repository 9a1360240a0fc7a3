package shell

import (
	"context"
	"net/http"
	"sync"

	"github.com/ridecheck/ridecheck/internal/errors"
	"github.com/ridecheck/ridecheck/internal/logger"
)

var (
	// ErrUpdateInProgress is returned when an update starts while another is installing.
	ErrUpdateInProgress = errors.New("controller update already in progress")
	// ErrNoActiveController is returned for events that need an ACTIVE controller.
	ErrNoActiveController = errors.New("no active cache controller")
)

// Registration binds controllers to the application origin. It keeps the
// ACTIVE controller serving while a newer version installs alongside it,
// and swaps them once the new version is active.
type Registration struct {
	network Fetcher
	log     logger.Logger

	mu      sync.RWMutex
	active  *Controller
	waiting *Controller
	// retired controllers may still have writes in flight from requests
	// routed before the swap.
	retired []*Controller
}

// NewRegistration creates a registration with no controller. Until the first
// Update succeeds, requests go straight to network.
func NewRegistration(network Fetcher, log logger.Logger) *Registration {
	if log == nil {
		log = logger.Nop()
	}
	return &Registration{network: network, log: log}
}

// Active returns the ACTIVE controller, or nil.
func (r *Registration) Active() *Controller {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Waiting returns the controller currently installing, or nil.
func (r *Registration) Waiting() *Controller {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.waiting
}

// Update installs next, skips waiting, activates it and makes it the active
// controller. If install fails the previous controller stays active.
func (r *Registration) Update(ctx context.Context, next *Controller) error {
	r.mu.Lock()
	if r.waiting != nil {
		r.mu.Unlock()
		return ErrUpdateInProgress
	}
	r.waiting = next
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.waiting = nil
		r.mu.Unlock()
	}()

	if err := next.OnInstall(ctx); err != nil {
		return err
	}
	if err := next.SkipWaiting(); err != nil {
		return err
	}
	if err := next.OnActivate(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	prev := r.active
	r.active = next
	if prev != nil && prev != next {
		r.retired = append(r.retired, prev)
	}
	r.mu.Unlock()

	if prev != nil && prev != next {
		prev.retire()
		r.log.Info("controller superseded",
			logger.String("previous", prev.CacheName()),
			logger.String("current", next.CacheName()))
	}
	return nil
}

// Route sends req through the active controller, or to the network when
// there is none.
func (r *Registration) Route(ctx context.Context, req *http.Request) (*Response, error) {
	for range 2 {
		ctrl := r.Active()
		if ctrl == nil {
			return r.network.Fetch(ctx, req, FetchDefault)
		}
		resp, err := ctrl.Route(ctx, req)
		// The controller was retired between lookup and routing; retry with
		// its successor.
		if errors.Is(err, ErrNotActive) {
			continue
		}
		return resp, err
	}
	return nil, ErrNotActive
}

func (r *Registration) OnPush(ctx context.Context, payload []byte) error {
	ctrl := r.Active()
	if ctrl == nil {
		return ErrNoActiveController
	}
	return ctrl.OnPush(ctx, payload)
}

func (r *Registration) OnNotificationAction(ctx context.Context, click NotificationClick) error {
	ctrl := r.Active()
	if ctrl == nil {
		return ErrNoActiveController
	}
	return ctrl.OnNotificationAction(ctx, click)
}

func (r *Registration) OnSync(ctx context.Context, tag string) error {
	ctrl := r.Active()
	if ctrl == nil {
		return ErrNoActiveController
	}
	return ctrl.OnSync(ctx, tag)
}

// Flush waits for pending cache writes of the active controller and of every
// controller it superseded.
func (r *Registration) Flush() {
	r.mu.RLock()
	ctrls := append([]*Controller(nil), r.retired...)
	if r.active != nil {
		ctrls = append(ctrls, r.active)
	}
	r.mu.RUnlock()

	for _, ctrl := range ctrls {
		ctrl.Flush()
	}
}
