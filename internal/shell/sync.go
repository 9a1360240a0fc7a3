package shell

import (
	"context"
	"sync"

	"github.com/ridecheck/ridecheck/internal/logger"
)

// TagBackgroundSync is the only sync tag the controller handles.
const TagBackgroundSync = "background-sync"

// SyncHandler runs when a sync event with its tag is dispatched.
type SyncHandler func(ctx context.Context) error

// SyncRegistry routes sync events to handlers by tag.
type SyncRegistry struct {
	mu       sync.RWMutex
	handlers map[string]SyncHandler
}

// NewSyncRegistry returns a registry with the background-sync hook installed.
// The hook does nothing: there is no deferred-write queue behind it.
func NewSyncRegistry() *SyncRegistry {
	r := &SyncRegistry{handlers: make(map[string]SyncHandler)}
	r.Register(TagBackgroundSync, func(context.Context) error { return nil })
	return r
}

// Register binds handler to tag, replacing any previous binding.
func (r *SyncRegistry) Register(tag string, handler SyncHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[tag] = handler
}

// Dispatch runs the handler for tag. handled is false for unknown tags.
func (r *SyncRegistry) Dispatch(ctx context.Context, tag string) (handled bool, err error) {
	r.mu.RLock()
	handler, ok := r.handlers[tag]
	r.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return true, handler(ctx)
}

// OnSync dispatches a sync event by tag. Unknown tags are ignored.
func (c *Controller) OnSync(ctx context.Context, tag string) error {
	handled, err := c.syncs.Dispatch(ctx, tag)
	if !handled {
		c.log.Debug("sync tag ignored", logger.String("tag", tag))
		return nil
	}
	return err
}
