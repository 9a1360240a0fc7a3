package shell

import (
	"context"
	"fmt"
	"net/http"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/ridecheck/ridecheck/internal/logger"
)

// OnInstall populates this version's generation with the seed manifest and
// moves UNREGISTERED -> INSTALLING -> INSTALLED_WAITING. Every manifest entry
// must be fetched with a 2xx status and stored; otherwise the install is
// abandoned, the controller returns to UNREGISTERED and may be installed
// again. Concurrent calls share one attempt.
func (c *Controller) OnInstall(ctx context.Context) error {
	_, err, _ := c.installs.Do("install", func() (any, error) {
		return nil, c.install(ctx)
	})
	return err
}

func (c *Controller) install(ctx context.Context) error {
	if err := c.transition(StateUnregistered, StateInstalling); err != nil {
		return err
	}
	name := c.cfg.CacheName
	c.log.Info("installing shell", logger.Int("manifest_entries", len(c.cfg.Manifest)))

	gen, err := c.populate(ctx)
	if err != nil {
		c.setState(StateUnregistered)
		c.metrics.RecordInstall(false)
		c.publish(EventInstallFailed, name, "", err)
		c.log.Warn("shell install failed", logger.Error(err))
		return &InstallError{Generation: name, Err: err}
	}

	c.mu.Lock()
	c.generation = gen
	c.state = StateInstalledWaiting
	c.mu.Unlock()

	c.metrics.RecordInstall(true)
	c.publish(EventInstalled, name, "", nil)
	c.log.Info("shell installed")
	return nil
}

// populate fetches the whole manifest before writing anything, so a fetch
// failure never leaves entries behind.
func (c *Controller) populate(ctx context.Context) (Generation, error) {
	manifest := c.cfg.Manifest
	responses := make([]*Response, len(manifest))
	keys := make([]string, len(manifest))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.InstallConcurrency)
	for i, path := range manifest {
		g.Go(func() error {
			req, err := http.NewRequestWithContext(gctx, http.MethodGet, path, http.NoBody)
			if err != nil {
				return fmt.Errorf("build request for %s: %w", path, err)
			}
			resp, err := c.fetcher.Fetch(gctx, req, FetchNoCache)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", path, err)
			}
			if !resp.OK() {
				return &StatusError{URL: path, Status: resp.Status}
			}
			responses[i] = resp.snapshot(c.now())
			keys[i] = RequestKey(req)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	existing, err := c.storage.Names(ctx)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	preexisting := slices.Contains(existing, c.cfg.CacheName)

	gen, err := c.storage.Open(ctx, c.cfg.CacheName)
	if err != nil {
		return nil, fmt.Errorf("open generation: %w", err)
	}
	for i, resp := range responses {
		if err := gen.Put(ctx, keys[i], resp); err != nil {
			c.discardGeneration(ctx, preexisting)
			return nil, fmt.Errorf("store %s: %w", keys[i], err)
		}
	}
	return gen, nil
}

// discardGeneration removes a half-written generation created by this
// install. A generation that existed before the attempt is left alone.
func (c *Controller) discardGeneration(ctx context.Context, preexisting bool) {
	if preexisting {
		return
	}
	if _, err := c.storage.Delete(context.WithoutCancel(ctx), c.cfg.CacheName); err != nil {
		c.log.Warn("failed to discard partial generation", logger.Error(err))
	}
}

// SkipWaiting moves INSTALLED_WAITING -> ACTIVATING without waiting for
// instances controlled by an older version to close.
func (c *Controller) SkipWaiting() error {
	return c.transition(StateInstalledWaiting, StateActivating)
}

// OnActivate deletes every generation other than this version's, claims all
// open instances and moves ACTIVATING -> ACTIVE. Failures to delete or claim
// are logged and do not block activation.
func (c *Controller) OnActivate(ctx context.Context) error {
	if state := c.State(); state != StateActivating {
		return fmt.Errorf("%w: activate from %s", ErrInvalidTransition, state)
	}
	current := c.cfg.CacheName

	names, err := c.storage.Names(ctx)
	if err != nil {
		c.log.Warn("failed to list generations", logger.Error(err))
	}
	for _, name := range names {
		if name == current {
			continue
		}
		deleted, err := c.storage.Delete(ctx, name)
		if err != nil {
			c.log.Warn("failed to delete stale generation",
				logger.String("stale", name),
				logger.Error(err))
			continue
		}
		if deleted {
			c.metrics.RecordGenerationDeleted()
			c.publish(EventGenerationDeleted, name, "", nil)
			c.log.Info("stale generation deleted", logger.String("stale", name))
		}
	}

	if c.clients != nil {
		if err := c.clients.Claim(ctx, current); err != nil {
			c.log.Warn("failed to claim clients", logger.Error(err))
		} else {
			c.publish(EventClaimed, current, "", nil)
		}
	}

	if err := c.transition(StateActivating, StateActive); err != nil {
		return err
	}
	c.publish(EventActivated, current, "", nil)
	c.log.Info("shell activated")
	return nil
}

// retire marks a superseded controller REDUNDANT.
func (c *Controller) retire() {
	c.setState(StateRedundant)
}
